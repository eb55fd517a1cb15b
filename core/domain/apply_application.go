package domain

import (
	"time"
)

// =============================================================================
// Application - one job application and everything observed about it
// =============================================================================

// ApplicationStatus is the closed set of lifecycle states.
type ApplicationStatus string

const (
	StatusDraft                ApplicationStatus = "draft"
	StatusPending              ApplicationStatus = "pending"
	StatusSubmitted            ApplicationStatus = "submitted"
	StatusApplied              ApplicationStatus = "applied"
	StatusUnderReview          ApplicationStatus = "under_review"
	StatusInterviewScheduled   ApplicationStatus = "interview_scheduled"
	StatusInterviewCompleted   ApplicationStatus = "interview_completed"
	StatusSecondRound          ApplicationStatus = "second_round"
	StatusFinalRound           ApplicationStatus = "final_round"
	StatusOfferReceived        ApplicationStatus = "offer_received"
	StatusOfferAccepted        ApplicationStatus = "offer_accepted"
	StatusOfferDeclined        ApplicationStatus = "offer_declined"
	StatusRejected             ApplicationStatus = "rejected"
	StatusWithdrawn            ApplicationStatus = "withdrawn"
	StatusOnHold               ApplicationStatus = "on_hold"
	StatusArchived             ApplicationStatus = "archived"
	StatusNeedsAuthentication  ApplicationStatus = "needs_authentication"
	StatusManualActionRequired ApplicationStatus = "manual_action_required"
	StatusPendingVerification  ApplicationStatus = "pending_verification"
	StatusProcessing           ApplicationStatus = "processing"
)

// AllStatuses lists every valid lifecycle state.
var AllStatuses = []ApplicationStatus{
	StatusDraft, StatusPending, StatusSubmitted, StatusApplied,
	StatusUnderReview, StatusInterviewScheduled, StatusInterviewCompleted,
	StatusSecondRound, StatusFinalRound, StatusOfferReceived,
	StatusOfferAccepted, StatusOfferDeclined, StatusRejected,
	StatusWithdrawn, StatusOnHold, StatusArchived,
	StatusNeedsAuthentication, StatusManualActionRequired,
	StatusPendingVerification, StatusProcessing,
}

// terminalStatuses never regress: once written, final.
var terminalStatuses = map[ApplicationStatus]bool{
	StatusOfferAccepted: true,
	StatusOfferDeclined: true,
	StatusRejected:      true,
	StatusWithdrawn:     true,
	StatusArchived:      true,
}

// responseStatuses count as "employer responded" for stats and filters.
var responseStatuses = map[ApplicationStatus]bool{
	StatusInterviewScheduled: true,
	StatusInterviewCompleted: true,
	StatusSecondRound:        true,
	StatusFinalRound:         true,
	StatusOfferReceived:      true,
	StatusOfferAccepted:      true,
	StatusOfferDeclined:      true,
	StatusRejected:           true,
}

// IsTerminal reports whether s is a terminal state.
func (s ApplicationStatus) IsTerminal() bool {
	return terminalStatuses[s]
}

// IsResponse reports whether s counts as an employer response.
func (s ApplicationStatus) IsResponse() bool {
	return responseStatuses[s]
}

// IsValid reports whether s is a member of the closed state set.
func (s ApplicationStatus) IsValid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// ResponseStatuses returns the response set as a slice (for query filters).
func ResponseStatuses() []ApplicationStatus {
	out := make([]ApplicationStatus, 0, len(responseStatuses))
	for s := range responseStatuses {
		out = append(out, s)
	}
	return out
}

// ApplicationSource records how an application was submitted.
type ApplicationSource string

const (
	SourceManual            ApplicationSource = "manual"
	SourcePlatform          ApplicationSource = "platform"
	SourceAutoApply         ApplicationSource = "auto_apply"
	SourceBrowserAutomation ApplicationSource = "browser_automation"
	SourceReferral          ApplicationSource = "referral"
	SourceDirect            ApplicationSource = "direct"
	SourceRecruiter         ApplicationSource = "recruiter"
)

// ApplicationPriority is a user-set ranking hint.
type ApplicationPriority string

const (
	AppPriorityLow    ApplicationPriority = "low"
	AppPriorityMedium ApplicationPriority = "medium"
	AppPriorityHigh   ApplicationPriority = "high"
	AppPriorityUrgent ApplicationPriority = "urgent"
)

// =============================================================================
// Embedded sub-documents
// =============================================================================

// CommunicationDirection distinguishes inbound evidence from our own sends.
type CommunicationDirection string

const (
	DirectionInbound  CommunicationDirection = "inbound"
	DirectionOutbound CommunicationDirection = "outbound"
)

// Communication is one exchanged message tied to an application.
type Communication struct {
	Type         string                 `bson:"type" json:"type"`
	Direction    CommunicationDirection `bson:"direction" json:"direction"`
	Subject      string                 `bson:"subject,omitempty" json:"subject,omitempty"`
	Content      string                 `bson:"content,omitempty" json:"content,omitempty"`
	ContactEmail string                 `bson:"contact_email,omitempty" json:"contact_email,omitempty"`
	Timestamp    time.Time              `bson:"timestamp" json:"timestamp"`
	MessageID    string                 `bson:"message_id,omitempty" json:"message_id,omitempty"`
	ThreadID     string                 `bson:"thread_id,omitempty" json:"thread_id,omitempty"`
}

// InterviewType enumerates interview formats.
type InterviewType string

const (
	InterviewPhoneScreening  InterviewType = "phone_screening"
	InterviewVideo           InterviewType = "video"
	InterviewInPerson        InterviewType = "in_person"
	InterviewTechnical       InterviewType = "technical"
	InterviewBehavioral      InterviewType = "behavioral"
	InterviewPanel           InterviewType = "panel"
	InterviewPresentation    InterviewType = "presentation"
	InterviewCaseStudy       InterviewType = "case_study"
	InterviewCodingChallenge InterviewType = "coding_challenge"
)

// InterviewStatus tracks a single round's state.
type InterviewStatus string

const (
	InterviewScheduled   InterviewStatus = "scheduled"
	InterviewCompleted   InterviewStatus = "completed"
	InterviewCancelled   InterviewStatus = "cancelled"
	InterviewRescheduled InterviewStatus = "rescheduled"
)

// Interview is a scheduled or past interview round.
type Interview struct {
	Type        InterviewType   `bson:"type" json:"type"`
	ScheduledAt time.Time       `bson:"scheduled_at" json:"scheduled_at"`
	DurationMin int             `bson:"duration_min,omitempty" json:"duration_min,omitempty"`
	Location    string          `bson:"location,omitempty" json:"location,omitempty"`
	MeetingLink string          `bson:"meeting_link,omitempty" json:"meeting_link,omitempty"`
	Round       int             `bson:"round" json:"round"`
	Status      InterviewStatus `bson:"status" json:"status"`
	Feedback    string          `bson:"feedback,omitempty" json:"feedback,omitempty"`
	Rating      int             `bson:"rating,omitempty" json:"rating,omitempty"` // 1-5
}

// Task is a user to-do attached to an application.
type Task struct {
	Title       string              `bson:"title" json:"title"`
	Description string              `bson:"description,omitempty" json:"description,omitempty"`
	Priority    ApplicationPriority `bson:"priority,omitempty" json:"priority,omitempty"`
	DueDate     *time.Time          `bson:"due_date,omitempty" json:"due_date,omitempty"`
	Completed   bool                `bson:"completed" json:"completed"`
	CompletedAt *time.Time          `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	Category    string              `bson:"category,omitempty" json:"category,omitempty"`
}

// Document references an uploaded file (CV, cover letter, ...).
type Document struct {
	FileID     string    `bson:"file_id" json:"file_id"`
	Type       string    `bson:"type" json:"type"` // cv, cover_letter, portfolio
	Name       string    `bson:"name,omitempty" json:"name,omitempty"`
	UploadedAt time.Time `bson:"uploaded_at" json:"uploaded_at"`
}

// Timeline event types.
const (
	EventCreated            = "created"
	EventStatusChange       = "status_change"
	EventDocumentUploaded   = "document_uploaded"
	EventCommunicationAdded = "communication_added"
	EventInterviewScheduled = "interview_scheduled"
	EventTaskCreated        = "task_created"
	EventTaskCompleted      = "task_completed"
	EventNotesUpdated       = "notes_updated"
	EventPriorityUpdated    = "priority_updated"
	EventFollowUpSet        = "follow_up_set"
)

// TimelineEvent is one append-only history entry. Chronologically indexed.
type TimelineEvent struct {
	Timestamp   time.Time      `bson:"timestamp" json:"timestamp"`
	Type        string         `bson:"type" json:"type"`
	Description string         `bson:"description" json:"description"`
	Metadata    map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// =============================================================================
// Application
// =============================================================================

type Application struct {
	ID     string `bson:"_id,omitempty" json:"id"`
	UserID string `bson:"user_id" json:"user_id"`
	JobID  string `bson:"job_id" json:"job_id"`

	Status ApplicationStatus `bson:"status" json:"status"`
	Source ApplicationSource `bson:"source" json:"source"`

	// Denormalized job fields for list reads
	JobTitle    string `bson:"job_title,omitempty" json:"job_title,omitempty"`
	CompanyName string `bson:"company_name,omitempty" json:"company_name,omitempty"`
	Location    string `bson:"location,omitempty" json:"location,omitempty"`

	Priority    ApplicationPriority `bson:"priority,omitempty" json:"priority,omitempty"`
	Notes       string              `bson:"notes,omitempty" json:"notes,omitempty"`
	AppliedDate *time.Time          `bson:"applied_date,omitempty" json:"applied_date,omitempty"`

	// Submission channel details
	ApplicationURL    string     `bson:"application_url,omitempty" json:"application_url,omitempty"`
	ApplicationDomain string     `bson:"application_domain,omitempty" json:"application_domain,omitempty"`
	RecipientEmail    string     `bson:"recipient_email,omitempty" json:"recipient_email,omitempty"`
	EmailThreadID     string     `bson:"email_thread_id,omitempty" json:"email_thread_id,omitempty"`
	LastEmailSentAt   *time.Time `bson:"last_email_sent_at,omitempty" json:"last_email_sent_at,omitempty"`

	// ReservedUsageType records an open quota reservation while a browser
	// session is in flight, so an asynchronous settle can release it.
	ReservedUsageType string `bson:"reserved_usage_type,omitempty" json:"reserved_usage_type,omitempty"`

	// Embedded lists
	Documents      []Document      `bson:"documents,omitempty" json:"documents,omitempty"`
	Communications []Communication `bson:"communications,omitempty" json:"communications,omitempty"`
	Interviews     []Interview     `bson:"interviews,omitempty" json:"interviews,omitempty"`
	Tasks          []Task          `bson:"tasks,omitempty" json:"tasks,omitempty"`
	Timeline       []TimelineEvent `bson:"timeline,omitempty" json:"timeline,omitempty"`

	// Response monitoring
	EmailMonitoringEnabled bool       `bson:"email_monitoring_enabled" json:"email_monitoring_enabled"`
	LastResponseCheck      *time.Time `bson:"last_response_check,omitempty" json:"last_response_check,omitempty"`
	ResponseCheckCount     int        `bson:"response_check_count" json:"response_check_count"`

	// Follow-ups
	FollowUpDate  *time.Time `bson:"follow_up_date,omitempty" json:"follow_up_date,omitempty"`
	NextFollowUp  *time.Time `bson:"next_follow_up,omitempty" json:"next_follow_up,omitempty"`
	FollowUpCount int        `bson:"follow_up_count" json:"follow_up_count"`

	// Portal activation
	VerificationPortalDomain string `bson:"verification_portal_domain,omitempty" json:"verification_portal_domain,omitempty"`

	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
}

// HasInboundCommunication reports whether any inbound message was recorded.
// Inbound entries are authoritative evidence of "response received".
func (a *Application) HasInboundCommunication() bool {
	for _, c := range a.Communications {
		if c.Direction == DirectionInbound {
			return true
		}
	}
	return false
}

// HasResponse reports whether the employer responded, either via status or
// via an inbound communication.
func (a *Application) HasResponse() bool {
	return a.Status.IsResponse() || a.HasInboundCommunication()
}

// HasCommunicationMessage reports whether the provider message id was already
// recorded. The monitor dedupes on it before pushing.
func (a *Application) HasCommunicationMessage(messageID string) bool {
	if messageID == "" {
		return false
	}
	for _, c := range a.Communications {
		if c.MessageID == messageID {
			return true
		}
	}
	return false
}

// =============================================================================
// Queries
// =============================================================================

// ApplicationFilter narrows list reads.
type ApplicationFilter struct {
	Status        *ApplicationStatus
	Company       string // case-insensitive substring
	Priority      *ApplicationPriority
	AppliedAfter  *time.Time
	AppliedBefore *time.Time
	HasInterviews *bool
	NeedsFollowUp *bool // follow_up_date <= now
	HasResponse   *bool
	Search        string // free text over title/company/location
}

// ApplicationPage is one page of a list read.
type ApplicationPage struct {
	Items      []*Application
	Total      int64
	Page       int
	PageSize   int
	TotalPages int
}

// ApplicationSort names a sortable field, prefixed with '-' for descending.
type ApplicationSort string

const (
	SortCreatedDesc ApplicationSort = "-created_at"
	SortAppliedDesc ApplicationSort = "-applied_date"
	SortCompanyAsc  ApplicationSort = "company_name"
	SortPriority    ApplicationSort = "priority"
)
