package out

import "context"

// =============================================================================
// Browser Automation Port
// =============================================================================

// Session status strings returned by the automation worker. Wire-exact.
const (
	AutomationStarted              = "started"
	AutomationCompleted            = "completed"
	AutomationNeedsAuthentication  = "needs_authentication"
	AutomationLoginRequired        = "login_required"
	AutomationManualActionRequired = "manual_action_required"
	AutomationPendingVerification  = "pending_verification"
)

// Check-status strings returned by the portal status probe. Wire-exact.
const (
	CheckApplied   = "applied"
	CheckInReview  = "in_review"
	CheckInterview = "interview"
	CheckOffer     = "offer"
	CheckRejected  = "rejected"
	CheckUnknown   = "unknown"
)

// AutofillPersonalInfo is the contact block sent to the worker.
type AutofillPersonalInfo struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	Location  string `json:"location,omitempty"`
	LinkedIn  string `json:"linkedin,omitempty"`
	Website   string `json:"website,omitempty"`
}

// AutofillExperience is one work-history entry for form filling.
type AutofillExperience struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
	Description string `json:"description,omitempty"`
}

// AutofillEducation is one education entry for form filling.
type AutofillEducation struct {
	Institution string `json:"institution"`
	Degree      string `json:"degree,omitempty"`
	Field       string `json:"field,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
}

// AutofillData is the full payload the worker fills forms from.
type AutofillData struct {
	PersonalInfo AutofillPersonalInfo `json:"personal_info"`
	Experience   []AutofillExperience `json:"experience,omitempty"`
	Education    []AutofillEducation  `json:"education,omitempty"`
	Skills       map[string][]string  `json:"skills,omitempty"`
	CoverLetter  string               `json:"cover_letter,omitempty"`
}

// PortalLogin is a stored credential passed to the worker.
type PortalLogin struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// NewPortalCredentials is returned when the worker registered an account.
type NewPortalCredentials struct {
	PortalName string `json:"portal_name"`
	Domain     string `json:"domain"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

// StartRequest starts an automation session.
type StartRequest struct {
	SessionID         string        `json:"session_id"`
	URL               string        `json:"url"`
	AutofillData      *AutofillData `json:"autofill_data"`
	JobSource         string        `json:"job_source,omitempty"`
	Credentials       *PortalLogin  `json:"credentials,omitempty"`
	AutoCreateAccount bool          `json:"auto_create_account"`
}

// StartResponse is the worker's reply to a session start.
type StartResponse struct {
	Status             string                `json:"status"`
	BrowserSessionID   string                `json:"browser_session_id,omitempty"`
	NewCredentials     *NewPortalCredentials `json:"new_credentials,omitempty"`
	VerificationDomain string                `json:"verification_domain,omitempty"`
	Message            string                `json:"message,omitempty"`
}

// StatusResponse is the worker's reply to a session poll.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// CheckStatusResponse is the worker's reply to a portal status probe.
type CheckStatusResponse struct {
	Success          bool   `json:"success"`
	Status           string `json:"status"`
	MatchedKeyword   string `json:"matched_keyword,omitempty"`
	ScreenshotBase64 string `json:"screenshot_base64,omitempty"`
}

// BrowserAutomation defines the outbound port for the automation worker.
type BrowserAutomation interface {
	Start(ctx context.Context, req *StartRequest) (*StartResponse, error)
	PollStatus(ctx context.Context, sessionID string) (*StatusResponse, error)
	CheckStatus(ctx context.Context, url string) (*CheckStatusResponse, error)
	Cancel(ctx context.Context, sessionID string) error
	Health(ctx context.Context) error
}
