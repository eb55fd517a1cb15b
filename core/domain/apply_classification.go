package domain

// =============================================================================
// Email classification
// =============================================================================

// EmailCategory is the closed set of classifier outputs.
type EmailCategory string

const (
	CategoryInterviewInvitation EmailCategory = "interview_invitation"
	CategoryRejection           EmailCategory = "rejection"
	CategoryOffer               EmailCategory = "offer"
	CategoryInformationRequest  EmailCategory = "information_request"
	CategoryFollowUpRequired    EmailCategory = "follow_up_required"
	CategoryAcknowledgment      EmailCategory = "acknowledgment"
	CategorySchedulingRequest   EmailCategory = "scheduling_request"
	CategoryUnknown             EmailCategory = "unknown"
)

// AllCategories lists every classifier category.
var AllCategories = []EmailCategory{
	CategoryInterviewInvitation,
	CategoryRejection,
	CategoryOffer,
	CategoryInformationRequest,
	CategoryFollowUpRequired,
	CategoryAcknowledgment,
	CategorySchedulingRequest,
	CategoryUnknown,
}

// TransitionConfidenceGate is the minimum confidence for an automated status
// transition. Results below the gate are stored but not applied.
const TransitionConfidenceGate = 0.6

// LLMEscalationThreshold is the deterministic confidence below which the
// classifier escalates to the LLM pass.
const LLMEscalationThreshold = 0.75

// ExtractedInfo holds slots the classifier pulled from the message.
type ExtractedInfo struct {
	Dates    []string `bson:"dates,omitempty" json:"dates,omitempty"`
	Times    []string `bson:"times,omitempty" json:"times,omitempty"`
	Location string   `bson:"location,omitempty" json:"location,omitempty"`
}

// AnalysisResult is the classifier output for one message.
type AnalysisResult struct {
	Category        EmailCategory      `bson:"category" json:"category"`
	Confidence      float64            `bson:"confidence" json:"confidence"`
	SuggestedStatus *ApplicationStatus `bson:"suggested_status,omitempty" json:"suggested_status,omitempty"`
	RequiresAction  bool               `bson:"requires_action" json:"requires_action"`
	ActionType      string             `bson:"action_type,omitempty" json:"action_type,omitempty"`
	ActionDetails   map[string]any     `bson:"action_details,omitempty" json:"action_details,omitempty"`
	KeywordsMatched []string           `bson:"keywords_matched,omitempty" json:"keywords_matched,omitempty"`
	ExtractedInfo   ExtractedInfo      `bson:"extracted_info" json:"extracted_info"`
	LLMUsed         bool               `bson:"llm_used" json:"llm_used"`
}

// SuggestedStatusFor maps a category to the automated status transition.
// Acknowledgment is conditional on the current status and returns the target
// with applyOnlyFrom listing the states it may transition out of.
func SuggestedStatusFor(category EmailCategory) (status ApplicationStatus, ok bool) {
	switch category {
	case CategoryInterviewInvitation:
		return StatusInterviewScheduled, true
	case CategoryRejection:
		return StatusRejected, true
	case CategoryOffer:
		return StatusOfferReceived, true
	case CategoryAcknowledgment:
		return StatusUnderReview, true
	default:
		return "", false
	}
}

// AcknowledgmentApplicableFrom lists the states an acknowledgment may
// transition out of. Acknowledgments after an interview carry no signal.
var AcknowledgmentApplicableFrom = map[ApplicationStatus]bool{
	StatusApplied:   true,
	StatusSubmitted: true,
}

// ShouldApplyTransition reports whether the result clears the confidence gate
// and, for acknowledgments, whether the current status permits the move.
func (r *AnalysisResult) ShouldApplyTransition(current ApplicationStatus) bool {
	if r.SuggestedStatus == nil || r.Confidence < TransitionConfidenceGate {
		return false
	}
	if current.IsTerminal() {
		return false
	}
	if r.Category == CategoryAcknowledgment && !AcknowledgmentApplicableFrom[current] {
		return false
	}
	return true
}

// =============================================================================
// Monitor signals
// =============================================================================

// SignalKind is the high-level status observed by a probe.
type SignalKind string

const (
	SignalRejected  SignalKind = "rejected"
	SignalOffer     SignalKind = "offer"
	SignalInterview SignalKind = "interview"
	SignalInReview  SignalKind = "in_review"
	SignalApplied   SignalKind = "applied"
)

// signalPrecedence orders fusion: higher wins.
var signalPrecedence = map[SignalKind]int{
	SignalRejected:  5,
	SignalOffer:     4,
	SignalInterview: 3,
	SignalInReview:  2,
	SignalApplied:   1,
}

// Precedence returns the fusion rank of the signal kind, 0 if unknown.
func (k SignalKind) Precedence() int {
	return signalPrecedence[k]
}

// TargetStatus maps the fused signal kind to a lifecycle status.
func (k SignalKind) TargetStatus() (ApplicationStatus, bool) {
	switch k {
	case SignalRejected:
		return StatusRejected, true
	case SignalOffer:
		return StatusOfferReceived, true
	case SignalInterview:
		return StatusInterviewScheduled, true
	case SignalInReview:
		return StatusUnderReview, true
	case SignalApplied:
		return StatusApplied, true
	default:
		return "", false
	}
}
