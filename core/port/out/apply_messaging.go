package out

import (
	"context"
	"time"
)

// =============================================================================
// Message Queue Port
// =============================================================================

// MessageProducer defines the outbound port for the job queue. Every job
// carries an idempotency key so a crash between ack and dispatch cannot
// duplicate work.
type MessageProducer interface {
	// Submission jobs
	PublishSubmission(ctx context.Context, job *SubmissionJob) error
	PublishSubmissionPoll(ctx context.Context, job *SubmissionPollJob) error

	// Monitor jobs
	PublishProbe(ctx context.Context, job *ProbeJob) error
	PublishVerification(ctx context.Context, job *VerificationJob) error

	// Notification jobs
	PublishNotification(ctx context.Context, job *NotificationJob) error

	// Maintenance jobs
	PublishUsageReset(ctx context.Context, job *UsageResetJob) error
	PublishJobExpiry(ctx context.Context, job *JobExpiryJob) error
}

// SubmissionJob submits one application end to end.
type SubmissionJob struct {
	IdempotencyKey string `json:"idempotency_key"`
	UserID         string `json:"user_id"`
	ApplicationID  string `json:"application_id"`
	JobID          string `json:"job_id"`
	CVID           string `json:"cv_id,omitempty"`
	CoverLetterID  string `json:"cover_letter_id,omitempty"`
	UsageType      string `json:"usage_type"`
}

// SubmissionPollJob polls a started browser session until it settles.
type SubmissionPollJob struct {
	IdempotencyKey string `json:"idempotency_key"`
	UserID         string `json:"user_id"`
	ApplicationID  string `json:"application_id"`
	SessionID      string `json:"session_id"`
	Attempt        int    `json:"attempt"`
}

// ProbeJob runs one hybrid response probe for an application.
type ProbeJob struct {
	IdempotencyKey string `json:"idempotency_key"`
	UserID         string `json:"user_id"`
	ApplicationID  string `json:"application_id"`
}

// VerificationJob looks for a portal verification email and follows the link.
type VerificationJob struct {
	IdempotencyKey string `json:"idempotency_key"`
	UserID         string `json:"user_id"`
	ApplicationID  string `json:"application_id"`
	PortalDomain   string `json:"portal_domain"`
}

// NotificationJob fans out one notification.
type NotificationJob struct {
	UserID   string         `json:"user_id"`
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Data     map[string]any `json:"data,omitempty"`
	Channels []string       `json:"channels,omitempty"`
}

// UsageResetJob triggers the monthly usage sweep.
type UsageResetJob struct {
	At time.Time `json:"at"`
}

// JobExpiryJob expires stale postings.
type JobExpiryJob struct {
	At time.Time `json:"at"`
}
