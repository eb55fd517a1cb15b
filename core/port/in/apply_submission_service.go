package in

import (
	"context"

	"apply_server/core/domain"
)

// SubmissionService routes one application to the email or browser channel.
type SubmissionService interface {
	// Submit reserves quota, picks the channel, performs the submission and
	// transitions the application. The reservation is released on failure and
	// committed only when the submission lands.
	Submit(ctx context.Context, req *SubmitRequest) (*SubmitResult, error)

	// PollSession re-checks a started browser session and settles the
	// application when the worker reports a final status.
	PollSession(ctx context.Context, userID, applicationID, sessionID string) (*SubmitResult, error)

	// HandleWorkerCallback applies an asynchronous status update pushed by
	// the automation worker.
	HandleWorkerCallback(ctx context.Context, sessionID, status string, payload map[string]any) error
}

// SubmitRequest identifies the application and documents to submit. The
// idempotency key guards the quota increment against queue redelivery.
type SubmitRequest struct {
	UserID         string                `json:"user_id"`
	ApplicationID  string                `json:"application_id"`
	CVID           string                `json:"cv_id,omitempty"`
	CoverLetterID  string                `json:"cover_letter_id,omitempty"`
	UsageType      domain.UsageEventType `json:"usage_type"`
	IdempotencyKey string                `json:"idempotency_key,omitempty"`
}

// Submission channels.
const (
	ChannelEmailPath   = "email"
	ChannelBrowserPath = "browser"
)

// SubmitResult reports where the submission landed.
type SubmitResult struct {
	Channel   string                   `json:"channel"`
	Status    domain.ApplicationStatus `json:"status"`
	SessionID string                   `json:"session_id,omitempty"`
	ThreadID  string                   `json:"thread_id,omitempty"`
	// JobDeleted is set when a login-wall source caused a hard delete.
	JobDeleted bool `json:"job_deleted,omitempty"`
}
