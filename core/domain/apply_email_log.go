package domain

import "time"

// =============================================================================
// Email logs and dead letters
// =============================================================================

// EmailLogStatus tracks a logged message's delivery state.
type EmailLogStatus string

const (
	EmailSent     EmailLogStatus = "sent"
	EmailReceived EmailLogStatus = "received"
	EmailFailed   EmailLogStatus = "failed"
	EmailDraft    EmailLogStatus = "draft"
)

// EmailLog is one recorded message tied to an application.
type EmailLog struct {
	ID            string                 `bson:"_id,omitempty" json:"id"`
	UserID        string                 `bson:"user_id" json:"user_id"`
	ApplicationID string                 `bson:"application_id,omitempty" json:"application_id,omitempty"`
	JobID         string                 `bson:"job_id,omitempty" json:"job_id,omitempty"`

	Direction CommunicationDirection `bson:"direction" json:"direction"`
	Status    EmailLogStatus         `bson:"status" json:"status"`

	MessageID string `bson:"message_id,omitempty" json:"message_id,omitempty"`
	ThreadID  string `bson:"thread_id,omitempty" json:"thread_id,omitempty"`
	Sender    string `bson:"sender,omitempty" json:"sender,omitempty"`
	Recipient string `bson:"recipient,omitempty" json:"recipient,omitempty"`
	Subject   string `bson:"subject,omitempty" json:"subject,omitempty"`
	Snippet   string `bson:"snippet,omitempty" json:"snippet,omitempty"`

	Error  string    `bson:"error,omitempty" json:"error,omitempty"`
	SentAt time.Time `bson:"sent_at" json:"sent_at"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// DeadLetter parks a permanently failed job with full context for an operator.
type DeadLetter struct {
	ID        string         `bson:"_id,omitempty" json:"id"`
	JobID     string         `bson:"job_id" json:"job_id"` // queue message id
	Topic     string         `bson:"topic" json:"topic"`
	JobType   string         `bson:"job_type" json:"job_type"`
	Payload   map[string]any `bson:"payload,omitempty" json:"payload,omitempty"`
	Error     string         `bson:"error" json:"error"`
	Attempts  int            `bson:"attempts" json:"attempts"`
	CreatedAt time.Time      `bson:"created_at" json:"created_at"`
}

// WebhookEvent records an inbound automation-worker callback, unique by
// session id so retried deliveries are idempotent.
type WebhookEvent struct {
	ID        string         `bson:"_id,omitempty" json:"id"`
	SessionID string         `bson:"session_id" json:"session_id"`
	Source    string         `bson:"source" json:"source"`
	Payload   map[string]any `bson:"payload,omitempty" json:"payload,omitempty"`
	CreatedAt time.Time      `bson:"created_at" json:"created_at"`
}
