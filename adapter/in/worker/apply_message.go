// Package worker consumes queued jobs and drives the background pipelines.
package worker

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"apply_server/adapter/out/messaging"
)

// JobType represents the type of a job.
type JobType = string

// Job types, one per consumed stream.
const (
	JobSubmissionApply JobType = "submission.apply"
	JobSubmissionPoll  JobType = "submission.poll"
	JobMonitorProbe    JobType = "monitor.probe"
	JobMonitorVerify   JobType = "monitor.verify"
	JobNotifySend      JobType = "notify.send"
	JobUsageReset      JobType = "maintenance.usage_reset"
	JobJobExpiry       JobType = "maintenance.job_expiry"
)

// jobTypeForStream maps a stream name onto its job type.
var jobTypeForStream = map[string]JobType{
	messaging.StreamSubmissionApply: JobSubmissionApply,
	messaging.StreamSubmissionPoll:  JobSubmissionPoll,
	messaging.StreamMonitorProbe:    JobMonitorProbe,
	messaging.StreamMonitorVerify:   JobMonitorVerify,
	messaging.StreamNotifySend:      JobNotifySend,
	messaging.StreamUsageReset:      JobUsageReset,
	messaging.StreamJobExpiry:       JobJobExpiry,
}

// Message is one unit of work flowing through the pool. Payload holds the raw
// job document as published to the stream.
type Message struct {
	ID        string    `json:"id"`
	Type      JobType   `json:"type"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
	Retries   int       `json:"retries"`

	// done receives the final disposition: nil once the job succeeded or was
	// parked durably, an error when the pool lost it. Nil for fire-and-forget
	// submissions.
	done chan error
}

// finish signals the final disposition, at most once, without blocking.
func (m *Message) finish(err error) {
	if m.done == nil {
		return
	}
	select {
	case m.done <- err:
	default:
	}
}

// NewMessage wraps a raw stream payload.
func NewMessage(jobType JobType, payload []byte) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// ParsePayload decodes the message payload into the typed job struct.
func ParsePayload[T any](msg *Message) (*T, error) {
	var payload T
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
