// Package in defines inbound ports (driving ports) for the application.
package in

import (
	"context"
	"time"

	"apply_server/core/domain"
)

// ApplicationService defines the lifecycle operations. Every mutation appends
// a timeline event atomically with the field update; mutations carry an
// idempotency key and replaying the same key is a no-op.
type ApplicationService interface {
	// === CRUD ===
	Get(ctx context.Context, userID, id string) (*domain.Application, error)
	List(ctx context.Context, userID string, filter *domain.ApplicationFilter, page, pageSize int, sort domain.ApplicationSort) (*domain.ApplicationPage, error)
	Create(ctx context.Context, userID string, req *CreateApplicationRequest) (*domain.Application, error)
	SoftDelete(ctx context.Context, userID, id, idemKey string) error

	// === Transitions ===
	UpdateStatus(ctx context.Context, userID, id string, newStatus domain.ApplicationStatus, reason, idemKey string) (*domain.Application, error)

	// ApplyClassifierResult applies a classifier-suggested transition,
	// honoring the confidence gate and the terminal-state rule. The result is
	// recorded even when no transition fires.
	ApplyClassifierResult(ctx context.Context, userID, id string, result *domain.AnalysisResult, sourceMessageID string) (*domain.Application, error)

	// === Sub-resource operations ===
	ScheduleInterview(ctx context.Context, userID, id string, iv *domain.Interview, idemKey string) error
	SetFollowUp(ctx context.Context, userID, id string, at time.Time, idemKey string) error
	AddCommunication(ctx context.Context, userID, id string, comm *domain.Communication, idemKey string) error
	AddDocument(ctx context.Context, userID, id string, doc *domain.Document, idemKey string) error
	AddTask(ctx context.Context, userID, id string, task *domain.Task, idemKey string) error
	CompleteTask(ctx context.Context, userID, id string, taskIndex int, idemKey string) error
	UpdateNotes(ctx context.Context, userID, id, notes, idemKey string) error
	UpdatePriority(ctx context.Context, userID, id string, priority domain.ApplicationPriority, idemKey string) error

	// === Derived queries ===
	FollowUpsNeeded(ctx context.Context, userID string) ([]*domain.Application, error)
	UpcomingInterviews(ctx context.Context, userID string, days int) ([]*domain.Application, error)

	// === Stats ===
	Stats(ctx context.Context, userID string) (*ApplicationStats, error)
}

// CreateApplicationRequest creates an application for an existing job.
type CreateApplicationRequest struct {
	JobID    string                     `json:"job_id"`
	Source   domain.ApplicationSource   `json:"source,omitempty"`
	Priority domain.ApplicationPriority `json:"priority,omitempty"`
	Notes    string                     `json:"notes,omitempty"`
}

// ApplicationStats is the aggregate view of one user's pipeline.
type ApplicationStats struct {
	Total         int64                                `json:"total"`
	ByStatus      map[domain.ApplicationStatus]int64   `json:"by_status"`
	Today         int64                                `json:"today"`
	ThisWeek      int64                                `json:"this_week"`
	ThisMonth     int64                                `json:"this_month"`
	InterviewRate float64                              `json:"interview_rate"`
	ResponseRate  float64                              `json:"response_rate"`
}
