package in

import (
	"context"
	"time"

	"apply_server/core/domain"
)

// MonitorService runs hybrid response probes.
type MonitorService interface {
	// Probe runs portal, mailbox and thread probes for one application,
	// fuses the signals and applies at most one transition. Partial work is
	// not committed when the context is cancelled.
	Probe(ctx context.Context, userID, applicationID string) (*ProbeResult, error)

	// EnqueueDue scans monitored applications and enqueues a probe per
	// application, rate-capped per user. Returns the number enqueued.
	EnqueueDue(ctx context.Context) (int, error)

	// SweepVerifications looks for portal verification emails for every
	// application stuck in pending_verification.
	SweepVerifications(ctx context.Context) (int, error)
}

// ProbeSignal is one observation from a probe source.
type ProbeSignal struct {
	Kind      domain.SignalKind `json:"kind"`
	Source    string            `json:"source"` // portal, mailbox, thread
	MessageID string            `json:"message_id,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// ProbeResult summarizes one probe run.
type ProbeResult struct {
	ApplicationID string                    `json:"application_id"`
	Signals       []ProbeSignal             `json:"signals"`
	Fused         *domain.SignalKind        `json:"fused,omitempty"`
	NewStatus     *domain.ApplicationStatus `json:"new_status,omitempty"`
	NewMessages   int                       `json:"new_messages"`
}

// QuotaService enforces per-plan usage limits.
type QuotaService interface {
	// Check is pure: reads current usage against the plan limit.
	Check(ctx context.Context, userID string, event domain.UsageEventType, qty int) (allowed bool, current, limit int, err error)

	// Track performs the conditional atomic increment and appends a
	// UsageEvent. Returns QuotaDenied with no side effects when over limit.
	// A non-empty idemKey makes the call replay-safe: a key that was already
	// consumed returns nil without touching the counters.
	Track(ctx context.Context, userID string, event domain.UsageEventType, qty int, idemKey string, metadata map[string]any) error

	// Release undoes a tracked increment after a failed submission.
	Release(ctx context.Context, userID string, event domain.UsageEventType, qty int) error

	// ResetMonthly zeroes counters for subscriptions past their reset date
	// and advances the date by 30 days. Returns the number reset.
	ResetMonthly(ctx context.Context) (int, error)
}

// NotificationService fans out notifications.
type NotificationService interface {
	// Notify persists the in-app document and fans out the channels
	// concurrently. The in_app channel is always included.
	Notify(ctx context.Context, userID string, notifType domain.NotificationType, title, message string, data map[string]any, channels []domain.NotificationChannel) (*domain.Notification, error)

	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*domain.Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
}
