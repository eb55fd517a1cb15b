// Package out defines outbound ports (driven ports) for the application.
package out

import (
	"context"
	"time"

	"apply_server/core/domain"
)

// =============================================================================
// Repositories
// =============================================================================

// ApplicationPatch is a partial update. Nil fields are left untouched. The
// patch and any timeline events commit in one atomic write.
type ApplicationPatch struct {
	Status            *domain.ApplicationStatus
	Priority          *domain.ApplicationPriority
	Notes             *string
	AppliedDate       *time.Time
	FollowUpDate      *time.Time
	NextFollowUp      *time.Time
	EmailThreadID     *string
	LastEmailSentAt   *time.Time
	ApplicationDomain *string
	RecipientEmail    *string

	EmailMonitoringEnabled *bool
	LastResponseCheck      *time.Time
	IncResponseCheckCount  bool
	IncFollowUpCount       bool

	VerificationPortalDomain *string

	// ReservedUsageType persists or clears the open quota reservation. An
	// empty string clears it.
	ReservedUsageType *string

	// Appends
	PushTimeline       []domain.TimelineEvent
	PushCommunications []domain.Communication
	PushInterviews     []domain.Interview
	PushTasks          []domain.Task
	PushDocuments      []domain.Document
}

// ApplicationRepository persists applications.
type ApplicationRepository interface {
	Create(ctx context.Context, app *domain.Application) (*domain.Application, error)
	FindByID(ctx context.Context, userID, id string) (*domain.Application, error)
	FindByIDAny(ctx context.Context, id string) (*domain.Application, error)
	List(ctx context.Context, userID string, filter *domain.ApplicationFilter, page, pageSize int, sort domain.ApplicationSort) (*domain.ApplicationPage, error)

	// Patch applies field updates and appends atomically. Returns NotFound if
	// the document is missing or soft-deleted.
	Patch(ctx context.Context, userID, id string, patch *ApplicationPatch) (*domain.Application, error)

	// CompleteTask sets tasks.$.completed by index.
	CompleteTask(ctx context.Context, userID, id string, taskIndex int, at time.Time) error

	SoftDelete(ctx context.Context, userID, id string) error
	HardDelete(ctx context.Context, userID, id string) error

	// Derived queries
	FollowUpsNeeded(ctx context.Context, userID string, now time.Time) ([]*domain.Application, error)
	UpcomingInterviews(ctx context.Context, userID string, now time.Time, days int) ([]*domain.Application, error)
	ListMonitored(ctx context.Context, limit int) ([]*domain.Application, error)
	ListByStatus(ctx context.Context, status domain.ApplicationStatus, limit int) ([]*domain.Application, error)

	// Stats
	CountsByStatus(ctx context.Context, userID string) (map[domain.ApplicationStatus]int64, error)
	CountCreatedSince(ctx context.Context, userID string, since time.Time) (int64, error)
	CountWithResponse(ctx context.Context, userID string) (int64, error)
}

// UserRepository persists users and embedded credentials.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateProfile(ctx context.Context, id string, profile *domain.UserProfile) error

	// Mailbox credential lifecycle
	SetMailbox(ctx context.Context, id string, creds *domain.MailboxCredentials) error
	UpdateMailboxToken(ctx context.Context, id string, accessToken string, expiry time.Time) error
	ClearMailbox(ctx context.Context, id string) error

	// Portal credentials
	AppendPortalCredential(ctx context.Context, id string, cred *domain.PortalCredential) error
}

// JobRepository persists job postings.
type JobRepository interface {
	Create(ctx context.Context, job *domain.Job) (*domain.Job, error)
	FindByID(ctx context.Context, userID, id string) (*domain.Job, error)
	Update(ctx context.Context, job *domain.Job) error
	HardDelete(ctx context.Context, userID, id string) error

	// ExpireOlderThan flips active jobs created before cutoff to expired.
	ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// EmailLogRepository persists the outbound/inbound mail audit trail.
type EmailLogRepository interface {
	Create(ctx context.Context, log *domain.EmailLog) (*domain.EmailLog, error)
	ListByApplication(ctx context.Context, userID, applicationID string, limit int) ([]*domain.EmailLog, error)
	ExistsByMessageID(ctx context.Context, userID, messageID string) (bool, error)
}

// UsageRepository persists subscriptions and usage events.
type UsageRepository interface {
	FindSubscription(ctx context.Context, userID string) (*domain.Subscription, error)
	CreateSubscription(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error)

	// TryIncrementUsage performs the conditional atomic increment. It succeeds
	// only when current + qty <= limit, and reports the counter value it
	// observed either way. An unlimited plan always succeeds.
	TryIncrementUsage(ctx context.Context, userID string, event domain.UsageEventType, qty, limit int) (applied bool, current int, err error)

	// DecrementUsage releases a reservation after a failed submission.
	DecrementUsage(ctx context.Context, userID string, event domain.UsageEventType, qty int) error

	AppendUsageEvent(ctx context.Context, ev *domain.UsageEvent) error

	// HasUsageEvent reports whether an event with this idempotency key was
	// already appended for the user.
	HasUsageEvent(ctx context.Context, userID, idemKey string) (bool, error)

	// ListDueForReset returns subscriptions with usage_reset_date <= now.
	ListDueForReset(ctx context.Context, now time.Time, limit int) ([]*domain.Subscription, error)
	ResetUsage(ctx context.Context, subscriptionID string, nextReset time.Time) error
}

// NotificationRepository persists notification documents.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*domain.Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
}

// DeadLetterRepository parks permanently failed jobs.
type DeadLetterRepository interface {
	Create(ctx context.Context, dl *domain.DeadLetter) (*domain.DeadLetter, error)
	List(ctx context.Context, topic string, limit int) ([]*domain.DeadLetter, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

// WebhookEventRepository records inbound automation callbacks. Insert is
// unique on session_id; a duplicate returns Conflict.
type WebhookEventRepository interface {
	Insert(ctx context.Context, ev *domain.WebhookEvent) error
}
