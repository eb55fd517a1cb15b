// Package application implements the lifecycle state machine over stored
// applications. Every mutation appends a timeline event atomically with the
// field change.
package application

import (
	"context"
	"fmt"
	"time"

	"apply_server/core/domain"
	"apply_server/core/port/in"
	"apply_server/core/port/out"
	"apply_server/pkg/apperr"
	"apply_server/pkg/logger"
	"apply_server/pkg/ratelimit"
)

// =============================================================================
// Application Service
// =============================================================================

type Service struct {
	apps     out.ApplicationRepository
	jobs     out.JobRepository
	notifier in.NotificationService
	debounce *ratelimit.Debouncer
	log      *logger.Logger
}

var _ in.ApplicationService = (*Service)(nil)

type Deps struct {
	Apps     out.ApplicationRepository
	Jobs     out.JobRepository
	Notifier in.NotificationService
	Debounce *ratelimit.Debouncer
}

func NewService(deps *Deps) *Service {
	return &Service{
		apps:     deps.Apps,
		jobs:     deps.Jobs,
		notifier: deps.Notifier,
		debounce: deps.Debounce,
		log:      logger.WithComponent("application"),
	}
}

// replayed reports whether this idempotency key was already consumed and
// marks it otherwise. Empty keys are never deduplicated.
func (s *Service) replayed(ctx context.Context, userID, id, idemKey string) bool {
	if idemKey == "" || s.debounce == nil {
		return false
	}
	key := fmt.Sprintf("idem:%s:%s:%s", userID, id, idemKey)
	if s.debounce.IsDuplicate(ctx, key) {
		return true
	}
	s.debounce.Mark(ctx, key)
	return false
}

// =============================================================================
// CRUD
// =============================================================================

func (s *Service) Get(ctx context.Context, userID, id string) (*domain.Application, error) {
	return s.apps.FindByID(ctx, userID, id)
}

func (s *Service) List(ctx context.Context, userID string, filter *domain.ApplicationFilter, page, pageSize int, sort domain.ApplicationSort) (*domain.ApplicationPage, error) {
	return s.apps.List(ctx, userID, filter, page, pageSize, sort)
}

func (s *Service) Create(ctx context.Context, userID string, req *in.CreateApplicationRequest) (*domain.Application, error) {
	job, err := s.jobs.FindByID(ctx, userID, req.JobID)
	if err != nil {
		return nil, err
	}

	source := req.Source
	if source == "" {
		source = domain.SourceManual
	}
	priority := req.Priority
	if priority == "" {
		priority = domain.AppPriorityMedium
	}

	now := time.Now()
	return s.apps.Create(ctx, &domain.Application{
		UserID:         userID,
		JobID:          job.ID,
		Status:         domain.StatusDraft,
		Source:         source,
		JobTitle:       job.Title,
		CompanyName:    job.CompanyName,
		Location:       job.Location,
		Priority:       priority,
		Notes:          req.Notes,
		ApplicationURL: job.ApplicationURL,
		RecipientEmail: job.ContactEmail(),
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

func (s *Service) SoftDelete(ctx context.Context, userID, id, idemKey string) error {
	if s.replayed(ctx, userID, id, idemKey) {
		return nil
	}
	return s.apps.SoftDelete(ctx, userID, id)
}

// =============================================================================
// Transitions
// =============================================================================

// UpdateStatus moves the application to newStatus. Terminal states never
// regress; invalid members of the state set are rejected before any read.
func (s *Service) UpdateStatus(ctx context.Context, userID, id string, newStatus domain.ApplicationStatus, reason, idemKey string) (*domain.Application, error) {
	if !newStatus.IsValid() {
		return nil, apperr.Invariant(fmt.Sprintf("invalid status %q", newStatus))
	}
	if s.replayed(ctx, userID, id, idemKey) {
		return s.apps.FindByID(ctx, userID, id)
	}

	app, err := s.apps.FindByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if app.Status == newStatus {
		return app, nil
	}
	if app.Status.IsTerminal() {
		return nil, apperr.Invariant(fmt.Sprintf(
			"application %s is in terminal state %s", id, app.Status))
	}

	return s.transition(ctx, app, newStatus, reason)
}

// transition writes the status change plus the timeline event in one atomic
// patch, then fires the status_update notification.
func (s *Service) transition(ctx context.Context, app *domain.Application, newStatus domain.ApplicationStatus, reason string) (*domain.Application, error) {
	now := time.Now()
	patch := &out.ApplicationPatch{
		Status: &newStatus,
		PushTimeline: []domain.TimelineEvent{{
			Timestamp:   now,
			Type:        domain.EventStatusChange,
			Description: fmt.Sprintf("Status changed from %s to %s", app.Status, newStatus),
			Metadata: map[string]any{
				"old_status": string(app.Status),
				"new_status": string(newStatus),
				"reason":     reason,
			},
		}},
	}
	if newStatus == domain.StatusApplied && app.AppliedDate == nil {
		patch.AppliedDate = &now
	}

	updated, err := s.apps.Patch(ctx, app.UserID, app.ID, patch)
	if err != nil {
		return nil, err
	}

	s.notifyStatusChange(ctx, updated, app.Status)
	return updated, nil
}

func (s *Service) notifyStatusChange(ctx context.Context, app *domain.Application, oldStatus domain.ApplicationStatus) {
	if s.notifier == nil {
		return
	}
	_, err := s.notifier.Notify(ctx, app.UserID, domain.NotifStatusUpdate,
		fmt.Sprintf("%s at %s: %s", app.JobTitle, app.CompanyName, app.Status),
		fmt.Sprintf("Your application moved from %s to %s.", oldStatus, app.Status),
		map[string]any{
			"application_id": app.ID,
			"old_status":     string(oldStatus),
			"new_status":     string(app.Status),
		},
		[]domain.NotificationChannel{domain.ChannelInApp, domain.ChannelEmail})
	if err != nil {
		s.log.Warn("status change notification failed: app=%s err=%v", app.ID, err)
	}
}

// ApplyClassifierResult records the classified message and applies the
// suggested transition when it clears the confidence gate. The communication
// is appended even when no transition fires; duplicates by provider message
// id are dropped.
func (s *Service) ApplyClassifierResult(ctx context.Context, userID, id string, result *domain.AnalysisResult, sourceMessageID string) (*domain.Application, error) {
	app, err := s.apps.FindByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if app.HasCommunicationMessage(sourceMessageID) {
		return app, nil
	}

	now := time.Now()
	patch := &out.ApplicationPatch{
		PushTimeline: []domain.TimelineEvent{{
			Timestamp:   now,
			Type:        domain.EventCommunicationAdded,
			Description: fmt.Sprintf("Email classified as %s (confidence %.2f)", result.Category, result.Confidence),
			Metadata: map[string]any{
				"category":   string(result.Category),
				"confidence": result.Confidence,
				"llm_used":   result.LLMUsed,
				"message_id": sourceMessageID,
			},
		}},
	}

	apply := result.ShouldApplyTransition(app.Status)
	if apply {
		newStatus := *result.SuggestedStatus
		patch.Status = &newStatus
		patch.PushTimeline = append(patch.PushTimeline, domain.TimelineEvent{
			Timestamp:   now,
			Type:        domain.EventStatusChange,
			Description: fmt.Sprintf("Status changed from %s to %s", app.Status, newStatus),
			Metadata: map[string]any{
				"old_status": string(app.Status),
				"new_status": string(newStatus),
				"reason":     "classifier:" + string(result.Category),
			},
		})
	}

	updated, err := s.apps.Patch(ctx, userID, id, patch)
	if err != nil {
		return nil, err
	}
	if apply {
		s.notifyStatusChange(ctx, updated, app.Status)
	}
	return updated, nil
}

// =============================================================================
// Sub-resources
// =============================================================================

func (s *Service) ScheduleInterview(ctx context.Context, userID, id string, iv *domain.Interview, idemKey string) error {
	if s.replayed(ctx, userID, id, idemKey) {
		return nil
	}
	if iv.Status == "" {
		iv.Status = domain.InterviewScheduled
	}
	_, err := s.apps.Patch(ctx, userID, id, &out.ApplicationPatch{
		PushInterviews: []domain.Interview{*iv},
		PushTimeline: []domain.TimelineEvent{{
			Timestamp:   time.Now(),
			Type:        domain.EventInterviewScheduled,
			Description: fmt.Sprintf("%s interview scheduled for %s", iv.Type, iv.ScheduledAt.Format(time.RFC3339)),
			Metadata: map[string]any{
				"interview_type": string(iv.Type),
				"scheduled_at":   iv.ScheduledAt,
				"round":          iv.Round,
			},
		}},
	})
	return err
}

func (s *Service) SetFollowUp(ctx context.Context, userID, id string, at time.Time, idemKey string) error {
	if s.replayed(ctx, userID, id, idemKey) {
		return nil
	}
	_, err := s.apps.Patch(ctx, userID, id, &out.ApplicationPatch{
		FollowUpDate:     &at,
		NextFollowUp:     &at,
		IncFollowUpCount: true,
		PushTimeline: []domain.TimelineEvent{{
			Timestamp:   time.Now(),
			Type:        domain.EventFollowUpSet,
			Description: "Follow-up scheduled for " + at.Format("2006-01-02"),
			Metadata:    map[string]any{"follow_up_date": at},
		}},
	})
	return err
}

func (s *Service) AddCommunication(ctx context.Context, userID, id string, comm *domain.Communication, idemKey string) error {
	if s.replayed(ctx, userID, id, idemKey) {
		return nil
	}
	if comm.Timestamp.IsZero() {
		comm.Timestamp = time.Now()
	}
	_, err := s.apps.Patch(ctx, userID, id, &out.ApplicationPatch{
		PushCommunications: []domain.Communication{*comm},
		PushTimeline: []domain.TimelineEvent{{
			Timestamp:   time.Now(),
			Type:        domain.EventCommunicationAdded,
			Description: fmt.Sprintf("%s %s: %s", comm.Direction, comm.Type, comm.Subject),
			Metadata: map[string]any{
				"direction":  string(comm.Direction),
				"message_id": comm.MessageID,
			},
		}},
	})
	return err
}

func (s *Service) AddDocument(ctx context.Context, userID, id string, doc *domain.Document, idemKey string) error {
	if s.replayed(ctx, userID, id, idemKey) {
		return nil
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now()
	}
	_, err := s.apps.Patch(ctx, userID, id, &out.ApplicationPatch{
		PushDocuments: []domain.Document{*doc},
		PushTimeline: []domain.TimelineEvent{{
			Timestamp:   time.Now(),
			Type:        domain.EventDocumentUploaded,
			Description: fmt.Sprintf("Document uploaded: %s (%s)", doc.Name, doc.Type),
			Metadata:    map[string]any{"file_id": doc.FileID, "doc_type": doc.Type},
		}},
	})
	return err
}

func (s *Service) AddTask(ctx context.Context, userID, id string, task *domain.Task, idemKey string) error {
	if s.replayed(ctx, userID, id, idemKey) {
		return nil
	}
	_, err := s.apps.Patch(ctx, userID, id, &out.ApplicationPatch{
		PushTasks: []domain.Task{*task},
		PushTimeline: []domain.TimelineEvent{{
			Timestamp:   time.Now(),
			Type:        domain.EventTaskCreated,
			Description: "Task created: " + task.Title,
		}},
	})
	return err
}

func (s *Service) CompleteTask(ctx context.Context, userID, id string, taskIndex int, idemKey string) error {
	if s.replayed(ctx, userID, id, idemKey) {
		return nil
	}
	now := time.Now()
	if err := s.apps.CompleteTask(ctx, userID, id, taskIndex, now); err != nil {
		return err
	}
	_, err := s.apps.Patch(ctx, userID, id, &out.ApplicationPatch{
		PushTimeline: []domain.TimelineEvent{{
			Timestamp:   now,
			Type:        domain.EventTaskCompleted,
			Description: fmt.Sprintf("Task %d completed", taskIndex),
			Metadata:    map[string]any{"task_index": taskIndex},
		}},
	})
	return err
}

func (s *Service) UpdateNotes(ctx context.Context, userID, id, notes, idemKey string) error {
	if s.replayed(ctx, userID, id, idemKey) {
		return nil
	}
	_, err := s.apps.Patch(ctx, userID, id, &out.ApplicationPatch{
		Notes: &notes,
		PushTimeline: []domain.TimelineEvent{{
			Timestamp:   time.Now(),
			Type:        domain.EventNotesUpdated,
			Description: "Notes updated",
		}},
	})
	return err
}

func (s *Service) UpdatePriority(ctx context.Context, userID, id string, priority domain.ApplicationPriority, idemKey string) error {
	if s.replayed(ctx, userID, id, idemKey) {
		return nil
	}
	_, err := s.apps.Patch(ctx, userID, id, &out.ApplicationPatch{
		Priority: &priority,
		PushTimeline: []domain.TimelineEvent{{
			Timestamp:   time.Now(),
			Type:        domain.EventPriorityUpdated,
			Description: "Priority set to " + string(priority),
			Metadata:    map[string]any{"priority": string(priority)},
		}},
	})
	return err
}

// =============================================================================
// Derived queries
// =============================================================================

func (s *Service) FollowUpsNeeded(ctx context.Context, userID string) ([]*domain.Application, error) {
	return s.apps.FollowUpsNeeded(ctx, userID, time.Now())
}

func (s *Service) UpcomingInterviews(ctx context.Context, userID string, days int) ([]*domain.Application, error) {
	if days <= 0 {
		days = 7
	}
	return s.apps.UpcomingInterviews(ctx, userID, time.Now(), days)
}

// =============================================================================
// Stats
// =============================================================================

func (s *Service) Stats(ctx context.Context, userID string) (*in.ApplicationStats, error) {
	byStatus, err := s.apps.CountsByStatus(ctx, userID)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, n := range byStatus {
		total += n
	}

	now := time.Now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	today, err := s.apps.CountCreatedSince(ctx, userID, startOfDay)
	if err != nil {
		return nil, err
	}
	week, err := s.apps.CountCreatedSince(ctx, userID, now.AddDate(0, 0, -7))
	if err != nil {
		return nil, err
	}
	month, err := s.apps.CountCreatedSince(ctx, userID, now.AddDate(0, -1, 0))
	if err != nil {
		return nil, err
	}

	responded, err := s.apps.CountWithResponse(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &in.ApplicationStats{
		Total:     total,
		ByStatus:  byStatus,
		Today:     today,
		ThisWeek:  week,
		ThisMonth: month,
	}
	// interview_rate counts applications currently at interview_scheduled over
	// the whole set; response_rate excludes drafts from the denominator since
	// an unsent application cannot draw a response.
	if total > 0 {
		stats.InterviewRate = float64(byStatus[domain.StatusInterviewScheduled]) / float64(total)
	}
	if nonDraft := total - byStatus[domain.StatusDraft]; nonDraft > 0 {
		stats.ResponseRate = float64(responded) / float64(nonDraft)
	}
	return stats, nil
}
