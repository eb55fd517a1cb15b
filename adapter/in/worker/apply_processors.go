package worker

import (
	"context"
	"time"

	"apply_server/core/domain"
	"apply_server/core/port/in"
	"apply_server/core/port/out"
	"apply_server/core/service/submission"
	"apply_server/pkg/apperr"
	"apply_server/pkg/logger"
)

// =============================================================================
// Submission processor
// =============================================================================

// SubmissionProcessor drives queued submissions and session polls.
type SubmissionProcessor struct {
	submissions in.SubmissionService
	log         *logger.Logger
}

func NewSubmissionProcessor(submissions in.SubmissionService) *SubmissionProcessor {
	return &SubmissionProcessor{
		submissions: submissions,
		log:         logger.WithComponent("submission_processor"),
	}
}

func (p *SubmissionProcessor) ProcessApply(ctx context.Context, msg *Message) error {
	job, err := ParsePayload[out.SubmissionJob](msg)
	if err != nil {
		return err
	}

	result, err := p.submissions.Submit(ctx, &in.SubmitRequest{
		UserID:         job.UserID,
		ApplicationID:  job.ApplicationID,
		CVID:           job.CVID,
		CoverLetterID:  job.CoverLetterID,
		UsageType:      domain.UsageEventType(job.UsageType),
		IdempotencyKey: job.IdempotencyKey,
	})
	if err != nil {
		// Quota denials and invariant breaks will not heal on retry.
		if apperr.IsQuotaDenied(err) || apperr.IsCode(err, apperr.CodeInvariant) {
			p.log.Warn("dropping unretryable submission: app=%s err=%v", job.ApplicationID, err)
			return nil
		}
		return err
	}

	p.log.Info("submission processed: app=%s channel=%s status=%s deleted=%t",
		job.ApplicationID, result.Channel, result.Status, result.JobDeleted)
	return nil
}

func (p *SubmissionProcessor) ProcessPoll(ctx context.Context, msg *Message) error {
	job, err := ParsePayload[out.SubmissionPollJob](msg)
	if err != nil {
		return err
	}

	pollCtx := submission.WithPollAttempt(ctx, job.Attempt)
	result, err := p.submissions.PollSession(pollCtx, job.UserID, job.ApplicationID, job.SessionID)
	if err != nil {
		if apperr.IsNotFound(err) {
			// Application deleted while the session was in flight.
			return nil
		}
		return err
	}

	p.log.Debug("session polled: session=%s status=%s attempt=%d",
		job.SessionID, result.Status, job.Attempt)
	return nil
}

// =============================================================================
// Monitor processor
// =============================================================================

// MonitorProcessor runs queued response probes and verification sweeps.
type MonitorProcessor struct {
	monitor in.MonitorService
	log     *logger.Logger
}

func NewMonitorProcessor(monitor in.MonitorService) *MonitorProcessor {
	return &MonitorProcessor{
		monitor: monitor,
		log:     logger.WithComponent("monitor_processor"),
	}
}

func (p *MonitorProcessor) ProcessProbe(ctx context.Context, msg *Message) error {
	job, err := ParsePayload[out.ProbeJob](msg)
	if err != nil {
		return err
	}

	result, err := p.monitor.Probe(ctx, job.UserID, job.ApplicationID)
	if err != nil {
		if apperr.IsNotFound(err) || apperr.IsAuthExpired(err) {
			// Nothing a retry can recover; auth expiry was already escalated.
			return nil
		}
		return err
	}

	if result.NewStatus != nil {
		p.log.Info("probe transitioned application: app=%s status=%s signals=%d",
			job.ApplicationID, *result.NewStatus, len(result.Signals))
	}
	return nil
}

func (p *MonitorProcessor) ProcessVerify(ctx context.Context, msg *Message) error {
	if _, err := ParsePayload[out.VerificationJob](msg); err != nil {
		return err
	}
	_, err := p.monitor.SweepVerifications(ctx)
	return err
}

// =============================================================================
// Notification processor
// =============================================================================

// NotificationProcessor fans out queued notifications.
type NotificationProcessor struct {
	notifier in.NotificationService
	log      *logger.Logger
}

func NewNotificationProcessor(notifier in.NotificationService) *NotificationProcessor {
	return &NotificationProcessor{
		notifier: notifier,
		log:      logger.WithComponent("notification_processor"),
	}
}

func (p *NotificationProcessor) ProcessSend(ctx context.Context, msg *Message) error {
	job, err := ParsePayload[out.NotificationJob](msg)
	if err != nil {
		return err
	}

	channels := make([]domain.NotificationChannel, 0, len(job.Channels))
	for _, ch := range job.Channels {
		channels = append(channels, domain.NotificationChannel(ch))
	}

	_, err = p.notifier.Notify(ctx, job.UserID, domain.NotificationType(job.Type),
		job.Title, job.Message, job.Data, channels)
	return err
}

// =============================================================================
// Maintenance processor
// =============================================================================

// MaintenanceProcessor handles the periodic sweeps.
type MaintenanceProcessor struct {
	quota          in.QuotaService
	jobs           out.JobRepository
	jobExpiryAfter time.Duration
	log            *logger.Logger
}

func NewMaintenanceProcessor(quota in.QuotaService, jobs out.JobRepository, jobExpiryAfter time.Duration) *MaintenanceProcessor {
	return &MaintenanceProcessor{
		quota:          quota,
		jobs:           jobs,
		jobExpiryAfter: jobExpiryAfter,
		log:            logger.WithComponent("maintenance_processor"),
	}
}

func (p *MaintenanceProcessor) ProcessUsageReset(ctx context.Context, msg *Message) error {
	if _, err := ParsePayload[out.UsageResetJob](msg); err != nil {
		return err
	}
	count, err := p.quota.ResetMonthly(ctx)
	if err != nil {
		return err
	}
	p.log.Info("usage reset sweep done: reset=%d", count)
	return nil
}

func (p *MaintenanceProcessor) ProcessJobExpiry(ctx context.Context, msg *Message) error {
	if _, err := ParsePayload[out.JobExpiryJob](msg); err != nil {
		return err
	}
	cutoff := time.Now().Add(-p.jobExpiryAfter)
	count, err := p.jobs.ExpireOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	p.log.Info("job expiry sweep done: expired=%d cutoff=%s", count, cutoff.Format("2006-01-02"))
	return nil
}
