// Package messaging provides message queue adapters.
package messaging

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"apply_server/core/port/out"
)

// Stream names
const (
	StreamSubmissionApply = "submission:apply"
	StreamSubmissionPoll  = "submission:poll"
	StreamMonitorProbe    = "monitor:probe"
	StreamMonitorVerify   = "monitor:verify"
	StreamNotifySend      = "notify:send"
	StreamUsageReset      = "maintenance:usage_reset"
	StreamJobExpiry       = "maintenance:job_expiry"

	// Parked messages that exhausted their retries
	StreamDeadLetter = "dlq:jobs"
)

// AllStreams lists every stream the worker consumes.
var AllStreams = []string{
	StreamSubmissionApply,
	StreamSubmissionPoll,
	StreamMonitorProbe,
	StreamMonitorVerify,
	StreamNotifySend,
	StreamUsageReset,
	StreamJobExpiry,
}

// RedisProducer implements out.MessageProducer using Redis Streams.
type RedisProducer struct {
	client *redis.Client
}

var _ out.MessageProducer = (*RedisProducer)(nil)

// NewRedisProducer creates a new RedisProducer.
func NewRedisProducer(client *redis.Client) *RedisProducer {
	return &RedisProducer{client: client}
}

// PublishSubmission publishes a submission job.
func (p *RedisProducer) PublishSubmission(ctx context.Context, job *out.SubmissionJob) error {
	return p.publish(ctx, StreamSubmissionApply, job)
}

// PublishSubmissionPoll publishes a browser session poll job.
func (p *RedisProducer) PublishSubmissionPoll(ctx context.Context, job *out.SubmissionPollJob) error {
	return p.publish(ctx, StreamSubmissionPoll, job)
}

// PublishProbe publishes a response probe job.
func (p *RedisProducer) PublishProbe(ctx context.Context, job *out.ProbeJob) error {
	return p.publish(ctx, StreamMonitorProbe, job)
}

// PublishVerification publishes a verification email sweep job.
func (p *RedisProducer) PublishVerification(ctx context.Context, job *out.VerificationJob) error {
	return p.publish(ctx, StreamMonitorVerify, job)
}

// PublishNotification publishes a notification fan-out job.
func (p *RedisProducer) PublishNotification(ctx context.Context, job *out.NotificationJob) error {
	return p.publish(ctx, StreamNotifySend, job)
}

// PublishUsageReset publishes a usage reset sweep job.
func (p *RedisProducer) PublishUsageReset(ctx context.Context, job *out.UsageResetJob) error {
	return p.publish(ctx, StreamUsageReset, job)
}

// PublishJobExpiry publishes a posting expiry sweep job.
func (p *RedisProducer) PublishJobExpiry(ctx context.Context, job *out.JobExpiryJob) error {
	return p.publish(ctx, StreamJobExpiry, job)
}

func (p *RedisProducer) publish(ctx context.Context, stream string, job any) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		ID:     "*",
		Values: map[string]any{
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", stream, err)
	}

	return nil
}
