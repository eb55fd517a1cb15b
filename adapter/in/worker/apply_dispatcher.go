package worker

import (
	"context"
	"fmt"

	"apply_server/pkg/logger"
)

// Handler routes messages to their processors.
type Handler struct {
	submission  *SubmissionProcessor
	monitor     *MonitorProcessor
	notify      *NotificationProcessor
	maintenance *MaintenanceProcessor
	log         *logger.Logger
}

func NewHandler(
	submission *SubmissionProcessor,
	monitor *MonitorProcessor,
	notify *NotificationProcessor,
	maintenance *MaintenanceProcessor,
) *Handler {
	return &Handler{
		submission:  submission,
		monitor:     monitor,
		notify:      notify,
		maintenance: maintenance,
		log:         logger.WithComponent("dispatcher"),
	}
}

func (h *Handler) Process(ctx context.Context, msg *Message) error {
	h.log.Debug("processing message: type=%s id=%s", msg.Type, msg.ID)

	switch msg.Type {
	case JobSubmissionApply:
		return h.submission.ProcessApply(ctx, msg)
	case JobSubmissionPoll:
		return h.submission.ProcessPoll(ctx, msg)
	case JobMonitorProbe:
		return h.monitor.ProcessProbe(ctx, msg)
	case JobMonitorVerify:
		return h.monitor.ProcessVerify(ctx, msg)
	case JobNotifySend:
		return h.notify.ProcessSend(ctx, msg)
	case JobUsageReset:
		return h.maintenance.ProcessUsageReset(ctx, msg)
	case JobJobExpiry:
		return h.maintenance.ProcessJobExpiry(ctx, msg)
	default:
		h.log.Warn("unknown job type: %s", msg.Type)
		return nil
	}
}

// StreamBridge adapts the stream consumer to the pool. Handle blocks until
// the job reaches a final disposition (success or durable park), so the
// consumer only acks entries whose work cannot be lost to a crash. Retries
// run inside the pool while the stream entry stays pending.
type StreamBridge struct {
	pool *Pool
}

func NewStreamBridge(pool *Pool) *StreamBridge {
	return &StreamBridge{pool: pool}
}

func (b *StreamBridge) Handle(ctx context.Context, stream string, data []byte) error {
	jobType, ok := jobTypeForStream[stream]
	if !ok {
		return fmt.Errorf("no job type mapped for stream %q", stream)
	}
	msg := NewMessage(jobType, data)
	msg.done = make(chan error, 1)
	if !b.pool.Submit(msg) {
		return fmt.Errorf("pool rejected job from %s", stream)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-msg.done:
		return err
	}
}
