package bootstrap

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"apply_server/adapter/in/worker"
	"apply_server/adapter/out/messaging"
	"apply_server/core/domain"
	"apply_server/pkg/logger"
)

// Worker runs the stream consumer, the job pool and the scheduler.
type Worker struct {
	deps      *Deps
	pool      *worker.Pool
	consumer  *messaging.Consumer
	scheduler *worker.Scheduler
	log       *logger.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker assembles the consuming side: stream messages are bridged into
// the pool and acked; retries and dead-lettering happen inside the pool.
func NewWorker(deps *Deps) *Worker {
	cfg := deps.Cfg

	handler := worker.NewHandler(
		worker.NewSubmissionProcessor(deps.Submissions),
		worker.NewMonitorProcessor(deps.Monitor),
		worker.NewNotificationProcessor(deps.Notifier),
		worker.NewMaintenanceProcessor(deps.Quota, deps.Jobs,
			time.Duration(cfg.JobExpiryAfterDays)*24*time.Hour),
	)

	poolCfg := worker.DefaultPoolConfig()
	if cfg.WorkerMax > 0 {
		poolCfg.MaxWorkers = cfg.WorkerMax
	}
	if cfg.WorkerQueueSize > 0 {
		poolCfg.WorkerChanSize = cfg.WorkerQueueSize
	}
	pool := worker.NewPool(handler, poolCfg, deps.DeadLetters, deps.Producer, deps.Zlog)

	bridge := worker.NewStreamBridge(pool)

	consumer := messaging.NewConsumer(deps.Redis, &messaging.ConsumerConfig{
		Group:                "apply-workers",
		Consumer:             cfg.WorkerID,
		Streams:              messaging.AllStreams,
		Handler:              bridge,
		DeadLetter:           parkToRepository(deps),
		Logger:               deps.Zlog,
		BatchSize:            cfg.ConsumerBatchSize,
		BlockTime:            time.Duration(cfg.ConsumerBlockMS) * time.Millisecond,
		PendingCheckInterval: time.Duration(cfg.ConsumerPendingCheckSec) * time.Second,
		PendingIdleTime:      time.Duration(cfg.ConsumerPendingCheckSec) * 2 * time.Second,
		MaxRetries:           cfg.ConsumerMaxRetries,
	})

	return &Worker{
		deps:      deps,
		pool:      pool,
		consumer:  consumer,
		scheduler: worker.NewScheduler(cfg, deps.Monitor, deps.Producer),
		log:       logger.WithComponent("worker"),
	}
}

// parkToRepository persists messages the consumer could not even hand to the
// pool. Jobs that fail inside the pool are parked by the pool itself.
func parkToRepository(deps *Deps) messaging.DeadLetterHandler {
	return func(ctx context.Context, stream, messageID string, data []byte, retries int) {
		var payload map[string]any
		_ = json.Unmarshal(data, &payload)
		_, err := deps.DeadLetters.Create(ctx, &domain.DeadLetter{
			JobID:    messageID,
			Topic:    stream,
			JobType:  stream,
			Payload:  payload,
			Error:    "consumer retries exhausted",
			Attempts: retries,
		})
		if err != nil {
			logger.WithComponent("worker").Error("park dead letter: stream=%s id=%s err=%v", stream, messageID, err)
		}
	}
}

// Start launches the pool, the consumer loop and the scheduler.
func (w *Worker) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	w.cancel = cancel
	w.done = make(chan struct{})

	w.pool.Start()
	w.scheduler.Start(ctx)

	go func() {
		defer close(w.done)
		if err := w.consumer.Run(ctx); err != nil && ctx.Err() == nil {
			w.log.Error("consumer stopped: %v", err)
		}
	}()
	w.log.Info("worker started: id=%s", w.deps.Cfg.WorkerID)
}

// Stop drains in flight jobs before returning.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.scheduler.Stop()
	if w.done != nil {
		select {
		case <-w.done:
		case <-time.After(10 * time.Second):
		}
	}
	w.pool.Stop()
	w.log.Info("worker stopped")
}

// Metrics exposes the pool counters for the ops endpoint.
func (w *Worker) Metrics() any {
	return w.pool.GetMetrics()
}
