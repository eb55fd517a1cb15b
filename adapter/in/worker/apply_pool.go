package worker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/go-pkgz/pool"
	"github.com/rs/zerolog"

	"apply_server/core/domain"
	"apply_server/core/port/out"
)

// =============================================================================
// go-pkgz/pool based worker pool
// =============================================================================

// PoolConfig holds worker pool configuration.
type PoolConfig struct {
	MaxWorkers       int
	BatchSize        int
	WorkerChanSize   int
	MaxRetries       int
	JobTimeout       time.Duration
	JobTimeoutByType map[JobType]time.Duration
}

// DefaultPoolConfig sizes the pool for the job mix: browser sessions run for
// minutes, probes and notifications settle in seconds.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxWorkers:     16,
		BatchSize:      10,
		WorkerChanSize: 100,
		MaxRetries:     3,
		JobTimeout:     60 * time.Second,
		JobTimeoutByType: map[JobType]time.Duration{
			JobSubmissionApply: 5 * time.Minute,
			JobSubmissionPoll:  30 * time.Second,
			JobMonitorProbe:    3 * time.Minute,
			JobMonitorVerify:   2 * time.Minute,
			JobNotifySend:      30 * time.Second,
			JobUsageReset:      2 * time.Minute,
			JobJobExpiry:       2 * time.Minute,
		},
	}
}

// PoolMetrics holds pool counters.
type PoolMetrics struct {
	JobsProcessed int64
	JobsFailed    int64
	JobsRetried   int64
	QueueSize     int32
}

// Pool runs messages through a go-pkgz worker group with per-type timeouts,
// exponential backoff retries and a persisted dead-letter queue.
type Pool struct {
	handler     *Handler
	config      *PoolConfig
	deadLetters out.DeadLetterRepository
	producer    out.MessageProducer

	group *pool.WorkerGroup[*Message]

	ctx    context.Context
	cancel context.CancelFunc

	metrics *PoolMetrics
	log     zerolog.Logger

	started bool
	mu      sync.Mutex
}

// messageWorker implements pool.Worker for Message processing.
type messageWorker struct {
	pool *Pool
}

func (w *messageWorker) Do(ctx context.Context, msg *Message) error {
	return w.pool.processJob(ctx, msg)
}

func NewPool(handler *Handler, config *PoolConfig, deadLetters out.DeadLetterRepository, producer out.MessageProducer, log zerolog.Logger) *Pool {
	if config == nil {
		config = DefaultPoolConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		handler:     handler,
		config:      config,
		deadLetters: deadLetters,
		producer:    producer,
		ctx:         ctx,
		cancel:      cancel,
		metrics:     &PoolMetrics{},
		log:         log.With().Str("component", "worker_pool").Logger(),
	}
}

// Start starts the worker pool.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}

	p.group = pool.New[*Message](p.config.MaxWorkers, &messageWorker{pool: p}).
		WithBatchSize(p.config.BatchSize).
		WithWorkerChanSize(p.config.WorkerChanSize).
		WithContinueOnError()

	if err := p.group.Go(p.ctx); err != nil {
		p.log.Error().Err(err).Msg("failed to start worker pool")
		return
	}
	p.started = true

	p.log.Info().
		Int("max_workers", p.config.MaxWorkers).
		Int("batch_size", p.config.BatchSize).
		Msg("worker pool started")
}

// Stop gracefully stops the worker pool.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer closeCancel()

	if err := p.group.Close(closeCtx); err != nil {
		p.log.Warn().Err(err).Msg("error closing worker pool")
	}
	p.cancel()

	p.log.Info().
		Int64("processed", atomic.LoadInt64(&p.metrics.JobsProcessed)).
		Int64("failed", atomic.LoadInt64(&p.metrics.JobsFailed)).
		Msg("worker pool stopped")
}

// Submit hands a message to the pool.
func (p *Pool) Submit(msg *Message) bool {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started || p.group == nil {
		return false
	}

	p.group.Submit(msg)
	atomic.AddInt32(&p.metrics.QueueSize, 1)
	return true
}

func (p *Pool) jobTimeout(jobType JobType) time.Duration {
	if timeout, ok := p.config.JobTimeoutByType[jobType]; ok {
		return timeout
	}
	return p.config.JobTimeout
}

// processJob runs one job under its type timeout and schedules retries with
// exponential backoff plus jitter. Exhausted jobs are parked.
func (p *Pool) processJob(ctx context.Context, msg *Message) error {
	defer atomic.AddInt32(&p.metrics.QueueSize, -1)

	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout(msg.Type))
	defer cancel()

	err := p.handler.Process(jobCtx, msg)
	if err == nil {
		atomic.AddInt64(&p.metrics.JobsProcessed, 1)
		msg.finish(nil)
		return nil
	}

	p.log.Error().
		Err(err).
		Str("job_id", msg.ID).
		Str("job_type", msg.Type).
		Int("retries", msg.Retries).
		Msg("job processing failed")

	if msg.Retries < p.config.MaxRetries {
		msg.Retries++
		atomic.AddInt64(&p.metrics.JobsRetried, 1)

		// base * 2^retries plus up to 500ms of jitter
		backoff := time.Duration(1<<msg.Retries)*time.Second +
			time.Duration(rand.Intn(500))*time.Millisecond
		time.AfterFunc(backoff, func() {
			if !p.Submit(msg) {
				// Pool stopped before the retry could run; the waiter must
				// not ack so the stream redelivers.
				msg.finish(fmt.Errorf("pool stopped, retry of job %s lost", msg.ID))
			}
		})
		return err
	}

	atomic.AddInt64(&p.metrics.JobsFailed, 1)
	// Parking is the final disposition: once the job is durably recorded the
	// stream entry can be acked. A failed park keeps the entry pending.
	msg.finish(p.park(msg, err))
	return err
}

// park persists the exhausted job and alerts the operator queue. The returned
// error reports whether the dead letter actually landed.
func (p *Pool) park(msg *Message, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var payload map[string]any
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		payload = map[string]any{"raw": string(msg.Payload)}
	}

	var parkErr error
	if p.deadLetters != nil {
		_, err := p.deadLetters.Create(ctx, &domain.DeadLetter{
			JobID:     msg.ID,
			Topic:     msg.Type,
			JobType:   msg.Type,
			Payload:   payload,
			Error:     cause.Error(),
			Attempts:  msg.Retries + 1,
			CreatedAt: time.Now(),
		})
		if err != nil {
			p.log.Error().Err(err).Str("job_id", msg.ID).Msg("failed to persist dead letter")
			parkErr = fmt.Errorf("park job %s: %w", msg.ID, err)
		}
	}

	if p.producer != nil {
		userID, _ := payload["user_id"].(string)
		if userID != "" {
			err := p.producer.PublishNotification(ctx, &out.NotificationJob{
				UserID:  userID,
				Type:    string(domain.NotifOperatorAlert),
				Title:   "Background job failed",
				Message: "A background task could not be completed after several attempts.",
				Data:    map[string]any{"job_id": msg.ID, "job_type": msg.Type},
			})
			if err != nil {
				p.log.Warn().Err(err).Str("job_id", msg.ID).Msg("failed to publish dead letter alert")
			}
		}
	}

	p.log.Error().
		Str("job_id", msg.ID).
		Str("job_type", msg.Type).
		Int("retries", msg.Retries).
		Msg("job parked after max retries")
	return parkErr
}

// GetMetrics returns a snapshot of the pool counters.
func (p *Pool) GetMetrics() PoolMetrics {
	return PoolMetrics{
		JobsProcessed: atomic.LoadInt64(&p.metrics.JobsProcessed),
		JobsFailed:    atomic.LoadInt64(&p.metrics.JobsFailed),
		JobsRetried:   atomic.LoadInt64(&p.metrics.JobsRetried),
		QueueSize:     atomic.LoadInt32(&p.metrics.QueueSize),
	}
}
