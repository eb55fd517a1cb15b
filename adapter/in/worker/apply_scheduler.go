package worker

import (
	"context"
	"time"

	"apply_server/config"
	"apply_server/core/port/in"
	"apply_server/core/port/out"
	"apply_server/pkg/logger"
)

// Scheduler drives the periodic sweeps: probe enqueueing, verification
// sweeps, usage resets and posting expiry. Probe and verification sweeps run
// in-process; the maintenance ticks go through the queue so only one worker
// instance executes them.
type Scheduler struct {
	cfg      *config.Config
	monitor  in.MonitorService
	producer out.MessageProducer
	log      *logger.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(cfg *config.Config, monitor in.MonitorService, producer out.MessageProducer) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		monitor:  monitor,
		producer: producer,
		log:      logger.WithComponent("scheduler"),
	}
}

// Start launches the tickers. No-op when scheduling is disabled.
func (s *Scheduler) Start(parent context.Context) {
	if !s.cfg.SchedulerEnabled {
		s.log.Info("scheduler disabled")
		return
	}

	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)
	s.log.Info("scheduler started: monitor=%dm verification=%dm usage_reset=%dm job_expiry=%dh",
		s.cfg.MonitorIntervalMin, s.cfg.VerificationSweepMin,
		s.cfg.UsageResetTickMin, s.cfg.JobExpiryTickHour)
}

// Stop halts the tickers and waits for the loop to exit.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	monitorTick := time.NewTicker(s.cfg.MonitorInterval())
	verifyTick := time.NewTicker(time.Duration(s.cfg.VerificationSweepMin) * time.Minute)
	usageTick := time.NewTicker(time.Duration(s.cfg.UsageResetTickMin) * time.Minute)
	expiryTick := time.NewTicker(time.Duration(s.cfg.JobExpiryTickHour) * time.Hour)
	defer monitorTick.Stop()
	defer verifyTick.Stop()
	defer usageTick.Stop()
	defer expiryTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-monitorTick.C:
			if n, err := s.monitor.EnqueueDue(ctx); err != nil {
				s.log.Error("probe enqueue tick failed: %v", err)
			} else {
				s.log.Debug("probe enqueue tick: enqueued=%d", n)
			}

		case <-verifyTick.C:
			if n, err := s.monitor.SweepVerifications(ctx); err != nil {
				s.log.Error("verification sweep tick failed: %v", err)
			} else if n > 0 {
				s.log.Info("verification sweep tick: completed=%d", n)
			}

		case <-usageTick.C:
			if err := s.producer.PublishUsageReset(ctx, &out.UsageResetJob{At: time.Now()}); err != nil {
				s.log.Error("usage reset tick failed: %v", err)
			}

		case <-expiryTick.C:
			if err := s.producer.PublishJobExpiry(ctx, &out.JobExpiryJob{At: time.Now()}); err != nil {
				s.log.Error("job expiry tick failed: %v", err)
			}
		}
	}
}
