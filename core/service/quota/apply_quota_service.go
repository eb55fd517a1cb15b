// Package quota enforces per-plan usage limits.
package quota

import (
	"context"
	"time"

	"github.com/google/uuid"

	"apply_server/core/domain"
	"apply_server/core/port/in"
	"apply_server/core/port/out"
	"apply_server/pkg/apperr"
	"apply_server/pkg/logger"
)

// =============================================================================
// Quota Service
// =============================================================================

// Service wraps the conditional atomic increment with plan resolution and
// the audit trail.
type Service struct {
	usage out.UsageRepository
	log   *logger.Logger
}

var _ in.QuotaService = (*Service)(nil)

func NewService(usage out.UsageRepository) *Service {
	return &Service{
		usage: usage,
		log:   logger.WithComponent("quota"),
	}
}

// subscription loads the user's subscription, provisioning a free-tier
// document on first touch.
func (s *Service) subscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	sub, err := s.usage.FindSubscription(ctx, userID)
	if err == nil {
		return sub, nil
	}
	if !apperr.IsNotFound(err) {
		return nil, err
	}

	now := time.Now()
	created, err := s.usage.CreateSubscription(ctx, &domain.Subscription{
		UserID:         userID,
		PlanID:         domain.PlanFree,
		CurrentUsage:   map[string]int{},
		UsageResetDate: now.Add(domain.UsageResetInterval),
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if apperr.IsConflict(err) {
		// Concurrent provisioning; re-read the winner.
		return s.usage.FindSubscription(ctx, userID)
	}
	return created, err
}

func (s *Service) Check(ctx context.Context, userID string, event domain.UsageEventType, qty int) (bool, int, int, error) {
	sub, err := s.subscription(ctx, userID)
	if err != nil {
		return false, 0, 0, err
	}
	plan := domain.PlanByID(sub.PlanID)
	limit := plan.Limit(event)
	current := sub.Usage(event)
	if limit == domain.Unlimited {
		return true, current, limit, nil
	}
	return current+qty <= limit, current, limit, nil
}

// Track reserves quota. The increment and the limit check are one atomic
// operation; a denied request leaves the counters untouched and appends no
// usage event. A non-empty idemKey that was already consumed makes Track a
// no-op, so a redelivered job cannot double-count.
func (s *Service) Track(ctx context.Context, userID string, event domain.UsageEventType, qty int, idemKey string, metadata map[string]any) error {
	sub, err := s.subscription(ctx, userID)
	if err != nil {
		return err
	}
	plan := domain.PlanByID(sub.PlanID)
	limit := plan.Limit(event)

	if idemKey != "" {
		seen, err := s.usage.HasUsageEvent(ctx, userID, idemKey)
		if err != nil {
			return err
		}
		if seen {
			s.log.Debug("usage already tracked, skipping: user=%s event=%s key=%s", userID, event, idemKey)
			return nil
		}
	}

	applied, current, err := s.usage.TryIncrementUsage(ctx, userID, event, qty, limit)
	if err != nil {
		return err
	}
	if !applied {
		return apperr.QuotaDenied(string(event), current, limit)
	}

	if err := s.usage.AppendUsageEvent(ctx, &domain.UsageEvent{
		ID:                 uuid.New().String(),
		UserID:             userID,
		SubscriptionID:     sub.ID,
		EventType:          event,
		Quantity:           qty,
		IdempotencyKey:     idemKey,
		Metadata:           metadata,
		BillingPeriodStart: sub.UsageResetDate.Add(-domain.UsageResetInterval),
		BillingPeriodEnd:   sub.UsageResetDate,
		CreatedAt:          time.Now(),
	}); err != nil {
		// The reservation stands; the audit record is best effort.
		s.log.Warn("failed to append usage event: user=%s event=%s err=%v", userID, event, err)
	}
	return nil
}

func (s *Service) Release(ctx context.Context, userID string, event domain.UsageEventType, qty int) error {
	return s.usage.DecrementUsage(ctx, userID, event, qty)
}

// ResetMonthly zeroes counters for every subscription past its reset date.
// The next reset anchors on the previous reset date, not on sweep time, so
// the 30-day cadence never drifts with scheduler lag.
func (s *Service) ResetMonthly(ctx context.Context) (int, error) {
	now := time.Now()
	due, err := s.usage.ListDueForReset(ctx, now, 500)
	if err != nil {
		return 0, err
	}

	reset := 0
	for _, sub := range due {
		next := sub.UsageResetDate.Add(domain.UsageResetInterval)
		for !next.After(now) {
			next = next.Add(domain.UsageResetInterval)
		}
		if err := s.usage.ResetUsage(ctx, sub.ID, next); err != nil {
			s.log.Error("failed to reset usage: subscription=%s err=%v", sub.ID, err)
			continue
		}
		reset++
	}
	if reset > 0 {
		s.log.Info("usage counters reset: count=%d", reset)
	}
	return reset, nil
}
