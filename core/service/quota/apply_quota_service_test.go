package quota

import (
	"context"
	"testing"
	"time"

	"apply_server/core/domain"
	"apply_server/pkg/apperr"
)

// fakeUsageRepo applies the same conditional-increment semantics as the
// mongo adapter, in memory.
type fakeUsageRepo struct {
	sub     *domain.Subscription
	events  []*domain.UsageEvent
	resets  []string
	created int
}

func (f *fakeUsageRepo) FindSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	if f.sub == nil {
		return nil, apperr.NotFound("subscription")
	}
	return f.sub, nil
}

func (f *fakeUsageRepo) CreateSubscription(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	f.created++
	sub.ID = "sub-1"
	f.sub = sub
	return sub, nil
}

func (f *fakeUsageRepo) TryIncrementUsage(ctx context.Context, userID string, event domain.UsageEventType, qty, limit int) (bool, int, error) {
	current := f.sub.CurrentUsage[string(event)]
	if limit != domain.Unlimited && current+qty > limit {
		return false, current, nil
	}
	f.sub.CurrentUsage[string(event)] = current + qty
	return true, current + qty, nil
}

func (f *fakeUsageRepo) DecrementUsage(ctx context.Context, userID string, event domain.UsageEventType, qty int) error {
	f.sub.CurrentUsage[string(event)] -= qty
	return nil
}

func (f *fakeUsageRepo) AppendUsageEvent(ctx context.Context, ev *domain.UsageEvent) error {
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeUsageRepo) HasUsageEvent(ctx context.Context, userID, idemKey string) (bool, error) {
	for _, ev := range f.events {
		if ev.UserID == userID && ev.IdempotencyKey == idemKey {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUsageRepo) ListDueForReset(ctx context.Context, now time.Time, limit int) ([]*domain.Subscription, error) {
	if f.sub != nil && !f.sub.UsageResetDate.After(now) {
		return []*domain.Subscription{f.sub}, nil
	}
	return nil, nil
}

func (f *fakeUsageRepo) ResetUsage(ctx context.Context, subscriptionID string, nextReset time.Time) error {
	f.resets = append(f.resets, subscriptionID)
	f.sub.CurrentUsage = map[string]int{}
	f.sub.UsageResetDate = nextReset
	return nil
}

func freeSub(usage map[string]int) *domain.Subscription {
	if usage == nil {
		usage = map[string]int{}
	}
	return &domain.Subscription{
		ID:             "sub-1",
		UserID:         "user-1",
		PlanID:         domain.PlanFree,
		CurrentUsage:   usage,
		UsageResetDate: time.Now().Add(domain.UsageResetInterval),
	}
}

func TestTrackDeniedAtLimit(t *testing.T) {
	repo := &fakeUsageRepo{sub: freeSub(map[string]int{
		string(domain.UsageManualApplication): 5,
	})}
	svc := NewService(repo)

	err := svc.Track(context.Background(), "user-1", domain.UsageManualApplication, 1, "", nil)
	if !apperr.IsQuotaDenied(err) {
		t.Fatalf("err = %v, want quota denied", err)
	}
	if got := repo.sub.CurrentUsage[string(domain.UsageManualApplication)]; got != 5 {
		t.Fatalf("counter moved on denial: %d", got)
	}
	if len(repo.events) != 0 {
		t.Fatalf("denied request appended %d usage events", len(repo.events))
	}
}

func TestTrackReservesAndAudits(t *testing.T) {
	repo := &fakeUsageRepo{sub: freeSub(nil)}
	svc := NewService(repo)

	err := svc.Track(context.Background(), "user-1", domain.UsageCVGeneration, 1, "",
		map[string]any{"job_id": "job-1"})
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if got := repo.sub.CurrentUsage[string(domain.UsageCVGeneration)]; got != 1 {
		t.Fatalf("counter = %d, want 1", got)
	}
	if len(repo.events) != 1 {
		t.Fatalf("events = %d, want 1", len(repo.events))
	}
	ev := repo.events[0]
	if ev.EventType != domain.UsageCVGeneration || ev.Quantity != 1 {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Metadata["job_id"] != "job-1" {
		t.Fatalf("metadata = %v", ev.Metadata)
	}
	if ev.SubscriptionID != "sub-1" {
		t.Fatalf("subscription = %q, want sub-1", ev.SubscriptionID)
	}
	if !ev.BillingPeriodEnd.Equal(repo.sub.UsageResetDate) {
		t.Fatalf("billing period end = %v, want %v", ev.BillingPeriodEnd, repo.sub.UsageResetDate)
	}
	if !ev.BillingPeriodStart.Equal(repo.sub.UsageResetDate.Add(-domain.UsageResetInterval)) {
		t.Fatalf("billing period start = %v", ev.BillingPeriodStart)
	}
}

func TestTrackIdempotencyKeyDedupes(t *testing.T) {
	repo := &fakeUsageRepo{sub: freeSub(nil)}
	svc := NewService(repo)

	for i := 0; i < 2; i++ {
		err := svc.Track(context.Background(), "user-1", domain.UsageManualApplication, 1,
			"apply:app-1", map[string]any{"application_id": "app-1"})
		if err != nil {
			t.Fatalf("Track #%d: %v", i+1, err)
		}
	}
	if got := repo.sub.CurrentUsage[string(domain.UsageManualApplication)]; got != 1 {
		t.Fatalf("counter = %d after replay, want 1", got)
	}
	if len(repo.events) != 1 {
		t.Fatalf("events = %d after replay, want 1", len(repo.events))
	}
}

func TestTrackProvisionsFreeTier(t *testing.T) {
	repo := &fakeUsageRepo{}
	svc := NewService(repo)

	if err := svc.Track(context.Background(), "user-1", domain.UsageManualApplication, 1, "", nil); err != nil {
		t.Fatalf("Track: %v", err)
	}
	if repo.created != 1 {
		t.Fatalf("created %d subscriptions, want 1", repo.created)
	}
	if repo.sub.PlanID != domain.PlanFree {
		t.Fatalf("plan = %s, want free", repo.sub.PlanID)
	}
}

func TestCheckUnlimitedPlan(t *testing.T) {
	sub := freeSub(map[string]int{string(domain.UsageCVGeneration): 9999})
	sub.PlanID = domain.PlanPremiumMonthly
	repo := &fakeUsageRepo{sub: sub}
	svc := NewService(repo)

	allowed, _, limit, err := svc.Check(context.Background(), "user-1", domain.UsageCVGeneration, 1)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !allowed || limit != domain.Unlimited {
		t.Fatalf("allowed=%v limit=%d, want unlimited allow", allowed, limit)
	}
}

func TestReleaseUndoesReservation(t *testing.T) {
	repo := &fakeUsageRepo{sub: freeSub(map[string]int{
		string(domain.UsageManualApplication): 3,
	})}
	svc := NewService(repo)

	if err := svc.Release(context.Background(), "user-1", domain.UsageManualApplication, 1); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got := repo.sub.CurrentUsage[string(domain.UsageManualApplication)]; got != 2 {
		t.Fatalf("counter = %d, want 2", got)
	}
}

func TestResetMonthlyAdvancesThirtyDays(t *testing.T) {
	sub := freeSub(map[string]int{string(domain.UsageManualApplication): 4})
	sub.UsageResetDate = time.Now().Add(-time.Hour)
	repo := &fakeUsageRepo{sub: sub}
	svc := NewService(repo)

	count, err := svc.ResetMonthly(context.Background())
	if err != nil {
		t.Fatalf("ResetMonthly: %v", err)
	}
	if count != 1 {
		t.Fatalf("reset %d, want 1", count)
	}
	if len(repo.sub.CurrentUsage) != 0 {
		t.Fatalf("usage not zeroed: %v", repo.sub.CurrentUsage)
	}
	until := time.Until(repo.sub.UsageResetDate)
	if until < 29*24*time.Hour || until > 31*24*time.Hour {
		t.Fatalf("next reset %v out, want about 30 days", until)
	}
}

func TestResetMonthlyAnchorsOnPreviousResetDate(t *testing.T) {
	// A sweep running 10 days late must not push the cadence back: the next
	// reset lands 30 days after the missed one, not 30 days after the sweep.
	sub := freeSub(map[string]int{string(domain.UsageManualApplication): 2})
	prev := time.Now().Add(-10 * 24 * time.Hour)
	sub.UsageResetDate = prev
	repo := &fakeUsageRepo{sub: sub}
	svc := NewService(repo)

	if _, err := svc.ResetMonthly(context.Background()); err != nil {
		t.Fatalf("ResetMonthly: %v", err)
	}
	want := prev.Add(domain.UsageResetInterval)
	if !repo.sub.UsageResetDate.Equal(want) {
		t.Fatalf("next reset = %v, want %v", repo.sub.UsageResetDate, want)
	}
}

func TestResetMonthlyCatchesUpLapsedSubscription(t *testing.T) {
	// A subscription that missed several sweeps still lands on a future date
	// on its original cadence.
	sub := freeSub(map[string]int{string(domain.UsageCVGeneration): 1})
	prev := time.Now().Add(-70 * 24 * time.Hour)
	sub.UsageResetDate = prev
	repo := &fakeUsageRepo{sub: sub}
	svc := NewService(repo)

	if _, err := svc.ResetMonthly(context.Background()); err != nil {
		t.Fatalf("ResetMonthly: %v", err)
	}
	want := prev.Add(3 * domain.UsageResetInterval)
	if !repo.sub.UsageResetDate.Equal(want) {
		t.Fatalf("next reset = %v, want %v", repo.sub.UsageResetDate, want)
	}
	if !repo.sub.UsageResetDate.After(time.Now()) {
		t.Fatalf("next reset %v is not in the future", repo.sub.UsageResetDate)
	}
}
