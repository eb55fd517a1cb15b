package domain

import "time"

// =============================================================================
// Plans, subscriptions, usage
// =============================================================================

// UsageEventType names a counted action.
type UsageEventType string

const (
	UsageManualApplication UsageEventType = "manual_applications"
	UsageAutoApplication   UsageEventType = "auto_applications"
	UsageCVGeneration      UsageEventType = "cv_generations"
	UsageCoverLetter       UsageEventType = "cover_letters"
)

// Plan ids. Billing interval is part of the id but never changes usage reset
// cadence.
const (
	PlanFree           = "free"
	PlanBasicMonthly   = "basic_monthly"
	PlanBasicAnnual    = "basic_annual"
	PlanPremiumMonthly = "premium_monthly"
	PlanPremiumAnnual  = "premium_annual"
)

// Unlimited marks a limit with no cap.
const Unlimited = -1

// Plan is a fixed tier definition.
type Plan struct {
	ID                     string
	Name                   string
	Limits                 map[UsageEventType]int
	ConcurrentApplications int
	AutoApplyEnabled       bool
	PriorityMonitoring     bool
}

// planTable is the fixed plan catalog.
var planTable = map[string]*Plan{
	PlanFree: {
		ID:   PlanFree,
		Name: "Free",
		Limits: map[UsageEventType]int{
			UsageManualApplication: 5,
			UsageAutoApplication:   0,
			UsageCVGeneration:      3,
			UsageCoverLetter:       3,
		},
		ConcurrentApplications: 1,
	},
	PlanBasicMonthly: {
		ID:   PlanBasicMonthly,
		Name: "Basic (monthly)",
		Limits: map[UsageEventType]int{
			UsageManualApplication: 50,
			UsageAutoApplication:   20,
			UsageCVGeneration:      30,
			UsageCoverLetter:       30,
		},
		ConcurrentApplications: 3,
		AutoApplyEnabled:       true,
	},
	PlanBasicAnnual: {
		ID:   PlanBasicAnnual,
		Name: "Basic (annual)",
		Limits: map[UsageEventType]int{
			UsageManualApplication: 50,
			UsageAutoApplication:   20,
			UsageCVGeneration:      30,
			UsageCoverLetter:       30,
		},
		ConcurrentApplications: 3,
		AutoApplyEnabled:       true,
	},
	PlanPremiumMonthly: {
		ID:   PlanPremiumMonthly,
		Name: "Premium (monthly)",
		Limits: map[UsageEventType]int{
			UsageManualApplication: Unlimited,
			UsageAutoApplication:   100,
			UsageCVGeneration:      Unlimited,
			UsageCoverLetter:       Unlimited,
		},
		ConcurrentApplications: 10,
		AutoApplyEnabled:       true,
		PriorityMonitoring:     true,
	},
	PlanPremiumAnnual: {
		ID:   PlanPremiumAnnual,
		Name: "Premium (annual)",
		Limits: map[UsageEventType]int{
			UsageManualApplication: Unlimited,
			UsageAutoApplication:   100,
			UsageCVGeneration:      Unlimited,
			UsageCoverLetter:       Unlimited,
		},
		ConcurrentApplications: 10,
		AutoApplyEnabled:       true,
		PriorityMonitoring:     true,
	},
}

// PlanByID returns the plan for id, falling back to the free tier.
func PlanByID(id string) *Plan {
	if p, ok := planTable[id]; ok {
		return p
	}
	return planTable[PlanFree]
}

// IsPaid reports whether the plan is above the free tier.
func (p *Plan) IsPaid() bool {
	return p.ID != PlanFree
}

// Limit returns the cap for the event type. Unlimited means no cap.
func (p *Plan) Limit(event UsageEventType) int {
	if v, ok := p.Limits[event]; ok {
		return v
	}
	return 0
}

// UsageResetInterval is how often count-type usage zeroes, regardless of the
// plan's billing interval.
const UsageResetInterval = 30 * 24 * time.Hour

// Subscription is the per-user usage document.
type Subscription struct {
	ID     string `bson:"_id,omitempty" json:"id"`
	UserID string `bson:"user_id" json:"user_id"`
	PlanID string `bson:"plan_id" json:"plan_id"`

	// current_usage.<event> counters, conditionally incremented
	CurrentUsage map[string]int `bson:"current_usage" json:"current_usage"`

	UsageResetDate     time.Time  `bson:"usage_reset_date" json:"usage_reset_date"`
	BillingPeriodStart *time.Time `bson:"billing_period_start,omitempty" json:"billing_period_start,omitempty"`
	BillingPeriodEnd   *time.Time `bson:"billing_period_end,omitempty" json:"billing_period_end,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Usage returns the current counter for the event type.
func (s *Subscription) Usage(event UsageEventType) int {
	if s.CurrentUsage == nil {
		return 0
	}
	return s.CurrentUsage[string(event)]
}

// UsageEvent is the append-only audit record of a tracked increment. Each
// event carries the subscription it was billed against and that
// subscription's 30-day window at the time of the increment.
type UsageEvent struct {
	ID             string         `bson:"_id,omitempty" json:"id"`
	UserID         string         `bson:"user_id" json:"user_id"`
	SubscriptionID string         `bson:"subscription_id,omitempty" json:"subscription_id,omitempty"`
	EventType      UsageEventType `bson:"event_type" json:"event_type"`
	Quantity       int            `bson:"quantity" json:"quantity"`
	IdempotencyKey string         `bson:"idempotency_key,omitempty" json:"idempotency_key,omitempty"`
	Metadata       map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`

	BillingPeriodStart time.Time `bson:"billing_period_start" json:"billing_period_start"`
	BillingPeriodEnd   time.Time `bson:"billing_period_end" json:"billing_period_end"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
