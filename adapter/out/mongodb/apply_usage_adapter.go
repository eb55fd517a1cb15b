package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"apply_server/core/domain"
	"apply_server/core/port/out"
	"apply_server/pkg/apperr"
)

// =============================================================================
// Usage Adapter
// =============================================================================

const (
	collectionSubscriptions = "subscriptions"
	collectionUsageEvents   = "usage_events"
)

// UsageAdapter implements out.UsageRepository using MongoDB.
type UsageAdapter struct {
	db            *mongo.Database
	subscriptions *mongo.Collection
	events        *mongo.Collection
}

var _ out.UsageRepository = (*UsageAdapter)(nil)

func NewUsageAdapter(db *mongo.Database) *UsageAdapter {
	return &UsageAdapter{
		db:            db,
		subscriptions: db.Collection(collectionSubscriptions),
		events:        db.Collection(collectionUsageEvents),
	}
}

func (a *UsageAdapter) EnsureIndexes(ctx context.Context) error {
	subIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "usage_reset_date", Value: 1}},
		},
	}
	if _, err := a.subscriptions.Indexes().CreateMany(ctx, subIndexes); err != nil {
		return err
	}

	eventIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "billing_period_start", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "idempotency_key", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"idempotency_key": bson.M{"$exists": true}}),
		},
	}
	_, err := a.events.Indexes().CreateMany(ctx, eventIndexes)
	return err
}

func (a *UsageAdapter) FindSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := a.subscriptions.FindOne(ctx, bson.M{"user_id": userID}).Decode(&sub)
	if err == mongo.ErrNoDocuments {
		return nil, apperr.NotFound("subscription")
	}
	if err != nil {
		return nil, apperr.DatabaseError("find subscription", err)
	}
	return &sub, nil
}

func (a *UsageAdapter) CreateSubscription(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	now := time.Now()
	if sub.ID == "" {
		sub.ID = primitive.NewObjectID().Hex()
	}
	sub.CreatedAt = now
	sub.UpdatedAt = now
	if sub.CurrentUsage == nil {
		sub.CurrentUsage = map[string]int{}
	}
	if sub.UsageResetDate.IsZero() {
		sub.UsageResetDate = now.Add(domain.UsageResetInterval)
	}

	if _, err := a.subscriptions.InsertOne(ctx, sub); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, apperr.Conflict("subscription already exists")
		}
		return nil, apperr.DatabaseError("create subscription", err)
	}
	return sub, nil
}

// TryIncrementUsage is the quota commit point. The filter admits the write
// only while current + qty stays within the limit, so concurrent submissions
// cannot both pass a nearly-full counter.
func (a *UsageAdapter) TryIncrementUsage(ctx context.Context, userID string, event domain.UsageEventType, qty, limit int) (bool, int, error) {
	field := "current_usage." + string(event)

	filter := bson.M{"user_id": userID}
	if limit != domain.Unlimited {
		filter["$or"] = []bson.M{
			{field: bson.M{"$exists": false}},
			{field: bson.M{"$lte": limit - qty}},
		}
	}

	update := bson.M{
		"$inc": bson.M{field: qty},
		"$set": bson.M{"updated_at": time.Now()},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated domain.Subscription
	err := a.subscriptions.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err == nil {
		return true, updated.Usage(event), nil
	}
	if err != mongo.ErrNoDocuments {
		return false, 0, apperr.DatabaseError("increment usage", err)
	}

	// Denied or missing. Read the counter to report the observed value.
	sub, ferr := a.FindSubscription(ctx, userID)
	if ferr != nil {
		return false, 0, ferr
	}
	return false, sub.Usage(event), nil
}

func (a *UsageAdapter) DecrementUsage(ctx context.Context, userID string, event domain.UsageEventType, qty int) error {
	field := "current_usage." + string(event)
	// Never drive the counter below zero.
	_, err := a.subscriptions.UpdateOne(ctx,
		bson.M{"user_id": userID, field: bson.M{"$gte": qty}},
		bson.M{
			"$inc": bson.M{field: -qty},
			"$set": bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return apperr.DatabaseError("decrement usage", err)
	}
	return nil
}

func (a *UsageAdapter) AppendUsageEvent(ctx context.Context, ev *domain.UsageEvent) error {
	if ev.ID == "" {
		ev.ID = primitive.NewObjectID().Hex()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	if _, err := a.events.InsertOne(ctx, ev); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperr.Conflict("usage event already recorded")
		}
		return apperr.DatabaseError("append usage event", err)
	}
	return nil
}

func (a *UsageAdapter) HasUsageEvent(ctx context.Context, userID, idemKey string) (bool, error) {
	n, err := a.events.CountDocuments(ctx, bson.M{"user_id": userID, "idempotency_key": idemKey})
	if err != nil {
		return false, apperr.DatabaseError("check usage event", err)
	}
	return n > 0, nil
}

func (a *UsageAdapter) ListDueForReset(ctx context.Context, now time.Time, limit int) ([]*domain.Subscription, error) {
	opts := options.Find().SetSort(bson.D{{Key: "usage_reset_date", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := a.subscriptions.Find(ctx, bson.M{"usage_reset_date": bson.M{"$lte": now}}, opts)
	if err != nil {
		return nil, apperr.DatabaseError("list due for reset", err)
	}
	defer cursor.Close(ctx)

	var subs []*domain.Subscription
	if err := cursor.All(ctx, &subs); err != nil {
		return nil, apperr.DatabaseError("decode subscriptions", err)
	}
	return subs, nil
}

func (a *UsageAdapter) ResetUsage(ctx context.Context, subscriptionID string, nextReset time.Time) error {
	res, err := a.subscriptions.UpdateOne(ctx, bson.M{"_id": subscriptionID}, bson.M{
		"$set": bson.M{
			"current_usage":    map[string]int{},
			"usage_reset_date": nextReset,
			"updated_at":       time.Now(),
		},
	})
	if err != nil {
		return apperr.DatabaseError("reset usage", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("subscription")
	}
	return nil
}
