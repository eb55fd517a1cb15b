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
// Dead Letter / Webhook Event Adapters
// =============================================================================

const (
	collectionDeadLetters   = "dead_letters"
	collectionWebhookEvents = "webhook_events"
)

// DeadLetterAdapter implements out.DeadLetterRepository using MongoDB.
type DeadLetterAdapter struct {
	db         *mongo.Database
	collection *mongo.Collection
}

var _ out.DeadLetterRepository = (*DeadLetterAdapter)(nil)

func NewDeadLetterAdapter(db *mongo.Database) *DeadLetterAdapter {
	return &DeadLetterAdapter{
		db:         db,
		collection: db.Collection(collectionDeadLetters),
	}
}

func (a *DeadLetterAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "topic", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}
	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func (a *DeadLetterAdapter) Create(ctx context.Context, dl *domain.DeadLetter) (*domain.DeadLetter, error) {
	if dl.ID == "" {
		dl.ID = primitive.NewObjectID().Hex()
	}
	if dl.CreatedAt.IsZero() {
		dl.CreatedAt = time.Now()
	}
	if _, err := a.collection.InsertOne(ctx, dl); err != nil {
		return nil, apperr.DatabaseError("create dead letter", err)
	}
	return dl, nil
}

func (a *DeadLetterAdapter) List(ctx context.Context, topic string, limit int) ([]*domain.DeadLetter, error) {
	filter := bson.M{}
	if topic != "" {
		filter["topic"] = topic
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := a.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.DatabaseError("list dead letters", err)
	}
	defer cursor.Close(ctx)

	var items []*domain.DeadLetter
	if err := cursor.All(ctx, &items); err != nil {
		return nil, apperr.DatabaseError("decode dead letters", err)
	}
	return items, nil
}

func (a *DeadLetterAdapter) Delete(ctx context.Context, id string) error {
	res, err := a.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return apperr.DatabaseError("delete dead letter", err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("dead letter")
	}
	return nil
}

func (a *DeadLetterAdapter) Count(ctx context.Context) (int64, error) {
	n, err := a.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, apperr.DatabaseError("count dead letters", err)
	}
	return n, nil
}

// WebhookEventAdapter implements out.WebhookEventRepository using MongoDB.
type WebhookEventAdapter struct {
	db         *mongo.Database
	collection *mongo.Collection
}

var _ out.WebhookEventRepository = (*WebhookEventAdapter)(nil)

func NewWebhookEventAdapter(db *mongo.Database) *WebhookEventAdapter {
	return &WebhookEventAdapter{
		db:         db,
		collection: db.Collection(collectionWebhookEvents),
	}
}

func (a *WebhookEventAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// Insert records a callback delivery. A replay of the same session id hits
// the unique index and returns Conflict, which the webhook handler treats as
// already-processed.
func (a *WebhookEventAdapter) Insert(ctx context.Context, ev *domain.WebhookEvent) error {
	if ev.ID == "" {
		ev.ID = primitive.NewObjectID().Hex()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	if _, err := a.collection.InsertOne(ctx, ev); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperr.Conflict("webhook event already processed")
		}
		return apperr.DatabaseError("insert webhook event", err)
	}
	return nil
}
