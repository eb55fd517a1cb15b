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
// Email Log Adapter
// =============================================================================

const collectionEmailLogs = "email_logs"

// EmailLogAdapter implements out.EmailLogRepository using MongoDB.
type EmailLogAdapter struct {
	db         *mongo.Database
	collection *mongo.Collection
}

var _ out.EmailLogRepository = (*EmailLogAdapter)(nil)

func NewEmailLogAdapter(db *mongo.Database) *EmailLogAdapter {
	return &EmailLogAdapter{
		db:         db,
		collection: db.Collection(collectionEmailLogs),
	}
}

func (a *EmailLogAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "application_id", Value: 1}, {Key: "sent_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "message_id", Value: 1}},
		},
	}
	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func (a *EmailLogAdapter) Create(ctx context.Context, log *domain.EmailLog) (*domain.EmailLog, error) {
	if log.ID == "" {
		log.ID = primitive.NewObjectID().Hex()
	}
	log.CreatedAt = time.Now()
	if log.SentAt.IsZero() {
		log.SentAt = log.CreatedAt
	}
	if _, err := a.collection.InsertOne(ctx, log); err != nil {
		return nil, apperr.DatabaseError("create email log", err)
	}
	return log, nil
}

func (a *EmailLogAdapter) ListByApplication(ctx context.Context, userID, applicationID string, limit int) ([]*domain.EmailLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sent_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := a.collection.Find(ctx, bson.M{
		"user_id":        userID,
		"application_id": applicationID,
	}, opts)
	if err != nil {
		return nil, apperr.DatabaseError("list email logs", err)
	}
	defer cursor.Close(ctx)

	var logs []*domain.EmailLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, apperr.DatabaseError("decode email logs", err)
	}
	return logs, nil
}

func (a *EmailLogAdapter) ExistsByMessageID(ctx context.Context, userID, messageID string) (bool, error) {
	if messageID == "" {
		return false, nil
	}
	n, err := a.collection.CountDocuments(ctx, bson.M{
		"user_id":    userID,
		"message_id": messageID,
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, apperr.DatabaseError("check email log", err)
	}
	return n > 0, nil
}
