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
// Notification Adapter
// =============================================================================

const collectionNotifications = "notifications"

// NotificationAdapter implements out.NotificationRepository using MongoDB.
type NotificationAdapter struct {
	db         *mongo.Database
	collection *mongo.Collection
}

var _ out.NotificationRepository = (*NotificationAdapter)(nil)

func NewNotificationAdapter(db *mongo.Database) *NotificationAdapter {
	return &NotificationAdapter{
		db:         db,
		collection: db.Collection(collectionNotifications),
	}
}

func (a *NotificationAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "read", Value: 1}},
		},
	}
	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func (a *NotificationAdapter) Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	if n.ID == "" {
		n.ID = primitive.NewObjectID().Hex()
	}
	n.CreatedAt = time.Now()
	if _, err := a.collection.InsertOne(ctx, n); err != nil {
		return nil, apperr.DatabaseError("create notification", err)
	}
	return n, nil
}

func (a *NotificationAdapter) MarkSent(ctx context.Context, id string, at time.Time) error {
	_, err := a.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"sent_at": at},
	})
	if err != nil {
		return apperr.DatabaseError("mark notification sent", err)
	}
	return nil
}

func (a *NotificationAdapter) MarkRead(ctx context.Context, userID, id string) error {
	now := time.Now()
	res, err := a.collection.UpdateOne(ctx, bson.M{"_id": id, "user_id": userID}, bson.M{
		"$set": bson.M{"read": true, "read_at": now},
	})
	if err != nil {
		return apperr.DatabaseError("mark notification read", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("notification")
	}
	return nil
}

func (a *NotificationAdapter) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	now := time.Now()
	res, err := a.collection.UpdateMany(ctx, bson.M{"user_id": userID, "read": false}, bson.M{
		"$set": bson.M{"read": true, "read_at": now},
	})
	if err != nil {
		return 0, apperr.DatabaseError("mark all read", err)
	}
	return res.ModifiedCount, nil
}

func (a *NotificationAdapter) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*domain.Notification, error) {
	filter := bson.M{"user_id": userID}
	if unreadOnly {
		filter["read"] = false
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := a.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.DatabaseError("list notifications", err)
	}
	defer cursor.Close(ctx)

	var items []*domain.Notification
	if err := cursor.All(ctx, &items); err != nil {
		return nil, apperr.DatabaseError("decode notifications", err)
	}
	return items, nil
}

func (a *NotificationAdapter) CountUnread(ctx context.Context, userID string) (int64, error) {
	n, err := a.collection.CountDocuments(ctx, bson.M{"user_id": userID, "read": false})
	if err != nil {
		return 0, apperr.DatabaseError("count unread", err)
	}
	return n, nil
}
