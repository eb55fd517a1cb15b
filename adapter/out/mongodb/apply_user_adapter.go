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
// User Adapter
// =============================================================================

const collectionUsers = "users"

// UserAdapter implements out.UserRepository using MongoDB.
type UserAdapter struct {
	db         *mongo.Database
	collection *mongo.Collection
}

var _ out.UserRepository = (*UserAdapter)(nil)

func NewUserAdapter(db *mongo.Database) *UserAdapter {
	return &UserAdapter{
		db:         db,
		collection: db.Collection(collectionUsers),
	}
}

func (a *UserAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "portal_credentials.domain", Value: 1}},
		},
	}
	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func (a *UserAdapter) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	now := time.Now()
	if user.ID == "" {
		user.ID = primitive.NewObjectID().Hex()
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.PlanID == "" {
		user.PlanID = domain.PlanFree
	}

	if _, err := a.collection.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, apperr.Conflict("email already registered")
		}
		return nil, apperr.DatabaseError("create user", err)
	}
	return user, nil
}

func (a *UserAdapter) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	err := a.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, apperr.NotFound("user")
	}
	if err != nil {
		return nil, apperr.DatabaseError("find user", err)
	}
	return &user, nil
}

func (a *UserAdapter) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := a.collection.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, apperr.NotFound("user")
	}
	if err != nil {
		return nil, apperr.DatabaseError("find user", err)
	}
	return &user, nil
}

func (a *UserAdapter) UpdateProfile(ctx context.Context, id string, profile *domain.UserProfile) error {
	res, err := a.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"profile": profile, "updated_at": time.Now()},
	})
	if err != nil {
		return apperr.DatabaseError("update profile", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("user")
	}
	return nil
}

// =============================================================================
// Mailbox credentials
// =============================================================================

func (a *UserAdapter) SetMailbox(ctx context.Context, id string, creds *domain.MailboxCredentials) error {
	res, err := a.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"mailbox": creds, "updated_at": time.Now()},
	})
	if err != nil {
		return apperr.DatabaseError("set mailbox", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("user")
	}
	return nil
}

func (a *UserAdapter) UpdateMailboxToken(ctx context.Context, id string, accessToken string, expiry time.Time) error {
	res, err := a.collection.UpdateOne(ctx, bson.M{"_id": id, "mailbox": bson.M{"$ne": nil}}, bson.M{
		"$set": bson.M{
			"mailbox.access_token": accessToken,
			"mailbox.token_expiry": expiry,
			"updated_at":           time.Now(),
		},
	})
	if err != nil {
		return apperr.DatabaseError("update mailbox token", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("user")
	}
	return nil
}

func (a *UserAdapter) ClearMailbox(ctx context.Context, id string) error {
	_, err := a.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$unset": bson.M{"mailbox": ""},
		"$set":   bson.M{"updated_at": time.Now()},
	})
	if err != nil {
		return apperr.DatabaseError("clear mailbox", err)
	}
	return nil
}

// =============================================================================
// Portal credentials
// =============================================================================

func (a *UserAdapter) AppendPortalCredential(ctx context.Context, id string, cred *domain.PortalCredential) error {
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now()
	}
	res, err := a.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$push": bson.M{"portal_credentials": cred},
		"$set":  bson.M{"updated_at": time.Now()},
	})
	if err != nil {
		return apperr.DatabaseError("append portal credential", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("user")
	}
	return nil
}
