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
// CV Adapter
// =============================================================================

const (
	collectionCVs           = "cvs"
	collectionCustomizedCVs = "customized_cvs"
	collectionCoverLetters  = "cover_letters"
)

// CVAdapter implements out.CVRepository using MongoDB.
type CVAdapter struct {
	db            *mongo.Database
	cvs           *mongo.Collection
	customizedCVs *mongo.Collection
	coverLetters  *mongo.Collection
}

var _ out.CVRepository = (*CVAdapter)(nil)

func NewCVAdapter(db *mongo.Database) *CVAdapter {
	return &CVAdapter{
		db:            db,
		cvs:           db.Collection(collectionCVs),
		customizedCVs: db.Collection(collectionCustomizedCVs),
		coverLetters:  db.Collection(collectionCoverLetters),
	}
}

func (a *CVAdapter) EnsureIndexes(ctx context.Context) error {
	for _, coll := range []*mongo.Collection{a.cvs, a.customizedCVs, a.coverLetters} {
		_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *CVAdapter) FindCV(ctx context.Context, userID, id string) (*domain.ParsedCV, error) {
	var cv domain.ParsedCV
	err := a.cvs.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&cv)
	if err == mongo.ErrNoDocuments {
		return nil, apperr.NotFound("cv")
	}
	if err != nil {
		return nil, apperr.DatabaseError("find cv", err)
	}
	return &cv, nil
}

func (a *CVAdapter) SaveCV(ctx context.Context, cv *domain.ParsedCV) (*domain.ParsedCV, error) {
	now := time.Now()
	if cv.ID == "" {
		cv.ID = primitive.NewObjectID().Hex()
		cv.CreatedAt = now
	}
	cv.UpdatedAt = now
	opts := options.Replace().SetUpsert(true)
	if _, err := a.cvs.ReplaceOne(ctx, bson.M{"_id": cv.ID}, cv, opts); err != nil {
		return nil, apperr.DatabaseError("save cv", err)
	}
	return cv, nil
}

func (a *CVAdapter) SaveCustomizedCV(ctx context.Context, cv *domain.CustomizedCV) (*domain.CustomizedCV, error) {
	now := time.Now()
	if cv.ID == "" {
		cv.ID = primitive.NewObjectID().Hex()
		cv.CreatedAt = now
	}
	cv.UpdatedAt = now
	opts := options.Replace().SetUpsert(true)
	if _, err := a.customizedCVs.ReplaceOne(ctx, bson.M{"_id": cv.ID}, cv, opts); err != nil {
		return nil, apperr.DatabaseError("save customized cv", err)
	}
	return cv, nil
}

func (a *CVAdapter) FindCustomizedCV(ctx context.Context, userID, id string) (*domain.CustomizedCV, error) {
	var cv domain.CustomizedCV
	err := a.customizedCVs.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&cv)
	if err == mongo.ErrNoDocuments {
		return nil, apperr.NotFound("customized cv")
	}
	if err != nil {
		return nil, apperr.DatabaseError("find customized cv", err)
	}
	return &cv, nil
}

func (a *CVAdapter) SaveCoverLetter(ctx context.Context, letter *domain.CoverLetter) (*domain.CoverLetter, error) {
	if letter.ID == "" {
		letter.ID = primitive.NewObjectID().Hex()
		letter.CreatedAt = time.Now()
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := a.coverLetters.ReplaceOne(ctx, bson.M{"_id": letter.ID}, letter, opts); err != nil {
		return nil, apperr.DatabaseError("save cover letter", err)
	}
	return letter, nil
}

func (a *CVAdapter) FindCoverLetter(ctx context.Context, userID, id string) (*domain.CoverLetter, error) {
	var letter domain.CoverLetter
	err := a.coverLetters.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&letter)
	if err == mongo.ErrNoDocuments {
		return nil, apperr.NotFound("cover letter")
	}
	if err != nil {
		return nil, apperr.DatabaseError("find cover letter", err)
	}
	return &letter, nil
}
