package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"apply_server/core/domain"
	"apply_server/core/port/out"
	"apply_server/pkg/apperr"
)

// =============================================================================
// Job Adapter
// =============================================================================

const collectionJobs = "jobs"

// JobAdapter implements out.JobRepository using MongoDB.
type JobAdapter struct {
	db         *mongo.Database
	collection *mongo.Collection
}

var _ out.JobRepository = (*JobAdapter)(nil)

func NewJobAdapter(db *mongo.Database) *JobAdapter {
	return &JobAdapter{
		db:         db,
		collection: db.Collection(collectionJobs),
	}
}

func (a *JobAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}},
		},
	}
	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func (a *JobAdapter) Create(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	now := time.Now()
	if job.ID == "" {
		job.ID = primitive.NewObjectID().Hex()
	}
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = domain.JobActive
	}

	if _, err := a.collection.InsertOne(ctx, job); err != nil {
		return nil, apperr.DatabaseError("create job", err)
	}
	return job, nil
}

func (a *JobAdapter) FindByID(ctx context.Context, userID, id string) (*domain.Job, error) {
	var job domain.Job
	err := a.collection.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&job)
	if err == mongo.ErrNoDocuments {
		return nil, apperr.NotFound("job")
	}
	if err != nil {
		return nil, apperr.DatabaseError("find job", err)
	}
	return &job, nil
}

func (a *JobAdapter) Update(ctx context.Context, job *domain.Job) error {
	job.UpdatedAt = time.Now()
	res, err := a.collection.ReplaceOne(ctx, bson.M{"_id": job.ID, "user_id": job.UserID}, job)
	if err != nil {
		return apperr.DatabaseError("update job", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("job")
	}
	return nil
}

func (a *JobAdapter) HardDelete(ctx context.Context, userID, id string) error {
	res, err := a.collection.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return apperr.DatabaseError("delete job", err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("job")
	}
	return nil
}

func (a *JobAdapter) ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := a.collection.UpdateMany(ctx,
		bson.M{"status": domain.JobActive, "created_at": bson.M{"$lt": cutoff}},
		bson.M{"$set": bson.M{"status": domain.JobExpired, "updated_at": time.Now()}},
	)
	if err != nil {
		return 0, apperr.DatabaseError("expire jobs", err)
	}
	return res.ModifiedCount, nil
}
