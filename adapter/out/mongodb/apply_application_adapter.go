package mongodb

import (
	"context"
	"strconv"
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
// Application Adapter
// =============================================================================

const collectionApplications = "applications"

// ApplicationAdapter implements out.ApplicationRepository using MongoDB.
type ApplicationAdapter struct {
	db         *mongo.Database
	collection *mongo.Collection
}

var _ out.ApplicationRepository = (*ApplicationAdapter)(nil)

func NewApplicationAdapter(db *mongo.Database) *ApplicationAdapter {
	return &ApplicationAdapter{
		db:         db,
		collection: db.Collection(collectionApplications),
	}
}

// EnsureIndexes creates necessary indexes for the collection. The compound
// (user_id, job_id) index is unique only over live documents so a re-apply
// after soft delete is allowed.
func (a *ApplicationAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "job_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"deleted_at": bson.M{"$exists": false}}),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "follow_up_date", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "email_monitoring_enabled", Value: 1}, {Key: "last_response_check", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "application_domain", Value: 1}, {Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
	}
	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// liveFilter scopes a query to one user's non-deleted documents.
func liveFilter(userID, id string) bson.M {
	f := bson.M{
		"user_id":    userID,
		"deleted_at": bson.M{"$exists": false},
	}
	if id != "" {
		f["_id"] = id
	}
	return f
}

func (a *ApplicationAdapter) Create(ctx context.Context, app *domain.Application) (*domain.Application, error) {
	now := time.Now()
	if app.ID == "" {
		app.ID = primitive.NewObjectID().Hex()
	}
	app.CreatedAt = now
	app.UpdatedAt = now
	if app.Timeline == nil {
		app.Timeline = []domain.TimelineEvent{{
			Timestamp:   now,
			Type:        domain.EventCreated,
			Description: "application created",
		}}
	}

	if _, err := a.collection.InsertOne(ctx, app); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, apperr.Conflict("application already exists for this job")
		}
		return nil, apperr.DatabaseError("create application", err)
	}
	return app, nil
}

func (a *ApplicationAdapter) FindByID(ctx context.Context, userID, id string) (*domain.Application, error) {
	var app domain.Application
	err := a.collection.FindOne(ctx, liveFilter(userID, id)).Decode(&app)
	if err == mongo.ErrNoDocuments {
		return nil, apperr.NotFound("application")
	}
	if err != nil {
		return nil, apperr.DatabaseError("find application", err)
	}
	return &app, nil
}

func (a *ApplicationAdapter) FindByIDAny(ctx context.Context, id string) (*domain.Application, error) {
	var app domain.Application
	err := a.collection.FindOne(ctx, bson.M{
		"_id":        id,
		"deleted_at": bson.M{"$exists": false},
	}).Decode(&app)
	if err == mongo.ErrNoDocuments {
		return nil, apperr.NotFound("application")
	}
	if err != nil {
		return nil, apperr.DatabaseError("find application", err)
	}
	return &app, nil
}

// buildListFilter translates the domain filter into a query document.
func buildListFilter(userID string, filter *domain.ApplicationFilter) bson.M {
	q := liveFilter(userID, "")
	if filter == nil {
		return q
	}

	if filter.Status != nil {
		q["status"] = *filter.Status
	}
	if filter.Company != "" {
		q["company_name"] = bson.M{"$regex": filter.Company, "$options": "i"}
	}
	if filter.Priority != nil {
		q["priority"] = *filter.Priority
	}
	if filter.AppliedAfter != nil || filter.AppliedBefore != nil {
		dateRange := bson.M{}
		if filter.AppliedAfter != nil {
			dateRange["$gte"] = *filter.AppliedAfter
		}
		if filter.AppliedBefore != nil {
			dateRange["$lte"] = *filter.AppliedBefore
		}
		q["applied_date"] = dateRange
	}
	if filter.HasInterviews != nil {
		if *filter.HasInterviews {
			q["interviews.0"] = bson.M{"$exists": true}
		} else {
			q["interviews.0"] = bson.M{"$exists": false}
		}
	}
	if filter.NeedsFollowUp != nil && *filter.NeedsFollowUp {
		q["follow_up_date"] = bson.M{"$lte": time.Now()}
	}
	if filter.HasResponse != nil {
		responseSet := domain.ResponseStatuses()
		if *filter.HasResponse {
			q["$or"] = []bson.M{
				{"status": bson.M{"$in": responseSet}},
				{"communications": bson.M{"$elemMatch": bson.M{"direction": domain.DirectionInbound}}},
			}
		} else {
			// No response: status outside the response set and no inbound
			// communication recorded.
			q["status"] = bson.M{"$nin": responseSet}
			q["communications"] = bson.M{"$not": bson.M{"$elemMatch": bson.M{"direction": domain.DirectionInbound}}}
		}
	}
	if filter.Search != "" {
		search := bson.M{"$regex": filter.Search, "$options": "i"}
		q["$and"] = []bson.M{{
			"$or": []bson.M{
				{"job_title": search},
				{"company_name": search},
				{"location": search},
			},
		}}
	}
	return q
}

func sortDoc(sort domain.ApplicationSort) bson.D {
	switch sort {
	case domain.SortAppliedDesc:
		return bson.D{{Key: "applied_date", Value: -1}}
	case domain.SortCompanyAsc:
		return bson.D{{Key: "company_name", Value: 1}}
	case domain.SortPriority:
		return bson.D{{Key: "priority", Value: -1}, {Key: "created_at", Value: -1}}
	default:
		return bson.D{{Key: "created_at", Value: -1}}
	}
}

func (a *ApplicationAdapter) List(ctx context.Context, userID string, filter *domain.ApplicationFilter, page, pageSize int, sort domain.ApplicationSort) (*domain.ApplicationPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	q := buildListFilter(userID, filter)

	total, err := a.collection.CountDocuments(ctx, q)
	if err != nil {
		return nil, apperr.DatabaseError("count applications", err)
	}

	opts := options.Find().
		SetSort(sortDoc(sort)).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))

	cursor, err := a.collection.Find(ctx, q, opts)
	if err != nil {
		return nil, apperr.DatabaseError("list applications", err)
	}
	defer cursor.Close(ctx)

	var items []*domain.Application
	if err := cursor.All(ctx, &items); err != nil {
		return nil, apperr.DatabaseError("decode applications", err)
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return &domain.ApplicationPage{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// Patch applies field updates and appends in one atomic write.
func (a *ApplicationAdapter) Patch(ctx context.Context, userID, id string, patch *out.ApplicationPatch) (*domain.Application, error) {
	set := bson.M{"updated_at": time.Now()}
	inc := bson.M{}
	push := bson.M{}

	if patch.Status != nil {
		set["status"] = *patch.Status
	}
	if patch.Priority != nil {
		set["priority"] = *patch.Priority
	}
	if patch.Notes != nil {
		set["notes"] = *patch.Notes
	}
	if patch.AppliedDate != nil {
		set["applied_date"] = *patch.AppliedDate
	}
	if patch.FollowUpDate != nil {
		set["follow_up_date"] = *patch.FollowUpDate
	}
	if patch.NextFollowUp != nil {
		set["next_follow_up"] = *patch.NextFollowUp
	}
	if patch.EmailThreadID != nil {
		set["email_thread_id"] = *patch.EmailThreadID
	}
	if patch.LastEmailSentAt != nil {
		set["last_email_sent_at"] = *patch.LastEmailSentAt
	}
	if patch.ApplicationDomain != nil {
		set["application_domain"] = *patch.ApplicationDomain
	}
	if patch.RecipientEmail != nil {
		set["recipient_email"] = *patch.RecipientEmail
	}
	if patch.EmailMonitoringEnabled != nil {
		set["email_monitoring_enabled"] = *patch.EmailMonitoringEnabled
	}
	if patch.LastResponseCheck != nil {
		set["last_response_check"] = *patch.LastResponseCheck
	}
	if patch.VerificationPortalDomain != nil {
		set["verification_portal_domain"] = *patch.VerificationPortalDomain
	}
	if patch.ReservedUsageType != nil {
		// An empty string clears the reservation marker.
		set["reserved_usage_type"] = *patch.ReservedUsageType
	}
	if patch.IncResponseCheckCount {
		inc["response_check_count"] = 1
	}
	if patch.IncFollowUpCount {
		inc["follow_up_count"] = 1
	}
	if len(patch.PushTimeline) > 0 {
		push["timeline"] = bson.M{"$each": patch.PushTimeline}
	}
	if len(patch.PushCommunications) > 0 {
		push["communications"] = bson.M{"$each": patch.PushCommunications}
	}
	if len(patch.PushInterviews) > 0 {
		push["interviews"] = bson.M{"$each": patch.PushInterviews}
	}
	if len(patch.PushTasks) > 0 {
		push["tasks"] = bson.M{"$each": patch.PushTasks}
	}
	if len(patch.PushDocuments) > 0 {
		push["documents"] = bson.M{"$each": patch.PushDocuments}
	}

	update := bson.M{"$set": set}
	if len(inc) > 0 {
		update["$inc"] = inc
	}
	if len(push) > 0 {
		update["$push"] = push
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated domain.Application
	err := a.collection.FindOneAndUpdate(ctx, liveFilter(userID, id), update, opts).Decode(&updated)
	if err == mongo.ErrNoDocuments {
		return nil, apperr.NotFound("application")
	}
	if err != nil {
		return nil, apperr.DatabaseError("patch application", err)
	}
	return &updated, nil
}

func (a *ApplicationAdapter) CompleteTask(ctx context.Context, userID, id string, taskIndex int, at time.Time) error {
	field := "tasks." + strconv.Itoa(taskIndex)
	update := bson.M{"$set": bson.M{
		field + ".completed":    true,
		field + ".completed_at": at,
		"updated_at":            time.Now(),
	}}
	res, err := a.collection.UpdateOne(ctx, liveFilter(userID, id), update)
	if err != nil {
		return apperr.DatabaseError("complete task", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("application")
	}
	return nil
}

func (a *ApplicationAdapter) SoftDelete(ctx context.Context, userID, id string) error {
	res, err := a.collection.UpdateOne(ctx, liveFilter(userID, id), bson.M{
		"$set": bson.M{"deleted_at": time.Now(), "updated_at": time.Now()},
	})
	if err != nil {
		return apperr.DatabaseError("soft delete application", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("application")
	}
	return nil
}

func (a *ApplicationAdapter) HardDelete(ctx context.Context, userID, id string) error {
	res, err := a.collection.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return apperr.DatabaseError("hard delete application", err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("application")
	}
	return nil
}

// =============================================================================
// Derived Queries
// =============================================================================

func (a *ApplicationAdapter) FollowUpsNeeded(ctx context.Context, userID string, now time.Time) ([]*domain.Application, error) {
	q := liveFilter(userID, "")
	q["follow_up_date"] = bson.M{"$lte": now}
	q["status"] = bson.M{"$nin": terminalStatusList()}

	cursor, err := a.collection.Find(ctx, q, options.Find().SetSort(bson.D{{Key: "follow_up_date", Value: 1}}))
	if err != nil {
		return nil, apperr.DatabaseError("follow-ups needed", err)
	}
	defer cursor.Close(ctx)

	var items []*domain.Application
	if err := cursor.All(ctx, &items); err != nil {
		return nil, apperr.DatabaseError("decode applications", err)
	}
	return items, nil
}

func (a *ApplicationAdapter) UpcomingInterviews(ctx context.Context, userID string, now time.Time, days int) ([]*domain.Application, error) {
	q := liveFilter(userID, "")
	q["status"] = domain.StatusInterviewScheduled
	q["interviews"] = bson.M{"$elemMatch": bson.M{
		"scheduled_at": bson.M{"$gte": now, "$lte": now.AddDate(0, 0, days)},
		"status":       domain.InterviewScheduled,
	}}

	cursor, err := a.collection.Find(ctx, q)
	if err != nil {
		return nil, apperr.DatabaseError("upcoming interviews", err)
	}
	defer cursor.Close(ctx)

	var items []*domain.Application
	if err := cursor.All(ctx, &items); err != nil {
		return nil, apperr.DatabaseError("decode applications", err)
	}
	return items, nil
}

func (a *ApplicationAdapter) ListMonitored(ctx context.Context, limit int) ([]*domain.Application, error) {
	q := bson.M{
		"email_monitoring_enabled": true,
		"deleted_at":               bson.M{"$exists": false},
		"status":                   bson.M{"$nin": terminalStatusList()},
	}
	opts := options.Find().SetSort(bson.D{{Key: "last_response_check", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := a.collection.Find(ctx, q, opts)
	if err != nil {
		return nil, apperr.DatabaseError("list monitored", err)
	}
	defer cursor.Close(ctx)

	var items []*domain.Application
	if err := cursor.All(ctx, &items); err != nil {
		return nil, apperr.DatabaseError("decode applications", err)
	}
	return items, nil
}

func (a *ApplicationAdapter) ListByStatus(ctx context.Context, status domain.ApplicationStatus, limit int) ([]*domain.Application, error) {
	q := bson.M{
		"status":     status,
		"deleted_at": bson.M{"$exists": false},
	}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := a.collection.Find(ctx, q, opts)
	if err != nil {
		return nil, apperr.DatabaseError("list by status", err)
	}
	defer cursor.Close(ctx)

	var items []*domain.Application
	if err := cursor.All(ctx, &items); err != nil {
		return nil, apperr.DatabaseError("decode applications", err)
	}
	return items, nil
}

// =============================================================================
// Stats
// =============================================================================

func (a *ApplicationAdapter) CountsByStatus(ctx context.Context, userID string) (map[domain.ApplicationStatus]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: liveFilter(userID, "")}},
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := a.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, apperr.DatabaseError("counts by status", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status domain.ApplicationStatus `bson:"_id"`
		Count  int64                    `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, apperr.DatabaseError("decode counts", err)
	}

	counts := make(map[domain.ApplicationStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (a *ApplicationAdapter) CountCreatedSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	q := liveFilter(userID, "")
	q["created_at"] = bson.M{"$gte": since}
	n, err := a.collection.CountDocuments(ctx, q)
	if err != nil {
		return 0, apperr.DatabaseError("count created since", err)
	}
	return n, nil
}

func (a *ApplicationAdapter) CountWithResponse(ctx context.Context, userID string) (int64, error) {
	q := liveFilter(userID, "")
	q["$or"] = []bson.M{
		{"status": bson.M{"$in": domain.ResponseStatuses()}},
		{"communications": bson.M{"$elemMatch": bson.M{"direction": domain.DirectionInbound}}},
	}
	n, err := a.collection.CountDocuments(ctx, q)
	if err != nil {
		return 0, apperr.DatabaseError("count with response", err)
	}
	return n, nil
}

func terminalStatusList() []domain.ApplicationStatus {
	return []domain.ApplicationStatus{
		domain.StatusOfferAccepted,
		domain.StatusOfferDeclined,
		domain.StatusRejected,
		domain.StatusWithdrawn,
		domain.StatusArchived,
	}
}

