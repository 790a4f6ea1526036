package bulk_operation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-bulkops/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps operations and items in two collections. Claims and completions are
// conditional FindOneAndUpdate calls; counters use $inc and progress uses $max.
//
// Completing an item is two single-document writes (item, then operation counters).
// Finalize only acts once processed_items has caught up with total_items, so a
// completion observed between the two writes cannot finalize with stale counters.
type MongoStore struct {
	ops   *mongo.Collection
	items *mongo.Collection
}

func NewMongoStore(db *database.MongodbDB) *MongoStore {
	return &MongoStore{
		ops:   db.DB.Collection("bulk_operations"),
		items: db.DB.Collection("bulk_operation_items"),
	}
}

// EnsureIndexes creates the indexes the claim and listing queries rely on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.items.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "bulk_operation_id", Value: 1}, {Key: "status", Value: 1}, {Key: "seq", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("item indexes: %w", err)
	}
	_, err = s.ops.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "scheduled_for", Value: 1}}},
		{Keys: bson.D{{Key: "rollback_of", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("operation indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) CreateOperation(ctx context.Context, op *BulkOperation, items []*BulkOperationItem) error {
	if op.ID == "" {
		op.ID = primitive.NewObjectID().Hex()
	}
	docs := make([]interface{}, 0, len(items))
	for _, it := range items {
		if it.ID == "" {
			it.ID = primitive.NewObjectID().Hex()
		}
		it.BulkOperationID = op.ID
		docs = append(docs, it)
	}

	if _, err := s.ops.InsertOne(ctx, op); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	if _, err := s.items.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false)); err != nil {
		_, _ = s.ops.DeleteOne(context.WithoutCancel(ctx), bson.M{"_id": op.ID})
		_, _ = s.items.DeleteMany(context.WithoutCancel(ctx), bson.M{"bulk_operation_id": op.ID})
		return err
	}
	return nil
}

func (s *MongoStore) GetOperation(ctx context.Context, id string) (*BulkOperation, error) {
	var op BulkOperation
	err := s.ops.FindOne(ctx, bson.M{"_id": id}).Decode(&op)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

func listQuery(f ListFilter) bson.M {
	query := bson.M{}
	if f.Status != "" {
		query["status"] = f.Status
	}
	if f.OperationType != "" {
		query["operation_type"] = f.OperationType
	}
	if f.Initiator != "" {
		query["initiator"] = f.Initiator
	}
	if f.RollbackOf != "" {
		query["rollback_of"] = f.RollbackOf
	}
	return query
}

func (s *MongoStore) ListOperations(ctx context.Context, f ListFilter) ([]BulkOperation, int64, error) {
	query := listQuery(f)
	total, err := s.ops.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if f.Offset > 0 {
		opts.SetSkip(f.Offset)
	}
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}
	cursor, err := s.ops.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	ops := make([]BulkOperation, 0)
	if err := cursor.All(ctx, &ops); err != nil {
		return nil, 0, err
	}
	return ops, total, nil
}

func runnableQuery(now time.Time) bson.M {
	return bson.M{
		"status": bson.M{"$in": []OperationStatus{StatusQueued, StatusProcessing}},
		"$or": bson.A{
			bson.M{"scheduled_for": nil},
			bson.M{"scheduled_for": bson.M{"$lte": now}},
		},
	}
}

func (s *MongoStore) ListRunnableOperations(ctx context.Context, now time.Time, limit int) ([]BulkOperation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.ops.Find(ctx, runnableQuery(now), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	ops := make([]BulkOperation, 0)
	if err := cursor.All(ctx, &ops); err != nil {
		return nil, err
	}
	return ops, nil
}

// transitionUpdate builds the update document of a status transition.
func transitionUpdate(to OperationStatus, p OperationPatch, now time.Time) bson.M {
	set := bson.M{"status": to, "updated_at": now}
	if p.CompletedAt != nil {
		set["completed_at"] = *p.CompletedAt
	}
	if p.ProcessingTimeMs != nil {
		set["processing_time_ms"] = *p.ProcessingTimeMs
	}
	if p.AvgItemTimeMs != nil {
		set["avg_item_time_ms"] = *p.AvgItemTimeMs
	}
	if p.CancelledBy != nil {
		set["cancelled_by"] = *p.CancelledBy
	}
	if p.CancellationReason != nil {
		set["cancellation_reason"] = *p.CancellationReason
	}

	update := bson.M{"$set": set}
	if p.StartedAt != nil {
		// keeps the first start if one is already recorded
		update["$min"] = bson.M{"started_at": *p.StartedAt}
	}
	if p.ProgressPercentage != nil {
		update["$max"] = bson.M{"progress_percentage": *p.ProgressPercentage}
	}
	return update
}

// missOrConflict classifies a conditional write that matched nothing.
func missOrConflict(ctx context.Context, coll *mongo.Collection, id string) error {
	n, err := coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrStatusConflict
}

func (s *MongoStore) TransitionOperation(ctx context.Context, id string, from []OperationStatus, to OperationStatus, patch OperationPatch) (*BulkOperation, error) {
	filter := bson.M{"_id": id, "status": bson.M{"$in": from}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var op BulkOperation
	err := s.ops.FindOneAndUpdate(ctx, filter, transitionUpdate(to, patch, time.Now()), opts).Decode(&op)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, missOrConflict(ctx, s.ops, id)
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

func (s *MongoStore) ApproveOperation(ctx context.Context, id, actor string, at time.Time) (*BulkOperation, error) {
	filter := bson.M{"_id": id, "status": StatusPending, "approved_at": nil}
	update := bson.M{"$set": bson.M{"approved_by": actor, "approved_at": at, "updated_at": time.Now()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var op BulkOperation
	err := s.ops.FindOneAndUpdate(ctx, filter, update, opts).Decode(&op)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, missOrConflict(ctx, s.ops, id)
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

func (s *MongoStore) LinkRollback(ctx context.Context, originalID, rollbackID string) error {
	filter := bson.M{
		"_id":           originalID,
		"is_reversible": true,
		"status":        StatusCompleted,
		"rolled_back":   false,
	}
	update := bson.M{
		"$set": bson.M{
			"rollback_operation_id": rollbackID,
			"rolled_back":           true,
			"updated_at":            time.Now(),
		},
		"$unset": bson.M{"rollback_pending_id": ""},
	}
	res, err := s.ops.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return missOrConflict(ctx, s.ops, originalID)
	}
	return nil
}

// reserveRollbackQuery matches an operation that may take a new rollback. A missing
// rollback_pending_id matches the null branch of $in.
func reserveRollbackQuery(originalID string) bson.M {
	return bson.M{
		"_id":                 originalID,
		"is_reversible":       true,
		"status":              StatusCompleted,
		"rolled_back":         false,
		"rollback_pending_id": bson.M{"$in": bson.A{nil, ""}},
	}
}

func (s *MongoStore) ReserveRollback(ctx context.Context, originalID, rollbackID string) error {
	res, err := s.ops.UpdateOne(ctx, reserveRollbackQuery(originalID), bson.M{"$set": bson.M{
		"rollback_pending_id": rollbackID,
		"updated_at":          time.Now(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return missOrConflict(ctx, s.ops, originalID)
	}
	return nil
}

func (s *MongoStore) ReleaseRollback(ctx context.Context, originalID, rollbackID string) error {
	_, err := s.ops.UpdateOne(ctx,
		bson.M{"_id": originalID, "rollback_pending_id": rollbackID},
		bson.M{"$unset": bson.M{"rollback_pending_id": ""}, "$set": bson.M{"updated_at": time.Now()}},
	)
	return err
}

func (s *MongoStore) FindRollbacks(ctx context.Context, originalID string) ([]BulkOperation, error) {
	ops, _, err := s.ListOperations(ctx, ListFilter{RollbackOf: originalID})
	return ops, err
}

func (s *MongoStore) SaveProgress(ctx context.Context, id string, p Progress) error {
	update := bson.M{
		"$max": bson.M{"progress_percentage": p.ProgressPercentage},
		"$set": bson.M{"avg_item_time_ms": p.AvgItemTimeMs, "updated_at": time.Now()},
	}
	res, err := s.ops.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteOperation(ctx context.Context, id string) error {
	res, err := s.ops.DeleteOne(ctx, bson.M{"_id": id, "status": bson.M{"$in": TerminalStatuses}})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return missOrConflict(ctx, s.ops, id)
	}
	_, err = s.items.DeleteMany(ctx, bson.M{"bulk_operation_id": id})
	return err
}

func (s *MongoStore) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	filter := bson.M{
		"status":     bson.M{"$in": TerminalStatuses},
		"updated_at": bson.M{"$lt": olderThan},
	}
	cursor, err := s.ops.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return 0, err
	}
	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	res, err := s.ops.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, err
	}
	if _, err := s.items.DeleteMany(ctx, bson.M{"bulk_operation_id": bson.M{"$in": ids}}); err != nil {
		return res.DeletedCount, err
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) ClaimItem(ctx context.Context, operationID string, now time.Time) (*BulkOperationItem, error) {
	filter := bson.M{
		"bulk_operation_id": operationID,
		"status":            ItemPending,
		"available_at":      bson.M{"$lte": now},
	}
	update := bson.M{"$set": bson.M{
		"status":     ItemProcessing,
		"started_at": now,
		"updated_at": now,
	}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "seq", Value: 1}}).
		SetReturnDocument(options.After)

	var item BulkOperationItem
	err := s.items.FindOneAndUpdate(ctx, filter, update, opts).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// counterField is the operation counter incremented for a terminal item status.
func counterField(status ItemStatus) (string, error) {
	switch status {
	case ItemSuccess:
		return "successful_items", nil
	case ItemFailed:
		return "failed_items", nil
	case ItemSkipped:
		return "skipped_items", nil
	}
	return "", fmt.Errorf("%w: %s is not a terminal item status", ErrStatusConflict, status)
}

func (s *MongoStore) CompleteItem(ctx context.Context, itemID string, c ItemCompletion) (*BulkOperation, error) {
	field, err := counterField(c.Status)
	if err != nil {
		return nil, err
	}

	set := bson.M{
		"status":             c.Status,
		"completed_at":       c.CompletedAt,
		"processing_time_ms": c.ProcessingTimeMs,
		"updated_at":         time.Now(),
	}
	if c.Result != nil {
		set["result"] = c.Result
	}
	if c.ErrorMessage != "" {
		set["error_message"] = c.ErrorMessage
	}

	var item BulkOperationItem
	err = s.items.FindOneAndUpdate(ctx,
		bson.M{"_id": itemID, "status": ItemProcessing},
		bson.M{"$set": set},
	).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, missOrConflict(ctx, s.items, itemID)
	}
	if err != nil {
		return nil, err
	}

	var op BulkOperation
	err = s.ops.FindOneAndUpdate(ctx,
		bson.M{"_id": item.BulkOperationID},
		bson.M{
			"$inc": bson.M{"processed_items": 1, field: 1},
			"$set": bson.M{"updated_at": time.Now()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&op)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

func (s *MongoStore) RequeueItem(ctx context.Context, itemID string, availableAt time.Time, lastError string) error {
	var item BulkOperationItem
	err := s.items.FindOneAndUpdate(ctx,
		bson.M{"_id": itemID, "status": ItemProcessing},
		bson.M{
			"$set": bson.M{
				"status":        ItemPending,
				"available_at":  availableAt,
				"error_message": lastError,
				"updated_at":    time.Now(),
			},
			"$inc": bson.M{"retry_count": 1},
		},
	).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return missOrConflict(ctx, s.items, itemID)
	}
	if err != nil {
		return err
	}

	_, err = s.ops.UpdateOne(ctx,
		bson.M{"_id": item.BulkOperationID},
		bson.M{"$inc": bson.M{"retry_count": 1}, "$set": bson.M{"updated_at": time.Now()}},
	)
	return err
}

func (s *MongoStore) ReleaseItem(ctx context.Context, itemID string) error {
	res, err := s.items.UpdateOne(ctx,
		bson.M{"_id": itemID, "status": ItemProcessing},
		bson.M{
			"$set":   bson.M{"status": ItemPending, "updated_at": time.Now()},
			"$unset": bson.M{"started_at": ""},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return missOrConflict(ctx, s.items, itemID)
	}
	return nil
}

func (s *MongoStore) CountActiveItems(ctx context.Context, operationID string) (int64, error) {
	return s.items.CountDocuments(ctx, bson.M{
		"bulk_operation_id": operationID,
		"status":            bson.M{"$in": []ItemStatus{ItemPending, ItemProcessing}},
	})
}

func reconcileQuery(id string, seen Counters) bson.M {
	return bson.M{
		"_id":              id,
		"status":           bson.M{"$in": []OperationStatus{StatusQueued, StatusProcessing}},
		"processed_items":  seen.Processed,
		"successful_items": seen.Successful,
		"failed_items":     seen.Failed,
		"skipped_items":    seen.Skipped,
	}
}

func (s *MongoStore) ReconcileCounters(ctx context.Context, id string, seen Counters) (*BulkOperation, error) {
	cursor, err := s.items.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"bulk_operation_id": id}}},
		{{Key: "$group", Value: bson.M{"_id": "$status", "n": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count items by status: %w", err)
	}
	var groups []struct {
		Status ItemStatus `bson:"_id"`
		N      int64      `bson:"n"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, err
	}
	byStatus := make(map[ItemStatus]int64, len(groups))
	for _, g := range groups {
		byStatus[g.Status] = g.N
	}
	c := Tally(byStatus, seen.Total)

	var op BulkOperation
	err = s.ops.FindOneAndUpdate(ctx, reconcileQuery(id, seen),
		bson.M{"$set": bson.M{
			"processed_items":  c.Processed,
			"successful_items": c.Successful,
			"failed_items":     c.Failed,
			"skipped_items":    c.Skipped,
			"updated_at":       time.Now(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&op)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, missOrConflict(ctx, s.ops, id)
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

func itemQuery(operationID string, f ItemFilter) bson.M {
	query := bson.M{"bulk_operation_id": operationID}
	if f.Status != "" {
		query["status"] = f.Status
	}
	return query
}

func (s *MongoStore) ListItems(ctx context.Context, operationID string, f ItemFilter) ([]BulkOperationItem, int64, error) {
	if n, err := s.ops.CountDocuments(ctx, bson.M{"_id": operationID}); err != nil {
		return nil, 0, err
	} else if n == 0 {
		return nil, 0, ErrNotFound
	}

	query := itemQuery(operationID, f)
	total, err := s.items.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	if f.Offset > 0 {
		opts.SetSkip(f.Offset)
	}
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}
	cursor, err := s.items.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	items := make([]BulkOperationItem, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
