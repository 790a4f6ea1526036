package record

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go-bulkops/internal/common/models"
	"go-bulkops/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrRecordNotFound = errors.New("record not found")

type RecordRepository interface {
	Create(ctx context.Context, entity string, data map[string]any, actor string) (*models.EntityRecord, error)
	Get(ctx context.Context, entity, id string) (*models.EntityRecord, error)
	List(ctx context.Context, entity string, filter map[string]any, limit, offset int64) ([]models.EntityRecord, error)
	Count(ctx context.Context, entity string, filter map[string]any) (int64, error)
	Update(ctx context.Context, entity, id string, data map[string]any, actor string) (*models.EntityRecord, error)
	Delete(ctx context.Context, entity, id string, actor string) error
}

type RecordRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewRecordRepository(mongodb *database.MongodbDB) RecordRepository {
	if !mongodb.Enabled() {
		return NewMemoryRecordRepository()
	}
	return &RecordRepositoryImpl{
		Collection: mongodb.DB.Collection("entity_records"),
	}
}

// buildQuery scopes a user filter to one entity. Non-system keys address fields under data.
func buildQuery(entity string, filter map[string]any) bson.M {
	baseQuery := bson.M{
		"entity":  entity,
		"deleted": bson.M{"$ne": true},
	}

	userQuery := bson.M{}
	for k, v := range filter {
		if k == "_id" || k == "created_at" || k == "updated_at" || k == "created_by" || k == "updated_by" {
			userQuery[k] = v
		} else {
			userQuery["data."+k] = v
		}
	}
	if len(userQuery) == 0 {
		return baseQuery
	}
	return bson.M{"$and": []bson.M{baseQuery, userQuery}}
}

func (r *RecordRepositoryImpl) Create(ctx context.Context, entity string, data map[string]any, actor string) (*models.EntityRecord, error) {
	now := time.Now()
	record := models.EntityRecord{
		ID:        primitive.NewObjectID().Hex(),
		Entity:    entity,
		Data:      data,
		CreatedBy: actor,
		UpdatedBy: actor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if record.Data == nil {
		record.Data = map[string]any{}
	}

	if _, err := r.Collection.InsertOne(ctx, record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *RecordRepositoryImpl) Get(ctx context.Context, entity, id string) (*models.EntityRecord, error) {
	var record models.EntityRecord
	err := r.Collection.FindOne(ctx, bson.M{"_id": id, "entity": entity, "deleted": bson.M{"$ne": true}}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *RecordRepositoryImpl) List(ctx context.Context, entity string, filter map[string]any, limit, offset int64) ([]models.EntityRecord, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		findOptions.SetLimit(limit)
	}
	if offset > 0 {
		findOptions.SetSkip(offset)
	}

	cursor, err := r.Collection.Find(ctx, buildQuery(entity, filter), findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	records := make([]models.EntityRecord, 0)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *RecordRepositoryImpl) Count(ctx context.Context, entity string, filter map[string]any) (int64, error) {
	return r.Collection.CountDocuments(ctx, buildQuery(entity, filter))
}

func (r *RecordRepositoryImpl) Update(ctx context.Context, entity, id string, data map[string]any, actor string) (*models.EntityRecord, error) {
	updateSet := bson.M{
		"updated_at": time.Now(),
		"updated_by": actor,
	}
	unset := bson.M{}
	for k, v := range data {
		if v == nil {
			unset["data."+k] = ""
			continue
		}
		updateSet["data."+k] = v
	}
	update := bson.M{"$set": updateSet}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var record models.EntityRecord
	err := r.Collection.FindOneAndUpdate(ctx, bson.M{"_id": id, "entity": entity, "deleted": bson.M{"$ne": true}}, update, opts).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update record: %w", err)
	}
	return &record, nil
}

func (r *RecordRepositoryImpl) Delete(ctx context.Context, entity, id string, actor string) error {
	update := bson.M{
		"$set": bson.M{
			"deleted":    true,
			"deleted_at": time.Now(),
			"updated_by": actor,
		},
	}

	res, err := r.Collection.UpdateOne(ctx, bson.M{"_id": id, "entity": entity, "deleted": bson.M{"$ne": true}}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// MemoryRecordRepository keeps records in process. Filters match by equality on data fields.
type MemoryRecordRepository struct {
	mu      sync.RWMutex
	records map[string]*models.EntityRecord
	seq     map[string]int
	next    int
}

func NewMemoryRecordRepository() *MemoryRecordRepository {
	return &MemoryRecordRepository{
		records: make(map[string]*models.EntityRecord),
		seq:     make(map[string]int),
	}
}

func copyRecord(rec *models.EntityRecord) *models.EntityRecord {
	c := *rec
	c.Data = make(map[string]any, len(rec.Data))
	for k, v := range rec.Data {
		c.Data[k] = v
	}
	return &c
}

func (r *MemoryRecordRepository) Create(_ context.Context, entity string, data map[string]any, actor string) (*models.EntityRecord, error) {
	now := time.Now()
	rec := &models.EntityRecord{
		ID:        primitive.NewObjectID().Hex(),
		Entity:    entity,
		Data:      data,
		CreatedBy: actor,
		UpdatedBy: actor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	stored := copyRecord(rec)

	r.mu.Lock()
	r.records[rec.ID] = stored
	r.seq[rec.ID] = r.next
	r.next++
	r.mu.Unlock()
	return copyRecord(stored), nil
}

func (r *MemoryRecordRepository) lookup(entity, id string) (*models.EntityRecord, bool) {
	rec, ok := r.records[id]
	if !ok || rec.Entity != entity || rec.Deleted {
		return nil, false
	}
	return rec, true
}

func (r *MemoryRecordRepository) Get(_ context.Context, entity, id string) (*models.EntityRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.lookup(entity, id)
	if !ok {
		return nil, ErrRecordNotFound
	}
	return copyRecord(rec), nil
}

func (r *MemoryRecordRepository) matching(entity string, filter map[string]any) []*models.EntityRecord {
	out := make([]*models.EntityRecord, 0)
	for _, rec := range r.records {
		if rec.Entity != entity || rec.Deleted {
			continue
		}
		ok := true
		for k, want := range filter {
			var got any
			switch k {
			case "_id":
				got = rec.ID
			case "created_by":
				got = rec.CreatedBy
			case "updated_by":
				got = rec.UpdatedBy
			default:
				got = rec.Data[k]
			}
			if fmt.Sprint(got) != fmt.Sprint(want) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.seq[out[i].ID] < r.seq[out[j].ID] })
	return out
}

func (r *MemoryRecordRepository) List(_ context.Context, entity string, filter map[string]any, limit, offset int64) ([]models.EntityRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := r.matching(entity, filter)
	if offset < 0 {
		offset = 0
	}
	if offset >= int64(len(matched)) {
		return []models.EntityRecord{}, nil
	}
	end := int64(len(matched))
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	records := make([]models.EntityRecord, 0, end-offset)
	for _, rec := range matched[offset:end] {
		records = append(records, *copyRecord(rec))
	}
	return records, nil
}

func (r *MemoryRecordRepository) Count(_ context.Context, entity string, filter map[string]any) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.matching(entity, filter))), nil
}

func (r *MemoryRecordRepository) Update(_ context.Context, entity, id string, data map[string]any, actor string) (*models.EntityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.lookup(entity, id)
	if !ok {
		return nil, ErrRecordNotFound
	}
	if rec.Data == nil {
		rec.Data = map[string]any{}
	}
	for k, v := range data {
		if v == nil {
			delete(rec.Data, k)
			continue
		}
		rec.Data[k] = v
	}
	rec.UpdatedBy = actor
	rec.UpdatedAt = time.Now()
	return copyRecord(rec), nil
}

func (r *MemoryRecordRepository) Delete(_ context.Context, entity, id string, actor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.lookup(entity, id)
	if !ok {
		return ErrRecordNotFound
	}
	now := time.Now()
	rec.Deleted = true
	rec.DeletedAt = &now
	rec.UpdatedBy = actor
	return nil
}
