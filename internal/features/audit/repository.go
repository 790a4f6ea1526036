package audit

import (
	"context"
	"sort"
	"sync"

	common_models "go-bulkops/internal/common/models"
	"go-bulkops/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type AuditRepository interface {
	Create(ctx context.Context, log common_models.AuditLog) error
	List(ctx context.Context, filters map[string]interface{}, limit, offset int64) ([]common_models.AuditLog, error)
}

type AuditRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewAuditRepository(mongodb *database.MongodbDB) AuditRepository {
	if !mongodb.Enabled() {
		return NewMemoryAuditRepository()
	}
	return &AuditRepositoryImpl{
		Collection: mongodb.DB.Collection("audit_logs"),
	}
}

func (r *AuditRepositoryImpl) Create(ctx context.Context, log common_models.AuditLog) error {
	_, err := r.Collection.InsertOne(ctx, log)
	return err
}

// buildQuery drops empty filter values so optional query params can be passed straight through.
func buildQuery(filters map[string]interface{}) bson.M {
	query := bson.M{}
	for k, v := range filters {
		if v == nil {
			continue
		}
		if str, ok := v.(string); ok && str == "" {
			continue
		}
		query[k] = v
	}
	return query
}

func (r *AuditRepositoryImpl) List(ctx context.Context, filters map[string]interface{}, limit, offset int64) ([]common_models.AuditLog, error) {
	opts := options.Find().SetLimit(limit).SetSkip(offset).SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}})

	cursor, err := r.Collection.Find(ctx, buildQuery(filters), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	logs := make([]common_models.AuditLog, 0)
	if err = cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// MemoryAuditRepository backs the audit trail when no Mongo store is configured.
type MemoryAuditRepository struct {
	mu   sync.RWMutex
	logs []common_models.AuditLog
}

func NewMemoryAuditRepository() *MemoryAuditRepository {
	return &MemoryAuditRepository{}
}

func (r *MemoryAuditRepository) Create(_ context.Context, log common_models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
	return nil
}

func (r *MemoryAuditRepository) List(_ context.Context, filters map[string]interface{}, limit, offset int64) ([]common_models.AuditLog, error) {
	query := buildQuery(filters)

	r.mu.RLock()
	matched := make([]common_models.AuditLog, 0)
	for _, log := range r.logs {
		if matches(log, query) {
			matched = append(matched, log)
		}
	}
	r.mu.RUnlock()

	// newest first, insertion order breaks ties
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if offset >= int64(len(matched)) {
		return []common_models.AuditLog{}, nil
	}
	end := int64(len(matched))
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], nil
}

func matches(log common_models.AuditLog, query bson.M) bool {
	for k, v := range query {
		var field string
		switch k {
		case "module":
			field = log.Module
		case "record_id":
			field = log.RecordID
		case "actor_id":
			field = log.ActorID
		case "action":
			field = string(log.Action)
		default:
			return false
		}
		if s, ok := v.(string); !ok || s != field {
			return false
		}
	}
	return true
}
