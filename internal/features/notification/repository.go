package notification

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go-bulkops/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrNotificationNotFound = errors.New("notification not found")

type NotificationRepository interface {
	// Create stores n. It reports created=false when the operation already notified this user.
	Create(ctx context.Context, n *Notification) (created bool, err error)
	ListByUser(ctx context.Context, userID string, limit, offset int64) ([]Notification, int64, error)
	FindByOperation(ctx context.Context, operationID, userID string) (*Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkAsRead(ctx context.Context, id primitive.ObjectID, userID string, at time.Time) error
	MarkAllAsRead(ctx context.Context, userID string, at time.Time) error
}

type NotificationRepositoryImpl struct {
	collection *mongo.Collection
}

func NewNotificationRepository(mongodb *database.MongodbDB) NotificationRepository {
	if !mongodb.Enabled() {
		return NewMemoryNotificationRepository()
	}
	return &NotificationRepositoryImpl{collection: mongodb.DB.Collection("notifications")}
}

// EnsureIndexes makes per-operation delivery idempotent.
func (r *NotificationRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{
			Keys: bson.D{{Key: "operation_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{
				"operation_id": bson.M{"$exists": true},
			}),
		},
	})
	return err
}

func (r *NotificationRepositoryImpl) Create(ctx context.Context, n *Notification) (bool, error) {
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	_, err := r.collection.InsertOne(ctx, n)
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *NotificationRepositoryImpl) ListByUser(ctx context.Context, userID string, limit, offset int64) ([]Notification, int64, error) {
	filter := bson.M{"user_id": userID}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit).SetSkip(offset)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	notifications := make([]Notification, 0)
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, 0, err
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return notifications, total, nil
}

func (r *NotificationRepositoryImpl) FindByOperation(ctx context.Context, operationID, userID string) (*Notification, error) {
	var n Notification
	err := r.collection.FindOne(ctx, bson.M{"operation_id": operationID, "user_id": userID}).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepositoryImpl) CountUnread(ctx context.Context, userID string) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"user_id": userID, "is_read": false})
}

func (r *NotificationRepositoryImpl) MarkAsRead(ctx context.Context, id primitive.ObjectID, userID string, at time.Time) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "user_id": userID},
		bson.M{"$set": bson.M{"is_read": true, "read_at": at}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *NotificationRepositoryImpl) MarkAllAsRead(ctx context.Context, userID string, at time.Time) error {
	_, err := r.collection.UpdateMany(ctx,
		bson.M{"user_id": userID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true, "read_at": at}},
	)
	return err
}

type MemoryNotificationRepository struct {
	mu            sync.Mutex
	notifications []*Notification
}

func NewMemoryNotificationRepository() *MemoryNotificationRepository {
	return &MemoryNotificationRepository{}
}

func (r *MemoryNotificationRepository) Create(_ context.Context, n *Notification) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n.OperationID != "" {
		for _, existing := range r.notifications {
			if existing.OperationID == n.OperationID && existing.UserID == n.UserID {
				return false, nil
			}
		}
	}
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	stored := *n
	r.notifications = append(r.notifications, &stored)
	return true, nil
}

func (r *MemoryNotificationRepository) ListByUser(_ context.Context, userID string, limit, offset int64) ([]Notification, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]Notification, 0)
	for i := len(r.notifications) - 1; i >= 0; i-- {
		if r.notifications[i].UserID == userID {
			matched = append(matched, *r.notifications[i])
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	if offset >= total {
		return []Notification{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}

func (r *MemoryNotificationRepository) FindByOperation(_ context.Context, operationID, userID string) (*Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range r.notifications {
		if operationID != "" && n.OperationID == operationID && n.UserID == userID {
			found := *n
			return &found, nil
		}
	}
	return nil, ErrNotificationNotFound
}

func (r *MemoryNotificationRepository) CountUnread(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for _, n := range r.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *MemoryNotificationRepository) MarkAsRead(_ context.Context, id primitive.ObjectID, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range r.notifications {
		if n.ID == id && n.UserID == userID {
			n.IsRead = true
			n.ReadAt = &at
			return nil
		}
	}
	return ErrNotificationNotFound
}

func (r *MemoryNotificationRepository) MarkAllAsRead(_ context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range r.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			readAt := at
			n.ReadAt = &readAt
		}
	}
	return nil
}
