package notification

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationService interface {
	Send(ctx context.Context, n *Notification) (bool, error)
	GetUserNotifications(ctx context.Context, userID string, page, limit int64) ([]Notification, int64, error)
	// GetForOperation returns what a bulk broadcast delivered to userID.
	GetForOperation(ctx context.Context, operationID, userID string) (*Notification, error)
	GetUnreadCount(ctx context.Context, userID string) (int64, error)
	MarkAsRead(ctx context.Context, id string, userID string) error
	MarkAllAsRead(ctx context.Context, userID string) error
}

type NotificationServiceImpl struct {
	repo NotificationRepository
	now  func() time.Time
}

func NewNotificationService(repo NotificationRepository) NotificationService {
	return &NotificationServiceImpl{repo: repo, now: time.Now}
}

func (s *NotificationServiceImpl) Send(ctx context.Context, n *Notification) (bool, error) {
	if n.UserID == "" {
		return false, fmt.Errorf("user_id is required")
	}
	if n.Type == "" {
		n.Type = NotificationTypeInfo
	}
	n.IsRead = false
	n.CreatedAt = s.now()
	return s.repo.Create(ctx, n)
}

func (s *NotificationServiceImpl) GetUserNotifications(ctx context.Context, userID string, page, limit int64) ([]Notification, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	return s.repo.ListByUser(ctx, userID, limit, (page-1)*limit)
}

func (s *NotificationServiceImpl) GetForOperation(ctx context.Context, operationID, userID string) (*Notification, error) {
	return s.repo.FindByOperation(ctx, operationID, userID)
}

func (s *NotificationServiceImpl) GetUnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *NotificationServiceImpl) MarkAsRead(ctx context.Context, id string, userID string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotificationNotFound
	}
	return s.repo.MarkAsRead(ctx, oid, userID, s.now())
}

func (s *NotificationServiceImpl) MarkAllAsRead(ctx context.Context, userID string) error {
	return s.repo.MarkAllAsRead(ctx, userID, s.now())
}
