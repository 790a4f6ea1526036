package notification

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationType string

const (
	NotificationTypeInfo    NotificationType = "info"
	NotificationTypeSuccess NotificationType = "success"
	NotificationTypeWarning NotificationType = "warning"
	NotificationTypeError   NotificationType = "error"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationTypeInfo, NotificationTypeSuccess, NotificationTypeWarning, NotificationTypeError:
		return true
	}
	return false
}

type Notification struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      string             `bson:"user_id" json:"user_id"`
	Title       string             `bson:"title" json:"title"`
	Message     string             `bson:"message" json:"message"`
	Type        NotificationType   `bson:"type" json:"type"`
	Link        string             `bson:"link,omitempty" json:"link,omitempty"`
	OperationID string             `bson:"operation_id,omitempty" json:"operation_id,omitempty"` // Bulk operation that sent it
	IsRead      bool               `bson:"is_read" json:"is_read"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	ReadAt      *time.Time         `bson:"read_at,omitempty" json:"read_at,omitempty"`
}
