package notification

import (
	"context"
	"errors"
	"fmt"

	"go-bulkops/internal/features/bulk_operation"
	"go-bulkops/internal/features/record"
)

const TypeBroadcast = "notification_broadcast"

// BroadcastExecutor sends one in-app notification per target user.
type BroadcastExecutor struct {
	service NotificationService
	users   record.RecordRepository
}

func NewBroadcastExecutor(service NotificationService, users record.RecordRepository) bulk_operation.ItemExecutor {
	return &BroadcastExecutor{service: service, users: users}
}

func (e *BroadcastExecutor) Definition() bulk_operation.OperationDefinition {
	return bulk_operation.OperationDefinition{
		Type:             TypeBroadcast,
		ApprovalRequired: true,
		TargetIDKind:     bulk_operation.IDKindString,
		RetryFailed:      true,
		MaxRetries:       5,
		Description:      "Send an in-app notification to each target user",
	}
}

func (e *BroadcastExecutor) ValidateConfig(_ *string, config map[string]interface{}) error {
	for _, key := range []string{"title", "message"} {
		if v, _ := config[key].(string); v == "" {
			return fmt.Errorf("%s is required", key)
		}
	}
	if raw, ok := config["type"]; ok {
		t, _ := raw.(string)
		if !NotificationType(t).Valid() {
			return fmt.Errorf("unknown notification type %v", raw)
		}
	}
	return nil
}

func (e *BroadcastExecutor) Execute(ctx context.Context, req bulk_operation.ExecutionRequest) bulk_operation.Outcome {
	if _, err := e.users.Get(ctx, req.TargetType, req.TargetID); err != nil {
		if errors.Is(err, record.ErrRecordNotFound) {
			return bulk_operation.Skip("unknown user")
		}
		return bulk_operation.Failure(err, true)
	}

	n := &Notification{
		UserID:      req.TargetID,
		Title:       req.ConfigString("title"),
		Message:     req.ConfigString("message"),
		Type:        NotificationType(req.ConfigString("type")),
		Link:        req.ConfigString("link"),
		OperationID: req.OperationID,
	}
	created, err := e.service.Send(ctx, n)
	if err != nil {
		return bulk_operation.Failure(err, true)
	}

	// A redelivered item finds the notification already sent.
	result := map[string]interface{}{"delivered": true}
	if created {
		result["notification_id"] = n.ID.Hex()
	} else {
		result["duplicate"] = true
	}
	return bulk_operation.Success(result)
}
