package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go-bulkops/internal/config"
	"go-bulkops/internal/features/bulk_operation"
	"go-bulkops/internal/features/record"
	"go-bulkops/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastExecutor_ValidateConfig(t *testing.T) {
	exec := NewBroadcastExecutor(NewNotificationService(NewMemoryNotificationRepository()), record.NewMemoryRecordRepository())
	validator, ok := exec.(bulk_operation.ConfigValidator)
	require.True(t, ok)
	assert.True(t, exec.Definition().ApprovalRequired)

	tests := []struct {
		name    string
		config  map[string]interface{}
		wantErr bool
	}{
		{"complete", map[string]interface{}{"title": "Maintenance", "message": "Tonight"}, false},
		{"typed", map[string]interface{}{"title": "t", "message": "m", "type": "warning"}, false},
		{"missing title", map[string]interface{}{"message": "m"}, true},
		{"missing message", map[string]interface{}{"title": "t"}, true},
		{"unknown type", map[string]interface{}{"title": "t", "message": "m", "type": "sms"}, true},
		{"non string type", map[string]interface{}{"title": "t", "message": "m", "type": 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateConfig(nil, tt.config)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBroadcastExecutor_Execute(t *testing.T) {
	users := record.NewMemoryRecordRepository()
	user, err := users.Create(context.Background(), "users", map[string]any{"email": "a@example.com"}, "seed")
	require.NoError(t, err)

	service := NewNotificationService(NewMemoryNotificationRepository())
	exec := NewBroadcastExecutor(service, users)
	ctx := context.Background()

	req := bulk_operation.ExecutionRequest{
		OperationID:   "op-1",
		OperationType: TypeBroadcast,
		TargetID:      user.ID,
		TargetType:    "users",
		Configuration: map[string]interface{}{"title": "Maintenance", "message": "Tonight at 10"},
	}

	out := exec.Execute(ctx, req)
	require.Equal(t, bulk_operation.OutcomeSuccess, out.Kind)
	assert.NotEmpty(t, out.Result["notification_id"])

	// Redelivery of the same item.
	out = exec.Execute(ctx, req)
	require.Equal(t, bulk_operation.OutcomeSuccess, out.Kind)
	assert.Equal(t, true, out.Result["duplicate"])

	list, total, err := service.GetUserNotifications(ctx, user.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, NotificationTypeInfo, list[0].Type)
	assert.Equal(t, "op-1", list[0].OperationID)

	req.TargetID = "ghost"
	out = exec.Execute(ctx, req)
	assert.Equal(t, bulk_operation.OutcomeSkip, out.Kind)
}

func TestNotificationService_ReadState(t *testing.T) {
	repo := NewMemoryNotificationRepository()
	service := NewNotificationService(repo).(*NotificationServiceImpl)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	service.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	ctx := context.Background()

	first := &Notification{UserID: "u1", Title: "first"}
	second := &Notification{UserID: "u1", Title: "second"}
	_, err := service.Send(ctx, first)
	require.NoError(t, err)
	_, err = service.Send(ctx, second)
	require.NoError(t, err)
	_, err = service.Send(ctx, &Notification{UserID: "u2", Title: "other"})
	require.NoError(t, err)
	_, err = service.Send(ctx, &Notification{Title: "nobody"})
	assert.Error(t, err)

	list, _, err := service.GetUserNotifications(ctx, "u1", 1, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Title, "newest first")

	count, err := service.GetUnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, service.MarkAsRead(ctx, first.ID.Hex(), "u1"))
	assert.ErrorIs(t, service.MarkAsRead(ctx, first.ID.Hex(), "u2"), ErrNotificationNotFound)
	assert.ErrorIs(t, service.MarkAsRead(ctx, "not-an-id", "u1"), ErrNotificationNotFound)

	count, err = service.GetUnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, service.MarkAllAsRead(ctx, "u1"))
	count, err = service.GetUnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = service.GetUnreadCount(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestNotificationApi(t *testing.T) {
	service := NewNotificationService(NewMemoryNotificationRepository())
	n := &Notification{UserID: middleware.DevActorID, Title: "hello", OperationID: "op-1"}
	_, err := service.Send(context.Background(), n)
	require.NoError(t, err)

	app := fiber.New()
	NewNotificationApi(NewNotificationController(service), &config.Config{SkipAuth: true}).Setup(app)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/notifications/unread-count", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var count struct {
		Count int64 `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&count))
	assert.Equal(t, int64(1), count.Count)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/notifications/operations/op-1", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var delivered Notification
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&delivered))
	assert.Equal(t, "hello", delivered.Title)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/notifications/operations/op-2", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPut, "/api/notifications/"+n.ID.Hex()+"/read", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPut, "/api/notifications/ffffffffffffffffffffffff/read", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/notifications/", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page struct {
		Data  []Notification `json:"data"`
		Total int64          `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Data, 1)
	assert.True(t, page.Data[0].IsRead)
}
