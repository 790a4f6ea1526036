package bulk_operation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go-bulkops/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupApp(h *harness) *fiber.App {
	app := fiber.New()
	controller := NewBulkOperationController(h.service, zap.NewNop())
	stream := NewProgressStream(h.service, zap.NewNop())
	NewBulkOperationApi(controller, stream, &config.Config{SkipAuth: true}).Setup(app)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func createBody(opType string, ids ...string) map[string]interface{} {
	if ids == nil {
		ids = []string{}
	}
	return map[string]interface{}{
		"operation_type":     opType,
		"target_entity_type": "applications",
		"selection_criteria": map[string]interface{}{"ids": ids},
	}
}

func TestController_CreateAndGet(t *testing.T) {
	h := newHarness(t, PoolConfig{}, newStub(OperationDefinition{Type: "application_approval"}, nil))
	app := setupApp(h)

	resp, body := doJSON(t, app, http.MethodPost, "/api/bulk-operations", createBody("application_approval", "a", "b"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "queued", body["status"])
	assert.Equal(t, float64(2), body["total_items"])
	assert.Equal(t, false, body["approval_required"])

	id, _ := body["operation_id"].(string)
	require.NotEmpty(t, id)

	op := h.get(t, id)
	assert.Equal(t, "dev-admin-id", op.Initiator)

	resp, body = doJSON(t, app, http.MethodGet, "/api/bulk-operations/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, body["id"])
	assert.Equal(t, "application_approval", body["operation_type"])

	resp, body = doJSON(t, app, http.MethodGet, "/api/bulk-operations?status=queued", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total"])
}

func TestController_CreateErrors(t *testing.T) {
	h := newHarness(t, PoolConfig{}, newStub(OperationDefinition{Type: "application_approval"}, nil))
	app := setupApp(h)

	tests := []struct {
		name     string
		body     interface{}
		wantCode string
	}{
		{"unknown type", createBody("no_such_type", "a"), "InvalidOperationType"},
		{"empty selection", createBody("application_approval"), "EmptySelection"},
		{"bad operation type format", createBody("Not-Snake", "a"), "InvalidRequest"},
		{"missing selection", map[string]interface{}{"operation_type": "application_approval", "target_entity_type": "applications"}, "InvalidRequest"},
		{
			"max retries out of range",
			map[string]interface{}{
				"operation_type":     "application_approval",
				"target_entity_type": "applications",
				"selection_criteria": map[string]interface{}{"ids": []string{"a"}},
				"max_retries":        50,
			},
			"InvalidRequest",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, app, http.MethodPost, "/api/bulk-operations", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.wantCode, body["code"])
		})
	}
}

func TestController_NotFound(t *testing.T) {
	h := newHarness(t, PoolConfig{}, newStub(OperationDefinition{Type: "application_approval"}, nil))
	app := setupApp(h)

	for _, path := range []string{"/api/bulk-operations/missing", "/api/bulk-operations/missing/items"} {
		resp, body := doJSON(t, app, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		assert.Equal(t, "NotFound", body["code"], path)
	}
}

func TestController_ApprovalFlow(t *testing.T) {
	h := newHarness(t, PoolConfig{}, newStub(OperationDefinition{Type: "notification_broadcast", ApprovalRequired: true}, nil))
	app := setupApp(h)

	resp, body := doJSON(t, app, http.MethodPost, "/api/bulk-operations", createBody("notification_broadcast", "u1"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, true, body["approval_required"])
	id := body["operation_id"].(string)

	resp, body = doJSON(t, app, http.MethodPost, "/api/bulk-operations/"+id+"/enqueue", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "ApprovalRequired", body["code"])

	resp, body = doJSON(t, app, http.MethodPost, "/api/bulk-operations/"+id+"/approve", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "queued", body["status"])
	assert.Equal(t, "dev-admin-id", body["approved_by"])
}

func TestController_CancelAndDelete(t *testing.T) {
	h := newHarness(t, PoolConfig{}, newStub(OperationDefinition{Type: "application_approval"}, nil))
	app := setupApp(h)
	op := h.create(t, "application_approval", "a", "b")

	resp, _ := doJSON(t, app, http.MethodDelete, "/api/bulk-operations/"+op.ID, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "active operations cannot be deleted")

	resp, body := doJSON(t, app, http.MethodPost, "/api/bulk-operations/"+op.ID+"/cancel", map[string]string{"reason": "typo in selection"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cancelled", body["status"])
	assert.Equal(t, "typo in selection", body["cancellation_reason"])

	resp, body = doJSON(t, app, http.MethodPost, "/api/bulk-operations/"+op.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "InvalidTransition", body["code"])

	resp, _ = doJSON(t, app, http.MethodDelete, "/api/bulk-operations/"+op.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodGet, "/api/bulk-operations/"+op.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestController_Rollback(t *testing.T) {
	assign, unassign := reversiblePair(nil)
	h := newHarness(t, PoolConfig{}, assign, unassign)
	app := setupApp(h)

	op := h.create(t, "property_assignment", "a", "b", "c")
	resp, body := doJSON(t, app, http.MethodPost, "/api/bulk-operations/"+op.ID+"/rollback", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "NotReversible", body["code"])

	h.drain(t)

	resp, body = doJSON(t, app, http.MethodPost, "/api/bulk-operations/"+op.ID+"/rollback", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), body["total_items"])
	assert.NotEmpty(t, body["rollback_operation_id"])
}

func TestController_ItemsAndExport(t *testing.T) {
	exec := newStub(OperationDefinition{Type: "application_approval"}, func(_ context.Context, req ExecutionRequest) Outcome {
		if req.TargetID == "b" {
			return Failure(errors.New("locked"), false)
		}
		return Success(nil)
	})
	h := newHarness(t, PoolConfig{}, exec)
	app := setupApp(h)
	op := h.create(t, "application_approval", "a", "b", "c")
	h.drain(t)

	resp, body := doJSON(t, app, http.MethodGet, "/api/bulk-operations/"+op.ID+"/items?status=failed", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total"])
	data := body["data"].([]interface{})
	require.Len(t, data, 1)
	assert.Equal(t, "b", data[0].(map[string]interface{})["target_id"])

	resp, body = doJSON(t, app, http.MethodGet, "/api/bulk-operations/"+op.ID+"/items?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "InvalidSelection", body["code"])

	resp, _ = doJSON(t, app, http.MethodGet, "/api/bulk-operations/"+op.ID+"/items/export", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), op.ID)
}

func TestController_ListTypes(t *testing.T) {
	assign, unassign := reversiblePair(nil)
	h := newHarness(t, PoolConfig{}, assign, unassign)
	app := setupApp(h)

	req := httptest.NewRequest(http.MethodGet, "/api/bulk-operations/types", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var defs []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&defs))
	require.Len(t, defs, 2)
	assert.Equal(t, "property_assignment", defs[0]["type"])
	assert.Equal(t, "property_unassignment", defs[0]["inverse_type"])
}

func TestController_StreamRequiresUpgrade(t *testing.T) {
	h := newHarness(t, PoolConfig{}, newStub(OperationDefinition{Type: "application_approval"}, nil))
	app := setupApp(h)

	resp, _ := doJSON(t, app, http.MethodGet, "/api/bulk-operations/some-id/ws", nil)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestController_RequiresAuth(t *testing.T) {
	h := newHarness(t, PoolConfig{}, newStub(OperationDefinition{Type: "application_approval"}, nil))
	app := fiber.New()
	controller := NewBulkOperationController(h.service, zap.NewNop())
	NewBulkOperationApi(controller, NewProgressStream(h.service, zap.NewNop()), &config.Config{}).Setup(app)

	resp, _ := doJSON(t, app, http.MethodGet, "/api/bulk-operations", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
