package record

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	common_models "go-bulkops/internal/common/models"
	"go-bulkops/internal/config"
	"go-bulkops/internal/features/audit"
	"go-bulkops/internal/features/bulk_operation"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type capturedChange struct {
	Action   common_models.AuditAction
	RecordID string
	Actor    string
	Changes  map[string]common_models.Change
}

type MockAuditService struct {
	Logged []capturedChange
}

func (m *MockAuditService) LogChange(ctx context.Context, action common_models.AuditAction, module string, recordID string, changes map[string]common_models.Change) error {
	m.Logged = append(m.Logged, capturedChange{
		Action:   action,
		RecordID: recordID,
		Actor:    audit.ActorFromContext(ctx),
		Changes:  changes,
	})
	return nil
}

func (m *MockAuditService) ListLogs(ctx context.Context, filters map[string]interface{}, page, limit int64) ([]common_models.AuditLog, error) {
	return []common_models.AuditLog{}, nil
}

type failingRepo struct {
	RecordRepository
}

func (failingRepo) List(ctx context.Context, entity string, filter map[string]any, limit, offset int64) ([]common_models.EntityRecord, error) {
	return nil, errors.New("connection reset")
}

func TestBuildQuery(t *testing.T) {
	q := buildQuery("applications", nil)
	assert.Equal(t, bson.M{"entity": "applications", "deleted": bson.M{"$ne": true}}, q)

	q = buildQuery("applications", map[string]any{"status": "submitted", "created_by": "u1"})
	and, ok := q["$and"].([]bson.M)
	require.True(t, ok)
	require.Len(t, and, 2)
	assert.Equal(t, "submitted", and[1]["data.status"])
	assert.Equal(t, "u1", and[1]["created_by"])
	_, prefixed := and[1]["data.created_by"]
	assert.False(t, prefixed)
}

func TestNormalizeID(t *testing.T) {
	oid := primitive.NewObjectID()
	tests := []struct {
		name    string
		in      interface{}
		want    string
		wantErr bool
	}{
		{"string", "abc", "abc", false},
		{"empty string", "", "", true},
		{"float", float64(42), "42", false},
		{"large float", float64(12345678901), "12345678901", false},
		{"int", 7, "7", false},
		{"json number", json.Number("99"), "99", false},
		{"object id", oid, oid.Hex(), false},
		{"bool", true, "", true},
		{"nil", nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeID(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseInt64(t *testing.T) {
	assert.Equal(t, int64(5), ParseInt64(nil, 5))
	assert.Equal(t, int64(12), ParseInt64("12", 5))
	assert.Equal(t, int64(5), ParseInt64("twelve", 5))
	assert.Equal(t, int64(3), ParseInt64(float64(3), 5))
	assert.Equal(t, int64(8), ParseInt64(json.Number("8"), 5))
}

func TestMemoryRecordRepository(t *testing.T) {
	repo := NewMemoryRecordRepository()
	ctx := context.Background()

	a, err := repo.Create(ctx, "applications", map[string]any{"status": "submitted"}, "u1")
	require.NoError(t, err)
	b, err := repo.Create(ctx, "applications", map[string]any{"status": "approved"}, "u1")
	require.NoError(t, err)
	_, err = repo.Create(ctx, "properties", map[string]any{"status": "submitted"}, "u1")
	require.NoError(t, err)
	assert.True(t, primitive.IsValidObjectID(a.ID))

	records, err := repo.List(ctx, "applications", nil, 0, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, a.ID, records[0].ID)
	assert.Equal(t, b.ID, records[1].ID)

	submitted, err := repo.List(ctx, "applications", map[string]any{"status": "submitted"}, 0, 0)
	require.NoError(t, err)
	require.Len(t, submitted, 1)
	assert.Equal(t, a.ID, submitted[0].ID)

	page, err := repo.List(ctx, "applications", nil, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, b.ID, page[0].ID)

	updated, err := repo.Update(ctx, "applications", a.ID, map[string]any{"status": "approved", "note": "ok"}, "u2")
	require.NoError(t, err)
	assert.Equal(t, "approved", updated.Data["status"])
	assert.Equal(t, "u2", updated.UpdatedBy)

	updated, err = repo.Update(ctx, "applications", a.ID, map[string]any{"note": nil}, "u2")
	require.NoError(t, err)
	_, hasNote := updated.Data["note"]
	assert.False(t, hasNote)

	// Returned records are copies.
	updated.Data["status"] = "mutated"
	fresh, err := repo.Get(ctx, "applications", a.ID)
	require.NoError(t, err)
	assert.Equal(t, "approved", fresh.Data["status"])

	_, err = repo.Get(ctx, "properties", a.ID)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	require.NoError(t, repo.Delete(ctx, "applications", a.ID, "u3"))
	_, err = repo.Get(ctx, "applications", a.ID)
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "applications", a.ID, "u3"), ErrRecordNotFound)
	_, err = repo.Update(ctx, "applications", a.ID, map[string]any{"x": 1}, "u3")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	count, err := repo.Count(ctx, "applications", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRecordService_AuditsChanges(t *testing.T) {
	mockAudit := &MockAuditService{}
	service := NewRecordService(NewMemoryRecordRepository(), mockAudit)
	ctx := context.Background()

	rec, err := service.CreateRecord(ctx, "applications", map[string]any{"status": "submitted"}, "u1")
	require.NoError(t, err)
	require.Len(t, mockAudit.Logged, 1)
	assert.Equal(t, common_models.AuditActionCreate, mockAudit.Logged[0].Action)
	assert.Equal(t, "u1", mockAudit.Logged[0].Actor)

	_, err = service.UpdateRecord(ctx, "applications", rec.ID, map[string]any{"status": "submitted"}, "u2")
	require.NoError(t, err)
	assert.Len(t, mockAudit.Logged, 1, "no-op patch is not audited")

	_, err = service.UpdateRecord(ctx, "applications", rec.ID, map[string]any{"status": "approved", "missing": nil}, "u2")
	require.NoError(t, err)
	require.Len(t, mockAudit.Logged, 2)
	assert.Equal(t, map[string]common_models.Change{
		"status": {Old: "submitted", New: "approved"},
	}, mockAudit.Logged[1].Changes)

	require.NoError(t, service.DeleteRecord(ctx, "applications", rec.ID, "u3"))
	require.Len(t, mockAudit.Logged, 3)
	assert.Equal(t, common_models.AuditActionDelete, mockAudit.Logged[2].Action)
	assert.Equal(t, rec.ID, mockAudit.Logged[2].RecordID)
	assert.Equal(t, "u3", mockAudit.Logged[2].Actor)

	_, err = service.CreateRecord(ctx, "", nil, "u1")
	assert.Error(t, err)
}

func TestSelectionResolver(t *testing.T) {
	repo := NewMemoryRecordRepository()
	ctx := context.Background()
	var submitted []string
	for i := 0; i < 3; i++ {
		rec, err := repo.Create(ctx, "applications", map[string]any{"status": "submitted"}, "u1")
		require.NoError(t, err)
		submitted = append(submitted, rec.ID)
	}
	_, err := repo.Create(ctx, "applications", map[string]any{"status": "approved"}, "u1")
	require.NoError(t, err)

	resolver := NewSelectionResolver(repo, &config.Config{SelectionLimit: 3})

	t.Run("explicit ids are normalized and deduplicated", func(t *testing.T) {
		ids, err := resolver.Resolve(ctx, "applications", map[string]interface{}{
			"ids": []interface{}{"b", float64(10), "b", json.Number("10")},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "10"}, ids)
	})

	t.Run("string slice", func(t *testing.T) {
		ids, err := resolver.Resolve(ctx, "applications", map[string]interface{}{"ids": []string{"x"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"x"}, ids)
	})

	t.Run("filter", func(t *testing.T) {
		ids, err := resolver.Resolve(ctx, "applications", map[string]interface{}{
			"filter": map[string]interface{}{"status": "submitted"},
		})
		require.NoError(t, err)
		assert.Equal(t, submitted, ids)
	})

	t.Run("filter with limit", func(t *testing.T) {
		ids, err := resolver.Resolve(ctx, "applications", map[string]interface{}{
			"filter": map[string]interface{}{"status": "submitted"},
			"limit":  float64(2),
		})
		require.NoError(t, err)
		assert.Equal(t, submitted[:2], ids)
	})

	errorCases := []struct {
		name     string
		criteria map[string]interface{}
		want     error
	}{
		{"no form", map[string]interface{}{}, bulk_operation.ErrInvalidSelection},
		{"ids not a list", map[string]interface{}{"ids": "a,b"}, bulk_operation.ErrInvalidSelection},
		{"empty id", map[string]interface{}{"ids": []interface{}{""}}, bulk_operation.ErrInvalidSelection},
		{"bad id type", map[string]interface{}{"ids": []interface{}{true}}, bulk_operation.ErrInvalidSelection},
		{"empty ids", map[string]interface{}{"ids": []interface{}{}}, bulk_operation.ErrEmptySelection},
		{"over limit", map[string]interface{}{"ids": []string{"a", "b", "c", "d"}}, bulk_operation.ErrInvalidSelection},
		{"filter not object", map[string]interface{}{"filter": "status=open"}, bulk_operation.ErrInvalidSelection},
		{"negative limit", map[string]interface{}{"filter": map[string]interface{}{}, "limit": -1}, bulk_operation.ErrInvalidSelection},
		{"limit above cap", map[string]interface{}{"filter": map[string]interface{}{}, "limit": 10}, bulk_operation.ErrInvalidSelection},
		{"filter over cap", map[string]interface{}{"filter": map[string]interface{}{}}, bulk_operation.ErrInvalidSelection},
		{"filter matches nothing", map[string]interface{}{"filter": map[string]interface{}{"status": "withdrawn"}}, bulk_operation.ErrEmptySelection},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := resolver.Resolve(ctx, "applications", tc.criteria)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	t.Run("store failure is not a selection error", func(t *testing.T) {
		broken := &SelectionResolver{Repo: failingRepo{}, Limit: 10}
		_, err := broken.Resolve(ctx, "applications", map[string]interface{}{"filter": map[string]interface{}{}})
		require.Error(t, err)
		assert.NotErrorIs(t, err, bulk_operation.ErrInvalidSelection)
		assert.NotErrorIs(t, err, bulk_operation.ErrEmptySelection)
	})
}

func TestRecordApi(t *testing.T) {
	service := NewRecordService(NewMemoryRecordRepository(), &MockAuditService{})
	app := fiber.New()
	NewRecordApi(NewRecordController(service), &config.Config{SkipAuth: true}).Setup(app)

	req := httptest.NewRequest(http.MethodPost, "/api/records/applications", strings.NewReader(`{"status":"submitted"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created common_models.EntityRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "dev-admin-id", created.CreatedBy)

	req = httptest.NewRequest(http.MethodPatch, "/api/records/applications/"+created.ID, strings.NewReader(`{"status":"approved"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, `/api/records/applications?filter=%7B%22status%22%3A%22approved%22%7D`, nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed struct {
		Data  []common_models.EntityRecord `json:"data"`
		Total int64                        `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	assert.Equal(t, int64(1), listed.Total)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/records/applications?filter=notjson", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/api/records/applications/"+created.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/records/applications/"+created.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
