package approval

import (
	"context"
	"errors"
	"testing"

	common_models "go-bulkops/internal/common/models"
	"go-bulkops/internal/config"
	"go-bulkops/internal/features/bulk_operation"
	"go-bulkops/internal/features/record"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const entity = "applications"

type flakyRepo struct {
	record.RecordRepository
}

func (flakyRepo) Get(ctx context.Context, entity, id string) (*common_models.EntityRecord, error) {
	return nil, errors.New("server selection timeout")
}

func seed(t *testing.T, repo record.RecordRepository, statuses ...string) []string {
	t.Helper()
	ids := make([]string, 0, len(statuses))
	for _, s := range statuses {
		data := map[string]any{}
		if s != "" {
			data["status"] = s
		}
		rec, err := repo.Create(context.Background(), entity, data, "seed")
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}
	return ids
}

func status(t *testing.T, repo record.RecordRepository, id string) interface{} {
	t.Helper()
	rec, err := repo.Get(context.Background(), entity, id)
	require.NoError(t, err)
	return rec.Data["status"]
}

func request(opType, id string, config map[string]interface{}) bulk_operation.ExecutionRequest {
	return bulk_operation.ExecutionRequest{
		OperationID:   "op-1",
		OperationType: opType,
		TargetID:      id,
		TargetType:    entity,
		Configuration: config,
		Attempt:       1,
	}
}

func TestApprovalExecutor(t *testing.T) {
	repo := record.NewMemoryRecordRepository()
	ids := seed(t, repo, "submitted", "approved", "withdrawn")
	exec := NewApprovalExecutor(repo)
	ctx := context.Background()

	out := exec.Execute(ctx, request(TypeApproval, ids[0], map[string]interface{}{"reviewed_by": "lead"}))
	require.Equal(t, bulk_operation.OutcomeSuccess, out.Kind)
	assert.Equal(t, "submitted", out.Result["previous_status"])
	assert.Equal(t, "approved", status(t, repo, ids[0]))
	rec, err := repo.Get(ctx, entity, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "lead", rec.Data["reviewed_by"])
	assert.Equal(t, "op-1", rec.UpdatedBy)

	out = exec.Execute(ctx, request(TypeApproval, ids[1], nil))
	assert.Equal(t, bulk_operation.OutcomeSkip, out.Kind)

	out = exec.Execute(ctx, request(TypeApproval, ids[2], nil))
	assert.Equal(t, bulk_operation.OutcomeFailure, out.Kind)
	assert.False(t, out.Retryable)
	assert.ErrorIs(t, out.Err, ErrApplicationWithdrawn)
	assert.Equal(t, "withdrawn", status(t, repo, ids[2]))

	out = exec.Execute(ctx, request(TypeApproval, "000000000000000000000000", nil))
	assert.Equal(t, bulk_operation.OutcomeSkip, out.Kind)

	out = NewApprovalExecutor(flakyRepo{}).Execute(ctx, request(TypeApproval, ids[0], nil))
	assert.Equal(t, bulk_operation.OutcomeFailure, out.Kind)
	assert.True(t, out.Retryable)
}

func TestRejectionExecutor(t *testing.T) {
	repo := record.NewMemoryRecordRepository()
	ids := seed(t, repo, "submitted", "rejected")
	exec := NewRejectionExecutor(repo)
	ctx := context.Background()

	validator, ok := exec.(bulk_operation.ConfigValidator)
	require.True(t, ok)
	assert.Error(t, validator.ValidateConfig(nil, map[string]interface{}{}))
	assert.NoError(t, validator.ValidateConfig(nil, map[string]interface{}{"rejection_reason": "incomplete"}))

	out := exec.Execute(ctx, request(TypeRejection, ids[0], map[string]interface{}{"rejection_reason": "incomplete"}))
	require.Equal(t, bulk_operation.OutcomeSuccess, out.Kind)
	rec, err := repo.Get(ctx, entity, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "rejected", rec.Data["status"])
	assert.Equal(t, "incomplete", rec.Data["rejection_reason"])

	out = exec.Execute(ctx, request(TypeRejection, ids[1], map[string]interface{}{"rejection_reason": "x"}))
	assert.Equal(t, bulk_operation.OutcomeSkip, out.Kind)

	approval, ok := NewApprovalExecutor(repo).(bulk_operation.ConfigValidator)
	require.True(t, ok)
	assert.NoError(t, approval.ValidateConfig(nil, nil))
}

func TestRevertExecutor(t *testing.T) {
	repo := record.NewMemoryRecordRepository()
	ids := seed(t, repo, "approved", "approved", "rejected", "approved")
	exec := NewApprovalRevertExecutor(repo)
	ctx := context.Background()

	config := map[string]interface{}{
		bulk_operation.ConfigOriginalResults: map[string]interface{}{
			ids[0]: map[string]interface{}{"previous_status": "submitted"},
			ids[1]: map[string]interface{}{"previous_status": nil},
			ids[2]: map[string]interface{}{"previous_status": "submitted"},
		},
	}

	out := exec.Execute(ctx, request(TypeApprovalRevert, ids[0], config))
	require.Equal(t, bulk_operation.OutcomeSuccess, out.Kind)
	assert.Equal(t, "submitted", status(t, repo, ids[0]))

	out = exec.Execute(ctx, request(TypeApprovalRevert, ids[1], config))
	require.Equal(t, bulk_operation.OutcomeSuccess, out.Kind)
	assert.Nil(t, status(t, repo, ids[1]), "absent previous status clears the field")

	out = exec.Execute(ctx, request(TypeApprovalRevert, ids[2], config))
	assert.Equal(t, bulk_operation.OutcomeSkip, out.Kind, "status moved on since the approval")
	assert.Equal(t, "rejected", status(t, repo, ids[2]))

	out = exec.Execute(ctx, request(TypeApprovalRevert, ids[3], config))
	assert.Equal(t, bulk_operation.OutcomeSkip, out.Kind)
	assert.Equal(t, "approved", status(t, repo, ids[3]))
}

func TestApprovalRollbackThroughEngine(t *testing.T) {
	repo := record.NewMemoryRecordRepository()
	ids := seed(t, repo, "submitted", "pending_review", "")

	registry, err := bulk_operation.NewRegistryWith(
		NewApprovalExecutor(repo),
		NewApprovalRevertExecutor(repo),
		NewRejectionExecutor(repo),
		NewRejectionRevertExecutor(repo),
	)
	require.NoError(t, err)

	log := zap.NewNop()
	store := bulk_operation.NewMemoryStore()
	hub := bulk_operation.NewHub()
	resolver := record.NewSelectionResolver(repo, &config.Config{SelectionLimit: 100})
	manager := bulk_operation.NewManager(store, registry, resolver, nil, hub, log)
	rollback := bulk_operation.NewRollbackController(manager, store, registry, log)
	pool := bulk_operation.NewPool(bulk_operation.PoolConfig{}, store, registry, manager, log)
	service := bulk_operation.NewBulkOperationService(store, registry, manager, rollback, pool, hub, log)
	ctx := context.Background()

	drain := func() {
		for {
			worked, err := pool.ProcessNext(ctx)
			require.NoError(t, err)
			if !worked {
				return
			}
		}
	}

	op, err := service.Create(ctx, bulk_operation.CreateRequest{
		OperationType:     TypeApproval,
		TargetEntityType:  entity,
		SelectionCriteria: map[string]interface{}{"ids": []interface{}{ids[0], ids[1], ids[2]}},
		Initiator:         "admin",
	})
	require.NoError(t, err)
	assert.True(t, op.IsReversible)
	drain()

	op, err = service.Get(ctx, op.ID)
	require.NoError(t, err)
	require.Equal(t, bulk_operation.StatusCompleted, op.Status)
	for _, id := range ids {
		assert.Equal(t, "approved", status(t, repo, id))
	}

	rb, err := service.Rollback(ctx, op.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, TypeApprovalRevert, rb.OperationType)
	drain()

	rb, err = service.Get(ctx, rb.ID)
	require.NoError(t, err)
	assert.Equal(t, bulk_operation.StatusCompleted, rb.Status)
	assert.Equal(t, "submitted", status(t, repo, ids[0]))
	assert.Equal(t, "pending_review", status(t, repo, ids[1]))
	assert.Nil(t, status(t, repo, ids[2]))

	op, err = service.Get(ctx, op.ID)
	require.NoError(t, err)
	assert.True(t, op.RolledBack)

	_, err = service.Create(ctx, bulk_operation.CreateRequest{
		OperationType:     TypeRejection,
		TargetEntityType:  entity,
		SelectionCriteria: map[string]interface{}{"ids": []interface{}{ids[0]}},
		Initiator:         "admin",
	})
	assert.ErrorIs(t, err, bulk_operation.ErrInvalidConfiguration)
}
