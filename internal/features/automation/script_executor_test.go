package automation

import (
	"context"
	"testing"
	"time"

	"go-bulkops/internal/features/bulk_operation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func run(t *testing.T, ctx context.Context, script string, config map[string]interface{}) bulk_operation.Outcome {
	t.Helper()
	if config == nil {
		config = map[string]interface{}{}
	}
	config["script"] = script
	exec := NewScriptExecutor(zap.NewNop())
	return exec.Execute(ctx, bulk_operation.ExecutionRequest{
		OperationID:   "op-1",
		OperationType: TypeCustomScript,
		TargetID:      "t-42",
		TargetType:    "applications",
		Configuration: config,
		Attempt:       1,
	})
}

func TestScriptExecutor_ValidateConfig(t *testing.T) {
	exec := NewScriptExecutor(zap.NewNop())
	validator := exec.(bulk_operation.ConfigValidator)
	assert.True(t, exec.Definition().ApprovalRequired)

	assert.NoError(t, validator.ValidateConfig(nil, map[string]interface{}{"script": `result = {id: target_id}`}))
	assert.Error(t, validator.ValidateConfig(nil, map[string]interface{}{}))
	assert.Error(t, validator.ValidateConfig(nil, map[string]interface{}{"script": `result = {`}))
	assert.Error(t, validator.ValidateConfig(nil, map[string]interface{}{"script": `os := import("os")`}))
}

func TestScriptExecutor_Outcomes(t *testing.T) {
	ctx := context.Background()

	out := run(t, ctx, `result = {id: target_id, type: target_type, doubled: config.n * 2}`, map[string]interface{}{"n": 21})
	require.Equal(t, bulk_operation.OutcomeSuccess, out.Kind)
	assert.Equal(t, "t-42", out.Result["id"])
	assert.Equal(t, "applications", out.Result["type"])
	assert.Equal(t, int64(42), out.Result["doubled"])

	out = run(t, ctx, `x := 1`, nil)
	assert.Equal(t, bulk_operation.OutcomeSuccess, out.Kind)

	out = run(t, ctx, `result = "done"`, nil)
	require.Equal(t, bulk_operation.OutcomeSuccess, out.Kind)
	assert.Equal(t, "done", out.Result["value"])

	out = run(t, ctx, `skip = "not eligible"`, nil)
	assert.Equal(t, bulk_operation.OutcomeSkip, out.Kind)
	assert.Equal(t, "not eligible", out.Reason)

	out = run(t, ctx, `skip = true`, nil)
	assert.Equal(t, bulk_operation.OutcomeSkip, out.Kind)

	out = run(t, ctx, `fail = "upstream busy"; retryable = true`, nil)
	require.Equal(t, bulk_operation.OutcomeFailure, out.Kind)
	assert.True(t, out.Retryable)
	assert.EqualError(t, out.Err, "upstream busy")

	out = run(t, ctx, `fail = "bad data"`, nil)
	require.Equal(t, bulk_operation.OutcomeFailure, out.Kind)
	assert.False(t, out.Retryable)

	out = run(t, ctx, `z := 0; x := 1 / z`, nil)
	require.Equal(t, bulk_operation.OutcomeFailure, out.Kind)
	assert.False(t, out.Retryable)

	out = run(t, ctx, `text := import("text"); result = {upper: text.to_upper(target_id)}`, nil)
	require.Equal(t, bulk_operation.OutcomeSuccess, out.Kind)
	assert.Equal(t, "T-42", out.Result["upper"])
}

func TestScriptExecutor_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out := run(t, ctx, `for { }`, nil)
	require.Equal(t, bulk_operation.OutcomeFailure, out.Kind)
	assert.True(t, out.Retryable)
}

func TestPlain(t *testing.T) {
	oid := primitive.NewObjectID()
	in := primitive.M{
		"nested": primitive.D{{Key: "k", Value: int32(3)}},
		"list":   primitive.A{"a", primitive.M{"b": true}},
		"names":  []string{"x"},
		"id":     oid,
	}
	got := plain(in)
	assert.Equal(t, map[string]interface{}{
		"nested": map[string]interface{}{"k": int64(3)},
		"list":   []interface{}{"a", map[string]interface{}{"b": true}},
		"names":  []interface{}{"x"},
		"id":     oid.Hex(),
	}, got)
}
