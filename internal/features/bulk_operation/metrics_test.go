package bulk_operation

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_CountOutcomes(t *testing.T) {
	const opType = "metrics_probe"
	exec := newStub(OperationDefinition{Type: opType}, func(_ context.Context, req ExecutionRequest) Outcome {
		if req.TargetID == "m-1" {
			return Failure(errors.New("rejected"), false)
		}
		return Success(nil)
	})
	h := newHarness(t, PoolConfig{}, exec)

	success := testutil.ToFloat64(ItemsProcessedTotal.WithLabelValues(opType, string(ItemSuccess)))
	failed := testutil.ToFloat64(ItemsProcessedTotal.WithLabelValues(opType, string(ItemFailed)))
	partial := testutil.ToFloat64(OperationsFinishedTotal.WithLabelValues(opType, string(StatusPartialSuccess)))

	h.create(t, opType, ids("m", 3)...)
	h.drain(t)

	assert.Equal(t, success+2, testutil.ToFloat64(ItemsProcessedTotal.WithLabelValues(opType, string(ItemSuccess))))
	assert.Equal(t, failed+1, testutil.ToFloat64(ItemsProcessedTotal.WithLabelValues(opType, string(ItemFailed))))
	assert.Equal(t, partial+1, testutil.ToFloat64(OperationsFinishedTotal.WithLabelValues(opType, string(StatusPartialSuccess))))
}
