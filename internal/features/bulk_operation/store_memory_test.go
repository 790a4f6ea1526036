package bulk_operation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedOperation(t *testing.T, s *MemoryStore, status OperationStatus, n int) *BulkOperation {
	t.Helper()
	now := time.Now()
	op := &BulkOperation{
		OperationType: "tag_update",
		Status:        status,
		TotalItems:    int64(n),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	items := make([]*BulkOperationItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, &BulkOperationItem{
			Seq:         i,
			TargetID:    fmt.Sprintf("t-%d", i),
			Status:      ItemPending,
			AvailableAt: now,
		})
	}
	require.NoError(t, s.CreateOperation(context.Background(), op, items))
	return op
}

func TestMemoryStore_ClaimIsExclusive(t *testing.T) {
	s := NewMemoryStore()
	op := seedOperation(t, s, StatusProcessing, 200)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		claimed = make(map[string]int)
		wg      sync.WaitGroup
	)
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, err := s.ClaimItem(ctx, op.ID, time.Now())
				if !assert.NoError(t, err) || item == nil {
					return
				}
				mu.Lock()
				claimed[item.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, 200)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "item %s claimed more than once", id)
	}
}

func TestMemoryStore_ClaimRespectsOrderAndAvailability(t *testing.T) {
	s := NewMemoryStore()
	op := seedOperation(t, s, StatusProcessing, 3)
	ctx := context.Background()

	first, err := s.ClaimItem(ctx, op.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "t-0", first.TargetID)
	assert.Equal(t, ItemProcessing, first.Status)
	assert.NotNil(t, first.StartedAt)

	require.NoError(t, s.RequeueItem(ctx, first.ID, time.Now().Add(time.Hour), "later"))

	second, err := s.ClaimItem(ctx, op.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "t-1", second.TargetID, "delayed items are skipped")

	later, err := s.ClaimItem(ctx, op.ID, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "t-0", later.TargetID)
	assert.Equal(t, 1, later.RetryCount)
	assert.Equal(t, "later", later.ErrorMessage)

	got, err := s.GetOperation(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RetryCount)
}

func TestMemoryStore_CompleteItem(t *testing.T) {
	s := NewMemoryStore()
	op := seedOperation(t, s, StatusProcessing, 2)
	ctx := context.Background()

	item, err := s.ClaimItem(ctx, op.ID, time.Now())
	require.NoError(t, err)

	updated, err := s.CompleteItem(ctx, item.ID, ItemCompletion{Status: ItemFailed, ErrorMessage: "bad", CompletedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.FailedItems)
	assert.Equal(t, int64(1), updated.ProcessedItems)

	_, err = s.CompleteItem(ctx, item.ID, ItemCompletion{Status: ItemSuccess, CompletedAt: time.Now()})
	assert.ErrorIs(t, err, ErrStatusConflict, "an item completes once")

	other, err := s.ClaimItem(ctx, op.ID, time.Now())
	require.NoError(t, err)
	_, err = s.CompleteItem(ctx, other.ID, ItemCompletion{Status: ItemPending})
	assert.ErrorIs(t, err, ErrStatusConflict, "completion requires a terminal status")

	_, err = s.CompleteItem(ctx, "missing", ItemCompletion{Status: ItemSuccess})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ReleaseItem(t *testing.T) {
	s := NewMemoryStore()
	op := seedOperation(t, s, StatusProcessing, 1)
	ctx := context.Background()

	item, err := s.ClaimItem(ctx, op.ID, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.ReleaseItem(ctx, item.ID))
	assert.ErrorIs(t, s.ReleaseItem(ctx, item.ID), ErrStatusConflict)

	again, err := s.ClaimItem(ctx, op.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, item.ID, again.ID)
	assert.Zero(t, again.RetryCount, "release does not consume a retry")
}

func TestMemoryStore_TransitionIsConditional(t *testing.T) {
	s := NewMemoryStore()
	op := seedOperation(t, s, StatusQueued, 1)
	ctx := context.Background()
	start := time.Now()

	updated, err := s.TransitionOperation(ctx, op.ID, []OperationStatus{StatusQueued}, StatusProcessing, OperationPatch{StartedAt: &start})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, updated.Status)

	_, err = s.TransitionOperation(ctx, op.ID, []OperationStatus{StatusQueued}, StatusProcessing, OperationPatch{})
	assert.ErrorIs(t, err, ErrStatusConflict)

	_, err = s.TransitionOperation(ctx, "missing", []OperationStatus{StatusQueued}, StatusProcessing, OperationPatch{})
	assert.ErrorIs(t, err, ErrNotFound)

	later := start.Add(time.Minute)
	pct := 10.0
	updated, err = s.TransitionOperation(ctx, op.ID, []OperationStatus{StatusProcessing}, StatusProcessing, OperationPatch{StartedAt: &later, ProgressPercentage: &pct})
	require.NoError(t, err)
	assert.True(t, updated.StartedAt.Equal(start), "started_at is set once")
	assert.Equal(t, 10.0, updated.ProgressPercentage)
}

func TestMemoryStore_ProgressNeverDecreases(t *testing.T) {
	s := NewMemoryStore()
	op := seedOperation(t, s, StatusProcessing, 4)
	ctx := context.Background()

	require.NoError(t, s.SaveProgress(ctx, op.ID, Progress{ProgressPercentage: 50, AvgItemTimeMs: 10}))
	require.NoError(t, s.SaveProgress(ctx, op.ID, Progress{ProgressPercentage: 25, AvgItemTimeMs: 12}))

	got, err := s.GetOperation(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, 50.0, got.ProgressPercentage)
	assert.Equal(t, 12.0, got.AvgItemTimeMs)
}

func TestMemoryStore_DeleteAndPurge(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	active := seedOperation(t, s, StatusProcessing, 1)
	done := seedOperation(t, s, StatusCompleted, 2)
	cancelled := seedOperation(t, s, StatusCancelled, 1)

	assert.ErrorIs(t, s.DeleteOperation(ctx, active.ID), ErrStatusConflict)
	assert.ErrorIs(t, s.DeleteOperation(ctx, "missing"), ErrNotFound)

	require.NoError(t, s.DeleteOperation(ctx, done.ID))
	_, err := s.GetOperation(ctx, done.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = s.ListItems(ctx, done.ID, ItemFilter{})
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := s.Purge(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n, "recent operations are kept")

	n, err = s.Purge(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetOperation(ctx, cancelled.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetOperation(ctx, active.ID)
	assert.NoError(t, err, "active operations are never purged")
}

func TestMemoryStore_ListFiltersAndPaginates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		seedOperation(t, s, StatusCompleted, 1)
	}
	seedOperation(t, s, StatusFailed, 1)

	ops, total, err := s.ListOperations(ctx, ListFilter{Status: StatusCompleted, Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, ops, 2)

	ops, total, err = s.ListOperations(ctx, ListFilter{Status: StatusCompleted, Limit: 2, Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Empty(t, ops)

	op := seedOperation(t, s, StatusProcessing, 5)
	items, total, err := s.ListItems(ctx, op.ID, ItemFilter{Status: ItemPending, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, items, 2)
	assert.Equal(t, 0, items[0].Seq)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	op := seedOperation(t, s, StatusProcessing, 1)
	ctx := context.Background()

	got, err := s.GetOperation(ctx, op.ID)
	require.NoError(t, err)
	got.Status = StatusFailed

	again, err := s.GetOperation(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, again.Status)
}

func TestMemoryStore_ReserveRollback(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	op := seedOperation(t, s, StatusCompleted, 1)
	require.NoError(t, s.ReserveRollback(ctx, op.ID, "rb-1"))
	assert.ErrorIs(t, s.ReserveRollback(ctx, op.ID, "rb-2"), ErrStatusConflict, "not reversible")

	s2 := NewMemoryStore()
	op2 := &BulkOperation{OperationType: "property_assignment", Status: StatusCompleted, IsReversible: true}
	require.NoError(t, s2.CreateOperation(ctx, op2, nil))

	require.NoError(t, s2.ReserveRollback(ctx, op2.ID, "rb-1"))
	assert.ErrorIs(t, s2.ReserveRollback(ctx, op2.ID, "rb-2"), ErrStatusConflict)

	// only the holder releases
	require.NoError(t, s2.ReleaseRollback(ctx, op2.ID, "rb-2"))
	got, err := s2.GetOperation(ctx, op2.ID)
	require.NoError(t, err)
	assert.Equal(t, "rb-1", got.RollbackPendingID)

	require.NoError(t, s2.ReleaseRollback(ctx, op2.ID, "rb-1"))
	require.NoError(t, s2.ReserveRollback(ctx, op2.ID, "rb-2"))

	require.NoError(t, s2.LinkRollback(ctx, op2.ID, "rb-2"))
	got, err = s2.GetOperation(ctx, op2.ID)
	require.NoError(t, err)
	assert.Empty(t, got.RollbackPendingID)
	assert.ErrorIs(t, s2.ReserveRollback(ctx, op2.ID, "rb-3"), ErrStatusConflict)

	assert.ErrorIs(t, s2.ReserveRollback(ctx, "missing", "rb-4"), ErrNotFound)
}

func TestMemoryStore_ReconcileCounters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	op := seedOperation(t, s, StatusProcessing, 3)

	items, _, err := s.ListItems(ctx, op.ID, ItemFilter{})
	require.NoError(t, err)
	s.mu.Lock()
	s.items[items[0].ID].Status = ItemSuccess
	s.items[items[1].ID].Status = ItemSkipped
	s.mu.Unlock()

	_, err = s.ReconcileCounters(ctx, op.ID, Counters{Total: 3, Processed: 1})
	assert.ErrorIs(t, err, ErrStatusConflict, "stale view of the counters")

	got, err := s.ReconcileCounters(ctx, op.ID, Counters{Total: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ProcessedItems)
	assert.Equal(t, int64(1), got.SuccessfulItems)
	assert.Equal(t, int64(1), got.SkippedItems)
	assert.Zero(t, got.FailedItems)

	_, err = s.ReconcileCounters(ctx, "missing", Counters{})
	assert.ErrorIs(t, err, ErrNotFound)
}
