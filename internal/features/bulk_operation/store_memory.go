package bulk_operation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store guarded by a single mutex. Each call is atomic,
// which gives the same conditional-update guarantees as the database stores.
type MemoryStore struct {
	mu    sync.Mutex
	ops   map[string]*BulkOperation
	items map[string]*BulkOperationItem
	byOp  map[string][]string // operation id -> item ids in selection order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ops:   make(map[string]*BulkOperation),
		items: make(map[string]*BulkOperationItem),
		byOp:  make(map[string][]string),
	}
}

func cloneOp(op *BulkOperation) *BulkOperation {
	c := *op
	return &c
}

func cloneItem(it *BulkOperationItem) *BulkOperationItem {
	c := *it
	return &c
}

func statusIn(s OperationStatus, set []OperationStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func (s *MemoryStore) CreateOperation(ctx context.Context, op *BulkOperation, items []*BulkOperationItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if it.ID == "" {
			it.ID = uuid.New().String()
		}
		it.BulkOperationID = op.ID
		s.items[it.ID] = cloneItem(it)
		ids = append(ids, it.ID)
	}
	s.byOp[op.ID] = ids
	s.ops[op.ID] = cloneOp(op)
	return nil
}

func (s *MemoryStore) GetOperation(ctx context.Context, id string) (*BulkOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOp(op), nil
}

func (s *MemoryStore) ListOperations(ctx context.Context, f ListFilter) ([]BulkOperation, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]BulkOperation, 0)
	for _, op := range s.ops {
		if f.Status != "" && op.Status != f.Status {
			continue
		}
		if f.OperationType != "" && op.OperationType != f.OperationType {
			continue
		}
		if f.Initiator != "" && op.Initiator != f.Initiator {
			continue
		}
		if f.RollbackOf != "" && op.RollbackOf != f.RollbackOf {
			continue
		}
		matched = append(matched, *op)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	return paginate(matched, f.Offset, f.Limit), total, nil
}

func paginate[T any](list []T, offset, limit int64) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= int64(len(list)) {
		return []T{}
	}
	end := int64(len(list))
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return list[offset:end]
}

func (s *MemoryStore) ListRunnableOperations(ctx context.Context, now time.Time, limit int) ([]BulkOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]BulkOperation, 0)
	for _, op := range s.ops {
		if op.Status != StatusQueued && op.Status != StatusProcessing {
			continue
		}
		if op.ScheduledFor != nil && op.ScheduledFor.After(now) {
			continue
		}
		out = append(out, *op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func applyPatch(op *BulkOperation, p OperationPatch) {
	if p.StartedAt != nil && op.StartedAt == nil {
		t := *p.StartedAt
		op.StartedAt = &t
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		op.CompletedAt = &t
	}
	if p.ProcessingTimeMs != nil {
		op.ProcessingTimeMs = *p.ProcessingTimeMs
	}
	if p.AvgItemTimeMs != nil {
		op.AvgItemTimeMs = *p.AvgItemTimeMs
	}
	if p.ProgressPercentage != nil && *p.ProgressPercentage > op.ProgressPercentage {
		op.ProgressPercentage = *p.ProgressPercentage
	}
	if p.CancelledBy != nil {
		op.CancelledBy = *p.CancelledBy
	}
	if p.CancellationReason != nil {
		op.CancellationReason = *p.CancellationReason
	}
}

func (s *MemoryStore) TransitionOperation(ctx context.Context, id string, from []OperationStatus, to OperationStatus, patch OperationPatch) (*BulkOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !statusIn(op.Status, from) {
		return nil, ErrStatusConflict
	}
	op.Status = to
	applyPatch(op, patch)
	op.UpdatedAt = time.Now()
	return cloneOp(op), nil
}

func (s *MemoryStore) ApproveOperation(ctx context.Context, id, actor string, at time.Time) (*BulkOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[id]
	if !ok {
		return nil, ErrNotFound
	}
	if op.Status != StatusPending || op.ApprovedAt != nil {
		return nil, ErrStatusConflict
	}
	op.ApprovedBy = actor
	op.ApprovedAt = &at
	op.UpdatedAt = time.Now()
	return cloneOp(op), nil
}

func (s *MemoryStore) LinkRollback(ctx context.Context, originalID, rollbackID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[originalID]
	if !ok {
		return ErrNotFound
	}
	if !op.IsReversible || op.Status != StatusCompleted || op.RolledBack {
		return ErrStatusConflict
	}
	op.RollbackOperationID = rollbackID
	op.RolledBack = true
	op.RollbackPendingID = ""
	op.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ReserveRollback(ctx context.Context, originalID, rollbackID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[originalID]
	if !ok {
		return ErrNotFound
	}
	if !op.IsReversible || op.Status != StatusCompleted || op.RolledBack || op.RollbackPendingID != "" {
		return ErrStatusConflict
	}
	op.RollbackPendingID = rollbackID
	op.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ReleaseRollback(ctx context.Context, originalID, rollbackID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[originalID]
	if !ok {
		return ErrNotFound
	}
	if op.RollbackPendingID == rollbackID {
		op.RollbackPendingID = ""
		op.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryStore) FindRollbacks(ctx context.Context, originalID string) ([]BulkOperation, error) {
	ops, _, err := s.ListOperations(ctx, ListFilter{RollbackOf: originalID})
	return ops, err
}

func (s *MemoryStore) SaveProgress(ctx context.Context, id string, p Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[id]
	if !ok {
		return ErrNotFound
	}
	if p.ProgressPercentage > op.ProgressPercentage {
		op.ProgressPercentage = p.ProgressPercentage
	}
	op.AvgItemTimeMs = p.AvgItemTimeMs
	op.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) deleteLocked(id string) {
	for _, itemID := range s.byOp[id] {
		delete(s.items, itemID)
	}
	delete(s.byOp, id)
	delete(s.ops, id)
}

func (s *MemoryStore) DeleteOperation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[id]
	if !ok {
		return ErrNotFound
	}
	if !op.Status.IsTerminal() {
		return ErrStatusConflict
	}
	s.deleteLocked(id)
	return nil
}

func (s *MemoryStore) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, op := range s.ops {
		if op.Status.IsTerminal() && op.UpdatedAt.Before(olderThan) {
			s.deleteLocked(id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ClaimItem(ctx context.Context, operationID string, now time.Time) (*BulkOperationItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, itemID := range s.byOp[operationID] {
		it := s.items[itemID]
		if it.Status != ItemPending || it.AvailableAt.After(now) {
			continue
		}
		it.Status = ItemProcessing
		started := now
		it.StartedAt = &started
		it.UpdatedAt = now
		return cloneItem(it), nil
	}
	return nil, nil
}

func (s *MemoryStore) CompleteItem(ctx context.Context, itemID string, c ItemCompletion) (*BulkOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[itemID]
	if !ok {
		return nil, ErrNotFound
	}
	if it.Status != ItemProcessing || !c.Status.IsTerminal() {
		return nil, ErrStatusConflict
	}
	op, ok := s.ops[it.BulkOperationID]
	if !ok {
		return nil, ErrNotFound
	}

	completed := c.CompletedAt
	it.Status = c.Status
	it.Result = c.Result
	it.ErrorMessage = c.ErrorMessage
	it.CompletedAt = &completed
	it.ProcessingTimeMs = c.ProcessingTimeMs
	it.UpdatedAt = time.Now()

	switch c.Status {
	case ItemSuccess:
		op.SuccessfulItems++
	case ItemFailed:
		op.FailedItems++
	case ItemSkipped:
		op.SkippedItems++
	}
	op.ProcessedItems++
	op.UpdatedAt = time.Now()
	return cloneOp(op), nil
}

func (s *MemoryStore) RequeueItem(ctx context.Context, itemID string, availableAt time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[itemID]
	if !ok {
		return ErrNotFound
	}
	if it.Status != ItemProcessing {
		return ErrStatusConflict
	}
	it.Status = ItemPending
	it.RetryCount++
	it.ErrorMessage = lastError
	it.AvailableAt = availableAt
	it.UpdatedAt = time.Now()
	if op, ok := s.ops[it.BulkOperationID]; ok {
		op.RetryCount++
		op.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryStore) ReleaseItem(ctx context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[itemID]
	if !ok {
		return ErrNotFound
	}
	if it.Status != ItemProcessing {
		return ErrStatusConflict
	}
	it.Status = ItemPending
	it.StartedAt = nil
	it.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) CountActiveItems(ctx context.Context, operationID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, itemID := range s.byOp[operationID] {
		st := s.items[itemID].Status
		if st == ItemPending || st == ItemProcessing {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ReconcileCounters(ctx context.Context, id string, seen Counters) (*BulkOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[id]
	if !ok {
		return nil, ErrNotFound
	}
	if op.Status.IsTerminal() || op.Counters() != seen {
		return nil, ErrStatusConflict
	}
	byStatus := make(map[ItemStatus]int64)
	for _, itemID := range s.byOp[id] {
		byStatus[s.items[itemID].Status]++
	}
	c := Tally(byStatus, op.TotalItems)
	op.ProcessedItems = c.Processed
	op.SuccessfulItems = c.Successful
	op.FailedItems = c.Failed
	op.SkippedItems = c.Skipped
	op.UpdatedAt = time.Now()
	return cloneOp(op), nil
}

func (s *MemoryStore) ListItems(ctx context.Context, operationID string, f ItemFilter) ([]BulkOperationItem, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ops[operationID]; !ok {
		return nil, 0, ErrNotFound
	}
	matched := make([]BulkOperationItem, 0)
	for _, itemID := range s.byOp[operationID] {
		it := s.items[itemID]
		if f.Status != "" && it.Status != f.Status {
			continue
		}
		matched = append(matched, *it)
	}
	total := int64(len(matched))
	return paginate(matched, f.Offset, f.Limit), total, nil
}
