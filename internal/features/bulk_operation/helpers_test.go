package bulk_operation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubExecutor struct {
	def OperationDefinition
	fn  func(ctx context.Context, req ExecutionRequest) Outcome

	mu    sync.Mutex
	calls map[string]int
}

func newStub(def OperationDefinition, fn func(ctx context.Context, req ExecutionRequest) Outcome) *stubExecutor {
	if def.TargetIDKind == "" {
		def.TargetIDKind = IDKindString
	}
	return &stubExecutor{def: def, fn: fn, calls: make(map[string]int)}
}

func (s *stubExecutor) Definition() OperationDefinition { return s.def }

func (s *stubExecutor) Execute(ctx context.Context, req ExecutionRequest) Outcome {
	s.mu.Lock()
	s.calls[req.TargetID]++
	s.mu.Unlock()
	if s.fn == nil {
		return Success(map[string]interface{}{"target": req.TargetID})
	}
	return s.fn(ctx, req)
}

func (s *stubExecutor) Calls(targetID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[targetID]
}

type validatingStub struct {
	*stubExecutor
}

func (v validatingStub) ValidateConfig(scope *string, config map[string]interface{}) error {
	if _, ok := config["required_key"]; !ok {
		return fmt.Errorf("required_key missing")
	}
	return nil
}

// idsResolver resolves {"ids": [...]} without touching a record store.
type idsResolver struct{}

func (idsResolver) Resolve(_ context.Context, _ string, criteria map[string]interface{}) ([]string, error) {
	var out []string
	switch ids := criteria["ids"].(type) {
	case []string:
		out = ids
	case []interface{}:
		out = make([]string, 0, len(ids))
		for _, v := range ids {
			out = append(out, fmt.Sprint(v))
		}
	default:
		return nil, fmt.Errorf("ids missing")
	}
	if len(out) == 0 {
		return nil, ErrEmptySelection
	}
	return out, nil
}

type recordingAudit struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (r *recordingAudit) Emit(_ context.Context, ev AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingAudit) count(operationID, action string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.OperationID == operationID && ev.Action == action {
			n++
		}
	}
	return n
}

func (r *recordingAudit) forOperation(operationID string) []AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []AuditEvent
	for _, ev := range r.events {
		if ev.OperationID == operationID {
			out = append(out, ev)
		}
	}
	return out
}

type harness struct {
	store    *MemoryStore
	registry *Registry
	manager  *Manager
	rollback *RollbackController
	pool     *Pool
	hub      *Hub
	audit    *recordingAudit
	service  BulkOperationService
}

func newHarness(t *testing.T, cfg PoolConfig, executors ...ItemExecutor) *harness {
	t.Helper()
	mem := NewMemoryStore()
	return newHarnessOn(t, mem, mem, cfg, executors...)
}

// newHarnessOn wires the engine to store while tests inspect state through mem.
func newHarnessOn(t *testing.T, mem *MemoryStore, store Store, cfg PoolConfig, executors ...ItemExecutor) *harness {
	t.Helper()
	registry, err := NewRegistryWith(executors...)
	require.NoError(t, err)

	log := zap.NewNop()
	audit := &recordingAudit{}
	hub := NewHub()
	manager := NewManager(store, registry, idsResolver{}, audit, hub, log)
	rollback := NewRollbackController(manager, store, registry, log)
	if cfg.ItemTimeout == 0 {
		cfg.ItemTimeout = 2 * time.Second
	}
	pool := NewPool(cfg, store, registry, manager, log)
	service := NewBulkOperationService(store, registry, manager, rollback, pool, hub, log)

	return &harness{
		store:    mem,
		registry: registry,
		manager:  manager,
		rollback: rollback,
		pool:     pool,
		hub:      hub,
		audit:    audit,
		service:  service,
	}
}

// drain processes items sequentially until nothing is claimable.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	for i := 0; i < 10000; i++ {
		worked, err := h.pool.ProcessNext(context.Background())
		require.NoError(t, err)
		if !worked {
			return
		}
	}
	t.Fatal("drain did not converge")
}

func (h *harness) create(t *testing.T, opType string, ids ...string) *BulkOperation {
	t.Helper()
	op, err := h.service.Create(context.Background(), CreateRequest{
		OperationType:     opType,
		TargetEntityType:  "applications",
		SelectionCriteria: map[string]interface{}{"ids": ids},
		Initiator:         "admin",
	})
	require.NoError(t, err)
	return op
}

func (h *harness) get(t *testing.T, id string) *BulkOperation {
	t.Helper()
	op, err := h.store.GetOperation(context.Background(), id)
	require.NoError(t, err)
	return op
}

func ids(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s-%d", prefix, i+1)
	}
	return out
}

func assertCounterInvariants(t *testing.T, op *BulkOperation) {
	t.Helper()
	require.Equal(t, op.SuccessfulItems+op.FailedItems+op.SkippedItems, op.ProcessedItems, "processed must equal the sum of outcomes")
	require.LessOrEqual(t, op.ProcessedItems, op.TotalItems)
	require.GreaterOrEqual(t, op.ProgressPercentage, 0.0)
	require.LessOrEqual(t, op.ProgressPercentage, 100.0)
}
