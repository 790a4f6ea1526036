package bulk_operation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SelectionResolver expands selection criteria into concrete target ids.
type SelectionResolver interface {
	Resolve(ctx context.Context, targetEntityType string, criteria map[string]interface{}) ([]string, error)
}

// TerminalHook runs after an operation reached a terminal status.
type TerminalHook func(ctx context.Context, op *BulkOperation)

// Manager owns the operation state machine. All status changes go through it.
type Manager struct {
	store     Store
	registry  *Registry
	resolver  SelectionResolver
	audit     AuditEmitter
	publisher ProgressPublisher
	log       *zap.Logger
	now       func() time.Time

	hookMu sync.RWMutex
	hooks  []TerminalHook
}

func NewManager(store Store, registry *Registry, resolver SelectionResolver, audit AuditEmitter, publisher ProgressPublisher, log *zap.Logger) *Manager {
	if audit == nil {
		audit = NopAuditEmitter{}
	}
	if publisher == nil {
		publisher = MultiPublisher{}
	}
	return &Manager{
		store:     store,
		registry:  registry,
		resolver:  resolver,
		audit:     audit,
		publisher: publisher,
		log:       log.Named("bulk_lifecycle"),
		now:       time.Now,
	}
}

func (m *Manager) OnTerminal(h TerminalHook) {
	m.hookMu.Lock()
	m.hooks = append(m.hooks, h)
	m.hookMu.Unlock()
}

// materializeSpec is a fully resolved operation ready to be persisted.
type materializeSpec struct {
	id                string
	definition        OperationDefinition
	scope             *string
	targetEntityType  string
	selectionCriteria map[string]interface{}
	configuration     map[string]interface{}
	initiator         string
	targets           []string
	retryFailed       bool
	maxRetries        int
	scheduledFor      *time.Time
	reversible        bool
	rollbackOf        string
}

// Create validates the request, snapshots the selection into items and stores the operation as pending.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*BulkOperation, error) {
	exec, ok := m.registry.Get(req.OperationType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOperationType, req.OperationType)
	}
	def := exec.Definition()

	if req.TargetEntityType == "" {
		return nil, fmt.Errorf("%w: target_entity_type is required", ErrInvalidSelection)
	}
	if len(req.SelectionCriteria) == 0 {
		return nil, fmt.Errorf("%w: selection_criteria is required", ErrInvalidSelection)
	}
	if req.MaxRetries != nil && *req.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: max_retries must not be negative", ErrInvalidConfiguration)
	}
	if v, ok := exec.(ConfigValidator); ok {
		if err := v.ValidateConfig(req.Scope, req.Configuration); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
		}
	}

	targets, err := m.resolver.Resolve(ctx, req.TargetEntityType, req.SelectionCriteria)
	if err != nil {
		if errors.Is(err, ErrEmptySelection) || errors.Is(err, ErrInvalidSelection) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidSelection, err)
	}

	spec := materializeSpec{
		definition:        def,
		scope:             req.Scope,
		targetEntityType:  req.TargetEntityType,
		selectionCriteria: req.SelectionCriteria,
		configuration:     req.Configuration,
		initiator:         req.Initiator,
		targets:           targets,
		retryFailed:       def.RetryFailed,
		maxRetries:        def.MaxRetries,
		scheduledFor:      req.ScheduledFor,
		reversible:        def.IsReversible(),
	}
	if req.RetryFailed != nil {
		spec.retryFailed = *req.RetryFailed
	}
	if req.MaxRetries != nil {
		spec.maxRetries = *req.MaxRetries
	}
	return m.materialize(ctx, spec)
}

func (m *Manager) materialize(ctx context.Context, spec materializeSpec) (*BulkOperation, error) {
	targets := dedupe(spec.targets)
	if len(targets) == 0 {
		return nil, ErrEmptySelection
	}
	for _, id := range targets {
		if err := spec.definition.TargetIDKind.Validate(id); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSelection, err)
		}
	}

	now := m.now()
	op := &BulkOperation{
		ID:                spec.id,
		OperationType:     spec.definition.Type,
		Initiator:         spec.initiator,
		Scope:             spec.scope,
		TargetEntityType:  spec.targetEntityType,
		SelectionCriteria: spec.selectionCriteria,
		Configuration:     spec.configuration,
		Status:            StatusPending,
		TotalItems:        int64(len(targets)),
		ScheduledFor:      spec.scheduledFor,
		RetryFailed:       spec.retryFailed,
		MaxRetries:        spec.maxRetries,
		IsReversible:      spec.reversible && spec.rollbackOf == "",
		RollbackOf:        spec.rollbackOf,
		ApprovalRequired:  spec.definition.ApprovalRequired,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if op.Configuration == nil {
		op.Configuration = map[string]interface{}{}
	}

	items := make([]*BulkOperationItem, 0, len(targets))
	for i, id := range targets {
		items = append(items, &BulkOperationItem{
			Seq:         i,
			TargetID:    id,
			TargetType:  spec.targetEntityType,
			Status:      ItemPending,
			AvailableAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	if err := m.store.CreateOperation(ctx, op, items); err != nil {
		return nil, fmt.Errorf("failed to store operation: %w", err)
	}

	m.log.Info("Bulk operation created",
		zap.String("operation_id", op.ID),
		zap.String("operation_type", op.OperationType),
		zap.Int64("total_items", op.TotalItems),
	)
	m.emit(ctx, op, "", spec.initiator, AuditCreated, "")
	m.publish(ctx, op)
	return op, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Approve records the approval of an operation whose type requires one.
func (m *Manager) Approve(ctx context.Context, id, actor string) (*BulkOperation, error) {
	op, err := m.store.GetOperation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !op.ApprovalRequired {
		return nil, fmt.Errorf("%w: operation does not require approval", ErrInvalidTransition)
	}
	if op.Status != StatusPending || op.ApprovedAt != nil {
		return nil, fmt.Errorf("%w: cannot approve operation in status %s", ErrInvalidTransition, op.Status)
	}

	updated, err := m.store.ApproveOperation(ctx, id, actor, m.now())
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, fmt.Errorf("%w: operation changed concurrently", ErrInvalidTransition)
		}
		return nil, err
	}
	m.emit(ctx, updated, StatusPending, actor, AuditApproved, "")
	return updated, nil
}

// Enqueue hands a pending operation over to the worker pool.
func (m *Manager) Enqueue(ctx context.Context, id, actor string) (*BulkOperation, error) {
	op, err := m.store.GetOperation(ctx, id)
	if err != nil {
		return nil, err
	}
	if op.Status != StatusPending {
		return nil, fmt.Errorf("%w: cannot enqueue operation in status %s", ErrInvalidTransition, op.Status)
	}
	if op.ApprovalRequired && op.ApprovedAt == nil {
		return nil, ErrApprovalRequired
	}

	updated, err := m.store.TransitionOperation(ctx, id, []OperationStatus{StatusPending}, StatusQueued, OperationPatch{})
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, fmt.Errorf("%w: operation changed concurrently", ErrInvalidTransition)
		}
		return nil, err
	}
	m.emit(ctx, updated, StatusPending, actor, AuditEnqueued, "")
	m.publish(ctx, updated)
	return updated, nil
}

// MarkProcessing moves a queued operation to processing on its first pickup.
// Losing the race to another worker returns ErrStatusConflict.
func (m *Manager) MarkProcessing(ctx context.Context, id string) (*BulkOperation, error) {
	now := m.now()
	updated, err := m.store.TransitionOperation(ctx, id, []OperationStatus{StatusQueued}, StatusProcessing, OperationPatch{StartedAt: &now})
	if err != nil {
		return nil, err
	}
	m.log.Info("Bulk operation started", zap.String("operation_id", id))
	m.emit(ctx, updated, StatusQueued, "system", AuditStarted, "")
	m.publish(ctx, updated)
	return updated, nil
}

// Cancel stops new item claims. In-flight items finish normally.
func (m *Manager) Cancel(ctx context.Context, id, actor, reason string) (*BulkOperation, error) {
	op, err := m.store.GetOperation(ctx, id)
	if err != nil {
		return nil, err
	}
	if op.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: operation already %s", ErrInvalidTransition, op.Status)
	}

	now := m.now()
	patch := OperationPatch{
		CompletedAt:        &now,
		CancelledBy:        &actor,
		CancellationReason: &reason,
	}
	if op.StartedAt != nil {
		elapsed := now.Sub(*op.StartedAt).Milliseconds()
		patch.ProcessingTimeMs = &elapsed
	}

	updated, err := m.store.TransitionOperation(ctx, id, ActiveStatuses, StatusCancelled, patch)
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, fmt.Errorf("%w: operation finished concurrently", ErrInvalidTransition)
		}
		return nil, err
	}

	m.log.Info("Bulk operation cancelled",
		zap.String("operation_id", id),
		zap.String("actor", actor),
		zap.String("reason", reason),
	)
	m.emit(ctx, updated, op.Status, actor, AuditCancelled, reason)
	m.publish(ctx, updated)
	m.terminal(ctx, updated)
	return updated, nil
}

// Finalize moves an operation whose items are all terminal to its final status.
// It is safe to call redundantly: a terminal operation, or one with active items, is left untouched.
func (m *Manager) Finalize(ctx context.Context, id string) (*BulkOperation, error) {
	op, err := m.store.GetOperation(ctx, id)
	if err != nil {
		return nil, err
	}
	if op.Status.IsTerminal() {
		return op, nil
	}
	if op.Status != StatusProcessing && op.Status != StatusQueued {
		return op, nil
	}

	active, err := m.store.CountActiveItems(ctx, id)
	if err != nil {
		return nil, err
	}
	if active > 0 {
		return op, nil
	}
	// Re-read after counting so the counters include every item seen as terminal.
	op, err = m.store.GetOperation(ctx, id)
	if err != nil {
		return nil, err
	}
	if op.Status.IsTerminal() {
		return op, nil
	}
	if op.ProcessedItems < op.TotalItems {
		if op, err = m.reconcile(ctx, op); err != nil || op.ProcessedItems < op.TotalItems {
			return op, err
		}
	}

	now := m.now()
	final := FinalStatus(op.Counters())
	var elapsed int64
	if op.StartedAt != nil {
		elapsed = now.Sub(*op.StartedAt).Milliseconds()
	}
	avg := AverageItemTime(elapsed, op.ProcessedItems)
	pct := Percentage(op.ProcessedItems, op.TotalItems)

	updated, err := m.store.TransitionOperation(ctx, id, []OperationStatus{StatusQueued, StatusProcessing}, final, OperationPatch{
		CompletedAt:        &now,
		ProcessingTimeMs:   &elapsed,
		AvgItemTimeMs:      &avg,
		ProgressPercentage: &pct,
	})
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			// finalized or cancelled by someone else
			return m.store.GetOperation(ctx, id)
		}
		return nil, err
	}

	m.log.Info("Bulk operation finished",
		zap.String("operation_id", id),
		zap.String("status", string(final)),
		zap.Int64("successful_items", updated.SuccessfulItems),
		zap.Int64("failed_items", updated.FailedItems),
		zap.Int64("skipped_items", updated.SkippedItems),
		zap.Int64("processing_time_ms", elapsed),
	)
	m.emit(ctx, updated, op.Status, "system", AuditFinalized, "")
	m.publish(ctx, updated)
	m.terminal(ctx, updated)
	return updated, nil
}

// Publish streams the current snapshot of op.
func (m *Manager) Publish(ctx context.Context, op *BulkOperation) {
	m.publish(ctx, op)
}

func (m *Manager) publish(ctx context.Context, op *BulkOperation) {
	m.publisher.Publish(ctx, NewProgressEvent(op, m.now()))
}

func (m *Manager) emit(ctx context.Context, op *BulkOperation, old OperationStatus, actor, action, reason string) {
	if actor == "" {
		actor = "system"
	}
	ev := AuditEvent{
		OperationID:   op.ID,
		OperationType: op.OperationType,
		OldStatus:     old,
		NewStatus:     op.Status,
		Actor:         actor,
		Action:        action,
		Reason:        reason,
		Timestamp:     m.now(),
	}
	if err := m.audit.Emit(ctx, ev); err != nil {
		m.log.Warn("Failed to emit audit event",
			zap.String("operation_id", op.ID),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

func (m *Manager) terminal(ctx context.Context, op *BulkOperation) {
	OperationsFinishedTotal.WithLabelValues(op.OperationType, string(op.Status)).Inc()

	m.hookMu.RLock()
	hooks := append([]TerminalHook(nil), m.hooks...)
	m.hookMu.RUnlock()
	for _, h := range hooks {
		h(ctx, op)
	}
}

// counterSettle is how long counters may lag behind terminal items before they are recounted.
// A completion in flight writes the item and then the counters within this window.
const counterSettle = 5 * time.Second

// reconcile recounts the counters of an operation whose items are all terminal but whose
// counters never caught up, which happens when a counter write failed after its item was
// completed.
func (m *Manager) reconcile(ctx context.Context, op *BulkOperation) (*BulkOperation, error) {
	if m.now().Sub(op.UpdatedAt) < counterSettle {
		return op, nil
	}
	fixed, err := m.store.ReconcileCounters(ctx, op.ID, op.Counters())
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return m.store.GetOperation(ctx, op.ID)
		}
		return nil, err
	}
	m.log.Warn("Reconciled lagging operation counters",
		zap.String("operation_id", op.ID),
		zap.Int64("processed_before", op.ProcessedItems),
		zap.Int64("processed_after", fixed.ProcessedItems),
	)
	return fixed, nil
}
