package bulk_operation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Notifier wakes the worker pool.
type Notifier interface {
	Notify()
}

type BulkOperationService interface {
	Types() []OperationDefinition
	Create(ctx context.Context, req CreateRequest) (*BulkOperation, error)
	Get(ctx context.Context, id string) (*BulkOperation, error)
	List(ctx context.Context, f ListFilter) ([]BulkOperation, int64, error)
	Approve(ctx context.Context, id, actor string) (*BulkOperation, error)
	Enqueue(ctx context.Context, id, actor string) (*BulkOperation, error)
	Cancel(ctx context.Context, id, actor, reason string) (*BulkOperation, error)
	Rollback(ctx context.Context, id, actor string) (*BulkOperation, error)
	ListItems(ctx context.Context, id string, f ItemFilter) ([]BulkOperationItem, int64, error)
	Delete(ctx context.Context, id string) error
	Purge(ctx context.Context, olderThan time.Time) (int64, error)
	Subscribe(id string) (<-chan ProgressEvent, func())
}

type BulkOperationServiceImpl struct {
	Store     Store
	Registry  *Registry
	Manager   *Manager
	Rollbacks *RollbackController
	Notifier  Notifier
	Hub       *Hub
	log       *zap.Logger
}

func NewBulkOperationService(
	store Store,
	registry *Registry,
	manager *Manager,
	rollback *RollbackController,
	notifier Notifier,
	hub *Hub,
	log *zap.Logger,
) BulkOperationService {
	return &BulkOperationServiceImpl{
		Store:     store,
		Registry:  registry,
		Manager:   manager,
		Rollbacks: rollback,
		Notifier:  notifier,
		Hub:       hub,
		log:       log.Named("bulk_service"),
	}
}

func (s *BulkOperationServiceImpl) Types() []OperationDefinition {
	return s.Registry.Definitions()
}

// Create stores the operation and enqueues it right away unless its type needs approval.
func (s *BulkOperationServiceImpl) Create(ctx context.Context, req CreateRequest) (*BulkOperation, error) {
	op, err := s.Manager.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	if op.ApprovalRequired {
		return op, nil
	}
	return s.enqueue(ctx, op.ID, req.Initiator)
}

func (s *BulkOperationServiceImpl) enqueue(ctx context.Context, id, actor string) (*BulkOperation, error) {
	op, err := s.Manager.Enqueue(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if s.Notifier != nil {
		s.Notifier.Notify()
	}
	return op, nil
}

func (s *BulkOperationServiceImpl) Get(ctx context.Context, id string) (*BulkOperation, error) {
	op, err := s.Store.GetOperation(ctx, id)
	if err != nil {
		return nil, err
	}
	return WithEstimate(op, time.Now()), nil
}

func (s *BulkOperationServiceImpl) List(ctx context.Context, f ListFilter) ([]BulkOperation, int64, error) {
	ops, total, err := s.Store.ListOperations(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	now := time.Now()
	for i := range ops {
		WithEstimate(&ops[i], now)
	}
	return ops, total, nil
}

// Approve approves and enqueues in one step.
func (s *BulkOperationServiceImpl) Approve(ctx context.Context, id, actor string) (*BulkOperation, error) {
	if _, err := s.Manager.Approve(ctx, id, actor); err != nil {
		return nil, err
	}
	return s.enqueue(ctx, id, actor)
}

func (s *BulkOperationServiceImpl) Enqueue(ctx context.Context, id, actor string) (*BulkOperation, error) {
	return s.enqueue(ctx, id, actor)
}

func (s *BulkOperationServiceImpl) Cancel(ctx context.Context, id, actor, reason string) (*BulkOperation, error) {
	return s.Manager.Cancel(ctx, id, actor, reason)
}

func (s *BulkOperationServiceImpl) Rollback(ctx context.Context, id, actor string) (*BulkOperation, error) {
	rollback, err := s.Rollbacks.CreateRollback(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if rollback.ApprovalRequired {
		return rollback, nil
	}
	return s.enqueue(ctx, rollback.ID, actor)
}

func (s *BulkOperationServiceImpl) ListItems(ctx context.Context, id string, f ItemFilter) ([]BulkOperationItem, int64, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown item status %q", ErrInvalidSelection, f.Status)
	}
	return s.Store.ListItems(ctx, id, f)
}

func (s *BulkOperationServiceImpl) Delete(ctx context.Context, id string) error {
	err := s.Store.DeleteOperation(ctx, id)
	if errors.Is(err, ErrStatusConflict) {
		return fmt.Errorf("%w: only terminal operations can be deleted", ErrInvalidTransition)
	}
	if err == nil {
		s.log.Info("Bulk operation deleted", zap.String("operation_id", id))
	}
	return err
}

func (s *BulkOperationServiceImpl) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	n, err := s.Store.Purge(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	s.log.Info("Purged terminal bulk operations", zap.Int64("deleted", n), zap.Time("older_than", olderThan))
	return n, nil
}

func (s *BulkOperationServiceImpl) Subscribe(id string) (<-chan ProgressEvent, func()) {
	return s.Hub.Subscribe(id)
}
