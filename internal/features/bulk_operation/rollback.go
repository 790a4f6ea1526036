package bulk_operation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Configuration keys set on rollback operations.
const (
	ConfigRollbackOf      = "rollback_of"
	ConfigOriginalResults = "original_results"
)

// RollbackController creates compensating operations for completed reversible ones
// and links them back once they complete.
type RollbackController struct {
	manager  *Manager
	store    Store
	registry *Registry
	log      *zap.Logger
}

func NewRollbackController(manager *Manager, store Store, registry *Registry, log *zap.Logger) *RollbackController {
	rc := &RollbackController{
		manager:  manager,
		store:    store,
		registry: registry,
		log:      log.Named("bulk_rollback"),
	}
	manager.OnTerminal(rc.onTerminal)
	return rc
}

// CreateRollback creates the inverse operation over every successful item of operationID.
// Nothing is mutated when a gate fails.
func (rc *RollbackController) CreateRollback(ctx context.Context, operationID, actor string) (*BulkOperation, error) {
	op, err := rc.store.GetOperation(ctx, operationID)
	if err != nil {
		return nil, err
	}
	if !op.IsReversible || op.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: operation is %s (reversible=%t)", ErrNotReversible, op.Status, op.IsReversible)
	}
	if op.RolledBack {
		return nil, ErrAlreadyRolledBack
	}

	inverse, err := rc.registry.Inverse(op.OperationType)
	if err != nil {
		return nil, err
	}

	items, _, err := rc.store.ListItems(ctx, operationID, ItemFilter{Status: ItemSuccess})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no successful items to reverse", ErrNotReversible)
	}

	targets := make([]string, 0, len(items))
	results := make(map[string]interface{}, len(items))
	for _, it := range items {
		targets = append(targets, it.TargetID)
		if it.Result != nil {
			results[it.TargetID] = it.Result
		}
	}

	config := make(map[string]interface{}, len(op.Configuration)+2)
	for k, v := range op.Configuration {
		config[k] = v
	}
	config[ConfigRollbackOf] = op.ID
	config[ConfigOriginalResults] = results

	rollbackID := uuid.New().String()
	if err := rc.reserve(ctx, operationID, rollbackID); err != nil {
		return nil, err
	}

	def := inverse.Definition()
	rollback, err := rc.manager.materialize(ctx, materializeSpec{
		id:               rollbackID,
		definition:       def,
		scope:            op.Scope,
		targetEntityType: op.TargetEntityType,
		selectionCriteria: map[string]interface{}{
			"ids":         targets,
			"rollback_of": op.ID,
		},
		configuration: config,
		initiator:     actor,
		targets:       targets,
		retryFailed:   def.RetryFailed,
		maxRetries:    def.MaxRetries,
		rollbackOf:    op.ID,
	})
	if err != nil {
		rc.release(ctx, operationID, rollbackID)
		return nil, err
	}

	rc.log.Info("Rollback operation created",
		zap.String("operation_id", op.ID),
		zap.String("rollback_operation_id", rollback.ID),
		zap.Int("targets", len(targets)),
	)
	return rollback, nil
}

// reserve claims the original for rollbackID. Only one caller wins; the others get the
// reason the original cannot take a rollback now.
func (rc *RollbackController) reserve(ctx context.Context, originalID, rollbackID string) error {
	for attempt := 0; attempt < 3; attempt++ {
		err := rc.store.ReserveRollback(ctx, originalID, rollbackID)
		if err == nil || !errors.Is(err, ErrStatusConflict) {
			return err
		}

		op, err := rc.store.GetOperation(ctx, originalID)
		if err != nil {
			return err
		}
		switch {
		case op.RolledBack:
			return ErrAlreadyRolledBack
		case !op.IsReversible || op.Status != StatusCompleted:
			return fmt.Errorf("%w: operation is %s (reversible=%t)", ErrNotReversible, op.Status, op.IsReversible)
		case op.RollbackPendingID == "":
			// released between the attempt and the read
			continue
		}

		stale, err := rc.staleReservation(ctx, op)
		if err != nil {
			return err
		}
		if !stale {
			return fmt.Errorf("%w: %s", ErrRollbackInProgress, op.RollbackPendingID)
		}
		rc.log.Warn("Clearing reservation of a finished rollback",
			zap.String("operation_id", originalID),
			zap.String("rollback_operation_id", op.RollbackPendingID),
		)
		if err := rc.store.ReleaseRollback(ctx, originalID, op.RollbackPendingID); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: reservation kept changing", ErrRollbackInProgress)
}

// staleReservation reports whether the reserved rollback already finished without completing,
// which happens when its release after the terminal transition did not persist.
func (rc *RollbackController) staleReservation(ctx context.Context, op *BulkOperation) (bool, error) {
	rollbacks, err := rc.store.FindRollbacks(ctx, op.ID)
	if err != nil {
		return false, err
	}
	for _, r := range rollbacks {
		if r.ID == op.RollbackPendingID {
			return r.Status.IsTerminal() && r.Status != StatusCompleted, nil
		}
	}
	// not stored yet: the reserving caller is still creating it
	return false, nil
}

func (rc *RollbackController) release(ctx context.Context, originalID, rollbackID string) {
	if err := rc.store.ReleaseRollback(ctx, originalID, rollbackID); err != nil {
		rc.log.Error("Failed to release rollback reservation",
			zap.String("operation_id", originalID),
			zap.String("rollback_operation_id", rollbackID),
			zap.Error(err),
		)
	}
}

func (rc *RollbackController) onTerminal(ctx context.Context, op *BulkOperation) {
	if op.RollbackOf == "" {
		return
	}
	if op.Status != StatusCompleted {
		rc.release(ctx, op.RollbackOf, op.ID)
		return
	}
	if err := rc.store.LinkRollback(ctx, op.RollbackOf, op.ID); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			rc.log.Warn("Original operation can no longer be linked",
				zap.String("operation_id", op.RollbackOf),
				zap.String("rollback_operation_id", op.ID),
			)
			return
		}
		rc.log.Error("Failed to link rollback", zap.String("operation_id", op.RollbackOf), zap.Error(err))
		return
	}
	rc.log.Info("Operation rolled back",
		zap.String("operation_id", op.RollbackOf),
		zap.String("rollback_operation_id", op.ID),
	)
}
