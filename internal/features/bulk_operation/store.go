package bulk_operation

import (
	"context"
	"time"
)

// OperationPatch carries the fields a status transition may set. Nil fields are left untouched.
type OperationPatch struct {
	StartedAt          *time.Time
	CompletedAt        *time.Time
	ProcessingTimeMs   *int64
	AvgItemTimeMs      *float64
	ProgressPercentage *float64
	CancelledBy        *string
	CancellationReason *string
}

// ItemCompletion is the terminal result recorded for a processing item.
type ItemCompletion struct {
	Status           ItemStatus
	Result           map[string]interface{}
	ErrorMessage     string
	CompletedAt      time.Time
	ProcessingTimeMs int64
}

// Store persists operations and their items. Every mutation is conditional on the
// current status and reports ErrStatusConflict when the condition does not hold.
// Implementations must be safe for concurrent use by many workers.
type Store interface {
	// CreateOperation inserts the operation together with all its items.
	CreateOperation(ctx context.Context, op *BulkOperation, items []*BulkOperationItem) error

	// GetOperation returns ErrNotFound if id is unknown.
	GetOperation(ctx context.Context, id string) (*BulkOperation, error)

	// ListOperations returns the page selected by f (newest first) and the total match count.
	ListOperations(ctx context.Context, f ListFilter) ([]BulkOperation, int64, error)

	// ListRunnableOperations returns queued or processing operations whose scheduled_for is due.
	ListRunnableOperations(ctx context.Context, now time.Time, limit int) ([]BulkOperation, error)

	// TransitionOperation moves the operation to `to` only if its status is one of `from`.
	TransitionOperation(ctx context.Context, id string, from []OperationStatus, to OperationStatus, patch OperationPatch) (*BulkOperation, error)

	// ApproveOperation records the approval of a pending, not yet approved operation.
	ApproveOperation(ctx context.Context, id, actor string, at time.Time) (*BulkOperation, error)

	// ReserveRollback records rollbackID as the single in-flight rollback of a completed,
	// reversible, not rolled back operation. ErrStatusConflict when any of that does not hold
	// or another rollback is already reserved.
	ReserveRollback(ctx context.Context, originalID, rollbackID string) error

	// ReleaseRollback clears the reservation if rollbackID still holds it.
	ReleaseRollback(ctx context.Context, originalID, rollbackID string) error

	// LinkRollback marks a completed reversible operation as rolled back by rollbackID
	// and clears its reservation.
	LinkRollback(ctx context.Context, originalID, rollbackID string) error

	// FindRollbacks returns every rollback operation created for originalID.
	FindRollbacks(ctx context.Context, originalID string) ([]BulkOperation, error)

	// SaveProgress stores derived progress. The stored percentage never decreases.
	SaveProgress(ctx context.Context, id string, p Progress) error

	// DeleteOperation removes a terminal operation and its items.
	DeleteOperation(ctx context.Context, id string) error

	// Purge deletes terminal operations (and their items) last updated before olderThan.
	Purge(ctx context.Context, olderThan time.Time) (int64, error)

	// ClaimItem atomically moves one due pending item to processing. Returns nil, nil when none is claimable.
	ClaimItem(ctx context.Context, operationID string, now time.Time) (*BulkOperationItem, error)

	// CompleteItem moves a processing item to a terminal status and increments the
	// operation counters in the same step. Returns the updated operation.
	CompleteItem(ctx context.Context, itemID string, c ItemCompletion) (*BulkOperation, error)

	// RequeueItem returns a processing item to pending for a retry attempt.
	RequeueItem(ctx context.Context, itemID string, availableAt time.Time, lastError string) error

	// ReleaseItem returns a processing item to pending without counting a retry.
	ReleaseItem(ctx context.Context, itemID string) error

	// ReconcileCounters recounts the items of a queued or processing operation and stores the
	// result as its counters, provided the stored counters still equal seen. Returns
	// ErrStatusConflict when the operation moved on in the meantime.
	ReconcileCounters(ctx context.Context, id string, seen Counters) (*BulkOperation, error)

	// CountActiveItems counts pending and processing items of the operation.
	CountActiveItems(ctx context.Context, operationID string) (int64, error)

	// ListItems returns items in selection order and the total match count.
	ListItems(ctx context.Context, operationID string, f ItemFilter) ([]BulkOperationItem, int64, error)
}
