package bulk_operation

import (
	"time"
)

type OperationStatus string

const (
	StatusPending        OperationStatus = "pending"
	StatusQueued         OperationStatus = "queued"
	StatusProcessing     OperationStatus = "processing"
	StatusCompleted      OperationStatus = "completed"
	StatusFailed         OperationStatus = "failed"
	StatusCancelled      OperationStatus = "cancelled"
	StatusPartialSuccess OperationStatus = "partial_success"
)

// IsTerminal reports whether no further transition is possible.
func (s OperationStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusPartialSuccess:
		return true
	}
	return false
}

func (s OperationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusQueued, StatusProcessing,
		StatusCompleted, StatusFailed, StatusCancelled, StatusPartialSuccess:
		return true
	}
	return false
}

// ActiveStatuses are the statuses an operation can be cancelled from.
var ActiveStatuses = []OperationStatus{StatusPending, StatusQueued, StatusProcessing}

// TerminalStatuses are the statuses retention may purge.
var TerminalStatuses = []OperationStatus{StatusCompleted, StatusFailed, StatusCancelled, StatusPartialSuccess}

type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemProcessing ItemStatus = "processing"
	ItemSuccess    ItemStatus = "success"
	ItemFailed     ItemStatus = "failed"
	ItemSkipped    ItemStatus = "skipped"
)

func (s ItemStatus) IsTerminal() bool {
	return s == ItemSuccess || s == ItemFailed || s == ItemSkipped
}

func (s ItemStatus) Valid() bool {
	switch s {
	case ItemPending, ItemProcessing, ItemSuccess, ItemFailed, ItemSkipped:
		return true
	}
	return false
}

// BulkOperation is one requested batch action over a materialized target set.
type BulkOperation struct {
	ID                string                 `json:"id" bson:"_id"`
	OperationType     string                 `json:"operation_type" bson:"operation_type"`
	Initiator         string                 `json:"initiator" bson:"initiator"`
	Scope             *string                `json:"scope" bson:"scope"`
	TargetEntityType  string                 `json:"target_entity_type" bson:"target_entity_type"`
	SelectionCriteria map[string]interface{} `json:"selection_criteria" bson:"selection_criteria"`
	Configuration     map[string]interface{} `json:"configuration" bson:"configuration"`
	Status            OperationStatus        `json:"status" bson:"status"`

	TotalItems         int64   `json:"total_items" bson:"total_items"`
	ProcessedItems     int64   `json:"processed_items" bson:"processed_items"`
	SuccessfulItems    int64   `json:"successful_items" bson:"successful_items"`
	FailedItems        int64   `json:"failed_items" bson:"failed_items"`
	SkippedItems       int64   `json:"skipped_items" bson:"skipped_items"`
	ProgressPercentage float64 `json:"progress_percentage" bson:"progress_percentage"`

	ScheduledFor     *time.Time `json:"scheduled_for,omitempty" bson:"scheduled_for,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty" bson:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	ProcessingTimeMs int64      `json:"processing_time_ms" bson:"processing_time_ms"`
	AvgItemTimeMs    float64    `json:"avg_item_time_ms" bson:"avg_item_time_ms"`

	RetryFailed bool `json:"retry_failed" bson:"retry_failed"`
	MaxRetries  int  `json:"max_retries" bson:"max_retries"`
	RetryCount  int  `json:"retry_count" bson:"retry_count"`

	IsReversible        bool   `json:"is_reversible" bson:"is_reversible"`
	RollbackOperationID string `json:"rollback_operation_id,omitempty" bson:"rollback_operation_id,omitempty"`
	RolledBack          bool   `json:"rolled_back" bson:"rolled_back"`
	RollbackOf          string `json:"rollback_of,omitempty" bson:"rollback_of,omitempty"`
	// RollbackPendingID is the rollback currently reserved for this operation; cleared when it finishes.
	RollbackPendingID string `json:"rollback_pending_id,omitempty" bson:"rollback_pending_id,omitempty"`

	ApprovalRequired bool       `json:"approval_required" bson:"approval_required"`
	ApprovedBy       string     `json:"approved_by,omitempty" bson:"approved_by,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty" bson:"approved_at,omitempty"`

	CancelledBy        string `json:"cancelled_by,omitempty" bson:"cancelled_by,omitempty"`
	CancellationReason string `json:"cancellation_reason,omitempty" bson:"cancellation_reason,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`

	// Derived on read, never persisted.
	EstimatedCompletionTime *time.Time `json:"estimated_completion_time,omitempty" bson:"-"`
}

// Counters returns the item counters of the snapshot.
func (op *BulkOperation) Counters() Counters {
	return Counters{
		Total:      op.TotalItems,
		Processed:  op.ProcessedItems,
		Successful: op.SuccessfulItems,
		Failed:     op.FailedItems,
		Skipped:    op.SkippedItems,
	}
}

// BulkOperationItem is one target entity's unit of work within an operation.
type BulkOperationItem struct {
	ID               string                 `json:"id" bson:"_id"`
	BulkOperationID  string                 `json:"bulk_operation_id" bson:"bulk_operation_id"`
	Seq              int                    `json:"seq" bson:"seq"`
	TargetID         string                 `json:"target_id" bson:"target_id"`
	TargetType       string                 `json:"target_type" bson:"target_type"`
	Status           ItemStatus             `json:"status" bson:"status"`
	StartedAt        *time.Time             `json:"started_at,omitempty" bson:"started_at,omitempty"`
	CompletedAt      *time.Time             `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	ProcessingTimeMs int64                  `json:"processing_time_ms" bson:"processing_time_ms"`
	Result           map[string]interface{} `json:"result,omitempty" bson:"result,omitempty"`
	ErrorMessage     string                 `json:"error_message,omitempty" bson:"error_message,omitempty"`
	RetryCount       int                    `json:"retry_count" bson:"retry_count"`
	AvailableAt      time.Time              `json:"available_at" bson:"available_at"`
	CreatedAt        time.Time              `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at" bson:"updated_at"`
}

// CreateRequest is the caller-facing shape of a new operation.
type CreateRequest struct {
	OperationType     string                 `json:"operation_type" validate:"required,snake_ident"`
	Scope             *string                `json:"scope"`
	TargetEntityType  string                 `json:"target_entity_type" validate:"required,snake_ident"`
	SelectionCriteria map[string]interface{} `json:"selection_criteria" validate:"required"`
	Configuration     map[string]interface{} `json:"configuration"`
	RetryFailed       *bool                  `json:"retry_failed"`
	MaxRetries        *int                   `json:"max_retries" validate:"omitempty,min=0,max=10"`
	ScheduledFor      *time.Time             `json:"scheduled_for"`
	Initiator         string                 `json:"-"`
}

// ListFilter narrows ListOperations. Zero values match everything.
type ListFilter struct {
	Status        OperationStatus
	OperationType string
	Initiator     string
	RollbackOf    string
	Limit         int64
	Offset        int64
}

// ItemFilter narrows ListItems. Limit 0 returns every matching item.
type ItemFilter struct {
	Status ItemStatus
	Limit  int64
	Offset int64
}
