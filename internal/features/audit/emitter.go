package audit

import (
	"context"

	common_models "go-bulkops/internal/common/models"
	"go-bulkops/internal/features/bulk_operation"
)

// BulkOperationModule is the audit module name of bulk operation transitions.
const BulkOperationModule = "bulk_operations"

// BulkEmitter persists bulk operation status transitions as audit logs.
type BulkEmitter struct {
	Service AuditService
}

func NewBulkEmitter(service AuditService) bulk_operation.AuditEmitter {
	return &BulkEmitter{Service: service}
}

func (e *BulkEmitter) Emit(ctx context.Context, ev bulk_operation.AuditEvent) error {
	changes := map[string]common_models.Change{
		"status": {Old: string(ev.OldStatus), New: string(ev.NewStatus)},
		"action": {New: ev.Action},
	}
	if ev.OldStatus == "" {
		changes["status"] = common_models.Change{New: string(ev.NewStatus)}
	}
	if ev.Reason != "" {
		changes["reason"] = common_models.Change{New: ev.Reason}
	}
	if ev.OperationType != "" {
		changes["operation_type"] = common_models.Change{New: ev.OperationType}
	}

	return e.Service.LogChange(WithActor(ctx, ev.Actor), common_models.AuditActionBulkOperation, BulkOperationModule, ev.OperationID, changes)
}
