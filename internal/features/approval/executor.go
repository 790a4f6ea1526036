package approval

import (
	"context"
	"errors"
	"fmt"

	"go-bulkops/internal/features/bulk_operation"
	"go-bulkops/internal/features/record"
)

const (
	TypeApproval        = "application_approval"
	TypeApprovalRevert  = "application_approval_revert"
	TypeRejection       = "application_rejection"
	TypeRejectionRevert = "application_rejection_revert"
)

// Application statuses.
const (
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusWithdrawn = "withdrawn"
)

const (
	fieldStatus          = "status"
	fieldRejectionReason = "rejection_reason"
	fieldReviewedBy      = "reviewed_by"
)

var ErrApplicationWithdrawn = errors.New("application has been withdrawn")

// DecisionExecutor moves an application into a decided status.
type DecisionExecutor struct {
	def    bulk_operation.OperationDefinition
	repo   record.RecordRepository
	status string
}

func NewApprovalExecutor(repo record.RecordRepository) bulk_operation.ItemExecutor {
	return &DecisionExecutor{
		repo:   repo,
		status: StatusApproved,
		def: bulk_operation.OperationDefinition{
			Type:         TypeApproval,
			InverseType:  TypeApprovalRevert,
			TargetIDKind: bulk_operation.IDKindObjectID,
			RetryFailed:  true,
			MaxRetries:   3,
			Description:  "Approve applications",
		},
	}
}

func NewRejectionExecutor(repo record.RecordRepository) bulk_operation.ItemExecutor {
	return &DecisionExecutor{
		repo:   repo,
		status: StatusRejected,
		def: bulk_operation.OperationDefinition{
			Type:         TypeRejection,
			InverseType:  TypeRejectionRevert,
			TargetIDKind: bulk_operation.IDKindObjectID,
			RetryFailed:  true,
			MaxRetries:   3,
			Description:  "Reject applications with a reason",
		},
	}
}

func (e *DecisionExecutor) Definition() bulk_operation.OperationDefinition {
	return e.def
}

// ValidateConfig requires a rejection reason on rejections.
func (e *DecisionExecutor) ValidateConfig(_ *string, config map[string]interface{}) error {
	if e.status != StatusRejected {
		return nil
	}
	if reason, _ := config[fieldRejectionReason].(string); reason == "" {
		return fmt.Errorf("%s is required", fieldRejectionReason)
	}
	return nil
}

func (e *DecisionExecutor) Execute(ctx context.Context, req bulk_operation.ExecutionRequest) bulk_operation.Outcome {
	app, err := e.repo.Get(ctx, req.TargetType, req.TargetID)
	if errors.Is(err, record.ErrRecordNotFound) {
		return bulk_operation.Skip("application not found")
	}
	if err != nil {
		return bulk_operation.Failure(err, true)
	}

	current, _ := app.Data[fieldStatus].(string)
	switch current {
	case e.status:
		return bulk_operation.Skip("application already " + e.status)
	case StatusWithdrawn:
		return bulk_operation.Failure(ErrApplicationWithdrawn, false)
	}

	patch := map[string]interface{}{fieldStatus: e.status}
	result := map[string]interface{}{
		fieldStatus:       e.status,
		"previous_status": app.Data[fieldStatus],
	}
	if reviewer := req.ConfigString(fieldReviewedBy); reviewer != "" {
		patch[fieldReviewedBy] = reviewer
	}
	if e.status == StatusRejected {
		patch[fieldRejectionReason] = req.ConfigString(fieldRejectionReason)
		result["previous_rejection_reason"] = app.Data[fieldRejectionReason]
	}

	if _, err := e.repo.Update(ctx, req.TargetType, req.TargetID, patch, req.OperationID); err != nil {
		if errors.Is(err, record.ErrRecordNotFound) {
			return bulk_operation.Skip("application not found")
		}
		return bulk_operation.Failure(err, true)
	}
	return bulk_operation.Success(result)
}

// RevertExecutor restores the status an application had before a decision.
type RevertExecutor struct {
	def     bulk_operation.OperationDefinition
	repo    record.RecordRepository
	decided string
}

func NewApprovalRevertExecutor(repo record.RecordRepository) bulk_operation.ItemExecutor {
	return &RevertExecutor{
		repo:    repo,
		decided: StatusApproved,
		def: bulk_operation.OperationDefinition{
			Type:         TypeApprovalRevert,
			TargetIDKind: bulk_operation.IDKindObjectID,
			RetryFailed:  true,
			MaxRetries:   3,
			Description:  "Undo an application approval",
		},
	}
}

func NewRejectionRevertExecutor(repo record.RecordRepository) bulk_operation.ItemExecutor {
	return &RevertExecutor{
		repo:    repo,
		decided: StatusRejected,
		def: bulk_operation.OperationDefinition{
			Type:         TypeRejectionRevert,
			TargetIDKind: bulk_operation.IDKindObjectID,
			RetryFailed:  true,
			MaxRetries:   3,
			Description:  "Undo an application rejection",
		},
	}
}

func (e *RevertExecutor) Definition() bulk_operation.OperationDefinition {
	return e.def
}

func (e *RevertExecutor) Execute(ctx context.Context, req bulk_operation.ExecutionRequest) bulk_operation.Outcome {
	original, ok := req.OriginalResult()
	if !ok {
		return bulk_operation.Skip("no recorded previous status")
	}

	app, err := e.repo.Get(ctx, req.TargetType, req.TargetID)
	if errors.Is(err, record.ErrRecordNotFound) {
		return bulk_operation.Skip("application not found")
	}
	if err != nil {
		return bulk_operation.Failure(err, true)
	}
	if current, _ := app.Data[fieldStatus].(string); current != e.decided {
		return bulk_operation.Skip(fmt.Sprintf("application is %q, not %q", current, e.decided))
	}

	// A nil previous value clears the field.
	patch := map[string]interface{}{fieldStatus: original["previous_status"]}
	if e.decided == StatusRejected {
		patch[fieldRejectionReason] = original["previous_rejection_reason"]
	}

	if _, err := e.repo.Update(ctx, req.TargetType, req.TargetID, patch, req.OperationID); err != nil {
		if errors.Is(err, record.ErrRecordNotFound) {
			return bulk_operation.Skip("application not found")
		}
		return bulk_operation.Failure(err, true)
	}
	return bulk_operation.Success(map[string]interface{}{
		fieldStatus:     original["previous_status"],
		"reverted_from": e.decided,
	})
}
