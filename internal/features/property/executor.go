package property

import (
	"context"
	"errors"
	"fmt"

	"go-bulkops/internal/features/bulk_operation"
	"go-bulkops/internal/features/record"
)

const (
	TypeAssignment   = "property_assignment"
	TypeUnassignment = "property_unassignment"

	fieldPropertyID = "property_id"
)

var ErrTargetNotFound = errors.New("target record not found")

// propertyFor picks the property from the operation scope, falling back to configuration.
func propertyFor(scope *string, config map[string]interface{}) string {
	if scope != nil && *scope != "" {
		return *scope
	}
	id, _ := config[fieldPropertyID].(string)
	return id
}

type AssignmentExecutor struct {
	repo record.RecordRepository
}

func NewAssignmentExecutor(repo record.RecordRepository) bulk_operation.ItemExecutor {
	return &AssignmentExecutor{repo: repo}
}

func (e *AssignmentExecutor) Definition() bulk_operation.OperationDefinition {
	return bulk_operation.OperationDefinition{
		Type:         TypeAssignment,
		InverseType:  TypeUnassignment,
		TargetIDKind: bulk_operation.IDKindString,
		RetryFailed:  true,
		MaxRetries:   3,
		Description:  "Assign targets to a property",
	}
}

func (e *AssignmentExecutor) ValidateConfig(scope *string, config map[string]interface{}) error {
	if propertyFor(scope, config) == "" {
		return fmt.Errorf("scope or configuration.%s is required", fieldPropertyID)
	}
	return nil
}

func (e *AssignmentExecutor) Execute(ctx context.Context, req bulk_operation.ExecutionRequest) bulk_operation.Outcome {
	propertyID := propertyFor(req.Scope, req.Configuration)

	target, err := e.repo.Get(ctx, req.TargetType, req.TargetID)
	if errors.Is(err, record.ErrRecordNotFound) {
		return bulk_operation.Failure(ErrTargetNotFound, false)
	}
	if err != nil {
		return bulk_operation.Failure(err, true)
	}

	previous := target.Data[fieldPropertyID]
	if previous == propertyID {
		return bulk_operation.Skip("already assigned to " + propertyID)
	}

	if _, err := e.repo.Update(ctx, req.TargetType, req.TargetID, map[string]interface{}{fieldPropertyID: propertyID}, req.OperationID); err != nil {
		if errors.Is(err, record.ErrRecordNotFound) {
			return bulk_operation.Failure(ErrTargetNotFound, false)
		}
		return bulk_operation.Failure(err, true)
	}
	return bulk_operation.Success(map[string]interface{}{
		fieldPropertyID:        propertyID,
		"previous_property_id": previous,
	})
}

// UnassignmentExecutor clears a target's property. As a rollback it restores
// the property recorded by the assignment it reverses.
type UnassignmentExecutor struct {
	repo record.RecordRepository
}

func NewUnassignmentExecutor(repo record.RecordRepository) bulk_operation.ItemExecutor {
	return &UnassignmentExecutor{repo: repo}
}

func (e *UnassignmentExecutor) Definition() bulk_operation.OperationDefinition {
	return bulk_operation.OperationDefinition{
		Type:         TypeUnassignment,
		TargetIDKind: bulk_operation.IDKindString,
		RetryFailed:  true,
		MaxRetries:   3,
		Description:  "Remove targets from a property",
	}
}

func (e *UnassignmentExecutor) Execute(ctx context.Context, req bulk_operation.ExecutionRequest) bulk_operation.Outcome {
	target, err := e.repo.Get(ctx, req.TargetType, req.TargetID)
	if errors.Is(err, record.ErrRecordNotFound) {
		return bulk_operation.Failure(ErrTargetNotFound, false)
	}
	if err != nil {
		return bulk_operation.Failure(err, true)
	}

	current, hasCurrent := target.Data[fieldPropertyID]
	var restore interface{}

	if original, ok := req.OriginalResult(); ok {
		if current != original[fieldPropertyID] {
			return bulk_operation.Skip("property changed since assignment")
		}
		restore = original["previous_property_id"]
	} else {
		if !hasCurrent {
			return bulk_operation.Skip("no property assigned")
		}
		if want := propertyFor(req.Scope, req.Configuration); want != "" && current != want {
			return bulk_operation.Skip("assigned to a different property")
		}
	}

	if _, err := e.repo.Update(ctx, req.TargetType, req.TargetID, map[string]interface{}{fieldPropertyID: restore}, req.OperationID); err != nil {
		if errors.Is(err, record.ErrRecordNotFound) {
			return bulk_operation.Failure(ErrTargetNotFound, false)
		}
		return bulk_operation.Failure(err, true)
	}
	return bulk_operation.Success(map[string]interface{}{
		fieldPropertyID:        restore,
		"previous_property_id": current,
	})
}
