package bulk_operation

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeFailure OutcomeKind = "failure"
	OutcomeSkip    OutcomeKind = "skip"
)

// Outcome is what an ItemExecutor reports for one item.
type Outcome struct {
	Kind      OutcomeKind
	Result    map[string]interface{}
	Err       error
	Retryable bool
	Reason    string
}

func Success(result map[string]interface{}) Outcome {
	return Outcome{Kind: OutcomeSuccess, Result: result}
}

// Failure reports an item error. Only retryable failures are ever retried.
func Failure(err error, retryable bool) Outcome {
	if err == nil {
		err = fmt.Errorf("unknown error")
	}
	return Outcome{Kind: OutcomeFailure, Err: err, Retryable: retryable}
}

func Skip(reason string) Outcome {
	return Outcome{Kind: OutcomeSkip, Reason: reason}
}

// IDKind is the identifier representation an executor expects for its targets.
type IDKind string

const (
	IDKindString   IDKind = "string"
	IDKindObjectID IDKind = "objectid"
	IDKindUUID     IDKind = "uuid"
	IDKindNumeric  IDKind = "numeric"
)

// Validate checks that id is a well-formed identifier of kind k.
func (k IDKind) Validate(id string) error {
	if id == "" {
		return fmt.Errorf("empty target id")
	}
	switch k {
	case IDKindObjectID:
		if !primitive.IsValidObjectID(id) {
			return fmt.Errorf("target id %q is not an ObjectID", id)
		}
	case IDKindUUID:
		if _, err := uuid.Parse(id); err != nil {
			return fmt.Errorf("target id %q is not a UUID", id)
		}
	case IDKindNumeric:
		if _, err := strconv.ParseInt(id, 10, 64); err != nil {
			return fmt.Errorf("target id %q is not numeric", id)
		}
	}
	return nil
}

// OperationDefinition describes an operation type's defaults.
type OperationDefinition struct {
	Type             string `json:"type"`
	InverseType      string `json:"inverse_type,omitempty"`
	ApprovalRequired bool   `json:"approval_required"`
	TargetIDKind     IDKind `json:"target_id_kind"`
	RetryFailed      bool   `json:"retry_failed"`
	MaxRetries       int    `json:"max_retries"`
	Description      string `json:"description,omitempty"`
}

func (d OperationDefinition) IsReversible() bool {
	return d.InverseType != ""
}

// ExecutionRequest carries everything an executor needs to apply one item.
type ExecutionRequest struct {
	OperationID   string
	OperationType string
	TargetID      string
	TargetType    string
	Scope         *string
	Configuration map[string]interface{}
	Attempt       int
}

// ItemExecutor applies one operation type's effect to a single target.
type ItemExecutor interface {
	Definition() OperationDefinition
	Execute(ctx context.Context, req ExecutionRequest) Outcome
}

// ConfigValidator is implemented by executors that check configuration at create time.
type ConfigValidator interface {
	ValidateConfig(scope *string, config map[string]interface{}) error
}

// ConfigString returns a string configuration value, or "" when absent.
func (r ExecutionRequest) ConfigString(key string) string {
	s, _ := r.Configuration[key].(string)
	return s
}

// OriginalResult returns the forward operation's result for this target on a rollback item.
func (r ExecutionRequest) OriginalResult() (map[string]interface{}, bool) {
	results, ok := AsMap(r.Configuration[ConfigOriginalResults])
	if !ok {
		return nil, false
	}
	return AsMap(results[r.TargetID])
}

// AsMap normalizes decoded documents. Mongo hands back primitive.M or primitive.D
// where the memory and Postgres stores hand back plain maps.
func AsMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case primitive.M:
		return m, true
	case primitive.D:
		out := make(map[string]interface{}, len(m))
		for _, e := range m {
			out[e.Key] = e.Value
		}
		return out, true
	}
	return nil, false
}
