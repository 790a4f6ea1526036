package automation

import (
	"context"
	"errors"
	"fmt"

	"go-bulkops/internal/features/bulk_operation"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const TypeCustomScript = "custom_script"

const maxScriptAllocs = 100000

// Modules a script may import. os and the like are withheld.
var scriptModules = []string{"math", "text", "times", "rand", "json", "base64", "hex", "enum", "fmt"}

// ScriptExecutor runs a tengo script once per target.
//
// The script sees target_id, target_type, operation_id, attempt and config, and reports
// back by assigning the globals result (map), skip (reason string or true),
// fail (error message) and retryable (bool).
type ScriptExecutor struct {
	log *zap.Logger
}

func NewScriptExecutor(log *zap.Logger) bulk_operation.ItemExecutor {
	return &ScriptExecutor{log: log.Named("custom_script")}
}

func (e *ScriptExecutor) Definition() bulk_operation.OperationDefinition {
	return bulk_operation.OperationDefinition{
		Type:             TypeCustomScript,
		ApprovalRequired: true,
		TargetIDKind:     bulk_operation.IDKindString,
		RetryFailed:      false,
		MaxRetries:       1,
		Description:      "Run a script against each target",
	}
}

// ValidateConfig compiles the script so syntax errors surface at create time.
func (e *ScriptExecutor) ValidateConfig(_ *string, config map[string]interface{}) error {
	src, _ := config["script"].(string)
	if src == "" {
		return fmt.Errorf("script is required")
	}
	_, err := compile(src, bulk_operation.ExecutionRequest{Configuration: config})
	return err
}

func compile(src string, req bulk_operation.ExecutionRequest) (*tengo.Compiled, error) {
	script := tengo.NewScript([]byte(src))
	script.SetImports(stdlib.GetModuleMap(scriptModules...))
	script.SetMaxAllocs(maxScriptAllocs)

	config, _ := plain(req.Configuration).(map[string]interface{})
	if config == nil {
		config = map[string]interface{}{}
	}
	delete(config, "script")

	vars := map[string]interface{}{
		"target_id":    req.TargetID,
		"target_type":  req.TargetType,
		"operation_id": req.OperationID,
		"attempt":      req.Attempt,
		"config":       config,
		"result":       nil,
		"skip":         false,
		"fail":         "",
		"retryable":    false,
	}
	for name, v := range vars {
		if err := script.Add(name, v); err != nil {
			return nil, fmt.Errorf("script variable %s: %w", name, err)
		}
	}

	compiled, err := script.Compile()
	if err != nil {
		return nil, fmt.Errorf("failed to compile script: %w", err)
	}
	return compiled, nil
}

func (e *ScriptExecutor) Execute(ctx context.Context, req bulk_operation.ExecutionRequest) bulk_operation.Outcome {
	compiled, err := compile(req.ConfigString("script"), req)
	if err != nil {
		return bulk_operation.Failure(err, false)
	}

	if err := compiled.RunContext(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return bulk_operation.Failure(err, true)
		}
		e.log.Warn("Script failed", zap.String("operation_id", req.OperationID), zap.String("target_id", req.TargetID), zap.Error(err))
		return bulk_operation.Failure(fmt.Errorf("failed to run script: %w", err), false)
	}

	if msg := compiled.Get("fail").String(); msg != "" {
		return bulk_operation.Failure(errors.New(msg), compiled.Get("retryable").Bool())
	}

	skip := compiled.Get("skip")
	switch v := skip.Value().(type) {
	case string:
		if v != "" {
			return bulk_operation.Skip(v)
		}
	case bool:
		if v {
			return bulk_operation.Skip("skipped by script")
		}
	}

	res := compiled.Get("result")
	if res.IsUndefined() {
		return bulk_operation.Success(nil)
	}
	if m := res.Map(); m != nil {
		return bulk_operation.Success(m)
	}
	return bulk_operation.Success(map[string]interface{}{"value": res.Value()})
}

// plain converts decoded documents into types tengo can import.
func plain(v interface{}) interface{} {
	if m, ok := bulk_operation.AsMap(v); ok {
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[k] = plain(val)
		}
		return out
	}
	switch list := v.(type) {
	case primitive.A:
		return plain([]interface{}(list))
	case []interface{}:
		out := make([]interface{}, len(list))
		for i, val := range list {
			out[i] = plain(val)
		}
		return out
	case []string:
		out := make([]interface{}, len(list))
		for i, val := range list {
			out[i] = val
		}
		return out
	case int32:
		return int64(list)
	case primitive.ObjectID:
		return list.Hex()
	}
	return v
}
