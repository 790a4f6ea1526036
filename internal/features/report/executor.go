package report

import (
	"context"
	"errors"
	"fmt"

	"go-bulkops/internal/features/bulk_operation"
	"go-bulkops/internal/features/record"
)

const TypeDataExport = "data_export"

// ExportExecutor writes each target record as a row of the operation's workbook.
type ExportExecutor struct {
	writer  *ExportWriter
	records record.RecordRepository
}

func NewExportExecutor(writer *ExportWriter, records record.RecordRepository) bulk_operation.ItemExecutor {
	return &ExportExecutor{writer: writer, records: records}
}

func (e *ExportExecutor) Definition() bulk_operation.OperationDefinition {
	return bulk_operation.OperationDefinition{
		Type:         TypeDataExport,
		TargetIDKind: bulk_operation.IDKindString,
		RetryFailed:  true,
		MaxRetries:   2,
		Description:  "Export target records to an xlsx workbook",
	}
}

// ValidateConfig accepts an optional list of field names to export.
func (e *ExportExecutor) ValidateConfig(_ *string, config map[string]interface{}) error {
	_, err := fieldList(config)
	return err
}

func fieldList(config map[string]interface{}) ([]string, error) {
	raw, ok := config["fields"]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		if strs, ok := raw.([]string); ok {
			return strs, nil
		}
		return nil, fmt.Errorf("fields must be a list of names")
	}
	fields := make([]string, 0, len(list))
	for _, v := range list {
		name, ok := v.(string)
		if !ok || name == "" {
			return nil, fmt.Errorf("fields must be a list of names")
		}
		fields = append(fields, name)
	}
	return fields, nil
}

func (e *ExportExecutor) Execute(ctx context.Context, req bulk_operation.ExecutionRequest) bulk_operation.Outcome {
	rec, err := e.records.Get(ctx, req.TargetType, req.TargetID)
	if errors.Is(err, record.ErrRecordNotFound) {
		return bulk_operation.Skip("record not found")
	}
	if err != nil {
		return bulk_operation.Failure(err, true)
	}

	fields, err := fieldList(req.Configuration)
	if err != nil {
		return bulk_operation.Failure(err, false)
	}
	row := rec.Data
	if len(fields) > 0 {
		row = make(map[string]interface{}, len(fields))
		for _, name := range fields {
			row[name] = rec.Data[name]
		}
	}

	if err := ctx.Err(); err != nil {
		return bulk_operation.Failure(err, true)
	}
	rowNum, existed, err := e.writer.AppendRow(req.OperationID, req.TargetID, row)
	if err != nil {
		return bulk_operation.Failure(err, !errors.Is(err, ErrInvalidExportName))
	}
	return bulk_operation.Success(map[string]interface{}{
		"row":       rowNum,
		"duplicate": existed,
	})
}
