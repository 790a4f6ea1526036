package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go-bulkops/internal/config"

	"github.com/xuri/excelize/v2"
)

const (
	exportSheet    = "Export"
	targetIDColumn = "target_id"
)

var ErrInvalidExportName = errors.New("invalid export name")

// ExportWriter appends rows to one workbook per bulk operation.
// Writes to the same workbook are serialized; different operations write in parallel.
type ExportWriter struct {
	dir   string
	locks sync.Map // operation id -> *sync.Mutex
}

func NewExportWriter(cfg *config.Config) *ExportWriter {
	return &ExportWriter{dir: cfg.ExportDir}
}

// Path returns the workbook location for an operation.
func (w *ExportWriter) Path(operationID string) (string, error) {
	if operationID == "" || filepath.Base(operationID) != operationID || operationID == "." || operationID == ".." {
		return "", ErrInvalidExportName
	}
	return filepath.Join(w.dir, operationID+".xlsx"), nil
}

func (w *ExportWriter) lock(operationID string) func() {
	m, _ := w.locks.LoadOrStore(operationID, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// AppendRow writes one row keyed by targetID. New fields extend the header.
// It returns the sheet row number and whether the target was already present.
func (w *ExportWriter) AppendRow(operationID, targetID string, fields map[string]interface{}) (int, bool, error) {
	path, err := w.Path(operationID)
	if err != nil {
		return 0, false, err
	}
	unlock := w.lock(operationID)
	defer unlock()

	f, err := w.open(path)
	if err != nil {
		return 0, false, err
	}
	defer f.Close()

	rows, err := f.GetRows(exportSheet)
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		if err := f.SetCellValue(exportSheet, "A1", targetIDColumn); err != nil {
			return 0, false, err
		}
		rows = [][]string{{targetIDColumn}}
	}
	header := rows[0]
	for i, row := range rows[1:] {
		if len(row) > 0 && row[0] == targetID {
			return i + 2, true, nil
		}
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[name] = i
	}
	for _, k := range keys {
		if _, ok := columns[k]; ok {
			continue
		}
		columns[k] = len(header)
		header = append(header, k)
		cell, _ := excelize.CoordinatesToCellName(len(header), 1)
		if err := f.SetCellValue(exportSheet, cell, k); err != nil {
			return 0, false, err
		}
	}

	row := make([]interface{}, len(header))
	row[0] = targetID
	for _, k := range keys {
		row[columns[k]] = cellValue(fields[k])
	}
	rowNum := len(rows) + 1
	cell, _ := excelize.CoordinatesToCellName(1, rowNum)
	if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
		return 0, false, err
	}

	if err := f.SaveAs(path); err != nil {
		return 0, false, fmt.Errorf("save export: %w", err)
	}
	return rowNum, false, nil
}

func (w *ExportWriter) open(path string) (*excelize.File, error) {
	if _, err := os.Stat(path); err == nil {
		return excelize.OpenFile(path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		f.Close()
		return nil, err
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	f.SetCellValue(exportSheet, "A1", targetIDColumn)
	f.SetRowStyle(exportSheet, 1, 1, headerStyle)
	return f, nil
}

func cellValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return ""
	case string, bool, int, int32, int64, float64:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
