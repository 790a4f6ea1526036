package bulk_operation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListWhere(t *testing.T) {
	where, args := listWhere(ListFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args = listWhere(ListFilter{Status: StatusFailed, RollbackOf: "op-1"})
	assert.Equal(t, "WHERE status = $1 AND rollback_of = $2", where)
	assert.Equal(t, []any{"failed", "op-1"}, args)
}

func TestMigrationUp(t *testing.T) {
	ddl := MigrationUp(TableConfig{OperationsTable: "ops", ItemsTable: "op_items"})

	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS ops (")
	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS op_items (")
	assert.Contains(t, ddl, "REFERENCES ops(id) ON DELETE CASCADE")
	assert.Contains(t, ddl, "CHECK (processed_items = successful_items + failed_items + skipped_items)")
	assert.Contains(t, ddl, "CHECK (progress_percentage >= 0 AND progress_percentage <= 100)")
	assert.Contains(t, ddl, "ALTER TABLE ops ADD COLUMN IF NOT EXISTS rollback_pending_id TEXT NOT NULL DEFAULT ''")
	assert.Less(t, strings.Index(ddl, "TABLE IF NOT EXISTS ops"), strings.Index(ddl, "TABLE IF NOT EXISTS op_items"))
}

func TestMigrationDown(t *testing.T) {
	ddl := MigrationDown(DefaultTableConfig())
	assert.Less(t, strings.Index(ddl, "DROP TABLE IF EXISTS bulk_operation_items"), strings.Index(ddl, "DROP TABLE IF EXISTS bulk_operations;"))
}

func TestStatusStrings(t *testing.T) {
	assert.Equal(t, []string{"queued", "processing"}, statusStrings([]OperationStatus{StatusQueued, StatusProcessing}))
}
