package bulk_operation

import "fmt"

// TableConfig names the Postgres tables of the store.
type TableConfig struct {
	OperationsTable string
	ItemsTable      string
}

func DefaultTableConfig() TableConfig {
	return TableConfig{
		OperationsTable: "bulk_operations",
		ItemsTable:      "bulk_operation_items",
	}
}

// MigrationUp returns the DDL creating both tables. Counter invariants are
// enforced by CHECK constraints in addition to the engine.
func MigrationUp(config TableConfig) string {
	ops, items := config.OperationsTable, config.ItemsTable
	return fmt.Sprintf(`-- Create %[1]s table
CREATE TABLE IF NOT EXISTS %[1]s (
    id TEXT PRIMARY KEY,
    operation_type TEXT NOT NULL,
    initiator TEXT NOT NULL DEFAULT '',
    scope TEXT,
    target_entity_type TEXT NOT NULL,
    selection_criteria JSONB NOT NULL DEFAULT '{}',
    configuration JSONB NOT NULL DEFAULT '{}',
    status TEXT NOT NULL DEFAULT 'pending',
    total_items BIGINT NOT NULL DEFAULT 0,
    processed_items BIGINT NOT NULL DEFAULT 0,
    successful_items BIGINT NOT NULL DEFAULT 0,
    failed_items BIGINT NOT NULL DEFAULT 0,
    skipped_items BIGINT NOT NULL DEFAULT 0,
    progress_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
    scheduled_for TIMESTAMPTZ,
    started_at TIMESTAMPTZ,
    completed_at TIMESTAMPTZ,
    processing_time_ms BIGINT NOT NULL DEFAULT 0,
    avg_item_time_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
    retry_failed BOOLEAN NOT NULL DEFAULT FALSE,
    max_retries INTEGER NOT NULL DEFAULT 0,
    retry_count INTEGER NOT NULL DEFAULT 0,
    is_reversible BOOLEAN NOT NULL DEFAULT FALSE,
    rollback_operation_id TEXT NOT NULL DEFAULT '',
    rolled_back BOOLEAN NOT NULL DEFAULT FALSE,
    rollback_of TEXT NOT NULL DEFAULT '',
    rollback_pending_id TEXT NOT NULL DEFAULT '',
    approval_required BOOLEAN NOT NULL DEFAULT FALSE,
    approved_by TEXT NOT NULL DEFAULT '',
    approved_at TIMESTAMPTZ,
    cancelled_by TEXT NOT NULL DEFAULT '',
    cancellation_reason TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT %[1]s_processed_sum CHECK (processed_items = successful_items + failed_items + skipped_items),
    CONSTRAINT %[1]s_processed_bound CHECK (processed_items <= total_items),
    CONSTRAINT %[1]s_progress_bound CHECK (progress_percentage >= 0 AND progress_percentage <= 100)
);

-- Added after the first release
ALTER TABLE %[1]s ADD COLUMN IF NOT EXISTS rollback_pending_id TEXT NOT NULL DEFAULT '';

-- Index for the worker readiness scan
CREATE INDEX IF NOT EXISTS idx_%[1]s_runnable ON %[1]s(status, scheduled_for);

-- Index for rollback lookups
CREATE INDEX IF NOT EXISTS idx_%[1]s_rollback_of ON %[1]s(rollback_of);

-- Index for listing newest first
CREATE INDEX IF NOT EXISTS idx_%[1]s_created_at ON %[1]s(created_at DESC);

-- Create %[2]s table
CREATE TABLE IF NOT EXISTS %[2]s (
    id TEXT PRIMARY KEY,
    bulk_operation_id TEXT NOT NULL REFERENCES %[1]s(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    target_id TEXT NOT NULL,
    target_type TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    started_at TIMESTAMPTZ,
    completed_at TIMESTAMPTZ,
    processing_time_ms BIGINT NOT NULL DEFAULT 0,
    result JSONB,
    error_message TEXT NOT NULL DEFAULT '',
    retry_count INTEGER NOT NULL DEFAULT 0,
    available_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Index for claiming items in selection order
CREATE INDEX IF NOT EXISTS idx_%[2]s_claim ON %[2]s(bulk_operation_id, status, seq);
`, ops, items)
}

// MigrationDown drops the items table first because of the foreign key.
func MigrationDown(config TableConfig) string {
	return fmt.Sprintf(`-- Drop %[2]s table (must be dropped first due to foreign key)
DROP TABLE IF EXISTS %[2]s;

-- Drop %[1]s table
DROP TABLE IF EXISTS %[1]s;
`, config.OperationsTable, config.ItemsTable)
}
