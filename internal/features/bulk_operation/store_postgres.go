package bulk_operation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const operationColumns = `id, operation_type, initiator, scope, target_entity_type, selection_criteria, configuration,
	status, total_items, processed_items, successful_items, failed_items, skipped_items, progress_percentage,
	scheduled_for, started_at, completed_at, processing_time_ms, avg_item_time_ms,
	retry_failed, max_retries, retry_count, is_reversible, rollback_operation_id, rolled_back, rollback_of,
	rollback_pending_id, approval_required, approved_by, approved_at, cancelled_by, cancellation_reason, created_at, updated_at`

const itemColumns = `id, bulk_operation_id, seq, target_id, target_type, status, started_at, completed_at,
	processing_time_ms, result, error_message, retry_count, available_at, created_at, updated_at`

// PostgresStore claims items with FOR UPDATE SKIP LOCKED and completes them in a
// transaction together with the counter increments.
type PostgresStore struct {
	db         *sql.DB
	opsTable   string
	itemsTable string
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return NewPostgresStoreWithConfig(db, DefaultTableConfig())
}

func NewPostgresStoreWithConfig(db *sql.DB, config TableConfig) *PostgresStore {
	return &PostgresStore{
		db:         db,
		opsTable:   config.OperationsTable,
		itemsTable: config.ItemsTable,
	}
}

// Migrate applies MigrationUp. Every statement is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, MigrationUp(TableConfig{OperationsTable: s.opsTable, ItemsTable: s.itemsTable}))
	if err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperation(row rowScanner) (*BulkOperation, error) {
	var (
		op                                  BulkOperation
		scope                               sql.NullString
		selection, configuration            []byte
		scheduled, started, completed, appr sql.NullTime
	)
	err := row.Scan(
		&op.ID, &op.OperationType, &op.Initiator, &scope, &op.TargetEntityType, &selection, &configuration,
		&op.Status, &op.TotalItems, &op.ProcessedItems, &op.SuccessfulItems, &op.FailedItems, &op.SkippedItems, &op.ProgressPercentage,
		&scheduled, &started, &completed, &op.ProcessingTimeMs, &op.AvgItemTimeMs,
		&op.RetryFailed, &op.MaxRetries, &op.RetryCount, &op.IsReversible, &op.RollbackOperationID, &op.RolledBack, &op.RollbackOf,
		&op.RollbackPendingID, &op.ApprovalRequired, &op.ApprovedBy, &appr, &op.CancelledBy, &op.CancellationReason, &op.CreatedAt, &op.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if scope.Valid {
		v := scope.String
		op.Scope = &v
	}
	op.ScheduledFor = timePtr(scheduled)
	op.StartedAt = timePtr(started)
	op.CompletedAt = timePtr(completed)
	op.ApprovedAt = timePtr(appr)
	if err := unmarshalJSON(selection, &op.SelectionCriteria); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(configuration, &op.Configuration); err != nil {
		return nil, err
	}
	return &op, nil
}

func scanItem(row rowScanner) (*BulkOperationItem, error) {
	var (
		it                 BulkOperationItem
		started, completed sql.NullTime
		result             []byte
	)
	err := row.Scan(
		&it.ID, &it.BulkOperationID, &it.Seq, &it.TargetID, &it.TargetType, &it.Status, &started, &completed,
		&it.ProcessingTimeMs, &result, &it.ErrorMessage, &it.RetryCount, &it.AvailableAt, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	it.StartedAt = timePtr(started)
	it.CompletedAt = timePtr(completed)
	if err := unmarshalJSON(result, &it.Result); err != nil {
		return nil, err
	}
	return &it, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func unmarshalJSON(raw []byte, dst *map[string]interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func marshalJSON(v map[string]interface{}) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

func statusStrings(set []OperationStatus) []string {
	out := make([]string, 0, len(set))
	for _, s := range set {
		out = append(out, string(s))
	}
	return out
}

// missOrConflict classifies a conditional update on table that affected no row.
func (s *PostgresStore) missOrConflict(ctx context.Context, q queryer, table, id string) error {
	var exists bool
	err := q.QueryRowContext(ctx, fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)`, table), id).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStatusConflict
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) CreateOperation(ctx context.Context, op *BulkOperation, items []*BulkOperationItem) error {
	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	selection, err := marshalJSON(op.SelectionCriteria)
	if err != nil {
		return fmt.Errorf("selection_criteria: %w", err)
	}
	configuration, err := marshalJSON(op.Configuration)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var scope any
	if op.Scope != nil {
		scope = *op.Scope
	}
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, operation_type, initiator, scope, target_entity_type, selection_criteria, configuration,
			status, total_items, scheduled_for, retry_failed, max_retries, is_reversible, rollback_of,
			approval_required, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, s.opsTable),
		op.ID, op.OperationType, op.Initiator, scope, op.TargetEntityType, selection, configuration,
		string(op.Status), op.TotalItems, nullTime(op.ScheduledFor), op.RetryFailed, op.MaxRetries, op.IsReversible, op.RollbackOf,
		op.ApprovalRequired, op.CreatedAt, op.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert operation: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, bulk_operation_id, seq, target_id, target_type, status, available_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, s.itemsTable))
	if err != nil {
		return fmt.Errorf("failed to prepare item insert: %w", err)
	}
	defer stmt.Close()

	for _, it := range items {
		if it.ID == "" {
			it.ID = uuid.New().String()
		}
		it.BulkOperationID = op.ID
		if _, err := stmt.ExecContext(ctx, it.ID, op.ID, it.Seq, it.TargetID, it.TargetType, string(it.Status), it.AvailableAt, it.CreatedAt, it.UpdatedAt); err != nil {
			return fmt.Errorf("failed to insert item: %w", err)
		}
	}

	return tx.Commit()
}

func (s *PostgresStore) GetOperation(ctx context.Context, id string) (*BulkOperation, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, operationColumns, s.opsTable), id)
	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	return op, nil
}

// listWhere builds the WHERE clause and arguments of a ListFilter.
func listWhere(f ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if f.Status != "" {
		add("status", string(f.Status))
	}
	if f.OperationType != "" {
		add("operation_type", f.OperationType)
	}
	if f.Initiator != "" {
		add("initiator", f.Initiator)
	}
	if f.RollbackOf != "" {
		add("rollback_of", f.RollbackOf)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func (s *PostgresStore) ListOperations(ctx context.Context, f ListFilter) ([]BulkOperation, int64, error) {
	where, args := listWhere(f)

	var total int64
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s %s`, s.opsTable, where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count operations: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM %s %s ORDER BY created_at DESC`, operationColumns, s.opsTable, where)
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", f.Offset)
	}
	ops, err := s.queryOperations(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return ops, total, nil
}

func (s *PostgresStore) queryOperations(ctx context.Context, query string, args ...any) ([]BulkOperation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	ops := make([]BulkOperation, 0)
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		ops = append(ops, *op)
	}
	return ops, rows.Err()
}

func (s *PostgresStore) ListRunnableOperations(ctx context.Context, now time.Time, limit int) ([]BulkOperation, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE status IN ('queued', 'processing') AND (scheduled_for IS NULL OR scheduled_for <= $1)
		ORDER BY created_at`, operationColumns, s.opsTable)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.queryOperations(ctx, query, now)
}

func (s *PostgresStore) TransitionOperation(ctx context.Context, id string, from []OperationStatus, to OperationStatus, p OperationPatch) (*BulkOperation, error) {
	var (
		processing, avg, pct any
		cancelledBy, reason  any
	)
	if p.ProcessingTimeMs != nil {
		processing = *p.ProcessingTimeMs
	}
	if p.AvgItemTimeMs != nil {
		avg = *p.AvgItemTimeMs
	}
	if p.ProgressPercentage != nil {
		pct = *p.ProgressPercentage
	}
	if p.CancelledBy != nil {
		cancelledBy = *p.CancelledBy
	}
	if p.CancellationReason != nil {
		reason = *p.CancellationReason
	}

	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE %s SET
			status = $2,
			updated_at = NOW(),
			started_at = COALESCE(started_at, $3::timestamptz),
			completed_at = COALESCE($4::timestamptz, completed_at),
			processing_time_ms = COALESCE($5::bigint, processing_time_ms),
			avg_item_time_ms = COALESCE($6::double precision, avg_item_time_ms),
			progress_percentage = GREATEST(progress_percentage, COALESCE($7::double precision, 0)),
			cancelled_by = COALESCE($8::text, cancelled_by),
			cancellation_reason = COALESCE($9::text, cancellation_reason)
		WHERE id = $1 AND status = ANY($10::text[])
		RETURNING %s`, s.opsTable, operationColumns),
		id, string(to), nullTime(p.StartedAt), nullTime(p.CompletedAt), processing, avg, pct, cancelledBy, reason,
		pq.Array(statusStrings(from)),
	)
	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.missOrConflict(ctx, s.db, s.opsTable, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to transition operation: %w", err)
	}
	return op, nil
}

func (s *PostgresStore) ApproveOperation(ctx context.Context, id, actor string, at time.Time) (*BulkOperation, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE %s SET approved_by = $2, approved_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND approved_at IS NULL
		RETURNING %s`, s.opsTable, operationColumns), id, actor, at)
	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.missOrConflict(ctx, s.db, s.opsTable, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to approve operation: %w", err)
	}
	return op, nil
}

func (s *PostgresStore) exec(ctx context.Context, table, id, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return s.missOrConflict(ctx, s.db, table, id)
	}
	return nil
}

func (s *PostgresStore) LinkRollback(ctx context.Context, originalID, rollbackID string) error {
	return s.exec(ctx, s.opsTable, originalID, fmt.Sprintf(`
		UPDATE %s SET rollback_operation_id = $2, rolled_back = TRUE, rollback_pending_id = '', updated_at = NOW()
		WHERE id = $1 AND is_reversible AND status = 'completed' AND NOT rolled_back`, s.opsTable),
		originalID, rollbackID)
}

func (s *PostgresStore) ReserveRollback(ctx context.Context, originalID, rollbackID string) error {
	return s.exec(ctx, s.opsTable, originalID, fmt.Sprintf(`
		UPDATE %s SET rollback_pending_id = $2, updated_at = NOW()
		WHERE id = $1 AND is_reversible AND status = 'completed' AND NOT rolled_back AND rollback_pending_id = ''`, s.opsTable),
		originalID, rollbackID)
}

func (s *PostgresStore) ReleaseRollback(ctx context.Context, originalID, rollbackID string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET rollback_pending_id = '', updated_at = NOW()
		WHERE id = $1 AND rollback_pending_id = $2`, s.opsTable), originalID, rollbackID)
	if err != nil {
		return fmt.Errorf("failed to release rollback: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindRollbacks(ctx context.Context, originalID string) ([]BulkOperation, error) {
	ops, _, err := s.ListOperations(ctx, ListFilter{RollbackOf: originalID})
	return ops, err
}

func (s *PostgresStore) SaveProgress(ctx context.Context, id string, p Progress) error {
	pct := p.ProgressPercentage
	if pct > 100 {
		pct = 100
	}
	result, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET progress_percentage = GREATEST(progress_percentage, $2), avg_item_time_ms = $3, updated_at = NOW()
		WHERE id = $1`, s.opsTable), id, pct, p.AvgItemTimeMs)
	if err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteOperation(ctx context.Context, id string) error {
	// items go with the ON DELETE CASCADE foreign key
	return s.exec(ctx, s.opsTable, id, fmt.Sprintf(`
		DELETE FROM %s WHERE id = $1 AND status = ANY($2::text[])`, s.opsTable),
		id, pq.Array(statusStrings(TerminalStatuses)))
}

func (s *PostgresStore) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM %s WHERE status = ANY($1::text[]) AND updated_at < $2`, s.opsTable),
		pq.Array(statusStrings(TerminalStatuses)), olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to purge operations: %w", err)
	}
	return result.RowsAffected()
}

func (s *PostgresStore) ClaimItem(ctx context.Context, operationID string, now time.Time) (*BulkOperationItem, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE %[1]s SET status = 'processing', started_at = $2, updated_at = $2
		WHERE id = (
			SELECT id FROM %[1]s
			WHERE bulk_operation_id = $1 AND status = 'pending' AND available_at <= $2
			ORDER BY seq
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %[2]s`, s.itemsTable, itemColumns), operationID, now)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim item: %w", err)
	}
	return it, nil
}

func (s *PostgresStore) CompleteItem(ctx context.Context, itemID string, c ItemCompletion) (*BulkOperation, error) {
	field, err := counterField(c.Status)
	if err != nil {
		return nil, err
	}
	var result any
	if c.Result != nil {
		raw, err := json.Marshal(c.Result)
		if err != nil {
			return nil, fmt.Errorf("result: %w", err)
		}
		result = raw
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var opID string
	err = tx.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE %s SET status = $2, result = $3, error_message = $4, completed_at = $5, processing_time_ms = $6, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
		RETURNING bulk_operation_id`, s.itemsTable),
		itemID, string(c.Status), result, c.ErrorMessage, c.CompletedAt, c.ProcessingTimeMs,
	).Scan(&opID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.missOrConflict(ctx, tx, s.itemsTable, itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to complete item: %w", err)
	}

	row := tx.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE %[1]s SET processed_items = processed_items + 1, %[2]s = %[2]s + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING %[3]s`, s.opsTable, field, operationColumns), opID)
	op, err := scanOperation(row)
	if err != nil {
		return nil, fmt.Errorf("failed to increment counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit item completion: %w", err)
	}
	return op, nil
}

func (s *PostgresStore) RequeueItem(ctx context.Context, itemID string, availableAt time.Time, lastError string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var opID string
	err = tx.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE %s SET status = 'pending', retry_count = retry_count + 1, available_at = $2, error_message = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
		RETURNING bulk_operation_id`, s.itemsTable), itemID, availableAt, lastError).Scan(&opID)
	if errors.Is(err, sql.ErrNoRows) {
		return s.missOrConflict(ctx, tx, s.itemsTable, itemID)
	}
	if err != nil {
		return fmt.Errorf("failed to requeue item: %w", err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET retry_count = retry_count + 1, updated_at = NOW() WHERE id = $1`, s.opsTable), opID); err != nil {
		return fmt.Errorf("failed to count retry: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) ReleaseItem(ctx context.Context, itemID string) error {
	return s.exec(ctx, s.itemsTable, itemID, fmt.Sprintf(`
		UPDATE %s SET status = 'pending', started_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`, s.itemsTable), itemID)
}

func (s *PostgresStore) CountActiveItems(ctx context.Context, operationID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*) FROM %s WHERE bulk_operation_id = $1 AND status IN ('pending', 'processing')`, s.itemsTable),
		operationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count active items: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ReconcileCounters(ctx context.Context, id string, seen Counters) (*BulkOperation, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE %[1]s SET
			processed_items = c.successful + c.failed + c.skipped,
			successful_items = c.successful,
			failed_items = c.failed,
			skipped_items = c.skipped,
			updated_at = NOW()
		FROM (
			SELECT
				COUNT(*) FILTER (WHERE status = 'success') AS successful,
				COUNT(*) FILTER (WHERE status = 'failed') AS failed,
				COUNT(*) FILTER (WHERE status = 'skipped') AS skipped
			FROM %[2]s WHERE bulk_operation_id = $1
		) c
		WHERE id = $1 AND status IN ('queued', 'processing')
			AND processed_items = $2 AND successful_items = $3 AND failed_items = $4 AND skipped_items = $5
		RETURNING %[3]s`, s.opsTable, s.itemsTable, operationColumns),
		id, seen.Processed, seen.Successful, seen.Failed, seen.Skipped)
	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.missOrConflict(ctx, s.db, s.opsTable, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile counters: %w", err)
	}
	return op, nil
}

func (s *PostgresStore) ListItems(ctx context.Context, operationID string, f ItemFilter) ([]BulkOperationItem, int64, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)`, s.opsTable), operationID).Scan(&exists); err != nil {
		return nil, 0, err
	}
	if !exists {
		return nil, 0, ErrNotFound
	}

	where := "WHERE bulk_operation_id = $1"
	args := []any{operationID}
	if f.Status != "" {
		where += " AND status = $2"
		args = append(args, string(f.Status))
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s %s`, s.itemsTable, where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count items: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM %s %s ORDER BY seq`, itemColumns, s.itemsTable, where)
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	items := make([]BulkOperationItem, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, *it)
	}
	return items, total, rows.Err()
}
