package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/blip0/blip0/pkg/types"
)

var blockStateFilterFields = FieldSet{
	"processing_status": FieldExact,
	"network_id":        FieldExact,
	"error_count":       FieldNumber,
	"created_at":        FieldTime,
	"updated_at":        FieldTime,
	"last_processed_at": FieldTime,
	"last_error_at":     FieldTime,
}

var blockStateSortFields = map[string]bool{
	"created_at": true, "updated_at": true, "last_processed_at": true,
}

const blockStateInsert = `
	INSERT INTO block_states (
		id, tenant_id, network_id, processing_status, last_processed_block,
		last_processed_at, last_error, last_error_at, error_count,
		blocks_per_minute, average_processing_time_ms, created_at, updated_at
	) VALUES (
		:id, :tenant_id, :network_id, :processing_status, :last_processed_block,
		:last_processed_at, :last_error, :last_error_at, :error_count,
		:blocks_per_minute, :average_processing_time_ms, :created_at, :updated_at
	)`

// CreateBlockState inserts the per-(tenant, network) state row.
func (p *Postgres) CreateBlockState(ctx context.Context, state *types.BlockState) error {
	now := time.Now().UTC()
	if state.ID == uuid.Nil {
		state.ID = uuid.New()
	}
	state.CreatedAt, state.UpdatedAt = now, now
	if _, err := p.db.NamedExecContext(ctx, blockStateInsert, state); err != nil {
		return normalizeErr(err, "block state")
	}
	return nil
}

// GetBlockState returns the state row for a (tenant, network) pair.
func (p *Postgres) GetBlockState(ctx context.Context, tenantID, networkID uuid.UUID) (*types.BlockState, error) {
	var s types.BlockState
	err := p.db.GetContext(ctx, &s,
		`SELECT * FROM block_states WHERE tenant_id = $1 AND network_id = $2`,
		tenantID, networkID)
	if err != nil {
		return nil, normalizeErr(err, "block state")
	}
	return &s, nil
}

// UpdateBlockState writes the mutable state fields back.
func (p *Postgres) UpdateBlockState(ctx context.Context, state *types.BlockState) error {
	state.UpdatedAt = time.Now().UTC()
	_, err := p.db.NamedExecContext(ctx,
		`UPDATE block_states SET
			processing_status = :processing_status,
			last_processed_block = :last_processed_block,
			last_processed_at = :last_processed_at,
			last_error = :last_error,
			last_error_at = :last_error_at,
			error_count = :error_count,
			blocks_per_minute = :blocks_per_minute,
			average_processing_time_ms = :average_processing_time_ms,
			updated_at = :updated_at
		 WHERE id = :id`, state)
	if err != nil {
		return normalizeErr(err, "block state")
	}
	return nil
}

// ListBlockStates returns one page of the tenant's block states.
func (p *Postgres) ListBlockStates(ctx context.Context, tenantID uuid.UUID, opts ListOptions) (*Page[*types.BlockState], error) {
	opts.normalize()

	clauses := []string{"tenant_id = $1"}
	args := []interface{}{tenantID}
	more, moreArgs, err := whereClause(blockStateFilterFields, opts.Filters, len(args))
	if err != nil {
		return nil, err
	}
	clauses = append(clauses, more...)
	args = append(args, moreArgs...)
	where := "WHERE " + strings.Join(clauses, " AND ")

	var total int64
	if err := p.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM block_states "+where, args...); err != nil {
		return nil, normalizeErr(err, "block state")
	}

	order, err := orderClause(blockStateSortFields, opts.SortField, opts.SortOrder)
	if err != nil {
		return nil, err
	}
	limit, offset := opts.limitOffset()

	var items []*types.BlockState
	query := fmt.Sprintf("SELECT * FROM block_states %s %s LIMIT $%d OFFSET $%d",
		where, order, len(args)+1, len(args)+2)
	if err := p.db.SelectContext(ctx, &items, query, append(args, limit, offset)...); err != nil {
		return nil, normalizeErr(err, "block state")
	}

	return newPage(items, total, opts.Page, opts.Size), nil
}

const missedBlockInsert = `
	INSERT INTO missed_blocks (
		id, tenant_id, network_id, block_number, reason, retry_count,
		processed, processed_at, created_at, updated_at
	) VALUES (
		:id, :tenant_id, :network_id, :block_number, :reason, :retry_count,
		:processed, :processed_at, :created_at, :updated_at
	)`

// CreateMissedBlock inserts a missed-block row.
func (p *Postgres) CreateMissedBlock(ctx context.Context, mb *types.MissedBlock) error {
	now := time.Now().UTC()
	if mb.ID == uuid.Nil {
		mb.ID = uuid.New()
	}
	mb.CreatedAt, mb.UpdatedAt = now, now
	if _, err := p.db.NamedExecContext(ctx, missedBlockInsert, mb); err != nil {
		return normalizeErr(err, "missed block")
	}
	return nil
}

// GetMissedBlock returns a tenant's missed block by id.
func (p *Postgres) GetMissedBlock(ctx context.Context, id, tenantID uuid.UUID) (*types.MissedBlock, error) {
	var mb types.MissedBlock
	err := p.db.GetContext(ctx, &mb,
		`SELECT * FROM missed_blocks WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return nil, normalizeErr(err, "missed block")
	}
	return &mb, nil
}

// GetMissedBlockByNumber returns the row for a (tenant, network, block)
// triple.
func (p *Postgres) GetMissedBlockByNumber(ctx context.Context, tenantID, networkID uuid.UUID, blockNumber int64) (*types.MissedBlock, error) {
	var mb types.MissedBlock
	err := p.db.GetContext(ctx, &mb,
		`SELECT * FROM missed_blocks WHERE tenant_id = $1 AND network_id = $2 AND block_number = $3`,
		tenantID, networkID, blockNumber)
	if err != nil {
		return nil, normalizeErr(err, "missed block")
	}
	return &mb, nil
}

// UpdateMissedBlock writes the mutable fields back.
func (p *Postgres) UpdateMissedBlock(ctx context.Context, mb *types.MissedBlock) error {
	mb.UpdatedAt = time.Now().UTC()
	_, err := p.db.NamedExecContext(ctx,
		`UPDATE missed_blocks SET reason = :reason, retry_count = :retry_count,
			processed = :processed, processed_at = :processed_at, updated_at = :updated_at
		 WHERE id = :id AND tenant_id = :tenant_id`, mb)
	if err != nil {
		return normalizeErr(err, "missed block")
	}
	return nil
}

// ListUnprocessedMissedBlocks returns unprocessed rows ordered by block
// number ascending.
func (p *Postgres) ListUnprocessedMissedBlocks(ctx context.Context, tenantID, networkID uuid.UUID, limit int) ([]*types.MissedBlock, error) {
	var items []*types.MissedBlock
	err := p.db.SelectContext(ctx, &items,
		`SELECT * FROM missed_blocks
		 WHERE tenant_id = $1 AND network_id = $2 AND processed = false
		 ORDER BY block_number ASC LIMIT $3`, tenantID, networkID, limit)
	if err != nil {
		return nil, normalizeErr(err, "missed block")
	}
	return items, nil
}

// CountMissedBlocksSince counts missed blocks recorded in the window.
func (p *Postgres) CountMissedBlocksSince(ctx context.Context, tenantID, networkID uuid.UUID, since time.Time) (int64, error) {
	var n int64
	err := p.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM missed_blocks
		 WHERE tenant_id = $1 AND network_id = $2 AND created_at >= $3`,
		tenantID, networkID, since)
	if err != nil {
		return 0, normalizeErr(err, "missed block")
	}
	return n, nil
}

// BulkResetMissedBlocks marks the selected unprocessed rows for a fresh
// attempt: retry_count resets and the reason is overwritten. Rows at or
// above maxRetries are skipped. Returns the number affected.
func (p *Postgres) BulkResetMissedBlocks(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, maxRetries int, reason string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE missed_blocks SET retry_count = 0, reason = $1, updated_at = $2
		 WHERE tenant_id = $3 AND id = ANY($4) AND processed = false AND retry_count < $5`,
		reason, time.Now().UTC(), tenantID, pq.Array(uuidStrings(ids)), maxRetries)
	if err != nil {
		return 0, normalizeErr(err, "missed block")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, normalizeErr(err, "missed block")
	}
	return n, nil
}

const matchInsert = `
	INSERT INTO monitor_matches (
		id, tenant_id, monitor_id, network_id, block_number, transaction_hash,
		match_data, triggers_executed, triggers_failed, created_at
	) VALUES (
		:id, :tenant_id, :monitor_id, :network_id, :block_number, :transaction_hash,
		:match_data, :triggers_executed, :triggers_failed, :created_at
	)`

// CreateMonitorMatch inserts a match record.
func (p *Postgres) CreateMonitorMatch(ctx context.Context, match *types.MonitorMatch) error {
	if match.ID == uuid.Nil {
		match.ID = uuid.New()
	}
	if match.CreatedAt.IsZero() {
		match.CreatedAt = time.Now().UTC()
	}
	if _, err := p.db.NamedExecContext(ctx, matchInsert, match); err != nil {
		return normalizeErr(err, "monitor match")
	}
	return nil
}

// GetMonitorMatch returns a tenant's match by id.
func (p *Postgres) GetMonitorMatch(ctx context.Context, id, tenantID uuid.UUID) (*types.MonitorMatch, error) {
	var m types.MonitorMatch
	err := p.db.GetContext(ctx, &m,
		`SELECT * FROM monitor_matches WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return nil, normalizeErr(err, "monitor match")
	}
	return &m, nil
}

// IncrementMatchTriggerCounts adds to the executed/failed counters; the
// counters only ever grow.
func (p *Postgres) IncrementMatchTriggerCounts(ctx context.Context, id, tenantID uuid.UUID, executed, failed int) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE monitor_matches SET
			triggers_executed = triggers_executed + $1,
			triggers_failed = triggers_failed + $2
		 WHERE id = $3 AND tenant_id = $4`, executed, failed, id, tenantID)
	if err != nil {
		return normalizeErr(err, "monitor match")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return normalizeErr(err, "monitor match")
	}
	if n == 0 {
		return normalizeErr(sql.ErrNoRows, "monitor match")
	}
	return nil
}

// ListRecentMatches returns matches in the window, newest first.
func (p *Postgres) ListRecentMatches(ctx context.Context, tenantID uuid.UUID, monitorID *uuid.UUID, since time.Time, limit int) ([]*types.MonitorMatch, error) {
	var items []*types.MonitorMatch
	var err error
	if monitorID != nil {
		err = p.db.SelectContext(ctx, &items,
			`SELECT * FROM monitor_matches
			 WHERE tenant_id = $1 AND monitor_id = $2 AND created_at >= $3
			 ORDER BY created_at DESC LIMIT $4`, tenantID, *monitorID, since, limit)
	} else {
		err = p.db.SelectContext(ctx, &items,
			`SELECT * FROM monitor_matches
			 WHERE tenant_id = $1 AND created_at >= $2
			 ORDER BY created_at DESC LIMIT $3`, tenantID, since, limit)
	}
	if err != nil {
		return nil, normalizeErr(err, "monitor match")
	}
	return items, nil
}

const executionInsert = `
	INSERT INTO trigger_executions (
		id, tenant_id, trigger_id, monitor_match_id, execution_type,
		execution_data, status, started_at, completed_at, duration_ms,
		retry_count, error_message, created_at
	) VALUES (
		:id, :tenant_id, :trigger_id, :monitor_match_id, :execution_type,
		:execution_data, :status, :started_at, :completed_at, :duration_ms,
		:retry_count, :error_message, :created_at
	)`

// CreateTriggerExecution inserts an execution record.
func (p *Postgres) CreateTriggerExecution(ctx context.Context, exec *types.TriggerExecution) error {
	if exec.ID == uuid.Nil {
		exec.ID = uuid.New()
	}
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = time.Now().UTC()
	}
	if _, err := p.db.NamedExecContext(ctx, executionInsert, exec); err != nil {
		return normalizeErr(err, "trigger execution")
	}
	return nil
}

// GetTriggerExecution returns a tenant's execution by id.
func (p *Postgres) GetTriggerExecution(ctx context.Context, id, tenantID uuid.UUID) (*types.TriggerExecution, error) {
	var e types.TriggerExecution
	err := p.db.GetContext(ctx, &e,
		`SELECT * FROM trigger_executions WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return nil, normalizeErr(err, "trigger execution")
	}
	return &e, nil
}

// UpdateTriggerExecution writes the mutable lifecycle fields back.
func (p *Postgres) UpdateTriggerExecution(ctx context.Context, exec *types.TriggerExecution) error {
	_, err := p.db.NamedExecContext(ctx,
		`UPDATE trigger_executions SET
			status = :status, started_at = :started_at, completed_at = :completed_at,
			duration_ms = :duration_ms, retry_count = :retry_count,
			error_message = :error_message
		 WHERE id = :id AND tenant_id = :tenant_id`, exec)
	if err != nil {
		return normalizeErr(err, "trigger execution")
	}
	return nil
}

// ListTriggerExecutions loads the tenant's rows for the given ids.
func (p *Postgres) ListTriggerExecutions(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*types.TriggerExecution, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []*types.TriggerExecution
	err := p.db.SelectContext(ctx, &items,
		`SELECT * FROM trigger_executions WHERE tenant_id = $1 AND id = ANY($2)`,
		tenantID, pq.Array(uuidStrings(ids)))
	if err != nil {
		return nil, normalizeErr(err, "trigger execution")
	}
	return items, nil
}

// ExecutionStatsSince aggregates execution outcomes over the window.
func (p *Postgres) ExecutionStatsSince(ctx context.Context, tenantID uuid.UUID, triggerID *uuid.UUID, since time.Time) (*types.TriggerExecutionStats, error) {
	row := struct {
		Total     int64   `db:"total"`
		Successes int64   `db:"successes"`
		Retried   int64   `db:"retried"`
		AvgMS     float64 `db:"avg_ms"`
	}{}

	query := `SELECT
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE status = 'success') AS successes,
		COUNT(*) FILTER (WHERE retry_count > 0) AS retried,
		COALESCE(AVG(duration_ms) FILTER (WHERE duration_ms IS NOT NULL), 0) AS avg_ms
	 FROM trigger_executions
	 WHERE tenant_id = $1 AND created_at >= $2`
	args := []interface{}{tenantID, since}
	if triggerID != nil {
		query += ` AND trigger_id = $3`
		args = append(args, *triggerID)
	}

	if err := p.db.GetContext(ctx, &row, query, args...); err != nil {
		return nil, normalizeErr(err, "trigger execution")
	}

	stats := &types.TriggerExecutionStats{
		TenantID:          tenantID,
		TriggerID:         triggerID,
		Total:             row.Total,
		AverageDurationMS: row.AvgMS,
	}
	if row.Total > 0 {
		stats.SuccessRate = 100 * float64(row.Successes) / float64(row.Total)
		stats.RetryRate = 100 * float64(row.Retried) / float64(row.Total)
	}
	return stats, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
