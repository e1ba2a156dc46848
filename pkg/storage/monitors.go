package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/blip0/blip0/pkg/types"
)

var monitorFilterFields = FieldSet{
	"name":              FieldString,
	"slug":              FieldExact,
	"description":       FieldString,
	"active":            FieldBool,
	"paused":            FieldBool,
	"validated":         FieldBool,
	"created_at":        FieldTime,
	"updated_at":        FieldTime,
	"last_validated_at": FieldTime,
}

var monitorSortFields = map[string]bool{
	"name": true, "slug": true, "created_at": true, "updated_at": true,
}

const monitorInsert = `
	INSERT INTO monitors (
		id, tenant_id, name, slug, description, paused, active,
		networks, addresses, match_functions, match_events,
		match_transactions, trigger_conditions, triggers,
		validated, validation_errors, last_validated_at,
		created_at, updated_at
	) VALUES (
		:id, :tenant_id, :name, :slug, :description, :paused, :active,
		:networks, :addresses, :match_functions, :match_events,
		:match_transactions, :trigger_conditions, :triggers,
		:validated, :validation_errors, :last_validated_at,
		:created_at, :updated_at
	)`

// CreateMonitorTx inserts a monitor inside the caller's transaction; the
// quota engine owns the transaction on the create path.
func (p *Postgres) CreateMonitorTx(ctx context.Context, tx *sqlx.Tx, m *types.Monitor) error {
	stampMonitor(m)
	if _, err := tx.NamedExecContext(ctx, monitorInsert, m); err != nil {
		return normalizeErr(err, "monitor")
	}
	return nil
}

func stampMonitor(m *types.Monitor) {
	now := time.Now().UTC()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
}

// GetMonitor returns the monitor within the tenant scope.
func (p *Postgres) GetMonitor(ctx context.Context, id, tenantID uuid.UUID) (*types.Monitor, error) {
	var m types.Monitor
	err := p.db.GetContext(ctx, &m,
		`SELECT * FROM monitors WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return nil, normalizeErr(err, "monitor")
	}
	return &m, nil
}

// GetMonitorBySlug resolves a monitor by its tenant-scoped slug.
func (p *Postgres) GetMonitorBySlug(ctx context.Context, tenantID uuid.UUID, slug string) (*types.Monitor, error) {
	var m types.Monitor
	err := p.db.GetContext(ctx, &m,
		`SELECT * FROM monitors WHERE tenant_id = $1 AND slug = $2`, tenantID, slug)
	if err != nil {
		return nil, normalizeErr(err, "monitor")
	}
	return &m, nil
}

// MonitorSlugExists reports whether a monitor with the slug exists in the
// tenant. Soft-deleted rows still hold their slug; only a hard delete
// frees it.
func (p *Postgres) MonitorSlugExists(ctx context.Context, tenantID uuid.UUID, slug string) (bool, error) {
	var exists bool
	err := p.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM monitors WHERE tenant_id = $1 AND slug = $2)`,
		tenantID, slug)
	if err != nil {
		return false, normalizeErr(err, "monitor")
	}
	return exists, nil
}

// UpdateMonitor applies a partial patch and returns the fresh row.
func (p *Postgres) UpdateMonitor(ctx context.Context, id, tenantID uuid.UUID, patch *types.MonitorUpdate) (*types.Monitor, error) {
	b := newSetBuilder()
	b.addIfSet("name", strArg(patch.Name))
	b.addIfSet("slug", strArg(patch.Slug))
	b.addIfSet("description", strArg(patch.Description))
	b.addIfSet("paused", boolArg(patch.Paused))
	b.addIfSet("active", boolArg(patch.Active))
	if patch.Networks != nil {
		b.add("networks", *patch.Networks)
	}
	if patch.Addresses != nil {
		b.add("addresses", *patch.Addresses)
	}
	if patch.MatchFunctions != nil {
		b.add("match_functions", *patch.MatchFunctions)
	}
	if patch.MatchEvents != nil {
		b.add("match_events", *patch.MatchEvents)
	}
	if patch.MatchTransactions != nil {
		b.add("match_transactions", *patch.MatchTransactions)
	}
	if patch.TriggerConditions != nil {
		b.add("trigger_conditions", *patch.TriggerConditions)
	}
	if patch.Triggers != nil {
		b.add("triggers", *patch.Triggers)
	}
	b.addIfSet("validated", boolArg(patch.Validated))
	if patch.ValidationErrors != nil {
		b.add("validation_errors", *patch.ValidationErrors)
	}
	if patch.LastValidatedAt != nil {
		b.add("last_validated_at", *patch.LastValidatedAt)
	}
	b.add("updated_at", time.Now().UTC())

	query := fmt.Sprintf(
		`UPDATE monitors SET %s WHERE id = $%d AND tenant_id = $%d RETURNING *`,
		b.setClause(), b.n()+1, b.n()+2)
	args := append(b.args, id, tenantID)

	var m types.Monitor
	if err := p.db.GetContext(ctx, &m, query, args...); err != nil {
		return nil, normalizeErr(err, "monitor")
	}
	return &m, nil
}

// DeleteMonitorTx removes a monitor inside the caller's transaction. Hard
// delete drops the row; soft delete flips active off and stamps deleted_at.
// Reports whether a row was affected.
func (p *Postgres) DeleteMonitorTx(ctx context.Context, tx *sqlx.Tx, id, tenantID uuid.UUID, hard bool) (bool, error) {
	var res interface {
		RowsAffected() (int64, error)
	}
	var err error
	if hard {
		res, err = tx.ExecContext(ctx,
			`DELETE FROM monitors WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE monitors SET active = false, deleted_at = $3, updated_at = $3
			 WHERE id = $1 AND tenant_id = $2`, id, tenantID, time.Now().UTC())
	}
	if err != nil {
		return false, normalizeErr(err, "monitor")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, normalizeErr(err, "monitor")
	}
	return n > 0, nil
}

// ListMonitors returns one page of the tenant's monitors. Beyond the common
// grammar it understands network_slug (membership in the networks list) and
// has_triggers (whether any trigger is attached).
func (p *Postgres) ListMonitors(ctx context.Context, tenantID uuid.UUID, opts ListOptions) (*Page[*types.Monitor], error) {
	opts.normalize()

	clauses := []string{"tenant_id = $1"}
	args := []interface{}{tenantID}

	filters := make(map[string]interface{}, len(opts.Filters))
	for k, v := range opts.Filters {
		filters[k] = v
	}
	if slug, ok := filters["network_slug"]; ok {
		delete(filters, "network_slug")
		member, err := json.Marshal([]interface{}{slug})
		if err != nil {
			return nil, normalizeErr(err, "monitor")
		}
		clauses = append(clauses, fmt.Sprintf("networks @> $%d", len(args)+1))
		args = append(args, string(member))
	}
	if v, ok := filters["has_triggers"]; ok {
		delete(filters, "has_triggers")
		if b, _ := v.(bool); b {
			clauses = append(clauses, "jsonb_array_length(triggers) > 0")
		} else {
			clauses = append(clauses, "jsonb_array_length(triggers) = 0")
		}
	}

	more, moreArgs, err := whereClause(monitorFilterFields, filters, len(args))
	if err != nil {
		return nil, err
	}
	clauses = append(clauses, more...)
	args = append(args, moreArgs...)

	where := "WHERE " + strings.Join(clauses, " AND ")

	var total int64
	if err := p.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM monitors "+where, args...); err != nil {
		return nil, normalizeErr(err, "monitor")
	}

	order, err := orderClause(monitorSortFields, opts.SortField, opts.SortOrder)
	if err != nil {
		return nil, err
	}
	limit, offset := opts.limitOffset()

	var items []*types.Monitor
	query := fmt.Sprintf("SELECT * FROM monitors %s %s LIMIT $%d OFFSET $%d",
		where, order, len(args)+1, len(args)+2)
	if err := p.db.SelectContext(ctx, &items, query, append(args, limit, offset)...); err != nil {
		return nil, normalizeErr(err, "monitor")
	}

	return newPage(items, total, opts.Page, opts.Size), nil
}

// ListAllMonitors returns every monitor of the tenant, for cache rebuilds.
func (p *Postgres) ListAllMonitors(ctx context.Context, tenantID uuid.UUID) ([]*types.Monitor, error) {
	var items []*types.Monitor
	err := p.db.SelectContext(ctx, &items,
		`SELECT * FROM monitors WHERE tenant_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`,
		tenantID)
	if err != nil {
		return nil, normalizeErr(err, "monitor")
	}
	return items, nil
}
