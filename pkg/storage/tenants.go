package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/blip0/blip0/pkg/types"
)

const tenantInsert = `
	INSERT INTO tenants (id, name, slug, plan, status, settings, created_at, updated_at)
	VALUES (:id, :name, :slug, :plan, :status, :settings, :created_at, :updated_at)`

const tenantLimitsInsert = `
	INSERT INTO tenant_limits (
		id, tenant_id, max_monitors, max_networks, max_triggers,
		max_api_calls_per_hour, max_storage_gb, max_concurrent_operations,
		current_monitors, current_networks, current_triggers, current_storage_gb,
		created_at, updated_at
	) VALUES (
		:id, :tenant_id, :max_monitors, :max_networks, :max_triggers,
		:max_api_calls_per_hour, :max_storage_gb, :max_concurrent_operations,
		:current_monitors, :current_networks, :current_triggers, :current_storage_gb,
		:created_at, :updated_at
	)`

// CreateTenant inserts the tenant together with its limits row; creation of
// one implies creation of the other.
func (p *Postgres) CreateTenant(ctx context.Context, tenant *types.Tenant, limits *types.TenantLimits) error {
	now := time.Now().UTC()
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	tenant.CreatedAt, tenant.UpdatedAt = now, now

	limits.ID = uuid.New()
	limits.TenantID = tenant.ID
	limits.CreatedAt, limits.UpdatedAt = now, now

	return p.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, tenantInsert, tenant); err != nil {
			return normalizeErr(err, "tenant")
		}
		if _, err := tx.NamedExecContext(ctx, tenantLimitsInsert, limits); err != nil {
			return normalizeErr(err, "tenant")
		}
		return nil
	})
}

// GetTenant returns a tenant by id.
func (p *Postgres) GetTenant(ctx context.Context, id uuid.UUID) (*types.Tenant, error) {
	var t types.Tenant
	if err := p.db.GetContext(ctx, &t, `SELECT * FROM tenants WHERE id = $1`, id); err != nil {
		return nil, normalizeErr(err, "tenant")
	}
	return &t, nil
}

// GetTenantBySlug returns a tenant by its slug.
func (p *Postgres) GetTenantBySlug(ctx context.Context, slug string) (*types.Tenant, error) {
	var t types.Tenant
	if err := p.db.GetContext(ctx, &t, `SELECT * FROM tenants WHERE slug = $1`, slug); err != nil {
		return nil, normalizeErr(err, "tenant")
	}
	return &t, nil
}

// UpdateTenant writes the mutable tenant fields back.
func (p *Postgres) UpdateTenant(ctx context.Context, tenant *types.Tenant) error {
	tenant.UpdatedAt = time.Now().UTC()
	res, err := p.db.NamedExecContext(ctx,
		`UPDATE tenants SET name = :name, plan = :plan, status = :status,
		 settings = :settings, updated_at = :updated_at WHERE id = :id`, tenant)
	if err != nil {
		return normalizeErr(err, "tenant")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return normalizeErr(err, "tenant")
	}
	if n == 0 {
		return normalizeErr(sql.ErrNoRows, "tenant")
	}
	return nil
}

// GetTenantLimits returns the limits row of a tenant.
func (p *Postgres) GetTenantLimits(ctx context.Context, tenantID uuid.UUID) (*types.TenantLimits, error) {
	var l types.TenantLimits
	err := p.db.GetContext(ctx, &l,
		`SELECT * FROM tenant_limits WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, normalizeErr(err, "tenant limits")
	}
	return &l, nil
}

// GetTenantLimitsForUpdate locks the limits row inside the caller's
// transaction. The quota engine serializes counter updates through it.
func (p *Postgres) GetTenantLimitsForUpdate(ctx context.Context, tx *sqlx.Tx, tenantID uuid.UUID) (*types.TenantLimits, error) {
	var l types.TenantLimits
	err := tx.GetContext(ctx, &l,
		`SELECT * FROM tenant_limits WHERE tenant_id = $1 FOR UPDATE`, tenantID)
	if err != nil {
		return nil, normalizeErr(err, "tenant limits")
	}
	return &l, nil
}

// SetTenantLimitCounterTx writes one counter column inside the caller's
// transaction.
func (p *Postgres) SetTenantLimitCounterTx(ctx context.Context, tx *sqlx.Tx, tenantID uuid.UUID, column string, value int) error {
	query := `UPDATE tenant_limits SET ` + column + ` = $1, updated_at = $2 WHERE tenant_id = $3`
	if _, err := tx.ExecContext(ctx, query, value, time.Now().UTC(), tenantID); err != nil {
		return normalizeErr(err, "tenant limits")
	}
	return nil
}

// UpdateTenantLimitCaps rewrites the cap columns after a plan change.
func (p *Postgres) UpdateTenantLimitCaps(ctx context.Context, limits *types.TenantLimits) error {
	limits.UpdatedAt = time.Now().UTC()
	_, err := p.db.NamedExecContext(ctx,
		`UPDATE tenant_limits SET
			max_monitors = :max_monitors,
			max_networks = :max_networks,
			max_triggers = :max_triggers,
			max_api_calls_per_hour = :max_api_calls_per_hour,
			max_storage_gb = :max_storage_gb,
			max_concurrent_operations = :max_concurrent_operations,
			updated_at = :updated_at
		 WHERE tenant_id = :tenant_id`, limits)
	if err != nil {
		return normalizeErr(err, "tenant limits")
	}
	return nil
}
