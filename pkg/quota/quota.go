// Package quota enforces per-tenant counted-resource limits. Counters live
// on the tenant_limits row; every entity create and hard delete runs
// through the engine so the counter update commits atomically with the
// entity mutation under the row lock.
package quota

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/blip0/blip0/pkg/apperr"
	"github.com/blip0/blip0/pkg/log"
	"github.com/blip0/blip0/pkg/metrics"
	"github.com/blip0/blip0/pkg/storage"
	"github.com/blip0/blip0/pkg/types"
)

// Resource names a counted tenant resource.
type Resource string

const (
	ResourceMonitors Resource = "monitors"
	ResourceNetworks Resource = "networks"
	ResourceTriggers Resource = "triggers"
)

// Engine checks and maintains tenant resource counters.
type Engine struct {
	store  *storage.Postgres
	plans  map[types.Plan]PlanLimits
	logger zerolog.Logger
}

// NewEngine creates an engine with the compiled-in plan table.
func NewEngine(store *storage.Postgres) *Engine {
	plans := make(map[types.Plan]PlanLimits, len(defaultPlans))
	for p, l := range defaultPlans {
		plans[p] = l
	}
	return &Engine{
		store:  store,
		plans:  plans,
		logger: log.WithComponent("quota"),
	}
}

func counters(l *types.TenantLimits, r Resource) (current, max int) {
	switch r {
	case ResourceMonitors:
		return l.CurrentMonitors, l.MaxMonitors
	case ResourceNetworks:
		return l.CurrentNetworks, l.MaxNetworks
	case ResourceTriggers:
		return l.CurrentTriggers, l.MaxTriggers
	}
	return 0, 0
}

func counterColumn(r Resource) string {
	switch r {
	case ResourceMonitors:
		return "current_monitors"
	case ResourceNetworks:
		return "current_networks"
	case ResourceTriggers:
		return "current_triggers"
	}
	return ""
}

// WithReservation runs fn inside a transaction that holds the tenant's
// limits row lock, having first verified the cap. On success the counter
// is incremented in the same transaction.
func (e *Engine) WithReservation(ctx context.Context, tenantID uuid.UUID, resource Resource, fn func(tx *sqlx.Tx) error) error {
	return e.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		limits, err := e.store.GetTenantLimitsForUpdate(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		current, max := counters(limits, resource)
		if current+1 > max {
			metrics.QuotaRejections.WithLabelValues(string(resource)).Inc()
			return apperr.Ef(apperr.KindQuotaExceeded,
				"%s quota exceeded: %d of %d used", resource, current, max)
		}
		if err := fn(tx); err != nil {
			return err
		}
		return e.store.SetTenantLimitCounterTx(ctx, tx, tenantID, counterColumn(resource), current+1)
	})
}

// WithRelease runs fn inside a transaction holding the limits row lock and
// decrements the counter afterwards. Underflow clamps to zero with a
// warning; it indicates drifted accounting, not a caller error.
func (e *Engine) WithRelease(ctx context.Context, tenantID uuid.UUID, resource Resource, fn func(tx *sqlx.Tx) error) error {
	return e.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		limits, err := e.store.GetTenantLimitsForUpdate(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			return err
		}
		current, _ := counters(limits, resource)
		next := current - 1
		if next < 0 {
			e.logger.Warn().
				Str("tenant_id", tenantID.String()).
				Str("resource", string(resource)).
				Msg("counter underflow clamped to zero")
			next = 0
		}
		return e.store.SetTenantLimitCounterTx(ctx, tx, tenantID, counterColumn(resource), next)
	})
}

// SetPlan recomputes the tenant's caps from the plan table. Counters are
// never decremented; when a counter exceeds its new cap a reconcile
// warning is logged for administrators.
func (e *Engine) SetPlan(ctx context.Context, tenantID uuid.UUID, plan types.Plan) error {
	tenant, err := e.store.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	tenant.Plan = plan
	if err := e.store.UpdateTenant(ctx, tenant); err != nil {
		return err
	}

	limits, err := e.store.GetTenantLimits(ctx, tenantID)
	if err != nil {
		return err
	}
	caps := e.Limits(plan)
	limits.MaxMonitors = caps.MaxMonitors
	limits.MaxNetworks = caps.MaxNetworks
	limits.MaxTriggers = caps.MaxTriggers
	limits.MaxAPICallsPerHour = caps.MaxAPICallsPerHour
	limits.MaxStorageGB = decimal.NewFromFloat(caps.MaxStorageGB)
	limits.MaxConcurrentOperations = caps.MaxConcurrentOperations
	if err := e.store.UpdateTenantLimitCaps(ctx, limits); err != nil {
		return err
	}

	for _, r := range []Resource{ResourceMonitors, ResourceNetworks, ResourceTriggers} {
		current, max := counters(limits, r)
		if current > max {
			e.logger.Warn().
				Str("tenant_id", tenantID.String()).
				Str("resource", string(r)).
				Int("current", current).
				Int("max", max).
				Msg("counter exceeds new plan cap; manual reconciliation required")
		}
	}
	return nil
}
