package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/blip0/blip0/pkg/apperr"
	"github.com/blip0/blip0/pkg/log"
	"github.com/blip0/blip0/pkg/quota"
	"github.com/blip0/blip0/pkg/storage"
	"github.com/blip0/blip0/pkg/types"
)

// TenantService manages tenant lifecycle and plan assignment.
type TenantService struct {
	store  *storage.Postgres
	quota  *quota.Engine
	logger zerolog.Logger
}

// NewTenantService wires a tenant service over the shared backends.
func NewTenantService(store *storage.Postgres, q *quota.Engine) *TenantService {
	return &TenantService{
		store:  store,
		quota:  q,
		logger: log.WithComponent("tenant-service"),
	}
}

// Create stores a new tenant with the limits row derived from its plan.
func (s *TenantService) Create(ctx context.Context, name, slug string, plan types.Plan) (*types.Tenant, error) {
	if name == "" {
		return nil, apperr.E(apperr.KindBadRequest, "name is required")
	}
	if !types.ValidSlug(slug) {
		return nil, apperr.Ef(apperr.KindBadRequest, "invalid slug %q", slug)
	}
	if plan == "" {
		plan = types.PlanFree
	}

	tenant := &types.Tenant{
		Name:     name,
		Slug:     slug,
		Plan:     plan,
		Status:   types.TenantStatusActive,
		Settings: types.JSONMap{},
	}
	limits := s.quota.NewTenantLimits(plan)
	if err := s.store.CreateTenant(ctx, tenant, limits); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("tenant_id", tenant.ID.String()).
		Str("slug", slug).
		Str("plan", string(plan)).
		Msg("tenant created")
	return tenant, nil
}

// Get returns a tenant by id.
func (s *TenantService) Get(ctx context.Context, id uuid.UUID) (*types.Tenant, error) {
	return s.store.GetTenant(ctx, id)
}

// GetBySlug returns a tenant by slug.
func (s *TenantService) GetBySlug(ctx context.Context, slug string) (*types.Tenant, error) {
	return s.store.GetTenantBySlug(ctx, slug)
}

// GetLimits returns the tenant's caps and live counters.
func (s *TenantService) GetLimits(ctx context.Context, id uuid.UUID) (*types.TenantLimits, error) {
	return s.store.GetTenantLimits(ctx, id)
}

// SetPlan moves the tenant to a new plan, rewriting its caps.
func (s *TenantService) SetPlan(ctx context.Context, id uuid.UUID, plan types.Plan) error {
	return s.quota.SetPlan(ctx, id, plan)
}

// Suspend blocks all configuration writes for the tenant. Reads and the
// worker-facing cache keep working.
func (s *TenantService) Suspend(ctx context.Context, id uuid.UUID) error {
	return s.setStatus(ctx, id, types.TenantStatusSuspended)
}

// Reactivate lifts a suspension.
func (s *TenantService) Reactivate(ctx context.Context, id uuid.UUID) error {
	return s.setStatus(ctx, id, types.TenantStatusActive)
}

func (s *TenantService) setStatus(ctx context.Context, id uuid.UUID, status types.TenantStatus) error {
	tenant, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return err
	}
	if tenant.Status == status {
		return nil
	}
	tenant.Status = status
	if err := s.store.UpdateTenant(ctx, tenant); err != nil {
		return err
	}
	s.logger.Info().
		Str("tenant_id", id.String()).
		Str("status", string(status)).
		Msg("tenant status changed")
	return nil
}
