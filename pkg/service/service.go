package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/blip0/blip0/pkg/apperr"
	"github.com/blip0/blip0/pkg/storage"
	"github.com/blip0/blip0/pkg/types"
)

// requireWritableTenant rejects writes for tenants that are not active.
// Suspended tenants keep read access; deleted tenants are gone entirely.
func requireWritableTenant(ctx context.Context, store *storage.Postgres, tenantID uuid.UUID) error {
	tenant, err := store.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	switch tenant.Status {
	case types.TenantStatusSuspended:
		return apperr.E(apperr.KindForbidden, "tenant is suspended")
	case types.TenantStatusDeleted:
		return apperr.NotFound("tenant")
	}
	return nil
}
