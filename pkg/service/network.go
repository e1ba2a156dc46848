package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/blip0/blip0/pkg/apperr"
	"github.com/blip0/blip0/pkg/cache"
	"github.com/blip0/blip0/pkg/log"
	"github.com/blip0/blip0/pkg/metrics"
	"github.com/blip0/blip0/pkg/pubsub"
	"github.com/blip0/blip0/pkg/quota"
	"github.com/blip0/blip0/pkg/storage"
	"github.com/blip0/blip0/pkg/types"
	"github.com/blip0/blip0/pkg/validator"
)

// NetworkService owns platform-managed network configurations: admission
// validation, dual-key caching (workers resolve by slug, the admin API by
// id), and RPC endpoint validation.
type NetworkService struct {
	store     *storage.Postgres
	quota     *quota.Engine
	cache     *cache.Client
	validator *validator.Validator
	pub       *pubsub.Publisher
	logger    zerolog.Logger
}

// NewNetworkService wires a network service over the shared backends.
func NewNetworkService(store *storage.Postgres, q *quota.Engine, c *cache.Client, v *validator.Validator, pub *pubsub.Publisher) *NetworkService {
	return &NetworkService{
		store:     store,
		quota:     q,
		cache:     c,
		validator: v,
		pub:       pub,
		logger:    log.WithComponent("network-service"),
	}
}

// ensurePlatformTenant materializes the distinguished platform tenant on
// first use. A concurrent create losing the race is fine.
func (s *NetworkService) ensurePlatformTenant(ctx context.Context) error {
	_, err := s.store.GetTenant(ctx, types.PlatformTenantID)
	if err == nil {
		return nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return err
	}

	tenant := &types.Tenant{
		ID:       types.PlatformTenantID,
		Name:     "Platform",
		Slug:     "platform",
		Plan:     types.PlanEnterprise,
		Status:   types.TenantStatusActive,
		Settings: types.JSONMap{},
	}
	limits := s.quota.NewTenantLimits(types.PlanEnterprise)
	if err := s.store.CreateTenant(ctx, tenant, limits); err != nil {
		if apperr.Is(err, apperr.KindDuplicate) {
			return nil
		}
		return err
	}
	s.logger.Info().Msg("platform tenant materialized")
	return nil
}

// Create stores a new platform network. Structural problems always reject
// the request; when in.ValidateRPCs is set the endpoints must also answer
// before the network is admitted, and it is stored pre-validated.
func (s *NetworkService) Create(ctx context.Context, in *types.NetworkCreate) (*types.Network, error) {
	if err := s.ensurePlatformTenant(ctx); err != nil {
		return nil, err
	}

	n := &types.Network{
		TenantID:           types.PlatformTenantID,
		Name:               in.Name,
		Slug:               in.Slug,
		NetworkType:        in.NetworkType,
		ChainID:            in.ChainID,
		NetworkPassphrase:  in.NetworkPassphrase,
		BlockTimeMS:        in.BlockTimeMS,
		RPCUrls:            in.RPCUrls,
		ConfirmationBlocks: in.ConfirmationBlocks,
		CronSchedule:       in.CronSchedule,
		MaxPastBlocks:      in.MaxPastBlocks,
		StoreBlocks:        in.StoreBlocks,
		Active:             true,
	}
	if in.Name == "" {
		return nil, apperr.E(apperr.KindBadRequest, "name is required")
	}
	if errs := s.validator.StructuralErrors(n); errs != nil {
		return nil, &apperr.Error{Kind: apperr.KindBadRequest, Msg: "network configuration is invalid", Err: errs}
	}

	if _, err := s.store.GetNetworkBySlug(ctx, in.Slug); err == nil {
		return nil, apperr.Duplicate("slug")
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}

	if in.ValidateRPCs {
		result := s.validator.ValidateNetwork(ctx, n)
		if !result.IsValid {
			return nil, &apperr.Error{Kind: apperr.KindBadRequest, Msg: "no RPC endpoint answered", Err: result.Errors}
		}
		now := time.Now().UTC()
		n.Validated = true
		n.LastValidatedAt = &now
	}

	err := s.quota.WithReservation(ctx, types.PlatformTenantID, quota.ResourceNetworks, func(tx *sqlx.Tx) error {
		return s.store.CreateNetworkTx(ctx, tx, n)
	})
	if err != nil {
		return nil, err
	}

	s.refreshCacheEntry(ctx, n)
	s.pub.NetworkEvent(ctx, types.PlatformTenantID, n.ID, pubsub.ActionCreate)
	s.logger.Info().
		Str("network_id", n.ID.String()).
		Str("slug", n.Slug).
		Bool("validated", n.Validated).
		Msg("network created")
	return n, nil
}

// Get returns a network by id, read-through cached under the id key.
func (s *NetworkService) Get(ctx context.Context, id uuid.UUID) (*types.Network, error) {
	var cached types.Network
	if err := s.cache.GetJSON(ctx, cache.NetworkIDKey(id), &cached); err == nil {
		metrics.CacheHits.WithLabelValues("network").Inc()
		return &cached, nil
	}
	metrics.CacheMisses.WithLabelValues("network").Inc()

	n, err := s.store.GetNetwork(ctx, id)
	if err != nil {
		return nil, err
	}
	s.writeCacheEntry(ctx, n)
	return n, nil
}

// GetBySlug returns a network by slug, read-through cached under the
// worker-facing slug key.
func (s *NetworkService) GetBySlug(ctx context.Context, slug string) (*types.Network, error) {
	var cached types.Network
	if err := s.cache.GetJSON(ctx, cache.NetworkSlugKey(slug), &cached); err == nil {
		metrics.CacheHits.WithLabelValues("network").Inc()
		return &cached, nil
	}
	metrics.CacheMisses.WithLabelValues("network").Inc()

	n, err := s.store.GetNetworkBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	s.writeCacheEntry(ctx, n)
	return n, nil
}

// List returns one page of networks from the database.
func (s *NetworkService) List(ctx context.Context, opts storage.ListOptions) (*storage.Page[*types.Network], error) {
	return s.store.ListNetworks(ctx, opts)
}

// Update applies a partial patch. Changing the endpoints or the chain
// identity clears the validated flag until the next validation pass.
func (s *NetworkService) Update(ctx context.Context, id uuid.UUID, patch *types.NetworkUpdate) (*types.Network, error) {
	if patch.RPCUrls != nil || patch.ChainID != nil || patch.NetworkPassphrase != nil {
		invalid := false
		empty := types.ValidationErrors{}
		patch.Validated = &invalid
		patch.ValidationErrors = &empty
	}

	prev, err := s.store.GetNetwork(ctx, id)
	if err != nil {
		return nil, err
	}
	n, err := s.store.UpdateNetwork(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	// Slug is immutable, but drop the old slug key anyway in case of a
	// manual repair behind our back.
	if prev.Slug != n.Slug {
		_, _ = s.cache.Delete(ctx, cache.NetworkSlugKey(prev.Slug))
	}
	s.refreshCacheEntry(ctx, n)
	s.pub.NetworkEvent(ctx, n.TenantID, id, pubsub.ActionUpdate)
	return n, nil
}

// Delete removes a network. Hard delete releases the platform tenant's
// quota slot; soft delete just deactivates.
func (s *NetworkService) Delete(ctx context.Context, id uuid.UUID, hard bool) error {
	n, err := s.store.GetNetwork(ctx, id)
	if err != nil {
		return err
	}

	remove := func(tx *sqlx.Tx) error {
		found, err := s.store.DeleteNetworkTx(ctx, tx, id, hard)
		if err != nil {
			return err
		}
		if !found {
			return apperr.NotFound("network")
		}
		return nil
	}

	if hard {
		err = s.quota.WithRelease(ctx, n.TenantID, quota.ResourceNetworks, remove)
	} else {
		err = s.store.WithTx(ctx, remove)
	}
	if err != nil {
		return err
	}

	if _, err := s.cache.Delete(ctx, cache.NetworkIDKey(id), cache.NetworkSlugKey(n.Slug)); err != nil {
		s.logger.Warn().Err(err).Str("network_id", id.String()).Msg("cache invalidation failed")
	}
	s.pub.NetworkEvent(ctx, n.TenantID, id, pubsub.ActionDelete)
	s.logger.Info().Str("network_id", id.String()).Bool("hard", hard).Msg("network deleted")
	return nil
}

// Validate probes the network's endpoints and persists the outcome.
func (s *NetworkService) Validate(ctx context.Context, id uuid.UUID) (*validator.Result, error) {
	n, err := s.store.GetNetwork(ctx, id)
	if err != nil {
		return nil, err
	}

	result := s.validator.ValidateNetwork(ctx, n)

	now := time.Now().UTC()
	errs := result.Errors
	if errs == nil {
		errs = types.ValidationErrors{}
	}
	patch := &types.NetworkUpdate{
		Validated:        &result.IsValid,
		ValidationErrors: &errs,
		LastValidatedAt:  &now,
	}
	updated, err := s.store.UpdateNetwork(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	s.refreshCacheEntry(ctx, updated)
	s.pub.NetworkEvent(ctx, updated.TenantID, id, pubsub.ActionUpdate)
	return result, nil
}

// refreshCacheEntry rewrites both cache keys after a committed write.
func (s *NetworkService) refreshCacheEntry(ctx context.Context, n *types.Network) {
	if _, err := s.cache.Delete(ctx, cache.NetworkIDKey(n.ID), cache.NetworkSlugKey(n.Slug)); err != nil {
		s.logger.Warn().Err(err).Str("network_id", n.ID.String()).Msg("cache invalidation failed")
		return
	}
	s.writeCacheEntry(ctx, n)
}

func (s *NetworkService) writeCacheEntry(ctx context.Context, n *types.Network) {
	for _, key := range []string{cache.NetworkIDKey(n.ID), cache.NetworkSlugKey(n.Slug)} {
		if err := s.cache.Set(ctx, key, n, cache.NetworkTTL); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
}
