package service

import (
	"context"
	"fmt"
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
)

// MonitorService owns the monitor lifecycle: quota-checked creation, the
// write-through cache of denormalized views, the per-tenant active set,
// and change-event publication.
type MonitorService struct {
	store  *storage.Postgres
	quota  *quota.Engine
	cache  *cache.Client
	pub    *pubsub.Publisher
	logger zerolog.Logger
}

// NewMonitorService wires a monitor service over the shared backends.
func NewMonitorService(store *storage.Postgres, q *quota.Engine, c *cache.Client, pub *pubsub.Publisher) *MonitorService {
	return &MonitorService{
		store:  store,
		quota:  q,
		cache:  c,
		pub:    pub,
		logger: log.WithComponent("monitor-service"),
	}
}

// Create stores a new monitor under the tenant's quota. Monitors start
// active and unpaused but unvalidated, so they are not runnable until a
// validation pass succeeds.
func (s *MonitorService) Create(ctx context.Context, tenantID uuid.UUID, in *types.MonitorCreate) (*types.Monitor, error) {
	if err := requireWritableTenant(ctx, s.store, tenantID); err != nil {
		return nil, err
	}
	if !types.ValidSlug(in.Slug) {
		return nil, apperr.Ef(apperr.KindBadRequest, "invalid slug %q", in.Slug)
	}
	if in.Name == "" {
		return nil, apperr.E(apperr.KindBadRequest, "name is required")
	}
	exists, err := s.store.MonitorSlugExists(ctx, tenantID, in.Slug)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.Duplicate("slug")
	}

	m := &types.Monitor{
		TenantID:          tenantID,
		Name:              in.Name,
		Slug:              in.Slug,
		Description:       in.Description,
		Active:            true,
		Networks:          in.Networks,
		Addresses:         in.Addresses,
		MatchFunctions:    in.MatchFunctions,
		MatchEvents:       in.MatchEvents,
		MatchTransactions: in.MatchTransactions,
		TriggerConditions: in.TriggerConditions,
		Triggers:          in.Triggers,
	}
	return s.create(ctx, m)
}

func (s *MonitorService) create(ctx context.Context, m *types.Monitor) (*types.Monitor, error) {
	err := s.quota.WithReservation(ctx, m.TenantID, quota.ResourceMonitors, func(tx *sqlx.Tx) error {
		return s.store.CreateMonitorTx(ctx, tx, m)
	})
	if err != nil {
		return nil, err
	}

	s.refreshCacheEntry(ctx, m)
	s.syncActiveSet(ctx, m)
	s.pub.MonitorEvent(ctx, m.TenantID, m.ID, pubsub.ActionCreate)
	s.logger.Info().
		Str("tenant_id", m.TenantID.String()).
		Str("monitor_id", m.ID.String()).
		Str("slug", m.Slug).
		Msg("monitor created")
	return m, nil
}

// Get returns the monitor, serving from cache when possible. The cached
// value is the denormalized worker view; Get strips the trigger records.
func (s *MonitorService) Get(ctx context.Context, tenantID, id uuid.UUID) (*types.Monitor, error) {
	mwt, err := s.GetWithTriggers(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return &mwt.Monitor, nil
}

// GetWithTriggers returns the denormalized monitor view, read-through
// cached under the monitor's entity key.
func (s *MonitorService) GetWithTriggers(ctx context.Context, tenantID, id uuid.UUID) (*types.MonitorWithTriggers, error) {
	key := cache.MonitorKey(tenantID, id)

	var cached types.MonitorWithTriggers
	if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
		metrics.CacheHits.WithLabelValues("monitor").Inc()
		return &cached, nil
	}
	metrics.CacheMisses.WithLabelValues("monitor").Inc()

	m, err := s.store.GetMonitor(ctx, id, tenantID)
	if err != nil {
		return nil, err
	}
	mwt := s.denormalize(ctx, m)
	if err := s.cache.Set(ctx, key, mwt, cache.MonitorTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return mwt, nil
}

// GetBySlug resolves a monitor by its tenant-scoped slug. Slug lookups
// bypass the cache; the cache is keyed by id.
func (s *MonitorService) GetBySlug(ctx context.Context, tenantID uuid.UUID, slug string) (*types.Monitor, error) {
	return s.store.GetMonitorBySlug(ctx, tenantID, slug)
}

// List returns one page of the tenant's monitors from the database.
func (s *MonitorService) List(ctx context.Context, tenantID uuid.UUID, opts storage.ListOptions) (*storage.Page[*types.Monitor], error) {
	return s.store.ListMonitors(ctx, tenantID, opts)
}

// Update applies a partial patch. A slug change is checked for collision
// before it reaches the database so the caller gets a field-level error.
func (s *MonitorService) Update(ctx context.Context, tenantID, id uuid.UUID, patch *types.MonitorUpdate) (*types.Monitor, error) {
	if err := requireWritableTenant(ctx, s.store, tenantID); err != nil {
		return nil, err
	}
	if patch.Slug != nil {
		if !types.ValidSlug(*patch.Slug) {
			return nil, apperr.Ef(apperr.KindBadRequest, "invalid slug %q", *patch.Slug)
		}
		current, err := s.store.GetMonitor(ctx, id, tenantID)
		if err != nil {
			return nil, err
		}
		if current.Slug != *patch.Slug {
			exists, err := s.store.MonitorSlugExists(ctx, tenantID, *patch.Slug)
			if err != nil {
				return nil, err
			}
			if exists {
				return nil, apperr.Duplicate("slug")
			}
		}
	}

	m, err := s.store.UpdateMonitor(ctx, id, tenantID, patch)
	if err != nil {
		return nil, err
	}

	s.refreshCacheEntry(ctx, m)
	s.syncActiveSet(ctx, m)
	s.pub.MonitorEvent(ctx, tenantID, id, pubsub.ActionUpdate)
	return m, nil
}

// Pause stops evaluation of the monitor without losing its configuration.
func (s *MonitorService) Pause(ctx context.Context, tenantID, id uuid.UUID) (*types.Monitor, error) {
	return s.setPaused(ctx, tenantID, id, true, pubsub.ActionUpdate)
}

// Resume reactivates a paused monitor.
func (s *MonitorService) Resume(ctx context.Context, tenantID, id uuid.UUID) (*types.Monitor, error) {
	return s.setPaused(ctx, tenantID, id, false, pubsub.ActionUpdate)
}

func (s *MonitorService) setPaused(ctx context.Context, tenantID, id uuid.UUID, paused bool, action string) (*types.Monitor, error) {
	if err := requireWritableTenant(ctx, s.store, tenantID); err != nil {
		return nil, err
	}
	active := !paused
	m, err := s.store.UpdateMonitor(ctx, id, tenantID, &types.MonitorUpdate{
		Paused: &paused,
		Active: &active,
	})
	if err != nil {
		return nil, err
	}

	s.refreshCacheEntry(ctx, m)
	s.syncActiveSet(ctx, m)
	s.pub.MonitorEvent(ctx, tenantID, id, action)
	return m, nil
}

// Delete removes a monitor. Soft delete keeps the row (and its slug) and
// retains the quota slot; hard delete drops the row and releases it.
func (s *MonitorService) Delete(ctx context.Context, tenantID, id uuid.UUID, hard bool) error {
	if err := requireWritableTenant(ctx, s.store, tenantID); err != nil {
		return err
	}

	remove := func(tx *sqlx.Tx) error {
		found, err := s.store.DeleteMonitorTx(ctx, tx, id, tenantID, hard)
		if err != nil {
			return err
		}
		if !found {
			return apperr.NotFound("monitor")
		}
		return nil
	}

	var err error
	if hard {
		err = s.quota.WithRelease(ctx, tenantID, quota.ResourceMonitors, remove)
	} else {
		err = s.store.WithTx(ctx, remove)
	}
	if err != nil {
		return err
	}

	s.dropFromCache(ctx, tenantID, id)
	s.pub.MonitorEvent(ctx, tenantID, id, pubsub.ActionDelete)
	s.logger.Info().
		Str("tenant_id", tenantID.String()).
		Str("monitor_id", id.String()).
		Bool("hard", hard).
		Msg("monitor deleted")
	return nil
}

// Validate runs the configuration checks and persists the outcome. The
// monitor becomes runnable only after a pass with no errors. With
// validateTriggers set, every attached trigger slug must resolve to an
// existing trigger or the pass fails.
func (s *MonitorService) Validate(ctx context.Context, tenantID, id uuid.UUID, validateTriggers bool) (*types.ValidationResult, error) {
	m, err := s.store.GetMonitor(ctx, id, tenantID)
	if err != nil {
		return nil, err
	}

	result := checkMonitorConfig(m)
	if validateTriggers {
		for _, slug := range m.Triggers {
			if _, err := s.store.GetTriggerBySlug(ctx, tenantID, slug); err != nil {
				if apperr.Is(err, apperr.KindNotFound) {
					result.Errors.Add("triggers", fmt.Sprintf("trigger %q does not exist", slug))
					continue
				}
				return nil, err
			}
		}
		result.IsValid = len(result.Errors) == 0
	}

	now := time.Now().UTC()
	errs := result.Errors
	patch := &types.MonitorUpdate{
		Validated:        &result.IsValid,
		ValidationErrors: &errs,
		LastValidatedAt:  &now,
	}
	updated, err := s.store.UpdateMonitor(ctx, id, tenantID, patch)
	if err != nil {
		return nil, err
	}

	s.refreshCacheEntry(ctx, updated)
	s.syncActiveSet(ctx, updated)
	s.pub.MonitorEvent(ctx, tenantID, id, pubsub.ActionUpdate)
	return result, nil
}

func checkMonitorConfig(m *types.Monitor) *types.ValidationResult {
	errs := types.ValidationErrors{}
	if m.Name == "" {
		errs.Add("name", "name is required")
	}
	if !types.ValidSlug(m.Slug) {
		errs.Add("slug", "must be lowercase alphanumerics separated by single hyphens")
	}
	if len(m.Networks) == 0 {
		errs.Add("networks", "at least one network is required")
	}
	for i, addr := range m.Addresses {
		if addr.Address == "" {
			errs.Add("addresses", fmt.Sprintf("entry %d is missing an address", i))
		}
	}

	var warnings []string
	if len(m.MatchFunctions)+len(m.MatchEvents)+len(m.MatchTransactions) == 0 {
		warnings = append(warnings, "monitor has no match clauses and will never fire")
	}
	if len(m.Triggers) == 0 {
		warnings = append(warnings, "monitor has no triggers attached")
	}

	result := &types.ValidationResult{
		IsValid:  len(errs) == 0,
		Errors:   errs,
		Warnings: warnings,
	}
	return result
}

// Clone copies an existing monitor under a new name and slug. The copy
// starts paused so it never fires before the operator reviews it.
func (s *MonitorService) Clone(ctx context.Context, tenantID, srcID uuid.UUID, name, slug string) (*types.Monitor, error) {
	if err := requireWritableTenant(ctx, s.store, tenantID); err != nil {
		return nil, err
	}
	if !types.ValidSlug(slug) {
		return nil, apperr.Ef(apperr.KindBadRequest, "invalid slug %q", slug)
	}
	src, err := s.store.GetMonitor(ctx, srcID, tenantID)
	if err != nil {
		return nil, err
	}
	exists, err := s.store.MonitorSlugExists(ctx, tenantID, slug)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.Duplicate("slug")
	}
	if name == "" {
		name = src.Name + " (copy)"
	}

	clone := &types.Monitor{
		TenantID:          tenantID,
		Name:              name,
		Slug:              slug,
		Description:       fmt.Sprintf("Cloned from %s", src.Name),
		Paused:            true,
		Active:            false,
		Networks:          src.Networks,
		Addresses:         src.Addresses,
		MatchFunctions:    src.MatchFunctions,
		MatchEvents:       src.MatchEvents,
		MatchTransactions: src.MatchTransactions,
		TriggerConditions: src.TriggerConditions,
		Triggers:          src.Triggers,
	}
	return s.create(ctx, clone)
}

// RefreshAll rebuilds the tenant's cache from the database: every entity
// key is rewritten with a fresh denormalized view and the active set is
// recomputed from scratch. Returns how many monitors were cached.
func (s *MonitorService) RefreshAll(ctx context.Context, tenantID uuid.UUID) (int, error) {
	if _, err := s.cache.DeletePattern(ctx, cache.MonitorPattern(tenantID)); err != nil {
		return 0, apperr.Wrap(apperr.KindTransient, "cache refresh failed", err)
	}
	activeKey := cache.ActiveMonitorsKey(tenantID)
	if _, err := s.cache.Delete(ctx, activeKey); err != nil {
		return 0, apperr.Wrap(apperr.KindTransient, "cache refresh failed", err)
	}

	monitors, err := s.store.ListAllMonitors(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	for _, m := range monitors {
		mwt := s.denormalize(ctx, m)
		if err := s.cache.Set(ctx, cache.MonitorKey(tenantID, m.ID), mwt, cache.MonitorTTL); err != nil {
			s.logger.Warn().Err(err).Str("monitor_id", m.ID.String()).Msg("cache write failed during refresh")
		}
		if m.Runnable() {
			if err := s.cache.SAdd(ctx, activeKey, m.ID.String()); err == nil {
				_, _ = s.cache.Expire(ctx, activeKey, cache.ActiveSetTTL)
			}
		}
	}

	s.pub.ConfigEvent(ctx, tenantID, pubsub.ActionInvalidateAll)
	s.logger.Info().
		Str("tenant_id", tenantID.String()).
		Int("monitors", len(monitors)).
		Msg("tenant cache refreshed")
	return len(monitors), nil
}

// GetActiveIDs returns the runnable monitor ids from the active set. An
// absent set reads as empty; workers trigger a refresh when they need a
// rebuild.
func (s *MonitorService) GetActiveIDs(ctx context.Context, tenantID uuid.UUID) ([]string, error) {
	return s.cache.SMembers(ctx, cache.ActiveMonitorsKey(tenantID))
}

// denormalize resolves the monitor's trigger slugs into full records.
// Dangling references are skipped with a warning rather than failing the
// view; the validate path reports them to the operator.
func (s *MonitorService) denormalize(ctx context.Context, m *types.Monitor) *types.MonitorWithTriggers {
	mwt := &types.MonitorWithTriggers{
		Monitor:        *m,
		TriggerRecords: make([]*types.Trigger, 0, len(m.Triggers)),
	}
	for _, slug := range m.Triggers {
		t, err := s.store.GetTriggerBySlug(ctx, m.TenantID, slug)
		if err != nil {
			s.logger.Warn().
				Str("tenant_id", m.TenantID.String()).
				Str("monitor_id", m.ID.String()).
				Str("trigger_slug", slug).
				Msg("dangling trigger reference skipped")
			continue
		}
		mwt.TriggerRecords = append(mwt.TriggerRecords, t)
	}
	return mwt
}

// refreshCacheEntry rewrites the denormalized view after a committed
// write. Cache failures are logged, never surfaced: the database already
// holds the truth and reads fall through on the stale-free key.
func (s *MonitorService) refreshCacheEntry(ctx context.Context, m *types.Monitor) {
	key := cache.MonitorKey(m.TenantID, m.ID)
	if _, err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache invalidation failed")
		return
	}
	mwt := s.denormalize(ctx, m)
	if err := s.cache.Set(ctx, key, mwt, cache.MonitorTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// syncActiveSet adds or removes the monitor from the tenant's runnable
// set according to its current state.
func (s *MonitorService) syncActiveSet(ctx context.Context, m *types.Monitor) {
	key := cache.ActiveMonitorsKey(m.TenantID)
	if m.Runnable() {
		if err := s.cache.SAdd(ctx, key, m.ID.String()); err != nil {
			return
		}
		_, _ = s.cache.Expire(ctx, key, cache.ActiveSetTTL)
		return
	}
	if err := s.cache.SRem(ctx, key, m.ID.String()); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("active set removal failed")
	}
}

func (s *MonitorService) dropFromCache(ctx context.Context, tenantID, id uuid.UUID) {
	if _, err := s.cache.Delete(ctx, cache.MonitorKey(tenantID, id)); err != nil {
		s.logger.Warn().Err(err).Msg("cache invalidation failed")
	}
	if err := s.cache.SRem(ctx, cache.ActiveMonitorsKey(tenantID), id.String()); err != nil {
		s.logger.Warn().Err(err).Msg("active set removal failed")
	}
}
