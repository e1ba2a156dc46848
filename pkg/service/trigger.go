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
)

// TriggerService owns the trigger lifecycle: the polymorphic companion
// configs, quota-checked creation, entity caching, and change events.
type TriggerService struct {
	store  *storage.Postgres
	quota  *quota.Engine
	cache  *cache.Client
	pub    *pubsub.Publisher
	logger zerolog.Logger
}

// NewTriggerService wires a trigger service over the shared backends.
func NewTriggerService(store *storage.Postgres, q *quota.Engine, c *cache.Client, pub *pubsub.Publisher) *TriggerService {
	return &TriggerService{
		store:  store,
		quota:  q,
		cache:  c,
		pub:    pub,
		logger: log.WithComponent("trigger-service"),
	}
}

// Create stores a new trigger with its companion config under the
// tenant's quota. The config is checked before anything touches the
// database.
func (s *TriggerService) Create(ctx context.Context, tenantID uuid.UUID, in *types.TriggerCreate) (*types.Trigger, error) {
	if err := requireWritableTenant(ctx, s.store, tenantID); err != nil {
		return nil, err
	}
	if errs := checkTriggerCreate(in); errs != nil {
		return nil, &apperr.Error{Kind: apperr.KindBadRequest, Msg: "trigger configuration is invalid", Err: errs}
	}
	exists, err := s.store.TriggerSlugExists(ctx, tenantID, in.Slug)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.Duplicate("slug")
	}

	now := time.Now().UTC()
	t := &types.Trigger{
		TenantID:        tenantID,
		Name:            in.Name,
		Slug:            in.Slug,
		TriggerType:     in.TriggerType,
		Description:     in.Description,
		Active:          true,
		Validated:       true,
		LastValidatedAt: &now,
		Email:           in.Email,
		Webhook:         in.Webhook,
	}
	err = s.quota.WithReservation(ctx, tenantID, quota.ResourceTriggers, func(tx *sqlx.Tx) error {
		return s.store.CreateTriggerTx(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}

	s.refreshCacheEntry(ctx, t)
	s.pub.TriggerEvent(ctx, tenantID, t.ID, pubsub.ActionCreate)
	s.logger.Info().
		Str("tenant_id", tenantID.String()).
		Str("trigger_id", t.ID.String()).
		Str("type", string(t.TriggerType)).
		Msg("trigger created")
	return t, nil
}

func checkTriggerCreate(in *types.TriggerCreate) types.ValidationErrors {
	errs := types.ValidationErrors{}
	if in.Name == "" {
		errs.Add("name", "name is required")
	}
	if !types.ValidSlug(in.Slug) {
		errs.Add("slug", "must be lowercase alphanumerics separated by single hyphens")
	}
	switch in.TriggerType {
	case types.TriggerTypeEmail:
		if in.Webhook != nil {
			errs.Add("webhook", "webhook config on an email trigger")
		}
		if in.Email == nil {
			errs.Add("email", "email config is required")
		} else {
			if in.Email.Host == "" {
				errs.Add("email", "SMTP host is required")
			}
			if in.Email.Port <= 0 || in.Email.Port > 65535 {
				errs.Add("email", "SMTP port is out of range")
			}
			if len(in.Email.Recipients) == 0 {
				errs.Add("email", "at least one recipient is required")
			}
		}
	case types.TriggerTypeWebhook:
		if in.Email != nil {
			errs.Add("email", "email config on a webhook trigger")
		}
		if in.Webhook == nil {
			errs.Add("webhook", "webhook config is required")
		} else if in.Webhook.URL.Raw == "" && in.Webhook.URL.Type == types.SecretSourcePlain {
			errs.Add("webhook", "webhook URL is required")
		}
	default:
		errs.Add("trigger_type", "must be email or webhook")
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Get returns the trigger, serving from cache when possible.
func (s *TriggerService) Get(ctx context.Context, tenantID, id uuid.UUID) (*types.Trigger, error) {
	key := cache.TriggerKey(tenantID, id)

	var cached types.Trigger
	if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
		metrics.CacheHits.WithLabelValues("trigger").Inc()
		return &cached, nil
	}
	metrics.CacheMisses.WithLabelValues("trigger").Inc()

	t, err := s.store.GetTrigger(ctx, id, tenantID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, t, cache.TriggerTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return t, nil
}

// GetBySlug resolves a trigger by its tenant-scoped slug.
func (s *TriggerService) GetBySlug(ctx context.Context, tenantID uuid.UUID, slug string) (*types.Trigger, error) {
	return s.store.GetTriggerBySlug(ctx, tenantID, slug)
}

// List returns one page of the tenant's triggers.
func (s *TriggerService) List(ctx context.Context, tenantID uuid.UUID, opts storage.ListOptions) (*storage.Page[*types.Trigger], error) {
	return s.store.ListTriggers(ctx, tenantID, opts)
}

// Update applies a partial patch, replacing the companion config when one
// is supplied. A slug change is checked for collision first.
func (s *TriggerService) Update(ctx context.Context, tenantID, id uuid.UUID, patch *types.TriggerUpdate) (*types.Trigger, error) {
	if err := requireWritableTenant(ctx, s.store, tenantID); err != nil {
		return nil, err
	}
	if patch.Slug != nil {
		if !types.ValidSlug(*patch.Slug) {
			return nil, apperr.Ef(apperr.KindBadRequest, "invalid slug %q", *patch.Slug)
		}
		current, err := s.store.GetTrigger(ctx, id, tenantID)
		if err != nil {
			return nil, err
		}
		if current.Slug != *patch.Slug {
			exists, err := s.store.TriggerSlugExists(ctx, tenantID, *patch.Slug)
			if err != nil {
				return nil, err
			}
			if exists {
				return nil, apperr.Duplicate("slug")
			}
		}
	}

	t, err := s.store.UpdateTrigger(ctx, id, tenantID, patch)
	if err != nil {
		return nil, err
	}

	s.refreshCacheEntry(ctx, t)
	s.pub.TriggerEvent(ctx, tenantID, id, pubsub.ActionUpdate)
	return t, nil
}

// Activate turns delivery back on for the trigger.
func (s *TriggerService) Activate(ctx context.Context, tenantID, id uuid.UUID) (*types.Trigger, error) {
	return s.setActive(ctx, tenantID, id, true)
}

// Deactivate stops delivery without removing the trigger.
func (s *TriggerService) Deactivate(ctx context.Context, tenantID, id uuid.UUID) (*types.Trigger, error) {
	return s.setActive(ctx, tenantID, id, false)
}

func (s *TriggerService) setActive(ctx context.Context, tenantID, id uuid.UUID, active bool) (*types.Trigger, error) {
	if err := requireWritableTenant(ctx, s.store, tenantID); err != nil {
		return nil, err
	}
	t, err := s.store.UpdateTrigger(ctx, id, tenantID, &types.TriggerUpdate{Active: &active})
	if err != nil {
		return nil, err
	}
	s.refreshCacheEntry(ctx, t)
	s.pub.TriggerEvent(ctx, tenantID, id, pubsub.ActionUpdate)
	return t, nil
}

// Delete removes a trigger. Hard delete drops the row with its companion
// config and releases the quota slot; soft delete deactivates.
func (s *TriggerService) Delete(ctx context.Context, tenantID, id uuid.UUID, hard bool) error {
	if err := requireWritableTenant(ctx, s.store, tenantID); err != nil {
		return err
	}

	remove := func(tx *sqlx.Tx) error {
		found, err := s.store.DeleteTriggerTx(ctx, tx, id, tenantID, hard)
		if err != nil {
			return err
		}
		if !found {
			return apperr.NotFound("trigger")
		}
		return nil
	}

	var err error
	if hard {
		err = s.quota.WithRelease(ctx, tenantID, quota.ResourceTriggers, remove)
	} else {
		err = s.store.WithTx(ctx, remove)
	}
	if err != nil {
		return err
	}

	if _, err := s.cache.Delete(ctx, cache.TriggerKey(tenantID, id)); err != nil {
		s.logger.Warn().Err(err).Str("trigger_id", id.String()).Msg("cache invalidation failed")
	}
	s.pub.TriggerEvent(ctx, tenantID, id, pubsub.ActionDelete)
	s.logger.Info().
		Str("tenant_id", tenantID.String()).
		Str("trigger_id", id.String()).
		Bool("hard", hard).
		Msg("trigger deleted")
	return nil
}

func (s *TriggerService) refreshCacheEntry(ctx context.Context, t *types.Trigger) {
	key := cache.TriggerKey(t.TenantID, t.ID)
	if _, err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache invalidation failed")
		return
	}
	if err := s.cache.Set(ctx, key, t, cache.TriggerTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}
