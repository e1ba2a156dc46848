package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/blip0/blip0/pkg/apperr"
	"github.com/blip0/blip0/pkg/types"
)

var triggerFilterFields = FieldSet{
	"name":              FieldString,
	"slug":              FieldExact,
	"trigger_type":      FieldExact,
	"description":       FieldString,
	"active":            FieldBool,
	"validated":         FieldBool,
	"created_at":        FieldTime,
	"updated_at":        FieldTime,
	"last_validated_at": FieldTime,
}

var triggerSortFields = map[string]bool{
	"name": true, "slug": true, "trigger_type": true, "created_at": true, "updated_at": true,
}

const triggerInsert = `
	INSERT INTO triggers (
		id, tenant_id, name, slug, trigger_type, description, active,
		validated, validation_errors, last_validated_at, created_at, updated_at
	) VALUES (
		:id, :tenant_id, :name, :slug, :trigger_type, :description, :active,
		:validated, :validation_errors, :last_validated_at, :created_at, :updated_at
	)`

const emailConfigInsert = `
	INSERT INTO email_trigger_configs (
		id, trigger_id, host, port, username, password, sender,
		recipients, message_title, message_body
	) VALUES (
		:id, :trigger_id, :host, :port, :username, :password, :sender,
		:recipients, :message_title, :message_body
	)`

const webhookConfigInsert = `
	INSERT INTO webhook_trigger_configs (
		id, trigger_id, url, method, headers, secret, message_title, message_body
	) VALUES (
		:id, :trigger_id, :url, :method, :headers, :secret, :message_title, :message_body
	)`

// CreateTriggerTx inserts a trigger and its companion config in the
// caller's transaction. Exactly one companion must match the trigger type.
func (p *Postgres) CreateTriggerTx(ctx context.Context, tx *sqlx.Tx, t *types.Trigger) error {
	now := time.Now().UTC()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	if _, err := tx.NamedExecContext(ctx, triggerInsert, t); err != nil {
		return normalizeErr(err, "trigger")
	}

	switch t.TriggerType {
	case types.TriggerTypeEmail:
		if t.Email == nil {
			return apperr.E(apperr.KindBadRequest, "email trigger requires an email config")
		}
		t.Email.ID = uuid.New()
		t.Email.TriggerID = t.ID
		if _, err := tx.NamedExecContext(ctx, emailConfigInsert, t.Email); err != nil {
			return normalizeErr(err, "trigger")
		}
	case types.TriggerTypeWebhook:
		if t.Webhook == nil {
			return apperr.E(apperr.KindBadRequest, "webhook trigger requires a webhook config")
		}
		t.Webhook.ID = uuid.New()
		t.Webhook.TriggerID = t.ID
		if _, err := tx.NamedExecContext(ctx, webhookConfigInsert, t.Webhook); err != nil {
			return normalizeErr(err, "trigger")
		}
	default:
		return apperr.Ef(apperr.KindBadRequest, "unknown trigger type %q", t.TriggerType)
	}
	return nil
}

// GetTrigger loads a trigger with its companion config materialized.
func (p *Postgres) GetTrigger(ctx context.Context, id, tenantID uuid.UUID) (*types.Trigger, error) {
	var t types.Trigger
	err := p.db.GetContext(ctx, &t,
		`SELECT * FROM triggers WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return nil, normalizeErr(err, "trigger")
	}
	if err := p.loadTriggerConfig(ctx, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTriggerBySlug resolves a trigger by its tenant-scoped slug.
func (p *Postgres) GetTriggerBySlug(ctx context.Context, tenantID uuid.UUID, slug string) (*types.Trigger, error) {
	var t types.Trigger
	err := p.db.GetContext(ctx, &t,
		`SELECT * FROM triggers WHERE tenant_id = $1 AND slug = $2`, tenantID, slug)
	if err != nil {
		return nil, normalizeErr(err, "trigger")
	}
	if err := p.loadTriggerConfig(ctx, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (p *Postgres) loadTriggerConfig(ctx context.Context, t *types.Trigger) error {
	switch t.TriggerType {
	case types.TriggerTypeEmail:
		var cfg types.EmailTriggerConfig
		err := p.db.GetContext(ctx, &cfg,
			`SELECT * FROM email_trigger_configs WHERE trigger_id = $1`, t.ID)
		if err != nil {
			return normalizeErr(err, "trigger")
		}
		t.Email = &cfg
	case types.TriggerTypeWebhook:
		var cfg types.WebhookTriggerConfig
		err := p.db.GetContext(ctx, &cfg,
			`SELECT * FROM webhook_trigger_configs WHERE trigger_id = $1`, t.ID)
		if err != nil {
			return normalizeErr(err, "trigger")
		}
		t.Webhook = &cfg
	}
	return nil
}

// TriggerSlugExists reports whether a trigger with the slug exists in the
// tenant.
func (p *Postgres) TriggerSlugExists(ctx context.Context, tenantID uuid.UUID, slug string) (bool, error) {
	var exists bool
	err := p.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM triggers WHERE tenant_id = $1 AND slug = $2)`,
		tenantID, slug)
	if err != nil {
		return false, normalizeErr(err, "trigger")
	}
	return exists, nil
}

// UpdateTrigger applies a partial patch to the trigger row and replaces the
// companion config when one is supplied, all inside one transaction.
func (p *Postgres) UpdateTrigger(ctx context.Context, id, tenantID uuid.UUID, patch *types.TriggerUpdate) (*types.Trigger, error) {
	var out *types.Trigger
	err := p.WithTx(ctx, func(tx *sqlx.Tx) error {
		b := newSetBuilder()
		b.addIfSet("name", strArg(patch.Name))
		b.addIfSet("slug", strArg(patch.Slug))
		b.addIfSet("description", strArg(patch.Description))
		b.addIfSet("active", boolArg(patch.Active))
		b.addIfSet("validated", boolArg(patch.Validated))
		if patch.ValidationErrors != nil {
			b.add("validation_errors", *patch.ValidationErrors)
		}
		if patch.LastValidatedAt != nil {
			b.add("last_validated_at", *patch.LastValidatedAt)
		}
		b.add("updated_at", time.Now().UTC())

		query := fmt.Sprintf(
			`UPDATE triggers SET %s WHERE id = $%d AND tenant_id = $%d RETURNING *`,
			b.setClause(), b.n()+1, b.n()+2)
		args := append(b.args, id, tenantID)

		var t types.Trigger
		if err := tx.GetContext(ctx, &t, query, args...); err != nil {
			return normalizeErr(err, "trigger")
		}

		if patch.Email != nil {
			if t.TriggerType != types.TriggerTypeEmail {
				return apperr.E(apperr.KindBadRequest, "email config on a non-email trigger")
			}
			patch.Email.TriggerID = t.ID
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM email_trigger_configs WHERE trigger_id = $1`, t.ID); err != nil {
				return normalizeErr(err, "trigger")
			}
			patch.Email.ID = uuid.New()
			if _, err := tx.NamedExecContext(ctx, emailConfigInsert, patch.Email); err != nil {
				return normalizeErr(err, "trigger")
			}
			t.Email = patch.Email
		}
		if patch.Webhook != nil {
			if t.TriggerType != types.TriggerTypeWebhook {
				return apperr.E(apperr.KindBadRequest, "webhook config on a non-webhook trigger")
			}
			patch.Webhook.TriggerID = t.ID
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM webhook_trigger_configs WHERE trigger_id = $1`, t.ID); err != nil {
				return normalizeErr(err, "trigger")
			}
			patch.Webhook.ID = uuid.New()
			if _, err := tx.NamedExecContext(ctx, webhookConfigInsert, patch.Webhook); err != nil {
				return normalizeErr(err, "trigger")
			}
			t.Webhook = patch.Webhook
		}
		out = &t
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Email == nil && out.Webhook == nil {
		if err := p.loadTriggerConfig(ctx, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DeleteTriggerTx removes a trigger inside the caller's transaction; the
// companion rows cascade on hard delete.
func (p *Postgres) DeleteTriggerTx(ctx context.Context, tx *sqlx.Tx, id, tenantID uuid.UUID, hard bool) (bool, error) {
	var res interface {
		RowsAffected() (int64, error)
	}
	var err error
	if hard {
		res, err = tx.ExecContext(ctx,
			`DELETE FROM triggers WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE triggers SET active = false, updated_at = $3 WHERE id = $1 AND tenant_id = $2`,
			id, tenantID, time.Now().UTC())
	}
	if err != nil {
		return false, normalizeErr(err, "trigger")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, normalizeErr(err, "trigger")
	}
	return n > 0, nil
}

// ListTriggers returns one page of the tenant's triggers with companion
// configs materialized.
func (p *Postgres) ListTriggers(ctx context.Context, tenantID uuid.UUID, opts ListOptions) (*Page[*types.Trigger], error) {
	opts.normalize()

	clauses := []string{"tenant_id = $1"}
	args := []interface{}{tenantID}

	more, moreArgs, err := whereClause(triggerFilterFields, opts.Filters, len(args))
	if err != nil {
		return nil, err
	}
	clauses = append(clauses, more...)
	args = append(args, moreArgs...)
	where := "WHERE " + strings.Join(clauses, " AND ")

	var total int64
	if err := p.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM triggers "+where, args...); err != nil {
		return nil, normalizeErr(err, "trigger")
	}

	order, err := orderClause(triggerSortFields, opts.SortField, opts.SortOrder)
	if err != nil {
		return nil, err
	}
	limit, offset := opts.limitOffset()

	var items []*types.Trigger
	query := fmt.Sprintf("SELECT * FROM triggers %s %s LIMIT $%d OFFSET $%d",
		where, order, len(args)+1, len(args)+2)
	if err := p.db.SelectContext(ctx, &items, query, append(args, limit, offset)...); err != nil {
		return nil, normalizeErr(err, "trigger")
	}
	for _, t := range items {
		if err := p.loadTriggerConfig(ctx, t); err != nil {
			return nil, err
		}
	}

	return newPage(items, total, opts.Page, opts.Size), nil
}
