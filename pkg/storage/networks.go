package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/blip0/blip0/pkg/types"
)

var networkFilterFields = FieldSet{
	"name":              FieldString,
	"slug":              FieldExact,
	"network_type":      FieldExact,
	"active":            FieldBool,
	"validated":         FieldBool,
	"chain_id":          FieldNumber,
	"block_time_ms":     FieldNumber,
	"created_at":        FieldTime,
	"updated_at":        FieldTime,
	"last_validated_at": FieldTime,
}

var networkSortFields = map[string]bool{
	"name": true, "slug": true, "created_at": true, "updated_at": true,
}

const networkInsert = `
	INSERT INTO networks (
		id, tenant_id, name, slug, network_type, chain_id,
		network_passphrase, block_time_ms, rpc_urls, confirmation_blocks,
		cron_schedule, max_past_blocks, store_blocks, active,
		validated, validation_errors, last_validated_at,
		created_at, updated_at
	) VALUES (
		:id, :tenant_id, :name, :slug, :network_type, :chain_id,
		:network_passphrase, :block_time_ms, :rpc_urls, :confirmation_blocks,
		:cron_schedule, :max_past_blocks, :store_blocks, :active,
		:validated, :validation_errors, :last_validated_at,
		:created_at, :updated_at
	)`

// CreateNetworkTx inserts a network inside the caller's transaction.
func (p *Postgres) CreateNetworkTx(ctx context.Context, tx *sqlx.Tx, n *types.Network) error {
	now := time.Now().UTC()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now
	if _, err := tx.NamedExecContext(ctx, networkInsert, n); err != nil {
		return normalizeErr(err, "network")
	}
	return nil
}

// GetNetwork returns a network by id.
func (p *Postgres) GetNetwork(ctx context.Context, id uuid.UUID) (*types.Network, error) {
	var n types.Network
	err := p.db.GetContext(ctx, &n, `SELECT * FROM networks WHERE id = $1`, id)
	if err != nil {
		return nil, normalizeErr(err, "network")
	}
	return &n, nil
}

// GetNetworkBySlug returns a network by its slug.
func (p *Postgres) GetNetworkBySlug(ctx context.Context, slug string) (*types.Network, error) {
	var n types.Network
	err := p.db.GetContext(ctx, &n, `SELECT * FROM networks WHERE slug = $1`, slug)
	if err != nil {
		return nil, normalizeErr(err, "network")
	}
	return &n, nil
}

// UpdateNetwork applies a partial patch and returns the fresh row.
func (p *Postgres) UpdateNetwork(ctx context.Context, id uuid.UUID, patch *types.NetworkUpdate) (*types.Network, error) {
	b := newSetBuilder()
	b.addIfSet("name", strArg(patch.Name))
	b.addIfSet("chain_id", i64Arg(patch.ChainID))
	b.addIfSet("network_passphrase", strArg(patch.NetworkPassphrase))
	b.addIfSet("block_time_ms", i64Arg(patch.BlockTimeMS))
	if patch.RPCUrls != nil {
		b.add("rpc_urls", *patch.RPCUrls)
	}
	b.addIfSet("confirmation_blocks", i64Arg(patch.ConfirmationBlocks))
	b.addIfSet("cron_schedule", strArg(patch.CronSchedule))
	b.addIfSet("max_past_blocks", i64Arg(patch.MaxPastBlocks))
	b.addIfSet("store_blocks", boolArg(patch.StoreBlocks))
	b.addIfSet("active", boolArg(patch.Active))
	b.addIfSet("validated", boolArg(patch.Validated))
	if patch.ValidationErrors != nil {
		b.add("validation_errors", *patch.ValidationErrors)
	}
	if patch.LastValidatedAt != nil {
		b.add("last_validated_at", *patch.LastValidatedAt)
	}
	b.add("updated_at", time.Now().UTC())

	query := fmt.Sprintf(`UPDATE networks SET %s WHERE id = $%d RETURNING *`,
		b.setClause(), b.n()+1)
	args := append(b.args, id)

	var n types.Network
	if err := p.db.GetContext(ctx, &n, query, args...); err != nil {
		return nil, normalizeErr(err, "network")
	}
	return &n, nil
}

// DeleteNetworkTx removes a network inside the caller's transaction.
func (p *Postgres) DeleteNetworkTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, hard bool) (bool, error) {
	var res interface {
		RowsAffected() (int64, error)
	}
	var err error
	if hard {
		res, err = tx.ExecContext(ctx, `DELETE FROM networks WHERE id = $1`, id)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE networks SET active = false, updated_at = $2 WHERE id = $1`,
			id, time.Now().UTC())
	}
	if err != nil {
		return false, normalizeErr(err, "network")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, normalizeErr(err, "network")
	}
	return n > 0, nil
}

// ListNetworks returns one page of networks.
func (p *Postgres) ListNetworks(ctx context.Context, opts ListOptions) (*Page[*types.Network], error) {
	opts.normalize()

	clauses, args, err := whereClause(networkFilterFields, opts.Filters, 0)
	if err != nil {
		return nil, err
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}

	var total int64
	if err := p.db.GetContext(ctx, &total,
		strings.TrimSpace("SELECT COUNT(*) FROM networks "+where), args...); err != nil {
		return nil, normalizeErr(err, "network")
	}

	order, err := orderClause(networkSortFields, opts.SortField, opts.SortOrder)
	if err != nil {
		return nil, err
	}
	limit, offset := opts.limitOffset()

	var items []*types.Network
	query := fmt.Sprintf("SELECT * FROM networks %s %s LIMIT $%d OFFSET $%d",
		where, order, len(args)+1, len(args)+2)
	if err := p.db.SelectContext(ctx, &items, query, append(args, limit, offset)...); err != nil {
		return nil, normalizeErr(err, "network")
	}

	return newPage(items, total, opts.Page, opts.Size), nil
}
