package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/blip0/blip0/pkg/apperr"
	"github.com/blip0/blip0/pkg/config"
	"github.com/blip0/blip0/pkg/log"
)

// Postgres implements Store over a PostgreSQL database.
type Postgres struct {
	db     *sqlx.DB
	logger zerolog.Logger
}

// NewPostgres opens the database connection pool and verifies connectivity.
func NewPostgres(cfg config.DatabaseConfig) (*Postgres, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &Postgres{db: db, logger: log.WithComponent("storage")}, nil
}

// NewPostgresFromDB wraps an existing connection. Used by tests.
func NewPostgresFromDB(db *sqlx.DB) *Postgres {
	return &Postgres{db: db, logger: log.WithComponent("storage")}
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// DB exposes the underlying handle for the migration tool.
func (p *Postgres) DB() *sqlx.DB {
	return p.db
}

// WithTx runs fn inside a transaction, committing on nil and rolling back
// on error or panic.
func (p *Postgres) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindTransient, "failed to begin transaction", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.KindTransient, "failed to commit transaction", err)
	}
	return nil
}

// normalizeErr converts driver errors into the API taxonomy: missing rows
// become NotFound, unique violations become Duplicate with the constraint
// named, connection-class failures become Transient.
func normalizeErr(err error, entity string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(entity)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505":
			return apperr.Duplicate(constraintField(string(pqErr.Constraint)))
		case strings.HasPrefix(string(pqErr.Code), "08"):
			return apperr.Wrap(apperr.KindTransient, "database unreachable", err)
		}
	}
	return apperr.Wrap(apperr.KindInternal, fmt.Sprintf("%s query failed", entity), err)
}

// constraintField maps a unique-constraint name to the offending field.
func constraintField(constraint string) string {
	switch {
	case strings.Contains(constraint, "slug"):
		return "slug"
	case constraint == "unique_block_state":
		return "tenant_id,network_id"
	case constraint == "unique_missed_block":
		return "tenant_id,network_id,block_number"
	case constraint == "":
		return "unknown"
	default:
		return constraint
	}
}
