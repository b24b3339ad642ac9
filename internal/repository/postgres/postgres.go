// Package postgres stores customers and applications in PostgreSQL through a
// pgx connection pool.
//
// The duplicate-pending invariant is enforced by a partial unique index on
// credit_card_applications(tax_id) WHERE status = 'PENDING', so concurrent
// submissions for one tax id cannot both commit.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"card_underwriting/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation        = "23505"
	pendingTaxIDConstraint = "uq_applications_pending_tax_id"
	defaultMaxConns        = 10
	defaultMinConns        = 2
	defaultMaxConnLifetime = 30 * time.Minute
	defaultMaxConnIdleTime = 5 * time.Minute
)

const schema = `
CREATE TABLE IF NOT EXISTS customers (
	id UUID PRIMARY KEY,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	email TEXT NOT NULL,
	phone_number TEXT NOT NULL DEFAULT '',
	tax_id TEXT NOT NULL UNIQUE,
	date_of_birth DATE,
	street_address TEXT,
	city TEXT,
	state TEXT,
	zip_code TEXT,
	country TEXT,
	identity_verified BOOLEAN NOT NULL DEFAULT FALSE,
	kyc_status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_customers_email ON customers (lower(email));

CREATE TABLE IF NOT EXISTS credit_card_applications (
	id UUID PRIMARY KEY,
	application_number TEXT NOT NULL UNIQUE,
	status TEXT NOT NULL,
	customer_id UUID NOT NULL REFERENCES customers(id),
	tax_id TEXT NOT NULL,
	requested_limit NUMERIC(12,2) NOT NULL,
	annual_income NUMERIC(14,2) NOT NULL,
	employment_status TEXT NOT NULL,
	card_type TEXT NOT NULL,
	credit_score INTEGER,
	risk_score NUMERIC(5,2),
	approved_limit NUMERIC(12,2),
	decision_reason TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ,
	decided_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_applications_pending_tax_id
	ON credit_card_applications (tax_id) WHERE status = 'PENDING';
CREATE INDEX IF NOT EXISTS idx_applications_status_created
	ON credit_card_applications (status, created_at);
`

// NewPool opens a connection pool configured the way the service expects.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	cfg.MaxConns = defaultMaxConns
	cfg.MinConns = defaultMinConns
	cfg.MaxConnLifetime = defaultMaxConnLifetime
	cfg.MaxConnIdleTime = defaultMaxConnIdleTime
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the tables and indexes when they are missing.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// mapWriteError translates unique violations into repository sentinels.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}
	if pgErr.ConstraintName == pendingTaxIDConstraint {
		return repository.ErrPendingExists
	}
	return fmt.Errorf("%w: %s", repository.ErrDuplicate, pgErr.ConstraintName)
}
