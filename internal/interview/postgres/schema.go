// Package postgres provides the PostgreSQL-backed implementation of the
// interview transcript store.
//
// All operations share a single [pgxpool.Pool]. [Migrate] is idempotent and
// safe to run on every application start.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, interview.DefaultClosingPhrase)
//	if err != nil { … }
//	defer store.Close()
//
//	turn, err := store.Append(ctx, id, interview.RoleSystem, prompt)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlTurns = `
CREATE TABLE IF NOT EXISTS turns (
    id                BIGSERIAL    PRIMARY KEY,
    content           TEXT         NOT NULL,
    created_at        TIMESTAMPTZ  NOT NULL DEFAULT now(),
    role              TEXT         NOT NULL,
    session_key       TEXT         NOT NULL,
    applicant_name    TEXT         NOT NULL,
    applicant_email   TEXT         NOT NULL,
    completes_session BOOLEAN      NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_turns_identity
    ON turns (session_key, applicant_name, applicant_email, created_at);

CREATE INDEX IF NOT EXISTS idx_turns_session_key
    ON turns (session_key);

CREATE INDEX IF NOT EXISTS idx_turns_completing
    ON turns (session_key, applicant_name, applicant_email)
    WHERE completes_session;
`

// Migrate creates or ensures the turns table and its indexes exist.
// It is idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS).
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlTurns); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
