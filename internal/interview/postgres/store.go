package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hireorbit/interviewd/internal/interview"
)

// Compile-time interface check.
var _ interview.Store = (*Store)(nil)

// Store is the PostgreSQL-backed transcript store. It holds a single
// [pgxpool.Pool]; every operation is one statement (or one transaction) so
// concurrent callers need no coordination beyond the pool itself.
//
// All operations are safe for concurrent use.
type Store struct {
	pool    *pgxpool.Pool
	closing string
}

// NewStore establishes a connection pool to the PostgreSQL database at dsn,
// runs [Migrate], and returns a ready Store. closingPhrase is the phrase
// whose presence in a system turn marks the session finished; pass
// [interview.DefaultClosingPhrase] unless the deployment overrides it.
func NewStore(ctx context.Context, dsn string, closingPhrase string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool, closing: closingPhrase}, nil
}

// Ping verifies database connectivity. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Append implements [interview.Store]. The database assigns id and
// created_at; completes_session is computed here so the rule lives in one
// place for both store implementations.
func (s *Store) Append(ctx context.Context, id interview.Identity, role interview.Role, content string) (interview.Turn, error) {
	const q = `
		INSERT INTO turns
		    (content, role, session_key, applicant_name, applicant_email, completes_session)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	t := interview.Turn{
		Content:          content,
		Role:             role,
		Identity:         id,
		CompletesSession: interview.IsClosing(role, content, s.closing),
	}
	err := s.pool.QueryRow(ctx, q,
		content, string(role), id.SessionKey, id.Name, id.Email, t.CompletesSession,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return interview.Turn{}, fmt.Errorf("transcript store: append: %w", err)
	}
	return t, nil
}

// Exists implements [interview.Store].
func (s *Store) Exists(ctx context.Context, id interview.Identity) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM turns
			WHERE session_key = $1 AND applicant_name = $2 AND applicant_email = $3
		)`

	var exists bool
	if err := s.pool.QueryRow(ctx, q, id.SessionKey, id.Name, id.Email).Scan(&exists); err != nil {
		return false, fmt.Errorf("transcript store: exists: %w", err)
	}
	return exists, nil
}

// ListTurns implements [interview.Store]. Ordering is (created_at, id);
// the id tiebreak makes same-timestamp inserts deterministic.
func (s *Store) ListTurns(ctx context.Context, id interview.Identity) ([]interview.Turn, error) {
	const q = `
		SELECT id, content, created_at, role, completes_session
		FROM   turns
		WHERE  session_key = $1 AND applicant_name = $2 AND applicant_email = $3
		ORDER  BY created_at, id`

	rows, err := s.pool.Query(ctx, q, id.SessionKey, id.Name, id.Email)
	if err != nil {
		return nil, fmt.Errorf("transcript store: list turns: %w", err)
	}

	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (interview.Turn, error) {
		t := interview.Turn{Identity: id}
		var role string
		if err := row.Scan(&t.ID, &t.Content, &t.CreatedAt, &role, &t.CompletesSession); err != nil {
			return interview.Turn{}, err
		}
		t.Role = interview.Role(role)
		return t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("transcript store: scan rows: %w", err)
	}
	if turns == nil {
		turns = []interview.Turn{}
	}
	return turns, nil
}

// History implements [interview.Store].
func (s *Store) History(ctx context.Context, id interview.Identity) ([]interview.HistoryEntry, error) {
	const q = `
		SELECT role, content
		FROM   turns
		WHERE  session_key = $1 AND applicant_name = $2 AND applicant_email = $3
		ORDER  BY created_at, id`

	rows, err := s.pool.Query(ctx, q, id.SessionKey, id.Name, id.Email)
	if err != nil {
		return nil, fmt.Errorf("transcript store: history: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (interview.HistoryEntry, error) {
		var e interview.HistoryEntry
		var role string
		if err := row.Scan(&role, &e.Content); err != nil {
			return interview.HistoryEntry{}, err
		}
		e.Role = interview.Role(role)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("transcript store: scan rows: %w", err)
	}
	if entries == nil {
		entries = []interview.HistoryEntry{}
	}
	return entries, nil
}

// Status implements [interview.Store]. bool_or over zero rows is NULL, which
// maps the three lifecycle states onto a single aggregate query.
func (s *Store) Status(ctx context.Context, id interview.Identity) (interview.Status, error) {
	const q = `
		SELECT bool_or(completes_session)
		FROM   turns
		WHERE  session_key = $1 AND applicant_name = $2 AND applicant_email = $3`

	var finished *bool
	if err := s.pool.QueryRow(ctx, q, id.SessionKey, id.Name, id.Email).Scan(&finished); err != nil {
		return interview.StatusUninitiated, fmt.Errorf("transcript store: status: %w", err)
	}
	switch {
	case finished == nil:
		return interview.StatusUninitiated, nil
	case *finished:
		return interview.StatusFinished, nil
	default:
		return interview.StatusStarted, nil
	}
}

// ListApplicants implements [interview.Store].
func (s *Store) ListApplicants(ctx context.Context, sessionKey string) ([]interview.Applicant, error) {
	const q = `
		SELECT applicant_name, applicant_email, bool_or(completes_session)
		FROM   turns
		WHERE  session_key = $1
		GROUP  BY applicant_name, applicant_email
		ORDER  BY applicant_name, applicant_email`

	return s.collectApplicants(ctx, q, sessionKey)
}

// ListFinished implements [interview.Store].
func (s *Store) ListFinished(ctx context.Context, sessionKey string) ([]interview.Applicant, error) {
	const q = `
		SELECT applicant_name, applicant_email, bool_or(completes_session)
		FROM   turns
		WHERE  session_key = $1
		GROUP  BY applicant_name, applicant_email
		HAVING bool_or(completes_session)
		ORDER  BY applicant_name, applicant_email`

	return s.collectApplicants(ctx, q, sessionKey)
}

func (s *Store) collectApplicants(ctx context.Context, q, sessionKey string) ([]interview.Applicant, error) {
	rows, err := s.pool.Query(ctx, q, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("transcript store: list applicants: %w", err)
	}

	applicants, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (interview.Applicant, error) {
		var a interview.Applicant
		if err := row.Scan(&a.Name, &a.Email, &a.Finished); err != nil {
			return interview.Applicant{}, err
		}
		return a, nil
	})
	if err != nil {
		return nil, fmt.Errorf("transcript store: scan rows: %w", err)
	}
	if applicants == nil {
		applicants = []interview.Applicant{}
	}
	return applicants, nil
}

// DeleteAll implements [interview.Store].
func (s *Store) DeleteAll(ctx context.Context, id interview.Identity) (int64, error) {
	const q = `
		DELETE FROM turns
		WHERE session_key = $1 AND applicant_name = $2 AND applicant_email = $3`

	tag, err := s.pool.Exec(ctx, q, id.SessionKey, id.Name, id.Email)
	if err != nil {
		return 0, fmt.Errorf("transcript store: delete all: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteUnfinished implements [interview.Store]. The select-then-delete is a
// single DELETE with a subquery, so a completing turn that lands concurrently
// is either visible to the subquery or blocked until the delete commits —
// there is no window where a freshly finished applicant gets swept.
func (s *Store) DeleteUnfinished(ctx context.Context, sessionKey string) (int64, error) {
	const q = `
		DELETE FROM turns
		WHERE session_key = $1
		  AND (applicant_name, applicant_email) NOT IN (
		      SELECT applicant_name, applicant_email
		      FROM   turns
		      WHERE  session_key = $1 AND completes_session
		  )`

	tag, err := s.pool.Exec(ctx, q, sessionKey)
	if err != nil {
		return 0, fmt.Errorf("transcript store: delete unfinished: %w", err)
	}
	return tag.RowsAffected(), nil
}
