package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hireorbit/interviewd/internal/interview"
	"github.com/hireorbit/interviewd/internal/interview/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if INTERVIEWD_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("INTERVIEWD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("INTERVIEWD_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema.
// It calls t.Cleanup to close the store when the test finishes.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	cleanPool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(cleanPool.Close)
	if _, err := cleanPool.Exec(ctx, "DROP TABLE IF EXISTS turns CASCADE"); err != nil {
		t.Fatalf("drop schema: %v", err)
	}

	store, err := postgres.NewStore(ctx, dsn, interview.DefaultClosingPhrase)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func mustAppend(t *testing.T, store *postgres.Store, id interview.Identity, role interview.Role, content string) interview.Turn {
	t.Helper()
	turn, err := store.Append(context.Background(), id, role, content)
	if err != nil {
		t.Fatalf("Append(%q): %v", content, err)
	}
	return turn
}

func TestStore_AppendAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ann := interview.Identity{SessionKey: "k1", Name: "Ann", Email: "a@x.com"}
	contents := []string{"Welcome, let's begin.", "I mostly work on backend systems.", "What was the hardest bug you fixed?"}
	roles := []interview.Role{interview.RoleSystem, interview.RoleUser, interview.RoleSystem}
	for i := range contents {
		turn := mustAppend(t, store, ann, roles[i], contents[i])
		if turn.ID == 0 {
			t.Errorf("turn %d: ID not assigned", i)
		}
		if turn.CreatedAt.IsZero() {
			t.Errorf("turn %d: CreatedAt not assigned", i)
		}
	}

	turns, err := store.ListTurns(ctx, ann)
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("ListTurns: want 3, got %d", len(turns))
	}
	for i, turn := range turns {
		if turn.Content != contents[i] {
			t.Errorf("turn[%d]: want %q, got %q", i, contents[i], turn.Content)
		}
	}

	// Unknown identity: empty, not an error.
	empty, err := store.ListTurns(ctx, interview.Identity{SessionKey: "nope", Name: "x", Email: "y"})
	if err != nil {
		t.Fatalf("ListTurns unknown: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("ListTurns unknown: want 0, got %d", len(empty))
	}
}

func TestStore_ListTurnsSameTimestampOrderedByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, testDSN(t))
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)

	// A multi-row INSERT is one statement, so every row gets the same now()
	// for created_at and only the id distinguishes their order.
	ann := interview.Identity{SessionKey: "k1", Name: "Ann", Email: "a@x.com"}
	contents := []string{"first", "second", "third"}
	const q = `
		INSERT INTO turns (content, role, session_key, applicant_name, applicant_email)
		VALUES ($1, 'system', $4, $5, $6),
		       ($2, 'user',   $4, $5, $6),
		       ($3, 'system', $4, $5, $6)`
	if _, err := pool.Exec(ctx, q,
		contents[0], contents[1], contents[2],
		ann.SessionKey, ann.Name, ann.Email,
	); err != nil {
		t.Fatalf("insert: %v", err)
	}

	turns, err := store.ListTurns(ctx, ann)
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("ListTurns: want 3, got %d", len(turns))
	}
	for i := 1; i < len(turns); i++ {
		if !turns[i].CreatedAt.Equal(turns[0].CreatedAt) {
			t.Fatalf("turn[%d]: created_at %v differs from turn[0] %v", i, turns[i].CreatedAt, turns[0].CreatedAt)
		}
	}
	for i, turn := range turns {
		if turn.Content != contents[i] {
			t.Errorf("turn[%d]: want %q, got %q", i, contents[i], turn.Content)
		}
	}
}

func TestStore_StatusAndCompletion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ann := interview.Identity{SessionKey: "k1", Name: "Ann", Email: "a@x.com"}

	status, err := store.Status(ctx, ann)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != interview.StatusUninitiated {
		t.Errorf("fresh identity: want %q, got %q", interview.StatusUninitiated, status)
	}

	mustAppend(t, store, ann, interview.RoleSystem, "Welcome, let's begin.")
	status, _ = store.Status(ctx, ann)
	if status != interview.StatusStarted {
		t.Errorf("after first turn: want %q, got %q", interview.StatusStarted, status)
	}

	// The closing phrase from the user does not finish the session.
	mustAppend(t, store, ann, interview.RoleUser, "Thank you for your time and insights.")
	status, _ = store.Status(ctx, ann)
	if status != interview.StatusStarted {
		t.Errorf("user closing phrase: want %q, got %q", interview.StatusStarted, status)
	}

	closing := mustAppend(t, store, ann, interview.RoleSystem, "Thank you for your time and insights.")
	if !closing.CompletesSession {
		t.Error("system closing turn: CompletesSession should be true")
	}
	status, _ = store.Status(ctx, ann)
	if status != interview.StatusFinished {
		t.Errorf("after closing turn: want %q, got %q", interview.StatusFinished, status)
	}
}

func TestStore_ExistsAndDeleteAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ann := interview.Identity{SessionKey: "k1", Name: "Ann", Email: "a@x.com"}
	bob := interview.Identity{SessionKey: "k1", Name: "Bob", Email: "b@x.com"}

	mustAppend(t, store, ann, interview.RoleSystem, "one")
	mustAppend(t, store, ann, interview.RoleUser, "two")
	mustAppend(t, store, bob, interview.RoleSystem, "keep")

	ok, err := store.Exists(ctx, ann)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Error("Exists: want true")
	}

	removed, err := store.DeleteAll(ctx, ann)
	if err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if removed != 2 {
		t.Errorf("DeleteAll: want 2, got %d", removed)
	}

	ok, _ = store.Exists(ctx, ann)
	if ok {
		t.Error("Exists after DeleteAll: want false")
	}
	if ok, _ := store.Exists(ctx, bob); !ok {
		t.Error("DeleteAll removed another identity's turns")
	}
}

func TestStore_ApplicantsAndDeleteUnfinished(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ann := interview.Identity{SessionKey: "k1", Name: "Ann", Email: "a@x.com"}
	bob := interview.Identity{SessionKey: "k1", Name: "Bob", Email: "b@x.com"}
	zoe := interview.Identity{SessionKey: "k2", Name: "Zoe", Email: "z@x.com"}

	mustAppend(t, store, ann, interview.RoleSystem, "Welcome.")
	mustAppend(t, store, ann, interview.RoleSystem, "Thank you for your time and insights.")
	mustAppend(t, store, bob, interview.RoleSystem, "Welcome.")
	mustAppend(t, store, zoe, interview.RoleSystem, "Welcome.")

	applicants, err := store.ListApplicants(ctx, "k1")
	if err != nil {
		t.Fatalf("ListApplicants: %v", err)
	}
	if len(applicants) != 2 {
		t.Fatalf("ListApplicants: want 2, got %d", len(applicants))
	}
	if applicants[0].Name != "Ann" || !applicants[0].Finished {
		t.Errorf("applicants[0]: want finished Ann, got %+v", applicants[0])
	}
	if applicants[1].Name != "Bob" || applicants[1].Finished {
		t.Errorf("applicants[1]: want unfinished Bob, got %+v", applicants[1])
	}

	finished, err := store.ListFinished(ctx, "k1")
	if err != nil {
		t.Fatalf("ListFinished: %v", err)
	}
	if len(finished) != 1 || finished[0].Name != "Ann" {
		t.Errorf("ListFinished: want [Ann], got %+v", finished)
	}

	removed, err := store.DeleteUnfinished(ctx, "k1")
	if err != nil {
		t.Fatalf("DeleteUnfinished: %v", err)
	}
	if removed != 1 {
		t.Errorf("DeleteUnfinished: want 1, got %d", removed)
	}
	if ok, _ := store.Exists(ctx, bob); ok {
		t.Error("unfinished applicant should be gone")
	}
	if ok, _ := store.Exists(ctx, ann); !ok {
		t.Error("finished applicant should be kept")
	}
	if ok, _ := store.Exists(ctx, zoe); !ok {
		t.Error("other session key affected")
	}
}

func TestStore_DeleteUnfinishedNobodyFinished(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ann := interview.Identity{SessionKey: "k1", Name: "Ann", Email: "a@x.com"}
	bob := interview.Identity{SessionKey: "k1", Name: "Bob", Email: "b@x.com"}
	mustAppend(t, store, ann, interview.RoleSystem, "Welcome.")
	mustAppend(t, store, bob, interview.RoleUser, "Hello?")

	removed, err := store.DeleteUnfinished(ctx, "k1")
	if err != nil {
		t.Fatalf("DeleteUnfinished: %v", err)
	}
	if removed != 2 {
		t.Errorf("want 2, got %d", removed)
	}
	applicants, _ := store.ListApplicants(ctx, "k1")
	if len(applicants) != 0 {
		t.Errorf("want empty session key, got %+v", applicants)
	}
}
