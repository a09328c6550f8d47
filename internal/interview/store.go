package interview

import "context"

// Store is the durable, ordered, queryable transcript log. It exclusively
// owns turn lifecycle: ID assignment, creation timestamps, and persistence.
//
// Turns for an [Identity] form an append-only sequence ordered by
// (CreatedAt, ID). Reads on an unknown identity return empty results, not
// errors — callers decide whether empty means "not found". Store methods
// fail only on underlying storage errors.
//
// All implementations must be safe for concurrent use.
type Store interface {
	// Append persists a new turn for the identity, assigning its ID and
	// CreatedAt. CompletesSession is computed from the store's configured
	// closing phrase via [IsClosing] and never supplied by the caller.
	Append(ctx context.Context, id Identity, role Role, content string) (Turn, error)

	// Exists reports whether at least one turn carries the identity.
	Exists(ctx context.Context, id Identity) (bool, error)

	// ListTurns returns the identity's full transcript in order.
	ListTurns(ctx context.Context, id Identity) ([]Turn, error)

	// History returns the transcript projected to the {role, content}
	// pairs a completion provider consumes, in the same order as ListTurns.
	History(ctx context.Context, id Identity) ([]HistoryEntry, error)

	// Status derives the identity's lifecycle state from its turns.
	Status(ctx context.Context, id Identity) (Status, error)

	// ListApplicants returns one entry per distinct (name, email) pair under
	// the session key, ordered by (name, email) ascending.
	ListApplicants(ctx context.Context, sessionKey string) ([]Applicant, error)

	// ListFinished returns only the applicants with a completing turn.
	ListFinished(ctx context.Context, sessionKey string) ([]Applicant, error)

	// DeleteAll hard-deletes every turn of the identity and returns how many
	// rows were removed.
	DeleteAll(ctx context.Context, id Identity) (int64, error)

	// DeleteUnfinished removes, under the session key, all turns of every
	// applicant that has no completing turn. When no applicant under the key
	// has finished, it removes everything for that key. The whole operation
	// runs in a single transaction. Returns the number of rows removed.
	DeleteUnfinished(ctx context.Context, sessionKey string) (int64, error)
}
