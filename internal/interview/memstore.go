package interview

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store]. It backs
// tests and the no-database development mode. Turn IDs are assigned from a
// process-local counter, so ordering guarantees match the durable store
// within a single process only.
type MemStore struct {
	mu      sync.RWMutex
	turns   []Turn
	nextID  int64
	closing string
}

// NewMemStore returns an initialised [MemStore] using closingPhrase for
// completion detection. An empty closingPhrase disables completion detection.
func NewMemStore(closingPhrase string) *MemStore {
	return &MemStore{nextID: 1, closing: closingPhrase}
}

// Append implements [Store.Append].
func (s *MemStore) Append(ctx context.Context, id Identity, role Role, content string) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := Turn{
		ID:               s.nextID,
		Content:          content,
		CreatedAt:        time.Now(),
		Role:             role,
		Identity:         id,
		CompletesSession: IsClosing(role, content, s.closing),
	}
	s.nextID++
	s.turns = append(s.turns, t)
	return t, nil
}

// Exists implements [Store.Exists].
func (s *MemStore) Exists(ctx context.Context, id Identity) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.turns {
		if t.Identity == id {
			return true, nil
		}
	}
	return false, nil
}

// ListTurns implements [Store.ListTurns].
func (s *MemStore) ListTurns(ctx context.Context, id Identity) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []Turn{}
	for _, t := range s.turns {
		if t.Identity == id {
			result = append(result, t)
		}
	}
	// The backing slice is already insertion-ordered; sort by the contract's
	// (CreatedAt, ID) key anyway so both implementations agree.
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// History implements [Store.History].
func (s *MemStore) History(ctx context.Context, id Identity) ([]HistoryEntry, error) {
	turns, err := s.ListTurns(ctx, id)
	if err != nil {
		return nil, err
	}
	entries := make([]HistoryEntry, len(turns))
	for i, t := range turns {
		entries[i] = HistoryEntry{Role: t.Role, Content: t.Content}
	}
	return entries, nil
}

// Status implements [Store.Status].
func (s *MemStore) Status(ctx context.Context, id Identity) (Status, error) {
	turns, err := s.ListTurns(ctx, id)
	if err != nil {
		return StatusUninitiated, err
	}
	return StatusOf(turns), nil
}

// ListApplicants implements [Store.ListApplicants].
func (s *MemStore) ListApplicants(ctx context.Context, sessionKey string) ([]Applicant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type pair struct{ name, email string }
	finished := map[pair]bool{}
	order := []pair{}
	for _, t := range s.turns {
		if t.Identity.SessionKey != sessionKey {
			continue
		}
		p := pair{t.Identity.Name, t.Identity.Email}
		if _, seen := finished[p]; !seen {
			order = append(order, p)
			finished[p] = false
		}
		if t.CompletesSession {
			finished[p] = true
		}
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].name == order[j].name {
			return order[i].email < order[j].email
		}
		return order[i].name < order[j].name
	})

	result := make([]Applicant, 0, len(order))
	for _, p := range order {
		result = append(result, Applicant{Name: p.name, Email: p.email, Finished: finished[p]})
	}
	return result, nil
}

// ListFinished implements [Store.ListFinished].
func (s *MemStore) ListFinished(ctx context.Context, sessionKey string) ([]Applicant, error) {
	all, err := s.ListApplicants(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	result := []Applicant{}
	for _, a := range all {
		if a.Finished {
			result = append(result, a)
		}
	}
	return result, nil
}

// DeleteAll implements [Store.DeleteAll].
func (s *MemStore) DeleteAll(ctx context.Context, id Identity) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteWhere(func(t Turn) bool { return t.Identity == id }), nil
}

// DeleteUnfinished implements [Store.DeleteUnfinished].
func (s *MemStore) DeleteUnfinished(ctx context.Context, sessionKey string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type pair struct{ name, email string }
	keep := map[pair]bool{}
	for _, t := range s.turns {
		if t.Identity.SessionKey == sessionKey && t.CompletesSession {
			keep[pair{t.Identity.Name, t.Identity.Email}] = true
		}
	}

	return s.deleteWhere(func(t Turn) bool {
		if t.Identity.SessionKey != sessionKey {
			return false
		}
		return !keep[pair{t.Identity.Name, t.Identity.Email}]
	}), nil
}

// deleteWhere removes all turns matching the predicate and returns the count.
// Must be called with s.mu held for writing.
func (s *MemStore) deleteWhere(match func(Turn) bool) int64 {
	kept := s.turns[:0]
	var removed int64
	for _, t := range s.turns {
		if match(t) {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	s.turns = kept
	return removed
}
