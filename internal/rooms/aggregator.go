// Package rooms buffers streaming audio fragments per interview room until a
// caller flushes the room for transcription.
package rooms

import (
	"sync"
	"time"
)

// DefaultMaxIdle is the idle age after which [Aggregator.Sweep] drops a room.
const DefaultMaxIdle = 5 * time.Minute

// Aggregator collects binary audio fragments per room. Fragments are kept in
// arrival order; [Flush] returns their concatenation and resets the room.
//
// Rooms are independent of each other. Unflushed audio in a swept room is
// lost; delivery of buffered audio is therefore at most once.
//
// All methods are safe for concurrent use.
type Aggregator struct {
	mu      sync.Mutex
	rooms   map[string]*room
	maxIdle time.Duration

	// now is swapped out in tests.
	now func() time.Time
}

type room struct {
	fragments  [][]byte
	size       int
	lastActive time.Time
}

// NewAggregator creates an aggregator that considers a room idle after
// maxIdle without an Append or Flush. A non-positive maxIdle falls back to
// [DefaultMaxIdle].
func NewAggregator(maxIdle time.Duration) *Aggregator {
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdle
	}
	return &Aggregator{
		rooms:   make(map[string]*room),
		maxIdle: maxIdle,
		now:     time.Now,
	}
}

// Append stores a copy of fragment at the end of the room's buffer, creating
// the room if it does not exist yet. Empty fragments are ignored.
func (a *Aggregator) Append(roomID string, fragment []byte) {
	if len(fragment) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	r := a.rooms[roomID]
	if r == nil {
		r = &room{}
		a.rooms[roomID] = r
	}
	// Copy: the caller (typically a websocket read loop) reuses its buffer.
	buf := make([]byte, len(fragment))
	copy(buf, fragment)
	r.fragments = append(r.fragments, buf)
	r.size += len(buf)
	r.lastActive = a.now()
}

// Flush returns every buffered fragment of the room concatenated in arrival
// order and clears the room's buffer. Flushing an unknown or empty room
// returns an empty slice; that is not an error.
//
// The room itself stays registered so its idle clock keeps running from the
// flush, not from the last fragment.
func (a *Aggregator) Flush(roomID string) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := a.rooms[roomID]
	if r == nil {
		return []byte{}
	}

	out := make([]byte, 0, r.size)
	for _, f := range r.fragments {
		out = append(out, f...)
	}
	r.fragments = nil
	r.size = 0
	r.lastActive = a.now()
	return out
}

// Drop removes the room and discards any buffered audio. Intended for
// websocket disconnects.
func (a *Aggregator) Drop(roomID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.rooms, roomID)
}

// Sweep removes every room whose last activity is older than the configured
// idle age and reports how many rooms were dropped. Buffered audio of a swept
// room is discarded.
func (a *Aggregator) Sweep() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.now().Add(-a.maxIdle)
	dropped := 0
	for id, r := range a.rooms {
		if r.lastActive.Before(cutoff) {
			delete(a.rooms, id)
			dropped++
		}
	}
	return dropped
}

// Len reports the number of registered rooms. Feeds the active-rooms gauge.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.rooms)
}

// Buffered reports the number of buffered bytes for a room.
func (a *Aggregator) Buffered(roomID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if r := a.rooms[roomID]; r != nil {
		return r.size
	}
	return 0
}
