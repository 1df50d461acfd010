// Package store implements the authoritative state holder described in
// spec.md §4.3: the current GameState plus a bounded ring of recently
// pushed updates, from which a stale client's catch-up delta is composed.
package store

import (
	"sync"

	"github.com/sbischoff-ai/pygase/gamestate"
	"github.com/sbischoff-ai/pygase/seqnum"
)

// Store holds the current state and cache; the simulation loop and the
// connection layer each hold a non-owning reference to it (spec.md §3).
type Store struct {
	width    seqnum.Width
	capacity int

	mu      sync.RWMutex
	current *gamestate.State
	// cache holds the last `capacity` pushed updates, oldest first. Every
	// entry's TimeOrder is strictly greater than the one before it.
	cache  []*gamestate.Update
	closed bool
}

// New returns a Store seeded with an empty, Paused state at time_order 0.
// capacity is the size of the update ring (spec.md default 100).
func New(width seqnum.Width, capacity int) *Store {
	return &Store{
		width:    width,
		capacity: capacity,
		current:  gamestate.New(),
	}
}

// CurrentState returns a snapshot of the current state safe for the caller
// to read without further locking.
func (s *Store) CurrentState() *gamestate.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// PushUpdate applies u to the current state and inserts it into the cache,
// evicting the oldest entry if over capacity. push_update is the store's
// only writer; callers must assign u.TimeOrder strictly increasing relative
// to the last pushed update (spec.md §4.3).
func (s *Store) PushUpdate(u *gamestate.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	s.current = s.current.Apply(u, s.width)
	s.cache = append(s.cache, u)
	if len(s.cache) > s.capacity {
		s.cache = s.cache[len(s.cache)-s.capacity:]
	}
	return nil
}

// UpdatesSince returns the update that takes a client currently at
// clientTimeOrder to the current state. If clientTimeOrder is older than
// the oldest cached update, the cache can't reconstruct the gap and the
// full current state is returned instead so the client resynchronizes from
// scratch (spec.md §4.3).
func (s *Store) UpdatesSince(clientTimeOrder seqnum.Number) *gamestate.Update {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if clientTimeOrder == s.current.TimeOrder {
		return gamestate.NewUpdate(s.current.TimeOrder)
	}

	if len(s.cache) == 0 {
		return s.current.Snapshot()
	}

	oldest := s.cache[0]
	if clientTimeOrder != oldest.TimeOrder && !clientTimeOrder.NewerThan(oldest.TimeOrder, s.width) {
		return s.current.Snapshot()
	}

	idx := -1
	for i, u := range s.cache {
		if u.TimeOrder == clientTimeOrder {
			idx = i
			break
		}
	}
	if idx == -1 {
		return s.current.Snapshot()
	}

	pending := s.cache[idx+1:]
	if len(pending) == 0 {
		return gamestate.NewUpdate(s.current.TimeOrder)
	}

	result := pending[0]
	for _, u := range pending[1:] {
		result = result.Compose(u, s.width)
	}
	return result
}

// Close marks the store closed; subsequent PushUpdate calls fail with
// ErrClosed. CurrentState and UpdatesSince remain usable against the
// state as of closing.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
