// Package gamestate implements the authoritative GameState snapshot and the
// sparse GameStateUpdate deltas that compose onto it, per spec.md §3.
package gamestate

import "github.com/sbischoff-ai/pygase/seqnum"

// Status is the game's coarse lifecycle flag. spec.md §9 deliberately
// restricts this to two values; additional states are not added without a
// protocol-version change.
type Status uint8

const (
	Paused Status = iota
	Active
)

func (s Status) String() string {
	if s == Active {
		return "Active"
	}
	return "Paused"
}

// deleted is the sentinel value assigned to an Update attribute to mark it
// for removal from the State it is applied to (spec.md §3 TO_DELETE).
type deleted struct{}

// Deleted is the TO_DELETE sentinel. Assign it to an Update.Attrs key to
// remove that key from the State it is applied to.
var Deleted = deleted{}

// IsDeleted reports whether v is the TO_DELETE sentinel.
func IsDeleted(v any) bool {
	_, ok := v.(deleted)
	return ok
}

// State is the open-attribute, mandatory-field-plus-map record described in
// spec.md §3. TimeOrder is monotonic under Apply: it strictly increases or
// stays the same, never regresses.
type State struct {
	TimeOrder seqnum.Number
	Status    Status
	Attrs     map[string]any
}

// New returns a Paused state at TimeOrder 0 with an empty attribute map.
func New() *State {
	return &State{Attrs: map[string]any{}}
}

// Clone returns a deep-enough copy for safe concurrent reads: the map is
// copied, nested maps/slices are shared but never mutated in place by this
// package (Apply always replaces values, never mutates them).
func (s *State) Clone() *State {
	attrs := make(map[string]any, len(s.Attrs))
	for k, v := range s.Attrs {
		attrs[k] = v
	}
	return &State{TimeOrder: s.TimeOrder, Status: s.Status, Attrs: attrs}
}

// Apply returns the state obtained by recursively merging u's attributes
// onto s's (removing TO_DELETE keys, at any nesting depth) and, iff u is
// newer than s, adopting u's TimeOrder and Status. s is not mutated.
func (s *State) Apply(u *Update, width seqnum.Width) *State {
	out := s.Clone()

	newer := s.TimeOrder.IsZero() || (!u.TimeOrder.IsZero() && u.TimeOrder.NewerThan(s.TimeOrder, width))

	recursiveUpdate(out.Attrs, u.Attrs, true)

	if newer {
		out.TimeOrder = u.TimeOrder
		if u.StatusSet {
			out.Status = u.Status
		}
	}

	return out
}

// recursiveUpdate merges u into d in place: a key present in both d and u
// as a nested map[string]any is merged recursively instead of replaced
// wholesale, so a partial update to a nested attribute never clobbers its
// siblings. deleteMarked controls whether TO_DELETE actually removes the
// key (applying an update to a state) or is kept as a value (composing two
// updates, where the marker must survive to be applied later).
func recursiveUpdate(d, u map[string]any, deleteMarked bool) {
	for k, v := range u {
		if IsDeleted(v) && deleteMarked {
			delete(d, k)
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			if existing, ok := d[k].(map[string]any); ok {
				merged := make(map[string]any, len(existing))
				for kk, vv := range existing {
					merged[kk] = vv
				}
				recursiveUpdate(merged, nested, deleteMarked)
				d[k] = merged
				continue
			}
		}
		d[k] = v
	}
}

// Snapshot returns an Update that, applied to the zero State, reproduces s
// exactly. Used by the store to resynchronize a client whose last known
// update fell outside the cache window (spec.md §4.3).
func (s *State) Snapshot() *Update {
	attrs := make(map[string]any, len(s.Attrs))
	for k, v := range s.Attrs {
		attrs[k] = v
	}
	return &Update{
		TimeOrder: s.TimeOrder,
		Status:    s.Status,
		StatusSet: true,
		Attrs:     attrs,
	}
}

// Update is a sparse delta: only keys that change are present. StatusSet
// distinguishes "Status unchanged" from "Status explicitly set to Paused",
// since Paused is the Status zero value.
type Update struct {
	TimeOrder seqnum.Number
	Status    Status
	StatusSet bool
	Attrs     map[string]any
}

// NewUpdate returns an empty update at the given time order.
func NewUpdate(timeOrder seqnum.Number) *Update {
	return &Update{TimeOrder: timeOrder, Attrs: map[string]any{}}
}

// Compose implements the update composition law of spec.md §3: for updates
// u (the receiver, older-or-equal) and other (newer-or-equal), the result's
// TimeOrder is the max of the two, and each key's value is taken from the
// newer update when present, else the older; TO_DELETE propagates from
// whichever update is newer for that key.
//
// Composition is associative as long as every update passed through a chain
// of Compose calls has a non-decreasing TimeOrder, matching spec.md §8.
func (u *Update) Compose(other *Update, width seqnum.Width) *Update {
	older, newer := u, other
	if !other.TimeOrder.NewerThan(u.TimeOrder, width) && other.TimeOrder != u.TimeOrder {
		older, newer = other, u
	}

	merged := make(map[string]any, len(older.Attrs)+len(newer.Attrs))
	for k, v := range older.Attrs {
		merged[k] = v
	}
	recursiveUpdate(merged, newer.Attrs, false)

	result := &Update{
		TimeOrder: newer.TimeOrder,
		Attrs:     merged,
	}
	if newer.StatusSet {
		result.Status = newer.Status
		result.StatusSet = true
	} else if older.StatusSet {
		result.Status = older.Status
		result.StatusSet = true
	}
	return result
}
