// Package conns tracks live connections and their seat bindings. State here
// is volatile: it exists only while transports are open and has no durable
// counterpart.
package conns

import (
	"sync"

	"github.com/gameshowlab/podium/internal/session"
	"github.com/rs/zerolog/log"
)

// Tag describes what a live connection is doing.
type Tag struct {
	Role session.Role
	Code string
	Seat session.SeatID
}

type bindingKey struct {
	code string
	seat session.SeatID
}

// Registry is the process-global map of live connections. It carries its own
// lock, independent of per-session locks, because a closing connection must
// be able to look up its tag without knowing its session code first.
//
// Seat ownership reconciliation is reference counted: every player tag for a
// (code, seat) pair increments the pair's live count, every untag decrements
// it, and the seat is released only when the count reaches zero. A second tab
// for the same seat therefore survives the first tab closing.
type Registry struct {
	mu       sync.Mutex
	tags     map[string]Tag
	bindings map[bindingKey]int
}

// NewRegistry returns an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		tags:     make(map[string]Tag),
		bindings: make(map[bindingKey]int),
	}
}

// Open registers a freshly opened connection with no role.
func (r *Registry) Open(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags[connID] = Tag{Role: session.RoleNone}
}

// SetTag replaces the connection's tag, adjusting seat binding counts for the
// old and new tags, and reports whether the connection is still registered.
// A connection that closed between dispatch and tagging is refused: tagging
// it would create a binding no later Close can ever decrement.
func (r *Registry) SetTag(connID string, tag Tag) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.tags[connID]
	if !ok {
		return false
	}
	r.unbindLocked(old)
	r.tags[connID] = tag
	if tag.Role == session.RolePlayer && tag.Code != "" && tag.Seat != "" {
		key := bindingKey{code: tag.Code, seat: tag.Seat}
		r.bindings[key]++
	}
	return true
}

// Tag returns the connection's current tag.
func (r *Registry) Tag(connID string) (Tag, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tag, ok := r.tags[connID]
	return tag, ok
}

// Close removes the connection. It returns the tag the connection held and,
// for player connections, whether it was the last live connection bound to
// its seat (the caller then marks the seat disconnected).
func (r *Registry) Close(connID string) (tag Tag, wasLast bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tag, ok = r.tags[connID]
	if !ok {
		return Tag{}, false, false
	}
	delete(r.tags, connID)
	wasLast = r.unbindLocked(tag)

	log.Debug().
		Str("connection_id", connID).
		Str("role", string(tag.Role)).
		Str("code", tag.Code).
		Bool("last_for_seat", wasLast).
		Msg("connection closed")
	return tag, wasLast, true
}

// unbindLocked decrements the seat binding for tag and reports whether the
// count reached zero. Non-player tags never hold a binding.
func (r *Registry) unbindLocked(tag Tag) bool {
	if tag.Role != session.RolePlayer || tag.Code == "" || tag.Seat == "" {
		return false
	}
	key := bindingKey{code: tag.Code, seat: tag.Seat}
	n, ok := r.bindings[key]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(r.bindings, key)
		return true
	}
	r.bindings[key] = n - 1
	return false
}

// LiveBindings returns how many open connections hold the given seat.
func (r *Registry) LiveBindings(code string, seat session.SeatID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bindings[bindingKey{code: code, seat: seat}]
}
