// Package registry is the single authority for seat ownership. Every
// mutation for a session serializes on that session's lock, and every claim
// re-reads the durable record inside the critical section before deciding,
// so two connections racing for one seat resolve to a single owner.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gameshowlab/podium/internal/session"
	"github.com/gameshowlab/podium/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Registry owns seat occupancy for any number of sessions.
type Registry struct {
	store store.Store
	seats []session.SeatID

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns a registry over the given durable store and fixed seat set.
func New(st store.Store, seats []session.SeatID) *Registry {
	return &Registry{
		store: st,
		seats: seats,
		locks: make(map[string]*sync.Mutex),
	}
}

// Seats returns the fixed seat set.
func (r *Registry) Seats() []session.SeatID {
	out := make([]session.SeatID, len(r.seats))
	copy(out, r.seats)
	return out
}

// ValidSeat reports whether id belongs to the fixed set.
func (r *Registry) ValidSeat(id session.SeatID) bool {
	for _, s := range r.seats {
		if s == id {
			return true
		}
	}
	return false
}

// sessionLock returns the serialization lock for code, creating it on first
// use. Locks are never removed; the set of codes a process sees is tiny.
func (r *Registry) sessionLock(code string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[code]
	if !ok {
		l = &sync.Mutex{}
		r.locks[code] = l
	}
	return l
}

// readSeat loads the seat's durable record, degrading store I/O failure to
// an empty seat so a bad read never becomes a decision error.
func (r *Registry) readSeat(ctx context.Context, code string, id session.SeatID) session.Seat {
	rec, err := r.store.Seat(ctx, code, id)
	if errors.Is(err, store.ErrNotFound) {
		return session.EmptySeat()
	}
	if err != nil {
		log.Warn().Err(err).Str("code", code).Str("seat", string(id)).
			Msg("seat read failed, treating as empty")
		return session.EmptySeat()
	}
	return session.TakenSeat(session.Occupancy{
		Name:      rec.Name,
		Token:     rec.Token,
		Connected: rec.Connected,
	})
}

// Claim applies the ownership decision table for (code, seat) and the
// supplied identity. On acceptance the occupancy is persisted with
// connected=true and the effective possession token is returned: the stored
// token on a rebind, a freshly minted one on first claim.
//
// Rejections: ErrInvalidSeat for an unknown seat id, ErrSeatTaken when a
// connected occupant holds a different identity.
func (r *Registry) Claim(ctx context.Context, code string, id session.SeatID, name, token string) (string, error) {
	if !r.ValidSeat(id) {
		return "", session.ErrInvalidSeat
	}

	l := r.sessionLock(code)
	l.Lock()
	defer l.Unlock()

	// Compare-and-decide: the read happens under the session lock, never
	// against a snapshot taken before it.
	seat := r.readSeat(ctx, code, id)

	occ, occupied := seat.Occupancy()
	switch {
	case !occupied:
		// First claim: mint a token unless the client brought one.
		if token == "" {
			token = uuid.New().String()
		}
		occ = session.Occupancy{Name: name, Token: token, Connected: true}

	case !occ.Connected:
		// Reconnect path: rebind with the new display name, keep the token.
		occ.Name = name
		occ.Connected = true

	case token != "" && occ.Token == token:
		// Same identity from a duplicate tab; re-affirm.
		occ.Name = name
		occ.Connected = true

	case token == "" && occ.Name == name:
		// Weak fallback for clients that never received a token.
		occ.Connected = true

	default:
		return "", session.ErrSeatTaken
	}

	rec := store.SeatRecord{Name: occ.Name, Token: occ.Token, Connected: true}
	if err := r.store.PutSeat(ctx, code, id, rec); err != nil {
		return "", fmt.Errorf("persist seat %s/%s: %w", code, id, err)
	}

	log.Info().Str("code", code).Str("seat", string(id)).Str("name", occ.Name).
		Msg("seat claimed")
	return occ.Token, nil
}

// Release marks the seat disconnected, preserving name and token so the same
// identity can reclaim later. Releasing an empty or already-disconnected
// seat is a no-op, which makes the operation idempotent.
func (r *Registry) Release(ctx context.Context, code string, id session.SeatID) error {
	if !r.ValidSeat(id) {
		return session.ErrInvalidSeat
	}

	l := r.sessionLock(code)
	l.Lock()
	defer l.Unlock()

	return r.releaseLocked(ctx, code, id)
}

// ReleaseIf releases the seat only when unbound still holds once the session
// lock is taken, and reports whether the release was applied. Disconnect
// handling passes the live-connection check here so a seat reclaimed by a
// fresh connection between the close and the release is left alone.
func (r *Registry) ReleaseIf(ctx context.Context, code string, id session.SeatID, unbound func() bool) (bool, error) {
	if !r.ValidSeat(id) {
		return false, session.ErrInvalidSeat
	}

	l := r.sessionLock(code)
	l.Lock()
	defer l.Unlock()

	if !unbound() {
		return false, nil
	}
	if err := r.releaseLocked(ctx, code, id); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Registry) releaseLocked(ctx context.Context, code string, id session.SeatID) error {
	seat := r.readSeat(ctx, code, id)
	occ, occupied := seat.Occupancy()
	if !occupied || !occ.Connected {
		return nil
	}

	rec := store.SeatRecord{Name: occ.Name, Token: occ.Token, Connected: false}
	if err := r.store.PutSeat(ctx, code, id, rec); err != nil {
		return fmt.Errorf("persist seat %s/%s: %w", code, id, err)
	}

	log.Info().Str("code", code).Str("seat", string(id)).Msg("seat released")
	return nil
}

// Reset clears every seat record for code.
func (r *Registry) Reset(ctx context.Context, code string) error {
	l := r.sessionLock(code)
	l.Lock()
	defer l.Unlock()

	if err := r.store.ResetSession(ctx, code); err != nil {
		return fmt.Errorf("reset session %s: %w", code, err)
	}
	return nil
}

// Snapshot returns the externally visible room state: a name for every
// connected seat, nil for every other seat in the fixed set. Disconnected
// occupants reveal nothing.
func (r *Registry) Snapshot(ctx context.Context, code string) map[session.SeatID]*string {
	recs, err := r.store.SessionSeats(ctx, code)
	if err != nil {
		log.Warn().Err(err).Str("code", code).Msg("snapshot read failed, treating as empty")
		recs = nil
	}

	out := make(map[session.SeatID]*string, len(r.seats))
	for _, id := range r.seats {
		if rec, ok := recs[id]; ok && rec.Connected {
			name := rec.Name
			out[id] = &name
		} else {
			out[id] = nil
		}
	}
	return out
}

// Token returns the stored possession token for the seat, if any occupancy
// exists. The signal arbitration path uses it to validate buzzes.
func (r *Registry) Token(ctx context.Context, code string, id session.SeatID) (string, bool) {
	seat := r.readSeat(ctx, code, id)
	occ, occupied := seat.Occupancy()
	if !occupied {
		return "", false
	}
	return occ.Token, true
}
