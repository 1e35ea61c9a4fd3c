package store

import (
	"context"
	"errors"

	"github.com/gameshowlab/podium/internal/session"
)

// ErrNotFound is returned when a seat record or the current code is absent.
var ErrNotFound = errors.New("not found")

// SeatRecord is the persisted form of a seat occupancy.
type SeatRecord struct {
	Name      string `json:"name"`
	Token     string `json:"token"`
	Connected bool   `json:"connected"`
}

// Store persists session state: one record per (code, seat) plus the single
// "current session code" record. Implementations must scope writes by code so
// sessions never interfere, and must survive concurrent callers.
type Store interface {
	// CurrentCode returns the persisted current session code, or ErrNotFound
	// when no session is active.
	CurrentCode(ctx context.Context) (string, error)

	// SetCurrentCode persists code as the current session. An empty code
	// clears the record.
	SetCurrentCode(ctx context.Context, code string) error

	// Seat returns the record for (code, seat), or ErrNotFound when the seat
	// has never been claimed in that session.
	Seat(ctx context.Context, code string, seat session.SeatID) (SeatRecord, error)

	// PutSeat writes the record for (code, seat), overwriting any previous one.
	PutSeat(ctx context.Context, code string, seat session.SeatID, rec SeatRecord) error

	// SessionSeats returns every stored seat record for code. Seats that were
	// never claimed are absent from the map.
	SessionSeats(ctx context.Context, code string) (map[session.SeatID]SeatRecord, error)

	// ResetSession removes every seat record for code.
	ResetSession(ctx context.Context, code string) error

	// Close releases any underlying resources.
	Close() error
}
