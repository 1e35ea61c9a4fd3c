package session

import "errors"

// Caller-facing rejections. All are recoverable; none indicates process
// failure. Handlers map them to distinguishable client notifications.
var (
	// ErrSessionStale is returned when the supplied code does not match the
	// current session.
	ErrSessionStale = errors.New("session is not active or code is stale")

	// ErrSeatTaken is returned when a claim conflicts with a connected
	// occupant holding a different identity.
	ErrSeatTaken = errors.New("seat is held by another player")

	// ErrInvalidToken is returned when a possession token does not match the
	// seat's stored token.
	ErrInvalidToken = errors.New("possession token mismatch")

	// ErrInvalidSeat is returned for a seat id outside the fixed set.
	ErrInvalidSeat = errors.New("unknown seat id")
)
