package game

import (
	"context"
	"errors"

	"github.com/gameshowlab/podium/internal/conns"
	"github.com/gameshowlab/podium/internal/events"
	"github.com/gameshowlab/podium/internal/session"
	"github.com/rs/zerolog/log"
)

// Rejection reasons carried in claim_rejected payloads. Clients branch on
// these to decide whether to retry, re-prompt, or show "seat taken".
const (
	ReasonSessionStale = "session_stale"
	ReasonSeatTaken    = "seat_taken"
	ReasonInvalidSeat  = "invalid_seat"
	ReasonInvalidToken = "invalid_token"
)

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, session.ErrSessionStale):
		return ReasonSessionStale
	case errors.Is(err, session.ErrSeatTaken):
		return ReasonSeatTaken
	case errors.Is(err, session.ErrInvalidSeat):
		return ReasonInvalidSeat
	case errors.Is(err, session.ErrInvalidToken):
		return ReasonInvalidToken
	default:
		return "internal"
	}
}

// Connected registers a freshly opened connection with no role.
func (c *Coordinator) Connected(connID string) {
	c.conns.Open(connID)
}

// Disconnected unwinds a closing connection. The connection's registry entry
// and room subscription go unconditionally; the seat occupancy is marked
// disconnected only when this was the last live connection bound to it, so
// closing one of two tabs never evicts the survivor.
func (c *Coordinator) Disconnected(ctx context.Context, connID string) {
	tag, wasLast, ok := c.conns.Close(connID)
	if !ok {
		return
	}
	if tag.Role != session.RolePlayer || !wasLast {
		return
	}
	c.releaseIfUnbound(ctx, tag.Code, tag.Seat)
}

// releaseIfUnbound marks the seat disconnected unless some live connection
// holds it. The binding check runs under the session lock, so a claim that
// landed between a connection close and this release keeps its new occupant
// connected.
func (c *Coordinator) releaseIfUnbound(ctx context.Context, code string, seat session.SeatID) {
	released, err := c.reg.ReleaseIf(ctx, code, seat, func() bool {
		return c.conns.LiveBindings(code, seat) == 0
	})
	if err != nil {
		log.Warn().Err(err).Str("code", code).Str("seat", string(seat)).
			Msg("release on disconnect failed")
		return
	}
	if released {
		c.broadcastSeatState(ctx, code, seat, false, "")
	}
}

// SubscribeAdmin joins the connection to code's room as an administrator and
// replies with the current room snapshot.
func (c *Coordinator) SubscribeAdmin(ctx context.Context, connID, code string) {
	if !c.conns.SetTag(connID, conns.Tag{Role: session.RoleAdmin, Code: code}) {
		return
	}
	c.bcast.JoinRoom(connID, code)
	c.sendTo(connID, code, events.TypeRoomSnapshot, c.snapshotPayload(ctx, code))
}

// SubscribeSeat claims the seat for a live connection. On acceptance the
// connection is tagged as a player (incrementing the seat's live-connection
// count), joined to the room, and the room sees the updated state. On
// rejection only the failing connection hears about it.
func (c *Coordinator) SubscribeSeat(ctx context.Context, connID, code string, seat session.SeatID, name, token string) {
	if !c.current.is(code) {
		c.sendTo(connID, code, events.TypeClaimRejected, events.ClaimRejectedPayload{
			Seat: seat, Reason: ReasonSessionStale,
		})
		return
	}

	if _, err := c.reg.Claim(ctx, code, seat, name, token); err != nil {
		c.sendTo(connID, code, events.TypeClaimRejected, events.ClaimRejectedPayload{
			Seat: seat, Reason: rejectionReason(err),
		})
		return
	}

	if !c.conns.SetTag(connID, conns.Tag{Role: session.RolePlayer, Code: code, Seat: seat}) {
		// The connection closed while the claim was in flight; its disconnect
		// already ran. Unwind the claim unless another tab holds the seat.
		c.releaseIfUnbound(ctx, code, seat)
		return
	}
	c.bcast.JoinRoom(connID, code)
	c.broadcastSeatState(ctx, code, seat, true, name)
}

// Buzz runs the race for a live connection. The winner is announced to the
// room; a loser is told who won, directly and specifically.
func (c *Coordinator) Buzz(ctx context.Context, connID, code string, seat session.SeatID, name, token string) {
	if !c.current.is(code) {
		c.sendTo(connID, code, events.TypeClaimRejected, events.ClaimRejectedPayload{
			Seat: seat, Reason: ReasonSessionStale,
		})
		return
	}

	// Locked already: loser notification, no state change, before any token
	// work. First come, first served; no preemption.
	if winner, locked := c.arb.Winner(code); locked {
		c.sendTo(connID, code, events.TypeSignalWon, c.signalWonPayload(ctx, code, winner))
		return
	}

	// Validate against the stored token when the seat has one; a missing
	// token counts as a mismatch.
	if stored, ok := c.reg.Token(ctx, code, seat); ok && stored != token {
		c.sendTo(connID, code, events.TypeClaimRejected, events.ClaimRejectedPayload{
			Seat: seat, Reason: ReasonInvalidToken,
		})
		return
	}

	winner, won := c.arb.Lock(code, seat)
	if !won {
		// Lost the race between the Winner check and Lock.
		c.sendTo(connID, code, events.TypeSignalWon, c.signalWonPayload(ctx, code, winner))
		return
	}

	c.emitRoom(ctx, code, events.TypeSignalWon, events.SignalWonPayload{Seat: seat, Name: name})
}

// AdminUnlock force-clears the signal. The arbitrator's callback broadcasts
// signal_unlocked; the stale expiry timer later fires into a generation
// mismatch and stays silent.
func (c *Coordinator) AdminUnlock(ctx context.Context, code string) {
	c.arb.Unlock(code)
}

// RequestSnapshot replies with the room state to a single connection.
func (c *Coordinator) RequestSnapshot(ctx context.Context, connID, code string) {
	c.sendTo(connID, code, events.TypeRoomSnapshot, c.snapshotPayload(ctx, code))
}

// signalWonPayload builds the loser notification, resolving the winner's
// public name when the seat is known.
func (c *Coordinator) signalWonPayload(ctx context.Context, code string, winner session.SeatID) events.SignalWonPayload {
	payload := events.SignalWonPayload{Seat: winner}
	if recs := c.reg.Snapshot(ctx, code); recs[winner] != nil {
		payload.Name = *recs[winner]
	}
	return payload
}
