// Package events defines the room event envelope shared by the websocket hub
// and the NATS mirror. Payload types live here so producers and transports
// avoid import cycles.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gameshowlab/podium/internal/session"
	"github.com/google/uuid"
)

// Type identifies a room event.
type Type string

const (
	TypeSessionCodeChanged Type = "session_code_changed"
	TypeSessionEnded       Type = "session_ended"
	TypeSeatStateChanged   Type = "seat_state_changed"
	TypeRoomSnapshot       Type = "room_snapshot"
	TypeClaimRejected      Type = "claim_rejected"
	TypeSignalWon          Type = "signal_won"
	TypeSignalUnlocked     Type = "signal_unlocked"
)

// Event is the envelope delivered to every subscriber of a session's room.
type Event struct {
	ID        string          `json:"id"`
	Code      string          `json:"code,omitempty"`
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// New builds an event envelope around payload.
func New(code string, t Type, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Event{
		ID:        uuid.New().String(),
		Code:      code,
		Type:      t,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

// SessionCodeChangedPayload announces the current session code; nil means no
// session is active.
type SessionCodeChangedPayload struct {
	Code *string `json:"code"`
}

// SeatStateChangedPayload reports one seat's connected state. Name is nil
// when the seat is no longer publicly visible.
type SeatStateChangedPayload struct {
	Seat      session.SeatID `json:"seat"`
	Connected bool           `json:"connected"`
	Name      *string        `json:"name"`
}

// RoomSnapshotPayload is the externally visible room state: connected names
// per seat (absent seats reveal nothing) plus any active signal winner.
type RoomSnapshotPayload struct {
	Code         string                     `json:"code"`
	Seats        map[session.SeatID]*string `json:"seats"`
	SignalWinner *session.SeatID            `json:"signal_winner,omitempty"`
}

// ClaimRejectedPayload tells a single connection why its claim failed.
type ClaimRejectedPayload struct {
	Seat   session.SeatID `json:"seat"`
	Reason string         `json:"reason"`
}

// SignalWonPayload names the race winner. Losers receive the same payload
// directly so they learn who beat them rather than a generic failure.
type SignalWonPayload struct {
	Seat session.SeatID `json:"seat"`
	Name string         `json:"name"`
}

// SignalUnlockedPayload re-enables buzzing for every seat.
type SignalUnlockedPayload struct {
	Seats []session.SeatID `json:"seats"`
}
