// Package game wires the registries, the arbitrator, and the broadcaster into
// the operation contracts the transports call. A Coordinator is process-scoped
// state with an explicit lifecycle: the current session code is created on
// BeginSession and cleared on EndSession, never ambient.
package game

import (
	"context"
	"errors"
	"time"

	"github.com/gameshowlab/podium/internal/conns"
	"github.com/gameshowlab/podium/internal/events"
	"github.com/gameshowlab/podium/internal/registry"
	"github.com/gameshowlab/podium/internal/session"
	"github.com/gameshowlab/podium/internal/signal"
	"github.com/gameshowlab/podium/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Broadcaster defines what the coordinator needs from the realtime fan-out
// layer. The websocket hub implements it; tests use a recorder.
type Broadcaster interface {
	// Broadcast delivers ev to every subscriber of code's room.
	Broadcast(code string, ev events.Event)
	// BroadcastAll delivers ev to every open connection regardless of room.
	BroadcastAll(ev events.Event)
	// SendTo delivers ev to a single connection.
	SendTo(connID string, ev events.Event)
	// JoinRoom subscribes a connection to code's room.
	JoinRoom(connID, code string)
}

// LoginResult is the synchronous claim outcome.
type LoginResult struct {
	Token string `json:"token"`
}

// RoomSnapshot is the read-only room state for polling clients.
type RoomSnapshot struct {
	Code         string                     `json:"code"`
	Seats        map[session.SeatID]*string `json:"seats"`
	SignalWinner *session.SeatID            `json:"signal_winner,omitempty"`
}

// Config holds coordinator settings.
type Config struct {
	Seats       []session.SeatID
	UnlockAfter time.Duration
	Clock       clockwork.Clock
}

// DefaultConfig returns the standard three-seat, ten-second setup.
func DefaultConfig() Config {
	return Config{
		Seats:       session.DefaultSeats(),
		UnlockAfter: signal.DefaultUnlockAfter,
		Clock:       clockwork.NewRealClock(),
	}
}

// Coordinator implements the inbound operation contracts over one
// authoritative process.
type Coordinator struct {
	store  store.Store
	reg    *registry.Registry
	conns  *conns.Registry
	arb    *signal.Arbitrator
	bcast  Broadcaster
	mirror events.Publisher

	// current guards the process-wide current session code.
	current currentCode
}

// New builds a coordinator. The arbitrator's unlock notifications flow back
// through the broadcaster automatically.
func New(cfg Config, st store.Store, bcast Broadcaster, mirror events.Publisher) *Coordinator {
	if len(cfg.Seats) == 0 {
		cfg.Seats = session.DefaultSeats()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if mirror == nil {
		mirror = events.NopPublisher{}
	}

	c := &Coordinator{
		store:  st,
		reg:    registry.New(st, cfg.Seats),
		conns:  conns.NewRegistry(),
		bcast:  bcast,
		mirror: mirror,
	}
	c.arb = signal.New(cfg.Clock, cfg.UnlockAfter, c.onSignalUnlocked)
	return c
}

// Registry exposes the slot registry for read paths (HTTP snapshot handler).
func (c *Coordinator) Registry() *registry.Registry {
	return c.reg
}

// onSignalUnlocked is the arbitrator's expiry/unlock callback.
func (c *Coordinator) onSignalUnlocked(code string) {
	c.emitRoom(context.Background(), code, events.TypeSignalUnlocked, events.SignalUnlockedPayload{
		Seats: c.reg.Seats(),
	})
}

// emitRoom builds an event, fans it out to the room, and mirrors it.
func (c *Coordinator) emitRoom(ctx context.Context, code string, t events.Type, payload any) {
	ev, err := events.New(code, t, payload)
	if err != nil {
		log.Error().Err(err).Str("type", string(t)).Msg("failed to build event")
		return
	}
	c.bcast.Broadcast(code, ev)
	if err := c.mirror.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("type", string(t)).Msg("event mirror publish failed")
	}
}

// emitAll is emitRoom for events addressed to every open connection.
func (c *Coordinator) emitAll(ctx context.Context, t events.Type, payload any) {
	ev, err := events.New("", t, payload)
	if err != nil {
		log.Error().Err(err).Str("type", string(t)).Msg("failed to build event")
		return
	}
	c.bcast.BroadcastAll(ev)
	if err := c.mirror.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("type", string(t)).Msg("event mirror publish failed")
	}
}

// sendTo delivers a single-connection event, bypassing the mirror.
func (c *Coordinator) sendTo(connID, code string, t events.Type, payload any) {
	ev, err := events.New(code, t, payload)
	if err != nil {
		log.Error().Err(err).Str("type", string(t)).Msg("failed to build event")
		return
	}
	c.bcast.SendTo(connID, ev)
}

// BeginSession generates a fresh code, makes it current, and resets its
// seats. Any signal lock held for the previous session is cleared in the
// same step so nothing leaks across a regeneration.
func (c *Coordinator) BeginSession(ctx context.Context) (string, error) {
	code := session.NewCode()

	old := c.current.swap(code)
	if err := c.reg.Reset(ctx, code); err != nil {
		return "", err
	}
	if err := c.store.SetCurrentCode(ctx, code); err != nil {
		return "", err
	}
	if old != "" {
		c.arb.Reset(old)
	}

	log.Info().Str("code", code).Msg("session started")
	c.emitAll(ctx, events.TypeSessionCodeChanged, events.SessionCodeChangedPayload{Code: &code})
	return code, nil
}

// RestoreSession re-adopts the persisted current code after a restart.
func (c *Coordinator) RestoreSession(ctx context.Context) (string, error) {
	code, err := c.store.CurrentCode(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return "", session.ErrSessionStale
	}
	if err != nil {
		return "", err
	}

	c.current.swap(code)
	log.Info().Str("code", code).Msg("session restored")
	c.emitAll(ctx, events.TypeSessionCodeChanged, events.SessionCodeChangedPayload{Code: &code})
	return code, nil
}

// EndSession resets every seat for code, clears it as current, and notifies
// the room before the code disappears.
func (c *Coordinator) EndSession(ctx context.Context, code string) error {
	if !c.current.is(code) {
		return session.ErrSessionStale
	}

	c.emitRoom(ctx, code, events.TypeSessionEnded, struct{}{})

	if err := c.reg.Reset(ctx, code); err != nil {
		return err
	}
	if err := c.store.SetCurrentCode(ctx, ""); err != nil {
		return err
	}
	c.arb.Reset(code)
	c.current.clear(code)

	log.Info().Str("code", code).Msg("session ended")
	c.emitAll(ctx, events.TypeSessionCodeChanged, events.SessionCodeChangedPayload{Code: nil})
	return nil
}

// CurrentCode returns the active session code, or "" when none is active.
func (c *Coordinator) CurrentCode() string {
	return c.current.get()
}

// LoginSeat is the synchronous claim used before a live connection opens.
func (c *Coordinator) LoginSeat(ctx context.Context, code string, seat session.SeatID, name, token string) (LoginResult, error) {
	if !c.current.is(code) {
		return LoginResult{}, session.ErrSessionStale
	}

	got, err := c.reg.Claim(ctx, code, seat, name, token)
	if err != nil {
		return LoginResult{}, err
	}

	c.broadcastSeatState(ctx, code, seat, true, name)
	return LoginResult{Token: got}, nil
}

// LogoutSeat releases the seat on explicit logout. Idempotent.
func (c *Coordinator) LogoutSeat(ctx context.Context, code string, seat session.SeatID) error {
	if err := c.reg.Release(ctx, code, seat); err != nil {
		return err
	}
	c.broadcastSeatState(ctx, code, seat, false, "")
	return nil
}

// Snapshot returns the room state for polling clients.
func (c *Coordinator) Snapshot(ctx context.Context, code string) RoomSnapshot {
	snap := RoomSnapshot{
		Code:  code,
		Seats: c.reg.Snapshot(ctx, code),
	}
	if winner, ok := c.arb.Winner(code); ok {
		snap.SignalWinner = &winner
	}
	return snap
}

// broadcastSeatState emits both the per-seat delta and a fresh room snapshot,
// so slow observers converge on the latest state even if they missed deltas.
func (c *Coordinator) broadcastSeatState(ctx context.Context, code string, seat session.SeatID, connected bool, name string) {
	var pname *string
	if connected {
		pname = &name
	}
	c.emitRoom(ctx, code, events.TypeSeatStateChanged, events.SeatStateChangedPayload{
		Seat:      seat,
		Connected: connected,
		Name:      pname,
	})
	c.emitRoom(ctx, code, events.TypeRoomSnapshot, c.snapshotPayload(ctx, code))
}

func (c *Coordinator) snapshotPayload(ctx context.Context, code string) events.RoomSnapshotPayload {
	payload := events.RoomSnapshotPayload{
		Code:  code,
		Seats: c.reg.Snapshot(ctx, code),
	}
	if winner, ok := c.arb.Winner(code); ok {
		payload.SignalWinner = &winner
	}
	return payload
}
