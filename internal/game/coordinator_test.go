package game

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gameshowlab/podium/internal/events"
	"github.com/gameshowlab/podium/internal/session"
	"github.com/gameshowlab/podium/internal/signal"
	"github.com/gameshowlab/podium/internal/store"
	"github.com/jonboulle/clockwork"
)

// recorder captures broadcaster traffic for assertions.
type recorder struct {
	mu      sync.Mutex
	room    []events.Event            // Broadcast
	all     []events.Event            // BroadcastAll
	direct  map[string][]events.Event // SendTo per connection
	joined  map[string]string         // connID -> room
}

func newRecorder() *recorder {
	return &recorder{
		direct: make(map[string][]events.Event),
		joined: make(map[string]string),
	}
}

func (r *recorder) Broadcast(code string, ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.room = append(r.room, ev)
}

func (r *recorder) BroadcastAll(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, ev)
}

func (r *recorder) SendTo(connID string, ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.direct[connID] = append(r.direct[connID], ev)
}

func (r *recorder) JoinRoom(connID, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joined[connID] = code
}

func (r *recorder) roomCount(t events.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.room {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) lastDirect(connID string) (events.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	evs := r.direct[connID]
	if len(evs) == 0 {
		return events.Event{}, false
	}
	return evs[len(evs)-1], true
}

// waitFor polls cond until it holds or the deadline passes. Timer-driven
// events arrive from the arbitrator's goroutine.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func newTestCoordinator(t *testing.T) (*Coordinator, *recorder, *clockwork.FakeClock) {
	t.Helper()
	rec := newRecorder()
	clock := clockwork.NewFakeClock()
	cfg := DefaultConfig()
	cfg.Clock = clock
	coord := New(cfg, store.NewMemoryStore(), rec, nil)
	return coord, rec, clock
}

func TestLoginRejectsConnectedConflict(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	code, err := coord.BeginSession(ctx)
	if err != nil {
		t.Fatalf("begin session: %v", err)
	}

	res, err := coord.LoginSeat(ctx, code, session.SeatOne, "Ann", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Token == "" {
		t.Fatal("expected a token")
	}

	if _, err := coord.LoginSeat(ctx, code, session.SeatOne, "Bob", ""); !errors.Is(err, session.ErrSeatTaken) {
		t.Fatalf("expected ErrSeatTaken, got %v", err)
	}
}

func TestLoginStaleCode(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	if _, err := coord.BeginSession(ctx); err != nil {
		t.Fatalf("begin session: %v", err)
	}
	if _, err := coord.LoginSeat(ctx, "ZZZ-00000", session.SeatOne, "Ann", ""); !errors.Is(err, session.ErrSessionStale) {
		t.Fatalf("expected ErrSessionStale, got %v", err)
	}
}

func TestDisconnectReleasesOnlyLastConnection(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	code, err := coord.BeginSession(ctx)
	if err != nil {
		t.Fatalf("begin session: %v", err)
	}

	coord.Connected("tab1")
	coord.SubscribeSeat(ctx, "tab1", code, session.SeatOne, "Ann", "")
	coord.Connected("tab2")
	coord.SubscribeSeat(ctx, "tab2", code, session.SeatOne, "Ann", "")

	coord.Disconnected(ctx, "tab1")
	snap := coord.Snapshot(ctx, code)
	if snap.Seats[session.SeatOne] == nil {
		t.Fatal("seat must stay held while the second tab is open")
	}

	coord.Disconnected(ctx, "tab2")
	snap = coord.Snapshot(ctx, code)
	if snap.Seats[session.SeatOne] != nil {
		t.Fatal("seat must show disconnected after the last tab closes")
	}
}

func TestSubscribeAfterDisconnectLeavesNoBinding(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	code, err := coord.BeginSession(ctx)
	if err != nil {
		t.Fatalf("begin session: %v", err)
	}

	// A subscribe dispatched on a connection the hub already evicted must not
	// leave the seat bound to a dead transport.
	coord.Connected("dead")
	coord.Disconnected(ctx, "dead")
	coord.SubscribeSeat(ctx, "dead", code, session.SeatOne, "Ann", "")

	snap := coord.Snapshot(ctx, code)
	if snap.Seats[session.SeatOne] != nil {
		t.Fatal("claim by a closed connection must not leave the seat connected")
	}

	// The seat must still release cleanly for a real tab afterwards.
	coord.Connected("tab")
	coord.SubscribeSeat(ctx, "tab", code, session.SeatOne, "Ann", "")
	snap = coord.Snapshot(ctx, code)
	if snap.Seats[session.SeatOne] == nil {
		t.Fatal("live tab must hold the seat")
	}

	coord.Disconnected(ctx, "tab")
	snap = coord.Snapshot(ctx, code)
	if snap.Seats[session.SeatOne] != nil {
		t.Fatal("seat must show disconnected after the only live tab closes")
	}
}

func TestReconnectAfterDisconnectPreservesToken(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	code, err := coord.BeginSession(ctx)
	if err != nil {
		t.Fatalf("begin session: %v", err)
	}

	coord.Connected("c1")
	coord.SubscribeSeat(ctx, "c1", code, session.SeatOne, "Ann", "")
	first, err := coord.LoginSeat(ctx, code, session.SeatOne, "Ann", "")
	if err != nil {
		t.Fatalf("login for token: %v", err)
	}

	coord.Disconnected(ctx, "c1")

	res, err := coord.LoginSeat(ctx, code, session.SeatOne, "Ann2", first.Token)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if res.Token != first.Token {
		t.Fatalf("expected token preserved across reconnect, got %q want %q", res.Token, first.Token)
	}
}

func TestSubscribeSeatRejectionGoesOnlyToCaller(t *testing.T) {
	coord, rec, _ := newTestCoordinator(t)
	ctx := context.Background()

	code, err := coord.BeginSession(ctx)
	if err != nil {
		t.Fatalf("begin session: %v", err)
	}

	coord.Connected("ann")
	coord.SubscribeSeat(ctx, "ann", code, session.SeatOne, "Ann", "")
	coord.Connected("bob")
	coord.SubscribeSeat(ctx, "bob", code, session.SeatOne, "Bob", "")

	ev, ok := rec.lastDirect("bob")
	if !ok || ev.Type != events.TypeClaimRejected {
		t.Fatalf("expected claim_rejected to bob, got %+v ok=%v", ev, ok)
	}
	var payload events.ClaimRejectedPayload
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Reason != ReasonSeatTaken {
		t.Fatalf("expected seat_taken reason, got %q", payload.Reason)
	}

	// Bob must not hold a binding or room membership.
	if room := rec.joined["bob"]; room != "" {
		t.Fatalf("rejected claim must not join the room, joined %q", room)
	}
}

func TestBuzzRaceHasOneWinner(t *testing.T) {
	coord, rec, _ := newTestCoordinator(t)
	ctx := context.Background()

	code, err := coord.BeginSession(ctx)
	if err != nil {
		t.Fatalf("begin session: %v", err)
	}

	ann, err := coord.LoginSeat(ctx, code, session.SeatOne, "Ann", "")
	if err != nil {
		t.Fatalf("login ann: %v", err)
	}
	bob, err := coord.LoginSeat(ctx, code, session.SeatTwo, "Bob", "")
	if err != nil {
		t.Fatalf("login bob: %v", err)
	}

	coord.Connected("ann")
	coord.Connected("bob")

	coord.Buzz(ctx, "ann", code, session.SeatOne, "Ann", ann.Token)
	if got := rec.roomCount(events.TypeSignalWon); got != 1 {
		t.Fatalf("expected one signal_won broadcast, got %d", got)
	}

	coord.Buzz(ctx, "bob", code, session.SeatTwo, "Bob", bob.Token)
	if got := rec.roomCount(events.TypeSignalWon); got != 1 {
		t.Fatalf("losing buzz must not broadcast, got %d", got)
	}

	// The loser hears who won.
	ev, ok := rec.lastDirect("bob")
	if !ok || ev.Type != events.TypeSignalWon {
		t.Fatalf("expected signal_won to loser, got %+v ok=%v", ev, ok)
	}
	var payload events.SignalWonPayload
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Seat != session.SeatOne || payload.Name != "Ann" {
		t.Fatalf("expected winner Ann on seat one, got %+v", payload)
	}

	snap := coord.Snapshot(ctx, code)
	if snap.SignalWinner == nil || *snap.SignalWinner != session.SeatOne {
		t.Fatalf("expected snapshot winner seat one, got %+v", snap.SignalWinner)
	}
}

func TestBuzzExpiresAndUnlocks(t *testing.T) {
	coord, rec, clock := newTestCoordinator(t)
	ctx := context.Background()

	code, err := coord.BeginSession(ctx)
	if err != nil {
		t.Fatalf("begin session: %v", err)
	}
	ann, err := coord.LoginSeat(ctx, code, session.SeatOne, "Ann", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	coord.Connected("ann")
	coord.Buzz(ctx, "ann", code, session.SeatOne, "Ann", ann.Token)

	clock.BlockUntil(1)
	clock.Advance(signal.DefaultUnlockAfter)

	waitFor(t, func() bool {
		return rec.roomCount(events.TypeSignalUnlocked) == 1
	})
	snap := coord.Snapshot(ctx, code)
	if snap.SignalWinner != nil {
		t.Fatalf("expected no winner after expiry, got %q", *snap.SignalWinner)
	}
}

func TestAdminUnlockPreventsLaterTimerBroadcast(t *testing.T) {
	coord, rec, clock := newTestCoordinator(t)
	ctx := context.Background()

	code, err := coord.BeginSession(ctx)
	if err != nil {
		t.Fatalf("begin session: %v", err)
	}
	ann, err := coord.LoginSeat(ctx, code, session.SeatOne, "Ann", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	coord.Connected("ann")
	coord.Buzz(ctx, "ann", code, session.SeatOne, "Ann", ann.Token)
	clock.BlockUntil(1)

	coord.AdminUnlock(ctx, code)
	waitFor(t, func() bool {
		return rec.roomCount(events.TypeSignalUnlocked) == 1
	})

	// The original 10-second timer firing later must stay silent.
	clock.Advance(signal.DefaultUnlockAfter)
	time.Sleep(100 * time.Millisecond)
	if got := rec.roomCount(events.TypeSignalUnlocked); got != 1 {
		t.Fatalf("expected exactly one signal_unlocked, got %d", got)
	}
}

func TestBuzzWithWrongTokenRejected(t *testing.T) {
	coord, rec, _ := newTestCoordinator(t)
	ctx := context.Background()

	code, err := coord.BeginSession(ctx)
	if err != nil {
		t.Fatalf("begin session: %v", err)
	}
	if _, err := coord.LoginSeat(ctx, code, session.SeatOne, "Ann", ""); err != nil {
		t.Fatalf("login: %v", err)
	}

	coord.Connected("intruder")
	coord.Buzz(ctx, "intruder", code, session.SeatOne, "Eve", "wrong-token")

	ev, ok := rec.lastDirect("intruder")
	if !ok || ev.Type != events.TypeClaimRejected {
		t.Fatalf("expected claim_rejected, got %+v ok=%v", ev, ok)
	}
	var payload events.ClaimRejectedPayload
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Reason != ReasonInvalidToken {
		t.Fatalf("expected invalid_token reason, got %q", payload.Reason)
	}
	if _, locked := coord.arb.Winner(code); locked {
		t.Fatal("rejected buzz must not lock the signal")
	}
}

func TestBuzzStaleCodeRejected(t *testing.T) {
	coord, rec, _ := newTestCoordinator(t)
	ctx := context.Background()

	if _, err := coord.BeginSession(ctx); err != nil {
		t.Fatalf("begin session: %v", err)
	}
	coord.Connected("c1")
	coord.Buzz(ctx, "c1", "ZZZ-00000", session.SeatOne, "Ann", "")

	ev, ok := rec.lastDirect("c1")
	if !ok || ev.Type != events.TypeClaimRejected {
		t.Fatalf("expected claim_rejected, got %+v ok=%v", ev, ok)
	}
	var payload events.ClaimRejectedPayload
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Reason != ReasonSessionStale {
		t.Fatalf("expected session_stale reason, got %q", payload.Reason)
	}
}

func TestEndSessionClearsEverything(t *testing.T) {
	coord, rec, _ := newTestCoordinator(t)
	ctx := context.Background()

	code, err := coord.BeginSession(ctx)
	if err != nil {
		t.Fatalf("begin session: %v", err)
	}
	ann, err := coord.LoginSeat(ctx, code, session.SeatOne, "Ann", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	coord.Connected("ann")
	coord.Buzz(ctx, "ann", code, session.SeatOne, "Ann", ann.Token)

	if err := coord.EndSession(ctx, code); err != nil {
		t.Fatalf("end session: %v", err)
	}

	if got := coord.CurrentCode(); got != "" {
		t.Fatalf("expected no current code, got %q", got)
	}
	if rec.roomCount(events.TypeSessionEnded) != 1 {
		t.Fatal("expected session_ended broadcast")
	}
	if _, locked := coord.arb.Winner(code); locked {
		t.Fatal("expected signal cleared with the session")
	}
	if _, err := coord.LoginSeat(ctx, code, session.SeatOne, "Ann", ""); !errors.Is(err, session.ErrSessionStale) {
		t.Fatalf("expected ErrSessionStale after end, got %v", err)
	}
}

func TestEndSessionWrongCode(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	if _, err := coord.BeginSession(ctx); err != nil {
		t.Fatalf("begin session: %v", err)
	}
	if err := coord.EndSession(ctx, "ZZZ-00000"); !errors.Is(err, session.ErrSessionStale) {
		t.Fatalf("expected ErrSessionStale, got %v", err)
	}
}

func TestRestoreSessionAfterRestart(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	first := New(DefaultConfig(), st, newRecorder(), nil)
	code, err := first.BeginSession(ctx)
	if err != nil {
		t.Fatalf("begin session: %v", err)
	}

	// A new coordinator over the same store stands in for a restarted process.
	second := New(DefaultConfig(), st, newRecorder(), nil)
	restored, err := second.RestoreSession(ctx)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored != code {
		t.Fatalf("expected restored code %q, got %q", code, restored)
	}
	if second.CurrentCode() != code {
		t.Fatalf("expected current code %q, got %q", code, second.CurrentCode())
	}
}

func TestRestoreSessionWithoutPersistedCode(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	if _, err := coord.RestoreSession(context.Background()); !errors.Is(err, session.ErrSessionStale) {
		t.Fatalf("expected ErrSessionStale, got %v", err)
	}
}

func TestBeginSessionReplacesStaleSignal(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	code, err := coord.BeginSession(ctx)
	if err != nil {
		t.Fatalf("begin session: %v", err)
	}
	ann, err := coord.LoginSeat(ctx, code, session.SeatOne, "Ann", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	coord.Connected("ann")
	coord.Buzz(ctx, "ann", code, session.SeatOne, "Ann", ann.Token)

	// Regeneration atomically replaces the ownership table and signal state.
	next, err := coord.BeginSession(ctx)
	if err != nil {
		t.Fatalf("second begin: %v", err)
	}
	if next == code {
		t.Fatal("expected a fresh code")
	}
	if _, locked := coord.arb.Winner(code); locked {
		t.Fatal("expected stale signal cleared on regeneration")
	}
}

func TestSubscribeAdminGetsSnapshot(t *testing.T) {
	coord, rec, _ := newTestCoordinator(t)
	ctx := context.Background()

	code, err := coord.BeginSession(ctx)
	if err != nil {
		t.Fatalf("begin session: %v", err)
	}
	if _, err := coord.LoginSeat(ctx, code, session.SeatOne, "Ann", ""); err != nil {
		t.Fatalf("login: %v", err)
	}

	coord.Connected("admin")
	coord.SubscribeAdmin(ctx, "admin", code)

	if rec.joined["admin"] != code {
		t.Fatalf("expected admin joined to %q, got %q", code, rec.joined["admin"])
	}
	ev, ok := rec.lastDirect("admin")
	if !ok || ev.Type != events.TypeRoomSnapshot {
		t.Fatalf("expected room_snapshot, got %+v ok=%v", ev, ok)
	}
	var payload events.RoomSnapshotPayload
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Seats[session.SeatOne] == nil || *payload.Seats[session.SeatOne] != "Ann" {
		t.Fatalf("expected Ann in snapshot, got %+v", payload.Seats)
	}
}
