// Package signal arbitrates the buzzer race: first accepted buzz per session
// locks the signal, later buzzes are told the winner, and the lock clears on
// a fixed expiry or an administrator unlock.
package signal

import (
	"sync"
	"time"

	"github.com/gameshowlab/podium/internal/session"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultUnlockAfter is how long a won signal stays locked without an
// administrator unlock.
const DefaultUnlockAfter = 10 * time.Second

// State is a snapshot of the arbitrator for room payloads.
type State struct {
	Active bool
	Code   string
	Winner session.SeatID
}

// Arbitrator is the single-winner state machine. All mutations serialize on
// one mutex; concurrent buzzes have no true tie because whichever acquires
// the lock first wins, deliberately avoiding timestamp comparison.
//
// Every lock carries a generation number. The expiry task checks its own
// generation against the live lock before acting, so a stale timer firing
// after a manual unlock (or after a new race started) is a no-op.
type Arbitrator struct {
	mu          sync.Mutex
	clock       clockwork.Clock
	unlockAfter time.Duration
	onUnlock    func(code string)

	active     bool
	code       string
	winner     session.SeatID
	generation uint64
	timer      clockwork.Timer
	stopCh     chan struct{}
}

// New returns an idle arbitrator. onUnlock is invoked, outside the internal
// lock, whenever a lock clears by expiry or admin action.
func New(clock clockwork.Clock, unlockAfter time.Duration, onUnlock func(code string)) *Arbitrator {
	if unlockAfter <= 0 {
		unlockAfter = DefaultUnlockAfter
	}
	return &Arbitrator{
		clock:       clock,
		unlockAfter: unlockAfter,
		onUnlock:    onUnlock,
	}
}

// Lock attempts to win the race for code. When the signal is already held for
// that code the current winner is returned with won=false and no state
// changes. On success the expiry timer is armed.
func (a *Arbitrator) Lock(code string, seat session.SeatID) (winner session.SeatID, won bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active && a.code == code {
		return a.winner, false
	}

	// A leftover lock for a different code means a stale race from a
	// regenerated session; replace it outright.
	a.stopTimerLocked()

	a.active = true
	a.code = code
	a.winner = seat
	a.generation++
	a.armTimerLocked(a.generation, code)

	log.Info().
		Str("code", code).
		Str("seat", string(seat)).
		Uint64("generation", a.generation).
		Msg("signal locked")
	return seat, true
}

// Unlock force-clears the lock for code, independent of the timer. It reports
// whether a lock was actually cleared.
func (a *Arbitrator) Unlock(code string) bool {
	a.mu.Lock()
	if !a.active || a.code != code {
		a.mu.Unlock()
		return false
	}
	a.clearLocked()
	a.mu.Unlock()

	log.Info().Str("code", code).Msg("signal unlocked by admin")
	if a.onUnlock != nil {
		a.onUnlock(code)
	}
	return true
}

// Reset silently clears any lock held for code, without notifying the room.
// Used when a session ends or is regenerated.
func (a *Arbitrator) Reset(code string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active && a.code == code {
		a.clearLocked()
	}
}

// Snapshot returns the current lock state.
func (a *Arbitrator) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return State{Active: a.active, Code: a.code, Winner: a.winner}
}

// Winner returns the seat holding the lock for code, if any.
func (a *Arbitrator) Winner(code string) (session.SeatID, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active && a.code == code {
		return a.winner, true
	}
	return "", false
}

// armTimerLocked schedules the expiry task for the given lock generation.
func (a *Arbitrator) armTimerLocked(generation uint64, code string) {
	timer := a.clock.NewTimer(a.unlockAfter)
	stop := make(chan struct{})
	a.timer = timer
	a.stopCh = stop

	go func() {
		select {
		case <-timer.Chan():
			a.expire(generation, code)
		case <-stop:
		}
	}()
}

// expire clears the lock if, and only if, it is still the same lock the timer
// was armed for. Generation and code are both checked so neither a manual
// unlock nor a new race can be undone by a stale timer.
func (a *Arbitrator) expire(generation uint64, code string) {
	a.mu.Lock()
	if !a.active || a.generation != generation || a.code != code {
		a.mu.Unlock()
		log.Debug().
			Str("code", code).
			Uint64("generation", generation).
			Msg("stale signal timer ignored")
		return
	}
	a.clearLocked()
	a.mu.Unlock()

	log.Info().Str("code", code).Msg("signal expired")
	if a.onUnlock != nil {
		a.onUnlock(code)
	}
}

func (a *Arbitrator) clearLocked() {
	a.stopTimerLocked()
	a.active = false
	a.code = ""
	a.winner = ""
	a.generation++
}

// stopTimerLocked cancels any pending expiry task, draining the timer channel
// per the time.Timer.Stop contract.
func (a *Arbitrator) stopTimerLocked() {
	if a.timer == nil {
		return
	}
	if !a.timer.Stop() {
		select {
		case <-a.timer.Chan():
		default:
		}
	}
	close(a.stopCh)
	a.timer = nil
	a.stopCh = nil
}
