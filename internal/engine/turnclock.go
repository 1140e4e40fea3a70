package engine

import (
	"sync"
	"time"
)

// TurnState tracks where a turn is in its timeout lifecycle.
type TurnState string

const (
	TurnIdle         TurnState = "idle"
	TurnAwaitingWarn TurnState = "awaiting-warn"
	TurnAwaitingSkip TurnState = "awaiting-skip"
	TurnActed        TurnState = "acted"
	TurnSkipped      TurnState = "skipped"
)

// TurnHooks are the callbacks a TurnClock drives. StillCurrent is the
// liveness guard: it must re-fetch the live session by chat ID and report
// whether the given owner still holds the live turn. Both OnWarn and OnSkip
// run only after StillCurrent has confirmed the turn AND the clock's own
// generation check has passed under its lock, so a timer that fires after
// the player already acted does nothing observable.
// Requirements: 3.3
type TurnHooks struct {
	StillCurrent func(owner int64) bool
	OnWarn       func(owner int64)
	OnSkip       func(owner int64)
}

// TurnClock arms a warn timer and then a skip/forfeit timer for each turn,
// through the session's timer bag. Re-arming for a new turn cancels the
// previous turn's handles without touching the rest of the bag, and a player
// action cancels both via Acted before the game resolves it.
//
// Each Start bumps a generation that its timer closures capture. The
// closures re-check the generation inside the mutex, in the same critical
// section as the state transition: a stale callback that slept through an
// Acted plus a re-arm (even for the same owner) fails the check and cannot
// touch the new turn.
type TurnClock struct {
	mu    sync.Mutex
	gen   uint64
	owner int64
	state TurnState
	warn  *Handle
	skip  *Handle
}

// NewTurnClock returns an idle clock.
func NewTurnClock() *TurnClock {
	return &TurnClock{state: TurnIdle}
}

// Start arms the warn and skip timers for a new turn owner. skipAfter must
// be longer than warnAfter. Any timers from a previous turn are cancelled
// first.
func (t *TurnClock) Start(bag *TimerBag, owner int64, warnAfter, skipAfter time.Duration, hooks TurnHooks) {
	t.mu.Lock()
	t.stopLocked()
	t.gen++
	gen := t.gen
	t.owner = owner
	t.state = TurnAwaitingWarn

	t.warn = bag.After(warnAfter, func() {
		if hooks.StillCurrent != nil && !hooks.StillCurrent(owner) {
			return
		}
		t.mu.Lock()
		current := t.gen == gen && t.state == TurnAwaitingWarn
		if current {
			t.state = TurnAwaitingSkip
		}
		t.mu.Unlock()
		if current && hooks.OnWarn != nil {
			hooks.OnWarn(owner)
		}
	})
	t.skip = bag.After(skipAfter, func() {
		if hooks.StillCurrent != nil && !hooks.StillCurrent(owner) {
			return
		}
		t.mu.Lock()
		current := t.gen == gen &&
			(t.state == TurnAwaitingWarn || t.state == TurnAwaitingSkip)
		if current {
			t.state = TurnSkipped
		}
		t.mu.Unlock()
		if current && hooks.OnSkip != nil {
			hooks.OnSkip(owner)
		}
	})
	t.mu.Unlock()
}

// Acted cancels the pending timers because the owner acted in time. It
// returns false when the owner no longer holds the turn (the skip already
// fired, or another turn started), in which case the action must be
// rejected.
func (t *TurnClock) Acted(owner int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.owner != owner {
		return false
	}
	if t.state != TurnAwaitingWarn && t.state != TurnAwaitingSkip {
		return false
	}
	t.state = TurnActed
	t.stopLocked()
	return true
}

// Stop cancels any pending timers and returns the clock to idle.
func (t *TurnClock) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.state = TurnIdle
	t.owner = 0
}

func (t *TurnClock) stopLocked() {
	t.warn.Stop()
	t.skip.Stop()
	t.warn = nil
	t.skip = nil
}

// Owner returns the recorded turn owner.
func (t *TurnClock) Owner() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.owner
}

// State returns the turn's timeout state.
func (t *TurnClock) State() TurnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
