// Package engine provides the generic session infrastructure shared by every
// multiplayer chat game: a per-chat session store, cancelable timer
// bookkeeping, a join-window entrant collector, turn rotation, per-turn
// timeout machinery, and inter-round cooldown scheduling.
// Requirements: 1.1 - At most one session per chat
// Requirements: 1.2 - All scheduled work is owned by the session's timer bag
package engine

import (
	"sync"
	"time"
)

// Handle identifies one scheduled callback owned by a TimerBag.
// A zero Handle is valid and Stop on it is a no-op.
type Handle struct {
	bag *TimerBag
	id  uint64
}

// Stop cancels only this callback, leaving the rest of the bag armed.
func (h *Handle) Stop() {
	if h == nil || h.bag == nil {
		return
	}
	h.bag.cancel(h.id)
}

// entry tracks one scheduled callback. Exactly one of timer/ticker is set.
type entry struct {
	timer  *time.Timer
	ticker *time.Ticker
	done   chan struct{}
}

// TimerBag owns every scheduled callback for one session. StopAll is
// idempotent and safe from concurrent call sites; once it returns, no
// callback body registered through the bag will start executing.
//
// Contract for callbacks: the first thing a callback must do is re-fetch the
// live session by chat ID and verify it is still the expected session, turn,
// and phase before producing any observable effect. This is what makes a
// timer that loses the race against a player action harmless.
// Requirements: 1.2
type TimerBag struct {
	mu      sync.Mutex
	seq     uint64
	stopped bool
	entries map[uint64]*entry
}

// NewTimerBag creates an empty TimerBag.
func NewTimerBag() *TimerBag {
	return &TimerBag{entries: make(map[uint64]*entry)}
}

// After schedules fn to run once after delay. The handle removes itself from
// the bag's bookkeeping when it fires, so a later StopAll is a safe no-op for
// it. Scheduling on a stopped bag returns a dead handle and fn never runs.
func (b *TimerBag) After(delay time.Duration, fn func()) *Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return &Handle{}
	}

	b.seq++
	id := b.seq
	e := &entry{}
	e.timer = time.AfterFunc(delay, func() {
		// claim loses against StopAll or an individual Stop, in which
		// case the callback body must not run.
		if !b.claim(id) {
			return
		}
		fn()
	})
	b.entries[id] = e
	return &Handle{bag: b, id: id}
}

// Every schedules fn to run repeatedly at the given interval until the handle
// is stopped or the bag is drained.
func (b *TimerBag) Every(interval time.Duration, fn func()) *Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return &Handle{}
	}

	b.seq++
	id := b.seq
	e := &entry{
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}
	b.entries[id] = e

	go func() {
		for {
			select {
			case <-e.done:
				return
			case <-e.ticker.C:
				if !b.alive(id) {
					return
				}
				fn()
			}
		}
	}()

	return &Handle{bag: b, id: id}
}

// StopAll cancels every outstanding handle and empties the bookkeeping.
// The bag is permanently stopped afterwards: further After/Every calls are
// no-ops. Safe to call multiple times and from concurrent call sites.
// Requirements: 1.2
func (b *TimerBag) StopAll() {
	b.mu.Lock()
	entries := b.entries
	b.entries = make(map[uint64]*entry)
	b.stopped = true
	b.mu.Unlock()

	for _, e := range entries {
		stopEntry(e)
	}
}

// Stopped reports whether StopAll has run.
func (b *TimerBag) Stopped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopped
}

// Pending returns the number of outstanding handles.
func (b *TimerBag) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// claim removes a fired one-shot entry from the bookkeeping. It returns false
// if the entry was already cancelled, in which case the caller must not run
// the callback body.
func (b *TimerBag) claim(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return false
	}
	if _, ok := b.entries[id]; !ok {
		return false
	}
	delete(b.entries, id)
	return true
}

// alive reports whether a repeating entry is still registered.
func (b *TimerBag) alive(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return false
	}
	_, ok := b.entries[id]
	return ok
}

// cancel stops and removes a single entry.
func (b *TimerBag) cancel(id uint64) {
	b.mu.Lock()
	e, ok := b.entries[id]
	if ok {
		delete(b.entries, id)
	}
	b.mu.Unlock()

	if ok {
		stopEntry(e)
	}
}

func stopEntry(e *entry) {
	if e.timer != nil {
		e.timer.Stop()
	}
	if e.ticker != nil {
		e.ticker.Stop()
	}
	if e.done != nil {
		close(e.done)
	}
}
