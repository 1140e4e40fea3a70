package engine

import (
	"context"
	"sync"
	"time"
)

// CloseReason says why a join window closed.
type CloseReason string

const (
	// CloseWindow - the timed window elapsed.
	CloseWindow CloseReason = "window"
	// CloseMax - the entrant capacity was reached early.
	CloseMax CloseReason = "max"
	// CloseCancelled - the opener cancelled the window (host started early,
	// session ended, context cancelled).
	CloseCancelled CloseReason = "cancelled"
	// CloseAnnounceFailed - the announcement could not be posted, so nobody
	// could join. The entrant set is empty and callers present a clean
	// "nobody joined" outcome instead of an error.
	CloseAnnounceFailed CloseReason = "announce_failed"
)

// JoinOutcome is the result of one join attempt.
type JoinOutcome int

const (
	// JoinAccepted - the entrant was added.
	JoinAccepted JoinOutcome = iota
	// JoinFilled - the entrant was added and reached capacity, closing the
	// window.
	JoinFilled
	// JoinDuplicate - the entrant had already joined.
	JoinDuplicate
	// JoinClosed - the window is no longer open.
	JoinClosed
)

// Collector accumulates unique participant IDs during a join window.
// The entrant set grows on Join, optionally shrinks on Leave while the
// window is open, and is frozen once the window closes. Zero entrants at
// close is a valid, non-error result; callers decide whether a minimum is
// enforced.
//
// Non-human senders must be filtered by the event source before Join is
// called; the collector itself cannot tell a bot from a person.
// Requirements: 2.1, 2.2
type Collector struct {
	mu          sync.Mutex
	max         int // 0 = unlimited
	trackLeaves bool
	members     map[int64]struct{}
	order       []int64 // insertion order, for stable shuffles and listings
	closed      bool
	reason      CloseReason
	done        chan struct{}
}

// NewCollector creates an open collector. maxEntrants of 0 means no early
// stop; trackLeaves enables removal of entrants that retract before close.
func NewCollector(maxEntrants int, trackLeaves bool) *Collector {
	return &Collector{
		max:         maxEntrants,
		trackLeaves: trackLeaves,
		members:     make(map[int64]struct{}),
		done:        make(chan struct{}),
	}
}

// Join adds a unique entrant. Reaching the capacity closes the window with
// reason CloseMax; join events that arrive after close are ignored.
// Requirements: 2.2
func (c *Collector) Join(userID int64) JoinOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return JoinClosed
	}
	if _, ok := c.members[userID]; ok {
		return JoinDuplicate
	}

	c.members[userID] = struct{}{}
	c.order = append(c.order, userID)

	if c.max > 0 && len(c.members) >= c.max {
		c.closeLocked(CloseMax)
		return JoinFilled
	}
	return JoinAccepted
}

// Leave removes an entrant that retracts before the window closes. It is a
// no-op unless leave tracking was enabled at open time.
func (c *Collector) Leave(userID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || !c.trackLeaves {
		return false
	}
	if _, ok := c.members[userID]; !ok {
		return false
	}

	delete(c.members, userID)
	for i, id := range c.order {
		if id == userID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// Close freezes the entrant set. The first close wins; later calls report
// false and leave the original reason in place.
func (c *Collector) Close(reason CloseReason) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.closeLocked(reason)
	return true
}

func (c *Collector) closeLocked(reason CloseReason) {
	c.closed = true
	c.reason = reason
	close(c.done)
}

// Closed reports whether the window has closed.
func (c *Collector) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Reason returns the close reason, or "" while the window is open.
func (c *Collector) Reason() CloseReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Size returns the current entrant count.
func (c *Collector) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.members)
}

// Entrants returns a copy of the entrant IDs in join order.
func (c *Collector) Entrants() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, len(c.order))
	copy(out, c.order)
	return out
}

// Done is closed when the window closes.
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the window closes or ctx is cancelled (which closes the
// window with CloseCancelled), then returns the frozen entrant set.
func (c *Collector) Wait(ctx context.Context) ([]int64, CloseReason) {
	select {
	case <-c.done:
	case <-ctx.Done():
		c.Close(CloseCancelled)
	}
	return c.Entrants(), c.Reason()
}

// OpenWindow announces a join window and arms its closing timer through the
// session's timer bag, so a session that ends early cancels the window with
// everything else.
//
// announce runs before the timer is armed and typically posts the join
// message with its buttons; the collector is passed so the caller can stash
// it where the event handlers will find it. If the announcement fails the
// window closes immediately with an empty entrant set rather than surfacing
// the error.
// Requirements: 2.1, 2.3
func OpenWindow(bag *TimerBag, window time.Duration, maxEntrants int, trackLeaves bool, announce func(*Collector) error) *Collector {
	c := NewCollector(maxEntrants, trackLeaves)

	if announce != nil {
		if err := announce(c); err != nil {
			c.Close(CloseAnnounceFailed)
			return c
		}
	}

	bag.After(window, func() {
		c.Close(CloseWindow)
	})
	return c
}
