package engine

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTimerBag_AfterFires tests that a one-shot callback runs.
func TestTimerBag_AfterFires(t *testing.T) {
	bag := NewTimerBag()
	defer bag.StopAll()

	fired := make(chan struct{})
	bag.After(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("one-shot callback never fired")
	}

	// The handle removed itself from the bookkeeping when it fired.
	assert.Equal(t, 0, bag.Pending())
}

// TestTimerBag_StopAllPreventsCallbacks tests that no callback body runs
// after StopAll returns.
func TestTimerBag_StopAllPreventsCallbacks(t *testing.T) {
	bag := NewTimerBag()

	var fired atomic.Int32
	for i := 0; i < 10; i++ {
		bag.After(20*time.Millisecond, func() { fired.Add(1) })
	}
	bag.Every(20*time.Millisecond, func() { fired.Add(1) })

	bag.StopAll()
	time.Sleep(80 * time.Millisecond)

	assert.Equal(t, int32(0), fired.Load(), "callback ran after StopAll")
	assert.Equal(t, 0, bag.Pending())
}

// TestTimerBag_StopAllIdempotent tests repeated and concurrent StopAll.
func TestTimerBag_StopAllIdempotent(t *testing.T) {
	bag := NewTimerBag()
	bag.After(time.Hour, func() {})
	bag.Every(time.Hour, func() {})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bag.StopAll()
		}()
	}
	wg.Wait()

	require.True(t, bag.Stopped())
	assert.Equal(t, 0, bag.Pending())

	// StopAll on an already-empty, already-stopped bag is still safe.
	bag.StopAll()
}

// TestTimerBag_ScheduleAfterStop tests that a stopped bag never runs new work.
func TestTimerBag_ScheduleAfterStop(t *testing.T) {
	bag := NewTimerBag()
	bag.StopAll()

	var fired atomic.Int32
	h1 := bag.After(5*time.Millisecond, func() { fired.Add(1) })
	h2 := bag.Every(5*time.Millisecond, func() { fired.Add(1) })

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())

	// Dead handles are safe to stop.
	h1.Stop()
	h2.Stop()
}

// TestTimerBag_HandleStop tests cancelling a single handle leaves the rest
// of the bag armed.
func TestTimerBag_HandleStop(t *testing.T) {
	bag := NewTimerBag()
	defer bag.StopAll()

	var cancelled atomic.Int32
	kept := make(chan struct{})

	h := bag.After(20*time.Millisecond, func() { cancelled.Add(1) })
	bag.After(20*time.Millisecond, func() { close(kept) })

	h.Stop()

	select {
	case <-kept:
	case <-time.After(time.Second):
		t.Fatal("surviving callback never fired")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), cancelled.Load())
}

// TestTimerBag_EveryRepeats tests that a repeating callback ticks more than
// once and stops with its handle.
func TestTimerBag_EveryRepeats(t *testing.T) {
	bag := NewTimerBag()
	defer bag.StopAll()

	var ticks atomic.Int32
	h := bag.Every(10*time.Millisecond, func() { ticks.Add(1) })

	require.Eventually(t, func() bool { return ticks.Load() >= 3 },
		time.Second, 5*time.Millisecond)

	h.Stop()
	after := ticks.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, ticks.Load(), "ticker kept firing after Stop")
}

// TestTimerBag_NilHandle tests that a zero-value handle is inert.
func TestTimerBag_NilHandle(t *testing.T) {
	var h *Handle
	h.Stop()
	(&Handle{}).Stop()
}
