package engine

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeState struct {
	Round int
}

// TestStore_AtMostOneSession tests that a chat slot holds at most one
// session and that a second TryStart fails without mutating the first.
func TestStore_AtMostOneSession(t *testing.T) {
	st := NewStore[*fakeState]("quiz")

	first, err := st.TryStart(100, 0, 1, &fakeState{Round: 1})
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := st.TryStart(100, 0, 2, &fakeState{Round: 9})
	assert.Nil(t, second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScopeOccupied)

	var occupied *OccupiedError
	require.True(t, errors.As(err, &occupied))
	assert.Equal(t, first.ID, occupied.Existing.ID)
	assert.Equal(t, "quiz", occupied.Existing.Game)
	assert.Equal(t, int64(1), occupied.Existing.OwnerID)

	// The original session is untouched and still reachable.
	got := st.Get(100)
	require.Same(t, first, got)
	assert.Equal(t, 1, got.State.Round)

	// A different chat gets its own slot.
	other, err := st.TryStart(200, 0, 2, &fakeState{})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
	assert.Equal(t, 2, st.Len())
}

// TestStore_StopIdempotent tests that the second stop is a no-op.
func TestStore_StopIdempotent(t *testing.T) {
	st := NewStore[*fakeState]("quiz")
	sess, err := st.TryStart(100, 0, 1, &fakeState{})
	require.NoError(t, err)

	removed := st.Stop(100)
	require.Same(t, sess, removed)
	assert.True(t, removed.Timers.Stopped())
	assert.Nil(t, st.Get(100))

	assert.Nil(t, st.Stop(100))
	assert.Nil(t, st.Stop(100))
}

// TestStore_StopDrainsTimers tests that a timer armed before stop never
// fires after it: no stale mutation.
func TestStore_StopDrainsTimers(t *testing.T) {
	st := NewStore[*fakeState]("quiz")
	sess, err := st.TryStart(100, 0, 1, &fakeState{})
	require.NoError(t, err)

	var fired atomic.Int32
	sess.Timers.After(20*time.Millisecond, func() { fired.Add(1) })

	st.Stop(100)
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, int32(0), fired.Load(), "timer fired after session stop")
}

// TestStore_RestartAfterStop tests that a stopped slot can be reused with a
// fresh identity.
func TestStore_RestartAfterStop(t *testing.T) {
	st := NewStore[*fakeState]("quiz")

	first, err := st.TryStart(100, 0, 1, &fakeState{})
	require.NoError(t, err)
	st.Stop(100)

	second, err := st.TryStart(100, 0, 2, &fakeState{})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, second.Timers.Stopped())
}

// TestStore_SameThread tests thread binding checks.
func TestStore_SameThread(t *testing.T) {
	st := NewStore[*fakeState]("quiz")

	// No session: nothing to address.
	assert.False(t, st.SameThread(100, 0))

	// Unbound session accepts any thread.
	_, err := st.TryStart(100, 0, 1, &fakeState{})
	require.NoError(t, err)
	assert.True(t, st.SameThread(100, 0))
	assert.True(t, st.SameThread(100, 77))

	// Bound session accepts only its own thread.
	_, err = st.TryStart(200, 42, 1, &fakeState{})
	require.NoError(t, err)
	assert.True(t, st.SameThread(200, 42))
	assert.False(t, st.SameThread(200, 43))
	assert.False(t, st.SameThread(200, 0))
}

// TestStore_Each tests iteration over live sessions.
func TestStore_Each(t *testing.T) {
	st := NewStore[*fakeState]("quiz")
	for i := int64(1); i <= 3; i++ {
		_, err := st.TryStart(i, 0, i, &fakeState{})
		require.NoError(t, err)
	}

	seen := make(map[int64]bool)
	st.Each(func(s *Session[*fakeState]) { seen[s.Scope] = true })
	assert.Len(t, seen, 3)
}
