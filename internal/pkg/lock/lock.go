// Package lock provides per-chat locking so that handler goroutines and
// timer callbacks touching the same chat's game session run one at a time.
// Requirements: 9.1 - Per-chat serialization of session mutations
package lock

import "sync"

// chatMutex wraps a mutex so the sync.Map hands out stable instances.
type chatMutex struct {
	mu sync.Mutex
}

// ChatLock serializes access to one chat's session state. The bot runtime
// dispatches updates on parallel goroutines and the engine fires timers on
// their own goroutines; every path that reads or mutates a chat's session
// takes this lock first. Near-simultaneous player actions on the same chat
// therefore resolve in lock-acquisition order, and the first to validate
// against the live session wins.
// Requirements: 9.1, 9.2
type ChatLock struct {
	locks sync.Map // map[int64]*chatMutex
	pool  sync.Pool
}

// NewChatLock creates a new ChatLock instance.
func NewChatLock() *ChatLock {
	return &ChatLock{
		pool: sync.Pool{
			New: func() any {
				return &chatMutex{}
			},
		},
	}
}

// getLock retrieves or creates the mutex for a chat.
func (cl *ChatLock) getLock(chatID int64) *chatMutex {
	if v, ok := cl.locks.Load(chatID); ok {
		return v.(*chatMutex)
	}

	newLock := cl.pool.Get().(*chatMutex)
	actual, loaded := cl.locks.LoadOrStore(chatID, newLock)
	if loaded {
		// Another goroutine registered the lock first.
		cl.pool.Put(newLock)
	}
	return actual.(*chatMutex)
}

// Lock acquires the lock for a chat.
func (cl *ChatLock) Lock(chatID int64) {
	cl.getLock(chatID).mu.Lock()
}

// Unlock releases the lock for a chat.
func (cl *ChatLock) Unlock(chatID int64) {
	if v, ok := cl.locks.Load(chatID); ok {
		v.(*chatMutex).mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
// Requirements: 9.2
func (cl *ChatLock) TryLock(chatID int64) bool {
	return cl.getLock(chatID).mu.TryLock()
}

// WithLock runs fn while holding the chat's lock.
func (cl *ChatLock) WithLock(chatID int64, fn func() error) error {
	cl.Lock(chatID)
	defer cl.Unlock(chatID)
	return fn()
}
