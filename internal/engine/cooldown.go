package engine

import "time"

// ScheduleNextRound arms the inter-round pause for a chat's session.
// announce runs immediately (best effort, typically "next round in Ns");
// when the delay elapses the live session is re-fetched by chat ID and its
// identity compared, so a session that was stopped or replaced during the
// pause is never resurrected.
// Requirements: 3.4
func ScheduleNextRound[P any](store *Store[P], scope int64, delay time.Duration, announce func(), onStart func(*Session[P])) {
	sess := store.Get(scope)
	if sess == nil {
		return
	}
	if announce != nil {
		announce()
	}

	id := sess.ID
	sess.Timers.After(delay, func() {
		live := store.Get(scope)
		if live == nil || live.ID != id {
			return
		}
		onStart(live)
	})
}
