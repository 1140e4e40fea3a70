package engine

import (
	"math/rand"
	"time"
)

// TurnMode identifies which turn-rotation algorithm a scheduler uses.
type TurnMode string

const (
	// ModeRotation - a shuffled fixed order with skip-to-back-of-queue.
	ModeRotation TurnMode = "rotation"
	// ModeDraw - random draws without repeats within a cycle.
	ModeDraw TurnMode = "draw"
)

// TurnScheduler decides who acts next. Implementations are not safe for
// concurrent use; callers serialize access per chat.
//
// Next returns ok=false once the participant list is empty (everyone
// eliminated); callers must end the session rather than loop.
// Requirements: 3.1, 3.2
type TurnScheduler interface {
	// Next returns the current turn owner without consuming the turn.
	Next() (int64, bool)
	// Advance moves past the current turn owner. A skip additionally sends
	// the owner to the back of a fixed rotation.
	Advance(skipped bool)
	// Remove eliminates a participant from all future turns.
	Remove(id int64)
	// Len returns the number of remaining participants.
	Len() int
	// Mode reports the algorithm in use.
	Mode() TurnMode
}

// NewTurnScheduler picks the rotation algorithm from the participant count
// and the size of the shared resource pool (grid squares, bag items): a
// shuffled fixed rotation when every participant fits in one pass of the
// pool, otherwise random draws that guarantee no repeat within a cycle.
// A nil rng falls back to a time-seeded one.
func NewTurnScheduler(participants []int64, poolSize int, rng *rand.Rand) TurnScheduler {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	ids := make([]int64, len(participants))
	copy(ids, participants)

	if len(ids) <= poolSize {
		return newRotation(ids, rng)
	}
	return newRandomDraw(ids, rng)
}

// rotation is a shuffled fixed order with a current index. A skipped owner
// moves to the back of the queue. The owner is recorded at Next rather than
// recomputed from the index, because eliminations can shift the list under
// the index between Next and Advance.
type rotation struct {
	rng      *rand.Rand
	order    []int64
	idx      int
	owner    int64
	ownerSet bool
}

func newRotation(ids []int64, rng *rand.Rand) *rotation {
	rng.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})
	return &rotation{rng: rng, order: ids}
}

func (r *rotation) Next() (int64, bool) {
	if len(r.order) == 0 {
		return 0, false
	}
	if r.idx >= len(r.order) {
		r.idx = 0
	}
	r.owner = r.order[r.idx]
	r.ownerSet = true
	return r.owner, true
}

func (r *rotation) Advance(skipped bool) {
	if len(r.order) == 0 {
		return
	}

	if !skipped || !r.ownerSet {
		r.idx = (r.idx + 1) % len(r.order)
		r.ownerSet = false
		return
	}

	// Skip: move the recorded owner to the back and point the index at
	// the participant that was up next, wrapping when the owner was
	// already last.
	pos := r.find(r.owner)
	if pos < 0 {
		r.idx = (r.idx + 1) % len(r.order)
		r.ownerSet = false
		return
	}
	wasLast := pos == len(r.order)-1
	r.order = append(r.order[:pos], r.order[pos+1:]...)
	r.order = append(r.order, r.owner)
	if wasLast {
		r.idx = 0
	} else {
		r.idx = pos
	}
	r.ownerSet = false
}

func (r *rotation) Remove(id int64) {
	pos := r.find(id)
	if pos < 0 {
		return
	}
	r.order = append(r.order[:pos], r.order[pos+1:]...)
	if pos < r.idx {
		r.idx--
	}
	if r.idx >= len(r.order) {
		r.idx = 0
	}
	if r.owner == id {
		r.ownerSet = false
	}
}

func (r *rotation) find(id int64) int {
	for i, v := range r.order {
		if v == id {
			return i
		}
	}
	return -1
}

func (r *rotation) Len() int       { return len(r.order) }
func (r *rotation) Mode() TurnMode { return ModeRotation }

// randomDraw keeps a shuffled stack of remaining candidates for the current
// cycle. The stack refills from the full participant list only when
// exhausted, never mid-draw, so nobody acts twice within a cycle while
// repeats across cycles stay possible.
type randomDraw struct {
	rng       *rand.Rand
	all       []int64
	remaining []int64
}

func newRandomDraw(ids []int64, rng *rand.Rand) *randomDraw {
	return &randomDraw{rng: rng, all: ids}
}

func (d *randomDraw) Next() (int64, bool) {
	if len(d.all) == 0 {
		return 0, false
	}
	if len(d.remaining) == 0 {
		d.refill()
	}
	return d.remaining[len(d.remaining)-1], true
}

func (d *randomDraw) Advance(skipped bool) {
	if len(d.remaining) > 0 {
		d.remaining = d.remaining[:len(d.remaining)-1]
	}
}

func (d *randomDraw) Remove(id int64) {
	for i, v := range d.all {
		if v == id {
			d.all = append(d.all[:i], d.all[i+1:]...)
			break
		}
	}
	for i, v := range d.remaining {
		if v == id {
			d.remaining = append(d.remaining[:i], d.remaining[i+1:]...)
			break
		}
	}
}

func (d *randomDraw) refill() {
	d.remaining = make([]int64, len(d.all))
	copy(d.remaining, d.all)
	d.rng.Shuffle(len(d.remaining), func(i, j int) {
		d.remaining[i], d.remaining[j] = d.remaining[j], d.remaining[i]
	})
}

func (d *randomDraw) Len() int       { return len(d.all) }
func (d *randomDraw) Mode() TurnMode { return ModeDraw }
