// Package timer implements the per-worker hierarchical timing wheel: four
// levels of 255 slots each, 10ms tick precision, keyed by absolute
// millisecond expiry. One-shot only: a caller wanting a repeating timer
// reschedules itself when its timer fires.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package timer

import "github.com/eapache/queue"

const (
	// Levels is the number of cascading wheel levels.
	Levels = 4
	// SlotsPerLevel is the slot count of each level (fits a single byte).
	SlotsPerLevel = 255
	// PrecisionMs is the tick precision in milliseconds.
	PrecisionMs int64 = 10
)

// Context is the payload carried by a scheduled timer, opaque to the wheel
// itself. The wheel only ever hands contexts back through Fire.
type Context struct {
	ServiceID uint32
	TimerID   int64
}

// entry pairs a context with the absolute expiry it was scheduled for; kept
// so cascading can recompute remaining delta against the wheel's current
// notion of "now" rather than re-deriving it from the slot key alone.
type entry struct {
	ctx      Context
	expireAt int64
}

type level struct {
	slots [SlotsPerLevel]*queue.Queue
	head  int
}

func newLevel() *level {
	l := &level{}
	for i := range l.slots {
		l.slots[i] = queue.New()
	}
	return l
}

// Wheel is a single per-worker hierarchical timing wheel instance.
type Wheel struct {
	levels   [Levels]*level
	now      int64
	lastTick int64
	fire     func(Context)
}

// New constructs a Wheel anchored at startMs (the worker's notion of "now"
// at construction time) that invokes fire for every expired timer.
func New(startMs int64, fire func(Context)) *Wheel {
	w := &Wheel{now: startMs, lastTick: startMs, fire: fire}
	for i := range w.levels {
		w.levels[i] = newLevel()
	}
	return w
}

// Now returns the wheel's cached notion of the current time.
func (w *Wheel) Now() int64 { return w.now }

// Add schedules ctx to fire at expireAt (absolute ms):
// delta = max(1, (expireAt-now)/10), then the delta is divided by
// SlotsPerLevel level by level until it fits within one level's rotation,
// and the context (with its absolute expiry) is appended to that level's
// bucket. No per-level slot key is stored; cascading recomputes placement
// from the stored expiry.
func (w *Wheel) Add(expireAt int64, ctx Context) {
	delta := (expireAt - w.now) / PrecisionMs
	if delta < 1 {
		delta = 1
	}
	w.schedule(uint64(delta), entry{ctx: ctx, expireAt: expireAt})
}

func (w *Wheel) schedule(delta uint64, e entry) {
	for i := 0; i < Levels; i++ {
		l := w.levels[i]
		// slot offset within this level, relative to its current head
		pos := (uint64(l.head) + delta - 1) % SlotsPerLevel
		rounds := (uint64(l.head) + delta - 1) / SlotsPerLevel
		if rounds == 0 {
			l.slots[pos].Add(e)
			return
		}
		delta = rounds
	}
	// Exhausted all levels (expiry far beyond the wheel's total span): park
	// in the last level's final slot; it will keep cascading down on
	// subsequent rotations until it fires.
	last := w.levels[Levels-1]
	last.slots[SlotsPerLevel-1].Add(e)
}

// Update advances the wheel to nowMs, firing every timer whose expiry has
// been reached. A single call may fire multiple ticks worth of timers if
// nowMs has advanced by more than one tick since the last Update.
func (w *Wheel) Update(nowMs int64) {
	elapsed := nowMs - w.lastTick
	w.lastTick = nowMs
	ticks := elapsed / PrecisionMs
	for i := int64(0); i < ticks; i++ {
		w.tick()
	}
}

func (w *Wheel) tick() {
	w.now += PrecisionMs
	l0 := w.levels[0]
	bucket := l0.slots[l0.head]
	l0.slots[l0.head] = queue.New()
	advanceHead(l0)

	for bucket.Length() > 0 {
		e := bucket.Remove().(entry)
		if w.fire != nil {
			w.fire(e.ctx)
		}
	}

	// Cascade: whenever a level completes a full rotation (head wraps to 0),
	// pour the next level's head bucket back down.
	for i := 0; i < Levels-1; i++ {
		cur := w.levels[i]
		if cur.head != 0 {
			break
		}
		next := w.levels[i+1]
		nb := next.slots[next.head]
		next.slots[next.head] = queue.New()
		advanceHead(next)
		for nb.Length() > 0 {
			// Re-derive the remaining delta from the stored absolute expiry
			// and re-run placement from level 0 rather than unpacking a
			// packed slot-byte key; schedule() lands the entry at the same
			// slot either way since it's a pure function of delta.
			e := nb.Remove().(entry)
			remaining := (e.expireAt - w.now) / PrecisionMs
			if remaining < 1 {
				remaining = 1
			}
			w.schedule(uint64(remaining), e)
		}
	}
}

func advanceHead(l *level) {
	l.head = (l.head + 1) % SlotsPerLevel
}
