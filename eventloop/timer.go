package eventloop

import (
	"container/heap"
	"time"

	"github.com/PolySat/libproc-sub000/clock"
)

// TimerResult is returned by a TimerFunc to tell the loop whether to keep
// the registration (rescheduling it period later) or destroy it.
type TimerResult int

const (
	// Keep reschedules the timer for nextFireAt + period (period may be 0,
	// making it a one-shot repeated only on request).
	Keep TimerResult = iota
	// Remove destroys the timer registration after the callback returns.
	Remove
)

// TimerFunc is a scheduled-event callback. arg is the value passed to
// AddTimer, returned unmodified on every firing.
type TimerFunc func(arg any) TimerResult

// TimerHandle identifies a scheduled event for RemoveTimer/UpdateTimer. It
// is opaque and stable for the lifetime of the registration.
type TimerHandle struct {
	entry *timerEntry
}

// Valid reports whether the handle still refers to a live registration.
func (h TimerHandle) Valid() bool { return h.entry != nil }

// timerEntry is a single scheduled event. Ownership lives with the Loop's
// timerHeap from insertion to removal; callbacks only ever see the opaque
// TimerHandle.
type timerEntry struct {
	callback    TimerFunc
	arg         any
	scheduledAt clock.Instant // instant the timer was (re)armed from
	period      time.Duration // 0 for a one-shot unless explicitly repeated
	nextFireAt  clock.Instant
	seq         uint64 // insertion order, for stable tie-break
	index       int    // back-pointer into the heap slice; -1 when not queued
}

// timerHeap is a min-heap on nextFireAt, with insertion-order tie-break so
// that firing order is deterministic for timers sharing a deadline.
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].nextFireAt == h[j].nextFireAt {
		return h[i].seq < h[j].seq
	}
	return h[i].nextFireAt < h[j].nextFireAt
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// AddTimer schedules fn to run after delay, with arg passed through on every
// firing. If fn returns Keep the timer is rescheduled for delay again
// (effectively a periodic timer of that period); use AddTimerRepeating to
// give an initial delay distinct from the repeat period.
func (l *Loop) AddTimer(delay time.Duration, fn TimerFunc, arg any) TimerHandle {
	return l.AddTimerRepeating(delay, delay, fn, arg)
}

// AddTimerRepeating schedules fn to first run after initialDelay, and on
// every subsequent Keep result, period after the previous nextFireAt (never
// drifting relative to wall-clock jitter in callback execution time).
func (l *Loop) AddTimerRepeating(initialDelay, period time.Duration, fn TimerFunc, arg any) TimerHandle {
	now := l.clockNow()
	e := &timerEntry{
		callback:    fn,
		arg:         arg,
		scheduledAt: now,
		period:      period,
		nextFireAt:  now + clock.Instant(initialDelay),
		seq:         l.nextTimerSeq(),
	}
	heap.Push(&l.timers, e)
	return TimerHandle{entry: e}
}

// RemoveTimer destroys the registration identified by h, returning its
// original argument and true, or (nil, false) if h is no longer valid.
func (l *Loop) RemoveTimer(h TimerHandle) (any, bool) {
	e := h.entry
	if e == nil || e.index < 0 || e.index >= len(l.timers) || l.timers[e.index] != e {
		return nil, false
	}
	heap.Remove(&l.timers, e.index)
	return e.arg, true
}

// UpdateTimer recomputes h's next fire time. Without partialCredit the new
// deadline is h's original scheduledAt plus newDelay (i.e. relative to when
// the timer was last (re)armed, not to now). With partialCredit, if that
// recomputed deadline has already passed, the timer instead fires
// immediately (now) rather than repeatedly catching up missed periods.
func (l *Loop) UpdateTimer(h TimerHandle, newDelay time.Duration, partialCredit bool) error {
	e := h.entry
	if e == nil || e.index < 0 || e.index >= len(l.timers) || l.timers[e.index] != e {
		return ErrTimerNotFound
	}
	now := l.clockNow()
	next := e.scheduledAt + clock.Instant(newDelay)
	if partialCredit && next <= now {
		next = now
	}
	e.nextFireAt = next
	heap.Fix(&l.timers, e.index)
	return nil
}

func (l *Loop) nextTimerSeq() uint64 {
	l.timerSeq++
	return l.timerSeq
}

// runTimers drains and fires every timer whose deadline has elapsed as of
// now, reinserting Keep results with their period added to the previous
// nextFireAt (no drift) and discarding Remove results. Timers armed by a
// callback fired in this same drain are not considered until the next tick.
func (l *Loop) runTimers(now clock.Instant) {
	for l.timers.Len() > 0 {
		next := l.timers[0]
		if next.nextFireAt > now {
			return
		}
		heap.Pop(&l.timers)

		prevFire := next.nextFireAt
		result := l.safeCallTimer(next)
		if result == Keep {
			next.nextFireAt = prevFire + clock.Instant(next.period)
			heap.Push(&l.timers, next)
		}
	}
}

// nextDeadline returns the earliest pending nextFireAt, or nil if no timers
// are scheduled.
func (l *Loop) nextDeadline() *clock.Instant {
	if l.timers.Len() == 0 {
		return nil
	}
	t := l.timers[0].nextFireAt
	return &t
}
