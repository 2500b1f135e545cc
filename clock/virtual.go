package clock

import (
	"sync/atomic"
	"time"
)

// Virtual is a local (single-process) simulated clock: Now() reports a
// counter the clock itself advances, rather than real elapsed wall time,
// so timer-driven logic can be exercised deterministically and instantly
// in tests.
type Virtual struct {
	counter atomic.Int64 // nanoseconds
	paused  atomic.Bool
	wallEpoch time.Time
}

// NewVirtual constructs a Virtual clock starting at instant zero.
func NewVirtual() *Virtual {
	return &Virtual{wallEpoch: time.Now()}
}

// Now returns the current simulated instant.
func (v *Virtual) Now() Instant { return Instant(v.counter.Load()) }

// WallNow maps the simulated instant onto a wall-clock time anchored at
// construction, purely for log-line readability; it has no bearing on
// scheduling.
func (v *Virtual) WallNow() time.Time { return v.wallEpoch.Add(v.Now()) }

// Advance moves the simulated clock forward by d (d must be >= 0).
func (v *Virtual) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	v.counter.Add(int64(d))
}

// SetPaused freezes (true) or unfreezes (false) automatic advancement in
// Block. An external driver (e.g. a test) can still call Advance directly
// regardless of this flag.
func (v *Virtual) SetPaused(paused bool) { v.paused.Store(paused) }

// Paused reports the current pause state.
func (v *Virtual) Paused() bool { return v.paused.Load() }

// Block advances the virtual clock to deadline and returns immediately
// (timeout 0, so any already-ready fds still get serviced) when not
// paused; while paused it leaves the clock where it is and passes the
// deadline through to ready using the normal elapsed-time computation, so
// an external driver calling Advance (e.g. a test) remains free to move the
// counter out from under a paused debug session.
func (v *Virtual) Block(deadline *Instant, ready func(timeoutMs int) error) error {
	if v.paused.Load() {
		return ready(deadlineToMillis(v, deadline))
	}
	if deadline != nil {
		if cur := v.Now(); *deadline > cur {
			v.counter.Store(int64(*deadline))
		}
	}
	return ready(0)
}
