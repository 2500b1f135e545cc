package clock

import (
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// DebuggerStoppedEnv is the environment variable the original runtime's
// debugger integration sets to STOPPED while a process is halted at a
// breakpoint, so its virtual notion of elapsed time doesn't balloon across
// the stop.
const DebuggerStoppedEnv = "LIBPROC_DEBUGGER"

// DebuggerStoppedValue is the value of DebuggerStoppedEnv that triggers an
// immediate Pause on construction.
const DebuggerStoppedValue = "STOPPED"

// RealDebug wraps Real, subtracting accumulated paused duration from every
// Now() reading so a process halted under a debugger doesn't observe a
// large jump in elapsed time (and doesn't fire a flood of "missed" timers)
// once it resumes.
type RealDebug struct {
	real        *Real
	pauseOffset atomic.Int64 // nanoseconds subtracted from Real.Now()

	mu       sync.Mutex
	paused   bool
	pausedAt time.Time
}

// NewRealDebug constructs a RealDebug clock. If DebuggerStoppedEnv is set
// to DebuggerStoppedValue, it starts already paused, matching a process
// launched under the debugger with a breakpoint on its first instruction.
func NewRealDebug() *RealDebug {
	d := &RealDebug{real: NewReal()}
	if os.Getenv(DebuggerStoppedEnv) == DebuggerStoppedValue {
		d.Pause()
	}
	return d
}

// Now returns the underlying Real clock's reading minus accumulated pause
// time; while paused it stays frozen at the pause instant.
func (d *RealDebug) Now() Instant {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.paused {
		return Instant(d.pausedAt.Sub(d.real.start)) - Instant(d.pauseOffset.Load())
	}
	return d.real.Now() - Instant(d.pauseOffset.Load())
}

// WallNow returns the underlying Real clock's wall-clock reading,
// unaffected by pausing.
func (d *RealDebug) WallNow() time.Time { return d.real.WallNow() }

// Block behaves like Real.Block, computing a millisecond timeout from the
// (pause-adjusted) current instant.
func (d *RealDebug) Block(deadline *Instant, ready func(timeoutMs int) error) error {
	return ready(deadlineToMillis(d, deadline))
}

// Pause begins accumulating elapsed real time into the pause offset. A
// second call while already paused is a no-op.
func (d *RealDebug) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.paused {
		return
	}
	d.paused = true
	d.pausedAt = d.real.WallNow()
}

// Resume stops accumulating paused time, folding the duration since the
// matching Pause into the offset subtracted from future Now() calls. A
// call while not paused is a no-op.
func (d *RealDebug) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.paused {
		return
	}
	d.paused = false
	d.pauseOffset.Add(int64(d.real.WallNow().Sub(d.pausedAt)))
}

// Paused reports whether the clock is currently accumulating pause time.
func (d *RealDebug) Paused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}
