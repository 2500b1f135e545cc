// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package clock provides the pluggable time sources the process runtime
// schedules against: a real wall clock, a debugger-pausable wrapper around
// it, a local virtual clock for deterministic single-process simulation,
// and a cross-process shared virtual clock for multi-process simulations
// that need strict ordering.
package clock

import "time"

// Instant is a monotonic timestamp: a duration since some unspecified
// reference point that is only ever meaningful relative to other Instants
// produced by the same Clock. It is never derived from wall-clock time
// directly (see Clock.WallNow for that).
type Instant = time.Duration

// Clock is the time source the event loop and command engine schedule
// against.
type Clock interface {
	// Now returns the current monotonic instant.
	Now() Instant
	// WallNow returns the current wall-clock time, for logging and
	// critical-state timestamps; it has no bearing on scheduling.
	WallNow() time.Time
	// Block waits for either deadline to elapse or a readiness condition
	// observed by ready, whichever comes first. deadline is nil to block
	// indefinitely absent any other event. ready is handed a millisecond
	// timeout (-1 for indefinite) and is responsible for actually blocking
	// (typically a poller Wait call); Block's job is only to compute that
	// timeout and, for virtual clocks, to advance simulated time.
	Block(deadline *Instant, ready func(timeoutMs int) error) error
}

// Real is the default Clock, backed directly by the Go runtime's monotonic
// clock reading.
type Real struct {
	start time.Time
}

// NewReal constructs a Real clock with its reference point fixed at the
// moment of the call.
func NewReal() *Real {
	return &Real{start: time.Now()}
}

// Now returns time.Since(start) for the clock's fixed reference point,
// which uses the runtime's monotonic reading internally.
func (r *Real) Now() Instant { return time.Since(r.start) }

// WallNow returns time.Now().
func (r *Real) WallNow() time.Time { return time.Now() }

// Block computes a millisecond timeout from deadline (nil means
// indefinite, matching epoll's -1) and invokes ready.
func (r *Real) Block(deadline *Instant, ready func(timeoutMs int) error) error {
	return ready(deadlineToMillis(r, deadline))
}

// deadlineToMillis converts a Clock-relative deadline into the millisecond
// timeout convention poll/epoll use: -1 for indefinite, 0 for "don't
// block", clamped to never go negative for an already-elapsed deadline.
func deadlineToMillis(c Clock, deadline *Instant) int {
	if deadline == nil {
		return -1
	}
	delta := *deadline - c.Now()
	if delta <= 0 {
		return 0
	}
	ms := delta.Milliseconds()
	if ms > int64(int(^uint(0)>>1)) {
		return int(^uint(0) >> 1) // clamp to max int, practically unreachable
	}
	return int(ms)
}
