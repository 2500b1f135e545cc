package eventloop

import (
	"time"

	"github.com/PolySat/libproc-sub000/clock"
)

// Option configures a Loop at construction time.
type Option func(*Loop)

// WithLogger sets the Logger used for internal diagnostics (timer panics,
// fd registration overwrites, poller errors). The default is NoOpLogger.
func WithLogger(l Logger) Option {
	return func(loop *Loop) { loop.log = l }
}

// WithMaxFDs sets the size of the fd registration table, bounding the
// highest file descriptor the loop can watch. The default is 4096, ample
// for a process that owns a handful of sockets and pipes; raise it for a
// process supervising many children's stdio pipes.
func WithMaxFDs(n int) Option {
	return func(loop *Loop) { loop.maxFDs = n }
}

// WithClock overrides the time source used for timer scheduling and poll
// deadlines, and the one tick's Block call delegates to for the actual
// blocking decision. The default is clock.NewReal(). Passing a
// clock.Virtual or clock.SharedVirtual genuinely drives the reactor against
// simulated time, rather than merely being visible to application code.
func WithClock(c clock.Clock) Option {
	return func(loop *Loop) { loop.clock = c }
}

// WithPollTimeout sets how far ahead of now a tick blocks when no timers
// are scheduled (default 5s), bounding how quickly the loop notices Exit()
// being called from another goroutine when idle. It does not shorten the
// wait when a timer is scheduled.
func WithPollTimeout(d time.Duration) Option {
	return func(loop *Loop) { loop.idleTimeout = d }
}
