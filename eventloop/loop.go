package eventloop

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/PolySat/libproc-sub000/clock"
)

var nextLoopID atomic.Uint64

// Loop is a single-threaded reactor: a timer priority queue plus a
// file-descriptor multiplexer, driven entirely by calls to Run from one
// goroutine. All other methods (AddTimer, AddFd, RemoveFd, ...) are only
// safe to call from that same goroutine, with the sole exception of Exit
// and the signal bridge, which are designed to be poked from elsewhere.
type Loop struct {
	id     uint64
	log    Logger
	maxFDs int
	clock  clock.Clock

	idleTimeout time.Duration

	timers   timerHeap
	timerSeq uint64

	fds    []*fdState
	rrFrom int // round-robin start index into fds, rotated each tick

	poll poller

	state loopState

	readyBuf []readyFd
}

// New constructs a Loop. The returned Loop owns a platform poller (epoll on
// Linux, poll(2) elsewhere) until Run returns or Close is called.
func New(opts ...Option) (*Loop, error) {
	l := &Loop{
		id:          nextLoopID.Add(1),
		log:         NoOpLogger{},
		maxFDs:      4096,
		clock:       clock.NewReal(),
		idleTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}

	p, err := newPoller()
	if err != nil {
		return nil, fmt.Errorf("eventloop: new poller: %w", err)
	}
	l.poll = p
	l.fds = make([]*fdState, l.maxFDs)
	return l, nil
}

// ID returns a value unique among Loops in this process, useful for
// correlating log lines from multiple loops.
func (l *Loop) ID() uint64 { return l.id }

// State returns the loop's current lifecycle state. Safe to call from any
// goroutine.
func (l *Loop) State() LoopState { return l.state.Load() }

func (l *Loop) clockNow() clock.Instant { return l.clock.Now() }

// Exit requests that the loop stop at the start of its next iteration.
// Safe to call from any goroutine, including from within a timer or fd
// callback running on the loop goroutine itself.
func (l *Loop) Exit() {
	for {
		cur := l.state.Load()
		if cur == StateTerminating || cur == StateTerminated {
			return
		}
		if l.state.CAS(cur, StateTerminating) {
			return
		}
	}
}

// Close releases the poller's OS resources. Call after Run has returned.
func (l *Loop) Close() error {
	return l.poll.Close()
}

// Run drives the reactor until Exit is called or a fatal poller error
// occurs, returning that error (nil on a clean Exit-triggered stop). Run is
// not reentrant: calling it again concurrently, or from within a callback
// it is itself driving, returns an error without doing anything.
func (l *Loop) Run() error {
	if !l.state.CAS(StateIdle, StateRunning) {
		if l.state.Load() == StateRunning {
			return ErrLoopAlreadyRunning
		}
		return ErrLoopTerminated
	}
	defer l.state.Store(StateTerminated)

	for l.state.Load() == StateRunning {
		if err := l.tick(); err != nil {
			l.log.Log(LogEntry{Level: LevelError, Category: "poll", LoopID: l.id, Message: "poll failed", Err: err})
			return err
		}
	}
	return nil
}

// tick runs one iteration: fire due timers, ask the Clock to block up to
// the next timer deadline (or idleTimeout, if no timers are scheduled),
// then dispatch ready fds in round-robin order. Delegating the actual
// blocking to clock.Clock.Block (rather than computing a poll timeout
// locally) is what lets a clock.Virtual or clock.SharedVirtual genuinely
// drive the reactor instead of merely being consulted for Now().
func (l *Loop) tick() error {
	now := l.clockNow()
	l.runTimers(now)

	if l.state.Load() != StateRunning {
		return nil
	}

	deadline := l.nextDeadline()
	if deadline == nil {
		idle := l.clockNow() + clock.Instant(l.idleTimeout)
		deadline = &idle
	}

	var ready []readyFd
	err := l.clock.Block(deadline, func(timeoutMs int) error {
		l.readyBuf = l.readyBuf[:0]
		r, err := l.poll.Wait(l.readyBuf, millisToDuration(timeoutMs))
		if err != nil {
			return err
		}
		ready = r
		return nil
	})
	if err != nil {
		return err
	}
	l.readyBuf = ready

	l.dispatch(ready)
	return nil
}

// millisToDuration converts the millisecond timeout convention
// clock.Clock.Block's ready function uses (-1 indefinite) into the
// time.Duration poller.Wait expects (any negative duration blocks
// indefinitely).
func millisToDuration(ms int) time.Duration {
	if ms < 0 {
		return -1
	}
	return time.Duration(ms) * time.Millisecond
}

// dispatch invokes callbacks for every ready fd, rotating the round-robin
// start position each tick so that no single fd (or burst of fds early in
// the table) can starve the rest under sustained load.
func (l *Loop) dispatch(ready []readyFd) {
	n := len(ready)
	if n == 0 {
		return
	}
	start := l.rrFrom % n
	for i := 0; i < n; i++ {
		r := ready[(start+i)%n]
		l.dispatchOne(r)
	}
	l.rrFrom++
}

func (l *Loop) dispatchOne(r readyFd) {
	s := l.fds[r.fd]
	if s == nil {
		// Already unregistered this tick (e.g. a prior callback closed it);
		// nothing to do.
		return
	}

	if r.events.Has(EventHangup) || r.events.Has(EventError) {
		if s.errFn != nil {
			l.safeCallFd(s.errFn, r.fd, r.events)
		}
		if r.events.Has(EventHangup) && s.read == nil && s.write == nil {
			l.evictFd(r.fd)
			return
		}
	}
	if r.events.Has(EventRead) && s.read != nil {
		l.safeCallFd(s.read, r.fd, r.events)
	}
	if r.events.Has(EventWrite) && l.fds[r.fd] != nil && l.fds[r.fd].write != nil {
		l.safeCallFd(l.fds[r.fd].write, r.fd, r.events)
	}
}

func (l *Loop) safeCallFd(fn FdCallback, fd int, events IOEvents) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Log(LogEntry{
				Level: LevelError, Category: "fd", LoopID: l.id,
				Message: "fd callback panicked",
				Err:     fmt.Errorf("%v", r),
				Context: map[string]any{"fd": fd},
			})
		}
	}()
	fn(fd, events)
}

func (l *Loop) safeCallTimer(e *timerEntry) (result TimerResult) {
	result = Remove
	defer func() {
		if r := recover(); r != nil {
			l.log.Log(LogEntry{
				Level: LevelError, Category: "timer", LoopID: l.id,
				Message: "timer callback panicked",
				Err:     fmt.Errorf("%v", r),
			})
		}
	}()
	return e.callback(e.arg)
}
