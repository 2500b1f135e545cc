package eventloop

import "sync/atomic"

// LoopState describes where a Loop is in its lifecycle.
type LoopState int32

const (
	// StateIdle is the state of a Loop that has been constructed but not
	// yet handed to Run.
	StateIdle LoopState = iota
	// StateRunning is the state of a Loop actively ticking inside Run.
	StateRunning
	// StateTerminating is set by Exit (or a fatal poll error); the loop
	// notices it at the top of its next iteration and stops.
	StateTerminating
	// StateTerminated is the terminal state once Run has returned.
	StateTerminated
)

// String implements fmt.Stringer.
func (s LoopState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// loopState is a small atomic wrapper so State() and Exit() may safely be
// called from outside the loop goroutine (e.g. a signal handler goroutine,
// or a supervised-child reaper) without requiring a mutex.
type loopState struct {
	v atomic.Int32
}

func (s *loopState) Load() LoopState           { return LoopState(s.v.Load()) }
func (s *loopState) Store(v LoopState)         { s.v.Store(int32(v)) }
func (s *loopState) CAS(from, to LoopState) bool {
	return s.v.CompareAndSwap(int32(from), int32(to))
}
