package eventloop

import "errors"

// Standard errors returned by Loop methods.
var (
	// ErrLoopAlreadyRunning is returned when Run is called on a loop that is
	// already running.
	ErrLoopAlreadyRunning = errors.New("eventloop: loop is already running")

	// ErrLoopTerminated is returned when operations are attempted on a loop
	// that has already exited Run.
	ErrLoopTerminated = errors.New("eventloop: loop has terminated")

	// ErrReentrantRun is not returned by Loop.Run: a Run call from within a
	// callback on the loop goroutine gets ErrLoopAlreadyRunning.
	ErrReentrantRun = errors.New("eventloop: cannot call Run from within the loop")

	// ErrFDOutOfRange is returned when a file descriptor exceeds the loop's
	// configured table size.
	ErrFDOutOfRange = errors.New("eventloop: fd out of range")

	// ErrFDNotRegistered is returned by RemoveFd for an fd with no
	// registration.
	ErrFDNotRegistered = errors.New("eventloop: fd not registered")

	// ErrTimerNotFound is returned by UpdateTimer for a handle that is not
	// (or is no longer) present in the timer queue.
	ErrTimerNotFound = errors.New("eventloop: timer not found")

	// ErrPollerClosed names a closed poller; the built-in pollers do not
	// return it.
	ErrPollerClosed = errors.New("eventloop: poller closed")
)
