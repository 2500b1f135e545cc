package eventloop

import "time"

// IOEvents is a bitmask of readiness conditions reported by a poller.
type IOEvents uint32

const (
	EventRead IOEvents = 1 << iota
	EventWrite
	EventError
	EventHangup
)

func (e IOEvents) Has(flag IOEvents) bool { return e&flag != 0 }

// poller is the platform multiplexer interface. Implementations are not
// goroutine-safe; all calls happen from the loop goroutine.
type poller interface {
	// Add registers fd for the given interest set.
	Add(fd int, interest IOEvents) error
	// Modify changes fd's interest set.
	Modify(fd int, interest IOEvents) error
	// Remove drops fd's registration. Removing an fd not currently
	// registered is not an error (mirrors EBADF sweep-and-evict semantics).
	Remove(fd int) error
	// Wait blocks until at least one registered fd is ready or timeout
	// elapses (a negative timeout blocks indefinitely), appending ready
	// (fd, events) pairs to dst and returning the extended slice.
	Wait(dst []readyFd, timeout time.Duration) ([]readyFd, error)
	// Close releases the poller's underlying resources.
	Close() error
}

// readyFd pairs a file descriptor with the events the poller observed.
type readyFd struct {
	fd     int
	events IOEvents
}
