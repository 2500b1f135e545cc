package eventloop

import (
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"
)

// SignalBridge delivers OS signals into the loop via the classic self-pipe
// trick: os/signal.Notify hands signals to a small Go-runtime goroutine,
// which writes a single byte per signal to the write end of a pipe whose
// read end is registered with the loop like any other fd. The loop
// goroutine never runs signal-handling code directly; it just observes the
// pipe becoming readable.
type SignalBridge struct {
	ch   chan os.Signal
	r, w int
	done chan struct{}

	mu      sync.Mutex
	pending []os.Signal
}

// NewSignalBridge creates a self-pipe and starts relaying sigs into it. The
// caller must register Fd() with a Loop (AddFd with EventRead) and call
// Drain from that callback; Close tears down the pipe and stops relaying.
func NewSignalBridge(sigs ...os.Signal) (*SignalBridge, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, err
	}
	b := &SignalBridge{
		ch:   make(chan os.Signal, 16),
		r:    fds[0],
		w:    fds[1],
		done: make(chan struct{}),
	}
	signal.Notify(b.ch, sigs...)
	go b.relay()
	return b, nil
}

func (b *SignalBridge) relay() {
	for {
		select {
		case <-b.done:
			return
		case sig, ok := <-b.ch:
			if !ok {
				return
			}
			b.mu.Lock()
			b.pending = append(b.pending, sig)
			b.mu.Unlock()
			// The byte value itself carries no information; Drain returns
			// the accumulated pending slice. A single sentinel byte is
			// enough to wake the loop's poller.
			_, _ = writeFD(b.w, []byte{1})
		}
	}
}

// Fd returns the read end to register with Loop.AddFd.
func (b *SignalBridge) Fd() int { return b.r }

// Drain empties the pipe's read end (call from the AddFd callback) and
// returns any signals that have been delivered since the last Drain.
func (b *SignalBridge) Drain() []os.Signal {
	var buf [64]byte
	for {
		_, err := readFD(b.r, buf[:])
		if err != nil {
			break
		}
	}
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()
	return pending
}

// Close stops relaying signals and releases the pipe.
func (b *SignalBridge) Close() error {
	signal.Stop(b.ch)
	close(b.done)
	_ = closeFD(b.w)
	return closeFD(b.r)
}
