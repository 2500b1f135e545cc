package eventloop

import (
	"os"
	"testing"
	"time"

	"github.com/PolySat/libproc-sub000/clock"
)

func TestRunFiresTimerAndExits(t *testing.T) {
	l := newTestLoop(t)
	fired := make(chan struct{})
	l.AddTimer(5*time.Millisecond, func(arg any) TimerResult {
		close(fired)
		l.Exit()
		return Remove
	}, nil)

	done := make(chan error, 1)
	go func() { done <- l.Run() }()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("timer never fired")
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run never returned after Exit")
	}
	if l.State() != StateTerminated {
		t.Fatalf("State() = %v, want StateTerminated", l.State())
	}
}

func TestRunWithVirtualClockFiresTimerFast(t *testing.T) {
	v := clock.NewVirtual()
	l, err := New(WithClock(v))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })

	fired := make(chan struct{})
	l.AddTimer(time.Hour, func(arg any) TimerResult {
		close(fired)
		l.Exit()
		return Remove
	}, nil)

	done := make(chan error, 1)
	go func() { done <- l.Run() }()

	// An hour-long timer must still complete almost instantly in wall-clock
	// terms: Loop.tick delegates blocking to clock.Clock.Block, and an
	// unpaused Virtual clock self-advances straight to the next deadline
	// instead of actually sleeping.
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("virtual-clock-driven timer never fired")
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run never returned after Exit")
	}
}

func TestRunRejectsReentrantStart(t *testing.T) {
	l := newTestLoop(t)
	started := make(chan struct{})
	l.AddTimer(5*time.Millisecond, func(arg any) TimerResult {
		close(started)
		return Remove
	}, nil)

	done := make(chan error, 1)
	go func() { done <- l.Run() }()
	<-started
	time.Sleep(5 * time.Millisecond)

	if err := l.Run(); err != ErrLoopAlreadyRunning {
		t.Fatalf("second Run() = %v, want ErrLoopAlreadyRunning", err)
	}
	l.Exit()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run never returned after Exit")
	}
}

func TestFdBecomesReadable(t *testing.T) {
	l := newTestLoop(t)
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer w.Close()
	defer r.Close()

	gotData := make(chan []byte, 1)
	if err := l.AddFd(int(r.Fd()), EventRead, func(fd int, events IOEvents) {
		buf := make([]byte, 16)
		n, _ := readFD(fd, buf)
		gotData <- buf[:n]
		l.Exit()
	}); err != nil {
		t.Fatalf("AddFd: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- l.Run() }()

	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case data := <-gotData:
		if string(data) != "hello" {
			t.Fatalf("got %q, want %q", data, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("fd callback never fired")
	}
	<-done
}

func TestDispatchRoundRobinRotatesStart(t *testing.T) {
	l := newTestLoop(t)
	ready := []readyFd{{fd: 1}, {fd: 2}, {fd: 3}}
	l.fds[1] = &fdState{fd: 1}
	l.fds[2] = &fdState{fd: 2}
	l.fds[3] = &fdState{fd: 3}

	var calls [][]int
	for _, fd := range []int{1, 2, 3} {
		fd := fd
		l.fds[fd].read = func(f int, e IOEvents) {
			calls[len(calls)-1] = append(calls[len(calls)-1], f)
		}
	}
	for i := 0; i < 3; i++ {
		calls = append(calls, nil)
		for j := range ready {
			ready[j].events = EventRead
		}
		l.dispatch(ready)
	}

	// Each tick's dispatch order should start one position further along
	// than the previous tick's, demonstrating the rotation that prevents
	// a fixed fd ordering from starving later entries.
	if calls[0][0] == calls[1][0] && calls[1][0] == calls[2][0] {
		t.Fatalf("dispatch start position never rotated: %v", calls)
	}
}

func TestSignalBridgeDrain(t *testing.T) {
	b, err := NewSignalBridge(os.Interrupt)
	if err != nil {
		t.Fatalf("NewSignalBridge: %v", err)
	}
	defer b.Close()

	l := newTestLoop(t)
	drained := make(chan []os.Signal, 1)
	if err := l.AddFd(b.Fd(), EventRead, func(fd int, events IOEvents) {
		drained <- b.Drain()
		l.Exit()
	}); err != nil {
		t.Fatalf("AddFd: %v", err)
	}

	// Directly exercise the relay path rather than raising a real OS
	// signal (which would affect the whole test binary): push straight
	// onto the bridge's channel, same as signal.Notify would.
	b.ch <- os.Interrupt

	done := make(chan error, 1)
	go func() { done <- l.Run() }()

	select {
	case sigs := <-drained:
		if len(sigs) != 1 || sigs[0] != os.Interrupt {
			t.Fatalf("Drain() = %v, want [os.Interrupt]", sigs)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("signal never observed by loop")
	}
	<-done
}
