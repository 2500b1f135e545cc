//go:build !linux

package eventloop

import (
	"time"

	"golang.org/x/sys/unix"
)

// pollPoller is a portable fallback multiplexer built on poll(2), used on
// non-Linux unix targets where epoll is unavailable. The reactor itself
// only ships to embedded Linux; this exists for development off-target.
type pollPoller struct {
	fds      []unix.PollFd
	interest map[int]IOEvents
}

func newPoller() (poller, error) {
	return &pollPoller{interest: make(map[int]IOEvents)}, nil
}

func eventsToPoll(e IOEvents) int16 {
	var m int16
	if e.Has(EventRead) {
		m |= unix.POLLIN
	}
	if e.Has(EventWrite) {
		m |= unix.POLLOUT
	}
	return m
}

func pollToEvents(m int16) IOEvents {
	var e IOEvents
	if m&unix.POLLIN != 0 {
		e |= EventRead
	}
	if m&unix.POLLOUT != 0 {
		e |= EventWrite
	}
	if m&unix.POLLERR != 0 {
		e |= EventError
	}
	if m&unix.POLLHUP != 0 {
		e |= EventHangup
	}
	return e
}

func (p *pollPoller) Add(fd int, interest IOEvents) error {
	p.interest[fd] = interest
	return nil
}

func (p *pollPoller) Modify(fd int, interest IOEvents) error {
	p.interest[fd] = interest
	return nil
}

func (p *pollPoller) Remove(fd int) error {
	delete(p.interest, fd)
	return nil
}

func (p *pollPoller) Wait(dst []readyFd, timeout time.Duration) ([]readyFd, error) {
	p.fds = p.fds[:0]
	for fd, interest := range p.interest {
		p.fds = append(p.fds, unix.PollFd{Fd: int32(fd), Events: eventsToPoll(interest)})
	}

	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	n, err := unix.Poll(p.fds, ms)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, err
	}
	if n == 0 {
		return dst, nil
	}
	for _, pfd := range p.fds {
		if pfd.Revents == 0 {
			continue
		}
		dst = append(dst, readyFd{fd: int(pfd.Fd), events: pollToEvents(pfd.Revents)})
	}
	return dst, nil
}

func (p *pollPoller) Close() error { return nil }
