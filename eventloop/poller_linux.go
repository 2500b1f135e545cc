//go:build linux

package eventloop

import (
	"time"

	"golang.org/x/sys/unix"
)

// epollPoller is the Linux poller implementation, backed by epoll(7).
type epollPoller struct {
	epfd   int
	events []unix.EpollEvent
}

func newPoller() (poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{epfd: fd, events: make([]unix.EpollEvent, 64)}, nil
}

func eventsToEpoll(e IOEvents) uint32 {
	var m uint32
	if e.Has(EventRead) {
		m |= unix.EPOLLIN
	}
	if e.Has(EventWrite) {
		m |= unix.EPOLLOUT
	}
	// Hangup and error conditions are always reported by epoll regardless
	// of the requested mask; no explicit bit is needed to arm them.
	return m
}

func epollToEvents(m uint32) IOEvents {
	var e IOEvents
	if m&unix.EPOLLIN != 0 {
		e |= EventRead
	}
	if m&unix.EPOLLOUT != 0 {
		e |= EventWrite
	}
	if m&(unix.EPOLLERR) != 0 {
		e |= EventError
	}
	if m&unix.EPOLLHUP != 0 {
		e |= EventHangup
	}
	return e
}

func (p *epollPoller) Add(fd int, interest IOEvents) error {
	ev := unix.EpollEvent{Events: eventsToEpoll(interest), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) Modify(fd int, interest IOEvents) error {
	ev := unix.EpollEvent{Events: eventsToEpoll(interest), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollPoller) Remove(fd int) error {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT || err == unix.EBADF {
		return nil
	}
	return err
}

func (p *epollPoller) Wait(dst []readyFd, timeout time.Duration) ([]readyFd, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	n, err := unix.EpollWait(p.epfd, p.events, ms)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, err
	}
	for i := 0; i < n; i++ {
		ev := p.events[i]
		dst = append(dst, readyFd{fd: int(ev.Fd), events: epollToEvents(ev.Events)})
	}
	return dst, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}
