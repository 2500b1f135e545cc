package cmdproto

import (
	"net"
	"sync"

	"github.com/PolySat/libproc-sub000/eventloop"
)

// fakeSocket is an in-process rawSocket double: WriteTo records outgoing
// datagrams instead of touching a real interface, and ReadFrom pops
// datagrams a test queued with enqueue instead of touching a real one —
// most tests instead call HandleDatagram directly to drive the receive
// path without going through ReadFrom at all.
type fakeSocket struct {
	mu      sync.Mutex
	sent    []sentDatagram
	incoming []sentDatagram
	closed  bool
	joined  map[string]int
}

type sentDatagram struct {
	data []byte
	peer *net.UDPAddr
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{joined: make(map[string]int)}
}

func (s *fakeSocket) Fd() int { return -1 }

func (s *fakeSocket) WriteTo(b []byte, addr *net.UDPAddr) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentDatagram{data: append([]byte(nil), b...), peer: addr})
	return len(b), nil
}

func (s *fakeSocket) ReadFrom(buf []byte) (int, *net.UDPAddr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.incoming) == 0 {
		return 0, nil, nil
	}
	d := s.incoming[0]
	s.incoming = s.incoming[1:]
	n := copy(buf, d.data)
	return n, d.peer, nil
}

// enqueue queues a datagram for the next ReadFrom call.
func (s *fakeSocket) enqueue(data []byte, peer *net.UDPAddr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incoming = append(s.incoming, sentDatagram{data: data, peer: peer})
}

func (s *fakeSocket) JoinGroup(group net.IP) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joined[group.String()]++
	return nil
}

func (s *fakeSocket) LeaveGroup(group net.IP) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joined[group.String()]--
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSocket) lastSent() (sentDatagram, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return sentDatagram{}, false
	}
	return s.sent[len(s.sent)-1], true
}

// newTestEngine builds an Engine over a fakeSocket, with or without a
// real eventloop.Loop (needed for timer-backed pending-call timeouts).
// loop may be nil.
func newTestEngine(loop *eventloop.Loop, opts ...Option) (*Engine, *fakeSocket) {
	sock := newFakeSocket()
	e, err := newEngine(loop, sock, opts...)
	if err != nil {
		panic(err)
	}
	return e, sock
}
