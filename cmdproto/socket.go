//go:build unix

package cmdproto

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// rawSocket is the transport an Engine drives. Production code gets one
// from newUDPSocket; tests substitute an in-memory fake, which is why
// this is an interface rather than a concrete *net.UDPConn — a
// net.UDPConn's fd is owned by the Go runtime's own poller, which would
// fight the eventloop.Loop's independent epoll registration on the same
// descriptor.
type rawSocket interface {
	Fd() int
	WriteTo(b []byte, addr *net.UDPAddr) (int, error)
	ReadFrom(buf []byte) (n int, peer *net.UDPAddr, err error)
	JoinGroup(group net.IP) error
	LeaveGroup(group net.IP) error
	Close() error
}

// udpSocket is a non-blocking IPv4 UDP socket created directly via
// golang.org/x/sys/unix, so its raw fd can be registered with a private
// epoll instance instead of going through net.UDPConn's runtime poller.
type udpSocket struct {
	fd int
}

// newUDPSocket creates, binds, and returns a non-blocking UDP socket on
// laddr (port 0 picks an ephemeral port).
func newUDPSocket(laddr *net.UDPAddr) (*udpSocket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, fmt.Errorf("cmdproto: socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("cmdproto: set nonblocking: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)

	sa := &unix.SockaddrInet4{Port: 0}
	if laddr != nil {
		sa.Port = laddr.Port
		if ip4 := laddr.IP.To4(); ip4 != nil {
			copy(sa.Addr[:], ip4)
		}
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("cmdproto: bind: %w", err)
	}
	return &udpSocket{fd: fd}, nil
}

func (s *udpSocket) Fd() int { return s.fd }

func (s *udpSocket) WriteTo(b []byte, addr *net.UDPAddr) (int, error) {
	sa := &unix.SockaddrInet4{Port: addr.Port}
	ip4 := addr.IP.To4()
	if ip4 == nil {
		return 0, fmt.Errorf("cmdproto: destination %s is not IPv4", addr.IP)
	}
	copy(sa.Addr[:], ip4)
	if err := unix.Sendto(s.fd, b, 0, sa); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (s *udpSocket) ReadFrom(buf []byte) (int, *net.UDPAddr, error) {
	n, from, err := unix.Recvfrom(s.fd, buf, 0)
	if err != nil {
		return 0, nil, err
	}
	sa4, ok := from.(*unix.SockaddrInet4)
	if !ok {
		return n, nil, fmt.Errorf("cmdproto: unexpected sockaddr type %T", from)
	}
	peer := &net.UDPAddr{IP: append(net.IP(nil), sa4.Addr[:]...), Port: sa4.Port}
	return n, peer, nil
}

// JoinGroup adds membership in an IPv4 multicast group on the default
// interface.
func (s *udpSocket) JoinGroup(group net.IP) error {
	ip4 := group.To4()
	if ip4 == nil {
		return fmt.Errorf("cmdproto: multicast group %s is not IPv4", group)
	}
	mreq := &unix.IPMreq{}
	copy(mreq.Multiaddr[:], ip4)
	return unix.SetsockoptIPMreq(s.fd, unix.IPPROTO_IP, unix.IP_ADD_MEMBERSHIP, mreq)
}

// LeaveGroup drops membership in an IPv4 multicast group.
func (s *udpSocket) LeaveGroup(group net.IP) error {
	ip4 := group.To4()
	if ip4 == nil {
		return fmt.Errorf("cmdproto: multicast group %s is not IPv4", group)
	}
	mreq := &unix.IPMreq{}
	copy(mreq.Multiaddr[:], ip4)
	return unix.SetsockoptIPMreq(s.fd, unix.IPPROTO_IP, unix.IP_DROP_MEMBERSHIP, mreq)
}

func (s *udpSocket) Close() error { return unix.Close(s.fd) }
