package cmdproto

import (
	"fmt"
	"net"
	"sync"

	"github.com/PolySat/libproc-sub000/eventloop"
)

// newMulticastSocket is a seam over newUDPSocket so tests can supply an
// in-process fake rawSocket instead of a real one (the real
// implementation opens an OS socket on a specific port and joins an
// IPv4 multicast group, neither of which a unit test should depend on).
var newMulticastSocket = func(laddr *net.UDPAddr) (rawSocket, error) { return newUDPSocket(laddr) }

// mcHandler is one registered multicast receiver: either a wildcard
// (cmd == nil) or a specific legacy command byte.
type mcHandler struct {
	id  uint64
	cmd *byte
	fn  LegacyHandler
}

// groupState is one (group, port) multicast membership: its own
// listening socket (multicast traffic must be received on a socket
// bound to the service's port, distinct from the engine's unicast
// command socket), reference-counted across every handler attached to
// it.
type groupState struct {
	group    net.IP
	port     int
	sock     rawSocket
	refcount int
	handlers []mcHandler
	readBuf  []byte
}

// multicastState owns every group this Engine currently has joined.
type multicastState struct {
	e        *Engine
	mu       sync.Mutex
	table    map[string]ServiceEntry
	groups   map[string]*groupState // key: "ip:port"
	nextHID  uint64
}

func newMulticastState(e *Engine) *multicastState {
	table := make(map[string]ServiceEntry, len(builtinServiceTable))
	for k, v := range builtinServiceTable {
		table[k] = v
	}
	return &multicastState{e: e, table: table, groups: make(map[string]*groupState)}
}

// SetServiceTable replaces the engine's service name table wholesale,
// e.g. with the result of LoadServiceTable.
func (e *Engine) SetServiceTable(table map[string]ServiceEntry) {
	e.mc.mu.Lock()
	defer e.mc.mu.Unlock()
	e.mc.table = table
}

func (m *multicastState) resolve(service string) (net.IP, int, error) {
	m.mu.Lock()
	entry, ok := m.table[service]
	m.mu.Unlock()
	if !ok {
		return nil, 0, fmt.Errorf("cmdproto: unknown multicast service %q", service)
	}
	ip, err := entry.addr()
	if err != nil {
		return nil, 0, err
	}
	return ip, entry.Port, nil
}

func groupKey(ip net.IP, port int) string { return fmt.Sprintf("%s:%d", ip.String(), port) }

// SendMulticast transmits a legacy-format datagram (cmd byte followed
// by payload) to the named service's multicast group. No response is
// tracked.
func (e *Engine) SendMulticast(service string, cmd byte, payload []byte) error {
	ip, port, err := e.mc.resolve(service)
	if err != nil {
		return err
	}
	buf := make([]byte, 1+len(payload))
	buf[0] = cmd
	copy(buf[1:], payload)
	_, err = e.sock.WriteTo(buf, &net.UDPAddr{IP: ip, Port: port})
	return err
}

// ReceiveMulticast joins the named service's multicast group (if not
// already joined) and registers fn for datagrams whose legacy command
// byte matches cmd, or every datagram if cmd is nil (wildcard). The
// returned function unregisters fn, leaving the group once no handler
// remains attached — the reference-counted join/leave the spec
// requires.
func (e *Engine) ReceiveMulticast(service string, cmd *byte, fn LegacyHandler) (unregister func() error, err error) {
	ip, port, err := e.mc.resolve(service)
	if err != nil {
		return nil, err
	}

	m := e.mc
	m.mu.Lock()
	defer m.mu.Unlock()

	key := groupKey(ip, port)
	g, ok := m.groups[key]
	if !ok {
		sock, err := newMulticastSocket(&net.UDPAddr{Port: port})
		if err != nil {
			return nil, err
		}
		if err := sock.JoinGroup(ip); err != nil {
			_ = sock.Close()
			return nil, err
		}
		g = &groupState{group: ip, port: port, sock: sock, readBuf: make([]byte, maxDatagram)}
		if e.loop != nil && sock.Fd() >= 0 {
			if err := e.loop.AddFd(sock.Fd(), eventloop.EventRead, m.onGroupReadable(g)); err != nil {
				_ = sock.LeaveGroup(ip)
				_ = sock.Close()
				return nil, err
			}
		}
		m.groups[key] = g
	}

	m.nextHID++
	h := mcHandler{id: m.nextHID, cmd: cmd, fn: fn}
	g.handlers = append(g.handlers, h)
	g.refcount++

	return func() error { return m.unregister(key, h.id) }, nil
}

func (m *multicastState) onGroupReadable(g *groupState) eventloop.FdCallback {
	return func(_ int, _ eventloop.IOEvents) {
		n, peer, err := g.sock.ReadFrom(g.readBuf)
		if err != nil {
			m.e.logf(eventloop.LevelWarn, "reading multicast socket for %s: %v", groupKey(g.group, g.port), err)
			return
		}
		if n == 0 {
			return
		}
		buf := g.readBuf[:n]
		cmdByte := buf[0]

		m.mu.Lock()
		handlers := append([]mcHandler(nil), g.handlers...)
		m.mu.Unlock()

		for _, h := range handlers {
			if h.cmd != nil && *h.cmd != cmdByte {
				continue
			}
			m.e.safeCallLegacy(cmdByte, h.fn, peer, buf[1:])
		}
	}
}

func (m *multicastState) unregister(key string, id uint64) error {
	m.mu.Lock()
	g, ok := m.groups[key]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	for i, h := range g.handlers {
		if h.id == id {
			g.handlers = append(g.handlers[:i], g.handlers[i+1:]...)
			g.refcount--
			break
		}
	}
	last := g.refcount <= 0
	if last {
		delete(m.groups, key)
	}
	m.mu.Unlock()

	if !last {
		return nil
	}
	if m.e.loop != nil && g.sock.Fd() >= 0 {
		_ = m.e.loop.RemoveFd(g.sock.Fd(), eventloop.EventRead)
	}
	_ = g.sock.LeaveGroup(g.group)
	return g.sock.Close()
}
