package cmdproto

import (
	"fmt"
	"net"

	"github.com/PolySat/libproc-sub000/eventloop"
)

// LegacyHandler handles a legacy (pre-XDR) command. payload is the
// datagram with its single command byte already stripped.
type LegacyHandler func(peer *net.UDPAddr, payload []byte)

// RegisterLegacyHandler attaches fn to cmd (1..255). protected marks the
// command as protected: a datagram for it is answered with Unsupported
// and fn is not run, the same reply an unregistered slot gets, rather
// than being silently ignored.
func (e *Engine) RegisterLegacyHandler(cmd byte, protected bool, fn LegacyHandler) error {
	if cmd == 0 {
		return fmt.Errorf("cmdproto: legacy command 0 is reserved for the XDR marker")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.legacy[cmd] = fn
	e.protected[cmd] = protected
	return nil
}

func (e *Engine) dispatchLegacy(buf []byte, peer *net.UDPAddr) {
	cmd := buf[0]
	payload := buf[1:]

	e.mu.Lock()
	fn := e.legacy[cmd]
	prot := e.protected[cmd]
	e.mu.Unlock()

	e.legacyCount.Add(1)

	if prot {
		e.logf(eventloop.LevelWarn, "legacy command %d is protected", cmd)
		e.replyUnsupported(0, peer)
		return
	}
	if fn == nil {
		e.logf(eventloop.LevelWarn, "legacy command %d has no registered handler", cmd)
		e.replyUnsupported(0, peer)
		return
	}
	e.safeCallLegacy(cmd, fn, peer, payload)
}

func (e *Engine) replyUnsupported(ipcref uint32, peer *net.UDPAddr) {
	data, err := EncodeResponse(e.registry, Response{IPCRef: ipcref, Result: Unsupported})
	if err != nil {
		e.logf(eventloop.LevelError, "encoding Unsupported response: %v", err)
		return
	}
	if _, err := e.sock.WriteTo(data, peer); err != nil {
		e.logf(eventloop.LevelError, "sending Unsupported response to %s: %v", peer, err)
	}
}

func (e *Engine) safeCallLegacy(cmd byte, fn LegacyHandler, peer *net.UDPAddr, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			e.logf(eventloop.LevelError, "legacy handler for command %d panicked: %v", cmd, r)
		}
	}()
	fn(peer, payload)
}
