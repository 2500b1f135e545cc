package cmdproto

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/PolySat/libproc-sub000/eventloop"
	"github.com/PolySat/libproc-sub000/xdr"
)

// maxDatagram is the largest UDP payload this engine reads per
// recvfrom, comfortably larger than any single command/response this
// protocol family sends.
const maxDatagram = 4096

// XDRHandler handles one registered XDR command. paramType is the type
// id the handler expects its parameters to decode as; a mismatching
// incoming tag is rejected with IncorrectParameterType before Fn is
// called. Fn returns the response's data (nil for a void response) and
// its type id; a non-nil error is reported to the caller as
// AllocationError (the only built-in error kind a handler body can
// trigger organically — any other application-specific failure should
// be modeled as a registered custom Result via RegisterError and
// returned through a *HandlerError).
type XDRHandler struct {
	ParamType uint32
	Fn        func(peer *net.UDPAddr, ipcref uint32, params any) (respType uint32, resp any, err error)
}

// HandlerError lets an XDRHandler's Fn specify a precise wire Result
// instead of the generic AllocationError every other error maps to.
type HandlerError struct {
	Result Result
}

func (e *HandlerError) Error() string { return fmt.Sprintf("cmdproto: handler error: %s", e.Result) }

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger sets the structured logger used for diagnostics. The
// default is eventloop.NoOpLogger{}.
func WithLogger(l eventloop.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithRegistry overrides the XDR type registry the engine encodes and
// decodes against. The default is xdr.Default().
func WithRegistry(reg *xdr.Registry) Option {
	return func(e *Engine) { e.registry = reg }
}

// Engine is a command/response endpoint: one UDP socket, registered
// with an eventloop.Loop, dispatching legacy and XDR commands and
// correlating XDR responses against outstanding calls.
type Engine struct {
	sock     rawSocket
	loop     *eventloop.Loop
	registry *xdr.Registry
	log      eventloop.Logger

	mu        sync.Mutex
	legacy    [256]LegacyHandler
	protected [256]bool
	xdrHandlers map[uint32]XDRHandler

	legacyCount atomic.Uint64
	xdrCount    atomic.Uint64

	nextRef atomic.Uint32

	pendingMu sync.Mutex
	pending   map[pendingKey]*pendingCall

	mc *multicastState

	readBuf []byte
}

// New creates an Engine bound to laddr and registers its socket's read
// readiness with loop. A zero-value laddr.Port picks an ephemeral port.
func New(loop *eventloop.Loop, laddr *net.UDPAddr, opts ...Option) (*Engine, error) {
	sock, err := newUDPSocket(laddr)
	if err != nil {
		return nil, err
	}
	return newEngine(loop, sock, opts...)
}

func newEngine(loop *eventloop.Loop, sock rawSocket, opts ...Option) (*Engine, error) {
	e := &Engine{
		sock:        sock,
		loop:        loop,
		registry:    xdr.Default(),
		log:         eventloop.NoOpLogger{},
		xdrHandlers: make(map[uint32]XDRHandler),
		pending:     make(map[pendingKey]*pendingCall),
		readBuf:     make([]byte, maxDatagram),
	}
	e.mc = newMulticastState(e)
	for _, opt := range opts {
		opt(e)
	}
	// A negative Fd (used by in-process test doubles that never touch a
	// real poller) opts out of fd registration while still letting the
	// engine use loop's timers for pending-call timeouts.
	if loop != nil && sock.Fd() >= 0 {
		if err := loop.AddFd(sock.Fd(), eventloop.EventRead, e.onReadable); err != nil {
			_ = sock.Close()
			return nil, fmt.Errorf("cmdproto: registering socket with loop: %w", err)
		}
	}
	return e, nil
}

// Close tears down the socket (and, if registered, its loop
// registration). Pending calls are resolved with Outcome.Cancelled.
func (e *Engine) Close() error {
	if e.loop != nil && e.sock.Fd() >= 0 {
		_ = e.loop.RemoveFd(e.sock.Fd(), eventloop.EventRead)
	}
	e.cancelAllPending()
	return e.sock.Close()
}

func (e *Engine) onReadable(_ int, _ eventloop.IOEvents) {
	n, peer, err := e.sock.ReadFrom(e.readBuf)
	if err != nil {
		e.logf(eventloop.LevelWarn, "reading command socket: %v", err)
		return
	}
	e.HandleDatagram(append([]byte(nil), e.readBuf[:n]...), peer)
}

// HandleDatagram processes one already-received datagram. It is the
// receive path's entry point, exposed directly so tests (and loopback
// transports) can drive dispatch without a real socket.
func (e *Engine) HandleDatagram(buf []byte, peer *net.UDPAddr) {
	kind, err := classify(buf)
	if err != nil {
		e.logf(eventloop.LevelWarn, "malformed datagram from %s: %v", peer, err)
		return
	}
	switch kind {
	case kindLegacy:
		e.dispatchLegacy(buf, peer)
	case kindCommand:
		e.xdrCount.Add(1)
		e.dispatchCommand(buf, peer)
	case kindResponse:
		e.dispatchResponse(buf, peer)
	}
}

// Stats returns the running counts of legacy and XDR commands received,
// for status-reporting handlers (e.g. CmdStatusRequest).
func (e *Engine) Stats() (legacy, xdrCmds uint64) {
	return e.legacyCount.Load(), e.xdrCount.Load()
}

func (e *Engine) logf(level eventloop.LogLevel, format string, args ...any) {
	if !e.log.IsEnabled(level) {
		return
	}
	e.log.Log(eventloop.LogEntry{
		Level:    level,
		Category: "cmdproto",
		Message:  fmt.Sprintf(format, args...),
	})
}
