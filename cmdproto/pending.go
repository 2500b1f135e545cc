package cmdproto

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/PolySat/libproc-sub000/eventloop"
	"github.com/PolySat/libproc-sub000/xdr"
)

// CallbackKind selects whether a pending call's callback receives the
// raw response datagram or a decoded value.
type CallbackKind int

const (
	// CallbackDecoded delivers Outcome.Data, decoded via the engine's
	// registry.
	CallbackDecoded CallbackKind = iota
	// CallbackRaw delivers Outcome.Raw, the undecoded response datagram.
	CallbackRaw
)

// Outcome is delivered to a ResultCallback exactly once: on a matching
// response, on timeout, or on cancellation (Close).
type Outcome struct {
	TimedOut  bool
	Cancelled bool
	Result    Result
	DataType  uint32
	Data      any
	Raw       []byte
}

// ResultCallback receives the outcome of a command sent with SendCommand.
type ResultCallback func(Outcome)

type pendingKey struct {
	ipcref uint32
	peer   string
}

type pendingCall struct {
	key      pendingKey
	kind     CallbackKind
	cb       ResultCallback
	timer    eventloop.TimerHandle
	resolved atomic.Bool
}

// resolve returns true the first time it is called for this pendingCall,
// false on every subsequent call — the exactly-once delivery guarantee.
func (p *pendingCall) resolve() bool {
	return p.resolved.CompareAndSwap(false, true)
}

// SendCommand assigns a fresh ipcref, encodes and transmits an XDR
// command to peer, and — if cb is non-nil — registers a pending call
// armed with a timeout timer. It returns the assigned ipcref.
func (e *Engine) SendCommand(cmd, paramType uint32, params any, peer *net.UDPAddr, timeout time.Duration, kind CallbackKind, cb ResultCallback) (uint32, error) {
	ipcref := e.nextRef.Add(1)

	data, err := EncodeCommand(e.registry, Command{
		Cmd:        cmd,
		IPCRef:     ipcref,
		Parameters: xdr.Union{Tag: paramType, Value: params},
	})
	if err != nil {
		return 0, err
	}
	if _, err := e.sock.WriteTo(data, peer); err != nil {
		return 0, err
	}

	if cb == nil {
		return ipcref, nil
	}

	pc := &pendingCall{
		key:  pendingKey{ipcref: ipcref, peer: peer.String()},
		kind: kind,
		cb:   cb,
	}
	e.pendingMu.Lock()
	e.pending[pc.key] = pc
	e.pendingMu.Unlock()

	if e.loop != nil && timeout > 0 {
		pc.timer = e.loop.AddTimer(timeout, e.fireTimeout, pc)
	}
	return ipcref, nil
}

func (e *Engine) fireTimeout(arg any) eventloop.TimerResult {
	pc := arg.(*pendingCall)
	e.pendingMu.Lock()
	if cur, ok := e.pending[pc.key]; ok && cur == pc {
		delete(e.pending, pc.key)
	}
	e.pendingMu.Unlock()

	if pc.resolve() {
		pc.cb(Outcome{TimedOut: true})
	}
	return eventloop.Remove
}

func (e *Engine) dispatchResponse(buf []byte, peer *net.UDPAddr) {
	hdr, err := PeekResponseHeader(buf)
	if err != nil {
		e.logf(eventloop.LevelWarn, "malformed response from %s: %v", peer, err)
		return
	}

	key := pendingKey{ipcref: hdr.IPCRef, peer: peer.String()}
	e.pendingMu.Lock()
	pc, ok := e.pending[key]
	if ok {
		delete(e.pending, key)
	}
	e.pendingMu.Unlock()
	if !ok {
		e.logf(eventloop.LevelDebug, "discarding unmatched response ipcref=%d from %s", hdr.IPCRef, peer)
		return
	}
	if e.loop != nil && pc.timer.Valid() {
		_, _ = e.loop.RemoveTimer(pc.timer)
	}
	if !pc.resolve() {
		return
	}

	if pc.kind == CallbackRaw {
		pc.cb(Outcome{Result: hdr.Result, Raw: buf})
		return
	}

	resp, err := decodeResponse(e.registry, buf)
	if err != nil {
		e.logf(eventloop.LevelWarn, "decoding response body ipcref=%d from %s: %v", hdr.IPCRef, peer, err)
		pc.cb(Outcome{Result: hdr.Result})
		return
	}
	pc.cb(Outcome{Result: resp.Result, DataType: resp.Data.Tag, Data: resp.Data.Value})
}

// cancelAllPending resolves every outstanding pending call with
// Outcome.Cancelled, used by Close.
func (e *Engine) cancelAllPending() {
	e.pendingMu.Lock()
	calls := make([]*pendingCall, 0, len(e.pending))
	for k, pc := range e.pending {
		calls = append(calls, pc)
		delete(e.pending, k)
	}
	e.pendingMu.Unlock()

	for _, pc := range calls {
		if e.loop != nil && pc.timer.Valid() {
			_, _ = e.loop.RemoveTimer(pc.timer)
		}
		if pc.resolve() {
			pc.cb(Outcome{Cancelled: true})
		}
	}
}
