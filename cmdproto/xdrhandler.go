package cmdproto

import (
	"errors"
	"net"

	"github.com/PolySat/libproc-sub000/eventloop"
	"github.com/PolySat/libproc-sub000/xdr"
)

// RegisterXDRHandler attaches h to cmd. A second registration for the
// same cmd replaces the first.
func (e *Engine) RegisterXDRHandler(cmd uint32, h XDRHandler) error {
	if cmd == responseTag {
		return errColliding
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.xdrHandlers[cmd] = h
	return nil
}

var errColliding = errors.New("cmdproto: command tag collides with the reserved response tag")

func (e *Engine) dispatchCommand(buf []byte, peer *net.UDPAddr) {
	cmd, ipcref, r, err := decodeCommandHeader(buf)
	if err != nil {
		e.logf(eventloop.LevelWarn, "malformed command header from %s: %v", peer, err)
		return
	}

	if cmd == DataRequestTag {
		e.handleDataRequest(r, ipcref, peer)
		return
	}

	e.mu.Lock()
	h, ok := e.xdrHandlers[cmd]
	e.mu.Unlock()
	if !ok {
		e.logf(eventloop.LevelWarn, "xdr command %d has no registered handler", cmd)
		e.replyUnsupported(ipcref, peer)
		return
	}

	params, err := xdr.DecodeUnion(e.registry, r)
	if err != nil {
		e.logf(eventloop.LevelWarn, "decoding parameters for command %d: %v", cmd, err)
		e.replyResult(ipcref, IncorrectParameterType, peer)
		return
	}
	if params.Tag != h.ParamType {
		e.logf(eventloop.LevelWarn, "command %d expected param type %d, got %d", cmd, h.ParamType, params.Tag)
		e.replyResult(ipcref, IncorrectParameterType, peer)
		return
	}

	e.safeCallXDR(cmd, h, peer, ipcref, params.Value)
}

func (e *Engine) safeCallXDR(cmd uint32, h XDRHandler, peer *net.UDPAddr, ipcref uint32, params any) {
	defer func() {
		if r := recover(); r != nil {
			e.logf(eventloop.LevelError, "xdr handler for command %d panicked: %v", cmd, r)
			e.replyResult(ipcref, AllocationError, peer)
		}
	}()

	respType, resp, err := h.Fn(peer, ipcref, params)
	if err != nil {
		var he *HandlerError
		if errors.As(err, &he) {
			e.replyResult(ipcref, he.Result, peer)
		} else {
			e.logf(eventloop.LevelError, "xdr handler for command %d returned error: %v", cmd, err)
			e.replyResult(ipcref, AllocationError, peer)
		}
		return
	}

	data, encErr := EncodeResponse(e.registry, Response{
		IPCRef: ipcref,
		Result: Success,
		Data:   xdr.Union{Tag: respType, Value: resp},
	})
	if encErr != nil {
		e.logf(eventloop.LevelError, "encoding response for command %d: %v", cmd, encErr)
		e.replyResult(ipcref, AllocationError, peer)
		return
	}
	if _, err := e.sock.WriteTo(data, peer); err != nil {
		e.logf(eventloop.LevelError, "sending response for command %d to %s: %v", cmd, peer, err)
	}
}

func (e *Engine) replyResult(ipcref uint32, result Result, peer *net.UDPAddr) {
	data, err := EncodeResponse(e.registry, Response{IPCRef: ipcref, Result: result})
	if err != nil {
		e.logf(eventloop.LevelError, "encoding %s response: %v", result, err)
		return
	}
	if _, err := e.sock.WriteTo(data, peer); err != nil {
		e.logf(eventloop.LevelError, "sending %s response to %s: %v", result, peer, err)
	}
}
