package cmdproto

import (
	"net"
	"testing"
	"time"

	"github.com/PolySat/libproc-sub000/eventloop"
	"github.com/PolySat/libproc-sub000/xdr"
)

func TestSendCommandRoundTripDeliversDecodedResponse(t *testing.T) {
	reg := newTestRegistry()
	loop, err := eventloop.New()
	if err != nil {
		t.Fatalf("eventloop.New: %v", err)
	}
	defer loop.Close()

	e, sock := newTestEngine(loop, WithRegistry(reg))
	defer e.Close()

	peer := testPeer()
	outcomes := make(chan Outcome, 1)
	ipcref, err := e.SendCommand(cmdStatus, typeStatusParams, &statusParams{Foo: 3}, peer, time.Second, CallbackDecoded, func(o Outcome) {
		outcomes <- o
	})
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}

	sent, ok := sock.lastSent()
	if !ok {
		t.Fatal("expected SendCommand to transmit a datagram")
	}
	cmd, err := decodeCommand(reg, sent.data)
	if err != nil {
		t.Fatalf("decodeCommand: %v", err)
	}
	if cmd.IPCRef != ipcref || cmd.Cmd != cmdStatus {
		t.Fatalf("cmd = %+v, want ipcref=%d cmd=%d", cmd, ipcref, cmdStatus)
	}

	respData, err := EncodeResponse(reg, Response{
		IPCRef: ipcref,
		Result: Success,
		Data:   xdr.Union{Tag: typeStatusResult, Value: &statusResult{Foo: 3, Bar: 6}},
	})
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	e.HandleDatagram(respData, peer)

	select {
	case o := <-outcomes:
		if o.TimedOut || o.Cancelled {
			t.Fatalf("outcome = %+v, want a delivered response", o)
		}
		if o.Result != Success {
			t.Fatalf("Result = %v, want Success", o.Result)
		}
		got := o.Data.(*statusResult)
		if got.Foo != 3 || got.Bar != 6 {
			t.Fatalf("Data = %+v", got)
		}
	default:
		t.Fatal("expected the callback to have fired synchronously from HandleDatagram")
	}
}

func TestSendCommandResponseFromWrongPeerIsDiscarded(t *testing.T) {
	reg := newTestRegistry()
	e, _ := newTestEngine(nil, WithRegistry(reg))
	defer e.Close()

	peer := testPeer()
	fired := false
	ipcref, err := e.SendCommand(cmdStatus, typeStatusParams, &statusParams{}, peer, time.Second, CallbackDecoded, func(Outcome) {
		fired = true
	})
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}

	other := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 9), Port: 1234}
	respData, _ := EncodeResponse(reg, Response{IPCRef: ipcref, Result: Success})
	e.HandleDatagram(respData, other)

	if fired {
		t.Fatal("callback fired for a response from a non-matching peer")
	}
}

func TestSendCommandTimeoutFiresExactlyOnce(t *testing.T) {
	loop, err := eventloop.New()
	if err != nil {
		t.Fatalf("eventloop.New: %v", err)
	}
	defer loop.Close()

	e, _ := newTestEngine(loop, WithRegistry(newTestRegistry()))
	defer e.Close()

	outcomes := make(chan Outcome, 2)
	if _, err := e.SendCommand(cmdStatus, typeStatusParams, &statusParams{}, testPeer(), 5*time.Millisecond, CallbackDecoded, func(o Outcome) {
		outcomes <- o
	}); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- loop.Run() }()

	select {
	case o := <-outcomes:
		if !o.TimedOut {
			t.Fatalf("outcome = %+v, want TimedOut", o)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout callback never fired")
	}

	loop.Exit()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop.Run never returned after Exit")
	}

	select {
	case o := <-outcomes:
		t.Fatalf("callback fired a second time: %+v", o)
	default:
	}
}

func TestCloseCancelsPendingCalls(t *testing.T) {
	e, _ := newTestEngine(nil, WithRegistry(newTestRegistry()))
	outcomes := make(chan Outcome, 1)
	if _, err := e.SendCommand(cmdStatus, typeStatusParams, &statusParams{}, testPeer(), time.Second, CallbackDecoded, func(o Outcome) {
		outcomes <- o
	}); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}

	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case o := <-outcomes:
		if !o.Cancelled {
			t.Fatalf("outcome = %+v, want Cancelled", o)
		}
	default:
		t.Fatal("expected Close to resolve the pending call synchronously")
	}
}
