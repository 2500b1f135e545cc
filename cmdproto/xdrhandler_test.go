package cmdproto

import (
	"net"
	"testing"

	"github.com/PolySat/libproc-sub000/xdr"
)

type statusParams struct{ Foo int32 }
type statusResult struct{ Foo, Bar int32 }

const (
	typeStatusParams = 1001
	typeStatusResult = 1002
)

func statusParamsDef() *xdr.StructDef {
	return &xdr.StructDef{
		TypeID: typeStatusParams,
		Name:   "statusParams",
		New:    func() any { return &statusParams{} },
		Fields: []xdr.FieldDef{{
			Name: "Foo",
			Encode: func(w *xdr.Writer, obj any) error {
				w.PutInt32(obj.(*statusParams).Foo)
				return nil
			},
			Decode: func(r *xdr.Reader, obj any) error {
				v, err := r.GetInt32()
				if err != nil {
					return err
				}
				obj.(*statusParams).Foo = v
				return nil
			},
		}},
	}
}

func statusResultDef() *xdr.StructDef {
	return &xdr.StructDef{
		TypeID: typeStatusResult,
		Name:   "statusResult",
		New:    func() any { return &statusResult{} },
		Fields: []xdr.FieldDef{
			{
				Name: "Foo",
				Encode: func(w *xdr.Writer, obj any) error {
					w.PutInt32(obj.(*statusResult).Foo)
					return nil
				},
				Decode: func(r *xdr.Reader, obj any) error {
					v, err := r.GetInt32()
					if err != nil {
						return err
					}
					obj.(*statusResult).Foo = v
					return nil
				},
			},
			{
				Name: "Bar",
				Encode: func(w *xdr.Writer, obj any) error {
					w.PutInt32(obj.(*statusResult).Bar)
					return nil
				},
				Decode: func(r *xdr.Reader, obj any) error {
					v, err := r.GetInt32()
					if err != nil {
						return err
					}
					obj.(*statusResult).Bar = v
					return nil
				},
			},
		},
	}
}

func newTestRegistry() *xdr.Registry {
	reg := xdr.NewRegistry()
	reg.Register(statusParamsDef())
	reg.Register(statusResultDef())
	return reg
}

const cmdStatus uint32 = 1

func TestXDRCommandRoundTrip(t *testing.T) {
	reg := newTestRegistry()
	e, sock := newTestEngine(nil, WithRegistry(reg))
	defer e.Close()

	var gotIPCRef uint32
	err := e.RegisterXDRHandler(cmdStatus, XDRHandler{
		ParamType: typeStatusParams,
		Fn: func(peer *net.UDPAddr, ipcref uint32, params any) (uint32, any, error) {
			gotIPCRef = ipcref
			p := params.(*statusParams)
			return typeStatusResult, &statusResult{Foo: p.Foo, Bar: p.Foo * 2}, nil
		},
	})
	if err != nil {
		t.Fatalf("RegisterXDRHandler: %v", err)
	}

	datagram, err := EncodeCommand(reg, Command{
		Cmd:        cmdStatus,
		IPCRef:     42,
		Parameters: xdr.Union{Tag: typeStatusParams, Value: &statusParams{Foo: 7}},
	})
	if err != nil {
		t.Fatalf("EncodeCommand: %v", err)
	}

	e.HandleDatagram(datagram, testPeer())

	if gotIPCRef != 42 {
		t.Fatalf("handler saw ipcref %d, want 42", gotIPCRef)
	}
	sent, ok := sock.lastSent()
	if !ok {
		t.Fatal("expected a response datagram")
	}
	resp, err := decodeResponse(reg, sent.data)
	if err != nil {
		t.Fatalf("decodeResponse: %v", err)
	}
	if resp.Result != Success {
		t.Fatalf("Result = %v, want Success", resp.Result)
	}
	got := resp.Data.Value.(*statusResult)
	if got.Foo != 7 || got.Bar != 14 {
		t.Fatalf("got = %+v", got)
	}
}

func TestXDRCommandUnknownCommandRepliesUnsupported(t *testing.T) {
	reg := newTestRegistry()
	e, sock := newTestEngine(nil, WithRegistry(reg))
	defer e.Close()

	datagram, _ := EncodeCommand(reg, Command{
		Cmd:        999,
		IPCRef:     1,
		Parameters: xdr.Union{Tag: typeStatusParams, Value: &statusParams{}},
	})
	e.HandleDatagram(datagram, testPeer())

	sent, ok := sock.lastSent()
	if !ok {
		t.Fatal("expected a response datagram")
	}
	hdr, err := PeekResponseHeader(sent.data)
	if err != nil {
		t.Fatalf("PeekResponseHeader: %v", err)
	}
	if hdr.Result != Unsupported {
		t.Fatalf("Result = %v, want Unsupported", hdr.Result)
	}
}

func TestXDRCommandWrongParamTypeRepliesIncorrectParameterType(t *testing.T) {
	reg := newTestRegistry()
	e, sock := newTestEngine(nil, WithRegistry(reg))
	defer e.Close()

	if err := e.RegisterXDRHandler(cmdStatus, XDRHandler{
		ParamType: typeStatusResult, // deliberately wrong expectation
		Fn: func(*net.UDPAddr, uint32, any) (uint32, any, error) {
			t.Fatal("handler should not be invoked on a param type mismatch")
			return 0, nil, nil
		},
	}); err != nil {
		t.Fatalf("RegisterXDRHandler: %v", err)
	}

	datagram, _ := EncodeCommand(reg, Command{
		Cmd:        cmdStatus,
		IPCRef:     5,
		Parameters: xdr.Union{Tag: typeStatusParams, Value: &statusParams{Foo: 1}},
	})
	e.HandleDatagram(datagram, testPeer())

	sent, ok := sock.lastSent()
	if !ok {
		t.Fatal("expected a response datagram")
	}
	hdr, err := PeekResponseHeader(sent.data)
	if err != nil {
		t.Fatalf("PeekResponseHeader: %v", err)
	}
	if hdr.Result != IncorrectParameterType {
		t.Fatalf("Result = %v, want IncorrectParameterType", hdr.Result)
	}
}

func TestXDRHandlerErrorMapsToAllocationError(t *testing.T) {
	reg := newTestRegistry()
	e, sock := newTestEngine(nil, WithRegistry(reg))
	defer e.Close()

	if err := e.RegisterXDRHandler(cmdStatus, XDRHandler{
		ParamType: typeStatusParams,
		Fn: func(*net.UDPAddr, uint32, any) (uint32, any, error) {
			return 0, nil, errBoom
		},
	}); err != nil {
		t.Fatalf("RegisterXDRHandler: %v", err)
	}

	datagram, _ := EncodeCommand(reg, Command{
		Cmd:        cmdStatus,
		IPCRef:     6,
		Parameters: xdr.Union{Tag: typeStatusParams, Value: &statusParams{}},
	})
	e.HandleDatagram(datagram, testPeer())

	sent, _ := sock.lastSent()
	hdr, err := PeekResponseHeader(sent.data)
	if err != nil {
		t.Fatalf("PeekResponseHeader: %v", err)
	}
	if hdr.Result != AllocationError {
		t.Fatalf("Result = %v, want AllocationError", hdr.Result)
	}
}

func TestXDRHandlerCustomResultViaHandlerError(t *testing.T) {
	reg := newTestRegistry()
	e, sock := newTestEngine(nil, WithRegistry(reg))
	defer e.Close()

	if err := RegisterError(2000, "OutOfRange"); err != nil {
		t.Fatalf("RegisterError: %v", err)
	}
	if err := e.RegisterXDRHandler(cmdStatus, XDRHandler{
		ParamType: typeStatusParams,
		Fn: func(*net.UDPAddr, uint32, any) (uint32, any, error) {
			return 0, nil, &HandlerError{Result: 2000}
		},
	}); err != nil {
		t.Fatalf("RegisterXDRHandler: %v", err)
	}

	datagram, _ := EncodeCommand(reg, Command{
		Cmd:        cmdStatus,
		IPCRef:     7,
		Parameters: xdr.Union{Tag: typeStatusParams, Value: &statusParams{}},
	})
	e.HandleDatagram(datagram, testPeer())

	sent, _ := sock.lastSent()
	hdr, err := PeekResponseHeader(sent.data)
	if err != nil {
		t.Fatalf("PeekResponseHeader: %v", err)
	}
	if hdr.Result != 2000 {
		t.Fatalf("Result = %d, want 2000", hdr.Result)
	}
	if got := hdr.Result.String(); got != "OutOfRange" {
		t.Fatalf("Result.String() = %q, want OutOfRange", got)
	}
}

var errBoom = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
