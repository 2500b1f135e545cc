package cmdproto

import (
	"fmt"

	"github.com/PolySat/libproc-sub000/xdr"
)

// datagramKind classifies a received datagram by its first bytes, per
// the wire rule: byte0 != 0 is legacy; byte0 == 0 begins an XDR-framed
// Command or Response, distinguished by the second u32.
type datagramKind int

const (
	kindLegacy datagramKind = iota
	kindCommand
	kindResponse
)

func classify(buf []byte) (datagramKind, error) {
	if len(buf) == 0 {
		return 0, fmt.Errorf("cmdproto: empty datagram")
	}
	if buf[0] != 0 {
		return kindLegacy, nil
	}
	if len(buf) < 8 {
		return 0, fmt.Errorf("cmdproto: short xdr datagram: %d bytes", len(buf))
	}
	r := xdr.NewReader(buf)
	marker, _ := r.GetUint32()
	if marker != 0 {
		return kindLegacy, nil
	}
	tag, err := r.GetUint32()
	if err != nil {
		return 0, err
	}
	if tag == responseTag {
		return kindResponse, nil
	}
	return kindCommand, nil
}

// Command is the decoded form of an XDR command datagram.
type Command struct {
	Cmd        uint32
	IPCRef     uint32
	Parameters xdr.Union
}

// EncodeCommand serializes c as a full XDR command datagram, including
// the leading zero marker.
func EncodeCommand(reg *xdr.Registry, c Command) ([]byte, error) {
	w := xdr.NewWriter(16)
	w.PutUint32(0)
	w.PutUint32(c.Cmd)
	w.PutUint32(c.IPCRef)
	if err := xdr.EncodeUnion(reg, w, c.Parameters); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// decodeCommandHeader reads the cmd/ipcref prefix shared by every XDR
// command datagram and returns a Reader positioned at the parameters
// Union, so a decode failure in the union itself can still be reported
// against the right ipcref.
func decodeCommandHeader(buf []byte) (cmd, ipcref uint32, r *xdr.Reader, err error) {
	r = xdr.NewReader(buf)
	if _, err = r.GetUint32(); err != nil { // marker
		return 0, 0, nil, err
	}
	if cmd, err = r.GetUint32(); err != nil {
		return 0, 0, nil, err
	}
	if ipcref, err = r.GetUint32(); err != nil {
		return 0, 0, nil, err
	}
	return cmd, ipcref, r, nil
}

// decodeCommand reads a Command from a buffer already classified as
// kindCommand, including its leading zero marker.
func decodeCommand(reg *xdr.Registry, buf []byte) (Command, error) {
	cmd, ipcref, r, err := decodeCommandHeader(buf)
	if err != nil {
		return Command{}, err
	}
	params, err := xdr.DecodeUnion(reg, r)
	if err != nil {
		return Command{}, err
	}
	return Command{Cmd: cmd, IPCRef: ipcref, Parameters: params}, nil
}

// Response is the decoded form of an XDR response datagram.
type Response struct {
	IPCRef uint32
	Result Result
	Data   xdr.Union
}

// ResponseHeader is the prefix of a Response that can be read without
// decoding its payload, enough to demultiplex against pending calls.
type ResponseHeader struct {
	IPCRef uint32
	Result Result
}

// PeekResponseHeader reads the ResponseHeader of a buffer already
// classified as kindResponse, without touching the data payload.
func PeekResponseHeader(buf []byte) (ResponseHeader, error) {
	r := xdr.NewReader(buf)
	if _, err := r.GetUint32(); err != nil { // marker
		return ResponseHeader{}, err
	}
	if _, err := r.GetUint32(); err != nil { // cmd == responseTag
		return ResponseHeader{}, err
	}
	ipcref, err := r.GetUint32()
	if err != nil {
		return ResponseHeader{}, err
	}
	result, err := r.GetUint32()
	if err != nil {
		return ResponseHeader{}, err
	}
	return ResponseHeader{IPCRef: ipcref, Result: Result(result)}, nil
}

// newResponseHeaderWriter starts a response datagram (marker, response
// tag, ipcref, result) and returns the writer so a caller with a wire
// shape EncodeResponse doesn't model directly (the data-request array
// form) can append its own payload.
func newResponseHeaderWriter(ipcref uint32, result Result) *xdr.Writer {
	w := xdr.NewWriter(20)
	w.PutUint32(0)
	w.PutUint32(responseTag)
	w.PutUint32(ipcref)
	w.PutUint32(uint32(result))
	return w
}

// EncodeResponse serializes r as a full XDR response datagram. A nil
// r.Data.Value (e.g. for a non-Success result) is encoded as an empty
// payload with the Data union's Tag preserved for the wire, skipping the
// registry lookup entirely.
func EncodeResponse(reg *xdr.Registry, r Response) ([]byte, error) {
	w := xdr.NewWriter(20)
	w.PutUint32(0)
	w.PutUint32(responseTag)
	w.PutUint32(r.IPCRef)
	w.PutUint32(uint32(r.Result))
	if r.Data.Value == nil {
		w.PutUint32(r.Data.Tag)
		return w.Bytes(), nil
	}
	if err := xdr.EncodeUnion(reg, w, r.Data); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// decodeResponse reads a full Response (header and data) from a buffer
// already classified as kindResponse.
func decodeResponse(reg *xdr.Registry, buf []byte) (Response, error) {
	hdr, err := PeekResponseHeader(buf)
	if err != nil {
		return Response{}, err
	}
	r := xdr.NewReader(buf)
	for i := 0; i < 4; i++ {
		if _, err := r.GetUint32(); err != nil {
			return Response{}, err
		}
	}
	if hdr.Result != Success {
		return Response{IPCRef: hdr.IPCRef, Result: hdr.Result}, nil
	}
	data, err := xdr.DecodeUnion(reg, r)
	if err != nil {
		return Response{}, err
	}
	return Response{IPCRef: hdr.IPCRef, Result: hdr.Result, Data: data}, nil
}
