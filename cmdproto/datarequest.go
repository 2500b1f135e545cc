package cmdproto

import (
	"net"

	"github.com/PolySat/libproc-sub000/eventloop"
	"github.com/PolySat/libproc-sub000/xdr"
)

// decodeDataRequestParams reads the data-request command's own parameter
// shape: a bare count-prefixed array of type ids, not a normal Union,
// since the reserved DataRequestTag already disambiguates the format
// the same way responseTag disambiguates a Response.
func decodeDataRequestParams(r *xdr.Reader) ([]uint32, error) {
	n, err := r.GetUint32()
	if err != nil {
		return nil, err
	}
	ids := make([]uint32, n)
	for i := range ids {
		v, err := r.GetUint32()
		if err != nil {
			return nil, err
		}
		ids[i] = v
	}
	return ids, nil
}

// handleDataRequest implements the data-request compound command: for
// each requested type id, look up its registered populator, and reply
// either with the single produced struct (a one-element request) or
// with an array of per-entry success/error results.
func (e *Engine) handleDataRequest(r *xdr.Reader, ipcref uint32, peer *net.UDPAddr) {
	ids, err := decodeDataRequestParams(r)
	if err != nil {
		e.logf(eventloop.LevelWarn, "malformed data-request from %s: %v", peer, err)
		e.replyResult(ipcref, IncorrectParameterType, peer)
		return
	}

	if len(ids) == 0 {
		// A length-zero list yields a void response.
		e.replyResult(ipcref, Success, peer)
		return
	}

	if len(ids) == 1 {
		e.handleSingleDataRequest(ids[0], ipcref, peer)
		return
	}

	e.handleArrayDataRequest(ids, ipcref, peer)
}

func (e *Engine) handleSingleDataRequest(typeID uint32, ipcref uint32, peer *net.UDPAddr) {
	populate, ok := e.registry.PopulatorFor(typeID)
	if !ok {
		e.logf(eventloop.LevelWarn, "data-request: no populator for type %d", typeID)
		e.replyResult(ipcref, Unsupported, peer)
		return
	}
	value, err := populate()
	if err != nil {
		e.logf(eventloop.LevelWarn, "data-request: populator for type %d failed: %v", typeID, err)
		e.replyResult(ipcref, AllocationError, peer)
		return
	}
	data, err := EncodeResponse(e.registry, Response{
		IPCRef: ipcref,
		Result: Success,
		Data:   xdr.Union{Tag: typeID, Value: value},
	})
	if err != nil {
		e.logf(eventloop.LevelError, "data-request: encoding type %d: %v", typeID, err)
		e.replyResult(ipcref, AllocationError, peer)
		return
	}
	if _, err := e.sock.WriteTo(data, peer); err != nil {
		e.logf(eventloop.LevelError, "data-request: sending type %d to %s: %v", typeID, peer, err)
	}
}

func (e *Engine) handleArrayDataRequest(ids []uint32, ipcref uint32, peer *net.UDPAddr) {
	w := newResponseHeaderWriter(ipcref, Success)
	w.PutUint32(uint32(len(ids)))

	for _, typeID := range ids {
		populate, ok := e.registry.PopulatorFor(typeID)
		if !ok {
			writeDataRequestEntryError(w, typeID, "unsupported type")
			continue
		}
		value, err := populate()
		if err != nil {
			writeDataRequestEntryError(w, typeID, err.Error())
			continue
		}
		def, ok := e.registry.DefinitionFor(typeID)
		if !ok {
			writeDataRequestEntryError(w, typeID, "unregistered struct definition")
			continue
		}
		w.PutUint32(typeID)
		w.PutUint32(uint32(Success))
		if err := def.Encode(w, value); err != nil {
			// Can't unwind what's already been written to w, but this
			// indicates a programming error in the populator/StructDef
			// pairing, not a transient failure; log loudly.
			e.logf(eventloop.LevelError, "data-request: encoding populated type %d: %v", typeID, err)
		}
	}

	if _, err := e.sock.WriteTo(w.Bytes(), peer); err != nil {
		e.logf(eventloop.LevelError, "data-request: sending array response to %s: %v", peer, err)
	}
}

func writeDataRequestEntryError(w *xdr.Writer, typeID uint32, msg string) {
	w.PutUint32(typeID)
	w.PutUint32(uint32(AllocationError))
	w.PutString(msg)
}

// DataRequestEntry is one element of a decoded data-request array
// response: either a successfully populated value or a PopulatorError.
type DataRequestEntry struct {
	TypeID uint32
	Result Result
	Value  any            // non-nil only when Result == Success
	Err    *PopulatorError // non-nil only when Result != Success
}

// DecodeDataRequestArrayResponse decodes the body of a multi-element
// data-request response (as built by handleArrayDataRequest) from a
// buffer already classified as kindResponse with Result == Success.
func DecodeDataRequestArrayResponse(reg *xdr.Registry, buf []byte) ([]DataRequestEntry, error) {
	r := xdr.NewReader(buf)
	for i := 0; i < 4; i++ { // marker, responseTag, ipcref, result
		if _, err := r.GetUint32(); err != nil {
			return nil, err
		}
	}
	n, err := r.GetUint32()
	if err != nil {
		return nil, err
	}
	entries := make([]DataRequestEntry, n)
	for i := range entries {
		typeID, err := r.GetUint32()
		if err != nil {
			return nil, err
		}
		result, err := r.GetUint32()
		if err != nil {
			return nil, err
		}
		if Result(result) == Success {
			def, ok := reg.DefinitionFor(typeID)
			if !ok {
				return nil, xdr.ErrUnknownType
			}
			value := def.New()
			if err := def.Decode(r, value); err != nil {
				return nil, err
			}
			entries[i] = DataRequestEntry{TypeID: typeID, Result: Success, Value: value}
			continue
		}
		msg, err := r.GetString()
		if err != nil {
			return nil, err
		}
		entries[i] = DataRequestEntry{
			TypeID: typeID,
			Result: Result(result),
			Err:    &PopulatorError{TypeID: typeID, Error: msg},
		}
	}
	return entries, nil
}
