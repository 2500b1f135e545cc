package xdr

import "fmt"

// Union holds a discriminated value whose concrete type is resolved at
// decode time by looking Tag up in a Registry — the wire shape used
// wherever the original switches on a type id before reading the payload
// that follows it (command bodies, data-request results).
type Union struct {
	Tag   uint32
	Value any
}

// EncodeUnion writes u.Tag followed by u.Value encoded per its registered
// StructDef.
func EncodeUnion(reg *Registry, w *Writer, u Union) error {
	def, ok := reg.DefinitionFor(u.Tag)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownType, u.Tag)
	}
	w.PutUint32(u.Tag)
	return def.Encode(w, u.Value)
}

// DecodeUnion reads a tag from r, looks it up in reg, constructs a fresh
// value via the StructDef's New, decodes into it, and returns the
// populated Union.
func DecodeUnion(reg *Registry, r *Reader) (Union, error) {
	tag, err := r.GetUint32()
	if err != nil {
		return Union{}, err
	}
	def, ok := reg.DefinitionFor(tag)
	if !ok {
		return Union{}, fmt.Errorf("%w: %d", ErrUnknownType, tag)
	}
	val := def.New()
	if err := def.Decode(r, val); err != nil {
		return Union{}, err
	}
	return Union{Tag: tag, Value: val}, nil
}
