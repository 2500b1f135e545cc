package xdr

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Scan parses a key=value-pairs string, as produced by printKVP, back into
// obj's fields. Tokens are whitespace separated; unknown keys are ignored
// so that newer producers and older consumers can coexist.
func (d *StructDef) Scan(obj any, text string) error {
	for _, tok := range strings.Fields(text) {
		key, val, ok := strings.Cut(tok, "=")
		if !ok {
			return fmt.Errorf("xdr: scan %s: malformed token %q", d.Name, tok)
		}
		f := d.fieldByKey(key)
		if f == nil {
			continue
		}
		if f.Scan == nil {
			return fmt.Errorf("xdr: scan %s: field %s has no scanner", d.Name, f.Name)
		}
		if err := f.Scan(obj, val); err != nil {
			return fmt.Errorf("xdr: scan %s.%s: %w", d.Name, f.Name, err)
		}
	}
	return nil
}

func (d *StructDef) fieldByKey(key string) *FieldDef {
	for i := range d.Fields {
		k := d.Fields[i].Key
		if k == "" {
			k = d.Fields[i].Name
		}
		if k == key {
			return &d.Fields[i]
		}
	}
	return nil
}

// FormatHexBytes renders b as uppercase hex with no separators, the text
// form byte arrays use in human, KVP, and CSV output.
func FormatHexBytes(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// ParseHexBytes reverses FormatHexBytes, accepting either case.
func ParseHexBytes(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("xdr: invalid hex byte array %q: %w", s, err)
	}
	return b, nil
}

// SplitArray splits a comma-delimited array value into its elements. An
// empty string yields a zero-length slice rather than a slice holding one
// empty element.
func SplitArray(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// JoinArray is the inverse of SplitArray.
func JoinArray(elems []string) string {
	return strings.Join(elems, ",")
}
