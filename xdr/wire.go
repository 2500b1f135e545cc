package xdr

import (
	"encoding/binary"
	"fmt"
	"math"
)

// align4 returns n rounded up to the next multiple of 4.
func align4(n int) int { return (n + 3) &^ 3 }

// padLen is the number of zero bytes needed to pad n bytes to a 4-byte
// boundary: (4 - n%4) % 4.
func padLen(n int) int { return (4 - n%4) % 4 }

// Writer serializes values in the wire format: big-endian, 4-byte aligned.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with capacity hinted by size.
func NewWriter(size int) *Writer {
	return &Writer{buf: make([]byte, 0, size)}
}

// Bytes returns the accumulated wire data.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// PutUint32 appends v as 4 big-endian bytes.
func (w *Writer) PutUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// PutInt32 appends v as a signed 4-byte big-endian value.
func (w *Writer) PutInt32(v int32) { w.PutUint32(uint32(v)) }

// PutUint64 appends v as two big-endian uint32 words, high word first.
func (w *Writer) PutUint64(v uint64) {
	w.PutUint32(uint32(v >> 32))
	w.PutUint32(uint32(v))
}

// PutInt64 appends v as two big-endian uint32 words, high word first.
func (w *Writer) PutInt64(v int64) { w.PutUint64(uint64(v)) }

// PutFloat32 appends v's IEEE-754 bits as 4 big-endian bytes.
func (w *Writer) PutFloat32(v float32) { w.PutUint32(math.Float32bits(v)) }

// PutFloat64 appends v's IEEE-754 bits as two big-endian uint32 words.
func (w *Writer) PutFloat64(v float64) { w.PutUint64(math.Float64bits(v)) }

// PutVarBytes appends data followed by zero padding to a 4-byte boundary.
// No length prefix is written; the caller writes the length as a separate
// sibling field.
func (w *Writer) PutVarBytes(data []byte) {
	w.buf = append(w.buf, data...)
	w.buf = append(w.buf, make([]byte, padLen(len(data)))...)
}

// PutString appends a u32 length prefix, the string's bytes, then zero
// padding — the encoding used for strings in array context.
func (w *Writer) PutString(s string) {
	w.PutUint32(uint32(len(s)))
	w.PutVarBytes([]byte(s))
}

// Reader deserializes wire-format values, tracking position for sequential
// decodes the way the original's decoders report bytesConsumed.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential decoding.
func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

// Len returns the number of unread bytes remaining.
func (r *Reader) Len() int { return len(r.buf) - r.pos }

// Pos returns the current read offset (bytes consumed so far).
func (r *Reader) Pos() int { return r.pos }

func (r *Reader) need(n int) error {
	if r.Len() < n {
		return fmt.Errorf("xdr: short buffer: need %d bytes, have %d", n, r.Len())
	}
	return nil
}

// GetUint32 reads 4 big-endian bytes.
func (r *Reader) GetUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

// GetInt32 reads a signed 4-byte big-endian value.
func (r *Reader) GetInt32() (int32, error) {
	v, err := r.GetUint32()
	return int32(v), err
}

// GetUint64 reads two big-endian uint32 words, high word first.
func (r *Reader) GetUint64() (uint64, error) {
	hi, err := r.GetUint32()
	if err != nil {
		return 0, err
	}
	lo, err := r.GetUint32()
	if err != nil {
		return 0, err
	}
	return uint64(hi)<<32 | uint64(lo), nil
}

// GetInt64 reads two big-endian uint32 words, high word first.
func (r *Reader) GetInt64() (int64, error) {
	v, err := r.GetUint64()
	return int64(v), err
}

// GetFloat32 reads 4 big-endian bytes as IEEE-754 bits.
func (r *Reader) GetFloat32() (float32, error) {
	v, err := r.GetUint32()
	return math.Float32frombits(v), err
}

// GetFloat64 reads two big-endian uint32 words as IEEE-754 bits.
func (r *Reader) GetFloat64() (float64, error) {
	v, err := r.GetUint64()
	return math.Float64frombits(v), err
}

// GetVarBytes reads exactly n bytes followed by their zero padding to a
// 4-byte boundary (n comes from a sibling length field the caller already
// decoded).
func (r *Reader) GetVarBytes(n int) ([]byte, error) {
	if err := r.need(align4(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+n])
	r.pos += align4(n)
	return out, nil
}

// GetString reads a u32 length prefix, that many bytes, and the padding
// to a 4-byte boundary.
func (r *Reader) GetString() (string, error) {
	n, err := r.GetUint32()
	if err != nil {
		return "", err
	}
	b, err := r.GetVarBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
