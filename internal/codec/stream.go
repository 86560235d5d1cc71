// Package codec implements the typed byte-stream primitives the bancho wire
// protocol is built from: fixed-width little-endian integers, ULEB-128
// length-prefixed strings, u16-counted arrays and single-byte booleans.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrTruncated is returned by any Reader method that would read past the
// end of the underlying buffer.
var ErrTruncated = errors.New("codec: truncated read")

const (
	stringMarkerNone   = 0x00
	stringMarkerPresent = 0x0B
)

// Reader is a cursor-backed reader over a byte-stream payload.
type Reader struct {
	buf    []byte
	cursor int
}

// NewReader wraps buf for sequential typed reads starting at offset 0.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Eof reports whether the cursor has reached the end of the buffer.
func (r *Reader) Eof() bool {
	return r.cursor >= len(r.buf)
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.cursor
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.cursor+n > len(r.buf) {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, n, r.Remaining())
	}
	b := r.buf[r.cursor : r.cursor+n]
	r.cursor += n
	return b, nil
}

// U8 reads an unsigned byte.
func (r *Reader) U8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// S8 reads a signed byte.
func (r *Reader) S8() (int8, error) {
	v, err := r.U8()
	return int8(v), err
}

// Bool reads a single byte as a boolean (0 = false, nonzero = true).
func (r *Reader) Bool() (bool, error) {
	v, err := r.U8()
	return v != 0, err
}

// U16 reads a little-endian uint16.
func (r *Reader) U16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// S16 reads a little-endian int16.
func (r *Reader) S16() (int16, error) {
	v, err := r.U16()
	return int16(v), err
}

// U32 reads a little-endian uint32.
func (r *Reader) U32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// S32 reads a little-endian int32.
func (r *Reader) S32() (int32, error) {
	v, err := r.U32()
	return int32(v), err
}

// U64 reads a little-endian uint64.
func (r *Reader) U64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// S64 reads a little-endian int64.
func (r *Reader) S64() (int64, error) {
	v, err := r.U64()
	return int64(v), err
}

// F32 reads a little-endian IEEE-754 single-precision float.
func (r *Reader) F32() (float32, error) {
	v, err := r.U32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// F64 reads a little-endian IEEE-754 double-precision float.
func (r *Reader) F64() (float64, error) {
	v, err := r.U64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// Uleb128 reads an unsigned LEB-128 varint.
func (r *Reader) Uleb128() (uint32, error) {
	var result uint32
	var shift uint
	for {
		b, err := r.U8()
		if err != nil {
			return 0, err
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift > 28 {
			return 0, fmt.Errorf("codec: uleb128 overflow")
		}
	}
	return result, nil
}

// String reads a marker byte followed, when present, by a ULEB-128 length
// and that many UTF-8 bytes. A 0x00 marker decodes to the empty string.
func (r *Reader) String() (string, error) {
	marker, err := r.U8()
	if err != nil {
		return "", err
	}
	if marker == stringMarkerNone {
		return "", nil
	}
	if marker != stringMarkerPresent {
		return "", fmt.Errorf("codec: unknown string marker 0x%02x", marker)
	}
	length, err := r.Uleb128()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(length))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Bytes reads n raw bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	return r.take(n)
}

// Rest returns all unread bytes without advancing error state (it still
// advances the cursor to the end).
func (r *Reader) Rest() []byte {
	b := r.buf[r.cursor:]
	r.cursor = len(r.buf)
	return b
}

// Writer is an append-only little-endian byte-stream builder.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// U8 appends an unsigned byte.
func (w *Writer) U8(v uint8) { w.buf = append(w.buf, v) }

// S8 appends a signed byte.
func (w *Writer) S8(v int8) { w.U8(uint8(v)) }

// Bool appends a boolean as a single byte.
func (w *Writer) Bool(v bool) {
	if v {
		w.U8(1)
	} else {
		w.U8(0)
	}
}

// U16 appends a little-endian uint16.
func (w *Writer) U16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// S16 appends a little-endian int16.
func (w *Writer) S16(v int16) { w.U16(uint16(v)) }

// U32 appends a little-endian uint32.
func (w *Writer) U32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// S32 appends a little-endian int32.
func (w *Writer) S32(v int32) { w.U32(uint32(v)) }

// U64 appends a little-endian uint64.
func (w *Writer) U64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// S64 appends a little-endian int64.
func (w *Writer) S64(v int64) { w.U64(uint64(v)) }

// F32 appends a little-endian IEEE-754 single-precision float.
func (w *Writer) F32(v float32) { w.U32(math.Float32bits(v)) }

// F64 appends a little-endian IEEE-754 double-precision float.
func (w *Writer) F64(v float64) { w.U64(math.Float64bits(v)) }

// Uleb128 appends an unsigned LEB-128 varint.
func (w *Writer) Uleb128(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			w.U8(b | 0x80)
		} else {
			w.U8(b)
			return
		}
	}
}

// String appends a framed string: marker 0x00 for empty, else 0x0B followed
// by a ULEB-128 length and the UTF-8 bytes.
func (w *Writer) String(s string) {
	if s == "" {
		w.U8(stringMarkerNone)
		return
	}
	w.U8(stringMarkerPresent)
	w.Uleb128(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// RawBytes appends raw bytes verbatim.
func (w *Writer) RawBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// ArrayHeader appends the u16 element count that precedes an array body.
func (w *Writer) ArrayHeader(n int) { w.U16(uint16(n)) }

// ArrayHeader reads the u16 element count that precedes an array body.
func (r *Reader) ArrayHeader() (int, error) {
	n, err := r.U16()
	return int(n), err
}
