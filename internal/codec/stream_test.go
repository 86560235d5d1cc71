package codec

import (
	"bytes"
	"testing"
)

func TestIntRoundTrip(t *testing.T) {
	w := NewWriter()
	w.U8(0xAB)
	w.S8(-12)
	w.U16(0xBEEF)
	w.S16(-1000)
	w.U32(0xDEADBEEF)
	w.S32(-123456)
	w.U64(0x0123456789ABCDEF)
	w.S64(-1)
	w.F32(3.5)
	w.F64(2.71828)
	w.Bool(true)
	w.Bool(false)

	r := NewReader(w.Bytes())

	if v, err := r.U8(); err != nil || v != 0xAB {
		t.Fatalf("U8 = %v, %v", v, err)
	}
	if v, err := r.S8(); err != nil || v != -12 {
		t.Fatalf("S8 = %v, %v", v, err)
	}
	if v, err := r.U16(); err != nil || v != 0xBEEF {
		t.Fatalf("U16 = %v, %v", v, err)
	}
	if v, err := r.S16(); err != nil || v != -1000 {
		t.Fatalf("S16 = %v, %v", v, err)
	}
	if v, err := r.U32(); err != nil || v != 0xDEADBEEF {
		t.Fatalf("U32 = %v, %v", v, err)
	}
	if v, err := r.S32(); err != nil || v != -123456 {
		t.Fatalf("S32 = %v, %v", v, err)
	}
	if v, err := r.U64(); err != nil || v != 0x0123456789ABCDEF {
		t.Fatalf("U64 = %v, %v", v, err)
	}
	if v, err := r.S64(); err != nil || v != -1 {
		t.Fatalf("S64 = %v, %v", v, err)
	}
	if v, err := r.F32(); err != nil || v != 3.5 {
		t.Fatalf("F32 = %v, %v", v, err)
	}
	if v, err := r.F64(); err != nil || v != 2.71828 {
		t.Fatalf("F64 = %v, %v", v, err)
	}
	if v, err := r.Bool(); err != nil || v != true {
		t.Fatalf("Bool = %v, %v", v, err)
	}
	if v, err := r.Bool(); err != nil || v != false {
		t.Fatalf("Bool = %v, %v", v, err)
	}
	if !r.Eof() {
		t.Fatalf("expected eof, %d bytes remaining", r.Remaining())
	}
}

func TestStringRoundTrip(t *testing.T) {
	cases := []string{"", "hello", "peppy", "a long string with some words in it"}
	w := NewWriter()
	for _, s := range cases {
		w.String(s)
	}
	r := NewReader(w.Bytes())
	for _, want := range cases {
		got, err := r.String()
		if err != nil {
			t.Fatalf("String() error: %v", err)
		}
		if got != want {
			t.Fatalf("String() = %q, want %q", got, want)
		}
	}
}

func TestStringEmptyUsesNoneMarker(t *testing.T) {
	w := NewWriter()
	w.String("")
	if got := w.Bytes(); !bytes.Equal(got, []byte{stringMarkerNone}) {
		t.Fatalf("empty string encoded as %v, want [0x00]", got)
	}
}

func TestUleb128RoundTrip(t *testing.T) {
	values := []uint32{0, 1, 127, 128, 300, 16384, 0x0FFFFFFF}
	w := NewWriter()
	for _, v := range values {
		w.Uleb128(v)
	}
	r := NewReader(w.Bytes())
	for _, want := range values {
		got, err := r.Uleb128()
		if err != nil {
			t.Fatalf("Uleb128() error: %v", err)
		}
		if got != want {
			t.Fatalf("Uleb128() = %d, want %d", got, want)
		}
	}
}

func TestReaderTruncatedRead(t *testing.T) {
	r := NewReader([]byte{0x01})
	if _, err := r.U32(); err == nil {
		t.Fatal("expected truncated read error, got nil")
	}
}

func TestReaderUnknownStringMarker(t *testing.T) {
	r := NewReader([]byte{0x42})
	if _, err := r.String(); err == nil {
		t.Fatal("expected error for unknown string marker")
	}
}

func TestArrayHeaderRoundTrip(t *testing.T) {
	w := NewWriter()
	w.ArrayHeader(42)
	r := NewReader(w.Bytes())
	n, err := r.ArrayHeader()
	if err != nil || n != 42 {
		t.Fatalf("ArrayHeader() = %d, %v, want 42, nil", n, err)
	}
}

func TestRestReturnsRemainingBytes(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4, 5})
	_, _ = r.U8()
	rest := r.Rest()
	if !bytes.Equal(rest, []byte{2, 3, 4, 5}) {
		t.Fatalf("Rest() = %v, want [2 3 4 5]", rest)
	}
	if !r.Eof() {
		t.Fatal("expected eof after Rest()")
	}
}
