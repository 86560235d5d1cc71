package protocol

import (
	"testing"

	"github.com/dungeongate/bancho/internal/codec"
)

func register(r *Registry, version int) {
	r.RegisterDecoder(version, ReqChangeAction, func(rd *codec.Reader) (any, error) {
		return nil, nil
	})
	r.RegisterEncoder(version, RespPong, func(w *codec.Writer, v any) error {
		return nil
	})
}

func TestResolveVersionExactMatch(t *testing.T) {
	r := NewRegistry()
	register(r, 535)
	register(r, 20120812)

	got, ok := r.ResolveVersion(535)
	if !ok || got != 535 {
		t.Fatalf("ResolveVersion(535) = %d, %v, want 535, true", got, ok)
	}
}

func TestResolveVersionPicksNearestOfSeveral(t *testing.T) {
	r := NewRegistry()
	for _, v := range []int{535, 504, 20120812} {
		register(r, v)
	}

	// 900 is closer to 535 (distance 365) than 504 (distance 396) or
	// 20120812 (enormous). No tie here, but it exercises picking the
	// genuinely nearest of several candidates.
	got, ok := r.ResolveVersion(900)
	if !ok || got != 535 {
		t.Fatalf("ResolveVersion(900) = %d, %v, want 535, true", got, ok)
	}
}

func TestResolveVersionTieBreaksTowardOlder(t *testing.T) {
	r := NewRegistry()
	register(r, 500)
	register(r, 520)

	// 510 is exactly 10 away from both 500 and 520: tie breaks to the
	// older (smaller) version.
	got, ok := r.ResolveVersion(510)
	if !ok || got != 500 {
		t.Fatalf("ResolveVersion(510) = %d, %v, want 500, true", got, ok)
	}
}

func TestResolveVersionNoTablesRegistered(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.ResolveVersion(100); ok {
		t.Fatal("expected ok=false when no version registered")
	}
}

func TestDecodeUnknownIDReturnsNotOK(t *testing.T) {
	r := NewRegistry()
	register(r, 535)

	_, ok, err := r.Decode(535, ReqLogout, nil)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for unregistered packet id")
	}
}

func TestDecodeUnknownVersionReturnsNotOK(t *testing.T) {
	r := NewRegistry()
	register(r, 535)

	_, ok, err := r.Decode(999, ReqChangeAction, nil)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for unregistered version")
	}
}

func TestEncodeUnknownVersionErrors(t *testing.T) {
	r := NewRegistry()
	register(r, 535)

	if _, err := r.Encode(999, RespPong, nil); err == nil {
		t.Fatal("expected error for unregistered version")
	}
}

func TestEncodeFrameWrapsPayload(t *testing.T) {
	r := NewRegistry()
	r.RegisterEncoder(535, RespUserID, func(w *codec.Writer, v any) error {
		w.S32(v.(int32))
		return nil
	})
	tables := CodecTables{Registry: r, Version: 535}

	f, err := tables.EncodeFrame(RespUserID, int32(1000))
	if err != nil {
		t.Fatalf("EncodeFrame() error: %v", err)
	}
	if f.ID != uint16(RespUserID) {
		t.Fatalf("EncodeFrame() id = %d, want %d", f.ID, RespUserID)
	}
	if len(f.Payload) != 4 {
		t.Fatalf("EncodeFrame() payload length = %d, want 4", len(f.Payload))
	}
}
