package player

import (
	"testing"

	"github.com/dungeongate/bancho/internal/codec"
	"github.com/dungeongate/bancho/internal/protocol"
)

func testTables(version int) protocol.CodecTables {
	r := protocol.NewRegistry()
	r.RegisterEncoder(version, protocol.RespUserID, func(w *codec.Writer, v any) error {
		w.S32(v.(int32))
		return nil
	})
	return protocol.CodecTables{Registry: r, Version: version}
}

func TestNewSessionIsPreLogin(t *testing.T) {
	s := New(TransportTCP, "1.2.3.4:1234")
	if s.ID() != PreLoginID {
		t.Fatalf("ID() = %d, want %d", s.ID(), PreLoginID)
	}
	if s.Closed() {
		t.Fatal("new session should not be closed")
	}
}

func TestSetIdentityUpdatesSafeName(t *testing.T) {
	s := New(TransportTCP, "")
	s.SetIdentity(42, "Cookiezi Fan")
	if s.Name() != "Cookiezi Fan" {
		t.Fatalf("Name() = %q", s.Name())
	}
	if s.SafeName() != "cookiezi_fan" {
		t.Fatalf("SafeName() = %q, want cookiezi_fan", s.SafeName())
	}
}

func TestNewBotHasNegativeID(t *testing.T) {
	bot := NewBot("BanchoBot")
	if !bot.IsBot() {
		t.Fatal("expected IsBot() true")
	}
	if bot.ID() != BotSessionID {
		t.Fatalf("ID() = %d, want %d", bot.ID(), BotSessionID)
	}
}

func TestSendFrameOnBotIsNoop(t *testing.T) {
	bot := NewBot("BanchoBot")
	bot.SetCodecTables(testTables(535))
	if err := bot.SendFrame(protocol.RespUserID, int32(1)); err != nil {
		t.Fatalf("SendFrame() on bot error: %v", err)
	}
	if b := bot.DrainOutbound(); b != nil {
		t.Fatalf("expected nil outbound for bot, got %v", b)
	}
}

func TestSendFrameBeforeLoginIsNoop(t *testing.T) {
	s := New(TransportTCP, "")
	if err := s.SendFrame(protocol.RespUserID, int32(1)); err != nil {
		t.Fatalf("SendFrame() before login error: %v", err)
	}
	if b := s.DrainOutbound(); b != nil {
		t.Fatalf("expected nil outbound before login, got %v", b)
	}
}

func TestSendFrameQueuesBytesUntilDrained(t *testing.T) {
	s := New(TransportTCP, "")
	s.SetCodecTables(testTables(535))

	if err := s.SendFrame(protocol.RespUserID, int32(1000)); err != nil {
		t.Fatalf("SendFrame() error: %v", err)
	}
	if err := s.SendFrame(protocol.RespUserID, int32(2000)); err != nil {
		t.Fatalf("SendFrame() error: %v", err)
	}

	out := s.DrainOutbound()
	if len(out) == 0 {
		t.Fatal("expected queued bytes after two SendFrame calls")
	}

	if second := s.DrainOutbound(); second != nil {
		t.Fatalf("expected nil on second drain, got %v", second)
	}
}

func TestMarkClosedIsIdempotent(t *testing.T) {
	s := New(TransportTCP, "")
	s.SetToken("abc123")

	if !s.MarkClosed() {
		t.Fatal("first MarkClosed() should return true")
	}
	if s.Token() != "" {
		t.Fatalf("token should be cleared on close, got %q", s.Token())
	}
	if s.MarkClosed() {
		t.Fatal("second MarkClosed() should return false")
	}
}

type countingCloser struct{ closes int }

func (c *countingCloser) Close() error {
	c.closes++
	return nil
}

func TestCloseClosesStoredConnOnlyOnce(t *testing.T) {
	s := New(TransportTCP, "")
	closer := &countingCloser{}
	s.SetCloser(closer)

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
	if closer.closes != 1 {
		t.Fatalf("underlying Close() called %d times, want 1", closer.closes)
	}
}

func TestCloseWithoutCloserIsNoop(t *testing.T) {
	s := New(TransportTCP, "")
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
}

func TestChannelMembership(t *testing.T) {
	s := New(TransportTCP, "")
	s.JoinChannel("#osu")
	s.JoinChannel("#announce")
	if !s.InChannel("#osu") {
		t.Fatal("expected InChannel(#osu) true")
	}
	s.PartChannel("#osu")
	if s.InChannel("#osu") {
		t.Fatal("expected InChannel(#osu) false after part")
	}
	if len(s.ChannelNames()) != 1 {
		t.Fatalf("ChannelNames() = %v, want 1 entry", s.ChannelNames())
	}
}

func TestSpectatorRelationship(t *testing.T) {
	host := New(TransportTCP, "")
	host.SetIdentity(1, "host")
	spec := New(TransportTCP, "")
	spec.SetIdentity(2, "spec")

	host.AddSpectator(spec)
	if host.SpectatorCount() != 1 {
		t.Fatalf("SpectatorCount() = %d, want 1", host.SpectatorCount())
	}
	host.RemoveSpectator(spec.ID())
	if host.SpectatorCount() != 0 {
		t.Fatalf("SpectatorCount() = %d, want 0 after remove", host.SpectatorCount())
	}
}

func TestIsFriendOf(t *testing.T) {
	s := New(TransportTCP, "")
	s.SetFriends([]int32{10, 20, 30})
	if !s.IsFriendOf(20) {
		t.Fatal("expected IsFriendOf(20) true")
	}
	if s.IsFriendOf(99) {
		t.Fatal("expected IsFriendOf(99) false")
	}
}
