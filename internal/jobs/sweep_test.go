package jobs

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dungeongate/bancho/internal/codec"
	"github.com/dungeongate/bancho/internal/player"
	"github.com/dungeongate/bancho/internal/protocol"
	"github.com/dungeongate/bancho/internal/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDisconnector stands in for *bancho.Service in tests: it records which
// sessions tick() handed it and performs just enough of the real
// connectionLost chain (MarkClosed) to keep the existing Closed()
// assertions meaningful, without pulling in the full bancho.Service wiring.
type fakeDisconnector struct {
	mu       sync.Mutex
	notified []int32
}

func (f *fakeDisconnector) Disconnect(ctx context.Context, s *player.Session) {
	f.mu.Lock()
	f.notified = append(f.notified, s.ID())
	f.mu.Unlock()
	s.MarkClosed()
}

func (f *fakeDisconnector) wasNotified(id int32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, got := range f.notified {
		if got == id {
			return true
		}
	}
	return false
}

func testSweepSession(id int32, transport player.Transport) *player.Session {
	s := player.New(transport, "")
	s.SetIdentity(id, "x")

	r := protocol.NewRegistry()
	r.RegisterEncoder(535, protocol.RespPong, func(w *codec.Writer, v any) error { return nil })
	s.SetCodecTables(protocol.CodecTables{Registry: r, Version: 535})
	return s
}

func TestTickSkipsBotSession(t *testing.T) {
	reg := registry.New()
	bot := player.NewBot("BanchoBot")
	bot.SetLastResponse(time.Now().Add(-time.Hour))
	reg.Append(bot)

	sw := NewSweep(reg, &fakeDisconnector{}, testLogger())
	sw.tick()

	if bot.Closed() {
		t.Fatal("expected bot session never closed by tick")
	}
}

func TestTickSkipsAlreadyClosedSession(t *testing.T) {
	reg := registry.New()
	s := testSweepSession(1, player.TransportTCP)
	s.SetLastResponse(time.Now().Add(-time.Hour))
	s.MarkClosed()
	reg.Append(s)

	sw := NewSweep(reg, &fakeDisconnector{}, testLogger())
	sw.tick()

	if len(s.DrainOutbound()) != 0 {
		t.Fatal("expected no ping queued for an already-closed session")
	}
}

func TestTickLeavesFreshSessionUntouched(t *testing.T) {
	reg := registry.New()
	s := testSweepSession(1, player.TransportTCP)
	reg.Append(s)

	sw := NewSweep(reg, &fakeDisconnector{}, testLogger())
	sw.tick()

	if s.Closed() {
		t.Fatal("expected freshly touched session not timed out")
	}
	if len(s.DrainOutbound()) != 0 {
		t.Fatal("expected freshly touched session not pinged")
	}
}

func TestTickPingsIdleTCPSessionPastPingInterval(t *testing.T) {
	reg := registry.New()
	s := testSweepSession(1, player.TransportTCP)
	s.SetLastResponse(time.Now().Add(-pingInterval - time.Second))
	reg.Append(s)

	sw := NewSweep(reg, &fakeDisconnector{}, testLogger())
	sw.tick()

	if s.Closed() {
		t.Fatal("expected session idle past ping interval but under timeout to stay open")
	}
	if len(s.DrainOutbound()) == 0 {
		t.Fatal("expected a ping frame queued for an idle TCP session")
	}
}

func TestTickNeverPingsHTTPSession(t *testing.T) {
	reg := registry.New()
	s := testSweepSession(1, player.TransportHTTP)
	s.SetLastResponse(time.Now().Add(-pingInterval - time.Second))
	reg.Append(s)

	sw := NewSweep(reg, &fakeDisconnector{}, testLogger())
	sw.tick()

	if len(s.DrainOutbound()) != 0 {
		t.Fatal("expected no ping queued for an idle HTTP session")
	}
}

func TestTickClosesSessionPastTimeout(t *testing.T) {
	reg := registry.New()
	s := testSweepSession(1, player.TransportTCP)
	s.SetLastResponse(time.Now().Add(-timeout - time.Second))
	reg.Append(s)

	disc := &fakeDisconnector{}
	sw := NewSweep(reg, disc, testLogger())
	sw.tick()

	if !disc.wasNotified(1) {
		t.Fatal("expected the timed-out session to be handed to the Disconnector")
	}
	if !s.Closed() {
		t.Fatal("expected session idle past timeout to be closed")
	}
}

func TestTickNeverNotifiesDisconnectorForFreshOrPingedSessions(t *testing.T) {
	reg := registry.New()
	fresh := testSweepSession(1, player.TransportTCP)
	idle := testSweepSession(2, player.TransportTCP)
	idle.SetLastResponse(time.Now().Add(-pingInterval - time.Second))
	reg.Append(fresh)
	reg.Append(idle)

	disc := &fakeDisconnector{}
	sw := NewSweep(reg, disc, testLogger())
	sw.tick()

	if disc.wasNotified(1) || disc.wasNotified(2) {
		t.Fatal("expected the Disconnector untouched by sessions under the timeout")
	}
}
