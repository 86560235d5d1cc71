package bancho

import (
	"context"
	"testing"

	"github.com/dungeongate/bancho/internal/chat"
	"github.com/dungeongate/bancho/internal/player"
	"github.com/dungeongate/bancho/internal/protocol"
)

func loggedIn(svc *Service, id int32, name string) *player.Session {
	s := player.New(player.TransportTCP, "")
	s.SetIdentity(id, name)
	s.SetCodecTables(protocol.CodecTables{Registry: svc.Codecs, Version: testProtoVersion})
	svc.Registry.Append(s)
	return s
}

func TestDispatchBeforeLoginErrors(t *testing.T) {
	svc, _ := testService()
	s := player.New(player.TransportTCP, "")

	if err := svc.Dispatch(context.Background(), s, protocol.ReqPong, nil); err == nil {
		t.Fatal("expected Dispatch() to error before login")
	}
}

func TestRouteChangeActionUpdatesStatus(t *testing.T) {
	svc, _ := testService()
	s := loggedIn(svc, 1, "x")

	status := protocol.Status{Action: 2, Mode: 1}
	if err := svc.route(context.Background(), s, protocol.ReqChangeAction, status); err != nil {
		t.Fatalf("route() error: %v", err)
	}
	if got := s.Status(); got.Action != 2 || got.Mode != 1 {
		t.Fatalf("Status() = %+v, want %+v", got, status)
	}
}

func TestRouteSendPublicMessageDeliversToChannel(t *testing.T) {
	svc, _ := testService()
	sender := loggedIn(svc, 1, "sender")
	other := loggedIn(svc, 2, "other")

	ch := chat.NewChannel("#osu", "", 0, 0, true, "")
	svc.Router.Register(ch)
	if err := svc.Router.Join(ch, sender); err != nil {
		t.Fatalf("Join(sender) error: %v", err)
	}
	if err := svc.Router.Join(ch, other); err != nil {
		t.Fatalf("Join(other) error: %v", err)
	}

	msg := protocol.Message{Target: "#osu", Content: "hello"}
	if err := svc.route(context.Background(), sender, protocol.ReqSendPublicMessage, msg); err != nil {
		t.Fatalf("route() error: %v", err)
	}
	if len(other.DrainOutbound()) == 0 {
		t.Fatal("expected other channel member to receive the message")
	}
}

func TestRouteLogoutDisconnectsSession(t *testing.T) {
	svc, _ := testService()
	s := loggedIn(svc, 1, "x")

	if err := svc.route(context.Background(), s, protocol.ReqLogout, nil); err != nil {
		t.Fatalf("route() error: %v", err)
	}
	if !s.Closed() {
		t.Fatal("expected ReqLogout to close the session")
	}
	if _, ok := svc.Registry.ByID(1); ok {
		t.Fatal("expected ReqLogout to remove the session from the registry")
	}
}

func TestRouteChannelJoinAndPart(t *testing.T) {
	svc, _ := testService()
	s := loggedIn(svc, 1, "x")
	svc.Router.Register(chat.NewChannel("#osu", "", 0, 0, true, ""))

	if err := svc.route(context.Background(), s, protocol.ReqChannelJoin, "#osu"); err != nil {
		t.Fatalf("route(join) error: %v", err)
	}
	if !s.InChannel("#osu") {
		t.Fatal("expected session joined to #osu")
	}

	if err := svc.route(context.Background(), s, protocol.ReqChannelPart, "#osu"); err != nil {
		t.Fatalf("route(part) error: %v", err)
	}
	if s.InChannel("#osu") {
		t.Fatal("expected session parted from #osu")
	}
}

func TestRouteUserPresenceRequestSendsOnlyKnownIDs(t *testing.T) {
	svc, _ := testService()
	s := loggedIn(svc, 1, "x")
	other := loggedIn(svc, 2, "other")
	_ = other

	if err := svc.route(context.Background(), s, protocol.ReqUserPresenceRequest, []int32{2, 999}); err != nil {
		t.Fatalf("route() error: %v", err)
	}
	if len(s.DrainOutbound()) == 0 {
		t.Fatal("expected a presence frame queued for the known id")
	}
}

func TestRouteMatchCreateSeatsHost(t *testing.T) {
	svc, _ := testService()
	host := loggedIn(svc, 1, "host")

	err := svc.route(context.Background(), host, protocol.ReqMatchCreate, protocol.MatchState{Name: "room"})
	if err != nil {
		t.Fatalf("route() error: %v", err)
	}
	if host.MatchID() == 0 {
		t.Fatal("expected host seated into a new match")
	}
}

func TestRouteUnknownIDIsNoop(t *testing.T) {
	svc, _ := testService()
	s := loggedIn(svc, 1, "x")

	if err := svc.route(context.Background(), s, protocol.RequestID(65000), nil); err != nil {
		t.Fatalf("route() error: %v", err)
	}
}
