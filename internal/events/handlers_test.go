package events

import (
	"context"
	"testing"

	"github.com/dungeongate/bancho/internal/chat"
	"github.com/dungeongate/bancho/internal/codec"
	"github.com/dungeongate/bancho/internal/collab"
	"github.com/dungeongate/bancho/internal/multiplayer"
	"github.com/dungeongate/bancho/internal/player"
	"github.com/dungeongate/bancho/internal/protocol"
	"github.com/dungeongate/bancho/internal/registry"
)

func testEventsSession(id int32, name string) *player.Session {
	s := player.New(player.TransportTCP, "")
	s.SetIdentity(id, name)

	r := protocol.NewRegistry()
	for _, rid := range []protocol.ResponseID{
		protocol.RespSendMessage, protocol.RespAnnounce, protocol.RespSilenceInfo,
		protocol.RespUserPresence, protocol.RespUserStats,
		protocol.RespChannelJoinSuccess, protocol.RespChannelAvailable,
		protocol.RespMatchAbort, protocol.RespMatchUpdate,
	} {
		r.RegisterEncoder(535, rid, func(w *codec.Writer, v any) error { return nil })
	}
	s.SetCodecTables(protocol.CodecTables{Registry: r, Version: 535})
	return s
}

func newTestHandlers() (*Handlers, *registry.Registry, *collab.MemoryRepository, *multiplayer.Lobby, *chat.Router) {
	reg := registry.New()
	repo := collab.NewMemoryRepository()
	ranking := collab.NewMemoryRanking()
	bot := player.NewBot("BanchoBot")
	router := chat.NewRouter(reg, repo, bot, testLogger())
	lobby := multiplayer.NewLobby(router, reg, testLogger())
	h := NewHandlers(repo, ranking, reg, router, lobby, bot, testLogger())
	return h, reg, repo, lobby, router
}

func TestRestrictClosesOnlineSessionAndPersists(t *testing.T) {
	h, reg, repo, _, _ := newTestHandlers()
	repo.Seed(&collab.User{ID: 7, Name: "cheater", Permissions: 1})

	s := testEventsSession(7, "cheater")
	s.SetPermissions(1)
	reg.Append(s)

	h.restrict(int32(7), "cheating", true)

	if !s.Closed() {
		t.Fatal("expected online session to be closed after restrict")
	}
	if s.Permissions() != 0 {
		t.Fatalf("expected permissions cleared, got %d", s.Permissions())
	}
	u, err := repo.UserByID(context.Background(), 7)
	if err != nil {
		t.Fatalf("UserByID() error: %v", err)
	}
	if !u.Restricted {
		t.Fatal("expected persisted user record marked Restricted")
	}
}

func TestRestrictUnknownUserIsNoop(t *testing.T) {
	h, _, _, _, _ := newTestHandlers()
	h.restrict(int32(999), "reason", false)
}

func TestSilenceNotifiesOnlineSession(t *testing.T) {
	h, reg, repo, _, _ := newTestHandlers()
	s := testEventsSession(3, "noisy")
	reg.Append(s)

	h.silence(int32(3), 60, "spam")

	if out := s.DrainOutbound(); len(out) == 0 {
		t.Fatal("expected silence notice delivered to the online session")
	}
	_, silenced, err := repo.ActiveSilence(context.Background(), 3)
	if err != nil || !silenced {
		t.Fatal("expected silence recorded in repository")
	}
}

func TestAnnouncementBroadcastsToEverySession(t *testing.T) {
	h, reg, _, _, _ := newTestHandlers()
	a := testEventsSession(1, "a")
	b := testEventsSession(2, "b")
	reg.Append(a)
	reg.Append(b)

	h.announcement("server restarting")

	if len(a.DrainOutbound()) == 0 || len(b.DrainOutbound()) == 0 {
		t.Fatal("expected both sessions to receive the announcement")
	}
}

func TestOsuErrorAbortsInProgressMatch(t *testing.T) {
	h, reg, _, lobby, _ := newTestHandlers()
	host := testEventsSession(1, "host")
	reg.Append(host)

	m, err := lobby.Create(host, protocol.MatchState{Name: "room"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := lobby.Start(host); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if !m.InProgress() {
		t.Fatal("expected match in progress before osu_error")
	}

	h.osuError(int32(1), "client crashed")

	if m.InProgress() {
		t.Fatal("expected match aborted (no longer in progress) after osu_error")
	}
}

func TestOsuErrorOfflineUserIsNoop(t *testing.T) {
	h, _, _, _, _ := newTestHandlers()
	h.osuError(int32(999), "ignored")
}
