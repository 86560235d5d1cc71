package chat

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dungeongate/bancho/internal/codec"
	"github.com/dungeongate/bancho/internal/collab"
	"github.com/dungeongate/bancho/internal/errs"
	"github.com/dungeongate/bancho/internal/player"
	"github.com/dungeongate/bancho/internal/protocol"
	"github.com/dungeongate/bancho/internal/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSession(id int32, name string, perms uint32) *player.Session {
	s := player.New(player.TransportTCP, "")
	s.SetIdentity(id, name)
	s.SetPermissions(perms)

	r := protocol.NewRegistry()
	r.RegisterEncoder(535, protocol.RespChannelJoinSuccess, func(w *codec.Writer, v any) error { w.String(v.(string)); return nil })
	r.RegisterEncoder(535, protocol.RespChannelAvailable, func(w *codec.Writer, v any) error { return nil })
	r.RegisterEncoder(535, protocol.RespSendMessage, func(w *codec.Writer, v any) error { return nil })
	r.RegisterEncoder(535, protocol.RespTargetIsSilenced, func(w *codec.Writer, v any) error { return nil })
	r.RegisterEncoder(535, protocol.RespUserDMBlocked, func(w *codec.Writer, v any) error { return nil })
	s.SetCodecTables(protocol.CodecTables{Registry: r, Version: 535})
	return s
}

func newTestRouter() (*Router, *registry.Registry, collab.Repository) {
	reg := registry.New()
	repo := collab.NewMemoryRepository()
	bot := player.NewBot("BanchoBot")
	return NewRouter(reg, repo, bot, testLogger()), reg, repo
}

func TestJoinRejectsWithoutReadPermission(t *testing.T) {
	router, reg, _ := newTestRouter()
	ch := NewChannel("#staff", "staff only", 4, 4, true, "")
	router.Register(ch)

	user := testSession(1, "rando", 1)
	reg.Append(user)

	err := router.Join(ch, user)
	if !errs.Is(err, errs.ChatSilenced) {
		t.Fatalf("Join() error = %v, want ChatSilenced category", err)
	}
	if ch.MemberCount() != 0 {
		t.Fatal("expected no members after rejected join")
	}
}

func TestJoinAndPartUpdatesMembership(t *testing.T) {
	router, reg, _ := newTestRouter()
	ch := NewChannel("#osu", "general", 0, 0, true, "")
	router.Register(ch)

	user := testSession(1, "peppy", 0)
	reg.Append(user)

	if err := router.Join(ch, user); err != nil {
		t.Fatalf("Join() error: %v", err)
	}
	if !user.InChannel("#osu") {
		t.Fatal("expected session to be in channel after join")
	}
	if ch.MemberCount() != 1 {
		t.Fatalf("MemberCount() = %d, want 1", ch.MemberCount())
	}

	router.Part(ch, user)
	if user.InChannel("#osu") {
		t.Fatal("expected session to no longer be in channel after part")
	}
	if ch.MemberCount() != 0 {
		t.Fatalf("MemberCount() = %d, want 0 after part", ch.MemberCount())
	}
}

func TestSendSkipsSenderAndDeliversToOthers(t *testing.T) {
	router, reg, _ := newTestRouter()
	ch := NewChannel("#osu", "general", 0, 0, true, "")
	router.Register(ch)

	sender := testSession(1, "sender", 0)
	other := testSession(2, "other", 0)
	reg.Append(sender)
	reg.Append(other)
	ch.add(sender)
	ch.add(other)

	if err := router.Send(context.Background(), ch, sender, "hello", false); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	senderOut := sender.DrainOutbound()
	if len(senderOut) != 0 {
		t.Fatal("sender should not receive its own message")
	}
	otherOut := other.DrainOutbound()
	if len(otherOut) == 0 {
		t.Fatal("other member should have received the message")
	}
}

func TestSendRejectsWithoutWritePermission(t *testing.T) {
	router, reg, _ := newTestRouter()
	ch := NewChannel("#announce", "read-only", 0, 8, true, "")
	router.Register(ch)

	sender := testSession(1, "sender", 0)
	reg.Append(sender)
	ch.add(sender)

	err := router.Send(context.Background(), ch, sender, "hi", false)
	if !errs.Is(err, errs.ChatSilenced) {
		t.Fatalf("Send() error = %v, want ChatSilenced", err)
	}
}

func TestSendBlocksSilencedSender(t *testing.T) {
	router, reg, repo := newTestRouter()
	ch := NewChannel("#osu", "general", 0, 0, true, "")
	router.Register(ch)

	sender := testSession(1, "silenced", 0)
	reg.Append(sender)
	ch.add(sender)

	memRepo := repo.(*collab.MemoryRepository)
	_ = memRepo.SetSilence(context.Background(), sender.ID(), time.Now().Add(time.Hour), "spam")

	err := router.Send(context.Background(), ch, sender, "hi", false)
	if !errs.Is(err, errs.ChatSilenced) {
		t.Fatalf("Send() error = %v, want ChatSilenced for silenced sender", err)
	}
}

func TestPrivateMessageBlockedByFriendOnlyDMs(t *testing.T) {
	router, reg, _ := newTestRouter()
	sender := testSession(1, "sender", 0)
	target := testSession(2, "target", 0)
	target.SetFriendOnlyDMs(true)
	reg.Append(sender)
	reg.Append(target)

	err := router.PrivateMessage(context.Background(), sender, "target", "hey")
	if !errs.Is(err, errs.ChatDMBlocked) {
		t.Fatalf("PrivateMessage() error = %v, want ChatDMBlocked", err)
	}
	if out := sender.DrainOutbound(); len(out) == 0 {
		t.Fatal("expected sender to receive a DM-blocked notice")
	}
	if out := target.DrainOutbound(); len(out) != 0 {
		t.Fatal("target should never see a message it blocked")
	}
}

func TestPrivateMessageDeliversWhenAllowed(t *testing.T) {
	router, reg, _ := newTestRouter()
	sender := testSession(1, "sender", 0)
	target := testSession(2, "target", 0)
	reg.Append(sender)
	reg.Append(target)

	if err := router.PrivateMessage(context.Background(), sender, "target", "hey"); err != nil {
		t.Fatalf("PrivateMessage() error: %v", err)
	}
	if out := target.DrainOutbound(); len(out) == 0 {
		t.Fatal("expected target to receive the private message")
	}
}

func TestBotBroadcastIgnoresWritePermission(t *testing.T) {
	router, reg, _ := newTestRouter()
	ch := NewChannel("#admin", "admin only", 8, 8, true, "")
	router.Register(ch)

	member := testSession(1, "member", 1)
	reg.Append(member)
	ch.add(member)

	router.BotBroadcast(context.Background(), "#admin", "server restarting")

	if out := member.DrainOutbound(); len(out) == 0 {
		t.Fatal("expected bot broadcast to reach channel member despite write mask")
	}
}
