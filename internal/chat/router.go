package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dungeongate/bancho/internal/collab"
	"github.com/dungeongate/bancho/internal/errs"
	"github.com/dungeongate/bancho/internal/player"
	"github.com/dungeongate/bancho/internal/protocol"
	"github.com/dungeongate/bancho/internal/registry"
)

// Router owns the set of registered channels and implements the chat
// operations: join, part, send, private-message and bot broadcast.
type Router struct {
	mu       sync.RWMutex
	channels map[string]*Channel

	registry *registry.Registry
	repo     collab.Repository
	bot      *player.Session
	logger   *slog.Logger
}

// NewRouter constructs a Router bound to a session registry, a Repository
// collaborator for silence checks, and the bot identity used for
// ignore_privs broadcasts.
func NewRouter(reg *registry.Registry, repo collab.Repository, bot *player.Session, logger *slog.Logger) *Router {
	return &Router{
		channels: make(map[string]*Channel),
		registry: reg,
		repo:     repo,
		bot:      bot,
		logger:   logger,
	}
}

// Register adds ch to the router, replacing any existing channel of the
// same name.
func (r *Router) Register(ch *Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch.Name] = ch
}

// Dispose removes a channel entirely (used when a spectator group or match
// channel's lifetime ends).
func (r *Router) Dispose(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, name)
}

func (r *Router) ByName(name string) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	return ch, ok
}

// Public returns every public channel, for CHANNEL_AVAILABLE enumeration at
// login.
func (r *Router) Public() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		if ch.Public {
			out = append(out, ch)
		}
	}
	return out
}

// Join adds self to ch, provided self can read it.
func (r *Router) Join(ch *Channel, self *player.Session) error {
	if !ch.CanRead(self.Permissions()) {
		return errs.New(errs.ChatSilenced, "no read permission for %s", ch.Name)
	}
	ch.add(self)
	self.JoinChannel(ch.Name)

	_ = self.SendFrame(protocol.RespChannelJoinSuccess, ch.Name)
	r.broadcastAvailability(ch)
	return nil
}

// Part removes self from ch.
func (r *Router) Part(ch *Channel, self *player.Session) {
	ch.remove(self)
	self.PartChannel(ch.Name)
	r.broadcastAvailability(ch)
}

func (r *Router) broadcastAvailability(ch *Channel) {
	info := protocol.ChannelInfo{Name: ch.Name, Topic: ch.Topic, MemberCount: int16(ch.MemberCount())}
	for _, s := range r.registry.All() {
		if ch.CanRead(s.Permissions()) {
			_ = s.SendFrame(protocol.RespChannelAvailable, info)
		}
	}
}

// Send splits text on newlines and forwards each non-empty line to every
// channel member except the sender (and sessions with presence filter
// None). ignorePrivs skips the write-permission and silence checks (used
// for bot broadcasts).
func (r *Router) Send(ctx context.Context, ch *Channel, sender *player.Session, text string, ignorePrivs bool) error {
	if !ignorePrivs {
		if !ch.CanWrite(sender.Permissions()) {
			return errs.New(errs.ChatSilenced, "no write permission for %s", ch.Name)
		}
		if !sender.IsBot() {
			if until, silenced, err := r.repo.ActiveSilence(ctx, sender.ID()); err == nil && silenced {
				_ = sender.SendFrame(protocol.RespTargetIsSilenced, ch.Name)
				r.logger.Debug("chat send rejected: silenced", "user_id", sender.ID(), "until", until)
				return errs.New(errs.ChatSilenced, "sender silenced until %s", until)
			}
		}
	}

	lines := strings.Split(text, "\n")
	for _, line := range lines {
		if line == "" {
			continue
		}
		msg := protocol.Message{
			SenderName: sender.Name(),
			Content:    line,
			Target:     ch.Name,
			SenderID:   sender.ID(),
		}
		for _, member := range ch.Members() {
			if member.ID() == sender.ID() {
				continue
			}
			if member.PresenceFilter() == player.PresenceNone {
				continue
			}
			_ = member.SendFrame(protocol.RespSendMessage, msg)
		}
	}
	return nil
}

// PrivateMessage resolves target by name and, subject to friend-only-DM and
// silence checks, delivers a direct message.
func (r *Router) PrivateMessage(ctx context.Context, sender *player.Session, targetName, text string) error {
	target, ok := r.registry.ByName(collab.SafeName(targetName))
	if !ok {
		return errs.New(errs.ChatDMBlocked, "target %s not online", targetName)
	}

	if target.FriendOnlyDMs() && !target.IsFriendOf(sender.ID()) {
		_ = sender.SendFrame(protocol.RespUserDMBlocked, target.Name())
		return errs.New(errs.ChatDMBlocked, "target %s has friend-only dms", targetName)
	}

	if until, silenced, err := r.repo.ActiveSilence(ctx, target.ID()); err == nil && silenced {
		_ = sender.SendFrame(protocol.RespTargetIsSilenced, target.Name())
		return errs.New(errs.ChatSilenced, "target silenced until %s", until)
	}

	if !sender.IsBot() {
		if _, silenced, err := r.repo.ActiveSilence(ctx, sender.ID()); err == nil && silenced {
			// sender silenced: message is silently dropped, no reply sent.
			return nil
		}
	}

	msg := protocol.Message{
		SenderName: sender.Name(),
		Content:    text,
		Target:     target.Name(),
		SenderID:   sender.ID(),
	}
	return target.SendFrame(protocol.RespSendMessage, msg)
}

// BotBroadcast sends text as the bot identity into channelName, ignoring
// write permission and silence checks.
func (r *Router) BotBroadcast(ctx context.Context, channelName, text string) {
	ch, ok := r.ByName(channelName)
	if !ok {
		return
	}
	_ = r.Send(ctx, ch, r.bot, text, true)
}

// SilenceUntil wraps the repository silence lookup for callers outside the
// send path (e.g. the event bus's silence handler confirming state).
func (r *Router) SilenceUntil(ctx context.Context, userID int32) (time.Time, bool) {
	until, ok, err := r.repo.ActiveSilence(ctx, userID)
	if err != nil {
		return time.Time{}, false
	}
	return until, ok
}
