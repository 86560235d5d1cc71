package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dungeongate/bancho/internal/chat"
	"github.com/dungeongate/bancho/internal/collab"
	"github.com/dungeongate/bancho/internal/multiplayer"
	"github.com/dungeongate/bancho/internal/player"
	"github.com/dungeongate/bancho/internal/protocol"
	"github.com/dungeongate/bancho/internal/registry"
)

// adminChannel is the bot-broadcast destination for operator-facing
// notices (client crash reports). Posting is a no-op if nobody created it.
const adminChannel = "#admin"

// versionedStatsCutoff is the last client version date that lacks a
// dedicated stats packet; at or below it, a user_update refresh is carried
// as a presence bundle instead.
const versionedStatsCutoff = 377

// Handlers wires the named events of §6 onto the session core's
// collaborators: the registry, chat router, multiplayer lobby and
// persistence/ranking backends.
type Handlers struct {
	repo     collab.Repository
	ranking  collab.Ranking
	registry *registry.Registry
	router   *chat.Router
	lobby    *multiplayer.Lobby
	bot      *player.Session
	logger   *slog.Logger
}

// NewHandlers constructs the event-bus wiring described in spec.md §6.
func NewHandlers(repo collab.Repository, ranking collab.Ranking, reg *registry.Registry, router *chat.Router, lobby *multiplayer.Lobby, bot *player.Session, logger *slog.Logger) *Handlers {
	return &Handlers{repo: repo, ranking: ranking, registry: reg, router: router, lobby: lobby, bot: bot, logger: logger}
}

// Register attaches every handler to bus.
func (h *Handlers) Register(bus *Bus) {
	bus.Register("user_update", h.userUpdate)
	bus.Register("bot_message", h.botMessage)
	bus.Register("restrict", h.restrict)
	bus.Register("silence", h.silence)
	bus.Register("announcement", h.announcement)
	bus.Register("osu_error", h.osuError)
	bus.Register("shutdown", h.shutdown)
}

func argInt32(args []any, i int) (int32, bool) {
	if i >= len(args) {
		return 0, false
	}
	v, ok := args[i].(int32)
	return v, ok
}

func argString(args []any, i int) string {
	if i >= len(args) {
		return ""
	}
	v, _ := args[i].(string)
	return v
}

func argBool(args []any, i int) bool {
	if i >= len(args) {
		return false
	}
	v, _ := args[i].(bool)
	return v
}

// userUpdate(user_id): if the named user is online, every online session is
// sent a bundle describing that user, with stats read afresh from the
// repository: a presence bundle for clients too old to have a dedicated
// stats packet, a stats bundle otherwise.
func (h *Handlers) userUpdate(args ...any) {
	userID, ok := argInt32(args, 0)
	if !ok {
		return
	}
	target, ok := h.registry.ByID(userID)
	if !ok {
		return
	}

	ctx := context.Background()
	for _, s := range h.registry.All() {
		if s.IsBot() {
			continue
		}
		if s.CodecTables().Version <= versionedStatsCutoff {
			_ = s.SendFrame(protocol.RespUserPresence, h.buildPresence(target))
			continue
		}
		_ = s.SendFrame(protocol.RespUserStats, h.buildStats(ctx, target))
	}
}

func (h *Handlers) buildPresence(s *player.Session) protocol.UserPresence {
	fp := s.Fingerprint()
	return protocol.UserPresence{
		UserID:      s.ID(),
		Name:        s.Name(),
		UTCOffset:   uint8(fp.UTCOffset),
		Permissions: uint8(s.Permissions()),
		Mode:        s.PreferredMode(),
		Latitude:    float32(fp.Latitude),
		Longitude:   float32(fp.Longitude),
	}
}

func (h *Handlers) buildStats(ctx context.Context, s *player.Session) protocol.UserStats {
	mode := s.PreferredMode()
	stats, err := h.repo.FetchStats(ctx, s.ID(), mode)
	if err != nil || stats == nil {
		return protocol.UserStats{UserID: s.ID(), Status: s.Status()}
	}
	rank, _ := h.ranking.GlobalRank(ctx, s.ID(), mode)
	return protocol.UserStats{
		UserID:      s.ID(),
		Status:      s.Status(),
		RankedScore: stats.RankedScore,
		Accuracy:    stats.Accuracy,
		Playcount:   stats.Playcount,
		TotalScore:  stats.TotalScore,
		Rank:        rank,
		PP:          stats.PP,
	}
}

// botMessage(text, target): posts text, line by line, as the bot into the
// named channel, bypassing write permission and silence checks.
func (h *Handlers) botMessage(args ...any) {
	text := argString(args, 0)
	target := argString(args, 1)
	h.router.BotBroadcast(context.Background(), target, text)
}

// restrict(user_id, reason, autoban, until): the persistent record is
// updated so an offline restriction still takes effect on next login; if
// the user is online, their session's permissions are cleared and it is
// marked closed.
func (h *Handlers) restrict(args ...any) {
	userID, ok := argInt32(args, 0)
	if !ok {
		return
	}
	reason := argString(args, 1)
	autoban := argBool(args, 2)
	var until *time.Time
	if len(args) > 3 {
		if t, ok := args[3].(time.Time); ok {
			until = &t
		}
	}

	ctx := context.Background()
	u, err := h.repo.UserByID(ctx, userID)
	if err != nil || u == nil {
		h.logger.Warn("restrict: user not found", "user_id", userID)
		return
	}

	u.Restricted = true
	u.Permissions = 0
	if err := h.repo.UpdateUser(ctx, u); err != nil {
		h.logger.Error("restrict: update user failed", "user_id", userID, "error", err)
		return
	}
	_ = h.ranking.Remove(ctx, userID, u.Country)
	_ = h.repo.HideScores(ctx, userID)
	_ = h.repo.UpdateClients(ctx, userID, "")
	_ = h.repo.CreateInfringement(ctx, collab.Infringement{UserID: userID, Reason: reason, Autoban: autoban, Until: until})

	h.logger.Warn("user restricted", "user_id", userID, "name", u.Name, "autoban", autoban, "reason", reason)

	if s, online := h.registry.ByID(userID); online {
		s.SetPermissions(0)
		_ = s.MarkClosed()
	}
}

// silence(user_id, duration_s, reason): records the silence on the
// Repository so chat.Router enforcement picks it up on the next send.
func (h *Handlers) silence(args ...any) {
	userID, ok := argInt32(args, 0)
	if !ok {
		return
	}
	durationSeconds, _ := args[1].(int)
	reason := argString(args, 2)

	until := time.Now().Add(time.Duration(durationSeconds) * time.Second)
	if err := h.repo.SetSilence(context.Background(), userID, until, reason); err != nil {
		h.logger.Error("silence: persist failed", "user_id", userID, "error", err)
		return
	}
	if s, online := h.registry.ByID(userID); online {
		_ = s.SendFrame(protocol.RespSilenceInfo, int32(durationSeconds))
	}
}

// announcement(text): broadcasts an ANNOUNCE packet to every session.
func (h *Handlers) announcement(args ...any) {
	text := argString(args, 0)
	h.logger.Info("announcement", "text", text)
	h.registry.Announce(text)
}

// osu_error(user_id, payload): logs the client-reported error, notifies
// #admin, and aborts the player's in-progress match if they were in one.
func (h *Handlers) osuError(args ...any) {
	userID, ok := argInt32(args, 0)
	if !ok {
		return
	}
	s, online := h.registry.ByID(userID)
	if !online {
		return
	}
	var payload any
	if len(args) > 1 {
		payload = args[1]
	}
	h.logger.Warn("client error", "user_id", userID, "name", s.Name(), "payload", payload)

	h.router.BotBroadcast(context.Background(), adminChannel, fmt.Sprintf("Client error from \"%s\". Please check the logs!", s.Name()))

	matchID := s.MatchID()
	if matchID == 0 {
		return
	}
	m, ok := h.lobby.ByID(matchID)
	if !ok || !m.InProgress() {
		return
	}
	if err := h.lobby.Abort(matchID); err != nil {
		h.logger.Error("osu_error: abort failed", "match_id", matchID, "error", err)
		return
	}
	if m.Chat != nil {
		text := fmt.Sprintf("Match was aborted, due to client error from %s. Please try again!", s.Name())
		_ = h.router.Send(context.Background(), m.Chat, h.bot, text, true)
	}
}

// shutdown(): logged by the caller's sweep loop, which observes a closed
// context; nothing to do here beyond recording that it fired.
func (h *Handlers) shutdown(args ...any) {
	h.logger.Info("shutdown event received")
}
