// Package bancho wires the session core together: login, inbound packet
// dispatch and disconnect, over the C1-C11 building blocks.
package bancho

import (
	"log/slog"

	"github.com/dungeongate/bancho/internal/chat"
	"github.com/dungeongate/bancho/internal/collab"
	"github.com/dungeongate/bancho/internal/events"
	"github.com/dungeongate/bancho/internal/multiplayer"
	"github.com/dungeongate/bancho/internal/player"
	"github.com/dungeongate/bancho/internal/protocol"
	"github.com/dungeongate/bancho/internal/registry"
	"github.com/dungeongate/bancho/internal/spectate"
	"github.com/dungeongate/bancho/pkg/config"
	"github.com/dungeongate/bancho/pkg/metrics"
)

// Service is the top-level bancho session core, holding every collaborator
// and domain core the transport adapters dispatch into.
type Service struct {
	Cfg config.Config

	Registry *registry.Registry
	Router   *chat.Router
	Hub      *spectate.Hub
	Lobby    *multiplayer.Lobby
	Bus      *events.Bus

	Repo     collab.Repository
	Ranking  collab.Ranking
	Verifier collab.PasswordVerifier
	Geo      collab.GeoResolver

	Bot    *player.Session
	Codecs *protocol.Registry

	Metrics *metrics.ServiceMetrics
	logger  *slog.Logger
}

// New constructs a fully wired Service: registers the packet codec tables
// for every supported client version and builds the chat/spectate/lobby
// cores bound to the given collaborators.
func New(cfg config.Config, repo collab.Repository, ranking collab.Ranking, verifier collab.PasswordVerifier, geo collab.GeoResolver, svcMetrics *metrics.ServiceMetrics, logger *slog.Logger) *Service {
	codecs := protocol.NewRegistry()
	for _, v := range cfg.Protocol.SupportedClientVersions {
		protocol.RegisterVersion(codecs, v)
	}

	reg := registry.New()
	bot := player.NewBot("BanchoBot")
	if n := len(cfg.Protocol.SupportedClientVersions); n > 0 {
		bot.SetCodecTables(protocol.CodecTables{Registry: codecs, Version: cfg.Protocol.SupportedClientVersions[n-1]})
	}
	reg.Append(bot)

	router := chat.NewRouter(reg, repo, bot, logger.With("component", "chat"))
	hub := spectate.NewHub(router, logger.With("component", "spectate"))
	lobby := multiplayer.NewLobby(router, reg, logger.With("component", "multiplayer"))
	bus := events.New(logger.With("component", "events"))

	svc := &Service{
		Cfg:      cfg,
		Registry: reg,
		Router:   router,
		Hub:      hub,
		Lobby:    lobby,
		Bus:      bus,
		Repo:     repo,
		Ranking:  ranking,
		Verifier: verifier,
		Geo:      geo,
		Bot:      bot,
		Codecs:   codecs,
		Metrics:  svcMetrics,
		logger:   logger,
	}

	handlers := events.NewHandlers(repo, ranking, reg, router, lobby, bot, logger.With("component", "events"))
	handlers.Register(bus)

	return svc
}

func (svc *Service) recordLogin(outcome string) {
	if svc.Metrics == nil {
		return
	}
	svc.Metrics.LoginsTotal.WithLabelValues(outcome).Inc()
}

func (svc *Service) recordSession(transport player.Transport, delta float64) {
	if svc.Metrics == nil {
		return
	}
	svc.Metrics.SessionsActive.WithLabelValues(transport.String()).Add(delta)
}
