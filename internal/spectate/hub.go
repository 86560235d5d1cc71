// Package spectate implements the spectator hub (C7): per-host fan-out
// group, join/leave semantics, and automatic spectator channel lifetime.
package spectate

import (
	"fmt"
	"log/slog"

	"github.com/dungeongate/bancho/internal/chat"
	"github.com/dungeongate/bancho/internal/errs"
	"github.com/dungeongate/bancho/internal/player"
	"github.com/dungeongate/bancho/internal/protocol"
)

// Hub coordinates spectator join/leave and replay-frame fan-out. It holds
// no state of its own beyond its collaborators: membership lives on the
// Session aggregates themselves (host.Spectators / self.Spectating).
type Hub struct {
	router *chat.Router
	logger *slog.Logger
}

// NewHub constructs a Hub bound to the chat router used for the automatic
// per-host spectator channel.
func NewHub(router *chat.Router, logger *slog.Logger) *Hub {
	return &Hub{router: router, logger: logger}
}

// ChannelName returns the private spectator channel name for host.
func ChannelName(hostID int32) string {
	return fmt.Sprintf("#spec_%d", hostID)
}

// compatible reports whether self's negotiated protocol version is close
// enough to host's to exchange spectator frames. Spectator frame shape
// changed across eras of the protocol, so only sessions on the exact same
// resolved table version interoperate.
func compatible(self, host *player.Session) bool {
	return self.CodecTables().Version == host.CodecTables().Version
}

// StartSpectating makes self spectate host. If self was already spectating
// someone else, it stops first.
func (h *Hub) StartSpectating(self, host *player.Session) error {
	if self.Spectating() == host {
		return nil
	}
	if current := self.Spectating(); current != nil {
		if err := h.StopSpectating(self); err != nil {
			return err
		}
	}

	if !compatible(self, host) {
		_ = self.SendFrame(protocol.RespCantSpectate, host.ID())
		for _, fellow := range host.Spectators() {
			_ = fellow.SendFrame(protocol.RespCantSpectate, host.ID())
		}
		return errs.New(errs.SpecIncompatible, "session %d incompatible with host %d", self.ID(), host.ID())
	}

	host.AddSpectator(self)
	self.SetSpectating(host)

	_ = host.SendFrame(protocol.RespSpectatorJoined, self.ID())
	for _, fellow := range host.Spectators() {
		if fellow.ID() == self.ID() {
			continue
		}
		_ = fellow.SendFrame(protocol.RespFellowSpectatorJoined, self.ID())
		_ = self.SendFrame(protocol.RespFellowSpectatorJoined, fellow.ID())
	}

	channelName := ChannelName(host.ID())
	ch, ok := h.router.ByName(channelName)
	if !ok {
		ch = chat.NewChannel(channelName, "spectator chat", 0, 0, false, host.Name())
		h.router.Register(ch)
		_ = h.router.Join(ch, host)
	}
	_ = h.router.Join(ch, self)

	return nil
}

// StopSpectating ends self's current spectator relationship, if any.
func (h *Hub) StopSpectating(self *player.Session) error {
	host := self.Spectating()
	if host == nil {
		return nil
	}

	host.RemoveSpectator(self.ID())
	self.SetSpectating(nil)

	_ = host.SendFrame(protocol.RespSpectatorLeft, self.ID())
	for _, fellow := range host.Spectators() {
		_ = fellow.SendFrame(protocol.RespFellowSpectatorLeft, self.ID())
	}

	channelName := ChannelName(host.ID())
	if ch, ok := h.router.ByName(channelName); ok {
		h.router.Part(ch, self)
		if host.SpectatorCount() == 0 {
			h.router.Part(ch, host)
			h.router.Dispose(channelName)
		}
	}

	return nil
}

// Frame forwards bundle verbatim to every current spectator of host.
func (h *Hub) Frame(host *player.Session, bundle []byte) {
	for _, spec := range host.Spectators() {
		_ = spec.SendFrame(protocol.RespSpectateFrames, bundle)
	}
}

// HostDisconnected implicitly stops every spectator of host and disposes of
// the spectator channel.
func (h *Hub) HostDisconnected(host *player.Session) {
	for _, spec := range host.Spectators() {
		spec.SetSpectating(nil)
		_ = spec.SendFrame(protocol.RespSpectatorLeft, host.ID())
	}
	channelName := ChannelName(host.ID())
	h.router.Dispose(channelName)
}
