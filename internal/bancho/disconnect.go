package bancho

import (
	"context"

	"github.com/dungeongate/bancho/internal/player"
	"github.com/dungeongate/bancho/internal/protocol"
)

// Disconnect runs the full connectionLost chain: removal from the
// registry, departure from every channel, match and spectator
// relationship, a USER_QUIT broadcast to every remaining session, and
// closing the underlying transport connection. Idempotent: a session
// already closed by a prior call (whether from a transport's own EOF or
// a prior sweep timeout) is a full no-op.
func (svc *Service) Disconnect(ctx context.Context, s *player.Session) {
	wasOpen := s.MarkClosed()
	defer s.Close()

	if !wasOpen {
		return
	}

	for _, name := range s.ChannelNames() {
		if ch, ok := svc.Router.ByName(name); ok {
			svc.Router.Part(ch, s)
		}
	}

	if s.Spectating() != nil {
		_ = svc.Hub.StopSpectating(s)
	}
	svc.Hub.HostDisconnected(s)

	if s.MatchID() != 0 {
		_ = svc.Lobby.Leave(s)
	}
	s.SetInLobby(false)

	svc.Registry.Remove(s)
	svc.recordSession(s.Transport(), -1)

	if !s.IsBot() {
		svc.Registry.SendPacket(protocol.RespUserQuit, protocol.UserQuit{UserID: s.ID(), State: protocol.UserQuitGone})
	}
}
