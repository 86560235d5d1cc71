package bancho

import (
	"context"
	"fmt"

	"github.com/dungeongate/bancho/internal/player"
	"github.com/dungeongate/bancho/internal/protocol"
	"github.com/dungeongate/bancho/pkg/logging"
)

// Dispatch decodes one inbound packet under s's negotiated codec table and
// routes it to the matching chat/spectate/multiplayer/registry operation.
// Unknown ids are logged and dropped; a handler error is logged and the
// session survives.
func (svc *Service) Dispatch(ctx context.Context, s *player.Session, id protocol.RequestID, payload []byte) error {
	s.Touch()

	tables := s.CodecTables()
	if tables.Registry == nil {
		return fmt.Errorf("bancho: dispatch before login on session %d", s.ID())
	}

	ctx = context.WithValue(ctx, "user_id", s.ID())
	ctx = context.WithValue(ctx, "session_id", s.Token())
	reqLogger := logging.ContextLogger(ctx, svc.logger)

	value, known, err := tables.Registry.Decode(tables.Version, id, payload)
	if err != nil {
		return err
	}
	if !known {
		reqLogger.Debug("unknown request id, dropping", "id", id)
		return nil
	}

	if err := svc.route(ctx, s, id, value); err != nil {
		reqLogger.Warn("handler error", "id", id, "error", err)
	}
	return nil
}

func (svc *Service) route(ctx context.Context, s *player.Session, id protocol.RequestID, value any) error {
	switch id {
	case protocol.ReqChangeAction:
		status, _ := value.(protocol.Status)
		s.SetStatus(status)
		return nil

	case protocol.ReqSendPublicMessage:
		msg, _ := value.(protocol.Message)
		ch, ok := svc.Router.ByName(msg.Target)
		if !ok {
			return nil
		}
		return svc.Router.Send(ctx, ch, s, msg.Content, false)

	case protocol.ReqLogout:
		svc.Disconnect(ctx, s)
		return nil

	case protocol.ReqRequestStatusUpdate:
		return s.SendFrame(protocol.RespUserStats, svc.buildStats(ctx, s, nil))

	case protocol.ReqPong:
		return nil

	case protocol.ReqStartSpectating:
		hostID, _ := value.(int32)
		host, ok := svc.Registry.ByID(hostID)
		if !ok {
			return nil
		}
		return svc.Hub.StartSpectating(s, host)

	case protocol.ReqStopSpectating:
		return svc.Hub.StopSpectating(s)

	case protocol.ReqSpectateFrames:
		bundle, _ := value.([]byte)
		svc.Hub.Frame(s, bundle)
		return nil

	case protocol.ReqSendPrivateMessage:
		msg, _ := value.(protocol.Message)
		return svc.Router.PrivateMessage(ctx, s, msg.Target, msg.Content)

	case protocol.ReqChannelJoin:
		name, _ := value.(string)
		ch, ok := svc.Router.ByName(name)
		if !ok {
			return nil
		}
		return svc.Router.Join(ch, s)

	case protocol.ReqChannelPart:
		name, _ := value.(string)
		if ch, ok := svc.Router.ByName(name); ok {
			svc.Router.Part(ch, s)
		}
		return nil

	case protocol.ReqFriendAdd:
		return nil

	case protocol.ReqFriendRemove:
		return nil

	case protocol.ReqUserPresenceRequest:
		ids, _ := value.([]int32)
		for _, targetID := range ids {
			if other, ok := svc.Registry.ByID(targetID); ok {
				_ = s.SendFrame(protocol.RespUserPresence, svc.buildPresence(other))
			}
		}
		return nil

	case protocol.ReqUserPresenceRequestAll:
		for _, other := range svc.Registry.All() {
			if other.ID() == s.ID() {
				continue
			}
			_ = s.SendFrame(protocol.RespUserPresence, svc.buildPresence(other))
		}
		return nil

	case protocol.ReqUserStatsRequest:
		ids, _ := value.([]int32)
		for _, targetID := range ids {
			if other, ok := svc.Registry.ByID(targetID); ok {
				_ = s.SendFrame(protocol.RespUserStats, svc.buildStats(ctx, other, nil))
			}
		}
		return nil

	case protocol.ReqMatchCreate:
		settings, _ := value.(protocol.MatchState)
		_, err := svc.Lobby.Create(s, settings)
		return err

	case protocol.ReqMatchJoin:
		req, _ := value.(protocol.MatchJoinRequest)
		return svc.Lobby.Join(s, req)

	case protocol.ReqMatchPart:
		return svc.Lobby.Leave(s)

	case protocol.ReqMatchChangeSlot:
		slotIdx, _ := value.(int32)
		return svc.Lobby.ChangeSlot(s, int(slotIdx))

	case protocol.ReqMatchReady:
		return svc.Lobby.Ready(s)

	case protocol.ReqMatchNotReady:
		return svc.Lobby.NotReady(s)

	case protocol.ReqMatchLock:
		slotIdx, _ := value.(int32)
		return svc.Lobby.Lock(s, int(slotIdx))

	case protocol.ReqMatchChangeSettings:
		newState, _ := value.(protocol.MatchState)
		return svc.Lobby.ChangeSettings(s, newState)

	case protocol.ReqMatchStart:
		return svc.Lobby.Start(s)

	case protocol.ReqMatchScoreUpdate:
		raw, _ := value.([]byte)
		return svc.Lobby.ScoreUpdate(s, raw)

	case protocol.ReqMatchComplete:
		return svc.Lobby.Complete(s)

	case protocol.ReqMatchChangeMods:
		mods, _ := value.(uint32)
		return svc.Lobby.ChangeMods(s, mods)

	case protocol.ReqMatchLoadComplete:
		return svc.Lobby.LoadComplete(s)

	case protocol.ReqMatchNoBeatmap:
		return svc.Lobby.NoMap(s)

	case protocol.ReqMatchHasBeatmap:
		return svc.Lobby.HasMap(s)

	case protocol.ReqMatchSkipRequest:
		return svc.Lobby.Skip(s)

	case protocol.ReqMatchFailed:
		return svc.Lobby.Fail(s)

	case protocol.ReqMatchChangeTeam:
		return svc.Lobby.ChangeTeam(s)

	case protocol.ReqMatchTransferHost:
		slotIdx, _ := value.(int32)
		return svc.Lobby.TransferHost(s, int(slotIdx))

	case protocol.ReqMatchInvite:
		targetID, _ := value.(int32)
		target, ok := svc.Registry.ByID(targetID)
		if !ok {
			return nil
		}
		return target.SendFrame(protocol.RespMatchInvite, protocol.Message{
			SenderName: s.Name(),
			SenderID:   s.ID(),
			Content:    "wants you to join their multiplayer match",
		})

	case protocol.ReqChannelListRequest:
		s.SetInLobby(true)
		for _, ch := range svc.Router.Public() {
			if ch.CanRead(s.Permissions()) {
				_ = s.SendFrame(protocol.RespChannelAvailable, protocol.ChannelInfo{
					Name:        ch.Name,
					Topic:       ch.Topic,
					MemberCount: int16(ch.MemberCount()),
				})
			}
		}
		_ = s.SendFrame(protocol.RespChannelInfoComplete, nil)
		return nil

	default:
		svc.logger.Debug("unhandled request id", "id", id, "user_id", s.ID())
		return nil
	}
}
