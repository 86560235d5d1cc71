package protocol

import (
	"fmt"

	"github.com/dungeongate/bancho/internal/codec"
)

// Message is a chat line travelling either to a channel (Target prefixed
// with '#') or to a single user (Target is a username).
type Message struct {
	SenderName string
	Content    string
	Target     string
	SenderID   int32
}

// Status is what a client is currently doing.
type Status struct {
	Action           uint8
	InfoText         string
	BeatmapChecksum  string
	Mods             uint32
	Mode             uint8
	BeatmapID        int32
}

// UserStats bundles a user's live status with their ranked statistics.
type UserStats struct {
	UserID      int32
	Status      Status
	RankedScore int64
	Accuracy    float32
	Playcount   int32
	TotalScore  int64
	Rank        int32
	PP          int16
}

// UserPresence is identity + location + mode + current rank.
type UserPresence struct {
	UserID      int32
	Name        string
	UTCOffset   uint8
	CountryCode uint8
	Permissions uint8
	Mode        uint8
	Latitude    float32
	Longitude   float32
	Rank        int32
}

// UserQuitState distinguishes a clean disconnect from other departure modes.
type UserQuitState uint8

const (
	UserQuitGone UserQuitState = iota
	UserQuitOsuUpdate
)

// UserQuit announces that a user has left the server.
type UserQuit struct {
	UserID int32
	State  UserQuitState
}

// MenuIcon is the clickable image shown on the client's main menu.
type MenuIcon struct {
	Image string
	URL   string
}

// ChannelInfo describes a channel's public listing entry.
type ChannelInfo struct {
	Name        string
	Topic       string
	MemberCount int16
}

// MatchJoinRequest is the client's request to join an existing room.
type MatchJoinRequest struct {
	MatchID  int32
	Password string
}

// SlotState is one of the multiplayer slot status flags (bitwise).
type SlotState uint16

const (
	SlotOpen SlotState = 1 << iota
	SlotLocked
	SlotNotReady
	SlotReady
	SlotNoMap
	SlotPlaying
	SlotComplete
	SlotQuit
)

// SlotHasPlayer is the bitwise-OR of every status implying slot occupancy.
const SlotHasPlayer = SlotNotReady | SlotReady | SlotNoMap | SlotPlaying | SlotComplete

// SlotTeam is a multiplayer slot's team assignment.
type SlotTeam uint8

const (
	TeamNone SlotTeam = iota
	TeamBlue
	TeamRed
)

// Slot is one of sixteen positions in a multiplayer room.
type Slot struct {
	PlayerID int32
	Status   SlotState
	Team     SlotTeam
	Mods     uint32
}

// HasPlayer reports whether the slot is occupied.
func (s Slot) HasPlayer() bool { return s.Status&SlotHasPlayer != 0 }

// MatchType distinguishes head-to-head from team play.
type MatchType uint8

// MatchScoringType selects how score is aggregated for win conditions.
type MatchScoringType uint8

// MatchTeamType selects team mode.
type MatchTeamType uint8

// MatchState is the full wire representation of a multiplayer room.
type MatchState struct {
	ID              int32
	InProgress      bool
	Type            MatchType
	Mods            uint32
	Name            string
	Password        string
	BeatmapText     string
	BeatmapID       int32
	BeatmapChecksum string
	Slots           [16]Slot
	HostID          int32
	Mode            uint8
	ScoringType     MatchScoringType
	TeamType        MatchTeamType
	FreeMod         bool
	Seed            int32
}

// ScoreFrame is an opaque in-progress score/replay update, forwarded with
// the reporting slot index attached.
type ScoreFrame struct {
	SlotID int8
	Raw    []byte
}

func readStatus(r *codec.Reader) (Status, error) {
	var s Status
	var err error
	if s.Action, err = r.U8(); err != nil {
		return s, err
	}
	if s.InfoText, err = r.String(); err != nil {
		return s, err
	}
	if s.BeatmapChecksum, err = r.String(); err != nil {
		return s, err
	}
	modsU32, err := r.U32()
	if err != nil {
		return s, err
	}
	s.Mods = modsU32
	if s.Mode, err = r.U8(); err != nil {
		return s, err
	}
	if s.BeatmapID, err = r.S32(); err != nil {
		return s, err
	}
	return s, nil
}

func writeStatus(w *codec.Writer, s Status) {
	w.U8(s.Action)
	w.String(s.InfoText)
	w.String(s.BeatmapChecksum)
	w.U32(s.Mods)
	w.U8(s.Mode)
	w.S32(s.BeatmapID)
}

func readSlot(r *codec.Reader) (Slot, error) {
	var s Slot
	var err error
	if s.PlayerID, err = r.S32(); err != nil {
		return s, err
	}
	status, err := r.U16()
	if err != nil {
		return s, err
	}
	s.Status = SlotState(status)
	team, err := r.U8()
	if err != nil {
		return s, err
	}
	s.Team = SlotTeam(team)
	if s.Mods, err = r.U32(); err != nil {
		return s, err
	}
	return s, nil
}

func writeSlot(w *codec.Writer, s Slot) {
	w.S32(s.PlayerID)
	w.U16(uint16(s.Status))
	w.U8(uint8(s.Team))
	w.U32(s.Mods)
}

func readMatchState(r *codec.Reader) (MatchState, error) {
	var m MatchState
	var err error
	if m.ID, err = r.S32(); err != nil {
		return m, err
	}
	if m.InProgress, err = r.Bool(); err != nil {
		return m, err
	}
	t, err := r.U8()
	if err != nil {
		return m, err
	}
	m.Type = MatchType(t)
	if m.Mods, err = r.U32(); err != nil {
		return m, err
	}
	if m.Name, err = r.String(); err != nil {
		return m, err
	}
	if m.Password, err = r.String(); err != nil {
		return m, err
	}
	if m.BeatmapText, err = r.String(); err != nil {
		return m, err
	}
	if m.BeatmapID, err = r.S32(); err != nil {
		return m, err
	}
	if m.BeatmapChecksum, err = r.String(); err != nil {
		return m, err
	}
	for i := range m.Slots {
		s, err := readSlot(r)
		if err != nil {
			return m, err
		}
		m.Slots[i] = s
	}
	if m.HostID, err = r.S32(); err != nil {
		return m, err
	}
	if m.Mode, err = r.U8(); err != nil {
		return m, err
	}
	st, err := r.U8()
	if err != nil {
		return m, err
	}
	m.ScoringType = MatchScoringType(st)
	tt, err := r.U8()
	if err != nil {
		return m, err
	}
	m.TeamType = MatchTeamType(tt)
	if m.FreeMod, err = r.Bool(); err != nil {
		return m, err
	}
	if m.Seed, err = r.S32(); err != nil {
		return m, err
	}
	return m, nil
}

func writeMatchState(w *codec.Writer, m MatchState) {
	w.S32(m.ID)
	w.Bool(m.InProgress)
	w.U8(uint8(m.Type))
	w.U32(m.Mods)
	w.String(m.Name)
	w.String(m.Password)
	w.String(m.BeatmapText)
	w.S32(m.BeatmapID)
	w.String(m.BeatmapChecksum)
	for _, s := range m.Slots {
		writeSlot(w, s)
	}
	w.S32(m.HostID)
	w.U8(m.Mode)
	w.U8(uint8(m.ScoringType))
	w.U8(uint8(m.TeamType))
	w.Bool(m.FreeMod)
	w.S32(m.Seed)
}

func readMessage(r *codec.Reader) (Message, error) {
	var m Message
	var err error
	if m.SenderName, err = r.String(); err != nil {
		return m, err
	}
	if m.Content, err = r.String(); err != nil {
		return m, err
	}
	if m.Target, err = r.String(); err != nil {
		return m, err
	}
	if m.SenderID, err = r.S32(); err != nil {
		return m, err
	}
	return m, nil
}

func writeMessage(w *codec.Writer, m Message) {
	w.String(m.SenderName)
	w.String(m.Content)
	w.String(m.Target)
	w.S32(m.SenderID)
}

func readInt32List(r *codec.Reader) ([]int32, error) {
	n, err := r.ArrayHeader()
	if err != nil {
		return nil, err
	}
	out := make([]int32, n)
	for i := 0; i < n; i++ {
		v, err := r.S32()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func writeInt32List(w *codec.Writer, vals []int32) {
	w.ArrayHeader(len(vals))
	for _, v := range vals {
		w.S32(v)
	}
}

func asType[T any](v any) (T, error) {
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("protocol: unexpected payload type %T, want %T", v, zero)
	}
	return t, nil
}

// RegisterVersion installs the full request/response codec table at version
// v, reusing the same decode/encode functions across every version this
// server declares support for (the wire shape has not changed across the
// supported version range; only the set of packets a given client issues
// has).
func RegisterVersion(reg *Registry, v int) {
	// Requests (client -> server)
	reg.RegisterDecoder(v, ReqChangeAction, func(r *codec.Reader) (any, error) { return readStatus(r) })
	reg.RegisterDecoder(v, ReqSendPublicMessage, func(r *codec.Reader) (any, error) { return readMessage(r) })
	reg.RegisterDecoder(v, ReqLogout, nil)
	reg.RegisterDecoder(v, ReqRequestStatusUpdate, nil)
	reg.RegisterDecoder(v, ReqPong, nil)
	reg.RegisterDecoder(v, ReqStartSpectating, func(r *codec.Reader) (any, error) { return r.S32() })
	reg.RegisterDecoder(v, ReqStopSpectating, nil)
	reg.RegisterDecoder(v, ReqSpectateFrames, func(r *codec.Reader) (any, error) { return r.Rest(), nil })
	reg.RegisterDecoder(v, ReqSendPrivateMessage, func(r *codec.Reader) (any, error) { return readMessage(r) })
	reg.RegisterDecoder(v, ReqChannelJoin, func(r *codec.Reader) (any, error) { return r.String() })
	reg.RegisterDecoder(v, ReqChannelPart, func(r *codec.Reader) (any, error) { return r.String() })
	reg.RegisterDecoder(v, ReqFriendAdd, func(r *codec.Reader) (any, error) { return r.S32() })
	reg.RegisterDecoder(v, ReqFriendRemove, func(r *codec.Reader) (any, error) { return r.S32() })
	reg.RegisterDecoder(v, ReqUserPresenceRequest, func(r *codec.Reader) (any, error) { return readInt32List(r) })
	reg.RegisterDecoder(v, ReqUserPresenceRequestAll, nil)
	reg.RegisterDecoder(v, ReqUserStatsRequest, func(r *codec.Reader) (any, error) { return readInt32List(r) })
	reg.RegisterDecoder(v, ReqMatchCreate, func(r *codec.Reader) (any, error) { return readMatchState(r) })
	reg.RegisterDecoder(v, ReqMatchJoin, func(r *codec.Reader) (any, error) {
		id, err := r.S32()
		if err != nil {
			return nil, err
		}
		pw, err := r.String()
		if err != nil {
			return nil, err
		}
		return MatchJoinRequest{MatchID: id, Password: pw}, nil
	})
	reg.RegisterDecoder(v, ReqMatchPart, nil)
	reg.RegisterDecoder(v, ReqMatchChangeSlot, func(r *codec.Reader) (any, error) { return r.S32() })
	reg.RegisterDecoder(v, ReqMatchReady, nil)
	reg.RegisterDecoder(v, ReqMatchNotReady, nil)
	reg.RegisterDecoder(v, ReqMatchLock, func(r *codec.Reader) (any, error) { return r.S32() })
	reg.RegisterDecoder(v, ReqMatchChangeSettings, func(r *codec.Reader) (any, error) { return readMatchState(r) })
	reg.RegisterDecoder(v, ReqMatchStart, nil)
	reg.RegisterDecoder(v, ReqMatchScoreUpdate, func(r *codec.Reader) (any, error) { return r.Rest(), nil })
	reg.RegisterDecoder(v, ReqMatchComplete, nil)
	reg.RegisterDecoder(v, ReqMatchChangeMods, func(r *codec.Reader) (any, error) { return r.U32() })
	reg.RegisterDecoder(v, ReqMatchLoadComplete, nil)
	reg.RegisterDecoder(v, ReqMatchNoBeatmap, nil)
	reg.RegisterDecoder(v, ReqMatchHasBeatmap, nil)
	reg.RegisterDecoder(v, ReqMatchSkipRequest, nil)
	reg.RegisterDecoder(v, ReqMatchFailed, nil)
	reg.RegisterDecoder(v, ReqMatchChangeTeam, nil)
	reg.RegisterDecoder(v, ReqMatchTransferHost, func(r *codec.Reader) (any, error) { return r.S32() })
	reg.RegisterDecoder(v, ReqMatchInvite, func(r *codec.Reader) (any, error) { return r.S32() })
	reg.RegisterDecoder(v, ReqChannelListRequest, nil)

	// Responses (server -> client)
	reg.RegisterEncoder(v, RespUserID, func(w *codec.Writer, val any) error {
		id, err := asType[int32](val)
		if err != nil {
			return err
		}
		w.S32(id)
		return nil
	})
	reg.RegisterEncoder(v, RespSendMessage, func(w *codec.Writer, val any) error {
		m, err := asType[Message](val)
		if err != nil {
			return err
		}
		writeMessage(w, m)
		return nil
	})
	reg.RegisterEncoder(v, RespPong, func(w *codec.Writer, val any) error { return nil })
	reg.RegisterEncoder(v, RespUserStats, func(w *codec.Writer, val any) error {
		s, err := asType[UserStats](val)
		if err != nil {
			return err
		}
		w.S32(s.UserID)
		writeStatus(w, s.Status)
		w.S64(s.RankedScore)
		w.F32(s.Accuracy)
		w.S32(s.Playcount)
		w.S64(s.TotalScore)
		w.S32(s.Rank)
		w.S16(s.PP)
		return nil
	})
	reg.RegisterEncoder(v, RespUserQuit, func(w *codec.Writer, val any) error {
		q, err := asType[UserQuit](val)
		if err != nil {
			return err
		}
		w.S32(q.UserID)
		w.U8(uint8(q.State))
		return nil
	})
	reg.RegisterEncoder(v, RespSpectatorJoined, func(w *codec.Writer, val any) error {
		id, err := asType[int32](val)
		if err != nil {
			return err
		}
		w.S32(id)
		return nil
	})
	reg.RegisterEncoder(v, RespSpectatorLeft, func(w *codec.Writer, val any) error {
		id, err := asType[int32](val)
		if err != nil {
			return err
		}
		w.S32(id)
		return nil
	})
	reg.RegisterEncoder(v, RespSpectateFrames, func(w *codec.Writer, val any) error {
		b, err := asType[[]byte](val)
		if err != nil {
			return err
		}
		w.RawBytes(b)
		return nil
	})
	reg.RegisterEncoder(v, RespVersionUpdate, func(w *codec.Writer, val any) error { return nil })
	reg.RegisterEncoder(v, RespCantSpectate, func(w *codec.Writer, val any) error {
		id, err := asType[int32](val)
		if err != nil {
			return err
		}
		w.S32(id)
		return nil
	})
	reg.RegisterEncoder(v, RespGetAttention, func(w *codec.Writer, val any) error { return nil })
	reg.RegisterEncoder(v, RespAnnounce, func(w *codec.Writer, val any) error {
		s, err := asType[string](val)
		if err != nil {
			return err
		}
		w.String(s)
		return nil
	})
	reg.RegisterEncoder(v, RespUserPresence, func(w *codec.Writer, val any) error {
		p, err := asType[UserPresence](val)
		if err != nil {
			return err
		}
		w.S32(p.UserID)
		w.String(p.Name)
		w.U8(p.UTCOffset)
		w.U8(p.CountryCode)
		w.U8(p.Permissions)
		w.U8(p.Mode)
		w.F32(p.Latitude)
		w.F32(p.Longitude)
		w.S32(p.Rank)
		return nil
	})
	reg.RegisterEncoder(v, RespLoginPermissions, func(w *codec.Writer, val any) error {
		perms, err := asType[uint32](val)
		if err != nil {
			return err
		}
		w.U32(perms)
		return nil
	})
	reg.RegisterEncoder(v, RespMenuIcon, func(w *codec.Writer, val any) error {
		m, err := asType[MenuIcon](val)
		if err != nil {
			return err
		}
		w.String(m.Image)
		w.String(m.URL)
		return nil
	})
	reg.RegisterEncoder(v, RespFriendsList, func(w *codec.Writer, val any) error {
		ids, err := asType[[]int32](val)
		if err != nil {
			return err
		}
		writeInt32List(w, ids)
		return nil
	})
	reg.RegisterEncoder(v, RespProtocolVersion, func(w *codec.Writer, val any) error {
		version, err := asType[int32](val)
		if err != nil {
			return err
		}
		w.S32(version)
		return nil
	})
	reg.RegisterEncoder(v, RespChannelJoinSuccess, func(w *codec.Writer, val any) error {
		name, err := asType[string](val)
		if err != nil {
			return err
		}
		w.String(name)
		return nil
	})
	reg.RegisterEncoder(v, RespChannelAvailable, func(w *codec.Writer, val any) error {
		ch, err := asType[ChannelInfo](val)
		if err != nil {
			return err
		}
		w.String(ch.Name)
		w.String(ch.Topic)
		w.S16(ch.MemberCount)
		return nil
	})
	reg.RegisterEncoder(v, RespChannelRevoked, func(w *codec.Writer, val any) error {
		name, err := asType[string](val)
		if err != nil {
			return err
		}
		w.String(name)
		return nil
	})
	reg.RegisterEncoder(v, RespChannelInfoComplete, func(w *codec.Writer, val any) error { return nil })
	reg.RegisterEncoder(v, RespTargetIsSilenced, func(w *codec.Writer, val any) error {
		name, err := asType[string](val)
		if err != nil {
			return err
		}
		w.String(name)
		return nil
	})
	reg.RegisterEncoder(v, RespUserDMBlocked, func(w *codec.Writer, val any) error {
		name, err := asType[string](val)
		if err != nil {
			return err
		}
		w.String(name)
		return nil
	})
	reg.RegisterEncoder(v, RespMatchNew, func(w *codec.Writer, val any) error {
		m, err := asType[MatchState](val)
		if err != nil {
			return err
		}
		writeMatchState(w, m)
		return nil
	})
	reg.RegisterEncoder(v, RespMatchUpdate, func(w *codec.Writer, val any) error {
		m, err := asType[MatchState](val)
		if err != nil {
			return err
		}
		writeMatchState(w, m)
		return nil
	})
	reg.RegisterEncoder(v, RespMatchDisband, func(w *codec.Writer, val any) error {
		id, err := asType[int32](val)
		if err != nil {
			return err
		}
		w.S32(id)
		return nil
	})
	reg.RegisterEncoder(v, RespMatchJoinSuccess, func(w *codec.Writer, val any) error {
		m, err := asType[MatchState](val)
		if err != nil {
			return err
		}
		writeMatchState(w, m)
		return nil
	})
	reg.RegisterEncoder(v, RespMatchJoinFail, func(w *codec.Writer, val any) error { return nil })
	reg.RegisterEncoder(v, RespMatchStart, func(w *codec.Writer, val any) error {
		m, err := asType[MatchState](val)
		if err != nil {
			return err
		}
		writeMatchState(w, m)
		return nil
	})
	reg.RegisterEncoder(v, RespMatchScoreUpdate, func(w *codec.Writer, val any) error {
		f, err := asType[ScoreFrame](val)
		if err != nil {
			return err
		}
		w.S8(f.SlotID)
		w.RawBytes(f.Raw)
		return nil
	})
	reg.RegisterEncoder(v, RespMatchComplete, func(w *codec.Writer, val any) error { return nil })
	reg.RegisterEncoder(v, RespMatchAllPlayersLoaded, func(w *codec.Writer, val any) error { return nil })
	reg.RegisterEncoder(v, RespMatchSkip, func(w *codec.Writer, val any) error { return nil })
	reg.RegisterEncoder(v, RespMatchAbort, func(w *codec.Writer, val any) error { return nil })
	reg.RegisterEncoder(v, RespMatchTransferHost, func(w *codec.Writer, val any) error { return nil })
	reg.RegisterEncoder(v, RespMatchInvite, func(w *codec.Writer, val any) error {
		m, err := asType[Message](val)
		if err != nil {
			return err
		}
		writeMessage(w, m)
		return nil
	})
	reg.RegisterEncoder(v, RespFellowSpectatorJoined, func(w *codec.Writer, val any) error {
		id, err := asType[int32](val)
		if err != nil {
			return err
		}
		w.S32(id)
		return nil
	})
	reg.RegisterEncoder(v, RespFellowSpectatorLeft, func(w *codec.Writer, val any) error {
		id, err := asType[int32](val)
		if err != nil {
			return err
		}
		w.S32(id)
		return nil
	})
	reg.RegisterEncoder(v, RespSilenceInfo, func(w *codec.Writer, val any) error {
		seconds, err := asType[int32](val)
		if err != nil {
			return err
		}
		w.S32(seconds)
		return nil
	})
	reg.RegisterEncoder(v, RespRestart, func(w *codec.Writer, val any) error {
		ms, err := asType[int32](val)
		if err != nil {
			return err
		}
		w.S32(ms)
		return nil
	})
}
