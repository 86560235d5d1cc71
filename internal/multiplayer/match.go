// Package multiplayer implements the multiplayer room and lobby core (C8):
// match creation/join/leave, the slot state machine, and play lifecycle.
package multiplayer

import (
	"sync"

	"github.com/dungeongate/bancho/internal/chat"
	"github.com/dungeongate/bancho/internal/protocol"
)

const slotCount = 16

// Match is one multiplayer room: slots, settings, and an in-progress flag.
type Match struct {
	mu sync.RWMutex

	id              int32
	name            string
	password        string
	hostID          int32
	matchType       protocol.MatchType
	scoringType     protocol.MatchScoringType
	teamType        protocol.MatchTeamType
	freeMod         bool
	mods            uint32
	mode            uint8
	beatmapID       int32
	beatmapText     string
	beatmapChecksum string
	seed            int32
	inProgress      bool
	slots           [slotCount]protocol.Slot

	loadComplete map[int32]bool
	skipRequest  map[int32]bool

	Chat *chat.Channel
}

func newMatch(id int32, host int32, state protocol.MatchState) *Match {
	m := &Match{
		id:              id,
		name:            state.Name,
		password:        state.Password,
		hostID:          host,
		matchType:       state.Type,
		scoringType:     state.ScoringType,
		teamType:        state.TeamType,
		freeMod:         state.FreeMod,
		mods:            state.Mods,
		mode:            state.Mode,
		beatmapID:       state.BeatmapID,
		beatmapText:     state.BeatmapText,
		beatmapChecksum: state.BeatmapChecksum,
		seed:            state.Seed,
		loadComplete:    make(map[int32]bool),
		skipRequest:     make(map[int32]bool),
	}
	for i := range m.slots {
		m.slots[i] = protocol.Slot{Status: protocol.SlotOpen}
	}
	return m
}

// ID returns the match's room id.
func (m *Match) ID() int32 { return m.id }

// HostID returns the current host's user id.
func (m *Match) HostID() int32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hostID
}

// InProgress reports whether play is currently underway.
func (m *Match) InProgress() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inProgress
}

// State snapshots the match into its wire representation.
func (m *Match) State() protocol.MatchState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return protocol.MatchState{
		ID:              m.id,
		InProgress:      m.inProgress,
		Type:            m.matchType,
		Mods:            m.mods,
		Name:            m.name,
		Password:        m.password,
		BeatmapText:     m.beatmapText,
		BeatmapID:       m.beatmapID,
		BeatmapChecksum: m.beatmapChecksum,
		Slots:           m.slots,
		HostID:          m.hostID,
		Mode:            m.mode,
		ScoringType:     m.scoringType,
		TeamType:        m.teamType,
		FreeMod:         m.freeMod,
		Seed:            m.seed,
	}
}

// PasswordMatches reports whether a join password matches the room's.
func (m *Match) PasswordMatches(candidate string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.password == "" || m.password == candidate
}

func (m *Match) slotOf(userID int32) (int, bool) {
	for i, s := range m.slots {
		if s.HasPlayer() && s.PlayerID == userID {
			return i, true
		}
	}
	return 0, false
}

func (m *Match) firstOpenSlot() (int, bool) {
	for i, s := range m.slots {
		if s.Status == protocol.SlotOpen {
			return i, true
		}
	}
	return 0, false
}

func (m *Match) occupiedSlots() []int {
	var out []int
	for i, s := range m.slots {
		if s.HasPlayer() {
			out = append(out, i)
		}
	}
	return out
}
