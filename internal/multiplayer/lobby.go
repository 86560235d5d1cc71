package multiplayer

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/dungeongate/bancho/internal/chat"
	"github.com/dungeongate/bancho/internal/errs"
	"github.com/dungeongate/bancho/internal/player"
	"github.com/dungeongate/bancho/internal/protocol"
	"github.com/dungeongate/bancho/internal/registry"
)

// Lobby is the pseudo-channel broadcasting match lifecycle to browsing
// sessions, and the registry of currently open rooms.
type Lobby struct {
	mu      sync.RWMutex
	matches map[int32]*Match
	nextID  int32

	router   *chat.Router
	registry *registry.Registry
	logger   *slog.Logger
}

// NewLobby constructs an empty Lobby.
func NewLobby(router *chat.Router, reg *registry.Registry, logger *slog.Logger) *Lobby {
	return &Lobby{
		matches:  make(map[int32]*Match),
		nextID:   1,
		router:   router,
		registry: reg,
		logger:   logger,
	}
}

func matchChannelName(id int32) string {
	return fmt.Sprintf("#multiplayer_%d", id)
}

func (l *Lobby) lobbyMembers() []*player.Session {
	var out []*player.Session
	for _, s := range l.registry.All() {
		if s.InLobby() {
			out = append(out, s)
		}
	}
	return out
}

func (l *Lobby) broadcastToLobby(id protocol.ResponseID, value any) {
	for _, s := range l.lobbyMembers() {
		_ = s.SendFrame(id, value)
	}
}

func (l *Lobby) broadcastToMatch(m *Match, id protocol.ResponseID, value any) {
	if m.Chat == nil {
		return
	}
	for _, s := range m.Chat.Members() {
		_ = s.SendFrame(id, value)
	}
}

func (l *Lobby) ByID(id int32) (*Match, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.matches[id]
	return m, ok
}

func (l *Lobby) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.matches)
}

// Create allocates a new room, seats host into slot 0, and broadcasts
// MATCH_NEW to the lobby.
func (l *Lobby) Create(host *player.Session, settings protocol.MatchState) (*Match, error) {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	m := newMatch(id, host.ID(), settings)
	l.matches[id] = m
	l.mu.Unlock()

	m.mu.Lock()
	m.slots[0] = protocol.Slot{PlayerID: host.ID(), Status: protocol.SlotNotReady}
	m.mu.Unlock()

	channelName := matchChannelName(id)
	m.Chat = chat.NewChannel(channelName, "multiplayer chat", 0, 0, false, host.Name())
	l.router.Register(m.Chat)
	_ = l.router.Join(m.Chat, host)

	host.SetMatchID(id)
	host.SetInLobby(false)
	l.broadcastToLobby(protocol.RespMatchNew, m.State())
	return m, nil
}

// Join seats self into the first open slot of an existing, not-in-progress
// room, provided the password matches.
func (l *Lobby) Join(self *player.Session, req protocol.MatchJoinRequest) error {
	m, ok := l.ByID(req.MatchID)
	if !ok {
		return errs.New(errs.MatchNotHost, "match %d not found", req.MatchID)
	}
	if m.InProgress() {
		return errs.New(errs.MatchInProgress, "match %d already in progress", req.MatchID)
	}
	if !m.PasswordMatches(req.Password) {
		return errs.New(errs.MatchBadPassword, "bad password for match %d", req.MatchID)
	}

	m.mu.Lock()
	slotIdx, ok := m.firstOpenSlot()
	if !ok {
		m.mu.Unlock()
		return errs.New(errs.MatchFull, "match %d is full", req.MatchID)
	}
	m.slots[slotIdx] = protocol.Slot{PlayerID: self.ID(), Status: protocol.SlotNotReady}
	m.mu.Unlock()

	self.SetMatchID(m.ID())
	self.SetInLobby(false)
	_ = l.router.Join(m.Chat, self)

	_ = self.SendFrame(protocol.RespMatchJoinSuccess, m.State())
	l.broadcastToMatch(m, protocol.RespMatchUpdate, m.State())
	l.broadcastToLobby(protocol.RespMatchUpdate, m.State())
	return nil
}

// Leave frees self's slot, transfers host if needed, and disposes of the
// room if it becomes empty.
func (l *Lobby) Leave(self *player.Session) error {
	id := self.MatchID()
	if id == 0 {
		return nil
	}
	m, ok := l.ByID(id)
	if !ok {
		self.SetMatchID(0)
		return nil
	}

	m.mu.Lock()
	if idx, found := m.slotOf(self.ID()); found {
		m.slots[idx] = protocol.Slot{Status: protocol.SlotOpen}
	}
	wasHost := m.hostID == self.ID()
	occupied := m.occupiedSlots()
	if wasHost && len(occupied) > 0 {
		m.hostID = m.slots[occupied[0]].PlayerID
	}
	empty := len(occupied) == 0
	m.mu.Unlock()

	self.SetMatchID(0)
	self.SetInLobby(true)
	if m.Chat != nil {
		l.router.Part(m.Chat, self)
	}

	if empty {
		l.dispose(m)
		return nil
	}

	l.broadcastToMatch(m, protocol.RespMatchUpdate, m.State())
	l.broadcastToLobby(protocol.RespMatchUpdate, m.State())
	return nil
}

func (l *Lobby) dispose(m *Match) {
	l.mu.Lock()
	delete(l.matches, m.ID())
	l.mu.Unlock()

	if m.Chat != nil {
		l.router.Dispose(m.Chat.Name)
	}
	l.broadcastToLobby(protocol.RespMatchDisband, m.ID())
}

// ChangeSettings merges new settings into the room, host-only. A beatmap
// change resets every Ready slot to NotReady.
func (l *Lobby) ChangeSettings(self *player.Session, newState protocol.MatchState) error {
	m, ok := l.ByID(self.MatchID())
	if !ok {
		return errs.New(errs.MatchNotHost, "not in a match")
	}
	if m.HostID() != self.ID() {
		return errs.New(errs.MatchNotHost, "only the host may change settings")
	}

	m.mu.Lock()
	beatmapChanged := m.beatmapChecksum != newState.BeatmapChecksum
	m.name = newState.Name
	m.password = newState.Password
	m.beatmapID = newState.BeatmapID
	m.beatmapText = newState.BeatmapText
	m.beatmapChecksum = newState.BeatmapChecksum
	m.mode = newState.Mode
	m.scoringType = newState.ScoringType
	m.teamType = newState.TeamType
	m.freeMod = newState.FreeMod
	m.mods = newState.Mods
	if beatmapChanged {
		for i, s := range m.slots {
			if s.Status == protocol.SlotReady {
				m.slots[i].Status = protocol.SlotNotReady
			}
		}
	}
	m.mu.Unlock()

	l.broadcastToMatch(m, protocol.RespMatchUpdate, m.State())
	l.broadcastToLobby(protocol.RespMatchUpdate, m.State())
	return nil
}

// setSlotStatus is the shared body for ready/not-ready/no-map/has-map: the
// caller may only mutate their own slot.
func (l *Lobby) setSlotStatus(self *player.Session, status protocol.SlotState) error {
	m, ok := l.ByID(self.MatchID())
	if !ok {
		return errs.New(errs.MatchNotHost, "not in a match")
	}
	m.mu.Lock()
	idx, found := m.slotOf(self.ID())
	if !found {
		m.mu.Unlock()
		return errs.New(errs.MatchNotHost, "not seated in this match")
	}
	m.slots[idx].Status = status
	m.mu.Unlock()

	l.broadcastToMatch(m, protocol.RespMatchUpdate, m.State())
	return nil
}

func (l *Lobby) Ready(self *player.Session) error  { return l.setSlotStatus(self, protocol.SlotReady) }
func (l *Lobby) NotReady(self *player.Session) error { return l.setSlotStatus(self, protocol.SlotNotReady) }
func (l *Lobby) NoMap(self *player.Session) error   { return l.setSlotStatus(self, protocol.SlotNoMap) }
func (l *Lobby) HasMap(self *player.Session) error  { return l.setSlotStatus(self, protocol.SlotNotReady) }

// ChangeSlot moves self into slotIdx if it is open.
func (l *Lobby) ChangeSlot(self *player.Session, slotIdx int) error {
	m, ok := l.ByID(self.MatchID())
	if !ok {
		return errs.New(errs.MatchNotHost, "not in a match")
	}
	if slotIdx < 0 || slotIdx >= slotCount {
		return errs.New(errs.MatchNotHost, "slot index out of range")
	}

	m.mu.Lock()
	if m.slots[slotIdx].Status != protocol.SlotOpen {
		m.mu.Unlock()
		return errs.New(errs.MatchFull, "slot %d occupied", slotIdx)
	}
	if oldIdx, found := m.slotOf(self.ID()); found {
		m.slots[slotIdx] = m.slots[oldIdx]
		m.slots[oldIdx] = protocol.Slot{Status: protocol.SlotOpen}
	}
	m.mu.Unlock()
	l.broadcastToMatch(m, protocol.RespMatchUpdate, m.State())
	return nil
}

// Lock toggles a slot between Open and Locked, host-only.
func (l *Lobby) Lock(host *player.Session, slotIdx int) error {
	m, ok := l.ByID(host.MatchID())
	if !ok || m.HostID() != host.ID() {
		return errs.New(errs.MatchNotHost, "only the host may lock slots")
	}
	if slotIdx < 0 || slotIdx >= slotCount {
		return errs.New(errs.MatchNotHost, "slot index out of range")
	}

	m.mu.Lock()
	if m.slots[slotIdx].Status == protocol.SlotLocked {
		m.slots[slotIdx] = protocol.Slot{Status: protocol.SlotOpen}
	} else if m.slots[slotIdx].Status == protocol.SlotOpen {
		m.slots[slotIdx] = protocol.Slot{Status: protocol.SlotLocked}
	}
	m.mu.Unlock()

	l.broadcastToMatch(m, protocol.RespMatchUpdate, m.State())
	return nil
}

// TransferHost reassigns the host to whoever occupies slotIdx, host-only.
func (l *Lobby) TransferHost(host *player.Session, slotIdx int) error {
	m, ok := l.ByID(host.MatchID())
	if !ok || m.HostID() != host.ID() {
		return errs.New(errs.MatchNotHost, "only the host may transfer host")
	}
	if slotIdx < 0 || slotIdx >= slotCount {
		return errs.New(errs.MatchNotHost, "slot index out of range")
	}

	m.mu.Lock()
	if !m.slots[slotIdx].HasPlayer() {
		m.mu.Unlock()
		return errs.New(errs.MatchNotHost, "slot %d is empty", slotIdx)
	}
	m.hostID = m.slots[slotIdx].PlayerID
	m.mu.Unlock()

	l.broadcastToMatch(m, protocol.RespMatchTransferHost, nil)
	l.broadcastToMatch(m, protocol.RespMatchUpdate, m.State())
	return nil
}

// ChangeTeam flips self's slot team assignment (blue/red).
func (l *Lobby) ChangeTeam(self *player.Session) error {
	m, ok := l.ByID(self.MatchID())
	if !ok {
		return errs.New(errs.MatchNotHost, "not in a match")
	}
	m.mu.Lock()
	idx, found := m.slotOf(self.ID())
	if !found {
		m.mu.Unlock()
		return errs.New(errs.MatchNotHost, "not seated in this match")
	}
	if m.slots[idx].Team == protocol.TeamBlue {
		m.slots[idx].Team = protocol.TeamRed
	} else {
		m.slots[idx].Team = protocol.TeamBlue
	}
	m.mu.Unlock()

	l.broadcastToMatch(m, protocol.RespMatchUpdate, m.State())
	return nil
}

// ChangeMods sets self's per-player mods (freemod) or the room-wide mods.
func (l *Lobby) ChangeMods(self *player.Session, mods uint32) error {
	m, ok := l.ByID(self.MatchID())
	if !ok {
		return errs.New(errs.MatchNotHost, "not in a match")
	}

	m.mu.Lock()
	if m.freeMod {
		if idx, found := m.slotOf(self.ID()); found {
			m.slots[idx].Mods = mods
		}
	} else if m.hostID == self.ID() {
		m.mods = mods
	}
	m.mu.Unlock()

	l.broadcastToMatch(m, protocol.RespMatchUpdate, m.State())
	return nil
}

// Start transitions every Ready/NotReady slot to Playing and marks the room
// in progress, host-only.
func (l *Lobby) Start(host *player.Session) error {
	m, ok := l.ByID(host.MatchID())
	if !ok || m.HostID() != host.ID() {
		return errs.New(errs.MatchNotHost, "only the host may start")
	}
	if m.InProgress() {
		return errs.New(errs.MatchInProgress, "match already in progress")
	}

	m.mu.Lock()
	m.inProgress = true
	for i, s := range m.slots {
		if s.Status == protocol.SlotReady || s.Status == protocol.SlotNotReady {
			m.slots[i].Status = protocol.SlotPlaying
		}
	}
	state := m.State()
	m.mu.Unlock()

	for _, s := range m.Chat.Members() {
		if idx, found := m.slotOf(s.ID()); found && m.slots[idx].Status == protocol.SlotPlaying {
			_ = s.SendFrame(protocol.RespMatchStart, state)
		}
	}
	l.broadcastToLobby(protocol.RespMatchUpdate, state)
	return nil
}

// ScoreUpdate broadcasts an in-progress score frame to every match member.
func (l *Lobby) ScoreUpdate(self *player.Session, raw []byte) error {
	m, ok := l.ByID(self.MatchID())
	if !ok {
		return errs.New(errs.MatchNotHost, "not in a match")
	}
	m.mu.RLock()
	idx, found := m.slotOf(self.ID())
	status := protocol.SlotOpen
	if found {
		status = m.slots[idx].Status
	}
	m.mu.RUnlock()
	if !found || status != protocol.SlotPlaying {
		return errs.New(errs.MatchNotHost, "not in a playing slot")
	}

	frame := protocol.ScoreFrame{SlotID: int8(idx), Raw: raw}
	l.broadcastToMatch(m, protocol.RespMatchScoreUpdate, frame)
	return nil
}

// Complete marks self's slot Complete; once every Playing slot has
// completed the room resets to not-in-progress.
func (l *Lobby) Complete(self *player.Session) error {
	m, ok := l.ByID(self.MatchID())
	if !ok {
		return errs.New(errs.MatchNotHost, "not in a match")
	}

	m.mu.Lock()
	if idx, found := m.slotOf(self.ID()); found {
		m.slots[idx].Status = protocol.SlotComplete
	}
	allDone := true
	for _, s := range m.slots {
		if s.Status == protocol.SlotPlaying {
			allDone = false
			break
		}
	}
	if allDone {
		m.inProgress = false
		for i, s := range m.slots {
			if s.Status == protocol.SlotComplete {
				m.slots[i].Status = protocol.SlotNotReady
			}
		}
	}
	m.mu.Unlock()

	if allDone {
		l.broadcastToMatch(m, protocol.RespMatchComplete, nil)
	}
	l.broadcastToMatch(m, protocol.RespMatchUpdate, m.State())
	return nil
}

// LoadComplete records self finished loading; once every Playing slot has
// reported, broadcasts MATCH_ALL_PLAYERS_LOADED.
func (l *Lobby) LoadComplete(self *player.Session) error {
	m, ok := l.ByID(self.MatchID())
	if !ok {
		return errs.New(errs.MatchNotHost, "not in a match")
	}

	m.mu.Lock()
	m.loadComplete[self.ID()] = true
	allLoaded := true
	for _, s := range m.slots {
		if s.Status == protocol.SlotPlaying && !m.loadComplete[s.PlayerID] {
			allLoaded = false
			break
		}
	}
	if allLoaded {
		m.loadComplete = make(map[int32]bool)
	}
	m.mu.Unlock()

	if allLoaded {
		l.broadcastToMatch(m, protocol.RespMatchAllPlayersLoaded, nil)
	}
	return nil
}

// Skip records self's skip request; once every Playing slot has requested
// one, broadcasts MATCH_SKIP.
func (l *Lobby) Skip(self *player.Session) error {
	m, ok := l.ByID(self.MatchID())
	if !ok {
		return errs.New(errs.MatchNotHost, "not in a match")
	}

	m.mu.Lock()
	m.skipRequest[self.ID()] = true
	allSkipped := true
	for _, s := range m.slots {
		if s.Status == protocol.SlotPlaying && !m.skipRequest[s.PlayerID] {
			allSkipped = false
			break
		}
	}
	if allSkipped {
		m.skipRequest = make(map[int32]bool)
	}
	m.mu.Unlock()

	if allSkipped {
		l.broadcastToMatch(m, protocol.RespMatchSkip, nil)
	}
	return nil
}

// Fail marks self's slot as having failed (Quit), keeping the match running
// for the remaining players.
func (l *Lobby) Fail(self *player.Session) error {
	return l.setSlotStatus(self, protocol.SlotQuit)
}

// Abort force-ends an in-progress match, resetting Playing/Complete slots
// back to NotReady. Used by the osu_error event when a player's client
// crashes mid-match.
func (l *Lobby) Abort(matchID int32) error {
	m, ok := l.ByID(matchID)
	if !ok {
		return errs.New(errs.MatchNotHost, "match %d not found", matchID)
	}

	m.mu.Lock()
	m.inProgress = false
	for i, s := range m.slots {
		if s.Status == protocol.SlotPlaying || s.Status == protocol.SlotComplete {
			m.slots[i].Status = protocol.SlotNotReady
		}
	}
	m.mu.Unlock()

	l.broadcastToMatch(m, protocol.RespMatchAbort, nil)
	l.broadcastToMatch(m, protocol.RespMatchUpdate, m.State())
	return nil
}
