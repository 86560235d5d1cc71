// Package registry implements the process-wide session registry (C5):
// membership keyed by id, name and token, with fan-out helpers.
package registry

import (
	"sort"
	"sync"

	"github.com/dungeongate/bancho/internal/player"
	"github.com/dungeongate/bancho/internal/protocol"
)

// Registry indexes every authenticated Session by id, safe name and HTTP
// token. A single mutex protects the three indexes together, matching the
// one-mutex-per-aggregate policy in the concurrency design.
type Registry struct {
	mu      sync.RWMutex
	byID    map[int32]*player.Session
	byName  map[string]*player.Session
	byToken map[string]*player.Session
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byID:    make(map[int32]*player.Session),
		byName:  make(map[string]*player.Session),
		byToken: make(map[string]*player.Session),
	}
}

// Append inserts s, returning the previously registered session under the
// same id, if any, so the caller can displace it (spec.md §4.4 step 8:
// login displacement happens-before the new LOGIN_REPLY).
func (r *Registry) Append(s *player.Session) (displaced *player.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	displaced = r.byID[s.ID()]

	r.byID[s.ID()] = s
	r.byName[s.SafeName()] = s
	if token := s.Token(); token != "" {
		r.byToken[token] = s
	}
	return displaced
}

// Remove deletes s from every index it was registered under.
func (r *Registry) Remove(s *player.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byID[s.ID()]; ok && existing == s {
		delete(r.byID, s.ID())
	}
	if existing, ok := r.byName[s.SafeName()]; ok && existing == s {
		delete(r.byName, s.SafeName())
	}
	if token := s.Token(); token != "" {
		if existing, ok := r.byToken[token]; ok && existing == s {
			delete(r.byToken, token)
		}
	}
}

func (r *Registry) ByID(id int32) (*player.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

func (r *Registry) ByName(safeName string) (*player.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[safeName]
	return s, ok
}

func (r *Registry) ByToken(token string) (*player.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byToken[token]
	return s, ok
}

// All returns a stable-order (by id) snapshot of every registered session,
// used for bundle emission during login.
func (r *Registry) All() []*player.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*player.Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// TCPClients returns every session whose transport is TCP.
func (r *Registry) TCPClients() []*player.Session {
	return r.filter(func(s *player.Session) bool { return s.Transport() == player.TransportTCP })
}

// HTTPClients returns every session whose transport is HTTP.
func (r *Registry) HTTPClients() []*player.Session {
	return r.filter(func(s *player.Session) bool { return s.Transport() == player.TransportHTTP })
}

func (r *Registry) filter(pred func(*player.Session) bool) []*player.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*player.Session
	for _, s := range r.byID {
		if pred(s) {
			out = append(out, s)
		}
	}
	return out
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// SendPacket fans value out to every registered session (bot excluded,
// since sending to it is always a no-op anyway).
func (r *Registry) SendPacket(id protocol.ResponseID, value any) {
	for _, s := range r.All() {
		_ = s.SendFrame(id, value)
	}
}

// Announce broadcasts an ANNOUNCE packet to every registered session.
func (r *Registry) Announce(message string) {
	r.SendPacket(protocol.RespAnnounce, message)
}

// PresenceBundles chunks every session's USER_PRESENCE packet into groups
// of at most chunkSize, for the login bundle emission in spec.md §4.4.
func PresenceBundles(sessions []*player.Session, chunkSize int) [][]*player.Session {
	if chunkSize <= 0 {
		chunkSize = len(sessions)
	}
	var chunks [][]*player.Session
	for i := 0; i < len(sessions); i += chunkSize {
		end := i + chunkSize
		if end > len(sessions) {
			end = len(sessions)
		}
		chunks = append(chunks, sessions[i:end])
	}
	return chunks
}
