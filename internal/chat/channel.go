// Package chat implements the channel and chat-routing core (C6): channel
// membership, permission gates, message routing, private messages, and bot
// broadcast.
package chat

import (
	"sync"

	"github.com/dungeongate/bancho/internal/player"
)

// Channel is a named chat room with permission-gated read/write access.
type Channel struct {
	mu sync.RWMutex

	Name      string
	Topic     string
	ReadMask  uint32
	WriteMask uint32
	Public    bool
	OwnerName string

	members map[int32]*player.Session
}

// NewChannel constructs a Channel with no members.
func NewChannel(name, topic string, readMask, writeMask uint32, public bool, owner string) *Channel {
	return &Channel{
		Name:      name,
		Topic:     topic,
		ReadMask:  readMask,
		WriteMask: writeMask,
		Public:    public,
		OwnerName: owner,
		members:   make(map[int32]*player.Session),
	}
}

// CanRead reports whether a session holding perms may read this channel.
// A zero ReadMask is treated as unrestricted rather than "matches nothing",
// since channels like #spec_<id> and match chat are created with mask 0.
func (c *Channel) CanRead(perms uint32) bool {
	return c.ReadMask == 0 || perms&c.ReadMask != 0
}

// CanWrite reports whether a session holding perms may write this channel.
// See CanRead: a zero WriteMask means unrestricted, not "matches nothing".
func (c *Channel) CanWrite(perms uint32) bool {
	return c.WriteMask == 0 || perms&c.WriteMask != 0
}

func (c *Channel) add(s *player.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.members[s.ID()] = s
}

func (c *Channel) remove(s *player.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.members, s.ID())
}

func (c *Channel) has(id int32) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.members[id]
	return ok
}

// Members returns a snapshot of the current membership.
func (c *Channel) Members() []*player.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*player.Session, 0, len(c.members))
	for _, s := range c.members {
		out = append(out, s)
	}
	return out
}

// MemberCount returns the number of sessions currently joined.
func (c *Channel) MemberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}

// IsEmpty reports whether the channel currently has no members.
func (c *Channel) IsEmpty() bool {
	return c.MemberCount() == 0
}
