// Package broadcast is a room's communication channel: a set of connected
// peers organised in named groups (one per agent, one per team).
package broadcast

import (
	"errors"
	"sort"
	"sync"

	"deliveroo.ai/internal/protocol"
)

var ErrChannelClosed = errors.New("channel closed")

type Peer interface {
	ID() string
	Send(msg protocol.Message) error
	Close(reason string)
}

func AgentGroup(agentID string) string { return "agent:" + agentID }
func TeamGroup(teamID string) string   { return "team:" + teamID }

// SoloTeamGroup is the team group of an agent that has no team.
func SoloTeamGroup(agentID string) string { return "solo:" + agentID }

type Channel struct {
	mu     sync.RWMutex
	peers  map[string]Peer
	groups map[string]map[string]Peer
	member map[string][]string
	closed bool
	reason string
}

func NewChannel() *Channel {
	return &Channel{
		peers:  map[string]Peer{},
		groups: map[string]map[string]Peer{},
		member: map[string][]string{},
	}
}

func (c *Channel) Join(p Peer, groups ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	id := p.ID()
	c.peers[id] = p
	for _, g := range groups {
		set := c.groups[g]
		if set == nil {
			set = map[string]Peer{}
			c.groups[g] = set
		}
		if _, ok := set[id]; !ok {
			set[id] = p
			c.member[id] = append(c.member[id], g)
		}
	}
	return nil
}

// Leave removes the peer and returns the groups it was in.
func (c *Channel) Leave(p Peer) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := p.ID()
	groups := c.member[id]
	delete(c.member, id)
	delete(c.peers, id)
	for _, g := range groups {
		if set := c.groups[g]; set != nil {
			delete(set, id)
			if len(set) == 0 {
				delete(c.groups, g)
			}
		}
	}
	return groups
}

func (c *Channel) Group(key string) []Peer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedPeers(c.groups[key])
}

func (c *Channel) Count(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.groups[key])
}

func (c *Channel) Peers() []Peer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedPeers(c.peers)
}

func (c *Channel) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.peers)
}

// Broadcast sends msg to every peer but except (which may be nil).
func (c *Channel) Broadcast(msg protocol.Message, except Peer) {
	for _, p := range c.Peers() {
		if except != nil && p.ID() == except.ID() {
			continue
		}
		_ = p.Send(msg)
	}
}

func (c *Channel) SendGroup(key string, msg protocol.Message, except Peer) int {
	n := 0
	for _, p := range c.Group(key) {
		if except != nil && p.ID() == except.ID() {
			continue
		}
		if p.Send(msg) == nil {
			n++
		}
	}
	return n
}

// Close disconnects every peer with reason. Later joins fail.
func (c *Channel) Close(reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.reason = reason
	peers := sortedPeers(c.peers)
	c.mu.Unlock()
	for _, p := range peers {
		p.Close(reason)
	}
}

func (c *Channel) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Channel) CloseReason() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reason
}

func sortedPeers(m map[string]Peer) []Peer {
	out := make([]Peer, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
