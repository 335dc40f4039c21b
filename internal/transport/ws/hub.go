package ws

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"deliveroo.ai/internal/protocol"
	"deliveroo.ai/internal/sim/arena"
	"deliveroo.ai/internal/sim/grid"
	"deliveroo.ai/internal/sim/leaderboard"
	"deliveroo.ai/internal/transport/broadcast"
)

// hub turns the events of one match into pushes for the room's connections.
// It runs on the grid's dispatcher and must not block.
type hub struct {
	room  *arena.Room
	board *leaderboard.Board
	log   *log.Logger

	unsub func()
	once  sync.Once
}

func newHub(room *arena.Room, board *leaderboard.Board, logger *log.Logger) *hub {
	h := &hub{room: room, board: board, log: logger}
	h.unsub = room.Match.Subscribe(h.onEvent)
	return h
}

func (h *hub) stop() {
	h.once.Do(h.unsub)
}

// agents lists the agent ids that have at least one connection.
func (h *hub) agents() []string {
	seen := map[string]struct{}{}
	for _, p := range h.room.Channel.Peers() {
		if c, ok := p.(*client); ok {
			seen[c.ident.ID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (h *hub) onEvent(ev grid.Event) {
	g := h.room.Match.Grid()
	ch := h.room.Channel
	switch {
	case ev.AgentScoped():
		if ev.Kind == grid.AgentDeleted {
			ch.Broadcast(protocol.New(protocol.EventAgentDeleted, protocol.AgentDeletedMsg{ID: ev.Agent.ID, TeamID: ev.Agent.TeamID}), nil)
		}
		for _, id := range h.agents() {
			ch.SendGroup(broadcast.AgentGroup(id), protocol.New(protocol.EventAgentsSensing, agentMsgs(g.SenseAgents(id))), nil)
		}
		if ev.Kind != grid.AgentDeleted {
			h.pushSelf(ev.Agent.ID)
		}
	case ev.ParcelScoped():
		for _, id := range h.agents() {
			ch.SendGroup(broadcast.AgentGroup(id), protocol.New(protocol.EventParcelsSensing, parcelMsgs(g.SenseParcels(id))), nil)
		}
	}

	switch ev.Kind {
	case grid.TileChanged:
		ch.Broadcast(tileEvent(ev.Tile), nil)
	case grid.TimerUpdate, grid.StatusChanged:
		ch.Broadcast(protocol.New(protocol.EventTimerUpdate, timerMsg(ev.Remaining, ev.Running, ev.Status)), nil)
	case grid.MatchEnded:
		ch.Broadcast(protocol.New(protocol.EventMatchEnded, ev.MatchID), nil)
	case grid.AgentRewarded:
		if a, ok := g.Agent(ev.Agent.ID); ok {
			ch.SendGroup(broadcast.AgentGroup(a.ID), protocol.New(protocol.EventYou, agentMsg(a)), nil)
		}
	case grid.LeaderboardUpdate:
		h.pushLeaderboard()
	}
}

// pushSelf refreshes what the agent's own connections know about it.
func (h *hub) pushSelf(agentID string) {
	key := broadcast.AgentGroup(agentID)
	if h.room.Channel.Count(key) == 0 {
		return
	}
	g := h.room.Match.Grid()
	a, ok := g.Agent(agentID)
	if !ok {
		return
	}
	h.room.Channel.SendGroup(key, protocol.New(protocol.EventYou, agentMsg(a)), nil)
	h.room.Channel.SendGroup(key, protocol.New(protocol.EventParcelsSensing, parcelMsgs(g.SenseParcels(agentID))), nil)
}

func (h *hub) pushLeaderboard() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	lb, err := leaderboardMsg(ctx, h.board, h.room.ID)
	if err != nil {
		h.log.Printf("room %s: leaderboard: %v", h.room.ID, err)
		return
	}
	h.room.Channel.Broadcast(protocol.New(protocol.EventLeaderboard, lb), nil)
}
