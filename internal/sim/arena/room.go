package arena

import (
	"context"
	"log"
	"sync"
	"time"

	"deliveroo.ai/internal/sim/match"
	"deliveroo.ai/internal/sim/tuning"
	"deliveroo.ai/internal/transport/broadcast"
)

// TeardownReason is the close reason peers see when their room goes away.
const TeardownReason = "room torn down"

// Room pairs a match with the channel its connections share.
type Room struct {
	ID      string
	Config  tuning.Config
	Match   *match.Match
	Channel *broadcast.Channel

	logger *log.Logger

	mu     sync.Mutex
	grace  map[string]graceTimer
	gen    uint64
	closed bool

	// attachMu orders removal checks against connections still attaching.
	attachMu sync.Mutex
	holds    map[string]int
}

type graceTimer struct {
	t   *time.Timer
	gen uint64
}

func newRoom(id string, cfg tuning.Config, m *match.Match, logger *log.Logger) *Room {
	return &Room{
		ID:      id,
		Config:  cfg,
		Match:   m,
		Channel: broadcast.NewChannel(),
		logger:  logger,
		grace:   map[string]graceTimer{},
		holds:   map[string]int{},
	}
}

// Hold keeps agentID from being removed until the returned release is called,
// covering a connection that has not joined the channel yet. It also cancels
// a pending removal. Release is idempotent.
func (r *Room) Hold(agentID string) (release func()) {
	r.attachMu.Lock()
	r.holds[agentID]++
	r.attachMu.Unlock()
	r.CancelRemoval(agentID)

	var once sync.Once
	return func() {
		once.Do(func() {
			r.attachMu.Lock()
			if r.holds[agentID]--; r.holds[agentID] <= 0 {
				delete(r.holds, agentID)
			}
			r.attachMu.Unlock()
		})
	}
}

// ScheduleRemoval removes the agent after timeout unless by then it has a
// connection again or the match has ended. A later call replaces a pending
// one.
func (r *Room) ScheduleRemoval(agentID string, timeout time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if prev, ok := r.grace[agentID]; ok {
		prev.t.Stop()
	}
	r.gen++
	gen := r.gen
	r.grace[agentID] = graceTimer{
		t:   time.AfterFunc(timeout, func() { r.fireRemoval(agentID, gen) }),
		gen: gen,
	}
}

// CancelRemoval drops a pending removal and reports whether one existed.
func (r *Room) CancelRemoval(agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grace[agentID]
	if !ok {
		return false
	}
	g.t.Stop()
	delete(r.grace, agentID)
	return true
}

func (r *Room) PendingRemovals() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.grace)
}

func (r *Room) fireRemoval(agentID string, gen uint64) {
	r.mu.Lock()
	g, ok := r.grace[agentID]
	if !ok || g.gen != gen || r.closed {
		r.mu.Unlock()
		return
	}
	delete(r.grace, agentID)
	r.mu.Unlock()

	if r.removeIfDetached(agentID) {
		r.logger.Printf("room %s: agent %s removed after disconnect", r.ID, agentID)
	}
}

// removeIfDetached removes the agent when no connection holds or joins it.
func (r *Room) removeIfDetached(agentID string) bool {
	r.attachMu.Lock()
	defer r.attachMu.Unlock()
	if r.holds[agentID] > 0 || r.Channel.Count(broadcast.AgentGroup(agentID)) > 0 {
		return false
	}
	if r.Match.Status() == match.StatusEnd {
		return false
	}
	return r.Match.RemoveAgent(agentID)
}

// Destroy disconnects every peer and tears the match down.
func (r *Room) Destroy(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	for id, g := range r.grace {
		g.t.Stop()
		delete(r.grace, id)
	}
	r.mu.Unlock()

	r.Channel.Close(TeardownReason)
	return r.Match.Destroy(ctx)
}
