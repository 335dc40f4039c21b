package match

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"deliveroo.ai/internal/auth"
	persistlog "deliveroo.ai/internal/persistence/log"
	"deliveroo.ai/internal/sim/grid"
	"deliveroo.ai/internal/sim/leaderboard"
	"deliveroo.ai/internal/sim/maps"
	"deliveroo.ai/internal/sim/tuning"
)

func quietConfig() tuning.Config {
	cfg := tuning.Defaults()
	cfg.RandomlyMovingAgents = 0
	cfg.ParcelsGenerationInterval = tuning.InfiniteInterval
	cfg.ParcelDecadingInterval = tuning.InfiniteInterval
	cfg.MovementDuration = 0
	cfg.Seed = 11
	return cfg
}

// deliveryMap is 2x2 of delivery tiles so every spawn can score.
func deliveryMap() maps.Map {
	return maps.Map{Name: "deliveries", Tiles: [][]int{{2, 2}, {2, 2}}}
}

type memEvents struct {
	mu      sync.Mutex
	entries []persistlog.EventEntry
	closed  bool
}

func (m *memEvents) WriteEvent(e persistlog.EventEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memEvents) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *memEvents) kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.entries {
		out = append(out, e.Kind)
	}
	return out
}

func newMatch(t *testing.T, cfg tuning.Config, m maps.Map, board *leaderboard.Board, events EventLogger) *Match {
	t.Helper()
	mt, err := New("m1", cfg, m, board, nil, events)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = mt.Destroy(ctx)
	})
	return mt
}

func TestToggleCyclesStopAndPlay(t *testing.T) {
	mt := newMatch(t, quietConfig(), deliveryMap(), nil, nil)
	if mt.Status() != StatusStop {
		t.Fatalf("initial status = %s", mt.Status())
	}
	if st, err := mt.Toggle(); err != nil || st != StatusPlay {
		t.Fatalf("Toggle = %s, %v", st, err)
	}
	if st, err := mt.Toggle(); err != nil || st != StatusStop {
		t.Fatalf("Toggle = %s, %v", st, err)
	}
	if st, _ := mt.Stop(); st != StatusStop {
		t.Fatalf("Stop on stopped = %s", st)
	}
	if st, _ := mt.Start(); st != StatusPlay {
		t.Fatalf("Start = %s", st)
	}
	if st, _ := mt.Start(); st != StatusPlay {
		t.Fatalf("Start twice = %s", st)
	}
}

func TestActionsGatedByStatus(t *testing.T) {
	mt := newMatch(t, quietConfig(), deliveryMap(), nil, nil)
	if _, err := mt.GetOrCreateAgent(auth.Identity{ID: "a", Name: "alice"}); err != nil {
		t.Fatalf("GetOrCreateAgent: %v", err)
	}
	if _, err := mt.PickUp("a"); !errors.Is(err, ErrMatchNotRunning) {
		t.Fatalf("pickup while stopped err = %v", err)
	}
	if _, err := mt.Move("a", grid.Up); !errors.Is(err, ErrMatchNotRunning) {
		t.Fatalf("move while stopped err = %v", err)
	}
	_, _ = mt.Toggle()
	if err := mt.CheckAction(); err != nil {
		t.Fatalf("CheckAction while playing: %v", err)
	}
	if _, err := mt.PickUp("a"); err != nil {
		t.Fatalf("pickup while playing: %v", err)
	}
}

func TestRewardsReachLeaderboard(t *testing.T) {
	board, err := leaderboard.Open(leaderboard.MemoryDSN)
	if err != nil {
		t.Fatalf("leaderboard.Open: %v", err)
	}
	defer board.Close()
	events := &memEvents{}
	mt := newMatch(t, quietConfig(), deliveryMap(), board, events)

	var mu sync.Mutex
	var updates []grid.Event
	mt.Subscribe(func(ev grid.Event) {
		if ev.Kind == grid.LeaderboardUpdate {
			mu.Lock()
			updates = append(updates, ev)
			mu.Unlock()
		}
	})

	a, err := mt.GetOrCreateAgent(auth.Identity{ID: "a", Name: "alice", TeamID: "t", TeamName: "red"})
	if err != nil {
		t.Fatalf("GetOrCreateAgent: %v", err)
	}
	entries, _ := board.Get(context.Background(), leaderboard.Filter{MatchID: "m1"})
	if len(entries) != 1 || entries[0].Reward != 0 {
		t.Fatalf("entries after join = %+v, want zero entry", entries)
	}

	_, _ = mt.Start()
	if _, err := mt.Grid().CreateParcel(a.X, a.Y, 9); err != nil {
		t.Fatalf("CreateParcel: %v", err)
	}
	if _, err := mt.PickUp("a"); err != nil {
		t.Fatalf("PickUp: %v", err)
	}
	res, err := mt.PutDown("a", nil)
	if err != nil || res.Reward != 9 {
		t.Fatalf("PutDown = %+v, %v", res, err)
	}

	entries, _ = board.Get(context.Background(), leaderboard.Filter{MatchID: "m1", AgentID: "a"})
	if len(entries) != 1 || entries[0].Reward != 9 {
		t.Fatalf("agent entry = %+v, want 9", entries)
	}
	teams, _ := board.Teams(context.Background(), "m1")
	if len(teams) != 1 || teams[0].Reward != 9 {
		t.Fatalf("team entry = %+v, want 9", teams)
	}
	mu.Lock()
	if len(updates) != 1 || updates[0].Reward != 9 {
		t.Fatalf("leaderboard updates = %+v", updates)
	}
	mu.Unlock()

	if got := mt.Teams(); len(got["t"]) != 1 || got["t"][0] != "a" {
		t.Fatalf("teams = %v", got)
	}
	kinds := events.kinds()
	if len(kinds) < 3 || kinds[0] != string(grid.AgentCreated) {
		t.Fatalf("event log = %v", kinds)
	}
}

func TestTimerEndTearsDown(t *testing.T) {
	cfg := quietConfig()
	cfg.MatchTimeout = tuning.Interval(40 * time.Millisecond)
	cfg.TimerTick = tuning.Interval(10 * time.Millisecond)
	events := &memEvents{}
	mt := newMatch(t, cfg, deliveryMap(), nil, events)

	ended := make(chan struct{}, 1)
	deleted := make(chan string, 4)
	mt.Subscribe(func(ev grid.Event) {
		switch ev.Kind {
		case grid.MatchEnded:
			ended <- struct{}{}
		case grid.AgentDeleted:
			deleted <- ev.Agent.ID
		}
	})
	if _, err := mt.GetOrCreateAgent(auth.Identity{ID: "a", Name: "alice"}); err != nil {
		t.Fatalf("GetOrCreateAgent: %v", err)
	}
	_, _ = mt.Toggle()

	select {
	case <-mt.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("match did not end")
	}
	select {
	case <-ended:
	default:
		t.Fatalf("no match ended event")
	}
	select {
	case id := <-deleted:
		if id != "a" {
			t.Fatalf("deleted %q", id)
		}
	default:
		t.Fatalf("agent not removed at end")
	}
	if mt.Status() != StatusEnd || mt.Remaining() != 0 {
		t.Fatalf("status = %s remaining = %v", mt.Status(), mt.Remaining())
	}
	if _, err := mt.Toggle(); !errors.Is(err, ErrMatchEnded) {
		t.Fatalf("Toggle after end err = %v", err)
	}
	if _, err := mt.GetOrCreateAgent(auth.Identity{ID: "b", Name: "bob"}); !errors.Is(err, ErrMatchEnded) {
		t.Fatalf("join after end err = %v", err)
	}
	if err := mt.CheckAction(); !errors.Is(err, ErrMatchEnded) {
		t.Fatalf("CheckAction after end = %v", err)
	}
	events.mu.Lock()
	closed := events.closed
	events.mu.Unlock()
	if !closed {
		t.Fatalf("event log not closed on teardown")
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	cfg := quietConfig()
	cfg.RandomlyMovingAgents = 2
	cfg.RandomAgentSpeed = tuning.Interval(5 * time.Millisecond)
	mt := newMatch(t, cfg, maps.Map{Name: "open", Tiles: [][]int{{3, 3, 3}, {3, 3, 3}, {3, 3, 3}}}, nil, nil)
	ctx := context.Background()
	if err := mt.Destroy(ctx); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if err := mt.Destroy(ctx); err != nil {
		t.Fatalf("second Destroy: %v", err)
	}
	if n := len(mt.Grid().Agents()); n != 0 {
		t.Fatalf("agents after destroy = %d", n)
	}
}

func TestRemoveAgentUpdatesTeams(t *testing.T) {
	mt := newMatch(t, quietConfig(), deliveryMap(), nil, nil)
	_, _ = mt.GetOrCreateAgent(auth.Identity{ID: "a", Name: "a", TeamID: "t"})
	_, _ = mt.GetOrCreateAgent(auth.Identity{ID: "b", Name: "b"})
	if !mt.RemoveAgent("a") {
		t.Fatalf("RemoveAgent = false")
	}
	if mt.RemoveAgent("a") {
		t.Fatalf("second RemoveAgent = true")
	}
	if got := mt.Teams(); len(got) != 0 {
		t.Fatalf("teams = %v, want empty", got)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := quietConfig()
	cfg.MatchTimeout = 0
	if _, err := New("x", cfg, deliveryMap(), nil, nil, nil); err == nil {
		t.Fatalf("expected config error")
	}
}
