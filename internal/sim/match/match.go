// Package match runs one match: its grid, countdown, background workers and
// the stop/play/end state machine that gates agent actions.
package match

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"deliveroo.ai/internal/auth"
	persistlog "deliveroo.ai/internal/persistence/log"
	"deliveroo.ai/internal/sim/grid"
	"deliveroo.ai/internal/sim/leaderboard"
	"deliveroo.ai/internal/sim/maps"
	"deliveroo.ai/internal/sim/timer"
	"deliveroo.ai/internal/sim/tuning"
	"deliveroo.ai/internal/sim/workers"
)

type Status string

const (
	StatusStop Status = "stop"
	StatusPlay Status = "play"
	StatusEnd  Status = "end"
)

var (
	ErrMatchNotRunning = errors.New("match stopped")
	ErrMatchEnded      = errors.New("match ended")
)

// EventLogger receives the audit trail of a match. A logger that also
// implements io.Closer is closed on teardown.
type EventLogger interface {
	WriteEvent(persistlog.EventEntry) error
}

type Match struct {
	id      string
	cfg     tuning.Config
	mapName string
	grid    *grid.Grid
	timer   *timer.Timer
	board   *leaderboard.Board
	logger  *log.Logger
	events  EventLogger
	group   *workers.Group
	unsubs  []func()

	mu     sync.Mutex
	status Status
	teams  map[string]map[string]struct{}

	teardownOnce sync.Once
	done         chan struct{}
	destroyErr   error
}

func New(id string, cfg tuning.Config, m maps.Map, board *leaderboard.Board, logger *log.Logger, events EventLogger) (*Match, error) {
	if id == "" {
		return nil, fmt.Errorf("match: empty id")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("match %s: %w", id, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("match %s: %w", id, err)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	mt := &Match{
		id:      id,
		cfg:     cfg,
		mapName: m.Name,
		grid:    grid.New(id, grid.ConfigFrom(cfg), m),
		timer:   timer.New(cfg.MatchTimeout.Duration(), cfg.TimerTick.Duration()),
		board:   board,
		logger:  logger,
		events:  events,
		status:  StatusStop,
		teams:   map[string]map[string]struct{}{},
		done:    make(chan struct{}),
	}

	mt.unsubs = append(mt.unsubs,
		mt.timer.OnUpdate(func(remaining time.Duration) {
			mt.grid.Publish(grid.Event{Kind: grid.TimerUpdate, Remaining: remaining, Running: mt.timer.Running(), Status: string(mt.Status())})
		}),
		mt.timer.OnEnded(mt.end),
		mt.grid.Subscribe(mt.onGridEvent),
	)

	mt.group = workers.NewGroup(context.Background())
	gate := func() bool { return mt.Status() == StatusPlay }
	if !cfg.ParcelsGenerationInterval.IsInfinite() {
		mt.group.Go(workers.Generator{Grid: mt.grid, Interval: cfg.ParcelsGenerationInterval.Duration(), Gate: gate})
	}
	if !cfg.ParcelDecadingInterval.IsInfinite() {
		mt.group.Go(workers.Decayer{Grid: mt.grid, Interval: cfg.ParcelDecadingInterval.Duration(), Gate: gate})
	}
	for i := 0; i < cfg.RandomlyMovingAgents; i++ {
		mt.group.Go(workers.NewRandomAgent(mt.grid, id, i+1, cfg.RandomAgentSpeed.Duration(), gate, cfg.Seed))
	}

	logger.Printf("match %s: created (map=%s timeout=%s)", id, m.Name, cfg.MatchTimeout)
	return mt, nil
}

func (m *Match) ID() string            { return m.id }
func (m *Match) Config() tuning.Config { return m.cfg }
func (m *Match) MapName() string       { return m.mapName }
func (m *Match) Grid() *grid.Grid      { return m.grid }

func (m *Match) Remaining() time.Duration { return m.timer.Remaining() }

func (m *Match) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Match) Done() <-chan struct{} { return m.done }

func (m *Match) Subscribe(fn func(grid.Event)) (unsubscribe func()) {
	return m.grid.Subscribe(fn)
}

// Toggle flips between stop and play. An ended match stays ended.
func (m *Match) Toggle() (Status, error) {
	m.mu.Lock()
	switch m.status {
	case StatusEnd:
		m.mu.Unlock()
		return StatusEnd, ErrMatchEnded
	case StatusStop:
		return m.setLocked(StatusPlay)
	default:
		return m.setLocked(StatusStop)
	}
}

func (m *Match) Start() (Status, error) { return m.set(StatusPlay) }
func (m *Match) Stop() (Status, error)  { return m.set(StatusStop) }

func (m *Match) set(want Status) (Status, error) {
	m.mu.Lock()
	if m.status == StatusEnd {
		m.mu.Unlock()
		return StatusEnd, ErrMatchEnded
	}
	if m.status == want {
		m.mu.Unlock()
		return want, nil
	}
	return m.setLocked(want)
}

// setLocked switches status and releases m.mu.
func (m *Match) setLocked(want Status) (Status, error) {
	if want == StatusPlay {
		if !m.timer.Start() {
			m.mu.Unlock()
			return m.Status(), ErrMatchEnded
		}
	} else {
		m.timer.Stop()
	}
	m.status = want
	m.mu.Unlock()

	m.logger.Printf("match %s: %s", m.id, want)
	m.writeEvent(persistlog.EventEntry{Kind: string(grid.StatusChanged), Status: string(want)})
	m.grid.Publish(grid.Event{Kind: grid.StatusChanged, Status: string(want), Remaining: m.timer.Remaining(), Running: want == StatusPlay})
	return want, nil
}

// CheckAction reports whether agent actions may run now.
func (m *Match) CheckAction() error {
	switch m.Status() {
	case StatusPlay:
		return nil
	case StatusStop:
		return ErrMatchNotRunning
	default:
		return ErrMatchEnded
	}
}

func (m *Match) GetOrCreateAgent(id auth.Identity) (grid.AgentView, error) {
	if m.Status() == StatusEnd {
		return grid.AgentView{}, ErrMatchEnded
	}
	v, err := m.grid.CreateAgent(id)
	if errors.Is(err, grid.ErrClosed) {
		return grid.AgentView{}, ErrMatchEnded
	}
	if err != nil {
		return grid.AgentView{}, err
	}
	if id.TeamID != "" {
		m.mu.Lock()
		set := m.teams[id.TeamID]
		if set == nil {
			set = map[string]struct{}{}
			m.teams[id.TeamID] = set
		}
		set[id.ID] = struct{}{}
		m.mu.Unlock()
	}
	return v, nil
}

func (m *Match) RemoveAgent(id string) bool {
	v, ok := m.grid.Agent(id)
	if !ok {
		return false
	}
	if !m.grid.DeleteAgent(id) {
		return false
	}
	if v.TeamID != "" {
		m.mu.Lock()
		if set := m.teams[v.TeamID]; set != nil {
			delete(set, id)
			if len(set) == 0 {
				delete(m.teams, v.TeamID)
			}
		}
		m.mu.Unlock()
	}
	return true
}

// Teams maps each team id to its agent ids, sorted.
func (m *Match) Teams() map[string][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]string, len(m.teams))
	for team, set := range m.teams {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out[team] = ids
	}
	return out
}

func (m *Match) Move(agentID string, dir grid.Direction) (grid.AgentView, error) {
	if err := m.CheckAction(); err != nil {
		return grid.AgentView{}, err
	}
	return m.grid.Move(agentID, dir)
}

func (m *Match) PickUp(agentID string) ([]grid.Parcel, error) {
	if err := m.CheckAction(); err != nil {
		return nil, err
	}
	return m.grid.PickUp(agentID)
}

func (m *Match) PutDown(agentID string, selection []string) (grid.PutDownResult, error) {
	if err := m.CheckAction(); err != nil {
		return grid.PutDownResult{}, err
	}
	return m.grid.PutDown(agentID, selection)
}

func (m *Match) onGridEvent(ev grid.Event) {
	switch ev.Kind {
	case grid.AgentCreated:
		m.addReward(ev.Agent, 0)
		m.writeEvent(agentEntry(ev))
	case grid.AgentDeleted:
		m.writeEvent(agentEntry(ev))
	case grid.AgentRewarded:
		m.addReward(ev.Agent, ev.Reward)
		m.writeEvent(agentEntry(ev))
		m.grid.Publish(grid.Event{Kind: grid.LeaderboardUpdate, Agent: ev.Agent, Reward: ev.Reward})
	}
}

func (m *Match) addReward(a grid.AgentView, reward int) {
	if m.board == nil {
		return
	}
	if err := m.board.AddReward(context.Background(), m.id, a.TeamID, a.TeamName, a.ID, a.Name, reward); err != nil {
		m.logger.Printf("match %s: leaderboard: %v", m.id, err)
	}
}

func agentEntry(ev grid.Event) persistlog.EventEntry {
	return persistlog.EventEntry{
		Kind:      string(ev.Kind),
		AgentID:   ev.Agent.ID,
		AgentName: ev.Agent.Name,
		TeamID:    ev.Agent.TeamID,
		Reward:    ev.Reward,
	}
}

func (m *Match) writeEvent(e persistlog.EventEntry) {
	if m.events == nil {
		return
	}
	e.MatchID = m.id
	if err := m.events.WriteEvent(e); err != nil {
		m.logger.Printf("match %s: event log: %v", m.id, err)
	}
}

// end runs on the timer goroutine once the countdown reaches zero.
func (m *Match) end() {
	m.mu.Lock()
	if m.status == StatusEnd {
		m.mu.Unlock()
		return
	}
	m.status = StatusEnd
	m.mu.Unlock()

	m.logger.Printf("match %s: ended", m.id)
	m.writeEvent(persistlog.EventEntry{Kind: string(grid.MatchEnded)})
	m.grid.Publish(grid.Event{Kind: grid.MatchEnded, Status: string(StatusEnd)})
	m.teardownOnce.Do(func() { go m.teardown() })
}

// Destroy ends the match and waits for its teardown, or for ctx.
func (m *Match) Destroy(ctx context.Context) error {
	m.teardownOnce.Do(func() { go m.teardown() })
	select {
	case <-m.done:
		return m.destroyErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Match) teardown() {
	m.mu.Lock()
	m.status = StatusEnd
	m.mu.Unlock()

	m.group.Stop()
	m.timer.Close()
	m.grid.Close()
	for _, unsub := range m.unsubs {
		unsub()
	}

	var errs []error
	if c, ok := m.events.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("event log: %w", err))
		}
	}
	m.destroyErr = errors.Join(errs...)
	if m.destroyErr != nil {
		m.logger.Printf("match %s: teardown: %v", m.id, m.destroyErr)
	}
	m.logger.Printf("match %s: torn down", m.id)
	close(m.done)
}
