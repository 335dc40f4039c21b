// Package arena is the registry of live rooms.
package arena

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"deliveroo.ai/internal/sim/leaderboard"
	"deliveroo.ai/internal/sim/maps"
	"deliveroo.ai/internal/sim/match"
	"deliveroo.ai/internal/sim/tuning"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomExists   = errors.New("room already exists")
	ErrClosed       = errors.New("arena closed")
)

const (
	idAttempts   = 8
	boardTimeout = 5 * time.Second
)

type Options struct {
	Board   *leaderboard.Board
	MapsDir string
	Logger  *log.Logger
	// Events opens the event log of a new match; nil disables event logs.
	Events func(matchID string) match.EventLogger
}

type Arena struct {
	opts   Options
	logger *log.Logger

	mu       sync.RWMutex
	rooms    map[string]*Room
	deleting map[string]bool
	closed   bool
}

func New(opts Options) *Arena {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Arena{
		opts:     opts,
		logger:   logger,
		rooms:    map[string]*Room{},
		deleting: map[string]bool{},
	}
}

func newRoomID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// CreateRoom starts a room with a fresh id.
func (a *Arena) CreateRoom(cfg tuning.Config) (*Room, error) {
	for i := 0; i < idAttempts; i++ {
		r, err := a.CreateRoomWithID(newRoomID(), cfg)
		if errors.Is(err, ErrRoomExists) {
			continue
		}
		return r, err
	}
	return nil, fmt.Errorf("create room: no free id after %d attempts", idAttempts)
}

func (a *Arena) CreateRoomWithID(id string, cfg tuning.Config) (*Room, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("create room: empty id")
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m, err := maps.Load(a.opts.MapsDir, cfg.MapFile)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}
	if _, ok := a.rooms[id]; ok || a.deleting[id] {
		return nil, fmt.Errorf("%w: %s", ErrRoomExists, id)
	}
	if a.opts.Board != nil {
		ctx, cancel := context.WithTimeout(context.Background(), boardTimeout)
		err := a.opts.Board.Discard(ctx, id)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("create room %s: reset leaderboard: %w", id, err)
		}
	}
	var events match.EventLogger
	if a.opts.Events != nil {
		events = a.opts.Events(id)
	}
	mt, err := match.New(id, cfg, m, a.opts.Board, a.logger, events)
	if err != nil {
		return nil, err
	}
	r := newRoom(id, cfg, mt, a.logger)
	a.rooms[id] = r
	a.logger.Printf("room %s: created (map=%s)", id, m.Name)
	return r, nil
}

// LoadRooms creates the rooms of a rooms.yaml config.
func (a *Arena) LoadRooms(cfg Config) error {
	var errs []error
	for _, rs := range cfg.Rooms {
		r, err := a.CreateRoomWithID(rs.ID, rs.Config)
		if err != nil {
			errs = append(errs, fmt.Errorf("room %s: %w", rs.ID, err))
			continue
		}
		if rs.Start {
			_, _ = r.Match.Start()
		}
	}
	return errors.Join(errs...)
}

// Room returns a live room. Rooms being deleted are not returned.
func (a *Arena) Room(id string) (*Room, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.rooms[id]
	if !ok || a.deleting[id] {
		return nil, false
	}
	return r, true
}

func (a *Arena) Rooms() []*Room {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Room, 0, len(a.rooms))
	for id, r := range a.rooms {
		if a.deleting[id] {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DeleteRoom tears a room down and forgets it. It reports false when the room
// does not exist or is already being deleted.
func (a *Arena) DeleteRoom(ctx context.Context, id string) bool {
	a.mu.Lock()
	r, ok := a.rooms[id]
	if !ok || a.deleting[id] {
		a.mu.Unlock()
		return false
	}
	a.deleting[id] = true
	a.mu.Unlock()

	if err := r.Destroy(ctx); err != nil {
		a.logger.Printf("room %s: destroy: %v", id, err)
	}
	if a.opts.Board != nil {
		if err := a.opts.Board.Discard(ctx, id); err != nil {
			a.logger.Printf("room %s: discard leaderboard: %v", id, err)
		}
	}

	a.mu.Lock()
	delete(a.rooms, id)
	delete(a.deleting, id)
	a.mu.Unlock()
	a.logger.Printf("room %s: deleted", id)
	return true
}

// Close deletes every room and refuses new ones.
func (a *Arena) Close(ctx context.Context) {
	a.mu.Lock()
	a.closed = true
	ids := make([]string, 0, len(a.rooms))
	for id := range a.rooms {
		ids = append(ids, id)
	}
	a.mu.Unlock()
	sort.Strings(ids)
	for _, id := range ids {
		a.DeleteRoom(ctx, id)
	}
}

func (a *Arena) MapNames() []string { return maps.Names(a.opts.MapsDir) }

// Board is the shared leaderboard; nil when none was configured.
func (a *Arena) Board() *leaderboard.Board { return a.opts.Board }
