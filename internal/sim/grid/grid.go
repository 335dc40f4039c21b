// Package grid is the world engine of a match: tiles, agents and parcels,
// movement legality, pickup and delivery, and sensing.
//
// All state sits behind one mutex. Mutations queue events while holding it;
// the events are delivered to subscribers after the lock is released, in
// mutation order, so subscribers may call back into the Grid.
package grid

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"deliveroo.ai/internal/sim/maps"
	"deliveroo.ai/internal/sim/tuning"
)

type Kind int

const (
	Blocked Kind = iota
	ParcelSpawner
	Delivery
	Plain
)

func (k Kind) String() string {
	switch k {
	case Blocked:
		return "blocked"
	case ParcelSpawner:
		return "spawner"
	case Delivery:
		return "delivery"
	default:
		return "plain"
	}
}

func kindFromCode(code int) Kind {
	switch code {
	case maps.CodeBlocked:
		return Blocked
	case maps.CodeParcelSpawner:
		return ParcelSpawner
	case maps.CodeDelivery:
		return Delivery
	default:
		return Plain
	}
}

// next is the ToggleTile cycle.
func (k Kind) next() Kind {
	switch k {
	case Plain:
		return ParcelSpawner
	case ParcelSpawner:
		return Delivery
	case Delivery:
		return Blocked
	default:
		return Plain
	}
}

type Tile struct {
	X    int  `json:"x"`
	Y    int  `json:"y"`
	Kind Kind `json:"type"`
}

func (t Tile) Walkable() bool { return t.Kind != Blocked }

type Config struct {
	MovementDuration           time.Duration
	AgentsObservationDistance  int
	ParcelsObservationDistance int
	ParcelsMax                 int
	ParcelRewardAvg            int
	ParcelRewardVariance       int
	ParcelsDecay               bool
	Seed                       int64
	// Now replaces the wall clock for movement cool-downs.
	Now func() time.Time
}

func ConfigFrom(c tuning.Config) Config {
	return Config{
		MovementDuration:           c.MovementDuration.Duration(),
		AgentsObservationDistance:  int(c.AgentsObservationDistance),
		ParcelsObservationDistance: int(c.ParcelsObservationDistance),
		ParcelsMax:                 int(c.ParcelsMax),
		ParcelRewardAvg:            c.ParcelRewardAvg,
		ParcelRewardVariance:       c.ParcelRewardVariance,
		ParcelsDecay:               !c.ParcelDecadingInterval.IsInfinite(),
		Seed:                       c.Seed,
	}
}

type pos struct{ x, y int }

type Grid struct {
	matchID string
	cfg     Config
	now     func() time.Time

	mu       sync.Mutex
	rng      *rand.Rand
	width    int
	height   int
	tiles    [][]Kind
	agents   map[string]*agent
	occupied map[pos]string
	parcels  map[string]*Parcel
	parcelN  int
	closed   bool

	queue       []Event
	dispatching bool
	subs        map[int]func(Event)
	nextSub     int
}

func New(matchID string, cfg Config, m maps.Map) *Grid {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	w, h := m.Width(), m.Height()
	tiles := make([][]Kind, w)
	for x := 0; x < w; x++ {
		tiles[x] = make([]Kind, h)
		for y := 0; y < h; y++ {
			tiles[x][y] = kindFromCode(m.Tiles[x][y])
		}
	}
	return &Grid{
		matchID:  matchID,
		cfg:      cfg,
		now:      now,
		rng:      rand.New(rand.NewSource(seed)),
		width:    w,
		height:   h,
		tiles:    tiles,
		agents:   map[string]*agent{},
		occupied: map[pos]string{},
		parcels:  map[string]*Parcel{},
		subs:     map[int]func(Event){},
	}
}

func (g *Grid) MatchID() string { return g.matchID }

func (g *Grid) Size() (width, height int) { return g.width, g.height }

// Subscribe registers fn for every event emitted after the call.
func (g *Grid) Subscribe(fn func(Event)) (unsubscribe func()) {
	g.mu.Lock()
	id := g.nextSub
	g.nextSub++
	g.subs[id] = fn
	g.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.subs, id)
			g.mu.Unlock()
		})
	}
}

// Publish injects a match-level event into the stream.
func (g *Grid) Publish(ev Event) {
	g.mu.Lock()
	g.emitLocked(ev)
	g.unlock()
}

func (g *Grid) emitLocked(ev Event) {
	if ev.MatchID == "" {
		ev.MatchID = g.matchID
	}
	g.queue = append(g.queue, ev)
}

// unlock releases g.mu and delivers queued events. When another goroutine is
// already delivering, it picks up the queue instead, which keeps delivery in
// mutation order and lets subscribers re-enter the Grid.
func (g *Grid) unlock() {
	if g.dispatching || len(g.queue) == 0 {
		g.mu.Unlock()
		return
	}
	g.dispatching = true
	for {
		evs := g.queue
		g.queue = nil
		if len(evs) == 0 {
			g.dispatching = false
			g.mu.Unlock()
			return
		}
		ids := make([]int, 0, len(g.subs))
		for id := range g.subs {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		subs := make([]func(Event), 0, len(ids))
		for _, id := range ids {
			subs = append(subs, g.subs[id])
		}
		g.mu.Unlock()
		for _, ev := range evs {
			for _, fn := range subs {
				fn(ev)
			}
		}
		g.mu.Lock()
	}
}

func (g *Grid) inBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.width && y < g.height
}

func (g *Grid) Tile(x, y int) (Tile, bool) {
	if !g.inBounds(x, y) {
		return Tile{}, false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return Tile{X: x, Y: y, Kind: g.tiles[x][y]}, true
}

// Tiles lists every tile, x-major.
func (g *Grid) Tiles() []Tile {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Tile, 0, g.width*g.height)
	for x := 0; x < g.width; x++ {
		for y := 0; y < g.height; y++ {
			out = append(out, Tile{X: x, Y: y, Kind: g.tiles[x][y]})
		}
	}
	return out
}

// ToggleTile advances a tile through plain, spawner, delivery, blocked.
// A tile an agent stands on is never blocked.
func (g *Grid) ToggleTile(x, y int) (Tile, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return Tile{}, ErrClosed
	}
	if !g.inBounds(x, y) {
		g.mu.Unlock()
		return Tile{}, ErrOutOfBounds
	}
	next := g.tiles[x][y].next()
	if next == Blocked {
		if _, ok := g.occupied[pos{x, y}]; ok {
			g.mu.Unlock()
			return Tile{}, ErrTileOccupied
		}
	}
	g.tiles[x][y] = next
	t := Tile{X: x, Y: y, Kind: next}
	g.emitLocked(Event{Kind: TileChanged, Tile: t})
	g.unlock()
	return t, nil
}

// Close removes every agent and parcel. Later mutations fail with ErrClosed.
func (g *Grid) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	for _, id := range g.sortedAgentIDsLocked() {
		g.deleteAgentLocked(id)
	}
	if len(g.parcels) > 0 {
		removed := make([]Parcel, 0, len(g.parcels))
		for _, id := range g.sortedParcelIDsLocked() {
			removed = append(removed, *g.parcels[id])
			delete(g.parcels, id)
		}
		g.emitLocked(Event{Kind: ParcelRemoved, Parcels: removed})
	}
	g.unlock()
}

func (g *Grid) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

func (g *Grid) sortedAgentIDsLocked() []string {
	ids := make([]string, 0, len(g.agents))
	for id := range g.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (g *Grid) sortedParcelIDsLocked() []string {
	ids := make([]string, 0, len(g.parcels))
	for id := range g.parcels {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return parcelLess(ids[i], ids[j]) })
	return ids
}
