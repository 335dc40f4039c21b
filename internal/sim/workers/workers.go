// Package workers holds the background processes a match runs: parcel
// generation, parcel decay and randomly moving agents.
package workers

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"deliveroo.ai/internal/auth"
	"deliveroo.ai/internal/sim/grid"
)

// Worker runs until ctx is cancelled.
type Worker interface {
	Run(ctx context.Context)
}

// Gate reports whether workers should act right now.
type Gate func() bool

func (g Gate) open() bool { return g == nil || g() }

type ParcelSpawner interface {
	SpawnParcel() (grid.Parcel, bool)
}

type ParcelDecayer interface {
	DecayParcels(amount int) int
}

type Walker interface {
	CreateAgent(id auth.Identity) (grid.AgentView, error)
	DeleteAgent(id string) bool
	FreeDirections(id string) []grid.Direction
	Move(id string, dir grid.Direction) (grid.AgentView, error)
}

// every calls fn each interval while the gate is open.
func every(ctx context.Context, interval time.Duration, gate Gate, fn func()) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if gate.open() {
				fn()
			}
		}
	}
}

type Generator struct {
	Grid     ParcelSpawner
	Interval time.Duration
	Gate     Gate
}

func (w Generator) Run(ctx context.Context) {
	every(ctx, w.Interval, w.Gate, func() { w.Grid.SpawnParcel() })
}

// Decayer lowers parcel rewards by one each interval.
type Decayer struct {
	Grid     ParcelDecayer
	Interval time.Duration
	Gate     Gate
}

func (w Decayer) Run(ctx context.Context) {
	every(ctx, w.Interval, w.Gate, func() { w.Grid.DecayParcels(1) })
}

// RandomAgent is an NPC that takes one random legal step per interval. It
// joins the grid when Run starts and leaves when Run returns.
type RandomAgent struct {
	Grid     Walker
	Identity auth.Identity
	Interval time.Duration
	Gate     Gate
	Seed     int64
}

func NewRandomAgent(g Walker, matchID string, n int, interval time.Duration, gate Gate, seed int64) RandomAgent {
	return RandomAgent{
		Grid: g,
		Identity: auth.Identity{
			ID:   fmt.Sprintf("%s-npc-%d", matchID, n),
			Name: fmt.Sprintf("random_%d", n),
		},
		Interval: interval,
		Gate:     gate,
		Seed:     seed + int64(n),
	}
}

func (w RandomAgent) Run(ctx context.Context) {
	if _, err := w.Grid.CreateAgent(w.Identity); err != nil {
		return
	}
	defer w.Grid.DeleteAgent(w.Identity.ID)

	seed := w.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	every(ctx, w.Interval, w.Gate, func() {
		dirs := w.Grid.FreeDirections(w.Identity.ID)
		if len(dirs) == 0 {
			return
		}
		_, _ = w.Grid.Move(w.Identity.ID, dirs[rng.Intn(len(dirs))])
	})
}

// Group runs workers under one context. Stop cancels them and waits until
// every Run has returned.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func NewGroup(parent context.Context) *Group {
	ctx, cancel := context.WithCancel(parent)
	return &Group{ctx: ctx, cancel: cancel}
}

func (g *Group) Go(w Worker) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		w.Run(g.ctx)
	}()
}

func (g *Group) Stop() {
	g.once.Do(g.cancel)
	g.wg.Wait()
}
