package workers

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"deliveroo.ai/internal/sim/grid"
	"deliveroo.ai/internal/sim/maps"
)

type countingSpawner struct{ n atomic.Int32 }

func (s *countingSpawner) SpawnParcel() (grid.Parcel, bool) {
	s.n.Add(1)
	return grid.Parcel{}, true
}

type countingDecayer struct{ n atomic.Int32 }

func (d *countingDecayer) DecayParcels(amount int) int {
	d.n.Add(int32(amount))
	return 0
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestGeneratorRunsOnlyWhileGateOpen(t *testing.T) {
	var open atomic.Bool
	s := &countingSpawner{}
	g := NewGroup(context.Background())
	g.Go(Generator{Grid: s, Interval: 5 * time.Millisecond, Gate: open.Load})

	time.Sleep(40 * time.Millisecond)
	if n := s.n.Load(); n != 0 {
		t.Fatalf("spawned %d times with gate closed", n)
	}
	open.Store(true)
	waitFor(t, time.Second, func() bool { return s.n.Load() >= 2 })
	g.Stop()
	after := s.n.Load()
	time.Sleep(30 * time.Millisecond)
	if s.n.Load() != after {
		t.Fatalf("generator kept running after Stop")
	}
}

func TestDecayerWithoutIntervalNeverRuns(t *testing.T) {
	d := &countingDecayer{}
	g := NewGroup(context.Background())
	g.Go(Decayer{Grid: d, Interval: 0})
	g.Stop()
	if d.n.Load() != 0 {
		t.Fatalf("decayer ran with zero interval")
	}

	g = NewGroup(context.Background())
	g.Go(Decayer{Grid: d, Interval: 5 * time.Millisecond})
	waitFor(t, time.Second, func() bool { return d.n.Load() >= 1 })
	g.Stop()
}

func TestRandomAgentJoinsMovesAndLeaves(t *testing.T) {
	cfg := grid.Config{AgentsObservationDistance: 5, ParcelsObservationDistance: 5, ParcelsMax: 1, ParcelRewardAvg: 1, Seed: 3}
	m := maps.Map{Name: "line", Tiles: [][]int{{3}, {3}, {3}}}
	gr := grid.New("m", cfg, m)

	var mu sync.Mutex
	moves := 0
	gr.Subscribe(func(ev grid.Event) {
		if ev.Kind == grid.AgentMoved {
			mu.Lock()
			moves++
			mu.Unlock()
		}
	})

	w := NewRandomAgent(gr, "m", 1, 5*time.Millisecond, nil, 9)
	if w.Identity.ID != "m-npc-1" {
		t.Fatalf("npc id = %q", w.Identity.ID)
	}
	g := NewGroup(context.Background())
	g.Go(w)
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return moves >= 2
	})
	g.Stop()
	if _, ok := gr.Agent("m-npc-1"); ok {
		t.Fatalf("npc still on grid after Stop")
	}
}

func TestRandomAgentOnSingleTileStaysPut(t *testing.T) {
	gr := grid.New("m", grid.Config{ParcelRewardAvg: 1}, maps.Map{Name: "dot", Tiles: [][]int{{3}}})
	w := NewRandomAgent(gr, "m", 0, 5*time.Millisecond, nil, 1)
	g := NewGroup(context.Background())
	g.Go(w)
	waitFor(t, time.Second, func() bool { _, ok := gr.Agent(w.Identity.ID); return ok })
	time.Sleep(20 * time.Millisecond)
	v, _ := gr.Agent(w.Identity.ID)
	g.Stop()
	if v.X != 0 || v.Y != 0 {
		t.Fatalf("npc moved to (%d,%d) on a one-tile map", v.X, v.Y)
	}
}
