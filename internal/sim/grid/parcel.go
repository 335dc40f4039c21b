package grid

import (
	"sort"
	"strconv"
	"strings"

	"deliveroo.ai/internal/sim/tuning"
)

type Parcel struct {
	ID        string `json:"id"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Reward    int    `json:"reward"`
	Decays    bool   `json:"-"`
	CarriedBy string `json:"carriedBy,omitempty"`
}

type PutDownResult struct {
	Dropped []Parcel `json:"dropped"`
	Reward  int      `json:"reward"`
}

// parcelLess orders "p2" before "p10".
func parcelLess(a, b string) bool {
	na, ea := strconv.Atoi(strings.TrimPrefix(a, "p"))
	nb, eb := strconv.Atoi(strings.TrimPrefix(b, "p"))
	if ea == nil && eb == nil {
		return na < nb
	}
	return a < b
}

func sortParcels(ps []Parcel) {
	sort.Slice(ps, func(i, j int) bool { return parcelLess(ps[i].ID, ps[j].ID) })
}

func (g *Grid) Parcels() []Parcel {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Parcel, 0, len(g.parcels))
	for _, id := range g.sortedParcelIDsLocked() {
		out = append(out, *g.parcels[id])
	}
	return out
}

func (g *Grid) randomRewardLocked() int {
	avg, variance := g.cfg.ParcelRewardAvg, g.cfg.ParcelRewardVariance
	r := avg
	if variance > 0 {
		r = avg - variance + g.rng.Intn(2*variance+1)
	}
	if r < 1 {
		r = 1
	}
	return r
}

func (g *Grid) addParcelLocked(x, y, reward int) Parcel {
	g.parcelN++
	p := &Parcel{
		ID:     "p" + strconv.Itoa(g.parcelN),
		X:      x,
		Y:      y,
		Reward: reward,
		Decays: g.cfg.ParcelsDecay,
	}
	g.parcels[p.ID] = p
	g.emitLocked(Event{Kind: ParcelCreated, Parcels: []Parcel{*p}})
	return *p
}

// SpawnParcel drops a parcel with a random reward on a random spawner tile.
// It reports false when the parcel limit is reached or no spawner exists.
func (g *Grid) SpawnParcel() (Parcel, bool) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return Parcel{}, false
	}
	if g.cfg.ParcelsMax != tuning.Infinite && len(g.parcels) >= g.cfg.ParcelsMax {
		g.mu.Unlock()
		return Parcel{}, false
	}
	var spawners []pos
	for x := 0; x < g.width; x++ {
		for y := 0; y < g.height; y++ {
			if g.tiles[x][y] == ParcelSpawner {
				spawners = append(spawners, pos{x, y})
			}
		}
	}
	if len(spawners) == 0 {
		g.mu.Unlock()
		return Parcel{}, false
	}
	at := spawners[g.rng.Intn(len(spawners))]
	p := g.addParcelLocked(at.x, at.y, g.randomRewardLocked())
	g.unlock()
	return p, true
}

// CreateParcel places a parcel on any walkable tile regardless of the parcel
// limit. A non-positive reward draws a random one.
func (g *Grid) CreateParcel(x, y, reward int) (Parcel, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return Parcel{}, ErrClosed
	}
	if !g.inBounds(x, y) {
		g.mu.Unlock()
		return Parcel{}, ErrOutOfBounds
	}
	if g.tiles[x][y] == Blocked {
		g.mu.Unlock()
		return Parcel{}, ErrBlocked
	}
	if reward <= 0 {
		reward = g.randomRewardLocked()
	}
	p := g.addParcelLocked(x, y, reward)
	g.unlock()
	return p, nil
}

// DisposeParcel removes the uncarried parcels on a tile and returns how many.
func (g *Grid) DisposeParcel(x, y int) int {
	g.mu.Lock()
	var removed []Parcel
	for _, id := range g.sortedParcelIDsLocked() {
		p := g.parcels[id]
		if p.CarriedBy == "" && p.X == x && p.Y == y {
			removed = append(removed, *p)
			delete(g.parcels, id)
		}
	}
	if len(removed) > 0 {
		g.emitLocked(Event{Kind: ParcelRemoved, Parcels: removed})
	}
	g.unlock()
	return len(removed)
}

// PickUp takes every uncarried parcel on the agent's tile.
func (g *Grid) PickUp(agentID string) ([]Parcel, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, ErrClosed
	}
	a, ok := g.agents[agentID]
	if !ok {
		g.mu.Unlock()
		return nil, ErrUnknownAgent
	}
	picked := []Parcel{}
	for _, id := range g.sortedParcelIDsLocked() {
		p := g.parcels[id]
		if p.CarriedBy != "" || p.X != a.x || p.Y != a.y {
			continue
		}
		p.CarriedBy = a.id
		a.carried = append(a.carried, p.ID)
		picked = append(picked, *p)
	}
	if len(picked) > 0 {
		g.emitLocked(Event{Kind: ParcelChanged, Parcels: picked})
	}
	g.unlock()
	return picked, nil
}

// PutDown delivers carried parcels when the agent stands on a delivery tile.
// An empty selection means every carried parcel; ids the agent does not carry
// are ignored. Anywhere else nothing is dropped and nothing is scored.
func (g *Grid) PutDown(agentID string, selection []string) (PutDownResult, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return PutDownResult{}, ErrClosed
	}
	a, ok := g.agents[agentID]
	if !ok {
		g.mu.Unlock()
		return PutDownResult{}, ErrUnknownAgent
	}
	res := PutDownResult{Dropped: []Parcel{}}
	if g.tiles[a.x][a.y] != Delivery || len(a.carried) == 0 {
		g.mu.Unlock()
		return res, nil
	}

	want := map[string]bool{}
	for _, id := range selection {
		want[id] = true
	}
	kept := a.carried[:0:0]
	for _, id := range a.carried {
		p, ok := g.parcels[id]
		if !ok {
			continue
		}
		if len(want) > 0 && !want[id] {
			kept = append(kept, id)
			continue
		}
		res.Dropped = append(res.Dropped, *p)
		res.Reward += p.Reward
		delete(g.parcels, id)
	}
	a.carried = kept
	if len(res.Dropped) > 0 {
		a.score += res.Reward
		g.emitLocked(Event{Kind: ParcelRemoved, Parcels: res.Dropped})
		g.emitLocked(Event{Kind: AgentRewarded, Agent: a.view(), Reward: res.Reward})
	}
	g.unlock()
	return res, nil
}

// DecayParcels lowers the reward of every decaying parcel by amount and
// removes those that reach zero, carried or not. It returns how many were
// removed.
func (g *Grid) DecayParcels(amount int) int {
	if amount <= 0 {
		return 0
	}
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return 0
	}
	var changed, removed []Parcel
	for _, id := range g.sortedParcelIDsLocked() {
		p := g.parcels[id]
		if !p.Decays {
			continue
		}
		p.Reward -= amount
		if p.Reward > 0 {
			changed = append(changed, *p)
			continue
		}
		p.Reward = 0
		removed = append(removed, *p)
		if p.CarriedBy != "" {
			if a, ok := g.agents[p.CarriedBy]; ok {
				a.carried = removeID(a.carried, id)
			}
		}
		delete(g.parcels, id)
	}
	if len(changed) > 0 {
		g.emitLocked(Event{Kind: ParcelChanged, Parcels: changed})
	}
	if len(removed) > 0 {
		g.emitLocked(Event{Kind: ParcelRemoved, Parcels: removed})
	}
	g.unlock()
	return len(removed)
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
