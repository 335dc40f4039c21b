package grid

import (
	"fmt"
	"sort"
	"time"

	"deliveroo.ai/internal/auth"
	"deliveroo.ai/internal/sim/tuning"
)

type agent struct {
	id         string
	name       string
	teamID     string
	teamName   string
	privileged bool

	x, y    int
	score   int
	carried []string

	agentsObs  int
	parcelsObs int
	cooldown   time.Time
}

// AgentView is a copy of an agent's state.
type AgentView struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	TeamID     string   `json:"teamId,omitempty"`
	TeamName   string   `json:"teamName,omitempty"`
	X          int      `json:"x"`
	Y          int      `json:"y"`
	Score      int      `json:"score"`
	Carrying   []string `json:"-"`
	Privileged bool     `json:"-"`

	AgentsObservationDistance  int `json:"-"`
	ParcelsObservationDistance int `json:"-"`
}

func (a *agent) view() AgentView {
	return AgentView{
		ID:         a.id,
		Name:       a.name,
		TeamID:     a.teamID,
		TeamName:   a.teamName,
		X:          a.x,
		Y:          a.y,
		Score:      a.score,
		Carrying:   append([]string(nil), a.carried...),
		Privileged: a.privileged,

		AgentsObservationDistance:  a.agentsObs,
		ParcelsObservationDistance: a.parcelsObs,
	}
}

// CreateAgent places a new agent on a random free walkable tile. Calling it
// again for a known id returns the existing agent unchanged.
func (g *Grid) CreateAgent(id auth.Identity) (AgentView, error) {
	if id.ID == "" {
		return AgentView{}, fmt.Errorf("create agent: empty id")
	}
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return AgentView{}, ErrClosed
	}
	if a, ok := g.agents[id.ID]; ok {
		v := a.view()
		g.mu.Unlock()
		return v, nil
	}
	p, ok := g.spawnTileLocked()
	if !ok {
		g.mu.Unlock()
		return AgentView{}, ErrNoSpawnTile
	}
	a := &agent{
		id:         id.ID,
		name:       id.Name,
		teamID:     id.TeamID,
		teamName:   id.TeamName,
		privileged: id.Privileged,
		x:          p.x,
		y:          p.y,
		agentsObs:  g.cfg.AgentsObservationDistance,
		parcelsObs: g.cfg.ParcelsObservationDistance,
	}
	if a.privileged {
		a.agentsObs = tuning.Infinite
		a.parcelsObs = tuning.Infinite
	}
	g.agents[a.id] = a
	if _, taken := g.occupied[p]; !taken {
		g.occupied[p] = a.id
	}
	v := a.view()
	g.emitLocked(Event{Kind: AgentCreated, Agent: v})
	g.unlock()
	return v, nil
}

// spawnTileLocked picks uniformly among walkable tiles without an agent,
// falling back to any walkable tile when all are taken.
func (g *Grid) spawnTileLocked() (pos, bool) {
	var free, walkable []pos
	for x := 0; x < g.width; x++ {
		for y := 0; y < g.height; y++ {
			if g.tiles[x][y] == Blocked {
				continue
			}
			p := pos{x, y}
			walkable = append(walkable, p)
			if _, taken := g.occupied[p]; !taken {
				free = append(free, p)
			}
		}
	}
	if len(free) > 0 {
		return free[g.rng.Intn(len(free))], true
	}
	if len(walkable) > 0 {
		return walkable[g.rng.Intn(len(walkable))], true
	}
	return pos{}, false
}

func (g *Grid) Agent(id string) (AgentView, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	a, ok := g.agents[id]
	if !ok {
		return AgentView{}, false
	}
	return a.view(), true
}

// Agents lists every agent sorted by id.
func (g *Grid) Agents() []AgentView {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]AgentView, 0, len(g.agents))
	for _, id := range g.sortedAgentIDsLocked() {
		out = append(out, g.agents[id].view())
	}
	return out
}

// DeleteAgent removes the agent; parcels it carried are left on its tile.
func (g *Grid) DeleteAgent(id string) bool {
	g.mu.Lock()
	if _, ok := g.agents[id]; !ok {
		g.mu.Unlock()
		return false
	}
	g.deleteAgentLocked(id)
	g.unlock()
	return true
}

func (g *Grid) deleteAgentLocked(id string) {
	a := g.agents[id]
	if len(a.carried) > 0 {
		dropped := make([]Parcel, 0, len(a.carried))
		for _, pid := range a.carried {
			if p, ok := g.parcels[pid]; ok {
				p.CarriedBy = ""
				dropped = append(dropped, *p)
			}
		}
		a.carried = nil
		if len(dropped) > 0 {
			g.emitLocked(Event{Kind: ParcelChanged, Parcels: dropped})
		}
	}
	p := pos{a.x, a.y}
	if g.occupied[p] == id {
		delete(g.occupied, p)
	}
	delete(g.agents, id)
	g.emitLocked(Event{Kind: AgentDeleted, Agent: a.view()})
}

// Move steps the agent one tile. The move commits at once; the agent then
// cannot move again until the movement duration has elapsed.
func (g *Grid) Move(id string, dir Direction) (AgentView, error) {
	dx, dy := dir.Delta()
	if dx == 0 && dy == 0 {
		return AgentView{}, fmt.Errorf("%w: %q", ErrInvalidDirection, dir)
	}
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return AgentView{}, ErrClosed
	}
	a, ok := g.agents[id]
	if !ok {
		g.mu.Unlock()
		return AgentView{}, ErrUnknownAgent
	}
	now := g.now()
	if now.Before(a.cooldown) {
		g.mu.Unlock()
		return AgentView{}, ErrMoveInFlight
	}
	nx, ny := a.x+dx, a.y+dy
	if !g.inBounds(nx, ny) {
		g.mu.Unlock()
		return AgentView{}, ErrOutOfBounds
	}
	if g.tiles[nx][ny] == Blocked {
		g.mu.Unlock()
		return AgentView{}, ErrBlocked
	}
	dest := pos{nx, ny}
	if other, taken := g.occupied[dest]; taken && other != id {
		g.mu.Unlock()
		return AgentView{}, ErrTileOccupied
	}

	from := pos{a.x, a.y}
	if g.occupied[from] == id {
		delete(g.occupied, from)
	}
	g.occupied[dest] = id
	a.x, a.y = nx, ny
	a.cooldown = now.Add(g.cfg.MovementDuration)

	var carried []Parcel
	for _, pid := range a.carried {
		if p, ok := g.parcels[pid]; ok {
			p.X, p.Y = nx, ny
			carried = append(carried, *p)
		}
	}
	v := a.view()
	g.emitLocked(Event{Kind: AgentMoved, Agent: v})
	if len(carried) > 0 {
		g.emitLocked(Event{Kind: ParcelChanged, Parcels: carried})
	}
	g.unlock()
	return v, nil
}

// FreeDirections lists the directions the agent could legally move to right
// now, ignoring its cool-down.
func (g *Grid) FreeDirections(id string) []Direction {
	g.mu.Lock()
	defer g.mu.Unlock()
	a, ok := g.agents[id]
	if !ok {
		return nil
	}
	var out []Direction
	for _, d := range Directions {
		dx, dy := d.Delta()
		nx, ny := a.x+dx, a.y+dy
		if !g.inBounds(nx, ny) || g.tiles[nx][ny] == Blocked {
			continue
		}
		if other, taken := g.occupied[pos{nx, ny}]; taken && other != id {
			continue
		}
		out = append(out, d)
	}
	return out
}

func sortViews(vs []AgentView) {
	sort.Slice(vs, func(i, j int) bool { return vs[i].ID < vs[j].ID })
}
