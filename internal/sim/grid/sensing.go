package grid

import "deliveroo.ai/internal/sim/tuning"

func manhattan(x1, y1, x2, y2 int) int {
	dx, dy := x1-x2, y1-y2
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}

func within(distance, d int) bool {
	return distance == tuning.Infinite || d < distance
}

// SenseAgents lists the other agents strictly closer than the observer's
// agent observation distance.
func (g *Grid) SenseAgents(observerID string) []AgentView {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.agents[observerID]
	if !ok {
		return nil
	}
	out := []AgentView{}
	for id, a := range g.agents {
		if id == observerID {
			continue
		}
		if within(o.agentsObs, manhattan(o.x, o.y, a.x, a.y)) {
			out = append(out, a.view())
		}
	}
	sortViews(out)
	return out
}

// SenseParcels lists the parcels, carried ones included, strictly closer
// than the observer's parcel observation distance.
func (g *Grid) SenseParcels(observerID string) []Parcel {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.agents[observerID]
	if !ok {
		return nil
	}
	out := []Parcel{}
	for _, p := range g.parcels {
		if within(o.parcelsObs, manhattan(o.x, o.y, p.X, p.Y)) {
			out = append(out, *p)
		}
	}
	sortParcels(out)
	return out
}
