package grid

import "time"

type EventKind string

const (
	AgentCreated      EventKind = "agent created"
	AgentMoved        EventKind = "agent moved"
	AgentDeleted      EventKind = "agent deleted"
	AgentRewarded     EventKind = "agent rewarded"
	ParcelCreated     EventKind = "parcel created"
	ParcelChanged     EventKind = "parcel changed"
	ParcelRemoved     EventKind = "parcel removed"
	TileChanged       EventKind = "tile changed"
	TimerUpdate       EventKind = "timer update"
	StatusChanged     EventKind = "status changed"
	MatchEnded        EventKind = "match ended"
	LeaderboardUpdate EventKind = "leaderboard update"
)

// Event is one observable change of a match. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind    EventKind
	MatchID string

	Agent   AgentView
	Parcels []Parcel
	Tile    Tile
	Reward  int

	Remaining time.Duration
	Running   bool
	Status    string
}

// AgentScoped reports whether the event concerns an agent's position or
// presence, which changes what every observer senses.
func (e Event) AgentScoped() bool {
	switch e.Kind {
	case AgentCreated, AgentMoved, AgentDeleted:
		return true
	}
	return false
}

func (e Event) ParcelScoped() bool {
	switch e.Kind {
	case ParcelCreated, ParcelChanged, ParcelRemoved:
		return true
	}
	return false
}
