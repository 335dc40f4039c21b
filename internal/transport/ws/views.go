package ws

import (
	"context"
	"time"

	"deliveroo.ai/internal/protocol"
	"deliveroo.ai/internal/sim/grid"
	"deliveroo.ai/internal/sim/leaderboard"
	"deliveroo.ai/internal/sim/tuning"
)

func agentMsg(a grid.AgentView) protocol.AgentMsg {
	return protocol.AgentMsg{
		ID:       a.ID,
		Name:     a.Name,
		TeamID:   a.TeamID,
		TeamName: a.TeamName,
		X:        a.X,
		Y:        a.Y,
		Score:    a.Score,
	}
}

func agentMsgs(as []grid.AgentView) []protocol.AgentMsg {
	out := make([]protocol.AgentMsg, 0, len(as))
	for _, a := range as {
		out = append(out, agentMsg(a))
	}
	return out
}

func parcelMsg(p grid.Parcel) protocol.ParcelMsg {
	m := protocol.ParcelMsg{ID: p.ID, X: p.X, Y: p.Y, Reward: p.Reward}
	if p.CarriedBy != "" {
		by := p.CarriedBy
		m.CarriedBy = &by
	}
	return m
}

func parcelMsgs(ps []grid.Parcel) []protocol.ParcelMsg {
	out := make([]protocol.ParcelMsg, 0, len(ps))
	for _, p := range ps {
		out = append(out, parcelMsg(p))
	}
	return out
}

func tileMsg(t grid.Tile) protocol.TileMsg {
	return protocol.TileMsg{
		X:             t.X,
		Y:             t.Y,
		Type:          tileCode(t.Kind),
		Delivery:      t.Kind == grid.Delivery,
		ParcelSpawner: t.Kind == grid.ParcelSpawner,
	}
}

func tileCode(k grid.Kind) int {
	switch k {
	case grid.ParcelSpawner:
		return protocol.TileParcelSpawner
	case grid.Delivery:
		return protocol.TileDelivery
	case grid.Plain:
		return protocol.TilePlain
	default:
		return protocol.TileBlocked
	}
}

// tileEvent is "tile" for walkable tiles and "not_tile" for blocked ones.
func tileEvent(t grid.Tile) protocol.Message {
	if !t.Walkable() {
		return protocol.New(protocol.EventNotTile, protocol.TileMsg{X: t.X, Y: t.Y})
	}
	return protocol.New(protocol.EventTile, tileMsg(t))
}

func timerMsg(remaining time.Duration, running bool, status string) protocol.TimerMsg {
	if remaining < 0 {
		remaining = 0
	}
	return protocol.TimerMsg{
		Remaining: int64(remaining.Round(time.Second) / time.Second),
		Running:   running,
		Status:    status,
	}
}

// sessionConfig is the match config as one agent sees it: privileged agents
// observe everything.
func sessionConfig(cfg tuning.Config, a grid.AgentView) tuning.Config {
	if a.Privileged {
		cfg.AgentsObservationDistance = tuning.Infinite
		cfg.ParcelsObservationDistance = tuning.Infinite
	}
	return cfg
}

func leaderboardMsg(ctx context.Context, board *leaderboard.Board, matchID string) (protocol.LeaderboardMsg, error) {
	out := protocol.LeaderboardMsg{
		MatchID: matchID,
		Agents:  []protocol.LeaderboardEntryMsg{},
		Teams:   []protocol.LeaderboardTeamMsg{},
	}
	if board == nil {
		return out, nil
	}
	entries, err := board.Get(ctx, leaderboard.Filter{MatchID: matchID})
	if err != nil {
		return out, err
	}
	for _, e := range entries {
		out.Agents = append(out.Agents, protocol.LeaderboardEntryMsg{
			AgentID:   e.AgentID,
			AgentName: e.AgentName,
			TeamID:    e.TeamID,
			TeamName:  e.TeamName,
			Reward:    e.Reward,
		})
	}
	teams, err := board.Teams(ctx, matchID)
	if err != nil {
		return out, err
	}
	for _, t := range teams {
		out.Teams = append(out.Teams, protocol.LeaderboardTeamMsg{TeamID: t.TeamID, TeamName: t.TeamName, Reward: t.Reward})
	}
	return out, nil
}
