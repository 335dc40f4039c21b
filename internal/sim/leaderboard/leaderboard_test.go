package leaderboard

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

func openBoard(t *testing.T) *Board {
	t.Helper()
	b, err := Open(MemoryDSN)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestAddRewardAccumulatesPerAgentAndTeam(t *testing.T) {
	b := openBoard(t)
	ctx := context.Background()

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("AddReward: %v", err)
		}
	}
	must(b.AddReward(ctx, "m1", "t1", "red", "a1", "alice", 0))
	must(b.AddReward(ctx, "m1", "t1", "red", "a1", "alice", 10))
	must(b.AddReward(ctx, "m1", "t1", "red", "a2", "bob", 5))
	must(b.AddReward(ctx, "m1", "", "", "a3", "carol", 7))
	must(b.AddReward(ctx, "m2", "t1", "red", "a1", "alice", 100))

	entries, err := b.Get(ctx, Filter{MatchID: "m1"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3: %+v", len(entries), entries)
	}
	if entries[0].AgentID != "a1" || entries[0].Reward != 10 {
		t.Fatalf("a1 = %+v, want reward 10", entries[0])
	}
	if entries[2].AgentID != "a3" || entries[2].TeamID != "" {
		t.Fatalf("a3 = %+v, want solo entry", entries[2])
	}

	teams, err := b.Teams(ctx, "m1")
	if err != nil {
		t.Fatalf("Teams: %v", err)
	}
	if len(teams) != 1 || teams[0].TeamID != "t1" || teams[0].Reward != 15 {
		t.Fatalf("teams = %+v, want t1 with 15", teams)
	}

	byTeam, err := b.Get(ctx, Filter{MatchID: "m1", TeamID: "t1"})
	if err != nil {
		t.Fatalf("Get team: %v", err)
	}
	if len(byTeam) != 2 {
		t.Fatalf("team filter = %+v, want 2 entries", byTeam)
	}
}

func TestZeroRewardCreatesEntry(t *testing.T) {
	b := openBoard(t)
	ctx := context.Background()
	if err := b.AddReward(ctx, "m", "", "", "a", "alice", 0); err != nil {
		t.Fatalf("AddReward: %v", err)
	}
	got, err := b.Get(ctx, Filter{AgentID: "a"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 1 || got[0].Reward != 0 {
		t.Fatalf("got %+v, want one zero entry", got)
	}
}

func TestNegativeRewardRejected(t *testing.T) {
	b := openBoard(t)
	ctx := context.Background()
	_ = b.AddReward(ctx, "m", "", "", "a", "alice", 3)
	if err := b.AddReward(ctx, "m", "", "", "a", "alice", -1); !errors.Is(err, ErrNegativeReward) {
		t.Fatalf("err = %v, want ErrNegativeReward", err)
	}
	got, _ := b.Get(ctx, Filter{MatchID: "m"})
	if len(got) != 1 || got[0].Reward != 3 {
		t.Fatalf("total changed: %+v", got)
	}
}

func TestDiscardDropsOnlyThatMatch(t *testing.T) {
	b := openBoard(t)
	ctx := context.Background()
	_ = b.AddReward(ctx, "m1", "t", "team", "a", "alice", 1)
	_ = b.AddReward(ctx, "m2", "t", "team", "a", "alice", 2)
	if err := b.Discard(ctx, "m1"); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	all, _ := b.Get(ctx, Filter{})
	if len(all) != 1 || all[0].MatchID != "m2" {
		t.Fatalf("after discard = %+v", all)
	}
	teams, _ := b.Teams(ctx, "m1")
	if len(teams) != 0 {
		t.Fatalf("m1 teams survived: %+v", teams)
	}
}

func TestFileBoardIsReadableExternally(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lb", "board.db")
	b, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := b.AddReward(context.Background(), "m", "t", "team", "a", "alice", 4); err != nil {
		t.Fatalf("AddReward: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	var reward int
	if err := db.QueryRow(`SELECT reward FROM team_rewards WHERE match_id='m' AND team_id='t'`).Scan(&reward); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if reward != 4 {
		t.Fatalf("reward = %d, want 4", reward)
	}
}

func TestClosedBoardRefuses(t *testing.T) {
	b, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = b.Close()
	if err := b.AddReward(context.Background(), "m", "", "", "a", "x", 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}
