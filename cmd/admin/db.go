package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"deliveroo.ai/internal/sim/leaderboard"
)

func leaderboardCmd(args []string) {
	fs := flag.NewFlagSet("leaderboard", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "leaderboard sqlite path (default: <data>/leaderboard.sqlite)")
	matchID := fs.String("match", "", "match id filter")
	agentID := fs.String("agent", "", "agent id filter")
	teamID := fs.String("team", "", "team id filter")
	teams := fs.Bool("teams", false, "print team totals instead of agent rows")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "leaderboard.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	board, err := leaderboard.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer board.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out any
	if *teams {
		out, err = board.Teams(ctx, *matchID)
	} else {
		out, err = board.Get(ctx, leaderboard.Filter{MatchID: *matchID, AgentID: *agentID, TeamID: *teamID})
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
