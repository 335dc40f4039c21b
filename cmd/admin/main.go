package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"deliveroo.ai/internal/auth"
	persistlog "deliveroo.ai/internal/persistence/log"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "events":
			eventsCmd(os.Args[2:])
			return
		case "leaderboard":
			leaderboardCmd(os.Args[2:])
			return
		case "token":
			tokenCmd(os.Args[2:])
			return
		case "matches":
			matchesCmd(os.Args[2:])
			return
		case "create":
			createCmd(os.Args[2:])
			return
		case "toggle":
			toggleCmd(os.Args[2:])
			return
		case "delete":
			deleteCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints the matches that have an event log under the data dir.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "matches"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if e.IsDir() {
			fmt.Println(e.Name())
		}
	}
}

func eventsCmd(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	matchID := fs.String("match", "", "match id (required)")
	kind := fs.String("kind", "", "only events of this kind (optional)")
	agentID := fs.String("agent", "", "only events of this agent (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*matchID) == "" {
		fmt.Fprintln(os.Stderr, "missing -match")
		os.Exit(2)
	}
	files, err := persistlog.EventFiles(persistlog.MatchDir(*dataDir, *matchID))
	if err != nil {
		fmt.Fprintln(os.Stderr, "list event files:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no event logs for match", *matchID)
		os.Exit(2)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, path := range files {
		err := persistlog.ReadEvents(path, func(e persistlog.EventEntry) error {
			if *kind != "" && e.Kind != *kind {
				return nil
			}
			if *agentID != "" && e.AgentID != *agentID {
				return nil
			}
			return enc.Encode(e)
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "read", path+":", err)
			os.Exit(1)
		}
	}
}

func tokenCmd(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	secret := fs.String("secret", "", "signing secret (default: $DELIVEROO_TOKEN_SECRET, or $DELIVEROO_ADMIN_SECRET with -admin)")
	admin := fs.Bool("admin", false, "sign an operator token for the admin api")
	id := fs.String("id", "", "agent id (required unless -admin)")
	name := fs.String("name", "", "agent display name (default: id)")
	teamID := fs.String("team", "", "team id (optional)")
	teamName := fs.String("team_name", "", "team display name (optional)")
	god := fs.Bool("god", false, "privileged agent")
	_ = fs.Parse(args)

	key := strings.TrimSpace(*secret)
	if key == "" {
		env := "DELIVEROO_TOKEN_SECRET"
		if *admin {
			env = "DELIVEROO_ADMIN_SECRET"
		}
		key = strings.TrimSpace(os.Getenv(env))
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "missing -secret")
		os.Exit(2)
	}

	var (
		tok string
		err error
	)
	if *admin {
		tok, err = auth.SignAdmin(key)
	} else {
		if strings.TrimSpace(*id) == "" {
			fmt.Fprintln(os.Stderr, "missing -id")
			os.Exit(2)
		}
		n := strings.TrimSpace(*name)
		if n == "" {
			n = *id
		}
		tok, err = auth.Sign(key, auth.Identity{
			ID:         *id,
			Name:       n,
			TeamID:     *teamID,
			TeamName:   *teamName,
			Privileged: *god,
		})
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "sign:", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
