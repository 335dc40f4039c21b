// Package leaderboard aggregates per-agent and per-team rewards of every
// match in a SQLite read model.
package leaderboard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// MemoryDSN keeps the board in a private in-memory database.
const MemoryDSN = ":memory:"

var (
	ErrNegativeReward = errors.New("leaderboard: negative reward")
	ErrClosed         = errors.New("leaderboard: closed")
)

type Entry struct {
	MatchID   string `json:"matchId"`
	TeamID    string `json:"teamId,omitempty"`
	TeamName  string `json:"teamName,omitempty"`
	AgentID   string `json:"agentId"`
	AgentName string `json:"agentName"`
	Reward    int    `json:"reward"`
}

type TeamEntry struct {
	MatchID  string `json:"matchId"`
	TeamID   string `json:"teamId"`
	TeamName string `json:"teamName"`
	Reward   int    `json:"reward"`
}

// Filter selects agent entries. Empty fields match everything.
type Filter struct {
	MatchID string
	AgentID string
	TeamID  string
}

type Board struct {
	db   *sql.DB
	once sync.Once
	mu   sync.RWMutex
	shut bool
}

func Open(dsn string) (*Board, error) {
	if dsn == "" {
		dsn = MemoryDSN
	}
	if dsn != MemoryDSN {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// A single long-lived connection; an in-memory database lives only as
	// long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db, dsn); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Board{db: db}, nil
}

func initPragmas(db *sql.DB, dsn string) error {
	pragmas := []string{
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	if dsn != MemoryDSN {
		// Lets cmd/admin read the board while the server writes.
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL;", "PRAGMA synchronous=NORMAL;")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agent_rewards (
			match_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			agent_name TEXT NOT NULL,
			team_id TEXT NOT NULL DEFAULT '',
			team_name TEXT NOT NULL DEFAULT '',
			reward INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (match_id, agent_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_agent_rewards_team ON agent_rewards(match_id, team_id);`,
		`CREATE TABLE IF NOT EXISTS team_rewards (
			match_id TEXT NOT NULL,
			team_id TEXT NOT NULL,
			team_name TEXT NOT NULL,
			reward INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (match_id, team_id)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (b *Board) Close() error {
	var err error
	b.once.Do(func() {
		b.mu.Lock()
		b.shut = true
		b.mu.Unlock()
		err = b.db.Close()
	})
	return err
}

// AddReward adds reward to the agent's total in the match and, when teamID is
// set, to the team's total. A zero reward just ensures the entries exist.
func (b *Board) AddReward(ctx context.Context, matchID, teamID, teamName, agentID, agentName string, reward int) error {
	if reward < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeReward, reward)
	}
	if matchID == "" || agentID == "" {
		return fmt.Errorf("leaderboard: match and agent id are required")
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.shut {
		return ErrClosed
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO agent_rewards(match_id,agent_id,agent_name,team_id,team_name,reward)
		VALUES(?,?,?,?,?,?)
		ON CONFLICT(match_id,agent_id) DO UPDATE SET
			reward=agent_rewards.reward+excluded.reward,
			agent_name=excluded.agent_name,
			team_id=excluded.team_id,
			team_name=excluded.team_name`,
		matchID, agentID, agentName, teamID, teamName, reward); err != nil {
		return fmt.Errorf("leaderboard: agent reward: %w", err)
	}
	if teamID != "" {
		if _, err := tx.ExecContext(ctx, `INSERT INTO team_rewards(match_id,team_id,team_name,reward)
			VALUES(?,?,?,?)
			ON CONFLICT(match_id,team_id) DO UPDATE SET
				reward=team_rewards.reward+excluded.reward,
				team_name=excluded.team_name`,
			matchID, teamID, teamName, reward); err != nil {
			return fmt.Errorf("leaderboard: team reward: %w", err)
		}
	}
	return tx.Commit()
}

func (b *Board) Get(ctx context.Context, f Filter) ([]Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.shut {
		return nil, ErrClosed
	}
	rows, err := b.db.QueryContext(ctx, `SELECT match_id,agent_id,agent_name,team_id,team_name,reward
		FROM agent_rewards
		WHERE (?1 = '' OR match_id = ?1)
		  AND (?2 = '' OR agent_id = ?2)
		  AND (?3 = '' OR team_id = ?3)
		ORDER BY match_id, agent_id`, f.MatchID, f.AgentID, f.TeamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.MatchID, &e.AgentID, &e.AgentName, &e.TeamID, &e.TeamName, &e.Reward); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (b *Board) Teams(ctx context.Context, matchID string) ([]TeamEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.shut {
		return nil, ErrClosed
	}
	rows, err := b.db.QueryContext(ctx, `SELECT match_id,team_id,team_name,reward
		FROM team_rewards
		WHERE (?1 = '' OR match_id = ?1)
		ORDER BY match_id, team_id`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []TeamEntry{}
	for rows.Next() {
		var e TeamEntry
		if err := rows.Scan(&e.MatchID, &e.TeamID, &e.TeamName, &e.Reward); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Discard drops every row of a match.
func (b *Board) Discard(ctx context.Context, matchID string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.shut {
		return ErrClosed
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM agent_rewards WHERE match_id=?`, matchID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM team_rewards WHERE match_id=?`, matchID); err != nil {
		return err
	}
	return tx.Commit()
}
