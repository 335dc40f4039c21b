// Package httpapi is the operator REST surface over the arena.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"deliveroo.ai/internal/auth"
	"deliveroo.ai/internal/sim/arena"
	"deliveroo.ai/internal/sim/leaderboard"
	"deliveroo.ai/internal/sim/maps"
	"deliveroo.ai/internal/sim/match"
	"deliveroo.ai/internal/sim/tuning"
)

const maxBody = 1 << 20

type Server struct {
	arena *arena.Arena
	admin *auth.AdminVerifier
	log   *log.Logger
}

func New(a *arena.Arena, admin *auth.AdminVerifier, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{arena: a, admin: admin, log: logger}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/matches", s.requireAdmin(s.createMatch))
	mux.HandleFunc("POST /api/matches/{id}", s.requireAdmin(s.toggleMatch))
	mux.HandleFunc("DELETE /api/matches/{id}", s.requireAdmin(s.deleteMatch))
	mux.HandleFunc("GET /api/matches", s.listMatches)
	mux.HandleFunc("GET /api/matches/{id}/status", s.matchStatus)
	mux.HandleFunc("GET /api/leaderboard", s.leaderboard)
	mux.HandleFunc("GET /api/maps", s.mapNames)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, msg string) {
	writeJSON(rw, status, map[string]any{"ok": false, "error": msg})
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if s.admin == nil {
			writeError(rw, http.StatusForbidden, "admin api disabled")
			return
		}
		if err := s.admin.Verify(auth.TokenFromRequest(r)); err != nil {
			writeError(rw, http.StatusUnauthorized, err.Error())
			return
		}
		next(rw, r)
	}
}

func (s *Server) createMatch(rw http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(rw, r.Body, maxBody))
	if err != nil {
		writeError(rw, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := tuning.Parse(raw)
	if err != nil {
		writeError(rw, http.StatusBadRequest, err.Error())
		return
	}
	room, err := s.arena.CreateRoom(cfg)
	switch {
	case errors.Is(err, arena.ErrClosed):
		writeError(rw, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, maps.ErrNotFound):
		writeError(rw, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(rw, http.StatusBadRequest, err.Error())
		return
	}
	s.log.Printf("match %s: created via api", room.ID)
	writeJSON(rw, http.StatusOK, map[string]any{
		"id":     room.ID,
		"config": room.Match.Config(),
		"map":    room.Match.MapName(),
	})
}

func (s *Server) toggleMatch(rw http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	room, ok := s.arena.Room(id)
	if !ok {
		writeError(rw, http.StatusNotFound, "match not found")
		return
	}
	st, err := room.Match.Toggle()
	if errors.Is(err, match.ErrMatchEnded) {
		writeError(rw, http.StatusBadRequest, "match ended")
		return
	}
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"id": id, "status": st})
}

func (s *Server) deleteMatch(rw http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if !s.arena.DeleteRoom(ctx, id) {
		writeError(rw, http.StatusNotFound, "match not found")
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "id": id})
}

func (s *Server) listMatches(rw http.ResponseWriter, r *http.Request) {
	rooms := s.arena.Rooms()
	ids := make([]string, 0, len(rooms))
	statuses := make([]match.Status, 0, len(rooms))
	for _, room := range rooms {
		ids = append(ids, room.ID)
		statuses = append(statuses, room.Match.Status())
	}
	writeJSON(rw, http.StatusOK, map[string]any{"matches": ids, "status": statuses})
}

func (s *Server) matchStatus(rw http.ResponseWriter, r *http.Request) {
	room, ok := s.arena.Room(r.PathValue("id"))
	if !ok {
		writeError(rw, http.StatusNotFound, "match not found")
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{
		"status":    room.Match.Status(),
		"remaining": int64(room.Match.Remaining() / time.Second),
		"teams":     room.Match.Teams(),
	})
}

func (s *Server) leaderboard(rw http.ResponseWriter, r *http.Request) {
	board := s.arena.Board()
	if board == nil {
		writeError(rw, http.StatusServiceUnavailable, "leaderboard disabled")
		return
	}
	q := r.URL.Query()
	f := leaderboard.Filter{
		MatchID: strings.TrimSpace(q.Get("match")),
		AgentID: strings.TrimSpace(q.Get("agent")),
		TeamID:  strings.TrimSpace(q.Get("team")),
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	entries, err := board.Get(ctx, f)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err.Error())
		return
	}
	out := map[string]any{"entries": entries}
	if f.MatchID != "" && f.AgentID == "" && f.TeamID == "" {
		teams, err := board.Teams(ctx, f.MatchID)
		if err != nil {
			writeError(rw, http.StatusInternalServerError, err.Error())
			return
		}
		out["teams"] = teams
	}
	writeJSON(rw, http.StatusOK, out)
}

func (s *Server) mapNames(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{"maps": s.arena.MapNames()})
}
