package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"deliveroo.ai/internal/auth"
	"deliveroo.ai/internal/sim/arena"
	"deliveroo.ai/internal/sim/leaderboard"
	"deliveroo.ai/internal/transport/httpapi"
	"deliveroo.ai/internal/transport/ws"
)

func newTestMux(t *testing.T, pprofOn bool) *httptest.Server {
	t.Helper()
	board, err := leaderboard.Open(leaderboard.MemoryDSN)
	if err != nil {
		t.Fatalf("leaderboard.Open: %v", err)
	}
	a := arena.New(arena.Options{Board: board})
	if err := a.LoadRooms(arena.DefaultConfig()); err != nil {
		t.Fatalf("LoadRooms: %v", err)
	}
	mux := newMux(a, ws.NewServer(a, auth.NewVerifier("s"), nil, ws.Options{}), httpapi.New(a, nil, nil), pprofOn)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		a.Close(ctx)
		_ = board.Close()
	})
	return srv
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestHealthz(t *testing.T) {
	srv := newTestMux(t, false)
	code, body := get(t, srv.URL+"/healthz")
	if code != http.StatusOK || body != "ok" {
		t.Fatalf("healthz = %d %q", code, body)
	}
}

func TestMetricsListsPresetRooms(t *testing.T) {
	srv := newTestMux(t, false)
	_, body := get(t, srv.URL+"/metrics")
	for _, want := range []string{
		"deliveroo_rooms 2",
		`deliveroo_room_connections{room="0"} 0`,
		`deliveroo_room_playing{room="1"} `,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestPprofDisabledByDefault(t *testing.T) {
	srv := newTestMux(t, false)
	if code, _ := get(t, srv.URL+"/debug/pprof/"); code == http.StatusOK {
		t.Fatalf("pprof served while disabled")
	}
	srv = newTestMux(t, true)
	if code, _ := get(t, srv.URL+"/debug/pprof/"); code != http.StatusOK {
		t.Fatalf("pprof = %d from loopback", code)
	}
}

func TestWebsocketRouteRequiresToken(t *testing.T) {
	srv := newTestMux(t, false)
	if code, _ := get(t, srv.URL+"/?match=0"); code != http.StatusUnauthorized {
		t.Fatalf("ws without token = %d", code)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:1234": true,
		"[::1]:80":       true,
		"10.0.0.1:80":    false,
		"garbage":        false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("isLoopbackRemote(%q) = %v", in, got)
		}
	}
}
