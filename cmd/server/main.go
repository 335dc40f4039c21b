package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"deliveroo.ai/internal/auth"
	persistlog "deliveroo.ai/internal/persistence/log"
	"deliveroo.ai/internal/sim/arena"
	"deliveroo.ai/internal/sim/leaderboard"
	"deliveroo.ai/internal/sim/match"
	"deliveroo.ai/internal/transport/httpapi"
	"deliveroo.ai/internal/transport/ws"
)

func main() {
	var (
		addr            = flag.String("addr", ":8080", "http listen address")
		dataDir         = flag.String("data", "./data", "runtime data directory")
		mapsDir         = flag.String("maps", "./configs/maps", "directory of map files (built-in maps are always available)")
		roomsPath       = flag.String("rooms", "./configs/rooms.yaml", "preset rooms config (defaults when missing)")
		leaderboardPath = flag.String("leaderboard_db", "", "leaderboard sqlite path (default: <data>/leaderboard.sqlite; \":memory:\" keeps it in memory)")
		disableEventLog = flag.Bool("disable_event_log", false, "do not write per-match event logs")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tokenSecret := strings.TrimSpace(os.Getenv("DELIVEROO_TOKEN_SECRET"))
	if tokenSecret == "" {
		logger.Fatalf("DELIVEROO_TOKEN_SECRET is required")
	}
	adminSecret := strings.TrimSpace(os.Getenv("DELIVEROO_ADMIN_SECRET"))

	lbPath := strings.TrimSpace(*leaderboardPath)
	if lbPath == "" {
		lbPath = filepath.Join(*dataDir, "leaderboard.sqlite")
	}
	board, err := leaderboard.Open(lbPath)
	if err != nil {
		logger.Fatalf("open leaderboard: %v", err)
	}
	defer board.Close()

	var events func(matchID string) match.EventLogger
	if !*disableEventLog {
		events = func(matchID string) match.EventLogger {
			return persistlog.NewMatchLogger(*dataDir, matchID)
		}
	}

	a := arena.New(arena.Options{
		Board:   board,
		MapsDir: *mapsDir,
		Logger:  log.New(os.Stdout, "[arena] ", log.LstdFlags|log.Lmicroseconds),
		Events:  events,
	})

	rooms, err := arena.LoadConfig(*roomsPath)
	if err != nil {
		logger.Fatalf("load rooms config: %v", err)
	}
	if err := a.LoadRooms(rooms); err != nil {
		logger.Fatalf("load rooms: %v", err)
	}

	var admin *auth.AdminVerifier
	if adminSecret != "" {
		admin = auth.NewAdminVerifier(adminSecret)
	} else {
		logger.Printf("DELIVEROO_ADMIN_SECRET not set; admin api disabled")
	}

	wsSrv := ws.NewServer(a, auth.NewVerifier(tokenSecret), log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds), ws.Options{})
	mux := newMux(a, wsSrv, httpapi.New(a, admin, logger), envBool("DELIVEROO_ENABLE_PPROF", false))

	ctx, cancel := signalContext()
	defer cancel()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	ids := make([]string, 0)
	for _, r := range a.Rooms() {
		ids = append(ids, r.ID)
	}
	logger.Printf("listening on %s rooms=%v", *addr, ids)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	ctx3, cancel3 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel3()
	a.Close(ctx3)
	logger.Printf("stopped")
}

func newMux(a *arena.Arena, wsSrv *ws.Server, api *httpapi.Server, enablePprof bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, a)
	})
	api.Register(mux)

	if enablePprof {
		mux.HandleFunc("/debug/pprof/", loopbackOnly(pprof.Index))
		mux.HandleFunc("/debug/pprof/cmdline", loopbackOnly(pprof.Cmdline))
		mux.HandleFunc("/debug/pprof/profile", loopbackOnly(pprof.Profile))
		mux.HandleFunc("/debug/pprof/symbol", loopbackOnly(pprof.Symbol))
		mux.HandleFunc("/debug/pprof/trace", loopbackOnly(pprof.Trace))
	}
	mux.HandleFunc("/", wsSrv.Handler())
	return mux
}

// writeMetrics renders a minimal Prometheus exposition of every room.
func writeMetrics(rw http.ResponseWriter, a *arena.Arena) {
	rooms := a.Rooms()
	fmt.Fprintf(rw, "# HELP deliveroo_rooms Registered rooms.\n")
	fmt.Fprintf(rw, "# TYPE deliveroo_rooms gauge\n")
	fmt.Fprintf(rw, "deliveroo_rooms %d\n", len(rooms))
	for _, r := range rooms {
		g := r.Match.Grid()
		fmt.Fprintf(rw, "deliveroo_room_agents{room=%q} %d\n", r.ID, len(g.Agents()))
		fmt.Fprintf(rw, "deliveroo_room_parcels{room=%q} %d\n", r.ID, len(g.Parcels()))
		fmt.Fprintf(rw, "deliveroo_room_connections{room=%q} %d\n", r.ID, r.Channel.Len())
		fmt.Fprintf(rw, "deliveroo_room_pending_removals{room=%q} %d\n", r.ID, r.PendingRemovals())
		fmt.Fprintf(rw, "deliveroo_room_remaining_seconds{room=%q} %d\n", r.ID, int64(r.Match.Remaining()/time.Second))
		fmt.Fprintf(rw, "deliveroo_room_playing{room=%q} %d\n", r.ID, boolGauge(r.Match.Status() == match.StatusPlay))
	}
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

func loopbackOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		next(rw, r)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
