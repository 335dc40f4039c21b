package ws

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"deliveroo.ai/internal/auth"
	"deliveroo.ai/internal/protocol"
	"deliveroo.ai/internal/sim/arena"
	"deliveroo.ai/internal/sim/match"
)

// HeaderMatch names the room to join; the "match" query parameter is the
// fallback for clients that cannot set headers.
const HeaderMatch = "match"

type Options struct {
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	PingInterval time.Duration
	// QueueSize bounds the outbound frames waiting for the writer.
	QueueSize int
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.ReadTimeout {
		o.PingInterval = o.ReadTimeout / 2
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	return o
}

type Server struct {
	arena    *arena.Arena
	verifier *auth.Verifier
	log      *log.Logger
	opts     Options

	upgrader websocket.Upgrader

	connSeq atomic.Uint64
	askSeq  atomic.Uint64

	mu   sync.Mutex
	hubs map[*arena.Room]*hub
}

func NewServer(a *arena.Arena, v *auth.Verifier, logger *log.Logger, opts Options) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Server{
		arena:    a,
		verifier: v,
		log:      logger,
		opts:     opts.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		hubs: map[*arena.Room]*hub{},
	}
	return s
}

// admissionError carries the HTTP status of a refused handshake.
type admissionError struct {
	status int
	code   string
	err    error
}

func (e *admissionError) Error() string { return e.code + ": " + e.err.Error() }
func (e *admissionError) Unwrap() error { return e.err }

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		room, ident, err := s.admit(r)
		if err != nil {
			var ae *admissionError
			if errors.As(err, &ae) {
				http.Error(rw, ae.Error(), ae.status)
				return
			}
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := newClient(s, conn, room, ident)
		c.serve()
	}
}

// admit checks identity and room before the upgrade so refused clients get
// a plain HTTP status instead of a session.
func (s *Server) admit(r *http.Request) (*arena.Room, auth.Identity, error) {
	ident, err := s.verifier.Verify(auth.TokenFromRequest(r))
	if err != nil {
		return nil, auth.Identity{}, &admissionError{status: http.StatusUnauthorized, code: protocol.ErrAuth, err: err}
	}

	roomID := strings.TrimSpace(r.Header.Get(HeaderMatch))
	if roomID == "" {
		roomID = strings.TrimSpace(r.URL.Query().Get(HeaderMatch))
	}
	room, ok := s.arena.Room(roomID)
	if !ok {
		return nil, auth.Identity{}, &admissionError{
			status: http.StatusNotFound,
			code:   protocol.ErrRoomNotFound,
			err:    fmt.Errorf("%w: %q", arena.ErrRoomNotFound, roomID),
		}
	}
	if room.Match.Status() == match.StatusEnd {
		return nil, auth.Identity{}, &admissionError{status: http.StatusGone, code: protocol.ErrMatchEnded, err: match.ErrMatchEnded}
	}
	return room, ident, nil
}

// hubFor returns the event fan-out of a room, creating it on first use.
func (s *Server) hubFor(room *arena.Room) *hub {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.hubs[room]; ok {
		return h
	}
	h := newHub(room, s.arena.Board(), s.log)
	s.hubs[room] = h
	go func() {
		<-room.Match.Done()
		h.stop()
		s.mu.Lock()
		if s.hubs[room] == h {
			delete(s.hubs, room)
		}
		s.mu.Unlock()
	}()
	return h
}

// live reports whether the room is still registered under its id.
func (s *Server) live(room *arena.Room) bool {
	r, ok := s.arena.Room(room.ID)
	return ok && r == room
}

// sendLatest enqueues b, evicting the oldest frame when the queue is full.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
