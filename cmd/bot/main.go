package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"deliveroo.ai/internal/auth"
	"deliveroo.ai/internal/protocol"
	"deliveroo.ai/internal/transport/ws"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/", "ws url")
		matchID  = flag.String("match", "0", "room to join")
		token    = flag.String("token", "", "identity token (or sign one with -secret)")
		secret   = flag.String("secret", "", "token secret used to sign an identity (default: $DELIVEROO_TOKEN_SECRET)")
		id       = flag.String("id", "bot", "agent id when signing")
		name     = flag.String("name", "bot", "agent name when signing")
		team     = flag.String("team", "", "team id when signing")
		interval = flag.Duration("interval", 500*time.Millisecond, "time between actions")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	tok := strings.TrimSpace(*token)
	if tok == "" {
		key := strings.TrimSpace(*secret)
		if key == "" {
			key = strings.TrimSpace(os.Getenv("DELIVEROO_TOKEN_SECRET"))
		}
		var err error
		tok, err = auth.Sign(key, auth.Identity{ID: *id, Name: *name, TeamID: *team})
		if err != nil {
			logger.Fatalf("sign token: %v", err)
		}
	}

	h := http.Header{}
	h.Set(ws.HeaderMatch, *matchID)
	h.Set(auth.HeaderToken, tok)
	conn, resp, err := websocket.DefaultDialer.Dial(*url, h)
	if err != nil {
		if resp != nil {
			logger.Fatalf("dial: %v (http %d)", err, resp.StatusCode)
		}
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	b := &bot{conn: conn, logger: logger, closed: make(chan struct{})}
	go b.read()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	dirs := []string{"up", "down", "left", "right"}
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	for {
		select {
		case <-stop:
			return
		case <-b.done():
			return
		case <-ticker.C:
			b.send(protocol.EventMove, dirs[r.Intn(len(dirs))])
			b.send(protocol.EventPickup)
			b.send(protocol.EventPutdown, nil)
		}
	}
}

type bot struct {
	conn   *websocket.Conn
	logger *log.Logger
	ack    atomic.Uint64
	closed chan struct{}
}

func (b *bot) done() <-chan struct{} { return b.closed }

func (b *bot) send(event string, args ...any) {
	msg := map[string]any{"event": event, "args": args, "ack": b.ack.Add(1)}
	_ = b.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := b.conn.WriteJSON(msg); err != nil {
		b.logger.Printf("send %s: %v", event, err)
	}
}

func (b *bot) read() {
	defer close(b.closed)
	for {
		_, raw, err := b.conn.ReadMessage()
		if err != nil {
			b.logger.Printf("read: %v", err)
			return
		}
		f, err := protocol.Decode(raw)
		if err != nil {
			continue
		}
		switch f.Event {
		case protocol.EventYou:
			var me protocol.AgentMsg
			if err := f.Arg(0, &me); err == nil {
				b.logger.Printf("you id=%s pos=(%d,%d) score=%d", me.ID, me.X, me.Y, me.Score)
			}
		case protocol.EventAck:
			if len(f.Args) > 0 && strings.Contains(string(f.Args[0]), "reward") {
				var put protocol.PutDownMsg
				if err := json.Unmarshal(f.Args[0], &put); err == nil && put.Reward > 0 {
					b.logger.Printf("delivered %d parcels for %d", len(put.Dropped), put.Reward)
				}
			}
		case protocol.EventMsg:
			var from, text string
			_ = f.Arg(1, &from)
			_ = f.Arg(2, &text)
			b.logger.Printf("msg from %s: %s", from, text)
		case protocol.EventMatchEnded:
			b.logger.Printf("match ended")
			return
		}
	}
}
