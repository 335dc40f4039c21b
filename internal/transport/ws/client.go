package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"deliveroo.ai/internal/auth"
	"deliveroo.ai/internal/protocol"
	"deliveroo.ai/internal/sim/arena"
	"deliveroo.ai/internal/sim/grid"
	"deliveroo.ai/internal/sim/match"
	"deliveroo.ai/internal/transport/broadcast"
)

const (
	readLimit      = 1 << 20
	maxPendingAsks = 64
)

var errClientClosed = errors.New("connection closed")

// client is one websocket connection of an agent. It is the broadcast.Peer
// the room channel fans out to.
type client struct {
	s     *Server
	id    string
	conn  *websocket.Conn
	room  *arena.Room
	ident auth.Identity

	out       chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	limiter *rate.Limiter

	mu      sync.Mutex
	replies map[uint64]func(protocol.Frame)
}

func newClient(s *Server, conn *websocket.Conn, room *arena.Room, ident auth.Identity) *client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		s:       s,
		id:      fmt.Sprintf("c%d", s.connSeq.Add(1)),
		conn:    conn,
		room:    room,
		ident:   ident,
		out:     make(chan []byte, s.opts.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
		replies: map[uint64]func(protocol.Frame){},
	}
	if cfg := room.Match.Config(); cfg.SayRate > 0 {
		burst := cfg.SayBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.SayRate), burst)
	}
	return c
}

func (c *client) ID() string { return c.id }

// Send queues msg without blocking; under back-pressure the oldest queued
// frame is dropped.
func (c *client) Send(msg protocol.Message) error {
	if c.ctx.Err() != nil {
		return errClientClosed
	}
	b, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	sendLatest(c.out, b)
	return nil
}

// sendOrdered waits for queue space instead of dropping.
func (c *client) sendOrdered(msg protocol.Message) error {
	b, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	select {
	case c.out <- b:
		return nil
	case <-c.ctx.Done():
		return errClientClosed
	}
}

func (c *client) Close(reason string) {
	c.closeOnce.Do(func() {
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, reason), time.Now().Add(time.Second))
		c.cancel()
		_ = c.conn.Close()
	})
}

func (c *client) serve() {
	defer c.cancel()

	c.s.hubFor(c.room)
	release := c.room.Hold(c.ident.ID)
	defer release()
	a, err := c.room.Match.GetOrCreateAgent(c.ident)
	if err != nil {
		c.Close(err.Error())
		return
	}

	// Writer goroutine.
	go c.writeLoop()

	joined := false
	defer func() { c.leave(joined) }()

	if err := c.pushInitial(a.ID); err != nil {
		return
	}
	groups := []string{broadcast.AgentGroup(a.ID)}
	if a.TeamID != "" {
		groups = append(groups, broadcast.TeamGroup(a.TeamID))
	} else {
		groups = append(groups, broadcast.SoloTeamGroup(a.ID))
	}
	if err := c.room.Channel.Join(c, groups...); err != nil {
		c.Close(arena.TeardownReason)
		return
	}
	joined = true
	release()
	c.s.log.Printf("room %s: hi %s %s (%s)", c.room.ID, c.id, a.ID, a.Name)

	c.readLoop()
}

// pushInitial sends the state a new connection starts from, in order.
func (c *client) pushInitial(agentID string) error {
	g := c.room.Match.Grid()
	a, ok := g.Agent(agentID)
	if !ok {
		return grid.ErrUnknownAgent
	}
	w, h := g.Size()
	tiles := g.Tiles()
	mm := protocol.MapMsg{Width: w, Height: h, Tiles: make([]protocol.TileMsg, 0, len(tiles))}
	for _, t := range tiles {
		mm.Tiles = append(mm.Tiles, tileMsg(t))
	}

	status := c.room.Match.Status()
	msgs := []protocol.Message{
		protocol.New(protocol.EventConfig, sessionConfig(c.room.Match.Config(), a)),
		protocol.New(protocol.EventMap, mm),
	}
	for _, t := range tiles {
		msgs = append(msgs, tileEvent(t))
	}
	msgs = append(msgs,
		protocol.New(protocol.EventYou, agentMsg(a)),
		protocol.New(protocol.EventAgentsSensing, agentMsgs(g.SenseAgents(agentID))),
		protocol.New(protocol.EventParcelsSensing, parcelMsgs(g.SenseParcels(agentID))),
		protocol.New(protocol.EventTimerUpdate, timerMsg(c.room.Match.Remaining(), status == match.StatusPlay, string(status))),
	)

	ctx, cancel := context.WithTimeout(c.ctx, 2*time.Second)
	lb, err := leaderboardMsg(ctx, c.s.arena.Board(), c.room.ID)
	cancel()
	if err != nil {
		c.s.log.Printf("room %s: leaderboard: %v", c.room.ID, err)
	}
	msgs = append(msgs, protocol.New(protocol.EventLeaderboard, lb))

	for _, m := range msgs {
		if err := c.sendOrdered(m); err != nil {
			return err
		}
	}
	return nil
}

func (c *client) writeLoop() {
	ping := time.NewTicker(c.s.opts.PingInterval)
	defer ping.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case b := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.s.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.cancel()
				_ = c.conn.Close()
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.s.opts.WriteTimeout)); err != nil {
				c.cancel()
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (c *client) readLoop() {
	c.conn.SetReadLimit(readLimit)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.s.opts.ReadTimeout))
	})
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.s.opts.ReadTimeout))
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		f, err := protocol.Decode(msg)
		if err != nil {
			continue
		}
		c.handle(f)
	}
}

// leave detaches the connection and, when it was the agent's last one,
// arms the grace removal.
func (c *client) leave(joined bool) {
	c.cancel()
	if joined {
		c.room.Channel.Leave(c)
	}
	c.mu.Lock()
	c.replies = map[uint64]func(protocol.Frame){}
	c.mu.Unlock()

	if c.room.Channel.Closed() || !c.s.live(c.room) {
		return
	}
	if c.room.Channel.Count(broadcast.AgentGroup(c.ident.ID)) > 0 {
		return
	}
	if c.room.Match.Status() == match.StatusEnd {
		return
	}
	timeout := c.room.Match.Config().AgentTimeout
	if timeout.IsInfinite() {
		return
	}
	c.room.ScheduleRemoval(c.ident.ID, timeout.Duration())
}

// expect registers the handler of the target's answer to a relayed ask. At
// capacity the oldest unanswered ask is forgotten.
func (c *client) expect(id uint64, fn func(protocol.Frame)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx.Err() != nil {
		return false
	}
	if len(c.replies) >= maxPendingAsks {
		oldest := id
		for k := range c.replies {
			if k < oldest {
				oldest = k
			}
		}
		delete(c.replies, oldest)
	}
	c.replies[id] = fn
	return true
}

func (c *client) resolve(f protocol.Frame) {
	c.mu.Lock()
	fn, ok := c.replies[f.Ack]
	delete(c.replies, f.Ack)
	c.mu.Unlock()
	if ok {
		fn(f)
	}
}
