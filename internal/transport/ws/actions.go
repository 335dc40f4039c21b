package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"deliveroo.ai/internal/protocol"
	"deliveroo.ai/internal/sim/grid"
	"deliveroo.ai/internal/sim/match"
	"deliveroo.ai/internal/transport/broadcast"
)

func (c *client) handle(f protocol.Frame) {
	if f.Event == protocol.EventAck {
		c.resolve(f)
		return
	}
	if !c.s.live(c.room) {
		return
	}
	switch f.Event {
	case protocol.EventMove, protocol.EventPickup, protocol.EventPutdown:
		c.act(f)
	case protocol.EventSay, protocol.EventAsk, protocol.EventShout:
		if c.limiter != nil && !c.limiter.Allow() {
			c.reply(f, protocol.ErrorReply{Error: protocol.ErrRateLimit, Message: "too many messages"})
			return
		}
		c.message(f)
	case protocol.EventPath:
		c.room.Channel.SendGroup(broadcast.AgentGroup(c.ident.ID), protocol.New(protocol.EventPath, f.RawArgs(0)...), c)
	case protocol.EventLog:
		args := append([]any{c.source()}, f.RawArgs(0)...)
		c.room.Channel.Broadcast(protocol.New(protocol.EventLog, args...), c)
	case protocol.EventDraw:
		args := append([]any{c.source()}, f.RawArgs(0)...)
		c.room.Channel.SendGroup(broadcast.AgentGroup(c.ident.ID), protocol.New(protocol.EventDraw, args...), c)
	case protocol.EventCreateParcel, protocol.EventDisposeParcel, protocol.EventToggleTile:
		c.command(f)
	default:
		c.reply(f, protocol.ErrorReply{Error: protocol.ErrBadRequest, Message: "unknown event " + f.Event})
	}
}

// reply answers a request that carried an ack id.
func (c *client) reply(f protocol.Frame, args ...any) {
	if f.Ack == 0 {
		return
	}
	_ = c.sendOrdered(protocol.Ack(f.Ack, args...))
}

func (c *client) source() protocol.SourceMsg {
	return protocol.SourceMsg{
		Src:       "client",
		Timestamp: time.Now().UnixMilli(),
		Socket:    c.id,
		ID:        c.ident.ID,
		Name:      c.ident.Name,
	}
}

func rawArg(f protocol.Frame, i int) any {
	if i < 0 || i >= len(f.Args) {
		return nil
	}
	return f.Args[i]
}

// act runs a movement or parcel action through the match gate.
func (c *client) act(f protocol.Frame) {
	switch err := c.room.Match.CheckAction(); {
	case errors.Is(err, match.ErrMatchNotRunning):
		c.reply(f, protocol.AckMatchStopped)
		return
	case err != nil:
		return
	}

	id := c.ident.ID
	switch f.Event {
	case protocol.EventMove:
		var raw string
		if err := f.Arg(0, &raw); err != nil {
			c.reply(f, protocol.ErrorReply{Error: protocol.ErrInvalidAction, Message: err.Error()})
			return
		}
		dir, err := grid.ParseDirection(raw)
		if err != nil {
			c.reply(f, protocol.ErrorReply{Error: protocol.ErrInvalidAction, Message: err.Error()})
			return
		}
		a, err := c.room.Match.Move(id, dir)
		if err != nil {
			c.failed(f, err, false)
			return
		}
		c.reply(f, protocol.PositionMsg{X: a.X, Y: a.Y})

	case protocol.EventPickup:
		ps, err := c.room.Match.PickUp(id)
		if err != nil {
			c.failed(f, err, []protocol.ParcelMsg{})
			return
		}
		c.reply(f, parcelMsgs(ps))

	case protocol.EventPutdown:
		var sel []string
		if f.HasArg(0) {
			if err := f.Arg(0, &sel); err != nil {
				c.reply(f, protocol.ErrorReply{Error: protocol.ErrBadRequest, Message: err.Error()})
				return
			}
		}
		res, err := c.room.Match.PutDown(id, sel)
		if err != nil {
			c.failed(f, err, protocol.PutDownMsg{Dropped: []protocol.ParcelMsg{}})
			return
		}
		c.reply(f, protocol.PutDownMsg{Dropped: parcelMsgs(res.Dropped), Reward: res.Reward})
	}
}

// failed acks a rejected action with its neutral result. Actions that raced
// the end of the match are dropped like any other action on an ended match.
func (c *client) failed(f protocol.Frame, err error, neutral any) {
	switch {
	case errors.Is(err, match.ErrMatchEnded), errors.Is(err, grid.ErrClosed):
		return
	case errors.Is(err, match.ErrMatchNotRunning):
		c.reply(f, protocol.AckMatchStopped)
	default:
		c.reply(f, neutral)
	}
}

func (c *client) message(f protocol.Frame) {
	me := c.ident
	switch f.Event {
	case protocol.EventSay:
		var to string
		if err := f.Arg(0, &to); err != nil {
			c.reply(f, protocol.ErrorReply{Error: protocol.ErrBadRequest, Message: err.Error()})
			return
		}
		c.room.Channel.SendGroup(broadcast.AgentGroup(to), protocol.New(protocol.EventMsg, me.ID, me.Name, rawArg(f, 1)), c)
		c.reply(f, protocol.AckSuccessful)

	case protocol.EventAsk:
		var to string
		if err := f.Arg(0, &to); err != nil {
			c.reply(f, protocol.ErrorReply{Error: protocol.ErrBadRequest, Message: err.Error()})
			return
		}
		c.ask(f, to)

	case protocol.EventShout:
		c.room.Channel.Broadcast(protocol.New(protocol.EventMsg, me.ID, me.Name, rawArg(f, 0)), c)
		c.reply(f, protocol.AckSuccessful)
	}
}

// ask relays the question to every connection of the target agent. The
// first answer goes back to the asker; later ones are ignored.
func (c *client) ask(f protocol.Frame, to string) {
	msg := protocol.New(protocol.EventMsg, c.ident.ID, c.ident.Name, rawArg(f, 1))
	if f.Ack != 0 {
		msg.Ack = c.s.askSeq.Add(1)
	}
	var once sync.Once
	answer := func(r protocol.Frame) {
		once.Do(func() { _ = c.Send(protocol.Ack(f.Ack, r.RawArgs(0)...)) })
	}
	for _, p := range c.room.Channel.Group(broadcast.AgentGroup(to)) {
		if p.ID() == c.id {
			continue
		}
		target, ok := p.(*client)
		if !ok {
			_ = p.Send(protocol.New(msg.Event, msg.Args...))
			continue
		}
		if msg.Ack != 0 && !target.expect(msg.Ack, answer) {
			continue
		}
		_ = target.Send(msg)
	}
}

// cellArgs accepts {x, y, reward} or positional x, y[, reward].
func cellArgs(f protocol.Frame) (protocol.CellReq, error) {
	var req protocol.CellReq
	if len(f.Args) > 0 && len(f.Args[0]) > 0 && f.Args[0][0] == '{' {
		err := json.Unmarshal(f.Args[0], &req)
		return req, err
	}
	if err := f.Arg(0, &req.X); err != nil {
		return req, err
	}
	if err := f.Arg(1, &req.Y); err != nil {
		return req, err
	}
	if f.HasArg(2) {
		if err := f.Arg(2, &req.Reward); err != nil {
			return req, err
		}
	}
	return req, nil
}

func (c *client) command(f protocol.Frame) {
	if !c.ident.Privileged {
		c.reply(f, protocol.ErrorReply{Error: protocol.ErrNoPermission, Message: f.Event + " requires a privileged agent"})
		return
	}
	if c.room.Match.Status() == match.StatusEnd {
		return
	}
	req, err := cellArgs(f)
	if err != nil {
		c.reply(f, protocol.ErrorReply{Error: protocol.ErrBadRequest, Message: err.Error()})
		return
	}
	g := c.room.Match.Grid()
	switch f.Event {
	case protocol.EventCreateParcel:
		p, err := g.CreateParcel(req.X, req.Y, req.Reward)
		if err != nil {
			c.reply(f, errorReply(err))
			return
		}
		c.reply(f, parcelMsg(p))
	case protocol.EventDisposeParcel:
		c.reply(f, g.DisposeParcel(req.X, req.Y))
	case protocol.EventToggleTile:
		t, err := g.ToggleTile(req.X, req.Y)
		if err != nil {
			c.reply(f, errorReply(err))
			return
		}
		c.reply(f, tileMsg(t))
	}
}

func errorReply(err error) protocol.ErrorReply {
	return protocol.ErrorReply{Error: codeFor(err), Message: err.Error()}
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, grid.ErrBlocked), errors.Is(err, grid.ErrTileOccupied):
		return protocol.ErrBlocked
	case errors.Is(err, grid.ErrMoveInFlight):
		return protocol.ErrCooldown
	case errors.Is(err, grid.ErrOutOfBounds), errors.Is(err, grid.ErrInvalidDirection), errors.Is(err, grid.ErrUnknownAgent):
		return protocol.ErrInvalidAction
	case errors.Is(err, match.ErrMatchNotRunning):
		return protocol.ErrMatchStopped
	case errors.Is(err, match.ErrMatchEnded), errors.Is(err, grid.ErrClosed):
		return protocol.ErrMatchEnded
	default:
		return protocol.ErrInternal
	}
}
