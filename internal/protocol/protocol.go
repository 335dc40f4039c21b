package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

const Version = "1.0"

// Server -> client events.
const (
	EventConfig         = "config"
	EventMap            = "map"
	EventTile           = "tile"
	EventNotTile        = "not_tile"
	EventYou            = "you"
	EventAgentDeleted   = "agent deleted"
	EventTimerUpdate    = "timer update"
	EventMatchEnded     = "match ended"
	EventAgentsSensing  = "agents sensing"
	EventParcelsSensing = "parcels sensing"
	EventLeaderboard    = "leaderboard"
	EventMsg            = "msg"
	EventPath           = "path"
	EventLog            = "log"
	EventDraw           = "draw"
	EventAck            = "ack"
)

// Client -> server events. "path", "log", "draw" and "tile" are shared with
// the outbound set; an inbound "tile" is the privileged toggle request.
const (
	EventMove          = "move"
	EventPickup        = "pickup"
	EventPutdown       = "putdown"
	EventSay           = "say"
	EventAsk           = "ask"
	EventShout         = "shout"
	EventCreateParcel  = "create parcel"
	EventDisposeParcel = "dispose parcel"
	EventToggleTile    = EventTile
)

// AckSuccessful is the acknowledgement payload for say/shout.
const AckSuccessful = "successful"

// AckMatchStopped is sent when an action reaches a match in STOP.
const AckMatchStopped = "match stopped"

var ErrMissingArg = errors.New("missing argument")

// Message is an outbound frame. Ack is set when the frame answers a client
// request (Event == EventAck) or when the server expects a reply.
type Message struct {
	Event string `json:"event"`
	Args  []any  `json:"args,omitempty"`
	Ack   uint64 `json:"ack,omitempty"`
}

// Frame is an inbound frame with lazily decoded arguments.
type Frame struct {
	Event string            `json:"event"`
	Args  []json.RawMessage `json:"args,omitempty"`
	Ack   uint64            `json:"ack,omitempty"`
}

func New(event string, args ...any) Message {
	return Message{Event: event, Args: args}
}

func Ack(id uint64, args ...any) Message {
	return Message{Event: EventAck, Args: args, Ack: id}
}

func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

func Decode(b []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return f, err
	}
	if f.Event == "" {
		return f, fmt.Errorf("frame without event")
	}
	return f, nil
}

// Arg decodes argument i into v.
func (f Frame) Arg(i int, v any) error {
	if i < 0 || i >= len(f.Args) {
		return fmt.Errorf("arg %d: %w", i, ErrMissingArg)
	}
	if err := json.Unmarshal(f.Args[i], v); err != nil {
		return fmt.Errorf("arg %d: %w", i, err)
	}
	return nil
}

// HasArg reports whether argument i is present and not JSON null.
func (f Frame) HasArg(i int) bool {
	if i < 0 || i >= len(f.Args) {
		return false
	}
	return string(f.Args[i]) != "null"
}

// RawArgs returns the arguments starting at i, untouched.
func (f Frame) RawArgs(from int) []any {
	if from >= len(f.Args) {
		return nil
	}
	out := make([]any, 0, len(f.Args)-from)
	for _, a := range f.Args[from:] {
		out = append(out, a)
	}
	return out
}
