package websocket

import (
	"context"
	"time"
)

// MessageType represents a WebSocket message type.
// Values match RFC 6455 opcodes where applicable.
type MessageType uint8

const (
	// MessageText is a text data frame.
	MessageText MessageType = 1
	// MessageBinary is a binary data frame.
	MessageBinary MessageType = 2
	// MessageClose is a close control frame.
	MessageClose MessageType = 8
	// MessagePing is a ping control frame.
	MessagePing MessageType = 9
	// MessagePong is a pong control frame.
	MessagePong MessageType = 10
)

// CloseCode is a WebSocket close code.
type CloseCode uint16

const (
	// CloseNormal indicates a normal closure.
	CloseNormal CloseCode = 1000
	// CloseGoingAway indicates the peer is going away.
	CloseGoingAway CloseCode = 1001
)

// State is the lifecycle state of a Session.
type State uint32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReading
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReading:
		return "READING"
	default:
		return "DISCONNECTED"
	}
}

// Conn is a live transport produced by the Connect hook.
type Conn interface {
	// Read blocks for the next data frame.
	Read(ctx context.Context) (MessageType, []byte, error)
	// Write sends one frame. Safe for concurrent use.
	Write(ctx context.Context, msgType MessageType, payload []byte) error
	// Close closes the transport. Safe to call more than once.
	Close(code CloseCode, reason string) error
}

// Hooks are invoked in order on every connection cycle.
type Hooks struct {
	// BeforeConnect runs before dialing, e.g. to refresh a listen key.
	BeforeConnect func(ctx context.Context) error
	// Connect produces the live transport. Required.
	Connect func(ctx context.Context) (Conn, error)
	// OnConnect runs once the transport is up.
	OnConnect func(ctx context.Context, s *Session) error
	// OnReconnect restores stream subscriptions. Defaults to Session.Resubscribe.
	OnReconnect func(ctx context.Context, s *Session) error
	// OnMessage receives each decoded line in arrival order.
	OnMessage func(ctx context.Context, msg []byte) error
}

// Backoff defines reconnect backoff behavior.
type Backoff struct {
	// Min is the minimum backoff duration.
	Min time.Duration
	// Max is the maximum backoff duration.
	Max time.Duration
	// Factor multiplies the delay for each retry attempt. Values <= 1 keep the delay fixed.
	Factor float64
	// Jitter adds randomization as a fraction of the delay (0-1).
	Jitter float64
}
