package exception

import "errors"

// WS errors
var (
	ErrWebSocketConnectionClose = errors.New("websocket: connection closed")
	ErrWebSocketNotConnected    = errors.New("websocket: not connected")
	ErrWebSocketIdleTimeout     = errors.New("websocket: idle timeout")
	ErrWebSocketNilHook         = errors.New("websocket: nil connect hook")
)
