package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"connector/pkg/exception"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/errors"
)

// Dialer opens gorilla/websocket connections. Its Dial method fits Hooks.Connect.
type Dialer struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
	// ReadLimit caps inbound frame size. 0 keeps the library default.
	ReadLimit int64
}

// Dial connects to d.URL.
func (d Dialer) Dial(ctx context.Context) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		return nil, errors.Wrap(err, "dial").With("url", d.URL)
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &gorillaConn{conn: conn}, nil
}

type gorillaConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  sync.Once
}

func (c *gorillaConn) Read(ctx context.Context) (MessageType, []byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
	}
	msgType, payload, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return 0, nil, errors.Wrap(exception.ErrWebSocketConnectionClose, err.Error())
		}
		return 0, nil, err
	}
	return MessageType(msgType), payload, nil
}

func (c *gorillaConn) Write(ctx context.Context, msgType MessageType, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(10 * time.Second)
	}
	_ = c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteMessage(int(msgType), payload)
}

func (c *gorillaConn) Close(code CloseCode, reason string) error {
	var err error
	c.closed.Do(func() {
		msg := websocket.FormatCloseMessage(int(code), reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}
