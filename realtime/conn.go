package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teranos/jawala/errors"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
)

// Conn abstracts the WebSocket connection for testability.
// The real implementation wraps gorilla/websocket; tests use a channel pair.
type Conn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	Close() error
}

// Dialer opens a connection to the realtime endpoint
type Dialer func(ctx context.Context, url string) (Conn, error)

// wsConn adapts a gorilla connection. gorilla allows one concurrent writer,
// and both the heartbeat and the reader write.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) ReadJSON(v interface{}) error {
	return c.conn.ReadJSON(v)
}

func (c *wsConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// WebsocketDialer dials url with gorilla/websocket
func WebsocketDialer(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			err = errors.WithDetailf(err, "handshake status: %d", resp.StatusCode)
		}
		return nil, errors.Mark(errors.Wrap(err, "dial realtime"), errors.ErrServiceUnavailable)
	}
	return &wsConn{conn: conn}, nil
}
