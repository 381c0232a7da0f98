package chat

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	readLimit    = 1 << 20
	dialDeadline = 15 * time.Second
)

// Conn is one live socket. It isolates the controller from the concrete
// WebSocket implementation so the state machine is testable with a fake.
type Conn interface {
	// ReadMessage blocks for the next text frame. On connection loss it
	// returns an error; *websocket.CloseError carries the close code.
	ReadMessage() ([]byte, error)

	// WriteJSON sends one frame. Safe for concurrent use.
	WriteJSON(v any) error

	// Close sends a close frame with the given code and tears down.
	Close(code int, reason string) error
}

// Transport dials sockets. The production implementation wraps
// gorilla/websocket; tests inject a fake.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebSocketTransport is the gorilla/websocket-backed Transport.
type WebSocketTransport struct {
	Dialer *websocket.Dialer
}

func (t *WebSocketTransport) Dial(ctx context.Context, url string) (Conn, error) {
	d := t.Dialer
	if d == nil {
		d = websocket.DefaultDialer
	}
	ctx, cancel := context.WithTimeout(ctx, dialDeadline)
	defer cancel()

	conn, resp, err := d.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	conn.SetReadLimit(readLimit)
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes, gorilla allows one writer
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close(code int, reason string) error {
	c.mu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	c.mu.Unlock()
	return c.conn.Close()
}
