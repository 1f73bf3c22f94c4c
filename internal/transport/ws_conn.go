package transport

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

var ErrTextMessage = errors.New("websocket text messages are not supported")

// WSConn carries one unprefixed frame per binary websocket message.
type WSConn struct {
	ws   *websocket.Conn
	opts ConnOptions

	mu sync.Mutex
}

func NewWSConn(conn *websocket.Conn, opts ConnOptions) *WSConn {
	opts = opts.withDefaults()
	conn.SetReadLimit(int64(opts.MaxFrameSize))
	return &WSConn{ws: conn, opts: opts}
}

func (c *WSConn) ReadFrame() (*Frame, error) {
	kind, payload, err := c.ws.ReadMessage()
	if err != nil {
		if errors.Is(err, websocket.ErrReadLimit) {
			return nil, fmt.Errorf("%w: %v", ErrFrameTooLarge, err)
		}
		return nil, err
	}
	if kind != websocket.BinaryMessage {
		return nil, fmt.Errorf("%w: type %d", ErrTextMessage, kind)
	}
	return UnmarshalFrame(payload)
}

func (c *WSConn) WriteFrame(f *Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opts.WriteTimeout > 0 {
		if err := c.ws.SetWriteDeadline(c.opts.writeDeadline()); err != nil {
			return err
		}
	}
	return c.ws.WriteMessage(websocket.BinaryMessage, f.Marshal())
}

func (c *WSConn) RemoteAddr() string {
	if a := c.ws.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}

func (c *WSConn) Close() error {
	return c.ws.Close()
}
