package transport

import (
	"bufio"
	"net"
	"sync"
)

const defaultBufferSize = 32 * 1024

// BufferedConn frames a stream connection with the 4-byte length prefix.
type BufferedConn struct {
	raw  net.Conn
	opts ConnOptions
	in   *bufio.Reader

	mu  sync.Mutex
	out *bufio.Writer
}

func NewBufferedConn(conn net.Conn) *BufferedConn {
	return NewBufferedConnWithOptions(conn, ConnOptions{})
}

func NewBufferedConnWithOptions(conn net.Conn, opts ConnOptions) *BufferedConn {
	opts = opts.withDefaults()
	return &BufferedConn{
		raw:  conn,
		opts: opts,
		in:   bufio.NewReaderSize(conn, opts.ReadBufferSize),
		out:  bufio.NewWriterSize(conn, opts.WriteBufferSize),
	}
}

func (c *BufferedConn) ReadFrame() (*Frame, error) {
	return ReadFrame(c.in, c.opts.MaxFrameSize)
}

// WriteFrame writes and flushes one frame. A failed write leaves the
// buffer in an unknown state; callers close the connection.
func (c *BufferedConn) WriteFrame(f *Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opts.WriteTimeout > 0 {
		if err := c.raw.SetWriteDeadline(c.opts.writeDeadline()); err != nil {
			return err
		}
	}
	if err := WriteFrame(c.out, f); err != nil {
		return err
	}
	return c.out.Flush()
}

func (c *BufferedConn) RemoteAddr() string {
	if a := c.raw.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}

func (c *BufferedConn) Close() error {
	return c.raw.Close()
}
