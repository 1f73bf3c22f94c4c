package service

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nuid"
	"go.uber.org/zap"

	"orb-server/internal/protocol"
	"orb-server/internal/transport"
)

type connState struct {
	conn     transport.Conn
	traceID  string
	once     sync.Once
	done     chan struct{}
	lastSeen atomic.Int64
	pending  atomic.Int32
}

func (c *connState) touch(now time.Time) {
	c.lastSeen.Store(now.UnixNano())
}

func (c *connState) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, c.lastSeen.Load()))
}

func (c *connState) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *connState) send(f *transport.Frame) error {
	select {
	case <-c.done:
		return protocol.InternalErrConnClosed
	default:
	}
	return c.conn.WriteFrame(f)
}

// ServeConn reads frames from conn until it closes or the server stops.
func (n *NetServer) ServeConn(conn transport.Conn) {
	c := &connState{
		conn:    conn,
		traceID: nuid.Next(),
		done:    make(chan struct{}),
	}
	c.touch(time.Now())
	if !n.track(c, func() error {
		n.readLoop(c)
		return nil
	}) {
		_ = conn.Close()
	}
}

func (n *NetServer) readLoop(c *connState) {
	n.metrics.ConnOpened()
	n.logger.Debug("connection opened",
		zap.String("trace_id", c.traceID),
		zap.String("remote", c.conn.RemoteAddr()),
	)
	defer func() {
		c.close()
		n.untrack(c)
		n.metrics.ConnClosed()
	}()

	for {
		f, err := c.conn.ReadFrame()
		if err != nil {
			if errors.Is(err, transport.ErrMalformedFrame) || errors.Is(err, transport.ErrTextMessage) {
				n.messageError(c, err)
				continue
			}
			if errors.Is(err, transport.ErrFrameTooLarge) {
				n.messageError(c, err)
			}
			select {
			case <-c.done:
			default:
				n.logger.Debug("connection closed",
					zap.String("trace_id", c.traceID),
					zap.String("reason", err.Error()),
				)
			}
			return
		}
		c.touch(time.Now())
		n.metrics.FrameReceived(f.Type.String())

		switch f.Type {
		case protocol.MsgRequest, protocol.MsgLocateRequest:
			if f.TraceID == "" {
				f.TraceID = c.traceID
			}
			c.pending.Add(1)
			select {
			case n.jobs <- job{conn: c, frame: f}:
			case <-c.done:
				c.pending.Add(-1)
				return
			case <-n.t.Dying():
				c.pending.Add(-1)
				if f.Type == protocol.MsgRequest && f.ResponseExpected {
					if out, err := exceptionFrame(f, protocol.Transient("server shutting down")); err == nil {
						_ = c.send(out)
					}
				}
				return
			}
		case protocol.MsgCancelRequest:
			n.logger.Debug("cancel ignored",
				zap.String("trace_id", c.traceID),
				zap.Uint32("request_id", f.RequestID),
			)
		case protocol.MsgCloseConnection:
			return
		default:
			n.messageError(c, fmt.Errorf("%w: %s", protocol.InternalErrUnexpectedReply, f.Type))
		}
	}
}

func (n *NetServer) messageError(c *connState, reason error) {
	n.logger.Warn("message error",
		zap.String("trace_id", c.traceID),
		zap.String("remote", c.conn.RemoteAddr()),
		zap.String("reason", reason.Error()),
	)
	_ = c.send(&transport.Frame{Type: protocol.MsgMessageError, TraceID: c.traceID})
}
