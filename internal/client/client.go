// Package client is a synchronous request/reply client for the ORB frame
// protocol. One call is in flight per Client.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"orb-server/internal/cdr"
	"orb-server/internal/ior"
	"orb-server/internal/protocol"
	"orb-server/internal/transport"
)

const DefaultMaxForwards = 8

var (
	ErrMessageError  = errors.New("server reported a message error")
	ErrUnknownObject = errors.New("object unknown to server")
)

type Client struct {
	conn        transport.Conn
	maxForwards int

	mu     sync.Mutex
	nextID uint32
	closed bool
}

func New(conn transport.Conn) *Client {
	return &Client{conn: conn, maxForwards: DefaultMaxForwards}
}

// Dial connects over TCP, retrying with backoff until ctx is done.
func Dial(ctx context.Context, addr string, opts transport.ConnOptions) (*Client, error) {
	var d net.Dialer
	backoff := 100 * time.Millisecond
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return New(transport.NewBufferedConnWithOptions(conn, opts)), nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		case <-time.After(backoff):
		}
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}
}

// DialWS connects to a websocket endpoint such as ws://host:port/giop.
func DialWS(ctx context.Context, url string, opts transport.ConnOptions) (*Client, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return New(transport.NewWSConn(c, opts)), nil
}

func (c *Client) SetMaxForwards(n int) {
	c.mu.Lock()
	c.maxForwards = n
	c.mu.Unlock()
}

// Close asks the server to close the connection, then closes it locally.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.conn.WriteFrame(&transport.Frame{Type: protocol.MsgCloseConnection})
	return c.conn.Close()
}

// roundTrip writes f and waits for the frame answering it. A cancelled ctx
// closes the connection.
func (c *Client) roundTrip(ctx context.Context, f *transport.Frame, wantReply bool) (*transport.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, protocol.InternalErrConnClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.nextID++
	f.RequestID = c.nextID

	if err := c.conn.WriteFrame(f); err != nil {
		return nil, err
	}
	if !wantReply {
		return nil, nil
	}

	type result struct {
		f   *transport.Frame
		err error
	}
	done := make(chan result, 1)
	go func() {
		for {
			in, err := c.conn.ReadFrame()
			if err != nil {
				done <- result{err: err}
				return
			}
			if in.Type == protocol.MsgCloseConnection {
				done <- result{err: protocol.InternalErrConnClosed}
				return
			}
			if in.Type == protocol.MsgMessageError {
				done <- result{err: ErrMessageError}
				return
			}
			if in.RequestID == f.RequestID {
				done <- result{f: in}
				return
			}
		}
	}()

	select {
	case r := <-done:
		return r.f, r.err
	case <-ctx.Done():
		c.closed = true
		_ = c.conn.Close()
		return nil, ctx.Err()
	}
}

// Invoke calls op on the object named by key. A SYSTEM_EXCEPTION reply is
// returned as *protocol.SystemException and a LOCATION_FORWARD reply as
// *protocol.ForwardRequest.
func (c *Client) Invoke(ctx context.Context, key []byte, op string, args func(*cdr.Encoder)) (*cdr.Decoder, error) {
	var body []byte
	if args != nil {
		enc := cdr.NewEncoder()
		args(enc)
		body = enc.Bytes()
	}
	reply, err := c.roundTrip(ctx, &transport.Frame{
		Type:             protocol.MsgRequest,
		ResponseExpected: true,
		ObjectKey:        key,
		Operation:        op,
		Body:             body,
	}, true)
	if err != nil {
		return nil, err
	}
	if reply.Type != protocol.MsgReply {
		return nil, fmt.Errorf("%w: %s", protocol.InternalErrUnexpectedReply, reply.Type)
	}
	return decodeReply(reply)
}

// Send issues a request without waiting for a reply.
func (c *Client) Send(ctx context.Context, key []byte, op string, args func(*cdr.Encoder)) error {
	var body []byte
	if args != nil {
		enc := cdr.NewEncoder()
		args(enc)
		body = enc.Bytes()
	}
	_, err := c.roundTrip(ctx, &transport.Frame{
		Type:      protocol.MsgRequest,
		ObjectKey: key,
		Operation: op,
		Body:      body,
	}, false)
	return err
}

func decodeReply(f *transport.Frame) (*cdr.Decoder, error) {
	d := cdr.NewDecoder(f.Body)
	switch protocol.ReplyStatus(f.Status) {
	case protocol.ReplyNoException:
		return d, nil
	case protocol.ReplySystemException:
		ex, err := protocol.ReadSystemException(d)
		if err != nil {
			return nil, err
		}
		return nil, ex
	case protocol.ReplyLocationForward:
		ref, err := ior.ReadIOR(d)
		if err != nil {
			return nil, err
		}
		return nil, &protocol.ForwardRequest{Target: ref}
	default:
		return nil, fmt.Errorf("%w: status %d", protocol.InternalErrUnexpectedReply, f.Status)
	}
}

// InvokeRef calls op on ref, reissuing the request on this connection for
// each location forward.
func (c *Client) InvokeRef(ctx context.Context, ref *ior.IOR, op string, args func(*cdr.Encoder)) (*cdr.Decoder, error) {
	c.mu.Lock()
	limit := c.maxForwards
	c.mu.Unlock()

	for hops := 0; ; hops++ {
		prof, ok := ref.IIOP()
		if !ok {
			return nil, fmt.Errorf("invoke %s: reference has no iiop profile", op)
		}
		d, err := c.Invoke(ctx, prof.ObjectKey().Bytes(), op, args)
		fwd, isForward := protocol.AsForward(err)
		if !isForward {
			return d, err
		}
		if hops >= limit {
			return nil, protocol.InternalErrTooManyForwards
		}
		ref = fwd.Target
	}
}

// Locate asks where key lives. It returns nil when the object is here and
// the forward target otherwise.
func (c *Client) Locate(ctx context.Context, key []byte) (*ior.IOR, error) {
	reply, err := c.roundTrip(ctx, &transport.Frame{
		Type:      protocol.MsgLocateRequest,
		ObjectKey: key,
	}, true)
	if err != nil {
		return nil, err
	}
	if reply.Type != protocol.MsgLocateReply {
		return nil, fmt.Errorf("%w: %s", protocol.InternalErrUnexpectedReply, reply.Type)
	}
	switch protocol.LocateStatus(reply.Status) {
	case protocol.LocateObjectHere:
		return nil, nil
	case protocol.LocateObjectForward:
		return ior.ReadIOR(cdr.NewDecoder(reply.Body))
	default:
		return nil, ErrUnknownObject
	}
}

// Get reads one initial reference through the bootstrap key. A missing
// name yields a nil reference, not an error.
func (c *Client) Get(ctx context.Context, name string) (*ior.IOR, error) {
	d, err := c.Invoke(ctx, ior.BootstrapKey().Bytes(), "get", func(e *cdr.Encoder) {
		e.WriteString(name)
	})
	if err != nil {
		return nil, err
	}
	return ior.ReadIOR(d)
}

func (c *Client) List(ctx context.Context) ([]string, error) {
	d, err := c.Invoke(ctx, ior.BootstrapKey().Bytes(), "list", nil)
	if err != nil {
		return nil, err
	}
	return d.ReadStringSeq()
}

// Resolve looks name up through the INS wire key and returns the forward
// target.
func (c *Client) Resolve(ctx context.Context, name string) (*ior.IOR, error) {
	ref, err := c.Locate(ctx, ior.NewWireKey(name).Bytes())
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", name, err)
	}
	if ref == nil {
		return nil, fmt.Errorf("resolve %s: %w", name, ErrUnknownObject)
	}
	return ref, nil
}
