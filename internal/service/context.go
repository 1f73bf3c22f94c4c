// internal/service/context.go
package service

import (
	"context"

	"orb-server/internal/cdr"
	"orb-server/internal/ior"
	"orb-server/internal/oa"
	"orb-server/internal/protocol"
	"orb-server/internal/transport"
)

// serverRequest is the mediator for one Request frame. Only the last reply
// created through it is written back.
type serverRequest struct {
	ctx   context.Context
	frame *transport.Frame
	key   *ior.ObjectKey
	in    *cdr.Decoder
	stack *oa.Stack

	replied   bool
	status    protocol.ReplyStatus
	body      *cdr.Encoder
	exception *protocol.SystemException
	forward   *ior.IOR
}

func newServerRequest(ctx context.Context, f *transport.Frame, key *ior.ObjectKey, stack *oa.Stack) *serverRequest {
	return &serverRequest{
		ctx:   ctx,
		frame: f,
		key:   key,
		in:    cdr.NewDecoder(f.Body),
		stack: stack,
	}
}

func (r *serverRequest) Context() context.Context  { return r.ctx }
func (r *serverRequest) RequestID() uint32         { return r.frame.RequestID }
func (r *serverRequest) Operation() string         { return r.frame.Operation }
func (r *serverRequest) ObjectKey() *ior.ObjectKey { return r.key }
func (r *serverRequest) Input() *cdr.Decoder       { return r.in }
func (r *serverRequest) Stack() *oa.Stack          { return r.stack }

func (r *serverRequest) CreateReply() *cdr.Encoder {
	r.replied = true
	r.status = protocol.ReplyNoException
	r.body = cdr.NewEncoder()
	r.exception, r.forward = nil, nil
	return r.body
}

func (r *serverRequest) CreateSystemExceptionReply(ex *protocol.SystemException) {
	r.replied = true
	r.status = protocol.ReplySystemException
	r.exception = ex
	r.body, r.forward = nil, nil
}

func (r *serverRequest) CreateLocationForward(target *ior.IOR) {
	r.replied = true
	r.status = protocol.ReplyLocationForward
	r.forward = target
	r.body, r.exception = nil, nil
}

func (r *serverRequest) replyFrame() (*transport.Frame, error) {
	if !r.replied {
		return exceptionFrame(r.frame, protocol.ToSystemException(protocol.InternalErrNoReply))
	}
	out := replyTo(r.frame, protocol.MsgReply, int32(r.status))
	switch r.status {
	case protocol.ReplyNoException:
		out.Body = r.body.Bytes()
	case protocol.ReplySystemException:
		return exceptionFrame(r.frame, r.exception)
	case protocol.ReplyLocationForward:
		body, err := encodeIOR(r.forward)
		if err != nil {
			return nil, err
		}
		out.Body = body
	}
	return out, nil
}

func replyTo(req *transport.Frame, t protocol.MsgType, status int32) *transport.Frame {
	return &transport.Frame{
		Type:      t,
		RequestID: req.RequestID,
		Status:    status,
		TraceID:   req.TraceID,
	}
}

func exceptionFrame(req *transport.Frame, ex *protocol.SystemException) (*transport.Frame, error) {
	enc := cdr.NewEncoder()
	if err := ex.Write(enc); err != nil {
		return nil, err
	}
	out := replyTo(req, protocol.MsgReply, int32(protocol.ReplySystemException))
	out.Body = enc.Bytes()
	return out, nil
}

func encodeIOR(ref *ior.IOR) ([]byte, error) {
	enc := cdr.NewEncoder()
	if err := ior.WriteIOR(enc, ref); err != nil {
		return nil, err
	}
	return enc.Bytes(), nil
}
