// internal/service/dispatcher.go
package service

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"orb-server/internal/oa"
	"orb-server/internal/protocol"
	"orb-server/internal/transport"
)

type job struct {
	conn  *connState
	frame *transport.Frame
}

func (n *NetServer) runWorker() error {
	stack := oa.NewStack()
	for {
		select {
		case <-n.t.Dying():
			return nil
		case j := <-n.jobs:
			if !n.handle(stack, j) {
				// The worker and its stack are discarded after termination.
				n.t.Go(n.runWorker)
				return nil
			}
		}
	}
}

// handle reports false when the request terminated the worker.
func (n *NetServer) handle(stack *oa.Stack, j job) (alive bool) {
	defer func() {
		j.conn.touch(time.Now())
		j.conn.pending.Add(-1)
	}()
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		n.logger.Error("worker terminated",
			zap.String("trace_id", j.frame.TraceID),
			zap.Uint32("request_id", j.frame.RequestID),
			zap.String("op", j.frame.Operation),
			zap.String("fault", protocol.ClassifyPanic(v).String()),
			zap.String("reason", fmt.Sprint(v)),
		)
		j.conn.close()
		alive = false
	}()

	switch j.frame.Type {
	case protocol.MsgRequest:
		return n.handleRequest(stack, j)
	case protocol.MsgLocateRequest:
		return n.handleLocate(j)
	}
	return true
}

func (n *NetServer) handleRequest(stack *oa.Stack, j job) bool {
	f := j.frame
	key, err := n.keys.Parse(f.ObjectKey)
	if err != nil {
		n.logger.Debug("bad object key",
			zap.String("trace_id", f.TraceID),
			zap.Uint32("request_id", f.RequestID),
			zap.String("reason", err.Error()),
		)
		if f.ResponseExpected {
			out, ferr := exceptionFrame(f, protocol.ToSystemException(err))
			if ferr == nil {
				n.send(j.conn, out)
			}
		}
		return true
	}

	req := newServerRequest(n.ctx, f, key, stack)
	n.metrics.InvocationStarted()
	derr := n.dispatcher.Dispatch(req)
	n.metrics.InvocationDone()
	switch protocol.Classify(derr) {
	case protocol.FaultForward:
		fwd, _ := protocol.AsForward(derr)
		req.CreateLocationForward(fwd.Target)
		derr = nil
	case protocol.FaultOther:
		req.CreateSystemExceptionReply(protocol.ToSystemException(derr))
		derr = nil
	}
	if derr != nil {
		n.logger.Error("worker terminated",
			zap.String("trace_id", f.TraceID),
			zap.Uint32("request_id", f.RequestID),
			zap.String("op", f.Operation),
			zap.String("reason", derr.Error()),
		)
		j.conn.close()
		return false
	}
	if !f.ResponseExpected {
		return true
	}

	out, err := req.replyFrame()
	if err != nil {
		out, err = exceptionFrame(f, protocol.Marshal(err))
		if err != nil {
			return true
		}
	}
	n.send(j.conn, out)
	return true
}

func (n *NetServer) handleLocate(j job) bool {
	f := j.frame
	out := replyTo(f, protocol.MsgLocateReply, int32(protocol.LocateUnknownObject))

	key, err := n.keys.Parse(f.ObjectKey)
	if err == nil {
		ref, lerr := n.dispatcher.Locate(key)
		switch {
		case lerr != nil:
			if protocol.Classify(lerr) == protocol.FaultTermination {
				j.conn.close()
				return false
			}
			n.logger.Debug("locate failed",
				zap.String("trace_id", f.TraceID),
				zap.String("key", key.String()),
				zap.String("reason", lerr.Error()),
			)
		case ref != nil:
			body, err := encodeIOR(ref)
			if err == nil {
				out.Status = int32(protocol.LocateObjectForward)
				out.Body = body
			}
		default:
			out.Status = int32(protocol.LocateObjectHere)
		}
	}
	n.send(j.conn, out)
	return true
}

func (n *NetServer) send(c *connState, f *transport.Frame) {
	if err := c.send(f); err != nil {
		n.logger.Debug("reply dropped",
			zap.String("trace_id", f.TraceID),
			zap.Uint32("request_id", f.RequestID),
			zap.String("reason", err.Error()),
		)
	}
}
