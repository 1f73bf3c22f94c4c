// internal/dispatch/router.go
package dispatch

import (
	"time"

	"go.uber.org/zap"

	"orb-server/internal/ior"
	"orb-server/internal/metrics"
	"orb-server/internal/protocol"
)

// Router picks a dispatcher by key kind and is the fault boundary: no
// error or panic leaves it without a reply, except termination.
type Router struct {
	bootstrap RequestDispatcher
	ins       RequestDispatcher
	server    RequestDispatcher
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func NewRouter(bootstrap, ins, server RequestDispatcher, logger *zap.Logger, m *metrics.Metrics) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		bootstrap: bootstrap,
		ins:       ins,
		server:    server,
		logger:    logger,
		metrics:   m,
	}
}

func (r *Router) route(key *ior.ObjectKey) RequestDispatcher {
	switch key.Kind() {
	case ior.KindBootstrap:
		return r.bootstrap
	case ior.KindWire:
		return r.ins
	default:
		return r.server
	}
}

// Dispatch returns a non-nil error only for termination.
func (r *Router) Dispatch(m Mediator) (err error) {
	tracked := &outcomeTracker{Mediator: m}
	route := m.ObjectKey().Kind().String()
	start := time.Now()
	defer func() {
		r.metrics.ObserveRequest(route, tracked.outcome(), time.Since(start))
	}()
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		if protocol.ClassifyPanic(v) == protocol.FaultTermination {
			panic(v)
		}
		r.logger.Error("dispatch panic",
			zap.String("route", route),
			zap.String("op", m.Operation()),
			zap.Uint32("request_id", m.RequestID()),
			zap.Any("panic", v),
		)
		tracked.CreateSystemExceptionReply(protocol.DispatchPanic(v))
		err = nil
	}()

	derr := r.route(m.ObjectKey()).Dispatch(tracked)
	if derr == nil {
		return nil
	}
	switch protocol.Classify(derr) {
	case protocol.FaultTermination:
		return derr
	case protocol.FaultForward:
		fwd, _ := protocol.AsForward(derr)
		tracked.CreateLocationForward(fwd.Target)
	default:
		se := protocol.ToSystemException(derr)
		r.logger.Debug("request failed",
			zap.String("route", route),
			zap.String("op", m.Operation()),
			zap.Uint32("request_id", m.RequestID()),
			zap.String("reason", se.Error()),
		)
		tracked.CreateSystemExceptionReply(se)
	}
	return nil
}

func (r *Router) Locate(key *ior.ObjectKey) (ref *ior.IOR, err error) {
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		if protocol.ClassifyPanic(v) == protocol.FaultTermination {
			panic(v)
		}
		ref, err = nil, protocol.DispatchPanic(v)
	}()
	return r.route(key).Locate(key)
}
