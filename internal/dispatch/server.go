package dispatch

import (
	"go.uber.org/zap"

	"orb-server/internal/cdr"
	"orb-server/internal/ior"
	"orb-server/internal/oa"
	"orb-server/internal/protocol"
	"orb-server/internal/special"
)

// locateOperation names the InvocationInfo of a LocateRequest.
const locateOperation = "_locate"

// ServerDispatcher is the generic network path for adapter keys.
type ServerDispatcher struct {
	adapters *AdapterDispatcher
	specials *special.Table
	logger   *zap.Logger
}

func NewServerDispatcher(adapters *AdapterDispatcher, specials *special.Table, logger *zap.Logger) *ServerDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if specials == nil {
		specials = special.NewTable()
	}
	return &ServerDispatcher{adapters: adapters, specials: specials, logger: logger}
}

func (d *ServerDispatcher) Dispatch(m Mediator) error {
	key := m.ObjectKey()
	op := m.Operation()
	sm := d.specials.Lookup(op)

	info, err := d.adapters.PreInvoke(m.Stack(), key, op, nil)
	if err != nil {
		if fwd, ok := protocol.AsForward(err); ok {
			m.CreateLocationForward(fwd.Target)
			return nil
		}
		// special methods answer for objects that do not exist
		if se, ok := protocol.AsSystemException(err); ok && sm != nil && se.Kind == protocol.KindObjectNotExist {
			return sm.Invoke(nil, key.ID(), nil, m.Input(), m)
		}
		return err
	}
	if info == nil {
		m.CreateSystemExceptionReply(protocol.UnexpectedServantType(key.String()))
		return nil
	}
	defer d.adapters.PostInvoke(m.Stack(), info)

	if sm != nil {
		return sm.Invoke(info.Servant, info.ObjectID, info.Adapter, m.Input(), m)
	}
	if oa.IsNull(info.Servant) {
		m.CreateSystemExceptionReply(protocol.NoServant(info.ObjectID.String()))
		return nil
	}
	inv, ok := info.Servant.(oa.Invoker)
	if !ok {
		m.CreateSystemExceptionReply(protocol.UnexpectedServantType(key.String()))
		return nil
	}
	return d.invoke(m, inv)
}

func (d *ServerDispatcher) invoke(m Mediator, inv oa.Invoker) error {
	out := m.CreateReply()
	panicked, err := callServant(m, inv, out)
	if panicked != nil {
		if protocol.ClassifyPanic(panicked) == protocol.FaultTermination {
			panic(panicked)
		}
		d.logger.Error("servant panic",
			zap.String("op", m.Operation()),
			zap.String("key", m.ObjectKey().String()),
			zap.Uint32("request_id", m.RequestID()),
			zap.Any("panic", panicked),
		)
		m.CreateSystemExceptionReply(protocol.ServantPanic(panicked))
		return nil
	}

	switch protocol.Classify(err) {
	case protocol.FaultNone:
		return nil
	case protocol.FaultTermination:
		return err
	case protocol.FaultForward:
		fwd, _ := protocol.AsForward(err)
		m.CreateLocationForward(fwd.Target)
		return nil
	default:
		m.CreateSystemExceptionReply(protocol.ToSystemException(err))
		return nil
	}
}

func callServant(m Mediator, inv oa.Invoker, out *cdr.Encoder) (panicked any, err error) {
	defer func() {
		panicked = recover()
	}()
	return nil, inv.Invoke(m.Context(), m.Operation(), m.Input(), out)
}

// Locate answers a LocateRequest: nil means the object is here.
func (d *ServerDispatcher) Locate(key *ior.ObjectKey) (*ior.IOR, error) {
	stack := oa.NewStack()
	info, err := d.adapters.PreInvoke(stack, key, locateOperation, nil)
	if err != nil {
		if fwd, ok := protocol.AsForward(err); ok {
			return fwd.Target, nil
		}
		return nil, err
	}
	if info != nil {
		d.adapters.PostInvoke(stack, info)
	}
	return nil, nil
}
