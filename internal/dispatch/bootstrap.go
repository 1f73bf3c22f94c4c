package dispatch

import (
	"go.uber.org/zap"

	"orb-server/internal/ior"
	"orb-server/internal/protocol"
	"orb-server/internal/resolver"
)

const (
	opGet  = "get"
	opList = "list"
)

// Bootstrap serves get/list on the INIT key during ORB cold start. A
// missing name yields the null reference, not a fault.
type Bootstrap struct {
	refs   resolver.LocalResolver
	logger *zap.Logger
}

func NewBootstrap(refs resolver.LocalResolver, logger *zap.Logger) *Bootstrap {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bootstrap{refs: refs, logger: logger}
}

// Dispatch always leaves a reply on m and returns nil. Only termination
// panics escape.
func (b *Bootstrap) Dispatch(m Mediator) error {
	defer recoverToReply(m, b.logger)

	op := m.Operation()
	switch op {
	case opGet:
		name, err := m.Input().ReadString()
		if err != nil {
			m.CreateSystemExceptionReply(protocol.Marshal(err))
			return nil
		}
		ref := b.refs.Resolve(name)
		if ref == nil {
			ref = ior.Nil()
		}
		if err := ior.WriteIOR(m.CreateReply(), ref); err != nil {
			m.CreateSystemExceptionReply(protocol.ToSystemException(err))
		}
	case opList:
		m.CreateReply().WriteStringSeq(b.refs.List())
	default:
		b.logger.Warn("illegal bootstrap operation",
			zap.String("op", op),
			zap.Uint32("request_id", m.RequestID()),
		)
		m.CreateSystemExceptionReply(protocol.IllegalBootstrapOperation(op))
	}
	return nil
}

// Locate reports bootstrap objects as local.
func (b *Bootstrap) Locate(*ior.ObjectKey) (*ior.IOR, error) {
	return nil, nil
}

// recoverToReply turns a panic into a system exception reply. Termination
// panics are re-raised.
func recoverToReply(m Mediator, logger *zap.Logger) {
	v := recover()
	if v == nil {
		return
	}
	if protocol.ClassifyPanic(v) == protocol.FaultTermination {
		panic(v)
	}
	logger.Error("dispatch panic",
		zap.String("op", m.Operation()),
		zap.Uint32("request_id", m.RequestID()),
		zap.Any("panic", v),
	)
	m.CreateSystemExceptionReply(protocol.DispatchPanic(v))
}
