package dispatch

import (
	"errors"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"orb-server/internal/ior"
	"orb-server/internal/metrics"
	"orb-server/internal/oa"
	"orb-server/internal/protocol"
)

// AdapterDispatcher brackets a call with adapter Enter/Exit and an
// InvocationInfo push/pop. Every successful PreInvoke must be followed by
// exactly one PostInvoke.
type AdapterDispatcher struct {
	factory oa.Factory
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewAdapterDispatcher(factory oa.Factory, logger *zap.Logger, m *metrics.Metrics) *AdapterDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdapterDispatcher{factory: factory, logger: logger, metrics: m}
}

// PreInvoke enters the key's adapter and locates the servant.
//
// It returns (info, nil) with the adapter entered and info pushed,
// (nil, nil) when the servant does not match expected, or (nil, err) with
// nothing left entered or pushed. err is a *protocol.ForwardRequest for
// redirects, the original termination error, or a *protocol.SystemException.
// A termination panic from the adapter is re-raised after cleanup.
func (d *AdapterDispatcher) PreInvoke(stack *oa.Stack, key *ior.ObjectKey, op string, expected reflect.Type) (*oa.InvocationInfo, error) {
	adapter, err := d.enter(key.AdapterID())
	if err != nil {
		return nil, err
	}

	info := adapter.MakeInvocationInfo(key.ID())
	info.Operation = op
	info.Entered = true
	stack.Push(info)

	panicked, err := locateServant(adapter, info)
	if panicked != nil {
		switch protocol.ClassifyPanic(panicked) {
		case protocol.FaultTermination:
			d.release(stack, info)
			panic(panicked)
		case protocol.FaultForward:
			err = panicked.(error)
		default:
			err = fmt.Errorf("panic: %v", panicked)
		}
	}

	switch protocol.Classify(err) {
	case protocol.FaultNone:
	case protocol.FaultForward:
		d.release(stack, info)
		fwd, _ := protocol.AsForward(err)
		return nil, fwd
	case protocol.FaultTermination:
		d.release(stack, info)
		return nil, err
	default:
		d.release(stack, info)
		if se, ok := protocol.AsSystemException(err); ok {
			return nil, se
		}
		d.logger.Warn("servant lookup failed",
			zap.String("key", key.String()),
			zap.String("op", op),
			zap.String("reason", err.Error()),
		)
		return nil, protocol.LocateFailed(err)
	}

	if !oa.Compatible(info.Servant, expected) {
		d.PostInvoke(stack, info)
		return nil, nil
	}
	return info, nil
}

// enter finds the adapter and enters it, finding it again for as long as
// it turns out destroyed. Recreation failures end the loop.
func (d *AdapterDispatcher) enter(id ior.AdapterID) (oa.ObjectAdapter, error) {
	for {
		adapter, err := d.factory.Find(id)
		if err != nil {
			return nil, err
		}
		err = adapter.Enter()
		if err == nil {
			return adapter, nil
		}
		if !errors.Is(err, oa.ErrAdapterDestroyed) {
			return nil, protocol.AdapterEnterFailed(err)
		}
		d.metrics.AdapterRetry()
		d.logger.Debug("adapter destroyed during enter, retrying",
			zap.String("adapter", id.String()),
		)
	}
}

func locateServant(adapter oa.ObjectAdapter, info *oa.InvocationInfo) (panicked any, err error) {
	defer func() {
		panicked = recover()
	}()
	return nil, adapter.GetInvocationServant(info)
}

// release undoes PreInvoke when no servant is handed out.
func (d *AdapterDispatcher) release(stack *oa.Stack, info *oa.InvocationInfo) {
	defer d.pop(stack, info)
	info.Entered = false
	info.Adapter.Exit()
}

// PostInvoke returns the servant, exits the adapter and pops info, in that
// order. All three run even if an earlier one fails or panics.
func (d *AdapterDispatcher) PostInvoke(stack *oa.Stack, info *oa.InvocationInfo) {
	defer d.pop(stack, info)
	defer func() {
		info.Entered = false
		info.Adapter.Exit()
	}()
	if err := info.Adapter.ReturnServant(info); err != nil {
		d.logger.Warn("return servant failed",
			zap.String("adapter", info.Adapter.ID().String()),
			zap.String("op", info.Operation),
			zap.String("reason", err.Error()),
		)
	}
}

func (d *AdapterDispatcher) pop(stack *oa.Stack, info *oa.InvocationInfo) {
	if top := stack.Pop(); top != info {
		d.logger.Error("invocation stack out of order",
			zap.String("op", info.Operation),
		)
	}
}
