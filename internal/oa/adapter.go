package oa

import (
	"context"
	"errors"
	"reflect"

	"orb-server/internal/cdr"
	"orb-server/internal/ior"
)

// ErrAdapterDestroyed is returned by Enter once the adapter is gone. The
// caller finds the adapter again, which recreates it when possible.
var ErrAdapterDestroyed = errors.New("object adapter destroyed")

// ObjectAdapter must be safe for concurrent Enter/Exit from many workers.
type ObjectAdapter interface {
	ID() ior.AdapterID
	Enter() error
	Exit()
	MakeInvocationInfo(id ior.ObjectID) *InvocationInfo
	// GetInvocationServant sets info.Servant. It may return a
	// *protocol.ForwardRequest, a *protocol.ThreadDeath or any other error,
	// and it may panic.
	GetInvocationServant(info *InvocationInfo) error
	ReturnServant(info *InvocationInfo) error
	Interfaces(servant Servant, id ior.ObjectID) []string
}

type Factory interface {
	Find(id ior.AdapterID) (ObjectAdapter, error)
}

type Servant any

// Invoker is implemented by servants reachable over the network path.
// Results are written to out; a non-nil error replaces the reply.
type Invoker interface {
	Invoke(ctx context.Context, op string, in *cdr.Decoder, out *cdr.Encoder) error
}

type nullServant struct{}

// NullServant marks an object that does not exist.
var NullServant Servant = nullServant{}

func IsNull(s Servant) bool {
	return s == nil || s == NullServant
}

// Compatible reports whether servant can serve as expected. A nil expected
// type accepts any servant.
func Compatible(servant Servant, expected reflect.Type) bool {
	if expected == nil {
		return true
	}
	if IsNull(servant) {
		return false
	}
	t := reflect.TypeOf(servant)
	if expected.Kind() == reflect.Interface {
		return t.Implements(expected)
	}
	return t.AssignableTo(expected)
}
