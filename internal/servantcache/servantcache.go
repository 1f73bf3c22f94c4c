// internal/servantcache/servantcache.go
package servantcache

import (
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"

	"orb-server/internal/ior"
	"orb-server/internal/oa"
	"orb-server/internal/protocol"
)

// ErrConcurrentReuse is returned when a Minimal binding is entered again
// before the previous call finished.
var ErrConcurrentReuse = errors.New("minimal servant cache reused concurrently")

// ErrLocatorServant is returned by Bind when the adapter produced the
// servant through a servant locator. Such servants are per call and are
// handed back right away.
var ErrLocatorServant = errors.New("servant locator servants cannot be cached")

type Kind int

const (
	Full Kind = iota
	InfoOnly
	Minimal
)

func (k Kind) String() string {
	switch k {
	case Full:
		return "full"
	case InfoOnly:
		return "info-only"
	case Minimal:
		return "minimal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func ParseKind(s string) (Kind, error) {
	switch s {
	case "full", "":
		return Full, nil
	case "info-only", "info_only":
		return InfoOnly, nil
	case "minimal":
		return Minimal, nil
	default:
		return 0, fmt.Errorf("unknown servant cache kind %q", s)
	}
}

// Policy brackets calls on a colocated object whose InvocationInfo was
// resolved once at bind time. PreInvoke returns (nil, nil) when the cached
// servant does not match expected; the caller then takes the generic path.
type Policy interface {
	Kind() Kind
	Info() *oa.InvocationInfo
	PreInvoke(stack *oa.Stack, op string, expected reflect.Type) (*oa.InvocationInfo, error)
	PostInvoke(stack *oa.Stack, info *oa.InvocationInfo)
}

func New(kind Kind, cached *oa.InvocationInfo) Policy {
	switch kind {
	case InfoOnly:
		return &infoOnly{cached: cached}
	case Minimal:
		return &minimal{cached: cached}
	default:
		return &full{cached: cached}
	}
}

// Bind resolves key's servant once under an Enter/Exit pair and wraps the
// resulting info in a policy of the given kind.
func Bind(factory oa.Factory, key *ior.ObjectKey, kind Kind) (Policy, error) {
	var adapter oa.ObjectAdapter
	for {
		a, err := factory.Find(key.AdapterID())
		if err != nil {
			return nil, err
		}
		err = a.Enter()
		if err == nil {
			adapter = a
			break
		}
		if !errors.Is(err, oa.ErrAdapterDestroyed) {
			return nil, protocol.AdapterEnterFailed(err)
		}
	}
	defer adapter.Exit()

	info := adapter.MakeInvocationInfo(key.ID())
	if err := adapter.GetInvocationServant(info); err != nil {
		if protocol.Classify(err) != protocol.FaultOther {
			return nil, err
		}
		if se, ok := protocol.AsSystemException(err); ok {
			return nil, se
		}
		return nil, protocol.LocateFailed(err)
	}
	if info.Cookie != nil {
		if err := adapter.ReturnServant(info); err != nil {
			return nil, fmt.Errorf("%w: return servant: %v", ErrLocatorServant, err)
		}
		return nil, fmt.Errorf("%w: adapter %s", ErrLocatorServant, adapter.ID())
	}
	return New(kind, info), nil
}

type full struct {
	cached *oa.InvocationInfo
}

func (p *full) Kind() Kind               { return Full }
func (p *full) Info() *oa.InvocationInfo { return p.cached }

func (p *full) PreInvoke(stack *oa.Stack, op string, expected reflect.Type) (*oa.InvocationInfo, error) {
	if !oa.Compatible(p.cached.Servant, expected) {
		return nil, nil
	}
	info := p.cached.Clone(op)
	stack.Push(info)
	if err := info.Adapter.Enter(); err != nil {
		stack.Pop()
		return nil, protocol.AdapterEnterFailed(err)
	}
	info.Entered = true
	return info, nil
}

func (p *full) PostInvoke(stack *oa.Stack, info *oa.InvocationInfo) {
	defer stack.Pop()
	info.Entered = false
	info.Adapter.Exit()
}

type infoOnly struct {
	cached *oa.InvocationInfo
}

func (p *infoOnly) Kind() Kind               { return InfoOnly }
func (p *infoOnly) Info() *oa.InvocationInfo { return p.cached }

func (p *infoOnly) PreInvoke(stack *oa.Stack, op string, expected reflect.Type) (*oa.InvocationInfo, error) {
	if !oa.Compatible(p.cached.Servant, expected) {
		return nil, nil
	}
	info := p.cached.Clone(op)
	stack.Push(info)
	return info, nil
}

func (p *infoOnly) PostInvoke(stack *oa.Stack, _ *oa.InvocationInfo) {
	stack.Pop()
}

// minimal hands out the cached info itself. Only one call may hold it at a
// time; the busy flag enforces that.
type minimal struct {
	cached *oa.InvocationInfo
	busy   atomic.Bool
}

func (p *minimal) Kind() Kind               { return Minimal }
func (p *minimal) Info() *oa.InvocationInfo { return p.cached }

func (p *minimal) PreInvoke(_ *oa.Stack, _ string, expected reflect.Type) (*oa.InvocationInfo, error) {
	if !oa.Compatible(p.cached.Servant, expected) {
		return nil, nil
	}
	if !p.busy.CompareAndSwap(false, true) {
		return nil, ErrConcurrentReuse
	}
	return p.cached, nil
}

func (p *minimal) PostInvoke(_ *oa.Stack, _ *oa.InvocationInfo) {
	p.busy.Store(false)
}
