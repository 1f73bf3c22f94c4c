package orb

import (
	"context"
	"fmt"
	"reflect"

	"orb-server/internal/cdr"
	"orb-server/internal/ior"
	"orb-server/internal/oa"
	"orb-server/internal/protocol"
	"orb-server/internal/servantcache"
)

var invokerType = reflect.TypeOf((*oa.Invoker)(nil)).Elem()

// LocalBinding calls a servant of this ORB without going through the
// network path. The servant is resolved once, at Bind.
type LocalBinding struct {
	key    *ior.ObjectKey
	policy servantcache.Policy
}

// Bind resolves ref against the local adapters using the configured
// servant cache kind.
func (o *ORB) Bind(ref *ior.IOR) (*LocalBinding, error) {
	return o.BindKind(ref, o.cache)
}

func (o *ORB) BindKind(ref *ior.IOR, kind servantcache.Kind) (*LocalBinding, error) {
	prof, ok := ref.IIOP()
	if !ok {
		return nil, fmt.Errorf("bind: reference has no iiop profile")
	}
	key := prof.ObjectKey()
	if key.Kind() != ior.KindPOA {
		return nil, fmt.Errorf("bind %s: not an adapter key", key)
	}
	policy, err := servantcache.Bind(o.adapters, key, kind)
	if err != nil {
		return nil, err
	}
	return &LocalBinding{key: key, policy: policy}, nil
}

func (b *LocalBinding) Kind() servantcache.Kind {
	return b.policy.Kind()
}

// Invoke runs op on the cached servant. Each call uses its own stack, so a
// binding may be shared by goroutines unless its kind is Minimal.
func (b *LocalBinding) Invoke(ctx context.Context, op string, args func(*cdr.Encoder)) (*cdr.Decoder, error) {
	stack := oa.NewStack()
	info, err := b.policy.PreInvoke(stack, op, invokerType)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, protocol.UnexpectedServantType(b.key.String())
	}
	defer b.policy.PostInvoke(stack, info)

	in := cdr.NewEncoder()
	if args != nil {
		args(in)
	}
	out := cdr.NewEncoder()
	if err := info.Servant.(oa.Invoker).Invoke(ctx, op, cdr.NewDecoder(in.Bytes()), out); err != nil {
		return nil, err
	}
	return cdr.NewDecoder(out.Bytes()), nil
}
