package dispatch

import (
	"context"

	"orb-server/internal/cdr"
	"orb-server/internal/ior"
	"orb-server/internal/oa"
	"orb-server/internal/protocol/prototest"
)

type fakeMediator struct {
	prototest.Recorder
	op    string
	key   *ior.ObjectKey
	in    *cdr.Decoder
	stack *oa.Stack
}

func newMediator(key *ior.ObjectKey, op string, args func(*cdr.Encoder)) *fakeMediator {
	enc := cdr.NewEncoder()
	if args != nil {
		args(enc)
	}
	return &fakeMediator{
		op:    op,
		key:   key,
		in:    cdr.NewDecoder(enc.Bytes()),
		stack: oa.NewStack(),
	}
}

func (m *fakeMediator) Context() context.Context  { return context.Background() }
func (m *fakeMediator) RequestID() uint32         { return 1 }
func (m *fakeMediator) Operation() string         { return m.op }
func (m *fakeMediator) ObjectKey() *ior.ObjectKey { return m.key }
func (m *fakeMediator) Input() *cdr.Decoder       { return m.in }
func (m *fakeMediator) Stack() *oa.Stack          { return m.stack }

type fakeAdapter struct {
	id ior.AdapterID

	attempts  int
	enters    int
	exits     int
	returns   int
	destroyed int

	servant     oa.Servant
	locateErr   error
	locatePanic any
	returnPanic any
	ifaces      []string
}

func (a *fakeAdapter) ID() ior.AdapterID { return a.id }

func (a *fakeAdapter) Enter() error {
	a.attempts++
	if a.destroyed > 0 {
		a.destroyed--
		return oa.ErrAdapterDestroyed
	}
	a.enters++
	return nil
}

func (a *fakeAdapter) Exit() { a.exits++ }

func (a *fakeAdapter) MakeInvocationInfo(id ior.ObjectID) *oa.InvocationInfo {
	return oa.NewInvocationInfo(a, id)
}

func (a *fakeAdapter) GetInvocationServant(info *oa.InvocationInfo) error {
	if a.locatePanic != nil {
		panic(a.locatePanic)
	}
	if a.locateErr != nil {
		return a.locateErr
	}
	info.Servant = a.servant
	return nil
}

func (a *fakeAdapter) ReturnServant(*oa.InvocationInfo) error {
	a.returns++
	if a.returnPanic != nil {
		panic(a.returnPanic)
	}
	return nil
}

func (a *fakeAdapter) Interfaces(oa.Servant, ior.ObjectID) []string { return a.ifaces }

type fakeFactory struct {
	adapter *fakeAdapter
	finds   int
	err     error
}

func (f *fakeFactory) Find(ior.AdapterID) (oa.ObjectAdapter, error) {
	f.finds++
	if f.err != nil {
		return nil, f.err
	}
	return f.adapter, nil
}

type invokerFunc func(ctx context.Context, op string, in *cdr.Decoder, out *cdr.Encoder) error

func (f invokerFunc) Invoke(ctx context.Context, op string, in *cdr.Decoder, out *cdr.Encoder) error {
	return f(ctx, op, in, out)
}

func poaKey(id string) *ior.ObjectKey {
	return ior.NewObjectKey(ior.NewPOATemplate(1, "test", ior.AdapterID{"RootPOA"}), ior.ObjectID(id))
}
