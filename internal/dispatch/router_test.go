package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"orb-server/internal/cdr"
	"orb-server/internal/ior"
	"orb-server/internal/metrics"
	"orb-server/internal/oa"
	"orb-server/internal/protocol"
	"orb-server/internal/resolver"
)

type routerFixture struct {
	adapter *fakeAdapter
	factory *fakeFactory
	refs    *resolver.Table
	metrics *metrics.Metrics
	router  *Router
}

func newRouterFixture(t *testing.T) *routerFixture {
	f := &routerFixture{
		adapter: &fakeAdapter{id: ior.AdapterID{"RootPOA"}, servant: echoServant{}},
		refs:    testRefs(t, "NameService"),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	f.factory = &fakeFactory{adapter: f.adapter}
	adapters := NewAdapterDispatcher(f.factory, nil, f.metrics)
	f.router = NewRouter(
		NewBootstrap(f.refs, nil),
		NewINS(f.refs, nil),
		NewServerDispatcher(adapters, nil, nil),
		nil,
		f.metrics,
	)
	return f
}

func stringArg(s string) func(*cdr.Encoder) {
	return func(e *cdr.Encoder) { e.WriteString(s) }
}

func TestRouterInvokesServant(t *testing.T) {
	f := newRouterFixture(t)
	m := newMediator(poaKey("x"), "echo", stringArg("hi"))
	if err := f.router.Dispatch(m); err != nil {
		t.Fatal(err)
	}
	if got, _ := m.Decoder().ReadString(); got != "hi" {
		t.Fatalf("echo = %q", got)
	}
	assertBalanced(t, f.adapter, m.stack)
	if got := testutil.ToFloat64(f.metrics.Requests.WithLabelValues("poa", "no_exception")); got != 1 {
		t.Fatalf("requests metric = %v", got)
	}
}

func TestRouterServantFaults(t *testing.T) {
	cases := []struct {
		name    string
		servant invokerFunc
		kind    protocol.ExceptionKind
	}{
		{
			name: "error",
			servant: func(context.Context, string, *cdr.Decoder, *cdr.Encoder) error {
				return errors.New("broken")
			},
			kind: protocol.KindUnknown,
		},
		{
			name: "system exception",
			servant: func(context.Context, string, *cdr.Decoder, *cdr.Encoder) error {
				return protocol.UnknownOperation("x")
			},
			kind: protocol.KindBadOperation,
		},
		{
			name: "panic",
			servant: func(context.Context, string, *cdr.Decoder, *cdr.Encoder) error {
				panic("servant bug")
			},
			kind: protocol.KindUnknown,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newRouterFixture(t)
			f.adapter.servant = tc.servant
			m := newMediator(poaKey("x"), "op", nil)
			if err := f.router.Dispatch(m); err != nil {
				t.Fatal(err)
			}
			if m.Exception == nil || m.Exception.Kind != tc.kind {
				t.Fatalf("reply = %+v", m.Recorder)
			}
			if f.adapter.returns != 1 {
				t.Fatal("servant not returned after fault")
			}
			assertBalanced(t, f.adapter, m.stack)
		})
	}
}

func TestRouterTermination(t *testing.T) {
	t.Run("returned", func(t *testing.T) {
		f := newRouterFixture(t)
		f.adapter.servant = invokerFunc(func(context.Context, string, *cdr.Decoder, *cdr.Encoder) error {
			return &protocol.ThreadDeath{Reason: "stop"}
		})
		m := newMediator(poaKey("x"), "op", nil)
		err := f.router.Dispatch(m)
		if protocol.Classify(err) != protocol.FaultTermination {
			t.Fatalf("termination converted: %v", err)
		}
		assertBalanced(t, f.adapter, m.stack)
	})
	t.Run("panicked", func(t *testing.T) {
		f := newRouterFixture(t)
		f.adapter.servant = invokerFunc(func(context.Context, string, *cdr.Decoder, *cdr.Encoder) error {
			panic(&protocol.ThreadDeath{Reason: "stop"})
		})
		m := newMediator(poaKey("x"), "op", nil)
		func() {
			defer func() {
				if recover() == nil {
					t.Fatal("termination panic swallowed")
				}
			}()
			_ = f.router.Dispatch(m)
		}()
		assertBalanced(t, f.adapter, m.stack)
	})
}

func TestRouterForwardFromLocator(t *testing.T) {
	f := newRouterFixture(t)
	target := f.refs.Resolve("NameService")
	f.adapter.locateErr = &protocol.ForwardRequest{Target: target}

	m := newMediator(poaKey("x"), "op", nil)
	if err := f.router.Dispatch(m); err != nil {
		t.Fatal(err)
	}
	if m.Status != protocol.ReplyLocationForward || m.Forward != target {
		t.Fatalf("reply = %+v", m.Recorder)
	}
	assertBalanced(t, f.adapter, m.stack)

	ref, err := f.router.Locate(poaKey("x"))
	if err != nil || ref != target {
		t.Fatalf("locate = %v, %v", ref, err)
	}
}

func TestRouterSpecialMethods(t *testing.T) {
	t.Run("non existent on missing adapter", func(t *testing.T) {
		f := newRouterFixture(t)
		f.factory.err = protocol.NoAdapter("RootPOA")
		m := newMediator(poaKey("x"), "_non_existent", nil)
		if err := f.router.Dispatch(m); err != nil {
			t.Fatal(err)
		}
		if got, err := m.Bool(); err != nil || !got {
			t.Fatalf("_non_existent = %v, %v", got, err)
		}
	})
	t.Run("non existent on live object", func(t *testing.T) {
		f := newRouterFixture(t)
		m := newMediator(poaKey("x"), "_non_existent", nil)
		_ = f.router.Dispatch(m)
		if got, _ := m.Bool(); got {
			t.Fatal("live object reported non existent")
		}
		assertBalanced(t, f.adapter, m.stack)
	})
	t.Run("is_a", func(t *testing.T) {
		f := newRouterFixture(t)
		f.adapter.ifaces = []string{"IDL:Echo:1.0"}
		m := newMediator(poaKey("x"), "_is_a", stringArg("IDL:Echo:1.0"))
		_ = f.router.Dispatch(m)
		if got, _ := m.Bool(); !got {
			t.Fatal("_is_a(IDL:Echo:1.0) = false")
		}
		assertBalanced(t, f.adapter, m.stack)
	})
	t.Run("is_a on missing servant", func(t *testing.T) {
		f := newRouterFixture(t)
		f.adapter.locateErr = protocol.NoServant("x")
		m := newMediator(poaKey("x"), "_is_a", stringArg("IDL:Echo:1.0"))
		_ = f.router.Dispatch(m)
		if m.Exception == nil || m.Exception.Minor != protocol.MinorBadSkeleton {
			t.Fatalf("reply = %+v", m.Recorder)
		}
		assertBalanced(t, f.adapter, m.stack)
	})
	t.Run("ordinary op on missing adapter", func(t *testing.T) {
		f := newRouterFixture(t)
		f.factory.err = protocol.NoAdapter("RootPOA")
		m := newMediator(poaKey("x"), "echo", nil)
		_ = f.router.Dispatch(m)
		if m.Exception == nil || m.Exception.Kind != protocol.KindObjectNotExist {
			t.Fatalf("reply = %+v", m.Recorder)
		}
	})
	t.Run("null default servant", func(t *testing.T) {
		f := newRouterFixture(t)
		f.adapter.servant = oa.NullServant

		m := newMediator(poaKey("x"), "echo", nil)
		_ = f.router.Dispatch(m)
		if m.Exception == nil || m.Exception.Kind != protocol.KindObjectNotExist {
			t.Fatalf("reply = %+v", m.Recorder)
		}
		assertBalanced(t, f.adapter, m.stack)

		m = newMediator(poaKey("x"), "_non_existent", nil)
		_ = f.router.Dispatch(m)
		if got, _ := m.Bool(); !got {
			t.Fatal("null servant reported as existing")
		}
	})
}

func TestRouterWireKeys(t *testing.T) {
	f := newRouterFixture(t)

	m := newMediator(ior.NewWireKey("NameService"), "resolve", nil)
	_ = f.router.Dispatch(m)
	if m.Status != protocol.ReplyLocationForward {
		t.Fatalf("ins hit reply = %+v", m.Recorder)
	}

	m = newMediator(ior.NewWireKey("missing"), "resolve", nil)
	if err := f.router.Dispatch(m); err != nil {
		t.Fatal(err)
	}
	if m.Exception == nil || m.Exception.Minor != protocol.MinorInsNotFound {
		t.Fatalf("ins miss reply = %+v", m.Recorder)
	}

	m = newMediator(ior.BootstrapKey(), "delete", nil)
	if err := f.router.Dispatch(m); err != nil {
		t.Fatal(err)
	}
	if m.Exception == nil || m.Exception.Minor != protocol.MinorIllegalBootstrapOp {
		t.Fatalf("bootstrap reply = %+v", m.Recorder)
	}

	if ref, err := f.router.Locate(ior.BootstrapKey()); ref != nil || err != nil {
		t.Fatalf("bootstrap locate = %v, %v", ref, err)
	}
	if ref, err := f.router.Locate(poaKey("x")); ref != nil || err != nil {
		t.Fatalf("poa locate = %v, %v", ref, err)
	}
	if got := testutil.ToFloat64(f.metrics.Requests.WithLabelValues("wire", "system_exception")); got != 1 {
		t.Fatalf("wire system_exception count = %v", got)
	}
}
