package orb

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"orb-server/internal/cdr"
	"orb-server/internal/client"
	"orb-server/internal/config"
	"orb-server/internal/db/bolt_tools"
	"orb-server/internal/ior"
	"orb-server/internal/poa"
	"orb-server/internal/protocol"
	"orb-server/internal/servantcache"
	"orb-server/internal/transport"
)

const echoType = "IDL:Echo:1.0"

func echoSkeleton() *poa.Skeleton {
	return poa.NewSkeleton(echoType).MustHandle("echo", func(_ context.Context, in *cdr.Decoder, out *cdr.Encoder) error {
		s, err := in.ReadString()
		if err != nil {
			return err
		}
		out.WriteString(s)
		return nil
	})
}

func echoSetup(root *poa.POA) (map[string]*ior.IOR, error) {
	if err := root.Activate(ior.ObjectID("echo"), echoSkeleton(), echoType); err != nil {
		return nil, err
	}
	return map[string]*ior.IOR{"Echo": root.Reference(ior.ObjectID("echo"), echoType)}, nil
}

func testConfig() config.ORBConfig {
	cfg := config.Defaults()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.Workers = 2
	return cfg
}

func startORB(t *testing.T, cfg config.ORBConfig) (*ORB, *client.Client) {
	t.Helper()
	o, err := New(context.Background(), cfg, nil, echoSetup)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = o.Stop() })

	srv, cli := net.Pipe()
	o.Server().ServeConn(transport.NewBufferedConn(srv))
	c := client.New(transport.NewBufferedConn(cli))
	t.Cleanup(func() { _ = c.Close() })
	return o, c
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func echoArg(s string) func(*cdr.Encoder) {
	return func(e *cdr.Encoder) { e.WriteString(s) }
}

func TestBootstrapAndInvoke(t *testing.T) {
	o, c := startORB(t, testConfig())
	ctx := testContext(t)

	names, err := c.List(ctx)
	if err != nil || len(names) != 1 || names[0] != "Echo" {
		t.Fatalf("list = %v, %v", names, err)
	}
	ref, err := c.Get(ctx, "Echo")
	if err != nil {
		t.Fatal(err)
	}
	d, err := c.InvokeRef(ctx, ref, "echo", echoArg("hi"))
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := d.ReadString(); got != "hi" {
		t.Fatalf("echo = %q", got)
	}

	missing, err := c.Get(ctx, "Nope")
	if err != nil || !missing.IsNil() {
		t.Fatalf("get missing = %v, %v", missing, err)
	}

	_, err = c.Invoke(ctx, ior.BootstrapKey().Bytes(), "put", nil)
	se, ok := protocol.AsSystemException(err)
	if !ok || se.Minor != protocol.MinorIllegalBootstrapOp {
		t.Fatalf("illegal bootstrap op = %v", err)
	}

	if got := testutil.ToFloat64(o.metrics.Requests.WithLabelValues("poa", "no_exception")); got != 1 {
		t.Fatalf("poa requests = %v", got)
	}
}

func TestResolveAndFollowForward(t *testing.T) {
	_, c := startORB(t, testConfig())
	ctx := testContext(t)

	ref, err := c.Resolve(ctx, "Echo")
	if err != nil {
		t.Fatal(err)
	}
	prof, _ := ref.IIOP()
	if prof.ObjectKey().Kind() != ior.KindPOA {
		t.Fatalf("resolved key kind = %s", prof.ObjectKey().Kind())
	}
	if _, err := c.Resolve(ctx, "Nope"); !errors.Is(err, client.ErrUnknownObject) {
		t.Fatalf("resolve missing = %v", err)
	}

	// An INS key forwards the request to the real object.
	insRef := ior.NewIOR(echoType)
	_ = insRef.AddProfile(ior.NewIIOPProfile("127.0.0.1", 0, ior.NewWireKey("Echo")))
	d, err := c.InvokeRef(ctx, insRef, "echo", echoArg("via ins"))
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := d.ReadString(); got != "via ins" {
		t.Fatalf("echo = %q", got)
	}

	_, err = c.Invoke(ctx, ior.NewWireKey("Nope").Bytes(), "echo", echoArg("x"))
	se, ok := protocol.AsSystemException(err)
	if !ok || se.Kind != protocol.KindObjectNotExist || se.Minor != protocol.MinorInsNotFound {
		t.Fatalf("ins miss = %v", err)
	}
}

func TestSpecialOperations(t *testing.T) {
	o, c := startORB(t, testConfig())
	ctx := testContext(t)
	ref := o.Root().Reference(ior.ObjectID("echo"), echoType)
	prof, _ := ref.IIOP()
	key := prof.ObjectKey().Bytes()

	d, err := c.Invoke(ctx, key, "_is_a", echoArg(echoType))
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := d.ReadBool(); !ok {
		t.Fatal("_is_a(Echo) = false")
	}
	d, err = c.Invoke(ctx, key, "_non_existent", nil)
	if err != nil {
		t.Fatal(err)
	}
	if gone, _ := d.ReadBool(); gone {
		t.Fatal("_non_existent on a live object = true")
	}

	ghost := o.Root().Reference(ior.ObjectID("ghost"), echoType)
	gprof, _ := ghost.IIOP()
	d, err = c.Invoke(ctx, gprof.ObjectKey().Bytes(), "_non_existent", nil)
	if err != nil {
		t.Fatal(err)
	}
	if gone, _ := d.ReadBool(); !gone {
		t.Fatal("_non_existent on a missing object = false")
	}
	_, err = c.Invoke(ctx, gprof.ObjectKey().Bytes(), "echo", echoArg("x"))
	if !errors.Is(err, protocol.NoServant("")) {
		t.Fatalf("echo on missing object = %v", err)
	}

	_, err = c.Invoke(ctx, key, "nope", nil)
	if !errors.Is(err, protocol.UnknownOperation("")) {
		t.Fatalf("unknown op = %v", err)
	}
}

func TestLocate(t *testing.T) {
	o, c := startORB(t, testConfig())
	ctx := testContext(t)

	ref := o.Root().Reference(ior.ObjectID("echo"), echoType)
	prof, _ := ref.IIOP()
	if fwd, err := c.Locate(ctx, prof.ObjectKey().Bytes()); err != nil || fwd != nil {
		t.Fatalf("locate echo = %v, %v", fwd, err)
	}
	if _, err := c.Locate(ctx, ior.NewWireKey("Nope").Bytes()); !errors.Is(err, client.ErrUnknownObject) {
		t.Fatalf("locate missing = %v", err)
	}
	missing := ior.NewObjectKey(ior.NewPOATemplate(1, "orbd", ior.AdapterID{poa.RootName, "gone"}), ior.ObjectID("x"))
	if _, err := c.Locate(ctx, missing.Bytes()); !errors.Is(err, client.ErrUnknownObject) {
		t.Fatalf("locate missing adapter = %v", err)
	}
}

func TestAdapterRecreation(t *testing.T) {
	o, c := startORB(t, testConfig())
	ctx := testContext(t)

	id := ior.AdapterID{poa.RootName, "svc"}
	o.Adapters().SetActivator(func(p *poa.POA) error {
		return p.Activate(ior.ObjectID("echo"), echoSkeleton(), echoType)
	})
	key := ior.NewObjectKey(ior.NewPOATemplate(1, "orbd", id), ior.ObjectID("echo")).Bytes()

	for i := 0; i < 2; i++ {
		d, err := c.Invoke(ctx, key, "echo", echoArg("again"))
		if err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
		if got, _ := d.ReadString(); got != "again" {
			t.Fatalf("echo = %q", got)
		}
		p, ok := o.Adapters().Adapter(id)
		if !ok {
			t.Fatal("adapter not registered")
		}
		p.Destroy()
	}
}

func TestBoltInitialRefs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refs.db")
	store, err := bolt_tools.Open(path, "orbd")
	if err != nil {
		t.Fatal(err)
	}
	stored := ior.NewIOR("IDL:Stored:1.0")
	_ = stored.AddProfile(ior.NewIIOPProfile("10.0.0.9", 2809, ior.NewWireKey("stored")))
	if err := store.PutRef(context.Background(), "Stored", stored.String()); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	cfg.BoltPath = path
	_, c := startORB(t, cfg)
	ref, err := c.Get(testContext(t), "Stored")
	if err != nil {
		t.Fatal(err)
	}
	if !ref.IsEquivalent(stored) {
		t.Fatalf("stored ref = %v", ref)
	}
}

func TestStartBindsListeners(t *testing.T) {
	cfg := testConfig()
	cfg.MetricsAddr = "127.0.0.1:0"
	o, err := New(context.Background(), cfg, nil, echoSetup)
	if err != nil {
		t.Fatal(err)
	}
	defer o.Stop()
	if err := o.Start(); err != nil {
		t.Fatal(err)
	}
	host, port := o.Adapters().Endpoint()
	if host != "127.0.0.1" || port == 0 {
		t.Fatalf("endpoint = %s:%d", host, port)
	}

	ctx := testContext(t)
	c, err := client.Dial(ctx, net.JoinHostPort(host, strconv.Itoa(int(port))), transport.ConnOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	names, err := c.List(ctx)
	if err != nil || len(names) != 1 {
		t.Fatalf("list = %v, %v", names, err)
	}
}

func TestLocalBinding(t *testing.T) {
	for _, kind := range []servantcache.Kind{servantcache.Full, servantcache.InfoOnly, servantcache.Minimal} {
		t.Run(kind.String(), func(t *testing.T) {
			o, err := New(context.Background(), testConfig(), nil, echoSetup)
			if err != nil {
				t.Fatal(err)
			}
			defer o.Stop()

			ref := o.InitialRefs().Resolve("Echo")
			b, err := o.BindKind(ref, kind)
			if err != nil {
				t.Fatal(err)
			}
			d, err := b.Invoke(context.Background(), "echo", echoArg("local"))
			if err != nil {
				t.Fatal(err)
			}
			if got, _ := d.ReadString(); got != "local" {
				t.Fatalf("echo = %q", got)
			}
			if kind == servantcache.Full && o.Root().Active() != 0 {
				t.Fatalf("adapter still entered: %d", o.Root().Active())
			}
		})
	}
}

func TestBindRejectsForeignKeys(t *testing.T) {
	o, err := New(context.Background(), testConfig(), nil, echoSetup)
	if err != nil {
		t.Fatal(err)
	}
	defer o.Stop()

	foreign := ior.NewIOR(echoType)
	_ = foreign.AddProfile(ior.NewIIOPProfile("h", 1, ior.NewWireKey("Echo")))
	if _, err := o.Bind(foreign); err == nil {
		t.Fatal("wire key bound locally")
	}
	missing := o.Root().Reference(ior.ObjectID("ghost"), echoType)
	if _, err := o.Bind(missing); !errors.Is(err, protocol.NoServant("")) {
		t.Fatalf("bind missing = %v", err)
	}
}
