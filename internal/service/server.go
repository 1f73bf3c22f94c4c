// internal/service/server.go
package service

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/tomb.v2"

	"orb-server/internal/dispatch"
	"orb-server/internal/ior"
	"orb-server/internal/metrics"
	"orb-server/internal/protocol"
	"orb-server/internal/transport"
)

const (
	defaultWorkers   = 8
	defaultQueueSize = 256
)

type Options struct {
	Workers      int
	QueueSize    int
	KeyCacheSize int
	ConnOptions  transport.ConnOptions
	Logger       *zap.Logger
	Metrics      *metrics.Metrics

	// IdleTimeout closes connections without traffic or pending requests.
	// Zero disables it.
	IdleTimeout time.Duration
}

// NetServer reads frames from its connections and runs requests on a fixed
// pool of workers. Each worker owns one invocation stack.
type NetServer struct {
	t          tomb.Tomb
	ctx        context.Context
	dispatcher dispatch.RequestDispatcher
	keys       *ior.KeyCache
	jobs       chan job
	opts       Options
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu        sync.Mutex
	listeners []net.Listener
	conns     map[*connState]struct{}
}

func NewNetServer(d dispatch.RequestDispatcher, opts Options) *NetServer {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &NetServer{
		dispatcher: d,
		keys:       ior.NewKeyCache(opts.KeyCacheSize),
		jobs:       make(chan job, opts.QueueSize),
		opts:       opts,
		logger:     logger,
		metrics:    opts.Metrics,
		conns:      make(map[*connState]struct{}),
	}
	n.ctx = n.t.Context(context.Background())
	n.t.Go(n.reap)
	for i := 0; i < opts.Workers; i++ {
		n.t.Go(n.runWorker)
	}
	if opts.IdleTimeout > 0 {
		n.t.Go(n.idleLoop)
	}
	return n
}

func (n *NetServer) Alive() bool {
	return n.t.Alive()
}

// Dead is closed once every listener, connection and worker has stopped.
func (n *NetServer) Dead() <-chan struct{} {
	return n.t.Dead()
}

func (n *NetServer) Stop() error {
	n.t.Kill(nil)
	return n.t.Wait()
}

// reap closes listeners and connections once the server is dying. It holds
// the tomb open until then, so track and addListener can still call Go.
func (n *NetServer) reap() error {
	<-n.t.Dying()
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ln := range n.listeners {
		_ = ln.Close()
	}
	n.listeners = nil
	for c := range n.conns {
		c.close()
	}
	return nil
}

// track registers c and starts fn on the tomb, or reports false once the
// server is stopping.
func (n *NetServer) track(c *connState, fn func() error) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.t.Alive() {
		return false
	}
	n.conns[c] = struct{}{}
	n.t.Go(fn)
	return true
}

func (n *NetServer) untrack(c *connState) {
	n.mu.Lock()
	delete(n.conns, c)
	n.mu.Unlock()
}

func (n *NetServer) addListener(ln net.Listener, fn func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.t.Alive() {
		_ = ln.Close()
		return protocol.InternalErrServerClosed
	}
	n.listeners = append(n.listeners, ln)
	n.t.Go(fn)
	return nil
}
