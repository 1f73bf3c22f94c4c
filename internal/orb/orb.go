// Package orb assembles the request dispatch stack from configuration.
package orb

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"orb-server/internal/config"
	"orb-server/internal/db/bolt_tools"
	"orb-server/internal/db/redis_tools"
	"orb-server/internal/dispatch"
	"orb-server/internal/ior"
	"orb-server/internal/metrics"
	"orb-server/internal/poa"
	"orb-server/internal/resolver"
	"orb-server/internal/servantcache"
	"orb-server/internal/service"
	"orb-server/internal/special"
	"orb-server/internal/transport"
)

// writeTimeout bounds a reply write to a stalled client.
const writeTimeout = 10 * time.Second

// Setup activates application servants under the root adapter and returns
// references to publish as initial references.
type Setup func(root *poa.POA) (map[string]*ior.IOR, error)

type ORB struct {
	cfg      config.ORBConfig
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	adapters *poa.Manager
	root     *poa.POA
	refs     *resolver.Table
	router   *dispatch.Router
	server   *service.NetServer
	cache    servantcache.Kind

	bolt        *bolt_tools.RefStore
	stopHealth  context.CancelFunc
	redisClosed bool
}

func New(ctx context.Context, cfg config.ORBConfig, logger *zap.Logger, setup Setup) (*ORB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	host, port, err := endpoint(cfg)
	if err != nil {
		return nil, err
	}
	cache, err := servantcache.ParseKind(cfg.ServantCache)
	if err != nil {
		return nil, err
	}

	o := &ORB{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		cache:    cache,
	}
	o.metrics = metrics.New(o.registry)
	o.adapters = poa.NewManager(poa.Options{
		ServerID: cfg.ServerID,
		ORBID:    cfg.ORBID,
		Host:     host,
		Port:     port,
		Logger:   logger.Named("poa"),
	})
	if o.root, err = o.adapters.Create(ior.AdapterID{poa.RootName}); err != nil {
		return nil, err
	}

	sources := []resolver.Source{}
	if setup != nil {
		local, err := setup(o.root)
		if err != nil {
			return nil, fmt.Errorf("setup: %w", err)
		}
		static := resolver.StaticSource{}
		for name, ref := range local {
			static[name] = ref.String()
		}
		sources = append(sources, static)
	}
	sources = append(sources, resolver.StaticSource(cfg.InitialRefs))

	if cfg.Redis != nil {
		if err := redis_tools.InitRedis(redis_tools.RedisConfig{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}); err != nil {
			return nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
		hctx, cancel := context.WithCancel(context.Background())
		o.stopHealth = cancel
		o.metrics.StoreHealth("redis", true)
		redis_tools.StartHealthCheck(hctx, logger.Named("redis"), 10*time.Second, func(up bool) {
			o.metrics.StoreHealth("redis", up)
		})
		sources = append(sources, redis_tools.NewRefDao(redis_tools.RDB(), cfg.ORBID))
	}
	if cfg.BoltPath != "" {
		if o.bolt, err = bolt_tools.Open(cfg.BoltPath, cfg.ORBID); err != nil {
			o.closeStores()
			return nil, err
		}
		sources = append(sources, o.bolt)
	}

	if o.refs, err = resolver.Load(ctx, sources...); err != nil {
		o.closeStores()
		return nil, err
	}
	logger.Info("initial references loaded", zap.Int("count", o.refs.Len()))

	adapters := dispatch.NewAdapterDispatcher(o.adapters, logger.Named("adapter"), o.metrics)
	o.router = dispatch.NewRouter(
		dispatch.NewBootstrap(o.refs, logger.Named("bootstrap")),
		dispatch.NewINS(o.refs, logger.Named("ins")),
		dispatch.NewServerDispatcher(adapters, special.NewTable(), logger.Named("server")),
		logger.Named("router"),
		o.metrics,
	)
	o.server = service.NewNetServer(o.router, service.Options{
		Workers:      cfg.Workers,
		KeyCacheSize: cfg.KeyCacheSize,
		ConnOptions:  transport.ConnOptions{WriteTimeout: writeTimeout},
		IdleTimeout:  time.Duration(cfg.IdleTimeoutSec) * time.Second,
		Logger:       logger.Named("net"),
		Metrics:      o.metrics,
	})
	return o, nil
}

// endpoint picks the address minted into references.
func endpoint(cfg config.ORBConfig) (string, uint16, error) {
	host, port := cfg.Host, cfg.Port
	if cfg.ListenAddr != "" && (host == "" || port == 0) {
		h, p, err := net.SplitHostPort(cfg.ListenAddr)
		if err != nil {
			return "", 0, fmt.Errorf("listen_addr %q: %w", cfg.ListenAddr, err)
		}
		if host == "" {
			host = h
		}
		if port == 0 {
			if port, err = strconv.Atoi(p); err != nil {
				return "", 0, fmt.Errorf("listen_addr %q: %w", cfg.ListenAddr, err)
			}
		}
	}
	return host, uint16(port), nil
}

// Start opens the configured listeners. A TCP listener bound to port 0
// updates the endpoint used for new references.
func (o *ORB) Start() error {
	if o.cfg.ListenAddr != "" {
		addr, err := o.server.ListenAndServe(o.cfg.ListenAddr)
		if err != nil {
			return err
		}
		if o.cfg.Port == 0 {
			if tcp, ok := addr.(*net.TCPAddr); ok {
				host, _ := o.adapters.Endpoint()
				o.adapters.SetEndpoint(host, uint16(tcp.Port))
			}
		}
	}
	if o.cfg.WSAddr != "" {
		if _, err := o.server.ListenWS(o.cfg.WSAddr); err != nil {
			return err
		}
	}
	if o.cfg.MetricsAddr != "" {
		if _, err := o.server.ListenMetrics(o.cfg.MetricsAddr, o.registry); err != nil {
			return err
		}
	}
	return nil
}

// Stop stops the network server, destroys every adapter and closes the
// reference stores.
func (o *ORB) Stop() error {
	err := o.server.Stop()
	o.adapters.DestroyAll()
	o.closeStores()
	return err
}

func (o *ORB) closeStores() {
	if o.stopHealth != nil {
		o.stopHealth()
		o.stopHealth = nil
	}
	if o.cfg.Redis != nil && !o.redisClosed {
		o.redisClosed = true
		if err := redis_tools.CloseRedis(); err != nil {
			o.logger.Warn("redis close failed", zap.String("reason", err.Error()))
		}
	}
	if o.bolt != nil {
		if err := o.bolt.Close(); err != nil {
			o.logger.Warn("bolt close failed", zap.String("reason", err.Error()))
		}
		o.bolt = nil
	}
}

func (o *ORB) Server() *service.NetServer   { return o.server }
func (o *ORB) Adapters() *poa.Manager       { return o.adapters }
func (o *ORB) Root() *poa.POA               { return o.root }
func (o *ORB) InitialRefs() *resolver.Table { return o.refs }
func (o *ORB) Registry() *prometheus.Registry {
	return o.registry
}
