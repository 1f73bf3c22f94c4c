package redis_tools

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

const (
	defaultPoolSize     = 16
	defaultMinIdleConns = 2
	ioTimeout           = 3 * time.Second
)

var (
	mu     sync.RWMutex
	shared *redis.Client
	addr   string

	healthy atomic.Bool
)

// NewClient builds a client without pinging it. Reference lookups are
// rare, so the pool stays small.
func NewClient(cfg RedisConfig) *redis.Client {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultPoolSize
	}
	if cfg.MinIdleConns <= 0 {
		cfg.MinIdleConns = defaultMinIdleConns
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  ioTimeout,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
	})
}

// InitRedis pings a new client and installs it as the shared one,
// closing any previous client.
func InitRedis(cfg RedisConfig) error {
	client := NewClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return err
	}

	mu.Lock()
	prev := shared
	shared, addr = client, cfg.Addr
	mu.Unlock()
	healthy.Store(true)

	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// RDB returns the shared client, nil before InitRedis.
func RDB() *redis.Client {
	mu.RLock()
	defer mu.RUnlock()
	return shared
}

// Healthy reports the result of the last health check.
func Healthy() bool {
	return healthy.Load()
}

func CloseRedis() error {
	mu.Lock()
	c := shared
	shared, addr = nil, ""
	mu.Unlock()
	healthy.Store(false)
	if c == nil {
		return nil
	}
	return c.Close()
}

// StartHealthCheck pings the shared client every interval until ctx is
// done. onChange, when set, runs on every healthy/unhealthy transition.
// The check never closes or rebuilds the client.
func StartHealthCheck(
	ctx context.Context,
	logger *zap.Logger,
	interval time.Duration,
	onChange func(healthy bool),
) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ping(ctx, logger, onChange)
			}
		}
	}()
}

func ping(ctx context.Context, logger *zap.Logger, onChange func(bool)) {
	mu.RLock()
	client, target := shared, addr
	mu.RUnlock()

	ok := false
	if client == nil {
		logger.Warn("redis client not initialized")
	} else {
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := client.Ping(checkCtx).Err()
		cancel()
		if err != nil {
			logger.Warn("redis ping failed",
				zap.String("addr", target),
				zap.String("reason", err.Error()),
			)
		} else {
			ok = true
		}
	}

	if healthy.Swap(ok) == ok {
		return
	}
	if ok {
		logger.Info("redis reachable again", zap.String("addr", target))
	}
	if onChange != nil {
		onChange(ok)
	}
}
