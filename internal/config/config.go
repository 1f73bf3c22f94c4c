package config

import (
	"errors"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type RedisConfig struct {
	Addr         string `json:"addr"`
	Password     string `json:"password"`
	DB           int    `json:"db"`
	PoolSize     int    `json:"pool_size"`
	MinIdleConns int    `json:"min_idle_conns"`
}

type ORBConfig struct {
	ListenAddr  string `json:"listen_addr"`
	WSAddr      string `json:"ws_addr"`
	MetricsAddr string `json:"metrics_addr"`

	// Host and Port are minted into references; they default to ListenAddr.
	Host string `json:"host"`
	Port int    `json:"port"`

	ServerID     int32  `json:"server_id"`
	ORBID        string `json:"orb_id"`
	Workers      int    `json:"workers"`
	KeyCacheSize int    `json:"key_cache_size"`
	LogLevel     string `json:"log_level"`
	// IdleTimeoutSec closes quiet connections; zero keeps them open.
	IdleTimeoutSec int `json:"idle_timeout_sec"`
	// ServantCache is the policy for colocated bindings: full, info_only
	// or minimal.
	ServantCache string `json:"servant_cache"`

	// InitialRefs maps names to stringified IORs.
	InitialRefs map[string]string `json:"initial_refs"`
	Redis       *RedisConfig      `json:"redis,omitempty"`
	BoltPath    string            `json:"bolt_path"`
}

func Defaults() ORBConfig {
	return ORBConfig{
		ListenAddr:   "127.0.0.1:2809",
		WSAddr:       "",
		MetricsAddr:  "",
		ServerID:     1,
		ORBID:        "orbd",
		Workers:      8,
		KeyCacheSize: 1024,
		LogLevel:     "info",
		ServantCache: "full",
	}
}

func (c *ORBConfig) Validate() error {
	var errs []error
	if c.ListenAddr == "" && c.WSAddr == "" {
		errs = append(errs, errors.New("one of listen_addr or ws_addr is required"))
	}
	if c.ORBID == "" {
		errs = append(errs, errors.New("orb_id is required"))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port out of range: %d", c.Port))
	}
	if c.IdleTimeoutSec < 0 {
		errs = append(errs, fmt.Errorf("idle_timeout_sec must not be negative, got %d", c.IdleTimeoutSec))
	}
	if c.Redis != nil && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is set"))
	}
	return errors.Join(errs...)
}

func Load(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// LoadORB applies the file over Defaults and validates the result.
func LoadORB(path string) (ORBConfig, error) {
	cfg := Defaults()
	if path != "" {
		if err := Load(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
