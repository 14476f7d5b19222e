package config

import (
	"runtime"
	"time"
)

// Default values for optional configuration fields.
const (
	DefaultModule          = "app"
	DefaultTimeout         = 300 * time.Second
	DefaultInitWait        = 10 * time.Second
	DefaultPoolQueue       = 64
	DefaultCacheDriver     = CacheMemory
	DefaultCacheNamespace  = "SP_ROUTERX_CACHE"
	DefaultDBPort          = 5432
	DefaultDBSSLMode       = "prefer"
	DefaultMaxConns        = 4
	DefaultMinConns        = 1
	DefaultPingTimeout     = 60 * time.Second
	DefaultWriteTimeout    = 5 * time.Second
	DefaultResponseTimeout = 10 * time.Second
	DefaultMetricsPort     = 9090
	DefaultMetricsPath     = "/metrics"
	DefaultMetricsNS       = "routerx"
	DefaultLogLevel        = "info"
)

// DefaultPoolSize is one worker per CPU plus one.
func DefaultPoolSize() int {
	return runtime.NumCPU() + 1
}

func (c *Config) applyDefaults() {
	// Router defaults
	if c.Router.Module == "" {
		c.Router.Module = DefaultModule
	}
	if c.Router.Timeout == 0 {
		c.Router.Timeout = DefaultTimeout
	}
	if c.Router.InitWait == 0 {
		c.Router.InitWait = DefaultInitWait
	}

	// Pool defaults
	if c.Pool.Size == 0 {
		c.Pool.Size = DefaultPoolSize()
	}
	if c.Pool.Queue == 0 {
		c.Pool.Queue = DefaultPoolQueue
	}

	// Cache defaults
	if c.Cache.Driver == "" {
		c.Cache.Driver = DefaultCacheDriver
	}
	if c.Cache.Namespace == "" {
		c.Cache.Namespace = DefaultCacheNamespace
	}

	applyDBDefaults(&c.Database)

	// Host defaults
	if c.Host.PingTimeout == 0 {
		c.Host.PingTimeout = DefaultPingTimeout
	}
	if c.Host.WriteTimeout == 0 {
		c.Host.WriteTimeout = DefaultWriteTimeout
	}
	if c.Host.ResponseTimeout == 0 {
		c.Host.ResponseTimeout = DefaultResponseTimeout
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultMetricsNS
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
