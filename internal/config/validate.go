package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Router.Module == "" {
		return errors.New("router.module is required")
	}
	if c.Router.Timeout <= 0 {
		return errors.New("router.timeout must be > 0")
	}
	if c.Router.InitWait <= 0 {
		return errors.New("router.init_wait must be > 0")
	}

	if c.Pool.Size < 1 {
		return errors.New("pool.size must be >= 1")
	}
	if c.Pool.Queue < 1 {
		return errors.New("pool.queue must be >= 1")
	}

	switch c.Cache.Driver {
	case CacheMemory:
	case CacheFile:
		if c.Cache.Path == "" {
			return errors.New("cache.path is required for the file driver")
		}
	case CachePostgres:
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("cache.driver must be one of memory, file, postgres, got %q", c.Cache.Driver)
	}

	if c.Host.URL != "" {
		if !strings.HasPrefix(c.Host.URL, "ws://") && !strings.HasPrefix(c.Host.URL, "wss://") {
			return fmt.Errorf("host.url must be a ws:// or wss:// URL, got %q", c.Host.URL)
		}
	}
	if (c.Host.KeyID == "") != (c.Host.PrivateKeyPath == "") {
		return errors.New("host.key_id and host.private_key_path must be set together")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", c.Metrics.Path)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
