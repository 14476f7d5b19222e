// Package config loads the routerx YAML configuration.
package config

import (
	"log/slog"
	"strings"
	"time"
)

// Config is the root configuration of a routerx process.
type Config struct {
	Router   RouterConfig  `yaml:"router"`
	Pool     PoolConfig    `yaml:"pool"`
	Cache    CacheConfig   `yaml:"cache"`
	Database DBConfig      `yaml:"database"`
	Host     HostConfig    `yaml:"host"`
	Metrics  MetricsConfig `yaml:"metrics"`
	Tracing  TracingConfig `yaml:"tracing"`
	Log      LogConfig     `yaml:"log"`
}

// RouterConfig holds navigation settings.
type RouterConfig struct {
	Module   string        `yaml:"module"` // module name the route tables are registered under
	Debug    bool          `yaml:"debug"`
	Timeout  time.Duration `yaml:"timeout"`   // default interceptor chain timeout per request
	InitWait time.Duration `yaml:"init_wait"` // max wait for interceptor initialization
}

// PoolConfig sizes the worker pool.
type PoolConfig struct {
	Size  int `yaml:"size"`
	Queue int `yaml:"queue"`
}

// Cache drivers.
const (
	CacheMemory   = "memory"
	CacheFile     = "file"
	CachePostgres = "postgres"
)

// CacheConfig selects the route table name cache.
type CacheConfig struct {
	Driver    string `yaml:"driver"` // "memory", "file" or "postgres"
	Path      string `yaml:"path"`   // file driver only
	Namespace string `yaml:"namespace"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// HostConfig points at the remote host shell. An empty URL keeps launches
// in process.
type HostConfig struct {
	URL             string        `yaml:"url"`
	KeyID           string        `yaml:"key_id"`           // ROUTERX-ACCESS-KEY header
	PrivateKeyPath  string        `yaml:"private_key_path"` // RSA private key PEM file
	PingTimeout     time.Duration `yaml:"ping_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ResponseTimeout time.Duration `yaml:"response_timeout"`
}

// MetricsConfig holds the admin server and Prometheus settings.
type MetricsConfig struct {
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// TracingConfig controls span export.
type TracingConfig struct {
	Stdout bool `yaml:"stdout"` // pretty-print spans to stdout
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn or error
}

// SlogLevel maps Level to a slog.Level. Unknown levels are Info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
