package router

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/rickgao/routerx/internal/cache"
	"github.com/rickgao/routerx/route"
)

// Config holds router settings. Zero values select the defaults.
type Config struct {
	// Debug enables Destroy, forces a table cache rebuild on every start and
	// logs a tip for every lost request.
	Debug bool

	// InitWait bounds how long a navigation waits for interceptors to initialize.
	InitWait time.Duration

	// Timeout is the interceptor chain timeout given to built requests.
	// Default: route.DefaultTimeout.
	Timeout time.Duration

	// Workers and QueueSize size the executor.
	Workers   int
	QueueSize int

	// Stamp identifies the build for table cache staleness.
	Stamp cache.Stamp
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithCatalog sets the table catalog. Default: route.DefaultCatalog.
func WithCatalog(c *route.Catalog) Option {
	return func(r *Router) {
		r.catalog = c
	}
}

// WithStore sets the table name cache. Default: none, the catalog is read every start.
func WithStore(s cache.Store) Option {
	return func(r *Router) {
		r.store = s
	}
}

// WithHost sets the host that launches activities and services.
func WithHost(h Host) Option {
	return func(r *Router) {
		r.host = h
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(r *Router) {
		r.observer = o
	}
}

// WithTracer sets the tracer. Default: the global otel tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(r *Router) {
		r.tracer = t
	}
}

// WithPathReplacer sets the path replacement service, taking precedence over
// any provider registered under route.ServicePathReplace.
func WithPathReplacer(p route.PathReplacer) Option {
	return func(r *Router) {
		r.replacer = p
	}
}

// WithDemoter sets the fallback for lost requests without a listener.
func WithDemoter(d route.Demoter) Option {
	return func(r *Router) {
		r.demoter = d
	}
}

// WithSerializer sets the serializer for "any" parameters.
func WithSerializer(s route.Serializer) Option {
	return func(r *Router) {
		r.serializer = s
	}
}
