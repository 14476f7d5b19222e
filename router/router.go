// Package router is the navigation facade. It owns the route registry, the
// interceptor pipeline, the worker pool and the main loop, and drives every
// request from Built to one of Dispatched, Lost or Interrupted.
//
// Typical use:
//
//	r := router.New(router.Config{}, router.WithHost(h))
//	if err := r.Start(ctx); err != nil {
//		return err
//	}
//	defer r.Stop(ctx)
//
//	req, err := r.Build(ctx, "/user/profile")
//	...
//	_, err = r.Navigate(ctx, req.WithInt("id", 7), nil)
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/rickgao/routerx/internal/cache"
	"github.com/rickgao/routerx/internal/executor"
	"github.com/rickgao/routerx/internal/loader"
	"github.com/rickgao/routerx/internal/mainloop"
	"github.com/rickgao/routerx/internal/pipeline"
	"github.com/rickgao/routerx/internal/registry"
	"github.com/rickgao/routerx/route"
)

// TracerName is the instrumentation scope of navigation spans.
const TracerName = "routerx"

type lifecycle int

const (
	stateNew lifecycle = iota
	stateStarted
	stateStopped
)

// Router resolves and dispatches navigation requests.
type Router struct {
	cfg        Config
	logger     *slog.Logger
	catalog    *route.Catalog
	store      cache.Store
	host       Host
	observer   Observer
	tracer     trace.Tracer
	replacer   route.PathReplacer
	demoter    route.Demoter
	serializer route.Serializer

	reg  registry.Registry
	pool *executor.Pool
	loop *mainloop.Loop
	pipe pipeline.Pipeline

	mu    sync.Mutex
	state lifecycle
}

// Stats is a point-in-time view of the router's internals.
type Stats struct {
	Registry registry.Stats
	Pool     executor.Stats
	Loop     mainloop.QueueStats
}

// New creates a Router. Call Start before navigating.
func New(cfg Config, opts ...Option) *Router {
	r := &Router{cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.catalog == nil {
		r.catalog = route.DefaultCatalog
	}
	if r.host == nil {
		r.host = logHost{logger: r.logger}
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer(TracerName)
	}

	r.reg = registry.New(registry.Config{Debug: cfg.Debug}, r.logger)
	r.pool = executor.New(executor.Config{Workers: cfg.Workers, QueueSize: cfg.QueueSize}, r.logger)
	r.loop = mainloop.New(r.logger)

	var chainObserver pipeline.Observer
	if r.observer != nil {
		chainObserver = r.observer
	}
	r.pipe = pipeline.New(pipeline.Config{InitWait: cfg.InitWait}, r.pool, chainObserver, r.logger)
	return r
}

// Start loads the route tables, starts the workers and the main loop, and
// begins interceptor initialization. Navigations issued before initialization
// finishes wait for it.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != stateNew {
		return fmt.Errorf("%w: router already started", route.ErrInitialization)
	}

	if err := r.pool.Start(ctx); err != nil {
		return fmt.Errorf("start executor: %w", err)
	}
	if err := r.loop.Start(ctx); err != nil {
		return fmt.Errorf("start main loop: %w", err)
	}

	res, err := loader.New(r.catalog, r.store, r.logger).Load(ctx, r.reg, loader.Options{
		Debug: r.cfg.Debug,
		Stamp: r.cfg.Stamp,
	})
	if err != nil {
		r.logger.Error("route table load failed", "error", err)
		_ = r.stopLocked(ctx)
		return fmt.Errorf("%w: %w", route.ErrInitialization, err)
	}

	if err := r.pipe.Init(ctx, r.reg.Interceptors()); err != nil {
		_ = r.stopLocked(ctx)
		return err
	}

	r.state = stateStarted
	r.logger.Info("router started",
		"debug", r.cfg.Debug,
		"tables", len(res.Tables),
		"groups", r.reg.Stats().PendingGroups,
		"interceptors", r.pipe.Len(),
	)
	return nil
}

// Stop shuts down the main loop and the workers.
func (r *Router) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopLocked(ctx)
}

func (r *Router) stopLocked(ctx context.Context) error {
	if r.state == stateStopped {
		return nil
	}
	r.state = stateStopped

	if err := r.loop.Stop(ctx); err != nil {
		return fmt.Errorf("stop main loop: %w", err)
	}
	if err := r.pool.Stop(ctx); err != nil {
		return fmt.Errorf("stop executor: %w", err)
	}
	r.logger.Info("router stopped")
	return nil
}

// Destroy clears every index and stops the router. Only allowed in debug mode.
func (r *Router) Destroy(ctx context.Context) error {
	if !r.cfg.Debug {
		return fmt.Errorf("%w: destroy is only available in debug mode", route.ErrHandler)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.reg.Reset(); err != nil {
		return err
	}
	r.logger.Info("router destroyed")
	return r.stopLocked(ctx)
}

func (r *Router) checkStarted() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case stateStarted:
		return nil
	case stateStopped:
		return fmt.Errorf("%w: router is stopped", route.ErrInitialization)
	default:
		return fmt.Errorf("%w: router is not started", route.ErrInitialization)
	}
}

// Build creates a request for path, deriving the group from its first segment.
func (r *Router) Build(ctx context.Context, path string) (*route.Request, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: path is empty", route.ErrHandler)
	}
	if p := r.pathReplacer(ctx); p != nil {
		path = p.ForString(path)
	}
	group, err := route.ExtractGroup(path)
	if err != nil {
		return nil, err
	}
	return r.newRequest(path, group), nil
}

func (r *Router) newRequest(path, group string) *route.Request {
	req := route.NewRequest(path, group)
	if r.cfg.Timeout > 0 {
		req.Timeout = r.cfg.Timeout
	}
	return req
}

// BuildGroup creates a request for path in an explicit group.
func (r *Router) BuildGroup(ctx context.Context, path, group string) (*route.Request, error) {
	if path == "" || group == "" {
		return nil, fmt.Errorf("%w: path and group are required", route.ErrHandler)
	}
	if p := r.pathReplacer(ctx); p != nil {
		path = p.ForString(path)
	}
	return r.newRequest(path, group), nil
}

// BuildURI creates a request from a URI. Its query parameters are inflated
// into typed params during navigation.
func (r *Router) BuildURI(ctx context.Context, uri *url.URL) (*route.Request, error) {
	if uri == nil || uri.Path == "" {
		return nil, fmt.Errorf("%w: uri has no path", route.ErrHandler)
	}
	if p := r.pathReplacer(ctx); p != nil {
		uri = p.ForURI(uri)
	}
	group, err := route.ExtractGroup(uri.Path)
	if err != nil {
		return nil, err
	}
	req := r.newRequest(uri.Path, group)
	req.URI = uri
	return req, nil
}

// Resolve returns the route path leads to without navigating. The route's
// group is loaded if needed.
func (r *Router) Resolve(ctx context.Context, path string) (route.Meta, error) {
	if err := r.checkStarted(); err != nil {
		return route.Meta{}, err
	}
	req, err := r.Build(ctx, path)
	if err != nil {
		return route.Meta{}, err
	}
	return r.reg.ResolvePath(req.Path, req.Group)
}

// LoadAll materializes every pending group. Failing groups are reported
// together; the others stay loaded.
func (r *Router) LoadAll(ctx context.Context) error {
	if err := r.checkStarted(); err != nil {
		return err
	}
	var errs []error
	for _, group := range r.reg.PendingGroups() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.reg.LoadGroup(group); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Provider returns the provider registered under name, binding it on first use.
func (r *Router) Provider(ctx context.Context, name string) (any, error) {
	if err := r.checkStarted(); err != nil {
		return nil, err
	}
	return r.provider(ctx, name)
}

func (r *Router) provider(ctx context.Context, name string) (any, error) {
	req, err := r.reg.ResolveProvider(name)
	if err != nil {
		return nil, err
	}
	if err := r.complete(ctx, req); err != nil {
		return nil, err
	}
	if req.Kind != route.KindProvider {
		return nil, fmt.Errorf("%w: %q resolves to a %s, not a provider", route.ErrHandler, name, req.Kind)
	}
	return req.Provider, nil
}

// ProviderOf returns the provider registered under name as a T.
func ProviderOf[T any](ctx context.Context, r *Router, name string) (T, error) {
	var zero T
	inst, err := r.Provider(ctx, name)
	if err != nil {
		return zero, err
	}
	v, ok := inst.(T)
	if !ok {
		return zero, fmt.Errorf("%w: provider %q (%T) does not satisfy the requested type", route.ErrHandler, name, inst)
	}
	return v, nil
}

// Inject copies the params of req into target. Fields are matched by their
// `param` tag; a target implementing route.ParamsReceiver also receives the
// whole bag.
func (r *Router) Inject(target any, req *route.Request) error {
	if target == nil || req == nil {
		return fmt.Errorf("%w: inject needs a target and a request", route.ErrHandler)
	}
	if recv, ok := target.(route.ParamsReceiver); ok {
		recv.SetParams(req.Params)
		return nil
	}
	if err := req.Params.Bind(target); err != nil {
		return fmt.Errorf("%w: inject %T: %w", route.ErrHandler, target, err)
	}
	return nil
}

// Routes returns every materialized route.
func (r *Router) Routes() []route.Meta {
	return r.reg.Routes()
}

// PendingGroups returns the groups not loaded yet.
func (r *Router) PendingGroups() []string {
	return r.reg.PendingGroups()
}

// Stats returns registry, pool and main loop counters.
func (r *Router) Stats() Stats {
	return Stats{
		Registry: r.reg.Stats(),
		Pool:     r.pool.Stats(),
		Loop:     r.loop.Stats(),
	}
}

// Service lookups. Options win over registered providers; a missing or
// broken provider yields nil.

func (r *Router) pathReplacer(ctx context.Context) route.PathReplacer {
	if r.replacer != nil {
		return r.replacer
	}
	p, _ := r.service(ctx, route.ServicePathReplace).(route.PathReplacer)
	return p
}

func (r *Router) demotion(ctx context.Context) route.Demoter {
	if r.demoter != nil {
		return r.demoter
	}
	d, _ := r.service(ctx, route.ServiceDemote).(route.Demoter)
	return d
}

func (r *Router) serialization(ctx context.Context) route.Serializer {
	if r.serializer != nil {
		return r.serializer
	}
	s, _ := r.service(ctx, route.ServiceSerialization).(route.Serializer)
	return s
}

func (r *Router) service(ctx context.Context, name string) any {
	if r.checkStarted() != nil {
		return nil
	}
	inst, err := r.provider(ctx, name)
	if err != nil {
		r.logger.Debug("service unavailable", "service", name, "error", err)
		return nil
	}
	return inst
}
