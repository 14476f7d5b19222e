package registry

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/rickgao/routerx/route"
)

// Registry holds the four route indexes: pending group loaders, resolved
// routes, provider metadata and instances, and interceptors by priority.
type Registry interface {
	route.Index

	// ResolvePath returns the route for path, loading its group on first use.
	// An empty group is derived from path.
	ResolvePath(path, group string) (route.Meta, error)

	// LoadGroup materializes group now. Loaded or unknown groups are a no-op.
	LoadGroup(group string) error

	// ResolveProvider builds a minimal request for the provider registered under name.
	ResolveProvider(name string) (*route.Request, error)

	// BindProvider returns the singleton for meta, constructing and
	// initializing it on first use.
	BindProvider(ctx context.Context, meta route.Meta) (any, error)

	// Interceptors returns the registered interceptors in ascending priority.
	Interceptors() []Entry

	// Reset clears every index. Only allowed in debug mode.
	Reset() error

	// Stats returns index sizes.
	Stats() Stats

	// Routes returns every materialized route ordered by path.
	Routes() []route.Meta

	// PendingGroups returns the groups that have not been loaded yet.
	PendingGroups() []string
}

// Entry is one registered interceptor.
type Entry struct {
	Priority int
	Name     string
	New      route.Factory
}

// Stats contains index sizes.
type Stats struct {
	PendingGroups int
	Routes        int
	Providers     int
	ProviderIndex int
	Interceptors  int
	GroupsLoaded  int64
	LoadFailures  int64
}

// Config holds registry settings.
type Config struct {
	Debug bool
}

// registry is the internal implementation.
type registry struct {
	cfg    Config
	logger *slog.Logger

	mu            sync.RWMutex
	generation    uint64
	groups        map[string]route.GroupFunc
	routes        map[string]route.Meta
	providers     map[string]any
	providerIndex map[string]route.Meta
	interceptors  []Entry // sorted by priority, unique

	loads singleflight.Group
	binds singleflight.Group

	groupsLoaded atomic.Int64
	loadFailures atomic.Int64
}

// New creates an empty Registry.
func New(cfg Config, logger *slog.Logger) Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &registry{
		cfg:    cfg,
		logger: logger,
	}
	r.clear()
	return r
}

// clear replaces every index. Must be called with mu held or before sharing r.
func (r *registry) clear() {
	r.groups = make(map[string]route.GroupFunc)
	r.routes = make(map[string]route.Meta)
	r.providers = make(map[string]any)
	r.providerIndex = make(map[string]route.Meta)
	r.interceptors = nil
	r.generation++
}

// AddGroup records the loader of a group.
func (r *registry) AddGroup(name string, load route.GroupFunc) error {
	if name == "" {
		return fmt.Errorf("%w: group name is empty", route.ErrHandler)
	}
	if load == nil {
		return fmt.Errorf("%w: group %q has no loader", route.ErrHandler, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.groups[name]; exists {
		return fmt.Errorf("%w: group %q registered twice", route.ErrHandler, name)
	}
	r.groups[name] = load
	return nil
}

// AddInterceptor records an interceptor. A second interceptor at an existing
// priority is rejected and both names are reported.
func (r *registry) AddInterceptor(priority int, name string, factory route.Factory) error {
	if factory == nil {
		return fmt.Errorf("%w: interceptor %q has no factory", route.ErrHandler, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i, found := slices.BinarySearchFunc(r.interceptors, priority, func(e Entry, p int) int {
		return e.Priority - p
	})
	if found {
		return fmt.Errorf("%w: more than one interceptor uses priority %d: %q and %q",
			route.ErrDuplicatePriority, priority, r.interceptors[i].Name, name)
	}
	r.interceptors = slices.Insert(r.interceptors, i, Entry{Priority: priority, Name: name, New: factory})
	return nil
}

// AddProvider records provider metadata under its service name.
func (r *registry) AddProvider(name string, meta route.Meta) error {
	if name == "" {
		return fmt.Errorf("%w: provider name is empty", route.ErrHandler)
	}
	meta, err := meta.Normalize()
	if err != nil {
		return fmt.Errorf("provider %q: %w", name, err)
	}

	r.mu.Lock()
	r.providerIndex[name] = meta
	r.mu.Unlock()
	return nil
}

// ResolvePath looks up path, materializing its group when the path is absent.
func (r *registry) ResolvePath(path, group string) (route.Meta, error) {
	if path == "" {
		return route.Meta{}, fmt.Errorf("%w: path is empty", route.ErrHandler)
	}
	if group == "" {
		g, err := route.ExtractGroup(path)
		if err != nil {
			return route.Meta{}, err
		}
		group = g
	}

	r.mu.RLock()
	meta, ok := r.routes[path]
	_, pending := r.groups[group]
	r.mu.RUnlock()

	if ok {
		return meta.Clone(), nil
	}
	if !pending {
		return route.Meta{}, fmt.Errorf("%w: path %q in group %q", route.ErrRouteNotFound, path, group)
	}

	if err := r.materialize(group); err != nil {
		return route.Meta{}, err
	}

	r.mu.RLock()
	meta, ok = r.routes[path]
	r.mu.RUnlock()

	if !ok {
		return route.Meta{}, fmt.Errorf("%w: path %q in group %q", route.ErrRouteNotFound, path, group)
	}
	return meta.Clone(), nil
}

// LoadGroup materializes group if it is still pending.
func (r *registry) LoadGroup(group string) error {
	return r.materialize(group)
}

// ResolveProvider builds a request for the provider registered under name.
func (r *registry) ResolveProvider(name string) (*route.Request, error) {
	r.mu.RLock()
	meta, ok := r.providerIndex[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: provider %q", route.ErrRouteNotFound, name)
	}
	return route.NewRequest(meta.Path, meta.Group), nil
}

// BindProvider returns the cached instance for meta.Target or builds one.
func (r *registry) BindProvider(ctx context.Context, meta route.Meta) (any, error) {
	if meta.Target == "" {
		return nil, fmt.Errorf("%w: provider at %q has no target", route.ErrHandler, meta.Path)
	}

	if inst, ok := r.provider(meta.Target); ok {
		return inst, nil
	}

	v, err, _ := r.binds.Do(meta.Target, func() (any, error) {
		if inst, ok := r.provider(meta.Target); ok {
			return inst, nil
		}

		r.mu.RLock()
		gen := r.generation
		r.mu.RUnlock()

		inst, err := construct(ctx, meta)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		if r.generation == gen {
			r.providers[meta.Target] = inst
		}
		r.mu.Unlock()

		r.logger.Debug("provider bound", "target", meta.Target, "path", meta.Path)
		return inst, nil
	})
	return v, err
}

func (r *registry) provider(target string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.providers[target]
	return inst, ok
}

// construct builds and initializes a provider, turning panics into errors.
func construct(ctx context.Context, meta route.Meta) (inst any, err error) {
	if meta.New == nil {
		return nil, fmt.Errorf("%w: provider %q has no factory", route.ErrHandler, meta.Target)
	}

	defer func() {
		if p := recover(); p != nil {
			inst = nil
			err = fmt.Errorf("%w: provider %q panicked: %v", route.ErrHandler, meta.Target, p)
		}
	}()

	inst = meta.New()
	if inst == nil {
		return nil, fmt.Errorf("%w: provider %q factory returned nil", route.ErrHandler, meta.Target)
	}
	if p, ok := inst.(route.Provider); ok {
		if err := p.Init(ctx); err != nil {
			return nil, fmt.Errorf("%w: init provider %q: %w", route.ErrHandler, meta.Target, err)
		}
	}
	return inst, nil
}

// Interceptors returns a copy of the interceptor index.
func (r *registry) Interceptors() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.interceptors)
}

// Reset clears every index.
func (r *registry) Reset() error {
	if !r.cfg.Debug {
		return fmt.Errorf("%w: registry reset is only allowed in debug mode", route.ErrHandler)
	}

	r.mu.Lock()
	r.clear()
	r.mu.Unlock()

	r.logger.Info("registry reset")
	return nil
}

// Stats returns index sizes.
func (r *registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		PendingGroups: len(r.groups),
		Routes:        len(r.routes),
		Providers:     len(r.providers),
		ProviderIndex: len(r.providerIndex),
		Interceptors:  len(r.interceptors),
		GroupsLoaded:  r.groupsLoaded.Load(),
		LoadFailures:  r.loadFailures.Load(),
	}
}

// Routes returns every materialized route ordered by path.
func (r *registry) Routes() []route.Meta {
	r.mu.RLock()
	metas := make([]route.Meta, 0, len(r.routes))
	for _, m := range r.routes {
		metas = append(metas, m.Clone())
	}
	r.mu.RUnlock()

	route.SortMetas(metas)
	return metas
}

// PendingGroups returns the names of groups not yet loaded, sorted.
func (r *registry) PendingGroups() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.groups))
	for n := range r.groups {
		names = append(names, n)
	}
	r.mu.RUnlock()

	slices.Sort(names)
	return names
}
