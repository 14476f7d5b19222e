package route

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Table name prefixes. A table's name is its prefix followed by the module name.
const (
	PrefixRoot         = "routerx.root."
	PrefixInterceptors = "routerx.interceptors."
	PrefixProviders    = "routerx.providers."
)

// GroupFunc returns every route of one group. It runs at most once per
// registry lifetime, the first time a path in the group is resolved.
type GroupFunc func() ([]Meta, error)

// GroupIndex receives group loaders from root tables.
type GroupIndex interface {
	AddGroup(name string, load GroupFunc) error
}

// InterceptorIndex receives interceptors. Priorities must be unique.
type InterceptorIndex interface {
	AddInterceptor(priority int, name string, factory Factory) error
}

// ProviderIndex receives provider metadata keyed by the provider's service name.
type ProviderIndex interface {
	AddProvider(name string, meta Meta) error
}

// Index is the full set of sinks a catalog loads into.
type Index interface {
	GroupIndex
	InterceptorIndex
	ProviderIndex
}

// Generated table signatures.
type (
	RootTable        func(GroupIndex) error
	InterceptorTable func(InterceptorIndex) error
	ProviderTable    func(ProviderIndex) error
)

// Catalog maps table names to generated tables.
type Catalog struct {
	mu           sync.RWMutex
	roots        map[string]RootTable
	interceptors map[string]InterceptorTable
	providers    map[string]ProviderTable
}

// DefaultCatalog is where generated code registers its tables.
var DefaultCatalog = NewCatalog()

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		roots:        make(map[string]RootTable),
		interceptors: make(map[string]InterceptorTable),
		providers:    make(map[string]ProviderTable),
	}
}

// RegisterRoot records the root table of module and returns its table name.
func (c *Catalog) RegisterRoot(module string, t RootTable) string {
	name := PrefixRoot + module
	c.mu.Lock()
	c.roots[name] = t
	c.mu.Unlock()
	return name
}

// RegisterInterceptors records the interceptor table of module.
func (c *Catalog) RegisterInterceptors(module string, t InterceptorTable) string {
	name := PrefixInterceptors + module
	c.mu.Lock()
	c.interceptors[name] = t
	c.mu.Unlock()
	return name
}

// RegisterProviders records the provider table of module.
func (c *Catalog) RegisterProviders(module string, t ProviderTable) string {
	name := PrefixProviders + module
	c.mu.Lock()
	c.providers[name] = t
	c.mu.Unlock()
	return name
}

// Names returns every registered table name in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.roots)+len(c.interceptors)+len(c.providers))
	for n := range c.roots {
		names = append(names, n)
	}
	for n := range c.interceptors {
		names = append(names, n)
	}
	for n := range c.providers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Load runs the table called name against idx, dispatching on its prefix.
func (c *Catalog) Load(name string, idx Index) error {
	c.mu.RLock()
	root, isRoot := c.roots[name]
	icpt, isIcpt := c.interceptors[name]
	prov, isProv := c.providers[name]
	c.mu.RUnlock()

	switch {
	case strings.HasPrefix(name, PrefixRoot) && isRoot:
		return root(idx)
	case strings.HasPrefix(name, PrefixInterceptors) && isIcpt:
		return icpt(idx)
	case strings.HasPrefix(name, PrefixProviders) && isProv:
		return prov(idx)
	default:
		return fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
}
