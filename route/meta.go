package route

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Unset marks Priority and Extras that were never declared.
const Unset = -1

// Factory constructs a generated target. It replaces lookup by class name.
type Factory func() any

// Meta describes one route. Values are copied in and out of the registry so
// callers never share the Params map with it.
type Meta struct {
	Kind     Kind
	Target   string  // identifier of the generated target, e.g. "app.ProfileActivity"
	New      Factory // nil for kinds that are never instantiated
	Path     string
	Group    string // derived from Path when empty
	Priority int
	Extras   int
	Params   map[string]DataKind
}

// NewMeta returns a normalized Meta with the group derived from path when empty.
func NewMeta(kind Kind, target string, factory Factory, path, group string, priority, extras int, params map[string]DataKind) (Meta, error) {
	m := Meta{
		Kind:     kind,
		Target:   target,
		New:      factory,
		Path:     path,
		Group:    group,
		Priority: priority,
		Extras:   extras,
		Params:   params,
	}
	return m.Normalize()
}

// Normalize validates m and fills in its group.
func (m Meta) Normalize() (Meta, error) {
	if m.Path == "" {
		return Meta{}, fmt.Errorf("%w: route path is empty", ErrHandler)
	}
	if !strings.HasPrefix(m.Path, "/") {
		return Meta{}, fmt.Errorf("%w: route path %q must start with '/'", ErrHandler, m.Path)
	}
	if m.Group == "" {
		group, err := ExtractGroup(m.Path)
		if err != nil {
			return Meta{}, err
		}
		m.Group = group
	}
	return m.Clone(), nil
}

// Clone returns a copy of m that does not share its Params map.
func (m Meta) Clone() Meta {
	if m.Params != nil {
		m.Params = maps.Clone(m.Params)
	}
	return m
}

// ParamNames returns the declared parameter names in sorted order.
func (m Meta) ParamNames() []string {
	return slices.Sorted(maps.Keys(m.Params))
}

func (m Meta) String() string {
	return fmt.Sprintf("Meta{kind=%s, target=%s, path=%s, group=%s, priority=%d, extras=%d}",
		m.Kind, m.Target, m.Path, m.Group, m.Priority, m.Extras)
}

// ExtractGroup returns the segment between the first and second '/' of path.
func ExtractGroup(path string) (string, error) {
	if path == "" || !strings.HasPrefix(path, "/") {
		return "", fmt.Errorf("%w: extract group from %q: path must start with '/'", ErrHandler, path)
	}
	rest := path[1:]
	end := strings.IndexByte(rest, '/')
	if end < 0 {
		return "", fmt.Errorf("%w: extract group from %q: path needs at least two segments", ErrHandler, path)
	}
	if end == 0 {
		return "", fmt.Errorf("%w: extract group from %q: group segment is empty", ErrHandler, path)
	}
	return rest[:end], nil
}

// SortMetas orders metas by path. The order only matters for inspection.
func SortMetas(metas []Meta) {
	slices.SortFunc(metas, func(a, b Meta) int {
		return strings.Compare(a.Path, b.Path)
	})
}
