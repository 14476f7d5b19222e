package registry

import (
	"fmt"
	"time"

	"github.com/rickgao/routerx/route"
)

// materialize loads group into the route index exactly once. Concurrent
// callers share one load; callers arriving after it find the group gone.
func (r *registry) materialize(group string) error {
	_, err, _ := r.loads.Do(group, func() (any, error) {
		r.mu.RLock()
		load, pending := r.groups[group]
		gen := r.generation
		r.mu.RUnlock()

		if !pending {
			return nil, nil
		}

		start := time.Now()
		metas, loadErr := runGroup(group, load)

		r.mu.Lock()
		defer r.mu.Unlock()

		// A reset ran while the loader was working; its output belongs to the old indexes.
		if r.generation != gen {
			return nil, nil
		}

		if loadErr == nil {
			loadErr = r.insertLocked(group, metas)
		}
		delete(r.groups, group)

		if loadErr != nil {
			r.loadFailures.Add(1)
			r.logger.Error("group load failed", "group", group, "error", loadErr)
			return nil, loadErr
		}

		r.groupsLoaded.Add(1)
		r.logger.Debug("group loaded",
			"group", group,
			"routes", len(metas),
			"duration", time.Since(start),
		)
		return nil, nil
	})
	return err
}

// runGroup invokes a generated group loader, converting a panic into an error.
func runGroup(group string, load route.GroupFunc) (metas []route.Meta, err error) {
	defer func() {
		if p := recover(); p != nil {
			metas = nil
			err = fmt.Errorf("%w: group %q loader panicked: %v", route.ErrHandler, group, p)
		}
	}()

	metas, err = load()
	if err != nil {
		return nil, fmt.Errorf("%w: load group %q: %w", route.ErrHandler, group, err)
	}
	return metas, nil
}

// insertLocked validates every meta of a group and then inserts them all, so
// a group is either fully visible or not at all. Must be called with mu held.
func (r *registry) insertLocked(group string, metas []route.Meta) error {
	staged := make(map[string]route.Meta, len(metas))
	for _, m := range metas {
		if m.Group == "" {
			m.Group = group
		}
		norm, err := m.Normalize()
		if err != nil {
			return fmt.Errorf("group %q: %w", group, err)
		}
		if prev, dup := r.routes[norm.Path]; dup {
			return fmt.Errorf("%w: %w: path %q of group %q already claimed by group %q",
				route.ErrHandler, route.ErrDuplicateRoute, norm.Path, group, prev.Group)
		}
		if _, dup := staged[norm.Path]; dup {
			return fmt.Errorf("%w: %w: path %q declared twice in group %q",
				route.ErrHandler, route.ErrDuplicateRoute, norm.Path, group)
		}
		staged[norm.Path] = norm
	}

	for path, m := range staged {
		r.routes[path] = m
	}
	return nil
}
