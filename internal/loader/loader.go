// Package loader walks the generated route tables at start-up.
//
// Table names come from the persistent cache unless the cache is stale: debug
// mode, a new application version stamp, or an empty cache all rebuild the
// name set from the catalog and write it back.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rickgao/routerx/internal/cache"
	"github.com/rickgao/routerx/route"
)

// Options controls one load.
type Options struct {
	Debug bool
	Stamp cache.Stamp
}

// Result summarizes a load.
type Result struct {
	Tables       []string
	Rebuilt      bool
	Roots        int
	Interceptors int
	Providers    int
	Skipped      []string
	Duration     time.Duration
}

// Loader feeds catalog tables into an index.
type Loader struct {
	catalog *route.Catalog
	store   cache.Store
	logger  *slog.Logger
}

// New creates a Loader. store may be nil, in which case the catalog is always used.
func New(catalog *route.Catalog, store cache.Store, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{catalog: catalog, store: store, logger: logger}
}

// Load runs every selected table against idx. A table that fails to register
// (for example a duplicate interceptor priority) aborts the load.
func (l *Loader) Load(ctx context.Context, idx route.Index, opts Options) (Result, error) {
	start := time.Now()

	names, rebuilt, err := l.tableNames(ctx, opts)
	if err != nil {
		return Result{}, err
	}

	res := Result{Tables: names, Rebuilt: rebuilt}
	for _, name := range names {
		if err := l.catalog.Load(name, idx); err != nil {
			if errors.Is(err, route.ErrTableNotFound) {
				// Cached name whose table is no longer linked in.
				l.logger.Warn("cached route table not found, skipping", "table", name)
				res.Skipped = append(res.Skipped, name)
				continue
			}
			return res, fmt.Errorf("load route table %s: %w", name, err)
		}

		switch {
		case strings.HasPrefix(name, route.PrefixRoot):
			res.Roots++
		case strings.HasPrefix(name, route.PrefixInterceptors):
			res.Interceptors++
		case strings.HasPrefix(name, route.PrefixProviders):
			res.Providers++
		}
	}
	res.Duration = time.Since(start)

	if res.Roots == 0 {
		l.logger.Error("no route mapping tables were found, check that generated code is linked in")
	}

	l.logger.Info("route tables loaded",
		"tables", len(names),
		"roots", res.Roots,
		"interceptors", res.Interceptors,
		"providers", res.Providers,
		"rebuilt", rebuilt,
		"duration", res.Duration,
	)
	return res, nil
}

// tableNames decides between the cached name set and a rebuild from the catalog.
func (l *Loader) tableNames(ctx context.Context, opts Options) ([]string, bool, error) {
	if l.store == nil {
		return l.catalog.Names(), true, nil
	}

	reason := ""
	if opts.Debug {
		reason = "debug"
	} else {
		stamp, err := l.store.Stamp(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("read cache stamp: %w", err)
		}
		if stamp != opts.Stamp {
			reason = "new version"
		}
	}

	if reason == "" {
		names, err := l.store.Tables(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("read cached tables: %w", err)
		}
		if len(names) > 0 {
			l.logger.Debug("using cached route tables", "count", len(names))
			return names, false, nil
		}
		reason = "empty cache"
	}

	names := l.catalog.Names()
	if err := l.store.SaveTables(ctx, names); err != nil {
		return nil, false, fmt.Errorf("save cached tables: %w", err)
	}
	if err := l.store.SaveStamp(ctx, opts.Stamp); err != nil {
		return nil, false, fmt.Errorf("save cache stamp: %w", err)
	}

	l.logger.Info("route table cache rebuilt",
		"reason", reason,
		"tables", len(names),
		"stamp", opts.Stamp.String(),
	)
	return names, true, nil
}
