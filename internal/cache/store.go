// Package cache persists the set of generated table names between runs so
// start-up can skip rebuilding it while the application version is unchanged.
//
// Every store keeps its entries under one namespace with three keys: the table
// name set and the two halves of the version stamp.
package cache

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Cache layout.
const (
	Namespace      = "SP_ROUTERX_CACHE"
	KeyTables      = "SP_ROUTERX_MAP"
	KeyVersionName = "LAST_VERSION_NAME"
	KeyVersionCode = "LAST_VERSION_CODE"
)

// Stamp identifies the application build that wrote the cache.
type Stamp struct {
	Name string `yaml:"name"`
	Code int    `yaml:"code"`
}

// IsZero reports whether no stamp was recorded.
func (s Stamp) IsZero() bool {
	return s.Name == "" && s.Code == 0
}

func (s Stamp) String() string {
	return fmt.Sprintf("%s (%d)", s.Name, s.Code)
}

// Store is the persistent class-name cache.
type Store interface {
	// Tables returns the cached table names, or nil when none were saved.
	Tables(ctx context.Context) ([]string, error)

	// SaveTables replaces the cached table names.
	SaveTables(ctx context.Context, names []string) error

	// Stamp returns the recorded version stamp, or the zero Stamp.
	Stamp(ctx context.Context) (Stamp, error)

	// SaveStamp records the version stamp.
	SaveStamp(ctx context.Context, stamp Stamp) error

	Close() error
}

// Memory is a Store that lives for the process only.
type Memory struct {
	mu     sync.RWMutex
	tables []string
	stamp  Stamp
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Tables(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.tables), nil
}

func (m *Memory) SaveTables(ctx context.Context, names []string) error {
	m.mu.Lock()
	m.tables = normalize(names)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Stamp(ctx context.Context) (Stamp, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stamp, nil
}

func (m *Memory) SaveStamp(ctx context.Context, stamp Stamp) error {
	m.mu.Lock()
	m.stamp = stamp
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }

// normalize sorts names and drops duplicates; the cache holds a set.
func normalize(names []string) []string {
	out := slices.Clone(names)
	slices.Sort(out)
	return slices.Compact(out)
}
