package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

// fileDoc is the on-disk layout: namespace -> key -> value.
type fileDoc map[string]fileEntries

type fileEntries struct {
	Tables      []string `yaml:"SP_ROUTERX_MAP,omitempty"`
	VersionName string   `yaml:"LAST_VERSION_NAME,omitempty"`
	VersionCode string   `yaml:"LAST_VERSION_CODE,omitempty"`
}

// File is a Store backed by a YAML file. Each write replaces the file atomically.
type File struct {
	path      string
	namespace string

	mu sync.Mutex
}

// NewFile creates a store at path. An empty namespace selects Namespace.
func NewFile(path, namespace string) *File {
	if namespace == "" {
		namespace = Namespace
	}
	return &File{path: path, namespace: namespace}
}

func (f *File) Tables(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return nil, err
	}
	return doc[f.namespace].Tables, nil
}

func (f *File) SaveTables(ctx context.Context, names []string) error {
	return f.update(func(e *fileEntries) {
		e.Tables = normalize(names)
	})
}

func (f *File) Stamp(ctx context.Context) (Stamp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return Stamp{}, err
	}
	e := doc[f.namespace]

	stamp := Stamp{Name: e.VersionName}
	if e.VersionCode != "" {
		code, err := strconv.Atoi(e.VersionCode)
		if err != nil {
			return Stamp{}, fmt.Errorf("parse %s: %w", KeyVersionCode, err)
		}
		stamp.Code = code
	}
	return stamp, nil
}

func (f *File) SaveStamp(ctx context.Context, stamp Stamp) error {
	return f.update(func(e *fileEntries) {
		e.VersionName = stamp.Name
		e.VersionCode = strconv.Itoa(stamp.Code)
	})
}

func (f *File) Close() error { return nil }

func (f *File) update(mutate func(*fileEntries)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}
	e := doc[f.namespace]
	mutate(&e)
	doc[f.namespace] = e
	return f.write(doc)
}

// read loads the document; a missing file is an empty cache.
func (f *File) read() (fileDoc, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return fileDoc{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache file: %w", err)
	}

	doc := fileDoc{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse cache file: %w", err)
	}
	if doc == nil {
		doc = fileDoc{}
	}
	return doc, nil
}

func (f *File) write(doc fileDoc) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode cache file: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".routerx-cache-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}
