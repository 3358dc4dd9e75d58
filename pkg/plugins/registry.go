package plugins

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Entry describes an activated plugin
type Entry struct {
	Path     string
	Manifest *Manifest
	LoadedAt time.Time

	module Module
}

// Registry records plugins that were activated successfully
type Registry struct {
	entries map[string]*Entry
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
	}
}

// add records an activated plugin. Re-activating a path releases the module
// it replaces.
func (r *Registry) add(path string, manifest *Manifest, module Module) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, exists := r.entries[path]; exists {
		closeModule(prev.module)
	}

	r.entries[path] = &Entry{
		Path:     path,
		Manifest: manifest,
		LoadedAt: time.Now(),
		module:   module,
	}
}

// Get retrieves an activated plugin by path
func (r *Registry) Get(path string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[path]
	if !exists {
		return nil, fmt.Errorf("plugin not found: %s", path)
	}

	return entry, nil
}

// Has checks if a plugin path was activated
func (r *Registry) Has(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.entries[path]
	return exists
}

// List returns all activated plugins sorted by path
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		result = append(result, entry)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Path < result[j].Path
	})

	return result
}

// Count returns the number of activated plugins
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

// Close releases every plugin module and empties the registry
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for path, entry := range r.entries {
		if entry.module == nil {
			continue
		}
		if err := entry.module.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close plugin %s: %w", path, err))
		}
	}
	r.entries = make(map[string]*Entry)

	return errors.Join(errs...)
}
