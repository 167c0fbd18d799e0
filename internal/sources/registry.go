package sources

import (
	"fmt"
	"sync"
)

var (
	registry = make(map[string]Source)
	mu       sync.RWMutex
)

// Register adds a source adapter to the registry.
func Register(src Source) {
	mu.Lock()
	defer mu.Unlock()
	registry[src.Name()] = src
}

// Get retrieves a source adapter by name.
func Get(name string) (Source, error) {
	mu.RLock()
	defer mu.RUnlock()

	src, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown source: %s", name)
	}
	return src, nil
}

// List returns all registered source adapter names.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// All returns all registered source adapters.
func All() []Source {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]Source, 0, len(registry))
	for _, src := range registry {
		out = append(out, src)
	}
	return out
}
