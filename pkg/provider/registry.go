package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Factory constructs a Provider from a Config. Adapters register one
// factory per backend name in their init().
type Factory func(cfg Config) (Provider, error)

// ErrUnknownProvider is returned by New for an unregistered name.
var ErrUnknownProvider = fmt.Errorf("provider: unknown provider")

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a factory available under name. Later registrations
// for the same name win, which lets tests swap in fakes.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = f
}

// New constructs the provider registered under name.
func New(name string, cfg Config) (Provider, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return f(cfg)
}

// List returns the registered provider names, sorted.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset removes all registered factories. Test helper.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	factories = make(map[string]Factory)
}
