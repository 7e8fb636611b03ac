package broker

import (
	"fmt"
	"sort"
	"sync"

	"github.com/miladsoleymani/mqttengine/core"
)

// Factory creates a Connection from the given Config.
type Factory func(cfg Config) (core.Connection, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register adds a named connection factory. Plugins call this from init().
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = factory
}

// Create opens a connection by name using the registered factory.
func Create(name string, cfg Config) (core.Connection, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("mqttengine: unknown broker %q", name)
	}
	return f(cfg)
}

// Names returns the registered broker names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
