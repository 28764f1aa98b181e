package backend

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/smoothlife/gpucore"
	"github.com/gogpu/smoothlife/internal/logging"
)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	backends   = make(map[string]Factory)
	// Priority order for backend selection (first available wins).
	// Native > CPU (CPU is the fallback).
	backendPriority = []string{BackendNative, BackendCPU}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the registered backend names in sorted order.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

func factory(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := backends[name]
	return f, ok
}

// Open opens the backend registered under name.
func Open(name string) (gpucore.GPUAdapter, error) {
	f, ok := factory(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not registered", ErrBackendNotAvailable, name)
	}
	a, err := f()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBackendNotAvailable, name, err)
	}
	return a, nil
}

// OpenDefault opens the best available backend based on priority, falling
// back to any other registered backend. Backends that fail to open are
// logged and skipped.
func OpenDefault() (gpucore.GPUAdapter, error) {
	order := slices.Clone(backendPriority)
	for _, name := range Available() {
		if !slices.Contains(order, name) {
			order = append(order, name)
		}
	}

	for _, name := range order {
		f, ok := factory(name)
		if !ok {
			continue
		}
		a, err := f()
		if err != nil {
			logging.Logger().Warn("backend: unavailable, trying next", "backend", name, "err", err)
			continue
		}
		logging.Logger().Debug("backend: selected", "backend", name, "adapter", a.Name())
		return a, nil
	}
	return nil, ErrBackendNotAvailable
}
