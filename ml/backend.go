// backend.go - Backend-Interface und Registrierung fuer Tensor-Backends
// Dieses Modul definiert das Backend-Interface und die Backend-Factory-Funktionen.
package ml

import (
	"fmt"
	"slices"
	"strings"
)

// Backend represents a tensor execution backend.
type Backend interface {
	// Close frees all memory associated with this backend
	Close()

	Name() string
	NewContext() Context
}

// BackendParams controls how the backend executes operations
type BackendParams struct {
	// Name selects a registered backend. Empty selects "cpu".
	Name string

	// NumThreads bounds the number of concurrently executing kernel partitions
	NumThreads int
}

var backends = make(map[string]func(BackendParams) (Backend, error))

// RegisterBackend registers a backend factory function.
func RegisterBackend(name string, f func(BackendParams) (Backend, error)) {
	if _, ok := backends[name]; ok {
		panic("backend: backend already registered")
	}

	backends[name] = f
}

// NewBackend creates a new backend instance.
func NewBackend(params BackendParams) (Backend, error) {
	name := params.Name
	if name == "" {
		name = "cpu"
	}

	if backend, ok := backends[name]; ok {
		return backend(params)
	}

	var names []string
	for k := range backends {
		names = append(names, k)
	}
	slices.Sort(names)

	return nil, fmt.Errorf("unsupported backend %q (registered: %s)", name, strings.Join(names, ", "))
}
