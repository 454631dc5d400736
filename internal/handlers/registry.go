// Package handlers defines the versioned action registry the gateway
// dispatches to, plus the payload decoding helpers shared by the handler
// namespaces. The concrete actions live in the v1 and v2 subpackages, which
// register themselves into a Registry.
package handlers

import (
	"context"
	"sort"
	"sync"
)

// ActionFunc is the business-logic contract: it receives the request's data
// payload and returns the value to serialise into the response, or an error
// whose message becomes the caller-visible error string.
type ActionFunc func(ctx context.Context, data map[string]any) (any, error)

// Registry maps (version, action) pairs to handlers.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]map[string]ActionFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]map[string]ActionFunc)}
}

// Register adds a handler under the given version namespace. Registering the
// same pair twice replaces the previous handler.
func (r *Registry) Register(version, action string, fn ActionFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	namespace, ok := r.actions[version]
	if !ok {
		namespace = make(map[string]ActionFunc)
		r.actions[version] = namespace
	}
	namespace[action] = fn
}

// Lookup resolves a handler for the pair, reporting whether one exists.
func (r *Registry) Lookup(version, action string) (ActionFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.actions[version][action]
	return fn, ok
}

// Actions returns the sorted action names registered under a version. Used
// for startup logging.
func (r *Registry) Actions(version string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.actions[version]))
	for name := range r.actions[version] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Versions returns the sorted version namespaces with at least one action.
func (r *Registry) Versions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := make([]string, 0, len(r.actions))
	for version := range r.actions {
		versions = append(versions, version)
	}
	sort.Strings(versions)
	return versions
}
