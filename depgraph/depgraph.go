// Package depgraph is the Dependency Graph (C3): a registry of typed
// factories with declared lifetimes, a setup-time planner that
// topologically sorts an endpoint's transitive dependencies and detects
// cycles, and a per-request Resolver that honors resource-producing
// factories with guaranteed LIFO release.
package depgraph

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Lifetime controls how a node's value is cached across resolutions.
type Lifetime int

const (
	// Singleton instantiates once per Graph and releases at Shutdown.
	Singleton Lifetime = iota
	// Reused memoizes once per Resolver (the process-wide root resolver
	// for non-scoped endpoints, or the per-request scope otherwise).
	Reused
	// Transient constructs a fresh value on every resolution.
	Transient
	// Scoped behaves like Reused but additionally forces any endpoint
	// that depends on it to open a per-request scope even when no
	// resource-like node is present (§9 Open Questions).
	Scoped
)

// ExitFunc releases a resource produced by a generator-style factory.
// An error is logged by the owning Resolver, never propagated, per the
// "resource exits that raise are logged and suppressed" policy (§7).
type ExitFunc func() error

// Factory is the type-erased producer stored on a Node. release is nil
// for non-resource nodes.
type Factory func(ctx context.Context, r *Resolver) (value any, release ExitFunc, err error)

// Node is one registered dependency (§3 Dependency Node).
type Node struct {
	Key        reflect.Type
	Factory    Factory
	Lifetime   Lifetime
	Deps       []reflect.Type
	IsResource bool

	factoryID uintptr // identity check for duplicate-registration detection
}

// Graph is the process-wide, frozen-after-setup dependency registry.
type Graph struct {
	mu    sync.RWMutex
	nodes map[reflect.Type]*Node

	singletonMu    sync.Mutex
	singletonVal   map[reflect.Type]any
	singletonDone  map[reflect.Type]bool
	singletonOrder []reflect.Type

	root *Resolver
	pool *semaphore.Weighted // bounds synchronous resource factories (§5)
}

// NewGraph returns an empty Graph. poolSize bounds how many synchronous
// resource factories may run concurrently (0 disables the limit).
func NewGraph(poolSize int64) *Graph {
	g := &Graph{
		nodes:         map[reflect.Type]*Node{},
		singletonVal:  map[reflect.Type]any{},
		singletonDone: map[reflect.Type]bool{},
	}
	if poolSize > 0 {
		g.pool = semaphore.NewWeighted(poolSize)
	}
	g.root = &Resolver{g: g, cache: map[reflect.Type]any{}}
	return g
}

// Root returns the process-wide resolver used for non-scoped endpoints.
func (g *Graph) Root() *Resolver { return g.root }

func provide(g *Graph, key reflect.Type, lifetime Lifetime, isResource bool, factory Factory, id uintptr, deps []reflect.Type) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.nodes[key]; ok {
		if existing.factoryID != id {
			return fmt.Errorf("depgraph: duplicate registration for %s with a different factory", key)
		}
		return nil
	}
	g.nodes[key] = &Node{
		Key: key, Factory: factory, Lifetime: lifetime, Deps: deps,
		IsResource: isResource, factoryID: id,
	}
	if lifetime == Singleton {
		g.singletonOrder = append(g.singletonOrder, key)
	}
	return nil
}

// Provide registers a plain (non-resource) factory for T.
func Provide[T any](g *Graph, lifetime Lifetime, factory func(ctx context.Context, r *Resolver) (T, error), deps ...reflect.Type) error {
	key := typeOf[T]()
	wrapped := Factory(func(ctx context.Context, r *Resolver) (any, ExitFunc, error) {
		v, err := factory(ctx, r)
		return v, nil, err
	})
	return provide(g, key, lifetime, false, wrapped, reflect.ValueOf(factory).Pointer(), deps)
}

// ProvideResource registers a generator-style factory for T: it returns
// a value plus a release callback invoked on scope unwind, in reverse
// dependency order (§4.3).
func ProvideResource[T any](g *Graph, lifetime Lifetime, factory func(ctx context.Context, r *Resolver) (T, ExitFunc, error), deps ...reflect.Type) error {
	key := typeOf[T]()
	wrapped := Factory(func(ctx context.Context, r *Resolver) (any, ExitFunc, error) {
		if r.g.pool != nil {
			if err := r.g.pool.Acquire(ctx, 1); err != nil {
				var zero T
				return zero, nil, err
			}
			defer r.g.pool.Release(1)
		}
		return factory(ctx, r)
	})
	return provide(g, key, lifetime, true, wrapped, reflect.ValueOf(factory).Pointer(), deps)
}

func (g *Graph) lookup(t reflect.Type) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[t]
	return n, ok
}

// Has reports whether t is registered as a node, letting paramspec
// classify a parameter as a Dependency (§4.2 rule 3) without importing
// depgraph's internals.
func (g *Graph) Has(t reflect.Type) bool {
	_, ok := g.lookup(t)
	return ok
}

// Start eagerly instantiates every singleton node in registration order,
// per "singleton nodes instantiate at application start" (§3 Lifecycle).
func (g *Graph) Start(ctx context.Context) error {
	for _, key := range g.singletonOrder {
		if _, err := g.root.Resolve(ctx, key); err != nil {
			return fmt.Errorf("depgraph: singleton %s failed to start: %w", key, err)
		}
	}
	return nil
}

// Shutdown releases every singleton resource in reverse instantiation
// order.
func (g *Graph) Shutdown(onExitErr func(error)) {
	g.root.Close(onExitErr)
}

func typeOf[T any]() reflect.Type {
	var zero T
	t := reflect.TypeOf(&zero).Elem()
	return t
}

// Get resolves T from r, a thin generic convenience over Resolve used by
// factory bodies to pull their own dependencies (the Go-idiomatic
// recasting of "factories declare their own dependencies via their own
// parameter list", §4.3).
func Get[T any](ctx context.Context, r *Resolver) (T, error) {
	var zero T
	v, err := r.Resolve(ctx, typeOf[T]())
	if err != nil {
		return zero, err
	}
	return v.Interface().(T), nil
}
