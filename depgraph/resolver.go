package depgraph

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// Resolver resolves nodes against a Graph, caching Reused/Scoped values
// for its own lifetime and unwinding any resources it created, in
// reverse order, on Close. The process-wide root Resolver (Graph.Root)
// serves non-scoped endpoints; a fresh child Resolver is opened per
// request for any endpoint the Plan marked scoped (§4.3 Resolution at
// request).
type Resolver struct {
	g      *Graph
	parent *Resolver

	mu    sync.Mutex
	cache map[reflect.Type]any

	exitMu    sync.Mutex
	exitStack []ExitFunc
}

// NewChildScope opens a fresh per-request resolver. Singleton lookups
// still reach into the Graph's single shared instance; Reused/Scoped/
// Transient resources are local to this scope and released on Close.
func (r *Resolver) NewChildScope() *Resolver {
	return &Resolver{g: r.g, parent: r, cache: map[reflect.Type]any{}}
}

// OnExit registers an additional release callback run (LIFO, alongside
// resource exits) when this resolver's scope unwinds. This is how a
// handler injected with the scope handle registers ad-hoc cleanup
// (§4.3: "a user may register additional exit callbacks").
func (r *Resolver) OnExit(fn ExitFunc) {
	r.exitMu.Lock()
	r.exitStack = append(r.exitStack, fn)
	r.exitMu.Unlock()
}

func (r *Resolver) pushExit(fn ExitFunc) {
	if fn == nil {
		return
	}
	r.OnExit(fn)
}

// Resolve produces a value for t, honoring its registered Lifetime.
// Cancellation propagates: a canceled ctx aborts construction of any
// factory that checks it, and whatever partial resources were already
// entered are still unwound by Close (§5 Cancellation and timeouts).
func (r *Resolver) Resolve(ctx context.Context, t reflect.Type) (reflect.Value, error) {
	node, ok := r.g.lookup(t)
	if !ok {
		return reflect.Value{}, fmt.Errorf("depgraph: no factory registered for %s", t)
	}
	switch node.Lifetime {
	case Singleton:
		return r.g.resolveSingleton(ctx, node)
	case Reused, Scoped:
		return r.resolveMemoized(ctx, node)
	default:
		return r.resolveTransient(ctx, node)
	}
}

func (r *Resolver) resolveMemoized(ctx context.Context, node *Node) (reflect.Value, error) {
	r.mu.Lock()
	if v, ok := r.cache[node.Key]; ok {
		r.mu.Unlock()
		return reflect.ValueOf(v), nil
	}
	r.mu.Unlock()

	// The factory call itself is not made under the cache lock: §5
	// requires avoiding a shared lock across user-code suspension
	// points (the factory may block on I/O).
	val, release, err := node.Factory(ctx, r)
	if err != nil {
		return reflect.Value{}, err
	}

	r.mu.Lock()
	if existing, ok := r.cache[node.Key]; ok {
		r.mu.Unlock()
		if release != nil {
			_ = release()
		}
		return reflect.ValueOf(existing), nil
	}
	r.cache[node.Key] = val
	r.mu.Unlock()
	r.pushExit(release)
	return reflect.ValueOf(val), nil
}

func (r *Resolver) resolveTransient(ctx context.Context, node *Node) (reflect.Value, error) {
	val, release, err := node.Factory(ctx, r)
	if err != nil {
		return reflect.Value{}, err
	}
	r.pushExit(release)
	return reflect.ValueOf(val), nil
}

func (g *Graph) resolveSingleton(ctx context.Context, node *Node) (reflect.Value, error) {
	g.singletonMu.Lock()
	if v, ok := g.singletonVal[node.Key]; ok {
		g.singletonMu.Unlock()
		return reflect.ValueOf(v), nil
	}
	g.singletonMu.Unlock()

	val, release, err := node.Factory(ctx, g.root)
	if err != nil {
		return reflect.Value{}, err
	}

	g.singletonMu.Lock()
	if existing, ok := g.singletonVal[node.Key]; ok {
		g.singletonMu.Unlock()
		if release != nil {
			_ = release()
		}
		return reflect.ValueOf(existing), nil
	}
	g.singletonVal[node.Key] = val
	g.singletonDone[node.Key] = true
	g.singletonMu.Unlock()
	g.root.pushExit(release)
	return reflect.ValueOf(val), nil
}

// Close unwinds every resource this resolver created, in strict LIFO
// order, on all exit paths. Errors are reported to onErr (may be nil)
// rather than returned: "the original in-flight response takes
// precedence" (§7 Propagation policy).
func (r *Resolver) Close(onErr func(error)) {
	r.exitMu.Lock()
	stack := r.exitStack
	r.exitStack = nil
	r.exitMu.Unlock()

	for i := len(stack) - 1; i >= 0; i-- {
		if err := stack[i](); err != nil && onErr != nil {
			onErr(err)
		}
	}
}
