package kite

import (
	"context"
	"net/http"
	"reflect"

	"github.com/kitehttp/kite/depgraph"
	"github.com/kitehttp/kite/endpointrt"
	"github.com/kitehttp/kite/paramspec"
	"github.com/kitehttp/kite/problem"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

func init() {
	// Framework-primitive types a handler may declare directly on its In
	// struct without a role tag, bound from the live request rather than
	// decoded or resolved through the dependency graph (§4.2 rule 4).
	paramspec.PrimitiveTypes[reflect.TypeOf((*http.Request)(nil))] = true
	paramspec.PrimitiveTypes[reflect.TypeOf((*http.ResponseWriter)(nil)).Elem()] = true
	paramspec.PrimitiveTypes[reflect.TypeOf((*context.Context)(nil)).Elem()] = true
	paramspec.PrimitiveTypes[reflect.TypeOf((*depgraph.Resolver)(nil))] = true
}

// Graph returns the router's dependency graph, lazily creating an
// unbounded one on first use so Provide/ProvideResource calls against
// it can happen before Endpoint registration.
func (r *Router) Graph() *depgraph.Graph {
	root := r.effectiveRoot()
	if root.graph == nil {
		root.graph = depgraph.NewGraph(0)
	}
	return root.graph
}

// SetGraph installs a pre-built dependency graph, letting callers
// configure a bounded resource pool via depgraph.NewGraph before any
// endpoint is registered.
func (r *Router) SetGraph(g *depgraph.Graph) {
	r.effectiveRoot().graph = g
}

// ProblemMapper returns the router's C6 Problem Mapper, lazily building
// the default taxonomy-backed one on first use.
func (r *Router) ProblemMapper() *problem.Mapper {
	root := r.effectiveRoot()
	if root.mapper == nil {
		root.mapper = problem.NewMapper()
	}
	return root.mapper
}

// SetProblemMapper installs a pre-built Problem Mapper, letting callers
// register additional exact-type and status solvers before any endpoint
// is bound.
func (r *Router) SetProblemMapper(m *problem.Mapper) {
	r.effectiveRoot().mapper = m
}

// EndpointAuth binds an endpoint's published auth_scheme (§6) to the
// precondition plugin that enforces it.
type EndpointAuth struct {
	Scheme AuthScheme
	Verify Verify
}

// EndpointOptions configures one Endpoint registration beyond the
// defaults Endpoint derives from the router (status code, per-variant
// status for union responses, body schema, size limits, auth).
type EndpointOptions struct {
	StatusCode         int
	VariantStatus      map[reflect.Type]int
	BodySchema         *jsonschema.Schema
	MaxBodyBytes       int64
	MaxMultipartMemory int64

	// Auth, if set, wraps the generated handler in RequireAuth so the
	// endpoint's declared scheme is enforced before C2-C6 run.
	Auth *EndpointAuth
}

// Endpoint registers fn — a func(context.Context, In) (Out, error) — at
// method+path, running every request through the full C2-C6 pipeline:
// signature parsing, dependency resolution, body/form/param binding,
// handler invocation, response encoding, and problem-mapped errors.
// It panics at startup if fn's shape or parameter tags are invalid,
// matching the router's other registration methods' fail-fast posture.
func (r *Router) Endpoint(method, path string, fn any, opts ...EndpointOptions) {
	var cfg EndpointOptions
	if len(opts) > 0 {
		cfg = opts[0]
	}
	eopts := endpointrt.Options{
		Graph:              r.Graph(),
		Mapper:             r.ProblemMapper(),
		StatusCode:         cfg.StatusCode,
		VariantStatus:      cfg.VariantStatus,
		MaxBodyBytes:       cfg.MaxBodyBytes,
		MaxMultipartMemory: cfg.MaxMultipartMemory,
		BodySchema:         cfg.BodySchema,
		OnExitError: func(err error) {
			r.Logger().Error("endpoint resource release failed", "error", err)
		},
	}

	h, err := endpointrt.Bind(method, r.fullPath(path), fn, eopts)
	if err != nil {
		panic(err)
	}
	handler := Handler(func(c *Ctx) error {
		h.ServeHTTP(c.Writer(), c.Request())
		return nil
	})
	if cfg.Auth != nil {
		handler = RequireAuth(cfg.Auth.Scheme, cfg.Auth.Verify)(handler)
	}
	r.bind(method, path, handler)
}
