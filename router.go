// router.go
package kite

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/kitehttp/kite/depgraph"
	"github.com/kitehttp/kite/problem"
)

// Handler is the core request handler shape: a Ctx in, an error out.
// Returning a non-nil error routes the request through the active
// ErrorHandler instead of writing a response directly.
type Handler func(c *Ctx) error

// Middleware wraps a Handler to add cross-cutting behavior. Composition is
// a left-fold: the first Middleware passed to Use/With runs outermost.
type Middleware func(Handler) Handler

// StdMiddleware is the familiar net/http middleware shape, bridged in via
// Compat.Use so existing http.Handler-based middleware keeps working.
type StdMiddleware func(http.Handler) http.Handler

// ErrorHandlerFunc turns a Handler error into a written response.
type ErrorHandlerFunc func(c *Ctx, err error)

// PanicError wraps a recovered panic value together with the stack trace
// captured at the moment of recovery.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Router is a thin routing layer over http.ServeMux: method-prefixed
// patterns for typed handlers, global net/http compatibility through
// Compat, and scoped middleware chains via Prefix/With.
type Router struct {
	mux    *http.ServeMux
	base   string
	chain  []Middleware
	parent *Router

	// Shared, root-owned state. root points at the router that owns the
	// mux and the std-middleware chain; every Prefix/With descendant
	// reads through root so a single request only ever enters the mux
	// once, regardless of how many sub-routers were used to register it.
	root *Router

	stdChain []StdMiddleware
	errorFn  ErrorHandlerFunc
	log      *slog.Logger

	// graph and mapper back Endpoint's C3/C6 wiring; both are root-owned
	// and lazily built by Graph/ProblemMapper on first use.
	graph  *depgraph.Graph
	mapper *problem.Mapper

	// Compat exposes a net/http-flavoured API over the same mux.
	Compat *httpRouter
}

// NewRouter constructs a Router with conservative defaults: a fresh
// http.ServeMux, a 500-with-status-text default error handler, and
// slog.Default() for logging until SetLogger overrides it.
func NewRouter() *Router {
	r := &Router{
		mux: http.NewServeMux(),
		log: slog.Default(),
	}
	r.root = r
	r.errorFn = defaultErrorHandler
	r.Compat = &httpRouter{r: r}
	return r
}

func defaultErrorHandler(c *Ctx, err error) {
	var pe *PanicError
	status := http.StatusInternalServerError
	c.Writer().WriteHeader(status)
	if errors.As(err, &pe) {
		_, _ = io.WriteString(c.Writer(), http.StatusText(status))
		return
	}
	_, _ = io.WriteString(c.Writer(), http.StatusText(status))
}

// Logger returns the router's logger.
func (r *Router) Logger() *slog.Logger {
	if l := r.effectiveRoot().log; l != nil {
		return l
	}
	return slog.Default()
}

// SetLogger replaces the router's logger. A nil logger leaves it unchanged.
func (r *Router) SetLogger(l *slog.Logger) {
	if l != nil {
		r.effectiveRoot().log = l
	}
}

// ErrorHandler installs a custom handler for Handler-returned errors and
// recovered panics (delivered as *PanicError).
func (r *Router) ErrorHandler(fn ErrorHandlerFunc) {
	if fn != nil {
		r.effectiveRoot().errorFn = fn
	}
}

// Use appends global middleware to this router's chain. Middleware added
// to a Prefix/With descendant never affects its ancestors.
func (r *Router) Use(mw ...Middleware) *Router {
	r.chain = append(r.chain, mw...)
	return r
}

// Prefix returns a child Router whose routes are registered under
// base+path, inheriting (a snapshot of) the current middleware chain.
func (r *Router) Prefix(path string) *Router {
	child := &Router{
		mux:    r.mux,
		base:   r.fullPath(path),
		chain:  append([]Middleware(nil), r.chain...),
		parent: r,
		root:   r.root,
		log:    r.log,
	}
	child.Compat = &httpRouter{r: child}
	return child
}

// With returns a sibling Router at the same base path with additional
// scoped middleware appended, leaving the receiver untouched.
func (r *Router) With(mw ...Middleware) *Router {
	child := &Router{
		mux:    r.mux,
		base:   r.base,
		chain:  append(append([]Middleware(nil), r.chain...), mw...),
		parent: r,
		root:   r.root,
		log:    r.log,
	}
	child.Compat = &httpRouter{r: child}
	return child
}

func (r *Router) fullPath(p string) string {
	return joinPath(r.base, p)
}

// cleanLeading ensures a path starts with a single leading slash.
func cleanLeading(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		return "/" + p
	}
	return p
}

// joinPath concatenates a base and a sub-path, collapsing duplicate
// slashes and stripping a trailing slash unless the result is the root.
func joinPath(base, p string) string {
	b := cleanLeading(base)
	s := cleanLeading(p)

	if s == "/" {
		if b == "/" {
			return "/"
		}
		return strings.TrimRight(b, "/")
	}

	joined := strings.TrimRight(b, "/") + "/" + strings.TrimLeft(s, "/")
	joined = strings.TrimRight(joined, "/")
	if joined == "" {
		return "/"
	}
	return joined
}

func (r *Router) compose(h Handler) Handler {
	composed := h
	for i := len(r.chain) - 1; i >= 0; i-- {
		composed = r.chain[i](composed)
	}
	return composed
}

func (r *Router) effectiveRoot() *Router {
	if r.root == nil {
		return r
	}
	return r.root
}

// bind registers a typed Handler at method+path, wrapping it with the
// router's middleware chain and the baseline panic/error handling.
func (r *Router) bind(method, path string, h Handler) {
	composed := r.compose(h)
	root := r.effectiveRoot()
	pattern := method + " " + r.fullPath(path)

	r.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		c := newCtx(w, req, root)
		root.invoke(c, composed)
	}))
}

func (r *Router) invoke(c *Ctx, h Handler) {
	fn := r.errorFn
	if fn == nil {
		fn = defaultErrorHandler
	}
	defer func() {
		if rec := recover(); rec != nil {
			fn(c, &PanicError{Value: rec, Stack: debug.Stack()})
		}
	}()
	if err := h(c); err != nil {
		fn(c, err)
	}
}

// Get registers a GET handler.
func (r *Router) Get(path string, h Handler) { r.bind(http.MethodGet, path, h) }

// Post registers a POST handler.
func (r *Router) Post(path string, h Handler) { r.bind(http.MethodPost, path, h) }

// Put registers a PUT handler.
func (r *Router) Put(path string, h Handler) { r.bind(http.MethodPut, path, h) }

// Patch registers a PATCH handler.
func (r *Router) Patch(path string, h Handler) { r.bind(http.MethodPatch, path, h) }

// Delete registers a DELETE handler.
func (r *Router) Delete(path string, h Handler) { r.bind(http.MethodDelete, path, h) }

// Head registers a HEAD handler.
func (r *Router) Head(path string, h Handler) { r.bind(http.MethodHead, path, h) }

// Options registers an OPTIONS handler.
func (r *Router) Options(path string, h Handler) { r.bind(http.MethodOptions, path, h) }

// Handle registers a handler for an arbitrary method, including the
// synthetic "UPGRADE" method used for WebSocket endpoints.
func (r *Router) Handle(method, path string, h Handler) { r.bind(method, path, h) }

// Static mounts an http.FileSystem under prefix. Requests to the subtree
// root without a trailing slash are redirected (301) by http.ServeMux's
// built-in subtree-redirect behavior.
func (r *Router) Static(prefix string, fsys http.FileSystem) {
	full := r.fullPath(prefix)
	stripped := full
	if stripped == "/" {
		stripped = ""
	}
	fileServer := http.StripPrefix(stripped, http.FileServer(fsys))

	composed := r.compose(func(c *Ctx) error {
		fileServer.ServeHTTP(c.Writer(), c.Request())
		return nil
	})
	root := r.effectiveRoot()
	pattern := cleanLeading(full)
	if pattern != "/" {
		pattern += "/"
	}
	r.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		c := newCtx(w, req, root)
		root.invoke(c, composed)
	}))
}

// ServeHTTP implements http.Handler, running the root's std-middleware
// chain (registered via Compat.Use) around the underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	root := r.effectiveRoot()
	var h http.Handler = root.mux
	for i := len(root.stdChain) - 1; i >= 0; i-- {
		h = root.stdChain[i](h)
	}
	pw := &problemAwareWriter{ResponseWriter: w, req: req}
	h.ServeHTTP(pw, req)
}

// httpRouter is the net/http-compatibility facade reachable via
// Router.Compat: plain http.Handler registration, a std-middleware
// chain, and grouping without the typed Handler/Ctx contract.
type httpRouter struct {
	r    *Router
	base string
}

func (hr *httpRouter) fullPath(p string) string {
	if hr.base != "" {
		return joinPath(hr.base, p)
	}
	return hr.r.fullPath(p)
}

// Handle mounts a plain http.Handler at pattern for any HTTP method.
func (hr *httpRouter) Handle(pattern string, h http.Handler) {
	hr.r.mux.Handle(hr.fullPath(pattern), h)
}

// HandleMethod mounts a plain http.Handler for one specific method.
func (hr *httpRouter) HandleMethod(method, pattern string, h http.Handler) {
	hr.r.mux.Handle(method+" "+hr.fullPath(pattern), h)
}

// Mount is Handle under another name, used for sub-application mounts.
func (hr *httpRouter) Mount(pattern string, h http.Handler) {
	hr.Handle(pattern, h)
}

// Use appends standard net/http middleware around the whole router,
// including typed Handler-based routes.
func (hr *httpRouter) Use(mw ...StdMiddleware) {
	root := hr.r.effectiveRoot()
	root.stdChain = append(root.stdChain, mw...)
}

// Group scopes a block of Compat registrations under a path prefix.
func (hr *httpRouter) Group(prefix string, fn func(g *httpRouter)) {
	fn(&httpRouter{r: hr.r, base: hr.fullPath(prefix)})
}
