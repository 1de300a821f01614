// problem_routing.go
package kite

import (
	"bufio"
	"net"
	"net/http"
	"strings"

	"github.com/kitehttp/kite/problem"
)

// problemAwareWriter upgrades http.ServeMux's built-in 404/405 responses
// (plain "text/plain" bodies from http.Error) into RFC 9457 problem+json
// documents, without touching a handler's own intentional 404/405 (those
// already set their own Content-Type before the status is written).
type problemAwareWriter struct {
	http.ResponseWriter
	req      *http.Request
	replaced bool // set once WriteHeader has substituted a problem document
}

func (w *problemAwareWriter) WriteHeader(status int) {
	if !isMuxDefaultBody(w.ResponseWriter.Header()) {
		w.ResponseWriter.WriteHeader(status)
		return
	}
	switch status {
	case http.StatusNotFound:
		w.replaced = true
		d := problem.NotFound("no route matches " + w.req.URL.Path).ToDetail(w.req.URL.Path)
		w.ResponseWriter.Header().Del("X-Content-Type-Options")
		_ = problem.Write(w.ResponseWriter, d)
	case http.StatusMethodNotAllowed:
		w.replaced = true
		allow := w.ResponseWriter.Header().Get("Allow")
		var allows []string
		if allow != "" {
			allows = strings.Split(allow, ", ")
		}
		w.ResponseWriter.Header().Del("X-Content-Type-Options")
		d := problem.MethodNotAllowed(allows).ToDetail(w.req.URL.Path)
		_ = problem.Write(w.ResponseWriter, d)
	default:
		w.ResponseWriter.WriteHeader(status)
	}
}

// Write discards the plain-text body http.Error already queued once
// WriteHeader has substituted a problem document for it; a legitimate
// handler's own body is always passed through untouched.
func (w *problemAwareWriter) Write(p []byte) (int, error) {
	if w.replaced {
		return len(p), nil
	}
	return w.ResponseWriter.Write(p)
}

func isMuxDefaultBody(h http.Header) bool {
	ct := h.Get("Content-Type")
	return ct == "" || ct == "text/plain; charset=utf-8"
}

// Unwrap lets http.ResponseController see through this wrapper to the
// real ResponseWriter's optional interfaces (Go 1.20+ rw-unwrapping).
func (w *problemAwareWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Flush, Hijack and CloseNotify forward to the underlying ResponseWriter
// when it supports them, since embedding http.ResponseWriter only
// promotes its three interface methods, not a concrete writer's extra
// capabilities — needed for streaming/SSE and websocket upgrades.
func (w *problemAwareWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *problemAwareWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

func (w *problemAwareWriter) CloseNotify() <-chan bool {
	if cn, ok := w.ResponseWriter.(http.CloseNotifier); ok { //nolint:staticcheck
		return cn.CloseNotify()
	}
	ch := make(chan bool)
	return ch
}
