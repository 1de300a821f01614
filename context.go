// context.go
package kite

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"time"
	"unicode/utf8"
)

// Ctx carries the per-request state threaded through a Handler chain: the
// underlying http.ResponseWriter/Request pair, a pending status code, and
// accessors for the common extraction sources (path, query, header,
// cookie, form, body).
type Ctx struct {
	w   http.ResponseWriter
	r   *http.Request
	rc  *http.ResponseController
	rtr *Router

	status      int
	wroteHeader bool

	// scope, when non-nil, is the per-request dependency resolver opened
	// by the endpoint runtime for a scoped endpoint.
	scope any
}

func newCtx(w http.ResponseWriter, r *http.Request, rtr *Router) *Ctx {
	return &Ctx{
		w:      w,
		r:      r,
		rc:     http.NewResponseController(w),
		rtr:    rtr,
		status: http.StatusOK,
	}
}

// Request returns the underlying *http.Request.
func (c *Ctx) Request() *http.Request { return c.r }

// Writer returns the underlying http.ResponseWriter.
func (c *Ctx) Writer() http.ResponseWriter { return c.w }

// Response is an alias for Writer, used where the net/http vocabulary
// ("response") reads more naturally than "writer".
func (c *Ctx) Response() http.ResponseWriter { return c.w }

// Header returns the response header map.
func (c *Ctx) Header() http.Header { return c.w.Header() }

// Context returns the request's context.Context.
func (c *Ctx) Context() context.Context { return c.r.Context() }

// Logger returns the owning router's logger, or slog.Default() if Ctx was
// constructed without one.
func (c *Ctx) Logger() *slog.Logger {
	if c.rtr != nil {
		return c.rtr.Logger()
	}
	return slog.Default()
}

// Status sets the pending status code for the next write. It has no
// effect once the header has already been flushed.
func (c *Ctx) Status(code int) *Ctx {
	if !c.wroteHeader {
		c.status = code
	}
	return c
}

// StatusCode returns the pending (or already written) status code.
func (c *Ctx) StatusCode() int { return c.status }

func (c *Ctx) writeHeaderOnce() {
	if !c.wroteHeader {
		c.w.WriteHeader(c.status)
		c.wroteHeader = true
	}
}

// Param returns a matched path placeholder's value.
func (c *Ctx) Param(name string) string { return c.r.PathValue(name) }

// Query returns the first value of a query parameter, or "" if absent or
// the request has no URL.
func (c *Ctx) Query(name string) string {
	if c.r.URL == nil {
		return ""
	}
	return c.r.URL.Query().Get(name)
}

// QueryValues returns the full parsed query string, never nil.
func (c *Ctx) QueryValues() url.Values {
	if c.r.URL == nil {
		return url.Values{}
	}
	return c.r.URL.Query()
}

// Form parses (if needed) and returns the request's form values, merging
// URL query values and a urlencoded/multipart body per net/http rules.
func (c *Ctx) Form() (url.Values, error) {
	if err := c.r.ParseForm(); err != nil {
		return nil, err
	}
	return c.r.Form, nil
}

// MultipartForm parses a multipart/form-data body up to maxMemory bytes
// kept in memory (the remainder spills to temp files) and returns a
// cleanup func that removes any temp files created during parsing.
func (c *Ctx) MultipartForm(maxMemory int64) (*multipart.Form, func(), error) {
	if err := c.r.ParseMultipartForm(maxMemory); err != nil {
		return nil, func() {}, err
	}
	form := c.r.MultipartForm
	cleanup := func() {
		if form != nil {
			_ = form.RemoveAll()
		}
	}
	return form, cleanup, nil
}

// Cookie returns a named request cookie.
func (c *Ctx) Cookie(name string) (*http.Cookie, error) { return c.r.Cookie(name) }

// SetCookie appends a Set-Cookie response header.
func (c *Ctx) SetCookie(ck *http.Cookie) { http.SetCookie(c.w, ck) }

// Bind decodes a JSON request body into dest, rejecting unknown fields
// and trailing data. maxBytes > 0 caps the body size, returning an error
// once exceeded.
func (c *Ctx) Bind(dest any, maxBytes int64) error {
	body := c.r.Body
	if maxBytes > 0 {
		body = http.MaxBytesReader(c.w, body, maxBytes)
	}
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("kite: trailing data after JSON value")
	}
	return nil
}

// NoContent writes a 204 with no body.
func (c *Ctx) NoContent() error {
	c.Status(http.StatusNoContent)
	c.writeHeaderOnce()
	return nil
}

// Redirect writes a Location header and redirect status (302 if code==0).
func (c *Ctx) Redirect(code int, url string) error {
	if code == 0 {
		code = http.StatusFound
	}
	c.Header().Set("Location", url)
	c.Status(code)
	c.writeHeaderOnce()
	return nil
}

func (c *Ctx) setContentTypeIfAbsent(ct string) {
	if c.Header().Get("Content-Type") == "" {
		c.Header().Set("Content-Type", ct)
	}
}

// JSON encodes v as the response body with a JSON content type.
func (c *Ctx) JSON(code int, v any) error {
	c.setContentTypeIfAbsent("application/json; charset=utf-8")
	c.Status(code)
	c.writeHeaderOnce()
	return json.NewEncoder(c.w).Encode(v)
}

// HTML writes s as an HTML response body.
func (c *Ctx) HTML(code int, s string) error {
	c.setContentTypeIfAbsent("text/html; charset=utf-8")
	c.Status(code)
	c.writeHeaderOnce()
	_, err := io.WriteString(c.w, s)
	return err
}

// Text writes s as a text/plain response, falling back to
// application/octet-stream if s is not valid UTF-8.
func (c *Ctx) Text(code int, s string) error {
	if utf8.ValidString(s) {
		c.setContentTypeIfAbsent("text/plain; charset=utf-8")
	} else {
		c.setContentTypeIfAbsent("application/octet-stream")
	}
	c.Status(code)
	c.writeHeaderOnce()
	_, err := io.WriteString(c.w, s)
	return err
}

// Bytes writes b as the response body with contentType, defaulting to
// application/octet-stream when contentType is empty.
func (c *Ctx) Bytes(code int, b []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.setContentTypeIfAbsent(contentType)
	c.Status(code)
	c.writeHeaderOnce()
	_, err := c.w.Write(b)
	return err
}

// Write implements io.Writer, flushing the pending status on first use.
func (c *Ctx) Write(p []byte) (int, error) {
	c.writeHeaderOnce()
	return c.w.Write(p)
}

// WriteString writes s, flushing the pending status on first use.
func (c *Ctx) WriteString(s string) (int, error) {
	c.writeHeaderOnce()
	return io.WriteString(c.w, s)
}

// File serves a filesystem path as the response body. code==0 uses the
// context's pending status instead of the default 200 from http.ServeFile.
func (c *Ctx) File(code int, path string) error {
	if code != 0 {
		c.Status(code)
	}
	c.writeHeaderOnce()
	http.ServeFile(c.w, c.r, path)
	return nil
}

// Download serves path as an attachment named filename.
func (c *Ctx) Download(code int, path, filename string) error {
	c.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(filename)))
	if code == 0 {
		code = http.StatusOK
	}
	c.Status(code)
	c.writeHeaderOnce()
	http.ServeFile(c.w, c.r, path)
	return nil
}

// Stream flushes the pending status and invokes fn with the response
// writer, setting a default content type if none was set.
func (c *Ctx) Stream(fn func(w io.Writer) error) error {
	c.setContentTypeIfAbsent("application/octet-stream")
	c.writeHeaderOnce()
	return fn(c.w)
}

// SSE streams ch as a server-sent-event response. Each value is JSON
// encoded into a single "data:" line unless it is already a string.
// The stream always ends with an "event: end" message; it also ends
// early, without error, if the request context is canceled.
func (c *Ctx) SSE(ch <-chan any) error {
	flusher, ok := c.w.(http.Flusher)
	if !ok {
		return errors.New("kite: response writer does not support flushing")
	}
	c.Header().Set("Content-Type", "text/event-stream")
	c.Header().Set("Cache-Control", "no-cache")
	c.Header().Set("Connection", "keep-alive")
	c.writeHeaderOnce()

	ctx := c.r.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case v, open := <-ch:
			if !open {
				_, _ = io.WriteString(c.w, "event: end\n\n")
				flusher.Flush()
				return nil
			}
			if err := writeSSEValue(c.w, v); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}

func writeSSEValue(w io.Writer, v any) error {
	var data string
	switch t := v.(type) {
	case string:
		data = t
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		data = string(b)
	}
	for _, line := range splitLines(data) {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

// Flush flushes any buffered response data, ignoring unsupported writers.
func (c *Ctx) Flush() {
	if c.rc != nil {
		_ = c.rc.Flush()
		return
	}
	if f, ok := c.w.(http.Flusher); ok {
		f.Flush()
	}
}

// SetWriter swaps the underlying ResponseWriter, rebuilding the
// ResponseController bound to it. Used by middleware that substitutes a
// wrapping writer (compression, buffering) mid-chain.
func (c *Ctx) SetWriter(w http.ResponseWriter) {
	c.w = w
	c.rc = http.NewResponseController(w)
}

// SetWriteDeadline delegates to the response controller.
func (c *Ctx) SetWriteDeadline(t time.Time) error { return c.rc.SetWriteDeadline(t) }

// EnableFullDuplex delegates to the response controller.
func (c *Ctx) EnableFullDuplex() error { return c.rc.EnableFullDuplex() }

// Hijack takes over the underlying connection for protocols (WebSocket)
// that need raw read/write access beyond the ResponseWriter contract.
func (c *Ctx) Hijack() (net.Conn, *bufio.ReadWriter, error) { return c.rc.Hijack() }
