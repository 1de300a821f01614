// Package problem implements the Problem-Details error taxonomy: the
// RFC 9457 response shape, the HTTPException hierarchy built on it, and
// the exact-type/nearest-base/status-code/fallback solver lookup used to
// translate an arbitrary handler error into a wire response.
package problem

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// Detail is the RFC 9457 problem-details document. Extra carries
// application-defined members that are merged into the top-level JSON
// object alongside the standard fields.
type Detail struct {
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Status   int            `json:"status"`
	Detail   string         `json:"detail,omitempty"`
	Instance string         `json:"instance,omitempty"`
	Extra    map[string]any `json:"-"`

	// Headers are copied onto the HTTP response alongside Content-Type.
	Headers http.Header `json:"-"`
}

// MarshalJSON merges Extra into the top-level object, matching how
// RFC 9457 documents attach problem-specific members.
func (d Detail) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(d.Extra)+5)
	for k, v := range d.Extra {
		m[k] = v
	}
	m["type"] = d.Type
	m["title"] = d.Title
	m["status"] = d.Status
	if d.Detail != "" {
		m["detail"] = d.Detail
	}
	if d.Instance != "" {
		m["instance"] = d.Instance
	}
	return json.Marshal(m)
}

// NewInstanceID mints a per-occurrence correlator for Detail.Instance
// when a caller has no natural one (a request path, a resource URI):
// a random UUID, matching the request-ID the framework already stamps
// on every request's logs.
func NewInstanceID() string {
	return uuid.NewString()
}

// Write sends d as an application/problem+json response.
func Write(w http.ResponseWriter, d *Detail) error {
	for k, vs := range d.Headers {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("Content-Type", "application/problem+json")
	status := d.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(d)
}

// StatusCoder is implemented by errors that carry their own HTTP status,
// letting the Mapper fall back to a per-status solver without a
// registered per-type one.
type StatusCoder interface {
	StatusCode() int
}

// HTTPException is the base of the taxonomy in §7 of the error-handling
// design: every constructor in kinds.go returns one of these, pre-filled
// with a canonical status and a kebab-derived type.
type HTTPException struct {
	TypeName  string // kebab-case type slug
	TitleText string
	Status    int
	DetailMsg string
	InstanceURI string
	Members   map[string]any
	Headers   http.Header
	Cause     error
}

func (e *HTTPException) Error() string {
	if e.DetailMsg != "" {
		return e.DetailMsg
	}
	return e.TitleText
}

func (e *HTTPException) Unwrap() error { return e.Cause }

func (e *HTTPException) StatusCode() int { return e.Status }

// ToDetail renders the exception as a wire Detail.
func (e *HTTPException) ToDetail(instance string) *Detail {
	inst := e.InstanceURI
	if inst == "" {
		inst = instance
	}
	return &Detail{
		Type:     e.TypeName,
		Title:    e.TitleText,
		Status:   e.Status,
		Detail:   e.DetailMsg,
		Instance: inst,
		Extra:    e.Members,
		Headers:  e.Headers,
	}
}

// New constructs an HTTPException. typeName should already be in kebab
// form; use KebabFromValue to derive one from a Go type name.
func New(status int, typeName, title, detail string) *HTTPException {
	return &HTTPException{Status: status, TypeName: typeName, TitleText: title, DetailMsg: detail}
}

// WithMember attaches a dynamic member to the problem document and
// returns the same exception for chaining.
func (e *HTTPException) WithMember(key string, value any) *HTTPException {
	if e.Members == nil {
		e.Members = map[string]any{}
	}
	e.Members[key] = value
	return e
}

// WithHeader attaches a header (WWW-Authenticate, Allow, Retry-After)
// that ToDetail copies onto the response alongside Content-Type.
func (e *HTTPException) WithHeader(key, value string) *HTTPException {
	if e.Headers == nil {
		e.Headers = http.Header{}
	}
	e.Headers.Add(key, value)
	return e
}

// KebabFromValue derives a problem "type" member from a Go value's
// dynamic type name, converting CamelCase to kebab-case as the taxonomy
// requires ("InvalidParamValue" -> "invalid-param-value").
func KebabFromValue(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return "internal"
	}
	return Kebab(t.Name())
}

// Kebab converts a CamelCase identifier into kebab-case.
func Kebab(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Solver turns a matched error into a wire Detail.
type Solver func(r *http.Request, err error) *Detail

// Mapper implements the lookup order of §4.6: exact type -> nearest base
// (approximated, since Go has no class hierarchy, by walking the error's
// Unwrap chain) -> status code -> fallback 500. See DESIGN.md for the
// Open Question this resolves.
type Mapper struct {
	byType   map[reflect.Type]Solver
	byStatus map[int]Solver
	fallback Solver
	verbose  bool
}

// NewMapper returns a Mapper with HTTPException and InvalidRequestErrors
// already wired to their own solvers, and a 500 fallback.
func NewMapper() *Mapper {
	m := &Mapper{
		byType:   map[reflect.Type]Solver{},
		byStatus: map[int]Solver{},
	}
	m.RegisterType(&HTTPException{}, func(r *http.Request, err error) *Detail {
		var e *HTTPException
		if errors.As(err, &e) {
			return e.ToDetail(r.URL.Path)
		}
		return nil
	})
	m.RegisterType(&InvalidRequestErrors{}, func(r *http.Request, err error) *Detail {
		var e *InvalidRequestErrors
		if errors.As(err, &e) {
			return e.ToDetail(r.URL.Path)
		}
		return nil
	})
	m.fallback = func(r *http.Request, err error) *Detail {
		detail := ""
		if m.verbose && err != nil {
			detail = err.Error()
		}
		return &Detail{
			Type:     "internal",
			Title:    "Internal Server Error",
			Status:   http.StatusInternalServerError,
			Detail:   detail,
			Instance: r.URL.Path,
		}
	}
	return m
}

// Verbose toggles whether the fallback 500 solver includes the raw error
// message in the wire response.
func (m *Mapper) Verbose(v bool) { m.verbose = v }

// RegisterType registers a solver keyed by sample's dynamic type. Later
// registrations for the same type replace earlier ones.
func (m *Mapper) RegisterType(sample error, solver Solver) {
	t := reflect.TypeOf(sample)
	m.byType[t] = solver
}

// RegisterStatus registers a solver keyed by HTTP status code, consulted
// when no type-specific solver matched but the error implements
// StatusCoder.
func (m *Mapper) RegisterStatus(status int, solver Solver) {
	m.byStatus[status] = solver
}

// Resolve walks err's dynamic type, then its Unwrap chain (the closest
// Go analogue to "nearest base" in a language without exception
// subclassing), then its StatusCoder status, finally falling back to a
// 500.
func (m *Mapper) Resolve(r *http.Request, err error) *Detail {
	if err == nil {
		return nil
	}
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		if solver, ok := m.byType[reflect.TypeOf(cur)]; ok {
			if d := solver(r, err); d != nil {
				return d
			}
		}
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		if solver, ok := m.byStatus[sc.StatusCode()]; ok {
			if d := solver(r, err); d != nil {
				return d
			}
		}
		return &Detail{
			Type:     "internal",
			Title:    http.StatusText(sc.StatusCode()),
			Status:   sc.StatusCode(),
			Instance: r.URL.Path,
		}
	}
	return m.fallback(r, err)
}
