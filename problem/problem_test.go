package problem

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKebab(t *testing.T) {
	assert.Equal(t, "invalid-param-value", Kebab("InvalidParamValue"))
	assert.Equal(t, "not-found", Kebab("NotFound"))
	assert.Equal(t, "x", Kebab("X"))
}

func TestDetailMarshalJSON_MergesExtra(t *testing.T) {
	d := Detail{Type: "conflict", Title: "Conflict", Status: 409, Extra: map[string]any{"resource": "user/1"}}
	b, err := json.Marshal(d)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "conflict", m["type"])
	assert.Equal(t, "user/1", m["resource"])
	assert.Equal(t, float64(409), m["status"])
}

func TestWrite_SetsContentTypeAndStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	d := Conflict("already exists").ToDetail("/users/1")
	require.NoError(t, Write(rec, d))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestHTTPException_WithHeaderPropagates(t *testing.T) {
	e := Unauthorized("missing token", "Bearer")
	d := e.ToDetail("/secure")
	require.NotNil(t, d.Headers)
	assert.Equal(t, "Bearer", d.Headers.Get("WWW-Authenticate"))
}

func TestMethodNotAllowed_MultipleAllowHeaders(t *testing.T) {
	e := MethodNotAllowed([]string{"GET", "POST"})
	d := e.ToDetail("/items")
	assert.Equal(t, []string{"GET", "POST"}, d.Headers.Values("Allow"))
	assert.Equal(t, http.StatusMethodNotAllowed, d.Status)
}

func TestInvalidRequestErrors_AggregatesAllEntries(t *testing.T) {
	agg := &InvalidRequestErrors{}
	agg.Add("invalid-param-value", "body", "name", "must not be empty")
	agg.Add("invalid-param-value", "body", "age", "must be >= 0")
	agg.Add("invalid-param-value", "body", "email", "must match pattern")

	assert.Equal(t, http.StatusUnprocessableEntity, agg.StatusCode())
	d := agg.ToDetail("/users")
	errs, ok := d.Extra["errors"].([]map[string]string)
	require.True(t, ok)
	assert.Len(t, errs, 3)
}

func TestMapper_ResolvesHTTPExceptionByExactType(t *testing.T) {
	m := NewMapper()
	r := httptest.NewRequest(http.MethodGet, "/users/1", nil)
	d := m.Resolve(r, Gone("deleted"))
	require.NotNil(t, d)
	assert.Equal(t, http.StatusGone, d.Status)
	assert.Equal(t, "gone", d.Type)
}

func TestMapper_ResolvesInvalidRequestErrors(t *testing.T) {
	m := NewMapper()
	r := httptest.NewRequest(http.MethodPost, "/users", nil)
	agg := (&InvalidRequestErrors{}).Add("missing-request-param", "query", "q", "q is required")
	d := m.Resolve(r, agg)
	require.NotNil(t, d)
	assert.Equal(t, http.StatusUnprocessableEntity, d.Status)
}

type rateLimitError struct{ retryAfterSec int }

func (e *rateLimitError) Error() string   { return "rate limited" }
func (e *rateLimitError) StatusCode() int { return http.StatusTooManyRequests }

func TestMapper_FallsBackToStatusSolver(t *testing.T) {
	m := NewMapper()
	m.RegisterStatus(http.StatusTooManyRequests, func(r *http.Request, err error) *Detail {
		var rl *rateLimitError
		if errors.As(err, &rl) {
			return &Detail{Type: "too-many-requests", Title: "Too Many Requests", Status: http.StatusTooManyRequests}
		}
		return nil
	})
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	d := m.Resolve(r, &rateLimitError{retryAfterSec: 5})
	require.NotNil(t, d)
	assert.Equal(t, http.StatusTooManyRequests, d.Status)
}

func TestMapper_UnknownStatusCoderWithoutSolver_UsesStatusText(t *testing.T) {
	m := NewMapper()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	d := m.Resolve(r, &rateLimitError{})
	require.NotNil(t, d)
	assert.Equal(t, http.StatusTooManyRequests, d.Status)
	assert.Equal(t, http.StatusText(http.StatusTooManyRequests), d.Title)
}

type plainError struct{}

func (plainError) Error() string { return "boom" }

func TestMapper_FallbackIsInternal500(t *testing.T) {
	m := NewMapper()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	d := m.Resolve(r, plainError{})
	require.NotNil(t, d)
	assert.Equal(t, http.StatusInternalServerError, d.Status)
	assert.Empty(t, d.Detail)
}

func TestMapper_VerboseIncludesErrorMessage(t *testing.T) {
	m := NewMapper()
	m.Verbose(true)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	d := m.Resolve(r, plainError{})
	assert.Equal(t, "boom", d.Detail)
}

func TestMapper_ResolveNilErrorReturnsNil(t *testing.T) {
	m := NewMapper()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, m.Resolve(r, nil))
}

func TestMapper_NearestBaseViaUnwrapChain(t *testing.T) {
	m := NewMapper()
	m.RegisterType(&HTTPException{}, func(r *http.Request, err error) *Detail {
		var e *HTTPException
		if errors.As(err, &e) {
			return e.ToDetail(r.URL.Path)
		}
		return nil
	})
	wrapped := &HTTPException{Status: 418, TypeName: "teapot", Cause: errors.New("root cause")}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	d := m.Resolve(r, wrapped)
	require.NotNil(t, d)
	assert.Equal(t, 418, d.Status)
}
