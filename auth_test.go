// File: auth_test.go
package kite

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireAuth_Bearer_MissingHeader(t *testing.T) {
	r := NewRouter()
	r.Get("/secret", RequireAuth(SchemeBearer, func(c *Ctx, creds Credentials) bool { return true })(handlerText("ok")))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, mustReq(t, http.MethodGet, "http://example/secret", nil))

	ok(t, rr.Code, http.StatusUnauthorized)
	ok(t, rr.Header().Get("Content-Type"), "application/problem+json")
	has(t, rr.Header().Get("WWW-Authenticate"), "Bearer")
}

func TestRequireAuth_Bearer_VerifyRejects(t *testing.T) {
	r := NewRouter()
	r.Get("/secret", RequireAuth(SchemeBearer, func(c *Ctx, creds Credentials) bool {
		return creds.Token == "good"
	})(handlerText("ok")))

	req := mustReq(t, http.MethodGet, "http://example/secret", nil)
	req.Header.Set("Authorization", "Bearer bad")

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	ok(t, rr.Code, http.StatusUnauthorized)
	has(t, rr.Body.String(), `"type":"invalid-token"`)
}

func TestRequireAuth_Bearer_VerifyAccepts(t *testing.T) {
	r := NewRouter()
	r.Get("/secret", RequireAuth(SchemeBearer, func(c *Ctx, creds Credentials) bool {
		return creds.Token == "good"
	})(handlerText("ok")))

	req := mustReq(t, http.MethodGet, "http://example/secret", nil)
	req.Header.Set("Authorization", "Bearer good")

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	ok(t, rr.Code, http.StatusOK)
	ok(t, rr.Body.String(), "ok")
}

func TestRequireAuth_Basic_DecodesUserPass(t *testing.T) {
	r := NewRouter()
	var gotUser, gotPass string
	r.Get("/secret", RequireAuth(SchemeBasic, func(c *Ctx, creds Credentials) bool {
		gotUser, gotPass = creds.User, creds.Password
		return true
	})(handlerText("ok")))

	req := mustReq(t, http.MethodGet, "http://example/secret", nil)
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("alice:hunter2")))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	ok(t, rr.Code, http.StatusOK)
	ok(t, gotUser, "alice")
	ok(t, gotPass, "hunter2")
}

func TestRequireAuth_Basic_MalformedHeaderRejected(t *testing.T) {
	r := NewRouter()
	r.Get("/secret", RequireAuth(SchemeBasic, func(c *Ctx, creds Credentials) bool { return true })(handlerText("ok")))

	req := mustReq(t, http.MethodGet, "http://example/secret", nil)
	req.Header.Set("Authorization", "Basic not-base64!!")

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	ok(t, rr.Code, http.StatusUnauthorized)
}

// Endpoint integration: EndpointOptions.Auth wires RequireAuth ahead of
// the C2-C6 pipeline.
func TestEndpoint_AuthOption_RejectsBeforeHandlerRuns(t *testing.T) {
	r := NewRouter()
	called := false
	type pingIn struct{}
	type pingOut struct {
		OK bool `json:"ok"`
	}
	r.Endpoint(http.MethodGet, "/ping", func(ctx context.Context, in pingIn) (pingOut, error) {
		called = true
		return pingOut{OK: true}, nil
	}, EndpointOptions{
		Auth: &EndpointAuth{Scheme: SchemeBearer, Verify: func(c *Ctx, creds Credentials) bool { return false }},
	})

	req := mustReq(t, http.MethodGet, "http://example/ping", nil)
	req.Header.Set("Authorization", "Bearer whatever")

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	ok(t, rr.Code, http.StatusUnauthorized)
	if called {
		t.Fatalf("handler must not run when auth rejects the request")
	}
}
