// auth.go
package kite

import (
	"encoding/base64"
	"strings"

	"github.com/kitehttp/kite/problem"
)

// AuthScheme is the named scheme an endpoint's auth_scheme property
// publishes (§6 External Interfaces): it drives both OpenAPI-style
// documentation (out of scope here) and the precondition plugin below.
type AuthScheme int

const (
	SchemeBearer AuthScheme = iota
	SchemeBasic
)

func (s AuthScheme) String() string {
	if s == SchemeBasic {
		return "Basic"
	}
	return "Bearer"
}

// Credentials is what RequireAuth hands a Verify function: the bearer
// token, or the decoded basic-auth user/pass pair.
type Credentials struct {
	Token    string
	User     string
	Password string
}

// Verify checks extracted Credentials and reports whether the request
// may proceed.
type Verify func(c *Ctx, creds Credentials) bool

// RequireAuth is the precondition plugin §6 describes: it validates
// presence and shape of the declared scheme's credential, calls verify,
// and on failure returns 401 with WWW-Authenticate naming the scheme.
func RequireAuth(scheme AuthScheme, verify Verify) Middleware {
	return func(next Handler) Handler {
		return func(c *Ctx) error {
			header := c.Request().Header.Get("Authorization")
			creds, ok := parseAuthorization(scheme, header)
			if !ok {
				return problem.Write(c.Writer(), problem.Unauthorized(
					"missing or malformed Authorization header", scheme.String()).ToDetail(c.Request().URL.Path))
			}
			if verify != nil && !verify(c, creds) {
				return problem.Write(c.Writer(), problem.InvalidToken(
					"credentials rejected").WithHeader("WWW-Authenticate", scheme.String()).ToDetail(c.Request().URL.Path))
			}
			return next(c)
		}
	}
}

func parseAuthorization(scheme AuthScheme, header string) (Credentials, bool) {
	switch scheme {
	case SchemeBearer:
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) || len(header) <= len(prefix) {
			return Credentials{}, false
		}
		return Credentials{Token: strings.TrimPrefix(header, prefix)}, true
	case SchemeBasic:
		const prefix = "Basic "
		if !strings.HasPrefix(header, prefix) {
			return Credentials{}, false
		}
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, prefix))
		if err != nil {
			return Credentials{}, false
		}
		user, pass, ok := strings.Cut(string(raw), ":")
		if !ok {
			return Credentials{}, false
		}
		return Credentials{User: user, Password: pass}, true
	default:
		return Credentials{}, false
	}
}
