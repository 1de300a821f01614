// ratelimit.go
package kite

import (
	"sync"

	"github.com/kitehttp/kite/problem"
	"golang.org/x/time/rate"
)

// KeyFunc extracts the rate-limit bucket key from a request, typically
// the client's address or an authenticated subject.
type KeyFunc func(c *Ctx) string

// ByRemoteAddr buckets by the request's RemoteAddr, the default KeyFunc.
func ByRemoteAddr(c *Ctx) string { return c.Request().RemoteAddr }

// RateLimit is a concrete instance of the spec's plugin contract: a
// token-bucket Middleware, one bucket per KeyFunc key, returning
// problem.TooManyRequests (429) once a key's bucket is exhausted
// rather than delegating to an external limiter (§6 External
// Interfaces names rate limiters as an abstract collaborator; this is
// the one the runtime actually exercises end to end).
func RateLimit(r rate.Limit, burst int, key KeyFunc) Middleware {
	if key == nil {
		key = ByRemoteAddr
	}
	var mu sync.Mutex
	buckets := map[string]*rate.Limiter{}

	limiterFor := func(k string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := buckets[k]
		if !ok {
			l = rate.NewLimiter(r, burst)
			buckets[k] = l
		}
		return l
	}

	return func(next Handler) Handler {
		return func(c *Ctx) error {
			l := limiterFor(key(c))
			if !l.Allow() {
				d := problem.TooManyRequests("rate limit exceeded", "").ToDetail(c.Request().URL.Path)
				return problem.Write(c.Writer(), d)
			}
			return next(c)
		}
	}
}
