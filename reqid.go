// reqid.go
package kite

import (
	"context"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// RequestID returns the correlator RequestIDMiddleware attached to ctx,
// or "" outside a request with that middleware installed.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestIDMiddleware stamps every request with a UUID, reusing an
// inbound X-Request-Id header when present so the value survives a
// proxy hop, and echoes it back on the response for correlation with
// logs and Problem Detail instance URIs.
func RequestIDMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(c *Ctx) error {
			id := c.Request().Header.Get("X-Request-Id")
			if id == "" {
				id = uuid.NewString()
			}
			c.Header().Set("X-Request-Id", id)
			ctx := context.WithValue(c.Context(), requestIDKey{}, id)
			c.r = c.r.WithContext(ctx)
			return next(c)
		}
	}
}
