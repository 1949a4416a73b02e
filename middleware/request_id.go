package middleware

import (
	"github.com/google/uuid"

	"github.com/xraph/loom/internal/shared"
)

// HeaderRequestID is the header carrying the request ID in both directions.
const HeaderRequestID = "X-Request-ID"

// requestIDKey is the ctx.Set key under which the ID is stored.
const requestIDKey = "request_id"

// RequestID tags every request with a unique ID. An inbound X-Request-ID
// header is trusted and propagated; otherwise a new UUID is generated. The
// ID is echoed on the response and stored in the request context.
func RequestID() shared.Middleware {
	return func(next shared.Handler) shared.Handler {
		return func(ctx shared.Context) error {
			id := ctx.Request().Header.Get(HeaderRequestID)
			if id == "" {
				id = uuid.New().String()
			}

			ctx.Response().Header().Set(HeaderRequestID, id)
			ctx.Set(requestIDKey, id)

			return next(ctx)
		}
	}
}

// GetRequestID returns the request ID stored by the RequestID middleware,
// or "" when the middleware did not run.
func GetRequestID(ctx shared.Context) string {
	if id, ok := ctx.Get(requestIDKey).(string); ok {
		return id
	}
	return ""
}
