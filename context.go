package loom

import (
	"context"

	"github.com/xraph/loom/internal/dispatch"
	"github.com/xraph/loom/internal/shared"
)

// Context is the request context handed to HTTP handlers. It embeds
// context.Context and adds request access, parameter and body helpers,
// response writers and module-scoped resolution.
type Context = shared.Context

// Handler is an HTTP route handler. A returned error is translated to a
// response by the error boundary instead of being written by the handler.
type Handler = shared.Handler

// Middleware wraps a Handler. Chains run outermost first: root, module
// parents before children, then route middleware.
type Middleware = shared.Middleware

// Resolver resolves provider tokens within one module's visibility.
type Resolver = shared.Resolver

// FromContext returns the module-scoped Resolver staged on a request or
// message context, for code that receives a plain context.Context instead
// of a loom.Context.
func FromContext(ctx context.Context) (Resolver, bool) {
	return dispatch.ResolverFromContext(ctx)
}
