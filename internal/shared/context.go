package shared

import (
	"context"
	"net/http"

	"github.com/xraph/loom/logger"
)

// ParamsContextKey is the request-context key under which router adapters
// store extracted path parameters. All bundled adapters write a
// map[string]string here so handlers stay adapter-agnostic.
const ParamsContextKey = "loom:params"

// RouteContextKey is the ctx.Set key under which the router stores the
// matched route's RouteRef, so middleware can label by declared pattern
// instead of concrete URL.
const RouteContextKey = "loom:route"

// Resolver resolves provider tokens in the scope of one module. Request
// contexts carry a Resolver so handlers and middleware can reach instances
// visible to the module that declared their route.
type Resolver interface {
	// Resolve returns the instance registered for token, constructing it
	// on first use. It fails with a provider-not-found error when the
	// token is not visible in this scope.
	Resolve(ctx context.Context, token Token) (any, error)
}

// Context is the request context handed to handlers and middleware. It
// embeds context.Context so request-scoped values and deadlines flow
// through untouched.
type Context interface {
	context.Context

	// Request access
	Request() *http.Request
	Response() http.ResponseWriter

	// Path parameters
	Param(name string) string
	Params() map[string]string

	// Query parameters
	Query(name string) string
	QueryDefault(name, defaultValue string) string

	// Headers
	Header(key string) string
	SetHeader(key, value string)

	// Request body
	Bind(v any) error

	// Response helpers
	JSON(code int, v any) error
	String(code int, s string) error
	Bytes(code int, contentType string, data []byte) error
	NoContent() error
	Redirect(code int, url string) error
	Status(code int) Context

	// Request-scoped values
	Set(key string, value any)
	Get(key string) any

	// WithContext replaces the underlying request context. Middleware that
	// derives enriched contexts (trace spans, request IDs) installs them
	// here so downstream handlers see the values.
	WithContext(ctx context.Context)

	// Resolve resolves a provider token in the scope of the module that
	// owns the matched route.
	Resolve(token Token) (any, error)

	// Logger returns the request-scoped logger.
	Logger() logger.Logger
}
