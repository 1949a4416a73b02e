package loom

import "github.com/xraph/loom/internal/shared"

// MiddlewareConsumer is what a module's Configure function receives; each
// Apply call starts one middleware binding.
type MiddlewareConsumer = shared.MiddlewareConsumer

// MiddlewareBinding narrows one applied middleware with WithConfig and
// ForRoutes before the pipeline is built.
type MiddlewareBinding = shared.MiddlewareBinding

// MiddlewareRef names a middleware either by provider token or as an
// inline function. Build one with UseToken or UseFunc.
type MiddlewareRef = shared.MiddlewareRef

// MiddlewareHandler is implemented by provider instances referenced with
// UseToken.
type MiddlewareHandler = shared.MiddlewareHandler

// Configurable lets a token-referenced middleware receive the options map
// passed to WithConfig.
type Configurable = shared.Configurable

// RouteMatcher restricts a middleware binding to matching routes. Build
// one with ForController or Route.
type RouteMatcher = shared.RouteMatcher

// RouteRef identifies a route during middleware matching.
type RouteRef = shared.RouteRef

var (
	// UseToken references a middleware by its provider token; the token is
	// resolved in the scope of the module that applied it.
	UseToken = shared.UseToken

	// UseFunc wraps an inline Middleware function for Apply.
	UseFunc = shared.UseFunc

	// ForController matches every route registered by one controller.
	ForController = shared.ForController

	// Route matches routes by method and path pattern; "*" matches any
	// method.
	Route = shared.Route
)
