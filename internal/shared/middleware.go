package shared

// Handler processes one request. Returning an error hands control to the
// boundary that bound the route; returning nil means the handler (or a
// middleware above it) produced the response.
type Handler func(ctx Context) error

// Middleware wraps a handler. Implementations decide whether to call next;
// declining to call it is not an error.
type Middleware func(next Handler) Handler

// MiddlewareHandler is the contract for container-managed middleware
// referenced by token. The resolved instance receives the request and the
// continuation explicitly.
type MiddlewareHandler interface {
	Handle(ctx Context, next Handler) error
}

// Configurable is implemented by token middleware that accept a
// binding-time configuration value via WithConfig.
type Configurable interface {
	Configure(cfg any) error
}

// MiddlewareRef names one middleware inside a binding: either a provider
// token resolved through the container, or an inline function.
type MiddlewareRef struct {
	// Token, when non-empty, is resolved in the binding module's scope.
	// The instance must be a Middleware, a MiddlewareHandler, or a
	// func(Context, Handler) error.
	Token Token

	// Func is an inline middleware used when Token is empty.
	Func Middleware
}

// UseToken references container-managed middleware by provider token.
func UseToken(token Token) MiddlewareRef {
	return MiddlewareRef{Token: token}
}

// UseFunc references an inline middleware function.
func UseFunc(fn Middleware) MiddlewareRef {
	return MiddlewareRef{Func: fn}
}

// RouteRef identifies one declared route for middleware matching.
type RouteRef struct {
	// Module is the name of the module whose controller declared the
	// route.
	Module string

	// Controller is the provider token of the declaring controller.
	// Empty for routes registered directly on the application.
	Controller Token

	// Method is the HTTP method, upper-case.
	Method string

	// Path is the full route path including controller prefixes.
	Path string
}

// RouteMatcher selects routes for a middleware binding. The zero matcher
// matches nothing; use ForController or Route to build one.
type RouteMatcher struct {
	// Controller, when non-empty, matches every route declared by the
	// controller with that token.
	Controller Token

	// Method matches a specific HTTP method, or every method when "*".
	Method string

	// Path matches route paths: exact match, or prefix match when the
	// pattern ends in "*".
	Path string
}

// ForController matches all routes declared by the controller token.
func ForController(token Token) RouteMatcher {
	return RouteMatcher{Controller: token}
}

// Route matches routes by method and path pattern. Method "*" matches any
// method; a path ending in "*" matches by prefix.
func Route(method, path string) RouteMatcher {
	return RouteMatcher{Method: method, Path: path}
}

// Matches reports whether the matcher selects the given route.
func (m RouteMatcher) Matches(ref RouteRef) bool {
	if m.Controller != "" {
		return m.Controller == ref.Controller
	}
	if m.Method != "*" && m.Method != ref.Method {
		return false
	}
	if n := len(m.Path); n > 0 && m.Path[n-1] == '*' {
		prefix := m.Path[:n-1]
		return len(ref.Path) >= len(prefix) && ref.Path[:len(prefix)] == prefix
	}
	return m.Path == ref.Path
}

// MiddlewareBinding is the fluent tail of a consumer registration. Both
// methods return the binding so calls chain.
type MiddlewareBinding interface {
	// WithConfig attaches a configuration value delivered at build time.
	// Every middleware in the binding must be a token whose instance
	// implements Configurable; anything else fails the pipeline build.
	WithConfig(cfg any) MiddlewareBinding

	// ForRoutes restricts the binding to routes selected by the
	// matchers. A binding without ForRoutes applies to every route of
	// the application.
	ForRoutes(matchers ...RouteMatcher) MiddlewareBinding
}

// MiddlewareConsumer collects middleware bindings during module
// configuration. The pipeline passes one to each module's Configure
// callback, parent before imports.
type MiddlewareConsumer interface {
	// Apply starts a binding for the given middleware references. The
	// references run in the order given, ahead of bindings registered
	// later.
	Apply(refs ...MiddlewareRef) MiddlewareBinding
}
