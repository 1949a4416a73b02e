package shared

import (
	"net/http"
	"time"
)

// Router registers routes. Controllers receive one scoped to their module
// and prefix; the application root exposes one for ad-hoc routes.
type Router interface {
	GET(path string, handler Handler, opts ...RouteOption) error
	POST(path string, handler Handler, opts ...RouteOption) error
	PUT(path string, handler Handler, opts ...RouteOption) error
	DELETE(path string, handler Handler, opts ...RouteOption) error
	PATCH(path string, handler Handler, opts ...RouteOption) error
	OPTIONS(path string, handler Handler, opts ...RouteOption) error
	HEAD(path string, handler Handler, opts ...RouteOption) error

	// Handle registers a route for an arbitrary method.
	Handle(method, path string, handler Handler, opts ...RouteOption) error

	// Group returns a child router that prefixes every registered path
	// and inherits this router's middleware.
	Group(prefix string) Router

	// Use appends middleware applied to routes registered afterwards on
	// this router and its groups.
	Use(middleware ...Middleware)
}

// RouteOption configures a route at registration time.
type RouteOption interface {
	Apply(*RouteConfig)
}

type routeOptionFunc func(*RouteConfig)

func (f routeOptionFunc) Apply(rc *RouteConfig) { f(rc) }

// RouteConfig holds per-route settings accumulated from options.
type RouteConfig struct {
	Name       string
	Middleware []Middleware
	Timeout    time.Duration
}

// WithName names a route for diagnostics and route listings.
func WithName(name string) RouteOption {
	return routeOptionFunc(func(rc *RouteConfig) { rc.Name = name })
}

// WithMiddleware attaches middleware to a single route, innermost of the
// chain.
func WithMiddleware(mw ...Middleware) RouteOption {
	return routeOptionFunc(func(rc *RouteConfig) {
		rc.Middleware = append(rc.Middleware, mw...)
	})
}

// WithTimeout bounds the handler's execution time.
func WithTimeout(d time.Duration) RouteOption {
	return routeOptionFunc(func(rc *RouteConfig) { rc.Timeout = d })
}

// RouteInfo describes one registered route for inspection endpoints and
// tests.
type RouteInfo struct {
	Module     string `json:"module,omitempty"`
	Controller string `json:"controller,omitempty"`
	Method     string `json:"method"`
	Path       string `json:"path"`
	Name       string `json:"name,omitempty"`
}

// RouterAdapter is the pluggable HTTP engine underneath the router. The
// bunrouter adapter is the default; chi and httprouter adapters ship in
// extras.
type RouterAdapter interface {
	// Handle registers a terminal handler for method and path. Paths use
	// the ":name" parameter and "/*" wildcard syntax; adapters translate
	// to their engine's dialect.
	Handle(method, path string, handler http.Handler) error

	// Mount attaches a plain http.Handler under a path prefix.
	Mount(prefix string, handler http.Handler) error

	// UseGlobal wraps every handler registered afterwards, outermost
	// first.
	UseGlobal(middleware func(http.Handler) http.Handler)

	// ServeHTTP dispatches a request to the matched handler.
	ServeHTTP(w http.ResponseWriter, r *http.Request)

	// Close releases adapter resources.
	Close() error
}
