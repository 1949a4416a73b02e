// Package router binds typed handlers onto a pluggable HTTP engine.
//
// The router owns path grouping, per-route middleware, scope labels for the
// middleware pipeline, and the error boundary that turns handler errors into
// JSON responses. The actual matching is delegated to a RouterAdapter;
// bunrouter is the default engine.
package router

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/xraph/loom/errors"
	"github.com/xraph/loom/internal/dispatch"
	"github.com/xraph/loom/internal/shared"
	"github.com/xraph/loom/logger"
)

// DecorateFunc wraps a route's terminal handler with its middleware chain.
// The application installs one backed by the dispatch bridge so module
// pipelines apply; a nil decorator composes route middleware directly.
type DecorateFunc func(ref shared.RouteRef, routeMW []shared.Middleware, terminal shared.Handler) shared.Handler

// Router implements shared.Router over a RouterAdapter. Groups share the
// parent's route table and adapter; each group carries its own prefix,
// middleware stack, and module scope.
type Router struct {
	adapter shared.RouterAdapter
	log     logger.Logger

	mu      *sync.Mutex
	routes  *[]shared.RouteInfo
	onRoute func(shared.RouteInfo)

	prefix     string
	middleware []shared.Middleware

	module     string
	controller shared.Token
	resolver   shared.Resolver
	decorate   DecorateFunc
}

// New creates a router over the given adapter.
func New(adapter shared.RouterAdapter, log logger.Logger) *Router {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	routes := make([]shared.RouteInfo, 0, 16)
	return &Router{
		adapter: adapter,
		log:     log,
		mu:      &sync.Mutex{},
		routes:  &routes,
	}
}

// OnRoute installs a callback invoked for every route registered through
// this router or any of its groups.
func (r *Router) OnRoute(fn func(shared.RouteInfo)) { r.onRoute = fn }

// Scoped returns a child router bound to a module: its routes carry the
// module and controller labels, resolve tokens through the given resolver,
// and are decorated with the module's middleware chain.
func (r *Router) Scoped(module string, controller shared.Token, prefix string, resolver shared.Resolver, decorate DecorateFunc) *Router {
	child := r.child(prefix)
	child.module = module
	child.controller = controller
	child.resolver = resolver
	child.decorate = decorate
	return child
}

// Group returns a child router with an extended prefix. The child inherits
// the parent's middleware, scope, and route table.
func (r *Router) Group(prefix string) shared.Router {
	return r.child(prefix)
}

func (r *Router) child(prefix string) *Router {
	mw := make([]shared.Middleware, len(r.middleware))
	copy(mw, r.middleware)
	return &Router{
		adapter:    r.adapter,
		log:        r.log,
		mu:         r.mu,
		routes:     r.routes,
		onRoute:    r.onRoute,
		prefix:     joinPath(r.prefix, prefix),
		middleware: mw,
		module:     r.module,
		controller: r.controller,
		resolver:   r.resolver,
		decorate:   r.decorate,
	}
}

// Use appends middleware applied to routes registered afterwards on this
// router and groups derived from it.
func (r *Router) Use(middleware ...shared.Middleware) {
	r.middleware = append(r.middleware, middleware...)
}

func (r *Router) GET(path string, h shared.Handler, opts ...shared.RouteOption) error {
	return r.Handle(http.MethodGet, path, h, opts...)
}

func (r *Router) POST(path string, h shared.Handler, opts ...shared.RouteOption) error {
	return r.Handle(http.MethodPost, path, h, opts...)
}

func (r *Router) PUT(path string, h shared.Handler, opts ...shared.RouteOption) error {
	return r.Handle(http.MethodPut, path, h, opts...)
}

func (r *Router) DELETE(path string, h shared.Handler, opts ...shared.RouteOption) error {
	return r.Handle(http.MethodDelete, path, h, opts...)
}

func (r *Router) PATCH(path string, h shared.Handler, opts ...shared.RouteOption) error {
	return r.Handle(http.MethodPatch, path, h, opts...)
}

func (r *Router) OPTIONS(path string, h shared.Handler, opts ...shared.RouteOption) error {
	return r.Handle(http.MethodOptions, path, h, opts...)
}

func (r *Router) HEAD(path string, h shared.Handler, opts ...shared.RouteOption) error {
	return r.Handle(http.MethodHead, path, h, opts...)
}

// Handle registers a route. The terminal handler is wrapped with route
// middleware, the module's pipeline chain (via the decorator), and the
// error boundary, then bound onto the adapter.
func (r *Router) Handle(method, path string, h shared.Handler, opts ...shared.RouteOption) error {
	if h == nil {
		return errors.ErrValidationError("handler", errors.New("route handler is nil"))
	}
	method = strings.ToUpper(method)
	full := joinPath(r.prefix, path)

	rc := &shared.RouteConfig{}
	for _, opt := range opts {
		opt.Apply(rc)
	}

	routeMW := make([]shared.Middleware, 0, len(r.middleware)+len(rc.Middleware))
	routeMW = append(routeMW, r.middleware...)
	routeMW = append(routeMW, rc.Middleware...)

	ref := shared.RouteRef{
		Module:     r.module,
		Controller: r.controller,
		Method:     method,
		Path:       full,
	}

	var bound shared.Handler
	if r.decorate != nil {
		bound = r.decorate(ref, routeMW, h)
	} else {
		bound = Chain(routeMW, h)
	}
	bound = withRouteRef(ref, bound)

	if err := r.adapter.Handle(method, full, r.bind(bound, rc.Timeout)); err != nil {
		return errors.ErrValidationError("route",
			errors.NewError(errors.CodeValidationError,
				"registering "+method+" "+full+" failed", err))
	}

	info := shared.RouteInfo{
		Module:     r.module,
		Controller: string(r.controller),
		Method:     method,
		Path:       full,
		Name:       rc.Name,
	}
	r.mu.Lock()
	*r.routes = append(*r.routes, info)
	r.mu.Unlock()
	if r.onRoute != nil {
		r.onRoute(info)
	}

	r.log.Debug("route registered",
		logger.String("method", method),
		logger.String("path", full),
		logger.String("module", r.module))
	return nil
}

// bind adapts a typed handler onto net/http: it stages the module resolver
// and optional timeout on the request context, builds the request context,
// and maps handler errors to JSON error responses.
func (r *Router) bind(h shared.Handler, timeout time.Duration) http.Handler {
	resolver := r.resolver
	log := r.log
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		reqCtx := req.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(reqCtx, timeout)
			defer cancel()
		}
		if resolver != nil {
			reqCtx = dispatch.WithResolver(reqCtx, resolver)
		}
		req = req.WithContext(reqCtx)

		ctx := NewRequestContext(w, req, resolver, log)
		if err := h(ctx); err != nil {
			WriteError(ctx, err, log)
		}
	})
}

// WriteError maps a handler error onto the response: reportable failures
// keep their status and code, everything else becomes an opaque 500. A
// response already committed by the handler is left alone.
func WriteError(ctx *RequestContext, err error, log logger.Logger) {
	reportable := dispatch.Boundary(err)
	status := reportable.StatusCode()

	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			logger.String("method", ctx.Request().Method),
			logger.String("path", ctx.Request().URL.Path),
			logger.Error(err))
	} else {
		log.Debug("request rejected",
			logger.String("method", ctx.Request().Method),
			logger.String("path", ctx.Request().URL.Path),
			logger.Int("status", status),
			logger.Error(err))
	}

	if ctx.Written() {
		return
	}

	message := reportable.Error()
	if httpErr, ok := reportable.(*errors.HTTPError); ok {
		message = httpErr.Message
	}
	_ = ctx.JSON(status, map[string]any{
		"error": map[string]any{
			"code":    reportable.ErrorCode(),
			"message": message,
		},
	})
}

// Chain composes middleware around a terminal handler, first middleware
// outermost.
func Chain(middleware []shared.Middleware, terminal shared.Handler) shared.Handler {
	h := terminal
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}

// withRouteRef stores the matched route on the request context before the
// chain runs.
func withRouteRef(ref shared.RouteRef, next shared.Handler) shared.Handler {
	return func(ctx shared.Context) error {
		ctx.Set(shared.RouteContextKey, ref)
		return next(ctx)
	}
}

// Routes lists every route registered so far, in registration order.
func (r *Router) Routes() []shared.RouteInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]shared.RouteInfo, len(*r.routes))
	copy(out, *r.routes)
	return out
}

// Mount attaches a plain http.Handler under a prefix, bypassing the typed
// handler pipeline.
func (r *Router) Mount(prefix string, h http.Handler) error {
	return r.adapter.Mount(joinPath(r.prefix, prefix), h)
}

// ServeHTTP dispatches to the adapter.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.adapter.ServeHTTP(w, req)
}

// Handler exposes the router as a plain http.Handler.
func (r *Router) Handler() http.Handler { return r.adapter }

// Close releases the adapter.
func (r *Router) Close() error { return r.adapter.Close() }

func joinPath(prefix, path string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if path == "" || path == "/" {
		if prefix == "" {
			return "/"
		}
		return prefix
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return prefix + path
}
