package router

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/uptrace/bunrouter"

	"github.com/xraph/loom/internal/shared"
)

// BunRouterAdapter wraps uptrace/bunrouter, the default HTTP engine.
type BunRouterAdapter struct {
	router            *bunrouter.Router
	globalMiddlewares []func(http.Handler) http.Handler
}

// NewBunRouterAdapter creates the default adapter.
func NewBunRouterAdapter() *BunRouterAdapter {
	r := bunrouter.New(
		bunrouter.WithNotFoundHandler(func(w http.ResponseWriter, req bunrouter.Request) error {
			http.NotFound(w, req.Request)
			return nil
		}),
	)
	return &BunRouterAdapter{
		router:            r,
		globalMiddlewares: make([]func(http.Handler) http.Handler, 0),
	}
}

// Handle registers a route. Engine panics on malformed or conflicting
// patterns surface as errors so startup can report them.
func (a *BunRouterAdapter) Handle(method, path string, handler http.Handler) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("bunrouter rejected %s %s: %v", method, path, rec)
		}
	}()

	a.router.Handle(method, convertPathToBunRouter(path), func(w http.ResponseWriter, req bunrouter.Request) error {
		httpReq := paramsIntoContext(req)
		handler.ServeHTTP(w, httpReq)
		return nil
	})
	return nil
}

// Mount registers a plain handler for a prefix and everything below it.
func (a *BunRouterAdapter) Mount(path string, handler http.Handler) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("bunrouter rejected mount %s: %v", path, rec)
		}
	}()

	handlerFunc := func(w http.ResponseWriter, req bunrouter.Request) error {
		handler.ServeHTTP(w, paramsIntoContext(req))
		return nil
	}

	methods := []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodDelete,
		http.MethodPatch,
		http.MethodOptions,
		http.MethodHead,
	}

	var mountPath string
	if strings.HasSuffix(path, "/*") {
		mountPath = path + "filepath"
	} else {
		// Serve the exact prefix as well as everything beneath it.
		for _, method := range methods {
			a.router.Handle(method, path, handlerFunc)
		}
		mountPath = strings.TrimSuffix(path, "/") + "/*filepath"
	}
	for _, method := range methods {
		a.router.Handle(method, mountPath, handlerFunc)
	}
	return nil
}

// paramsIntoContext copies the engine's path parameters into the request
// context under the shared key, with the wildcard reachable as "*".
func paramsIntoContext(req bunrouter.Request) *http.Request {
	httpReq := req.Request
	params := req.Params().Map()
	if filepath, ok := params["filepath"]; ok {
		params["*"] = filepath
	}

	//nolint:staticcheck // plain string key shared across router adapters
	ctx := context.WithValue(httpReq.Context(), shared.ParamsContextKey, params)
	return httpReq.WithContext(ctx)
}

// UseGlobal registers middleware that runs before routing, for every
// request including unmatched ones. CORS preflight handling depends on
// this.
func (a *BunRouterAdapter) UseGlobal(middleware func(http.Handler) http.Handler) {
	a.globalMiddlewares = append(a.globalMiddlewares, middleware)
}

// ServeHTTP dispatches requests through the global middleware chain into
// the engine.
func (a *BunRouterAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if len(a.globalMiddlewares) > 0 {
		handler := http.Handler(a.router)
		// First added wraps outermost.
		for i := len(a.globalMiddlewares) - 1; i >= 0; i-- {
			handler = a.globalMiddlewares[i](handler)
		}
		handler.ServeHTTP(w, r)
		return
	}
	a.router.ServeHTTP(w, r)
}

// Close cleans up resources.
func (a *BunRouterAdapter) Close() error {
	return nil
}

// convertPathToBunRouter normalizes route patterns to bunrouter's dialect:
// ":param" stays as-is, "{param}" becomes ":param", and unnamed wildcards
// get the name bunrouter requires.
func convertPathToBunRouter(path string) string {
	var result strings.Builder
	inBraces := false
	for i := 0; i < len(path); i++ {
		switch ch := path[i]; ch {
		case '{':
			inBraces = true
			result.WriteByte(':')
		case '}':
			if inBraces {
				inBraces = false
			} else {
				result.WriteByte(ch)
			}
		default:
			result.WriteByte(ch)
		}
	}
	path = result.String()

	if strings.HasSuffix(path, "/*") {
		path += "filepath"
	}
	path = strings.ReplaceAll(path, "/*/", "/*filepath/")
	return path
}
