package extras

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/xraph/loom/internal/shared"
)

// HTTPRouterAdapter runs routes on julienschmidt/httprouter.
type HTTPRouterAdapter struct {
	router            *httprouter.Router
	globalMiddlewares []func(http.Handler) http.Handler
}

// NewHTTPRouterAdapter creates an httprouter-backed adapter.
func NewHTTPRouterAdapter() *HTTPRouterAdapter {
	router := httprouter.New()
	router.HandleMethodNotAllowed = false

	return &HTTPRouterAdapter{router: router}
}

// Handle registers a route. The engine panics on pattern conflicts; those
// surface as errors so startup can report them.
func (a *HTTPRouterAdapter) Handle(method, path string, handler http.Handler) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("httprouter rejected %s %s: %v", method, path, rec)
		}
	}()

	a.router.Handle(method, convertPathToHTTPRouter(path), func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		handler.ServeHTTP(w, httprouterParamsIntoContext(r, ps))
	})
	return nil
}

// Mount attaches a plain handler for everything under the prefix. The
// engine has no native mounting, so this registers a catch-all per method;
// a request for the bare prefix is redirected to prefix/ by the engine.
func (a *HTTPRouterAdapter) Mount(path string, handler http.Handler) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("httprouter rejected mount %s: %v", path, rec)
		}
	}()

	pattern := strings.TrimSuffix(strings.TrimSuffix(path, "/*"), "/") + "/*filepath"
	methods := []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodDelete,
		http.MethodPatch,
		http.MethodOptions,
		http.MethodHead,
	}
	for _, method := range methods {
		a.router.Handler(method, pattern, handler)
	}
	return nil
}

// UseGlobal registers middleware that runs before routing, for every
// request including unmatched ones.
func (a *HTTPRouterAdapter) UseGlobal(middleware func(http.Handler) http.Handler) {
	a.globalMiddlewares = append(a.globalMiddlewares, middleware)
}

// ServeHTTP dispatches requests through the global middleware chain into
// the engine.
func (a *HTTPRouterAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if len(a.globalMiddlewares) > 0 {
		handler := http.Handler(a.router)
		for i := len(a.globalMiddlewares) - 1; i >= 0; i-- {
			handler = a.globalMiddlewares[i](handler)
		}
		handler.ServeHTTP(w, r)
		return
	}
	a.router.ServeHTTP(w, r)
}

// Close cleans up resources.
func (a *HTTPRouterAdapter) Close() error { return nil }

// httprouterParamsIntoContext copies the engine's parameters into the
// request context under the shared key, with the catch-all reachable
// as "*".
func httprouterParamsIntoContext(r *http.Request, ps httprouter.Params) *http.Request {
	params := make(map[string]string, len(ps))
	for _, p := range ps {
		params[p.Key] = p.Value
	}
	if filepath, ok := params["filepath"]; ok {
		params["*"] = filepath
	}

	//nolint:staticcheck // plain string key shared across router adapters
	ctx := context.WithValue(r.Context(), shared.ParamsContextKey, params)
	return r.WithContext(ctx)
}

// convertPathToHTTPRouter rewrites "{param}" segments into ":param" and
// names trailing wildcards, which the engine requires.
func convertPathToHTTPRouter(path string) string {
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
	return path
}
