// Package extras ships alternative router adapters. The default engine is
// bunrouter; these let an application swap in chi or httprouter without
// touching handlers, since all adapters publish path parameters the same
// way.
package extras

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/loom/internal/shared"
)

// ChiAdapter runs routes on go-chi/chi.
type ChiAdapter struct {
	mux               chi.Router
	globalMiddlewares []func(http.Handler) http.Handler
}

// NewChiAdapter creates a chi-backed router adapter.
func NewChiAdapter() *ChiAdapter {
	return &ChiAdapter{mux: chi.NewRouter()}
}

// Handle registers a route. Chi panics on malformed patterns; those
// surface as errors so startup can report them.
func (a *ChiAdapter) Handle(method, path string, handler http.Handler) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("chi rejected %s %s: %v", method, path, rec)
		}
	}()

	a.mux.Method(method, convertPathToChi(path), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, chiParamsIntoContext(r))
	}))
	return nil
}

// Mount attaches a plain handler under a prefix, delegating to chi's
// native mounting.
func (a *ChiAdapter) Mount(path string, handler http.Handler) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("chi rejected mount %s: %v", path, rec)
		}
	}()

	a.mux.Mount(strings.TrimSuffix(path, "/*"), handler)
	return nil
}

// UseGlobal registers middleware that runs before routing, for every
// request including unmatched ones.
func (a *ChiAdapter) UseGlobal(middleware func(http.Handler) http.Handler) {
	a.globalMiddlewares = append(a.globalMiddlewares, middleware)
}

// ServeHTTP dispatches requests through the global middleware chain into
// the engine.
func (a *ChiAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if len(a.globalMiddlewares) > 0 {
		handler := http.Handler(a.mux)
		for i := len(a.globalMiddlewares) - 1; i >= 0; i-- {
			handler = a.globalMiddlewares[i](handler)
		}
		handler.ServeHTTP(w, r)
		return
	}
	a.mux.ServeHTTP(w, r)
}

// Close cleans up resources.
func (a *ChiAdapter) Close() error { return nil }

// chiParamsIntoContext copies chi's URL parameters into the request
// context under the shared key. Chi already names its wildcard "*".
func chiParamsIntoContext(r *http.Request) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r
	}

	params := make(map[string]string, len(rctx.URLParams.Keys))
	for i, key := range rctx.URLParams.Keys {
		if key == "" {
			continue
		}
		params[key] = rctx.URLParams.Values[i]
	}

	//nolint:staticcheck // plain string key shared across router adapters
	ctx := context.WithValue(r.Context(), shared.ParamsContextKey, params)
	return r.WithContext(ctx)
}

// convertPathToChi rewrites ":param" segments into chi's "{param}" form.
// Braced parameters and trailing wildcards are already chi's dialect.
func convertPathToChi(path string) string {
	var result strings.Builder
	i := 0
	for i < len(path) {
		if path[i] == ':' {
			j := i + 1
			for j < len(path) && path[j] != '/' {
				j++
			}
			result.WriteString("{" + path[i+1:j] + "}")
			i = j
			continue
		}
		result.WriteByte(path[i])
		i++
	}
	return result.String()
}
