// Package loomtest hosts a started application for tests: it clones the
// module tree, swaps providers for fakes, starts the app with a silent
// logger and serves it through httptest. The caller's modules are never
// mutated, so package-level module declarations stay safe to share between
// tests.
package loomtest

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/xraph/loom"
	"github.com/xraph/loom/logger"
)

// Option adjusts harness construction.
type Option func(*options)

type options struct {
	overrides map[loom.Token]loom.Provider
	appOpts   []loom.Option
}

// WithValue replaces every provider declaring token, anywhere in the
// module tree, with a pre-built value.
func WithValue(token loom.Token, v any) Option {
	return func(o *options) {
		o.overrides[token] = loom.Value(token, v)
	}
}

// WithProvider replaces every provider declaring the override's token. The
// replacement is used as given, including its strategy and Eager flag.
func WithProvider(p loom.Provider) Option {
	return func(o *options) {
		o.overrides[p.Token] = p
	}
}

// WithAppOptions forwards application options (adapter, metrics, config)
// to loom.New.
func WithAppOptions(opts ...loom.Option) Option {
	return func(o *options) {
		o.appOpts = append(o.appOpts, opts...)
	}
}

// Harness is a started application plus the plumbing tests need around it.
type Harness struct {
	t    *testing.T
	app  *loom.App
	root string
	srv  *httptest.Server
}

// New clones root, applies overrides, builds and starts the application,
// and registers cleanup on t. Construction or start failures fail the test
// immediately.
func New(t *testing.T, root *loom.Module, opts ...Option) *Harness {
	t.Helper()

	o := options{overrides: make(map[loom.Token]loom.Provider)}
	for _, opt := range opts {
		opt(&o)
	}

	cloned := cloneModule(root, o.overrides, make(map[*loom.Module]*loom.Module))

	appOpts := append([]loom.Option{
		loom.WithLogger(logger.NewNoopLogger()),
		loom.WithoutBanner(),
	}, o.appOpts...)

	app, err := loom.New(cloned, appOpts...)
	if err != nil {
		t.Fatalf("building application: %v", err)
	}
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("starting application: %v", err)
	}
	t.Cleanup(func() {
		_ = app.Stop(context.Background())
	})

	return &Harness{t: t, app: app, root: cloned.Name}
}

// cloneModule copies the module tree with overrides applied. A module
// imported from several places is cloned once, so shared modules stay
// shared in the clone.
func cloneModule(m *loom.Module, overrides map[loom.Token]loom.Provider, seen map[*loom.Module]*loom.Module) *loom.Module {
	if clone, ok := seen[m]; ok {
		return clone
	}

	clone := &loom.Module{
		Name:      m.Name,
		Configure: m.Configure,
	}
	seen[m] = clone

	if len(m.Providers) > 0 {
		clone.Providers = make([]loom.Provider, len(m.Providers))
		for i, p := range m.Providers {
			if override, ok := overrides[p.Token]; ok {
				p = override
			}
			clone.Providers[i] = p
		}
	}
	clone.Controllers = append([]loom.Token(nil), m.Controllers...)
	clone.Exports = append([]loom.Token(nil), m.Exports...)

	if len(m.Imports) > 0 {
		clone.Imports = make([]*loom.Module, len(m.Imports))
		for i, imp := range m.Imports {
			clone.Imports[i] = cloneModule(imp, overrides, seen)
		}
	}
	return clone
}

// App returns the started application.
func (h *Harness) App() *loom.App { return h.app }

// Server lazily starts an httptest server over the application and closes
// it during cleanup.
func (h *Harness) Server() *httptest.Server {
	h.t.Helper()
	if h.srv == nil {
		h.srv = httptest.NewServer(h.app)
		h.t.Cleanup(h.srv.Close)
	}
	return h.srv
}

// URL joins the test server's base URL with path, starting the server if
// needed.
func (h *Harness) URL(path string) string {
	return h.Server().URL + path
}

// Get resolves a token as seen from the root module.
func (h *Harness) Get(token loom.Token) (any, error) {
	return h.GetFrom(h.root, token)
}

// MustGet resolves a token from the root module and fails the test on
// error.
func (h *Harness) MustGet(token loom.Token) any {
	h.t.Helper()
	v, err := h.Get(token)
	if err != nil {
		h.t.Fatalf("resolving %s: %v", token, err)
	}
	return v
}

// GetFrom resolves a token as seen from the named module, for tokens that
// are not visible at the root.
func (h *Harness) GetFrom(module string, token loom.Token) (any, error) {
	return h.app.Instance(context.Background(), module, token)
}

// MustGetFrom resolves a token from the named module and fails the test on
// error.
func (h *Harness) MustGetFrom(module string, token loom.Token) any {
	h.t.Helper()
	v, err := h.GetFrom(module, token)
	if err != nil {
		h.t.Fatalf("resolving %s from %s: %v", token, module, err)
	}
	return v
}
