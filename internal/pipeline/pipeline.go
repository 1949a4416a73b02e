// Package pipeline turns module middleware configuration into per-route
// chains.
//
// Each module's Configure callback records bindings against a consumer.
// Bindings merge in module-tree preorder, so a parent's middleware always
// wraps its imports' middleware, and within one module bindings keep their
// declaration order. Token references resolve through the container while
// the table is built; a missing or malformed middleware fails startup, not
// a request.
package pipeline

import (
	"context"

	"github.com/xraph/loom/errors"
	"github.com/xraph/loom/internal/container"
	"github.com/xraph/loom/internal/graph"
	"github.com/xraph/loom/internal/shared"
)

// consumer records one module's bindings during Configure.
type consumer struct {
	regs []*registration
}

func (c *consumer) Apply(refs ...shared.MiddlewareRef) shared.MiddlewareBinding {
	r := &registration{refs: refs}
	c.regs = append(c.regs, r)
	return r
}

type registration struct {
	refs      []shared.MiddlewareRef
	config    any
	hasConfig bool
	matchers  []shared.RouteMatcher
}

func (r *registration) WithConfig(cfg any) shared.MiddlewareBinding {
	r.config = cfg
	r.hasConfig = true
	return r
}

func (r *registration) ForRoutes(matchers ...shared.RouteMatcher) shared.MiddlewareBinding {
	r.matchers = append(r.matchers, matchers...)
	return r
}

// binding is a materialized registration: refs resolved to callable
// middleware, ready for route matching.
type binding struct {
	module     string
	middleware []shared.Middleware
	matchers   []shared.RouteMatcher
}

func (b *binding) matches(ref shared.RouteRef) bool {
	if len(b.matchers) == 0 {
		return true
	}
	for _, m := range b.matchers {
		if m.Matches(ref) {
			return true
		}
	}
	return false
}

// Table holds every binding of the application in global order.
type Table struct {
	bindings []*binding
}

// Build collects middleware bindings from every module in preorder and
// materializes them. Token middleware resolve in the binding module's scope;
// resolution or contract failures abort the build.
func Build(ctx context.Context, g *graph.Graph, c *container.Container) (*Table, error) {
	t := &Table{}
	for _, node := range g.Preorder() {
		mod := node.Module()
		if mod.Configure == nil {
			continue
		}
		cons := &consumer{}
		mod.Configure(cons)

		for _, reg := range cons.regs {
			b := &binding{module: mod.Name, matchers: reg.matchers}
			for _, ref := range reg.refs {
				mw, err := materialize(ctx, c, mod.Name, ref, reg)
				if err != nil {
					return nil, err
				}
				b.middleware = append(b.middleware, mw)
			}
			t.bindings = append(t.bindings, b)
		}
	}
	return t, nil
}

func materialize(ctx context.Context, c *container.Container, module string, ref shared.MiddlewareRef, reg *registration) (shared.Middleware, error) {
	if ref.Token == "" {
		if ref.Func == nil {
			return nil, errors.ErrInvalidProvider(module, "",
				"middleware reference carries neither token nor function")
		}
		if reg.hasConfig {
			return nil, errors.ErrInvalidProvider(module, "",
				"WithConfig requires token middleware; an inline function cannot receive configuration")
		}
		return ref.Func, nil
	}

	inst, err := c.Resolve(ctx, module, ref.Token)
	if err != nil {
		return nil, err
	}

	// A configured binding must be able to deliver its config; dropping it
	// silently would hide a wiring mistake until runtime behavior diverges.
	if reg.hasConfig {
		cfgable, ok := inst.(shared.Configurable)
		if !ok {
			return nil, errors.ErrInvalidProvider(module, string(ref.Token),
				"WithConfig was given but the middleware does not implement Configurable")
		}
		if err := cfgable.Configure(reg.config); err != nil {
			return nil, errors.ErrConfigError(
				"middleware '"+string(ref.Token)+"' rejected its configuration", err)
		}
	}

	switch mw := inst.(type) {
	case shared.Middleware:
		return mw, nil
	case func(shared.Handler) shared.Handler:
		return mw, nil
	case shared.MiddlewareHandler:
		return func(next shared.Handler) shared.Handler {
			return func(ctx shared.Context) error {
				return mw.Handle(ctx, next)
			}
		}, nil
	case func(shared.Context, shared.Handler) error:
		return func(next shared.Handler) shared.Handler {
			return func(ctx shared.Context) error {
				return mw(ctx, next)
			}
		}, nil
	default:
		return nil, errors.ErrInvalidProvider(module, string(ref.Token),
			"middleware token must resolve to a Middleware, a MiddlewareHandler, or func(Context, Handler) error")
	}
}

// ChainFor returns the middleware selected for a route, outermost first.
// Matching bindings contribute their middleware in global binding order.
func (t *Table) ChainFor(ref shared.RouteRef) []shared.Middleware {
	var chain []shared.Middleware
	for _, b := range t.bindings {
		if b.matches(ref) {
			chain = append(chain, b.middleware...)
		}
	}
	return chain
}

// Len returns the number of bindings in the table.
func (t *Table) Len() int { return len(t.bindings) }
