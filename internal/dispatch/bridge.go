// Package dispatch executes handlers behind their middleware chains and
// carries resolved module scopes into request and message contexts.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/loom/errors"
	"github.com/xraph/loom/internal/container"
	"github.com/xraph/loom/internal/graph"
	"github.com/xraph/loom/internal/pipeline"
	"github.com/xraph/loom/internal/shared"
	"github.com/xraph/loom/logger"
)

// Outcome reports how far a dispatch travelled.
type Outcome int

const (
	// Handled means the terminal handler was invoked.
	Handled Outcome = iota

	// NotForwarded means a middleware completed the request without
	// calling the rest of the chain. Declining to forward is not an
	// error.
	NotForwarded

	// Aborted means cancellation stopped the chain before the next step.
	Aborted
)

func (o Outcome) String() string {
	switch o {
	case Handled:
		return "handled"
	case NotForwarded:
		return "not-forwarded"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Execute runs ctx through the middleware chain into terminal. Every step,
// including the terminal call, is guarded by a cancellation check so a dead
// request stops at the next layer instead of running to completion. The
// outcome tells whether the terminal ran; any handler or middleware error is
// returned alongside it.
func Execute(ctx shared.Context, chain []shared.Middleware, terminal shared.Handler) (Outcome, error) {
	invoked := false

	h := func(c shared.Context) error {
		if err := c.Err(); err != nil {
			return cancelled("terminal handler", err)
		}
		invoked = true
		return terminal(c)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		inner := chain[i](h)
		h = func(c shared.Context) error {
			if err := c.Err(); err != nil {
				return cancelled("middleware", err)
			}
			return inner(c)
		}
	}

	err := h(ctx)
	switch {
	case err != nil && isCancellation(err):
		return Aborted, err
	case invoked:
		return Handled, err
	default:
		return NotForwarded, err
	}
}

func isCancellation(err error) bool {
	return errors.IsContextCancelled(err) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func cancelled(at string, cause error) error {
	return errors.NewError(errors.CodeContextCancelled,
		"request cancelled before "+at, cause)
}

// Boundary classifies an error at the edge of the framework. Reportable
// errors pass through so adapters can map them to status codes; anything
// else is wrapped as an opaque internal error to avoid leaking internals.
func Boundary(err error) errors.Reportable {
	if err == nil {
		return nil
	}
	var reportable errors.Reportable
	if errors.As(err, &reportable) {
		return reportable
	}
	return errors.InternalError(err)
}

// BoundPattern is one message pattern bound through the bridge.
type BoundPattern struct {
	Module  string
	Pattern shared.Pattern
	Handle  shared.MessageHandler
}

// Bridge connects the resolved graph to transports: it composes route
// handlers with their middleware chains, wraps pattern handlers with the
// error boundary, and hands module-scoped resolvers to request contexts.
type Bridge struct {
	graph     *graph.Graph
	container *container.Container
	table     *pipeline.Table
	log       logger.Logger

	mu       sync.RWMutex
	routes   []shared.RouteInfo
	patterns []BoundPattern
	byKey    map[string]int
}

// NewBridge wires a bridge over a resolved graph, its container, and the
// built middleware table.
func NewBridge(g *graph.Graph, c *container.Container, t *pipeline.Table, log logger.Logger) *Bridge {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &Bridge{
		graph:     g,
		container: c,
		table:     t,
		log:       log,
		byKey:     make(map[string]int),
	}
}

// Instance resolves a token as seen from the named module. Adapters and the
// test harness use this read-through accessor.
func (b *Bridge) Instance(ctx context.Context, module string, token shared.Token) (any, error) {
	return b.container.Resolve(ctx, module, token)
}

// Scope returns a resolver bound to one module.
func (b *Bridge) Scope(module string) shared.Resolver {
	return b.container.Scope(module)
}

// MiddlewareFor returns the composed middleware chain a route would run,
// outermost first.
func (b *Bridge) MiddlewareFor(ref shared.RouteRef) []shared.Middleware {
	return b.table.ChainFor(ref)
}

// RouteHandler builds the dispatchable handler for one route: the module
// pipeline's chain for the route, then route-local middleware, then the
// terminal. The chain is fixed at bind time; execution guards run per
// request.
func (b *Bridge) RouteHandler(ref shared.RouteRef, routeMW []shared.Middleware, terminal shared.Handler) shared.Handler {
	chain := b.table.ChainFor(ref)
	if len(routeMW) > 0 {
		chain = append(append(make([]shared.Middleware, 0, len(chain)+len(routeMW)), chain...), routeMW...)
	}
	return func(ctx shared.Context) error {
		_, err := Execute(ctx, chain, terminal)
		return err
	}
}

// RecordRoute registers a bound route for inspection.
func (b *Bridge) RecordRoute(info shared.RouteInfo) {
	b.mu.Lock()
	b.routes = append(b.routes, info)
	b.mu.Unlock()
	b.log.Debug("route bound",
		logger.String("module", info.Module),
		logger.String("method", info.Method),
		logger.String("path", info.Path))
}

// Routes lists every bound route in registration order.
func (b *Bridge) Routes() []shared.RouteInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]shared.RouteInfo, len(b.routes))
	copy(out, b.routes)
	return out
}

// RegisterPattern binds a message pattern for the named module. The handler
// is wrapped so the module's resolver rides the message context and errors
// cross the boundary as reportable failures. Binding the same canonical
// pattern twice is a startup error.
func (b *Bridge) RegisterPattern(module string, ph shared.PatternHandler) error {
	key := ph.Pattern.Key()
	if key == "" {
		return errors.ErrValidationError("pattern", errors.New("pattern key is empty"))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, dup := b.byKey[key]; dup {
		return errors.ErrValidationError("pattern",
			fmt.Errorf("pattern %q is bound more than once", key))
	}

	scope := b.container.Scope(module)
	handle := ph.Handle
	wrapped := func(ctx context.Context, payload []byte) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, cancelled("message handler", err)
		}
		reply, err := handle(WithResolver(ctx, scope), payload)
		if err != nil {
			return nil, Boundary(err)
		}
		return reply, nil
	}

	b.byKey[key] = len(b.patterns)
	b.patterns = append(b.patterns, BoundPattern{Module: module, Pattern: ph.Pattern, Handle: wrapped})
	b.log.Debug("pattern bound",
		logger.String("module", module),
		logger.String("pattern", key))
	return nil
}

// Patterns lists every bound pattern in registration order.
func (b *Bridge) Patterns() []BoundPattern {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]BoundPattern, len(b.patterns))
	copy(out, b.patterns)
	return out
}

// Pattern returns the bound handler for a canonical pattern key.
func (b *Bridge) Pattern(key string) (BoundPattern, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	i, ok := b.byKey[key]
	if !ok {
		return BoundPattern{}, false
	}
	return b.patterns[i], true
}

type resolverContextKey struct{}

// WithResolver attaches a module-scoped resolver to a context.
func WithResolver(ctx context.Context, r shared.Resolver) context.Context {
	return context.WithValue(ctx, resolverContextKey{}, r)
}

// ResolverFromContext extracts the module-scoped resolver placed on the
// context by the bridge, if any.
func ResolverFromContext(ctx context.Context) (shared.Resolver, bool) {
	r, ok := ctx.Value(resolverContextKey{}).(shared.Resolver)
	return r, ok
}
