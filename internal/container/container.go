// Package container holds the instances of a resolved module graph.
//
// Every (declaring module, token) pair caches at most one instance.
// Resolution is lazy and single-flight: the first requester constructs,
// concurrent requesters wait for the same entry, and a dependency cycle
// reports an error instead of deadlocking, even when its halves resolve on
// different goroutines.
package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/xraph/loom/errors"
	"github.com/xraph/loom/internal/graph"
	"github.com/xraph/loom/internal/shared"
)

type entryState int

const (
	stateUnresolved entryState = iota
	stateResolving
	stateResolved
	stateFailed
)

func (s entryState) String() string {
	switch s {
	case stateUnresolved:
		return "unresolved"
	case stateResolving:
		return "resolving"
	case stateResolved:
		return "resolved"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type entryKey struct {
	module string
	token  shared.Token
}

func (k entryKey) String() string {
	return k.module + "/" + string(k.token)
}

type entry struct {
	key     entryKey
	state   entryState
	value   any
	err     error
	done    chan struct{}
	started bool

	// flight identifies the resolution that claimed this entry, for the
	// duration of stateResolving only.
	flight *flight
}

// flight identifies one top-level resolution: a Resolve call or a Lazy.Get.
// Entries claimed during the same flight share it, which is what lets a
// waiter tell "someone else is constructing this" apart from "my own
// resolution looped back through another goroutine".
type flight struct {
	id uint64
}

var flightSeq atomic.Uint64

func newFlight() *flight {
	return &flight{id: flightSeq.Add(1)}
}

// Container resolves and caches provider instances for one module graph.
type Container struct {
	graph *graph.Graph

	mu      sync.Mutex
	entries map[entryKey]*entry

	// waiting records, per parked flight, the entry it is blocked on.
	// Together with entry.flight this forms a waits-for graph; a flight
	// that would close a loop in it gets a cycle error instead of parking.
	waiting map[*flight]entryKey

	// order lists settled entries in construction order for lifecycle
	// hooks: OnStart walks it forward, OnStop backward.
	order []*entry

	// autoStart is set once StartInstances has run; instances
	// constructed afterwards receive their OnStart immediately.
	autoStart bool
}

// New creates an empty container over a resolved graph.
func New(g *graph.Graph) *Container {
	return &Container{
		graph:   g,
		entries: make(map[entryKey]*entry),
		waiting: make(map[*flight]entryKey),
	}
}

// Graph returns the module graph this container resolves against.
func (c *Container) Graph() *graph.Graph { return c.graph }

// Resolve returns the instance for token as seen from the named module. The
// instance is cached under its declaring module, so every importer shares
// the same value. Tokens outside the module's visibility fail with a
// provider-not-found error.
func (c *Container) Resolve(ctx context.Context, module string, token shared.Token) (any, error) {
	node, ok := c.graph.Node(module)
	if !ok {
		return nil, errors.ErrUnknownModule(module)
	}
	return c.resolveFrom(ctx, node, token, newFlight(), nil)
}

// Scope returns a resolver bound to one module, for request contexts and
// adapters that resolve tokens on behalf of that module.
func (c *Container) Scope(module string) shared.Resolver {
	return scopeResolver{c: c, module: module}
}

type scopeResolver struct {
	c      *Container
	module string
}

func (r scopeResolver) Resolve(ctx context.Context, token shared.Token) (any, error) {
	return r.c.Resolve(ctx, r.module, token)
}

func (c *Container) resolveFrom(ctx context.Context, node *graph.Node, token shared.Token, fl *flight, path []entryKey) (any, error) {
	declaring, ok := node.Declaring(token)
	if !ok {
		return nil, errors.ErrProviderNotFound(string(token), node.Name())
	}
	return c.resolveEntry(ctx, declaring, token, fl, path)
}

func (c *Container) resolveEntry(ctx context.Context, declaring *graph.Node, token shared.Token, fl *flight, path []entryKey) (any, error) {
	key := entryKey{module: declaring.Name(), token: token}

	for {
		c.mu.Lock()
		e, ok := c.entries[key]
		if !ok {
			e = &entry{key: key, done: make(chan struct{})}
			c.entries[key] = e
		}

		switch e.state {
		case stateResolved:
			v := e.value
			c.mu.Unlock()
			return v, nil

		case stateFailed:
			err := e.err
			c.mu.Unlock()
			return nil, err

		case stateResolving:
			if onPath(path, key) {
				c.mu.Unlock()
				return nil, errors.ErrCircularDependency(pathStrings(append(path, key)))
			}
			if chain := c.wouldDeadlock(fl, e); chain != nil {
				c.mu.Unlock()
				full := make([]entryKey, 0, len(path)+len(chain))
				full = append(full, path...)
				full = append(full, chain...)
				return nil, errors.ErrCircularDependency(pathStrings(full))
			}
			c.waiting[fl] = key
			done := e.done
			c.mu.Unlock()
			select {
			case <-done:
				c.mu.Lock()
				delete(c.waiting, fl)
				c.mu.Unlock()
				// Re-read the settled state.
			case <-ctx.Done():
				c.mu.Lock()
				delete(c.waiting, fl)
				c.mu.Unlock()
				return nil, errors.NewError(errors.CodeContextCancelled,
					"context cancelled while waiting for "+key.String(), ctx.Err())
			}

		case stateUnresolved:
			e.state = stateResolving
			e.flight = fl
			c.mu.Unlock()
			return c.construct(ctx, e, declaring, token, fl, append(path, key))
		}
	}
}

// wouldDeadlock reports whether parking fl on e would close a loop in the
// waits-for graph: e's constructing flight is blocked, directly or through
// other in-flight constructions, on an entry fl itself is constructing. The
// onPath check above only sees one goroutine's path, so a cycle split across
// concurrent resolutions reaches here. The returned keys extend the caller's
// path up to the entry that closes the cycle; nil means parking is safe.
// Caller holds c.mu.
func (c *Container) wouldDeadlock(fl *flight, e *entry) []entryKey {
	chain := []entryKey{e.key}
	seen := map[*flight]bool{}
	cur := e
	for {
		holder := cur.flight
		if holder == fl {
			return chain
		}
		if holder == nil || seen[holder] {
			return nil
		}
		seen[holder] = true
		next, parked := c.waiting[holder]
		if !parked {
			return nil
		}
		ne, ok := c.entries[next]
		if !ok || ne.state != stateResolving {
			return nil
		}
		chain = append(chain, ne.key)
		cur = ne
	}
}

// construct builds the instance for e, settles the entry exactly once and
// wakes every waiter. The entry is already marked resolving.
func (c *Container) construct(ctx context.Context, e *entry, declaring *graph.Node, token shared.Token, fl *flight, path []entryKey) (any, error) {
	provider, _ := declaring.Provider(token)
	value, err := c.build(ctx, declaring, provider, fl, path)

	var startable shared.Startable
	if err == nil {
		c.mu.Lock()
		if c.autoStart && !e.started {
			if s, ok := value.(shared.Startable); ok {
				e.started = true
				startable = s
			}
		}
		c.mu.Unlock()
		if startable != nil {
			if startErr := startable.OnStart(ctx); startErr != nil {
				err = errors.ErrLifecycleError("start", startErr).
					WithContext("token", string(token)).
					WithContext("module", declaring.Name())
			}
		}
	}

	c.mu.Lock()
	e.flight = nil
	if err != nil {
		e.state = stateFailed
		e.err = err
	} else {
		e.state = stateResolved
		e.value = value
		c.order = append(c.order, e)
	}
	close(e.done)
	c.mu.Unlock()

	return value, err
}

// build runs the provider's instantiation strategy with resolved
// dependencies.
func (c *Container) build(ctx context.Context, declaring *graph.Node, p *shared.Provider, fl *flight, path []entryKey) (any, error) {
	strategy, err := p.Strategy()
	if err != nil {
		return nil, errors.ErrInvalidProvider(declaring.Name(), string(p.Token), err.Error())
	}

	// Value providers never resolve dependencies, declared or not.
	if strategy == "value" {
		return p.Value, nil
	}

	args := make([]any, len(p.Inject))
	for i, dep := range p.Inject {
		switch dep.Mode {
		case shared.DepLazy:
			if !declaring.Visible(dep.Token) {
				return nil, errors.ErrProviderNotFound(string(dep.Token), declaring.Name())
			}
			args[i] = &Lazy{container: c, node: declaring, token: dep.Token}

		case shared.DepOptional:
			if !declaring.Visible(dep.Token) {
				args[i] = nil
				continue
			}
			v, depErr := c.resolveFrom(ctx, declaring, dep.Token, fl, path)
			if depErr != nil {
				return nil, depErr
			}
			args[i] = v

		default: // shared.DepUse
			v, depErr := c.resolveFrom(ctx, declaring, dep.Token, fl, path)
			if depErr != nil {
				return nil, depErr
			}
			args[i] = v
		}
	}

	var fn func(deps ...any) (any, error)
	if strategy == "class" {
		fn = p.New
	} else {
		fn = p.Factory
	}

	value, err := invoke(fn, args)
	if err != nil {
		return nil, errors.ErrFactory(string(p.Token), declaring.Name(), err)
	}

	// Only factories may defer construction; the result is awaited here so
	// the cache always holds settled values.
	if deferred, ok := value.(shared.Deferred); ok && strategy == "factory" {
		value, err = deferred.Await(ctx)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil, errors.NewError(errors.CodeContextCancelled,
					"context cancelled awaiting deferred provider '"+string(p.Token)+"'", err)
			}
			return nil, errors.ErrFactory(string(p.Token), declaring.Name(), err)
		}
	}

	return value, nil
}

// invoke calls a constructor or factory, converting panics into errors so a
// misbehaving provider cannot take down resolution.
func invoke(fn func(deps ...any) (any, error), args []any) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			value = nil
			err = fmt.Errorf("panic during construction: %v", rec)
		}
	}()
	return fn(args...)
}

func onPath(path []entryKey, key entryKey) bool {
	for _, p := range path {
		if p == key {
			return true
		}
	}
	return false
}

func pathStrings(path []entryKey) []string {
	out := make([]string, len(path))
	for i, p := range path {
		out[i] = p.String()
	}
	return out
}

// StartInstances runs OnStart on every resolved instance that implements
// Startable, in construction order. Instances resolved afterwards start
// immediately upon construction. The first failing hook aborts the walk.
func (c *Container) StartInstances(ctx context.Context) error {
	c.mu.Lock()
	c.autoStart = true
	snapshot := make([]*entry, len(c.order))
	copy(snapshot, c.order)
	c.mu.Unlock()

	for _, e := range snapshot {
		c.mu.Lock()
		s, ok := e.value.(shared.Startable)
		claim := ok && !e.started
		if claim {
			e.started = true
		}
		c.mu.Unlock()
		if !claim {
			continue
		}
		if err := s.OnStart(ctx); err != nil {
			return errors.ErrLifecycleError("start", err).
				WithContext("token", string(e.key.token)).
				WithContext("module", e.key.module)
		}
	}
	return nil
}

// StopInstances runs OnStop on started instances in reverse construction
// order. All hooks run even when some fail; their errors are joined.
func (c *Container) StopInstances(ctx context.Context) error {
	c.mu.Lock()
	c.autoStart = false
	snapshot := make([]*entry, len(c.order))
	copy(snapshot, c.order)
	c.mu.Unlock()

	var errs []error
	for i := len(snapshot) - 1; i >= 0; i-- {
		e := snapshot[i]
		c.mu.Lock()
		s, ok := e.value.(shared.Stoppable)
		claim := ok && e.started
		if claim {
			e.started = false
		}
		c.mu.Unlock()
		if !claim {
			continue
		}
		if err := s.OnStop(ctx); err != nil {
			errs = append(errs, errors.ErrLifecycleError("stop", err).
				WithContext("token", string(e.key.token)).
				WithContext("module", e.key.module))
		}
	}
	return errors.Join(errs...)
}

// HealthCheck asks every resolved instance implementing HealthReporter for
// its status. Keys are "module/token"; a nil value means healthy.
func (c *Container) HealthCheck(ctx context.Context) map[string]error {
	c.mu.Lock()
	snapshot := make([]*entry, len(c.order))
	copy(snapshot, c.order)
	c.mu.Unlock()

	results := make(map[string]error)
	for _, e := range snapshot {
		if h, ok := e.value.(shared.HealthReporter); ok {
			results[e.key.String()] = h.Health(ctx)
		}
	}
	return results
}

// EntryInfo describes one cache entry for inspection endpoints and tests.
type EntryInfo struct {
	Module string `json:"module"`
	Token  string `json:"token"`
	State  string `json:"state"`
}

// Report snapshots the cache contents in construction order, followed by
// entries that never settled successfully.
func (c *Container) Report() []EntryInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]EntryInfo, 0, len(c.entries))
	listed := make(map[entryKey]bool, len(c.order))
	for _, e := range c.order {
		listed[e.key] = true
		out = append(out, EntryInfo{Module: e.key.module, Token: string(e.key.token), State: e.state.String()})
	}
	for key, e := range c.entries {
		if !listed[key] {
			out = append(out, EntryInfo{Module: key.module, Token: string(key.token), State: e.state.String()})
		}
	}
	return out
}
