package container

import (
	"context"
	"fmt"

	"github.com/xraph/loom/internal/graph"
	"github.com/xraph/loom/internal/shared"
)

// Lazy is the handle injected for dependencies declared with DepLazy.
// Resolution is deferred until Get, which lets two providers depend on each
// other as long as neither touches the other inside its constructor.
type Lazy struct {
	container *Container
	node      *graph.Node
	token     shared.Token
}

// Token returns the dependency token this handle resolves.
func (l *Lazy) Token() shared.Token { return l.token }

// Get resolves the dependency on first use and returns the cached instance
// afterwards. Get starts a fresh resolution path, so a cycle broken by a
// lazy edge resolves instead of erroring.
func (l *Lazy) Get(ctx context.Context) (any, error) {
	return l.container.resolveFrom(ctx, l.node, l.token, newFlight(), nil)
}

// MustGet is Get for call sites that cannot propagate an error. It panics
// when resolution fails.
func (l *Lazy) MustGet(ctx context.Context) any {
	v, err := l.Get(ctx)
	if err != nil {
		panic(fmt.Sprintf("lazy dependency %q failed to resolve: %v", l.token, err))
	}
	return v
}

// IsResolved reports whether the instance already settled successfully,
// without triggering resolution.
func (l *Lazy) IsResolved() bool {
	declaring, ok := l.node.Declaring(l.token)
	if !ok {
		return false
	}
	key := entryKey{module: declaring.Name(), token: l.token}

	l.container.mu.Lock()
	defer l.container.mu.Unlock()
	e, ok := l.container.entries[key]
	return ok && e.state == stateResolved
}
