package loom

import (
	"github.com/xraph/loom/internal/container"
	"github.com/xraph/loom/internal/shared"
)

// Module declares a unit of composition: providers, imports, exports,
// controllers and middleware configuration.
type Module = shared.Module

// Provider declares how one token is constructed. Build one with Value,
// Class, Factory or Provide rather than filling the struct by hand.
type Provider = shared.Provider

// Token identifies a provider within a module graph.
type Token = shared.Token

// Dep is one dependency edge of a provider, built with Use, Lazy or
// Optional.
type Dep = shared.Dep

// Constructor is the class-style construction function: resolved
// dependencies in, instance out.
type Constructor = shared.Constructor

// FactoryFunc is the factory-style construction function; it may return a
// Deferred to construct asynchronously.
type FactoryFunc = shared.Factory

// LazyHandle is what a Lazy dependency injects: a deferred resolution that
// constructs the target on the first Get.
type LazyHandle = container.Lazy

// Value declares a provider holding a pre-built instance. The instance is
// shared as-is; no dependencies are resolved. A nil instance is legal and
// resolves to nil.
func Value(token Token, instance any) Provider {
	return Provider{Token: token, Value: instance, HasValue: true}
}

// Class declares a provider constructed by ctor, which receives the
// instances of deps in declaration order.
func Class(token Token, ctor Constructor, deps ...Dep) Provider {
	return Provider{Token: token, New: ctor, Inject: deps}
}

// Factory declares a provider constructed by fn. Unlike Class the function
// may return a Deferred, letting construction finish on a background
// goroutine while dependents wait only when they actually resolve it.
func Factory(token Token, fn FactoryFunc, deps ...Dep) Provider {
	return Provider{Token: token, Factory: fn, Inject: deps}
}

// Eager marks a provider for construction during App.Start instead of on
// first use.
func Eager(p Provider) Provider {
	p.Eager = true
	return p
}

// Use declares an ordinary dependency: the target is constructed before the
// dependent and injected directly.
func Use(token Token) Dep {
	return Dep{Token: token, Mode: shared.DepUse}
}

// Lazy declares a deferred dependency: the dependent receives a *LazyHandle
// and the target is constructed on the handle's first Get. Lazy edges do not
// participate in construction-order cycles.
func Lazy(token Token) Dep {
	return Dep{Token: token, Mode: shared.DepLazy}
}

// Optional declares a dependency that may be absent: when no visible
// provider declares the token the dependent receives nil instead of an
// error.
func Optional(token Token) Dep {
	return Dep{Token: token, Mode: shared.DepOptional}
}
