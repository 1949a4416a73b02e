package shared

import (
	"fmt"
)

// Token identifies a provider inside a module graph. Tokens are plain
// strings so descriptors stay declarative and printable; the convention is
// "ServiceName" or "pkg.ServiceName" for type-derived names.
type Token string

// String returns the token's canonical name.
func (t Token) String() string { return string(t) }

// DepMode controls how a declared dependency is delivered to a constructor
// or factory.
type DepMode int

const (
	// DepUse resolves the dependency eagerly before the consumer is built.
	DepUse DepMode = iota

	// DepLazy injects a *Lazy handle; resolution happens on first Get.
	DepLazy

	// DepOptional resolves the dependency if it is visible, otherwise
	// injects nil without error.
	DepOptional
)

// String returns a human-readable mode name for diagnostics.
func (m DepMode) String() string {
	switch m {
	case DepUse:
		return "use"
	case DepLazy:
		return "lazy"
	case DepOptional:
		return "optional"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Dep declares one injected dependency of a provider.
type Dep struct {
	Token Token
	Mode  DepMode
}

// Constructor builds a provider instance from its resolved dependencies.
// Dependencies arrive in the order they were declared in Provider.Inject.
type Constructor func(deps ...any) (any, error)

// Factory produces a provider instance from its resolved dependencies. A
// factory may return a Deferred; the container awaits it before caching the
// instance.
type Factory func(deps ...any) (any, error)

// Provider describes how a single token is produced inside the module that
// declares it. Exactly one of Value, New, or Factory must be set.
type Provider struct {
	// Token is the identifier other providers and modules use to request
	// this instance.
	Token Token

	// Value registers a pre-built instance. Value providers never resolve
	// dependencies, even if Inject is populated.
	Value any

	// HasValue marks the value strategy explicitly, so a deliberate nil
	// Value still counts as a declared strategy and resolves to nil. The
	// loom.Value constructor sets it.
	HasValue bool

	// New is the class-style strategy: a constructor invoked once per
	// declaring module with resolved dependencies.
	New Constructor

	// Factory is the factory-style strategy. Unlike New it may return a
	// Deferred for asynchronous construction.
	Factory Factory

	// Inject lists the dependency tokens passed to New or Factory, in
	// argument order.
	Inject []Dep

	// Eager forces construction during application start instead of on
	// first request.
	Eager bool
}

// Strategy names the instantiation strategy a provider uses, or returns an
// error when zero or more than one strategy is set.
func (p Provider) Strategy() (string, error) {
	var set []string
	if p.HasValue || p.Value != nil {
		set = append(set, "value")
	}
	if p.New != nil {
		set = append(set, "class")
	}
	if p.Factory != nil {
		set = append(set, "factory")
	}
	switch len(set) {
	case 1:
		return set[0], nil
	case 0:
		return "", fmt.Errorf("provider %q declares no instantiation strategy", p.Token)
	default:
		return "", fmt.Errorf("provider %q declares multiple instantiation strategies (%v)", p.Token, set)
	}
}

// Module is the unit of composition: a named bundle of providers,
// controllers, imports, and exports. Modules form a directed acyclic graph
// through Imports; Exports controls which of a module's own tokens are
// visible to importers.
type Module struct {
	// Name identifies the module. Two distinct Module values sharing a
	// name are rejected during graph resolution.
	Name string

	// Imports lists the modules whose exported providers become visible
	// here. Visibility is not transitive unless re-exported.
	Imports []*Module

	// Providers declares the tokens this module constructs.
	Providers []Provider

	// Controllers lists provider tokens whose instances expose route
	// tables or message patterns. Controllers are always constructed
	// eagerly during application start.
	Controllers []Token

	// Exports lists the tokens importers may see. A token must be either
	// declared by this module or exported by one of its imports
	// (re-export).
	Exports []Token

	// Configure registers middleware bindings for this module. It runs
	// once during pipeline construction, parent before imports.
	Configure func(MiddlewareConsumer)
}

// Provides reports whether the module itself declares the token.
func (m *Module) Provides(token Token) bool {
	for _, p := range m.Providers {
		if p.Token == token {
			return true
		}
	}
	return false
}

// Exported reports whether the module exports the token.
func (m *Module) Exported(token Token) bool {
	for _, e := range m.Exports {
		if e == token {
			return true
		}
	}
	return false
}
