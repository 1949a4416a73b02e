// Package graph resolves a module tree into a validated dependency graph.
//
// Resolution walks imports depth-first from the root, rejecting cycles,
// duplicate names, and invalid declarations, then computes each module's
// visibility set: its own providers plus whatever its direct imports export.
// Export visibility is not transitive; a module re-exports an imported token
// explicitly or its own importers never see it.
package graph

import (
	"github.com/xraph/loom/errors"
	"github.com/xraph/loom/internal/shared"
)

// Node is one module inside a resolved graph.
type Node struct {
	module  *shared.Module
	imports []*Node

	// providers indexes the module's own declarations by token.
	providers map[shared.Token]*shared.Provider

	// visible maps every token this module may request to the node that
	// declares it. Own tokens map to the node itself.
	visible map[shared.Token]*Node

	// exported maps the module's exported tokens to their declaring
	// nodes, following re-export chains.
	exported map[shared.Token]*Node
}

// Name returns the module's name.
func (n *Node) Name() string { return n.module.Name }

// Module returns the module descriptor.
func (n *Node) Module() *shared.Module { return n.module }

// Imports returns the nodes of the module's direct imports, in declaration
// order.
func (n *Node) Imports() []*Node { return n.imports }

// Provider returns the module's own declaration for token.
func (n *Node) Provider(token shared.Token) (*shared.Provider, bool) {
	p, ok := n.providers[token]
	return p, ok
}

// Declaring returns the node that declares token within this module's
// visibility: the module itself, or the import whose exports carry it. Own
// declarations shadow imports; among imports the first match in declaration
// order wins.
func (n *Node) Declaring(token shared.Token) (*Node, bool) {
	d, ok := n.visible[token]
	return d, ok
}

// Visible reports whether the token can be requested from this module.
func (n *Node) Visible(token shared.Token) bool {
	_, ok := n.visible[token]
	return ok
}

// VisibleTokens lists every token this module may request, own providers
// first in declaration order, then imported tokens in import order.
func (n *Node) VisibleTokens() []shared.Token {
	tokens := make([]shared.Token, 0, len(n.visible))
	seen := make(map[shared.Token]bool, len(n.visible))
	for _, p := range n.module.Providers {
		if !seen[p.Token] {
			seen[p.Token] = true
			tokens = append(tokens, p.Token)
		}
	}
	for _, imp := range n.imports {
		for _, tok := range imp.module.Exports {
			if !seen[tok] {
				seen[tok] = true
				tokens = append(tokens, tok)
			}
		}
	}
	return tokens
}

// Graph is a resolved, validated module graph.
type Graph struct {
	root  *Node
	nodes map[string]*Node
	order []*Node
}

// Root returns the root module's node.
func (g *Graph) Root() *Node { return g.root }

// Node returns the node with the given module name.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Len returns the number of modules in the graph.
func (g *Graph) Len() int { return len(g.nodes) }

// Ordered returns the nodes in dependency order: every module appears after
// all of its imports. Lifecycle start walks this order; stop walks it
// reversed.
func (g *Graph) Ordered() []*Node {
	out := make([]*Node, len(g.order))
	copy(out, g.order)
	return out
}

// Preorder returns the nodes with each module ahead of its imports, imports
// in declaration order. Middleware bindings merge in this order so parent
// modules wrap their children.
func (g *Graph) Preorder() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	seen := make(map[*Node]bool, len(g.nodes))
	var walk func(n *Node)
	walk = func(n *Node) {
		if seen[n] {
			return
		}
		seen[n] = true
		out = append(out, n)
		for _, imp := range n.imports {
			walk(imp)
		}
	}
	walk(g.root)
	return out
}

// Resolve validates the module tree rooted at root and returns its graph.
// It fails on nil or unnamed modules, duplicate module names, import
// cycles, duplicate or malformed providers, undeclared controller tokens,
// and exports that are neither declared nor imported.
func Resolve(root *shared.Module) (*Graph, error) {
	if root == nil {
		return nil, errors.NewError(errors.CodeUnknownModule, "root module is nil", nil)
	}

	r := &resolver{
		nodes:    make(map[string]*Node),
		visiting: make(map[string]bool),
	}
	rootNode, err := r.walk(root, nil)
	if err != nil {
		return nil, err
	}

	g := &Graph{root: rootNode, nodes: r.nodes, order: r.order}
	for _, n := range g.order {
		if err := validateNode(n); err != nil {
			return nil, err
		}
	}
	// Exports and visibility build bottom-up so re-export chains are
	// already settled when an importer reads them.
	for _, n := range g.order {
		if err := bindExports(n); err != nil {
			return nil, err
		}
		bindVisibility(n)
	}
	return g, nil
}

type resolver struct {
	nodes    map[string]*Node
	visiting map[string]bool
	path     []string
	order    []*Node
}

func (r *resolver) walk(m *shared.Module, importer *shared.Module) (*Node, error) {
	if m == nil {
		from := "<root>"
		if importer != nil {
			from = importer.Name
		}
		return nil, errors.NewError(errors.CodeUnknownModule,
			"module '"+from+"' imports a nil module", nil)
	}
	if m.Name == "" {
		return nil, errors.NewError(errors.CodeUnknownModule,
			"module without a name cannot join the graph", nil)
	}

	if r.visiting[m.Name] {
		return nil, errors.ErrModuleCycle(append(cyclePath(r.path, m.Name), m.Name))
	}
	if existing, ok := r.nodes[m.Name]; ok {
		if existing.module != m {
			return nil, errors.ErrDuplicateModule(m.Name)
		}
		return existing, nil
	}

	node := &Node{
		module:    m,
		providers: make(map[shared.Token]*shared.Provider, len(m.Providers)),
	}
	r.nodes[m.Name] = node
	r.visiting[m.Name] = true
	r.path = append(r.path, m.Name)

	for _, imp := range m.Imports {
		child, err := r.walk(imp, m)
		if err != nil {
			return nil, err
		}
		node.imports = append(node.imports, child)
	}

	r.path = r.path[:len(r.path)-1]
	delete(r.visiting, m.Name)
	r.order = append(r.order, node)
	return node, nil
}

// cyclePath trims the traversal path to start at the first occurrence of
// name, so the reported cycle reads A -> B -> A rather than listing the
// whole walk.
func cyclePath(path []string, name string) []string {
	for i, p := range path {
		if p == name {
			return append([]string(nil), path[i:]...)
		}
	}
	return append([]string(nil), path...)
}

func validateNode(n *Node) error {
	m := n.module
	for i := range m.Providers {
		p := &m.Providers[i]
		if p.Token == "" {
			return errors.ErrInvalidProvider(m.Name, string(p.Token), "provider token is empty")
		}
		if _, dup := n.providers[p.Token]; dup {
			return errors.ErrDuplicateProvider(m.Name, string(p.Token))
		}
		if _, err := p.Strategy(); err != nil {
			return errors.ErrInvalidProvider(m.Name, string(p.Token), err.Error())
		}
		n.providers[p.Token] = p
	}
	for _, tok := range m.Controllers {
		if _, ok := n.providers[tok]; !ok {
			return errors.ErrInvalidProvider(m.Name, string(tok),
				"controller token is not declared by this module")
		}
	}
	return nil
}

func bindExports(n *Node) error {
	m := n.module
	n.exported = make(map[shared.Token]*Node, len(m.Exports))
	for _, tok := range m.Exports {
		if _, ok := n.providers[tok]; ok {
			n.exported[tok] = n
			continue
		}
		var declaring *Node
		for _, imp := range n.imports {
			if d, ok := imp.exported[tok]; ok {
				declaring = d
				break
			}
		}
		if declaring == nil {
			return errors.ErrInvalidExport(m.Name, string(tok))
		}
		n.exported[tok] = declaring
	}
	return nil
}

func bindVisibility(n *Node) {
	n.visible = make(map[shared.Token]*Node, len(n.providers))
	for tok := range n.providers {
		n.visible[tok] = n
	}
	for _, imp := range n.imports {
		for _, tok := range imp.module.Exports {
			if _, taken := n.visible[tok]; taken {
				continue
			}
			if d, ok := imp.exported[tok]; ok {
				n.visible[tok] = d
			}
		}
	}
}
