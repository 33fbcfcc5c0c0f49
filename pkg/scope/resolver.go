package scope

import (
	"fmt"
	"slices"

	"github.com/Sumatoshi-tech/prune/pkg/syntax"
)

// Resolver maps an edited node and a scope kind to the enclosing scope root.
// It holds no per-file state and is safe for concurrent use.
type Resolver struct {
	table Table
}

// NewResolver creates a resolver for the given language. Languages without a
// table only support Parent, Global and Codebase.
func NewResolver(lang *syntax.Language) *Resolver {
	return &Resolver{table: TableFor(lang.Name)}
}

// NewResolverWithTable creates a resolver over a custom table.
func NewResolverWithTable(table Table) *Resolver {
	return &Resolver{table: table}
}

// Resolve returns the scope root of kind for node. Kind-delimited scopes are
// searched starting at node itself, then outwards through its ancestors.
// Global and Codebase both resolve to the tree root.
func (r *Resolver) Resolve(node syntax.Node, kind Kind) (syntax.Node, error) {
	switch kind {
	case Parent:
		parent, ok := node.Parent()
		if !ok {
			return syntax.Node{}, fmt.Errorf("%w: %s of root", ErrScopeNotFound, kind)
		}

		return parent, nil
	case Global, Codebase:
		return node.Tree().Root(), nil
	case Statement, Block, Method, Class:
		kinds := r.table[kind]
		if len(kinds) == 0 {
			return syntax.Node{}, fmt.Errorf("%w: %s is not defined for this language", ErrScopeNotFound, kind)
		}

		if slices.Contains(kinds, node.Kind()) {
			return node, nil
		}

		for ancestor := range node.Ancestors() {
			if slices.Contains(kinds, ancestor.Kind()) {
				return ancestor, nil
			}
		}

		return syntax.Node{}, fmt.Errorf("%w: no enclosing %s", ErrScopeNotFound, kind)
	default:
		return syntax.Node{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}
