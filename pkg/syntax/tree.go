package syntax

import (
	"iter"

	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

// Range is a half-open byte interval [Start, End) of a source text.
type Range struct {
	Start int
	End   int
}

// Len returns the number of bytes the range spans.
func (r Range) Len() int {
	return r.End - r.Start
}

// Overlaps reports whether the two ranges share at least one byte, or whether
// an empty range sits strictly inside the other.
func (r Range) Overlaps(o Range) bool {
	return r.Start < o.End && o.Start < r.End
}

// Contains reports whether o lies within r.
func (r Range) Contains(o Range) bool {
	return r.Start <= o.Start && o.End <= r.End
}

// Tree is an immutable parse of one source text. Trees are never edited; a new
// text yields a new tree.
type Tree struct {
	raw    *sitter.Tree
	lang   *Language
	source []byte
	root   sitter.Node
}

// Root returns the root node.
func (t *Tree) Root() Node {
	return Node{ts: t.root, tree: t}
}

// Source returns the text the tree was parsed from. Callers must not modify it.
func (t *Tree) Source() []byte {
	return t.source
}

// Text returns the source as a string.
func (t *Tree) Text() string {
	return string(t.source)
}

// Language returns the grammar of the tree.
func (t *Tree) Language() *Language {
	return t.lang
}

// Close releases the underlying tree-sitter tree. Nodes of a closed tree must not be used.
func (t *Tree) Close() {
	if t.raw != nil {
		t.raw.Close()
		t.raw = nil
	}
}

// Walk yields the named nodes of the tree in pre-order.
func (t *Tree) Walk() iter.Seq[Node] {
	return t.Root().Descendants()
}

// NodeCovering returns the smallest named node containing r. An empty range
// must lie strictly inside the node, so a position between two siblings
// resolves to their parent.
func (t *Tree) NodeCovering(r Range) Node {
	current := t.Root()

	for {
		next, found := Node{}, false

		for _, child := range current.NamedChildren() {
			cr := child.Range()
			if r.Len() == 0 && (cr.Start >= r.Start || cr.End <= r.End) {
				continue
			}

			if cr.Contains(r) {
				next, found = child, true

				break
			}
		}

		if !found {
			return current
		}

		current = next
	}
}

// Node is a handle into a Tree. It is only valid while its tree is open.
type Node struct {
	tree *Tree
	ts   sitter.Node
}

// IsZero reports whether n refers to no node.
func (n Node) IsZero() bool {
	return n.tree == nil || n.ts.IsNull()
}

// Tree returns the tree n belongs to.
func (n Node) Tree() *Tree {
	return n.tree
}

// Kind returns the grammar node type, e.g. "method_invocation".
func (n Node) Kind() string {
	return n.ts.Type()
}

// Range returns the byte range of the node.
func (n Node) Range() Range {
	return Range{Start: int(n.ts.StartByte()), End: int(n.ts.EndByte())}
}

// Text returns the source text the node spans.
func (n Node) Text() string {
	r := n.Range()

	return string(n.tree.source[r.Start:r.End])
}

// Line returns the 1-based line the node starts on.
func (n Node) Line() int {
	return int(n.ts.StartPoint().Row) + 1
}

// Parent returns the parent node; ok is false at the root.
func (n Node) Parent() (Node, bool) {
	parent := n.ts.Parent()
	if parent.IsNull() {
		return Node{}, false
	}

	return Node{ts: parent, tree: n.tree}, true
}

// Ancestors yields the ancestors of n from the innermost outwards, excluding n.
func (n Node) Ancestors() iter.Seq[Node] {
	return func(yield func(Node) bool) {
		current, ok := n.Parent()
		for ok {
			if !yield(current) {
				return
			}

			current, ok = current.Parent()
		}
	}
}

// NamedChildren returns the named children in source order.
func (n Node) NamedChildren() []Node {
	count := n.ts.NamedChildCount()
	children := make([]Node, 0, count)

	for idx := range count {
		children = append(children, Node{ts: n.ts.NamedChild(idx), tree: n.tree})
	}

	return children
}

// Descendants yields n and every named node below it in pre-order.
func (n Node) Descendants() iter.Seq[Node] {
	return func(yield func(Node) bool) {
		var visit func(Node) bool

		visit = func(current Node) bool {
			if !yield(current) {
				return false
			}

			for _, child := range current.NamedChildren() {
				if !visit(child) {
					return false
				}
			}

			return true
		}

		visit(n)
	}
}

// ChildByField returns the child stored under the grammar field name.
func (n Node) ChildByField(name string) (Node, bool) {
	child := n.ts.ChildByFieldName(name)
	if child.IsNull() {
		return Node{}, false
	}

	return Node{ts: child, tree: n.tree}, true
}

// Name returns the text of the node's "name" field, or "" when it has none.
func (n Node) Name() string {
	child, ok := n.ChildByField("name")
	if !ok {
		return ""
	}

	return child.Text()
}

// Same reports whether both handles denote the same node of the same tree.
func (n Node) Same(o Node) bool {
	return n.tree == o.tree && n.Kind() == o.Kind() && n.Range() == o.Range()
}

// Contains reports whether o lies inside n (or is n).
func (n Node) Contains(o Node) bool {
	return n.Range().Contains(o.Range())
}

// IsDescendantOf reports whether n equals ancestor or lies below it.
func (n Node) IsDescendantOf(ancestor Node) bool {
	if n.Same(ancestor) {
		return true
	}

	for current := range n.Ancestors() {
		if current.Same(ancestor) {
			return true
		}
	}

	return false
}
