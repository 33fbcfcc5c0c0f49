// Package toposort provides a small labelled directed graph with deterministic
// ordering, cycle detection and Graphviz output.
package toposort

import (
	"fmt"
	"slices"
	"strings"
)

// Graph is a directed graph over string nodes. Edges carry an optional label and
// parallel edges with distinct labels are kept. Not safe for concurrent mutation.
type Graph struct {
	ids   map[string]int
	names []string
	out   [][]edge
	in    []int
}

type edge struct {
	to    int
	label string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{ids: make(map[string]int)}
}

func (g *Graph) intern(name string) int {
	if id, ok := g.ids[name]; ok {
		return id
	}

	id := len(g.names)
	g.ids[name] = id
	g.names = append(g.names, name)
	g.out = append(g.out, nil)
	g.in = append(g.in, 0)

	return id
}

// AddNode inserts name and reports whether it was new.
func (g *Graph) AddNode(name string) bool {
	if _, ok := g.ids[name]; ok {
		return false
	}

	g.intern(name)

	return true
}

// AddEdge links from to to under label and reports whether the edge was new.
func (g *Graph) AddEdge(from, to, label string) bool {
	u, v := g.intern(from), g.intern(to)

	for _, e := range g.out[u] {
		if e.to == v && e.label == label {
			return false
		}
	}

	g.out[u] = append(g.out[u], edge{to: v, label: label})
	g.in[v]++

	return true
}

// Nodes returns every node name in insertion order.
func (g *Graph) Nodes() []string {
	return slices.Clone(g.names)
}

// Has reports whether name is a node.
func (g *Graph) Has(name string) bool {
	_, ok := g.ids[name]

	return ok
}

// Children returns the distinct targets of the outgoing edges of from, sorted.
func (g *Graph) Children(from string) []string {
	u, ok := g.ids[from]
	if !ok {
		return nil
	}

	var children []string

	for _, e := range g.out[u] {
		if name := g.names[e.to]; !slices.Contains(children, name) {
			children = append(children, name)
		}
	}

	slices.Sort(children)

	return children
}

// Toposort orders the nodes with Kahn's algorithm, picking the lexically smallest
// ready node first. ok is false when the graph has a cycle; the order then holds
// only the acyclic prefix.
func (g *Graph) Toposort() (order []string, ok bool) {
	inDegree := slices.Clone(g.in)

	var ready []string

	for id, name := range g.names {
		if inDegree[id] == 0 {
			ready = append(ready, name)
		}
	}

	slices.Sort(ready)

	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		for _, e := range g.out[g.ids[name]] {
			inDegree[e.to]--
			if inDegree[e.to] == 0 {
				next := g.names[e.to]
				pos, _ := slices.BinarySearch(ready, next)
				ready = slices.Insert(ready, pos, next)
			}
		}
	}

	return order, len(order) == len(g.names)
}

// Cycles returns one representative cycle per strongly connected component that
// contains a cycle, including self loops. Each cycle starts at the component node
// that was added first.
func (g *Graph) Cycles() [][]string {
	var cycles [][]string

	for _, component := range g.components() {
		if len(component) == 1 && !g.hasSelfLoop(component[0]) {
			continue
		}

		if cycle := g.FindCycle(g.names[slices.Min(component)]); len(cycle) > 0 {
			cycles = append(cycles, cycle)
		}
	}

	slices.SortFunc(cycles, func(a, b []string) int {
		return strings.Compare(a[0], b[0])
	})

	return cycles
}

// FindCycle returns the shortest cycle through seed, or nil when there is none.
// The closing repetition of seed is omitted.
func (g *Graph) FindCycle(seed string) []string {
	start, ok := g.ids[seed]
	if !ok {
		return nil
	}

	parent := map[int]int{start: -1}
	queue := []int{start}

	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]

		for _, e := range g.out[u] {
			if e.to == start {
				var path []string
				for cur := u; cur != -1; cur = parent[cur] {
					path = append(path, g.names[cur])
				}

				slices.Reverse(path)

				return path
			}

			if _, seen := parent[e.to]; !seen {
				parent[e.to] = u
				queue = append(queue, e.to)
			}
		}
	}

	return nil
}

func (g *Graph) hasSelfLoop(id int) bool {
	return slices.ContainsFunc(g.out[id], func(e edge) bool { return e.to == id })
}

// components computes strongly connected components with Tarjan's algorithm.
func (g *Graph) components() [][]int {
	index := make([]int, len(g.names))
	low := make([]int, len(g.names))
	onStack := make([]bool, len(g.names))

	for i := range index {
		index[i] = -1
	}

	var (
		stack  []int
		result [][]int
		next   int
		visit  func(int)
	)

	visit = func(u int) {
		index[u], low[u] = next, next
		next++

		stack = append(stack, u)
		onStack[u] = true

		for _, e := range g.out[u] {
			switch {
			case index[e.to] == -1:
				visit(e.to)
				low[u] = min(low[u], low[e.to])
			case onStack[e.to]:
				low[u] = min(low[u], index[e.to])
			}
		}

		if low[u] != index[u] {
			return
		}

		var component []int

		for {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[top] = false
			component = append(component, top)

			if top == u {
				break
			}
		}

		result = append(result, component)
	}

	for id := range g.names {
		if index[id] == -1 {
			visit(id)
		}
	}

	return result
}

// Serialize renders the graph in Graphviz format. Nodes listed in highlight are
// drawn with a double border.
func (g *Graph) Serialize(name string, highlight []string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "digraph %q {\n", name)

	sorted := slices.Clone(g.names)
	slices.Sort(sorted)

	for _, node := range sorted {
		if slices.Contains(highlight, node) {
			fmt.Fprintf(&sb, "  %q [peripheries=2]\n", node)
		} else {
			fmt.Fprintf(&sb, "  %q\n", node)
		}
	}

	for _, from := range sorted {
		edges := slices.Clone(g.out[g.ids[from]])
		slices.SortFunc(edges, func(a, b edge) int {
			if c := strings.Compare(g.names[a.to], g.names[b.to]); c != 0 {
				return c
			}

			return strings.Compare(a.label, b.label)
		})

		for _, e := range edges {
			if e.label == "" {
				fmt.Fprintf(&sb, "  %q -> %q\n", from, g.names[e.to])
			} else {
				fmt.Fprintf(&sb, "  %q -> %q [label=%q]\n", from, g.names[e.to], e.label)
			}
		}
	}

	sb.WriteString("}\n")

	return sb.String()
}
