package rule

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Sumatoshi-tech/prune/pkg/scope"
	"github.com/Sumatoshi-tech/prune/pkg/suggest"
	"github.com/Sumatoshi-tech/prune/pkg/syntax"
	"github.com/Sumatoshi-tech/prune/pkg/toposort"
)

// Target is one rule-level outgoing edge.
type Target struct {
	Rule  string
	Scope scope.Kind
}

// CycleWarning reports a cycle in the rule graph. Cycles are legal; the step
// limit of the driver bounds them.
type CycleWarning struct {
	Cycle []string
}

func (w CycleWarning) Error() string {
	return "rule graph cycle: " + strings.Join(append(slices.Clone(w.Cycle), w.Cycle[0]), " -> ")
}

// Set is a validated, immutable collection of rules and their expanded graph.
// It is safe to share between goroutines.
type Set struct {
	rules    map[string]*Rule
	outgoing map[string][]Target
	graph    *toposort.Graph
	order    []string
	cycles   []CycleWarning
}

// NewSet validates file and expands group edges into rule-level edges.
func NewSet(file *File) (*Set, error) {
	set := &Set{
		rules:    make(map[string]*Rule, len(file.Rules)),
		outgoing: make(map[string][]Target),
		graph:    toposort.NewGraph(),
	}

	var errs []error

	for idx := range file.Rules {
		r := file.Rules[idx]

		if _, dup := set.rules[r.Name]; dup {
			errs = append(errs, fmt.Errorf("%w: duplicate rule %q", ErrInvalidRule, r.Name))

			continue
		}

		if err := r.Validate(syntax.CaptureNames(r.Query)); err != nil {
			errs = append(errs, err)

			continue
		}

		set.rules[r.Name] = &r
		set.order = append(set.order, r.Name)
		set.graph.AddNode(r.Name)
	}

	for _, edge := range file.Edges {
		if err := set.addEdge(edge); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for _, cycle := range set.graph.Cycles() {
		set.cycles = append(set.cycles, CycleWarning{Cycle: cycle})
	}

	return set, nil
}

func (s *Set) addEdge(edge Edge) error {
	kind, err := scope.ParseKind(edge.Scope)
	if err != nil {
		return fmt.Errorf("%w: edge from %q: %w", ErrInvalidRule, edge.From, err)
	}

	sources, err := s.expand(edge.From)
	if err != nil {
		return err
	}

	for _, to := range edge.To {
		targets, err := s.expand(to)
		if err != nil {
			return err
		}

		for _, from := range sources {
			for _, target := range targets {
				t := Target{Rule: target, Scope: kind}
				if slices.Contains(s.outgoing[from], t) {
					continue
				}

				s.outgoing[from] = append(s.outgoing[from], t)
				s.graph.AddEdge(from, target, kind.String())
			}
		}
	}

	return nil
}

// expand resolves a rule or group name to rule names in definition order.
func (s *Set) expand(name string) ([]string, error) {
	if _, ok := s.rules[name]; ok {
		return []string{name}, nil
	}

	var members []string

	for _, ruleName := range s.order {
		if s.rules[ruleName].InGroup(name) {
			members = append(members, ruleName)
		}
	}

	if len(members) == 0 {
		return nil, fmt.Errorf("%w: edge endpoint %q is neither a rule nor a group%s",
			ErrInvalidRule, name, suggest.Hint(name, s.endpoints()))
	}

	return members, nil
}

// Rule returns the rule called name.
func (s *Set) Rule(name string) (*Rule, bool) {
	r, ok := s.rules[name]

	return r, ok
}

// Rules returns every rule in definition order.
func (s *Set) Rules() []*Rule {
	out := make([]*Rule, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.rules[name])
	}

	return out
}

// Seeds returns the seed rules in definition order.
func (s *Set) Seeds() []*Rule {
	var seeds []*Rule

	for _, name := range s.order {
		if s.rules[name].Seed {
			seeds = append(seeds, s.rules[name])
		}
	}

	return seeds
}

// endpoints lists the rule and group names an edge may reference.
func (s *Set) endpoints() []string {
	names := slices.Clone(s.order)

	for _, ruleName := range s.order {
		for _, group := range s.rules[ruleName].Groups {
			if !slices.Contains(names, group) {
				names = append(names, group)
			}
		}
	}

	return names
}

// Outgoing returns the rule-level edges leaving name, in declaration order.
func (s *Set) Outgoing(name string) []Target {
	return s.outgoing[name]
}

// Cycles returns the cycles of the rule graph.
func (s *Set) Cycles() []CycleWarning {
	return s.cycles
}

// Len returns the number of rules.
func (s *Set) Len() int {
	return len(s.order)
}

// Dot renders the rule graph in Graphviz format with seeds highlighted.
func (s *Set) Dot() string {
	var seeds []string
	for _, r := range s.Seeds() {
		seeds = append(seeds, r.Name)
	}

	return s.graph.Serialize("Rules", seeds)
}

// Order returns the rules sorted so that edge sources precede their targets
// where the graph allows it. Rules on cycles follow in definition order.
func (s *Set) Order() []string {
	order, ok := s.graph.Toposort()
	if ok {
		return order
	}

	for _, name := range s.order {
		if !slices.Contains(order, name) {
			order = append(order, name)
		}
	}

	return order
}
