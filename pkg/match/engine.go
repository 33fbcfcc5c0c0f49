// Package match finds the instances of a rule inside a scope of a syntax tree
// and decides which of them satisfy the rule's constraints.
package match

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"sync/atomic"

	"github.com/google/cel-go/cel"

	"github.com/Sumatoshi-tech/prune/pkg/lru"
	"github.com/Sumatoshi-tech/prune/pkg/rule"
	"github.com/Sumatoshi-tech/prune/pkg/scope"
	"github.com/Sumatoshi-tech/prune/pkg/syntax"
)

// Binding is the value of one capture in a match.
type Binding struct {
	Text  string
	Range syntax.Range
	Nodes []syntax.Node
}

// Match is an accepted instance of a rule.
type Match struct {
	// Rule is the instantiated rule.
	Rule *rule.Rule
	// Range is the span of the replace_node capture, or of the outermost
	// capture for rules that do not edit.
	Range syntax.Range
	// Node is the first node of Range.
	Node syntax.Node
	// Captures holds every capture declared by the query. Captures the
	// candidate left unbound have an empty Text and no Nodes.
	Captures map[string]Binding
	// Values are the inherited bindings overlaid with the captured texts.
	Values map[string]string
	// Replacement is the rendered replace template.
	Replacement string
}

// Options configures an Engine.
type Options struct {
	// Logger receives predicate failures. Defaults to a discarding logger.
	Logger *slog.Logger
	// CacheSize bounds the compiled pattern and expression caches.
	CacheSize int
}

// Engine evaluates rules against trees of one language. It is safe for
// concurrent use; all per-file state lives in the arguments of MatchRule.
type Engine struct {
	queries  *syntax.QueryCache
	resolver *scope.Resolver
	logger   *slog.Logger
	env      *cel.Env
	programs *lru.Cache[string, cel.Program]
	patterns *lru.Cache[string, *regexp.Regexp]

	candidates atomic.Int64
	rejected   atomic.Int64
	failures   atomic.Int64
}

// NewEngine creates an engine for lang.
func NewEngine(lang *syntax.Language, opts Options) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("captures", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("rule", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("create expression environment: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Engine{
		queries:  syntax.NewQueryCache(lang),
		resolver: scope.NewResolver(lang),
		logger:   logger,
		env:      env,
		programs: lru.New[string, cel.Program](opts.CacheSize),
		patterns: lru.New[string, *regexp.Regexp](opts.CacheSize),
	}, nil
}

// Queries returns the engine's query cache.
func (e *Engine) Queries() *syntax.QueryCache {
	return e.queries
}

// Resolver returns the scope resolver of the engine's language.
func (e *Engine) Resolver() *scope.Resolver {
	return e.resolver
}

// Prepare compiles every hole-free query and every expression of set so that
// grammar mismatches surface before any file is touched.
func (e *Engine) Prepare(set *rule.Set) error {
	var errs []error

	for _, r := range set.Rules() {
		if err := e.prepareRule(r); err != nil {
			errs = append(errs, fmt.Errorf("%w %q: %w", rule.ErrInvalidRule, r.Name, err))
		}
	}

	return errors.Join(errs...)
}

func (e *Engine) prepareRule(r *rule.Rule) error {
	if !mentionsAny(r.Query, r.Holes) {
		if _, err := e.queries.Compile(r.Query); err != nil {
			return err
		}
	}

	for idx := range r.Constraints {
		pred := &r.Constraints[idx]

		if pred.Kind == rule.CEL {
			if _, err := e.program(pred.Expr); err != nil {
				return fmt.Errorf("constraint %d: %w", idx, err)
			}
		}

		for _, q := range pred.Queries {
			if mentionsAny(q, r.Holes) {
				continue
			}

			if _, err := e.queries.Compile(q); err != nil {
				return fmt.Errorf("constraint %d: %w", idx, err)
			}
		}
	}

	return nil
}

func mentionsAny(text string, holes []string) bool {
	refs := rule.References(text)

	return slices.ContainsFunc(holes, func(hole string) bool { return slices.Contains(refs, hole) })
}

// MatchRule returns the accepted matches of r inside root, ordered by start
// offset ascending and, for equal starts, by end descending. inherited supplies
// hole values and the bindings carried along the edge that led to r.
//
// A predicate that fails to evaluate rejects its candidate and is logged;
// only instantiation and query compilation errors are returned.
func (e *Engine) MatchRule(tree *syntax.Tree, r *rule.Rule, root syntax.Node, inherited map[string]string) ([]Match, error) {
	inst, err := r.Instantiate(inherited)
	if err != nil {
		return nil, err
	}

	q, err := e.queries.Compile(inst.Query)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", inst.Name, err)
	}

	candidates := e.collect(tree, inst, q, root)

	matches := make([]Match, 0, len(candidates))

	for _, m := range candidates {
		m.Values = maps.Clone(inherited)
		if m.Values == nil {
			m.Values = make(map[string]string, len(m.Captures))
		}

		for name, binding := range m.Captures {
			m.Values[name] = binding.Text
		}

		if !e.accept(tree, &m) {
			e.rejected.Add(1)

			continue
		}

		if inst.Edits() {
			m.Replacement = rule.Render(inst.Replace, m.Values)
		}

		matches = append(matches, m)
	}

	return matches, nil
}

type scored struct {
	match Match
	nodes int
}

// collect turns raw candidates into matches, keeping the widest binding per
// replace range and discarding candidates that leave replace_node unbound.
func (e *Engine) collect(tree *syntax.Tree, inst *rule.Rule, q *syntax.Query, root syntax.Node) []Match {
	var (
		kept    []scored
		byRange = make(map[syntax.Range]int)
	)

	for candidate := range tree.Query(q, root) {
		e.candidates.Add(1)

		m := Match{Rule: inst, Captures: make(map[string]Binding, len(q.Captures()))}

		var outer syntax.Range

		for _, name := range q.Captures() {
			binding := Binding{Nodes: candidate.Captures[name]}

			if span, ok := candidate.Span(name); ok {
				binding.Range = span
				binding.Text = string(tree.Source()[span.Start:span.End])

				if span.Len() > outer.Len() {
					outer = span
				}
			}

			m.Captures[name] = binding
		}

		if inst.Edits() {
			target := m.Captures[inst.ReplaceNode]
			if len(target.Nodes) == 0 {
				continue
			}

			m.Range, m.Node = target.Range, target.Nodes[0]
		} else {
			m.Range = outer
			m.Node = tree.NodeCovering(outer)
		}

		current := scored{match: m, nodes: candidate.NodeCount()}

		if idx, dup := byRange[m.Range]; dup {
			if current.nodes > kept[idx].nodes {
				kept[idx] = current
			}

			continue
		}

		byRange[m.Range] = len(kept)
		kept = append(kept, current)
	}

	slices.SortStableFunc(kept, func(a, b scored) int {
		if c := cmp.Compare(a.match.Range.Start, b.match.Range.Start); c != 0 {
			return c
		}

		return cmp.Compare(b.match.Range.End, a.match.Range.End)
	})

	out := make([]Match, len(kept))
	for idx, s := range kept {
		out[idx] = s.match
	}

	return out
}

// Stats reports how many raw candidates the engine has seen, how many of
// them constraints rejected and how many predicate evaluations failed.
type Stats struct {
	Candidates        int64
	Rejected          int64
	PredicateFailures int64
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Candidates:        e.candidates.Load(),
		Rejected:          e.rejected.Load(),
		PredicateFailures: e.failures.Load(),
	}
}
