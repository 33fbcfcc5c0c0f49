package rule

import (
	"errors"
	"fmt"
	"regexp"
	"slices"

	"github.com/Sumatoshi-tech/prune/pkg/scope"
)

// PredicateKind selects how a Predicate is evaluated.
type PredicateKind string

// Predicate kinds.
const (
	// Eq holds when the capture text equals the rendered Value.
	Eq PredicateKind = "eq"
	// NotEq holds when the capture text differs from the rendered Value.
	NotEq PredicateKind = "not_eq"
	// Match holds when the capture text matches the rendered Pattern.
	Match PredicateKind = "match"
	// NotMatch holds when the capture text does not match the rendered Pattern.
	NotMatch PredicateKind = "not_match"
	// ParentIn holds when the parent of the capture has one of Kinds.
	ParentIn PredicateKind = "parent_in"
	// ParentNotIn holds when the parent of the capture has none of Kinds.
	ParentNotIn PredicateKind = "parent_not_in"
	// Contains holds when any of Queries matches inside the scope of the capture.
	Contains PredicateKind = "contains"
	// NotContains holds when none of Queries matches inside the scope of the capture.
	NotContains PredicateKind = "not_contains"
	// Count compares the number of Queries matches inside the scope of the
	// capture, optionally only those whose Target capture equals Value, with Count.
	Count PredicateKind = "count"
	// CEL evaluates Expr with the captured texts bound to the captures map.
	CEL PredicateKind = "cel"
)

var predicateKinds = []PredicateKind{Eq, NotEq, Match, NotMatch, ParentIn, ParentNotIn, Contains, NotContains, Count, CEL}

// Comparison operators for Count predicates.
var countOps = []string{"eq", "ne", "lt", "le", "gt", "ge"}

// Predicate is a side condition over the bindings of a candidate match and the
// current tree. Predicates never modify anything.
type Predicate struct {
	Kind    PredicateKind `json:"kind"              yaml:"kind"`
	Capture string        `json:"capture,omitempty" yaml:"capture,omitempty"`
	Value   string        `json:"value,omitempty"   yaml:"value,omitempty"`
	Pattern string        `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Kinds   []string      `json:"kinds,omitempty"   yaml:"kinds,omitempty"`
	Queries []string      `json:"queries,omitempty" yaml:"queries,omitempty"`
	Scope   string        `json:"scope,omitempty"   yaml:"scope,omitempty"`
	Target  string        `json:"target,omitempty"  yaml:"target,omitempty"`
	Op      string        `json:"op,omitempty"      yaml:"op,omitempty"`
	Count   int           `json:"count,omitempty"   yaml:"count,omitempty"`
	Expr    string        `json:"expr,omitempty"    yaml:"expr,omitempty"`
}

// ScopeKind parses Scope, defaulting to Method.
func (p *Predicate) ScopeKind() (scope.Kind, error) {
	if p.Scope == "" {
		return scope.Method, nil
	}

	return scope.ParseKind(p.Scope)
}

// Compare applies the Count operator to n.
func (p *Predicate) Compare(n int) bool {
	switch p.Op {
	case "", "eq":
		return n == p.Count
	case "ne":
		return n != p.Count
	case "lt":
		return n < p.Count
	case "le":
		return n <= p.Count
	case "gt":
		return n > p.Count
	case "ge":
		return n >= p.Count
	default:
		return false
	}
}

// Validate checks the fields required by the predicate kind.
func (p *Predicate) Validate(captures []string) error {
	if !slices.Contains(predicateKinds, p.Kind) {
		return fmt.Errorf("unknown predicate kind %q", p.Kind)
	}

	if p.Kind == CEL {
		if p.Expr == "" {
			return errors.New("cel predicate without expr")
		}

		return nil
	}

	if !slices.Contains(captures, p.Capture) {
		return fmt.Errorf("%s predicate refers to unknown capture @%s", p.Kind, p.Capture)
	}

	switch p.Kind {
	case Match, NotMatch:
		probe := referencePattern.ReplaceAllString(p.Pattern, "x")
		if _, err := regexp.Compile(probe); err != nil {
			return fmt.Errorf("bad pattern: %w", err)
		}
	case ParentIn, ParentNotIn:
		if len(p.Kinds) == 0 {
			return fmt.Errorf("%s predicate without kinds", p.Kind)
		}
	case Contains, NotContains, Count:
		if len(p.Queries) == 0 {
			return fmt.Errorf("%s predicate without queries", p.Kind)
		}

		if _, err := p.ScopeKind(); err != nil {
			return err
		}

		if p.Kind == Count && p.Op != "" && !slices.Contains(countOps, p.Op) {
			return fmt.Errorf("unknown count operator %q", p.Op)
		}
	case Eq, NotEq, CEL:
	}

	return nil
}
