package match

import (
	"errors"
	"fmt"
	"regexp"
	"slices"

	"github.com/google/cel-go/cel"

	"github.com/Sumatoshi-tech/prune/pkg/rule"
	"github.com/Sumatoshi-tech/prune/pkg/scope"
	"github.com/Sumatoshi-tech/prune/pkg/syntax"
)

var errNotBool = errors.New("expression did not evaluate to a bool")

// PredicateEvaluationError reports a predicate that could not be evaluated.
// The candidate it guarded is rejected.
type PredicateEvaluationError struct {
	Rule  string
	Index int
	Kind  rule.PredicateKind
	Err   error
}

func (e *PredicateEvaluationError) Error() string {
	return fmt.Sprintf("rule %s: constraint %d (%s): %v", e.Rule, e.Index, e.Kind, e.Err)
}

func (e *PredicateEvaluationError) Unwrap() error {
	return e.Err
}

// accept evaluates the constraints of m.Rule in order, stopping at the first
// that does not hold.
func (e *Engine) accept(tree *syntax.Tree, m *Match) bool {
	for idx := range m.Rule.Constraints {
		pred := &m.Rule.Constraints[idx]

		ok, err := e.safeEvaluate(tree, pred, m)
		if err != nil {
			e.failures.Add(1)
			e.logger.Warn("predicate evaluation failed",
				"error", &PredicateEvaluationError{Rule: m.Rule.Name, Index: idx, Kind: pred.Kind, Err: err})

			return false
		}

		if !ok {
			return false
		}
	}

	return true
}

func (e *Engine) safeEvaluate(tree *syntax.Tree, pred *rule.Predicate, m *Match) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("panic: %v", r)
		}
	}()

	return e.evaluate(tree, pred, m)
}

func (e *Engine) evaluate(tree *syntax.Tree, pred *rule.Predicate, m *Match) (bool, error) {
	binding := m.Captures[pred.Capture]

	switch pred.Kind {
	case rule.Eq:
		return binding.Text == rule.Render(pred.Value, m.Values), nil
	case rule.NotEq:
		return binding.Text != rule.Render(pred.Value, m.Values), nil
	case rule.Match, rule.NotMatch:
		re, err := e.pattern(rule.RenderWith(pred.Pattern, m.Values, regexp.QuoteMeta))
		if err != nil {
			return false, err
		}

		return re.MatchString(binding.Text) == (pred.Kind == rule.Match), nil
	case rule.ParentIn, rule.ParentNotIn:
		return parentIn(binding, pred.Kinds) == (pred.Kind == rule.ParentIn), nil
	case rule.Contains, rule.NotContains, rule.Count:
		return e.evaluateScoped(tree, pred, m, binding)
	case rule.CEL:
		return e.evaluateExpr(pred.Expr, m)
	default:
		return false, fmt.Errorf("unknown predicate kind %q", pred.Kind)
	}
}

func parentIn(binding Binding, kinds []string) bool {
	if len(binding.Nodes) == 0 {
		return false
	}

	parent, ok := binding.Nodes[0].Parent()

	return ok && slices.Contains(kinds, parent.Kind())
}

// evaluateScoped runs the predicate queries in the scope resolved from the
// capture. A missing scope makes the predicate fail.
func (e *Engine) evaluateScoped(tree *syntax.Tree, pred *rule.Predicate, m *Match, binding Binding) (bool, error) {
	if len(binding.Nodes) == 0 {
		return false, nil
	}

	kind, err := pred.ScopeKind()
	if err != nil {
		return false, err
	}

	root, err := e.resolver.Resolve(binding.Nodes[0], kind)
	if err != nil {
		if errors.Is(err, scope.ErrScopeNotFound) {
			return false, nil
		}

		return false, err
	}

	want := rule.Render(pred.Value, m.Values)
	limit := -1

	if pred.Kind != rule.Count {
		limit = 1
	}

	total := 0

	for _, pattern := range pred.Queries {
		q, err := e.queries.Compile(pattern)
		if err != nil {
			return false, err
		}

		for candidate := range tree.Query(q, root) {
			if !targetMatches(candidate, pred.Target, want) {
				continue
			}

			total++
			if total == limit {
				break
			}
		}

		if total == limit {
			break
		}
	}

	switch pred.Kind {
	case rule.Contains:
		return total > 0, nil
	case rule.NotContains:
		return total == 0, nil
	default:
		return pred.Compare(total), nil
	}
}

func targetMatches(candidate syntax.Candidate, target, want string) bool {
	if target == "" || want == "" {
		return true
	}

	return slices.ContainsFunc(candidate.Captures[target], func(n syntax.Node) bool {
		return n.Text() == want
	})
}

func (e *Engine) evaluateExpr(expr string, m *Match) (bool, error) {
	program, err := e.program(expr)
	if err != nil {
		return false, err
	}

	out, _, err := program.Eval(map[string]any{
		"captures": m.Values,
		"rule":     m.Rule.Name,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", expr, err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q", errNotBool, expr)
	}

	return result, nil
}

func (e *Engine) program(expr string) (cel.Program, error) {
	return e.programs.GetOrCreate(expr, func() (cel.Program, error) {
		ast, issues := e.env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("compile %q: %w", expr, issues.Err())
		}

		if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
			return nil, fmt.Errorf("%w: %q", errNotBool, expr)
		}

		program, err := e.env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("program %q: %w", expr, err)
		}

		return program, nil
	})
}

func (e *Engine) pattern(expr string) (*regexp.Regexp, error) {
	return e.patterns.GetOrCreate(expr, func() (*regexp.Regexp, error) {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile pattern: %w", err)
		}

		return re, nil
	})
}
