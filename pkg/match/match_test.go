package match_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/prune/pkg/match"
	"github.com/Sumatoshi-tech/prune/pkg/rule"
	"github.com/Sumatoshi-tech/prune/pkg/syntax"
)

const flagSource = `class Sample {
  private Flags flags;

  boolean check() {
    boolean on = flags.isEnabled(STALE_FLAG);
    boolean off = flags.isDisabled(Flags.STALE_FLAG);
    boolean other = flags.isEnabled(OTHER_FLAG);
    return a && b && c;
  }
}
`

func setup(t *testing.T, src string) (*match.Engine, *syntax.Tree) {
	t.Helper()

	lang, err := syntax.LookupLanguage("java")
	require.NoError(t, err)

	engine, err := match.NewEngine(lang, match.Options{})
	require.NoError(t, err)

	tree, err := syntax.NewParser(lang).Parse(context.Background(), []byte(src))
	require.NoError(t, err)
	t.Cleanup(tree.Close)

	return engine, tree
}

func builtinRule(t *testing.T, name string) *rule.Rule {
	t.Helper()

	file, err := rule.Builtin("java")
	require.NoError(t, err)

	set, err := rule.NewSet(file)
	require.NoError(t, err)

	r, ok := set.Rule(name)
	require.True(t, ok, name)

	return r
}

func TestMatchRule_SeedsHonourHoles(t *testing.T) {
	t.Parallel()

	engine, tree := setup(t, flagSource)
	subs := rule.Substitutions{rule.HoleFlagName: "STALE_FLAG", rule.HoleTreated: "true"}.Normalize()

	enabled, err := engine.MatchRule(tree, builtinRule(t, "replace_enabled_api"), tree.Root(), subs)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "flags.isEnabled(STALE_FLAG)", enabled[0].Captures["call"].Text)
	assert.Equal(t, "flags", enabled[0].Values["receiver"])
	assert.Equal(t, "true", enabled[0].Replacement)
	assert.Equal(t, "method_invocation", enabled[0].Node.Kind())

	disabled, err := engine.MatchRule(tree, builtinRule(t, "replace_disabled_api"), tree.Root(), subs)
	require.NoError(t, err)
	require.Len(t, disabled, 1)
	assert.Equal(t, "flags.isDisabled(Flags.STALE_FLAG)", disabled[0].Captures["call"].Text)
	assert.Equal(t, "false", disabled[0].Replacement)

	_, err = engine.MatchRule(tree, builtinRule(t, "replace_enabled_api"), tree.Root(), map[string]string{})
	require.ErrorIs(t, err, rule.ErrUnboundHole)
}

func TestMatchRule_OrderAndScope(t *testing.T) {
	t.Parallel()

	engine, tree := setup(t, flagSource)
	r := &rule.Rule{Name: "binary", Query: "(binary_expression) @e", ReplaceNode: "e", Replace: "x"}

	matches, err := engine.MatchRule(tree, r, tree.Root(), nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a && b && c", matches[0].Captures["e"].Text)
	assert.Equal(t, "a && b", matches[1].Captures["e"].Text)
	assert.Equal(t, matches[0].Range.Start, matches[1].Range.Start)

	// Scoped to the first local declaration, nothing binary is visible.
	var first syntax.Node

	for n := range tree.Walk() {
		if n.Kind() == "local_variable_declaration" {
			first = n

			break
		}
	}

	require.False(t, first.IsZero())

	matches, err = engine.MatchRule(tree, r, first, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMatchRule_QuantifiedCaptureSpansAllNodes(t *testing.T) {
	t.Parallel()

	engine, tree := setup(t, `class A { void m() { { a(); b(); } } }`)

	matches, err := engine.MatchRule(tree, builtinRule(t, "unwrap_nested_block"), tree.Root(), nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "{ a(); b(); }", matches[0].Captures["nested"].Text)
	assert.Equal(t, "a(); b();", matches[0].Replacement)
	assert.Len(t, matches[0].Captures["statements"].Nodes, 2)
}

func TestMatchRule_CountPredicate(t *testing.T) {
	t.Parallel()

	engine, tree := setup(t, `class T {
  void m() {
    boolean a = true;
    boolean b = false;
    b = compute();
    use(a, b);
  }
}
`)

	matches, err := engine.MatchRule(tree, builtinRule(t, "inline_boolean_local"), tree.Root(), nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].Values["variable"])
	assert.Equal(t, "true", matches[0].Values["value"])
	assert.Empty(t, matches[0].Replacement)
}

func TestMatchRule_ParentAndContainsPredicates(t *testing.T) {
	t.Parallel()

	engine, tree := setup(t, `class T { void m() { if ((true)) { x = (false); } } }`)

	matches, err := engine.MatchRule(tree, builtinRule(t, "simplify_parenthesized_literal"), tree.Root(), nil)
	require.NoError(t, err)

	var texts []string
	for _, m := range matches {
		texts = append(texts, m.Captures["expression"].Text)
	}

	assert.Equal(t, []string{"(true)", "(false)"}, texts, "the if condition itself is kept")

	noCalls := &rule.Rule{
		Name:        "pure_method",
		Query:       "(method_declaration name: (identifier) @name) @method",
		Constraints: []rule.Predicate{{Kind: rule.NotContains, Capture: "method", Scope: "Method", Queries: []string{"(method_invocation) @call"}}},
	}

	matches, err = engine.MatchRule(tree, noCalls, tree.Root(), nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "m", matches[0].Values["name"])
	assert.Equal(t, "method_declaration", matches[0].Node.Kind(), "rules that do not edit anchor on the outermost capture")
}

func TestMatchRule_ExpressionPredicates(t *testing.T) {
	t.Parallel()

	engine, tree := setup(t, flagSource)

	starts := &rule.Rule{
		Name:        "stale_names",
		Query:       "(identifier) @id",
		Constraints: []rule.Predicate{{Kind: rule.CEL, Expr: `captures["id"].startsWith("STALE") && rule == "stale_names"`}},
	}

	matches, err := engine.MatchRule(tree, starts, tree.Root(), nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	broken := &rule.Rule{
		Name:        "broken",
		Query:       "(identifier) @id",
		Constraints: []rule.Predicate{{Kind: rule.CEL, Expr: `captures["missing"] == "x"`}},
	}

	matches, err = engine.MatchRule(tree, broken, tree.Root(), nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Positive(t, engine.Stats().PredicateFailures)
}

func TestMatchRule_InvalidQuery(t *testing.T) {
	t.Parallel()

	engine, tree := setup(t, flagSource)

	_, err := engine.MatchRule(tree, &rule.Rule{Name: "bad", Query: "(no_such_node) @x"}, tree.Root(), nil)
	require.ErrorIs(t, err, syntax.ErrInvalidQuery)
}

func TestPrepare(t *testing.T) {
	t.Parallel()

	engine, _ := setup(t, flagSource)

	file, err := rule.Builtin("java")
	require.NoError(t, err)

	set, err := rule.NewSet(file)
	require.NoError(t, err)
	require.NoError(t, engine.Prepare(set))

	bad, err := rule.NewSet(&rule.File{Rules: []rule.Rule{
		{Name: "typo", Query: "(method_invocaton) @call"},
		{Name: "expr", Query: "(identifier) @id", Constraints: []rule.Predicate{{Kind: rule.CEL, Expr: `captures["id"]`}}},
	}})
	require.NoError(t, err)

	err = engine.Prepare(bad)
	require.ErrorIs(t, err, rule.ErrInvalidRule)
	assert.Contains(t, err.Error(), "typo")
	assert.Contains(t, err.Error(), "expr")
}
