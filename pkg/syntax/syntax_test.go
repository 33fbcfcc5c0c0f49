package syntax_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/prune/pkg/syntax"
)

const javaSource = `class Widget {
  void render() {
    if (flags.isEnabled(SHOW_BANNER)) {
      banner.show();
    }
  }
}
`

func parseJava(t *testing.T, src string) *syntax.Tree {
	t.Helper()

	lang, err := syntax.LookupLanguage("java")
	require.NoError(t, err)

	tree, err := syntax.NewParser(lang).Parse(context.Background(), []byte(src))
	require.NoError(t, err)
	t.Cleanup(tree.Close)

	return tree
}

func TestLookupLanguage_Builtin(t *testing.T) {
	t.Parallel()

	for _, name := range syntax.Languages() {
		lang, err := syntax.LookupLanguage(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, lang.Name)
		assert.NotEmpty(t, lang.Extensions)
	}
}

func TestLookupLanguage_Unknown(t *testing.T) {
	t.Parallel()

	_, err := syntax.LookupLanguage("no-such-grammar")
	require.ErrorIs(t, err, syntax.ErrUnknownLanguage)
}

func TestLanguageForPath(t *testing.T) {
	t.Parallel()

	lang, err := syntax.LanguageForPath("src/main/java/Widget.java")
	require.NoError(t, err)
	assert.Equal(t, "java", lang.Name)
	assert.True(t, lang.HandlesPath("Other.JAVA"))

	_, err = syntax.LanguageForPath("README.md")
	require.ErrorIs(t, err, syntax.ErrUnknownLanguage)
}

func TestParse_RejectsMalformedInput(t *testing.T) {
	t.Parallel()

	lang, err := syntax.LookupLanguage("java")
	require.NoError(t, err)

	_, err = syntax.NewParser(lang).Parse(context.Background(), []byte("class A { void f( { }"))
	require.Error(t, err)

	var perr *syntax.ParseError
	require.True(t, errors.As(err, &perr))
	assert.ErrorIs(t, err, syntax.ErrSyntax)
	assert.GreaterOrEqual(t, perr.Line, 1)
}

func TestRange(t *testing.T) {
	t.Parallel()

	a := syntax.Range{Start: 2, End: 6}

	assert.Equal(t, 4, a.Len())
	assert.True(t, a.Overlaps(syntax.Range{Start: 5, End: 9}))
	assert.False(t, a.Overlaps(syntax.Range{Start: 6, End: 9}))
	assert.True(t, a.Overlaps(syntax.Range{Start: 3, End: 3}))
	assert.True(t, a.Contains(syntax.Range{Start: 2, End: 6}))
	assert.False(t, a.Contains(syntax.Range{Start: 1, End: 3}))
}

func TestNode_Navigation(t *testing.T) {
	t.Parallel()

	tree := parseJava(t, javaSource)
	root := tree.Root()
	assert.Equal(t, "program", root.Kind())
	assert.Equal(t, javaSource, tree.Text())

	var call syntax.Node

	for n := range tree.Walk() {
		if n.Kind() == "method_invocation" && n.Name() == "isEnabled" {
			call = n

			break
		}
	}

	require.False(t, call.IsZero())
	assert.Equal(t, "flags.isEnabled(SHOW_BANNER)", call.Text())

	object, ok := call.ChildByField("object")
	require.True(t, ok)
	assert.Equal(t, "flags", object.Text())

	var kinds []string
	for a := range call.Ancestors() {
		kinds = append(kinds, a.Kind())
	}

	assert.Equal(t, "parenthesized_expression", kinds[0])
	assert.Contains(t, kinds, "method_declaration")
	assert.Equal(t, "program", kinds[len(kinds)-1])
	assert.True(t, call.IsDescendantOf(root))
	assert.False(t, root.IsDescendantOf(call))

	covering := tree.NodeCovering(object.Range())
	assert.True(t, covering.Same(object))
}

func TestQuery_CapturesAndScope(t *testing.T) {
	t.Parallel()

	tree := parseJava(t, javaSource)

	lang, err := syntax.LookupLanguage("java")
	require.NoError(t, err)

	cache := syntax.NewQueryCache(lang)
	q, err := cache.Compile(`(method_invocation object: (_) @recv name: (identifier) @api) @call`)
	require.NoError(t, err)
	assert.Equal(t, []string{"recv", "api", "call"}, q.Captures())

	var apis []string

	for c := range tree.Query(q, tree.Root()) {
		apis = append(apis, c.Captures["api"][0].Text())
	}

	assert.Equal(t, []string{"isEnabled", "show"}, apis)

	_, err = cache.Compile(`(method_invocation object: (_) @recv name: (identifier) @api) @call`)
	require.NoError(t, err)

	hits, misses := cache.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)

	var block syntax.Node

	for n := range tree.Walk() {
		if n.Kind() == "block" {
			if parent, ok := n.Parent(); ok && parent.Kind() == "if_statement" {
				block = n
			}
		}
	}

	require.False(t, block.IsZero())

	count := 0
	for range tree.Query(q, block) {
		count++
	}

	assert.Equal(t, 1, count)
}

func TestQuery_QuantifiedCaptureSpan(t *testing.T) {
	t.Parallel()

	tree := parseJava(t, "class A { void f() { { a(); b(); } } }")

	lang, err := syntax.LookupLanguage("java")
	require.NoError(t, err)

	q, err := syntax.NewQueryCache(lang).Compile(`(block (block (_)* @inner) @nested)`)
	require.NoError(t, err)

	var spans []string

	for c := range tree.Query(q, tree.Root()) {
		span, ok := c.Span("inner")
		require.True(t, ok)

		spans = append(spans, tree.Text()[span.Start:span.End])
	}

	require.NotEmpty(t, spans)
	assert.Equal(t, "a(); b();", spans[0])
}

func TestCompile_InvalidQuery(t *testing.T) {
	t.Parallel()

	lang, err := syntax.LookupLanguage("java")
	require.NoError(t, err)

	_, err = syntax.NewQueryCache(lang).Compile(`(method_invocation`)
	require.ErrorIs(t, err, syntax.ErrInvalidQuery)
}
