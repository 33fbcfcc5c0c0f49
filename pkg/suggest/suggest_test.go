package suggest_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/prune/pkg/suggest"
)

func TestDistance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"Method", "Methd", 1},
		{"héllo", "hello", 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, suggest.Distance(tt.a, tt.b), "%q -> %q", tt.a, tt.b)
		assert.Equal(t, tt.want, suggest.Distance(tt.b, tt.a), "%q -> %q", tt.b, tt.a)
	}
}

func TestClosest(t *testing.T) {
	t.Parallel()

	candidates := []string{"collapse_if_true", "collapse_if_false_else", "simplify"}

	got, ok := suggest.Closest("colapse_if_true", candidates)
	assert.True(t, ok)
	assert.Equal(t, "collapse_if_true", got)

	got, ok = suggest.Closest("SIMPLIFI", candidates)
	assert.True(t, ok)
	assert.Equal(t, "simplify", got)

	_, ok = suggest.Closest("delete_unused_field", candidates)
	assert.False(t, ok)
}

func TestHint(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `; did you mean "Method"?`, suggest.Hint("Methd", []string{"Parent", "Method", "Class"}))
	assert.Empty(t, suggest.Hint("Galaxy", []string{"Parent", "Method", "Class"}))
}
