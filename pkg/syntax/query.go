package syntax

import (
	"errors"
	"fmt"
	"iter"
	"regexp"
	"sync"
	"sync/atomic"

	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

// ErrInvalidQuery wraps tree-sitter query compilation failures.
var ErrInvalidQuery = errors.New("invalid query")

var (
	captureNamePattern = regexp.MustCompile(`@([A-Za-z_][A-Za-z0-9_.\-]*)`)
	queryStringPattern = regexp.MustCompile(`"(?:[^"\\]|\\.)*"`)
)

// Query is a compiled tree-sitter pattern.
type Query struct {
	raw      *sitter.Query
	Pattern  string
	captures []string
}

// Captures returns the capture names declared by the pattern, in order of first appearance.
func (q *Query) Captures() []string {
	return q.captures
}

// Candidate is one raw query match: capture name to captured nodes in source order.
// Quantified captures hold several nodes.
type Candidate struct {
	Captures map[string][]Node
}

// Span returns the range from the first to the last node bound to name.
func (c Candidate) Span(name string) (Range, bool) {
	nodes := c.Captures[name]
	if len(nodes) == 0 {
		return Range{}, false
	}

	return Range{Start: nodes[0].Range().Start, End: nodes[len(nodes)-1].Range().End}, true
}

// NodeCount returns the total number of captured nodes.
func (c Candidate) NodeCount() int {
	total := 0
	for _, nodes := range c.Captures {
		total += len(nodes)
	}

	return total
}

// QueryCache compiles patterns once per language and shares them across goroutines.
type QueryCache struct {
	cache  map[string]*Query
	lang   *Language
	mu     sync.RWMutex
	hits   atomic.Int64
	misses atomic.Int64
}

// NewQueryCache creates an empty cache for lang.
func NewQueryCache(lang *Language) *QueryCache {
	return &QueryCache{
		cache: make(map[string]*Query),
		lang:  lang,
	}
}

// Language returns the grammar queries are compiled against.
func (qc *QueryCache) Language() *Language {
	return qc.lang
}

// Compile returns the compiled form of pattern, compiling it on first use.
func (qc *QueryCache) Compile(pattern string) (*Query, error) {
	qc.mu.RLock()

	if cached, ok := qc.cache[pattern]; ok {
		qc.mu.RUnlock()
		qc.hits.Add(1)

		return cached, nil
	}

	qc.mu.RUnlock()

	raw, err := sitter.NewQuery(qc.lang.ts, []byte(pattern))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}

	compiled := &Query{raw: raw, Pattern: pattern, captures: CaptureNames(pattern)}

	qc.mu.Lock()
	defer qc.mu.Unlock()

	if existing, ok := qc.cache[pattern]; ok {
		qc.hits.Add(1)

		return existing, nil
	}

	qc.cache[pattern] = compiled
	qc.misses.Add(1)

	return compiled, nil
}

// Stats returns the number of cache hits and misses.
func (qc *QueryCache) Stats() (hits, misses int64) {
	return qc.hits.Load(), qc.misses.Load()
}

// CaptureNames returns the distinct capture names of a query pattern in order of
// first appearance, ignoring string literals.
func CaptureNames(pattern string) []string {
	stripped := queryStringPattern.ReplaceAllString(pattern, `""`)

	var names []string

	seen := make(map[string]bool)

	for _, m := range captureNamePattern.FindAllStringSubmatch(stripped, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}

	return names
}

// Query runs q over the subtree rooted at scope. Candidates whose captures leave
// the scope are dropped. The sequence is finite and single pass.
func (t *Tree) Query(q *Query, scope Node) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		if scope.IsZero() {
			return
		}

		bounds := scope.Range()
		cursor := sitter.NewQueryCursor()
		matches := cursor.Matches(q.raw, scope.ts, t.source)

		for m := matches.Next(); m != nil; m = matches.Next() {
			candidate := Candidate{Captures: make(map[string][]Node, len(m.Captures))}
			inside := true

			for _, capture := range m.Captures {
				if capture.Node.IsNull() {
					continue
				}

				node := Node{ts: capture.Node, tree: t}
				if !bounds.Contains(node.Range()) {
					inside = false

					break
				}

				name := q.raw.CaptureNameForID(capture.Index)
				candidate.Captures[name] = append(candidate.Captures[name], node)
			}

			if inside && !yield(candidate) {
				return
			}
		}
	}
}
