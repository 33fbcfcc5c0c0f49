package syntax

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

// Sentinel errors for parsing.
var (
	// ErrSyntax is wrapped by every ParseError.
	ErrSyntax     = errors.New("syntax error")
	errNoRootNode = errors.New("parser returned no root node")
	errPoolType   = errors.New("unexpected parser type in pool")
)

// ParseError reports the first erroneous or missing node of a tree.
type ParseError struct {
	Kind   string
	Line   int
	Column int
	Offset int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("syntax error at %d:%d (%s)", e.Line, e.Column, e.Kind)
}

func (e *ParseError) Unwrap() error {
	return ErrSyntax
}

// Parser turns source text into trees for a single language. It is safe for
// concurrent use; tree-sitter parsers are pooled.
type Parser struct {
	lang *Language
	pool sync.Pool
}

// NewParser creates a parser for lang.
func NewParser(lang *Language) *Parser {
	parser := &Parser{lang: lang}
	parser.pool = sync.Pool{
		New: func() any {
			tsParser := sitter.NewParser()
			tsParser.SetLanguage(lang.ts)

			return tsParser
		},
	}

	return parser
}

// Language returns the grammar the parser was built for.
func (p *Parser) Language() *Language {
	return p.lang
}

// Parse parses source. Input containing syntax errors is rejected with a *ParseError.
func (p *Parser) Parse(ctx context.Context, source []byte) (*Tree, error) {
	tsParser, ok := p.pool.Get().(*sitter.Parser)
	if !ok {
		return nil, errPoolType
	}

	defer p.pool.Put(tsParser)

	raw, err := tsParser.ParseString(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", p.lang.Name, err)
	}

	root := raw.RootNode()
	if root.IsNull() {
		raw.Close()

		return nil, errNoRootNode
	}

	tree := &Tree{raw: raw, root: root, source: source, lang: p.lang}

	if root.HasError() {
		perr := tree.firstError()
		tree.Close()

		return nil, perr
	}

	return tree, nil
}

func (t *Tree) firstError() *ParseError {
	var found *ParseError

	var visit func(n sitter.Node) bool

	visit = func(n sitter.Node) bool {
		if n.Type() == "ERROR" || n.IsMissing() {
			point := n.StartPoint()
			found = &ParseError{
				Kind:   n.Type(),
				Line:   int(point.Row) + 1,
				Column: int(point.Column) + 1,
				Offset: int(n.StartByte()),
			}

			if n.IsMissing() {
				found.Kind = "missing " + n.Type()
			}

			return true
		}

		for idx := range n.ChildCount() {
			if visit(n.Child(idx)) {
				return true
			}
		}

		return false
	}

	if !visit(t.root) {
		found = &ParseError{Kind: "ERROR", Line: 1, Column: 1}
	}

	return found
}
