// Package scope resolves the lexical region a cascading rule may search after an
// edit, and keeps stable anchors to such regions across re-parses.
package scope

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Sumatoshi-tech/prune/pkg/suggest"
)

// Sentinel errors for scope resolution.
var (
	// ErrScopeNotFound means no enclosing node qualifies; the edge is skipped.
	ErrScopeNotFound = errors.New("scope not found")
	// ErrUnknownKind is returned when parsing a scope kind name fails.
	ErrUnknownKind = errors.New("unknown scope kind")
)

// Kind names a category of enclosing construct.
type Kind int

// Scope kinds, from narrowest to widest.
const (
	// Parent is the direct parent of the edited node.
	Parent Kind = iota
	// Statement is the innermost enclosing statement.
	Statement
	// Block is the innermost enclosing block.
	Block
	// Method is the innermost enclosing method, constructor or function.
	Method
	// Class is the innermost enclosing type declaration.
	Class
	// Global is the root of the file.
	Global
	// Codebase reaches every file of the batch.
	Codebase
)

var kindNames = [...]string{"Parent", "Statement", "Block", "Method", "Class", "Global", "Codebase"}

func (k Kind) String() string {
	if int(k) < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}

	return kindNames[k]
}

// ParseKind converts a case-insensitive scope name into a Kind.
func ParseKind(name string) (Kind, error) {
	for idx, candidate := range kindNames {
		if strings.EqualFold(candidate, strings.TrimSpace(name)) {
			return Kind(idx), nil
		}
	}

	return 0, fmt.Errorf("%w: %q%s", ErrUnknownKind, name, suggest.Hint(name, kindNames[:]))
}

// Kinds returns every scope kind name.
func Kinds() []string {
	return kindNames[:]
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}

	*k = parsed

	return nil
}
