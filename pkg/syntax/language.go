// Package syntax wraps tree-sitter parsing and querying behind immutable trees and node handles.
package syntax

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"unsafe"

	forest "github.com/alexaandru/go-sitter-forest"
	golang "github.com/alexaandru/go-sitter-forest/go"
	"github.com/alexaandru/go-sitter-forest/java"
	"github.com/alexaandru/go-sitter-forest/kotlin"
	"github.com/alexaandru/go-sitter-forest/python"
	"github.com/alexaandru/go-sitter-forest/swift"
	"github.com/alexaandru/go-sitter-forest/tsx"
	"github.com/alexaandru/go-sitter-forest/typescript"
	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

// ErrUnknownLanguage is returned when no grammar is registered for a language name or path.
var ErrUnknownLanguage = errors.New("unknown language")

// Language is a tree-sitter grammar together with the file extensions it handles.
type Language struct {
	ts         *sitter.Language
	Name       string
	Extensions []string
}

type grammar struct {
	load       func() unsafe.Pointer
	extensions []string
}

// grammars lists the languages that ship with cleanup rules and scope tables.
var grammars = map[string]grammar{
	"go":         {golang.GetLanguage, []string{".go"}},
	"java":       {java.GetLanguage, []string{".java"}},
	"kotlin":     {kotlin.GetLanguage, []string{".kt", ".kts"}},
	"python":     {python.GetLanguage, []string{".py"}},
	"swift":      {swift.GetLanguage, []string{".swift"}},
	"tsx":        {tsx.GetLanguage, []string{".tsx"}},
	"typescript": {typescript.GetLanguage, []string{".ts"}},
}

var languageCache sync.Map

// LookupLanguage returns the grammar registered under name. Names outside the
// built-in set are resolved through the grammar forest, without extensions.
func LookupLanguage(name string) (*Language, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	if cached, ok := languageCache.Load(name); ok {
		lang, castOK := cached.(*Language)
		if castOK {
			return lang, nil
		}
	}

	var lang *Language

	if g, ok := grammars[name]; ok {
		lang = &Language{Name: name, Extensions: g.extensions, ts: sitter.NewLanguage(g.load())}
	} else {
		ts := forestLanguage(name)
		if ts == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, name)
		}

		lang = &Language{Name: name, ts: ts}
	}

	actual, _ := languageCache.LoadOrStore(name, lang)

	stored, ok := actual.(*Language)
	if !ok {
		return lang, nil
	}

	return stored, nil
}

// forestLanguage looks a grammar up in the forest, which panics on some unknown names.
func forestLanguage(name string) (lang *sitter.Language) {
	defer func() {
		if recover() != nil {
			lang = nil
		}
	}()

	return forest.GetLanguage(name)
}

// LanguageForPath picks a built-in grammar by file extension.
func LanguageForPath(path string) (*Language, error) {
	ext := strings.ToLower(filepath.Ext(path))

	for _, name := range Languages() {
		if slices.Contains(grammars[name].extensions, ext) {
			return LookupLanguage(name)
		}
	}

	return nil, fmt.Errorf("%w: no grammar for %q", ErrUnknownLanguage, path)
}

// Languages returns the sorted names of the built-in grammars.
func Languages() []string {
	names := make([]string, 0, len(grammars))
	for name := range grammars {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// HandlesPath reports whether path carries one of the language's extensions.
func (l *Language) HandlesPath(path string) bool {
	return slices.Contains(l.Extensions, strings.ToLower(filepath.Ext(path)))
}

func (l *Language) String() string {
	return l.Name
}
