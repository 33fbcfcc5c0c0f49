package rule

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/prune/pkg/rule/schema"
)

// ErrInvalidRuleFile marks rule documents that fail to decode or violate the schema.
var ErrInvalidRuleFile = errors.New("invalid rule file")

//go:embed builtin/*.yaml
var builtinFS embed.FS

// SchemaError lists the schema violations of one rule document.
type SchemaError struct {
	Source   string
	Problems []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: %d schema violation(s): %s", e.Source, len(e.Problems), strings.Join(e.Problems, "; "))
}

func (e *SchemaError) Unwrap() error {
	return ErrInvalidRuleFile
}

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schema.Rules))
})

// Parse decodes a YAML rule document after validating it against the schema.
// source names the document in errors.
func Parse(data []byte, source string) (*File, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRuleFile, source, err)
	}

	if doc == nil {
		return nil, fmt.Errorf("%w: %s: empty document", ErrInvalidRuleFile, source)
	}

	validator, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile rule schema: %w", err)
	}

	result, err := validator.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRuleFile, source, err)
	}

	if !result.Valid() {
		schemaErr := &SchemaError{Source: source}
		for _, desc := range result.Errors() {
			schemaErr.Problems = append(schemaErr.Problems, desc.String())
		}

		return nil, schemaErr
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRuleFile, source, err)
	}

	return &file, nil
}

// LoadFiles reads and merges rule files. Directories contribute their *.yaml
// and *.yml entries in lexical order.
func LoadFiles(paths ...string) (*File, error) {
	merged := &File{}

	for _, path := range paths {
		files, err := expandPath(path)
		if err != nil {
			return nil, err
		}

		for _, name := range files {
			data, err := os.ReadFile(name)
			if err != nil {
				return nil, fmt.Errorf("read rules: %w", err)
			}

			file, err := Parse(data, name)
			if err != nil {
				return nil, err
			}

			merged.Merge(file)
		}
	}

	return merged, nil
}

func expandPath(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}

	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}

	var files []string

	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if !entry.IsDir() && (ext == ".yaml" || ext == ".yml") {
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}

	return files, nil
}

// Builtin returns the cleanup rules shipped for language.
func Builtin(language string) (*File, error) {
	data, err := builtinFS.ReadFile("builtin/" + language + ".yaml")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: no built-in rules for %q", ErrInvalidRuleFile, language)
		}

		return nil, fmt.Errorf("read built-in rules: %w", err)
	}

	return Parse(data, "builtin/"+language+".yaml")
}

// BuiltinLanguages lists the languages with built-in rules.
func BuiltinLanguages() []string {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil
	}

	var names []string
	for _, entry := range entries {
		names = append(names, strings.TrimSuffix(entry.Name(), ".yaml"))
	}

	slices.Sort(names)

	return names
}
