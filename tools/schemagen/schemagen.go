// Package main writes the JSON schema of the machine-readable run report.
//
//	go run ./tools/schemagen -o docs/schemas
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"

	"github.com/Sumatoshi-tech/prune/pkg/report"
)

const draft07 = "https://json-schema.org/draft-07/schema#"

// Schema is the subset of JSON Schema draft-07 the generator emits.
type Schema struct {
	Schema      string             `json:"$schema,omitempty"`
	Ref         string             `json:"$ref,omitempty"`
	Title       string             `json:"title,omitempty"`
	Description string             `json:"description,omitempty"`
	Type        string             `json:"type,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Definitions map[string]*Schema `json:"definitions,omitempty"`
}

type target struct {
	file  string
	title string
	about string
	root  reflect.Type
}

var targets = []target{{
	file:  "report.json",
	title: "prune run report",
	about: "Output of prune run --format json.",
	root:  reflect.TypeFor[report.Document](),
}}

// scalars maps reflect kinds onto JSON types. Kinds missing here fall
// through to the composite cases of builder.schemaOf.
var scalars = map[reflect.Kind]string{
	reflect.String:  "string",
	reflect.Bool:    "boolean",
	reflect.Int:     "integer",
	reflect.Int8:    "integer",
	reflect.Int16:   "integer",
	reflect.Int32:   "integer",
	reflect.Int64:   "integer",
	reflect.Uint:    "integer",
	reflect.Uint8:   "integer",
	reflect.Uint16:  "integer",
	reflect.Uint32:  "integer",
	reflect.Uint64:  "integer",
	reflect.Float32: "number",
	reflect.Float64: "number",
}

func main() {
	out := flag.String("o", "docs/schemas", `output directory, or "-" for stdout`)
	flag.Parse()

	for _, tg := range targets {
		if err := emit(*out, tg); err != nil {
			fmt.Fprintf(os.Stderr, "schemagen: %s: %v\n", tg.file, err)
			os.Exit(1)
		}
	}
}

func emit(dir string, tg target) error {
	if dir == "-" {
		return encode(os.Stdout, build(tg))
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(dir, tg.file))
	if err != nil {
		return err
	}

	if err := encode(f, build(tg)); err != nil {
		f.Close()

		return err
	}

	return f.Close()
}

func encode(w io.Writer, s *Schema) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(s)
}

// builder collects named struct definitions while walking a type.
type builder struct {
	defs map[string]*Schema
}

func build(tg target) *Schema {
	b := &builder{defs: map[string]*Schema{}}

	root := b.object(tg.root)
	root.Schema = draft07
	root.Title = tg.title
	root.Description = tg.about

	if len(b.defs) > 0 {
		root.Definitions = b.defs
	}

	return root
}

// object describes the exported, json-tagged fields of a struct. Fields
// without omitempty are required.
func (b *builder) object(t reflect.Type) *Schema {
	s := &Schema{Type: "object", Properties: map[string]*Schema{}}

	for field := range fields(t) {
		name, opts, _ := strings.Cut(field.Tag.Get("json"), ",")

		s.Properties[name] = b.schemaOf(field.Type)

		if !slices.Contains(strings.Split(opts, ","), "omitempty") {
			s.Required = append(s.Required, name)
		}
	}

	slices.Sort(s.Required)

	return s
}

func (b *builder) schemaOf(t reflect.Type) *Schema {
	if name, ok := scalars[t.Kind()]; ok {
		return &Schema{Type: name}
	}

	switch t.Kind() {
	case reflect.Pointer:
		return b.schemaOf(t.Elem())
	case reflect.Slice, reflect.Array:
		return &Schema{Type: "array", Items: b.schemaOf(t.Elem())}
	case reflect.Struct:
		if t.Name() == "" {
			return b.object(t)
		}

		if _, seen := b.defs[t.Name()]; !seen {
			// Placeholder so self-referencing types terminate.
			b.defs[t.Name()] = nil
			b.defs[t.Name()] = b.object(t)
		}

		return &Schema{Ref: "#/definitions/" + t.Name()}
	default:
		return &Schema{Type: "object"}
	}
}

// fields yields the struct fields that take part in JSON encoding.
func fields(t reflect.Type) iter.Seq[reflect.StructField] {
	return func(yield func(reflect.StructField) bool) {
		for i := range t.NumField() {
			field := t.Field(i)

			tag := field.Tag.Get("json")
			if !field.IsExported() || tag == "" || tag == "-" {
				continue
			}

			if !yield(field) {
				return
			}
		}
	}
}
