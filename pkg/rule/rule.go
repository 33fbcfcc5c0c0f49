// Package rule defines rewrite rules, their constraints and the scoped graph
// that chains them into cleanup cascades.
package rule

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Sentinel errors for rule definitions.
var (
	// ErrInvalidRule marks a rule or rule set that cannot be used.
	ErrInvalidRule = errors.New("invalid rule")
	// ErrUnboundHole is returned when a declared hole has no value at instantiation.
	ErrUnboundHole = errors.New("unbound hole")
)

// Rule is a pattern with a replacement template and side conditions.
//
// ReplaceNode names the capture whose range is rewritten with the rendered
// Replace template; an empty Replace deletes the node. A rule without
// ReplaceNode never edits: it only triggers its outgoing edges.
type Rule struct {
	Name        string      `json:"name"                   yaml:"name"`
	Description string      `json:"description,omitempty"  yaml:"description,omitempty"`
	Query       string      `json:"query"                  yaml:"query"`
	ReplaceNode string      `json:"replace_node,omitempty" yaml:"replace_node,omitempty"`
	Replace     string      `json:"replace,omitempty"      yaml:"replace,omitempty"`
	Holes       []string    `json:"holes,omitempty"        yaml:"holes,omitempty"`
	Constraints []Predicate `json:"constraints,omitempty"  yaml:"constraints,omitempty"`
	Groups      []string    `json:"groups,omitempty"       yaml:"groups,omitempty"`
	Seed        bool        `json:"seed,omitempty"         yaml:"seed,omitempty"`
}

// Edits reports whether the rule rewrites text when it matches.
func (r *Rule) Edits() bool {
	return r.ReplaceNode != ""
}

// InGroup reports whether the rule is tagged with group.
func (r *Rule) InGroup(group string) bool {
	return slices.Contains(r.Groups, group)
}

// Instantiate returns a copy of the rule with hole values substituted into the
// query and the constraint queries. Every declared hole must have a value.
func (r *Rule) Instantiate(values map[string]string) (*Rule, error) {
	holes := make(map[string]string, len(r.Holes))

	for _, hole := range r.Holes {
		value, ok := values[hole]
		if !ok {
			return nil, fmt.Errorf("%w: rule %s needs @%s", ErrUnboundHole, r.Name, hole)
		}

		holes[hole] = value
	}

	inst := *r
	inst.Query = Render(r.Query, holes)
	inst.Constraints = make([]Predicate, len(r.Constraints))

	for idx, pred := range r.Constraints {
		pred.Queries = slices.Clone(pred.Queries)
		for qi, q := range pred.Queries {
			pred.Queries[qi] = Render(q, holes)
		}

		inst.Constraints[idx] = pred
	}

	return &inst, nil
}

// Validate checks the rule in isolation. captures are the capture names of its query.
func (r *Rule) Validate(captures []string) error {
	var errs []error

	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, errors.New("rule without name"))
	}

	if strings.TrimSpace(r.Query) == "" {
		errs = append(errs, errors.New("empty query"))
	}

	for _, hole := range r.Holes {
		if slices.Contains(captures, hole) {
			errs = append(errs, fmt.Errorf("hole @%s collides with a capture", hole))
		}
	}

	if r.ReplaceNode != "" && !slices.Contains(captures, r.ReplaceNode) {
		errs = append(errs, fmt.Errorf("replace_node @%s is not captured by the query", r.ReplaceNode))
	}

	if r.ReplaceNode == "" && r.Replace != "" {
		errs = append(errs, errors.New("replace without replace_node"))
	}

	for idx := range r.Constraints {
		if err := r.Constraints[idx].Validate(captures); err != nil {
			errs = append(errs, fmt.Errorf("constraint %d: %w", idx, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w %q: %w", ErrInvalidRule, r.Name, errors.Join(errs...))
	}

	return nil
}

// Edge chains rules: after From fires, every rule in To is attempted within the
// Scope resolved from the edited node. From and To may name rules or groups.
type Edge struct {
	From  string   `json:"from"  yaml:"from"`
	To    []string `json:"to"    yaml:"to"`
	Scope string   `json:"scope" yaml:"scope"`
}

// File is the on-disk rule definition document.
type File struct {
	Rules []Rule `json:"rules"           yaml:"rules"`
	Edges []Edge `json:"edges,omitempty" yaml:"edges,omitempty"`
}

// Merge appends the rules and edges of others to f.
func (f *File) Merge(others ...*File) {
	for _, other := range others {
		if other == nil {
			continue
		}

		f.Rules = append(f.Rules, other.Rules...)
		f.Edges = append(f.Edges, other.Edges...)
	}
}
