package rule

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Well-known hole names of the flag cleanup rules.
const (
	HoleFlagName          = "stale_flag_name"
	HoleTreated           = "treated"
	HoleTreatedComplement = "treated_complement"
)

// Substitutions are the user supplied hole values that seed a run.
type Substitutions map[string]string

// ParseSubstitutions reads key=value pairs.
func ParseSubstitutions(pairs []string) (Substitutions, error) {
	subs := make(Substitutions, len(pairs))

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("%w: substitution %q is not key=value", ErrInvalidRule, pair)
		}

		subs[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	return subs.Normalize(), nil
}

// Normalize returns a copy where a boolean treated value also defines its complement.
func (s Substitutions) Normalize() Substitutions {
	out := maps.Clone(s)
	if out == nil {
		out = Substitutions{}
	}

	if treated := strings.ToLower(out[HoleTreated]); treated == "true" || treated == "false" {
		out[HoleTreated] = treated
	}

	if _, set := out[HoleTreatedComplement]; !set {
		switch out[HoleTreated] {
		case "true":
			out[HoleTreatedComplement] = "false"
		case "false":
			out[HoleTreatedComplement] = "true"
		}
	}

	return out
}

// Keys returns the sorted hole names.
func (s Substitutions) Keys() []string {
	return slices.Sorted(maps.Keys(s))
}
