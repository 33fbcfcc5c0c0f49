package rule

import (
	"regexp"
	"strings"
)

var referencePattern = regexp.MustCompile(`@([A-Za-z_][A-Za-z0-9_]*)`)

// References returns the distinct @names used in a template, in order.
func References(template string) []string {
	var names []string

	seen := make(map[string]bool)

	for _, m := range referencePattern.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}

	return names
}

// Render replaces every @name bound in values with its value. Unbound
// references such as annotations are kept verbatim.
func Render(template string, values map[string]string) string {
	return RenderWith(template, values, nil)
}

// RenderWith is Render with an escape function applied to substituted values.
func RenderWith(template string, values map[string]string, escape func(string) string) string {
	if !strings.Contains(template, "@") {
		return template
	}

	return referencePattern.ReplaceAllStringFunc(template, func(ref string) string {
		value, ok := values[ref[1:]]
		if !ok {
			return ref
		}

		if escape != nil {
			return escape(value)
		}

		return value
	})
}
