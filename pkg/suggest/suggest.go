// Package suggest proposes the known name closest to a misspelled one, for
// error messages about rule, group and scope names.
package suggest

import "strings"

// Distance returns the Levenshtein distance between a and b, counted in runes.
func Distance(a, b string) int {
	s1, s2 := []rune(a), []rune(b)
	if len(s1) < len(s2) {
		s1, s2 = s2, s1
	}

	if len(s2) == 0 {
		return len(s1)
	}

	// One column of the edit matrix, indexed by prefix length of s2.
	column := make([]int, len(s2)+1)
	for idx := range column {
		column[idx] = idx
	}

	for _, r1 := range s1 {
		diag := column[0]
		column[0]++

		for idx, r2 := range s2 {
			above := column[idx+1]

			cost := 1
			if r1 == r2 {
				cost = 0
			}

			column[idx+1] = min(above+1, column[idx]+1, diag+cost)
			diag = above
		}
	}

	return column[len(s2)]
}

// Closest returns the candidate nearest to name. Candidates further than a
// third of the name's length, and at least one edit, are not suggested.
// Comparison ignores case; ties go to the earlier candidate.
func Closest(name string, candidates []string) (string, bool) {
	limit := max(1, len([]rune(name))/3)
	lowered := strings.ToLower(name)

	best, bestDist := "", limit+1

	for _, candidate := range candidates {
		if dist := Distance(lowered, strings.ToLower(candidate)); dist < bestDist {
			best, bestDist = candidate, dist
		}
	}

	return best, best != ""
}

// Hint formats the closest candidate as an error suffix, or returns "".
func Hint(name string, candidates []string) string {
	if match, ok := Closest(name, candidates); ok {
		return "; did you mean " + `"` + match + `"?`
	}

	return ""
}
