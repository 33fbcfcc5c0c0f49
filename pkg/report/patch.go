package report

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// patchContext is the number of unchanged lines kept around each change.
const patchContext = 3

// Patch renders a line diff between before and after. Unchanged runs longer
// than the context window are folded into a hunk marker.
func Patch(path string, before, after []byte) string {
	var b strings.Builder

	fmt.Fprintf(&b, "--- a/%s\n+++ b/%s\n", path, path)

	if string(before) == string(after) {
		return b.String()
	}

	dmp := diffmatchpatch.New()
	src, dst, lines := dmp.DiffLinesToRunes(string(before), string(after))
	diffs := dmp.DiffCharsToLines(dmp.DiffMainRunes(src, dst, false), lines)

	oldLine, newLine := 1, 1

	for i, d := range diffs {
		chunk := splitLines(d.Text)

		switch d.Type {
		case diffmatchpatch.DiffEqual:
			head, tail := patchContext, patchContext
			if i == 0 {
				head = 0
			}

			if i == len(diffs)-1 {
				tail = 0
			}

			if len(chunk) > head+tail {
				writeLines(&b, " ", chunk[:head])

				if tail == 0 {
					continue
				}

				skipped := len(chunk) - head - tail
				oldLine += head + skipped
				newLine += head + skipped

				fmt.Fprintf(&b, "@@ -%d +%d @@\n", oldLine, newLine)
				writeLines(&b, " ", chunk[len(chunk)-tail:])

				oldLine += tail
				newLine += tail

				continue
			}

			writeLines(&b, " ", chunk)
			oldLine += len(chunk)
			newLine += len(chunk)
		case diffmatchpatch.DiffDelete:
			writeLines(&b, "-", chunk)
			oldLine += len(chunk)
		case diffmatchpatch.DiffInsert:
			writeLines(&b, "+", chunk)
			newLine += len(chunk)
		}
	}

	return b.String()
}

func splitLines(text string) []string {
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	return lines
}

func writeLines(b *strings.Builder, prefix string, lines []string) {
	for _, line := range lines {
		b.WriteString(prefix)
		b.WriteString(line)

		if !strings.HasSuffix(line, "\n") {
			b.WriteString("\n\\ No newline at end of file\n")
		}
	}
}
