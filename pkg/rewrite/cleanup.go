package rewrite

import (
	"bytes"
	"regexp"

	"github.com/Sumatoshi-tech/prune/pkg/syntax"
)

// cleanupRule names edits the driver adds around a deletion.
const cleanupRule = "cleanup"

const closers = ")]}>;"

var (
	doubleComma  = regexp.MustCompile(`,\s*,`)
	leadingComma = regexp.MustCompile(`([\[(])\s*,`)
	danglingTail = regexp.MustCompile(`,(\s*[\])])`)
)

// queueDeletionCleanup queues the edits that tidy the text around a deleted
// range: the separator the deleted element leaves behind, the line when it
// becomes blank, and a blank line that would otherwise double up.
func queueDeletionCleanup(buf *Buffer, text []byte, deleted syntax.Range) error {
	lo, hi := deleted.Start, deleted.End

	next := skipBlank(text, hi, false)

	switch {
	case next < len(text) && text[next] == ',':
		hi = skipBlank(text, next+1, false)
	case next < len(text) && bytes.IndexByte([]byte(closers), text[next]) >= 0:
		if prev := prevNonBlank(text, lo); prev >= 0 && text[prev] == ',' {
			lo = prev
		}
	}

	lineStart := bytes.LastIndexByte(text[:lo], '\n') + 1
	lineEnd := lineEndAt(text, hi)

	if isBlank(text[lineStart:lo]) && isBlank(text[hi:lineEnd]) {
		lo = lineStart
		hi = min(lineEnd+1, len(text))

		following := lineEndAt(text, hi)

		switch {
		case hi < len(text) && following < len(text) && isBlank(text[hi:following]):
			if prev := prevNonBlank(text, lo); prev < 0 || text[prev] == '{' || blankLineBefore(text, lo) {
				hi = following + 1
			}
		case blankLineBefore(text, lo):
			if after := skipBlank(text, hi, true); after < len(text) && text[after] == '}' {
				lo = bytes.LastIndexByte(text[:lo-1], '\n') + 1
			}
		}
	}

	if lo < deleted.Start {
		if err := buf.Delete(syntax.Range{Start: lo, End: deleted.Start}, cleanupRule); err != nil {
			return err
		}
	}

	if hi > deleted.End {
		return buf.Delete(syntax.Range{Start: deleted.End, End: hi}, cleanupRule)
	}

	return nil
}

// repairSeparators removes the comma artefacts deletions leave in lists.
func repairSeparators(text []byte) []byte {
	out := doubleComma.ReplaceAll(text, []byte(","))
	out = leadingComma.ReplaceAll(out, []byte("$1"))

	return danglingTail.ReplaceAll(out, []byte("$1"))
}

func isBlank(b []byte) bool {
	return len(bytes.TrimLeft(b, " \t\r")) == 0
}

// skipBlank returns the first offset at or after from that is not a space or
// tab, or a newline when newlines is set.
func skipBlank(text []byte, from int, newlines bool) int {
	for from < len(text) {
		switch text[from] {
		case ' ', '\t', '\r':
		case '\n':
			if !newlines {
				return from
			}
		default:
			return from
		}

		from++
	}

	return from
}

// prevNonBlank returns the offset of the last non-whitespace byte before at, or -1.
func prevNonBlank(text []byte, at int) int {
	for at--; at >= 0; at-- {
		switch text[at] {
		case ' ', '\t', '\r', '\n':
		default:
			return at
		}
	}

	return -1
}

func lineEndAt(text []byte, from int) int {
	if idx := bytes.IndexByte(text[from:], '\n'); idx >= 0 {
		return from + idx
	}

	return len(text)
}

// blankLineBefore reports whether the line ending just before lineStart is blank.
func blankLineBefore(text []byte, lineStart int) bool {
	if lineStart == 0 {
		return false
	}

	prevStart := bytes.LastIndexByte(text[:lineStart-1], '\n') + 1

	return isBlank(text[prevStart : lineStart-1])
}
