package rewrite

import "github.com/Sumatoshi-tech/prune/pkg/syntax"

// change summarizes one committed pass as a single replaced span.
type change struct {
	Range  syntax.Range
	NewLen int
}

func (c change) apply(offset int) int {
	switch {
	case offset < c.Range.Start:
		return offset
	case offset >= c.Range.End:
		return offset + c.NewLen - c.Range.Len()
	default:
		return c.Range.Start
	}
}

// history is the log of committed passes of one file. Versions are indexes
// into it: version v is the text before change v.
type history []change

// shift maps offsets of version v to the current text.
func (h history) shift(v int) func(int) int {
	pending := h[min(v, len(h)):]
	if len(pending) == 0 {
		return nil
	}

	return func(offset int) int {
		for _, c := range pending {
			offset = c.apply(offset)
		}

		return offset
	}
}

// diffSpan returns the smallest span of before that, replaced, yields after.
func diffSpan(before, after []byte) change {
	prefix := 0
	for prefix < len(before) && prefix < len(after) && before[prefix] == after[prefix] {
		prefix++
	}

	suffix := 0
	for suffix < len(before)-prefix && suffix < len(after)-prefix &&
		before[len(before)-1-suffix] == after[len(after)-1-suffix] {
		suffix++
	}

	return change{
		Range:  syntax.Range{Start: prefix, End: len(before) - suffix},
		NewLen: len(after) - prefix - suffix,
	}
}
