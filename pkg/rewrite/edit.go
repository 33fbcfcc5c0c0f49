// Package rewrite drives rules over a file until it reaches a fixed point.
package rewrite

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/Sumatoshi-tech/prune/pkg/syntax"
)

// Edit replaces a byte range of the current text.
type Edit struct {
	Range   syntax.Range
	NewText string
	Rule    string
}

// ConflictingEditError reports two edits of one pass that touch the same bytes.
// Neither is applied.
type ConflictingEditError struct {
	First  Edit
	Second Edit
}

func (e *ConflictingEditError) Error() string {
	return fmt.Sprintf("conflicting edits: %s [%d,%d) and %s [%d,%d)",
		e.First.Rule, e.First.Range.Start, e.First.Range.End,
		e.Second.Rule, e.Second.Range.Start, e.Second.Range.End)
}

// Rules returns the names of the rules whose edits collided.
func (e *ConflictingEditError) Rules() []string {
	return []string{e.First.Rule, e.Second.Rule}
}

// Buffer is a queue of edits to apply to a text in one pass.
type Buffer struct {
	text  []byte
	edits []Edit
}

// NewBuffer creates an empty pass over text.
func NewBuffer(text []byte) *Buffer {
	return &Buffer{text: text}
}

// Replace queues an edit. It fails without queueing when the range is out of
// bounds or overlaps an edit already queued. Two insertions at one offset
// count as overlapping.
func (b *Buffer) Replace(r syntax.Range, newText, rule string) error {
	if r.Start < 0 || r.End < r.Start || r.End > len(b.text) {
		return fmt.Errorf("edit %s [%d,%d) outside text of %d bytes", rule, r.Start, r.End, len(b.text))
	}

	edit := Edit{Range: r, NewText: newText, Rule: rule}

	for _, queued := range b.edits {
		sameInsert := r.Len() == 0 && queued.Range.Len() == 0 && r.Start == queued.Range.Start
		if sameInsert || queued.Range.Overlaps(r) {
			return &ConflictingEditError{First: queued, Second: edit}
		}
	}

	b.edits = append(b.edits, edit)

	return nil
}

// Delete queues the removal of r.
func (b *Buffer) Delete(r syntax.Range, rule string) error {
	return b.Replace(r, "", rule)
}

// Edits returns the queued edits in text order.
func (b *Buffer) Edits() []Edit {
	sorted := slices.Clone(b.edits)
	slices.SortFunc(sorted, func(x, y Edit) int {
		if c := cmp.Compare(x.Range.Start, y.Range.Start); c != 0 {
			return c
		}

		return cmp.Compare(x.Range.End, y.Range.End)
	})

	return sorted
}

// Bytes returns the text with every queued edit applied.
func (b *Buffer) Bytes() []byte {
	var out strings.Builder

	out.Grow(len(b.text))

	last := 0

	for _, edit := range b.Edits() {
		out.Write(b.text[last:edit.Range.Start])
		out.WriteString(edit.NewText)
		last = edit.Range.End
	}

	out.Write(b.text[last:])

	return []byte(out.String())
}

// Position maps an offset of the original text to the edited text. Offsets
// inside a replaced range map to the start of its replacement.
func (b *Buffer) Position(offset int) int {
	delta := 0

	for _, edit := range b.Edits() {
		switch {
		case offset < edit.Range.Start:
			return offset + delta
		case offset < edit.Range.End:
			return edit.Range.Start + delta
		}

		delta += len(edit.NewText) - edit.Range.Len()
	}

	return offset + delta
}

// span summarizes the queued edits as one replaced range of the original text.
func (b *Buffer) span() change {
	edits := b.Edits()
	if len(edits) == 0 {
		return change{}
	}

	lo, hi := edits[0].Range.Start, edits[0].Range.End
	delta := 0

	for _, edit := range edits {
		hi = max(hi, edit.Range.End)
		delta += len(edit.NewText) - edit.Range.Len()
	}

	return change{Range: syntax.Range{Start: lo, End: hi}, NewLen: hi - lo + delta}
}
