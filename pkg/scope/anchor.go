package scope

import (
	"fmt"

	"github.com/Sumatoshi-tech/prune/pkg/syntax"
)

// Anchor identifies a scope root independently of any particular tree: node
// kind, declared name, ordinal among nodes sharing both, and the range it had
// when the anchor was taken.
type Anchor struct {
	Kind    string
	Name    string
	Ordinal int
	Range   syntax.Range
	Root    bool
}

func (a Anchor) String() string {
	switch {
	case a.Root:
		return "root"
	case a.Name == "":
		return fmt.Sprintf("%s#%d@%d", a.Kind, a.Ordinal, a.Range.Start)
	default:
		return fmt.Sprintf("%s %s#%d@%d", a.Kind, a.Name, a.Ordinal, a.Range.Start)
	}
}

// AnchorOf captures the anchor of node in its tree.
func AnchorOf(node syntax.Node) Anchor {
	anchor := Anchor{Kind: node.Kind(), Name: node.Name(), Range: node.Range()}

	if _, hasParent := node.Parent(); !hasParent {
		anchor.Root = true

		return anchor
	}

	for candidate := range node.Tree().Walk() {
		if candidate.Same(node) {
			break
		}

		if candidate.Kind() == anchor.Kind && candidate.Name() == anchor.Name {
			anchor.Ordinal++
		}
	}

	return anchor
}

// Locate finds the node an anchor denotes in tree. shift maps offsets of the
// tree the anchor was taken in to offsets of tree; nil means unchanged.
//
// Root anchors always resolve to the root. Otherwise the candidates are the
// nodes with the anchor's kind and name. Named anchors take the candidate
// whose shifted range is closest, ties going to the lower ordinal; without a
// shift an inexact hit falls back to the ordinal. Unnamed anchors only
// accept a candidate starting exactly at the shifted start.
func Locate(tree *syntax.Tree, anchor Anchor, shift func(int) int) (syntax.Node, bool) {
	if anchor.Root {
		return tree.Root(), true
	}

	want := anchor.Range
	if shift != nil {
		want = syntax.Range{Start: shift(anchor.Range.Start), End: shift(anchor.Range.End)}
	}

	var (
		best     syntax.Node
		bestDist = -1
		ordinal  int
		byOrd    syntax.Node
	)

	for candidate := range tree.Walk() {
		if candidate.Kind() != anchor.Kind || candidate.Name() != anchor.Name {
			continue
		}

		if ordinal == anchor.Ordinal {
			byOrd = candidate
		}

		ordinal++

		got := candidate.Range()
		if anchor.Name == "" && got.Start != want.Start {
			continue
		}

		dist := abs(got.Start-want.Start) + abs(got.End-want.End)
		if bestDist < 0 || dist < bestDist {
			best, bestDist = candidate, dist
		}
	}

	if bestDist == 0 {
		return best, true
	}

	if anchor.Name != "" && shift == nil && !byOrd.IsZero() {
		return byOrd, true
	}

	if bestDist < 0 {
		return syntax.Node{}, false
	}

	return best, true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}

	return v
}
