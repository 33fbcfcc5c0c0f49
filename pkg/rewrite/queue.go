package rewrite

import (
	"maps"
	"slices"
	"strings"

	"github.com/Sumatoshi-tech/prune/pkg/scope"
)

// WorkItem is a pending attempt of one rule inside one scope.
type WorkItem struct {
	Rule     string
	Anchor   scope.Anchor
	Bindings map[string]string
	// Version is the history length when Anchor was taken.
	Version int
}

func (w WorkItem) key() string {
	var b strings.Builder

	b.WriteString(w.Rule)
	b.WriteByte('|')
	b.WriteString(w.Anchor.String())

	for _, name := range slices.Sorted(maps.Keys(w.Bindings)) {
		b.WriteByte('|')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(w.Bindings[name])
	}

	return b.String()
}

// queue is a FIFO of work items that drops items already pending.
type queue struct {
	items   []WorkItem
	pending map[string]bool
}

func newQueue() *queue {
	return &queue{pending: make(map[string]bool)}
}

func (q *queue) pushBack(item WorkItem) bool {
	key := item.key()
	if q.pending[key] {
		return false
	}

	q.pending[key] = true
	q.items = append(q.items, item)

	return true
}

func (q *queue) pushFront(item WorkItem) bool {
	key := item.key()
	if q.pending[key] {
		return false
	}

	q.pending[key] = true
	q.items = slices.Insert(q.items, 0, item)

	return true
}

func (q *queue) pop() (WorkItem, bool) {
	if len(q.items) == 0 {
		return WorkItem{}, false
	}

	item := q.items[0]
	q.items = q.items[1:]
	delete(q.pending, item.key())

	return item, true
}

func (q *queue) len() int {
	return len(q.items)
}
