package chunk

import (
	"fmt"

	"github.com/roach88/vstack/internal/ir"
)

// Options returns the options the tree was finalized with.
func (t *Tree) Options() Options { return t.options }

// SetOptions replaces the finalize options. Call Finalize afterwards.
func (t *Tree) SetOptions(opts Options) { t.options = opts }

// Finalize (re)computes gap fill, gate marks, per-leaf liveness and
// buffer aliasing. It is idempotent and must be called after any
// structural change, before the tree is executed.
func (t *Tree) Finalize() error {
	t.fillGaps(t.Root)
	t.markGates()

	first, last := t.globalRefs()
	for _, id := range t.Leaves() {
		t.finalizeLeaf(id, first, last)
	}
	for i := range t.Nodes {
		n := &t.Nodes[i]
		if !n.IsLeaf() {
			n.Chunk.Liveness = nil
			n.Chunk.Remap = nil
			n.Chunk.Code = nil
			n.Chunk.Jumps = nil
		}
	}

	t.assignAliases(first, last)
	return t.CheckPartition()
}

// fillGaps inserts KindGap children so that the children of every
// internal node cover its command range without holes.
func (t *Tree) fillGaps(id NodeID) {
	children := t.Nodes[id].Children
	if len(children) == 0 {
		return
	}
	for _, c := range children {
		t.fillGaps(c)
	}

	cmds := t.Nodes[id].Chunk.Commands
	cursor := cmds.Start
	out := make([]NodeID, 0, len(children)+1)
	for _, c := range children {
		cs := t.Nodes[c].Chunk.Commands
		if cs.Start > cursor {
			out = append(out, t.NewNode(KindGap, id, ir.Range{Start: cursor, End: cs.Start}))
		}
		out = append(out, c)
		cursor = cs.End
	}
	if cursor < cmds.End {
		out = append(out, t.NewNode(KindGap, id, ir.Range{Start: cursor, End: cmds.End}))
	}
	t.Nodes[id].Children = out
}

// markGates sets UnderGate on every strict descendant of a gate.
func (t *Tree) markGates() {
	var visit func(id NodeID, under bool)
	visit = func(id NodeID, under bool) {
		n := &t.Nodes[id]
		n.Chunk.UnderGate = under
		childUnder := under || n.IsGate()
		for _, c := range n.Children {
			visit(c, childUnder)
		}
	}
	visit(t.Root, false)
}

// CheckPartition verifies that the children of every internal node
// partition its range exactly, with no gap or overlap, in all three
// dimensions.
func (t *Tree) CheckPartition() error {
	for i := range t.Nodes {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			continue
		}
		dims := []struct {
			name string
			of   func(c *Chunk) ir.Range
		}{
			{"commands", func(c *Chunk) ir.Range { return c.Commands }},
			{"sources", func(c *Chunk) ir.Range { return c.Sources }},
			{"destinations", func(c *Chunk) ir.Range { return c.Destinations }},
		}
		for _, dim := range dims {
			want := dim.of(&n.Chunk)
			cursor := want.Start
			for _, c := range n.Children {
				got := dim.of(&t.Nodes[c].Chunk)
				if got.Start != cursor {
					return fmt.Errorf("node %d: child %d %s starts at %d, want %d", n.ID, c, dim.name, got.Start, cursor)
				}
				if got.End < got.Start {
					return fmt.Errorf("node %d: child %d has inverted %s range %s", n.ID, c, dim.name, got)
				}
				cursor = got.End
			}
			if cursor != want.End {
				return fmt.Errorf("node %d: children %s end at %d, want %d", n.ID, dim.name, cursor, want.End)
			}
		}
	}
	return nil
}
