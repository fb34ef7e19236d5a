package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/vstack/internal/backend"
	"github.com/roach88/vstack/internal/chunk"
	"github.com/roach88/vstack/internal/ir"
)

// walker executes a subtree with one frame. Parallel groups fork one
// walker per child.
type walker struct {
	e     *Engine
	ctx   context.Context
	f     backend.Frame
	stats Stats
}

func (w *walker) visit(id chunk.NodeID) error {
	tree := w.e.tree
	n := tree.Node(id)
	if n.IsLeaf() {
		return w.leaf(n)
	}
	if n.IsGate() {
		w.stats.Gates++
	}

	children := n.Children
	for i := 0; i < len(children); {
		if tree.Node(children[i]).Chunk.Alias.Mode != chunk.AliasPrivate {
			if err := w.visit(children[i]); err != nil {
				return err
			}
			i++
			continue
		}
		j := i + 1
		for j < len(children) && tree.Node(children[j]).Chunk.Alias.Mode == chunk.AliasPrivate {
			j++
		}
		if err := w.group(n, children[i:j]); err != nil {
			return err
		}
		i = j
	}
	return nil
}

func (w *walker) leaf(n *chunk.Node) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	c := &n.Chunk
	seg := backend.LeafSegment(n)
	w.f.Stack = w.e.tree.Buffers[c.Alias.Buffer]

	switch {
	case w.f.Skip > 0:
		resume, closed := w.scan(seg.Code, c.Commands.Start)
		if !closed || resume == c.Commands.End {
			w.stats.Skipped++
			return nil
		}
		seg = seg.From(resume)
		w.stats.Partial++
	case w.f.Src != c.Sources.Start || w.f.Dst != c.Destinations.Start:
		return NewCursorDriftError(c.Commands.Start, w.f.Src, c.Sources.Start, w.f.Dst, c.Destinations.Start)
	default:
		w.stats.Executed++
	}

	b := w.e.pick(seg)
	if err := b.Execute(seg, &w.f); err != nil {
		return newBackendError(seg.Range.Start, b.Name(), err)
	}
	if b == backend.Backend(w.e.interp) {
		w.stats.Interpreted++
	} else {
		w.stats.Compiled++
	}
	return nil
}

// scan consumes a pending skip over code that starts at tape position
// start. It returns the position after the terminator that closes the
// skip, if there is one in code.
func (w *walker) scan(code []ir.Instruction, start int) (int, bool) {
	for i, in := range code {
		switch in.Op {
		case ir.OpIf:
			w.f.Skip++
		case ir.OpEndIf:
			w.f.Skip--
			if w.f.Skip == 0 {
				return start + i + 1, true
			}
		case ir.OpNextSource:
			w.f.Src++
		case ir.OpNextDestination:
			w.f.Dst++
		}
	}
	return 0, false
}

func (e *Engine) pick(seg backend.Segment) backend.Backend {
	if seg.Range.Len() >= e.minCompile {
		return e.backend
	}
	return e.interp
}

func countLeaves(t *chunk.Tree, id chunk.NodeID) int {
	n := t.Node(id)
	if n.IsLeaf() {
		return 1
	}
	total := 0
	for _, c := range n.Children {
		total += countLeaves(t, c)
	}
	return total
}

// group runs consecutive private siblings. Each child copies in from the
// parent stack, runs on its own stack and frame, and after all children
// finish their increments are added back into the parent in tape order.
func (w *walker) group(parent *chunk.Node, ids []chunk.NodeID) error {
	tree := w.e.tree
	first, last := tree.Node(ids[0]), tree.Node(ids[len(ids)-1])

	if w.f.Skip > 0 {
		// Private children are bracket-balanced, so a pending skip
		// cannot close inside them.
		w.f.Src += last.Chunk.Sources.End - first.Chunk.Sources.Start
		w.f.Dst += last.Chunk.Destinations.End - first.Chunk.Destinations.Start
		for _, id := range ids {
			w.stats.Skipped += countLeaves(tree, id)
		}
		return nil
	}
	if w.f.Src != first.Chunk.Sources.Start || w.f.Dst != first.Chunk.Destinations.Start {
		return NewCursorDriftError(first.Chunk.Commands.Start, w.f.Src, first.Chunk.Sources.Start, w.f.Dst, first.Chunk.Destinations.Start)
	}

	parentStack := tree.Buffers[parent.Chunk.Alias.Buffer]
	walkers := make([]*walker, len(ids))
	for i, id := range ids {
		c := tree.Node(id)
		alias := c.Chunk.Alias
		own := tree.Buffers[alias.Buffer]
		for _, s := range alias.CopyIn {
			own[s] = parentStack[s]
		}
		snap := w.e.snapshots[id]
		for k, s := range alias.AccumulateOut {
			snap[k] = parentStack[s]
		}
		walkers[i] = &walker{
			e:   w.e,
			ctx: w.ctx,
			f: backend.Frame{
				Sources: w.f.Sources,
				Dests:   w.f.Dests,
				Src:     c.Chunk.Sources.Start,
				Dst:     c.Chunk.Destinations.Start,
				Cond:    w.f.Cond,
			},
		}
	}

	if w.e.parallel && len(ids) > 1 {
		g, ctx := errgroup.WithContext(w.ctx)
		for i, id := range ids {
			cw := walkers[i]
			cw.ctx = ctx
			g.Go(func() error { return cw.visit(id) })
		}
		if err := g.Wait(); err != nil {
			return err
		}
		w.stats.ParallelGroups++
	} else {
		for i, id := range ids {
			if err := walkers[i].visit(id); err != nil {
				return err
			}
		}
	}

	for i, id := range ids {
		alias := tree.Node(id).Chunk.Alias
		own := tree.Buffers[alias.Buffer]
		snap := w.e.snapshots[id]
		for k, s := range alias.AccumulateOut {
			parentStack[s] += own[s] - snap[k]
		}
		w.stats.add(walkers[i].stats)
	}

	// The flag leaving the group is the one the last comparing child
	// set, as if the children had run in tape order on one frame.
	for _, cw := range walkers {
		if cw.f.CondSet {
			w.f.Cond, w.f.CondSet = cw.f.Cond, true
		}
	}
	tail := walkers[len(walkers)-1].f
	w.f.Src, w.f.Dst = tail.Src, tail.Dst
	return nil
}
