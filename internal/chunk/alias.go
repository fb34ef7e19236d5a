package chunk

import (
	"sort"

	"github.com/roach88/vstack/internal/ir"
)

// footprint summarizes how a node touches slots that are live outside
// its own range.
type footprint struct {
	reads map[int32]bool // read by anything other than an accumulation
	wx    map[int32]bool // written by anything other than an accumulation
	acc   map[int32]bool // referenced only as IncrementBy/DecrementBy target
	all   map[int32]bool // every external slot written
}

func (t *Tree) footprintOf(cmds ir.Range, first, last []int) footprint {
	fp := footprint{
		reads: make(map[int32]bool),
		wx:    make(map[int32]bool),
		acc:   make(map[int32]bool),
		all:   make(map[int32]bool),
	}
	external := func(s int32) bool {
		return first[s] < cmds.Start || last[s] >= cmds.End
	}
	accTouched := make(map[int32]bool)
	for _, in := range t.Program.Tape[cmds.Start:cmds.End] {
		accumulating := in.Op == ir.OpIncrementBy || in.Op == ir.OpDecrementBy
		if accumulating {
			if external(in.Target) {
				accTouched[in.Target] = true
				fp.all[in.Target] = true
			}
			if external(in.Source) {
				fp.reads[in.Source] = true
			}
			continue
		}
		in.Reads(func(s int32) {
			if external(s) {
				fp.reads[s] = true
			}
		})
		in.Writes(func(s int32) {
			if external(s) {
				fp.wx[s] = true
				fp.all[s] = true
			}
		})
	}
	for s := range accTouched {
		if !fp.reads[s] && !fp.wx[s] {
			fp.acc[s] = true
		} else {
			fp.wx[s] = true
		}
	}
	return fp
}

func intersects(a map[int32]bool, bs ...map[int32]bool) bool {
	for s := range a {
		for _, b := range bs {
			if b[s] {
				return true
			}
		}
	}
	return false
}

// conflicts reports whether two sibling footprints could observe each
// other's effects if run concurrently. Accumulations into the same slot
// commute and do not conflict with each other.
func (a footprint) conflicts(b footprint) bool {
	return intersects(a.wx, b.reads, b.wx, b.acc) ||
		intersects(b.wx, a.reads, a.acc) ||
		intersects(a.acc, b.reads) ||
		intersects(b.acc, a.reads)
}

func sortedSlots(sets ...map[int32]bool) []int32 {
	seen := make(map[int32]bool)
	var out []int32
	for _, set := range sets {
		for s := range set {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// balanced reports whether every bracket opened in cmds is closed in cmds
// and no bracket closes one opened before it.
func (t *Tree) balanced(cmds ir.Range) bool {
	var open []ir.Opcode
	for _, in := range t.Program.Tape[cmds.Start:cmds.End] {
		switch {
		case in.Op.Opens():
			open = append(open, in.Op)
		case in.Op.Closes():
			if len(open) == 0 || open[len(open)-1].Closer() != in.Op {
				return false
			}
			open = open[:len(open)-1]
		}
	}
	return len(open) == 0
}

// readsConditionFirst reports whether an If in cmds runs before any
// comparison in cmds has set the condition flag.
func (t *Tree) readsConditionFirst(cmds ir.Range) bool {
	for _, in := range t.Program.Tape[cmds.Start:cmds.End] {
		if in.Op.IsComparison() {
			return false
		}
		if in.Op == ir.OpIf {
			return true
		}
	}
	return false
}

// parallelChildren evaluates the parallel-eligibility predicate for the
// children of id. Siblings are accepted greedily in tape order; a
// candidate that conflicts with an already accepted sibling runs
// sequentially instead.
func (t *Tree) parallelChildren(id NodeID, first, last []int) ([]bool, []footprint) {
	n := &t.Nodes[id]
	eligible := make([]bool, len(n.Children))
	fps := make([]footprint, len(n.Children))
	if !t.options.Parallel || !t.Program.Ordered || n.Chunk.UnderGate || n.IsGate() {
		return eligible, fps
	}

	var accepted []footprint
	for i, cid := range n.Children {
		c := &t.Nodes[cid]
		if !c.Chunk.Declared || c.Kind != KindExplicit || c.Chunk.Commands.Empty() {
			continue
		}
		if !t.balanced(c.Chunk.Commands) || t.readsConditionFirst(c.Chunk.Commands) {
			continue
		}
		fp := t.footprintOf(c.Chunk.Commands, first, last)
		clash := false
		for _, other := range accepted {
			if fp.conflicts(other) {
				clash = true
				break
			}
		}
		if clash {
			continue
		}
		accepted = append(accepted, fp)
		eligible[i] = true
		fps[i] = fp
	}
	return eligible, fps
}

// assignAliases walks the tree top-down and assigns every node its buffer.
func (t *Tree) assignAliases(first, last []int) {
	size := t.Program.StackSize
	var root []float64
	if len(t.Buffers) > 0 && len(t.Buffers[0]) == size {
		root = t.Buffers[0]
	} else {
		root = make([]float64, size)
	}
	t.Buffers = [][]float64{root}

	r := &t.Nodes[t.Root]
	r.Chunk.Parallel = false
	r.Chunk.Alias = Alias{Mode: AliasOwned, Buffer: 0}

	var visit func(id NodeID)
	visit = func(id NodeID) {
		eligible, fps := t.parallelChildren(id, first, last)
		buffer := t.Nodes[id].Chunk.Alias.Buffer
		for i, cid := range t.Nodes[id].Children {
			c := &t.Nodes[cid]
			if eligible[i] {
				t.Buffers = append(t.Buffers, make([]float64, size))
				c.Chunk.Parallel = true
				c.Chunk.Alias = Alias{
					Mode:          AliasPrivate,
					Buffer:        len(t.Buffers) - 1,
					CopyIn:        sortedSlots(fps[i].reads, fps[i].all, fps[i].acc),
					AccumulateOut: sortedSlots(fps[i].all),
				}
			} else {
				c.Chunk.Parallel = false
				c.Chunk.Alias = Alias{Mode: AliasShared, Buffer: buffer}
			}
			visit(cid)
		}
	}
	visit(t.Root)
}
