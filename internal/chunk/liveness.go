package chunk

import (
	"sort"

	"github.com/roach88/vstack/internal/ir"
)

// globalRefs returns, per slot, the first and last tape position that
// references it (-1 when never referenced).
func (t *Tree) globalRefs() (first, last []int) {
	size := t.Program.StackSize
	first = make([]int, size)
	last = make([]int, size)
	for i := range first {
		first[i] = -1
		last[i] = -1
	}
	touch := func(pos int) func(s int32) {
		return func(s int32) {
			if first[s] < 0 {
				first[s] = pos
			}
			last[s] = pos
		}
	}
	for pos, in := range t.Program.Tape {
		fn := touch(pos)
		in.Reads(fn)
		in.Writes(fn)
	}
	return first, last
}

// finalizeLeaf computes liveness, the local register assignment, the
// remapped code copy and the skip table of one leaf.
func (t *Tree) finalizeLeaf(id NodeID, first, last []int) {
	n := &t.Nodes[id]
	cmds := n.Chunk.Commands
	tape := t.Program.Tape[cmds.Start:cmds.End]

	index := make(map[int32]int)
	var live []SlotLiveness
	entry := func(s int32) int {
		if i, ok := index[s]; ok {
			return i
		}
		index[s] = len(live)
		live = append(live, SlotLiveness{Slot: s, FirstRead: -1, FirstWrite: -1, LastUse: -1})
		return len(live) - 1
	}
	for i, in := range tape {
		pos := cmds.Start + i
		in.Reads(func(s int32) {
			l := &live[entry(s)]
			if l.FirstRead < 0 {
				l.FirstRead = pos
			}
			l.LastUse = pos
		})
		in.Writes(func(s int32) {
			l := &live[entry(s)]
			if l.FirstWrite < 0 {
				l.FirstWrite = pos
			}
			l.LastUse = pos
		})
	}
	sort.Slice(live, func(i, j int) bool { return live[i].Slot < live[j].Slot })

	var remap map[int32]int32
	if t.options.LocalReuse {
		remap = t.linearScan(cmds, tape, live, first, last)
	}

	code := make([]ir.Instruction, len(tape))
	for i, in := range tape {
		if remap == nil {
			code[i] = in
			continue
		}
		code[i] = in.MapSlots(func(s int32) int32 {
			if p, ok := remap[s]; ok {
				return p
			}
			return s
		})
	}

	n.Chunk.Liveness = live
	n.Chunk.Remap = remap
	n.Chunk.Code = code
	n.Chunk.Jumps = BuildJumps(code)
}

type interval struct {
	slot  int32
	start int
	end   int
	phys  int32
}

// linearScan renumbers leaf-local slots so that slots with disjoint live
// ranges share storage. A slot is leaf-local when every reference to it
// in the whole tape lies in this leaf, it is not an original-array slot,
// and its first access is a write that executes whenever any later access
// in its live range executes. Physical slots are drawn from the local
// slots themselves, so renumbering never collides with shared slots.
func (t *Tree) linearScan(cmds ir.Range, tape []ir.Instruction, live []SlotLiveness, first, last []int) map[int32]int32 {
	nextDrop := guardDrops(tape)

	var cands []interval
	for _, l := range live {
		s := l.Slot
		if int(s) < t.Program.OriginalCount {
			continue
		}
		if first[s] < cmds.Start || last[s] >= cmds.End {
			continue
		}
		if l.FirstWrite < 0 || (l.FirstRead >= 0 && l.FirstRead <= l.FirstWrite) {
			continue
		}
		if nextDrop[l.FirstWrite-cmds.Start] <= l.LastUse-cmds.Start {
			continue
		}
		cands = append(cands, interval{slot: s, start: l.FirstWrite, end: l.LastUse})
	}
	if len(cands) < 2 {
		return nil
	}

	pool := make([]int32, len(cands))
	for i, c := range cands {
		pool[i] = c.slot
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i] < pool[j] })
	sort.Slice(cands, func(i, j int) bool { return cands[i].start < cands[j].start })

	var active []interval
	var free []int32
	fresh := 0
	remap := make(map[int32]int32)
	for _, c := range cands {
		kept := active[:0]
		for _, a := range active {
			if a.end < c.start {
				free = append(free, a.phys)
			} else {
				kept = append(kept, a)
			}
		}
		active = kept
		sort.Slice(free, func(i, j int) bool { return free[i] < free[j] })

		if len(free) > 0 {
			c.phys = free[0]
			free = free[1:]
		} else {
			c.phys = pool[fresh]
			fresh++
		}
		if c.phys != c.slot {
			remap[c.slot] = c.phys
		}
		active = append(active, c)
	}
	if len(remap) == 0 {
		return nil
	}
	return remap
}

// guardDrops returns, for every leaf-relative position i, the first
// position j > i whose If nesting level is lower than that of i (or
// len(code) when there is none). An instruction at i is guaranteed to
// have executed whenever an instruction in (i, nextDrop[i]) executes.
// Depth brackets do not guard execution and are ignored.
func guardDrops(code []ir.Instruction) []int {
	levels := make([]int, len(code))
	cur := 0
	for i, in := range code {
		switch in.Op {
		case ir.OpIf:
			levels[i] = cur
			cur++
		case ir.OpEndIf:
			cur--
			levels[i] = cur
		default:
			levels[i] = cur
		}
	}

	next := make([]int, len(code))
	var stack []int
	for i := len(code) - 1; i >= 0; i-- {
		for len(stack) > 0 && levels[stack[len(stack)-1]] >= levels[i] {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			next[i] = len(code)
		} else {
			next[i] = stack[len(stack)-1]
		}
		stack = append(stack, i)
	}
	return next
}

// BuildJumps computes the skip table for a code range. Entries are only
// meaningful at OpIf positions. EndIf instructions without a matching If
// in the range are ignored.
func BuildJumps(code []ir.Instruction) []Jump {
	jumps := make([]Jump, len(code))
	src := make([]int, len(code)+1)
	dst := make([]int, len(code)+1)
	for i, in := range code {
		src[i+1] = src[i]
		dst[i+1] = dst[i]
		switch in.Op {
		case ir.OpNextSource:
			src[i+1]++
		case ir.OpNextDestination:
			dst[i+1]++
		}
	}

	var open []int
	for i, in := range code {
		switch in.Op {
		case ir.OpIf:
			open = append(open, i)
		case ir.OpEndIf:
			if len(open) == 0 {
				continue
			}
			j := open[len(open)-1]
			open = open[:len(open)-1]
			jumps[j] = Jump{Match: i, Sources: src[i] - src[j+1], Destinations: dst[i] - dst[j+1]}
		}
	}
	end := len(code)
	for k, j := range open {
		jumps[j] = Jump{
			Match:        -1,
			Sources:      src[end] - src[j+1],
			Destinations: dst[end] - dst[j+1],
			Open:         len(open) - k,
		}
	}
	return jumps
}
