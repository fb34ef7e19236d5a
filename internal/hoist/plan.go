package hoist

import (
	"fmt"
	"sort"

	"github.com/roach88/vstack/internal/chunk"
	"github.com/roach88/vstack/internal/ir"
)

// Entry selects the bracket to extract from one leaf. End is exclusive
// and includes the bracket's terminator.
type Entry struct {
	Leaf  chunk.NodeID
	Kind  chunk.GateKind
	Start int
	End   int
}

// Len returns the bracket length including opener and terminator.
func (e Entry) Len() int { return e.End - e.Start }

func (e Entry) String() string {
	return fmt.Sprintf("leaf %d: %s [%d,%d)", e.Leaf, e.Kind, e.Start, e.End)
}

// Plan picks, for every leaf longer than max, the matched bracket whose
// length lies in [max, leafLen) and is closest to half the leaf. Ties go
// to the earliest bracket. Leaves executed as part of a gate are skipped.
func Plan(t *chunk.Tree, max int) []Entry {
	if max <= 0 {
		return nil
	}
	var plan []Entry
	for _, id := range t.Leaves() {
		n := t.Node(id)
		cmds := n.Chunk.Commands
		if cmds.Len() <= max || n.Chunk.UnderGate {
			continue
		}
		if e, ok := pick(t.Program.Tape, cmds, max); ok {
			e.Leaf = id
			plan = append(plan, e)
		}
	}
	sort.SliceStable(plan, func(i, j int) bool {
		if plan[i].Leaf != plan[j].Leaf {
			return plan[i].Leaf < plan[j].Leaf
		}
		return plan[i].Start < plan[j].Start
	})
	return plan
}

func pick(tape []ir.Instruction, cmds ir.Range, max int) (Entry, bool) {
	leafLen := cmds.Len()
	half := leafLen / 2

	var best Entry
	bestDist := -1
	var open []int
	for pos := cmds.Start; pos < cmds.End; pos++ {
		in := tape[pos]
		switch {
		case in.Op.Opens():
			open = append(open, pos)
		case in.Op.Closes():
			if len(open) == 0 {
				continue
			}
			start := open[len(open)-1]
			open = open[:len(open)-1]

			length := pos + 1 - start
			if length < max || length >= leafLen {
				continue
			}
			dist := length - half
			if dist < 0 {
				dist = -dist
			}
			if bestDist < 0 || dist < bestDist || (dist == bestDist && start < best.Start) {
				best = Entry{Kind: chunk.GateKindFor(tape[start].Op), Start: start, End: pos + 1}
				bestDist = dist
			}
		}
	}
	return best, bestDist >= 0
}
