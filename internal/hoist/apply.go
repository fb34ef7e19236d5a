package hoist

import (
	"fmt"

	"github.com/roach88/vstack/internal/chunk"
	"github.com/roach88/vstack/internal/ir"
)

// MaxPasses bounds the plan/apply iterations of Run.
const MaxPasses = 64

// Apply splits every planned leaf into prefix, gate and postfix and
// refinalizes the tree.
func Apply(t *chunk.Tree, plan []Entry, max int) error {
	for _, e := range plan {
		if err := split(t, e, max); err != nil {
			return err
		}
	}
	return t.Finalize()
}

// Run plans and applies until no leaf outside a gate exceeds max, or no
// further split is possible. It returns the number of leaves split.
func Run(t *chunk.Tree, max int) (int, error) {
	total := 0
	for pass := 0; pass < MaxPasses; pass++ {
		plan := Plan(t, max)
		if len(plan) == 0 {
			return total, nil
		}
		if err := Apply(t, plan, max); err != nil {
			return total, err
		}
		total += len(plan)
	}
	return total, nil
}

func validate(t *chunk.Tree, e Entry) error {
	if e.Leaf < 0 || int(e.Leaf) >= t.Len() {
		return fmt.Errorf("hoist: unknown node %d", e.Leaf)
	}
	n := t.Node(e.Leaf)
	if !n.IsLeaf() {
		return fmt.Errorf("hoist: node %d is not a leaf", e.Leaf)
	}
	cmds := n.Chunk.Commands
	if e.Start < cmds.Start || e.End > cmds.End || e.End-e.Start < 2 {
		return fmt.Errorf("hoist: %s outside leaf range %s", e, cmds)
	}
	tape := t.Program.Tape
	opener, closer := tape[e.Start].Op, tape[e.End-1].Op
	if !opener.Opens() || opener.Closer() != closer {
		return fmt.Errorf("hoist: %s is not a bracket (%s ... %s)", e, opener, closer)
	}
	if closeOf(tape, e.Start, e.End) != e.End-1 {
		return fmt.Errorf("hoist: %s does not close at its own terminator", e)
	}
	return nil
}

// closeOf returns the position of the terminator matching the opener at
// start, searching below limit, or -1.
func closeOf(tape []ir.Instruction, start, limit int) int {
	depth := 0
	for pos := start; pos < limit; pos++ {
		switch {
		case tape[pos].Op.Opens():
			depth++
		case tape[pos].Op.Closes():
			depth--
			if depth == 0 {
				return pos
			}
		}
	}
	return -1
}

func hasOrdered(tape []ir.Instruction, r ir.Range) bool {
	for pos := r.Start; pos < r.End; pos++ {
		if tape[pos].Op.IsOrdered() {
			return true
		}
	}
	return false
}

func split(t *chunk.Tree, e Entry, max int) error {
	if err := validate(t, e); err != nil {
		return err
	}
	leaf := t.Node(e.Leaf)
	cmds := leaf.Chunk.Commands
	tape := t.Program.Tape

	gateEnd := e.End
	tail := ir.Range{Start: e.End, End: cmds.End}
	foldTail := !tail.Empty() && tail.Len() <= max && !hasOrdered(tape, tail)
	if foldTail {
		gateEnd = cmds.End
	}

	var children []chunk.NodeID
	if e.Start > cmds.Start {
		children = append(children, t.NewNode(chunk.KindPrefix, e.Leaf, ir.Range{Start: cmds.Start, End: e.Start}))
	}
	gate := newGate(t, e.Leaf, e.Start, e.End-1, gateEnd, max)
	children = append(children, gate)
	if !foldTail && !tail.Empty() {
		children = append(children, t.NewNode(chunk.KindPostfix, e.Leaf, tail))
	}

	// NewNode may grow the arena, so the leaf is looked up again.
	t.Node(e.Leaf).Children = children
	return nil
}

// newGate creates a gate over [start, end) whose bracket opens at start
// and closes at closer. Everything from closer to end rides in the last
// slice.
func newGate(t *chunk.Tree, parent chunk.NodeID, start, closer, end, max int) chunk.NodeID {
	tape := t.Program.Tape
	gate := t.NewNode(chunk.KindGate, parent, ir.Range{Start: start, End: end})
	t.Node(gate).Gate = chunk.GateKindFor(tape[start].Op)

	var children []chunk.NodeID
	sliceStart := start
	flush := func(upTo int) {
		if upTo > sliceStart {
			children = append(children, t.NewNode(chunk.KindSlice, gate, ir.Range{Start: sliceStart, End: upTo}))
		}
		sliceStart = upTo
	}

	pos := start + 1
	for pos < closer {
		stmtEnd := pos + 1
		inner := -1
		if tape[pos].Op.Opens() {
			inner = closeOf(tape, pos, closer)
			stmtEnd = inner + 1
		}

		if stmtEnd-pos > max {
			flush(pos)
			if stmtEnd == closer {
				// The outer terminator and tail join the nested gate so
				// that no slice starts at a terminator.
				children = append(children, newGate(t, gate, pos, inner, end, max))
				t.Node(gate).Children = children
				return gate
			}
			children = append(children, newGate(t, gate, pos, inner, stmtEnd, max))
			sliceStart = stmtEnd
			pos = stmtEnd
			continue
		}

		if stmtEnd-sliceStart > max && pos > sliceStart {
			flush(pos)
		}
		pos = stmtEnd
	}
	flush(end)

	t.Node(gate).Children = children
	return gate
}
