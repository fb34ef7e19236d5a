package chunk

import (
	"fmt"

	"github.com/roach88/vstack/internal/ir"
)

// NodeID addresses a node in a Tree arena.
type NodeID int32

// NoNode is the parent of the root.
const NoNode NodeID = -1

// Kind records why a node exists.
type Kind uint8

const (
	// KindRoot spans the whole tape.
	KindRoot Kind = iota
	// KindExplicit was opened by a client StartChunk call.
	KindExplicit
	// KindGap was inserted by gap filling.
	KindGap
	// KindGate wraps a bracket extracted by hoisting.
	KindGate
	// KindSlice is a piece of a gate's interior.
	KindSlice
	// KindPrefix is the part of a hoisted leaf before its gate.
	KindPrefix
	// KindPostfix is the part of a hoisted leaf after its gate.
	KindPostfix
)

var kindNames = [...]string{"root", "explicit", "gap", "gate", "slice", "prefix", "postfix"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// GateKind distinguishes the bracket a gate wraps.
type GateKind uint8

const (
	// GateNone marks a node that is not a gate.
	GateNone GateKind = iota
	// GateConditional wraps an If/EndIf bracket.
	GateConditional
	// GateDepth wraps an IncrementDepth/DecrementDepth bracket.
	GateDepth
)

func (g GateKind) String() string {
	switch g {
	case GateConditional:
		return "conditional"
	case GateDepth:
		return "depth"
	}
	return "none"
}

// GateKindFor returns the gate kind matching an opening opcode.
func GateKindFor(op ir.Opcode) GateKind {
	switch op {
	case ir.OpIf:
		return GateConditional
	case ir.OpIncrementDepth:
		return GateDepth
	}
	return GateNone
}

// AliasMode says how a node reaches its virtual stack.
type AliasMode uint8

const (
	// AliasOwned means the node owns its buffer (the root).
	AliasOwned AliasMode = iota
	// AliasShared means the node uses its parent's buffer directly.
	AliasShared
	// AliasPrivate means the node runs on its own buffer: it copies in
	// CopyIn from the parent before running and adds the increments of
	// AccumulateOut back into the parent afterwards.
	AliasPrivate
)

func (m AliasMode) String() string {
	switch m {
	case AliasOwned:
		return "owned"
	case AliasShared:
		return "shared"
	case AliasPrivate:
		return "private"
	}
	return fmt.Sprintf("AliasMode(%d)", uint8(m))
}

// Alias is the buffer assignment of a node. It is computed once by
// Finalize and never mutated afterwards.
type Alias struct {
	Mode          AliasMode
	Buffer        int
	CopyIn        []int32
	AccumulateOut []int32
}

// SlotLiveness is the liveness summary of one slot inside a leaf. Positions
// are absolute tape positions; -1 means "never".
type SlotLiveness struct {
	Slot       int32
	FirstRead  int
	FirstWrite int
	LastUse    int
}

// Jump is the precomputed skip information for an If inside a leaf.
type Jump struct {
	// Match is the leaf-relative index of the matching EndIf, or -1 when
	// the bracket closes after the leaf ends.
	Match int
	// Sources and Destinations count the ordered instructions skipped when
	// the condition is false (up to Match, or to the end of the leaf).
	Sources      int
	Destinations int
	// Open is the skip depth left pending at the end of the leaf when the
	// bracket does not close inside it.
	Open int
}

// Chunk is the payload of a tree node.
type Chunk struct {
	Commands     ir.Range
	Sources      ir.Range
	Destinations ir.Range

	// Declared records that the client asked for parallel execution.
	Declared bool
	// Parallel is the outcome of the eligibility predicate.
	Parallel bool
	// UnderGate marks nodes executed as part of an enclosing gate.
	UnderGate bool

	Alias Alias

	// Leaf-only fields.
	Liveness []SlotLiveness
	Remap    map[int32]int32
	Code     []ir.Instruction
	Jumps    []Jump
}

// Node is one arena entry.
type Node struct {
	ID       NodeID
	Parent   NodeID
	Children []NodeID
	Kind     Kind
	Gate     GateKind
	Chunk    Chunk
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

// IsGate reports whether the node wraps a hoisted bracket.
func (n *Node) IsGate() bool { return n.Kind == KindGate }

// Tree is a finalized chunk tree over one program.
//
// Thread-safety: a finalized tree is read-only and may be walked
// concurrently. Buffers are mutated by the engine during a run; the
// aliasing assignment guarantees that concurrently running nodes never
// share a buffer.
type Tree struct {
	Program *ir.Program
	Nodes   []Node
	Root    NodeID

	// Buffers holds the virtual stacks. Buffer 0 belongs to the root.
	// Buffers persist across runs and are not reallocated.
	Buffers [][]float64

	options Options
}

// Node returns the node with the given id.
func (t *Tree) Node(id NodeID) *Node { return &t.Nodes[id] }

// Len returns the number of nodes in the arena.
func (t *Tree) Len() int { return len(t.Nodes) }

// NewNode appends a node to the arena and returns its id.
func (t *Tree) NewNode(kind Kind, parent NodeID, cmds ir.Range) NodeID {
	id := NodeID(len(t.Nodes))
	t.Nodes = append(t.Nodes, Node{
		ID:     id,
		Parent: parent,
		Kind:   kind,
		Chunk: Chunk{
			Commands:     cmds,
			Sources:      t.Program.SourceRange(cmds),
			Destinations: t.Program.DestinationRange(cmds),
		},
	})
	return id
}

// Leaves returns leaf ids in tape order.
func (t *Tree) Leaves() []NodeID {
	var out []NodeID
	t.Walk(func(n *Node) bool {
		if n.IsLeaf() {
			out = append(out, n.ID)
		}
		return true
	})
	return out
}

// Walk visits nodes in pre-order. Returning false from fn skips the
// node's subtree.
func (t *Tree) Walk(fn func(n *Node) bool) {
	var visit func(id NodeID)
	visit = func(id NodeID) {
		n := &t.Nodes[id]
		if !fn(n) {
			return
		}
		for _, c := range n.Children {
			visit(c)
		}
	}
	visit(t.Root)
}

// Depth returns the number of ancestors of id.
func (t *Tree) Depth(id NodeID) int {
	d := 0
	for p := t.Nodes[id].Parent; p != NoNode; p = t.Nodes[p].Parent {
		d++
	}
	return d
}
