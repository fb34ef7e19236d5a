package chunk

import (
	"errors"
	"fmt"

	"github.com/roach88/vstack/internal/ir"
)

// DefaultMaxChildren is the largest number of direct children a node may
// have. Child indices are stored in 16 bits by the AOT emitter and in the
// store.
const DefaultMaxChildren = 1<<16 - 1

var (
	// ErrUnmatchedChunk is returned when End has no matching Start, or when
	// Build is called with chunks still open.
	ErrUnmatchedChunk = errors.New("unmatched chunk boundary")

	// ErrTooManyChildren is returned when a node would exceed the
	// configured maximum number of children.
	ErrTooManyChildren = errors.New("too many sibling chunks")
)

// Options configures Finalize.
type Options struct {
	// Parallel enables the parallel-eligibility predicate. When false no
	// node is ever marked parallel.
	Parallel bool

	// LocalReuse enables linear-scan renumbering of leaf-local slots.
	LocalReuse bool

	// MaxChildren bounds the children of a single node.
	MaxChildren int
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		LocalReuse:  true,
		MaxChildren: DefaultMaxChildren,
	}
}

type pendingNode struct {
	kind     Kind
	parent   int
	children []int
	start    int
	end      int
	declared bool
}

// Builder collects chunk boundaries while a program is being recorded.
// It owns the node id counter; ids are assigned in Start order and are
// preserved by Build.
//
// Thread-safety: single-writer, like the recorder that drives it.
type Builder struct {
	nodes       []pendingNode
	open        []int
	maxChildren int
}

// NewBuilder creates a builder whose root starts at tape position 0.
func NewBuilder(maxChildren int) *Builder {
	if maxChildren <= 0 {
		maxChildren = DefaultMaxChildren
	}
	b := &Builder{maxChildren: maxChildren}
	b.nodes = append(b.nodes, pendingNode{kind: KindRoot, parent: -1, start: 0, end: -1})
	b.open = append(b.open, 0)
	return b
}

// Start opens a child chunk of the innermost open chunk at tape position
// pos and returns its id.
func (b *Builder) Start(pos int, parallel bool) (NodeID, error) {
	parent := b.open[len(b.open)-1]
	if len(b.nodes[parent].children) >= b.maxChildren {
		return NoNode, fmt.Errorf("%w: node %d already has %d children", ErrTooManyChildren, parent, b.maxChildren)
	}
	id := len(b.nodes)
	b.nodes = append(b.nodes, pendingNode{
		kind:     KindExplicit,
		parent:   parent,
		start:    pos,
		end:      -1,
		declared: parallel,
	})
	b.nodes[parent].children = append(b.nodes[parent].children, id)
	b.open = append(b.open, id)
	return NodeID(id), nil
}

// End closes the innermost open chunk at tape position pos.
func (b *Builder) End(pos int) error {
	if len(b.open) <= 1 {
		return fmt.Errorf("%w: end at position %d without start", ErrUnmatchedChunk, pos)
	}
	id := b.open[len(b.open)-1]
	b.nodes[id].end = pos
	b.open = b.open[:len(b.open)-1]
	return nil
}

// Depth returns the number of explicit chunks currently open.
func (b *Builder) Depth() int { return len(b.open) - 1 }

// Build closes the root at the end of the program's tape, materializes
// the arena and finalizes it.
func (b *Builder) Build(p *ir.Program, opts Options) (*Tree, error) {
	if len(b.open) != 1 {
		return nil, fmt.Errorf("%w: %d chunk(s) still open", ErrUnmatchedChunk, len(b.open)-1)
	}
	b.nodes[0].end = p.Len()

	t := &Tree{Program: p, Root: 0, options: opts}
	t.Nodes = make([]Node, 0, len(b.nodes))
	for i, pn := range b.nodes {
		id := t.NewNode(pn.kind, NodeID(pn.parent), ir.Range{Start: pn.start, End: pn.end})
		if int(id) != i {
			return nil, fmt.Errorf("node id mismatch: %d != %d", id, i)
		}
		n := t.Node(id)
		n.Chunk.Declared = pn.declared
		n.Children = make([]NodeID, len(pn.children))
		for j, c := range pn.children {
			n.Children[j] = NodeID(c)
		}
	}

	if err := t.Finalize(); err != nil {
		return nil, err
	}
	return t, nil
}
