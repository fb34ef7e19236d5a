package chunk

import (
	"github.com/roach88/vstack/internal/ir"
)

// Span is an explicit chunk as the client declared it. Depth is the
// number of explicit chunks enclosing it.
type Span struct {
	Start    int  `json:"start" cbor:"1,keyasint"`
	End      int  `json:"end" cbor:"2,keyasint"`
	Depth    int  `json:"depth" cbor:"3,keyasint"`
	Parallel bool `json:"parallel,omitempty" cbor:"4,keyasint,omitempty"`
}

// Spans returns the explicit chunks of the tree in pre-order.
func (t *Tree) Spans() []Span {
	var out []Span
	var visit func(id NodeID, depth int)
	visit = func(id NodeID, depth int) {
		n := &t.Nodes[id]
		next := depth
		if n.Kind == KindExplicit {
			out = append(out, Span{
				Start:    n.Chunk.Commands.Start,
				End:      n.Chunk.Commands.End,
				Depth:    depth,
				Parallel: n.Chunk.Declared,
			})
			next++
		}
		for _, c := range n.Children {
			visit(c, next)
		}
	}
	visit(t.Root, 0)
	return out
}

// BuildFromSpans rebuilds a tree from a program and the spans returned by
// Spans. Hoisting is not part of the spans and has to be applied again.
func BuildFromSpans(p *ir.Program, spans []Span, opts Options) (*Tree, error) {
	b := NewBuilder(opts.MaxChildren)
	var open []Span
	for _, s := range spans {
		for len(open) > s.Depth {
			if err := b.End(open[len(open)-1].End); err != nil {
				return nil, err
			}
			open = open[:len(open)-1]
		}
		if _, err := b.Start(s.Start, s.Parallel); err != nil {
			return nil, err
		}
		open = append(open, s)
	}
	for len(open) > 0 {
		if err := b.End(open[len(open)-1].End); err != nil {
			return nil, err
		}
		open = open[:len(open)-1]
	}
	return b.Build(p, opts)
}
