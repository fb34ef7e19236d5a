// Package backend executes instruction ranges against a virtual stack.
//
// The Interpreter is the reference: it is always available and used for
// short chunks. Compiled turns a range into a tree of Go closures once and
// reuses it. Both produce bit-identical results and are interchangeable.
package backend

import (
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/vstack/internal/chunk"
	"github.com/roach88/vstack/internal/ir"
)

// ErrExecution wraps faults raised while executing a segment, such as a
// cursor running past its ordered buffer.
var ErrExecution = errors.New("segment execution failed")

// Frame is the mutable state a segment executes against.
type Frame struct {
	Stack   []float64
	Sources []float64
	Dests   []float64

	// Src and Dst are global ordinals into Sources and Dests.
	Src int
	Dst int

	// Cond is the flag set by the last comparison.
	Cond bool
	// CondSet reports whether a comparison ran against this frame.
	// Callers that fork frames clear it before handing one out.
	CondSet bool

	// Skip is set by Execute when a false If in the segment closes after
	// the segment ends. It holds the number of If brackets still open.
	// It must be zero on entry.
	Skip int
}

func (f *Frame) setCond(v bool) {
	f.Cond = v
	f.CondSet = true
}

// Segment is a contiguous run of code taken from one leaf.
type Segment struct {
	// Range is the tape range the code was taken from.
	Range ir.Range
	// Code is the leaf's remapped code for Range.
	Code []ir.Instruction
	// Jumps is the skip table for Code, or nil.
	Jumps []chunk.Jump
}

// LeafSegment returns the whole code of a leaf.
func LeafSegment(n *chunk.Node) Segment {
	return Segment{Range: n.Chunk.Commands, Code: n.Chunk.Code, Jumps: n.Chunk.Jumps}
}

// From returns the suffix of the segment starting at tape position pos.
// Its skip table is rebuilt because brackets opened before pos no longer
// belong to it.
func (s Segment) From(pos int) Segment {
	off := pos - s.Range.Start
	code := s.Code[off:]
	return Segment{
		Range: ir.Range{Start: pos, End: s.Range.End},
		Code:  code,
		Jumps: chunk.BuildJumps(code),
	}
}

// Backend executes segments.
type Backend interface {
	// Name returns the backend name for display.
	Name() string

	// Execute runs seg against f in tape order.
	Execute(seg Segment, f *Frame) error
}

// guard converts a runtime fault inside a segment into an error.
func guard(seg Segment, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: range %s: %v", ErrExecution, seg.Range, r)
	}
}

var registry = map[string]func() Backend{
	"interpreter": func() Backend { return NewInterpreter() },
	"compiled":    func() Backend { return NewCompiled() },
}

// Select returns a fresh backend by name.
func Select(name string) (Backend, error) {
	mk, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown backend %q (available: %v)", name, Names())
	}
	return mk(), nil
}

// Names lists the registered backends.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
