package ir

import (
	"fmt"
	"sync"
)

// Range is a half-open interval [Start, End) over one of the three
// program dimensions: tape positions, ordered sources or ordered
// destinations.
type Range struct {
	Start int `json:"start" cbor:"1,keyasint"`
	End   int `json:"end" cbor:"2,keyasint"`
}

// Len returns the number of positions in the range.
func (r Range) Len() int { return r.End - r.Start }

// Empty reports whether the range contains no positions.
func (r Range) Empty() bool { return r.End <= r.Start }

// Contains reports whether pos lies inside the range.
func (r Range) Contains(pos int) bool { return pos >= r.Start && pos < r.End }

func (r Range) String() string { return fmt.Sprintf("[%d,%d)", r.Start, r.End) }

// SlotOrigin records where a scratch slot was last allocated. It is used
// only for diagnostics.
type SlotOrigin struct {
	Position int    `json:"position" cbor:"1,keyasint"`
	Depth    int    `json:"depth" cbor:"2,keyasint"`
	Comment  string `json:"comment,omitempty" cbor:"3,keyasint,omitempty"`
}

func (o SlotOrigin) String() string {
	if o.Comment == "" {
		return fmt.Sprintf("allocated at %d (depth %d)", o.Position, o.Depth)
	}
	return fmt.Sprintf("allocated at %d (depth %d) under %q", o.Position, o.Depth, o.Comment)
}

// Program is a finished recording: the tape plus the ordered index lists
// and the metadata needed to build and run a chunk tree.
//
// Thread-safety: a Program is read-only once handed out and may be shared
// between goroutines.
type Program struct {
	Tape []Instruction `json:"tape" cbor:"1,keyasint"`

	// Sources lists, in tape order, the original array index consumed by
	// each NextSource occurrence.
	Sources []int32 `json:"sources" cbor:"2,keyasint"`

	// Destinations lists, in tape order, the original array index fed by
	// each NextDestination occurrence.
	Destinations []int32 `json:"destinations" cbor:"3,keyasint"`

	// StackSize is the allocator high-water mark. Every slot operand is
	// below it.
	StackSize int `json:"stack_size" cbor:"4,keyasint"`

	// OriginalCount is the number of low slots that alias the shared array
	// directly. It is zero when Ordered is true.
	OriginalCount int `json:"original_count" cbor:"5,keyasint"`

	// Ordered reports whether reads and writes go through ordered buffers.
	Ordered bool `json:"ordered" cbor:"6,keyasint"`

	// Comments is the comment table referenced by OpComment.
	Comments []string `json:"comments,omitempty" cbor:"7,keyasint,omitempty"`

	// Provenance maps a slot to its most recent allocation site.
	Provenance map[int32]SlotOrigin `json:"provenance,omitempty" cbor:"8,keyasint,omitempty"`

	once      sync.Once
	srcBefore []int32
	dstBefore []int32
}

func (p *Program) index() {
	p.once.Do(func() {
		p.srcBefore = make([]int32, len(p.Tape)+1)
		p.dstBefore = make([]int32, len(p.Tape)+1)
		var src, dst int32
		for i, in := range p.Tape {
			p.srcBefore[i] = src
			p.dstBefore[i] = dst
			switch in.Op {
			case OpNextSource:
				src++
			case OpNextDestination:
				dst++
			}
		}
		p.srcBefore[len(p.Tape)] = src
		p.dstBefore[len(p.Tape)] = dst
	})
}

// Len returns the tape length.
func (p *Program) Len() int { return len(p.Tape) }

// SourcesBefore returns how many NextSource instructions precede pos.
func (p *Program) SourcesBefore(pos int) int {
	p.index()
	return int(p.srcBefore[pos])
}

// DestinationsBefore returns how many NextDestination instructions
// precede pos.
func (p *Program) DestinationsBefore(pos int) int {
	p.index()
	return int(p.dstBefore[pos])
}

// SourceRange maps a tape range onto the ordered source dimension.
func (p *Program) SourceRange(cmds Range) Range {
	return Range{Start: p.SourcesBefore(cmds.Start), End: p.SourcesBefore(cmds.End)}
}

// DestinationRange maps a tape range onto the ordered destination dimension.
func (p *Program) DestinationRange(cmds Range) Range {
	return Range{Start: p.DestinationsBefore(cmds.Start), End: p.DestinationsBefore(cmds.End)}
}

// Comment returns the comment text for an OpComment instruction.
func (p *Program) Comment(in Instruction) string {
	if in.Op != OpComment || in.Source < 0 || int(in.Source) >= len(p.Comments) {
		return ""
	}
	return p.Comments[in.Source]
}

// Validate checks the structural invariants of a program: closed opcodes,
// slot operands in range, well-nested brackets and ordered lists matching
// the tape. It is used when a program arrives from outside the recorder.
func (p *Program) Validate() error {
	if len(p.Tape) == 0 || p.Tape[0].Op != OpBlank {
		return fmt.Errorf("tape must start with %s", OpBlank)
	}

	var open []Opcode
	var src, dst int
	for pos, in := range p.Tape {
		if !in.Op.Valid() {
			return fmt.Errorf("position %d: invalid opcode %d", pos, uint8(in.Op))
		}
		shape := ShapeOf(in.Op)
		for _, operand := range []struct {
			kind  OperandKind
			value int32
		}{{shape.Target, in.Target}, {shape.Source, in.Source}} {
			if operand.kind.IsSlot() && (operand.value < 0 || int(operand.value) >= p.StackSize) {
				return fmt.Errorf("position %d: slot %d outside stack of %d", pos, operand.value, p.StackSize)
			}
		}
		switch {
		case in.Op.Opens():
			open = append(open, in.Op)
		case in.Op.Closes():
			if len(open) == 0 || open[len(open)-1].Closer() != in.Op {
				return fmt.Errorf("position %d: unmatched %s", pos, in.Op)
			}
			open = open[:len(open)-1]
		case in.Op == OpNextSource:
			src++
		case in.Op == OpNextDestination:
			dst++
		}
	}
	if len(open) > 0 {
		return fmt.Errorf("%d bracket(s) left open at end of tape", len(open))
	}
	if src != len(p.Sources) {
		return fmt.Errorf("tape has %d NextSource but %d source indices", src, len(p.Sources))
	}
	if dst != len(p.Destinations) {
		return fmt.Errorf("tape has %d NextDestination but %d destination indices", dst, len(p.Destinations))
	}
	return nil
}
