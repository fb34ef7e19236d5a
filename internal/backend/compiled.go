package backend

import (
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/vstack/internal/chunk"
	"github.com/roach88/vstack/internal/ir"
)

// ErrCompile is returned when a segment cannot be compiled.
var ErrCompile = errors.New("segment compilation failed")

type step func(f *Frame)

type program []step

func (p program) run(f *Frame) {
	for _, s := range p {
		s(f)
	}
}

// CacheStats reports compiled-code reuse.
type CacheStats struct {
	// Compiled counts segments compiled from scratch.
	Compiled int
	// RangeHits counts lookups served by tape range.
	RangeHits int
	// CodeHits counts lookups served by an identical range elsewhere.
	CodeHits int
}

// Compiled compiles each segment into a tree of closures: straight-line
// instructions become single closures and every If becomes a closure
// holding its compiled body. Programs are cached by tape range and by
// code fingerprint, so structurally identical ranges share one program.
//
// A Compiled instance serves one chunk tree; range keys are only unique
// within a tree. It is safe for concurrent use.
type Compiled struct {
	mu      sync.Mutex
	byRange map[ir.Range]program
	byCode  map[string]program
	stats   CacheStats
}

// NewCompiled creates an empty compiled backend.
func NewCompiled() *Compiled {
	return &Compiled{
		byRange: make(map[ir.Range]program),
		byCode:  make(map[string]program),
	}
}

// Name implements Backend.
func (*Compiled) Name() string { return "compiled" }

// Stats returns a snapshot of the cache counters.
func (c *Compiled) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Compile compiles seg ahead of execution.
func (c *Compiled) Compile(seg Segment) error {
	_, err := c.lookup(seg)
	return err
}

// Execute implements Backend.
func (c *Compiled) Execute(seg Segment, f *Frame) (err error) {
	p, err := c.lookup(seg)
	if err != nil {
		return err
	}
	defer guard(seg, &err)
	p.run(f)
	return nil
}

func (c *Compiled) lookup(seg Segment) (program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.byRange[seg.Range]; ok {
		c.stats.RangeHits++
		return p, nil
	}
	fp := ir.CodeFingerprint(seg.Code)
	if p, ok := c.byCode[fp]; ok {
		c.stats.CodeHits++
		c.byRange[seg.Range] = p
		return p, nil
	}

	jumps := seg.Jumps
	if jumps == nil {
		jumps = chunk.BuildJumps(seg.Code)
	}
	p, err := compileRange(seg.Code, jumps, 0, len(seg.Code))
	if err != nil {
		return nil, fmt.Errorf("range %s: %w", seg.Range, err)
	}
	c.stats.Compiled++
	c.byRange[seg.Range] = p
	c.byCode[fp] = p
	return p, nil
}

func compileRange(code []ir.Instruction, jumps []chunk.Jump, lo, hi int) (program, error) {
	var out program
	for i := lo; i < hi; i++ {
		in := code[i]
		if in.Op != ir.OpIf {
			s, err := compileInstruction(in)
			if err != nil {
				return nil, fmt.Errorf("%w: position %d: %v", ErrCompile, i, err)
			}
			if s != nil {
				out = append(out, s)
			}
			continue
		}

		j := jumps[i]
		skipSrc, skipDst := j.Sources, j.Destinations
		if j.Match >= 0 && j.Match < hi {
			body, err := compileRange(code, jumps, i+1, j.Match)
			if err != nil {
				return nil, err
			}
			out = append(out, func(f *Frame) {
				if f.Cond {
					body.run(f)
					return
				}
				f.Src += skipSrc
				f.Dst += skipDst
			})
			i = j.Match
			continue
		}

		// The bracket closes after the segment: the body is the rest.
		body, err := compileRange(code, jumps, i+1, hi)
		if err != nil {
			return nil, err
		}
		open := j.Open
		out = append(out, func(f *Frame) {
			if f.Cond {
				body.run(f)
				return
			}
			f.Src += skipSrc
			f.Dst += skipDst
			f.Skip = open
		})
		return out, nil
	}
	return out, nil
}

// compileInstruction returns the closure for one non-If instruction, or
// nil for instructions without runtime effect.
func compileInstruction(in ir.Instruction) (step, error) {
	t, s := in.Target, in.Source
	switch in.Op {
	case ir.OpBlank, ir.OpComment, ir.OpEndIf, ir.OpIncrementDepth, ir.OpDecrementDepth:
		return nil, nil
	case ir.OpZero:
		return func(f *Frame) { f.Stack[t] = 0 }, nil
	case ir.OpCopyTo:
		return func(f *Frame) { f.Stack[t] = f.Stack[s] }, nil
	case ir.OpNextSource:
		return func(f *Frame) {
			f.Stack[t] = f.Sources[f.Src]
			f.Src++
		}, nil
	case ir.OpNextDestination:
		return func(f *Frame) {
			f.Dests[f.Dst] = f.Stack[s]
			f.Dst++
		}, nil
	case ir.OpMultiplyBy:
		return func(f *Frame) { f.Stack[t] *= f.Stack[s] }, nil
	case ir.OpIncrementBy:
		return func(f *Frame) { f.Stack[t] += f.Stack[s] }, nil
	case ir.OpDecrementBy:
		return func(f *Frame) { f.Stack[t] -= f.Stack[s] }, nil
	case ir.OpEqualsOther:
		return func(f *Frame) { f.setCond(f.Stack[t] == f.Stack[s]) }, nil
	case ir.OpNotEqualsOther:
		return func(f *Frame) { f.setCond(f.Stack[t] != f.Stack[s]) }, nil
	case ir.OpGreaterThan:
		return func(f *Frame) { f.setCond(f.Stack[t] > f.Stack[s]) }, nil
	case ir.OpLessThan:
		return func(f *Frame) { f.setCond(f.Stack[t] < f.Stack[s]) }, nil
	case ir.OpEqualsValue:
		v := float64(s)
		return func(f *Frame) { f.setCond(f.Stack[t] == v) }, nil
	case ir.OpNotEqualsValue:
		v := float64(s)
		return func(f *Frame) { f.setCond(f.Stack[t] != v) }, nil
	}
	return nil, fmt.Errorf("unknown opcode %d", uint8(in.Op))
}
