package backend

import (
	"fmt"

	"github.com/roach88/vstack/internal/ir"
)

// Interpreter executes code one instruction at a time. Skipped If bodies
// are scanned linearly.
type Interpreter struct{}

// NewInterpreter creates the reference backend.
func NewInterpreter() *Interpreter { return &Interpreter{} }

// Name implements Backend.
func (*Interpreter) Name() string { return "interpreter" }

// Execute implements Backend.
func (*Interpreter) Execute(seg Segment, f *Frame) (err error) {
	defer guard(seg, &err)

	code := seg.Code
	stack := f.Stack
	for i := 0; i < len(code); i++ {
		in := code[i]
		t, s := in.Target, in.Source
		switch in.Op {
		case ir.OpBlank, ir.OpComment, ir.OpEndIf, ir.OpIncrementDepth, ir.OpDecrementDepth:
		case ir.OpZero:
			stack[t] = 0
		case ir.OpCopyTo:
			stack[t] = stack[s]
		case ir.OpNextSource:
			stack[t] = f.Sources[f.Src]
			f.Src++
		case ir.OpNextDestination:
			f.Dests[f.Dst] = stack[s]
			f.Dst++
		case ir.OpMultiplyBy:
			stack[t] *= stack[s]
		case ir.OpIncrementBy:
			stack[t] += stack[s]
		case ir.OpDecrementBy:
			stack[t] -= stack[s]
		case ir.OpEqualsOther:
			f.setCond(stack[t] == stack[s])
		case ir.OpNotEqualsOther:
			f.setCond(stack[t] != stack[s])
		case ir.OpGreaterThan:
			f.setCond(stack[t] > stack[s])
		case ir.OpLessThan:
			f.setCond(stack[t] < stack[s])
		case ir.OpEqualsValue:
			f.setCond(stack[t] == float64(s))
		case ir.OpNotEqualsValue:
			f.setCond(stack[t] != float64(s))
		case ir.OpIf:
			if f.Cond {
				continue
			}
			end, open := skipBody(code, i, f)
			if open > 0 {
				f.Skip = open
				return nil
			}
			i = end
		default:
			return fmt.Errorf("%w: unknown opcode %d at %d", ErrExecution, uint8(in.Op), seg.Range.Start+i)
		}
	}
	return nil
}

// skipBody scans past the body of the If at code[at], advancing the
// cursors for every ordered instruction in it. It returns the index of
// the matching EndIf, or the number of If brackets still open when the
// code ends first.
func skipBody(code []ir.Instruction, at int, f *Frame) (end, open int) {
	depth := 1
	for j := at + 1; j < len(code); j++ {
		switch code[j].Op {
		case ir.OpIf:
			depth++
		case ir.OpEndIf:
			depth--
			if depth == 0 {
				return j, 0
			}
		case ir.OpNextSource:
			f.Src++
		case ir.OpNextDestination:
			f.Dst++
		}
	}
	return len(code), depth
}
