package ir

import "fmt"

// Unused marks an operand the opcode does not consume.
const Unused int32 = -1

// Instruction is one immutable tape entry.
type Instruction struct {
	Op     Opcode `json:"op" cbor:"1,keyasint"`
	Target int32  `json:"target" cbor:"2,keyasint"`
	Source int32  `json:"source" cbor:"3,keyasint"`
}

// Make builds an instruction. Operands the opcode does not use are
// normalized to Unused so that equality comparisons are exact.
func Make(op Opcode, target, source int32) Instruction {
	shape := ShapeOf(op)
	if shape.Target == OperandUnused {
		target = Unused
	}
	if shape.Source == OperandUnused {
		source = Unused
	}
	return Instruction{Op: op, Target: target, Source: source}
}

// String renders the instruction in disassembly form.
func (in Instruction) String() string {
	shape := ShapeOf(in.Op)
	switch {
	case shape.Target == OperandUnused && shape.Source == OperandUnused:
		return in.Op.String()
	case shape.Source == OperandUnused:
		return fmt.Sprintf("%s s%d", in.Op, in.Target)
	case shape.Target == OperandUnused && shape.Source == OperandComment:
		return fmt.Sprintf("%s #%d", in.Op, in.Source)
	case shape.Target == OperandUnused:
		return fmt.Sprintf("%s s%d", in.Op, in.Source)
	case shape.Source == OperandLiteral:
		return fmt.Sprintf("%s s%d, %d", in.Op, in.Target, in.Source)
	default:
		return fmt.Sprintf("%s s%d, s%d", in.Op, in.Target, in.Source)
	}
}

// Reads calls fn for every slot the instruction reads, in evaluation order.
func (in Instruction) Reads(fn func(slot int32)) {
	shape := ShapeOf(in.Op)
	if shape.Target == OperandRead || shape.Target == OperandReadWrite {
		fn(in.Target)
	}
	if shape.Source == OperandRead {
		fn(in.Source)
	}
}

// Writes calls fn for every slot the instruction writes.
func (in Instruction) Writes(fn func(slot int32)) {
	shape := ShapeOf(in.Op)
	if shape.Target == OperandWrite || shape.Target == OperandReadWrite {
		fn(in.Target)
	}
}

// MapSlots returns a copy of the instruction with every slot operand
// replaced by fn(slot). Literal and comment operands are left as-is.
func (in Instruction) MapSlots(fn func(slot int32) int32) Instruction {
	shape := ShapeOf(in.Op)
	out := in
	if shape.Target.IsSlot() {
		out.Target = fn(in.Target)
	}
	if shape.Source.IsSlot() {
		out.Source = fn(in.Source)
	}
	return out
}
