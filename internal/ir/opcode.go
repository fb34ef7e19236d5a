package ir

import "fmt"

// Opcode identifies one operation of the closed instruction set.
type Opcode uint8

const (
	// OpBlank is a no-op. It is always the first tape entry.
	OpBlank Opcode = iota
	// OpZero sets stack[target] = 0.
	OpZero
	// OpCopyTo sets stack[target] = stack[source].
	OpCopyTo
	// OpNextSource sets stack[target] to the next ordered source value.
	OpNextSource
	// OpNextDestination appends stack[source] to the ordered destinations.
	OpNextDestination
	// OpMultiplyBy sets stack[target] *= stack[source].
	OpMultiplyBy
	// OpIncrementBy sets stack[target] += stack[source].
	OpIncrementBy
	// OpDecrementBy sets stack[target] -= stack[source].
	OpDecrementBy
	// OpEqualsOther sets the condition to stack[target] == stack[source].
	OpEqualsOther
	// OpNotEqualsOther sets the condition to stack[target] != stack[source].
	OpNotEqualsOther
	// OpGreaterThan sets the condition to stack[target] > stack[source].
	OpGreaterThan
	// OpLessThan sets the condition to stack[target] < stack[source].
	OpLessThan
	// OpEqualsValue sets the condition to stack[target] == literal.
	OpEqualsValue
	// OpNotEqualsValue sets the condition to stack[target] != literal.
	OpNotEqualsValue
	// OpIf skips to the matching OpEndIf when the condition is false.
	OpIf
	// OpEndIf terminates an OpIf bracket.
	OpEndIf
	// OpIncrementDepth opens a scratch-slot scope.
	OpIncrementDepth
	// OpDecrementDepth closes a scratch-slot scope.
	OpDecrementDepth
	// OpComment carries a comment table index in Source. No runtime effect.
	OpComment

	opcodeCount
)

var opcodeNames = [opcodeCount]string{
	OpBlank:           "Blank",
	OpZero:            "Zero",
	OpCopyTo:          "CopyTo",
	OpNextSource:      "NextSource",
	OpNextDestination: "NextDestination",
	OpMultiplyBy:      "MultiplyBy",
	OpIncrementBy:     "IncrementBy",
	OpDecrementBy:     "DecrementBy",
	OpEqualsOther:     "EqualsOther",
	OpNotEqualsOther:  "NotEqualsOther",
	OpGreaterThan:     "GreaterThan",
	OpLessThan:        "LessThan",
	OpEqualsValue:     "EqualsValue",
	OpNotEqualsValue:  "NotEqualsValue",
	OpIf:              "If",
	OpEndIf:           "EndIf",
	OpIncrementDepth:  "IncrementDepth",
	OpDecrementDepth:  "DecrementDepth",
	OpComment:         "Comment",
}

// String returns the opcode mnemonic.
func (op Opcode) String() string {
	if op < opcodeCount {
		return opcodeNames[op]
	}
	return fmt.Sprintf("Opcode(%d)", uint8(op))
}

// Valid reports whether op belongs to the closed opcode set.
func (op Opcode) Valid() bool {
	return op < opcodeCount
}

// OperandKind describes how an instruction operand is interpreted.
type OperandKind uint8

const (
	// OperandUnused means the operand holds Unused.
	OperandUnused OperandKind = iota
	// OperandRead means the operand is a slot that is read.
	OperandRead
	// OperandWrite means the operand is a slot that is written.
	OperandWrite
	// OperandReadWrite means the operand is a slot that is read then written.
	OperandReadWrite
	// OperandLiteral means the operand is an integer literal.
	OperandLiteral
	// OperandComment means the operand is a comment table index.
	OperandComment
)

// IsSlot reports whether the operand addresses a virtual stack slot.
func (k OperandKind) IsSlot() bool {
	return k == OperandRead || k == OperandWrite || k == OperandReadWrite
}

// Shape is the operand layout of one opcode.
type Shape struct {
	Target OperandKind
	Source OperandKind
}

var shapes = [opcodeCount]Shape{
	OpBlank:           {OperandUnused, OperandUnused},
	OpZero:            {OperandWrite, OperandUnused},
	OpCopyTo:          {OperandWrite, OperandRead},
	OpNextSource:      {OperandWrite, OperandUnused},
	OpNextDestination: {OperandUnused, OperandRead},
	OpMultiplyBy:      {OperandReadWrite, OperandRead},
	OpIncrementBy:     {OperandReadWrite, OperandRead},
	OpDecrementBy:     {OperandReadWrite, OperandRead},
	OpEqualsOther:     {OperandRead, OperandRead},
	OpNotEqualsOther:  {OperandRead, OperandRead},
	OpGreaterThan:     {OperandRead, OperandRead},
	OpLessThan:        {OperandRead, OperandRead},
	OpEqualsValue:     {OperandRead, OperandLiteral},
	OpNotEqualsValue:  {OperandRead, OperandLiteral},
	OpIf:              {OperandUnused, OperandUnused},
	OpEndIf:           {OperandUnused, OperandUnused},
	OpIncrementDepth:  {OperandUnused, OperandUnused},
	OpDecrementDepth:  {OperandUnused, OperandUnused},
	OpComment:         {OperandUnused, OperandComment},
}

// ShapeOf returns the operand layout for op.
func ShapeOf(op Opcode) Shape {
	if op < opcodeCount {
		return shapes[op]
	}
	return Shape{}
}

// IsComparison reports whether op sets the condition flag.
func (op Opcode) IsComparison() bool {
	return op >= OpEqualsOther && op <= OpNotEqualsValue
}

// IsOrdered reports whether op moves a cursor of the ordered buffers.
func (op Opcode) IsOrdered() bool {
	return op == OpNextSource || op == OpNextDestination
}

// Opens reports whether op opens a bracket (If or IncrementDepth).
func (op Opcode) Opens() bool {
	return op == OpIf || op == OpIncrementDepth
}

// Closes reports whether op closes a bracket (EndIf or DecrementDepth).
func (op Opcode) Closes() bool {
	return op == OpEndIf || op == OpDecrementDepth
}

// Closer returns the terminator matching an opening opcode.
func (op Opcode) Closer() Opcode {
	switch op {
	case OpIf:
		return OpEndIf
	case OpIncrementDepth:
		return OpDecrementDepth
	}
	return OpBlank
}
