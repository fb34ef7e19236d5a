package recorder

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/vstack/internal/ir"
)

// ErrorCode categorizes recording errors.
type ErrorCode string

const (
	// ErrCodeUnmatchedBracket indicates an EndIf/ExitScope without its
	// opener, or brackets left open at Finish.
	ErrCodeUnmatchedBracket ErrorCode = "UNMATCHED_BRACKET"

	// ErrCodeTapeCapacity indicates the tape reached its configured limit.
	ErrCodeTapeCapacity ErrorCode = "TAPE_CAPACITY"

	// ErrCodeTooManyChildren indicates a chunk exceeded the sibling limit.
	ErrCodeTooManyChildren ErrorCode = "TOO_MANY_CHILDREN"

	// ErrCodeReplayMismatch indicates a replayed region diverged from the
	// region it was declared identical to.
	ErrCodeReplayMismatch ErrorCode = "REPLAY_MISMATCH"

	// ErrCodeReplayOverrun indicates a replay ran past the end of the tape.
	ErrCodeReplayOverrun ErrorCode = "REPLAY_OVERRUN"

	// ErrCodeUnmatchedChunk indicates an EndChunk without StartChunk, or
	// chunks left open at Finish.
	ErrCodeUnmatchedChunk ErrorCode = "UNMATCHED_CHUNK"

	// ErrCodeInvalidOperand indicates a slot, index or position outside its
	// valid range.
	ErrCodeInvalidOperand ErrorCode = "INVALID_OPERAND"
)

// RecordError is a fatal recording error.
//
// Replay mismatches carry the tape position, the instruction already on
// the tape, the instruction the client asked for, the scope depth at the
// point of divergence and the allocation sites of the slots involved.
type RecordError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Position is the tape position the error refers to, or -1.
	Position int

	// Expected is the instruction already recorded at Position.
	Expected *ir.Instruction

	// Got is the instruction the client requested.
	Got *ir.Instruction

	// Depth is the scope depth when the error was detected.
	Depth int

	// Provenance maps the slots involved in a mismatch to their
	// allocation sites.
	Provenance map[int32]ir.SlotOrigin

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *RecordError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)

	var attrs []string
	if e.Position >= 0 {
		attrs = append(attrs, fmt.Sprintf("position=%d", e.Position))
	}
	if e.Expected != nil {
		attrs = append(attrs, fmt.Sprintf("expected=%q", e.Expected.String()))
	}
	if e.Got != nil {
		attrs = append(attrs, fmt.Sprintf("got=%q", e.Got.String()))
	}
	if e.Expected != nil || e.Got != nil {
		attrs = append(attrs, fmt.Sprintf("depth=%d", e.Depth))
	}
	if len(attrs) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(attrs, ", "))
	}

	slots := make([]int32, 0, len(e.Provenance))
	for s := range e.Provenance {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	for _, s := range slots {
		fmt.Fprintf(&b, "; s%d %s", s, e.Provenance[s])
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *RecordError) Unwrap() error { return e.Err }

func hasCode(err error, codes ...ErrorCode) bool {
	var re *RecordError
	if !errors.As(err, &re) {
		return false
	}
	for _, c := range codes {
		if re.Code == c {
			return true
		}
	}
	return false
}

// IsReplayMismatch reports whether err is a replay divergence, including
// a replay that ran off the end of the tape.
func IsReplayMismatch(err error) bool {
	return hasCode(err, ErrCodeReplayMismatch, ErrCodeReplayOverrun)
}

// IsStructuralError reports whether err is an unmatched bracket or chunk.
func IsStructuralError(err error) bool {
	return hasCode(err, ErrCodeUnmatchedBracket, ErrCodeUnmatchedChunk)
}

// IsCapacityError reports whether err is a tape or sibling limit error.
func IsCapacityError(err error) bool {
	return hasCode(err, ErrCodeTapeCapacity, ErrCodeTooManyChildren)
}

// IsInvalidOperand reports whether err is an out-of-range operand.
func IsInvalidOperand(err error) bool {
	return hasCode(err, ErrCodeInvalidOperand)
}

// CodeOf returns the code of a RecordError in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var re *RecordError
	if errors.As(err, &re) {
		return re.Code, true
	}
	return "", false
}

func newError(code ErrorCode, pos int, format string, args ...any) *RecordError {
	return &RecordError{Code: code, Message: fmt.Sprintf(format, args...), Position: pos}
}
