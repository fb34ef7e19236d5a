package recorder

import (
	"errors"
	"log/slog"
	"math"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/vstack/internal/chunk"
	"github.com/roach88/vstack/internal/ir"
)

// replayMarker is one active BeginReplay. cursor is the tape position the
// next requested instruction is compared against.
type replayMarker struct {
	start    int
	cursor   int
	brackets int
	chunks   int
}

// Recorder records an instruction tape and its chunk structure.
type Recorder struct {
	tape         []ir.Instruction
	sources      []int32
	destinations []int32

	next  int32   // next free scratch slot
	high  int32   // allocator high-water mark
	marks []int32 // saved next values, one per open scope

	brackets []ir.Opcode
	replays  []replayMarker

	comments     []string
	commentIndex map[string]int32
	lastComment  string
	provenance   map[int32]ir.SlotOrigin

	builder  *chunk.Builder
	err      error
	finished bool

	originalCount int
	ordered       bool
	slotReuse     bool
	maxTape       int
	chunkOpts     chunk.Options
	logger        *slog.Logger
}

// New creates a recorder. The tape starts with a single Blank.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		commentIndex: make(map[string]int32),
		provenance:   make(map[int32]ir.SlotOrigin),
		ordered:      true,
		slotReuse:    true,
		maxTape:      DefaultMaxTape,
		chunkOpts:    defaultChunkOptions(),
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.originalCount < 0 {
		r.originalCount = 0
	}
	if r.maxTape <= 0 {
		r.maxTape = DefaultMaxTape
	}
	if !r.ordered {
		r.next = int32(r.originalCount)
		r.high = r.next
	}
	r.builder = chunk.NewBuilder(r.chunkOpts.MaxChildren)
	r.tape = append(r.tape, ir.Make(ir.OpBlank, ir.Unused, ir.Unused))
	return r
}

// Err returns the sticky error, if any.
func (r *Recorder) Err() error { return r.err }

// Len returns the number of instructions on the tape.
func (r *Recorder) Len() int { return len(r.tape) }

// Depth returns the number of open scopes.
func (r *Recorder) Depth() int { return len(r.marks) }

// Ordered reports whether the recorder is in ordered-buffer mode.
func (r *Recorder) Ordered() bool { return r.ordered }

// Replaying reports whether a replay is active.
func (r *Recorder) Replaying() bool { return len(r.replays) > 0 }

// Mark returns the tape position the next instruction will occupy. While
// replaying, it is the position being verified.
func (r *Recorder) Mark() int {
	if n := len(r.replays); n > 0 {
		return r.replays[n-1].cursor
	}
	return len(r.tape)
}

func (r *Recorder) fail(err *RecordError) {
	if r.err != nil {
		return
	}
	err.Depth = len(r.marks)
	r.err = err
	r.logger.Debug("recording failed", "code", string(err.Code), "position", err.Position)
}

func (r *Recorder) ok() bool {
	if r.err != nil {
		return false
	}
	if r.finished {
		r.fail(newError(ErrCodeInvalidOperand, -1, "recorder already finished"))
		return false
	}
	return true
}

func (r *Recorder) checkSlot(s int32) bool {
	if s < 0 || s >= r.high {
		r.fail(newError(ErrCodeInvalidOperand, r.Mark(), "slot %d is not allocated (stack size %d)", s, r.high))
		return false
	}
	return true
}

// checkIndex validates a shared-array index. Direct mode always bounds
// indices by the original count; ordered mode only when one was given.
func (r *Recorder) checkIndex(idx int) bool {
	bounded := !r.ordered || r.originalCount > 0
	if idx < 0 || idx > math.MaxInt32 || (bounded && idx >= r.originalCount) {
		r.fail(newError(ErrCodeInvalidOperand, r.Mark(), "array index %d outside [0,%d)", idx, r.originalCount))
		return false
	}
	return true
}

// emit appends in, or verifies it against every active replay.
func (r *Recorder) emit(in ir.Instruction) bool {
	if len(r.replays) > 0 {
		return r.verify(in)
	}
	if len(r.tape) >= r.maxTape {
		r.fail(newError(ErrCodeTapeCapacity, len(r.tape), "tape is full at %d instructions", r.maxTape))
		return false
	}
	r.tape = append(r.tape, in)
	return true
}

// allocate records op with a fresh target slot and returns the slot.
func (r *Recorder) allocate(op ir.Opcode, source int32) int32 {
	if n := len(r.replays); n > 0 {
		cursor := r.replays[n-1].cursor
		if cursor >= len(r.tape) {
			r.fail(r.overrun(n - 1))
			return ir.Unused
		}
		target := r.tape[cursor].Target
		if !r.verify(ir.Make(op, target, source)) {
			return ir.Unused
		}
		return target
	}

	slot := r.next
	pos := len(r.tape)
	if !r.emit(ir.Make(op, slot, source)) {
		return ir.Unused
	}
	r.next++
	if r.next > r.high {
		r.high = r.next
	}
	r.provenance[slot] = ir.SlotOrigin{Position: pos, Depth: len(r.marks), Comment: r.lastComment}
	return slot
}

// NewZero allocates a slot holding 0.
func (r *Recorder) NewZero() int32 {
	if !r.ok() {
		return ir.Unused
	}
	return r.allocate(ir.OpZero, ir.Unused)
}

// NewCopy allocates a slot holding a copy of src.
func (r *Recorder) NewCopy(src int32) int32 {
	if !r.ok() || !r.checkSlot(src) {
		return ir.Unused
	}
	return r.allocate(ir.OpCopyTo, src)
}

// NewSource allocates a slot holding data[idx] at run time.
func (r *Recorder) NewSource(idx int) int32 {
	if !r.ok() || !r.checkIndex(idx) {
		return ir.Unused
	}
	if !r.ordered {
		return r.allocate(ir.OpCopyTo, int32(idx))
	}
	replaying := len(r.replays) > 0
	slot := r.allocate(ir.OpNextSource, ir.Unused)
	if slot != ir.Unused && !replaying {
		r.sources = append(r.sources, int32(idx))
	}
	return slot
}

func (r *Recorder) binary(op ir.Opcode, target, source int32) {
	if !r.ok() || !r.checkSlot(target) || !r.checkSlot(source) {
		return
	}
	r.emit(ir.Make(op, target, source))
}

// Zero sets target to 0.
func (r *Recorder) Zero(target int32) {
	if !r.ok() || !r.checkSlot(target) {
		return
	}
	r.emit(ir.Make(ir.OpZero, target, ir.Unused))
}

// Copy sets target to src.
func (r *Recorder) Copy(target, src int32) { r.binary(ir.OpCopyTo, target, src) }

// Multiply sets target to target*src.
func (r *Recorder) Multiply(target, src int32) { r.binary(ir.OpMultiplyBy, target, src) }

// Increment adds src to target.
func (r *Recorder) Increment(target, src int32) { r.binary(ir.OpIncrementBy, target, src) }

// Decrement subtracts src from target.
func (r *Recorder) Decrement(target, src int32) { r.binary(ir.OpDecrementBy, target, src) }

// Equals sets the condition to a == b.
func (r *Recorder) Equals(a, b int32) { r.binary(ir.OpEqualsOther, a, b) }

// NotEquals sets the condition to a != b.
func (r *Recorder) NotEquals(a, b int32) { r.binary(ir.OpNotEqualsOther, a, b) }

// GreaterThan sets the condition to a > b.
func (r *Recorder) GreaterThan(a, b int32) { r.binary(ir.OpGreaterThan, a, b) }

// LessThan sets the condition to a < b.
func (r *Recorder) LessThan(a, b int32) { r.binary(ir.OpLessThan, a, b) }

// EqualsValue sets the condition to a == value.
func (r *Recorder) EqualsValue(a, value int32) {
	if !r.ok() || !r.checkSlot(a) {
		return
	}
	r.emit(ir.Make(ir.OpEqualsValue, a, value))
}

// NotEqualsValue sets the condition to a != value.
func (r *Recorder) NotEqualsValue(a, value int32) {
	if !r.ok() || !r.checkSlot(a) {
		return
	}
	r.emit(ir.Make(ir.OpNotEqualsValue, a, value))
}

// Destination adds the value of src into data[idx] at the end of the run.
func (r *Recorder) Destination(src int32, idx int) {
	if !r.ok() || !r.checkSlot(src) || !r.checkIndex(idx) {
		return
	}
	if !r.ordered {
		r.emit(ir.Make(ir.OpIncrementBy, int32(idx), src))
		return
	}
	replaying := len(r.replays) > 0
	if r.emit(ir.Make(ir.OpNextDestination, ir.Unused, src)) && !replaying {
		r.destinations = append(r.destinations, int32(idx))
	}
}

func (r *Recorder) open(op ir.Opcode) bool {
	if !r.ok() || !r.emit(ir.Make(op, ir.Unused, ir.Unused)) {
		return false
	}
	r.brackets = append(r.brackets, op)
	return true
}

func (r *Recorder) close(op ir.Opcode) bool {
	if !r.ok() {
		return false
	}
	n := len(r.brackets)
	if n == 0 || r.brackets[n-1].Closer() != op {
		r.fail(newError(ErrCodeUnmatchedBracket, r.Mark(), "%s without matching opener", op))
		return false
	}
	if m := len(r.replays); m > 0 && n <= r.replays[m-1].brackets {
		r.fail(newError(ErrCodeUnmatchedBracket, r.Mark(), "%s closes a bracket opened before the replay", op))
		return false
	}
	if !r.emit(ir.Make(op, ir.Unused, ir.Unused)) {
		return false
	}
	r.brackets = r.brackets[:n-1]
	return true
}

// If opens a region that runs only when the condition is true.
func (r *Recorder) If() { r.open(ir.OpIf) }

// EndIf closes the innermost If.
func (r *Recorder) EndIf() { r.close(ir.OpEndIf) }

// EnterScope opens a depth scope and saves the allocator position.
func (r *Recorder) EnterScope() {
	if r.open(ir.OpIncrementDepth) {
		r.marks = append(r.marks, r.next)
	}
}

// ExitScope closes the innermost scope. With slot reuse enabled the
// allocator rewinds to the position saved by EnterScope.
func (r *Recorder) ExitScope() {
	if !r.close(ir.OpDecrementDepth) {
		return
	}
	n := len(r.marks)
	mark := r.marks[n-1]
	r.marks = r.marks[:n-1]
	if r.slotReuse {
		r.next = mark
	}
}

// Comment records a diagnostic comment. Text is stored NFC-normalized.
// Comments are compared by opcode only during replay.
func (r *Recorder) Comment(text string) {
	if !r.ok() {
		return
	}
	if len(r.replays) > 0 {
		r.verify(ir.Make(ir.OpComment, ir.Unused, 0))
		return
	}
	text = norm.NFC.String(text)
	idx, seen := r.commentIndex[text]
	if !seen {
		idx = int32(len(r.comments))
	}
	if !r.emit(ir.Make(ir.OpComment, ir.Unused, idx)) {
		return
	}
	if !seen {
		r.comments = append(r.comments, text)
		r.commentIndex[text] = idx
	}
	r.lastComment = text
}

// StartChunk opens a chunk at the current tape position. parallel
// declares that the chunk may run concurrently with its declared
// siblings.
func (r *Recorder) StartChunk(parallel bool) {
	if !r.ok() {
		return
	}
	if n := len(r.replays); n > 0 {
		r.replays[n-1].chunks++
		return
	}
	if _, err := r.builder.Start(len(r.tape), parallel); err != nil {
		r.fail(r.chunkError(err))
	}
}

// EndChunk closes the innermost chunk at the current tape position.
func (r *Recorder) EndChunk() {
	if !r.ok() {
		return
	}
	if n := len(r.replays); n > 0 {
		if r.replays[n-1].chunks == 0 {
			r.fail(newError(ErrCodeUnmatchedChunk, r.Mark(), "EndChunk closes a chunk opened before the replay"))
			return
		}
		r.replays[n-1].chunks--
		return
	}
	if err := r.builder.End(len(r.tape)); err != nil {
		r.fail(r.chunkError(err))
	}
}

func (r *Recorder) chunkError(err error) *RecordError {
	code := ErrCodeUnmatchedChunk
	if errors.Is(err, chunk.ErrTooManyChildren) {
		code = ErrCodeTooManyChildren
	}
	re := newError(code, len(r.tape), "%v", err)
	re.Err = err
	return re
}

// Finish validates the recording and returns the program and its
// finalized chunk tree. The recorder cannot be used afterwards.
func (r *Recorder) Finish() (*ir.Program, *chunk.Tree, error) {
	if r.err != nil {
		return nil, nil, r.err
	}
	if r.finished {
		return nil, nil, newError(ErrCodeInvalidOperand, -1, "recorder already finished")
	}
	if n := len(r.replays); n > 0 {
		r.fail(newError(ErrCodeUnmatchedBracket, r.replays[n-1].start, "%d replay(s) still open", n))
		return nil, nil, r.err
	}
	if n := len(r.brackets); n > 0 {
		r.fail(newError(ErrCodeUnmatchedBracket, len(r.tape), "%d bracket(s) still open, innermost %s", n, r.brackets[n-1]))
		return nil, nil, r.err
	}
	r.finished = true

	p := &ir.Program{
		Tape:         r.tape,
		Sources:      r.sources,
		Destinations: r.destinations,
		StackSize:    int(r.high),
		Ordered:      r.ordered,
		Comments:     r.comments,
		Provenance:   r.provenance,
	}
	if !r.ordered {
		p.OriginalCount = r.originalCount
	}

	tree, err := r.builder.Build(p, r.chunkOpts)
	if err != nil {
		r.fail(r.chunkError(err))
		return nil, nil, r.err
	}

	r.logger.Debug("recording finished",
		"tape_len", p.Len(),
		"stack_size", p.StackSize,
		"sources", len(p.Sources),
		"destinations", len(p.Destinations),
		"leaves", len(tree.Leaves()),
	)
	return p, tree, nil
}
