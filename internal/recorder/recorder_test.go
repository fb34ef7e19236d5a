package recorder

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vstack/internal/chunk"
	"github.com/roach88/vstack/internal/ir"
)

func op(o ir.Opcode, target, source int32) ir.Instruction { return ir.Make(o, target, source) }

func TestRecorder_OrderedProgram(t *testing.T) {
	r := New()
	x := r.NewSource(5)
	y := r.NewCopy(x)
	r.Multiply(y, x)
	r.Destination(y, 2)

	p, tree, err := r.Finish()
	require.NoError(t, err)

	assert.Equal(t, []ir.Instruction{
		op(ir.OpBlank, ir.Unused, ir.Unused),
		op(ir.OpNextSource, 0, ir.Unused),
		op(ir.OpCopyTo, 1, 0),
		op(ir.OpMultiplyBy, 1, 0),
		op(ir.OpNextDestination, ir.Unused, 1),
	}, p.Tape)
	assert.Equal(t, []int32{5}, p.Sources)
	assert.Equal(t, []int32{2}, p.Destinations)
	assert.Equal(t, 2, p.StackSize)
	assert.True(t, p.Ordered)
	assert.Zero(t, p.OriginalCount)
	require.NoError(t, p.Validate())

	require.NotNil(t, tree)
	assert.True(t, tree.Node(tree.Root).IsLeaf())
}

func TestRecorder_DirectMode(t *testing.T) {
	r := New(WithOrderedBuffers(false), WithOriginalCount(4))
	v := r.NewSource(2)
	assert.Equal(t, int32(4), v)
	r.Destination(v, 3)

	p, _, err := r.Finish()
	require.NoError(t, err)
	assert.Equal(t, op(ir.OpCopyTo, 4, 2), p.Tape[1])
	assert.Equal(t, op(ir.OpIncrementBy, 3, 4), p.Tape[2])
	assert.Empty(t, p.Sources)
	assert.Empty(t, p.Destinations)
	assert.Equal(t, 4, p.OriginalCount)
	assert.Equal(t, 5, p.StackSize)
	assert.False(t, p.Ordered)
}

func TestRecorder_IndexBounds(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		idx  int
	}{
		{"negative", nil, -1},
		{"ordered with count", []Option{WithOriginalCount(3)}, 3},
		{"direct outside window", []Option{WithOrderedBuffers(false), WithOriginalCount(2)}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.opts...)
			assert.Equal(t, ir.Unused, r.NewSource(tt.idx))
			assert.True(t, IsInvalidOperand(r.Err()))
		})
	}
}

func TestRecorder_ScopeReuse(t *testing.T) {
	record := func(opts ...Option) (int32, *ir.Program) {
		r := New(opts...)
		r.EnterScope()
		r.NewZero()
		r.NewZero()
		r.ExitScope()
		after := r.NewZero()
		p, _, err := r.Finish()
		require.NoError(t, err)
		return after, p
	}

	slot, p := record()
	assert.Equal(t, int32(0), slot)
	assert.Equal(t, 2, p.StackSize)

	slot, p = record(WithSlotReuse(false))
	assert.Equal(t, int32(2), slot)
	assert.Equal(t, 3, p.StackSize)
}

func TestRecorder_StructuralErrors(t *testing.T) {
	tests := []struct {
		name   string
		record func(r *Recorder)
		code   ErrorCode
	}{
		{"endif without if", func(r *Recorder) { r.EndIf() }, ErrCodeUnmatchedBracket},
		{"scope closed by endif", func(r *Recorder) { r.EnterScope(); r.EndIf() }, ErrCodeUnmatchedBracket},
		{"if left open", func(r *Recorder) { r.If() }, ErrCodeUnmatchedBracket},
		{"endchunk without start", func(r *Recorder) { r.EndChunk() }, ErrCodeUnmatchedChunk},
		{"chunk left open", func(r *Recorder) { r.StartChunk(false) }, ErrCodeUnmatchedChunk},
		{"unknown slot", func(r *Recorder) { r.Copy(3, 0) }, ErrCodeInvalidOperand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			tt.record(r)
			_, _, err := r.Finish()
			require.Error(t, err)
			code, ok := CodeOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestRecorder_TapeCapacity(t *testing.T) {
	r := New(WithMaxTape(3))
	r.NewZero()
	r.NewZero()
	assert.Equal(t, ir.Unused, r.NewZero())

	assert.True(t, IsCapacityError(r.Err()))
	assert.Equal(t, 3, r.Len())
}

func TestRecorder_TooManyChildren(t *testing.T) {
	r := New(WithMaxChildren(1))
	r.StartChunk(false)
	r.NewZero()
	r.EndChunk()
	r.StartChunk(false)

	code, ok := CodeOf(r.Err())
	require.True(t, ok)
	assert.Equal(t, ErrCodeTooManyChildren, code)
}

func TestRecorder_ErrorsAreSticky(t *testing.T) {
	r := New()
	r.EndIf()
	first := r.Err()
	require.Error(t, first)

	assert.Equal(t, ir.Unused, r.NewZero())
	r.If()
	r.ExitScope()
	assert.Equal(t, 1, r.Len())
	assert.Same(t, first, r.Err())

	_, _, err := r.Finish()
	assert.Same(t, first, err)
}

func TestRecorder_FinishTwice(t *testing.T) {
	r := New()
	r.NewZero()
	_, _, err := r.Finish()
	require.NoError(t, err)

	_, _, err = r.Finish()
	assert.True(t, IsInvalidOperand(err))
}

func TestRecorder_Chunks(t *testing.T) {
	r := New()
	x := r.NewSource(0)
	r.StartChunk(false)
	y := r.NewCopy(x)
	r.Destination(y, 1)
	r.EndChunk()
	r.Destination(x, 2)

	p, tree, err := r.Finish()
	require.NoError(t, err)

	root := tree.Node(tree.Root)
	require.Len(t, root.Children, 3)
	explicit := tree.Node(root.Children[1])
	assert.Equal(t, chunk.KindExplicit, explicit.Kind)
	assert.Equal(t, ir.Range{Start: 2, End: 4}, explicit.Chunk.Commands)
	assert.Equal(t, ir.Range{Start: 0, End: 1}, explicit.Chunk.Destinations)
	assert.Equal(t, p.Len(), tree.Node(root.Children[2]).Chunk.Commands.End)
}

func TestRecorder_Comments(t *testing.T) {
	r := New()
	r.Comment("cafe\u0301")
	v := r.NewZero()
	r.Comment("caf\u00e9")

	p, _, err := r.Finish()
	require.NoError(t, err)
	assert.Equal(t, []string{"caf\u00e9"}, p.Comments)
	assert.Equal(t, op(ir.OpComment, ir.Unused, 0), p.Tape[1])
	assert.Equal(t, op(ir.OpComment, ir.Unused, 0), p.Tape[3])
	assert.Equal(t, "caf\u00e9", p.Comment(p.Tape[3]))
	assert.Equal(t, ir.SlotOrigin{Position: 2, Depth: 0, Comment: "caf\u00e9"}, p.Provenance[v])
}

func TestRecorder_LogsFinish(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := New(WithLogger(logger))
	r.NewZero()
	_, _, err := r.Finish()
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "recording finished")
	assert.Contains(t, buf.String(), "tape_len=2")
}
