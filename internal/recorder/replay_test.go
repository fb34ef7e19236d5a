package recorder

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vstack/internal/ir"
)

// square records acc += data[idx]^2 (or -= when negate is set) inside a
// scope.
func square(r *Recorder, acc int32, idx int, negate bool) {
	r.EnterScope()
	x := r.NewSource(idx)
	y := r.NewCopy(x)
	r.Multiply(y, x)
	if negate {
		r.Decrement(acc, y)
	} else {
		r.Increment(acc, y)
	}
	r.ExitScope()
}

func TestReplay_IdenticalRegion(t *testing.T) {
	r := New()
	acc := r.NewZero()
	start := r.Mark()
	square(r, acc, 3, false)
	length := r.Len()

	r.BeginReplay(start)
	assert.True(t, r.Replaying())
	square(r, acc, 7, false)
	r.EndReplay()
	require.NoError(t, r.Err())
	assert.Equal(t, length, r.Len())

	r.Destination(acc, 0)
	p, _, err := r.Finish()
	require.NoError(t, err)
	assert.Equal(t, []int32{3}, p.Sources)
}

func TestReplay_Mismatch(t *testing.T) {
	r := New()
	acc := r.NewZero()
	start := r.Mark()
	square(r, acc, 3, false)

	r.BeginReplay(start)
	square(r, acc, 3, true)
	r.EndReplay()

	err := r.Err()
	require.True(t, IsReplayMismatch(err))

	var re *RecordError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, ErrCodeReplayMismatch, re.Code)
	assert.Equal(t, start+4, re.Position)
	assert.Equal(t, op(ir.OpIncrementBy, 0, 2), *re.Expected)
	assert.Equal(t, op(ir.OpDecrementBy, 0, 2), *re.Got)
	assert.Equal(t, 1, re.Depth)
	assert.Equal(t, map[int32]ir.SlotOrigin{
		0: {Position: 1, Depth: 0},
		2: {Position: 4, Depth: 1},
	}, re.Provenance)
	assert.Contains(t, err.Error(), `expected="IncrementBy s0, s2"`)
	assert.Contains(t, err.Error(), `got="DecrementBy s0, s2"`)

	_, _, finishErr := r.Finish()
	assert.Same(t, err, finishErr)
}

func TestReplay_Overrun(t *testing.T) {
	r := New()
	acc := r.NewZero()
	start := r.Mark()
	r.Increment(acc, acc)

	r.BeginReplay(start)
	r.Increment(acc, acc)
	require.NoError(t, r.Err())
	r.Increment(acc, acc)

	code, ok := CodeOf(r.Err())
	require.True(t, ok)
	assert.Equal(t, ErrCodeReplayOverrun, code)
	assert.True(t, IsReplayMismatch(r.Err()))
}

func TestReplay_Nested(t *testing.T) {
	r := New()
	acc := r.NewZero()
	outer := r.Mark()
	r.Increment(acc, acc)
	inner := r.Mark()
	r.Increment(acc, acc)
	r.Increment(acc, acc)
	length := r.Len()

	r.BeginReplay(outer)
	r.Increment(acc, acc)
	r.BeginReplay(inner)
	assert.Equal(t, inner, r.Mark())
	r.Increment(acc, acc)
	r.EndReplay()
	r.EndReplay()

	require.NoError(t, r.Err())
	assert.Equal(t, length, r.Len())
	assert.False(t, r.Replaying())
}

func TestReplay_CommentsCompareByOpcode(t *testing.T) {
	r := New()
	start := r.Mark()
	r.Comment("first pass")
	r.NewZero()

	r.BeginReplay(start)
	r.Comment("second pass")
	r.NewZero()
	r.EndReplay()

	p, _, err := r.Finish()
	require.NoError(t, err)
	assert.Equal(t, []string{"first pass"}, p.Comments)
}

func TestReplay_Structure(t *testing.T) {
	tests := []struct {
		name   string
		replay func(r *Recorder)
		code   ErrorCode
	}{
		{"bracket left open", func(r *Recorder) { r.EnterScope() }, ErrCodeUnmatchedBracket},
		{"chunk left open", func(r *Recorder) { r.StartChunk(false) }, ErrCodeUnmatchedChunk},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			start := r.Mark()
			r.EnterScope()
			r.ExitScope()

			r.BeginReplay(start)
			tt.replay(r)
			r.EndReplay()

			code, ok := CodeOf(r.Err())
			require.True(t, ok)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestReplay_InvalidStart(t *testing.T) {
	r := New()
	r.NewZero()
	r.BeginReplay(5)
	assert.True(t, IsInvalidOperand(r.Err()))

	r = New()
	r.EndReplay()
	assert.True(t, IsStructuralError(r.Err()))
}
