package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/vstack/internal/ir"
)

func TestRecord_Fixtures(t *testing.T) {
	p, tree := Record(t, Scatter)
	assert.Equal(t, []int32{0, 1}, p.Sources)
	assert.Equal(t, []int32{2, 2}, p.Destinations)
	assert.Len(t, tree.Leaves(), 1)

	p, tree = Record(t, Guarded)
	assert.Equal(t, []int32{0, 1, 0, 1}, p.Sources)
	assert.Equal(t, []int32{2, 3, 3}, p.Destinations)
	assert.Len(t, tree.Leaves(), 4)
	assert.Equal(t, ir.OpIf, p.Tape[4].Op)
}
