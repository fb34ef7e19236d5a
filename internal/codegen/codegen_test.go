package codegen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vstack/internal/chunk"
	"github.com/roach88/vstack/internal/ir"
	"github.com/roach88/vstack/internal/recorder"
)

func record(t *testing.T, fn func(r *recorder.Recorder)) (*ir.Program, *chunk.Tree) {
	t.Helper()
	r := recorder.New()
	fn(r)
	p, tree, err := r.Finish()
	require.NoError(t, err)
	return p, tree
}

func TestGenerate_MatchedIf(t *testing.T) {
	p, tree := record(t, func(r *recorder.Recorder) {
		r.Comment("compare inputs")
		x := r.NewSource(0)
		y := r.NewSource(1)
		r.LessThan(x, y)
		r.If()
		z := r.NewSource(2)
		r.Increment(x, z)
		r.EndIf()
		r.EqualsValue(x, 3)
		r.Destination(x, 0)
	})

	res, err := Generate(p, tree, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Leaves)
	assert.Equal(t, 1, res.Functions)
	assert.Contains(t, res.Code, "// Code generated by vstack emit. DO NOT EDIT.")
	assert.Contains(t, res.Code, "package kernels")
	assert.Contains(t, res.Code, "// compare inputs")
	assert.Contains(t, res.Code, "if f.Cond {")
	assert.Contains(t, res.Code, "} else {")
	assert.Contains(t, res.Code, "f.Src += 1")
	assert.Contains(t, res.Code, "f.Cond = s[0] == 3.0")
	assert.Contains(t, res.Code, "f.Dests[f.Dst] = s[0]")
	assert.Contains(t, res.Code, ir.Fingerprint(p))
}

func TestGenerate_OpenIfReturnsWithSkip(t *testing.T) {
	p, tree := record(t, func(r *recorder.Recorder) {
		x := r.NewSource(0)
		y := r.NewSource(1)
		r.GreaterThan(x, y)
		r.If()
		r.StartChunk(false)
		z := r.NewSource(0)
		r.Destination(z, 2)
		r.EndChunk()
		r.EndIf()
		r.Destination(y, 3)
	})

	res, err := Generate(p, tree, Options{Package: "gen"})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Leaves)
	assert.Equal(t, 3, res.Functions)
	assert.Contains(t, res.Code, "package gen")
	assert.Contains(t, res.Code, "if !f.Cond {")
	assert.Contains(t, res.Code, "f.Skip = 1")
	assert.Contains(t, res.Code, "return")
}

func TestGenerate_SharesIdenticalLeaves(t *testing.T) {
	p, tree := record(t, func(r *recorder.Recorder) {
		x := r.NewSource(0)
		y := r.NewSource(1)
		r.StartChunk(false)
		r.Increment(x, y)
		r.EndChunk()
		r.StartChunk(false)
		r.Increment(x, y)
		r.EndChunk()
		r.Destination(x, 2)
	})

	res, err := Generate(p, tree, Options{})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Leaves)
	assert.Equal(t, 3, res.Functions)
	assert.Equal(t, 3, strings.Count(res.Code, "func leaf"))
}

func TestGenerate_RejectsForeignTree(t *testing.T) {
	p, _ := record(t, func(r *recorder.Recorder) { r.NewZero() })
	_, tree := record(t, func(r *recorder.Recorder) { r.NewZero() })

	_, err := Generate(p, tree, Options{})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("package x\n\nfunc f(s []float64) { s[0] += s[1] }\n"))

	err := Validate("package x\n\nfunc f() { y := 1 }\n")
	assert.ErrorIs(t, err, ErrInvalidSource)

	err = Validate("package x\n\nfunc f( {\n")
	assert.ErrorIs(t, err, ErrInvalidSource)
}
