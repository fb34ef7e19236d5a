package testutil

import (
	"testing"

	"github.com/roach88/vstack/internal/chunk"
	"github.com/roach88/vstack/internal/ir"
	"github.com/roach88/vstack/internal/recorder"
)

// Record runs fn against a fresh recorder and finishes it, failing the
// test on any recording error.
func Record(t testing.TB, fn func(r *recorder.Recorder), opts ...recorder.Option) (*ir.Program, *chunk.Tree) {
	t.Helper()
	r := recorder.New(opts...)
	fn(r)
	p, tree, err := r.Finish()
	if err != nil {
		t.Fatalf("recording failed: %v", err)
	}
	return p, tree
}

// Scatter multiplies data[0] by data[1] and adds the product and data[1]
// into data[2]. Against {3, 4, 0} it produces {3, 4, 16}.
func Scatter(r *recorder.Recorder) {
	a := r.NewSource(0)
	b := r.NewSource(1)
	r.Multiply(a, b)
	r.Destination(a, 2)
	r.Destination(b, 2)
}

// Guarded records two chunks inside an If on data[0] > data[1], then adds
// data[1] into data[3]. Against {1, 5, 0, 0} the chunks are skipped and
// the result is {1, 5, 0, 5}; against {5, 1, 0, 0} it is {5, 1, 5, 6}.
func Guarded(r *recorder.Recorder) {
	x := r.NewSource(0)
	y := r.NewSource(1)
	r.GreaterThan(x, y)
	r.If()
	r.StartChunk(false)
	z := r.NewSource(0)
	r.Destination(z, 2)
	r.EndChunk()
	r.StartChunk(false)
	r.Destination(x, 3)
	r.EndChunk()
	r.EndIf()
	w := r.NewSource(1)
	r.Destination(w, 3)
}
