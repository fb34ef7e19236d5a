package engine

import (
	"bytes"
	"context"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vstack/internal/backend"
	"github.com/roach88/vstack/internal/chunk"
	"github.com/roach88/vstack/internal/config"
	"github.com/roach88/vstack/internal/hoist"
	"github.com/roach88/vstack/internal/ir"
	"github.com/roach88/vstack/internal/ordered"
	"github.com/roach88/vstack/internal/recorder"
	"github.com/roach88/vstack/internal/testutil"
)

func finish(t *testing.T, r *recorder.Recorder) (*ir.Program, *chunk.Tree) {
	t.Helper()
	p, tree, err := r.Finish()
	require.NoError(t, err)
	return p, tree
}

func newEngine(t *testing.T, p *ir.Program, tree *chunk.Tree, opts ...EngineOption) *Engine {
	t.Helper()
	e, err := New(p, tree, opts...)
	require.NoError(t, err)
	return e
}

func scatterProgram(t *testing.T) (*ir.Program, *chunk.Tree) {
	return testutil.Record(t, testutil.Scatter)
}

func guardedProgram(t *testing.T) (*ir.Program, *chunk.Tree) {
	return testutil.Record(t, testutil.Guarded)
}

// branchyProgram mixes nested Ifs and scopes so that hoisting under a
// small bound has brackets to split on.
func branchyProgram(t *testing.T, opts ...recorder.Option) (*ir.Program, *chunk.Tree) {
	r := recorder.New(opts...)
	x := r.NewSource(0)
	y := r.NewSource(1)
	acc := r.NewZero()
	for i := 0; i < 4; i++ {
		if i%2 == 0 {
			r.GreaterThan(x, y)
		} else {
			r.LessThan(x, y)
		}
		r.If()
		tmp := r.NewCopy(x)
		r.Multiply(tmp, y)
		r.Increment(acc, tmp)
		r.EnterScope()
		u := r.NewSource(2)
		r.Decrement(acc, u)
		r.EqualsValue(u, 0)
		r.If()
		r.Increment(acc, x)
		r.EndIf()
		r.ExitScope()
		r.EndIf()
		r.Increment(x, y)
	}
	r.Destination(acc, 3)
	r.Destination(x, 4)
	return finish(t, r)
}

func TestExecuteAll_ScatterAccumulates(t *testing.T) {
	p, tree := scatterProgram(t)
	e := newEngine(t, p, tree)

	data := []float64{3, 4, 0}
	stats, err := e.ExecuteAll(context.Background(), data)
	require.NoError(t, err)

	assert.Equal(t, []float64{3, 4, 16}, data)
	assert.Equal(t, 1, stats.Leaves)
	assert.Equal(t, 1, stats.Executed)
	assert.Equal(t, 1, stats.Interpreted)
}

func TestExecuteAll_AddsIntoExistingValues(t *testing.T) {
	p, tree := scatterProgram(t)
	e := newEngine(t, p, tree)

	data := []float64{3, 4, 100}
	_, err := e.ExecuteAll(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4, 116}, data)
}

func TestExecuteAll_SkippedChunksAdvanceCursors(t *testing.T) {
	p, tree := guardedProgram(t)
	e := newEngine(t, p, tree)

	data := []float64{1, 5, 0, 0}
	stats, err := e.ExecuteAll(context.Background(), data)
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 5, 0, 5}, data)
	assert.Equal(t, 4, stats.Leaves)
	assert.Equal(t, 1, stats.Executed)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 1, stats.Partial)
}

func TestExecuteAll_TakenBranchRunsEveryLeaf(t *testing.T) {
	p, tree := guardedProgram(t)
	e := newEngine(t, p, tree)

	data := []float64{5, 1, 0, 0}
	stats, err := e.ExecuteAll(context.Background(), data)
	require.NoError(t, err)

	assert.Equal(t, []float64{5, 1, 5, 6}, data)
	assert.Equal(t, 4, stats.Executed)
	assert.Zero(t, stats.Skipped)
	assert.Zero(t, stats.Partial)
}

func TestExecuteAll_Deterministic(t *testing.T) {
	p, tree := branchyProgram(t)
	e := newEngine(t, p, tree)

	input := []float64{1.5, 2.25, 0, 0.125, -3}
	first := append([]float64(nil), input...)
	second := append([]float64(nil), input...)

	s1, err := e.ExecuteAll(context.Background(), first)
	require.NoError(t, err)
	s2, err := e.ExecuteAll(context.Background(), second)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), s1.Seq)
	assert.Equal(t, int64(2), s2.Seq)
}

func TestExecuteAll_DirectMode(t *testing.T) {
	r := recorder.New(recorder.WithOrderedBuffers(false), recorder.WithOriginalCount(3))
	a := r.NewSource(0)
	b := r.NewSource(1)
	r.Multiply(a, b)
	r.Destination(a, 2)
	p, tree := finish(t, r)

	e := newEngine(t, p, tree)
	data := []float64{3, 4, 1}
	_, err := e.ExecuteAll(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4, 13}, data)

	_, err = e.ExecuteAll(context.Background(), []float64{3, 4})
	assert.True(t, IsDataShapeError(err))
}

func TestExecuteAll_DirectMatchesOrdered(t *testing.T) {
	input := []float64{2, 3, 0, 1, 4}

	p, tree := branchyProgram(t)
	ordered := append([]float64(nil), input...)
	_, err := newEngine(t, p, tree).ExecuteAll(context.Background(), ordered)
	require.NoError(t, err)

	p, tree = branchyProgram(t, recorder.WithOrderedBuffers(false), recorder.WithOriginalCount(len(input)))
	direct := append([]float64(nil), input...)
	_, err = newEngine(t, p, tree).ExecuteAll(context.Background(), direct)
	require.NoError(t, err)

	assert.Equal(t, ordered, direct)
}

func TestExecuteAll_HoistingIsTransparent(t *testing.T) {
	inputs := [][]float64{
		{1, 2, 0, 0, 0},
		{3, 2, 0, 0, 0},
		{2, 2, 1, 10, 10},
		{-1.5, 0.5, 7, 0, 0},
	}

	for _, input := range inputs {
		p, tree := branchyProgram(t)
		plain := append([]float64(nil), input...)
		_, err := newEngine(t, p, tree).ExecuteAll(context.Background(), plain)
		require.NoError(t, err)

		p, tree = branchyProgram(t)
		before := tree.Len()
		n, err := hoist.Run(tree, 4)
		require.NoError(t, err)
		require.Positive(t, n)
		require.Greater(t, tree.Len(), before)

		hoisted := append([]float64(nil), input...)
		_, err = newEngine(t, p, tree).ExecuteAll(context.Background(), hoisted)
		require.NoError(t, err)

		assert.Equal(t, plain, hoisted, "input %v", input)
	}
}

func TestExecuteAll_BackendsAgree(t *testing.T) {
	input := []float64{0.1, 0.7, 0.3, 0, 0}

	p, tree := branchyProgram(t)
	interpreted := append([]float64(nil), input...)
	_, err := newEngine(t, p, tree).ExecuteAll(context.Background(), interpreted)
	require.NoError(t, err)

	p, tree = branchyProgram(t)
	compiled := append([]float64(nil), input...)
	e := newEngine(t, p, tree, WithBackend(backend.NewCompiled()), WithMinCompile(0))
	stats, err := e.ExecuteAll(context.Background(), compiled)
	require.NoError(t, err)

	require.Len(t, compiled, len(interpreted))
	for i := range interpreted {
		assert.Equal(t, math.Float64bits(interpreted[i]), math.Float64bits(compiled[i]), "index %d", i)
	}
	assert.Equal(t, stats.Leaves, stats.Compiled)
	assert.Zero(t, stats.Interpreted)
}

func TestExecuteAll_MinCompileFallsBackToInterpreter(t *testing.T) {
	p, tree := scatterProgram(t)
	e := newEngine(t, p, tree, WithBackend(backend.NewCompiled()), WithMinCompile(100))

	stats, err := e.ExecuteAll(context.Background(), []float64{1, 2, 0})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Interpreted)
	assert.Zero(t, stats.Compiled)
}

// accumulatorProgram sums data[0] and data[1] into one slot from two
// parallel chunks and writes the total to data[2].
func accumulatorProgram(t *testing.T) (*ir.Program, *chunk.Tree) {
	r := recorder.New(recorder.WithParallel(true))
	total := r.NewZero()
	r.StartChunk(true)
	a := r.NewSource(0)
	r.Increment(total, a)
	r.EndChunk()
	r.StartChunk(true)
	b := r.NewSource(1)
	r.Increment(total, b)
	r.EndChunk()
	r.Destination(total, 2)
	return finish(t, r)
}

func TestExecuteAll_ParallelSiblings(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		p, tree := accumulatorProgram(t)
		for _, id := range tree.Node(tree.Root).Children {
			n := tree.Node(id)
			if n.Kind == chunk.KindExplicit {
				require.Equal(t, chunk.AliasPrivate, n.Chunk.Alias.Mode)
			}
		}

		e := newEngine(t, p, tree, WithParallel(parallel))
		for run := 0; run < 3; run++ {
			data := []float64{3, 4, 10}
			stats, err := e.ExecuteAll(context.Background(), data)
			require.NoError(t, err)
			assert.Equal(t, []float64{3, 4, 17}, data)
			if parallel {
				assert.Equal(t, 1, stats.ParallelGroups)
			} else {
				assert.Zero(t, stats.ParallelGroups)
			}
			assert.Equal(t, 4, stats.Executed)
		}
	}
}

// conditionInGroupProgram compares in the first of two parallel chunks
// and tests the flag after the group: data[0] > data[1] before the group,
// data[0] < data[2] inside it.
func conditionInGroupProgram(t *testing.T) (*ir.Program, *chunk.Tree) {
	r := recorder.New(recorder.WithParallel(true))
	x := r.NewSource(0)
	y := r.NewSource(1)
	r.GreaterThan(x, y)
	r.StartChunk(true)
	a := r.NewSource(2)
	r.LessThan(x, a)
	r.EndChunk()
	r.StartChunk(true)
	r.Destination(y, 2)
	r.EndChunk()
	r.If()
	r.Destination(x, 3)
	r.EndIf()
	return finish(t, r)
}

func TestExecuteAll_ConditionLeavesGroupFromLastComparison(t *testing.T) {
	p, tree := conditionInGroupProgram(t)
	private := 0
	for _, id := range tree.Node(tree.Root).Children {
		if tree.Node(id).Chunk.Alias.Mode == chunk.AliasPrivate {
			private++
		}
	}
	require.Equal(t, 2, private)

	for _, parallel := range []bool{false, true} {
		e := newEngine(t, p, tree, WithParallel(parallel))

		data := []float64{5, 1, 0, 0}
		_, err := e.ExecuteAll(context.Background(), data)
		require.NoError(t, err)
		assert.Equal(t, []float64{5, 1, 1, 0}, data, "parallel=%v", parallel)

		data = []float64{5, 1, 9, 0}
		_, err = e.ExecuteAll(context.Background(), data)
		require.NoError(t, err)
		assert.Equal(t, []float64{5, 1, 10, 5}, data, "parallel=%v", parallel)
	}
}

func TestExecuteAll_ConditionSurvivesGroupWithoutComparison(t *testing.T) {
	p, tree := testutil.Record(t, func(r *recorder.Recorder) {
		x := r.NewSource(0)
		y := r.NewSource(1)
		r.GreaterThan(x, y)
		r.StartChunk(true)
		r.Destination(x, 2)
		r.EndChunk()
		r.StartChunk(true)
		r.Destination(y, 2)
		r.EndChunk()
		r.If()
		r.Destination(x, 3)
		r.EndIf()
	}, recorder.WithParallel(true))

	e := newEngine(t, p, tree, WithParallel(true))
	data := []float64{5, 1, 0, 0}
	_, err := e.ExecuteAll(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 1, 6, 5}, data)
}

func TestExecuteAll_RejectNaN(t *testing.T) {
	p, tree := scatterProgram(t)
	data := []float64{math.NaN(), 2, 0}

	_, err := newEngine(t, p, tree).ExecuteAll(context.Background(), data)
	require.NoError(t, err)

	_, err = newEngine(t, p, tree, WithRejectNaN(true)).ExecuteAll(context.Background(), []float64{math.NaN(), 2, 0})
	require.Error(t, err)
	assert.True(t, IsDataShapeError(err))
	assert.ErrorIs(t, err, ordered.ErrNaN)

	direct, dtree := testutil.Record(t, testutil.Scatter,
		recorder.WithOrderedBuffers(false), recorder.WithOriginalCount(3))
	_, err = newEngine(t, direct, dtree, WithRejectNaN(true)).ExecuteAll(context.Background(), []float64{1, math.NaN(), 0})
	assert.ErrorIs(t, err, ordered.ErrNaN)
}

func TestExecuteAll_ParallelScatter(t *testing.T) {
	p, tree := branchyProgram(t)
	serial := []float64{1, 2, 3, 4, 5}
	_, err := newEngine(t, p, tree).ExecuteAll(context.Background(), serial)
	require.NoError(t, err)

	p, tree = branchyProgram(t)
	split := []float64{1, 2, 3, 4, 5}
	_, err = newEngine(t, p, tree, WithScatterWorkers(4)).ExecuteAll(context.Background(), split)
	require.NoError(t, err)

	assert.Equal(t, serial, split)
}

func TestExecuteAll_CursorDrift(t *testing.T) {
	p, tree := guardedProgram(t)
	e := newEngine(t, p, tree)

	leaves := tree.Leaves()
	tree.Node(leaves[1]).Chunk.Sources.Start++

	data := []float64{5, 1, 0, 0}
	_, err := e.ExecuteAll(context.Background(), data)
	require.Error(t, err)
	assert.True(t, IsCursorDrift(err))
	assert.Equal(t, []float64{5, 1, 0, 0}, data)

	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, tree.Node(leaves[1]).Chunk.Commands.Start, re.Position)
}

func TestExecuteAll_DataShape(t *testing.T) {
	p, tree := scatterProgram(t)
	e := newEngine(t, p, tree)

	data := []float64{3, 4}
	_, err := e.ExecuteAll(context.Background(), data)
	assert.True(t, IsDataShapeError(err))
	assert.Equal(t, []float64{3, 4}, data)
}

func TestExecuteAll_Canceled(t *testing.T) {
	p, tree := scatterProgram(t)
	e := newEngine(t, p, tree)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.ExecuteAll(ctx, []float64{1, 2, 3})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecuteAll_DeterministicClock(t *testing.T) {
	p, tree := scatterProgram(t)
	clock := testutil.NewDeterministicClock()
	e := newEngine(t, p, tree, WithClock(clock), WithRunIDs(testutil.NewFixedRunID("")))

	stats, err := e.ExecuteAll(context.Background(), []float64{1, 2, 0})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Seq)
	assert.Equal(t, "test-run-default", stats.RunID)

	clock.Reset()
	stats, err = e.ExecuteAll(context.Background(), []float64{1, 2, 0})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Seq)
}

func TestExecuteAll_RunIdentity(t *testing.T) {
	p, tree := scatterProgram(t)
	e := newEngine(t, p, tree,
		WithClock(NewClockAt(10)),
		WithRunIDs(NewFixedGenerator("run-a", "run-b")),
	)

	s1, err := e.ExecuteAll(context.Background(), []float64{1, 2, 0})
	require.NoError(t, err)
	s2, err := e.ExecuteAll(context.Background(), []float64{1, 2, 0})
	require.NoError(t, err)

	assert.Equal(t, "run-a", s1.RunID)
	assert.Equal(t, int64(11), s1.Seq)
	assert.Equal(t, "run-b", s2.RunID)
	assert.Equal(t, int64(12), s2.Seq)
}

func TestNew_RejectsForeignTree(t *testing.T) {
	p, _ := scatterProgram(t)
	_, tree := scatterProgram(t)

	_, err := New(p, tree)
	assert.True(t, IsInvalidProgram(err))

	_, err = New(p, nil)
	assert.True(t, IsInvalidProgram(err))
}

func TestNew_Logs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	p, tree := scatterProgram(t)
	e := newEngine(t, p, tree, WithLogger(logger))
	_, err := e.ExecuteAll(context.Background(), []float64{1, 2, 0})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "engine ready")
	assert.Contains(t, buf.String(), "backend=interpreter")
	assert.Contains(t, buf.String(), "run finished")
}

func TestBuild_FromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.MaxChunk = 4
	cfg.MinCompile = 0

	r := recorder.New(RecorderOptions(cfg)...)
	x := r.NewSource(0)
	y := r.NewSource(1)
	r.GreaterThan(x, y)
	r.If()
	for i := 0; i < 6; i++ {
		r.Increment(x, y)
	}
	r.EndIf()
	r.Destination(x, 2)

	e, err := Compile(r, cfg)
	require.NoError(t, err)
	assert.Equal(t, "compiled", e.Backend().Name())
	assert.Greater(t, len(e.Tree().Leaves()), 1)

	data := []float64{3, 1, 0}
	stats, err := e.ExecuteAll(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1, 9}, data)
	assert.Positive(t, stats.Compiled)
	assert.Positive(t, stats.Gates)
}

func TestBuild_UnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = "gpu"
	p, tree := scatterProgram(t)

	_, err := Build(p, tree, cfg)
	assert.Error(t, err)
}
