package store

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vstack/internal/chunk"
	"github.com/roach88/vstack/internal/engine"
	"github.com/roach88/vstack/internal/ir"
	"github.com/roach88/vstack/internal/recorder"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// recordChunked records a program with one nested and one parallel chunk.
func recordChunked(t *testing.T) (*ir.Program, *chunk.Tree) {
	t.Helper()
	r := recorder.New()
	r.Comment("load")
	x := r.NewSource(0)
	r.StartChunk(false)
	y := r.NewSource(1)
	r.StartChunk(true)
	r.Multiply(y, x)
	r.EndChunk()
	r.Destination(y, 2)
	r.EndChunk()
	r.StartChunk(true)
	r.Destination(x, 2)
	r.EndChunk()
	p, tree, err := r.Finish()
	require.NoError(t, err)
	return p, tree
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	for name, want := range map[string]string{
		"journal_mode": "wal",
		"foreign_keys": "1",
		"busy_timeout": "5000",
		"user_version": "1",
	} {
		got, err := s.pragma(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
}

func TestOpen_BusyTimeoutOption(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), WithBusyTimeout(250))
	require.NoError(t, err)
	defer s.Close()

	got, err := s.pragma("busy_timeout")
	require.NoError(t, err)
	assert.Equal(t, "250", got)
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.DB().Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion+1))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	got, err := s2.pragma("user_version")
	require.NoError(t, err)
	assert.Equal(t, "1", got)
}

func TestProgram_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	p, tree := recordChunked(t)

	fp, err := s.WriteProgram(ctx, p, tree)
	require.NoError(t, err)
	assert.Equal(t, ir.Fingerprint(p), fp)

	got, gotTree, err := s.ReadProgram(ctx, fp, tree.Options())
	require.NoError(t, err)

	assert.Equal(t, p.Tape, got.Tape)
	assert.Equal(t, p.Sources, got.Sources)
	assert.Equal(t, p.Destinations, got.Destinations)
	assert.Equal(t, p.StackSize, got.StackSize)
	assert.Equal(t, p.Comments, got.Comments)
	assert.Equal(t, p.Provenance, got.Provenance)
	assert.Equal(t, tree.Spans(), gotTree.Spans())
	assert.Equal(t, len(tree.Leaves()), len(gotTree.Leaves()))
}

func TestProgram_StoredProgramRuns(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	p, tree := recordChunked(t)

	want := []float64{2, 5, 1}
	e, err := engine.New(p, tree)
	require.NoError(t, err)
	_, err = e.ExecuteAll(ctx, want)
	require.NoError(t, err)

	fp, err := s.WriteProgram(ctx, p, tree)
	require.NoError(t, err)
	got, gotTree, err := s.ReadProgram(ctx, fp, chunk.DefaultOptions())
	require.NoError(t, err)

	data := []float64{2, 5, 1}
	e, err = engine.New(got, gotTree)
	require.NoError(t, err)
	_, err = e.ExecuteAll(ctx, data)
	require.NoError(t, err)

	assert.Equal(t, want, data)
	assert.Equal(t, []float64{2, 5, 13}, data)
}

func TestWriteProgram_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	p, tree := recordChunked(t)

	fp1, err := s.WriteProgram(ctx, p, tree)
	require.NoError(t, err)
	fp2, err := s.WriteProgram(ctx, p, tree)
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)

	programs, err := s.ListPrograms(ctx)
	require.NoError(t, err)
	require.Len(t, programs, 1)
	assert.Equal(t, ProgramInfo{
		Fingerprint:  fp1,
		TapeLen:      p.Len(),
		StackSize:    p.StackSize,
		Ordered:      true,
		Sources:      2,
		Destinations: 2,
	}, programs[0])
}

func TestReadProgram_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, _, err := s.ReadProgram(context.Background(), "missing", chunk.DefaultOptions())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadProgram_RejectsOtherOpcodeSet(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	p, tree := recordChunked(t)

	fp, err := s.WriteProgram(ctx, p, tree)
	require.NoError(t, err)

	body, err := cborEncMode.Marshal(programBody{OpcodeSet: ir.OpcodeSetVersion - 1, Program: p})
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, `UPDATE programs SET body = ? WHERE fingerprint = ?`, body, fp)
	require.NoError(t, err)

	_, _, err = s.ReadProgram(ctx, fp, chunk.DefaultOptions())
	assert.ErrorIs(t, err, ErrOpcodeSet)
}

func TestRuns_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	p, tree := recordChunked(t)

	fp, err := s.WriteProgram(ctx, p, tree)
	require.NoError(t, err)

	e, err := engine.New(p, tree, engine.WithRunIDs(engine.NewFixedGenerator("run-b", "run-a")))
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		data := []float64{2, 5, 1}
		stats, err := e.ExecuteAll(ctx, data)
		require.NoError(t, err)
		require.NoError(t, s.WriteRun(ctx, NewRun(fp, "interpreter", stats, data)))
	}

	runs, err := s.ReadRuns(ctx, fp, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-b", runs[0].ID)
	assert.Equal(t, int64(1), runs[0].Seq)
	assert.Equal(t, "run-a", runs[1].ID)
	assert.Equal(t, runs[0].OutputDigest, runs[1].OutputDigest)
	assert.Equal(t, ir.EngineVersion, runs[0].Engine)

	limited, err := s.ReadRuns(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "run-b", limited[0].ID)

	seq, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq)

	programs, err := s.ListPrograms(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, programs[0].Runs)
}

func TestWriteRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	p, tree := recordChunked(t)
	fp, err := s.WriteProgram(ctx, p, tree)
	require.NoError(t, err)

	run := Run{ID: "r1", Program: fp, Seq: 1, Backend: "interpreter", OutputDigest: OutputDigest(nil), Engine: ir.EngineVersion}
	require.NoError(t, s.WriteRun(ctx, run))
	require.NoError(t, s.WriteRun(ctx, run))

	runs, err := s.ReadRuns(ctx, fp, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestWriteRun_RequiresProgram(t *testing.T) {
	s := createTestStore(t)

	err := s.WriteRun(context.Background(), Run{ID: "r1", Program: "missing", Seq: 1, Backend: "interpreter"})
	assert.Error(t, err)
}

func TestLastSeq_Empty(t *testing.T) {
	s := createTestStore(t)

	seq, err := s.LastSeq(context.Background())
	require.NoError(t, err)
	assert.Zero(t, seq)

	runs, err := s.ReadRuns(context.Background(), "", 0)
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestOutputDigest(t *testing.T) {
	a := OutputDigest([]float64{1, 2, 3})
	assert.Len(t, a, 64)
	assert.Equal(t, a, OutputDigest([]float64{1, 2, 3}))
	assert.NotEqual(t, a, OutputDigest([]float64{1, 2, 3.0000001}))
	assert.NotEqual(t, OutputDigest([]float64{0}), OutputDigest([]float64{math.Copysign(0, -1)}))
}
