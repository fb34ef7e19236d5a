package store

import (
	"context"
	"fmt"

	"github.com/roach88/vstack/internal/chunk"
	"github.com/roach88/vstack/internal/engine"
	"github.com/roach88/vstack/internal/ir"
)

// Run is one stored execution.
type Run struct {
	ID      string
	Program string
	Seq     int64
	Backend string

	Leaves      int
	Executed    int
	Skipped     int
	Partial     int
	Compiled    int
	Interpreted int

	OutputDigest string
	Engine       string
}

// NewRun builds the record for a finished ExecuteAll. output is the array
// after the run.
func NewRun(program, backend string, stats engine.Stats, output []float64) Run {
	return Run{
		ID:           stats.RunID,
		Program:      program,
		Seq:          stats.Seq,
		Backend:      backend,
		Leaves:       stats.Leaves,
		Executed:     stats.Executed,
		Skipped:      stats.Skipped,
		Partial:      stats.Partial,
		Compiled:     stats.Compiled,
		Interpreted:  stats.Interpreted,
		OutputDigest: OutputDigest(output),
		Engine:       ir.EngineVersion,
	}
}

// WriteProgram stores p with the declared chunks of tree and returns its
// fingerprint. Uses ON CONFLICT(fingerprint) DO NOTHING: the first layout
// stored for a fingerprint is kept.
func (s *Store) WriteProgram(ctx context.Context, p *ir.Program, tree *chunk.Tree) (string, error) {
	var spans []chunk.Span
	if tree != nil {
		spans = tree.Spans()
	}
	body, err := marshalProgram(p, spans)
	if err != nil {
		return "", fmt.Errorf("write program: %w", err)
	}

	fp := ir.Fingerprint(p)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO programs
		(fingerprint, opcode_set, tape_len, stack_size, ordered, sources, destinations, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO NOTHING
	`,
		fp,
		ir.OpcodeSetVersion,
		p.Len(),
		p.StackSize,
		p.Ordered,
		len(p.Sources),
		len(p.Destinations),
		body,
	)
	if err != nil {
		return "", fmt.Errorf("write program: %w", err)
	}
	return fp, nil
}

// WriteRun inserts a run record. The program must already be stored.
// Duplicate run ids are silently ignored.
func (s *Store) WriteRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, program, seq, backend, leaves, executed, skipped, partial, compiled, interpreted, output_digest, engine)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		r.ID,
		r.Program,
		r.Seq,
		r.Backend,
		r.Leaves,
		r.Executed,
		r.Skipped,
		r.Partial,
		r.Compiled,
		r.Interpreted,
		r.OutputDigest,
		r.Engine,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}
