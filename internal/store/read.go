package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/vstack/internal/chunk"
	"github.com/roach88/vstack/internal/ir"
)

var (
	// ErrNotFound is returned when no program matches a fingerprint.
	ErrNotFound = errors.New("not found")

	// ErrOpcodeSet is returned for programs recorded with a different
	// opcode set version.
	ErrOpcodeSet = errors.New("unsupported opcode set")
)

// ProgramInfo summarizes a stored program without decoding its body.
type ProgramInfo struct {
	Fingerprint  string
	TapeLen      int
	StackSize    int
	Ordered      bool
	Sources      int
	Destinations int
	Runs         int
}

// ReadProgram loads a program and rebuilds its chunk tree from the stored
// spans with opts. The returned tree is finalized but not hoisted.
func (s *Store) ReadProgram(ctx context.Context, fingerprint string, opts chunk.Options) (*ir.Program, *chunk.Tree, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM programs WHERE fingerprint = ?`, fingerprint).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("program %s: %w", fingerprint, ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read program: %w", err)
	}

	p, spans, err := unmarshalProgram(body)
	if err != nil {
		return nil, nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, nil, fmt.Errorf("read program %s: %w", fingerprint, err)
	}
	if got := ir.Fingerprint(p); got != fingerprint {
		return nil, nil, fmt.Errorf("read program: body fingerprint %s does not match key %s", got, fingerprint)
	}
	tree, err := chunk.BuildFromSpans(p, spans, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("read program %s: %w", fingerprint, err)
	}
	return p, tree, nil
}

// ListPrograms returns every stored program ordered by fingerprint.
func (s *Store) ListPrograms(ctx context.Context) ([]ProgramInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.fingerprint, p.tape_len, p.stack_size, p.ordered, p.sources, p.destinations,
		       (SELECT COUNT(*) FROM runs r WHERE r.program = p.fingerprint)
		FROM programs p
		ORDER BY p.fingerprint COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query programs: %w", err)
	}
	defer rows.Close()

	programs := []ProgramInfo{}
	for rows.Next() {
		var info ProgramInfo
		if err := rows.Scan(&info.Fingerprint, &info.TapeLen, &info.StackSize, &info.Ordered,
			&info.Sources, &info.Destinations, &info.Runs); err != nil {
			return nil, fmt.Errorf("scan program: %w", err)
		}
		programs = append(programs, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate programs: %w", err)
	}
	return programs, nil
}

// ReadRuns returns the runs of a program, oldest first. An empty
// fingerprint returns runs of every program. limit <= 0 means no limit.
//
// Returns an empty slice (not nil) if no runs exist.
func (s *Store) ReadRuns(ctx context.Context, fingerprint string, limit int) ([]Run, error) {
	query := `
		SELECT id, program, seq, backend, leaves, executed, skipped, partial,
		       compiled, interpreted, output_digest, engine
		FROM runs
		WHERE (? = '' OR program = ?)
		ORDER BY seq ASC, id COLLATE BINARY ASC`
	args := []any{fingerprint, fingerprint}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Program, &r.Seq, &r.Backend, &r.Leaves, &r.Executed,
			&r.Skipped, &r.Partial, &r.Compiled, &r.Interpreted, &r.OutputDigest, &r.Engine); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LastSeq returns the highest stored run seq, or 0 for an empty store.
// Pass it to engine.NewClockAt to keep numbering monotonic across
// processes.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM runs`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("read last seq: %w", err)
	}
	return seq.Int64, nil
}
