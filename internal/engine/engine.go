package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/roach88/vstack/internal/backend"
	"github.com/roach88/vstack/internal/chunk"
	"github.com/roach88/vstack/internal/ir"
	"github.com/roach88/vstack/internal/ordered"
)

// DefaultMinCompile is the shortest segment handed to the configured
// backend. Shorter segments always use the interpreter.
const DefaultMinCompile = 16

// Stats summarizes one ExecuteAll.
type Stats struct {
	RunID string `json:"run_id,omitempty"`
	Seq   int64  `json:"seq"`

	Leaves         int `json:"leaves"`
	Executed       int `json:"executed"`
	Skipped        int `json:"skipped"`
	Partial        int `json:"partial"`
	Compiled       int `json:"compiled"`
	Interpreted    int `json:"interpreted"`
	Gates          int `json:"gates"`
	ParallelGroups int `json:"parallel_groups"`
}

func (s *Stats) add(o Stats) {
	s.Executed += o.Executed
	s.Skipped += o.Skipped
	s.Partial += o.Partial
	s.Compiled += o.Compiled
	s.Interpreted += o.Interpreted
	s.Gates += o.Gates
	s.ParallelGroups += o.ParallelGroups
}

// Engine runs one finalized chunk tree against shared arrays.
//
// Thread-safety: ExecuteAll calls are serialized by the engine; the
// program and tree must not be modified while the engine is in use.
type Engine struct {
	program *ir.Program
	tree    *chunk.Tree
	buffers *ordered.Buffers

	backend    backend.Backend
	interp     *backend.Interpreter
	minCompile int
	parallel   bool
	workers    int

	clock  Sequencer
	ids    RunIDGenerator
	logger *slog.Logger
	leaves int

	// snapshots holds, per private node, the parent values of its
	// AccumulateOut slots taken at copy-in.
	snapshots map[chunk.NodeID][]float64

	mu sync.Mutex
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithBackend sets the backend used for segments of at least the minimum
// compile length.
//
// Default: the interpreter.
func WithBackend(b backend.Backend) EngineOption {
	return func(e *Engine) {
		if b != nil {
			e.backend = b
		}
	}
}

// WithMinCompile sets the shortest segment handed to the configured
// backend.
//
// Default: 16 instructions (DefaultMinCompile).
func WithMinCompile(n int) EngineOption {
	return func(e *Engine) {
		e.minCompile = n
	}
}

// WithParallel runs parallel-eligible siblings on separate goroutines.
// Without it they still use private stacks but run one after another.
func WithParallel(on bool) EngineOption {
	return func(e *Engine) {
		e.parallel = on
	}
}

// WithRejectNaN makes ExecuteAll fail with a data shape error when a
// value the program reads from the data array is NaN.
func WithRejectNaN(on bool) EngineOption {
	return func(e *Engine) {
		e.buffers.RejectNaN = on
	}
}

// WithScatterWorkers splits the destination scatter over n goroutines.
func WithScatterWorkers(n int) EngineOption {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithLogger sets the logger for run diagnostics.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock sets the clock that numbers runs. Use NewClockAt to continue
// after persisted runs.
func WithClock(c Sequencer) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithRunIDs sets the generator that names runs.
//
// Default: UUIDv7Generator.
func WithRunIDs(g RunIDGenerator) EngineOption {
	return func(e *Engine) {
		if g != nil {
			e.ids = g
		}
	}
}

// New validates the program and tree and prepares the ordered buffers.
func New(p *ir.Program, tree *chunk.Tree, opts ...EngineOption) (*Engine, error) {
	if tree == nil || tree.Program != p {
		return nil, newInvalidProgramError(fmt.Errorf("tree does not belong to the program"))
	}
	if err := p.Validate(); err != nil {
		return nil, newInvalidProgramError(err)
	}
	if err := tree.CheckPartition(); err != nil {
		return nil, newInvalidProgramError(err)
	}

	var srcs, dsts []int32
	if p.Ordered {
		srcs, dsts = p.Sources, p.Destinations
	}
	buffers, err := ordered.New(srcs, dsts)
	if err != nil {
		return nil, newInvalidProgramError(err)
	}

	interp := backend.NewInterpreter()
	e := &Engine{
		program:    p,
		tree:       tree,
		buffers:    buffers,
		backend:    interp,
		interp:     interp,
		minCompile: DefaultMinCompile,
		clock:      NewClock(),
		ids:        UUIDv7Generator{},
		logger:     slog.New(slog.DiscardHandler),
		leaves:     len(tree.Leaves()),
		snapshots:  make(map[chunk.NodeID][]float64),
	}
	for _, opt := range opts {
		opt(e)
	}

	for i := range tree.Nodes {
		n := &tree.Nodes[i]
		if n.Chunk.Alias.Mode == chunk.AliasPrivate {
			e.snapshots[n.ID] = make([]float64, len(n.Chunk.Alias.AccumulateOut))
		}
	}

	e.logger.Debug("engine ready",
		"tape_len", p.Len(),
		"leaves", e.leaves,
		"backend", e.backend.Name(),
		"min_compile", e.minCompile,
		"parallel", e.parallel,
	)
	return e, nil
}

// Program returns the program the engine runs.
func (e *Engine) Program() *ir.Program { return e.program }

// Tree returns the chunk tree the engine walks.
func (e *Engine) Tree() *chunk.Tree { return e.tree }

// Backend returns the configured backend.
func (e *Engine) Backend() backend.Backend { return e.backend }

// ExecuteAll runs the program once against data.
//
// In ordered mode data is read while staging and written only by the
// final scatter, which adds every staged destination into its target. In
// direct mode the first OriginalCount values are copied onto the root
// stack and copied back after the walk. On error data is left untouched.
func (e *Engine) ExecuteAll(ctx context.Context, data []float64) (Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := Stats{Leaves: e.leaves}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	p := e.program
	if len(data) < p.OriginalCount {
		return stats, newDataShapeError(nil, "data has %d values, program addresses %d", len(data), p.OriginalCount)
	}
	if err := e.buffers.Gather(data); err != nil {
		return stats, newDataShapeError(err, "staging ordered sources")
	}
	if e.buffers.RejectNaN && !p.Ordered {
		for i, v := range data[:p.OriginalCount] {
			if math.IsNaN(v) {
				return stats, newDataShapeError(ordered.ErrNaN, "data[%d]", i)
			}
		}
	}
	for _, buf := range e.tree.Buffers {
		clear(buf)
	}
	root := e.tree.Buffers[e.tree.Node(e.tree.Root).Chunk.Alias.Buffer]
	copy(root[:p.OriginalCount], data)

	w := &walker{
		e:   e,
		ctx: ctx,
		f:   backend.Frame{Sources: e.buffers.Sources, Dests: e.buffers.Dests},
	}
	if err := w.visit(e.tree.Root); err != nil {
		stats.add(w.stats)
		return stats, err
	}
	stats.add(w.stats)
	if w.f.Src != len(p.Sources) || w.f.Dst != len(p.Destinations) {
		return stats, NewCursorDriftError(p.Len(), w.f.Src, len(p.Sources), w.f.Dst, len(p.Destinations))
	}

	if p.Ordered {
		var err error
		if e.workers > 1 {
			err = e.buffers.ScatterParallel(ctx, data, e.workers)
		} else {
			err = e.buffers.Scatter(data)
		}
		if err != nil {
			return stats, newDataShapeError(err, "scattering destinations")
		}
	} else {
		copy(data, root[:p.OriginalCount])
	}

	stats.Seq = e.clock.Next()
	stats.RunID = e.ids.Generate()
	e.logger.Debug("run finished",
		"run_id", stats.RunID,
		"seq", stats.Seq,
		"executed", stats.Executed,
		"skipped", stats.Skipped,
		"partial", stats.Partial,
		"compiled", stats.Compiled,
	)
	return stats, nil
}
