package engine

import (
	"fmt"

	"github.com/roach88/vstack/internal/backend"
	"github.com/roach88/vstack/internal/chunk"
	"github.com/roach88/vstack/internal/config"
	"github.com/roach88/vstack/internal/hoist"
	"github.com/roach88/vstack/internal/ir"
	"github.com/roach88/vstack/internal/recorder"
)

// RecorderOptions translates cfg into recorder options.
func RecorderOptions(cfg config.Config) []recorder.Option {
	return []recorder.Option{
		recorder.WithOrderedBuffers(cfg.Ordered),
		recorder.WithSlotReuse(cfg.SlotReuse),
		recorder.WithLocalReuse(cfg.LocalReuse),
		recorder.WithParallel(cfg.Parallel),
		recorder.WithMaxTape(cfg.MaxTape),
	}
}

// Compile finishes rec and builds an engine for the result.
func Compile(rec *recorder.Recorder, cfg config.Config, opts ...EngineOption) (*Engine, error) {
	p, tree, err := rec.Finish()
	if err != nil {
		return nil, err
	}
	return Build(p, tree, cfg, opts...)
}

// Build hoists tree when cfg.MaxChunk is positive, selects the configured
// backend and creates the engine. Options in opts override cfg.
func Build(p *ir.Program, tree *chunk.Tree, cfg config.Config, opts ...EngineOption) (*Engine, error) {
	if cfg.MaxChunk > 0 {
		if _, err := hoist.Run(tree, cfg.MaxChunk); err != nil {
			return nil, fmt.Errorf("hoisting: %w", err)
		}
	}
	b, err := backend.Select(cfg.Backend)
	if err != nil {
		return nil, err
	}
	base := []EngineOption{
		WithBackend(b),
		WithMinCompile(cfg.MinCompile),
		WithParallel(cfg.Parallel),
		WithScatterWorkers(cfg.ScatterWorkers),
	}
	return New(p, tree, append(base, opts...)...)
}
