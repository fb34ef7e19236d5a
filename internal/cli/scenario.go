package cli

import (
	"log/slog"

	"github.com/roach88/vstack/internal/chunk"
	"github.com/roach88/vstack/internal/config"
	"github.com/roach88/vstack/internal/harness"
	"github.com/roach88/vstack/internal/ir"
)

// loaded is a recorded scenario with its effective configuration.
type loaded struct {
	scenario *harness.Scenario
	cfg      config.Config
	program  *ir.Program
	tree     *chunk.Tree
}

// loadProgram reads a scenario file and records its program. The config
// is the --config file overlaid with the scenario settings; override,
// if set, runs last for command flags.
func loadProgram(opts *RootOptions, path string, logger *slog.Logger, override func(*config.Config)) (*loaded, error) {
	base, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	s, err := harness.LoadScenario(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	cfg := s.Settings.Apply(base)
	if override != nil {
		override(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}

	p, tree, err := harness.Record(s, cfg, logger)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "recording failed", err)
	}
	logger.Info("program recorded", "scenario", s.Name, "tape_len", p.Len(), "leaves", len(tree.Leaves()))
	return &loaded{scenario: s, cfg: cfg, program: p, tree: tree}, nil
}
