package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/vstack/internal/config"
	"github.com/roach88/vstack/internal/engine"
	"github.com/roach88/vstack/internal/harness"
	"github.com/roach88/vstack/internal/ir"
	"github.com/roach88/vstack/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Backend  string
	MaxChunk int
	Repeat   int

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// RunResult is the output of the run command.
type RunResult struct {
	Scenario    string         `json:"scenario"`
	Fingerprint string         `json:"fingerprint"`
	Backend     string         `json:"backend"`
	Output      []float64      `json:"output"`
	Runs        []engine.Stats `json:"runs"`
}

func (r RunResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scenario:    %s\n", r.Scenario)
	fmt.Fprintf(&b, "Fingerprint: %s\n", r.Fingerprint)
	fmt.Fprintf(&b, "Backend:     %s\n", r.Backend)
	for _, s := range r.Runs {
		fmt.Fprintf(&b, "Run %s: leaves=%s executed=%s skipped=%s partial=%s compiled=%s interpreted=%s\n",
			formatCount(int(s.Seq)), formatCount(s.Leaves), formatCount(s.Executed), formatCount(s.Skipped),
			formatCount(s.Partial), formatCount(s.Compiled), formatCount(s.Interpreted))
	}
	fmt.Fprintf(&b, "Output:      %s", harness.FormatValues(r.Output))
	return b.String()
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Record a program and run it against the scenario data",
		Long: `Record the scenario program once, build its chunk tree and run it
against a fresh copy of the scenario data.

With --db the program is stored by content fingerprint and every run is
appended to the run history.

Example:
  vstack run ./scenarios/guarded.yaml
  vstack run --db ./vstack.db --repeat 3 ./scenarios/guarded.yaml
  vstack run --backend interpreter --max-chunk 64 ./prog.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database for program and run history")
	cmd.Flags().StringVar(&opts.Backend, "backend", "", "execution backend (compiled|interpreter)")
	cmd.Flags().IntVar(&opts.MaxChunk, "max-chunk", -1, "hoist leaves longer than this (0 disables)")
	cmd.Flags().IntVar(&opts.Repeat, "repeat", 1, "number of runs")

	return cmd
}

func runProgram(opts *RunOptions, path string, cmd *cobra.Command) error {
	if opts.Repeat < 1 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--repeat must be at least 1, got %d", opts.Repeat))
	}
	logger := opts.logger(cmd.ErrOrStderr())

	l, err := loadProgram(opts.RootOptions, path, logger, func(cfg *config.Config) {
		if opts.Backend != "" {
			cfg.Backend = opts.Backend
		}
		if opts.MaxChunk >= 0 {
			cfg.MaxChunk = opts.MaxChunk
		}
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runIDs := opts.RunIDs
	if runIDs == nil {
		runIDs = engine.UUIDv7Generator{}
	}
	engineOpts := []engine.EngineOption{
		engine.WithLogger(logger),
		engine.WithRunIDs(runIDs),
	}

	fingerprint := ir.Fingerprint(l.program)
	var st *store.Store
	if opts.Database != "" {
		st, err = store.Open(opts.Database, store.WithLogger(logger))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()

		// The tree is stored before hoisting mutates it.
		if fingerprint, err = st.WriteProgram(ctx, l.program, l.tree); err != nil {
			return WrapExitError(ExitFailure, "failed to store program", err)
		}
		last, err := st.LastSeq(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read run history", err)
		}
		engineOpts = append(engineOpts, engine.WithClock(engine.NewClockAt(last)))
	}

	e, err := engine.Build(l.program, l.tree, l.cfg, engineOpts...)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to build engine", err)
	}

	result := RunResult{
		Scenario:    l.scenario.Name,
		Fingerprint: fingerprint,
		Backend:     e.Backend().Name(),
	}
	for i := 0; i < opts.Repeat; i++ {
		data := append([]float64(nil), l.scenario.Data...)
		stats, err := e.ExecuteAll(ctx, data)
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("run %d failed", i+1), err)
		}
		if st != nil {
			if err := st.WriteRun(ctx, store.NewRun(fingerprint, result.Backend, stats, data)); err != nil {
				return WrapExitError(ExitFailure, "failed to store run", err)
			}
		}
		result.Output = data
		result.Runs = append(result.Runs, stats)
	}

	return opts.formatter(cmd).Success(result)
}

// commandContext returns the command's context or a background one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
