package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/vstack/internal/codegen"
	"github.com/roach88/vstack/internal/hoist"
	"github.com/roach88/vstack/internal/ir"
)

// EmitOptions holds flags for the emit command.
type EmitOptions struct {
	*RootOptions
	Output  string
	Package string
}

// EmitResult is the output of the emit command.
type EmitResult struct {
	Scenario    string `json:"scenario"`
	Fingerprint string `json:"fingerprint"`
	File        string `json:"file,omitempty"`
	Leaves      int    `json:"leaves"`
	Functions   int    `json:"functions"`
	Code        string `json:"code,omitempty"`
}

func (r EmitResult) String() string {
	return fmt.Sprintf("Wrote %s: %s functions for %s leaves", r.File, formatCount(r.Functions), formatCount(r.Leaves))
}

// NewEmitCommand creates the emit command.
func NewEmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "emit <scenario.yaml>",
		Short: "Generate Go source for every leaf",
		Long: `Record the scenario program, hoist it when max_chunk is set, and emit
a Go file with one function per distinct leaf body.

Leaves with identical code share a function. Without --output the
source is written to stdout.

Example:
  vstack emit ./prog.yaml > kernels.go
  vstack emit -o ./kernels/leaves.go --package kernels ./prog.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmit(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().StringVar(&opts.Package, "package", "kernels", "package name of the emitted file")

	return cmd
}

func runEmit(opts *EmitOptions, path string, cmd *cobra.Command) error {
	l, err := loadProgram(opts.RootOptions, path, opts.logger(cmd.ErrOrStderr()), nil)
	if err != nil {
		return err
	}
	if l.cfg.MaxChunk > 0 {
		if _, err := hoist.Run(l.tree, l.cfg.MaxChunk); err != nil {
			return WrapExitError(ExitFailure, "hoisting failed", err)
		}
	}

	gen, err := codegen.Generate(l.program, l.tree, codegen.Options{Package: opts.Package})
	if err != nil {
		return WrapExitError(ExitFailure, "code generation failed", err)
	}

	result := EmitResult{
		Scenario:    l.scenario.Name,
		Fingerprint: ir.Fingerprint(l.program),
		File:        opts.Output,
		Leaves:      gen.Leaves,
		Functions:   gen.Functions,
	}
	if opts.Output == "" {
		if opts.Format == "json" {
			result.Code = gen.Code
			return opts.formatter(cmd).Success(result)
		}
		_, err := fmt.Fprint(cmd.OutOrStdout(), gen.Code)
		return err
	}

	if err := os.WriteFile(opts.Output, []byte(gen.Code), 0o644); err != nil {
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}
	return opts.formatter(cmd).Success(result)
}
