package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/vstack/internal/chunk"
	"github.com/roach88/vstack/internal/hoist"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	MaxChunk int
}

// PlanEntry is one bracket selected for extraction.
type PlanEntry struct {
	Leaf  int    `json:"leaf"`
	Kind  string `json:"kind"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// PlanResult is the output of the plan command.
type PlanResult struct {
	Scenario     string      `json:"scenario"`
	MaxChunk     int         `json:"max_chunk"`
	FirstPass    []PlanEntry `json:"first_pass"`
	Split        int         `json:"split"`
	LeavesBefore int         `json:"leaves_before"`
	LeavesAfter  int         `json:"leaves_after"`
	Gates        int         `json:"gates"`
	Layout       []LeafInfo  `json:"layout"`
}

func (r PlanResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scenario:  %s\n", r.Scenario)
	fmt.Fprintf(&b, "Max chunk: %s\n", formatCount(r.MaxChunk))
	if len(r.FirstPass) == 0 {
		b.WriteString("No leaf needs hoisting.\n")
	}
	for _, e := range r.FirstPass {
		fmt.Fprintf(&b, "  leaf %d: %s [%d,%d) len=%d\n", e.Leaf, e.Kind, e.Start, e.End, e.End-e.Start)
	}
	fmt.Fprintf(&b, "Split %s leaves: %s -> %s leaves, %s gates\n",
		formatCount(r.Split), formatCount(r.LeavesBefore), formatCount(r.LeavesAfter), formatCount(r.Gates))
	for _, l := range r.Layout {
		fmt.Fprintf(&b, "  %s %s\n", l.Commands, l.Kind)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <scenario.yaml>",
		Short: "Show how long leaves are hoisted",
		Long: `Record the scenario program and show the hoisting plan: the bracket
chosen in every leaf longer than the maximum chunk length, and the leaf
layout after hoisting reaches its fixed point.

Example:
  vstack plan --max-chunk 64 ./prog.yaml
  vstack plan --format json ./prog.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.MaxChunk, "max-chunk", 0, "maximum leaf length (default: max_chunk from config)")

	return cmd
}

func runPlan(opts *PlanOptions, path string, cmd *cobra.Command) error {
	logger := opts.logger(cmd.ErrOrStderr())
	l, err := loadProgram(opts.RootOptions, path, logger, nil)
	if err != nil {
		return err
	}

	limit := opts.MaxChunk
	if limit <= 0 {
		limit = l.cfg.MaxChunk
	}
	if limit <= 0 {
		return NewExitError(ExitCommandError, "hoisting is disabled: set --max-chunk or max_chunk in the config")
	}

	result := PlanResult{
		Scenario:     l.scenario.Name,
		MaxChunk:     limit,
		FirstPass:    []PlanEntry{},
		LeavesBefore: len(l.tree.Leaves()),
	}
	for _, e := range hoist.Plan(l.tree, limit) {
		result.FirstPass = append(result.FirstPass, PlanEntry{Leaf: int(e.Leaf), Kind: e.Kind.String(), Start: e.Start, End: e.End})
	}

	result.Split, err = hoist.Run(l.tree, limit)
	if err != nil {
		return WrapExitError(ExitFailure, "hoisting failed", err)
	}
	logger.Info("hoisted", "plan", len(result.FirstPass), "split", result.Split)

	result.LeavesAfter = len(l.tree.Leaves())
	l.tree.Walk(func(n *chunk.Node) bool {
		if n.IsGate() {
			result.Gates++
		}
		return true
	})
	result.Layout = leafInfos(l.tree)
	return opts.formatter(cmd).Success(result)
}
