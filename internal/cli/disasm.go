package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/vstack/internal/chunk"
	"github.com/roach88/vstack/internal/ir"
)

// DisasmOptions holds flags for the disasm command.
type DisasmOptions struct {
	*RootOptions
	Start  int
	End    int
	Leaves bool
}

// LeafInfo describes one leaf of the chunk tree.
type LeafInfo struct {
	Commands     string `json:"commands"`
	Sources      string `json:"sources"`
	Destinations string `json:"destinations"`
	Kind         string `json:"kind"`
	Parallel     bool   `json:"parallel,omitempty"`
}

// DisasmResult is the output of the disasm command.
type DisasmResult struct {
	Scenario    string     `json:"scenario"`
	Fingerprint string     `json:"fingerprint"`
	TapeLen     int        `json:"tape_len"`
	Range       string     `json:"range"`
	Lines       []string   `json:"lines"`
	Leaves      []LeafInfo `json:"leaves,omitempty"`
}

func (r DisasmResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "; %s %s tape_len=%d range=%s\n", r.Scenario, r.Fingerprint, r.TapeLen, r.Range)
	b.WriteString(strings.Join(r.Lines, "\n"))
	if len(r.Leaves) > 0 {
		b.WriteString("\n; leaves")
		for _, l := range r.Leaves {
			fmt.Fprintf(&b, "\n; %s %s src=%s dst=%s", l.Commands, l.Kind, l.Sources, l.Destinations)
			if l.Parallel {
				b.WriteString(" parallel")
			}
		}
	}
	return b.String()
}

// NewDisasmCommand creates the disasm command.
func NewDisasmCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DisasmOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "disasm <scenario.yaml>",
		Short: "Print the recorded tape",
		Long: `Record the scenario program and print its instruction tape, one
instruction per line, indented by bracket depth.

Example:
  vstack disasm ./scenarios/guarded.yaml
  vstack disasm --start 4 --end 9 --leaves ./scenarios/guarded.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDisasm(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Start, "start", 0, "first tape position")
	cmd.Flags().IntVar(&opts.End, "end", -1, "tape position after the last one printed (default: tape end)")
	cmd.Flags().BoolVar(&opts.Leaves, "leaves", false, "also print the leaf layout")

	return cmd
}

func runDisasm(opts *DisasmOptions, path string, cmd *cobra.Command) error {
	l, err := loadProgram(opts.RootOptions, path, opts.logger(cmd.ErrOrStderr()), nil)
	if err != nil {
		return err
	}

	r := ir.Range{Start: opts.Start, End: opts.End}
	if r.End < 0 {
		r.End = l.program.Len()
	}
	if r.Start < 0 || r.Start > r.End || r.End > l.program.Len() {
		return NewExitError(ExitCommandError, fmt.Sprintf("range %s outside tape [0,%d)", r, l.program.Len()))
	}

	result := DisasmResult{
		Scenario:    l.scenario.Name,
		Fingerprint: ir.Fingerprint(l.program),
		TapeLen:     l.program.Len(),
		Range:       r.String(),
		Lines:       strings.Split(strings.TrimSuffix(ir.Disassemble(l.program, r), "\n"), "\n"),
	}
	if opts.Leaves {
		result.Leaves = leafInfos(l.tree)
	}
	return opts.formatter(cmd).Success(result)
}

func leafInfos(t *chunk.Tree) []LeafInfo {
	leaves := t.Leaves()
	out := make([]LeafInfo, len(leaves))
	for i, id := range leaves {
		n := t.Node(id)
		out[i] = LeafInfo{
			Commands:     n.Chunk.Commands.String(),
			Sources:      n.Chunk.Sources.String(),
			Destinations: n.Chunk.Destinations.String(),
			Kind:         n.Kind.String(),
			Parallel:     n.Chunk.Parallel,
		}
	}
	return out
}
