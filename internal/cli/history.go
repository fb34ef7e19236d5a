package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/vstack/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Program  string
	Limit    int
	Programs bool
}

// HistoryRun is one stored run.
type HistoryRun struct {
	ID           string `json:"id"`
	Program      string `json:"program"`
	Seq          int64  `json:"seq"`
	Backend      string `json:"backend"`
	Leaves       int    `json:"leaves"`
	Executed     int    `json:"executed"`
	Skipped      int    `json:"skipped"`
	Partial      int    `json:"partial"`
	Compiled     int    `json:"compiled"`
	Interpreted  int    `json:"interpreted"`
	OutputDigest string `json:"output_digest"`
}

// HistoryProgram summarizes one stored program.
type HistoryProgram struct {
	Fingerprint  string `json:"fingerprint"`
	TapeLen      int    `json:"tape_len"`
	StackSize    int    `json:"stack_size"`
	Ordered      bool   `json:"ordered"`
	Sources      int    `json:"sources"`
	Destinations int    `json:"destinations"`
	Runs         int    `json:"runs"`
}

// HistoryResult is the output of the history command. Exactly one of
// Runs and Programs is set.
type HistoryResult struct {
	Runs     []HistoryRun     `json:"runs,omitempty"`
	Programs []HistoryProgram `json:"programs,omitempty"`
}

func (r HistoryResult) String() string {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	if r.Programs != nil {
		if len(r.Programs) == 0 {
			return "No programs stored."
		}
		fmt.Fprintln(tw, "FINGERPRINT\tTAPE\tSTACK\tORDERED\tRUNS")
		for _, p := range r.Programs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", short(p.Fingerprint),
				formatCount(p.TapeLen), formatCount(p.StackSize), p.Ordered, formatCount(p.Runs))
		}
	} else {
		if len(r.Runs) == 0 {
			return "No runs stored."
		}
		fmt.Fprintln(tw, "SEQ\tPROGRAM\tBACKEND\tLEAVES\tEXECUTED\tSKIPPED\tPARTIAL\tOUTPUT")
		for _, run := range r.Runs {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n", run.Seq, short(run.Program), run.Backend,
				formatCount(run.Leaves), formatCount(run.Executed), formatCount(run.Skipped),
				formatCount(run.Partial), short(run.OutputDigest))
		}
	}
	_ = tw.Flush()
	return strings.TrimSuffix(b.String(), "\n")
}

// short abbreviates a hex digest for tables.
func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show stored programs and runs",
		Long: `List the runs recorded by 'vstack run --db', oldest first, or the
stored programs with --programs.

Example:
  vstack history --db ./vstack.db
  vstack history --db ./vstack.db --program 3fa2... --limit 10
  vstack history --db ./vstack.db --programs --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Program, "program", "", "only runs of this program fingerprint")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of runs (0 for all)")
	cmd.Flags().BoolVar(&opts.Programs, "programs", false, "list programs instead of runs")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	if _, err := os.Stat(opts.Database); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", opts.Database))
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := commandContext(cmd)
	var result HistoryResult
	if opts.Programs {
		programs, err := st.ListPrograms(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to list programs", err)
		}
		result.Programs = make([]HistoryProgram, len(programs))
		for i, p := range programs {
			result.Programs[i] = HistoryProgram(p)
		}
	} else {
		runs, err := st.ReadRuns(ctx, opts.Program, opts.Limit)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read runs", err)
		}
		result.Runs = make([]HistoryRun, len(runs))
		for i, r := range runs {
			result.Runs[i] = HistoryRun{
				ID:           r.ID,
				Program:      r.Program,
				Seq:          r.Seq,
				Backend:      r.Backend,
				Leaves:       r.Leaves,
				Executed:     r.Executed,
				Skipped:      r.Skipped,
				Partial:      r.Partial,
				Compiled:     r.Compiled,
				Interpreted:  r.Interpreted,
				OutputDigest: r.OutputDigest,
			}
		}
	}
	return opts.formatter(cmd).Success(result)
}
