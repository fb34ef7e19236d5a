package harness

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/vstack/internal/ir"
)

// Snapshot renders a result as deterministic text: the disassembled
// tape, the leaf layout and the outcome.
func Snapshot(name string, r *Result) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "scenario: %s\n", name)
	if r.Program != nil {
		b.WriteString("tape:\n")
		_ = ir.WriteDisassembly(&b, r.Program, ir.Range{Start: 0, End: r.Program.Len()})
	}
	if r.Tree != nil {
		b.WriteString("leaves:\n")
		for _, id := range r.Tree.Leaves() {
			n := r.Tree.Node(id)
			line := fmt.Sprintf("%s %s", n.Chunk.Commands, n.Kind)
			if n.Chunk.Parallel {
				line += " parallel"
			}
			b.WriteString(line + "\n")
		}
	}
	if r.Err != nil {
		fmt.Fprintf(&b, "error: %s\n", ErrorCode(r.Err))
		return b.Bytes()
	}
	fmt.Fprintf(&b, "output: %s\n", FormatValues(r.Output))
	fmt.Fprintf(&b, "stats: leaves=%d executed=%d skipped=%d partial=%d compiled=%d interpreted=%d\n",
		r.Stats.Leaves, r.Stats.Executed, r.Stats.Skipped, r.Stats.Partial, r.Stats.Compiled, r.Stats.Interpreted)
	return b.Bytes()
}

// FormatValues renders values space-separated in shortest round-trip
// form.
func FormatValues(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, opts...)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, Snapshot(scenario.Name, result))
	return result, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
