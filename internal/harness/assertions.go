package harness

import (
	"math"

	"github.com/roach88/vstack/internal/engine"
)

// statValue returns the counter named key.
func statValue(s engine.Stats, key string) int {
	switch key {
	case "leaves":
		return s.Leaves
	case "executed":
		return s.Executed
	case "skipped":
		return s.Skipped
	case "partial":
		return s.Partial
	case "compiled":
		return s.Compiled
	case "interpreted":
		return s.Interpreted
	case "gates":
		return s.Gates
	case "parallel_groups":
		return s.ParallelGroups
	}
	return -1
}

// check compares the result against the scenario expectations.
func check(s *Scenario, r *Result) {
	want := s.Expect
	if want.Error != "" {
		switch {
		case r.Err == nil:
			r.AddError("expected error %s, run succeeded", want.Error)
		case ErrorCode(r.Err) != want.Error:
			r.AddError("expected error %s, got %s", want.Error, r.Err)
		}
		return
	}
	if r.Err != nil {
		r.AddError("unexpected error: %s", r.Err)
		return
	}

	for i := range want.Output {
		// Bit patterns, so that -0 and NaN outputs can be expected exactly.
		if math.Float64bits(want.Output[i]) != math.Float64bits(r.Output[i]) {
			r.AddError("output[%d]: expected %v, got %v", i, want.Output[i], r.Output[i])
		}
	}
	for _, key := range sortedKeys(want.Stats) {
		if got := statValue(r.Stats, key); got != want.Stats[key] {
			r.AddError("stats.%s: expected %d, got %d", key, want.Stats[key], got)
		}
	}
}
