// Package ordered stages shared-array values for NextSource and collects
// NextDestination values for the additive scatter at the end of a run.
//
// Destinations are merged through an inverted index in CSR form: every
// distinct target owns the run of staging positions that feed it, in
// staging order. Each target is therefore written once, and disjoint
// target ranges can be scattered concurrently.
package ordered

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"
)

// ErrIndexOutOfRange is returned when a recorded index does not address
// the data array.
var ErrIndexOutOfRange = errors.New("ordered index out of range")

// ErrNaN is returned by Gather when RejectNaN is set and a source value
// is NaN.
var ErrNaN = errors.New("source value is NaN")

// Buffers is the ordered staging of one program. Sources and Dests are
// reused across runs.
//
// Thread-safety: Gather and Scatter must not run concurrently with each
// other or with execution. Execution may write disjoint Dests positions
// from several goroutines.
type Buffers struct {
	Sources []float64
	Dests   []float64

	// RejectNaN makes Gather fail on NaN source values.
	RejectNaN bool

	sourceIndex []int32
	maxIndex    int32

	// Inverted destination index.
	targets []int32
	offsets []int32
	order   []int32
}

// New builds the staging buffers and the inverted destination index for
// the given ordered index lists.
func New(sources, destinations []int32) (*Buffers, error) {
	b := &Buffers{
		Sources:     make([]float64, len(sources)),
		Dests:       make([]float64, len(destinations)),
		sourceIndex: sources,
		maxIndex:    -1,
	}
	for i, idx := range sources {
		if idx < 0 {
			return nil, fmt.Errorf("%w: source %d has index %d", ErrIndexOutOfRange, i, idx)
		}
		if idx > b.maxIndex {
			b.maxIndex = idx
		}
	}

	positions := make([]int32, len(destinations))
	for i, idx := range destinations {
		if idx < 0 {
			return nil, fmt.Errorf("%w: destination %d has index %d", ErrIndexOutOfRange, i, idx)
		}
		if idx > b.maxIndex {
			b.maxIndex = idx
		}
		positions[i] = int32(i)
	}
	sort.SliceStable(positions, func(i, j int) bool {
		return destinations[positions[i]] < destinations[positions[j]]
	})

	b.order = positions
	for i, p := range positions {
		target := destinations[p]
		if len(b.targets) == 0 || b.targets[len(b.targets)-1] != target {
			b.targets = append(b.targets, target)
			b.offsets = append(b.offsets, int32(i))
		}
	}
	b.offsets = append(b.offsets, int32(len(positions)))
	return b, nil
}

// Targets returns the number of distinct destination targets.
func (b *Buffers) Targets() int { return len(b.targets) }

func (b *Buffers) check(data []float64) error {
	if int(b.maxIndex) >= len(data) {
		return fmt.Errorf("%w: index %d with data length %d", ErrIndexOutOfRange, b.maxIndex, len(data))
	}
	return nil
}

// Gather fills Sources from data in recorded order and clears Dests.
func (b *Buffers) Gather(data []float64) error {
	if err := b.check(data); err != nil {
		return err
	}
	for i, idx := range b.sourceIndex {
		v := data[idx]
		if b.RejectNaN && math.IsNaN(v) {
			return fmt.Errorf("%w: source %d reads data[%d]", ErrNaN, i, idx)
		}
		b.Sources[i] = v
	}
	clear(b.Dests)
	return nil
}

// scatterRange adds the staged values of targets [lo, hi) into data.
func (b *Buffers) scatterRange(data []float64, lo, hi int) {
	for t := lo; t < hi; t++ {
		sum := data[b.targets[t]]
		for _, p := range b.order[b.offsets[t]:b.offsets[t+1]] {
			sum += b.Dests[p]
		}
		data[b.targets[t]] = sum
	}
}

// Scatter adds every staged destination value into data. Values for one
// target are added in staging order.
func (b *Buffers) Scatter(data []float64) error {
	if err := b.check(data); err != nil {
		return err
	}
	b.scatterRange(data, 0, len(b.targets))
	return nil
}

// ScatterParallel is Scatter split over up to workers goroutines, each
// owning a disjoint range of targets. The result is bit-identical to
// Scatter.
func (b *Buffers) ScatterParallel(ctx context.Context, data []float64, workers int) error {
	if err := b.check(data); err != nil {
		return err
	}
	n := len(b.targets)
	if workers <= 1 || n < 2 {
		b.scatterRange(data, 0, n)
		return nil
	}
	if workers > n {
		workers = n
	}

	g, ctx := errgroup.WithContext(ctx)
	per := (n + workers - 1) / workers
	for lo := 0; lo < n; lo += per {
		hi := min(lo+per, n)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b.scatterRange(data, lo, hi)
			return nil
		})
	}
	return g.Wait()
}
