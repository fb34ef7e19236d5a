package recorder

import (
	"log/slog"
	"math"

	"github.com/roach88/vstack/internal/chunk"
)

// DefaultMaxTape is the largest tape a recorder accepts unless configured
// otherwise. Positions are stored as int32 operands and in the store.
const DefaultMaxTape = math.MaxInt32

// Option configures a Recorder.
type Option func(*Recorder)

// WithOriginalCount sets the length of the shared array the program will
// run against. In direct mode the first n slots alias that array; in
// ordered mode n only bounds recorded indices (0 disables the check).
func WithOriginalCount(n int) Option {
	return func(r *Recorder) {
		r.originalCount = n
	}
}

// WithOrderedBuffers selects ordered-buffer mode (the default) or direct
// addressing of the shared array.
func WithOrderedBuffers(on bool) Option {
	return func(r *Recorder) {
		r.ordered = on
	}
}

// WithSlotReuse makes ExitScope rewind the allocator to the slot mark
// saved by the matching EnterScope.
//
// Default: enabled.
func WithSlotReuse(on bool) Option {
	return func(r *Recorder) {
		r.slotReuse = on
	}
}

// WithMaxTape bounds the tape length, including the leading Blank.
func WithMaxTape(n int) Option {
	return func(r *Recorder) {
		r.maxTape = n
	}
}

// WithLogger sets the logger used for recording diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMaxChildren bounds the number of sibling chunks under one parent.
func WithMaxChildren(n int) Option {
	return func(r *Recorder) {
		r.chunkOpts.MaxChildren = n
	}
}

// WithParallel enables the parallel-eligibility predicate for chunks
// started with StartChunk(true).
func WithParallel(on bool) Option {
	return func(r *Recorder) {
		r.chunkOpts.Parallel = on
	}
}

// WithLocalReuse enables per-leaf register renumbering in the chunk tree.
//
// Default: enabled.
func WithLocalReuse(on bool) Option {
	return func(r *Recorder) {
		r.chunkOpts.LocalReuse = on
	}
}

func defaultChunkOptions() chunk.Options { return chunk.DefaultOptions() }
