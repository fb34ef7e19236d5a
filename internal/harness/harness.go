package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/vstack/internal/chunk"
	"github.com/roach88/vstack/internal/config"
	"github.com/roach88/vstack/internal/engine"
	"github.com/roach88/vstack/internal/ir"
	"github.com/roach88/vstack/internal/recorder"
	"github.com/roach88/vstack/internal/testutil"
)

// Result is the outcome of one scenario.
type Result struct {
	// Pass is true when every expectation matched.
	Pass bool `json:"pass"`

	// Errors lists the failed expectations.
	Errors []string `json:"errors,omitempty"`

	// Output is the array after the run, nil if it did not complete.
	Output []float64 `json:"output,omitempty"`

	Stats engine.Stats `json:"stats"`

	// Err is the recording or run error, if any.
	Err error `json:"-"`

	Program *ir.Program `json:"-"`
	Tree    *chunk.Tree `json:"-"`
}

// AddError adds a failed expectation and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Option configures Run.
type Option func(*harness)

// WithConfig sets the configuration scenario settings are applied to.
//
// Default: config.Default().
func WithConfig(cfg config.Config) Option {
	return func(h *harness) {
		h.base = cfg
	}
}

// WithLogger sets the logger passed to the recorder and engine.
func WithLogger(l *slog.Logger) Option {
	return func(h *harness) {
		if l != nil {
			h.logger = l
		}
	}
}

type harness struct {
	base   config.Config
	logger *slog.Logger
}

// Run records the scenario program, runs it once against a copy of the
// scenario data and checks the expectations.
//
// Recording and run failures are reported through Result.Err and checked
// against Expect.Error. The returned error is reserved for scenarios
// that cannot be executed at all, such as references to unknown slots.
func Run(ctx context.Context, s *Scenario, opts ...Option) (*Result, error) {
	h := &harness{base: config.Default(), logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(h)
	}

	cfg := s.Settings.Apply(h.base)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	rec, err := replay(s, cfg, h.logger)
	if err != nil {
		return nil, err
	}

	result := &Result{Pass: true}
	p, tree, err := rec.Finish()
	if err == nil {
		result.Program, result.Tree = p, tree
		var e *engine.Engine
		e, err = engine.Build(p, tree, cfg,
			engine.WithLogger(h.logger),
			engine.WithClock(testutil.NewDeterministicClock()),
			engine.WithRunIDs(testutil.NewFixedRunID(s.Name)),
		)
		if err == nil {
			data := append([]float64(nil), s.Data...)
			result.Stats, err = e.ExecuteAll(ctx, data)
			if err == nil {
				result.Output = data
			}
		}
	}
	result.Err = err

	check(s, result)
	return result, nil
}

// Record replays the scenario program onto a recorder configured from
// cfg and finishes it. The scenario settings are not applied.
func Record(s *Scenario, cfg config.Config, logger *slog.Logger) (*ir.Program, *chunk.Tree, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	rec, err := replay(s, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return rec.Finish()
}

func replay(s *Scenario, cfg config.Config, logger *slog.Logger) (*recorder.Recorder, error) {
	opts := append(engine.RecorderOptions(cfg), recorder.WithLogger(logger))
	if !cfg.Ordered {
		opts = append(opts, recorder.WithOriginalCount(len(s.Data)))
	}
	b := &builder{
		rec:    recorder.New(opts...),
		slots:  make(map[string]int32),
		labels: make(map[string]int),
	}
	if err := b.steps("program", s.Program); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return b.rec, nil
}

// builder replays scenario steps onto a recorder.
type builder struct {
	rec    *recorder.Recorder
	slots  map[string]int32
	labels map[string]int
}

func (b *builder) slot(at, name string) (int32, error) {
	s, ok := b.slots[name]
	if !ok {
		return 0, fmt.Errorf("%s: unknown slot %q", at, name)
	}
	return s, nil
}

func (b *builder) args(at string, names []string) ([]int32, error) {
	out := make([]int32, len(names))
	for i, name := range names {
		s, err := b.slot(at, name)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

var binaryOps = map[string]func(r *recorder.Recorder, a, b int32){
	"set": (*recorder.Recorder).Copy,
	"mul": (*recorder.Recorder).Multiply,
	"add": (*recorder.Recorder).Increment,
	"sub": (*recorder.Recorder).Decrement,
	"eq":  (*recorder.Recorder).Equals,
	"ne":  (*recorder.Recorder).NotEquals,
	"gt":  (*recorder.Recorder).GreaterThan,
	"lt":  (*recorder.Recorder).LessThan,
}

func (b *builder) steps(path string, steps []Step) error {
	r := b.rec
	for i, step := range steps {
		at := fmt.Sprintf("%s[%d]", path, i)
		args, err := b.args(at, step.Args)
		if err != nil {
			return err
		}

		switch step.Op {
		case "source":
			b.slots[step.Slot] = r.NewSource(step.Index)
		case "zero":
			b.slots[step.Slot] = r.NewZero()
		case "copy":
			b.slots[step.Slot] = r.NewCopy(args[0])
		case "clear":
			r.Zero(args[0])
		case "eq_value":
			r.EqualsValue(args[0], step.Value)
		case "ne_value":
			r.NotEqualsValue(args[0], step.Value)
		case "dest":
			r.Destination(args[0], step.Index)
		case "comment":
			r.Comment(step.Text)
		case "label":
			b.labels[step.Label] = r.Mark()
		case "if":
			r.If()
			err = b.steps(at+".body", step.Body)
			r.EndIf()
		case "scope":
			r.EnterScope()
			err = b.steps(at+".body", step.Body)
			r.ExitScope()
		case "chunk":
			r.StartChunk(step.Parallel)
			err = b.steps(at+".body", step.Body)
			r.EndChunk()
		case "replay":
			start, ok := b.labels[step.Label]
			if !ok {
				return fmt.Errorf("%s: unknown label %q", at, step.Label)
			}
			r.BeginReplay(start)
			err = b.steps(at+".body", step.Body)
			r.EndReplay()
		default:
			op, ok := binaryOps[step.Op]
			if !ok {
				return fmt.Errorf("%s: unknown op %q", at, step.Op)
			}
			op(r, args[0], args[1])
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ErrorCode returns the code of a recorder or engine error, or the
// error text for anything else.
func ErrorCode(err error) string {
	if code, ok := recorder.CodeOf(err); ok {
		return string(code)
	}
	var re *engine.RuntimeError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	return err.Error()
}
