package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/vstack/internal/config"
)

// Scenario defines one program scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Settings override the base configuration for this scenario.
	Settings Settings `yaml:"settings,omitempty"`

	// Data is the shared array the program runs against.
	Data []float64 `yaml:"data"`

	// Program is the recording, in call order.
	Program []Step `yaml:"program"`

	// Expect is the expected outcome.
	Expect Expect `yaml:"expect"`
}

// Settings are optional per-scenario configuration overrides.
type Settings struct {
	MaxChunk   *int    `yaml:"max_chunk,omitempty"`
	MinCompile *int    `yaml:"min_compile,omitempty"`
	Ordered    *bool   `yaml:"ordered,omitempty"`
	SlotReuse  *bool   `yaml:"slot_reuse,omitempty"`
	Backend    *string `yaml:"backend,omitempty"`
	Parallel   *bool   `yaml:"parallel,omitempty"`
}

// Apply returns base with the set fields replaced.
func (s Settings) Apply(base config.Config) config.Config {
	if s.MaxChunk != nil {
		base.MaxChunk = *s.MaxChunk
	}
	if s.MinCompile != nil {
		base.MinCompile = *s.MinCompile
	}
	if s.Ordered != nil {
		base.Ordered = *s.Ordered
	}
	if s.SlotReuse != nil {
		base.SlotReuse = *s.SlotReuse
	}
	if s.Backend != nil {
		base.Backend = *s.Backend
	}
	if s.Parallel != nil {
		base.Parallel = *s.Parallel
	}
	return base
}

// Step is one recorder call or block.
type Step struct {
	Op string `yaml:"op"`

	// Slot names the slot an allocating op binds.
	Slot string `yaml:"slot,omitempty"`

	// Args are slot names read (and for arithmetic, written) by the op.
	Args []string `yaml:"args,omitempty"`

	// Index is the array index of source and dest.
	Index int `yaml:"index,omitempty"`

	// Value is the literal of eq_value and ne_value.
	Value int32 `yaml:"value,omitempty"`

	// Text is the comment text.
	Text string `yaml:"text,omitempty"`

	// Label names a tape position for label and replay.
	Label string `yaml:"label,omitempty"`

	// Parallel declares a chunk parallel-eligible.
	Parallel bool `yaml:"parallel,omitempty"`

	// Body holds the nested steps of a block op.
	Body []Step `yaml:"body,omitempty"`
}

// Expect specifies the expected outcome.
type Expect struct {
	// Output is the expected array after one run.
	Output []float64 `yaml:"output,omitempty"`

	// Error is the expected error code, e.g. REPLAY_MISMATCH.
	Error string `yaml:"error,omitempty"`

	// Stats is a subset match on the run counters.
	Stats map[string]int `yaml:"stats,omitempty"`
}

// opShape describes the operands an op requires.
type opShape struct {
	slot  bool
	args  int
	body  bool
	label bool
	text  bool
}

var opShapes = map[string]opShape{
	"source":   {slot: true},
	"zero":     {slot: true},
	"copy":     {slot: true, args: 1},
	"clear":    {args: 1},
	"set":      {args: 2},
	"mul":      {args: 2},
	"add":      {args: 2},
	"sub":      {args: 2},
	"eq":       {args: 2},
	"ne":       {args: 2},
	"gt":       {args: 2},
	"lt":       {args: 2},
	"eq_value": {args: 1},
	"ne_value": {args: 1},
	"dest":     {args: 1},
	"comment":  {text: true},
	"if":       {body: true},
	"scope":    {body: true},
	"chunk":    {body: true},
	"label":    {label: true},
	"replay":   {label: true, body: true},
}

// Ops lists the supported step ops.
func Ops() []string {
	out := make([]string, 0, len(opShapes))
	for op := range opShapes {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

var statKeys = map[string]bool{
	"leaves":          true,
	"executed":        true,
	"skipped":         true,
	"partial":         true,
	"compiled":        true,
	"interpreted":     true,
	"gates":           true,
	"parallel_groups": true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml and *.yml scenario in dir, sorted by file
// name.
func LoadDir(dir string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", dir)
	}

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Program) == 0 {
		return fmt.Errorf("program list is required and must be non-empty")
	}
	if s.Expect.Output == nil && s.Expect.Error == "" {
		return fmt.Errorf("expect: output or error is required")
	}
	if s.Expect.Output != nil && s.Expect.Error != "" {
		return fmt.Errorf("expect: output and error are mutually exclusive")
	}
	if s.Expect.Output != nil && len(s.Expect.Output) != len(s.Data) {
		return fmt.Errorf("expect.output has %d values, data has %d", len(s.Expect.Output), len(s.Data))
	}
	for key := range s.Expect.Stats {
		if !statKeys[key] {
			return fmt.Errorf("expect.stats: unknown counter %q", key)
		}
	}
	return validateSteps("program", s.Program)
}

func validateSteps(path string, steps []Step) error {
	for i, step := range steps {
		at := fmt.Sprintf("%s[%d]", path, i)
		shape, ok := opShapes[step.Op]
		if !ok {
			return fmt.Errorf("%s: unknown op %q", at, step.Op)
		}
		if shape.slot && step.Slot == "" {
			return fmt.Errorf("%s: %s requires slot", at, step.Op)
		}
		if !shape.slot && step.Slot != "" {
			return fmt.Errorf("%s: %s does not bind a slot", at, step.Op)
		}
		if len(step.Args) != shape.args {
			return fmt.Errorf("%s: %s takes %d args, got %d", at, step.Op, shape.args, len(step.Args))
		}
		if shape.label && step.Label == "" {
			return fmt.Errorf("%s: %s requires label", at, step.Op)
		}
		if shape.text && step.Text == "" {
			return fmt.Errorf("%s: comment requires text", at)
		}
		if !shape.body && len(step.Body) > 0 {
			return fmt.Errorf("%s: %s takes no body", at, step.Op)
		}
		if step.Parallel && step.Op != "chunk" {
			return fmt.Errorf("%s: only chunk can be parallel", at)
		}
		if err := validateSteps(at+".body", step.Body); err != nil {
			return err
		}
	}
	return nil
}
