package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vstack/internal/config"
)

func TestParseScenario_Valid(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: minimal
description: "one source, one destination"
settings:
  backend: interpreter
  max_chunk: 8
data: [2, 0]
program:
  - {op: source, slot: x, index: 0}
  - {op: dest, args: [x], index: 1}
expect:
  output: [2, 2]
  stats: {executed: 1}
`))
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)
	assert.Equal(t, []float64{2, 0}, s.Data)
	require.Len(t, s.Program, 2)
	assert.Equal(t, "x", s.Program[0].Slot)
	assert.Equal(t, []string{"x"}, s.Program[1].Args)
	assert.Equal(t, 1, s.Program[1].Index)

	cfg := s.Settings.Apply(config.Default())
	assert.Equal(t, "interpreter", cfg.Backend)
	assert.Equal(t, 8, cfg.MaxChunk)
	assert.True(t, cfg.Ordered)
}

func TestParseScenario_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: "name: a\ndescription: b\ndata: [0]\nprogram: [{op: zero, slot: z}]\nexpect: {output: [0]}\ntypo: 1\n",
			want: "field typo not found",
		},
		{
			name: "missing name",
			yaml: "description: b\ndata: [0]\nprogram: [{op: zero, slot: z}]\nexpect: {output: [0]}\n",
			want: "name is required",
		},
		{
			name: "empty program",
			yaml: "name: a\ndescription: b\ndata: [0]\nexpect: {output: [0]}\n",
			want: "program list is required",
		},
		{
			name: "no expectation",
			yaml: "name: a\ndescription: b\ndata: [0]\nprogram: [{op: zero, slot: z}]\n",
			want: "output or error is required",
		},
		{
			name: "output length",
			yaml: "name: a\ndescription: b\ndata: [0, 1]\nprogram: [{op: zero, slot: z}]\nexpect: {output: [0]}\n",
			want: "expect.output has 1 values, data has 2",
		},
		{
			name: "unknown stat",
			yaml: "name: a\ndescription: b\ndata: [0]\nprogram: [{op: zero, slot: z}]\nexpect: {output: [0], stats: {fast: 1}}\n",
			want: `unknown counter "fast"`,
		},
		{
			name: "unknown op",
			yaml: "name: a\ndescription: b\ndata: [0]\nprogram: [{op: divide, args: [z, z]}]\nexpect: {output: [0]}\n",
			want: `program[0]: unknown op "divide"`,
		},
		{
			name: "wrong arity",
			yaml: "name: a\ndescription: b\ndata: [0]\nprogram: [{op: zero, slot: z}, {op: add, args: [z]}]\nexpect: {output: [0]}\n",
			want: "program[1]: add takes 2 args, got 1",
		},
		{
			name: "missing slot",
			yaml: "name: a\ndescription: b\ndata: [0]\nprogram: [{op: source, index: 0}]\nexpect: {output: [0]}\n",
			want: "source requires slot",
		},
		{
			name: "nested body",
			yaml: "name: a\ndescription: b\ndata: [0]\nprogram: [{op: if, body: [{op: zero}]}]\nexpect: {output: [0]}\n",
			want: "program[0].body[0]: zero requires slot",
		},
		{
			name: "parallel outside chunk",
			yaml: "name: a\ndescription: b\ndata: [0]\nprogram: [{op: scope, parallel: true}]\nexpect: {output: [0]}\n",
			want: "only chunk can be parallel",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadDir(t *testing.T) {
	scenarios, err := LoadDir("testdata/scenarios")
	require.NoError(t, err)

	names := make([]string, len(scenarios))
	for i, s := range scenarios {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"direct", "guarded", "guarded_taken", "hoisted", "parallel", "replay", "replay_mismatch", "scatter", "skip_cursor", "skip_cursor_taken"}, names)

	_, err = LoadDir(t.TempDir())
	assert.Error(t, err)
}

func TestOps(t *testing.T) {
	ops := Ops()
	assert.Contains(t, ops, "replay")
	assert.IsIncreasing(t, ops)
	for _, op := range ops {
		if shape := opShapes[op]; shape.args == 2 {
			assert.Contains(t, binaryOps, op)
		}
	}
}
