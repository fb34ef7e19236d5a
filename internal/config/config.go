// Package config loads engine settings from YAML, TOML or CUE files.
//
// Every source is checked against the embedded CUE schema (schema.cue),
// which also carries the defaults. Fields missing from a file keep their
// default values.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// ErrUnknownFormat is returned for files whose extension is not
// .yaml, .yml, .toml or .cue.
var ErrUnknownFormat = errors.New("unknown config format")

// Config holds the recorder and runner settings.
type Config struct {
	// MaxChunk is the largest leaf the hoister leaves alone. Zero
	// disables hoisting.
	MaxChunk int `yaml:"max_chunk" toml:"max_chunk" json:"max_chunk"`

	// MinCompile is the shortest segment run on the configured backend.
	MinCompile int `yaml:"min_compile" toml:"min_compile" json:"min_compile"`

	Ordered    bool `yaml:"ordered" toml:"ordered" json:"ordered"`
	SlotReuse  bool `yaml:"slot_reuse" toml:"slot_reuse" json:"slot_reuse"`
	LocalReuse bool `yaml:"local_reuse" toml:"local_reuse" json:"local_reuse"`

	Backend string `yaml:"backend" toml:"backend" json:"backend"`

	// Parallel enables fork-join execution of parallel-eligible siblings.
	Parallel       bool `yaml:"parallel" toml:"parallel" json:"parallel"`
	ScatterWorkers int  `yaml:"scatter_workers" toml:"scatter_workers" json:"scatter_workers"`

	MaxTape int `yaml:"max_tape" toml:"max_tape" json:"max_tape"`
}

// Default returns the built-in settings. They match the schema defaults.
func Default() Config {
	return Config{
		MinCompile: 16,
		Ordered:    true,
		SlotReuse:  true,
		LocalReuse: true,
		Backend:    "compiled",
		MaxTape:    math.MaxInt32,
	}
}

// Load reads a config file, picking the decoder by extension. An empty
// path returns Default.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	cfg, err := Parse(data, strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return Config{}, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data in the given format ("yaml", "yml", "toml" or "cue")
// on top of Default and validates the result.
func Parse(data []byte, format string) (Config, error) {
	cfg := Default()
	switch format {
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, err
		}
	case "toml":
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return Config{}, err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("unknown field %q", undecoded[0].String())
		}
	case "cue":
		return parseCUE(data)
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func schema(ctx *cue.Context) (cue.Value, error) {
	v := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("config schema: %w", err)
	}
	return v.LookupPath(cue.ParsePath("#Config")), nil
}

func parseCUE(data []byte) (Config, error) {
	ctx := cuecontext.New()
	def, err := schema(ctx)
	if err != nil {
		return Config{}, err
	}
	v := ctx.CompileBytes(data, cue.Filename("config.cue"))
	if err := v.Err(); err != nil {
		return Config{}, err
	}
	v = def.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks c against the schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	def, err := schema(ctx)
	if err != nil {
		return err
	}
	v := def.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
