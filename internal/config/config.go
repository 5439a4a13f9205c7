// Package config loads, validates and watches grammarctl configuration.
//
// A configuration file is YAML (decoded strictly) or CUE. Either way it is
// checked against the embedded CUE schema, which also carries the defaults.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/roach88/grammarctl/internal/cycle"
	"github.com/roach88/grammarctl/internal/grammar"
)

//go:embed schema.cue
var schemaSource string

// Defaults mirrored from schema.cue for callers that build a Config without
// a file.
const (
	DefaultBackend             = "simulated"
	DefaultCulture             = "en-US"
	DefaultConfidenceThreshold = 0.5
	DefaultTickInterval        = 40 * time.Millisecond
	DefaultUpdateTimeout       = 10 * time.Second
)

// Node is the declarative input of the evaluation cycle.
type Node struct {
	Culture             string                `yaml:"culture,omitempty" json:"culture,omitempty"`
	Enabled             *bool                 `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	ConfidenceThreshold *float64              `yaml:"confidence_threshold,omitempty" json:"confidence_threshold,omitempty"`
	Groups              []grammar.ChoiceGroup `yaml:"groups,omitempty" json:"groups,omitempty"`
}

// File is the on-disk configuration shape.
type File struct {
	Backend        string            `yaml:"backend,omitempty" json:"backend,omitempty"`
	BackendOptions map[string]string `yaml:"backend_options,omitempty" json:"backend_options,omitempty"`
	Database       string            `yaml:"database,omitempty" json:"database,omitempty"`
	TickInterval   string            `yaml:"tick_interval,omitempty" json:"tick_interval,omitempty"`
	UpdateTimeout  string            `yaml:"update_timeout,omitempty" json:"update_timeout,omitempty"`
	MetricsAddr    string            `yaml:"metrics_addr,omitempty" json:"metrics_addr,omitempty"`
	Node           Node              `yaml:"node" json:"node"`
}

// Config is a validated configuration with defaults applied.
type Config struct {
	Path           string
	Backend        string
	BackendOptions map[string]string
	Database       string
	TickInterval   time.Duration
	UpdateTimeout  time.Duration
	MetricsAddr    string
	Node           cycle.Config
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Backend:       DefaultBackend,
		TickInterval:  DefaultTickInterval,
		UpdateTimeout: DefaultUpdateTimeout,
		Node: cycle.Config{
			Culture:             DefaultCulture,
			Enabled:             true,
			ConfidenceThreshold: DefaultConfidenceThreshold,
		},
	}
}

// Load reads and validates a configuration file. Files ending in ".cue" are
// parsed as CUE; anything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg *Config
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		cfg, err = ParseCUE(data, path)
	} else {
		cfg, err = ParseYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// ParseYAML decodes YAML strictly (unknown fields are errors) and validates
// the result against the schema.
func ParseYAML(data []byte) (*Config, error) {
	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return resolve(nil, File{})
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	normalizeGroups(&f)
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config for validation: %w", err)
	}
	return resolve(raw, f)
}

// ParseCUE compiles a CUE configuration and validates it against the
// schema.
func ParseCUE(data []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile CUE: %s", cueerrors.Details(err, nil))
	}

	unified, err := validate(ctx, v)
	if err != nil {
		return nil, err
	}

	var f File
	if err := unified.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return toConfig(f)
}

// resolve validates JSON-encoded config data against the schema and
// returns the defaulted result. A nil raw validates the empty document.
func resolve(raw []byte, f File) (*Config, error) {
	if raw == nil {
		raw = []byte("{}")
	}
	ctx := cuecontext.New()
	v := ctx.CompileBytes(raw, cue.Filename("config.json"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile config: %w", err)
	}

	unified, err := validate(ctx, v)
	if err != nil {
		return nil, err
	}

	var resolved File
	if err := unified.Decode(&resolved); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return toConfig(resolved)
}

// validate unifies v with #Config and requires a concrete result.
func validate(ctx *cue.Context, v cue.Value) (cue.Value, error) {
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("invalid embedded schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return cue.Value{}, fmt.Errorf("invalid config: %s", strings.TrimSpace(cueerrors.Details(err, nil)))
	}
	return unified, nil
}

func toConfig(f File) (*Config, error) {
	tick, err := time.ParseDuration(f.TickInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid tick_interval: %w", err)
	}
	if tick <= 0 {
		return nil, fmt.Errorf("tick_interval must be positive, got %s", tick)
	}
	timeout, err := time.ParseDuration(f.UpdateTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid update_timeout: %w", err)
	}

	cfg := &Config{
		Backend:        f.Backend,
		BackendOptions: f.BackendOptions,
		Database:       f.Database,
		TickInterval:   tick,
		UpdateTimeout:  timeout,
		MetricsAddr:    f.MetricsAddr,
		Node: cycle.Config{
			Culture: f.Node.Culture,
			Groups:  f.Node.Groups,
		},
	}
	if f.Node.Enabled != nil {
		cfg.Node.Enabled = *f.Node.Enabled
	}
	if f.Node.ConfidenceThreshold != nil {
		cfg.Node.ConfidenceThreshold = *f.Node.ConfidenceThreshold
	}
	if len(cfg.Node.Groups) == 0 {
		cfg.Node.Groups = nil
	}
	return cfg, nil
}

// normalizeGroups replaces missing phrase lists with empty ones so they
// reach the grammar builder (which skips them) instead of failing schema
// validation as null.
func normalizeGroups(f *File) {
	for i := range f.Node.Groups {
		if f.Node.Groups[i].Phrases == nil {
			f.Node.Groups[i].Phrases = []string{}
		}
	}
}
