package policy

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"os"

	"gopkg.in/yaml.v3"
)

// Bundle holds the allocation policy configuration, loadable from YAML either on its
// own or nested under `policy:` in a scenario file.
// Nil pointer fields mean "not set": Resolve fills them with defaults.
type Bundle struct {
	UpperThreshold     *float64 `yaml:"upper_threshold"`
	LowerThreshold     *float64 `yaml:"lower_threshold"`
	ThresholdMode      string   `yaml:"threshold_mode"`
	SafetyParameter    *float64 `yaml:"safety_parameter"`
	Selection          string   `yaml:"selection"`
	SchedulingInterval *float64 `yaml:"scheduling_interval"`
	Migrations         *bool    `yaml:"migrations"`
}

// Defaults applied by Resolve.
const (
	DefaultUpperThreshold     = 0.8
	DefaultLowerThreshold     = 0.2
	DefaultSchedulingInterval = 300.0
)

// ValidThresholdModes is the set of recognized threshold mode names.
// Shared by Validate() and Thresholds.WithMode() to avoid duplication.
var ValidThresholdModes = map[string]bool{"": true, "static": true, "mad": true, "iqr": true}

// ValidSelectionPolicies is the set of recognized VM selection policy names.
var ValidSelectionPolicies = map[string]bool{
	"":                       true,
	"minimum-utilization":    true,
	"minimum-migration-time": true,
	"random":                 true,
	"maximum-correlation":    true,
}

// LoadBundle reads and strictly parses a YAML policy file.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy config: %w", err)
	}
	var b Bundle
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("parsing policy config: %w", err)
	}
	return &b, nil
}

// Validate checks names and parameter ranges. Unset fields are valid.
func (b *Bundle) Validate() error {
	if !ValidThresholdModes[b.ThresholdMode] {
		return fmt.Errorf("unknown threshold mode %q", b.ThresholdMode)
	}
	if !ValidSelectionPolicies[b.Selection] {
		return fmt.Errorf("unknown VM selection policy %q", b.Selection)
	}
	if b.SafetyParameter != nil && *b.SafetyParameter < 0 {
		return fmt.Errorf("safety_parameter must be non-negative, got %f", *b.SafetyParameter)
	}
	if b.SchedulingInterval != nil && *b.SchedulingInterval < 0 {
		return fmt.Errorf("scheduling_interval must be non-negative, got %f", *b.SchedulingInterval)
	}
	if _, err := b.Thresholds(); err != nil {
		return err
	}
	return nil
}

// Resolved returns a copy with every unset field filled with its default.
func (b Bundle) Resolved() Bundle {
	if b.UpperThreshold == nil {
		b.UpperThreshold = ptr(DefaultUpperThreshold)
	}
	if b.LowerThreshold == nil {
		b.LowerThreshold = ptr(DefaultLowerThreshold)
	}
	if b.ThresholdMode == "" {
		b.ThresholdMode = string(ThresholdStatic)
	}
	if b.SafetyParameter == nil {
		b.SafetyParameter = ptr(DefaultSafetyParameter(ThresholdMode(b.ThresholdMode)))
	}
	if b.Selection == "" {
		b.Selection = "minimum-utilization"
	}
	if b.SchedulingInterval == nil {
		b.SchedulingInterval = ptr(DefaultSchedulingInterval)
	}
	if b.Migrations == nil {
		b.Migrations = ptr(true)
	}
	return b
}

// Thresholds builds the thresholds described by the bundle, defaults applied.
func (b *Bundle) Thresholds() (Thresholds, error) {
	r := b.Resolved()
	th, err := NewThresholds(*r.LowerThreshold, *r.UpperThreshold)
	if err != nil {
		return Thresholds{}, err
	}
	mode := ThresholdMode(r.ThresholdMode)
	if mode == ThresholdStatic {
		return th, nil
	}
	return th.WithMode(mode, *r.SafetyParameter)
}

// NewPolicy builds the allocation policy described by the bundle. rng feeds the
// "random" selection policy.
func (b *Bundle) NewPolicy(rng *rand.Rand) (*ThresholdPolicy, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	th, err := b.Thresholds()
	if err != nil {
		return nil, err
	}
	return NewThresholdPolicy(th, NewSelectionPolicy(b.Selection, rng)), nil
}

// MigrationsEnabled reports whether the optimization pass should run.
func (b *Bundle) MigrationsEnabled() bool {
	return b.Migrations == nil || *b.Migrations
}

// Interval returns the scheduling interval in seconds, defaults applied.
func (b *Bundle) Interval() float64 {
	return *b.Resolved().SchedulingInterval
}

func ptr[T any](v T) *T { return &v }
