// Package workload describes a simulated data center and its load as a YAML scenario
// and turns a validated scenario into hosts, VMs and tasks.
package workload

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"github.com/vmsim/vmsim/sim/policy"
	"github.com/vmsim/vmsim/sim/trace"
	"gopkg.in/yaml.v3"
)

// ScenarioSpec is the top-level scenario configuration loaded from YAML.
type ScenarioSpec struct {
	Name          string          `yaml:"name"`
	Seed          int64           `yaml:"seed"`
	Horizon       float64         `yaml:"horizon"` // 0 runs until every task finished
	TraceLevel    string          `yaml:"trace_level"`
	RetryInterval float64         `yaml:"retry_interval"`
	MaxRetries    int             `yaml:"max_retries"`
	Hosts         []HostGroupSpec `yaml:"hosts"`
	VMs           []VMGroupSpec   `yaml:"vms"`
	Policy        policy.Bundle   `yaml:"policy"`
}

// HostGroupSpec describes Count identical hosts. Host IDs are assigned in file order.
type HostGroupSpec struct {
	Count       int     `yaml:"count"`
	Cores       int     `yaml:"cores"`
	MIPSPerCore float64 `yaml:"mips_per_core"`
	RAM         int64   `yaml:"ram"`
	BW          int64   `yaml:"bw"`
	Storage     int64   `yaml:"storage"`
}

// VMGroupSpec describes Count identical VMs submitted at SubmitTime. VM IDs are
// assigned in file order.
type VMGroupSpec struct {
	Count      int        `yaml:"count"`
	PEs        int        `yaml:"pes"`
	MIPS       float64    `yaml:"mips"`
	RAM        int64      `yaml:"ram"`
	BW         int64      `yaml:"bw"`
	Storage    int64      `yaml:"storage"`
	SubmitTime float64    `yaml:"submit_time"`
	Host       *int       `yaml:"host,omitempty"` // pins every VM of the group to this host ID
	Tasks      []TaskSpec `yaml:"tasks"`
}

// TaskSpec describes PerVM tasks given to each VM of the enclosing group.
type TaskSpec struct {
	PerVM       int                  `yaml:"per_vm"`
	Length      DistSpec             `yaml:"length"`
	Utilization UtilizationModelSpec `yaml:"utilization"`
}

// DistSpec parameterizes a length distribution.
type DistSpec struct {
	Type   string             `yaml:"type"`
	Params map[string]float64 `yaml:"params"`
}

// UtilizationModelSpec selects a task's CPU demand model.
//
//	full:       the whole VM
//	constant:   Fraction of the VM
//	stochastic: uniform in [Min, Max], redrawn per instant
//	trace:      Samples taken every Interval seconds, interpolated
type UtilizationModelSpec struct {
	Model    string    `yaml:"model"`
	Fraction float64   `yaml:"fraction,omitempty"`
	Min      float64   `yaml:"min,omitempty"`
	Max      float64   `yaml:"max,omitempty"`
	Samples  []float64 `yaml:"samples,omitempty"`
	Interval float64   `yaml:"interval,omitempty"`
}

var (
	validUtilizationModels = map[string]bool{"": true, "full": true, "constant": true, "stochastic": true, "trace": true}
	validDistTypes         = map[string]bool{"constant": true, "gaussian": true, "exponential": true, "lognormal": true, "uniform": true}
)

// LoadScenario reads and parses a YAML scenario file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadScenario(path string) (*ScenarioSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var spec ScenarioSpec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	return &spec, nil
}

// NumHosts is the total host count across groups.
func (s *ScenarioSpec) NumHosts() int {
	n := 0
	for _, g := range s.Hosts {
		n += g.Count
	}
	return n
}

// NumVMs is the total VM count across groups.
func (s *ScenarioSpec) NumVMs() int {
	n := 0
	for _, g := range s.VMs {
		n += g.Count
	}
	return n
}

// Validate checks that all fields in the scenario are valid.
func (s *ScenarioSpec) Validate() error {
	if math.IsNaN(s.Horizon) || math.IsInf(s.Horizon, 0) || s.Horizon < 0 {
		return fmt.Errorf("horizon must be a finite non-negative number, got %f", s.Horizon)
	}
	if !trace.IsValidTraceLevel(s.TraceLevel) {
		return fmt.Errorf("unknown trace_level %q; valid: none, decisions, full", s.TraceLevel)
	}
	if s.RetryInterval < 0 {
		return fmt.Errorf("retry_interval must be non-negative, got %f", s.RetryInterval)
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got %d", s.MaxRetries)
	}
	if s.MaxRetries > 0 && s.RetryInterval <= 0 {
		return fmt.Errorf("retry_interval must be positive when max_retries is %d", s.MaxRetries)
	}
	if len(s.Hosts) == 0 {
		return fmt.Errorf("at least one host group required")
	}
	for i := range s.Hosts {
		if err := validateHostGroup(&s.Hosts[i], i); err != nil {
			return err
		}
	}
	numHosts := s.NumHosts()
	for i := range s.VMs {
		if err := validateVMGroup(&s.VMs[i], i, numHosts); err != nil {
			return err
		}
	}
	if err := s.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	return nil
}

func validateHostGroup(h *HostGroupSpec, idx int) error {
	prefix := fmt.Sprintf("hosts[%d]", idx)
	if h.Count <= 0 {
		return fmt.Errorf("%s: count must be positive, got %d", prefix, h.Count)
	}
	if h.Cores <= 0 {
		return fmt.Errorf("%s: cores must be positive, got %d", prefix, h.Cores)
	}
	if err := validateFinitePositive(prefix+".mips_per_core", h.MIPSPerCore); err != nil {
		return err
	}
	if h.RAM <= 0 || h.BW <= 0 || h.Storage <= 0 {
		return fmt.Errorf("%s: ram, bw and storage must be positive, got %d/%d/%d", prefix, h.RAM, h.BW, h.Storage)
	}
	return nil
}

func validateVMGroup(v *VMGroupSpec, idx, numHosts int) error {
	prefix := fmt.Sprintf("vms[%d]", idx)
	if v.Count <= 0 {
		return fmt.Errorf("%s: count must be positive, got %d", prefix, v.Count)
	}
	if v.PEs <= 0 {
		return fmt.Errorf("%s: pes must be positive, got %d", prefix, v.PEs)
	}
	if err := validateFinitePositive(prefix+".mips", v.MIPS); err != nil {
		return err
	}
	if v.RAM <= 0 || v.BW <= 0 || v.Storage <= 0 {
		return fmt.Errorf("%s: ram, bw and storage must be positive, got %d/%d/%d", prefix, v.RAM, v.BW, v.Storage)
	}
	if v.SubmitTime < 0 || math.IsNaN(v.SubmitTime) || math.IsInf(v.SubmitTime, 0) {
		return fmt.Errorf("%s: submit_time must be a finite non-negative number, got %f", prefix, v.SubmitTime)
	}
	if v.Host != nil && (*v.Host < 0 || *v.Host >= numHosts) {
		return fmt.Errorf("%s: host %d out of range [0, %d)", prefix, *v.Host, numHosts)
	}
	for j := range v.Tasks {
		if err := validateTask(&v.Tasks[j], fmt.Sprintf("%s.tasks[%d]", prefix, j)); err != nil {
			return err
		}
	}
	return nil
}

func validateTask(t *TaskSpec, prefix string) error {
	if t.PerVM <= 0 {
		return fmt.Errorf("%s: per_vm must be positive, got %d", prefix, t.PerVM)
	}
	if err := validateDistSpec(prefix+".length", &t.Length); err != nil {
		return err
	}
	if _, err := NewLengthSampler(t.Length); err != nil {
		return fmt.Errorf("%s.length: %w", prefix, err)
	}
	return validateUtilization(prefix+".utilization", &t.Utilization)
}

func validateDistSpec(prefix string, d *DistSpec) error {
	if !validDistTypes[d.Type] {
		return fmt.Errorf("%s: unknown distribution type %q; valid: constant, gaussian, exponential, lognormal, uniform", prefix, d.Type)
	}
	for name, val := range d.Params {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("%s.params.%s must be a finite number, got %f", prefix, name, val)
		}
	}
	return nil
}

func validateUtilization(prefix string, u *UtilizationModelSpec) error {
	if !validUtilizationModels[u.Model] {
		return fmt.Errorf("%s: unknown model %q; valid: full, constant, stochastic, trace", prefix, u.Model)
	}
	switch u.Model {
	case "constant":
		if u.Fraction < 0 || u.Fraction > 1 {
			return fmt.Errorf("%s: fraction must be in [0, 1], got %f", prefix, u.Fraction)
		}
	case "stochastic":
		if u.Min < 0 || u.Max > 1 || u.Min > u.Max {
			return fmt.Errorf("%s: need 0 <= min <= max <= 1, got [%f, %f]", prefix, u.Min, u.Max)
		}
	case "trace":
		if len(u.Samples) == 0 {
			return fmt.Errorf("%s: trace model requires samples", prefix)
		}
		if err := validateFinitePositive(prefix+".interval", u.Interval); err != nil {
			return err
		}
		for i, s := range u.Samples {
			if s < 0 || s > 1 || math.IsNaN(s) {
				return fmt.Errorf("%s.samples[%d] must be in [0, 1], got %f", prefix, i, s)
			}
		}
	}
	return nil
}

func validateFinitePositive(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, val)
	}
	if val <= 0 {
		return fmt.Errorf("%s must be positive, got %f", name, val)
	}
	return nil
}
