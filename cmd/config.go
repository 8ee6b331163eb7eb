package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vmsim/vmsim/sim/workload"
)

// EnvPrefix prefixes environment variables that override run settings, e.g.
// VMSIM_UPPER=0.75 or VMSIM_NO_MIGRATIONS=true.
const EnvPrefix = "VMSIM"

// loadSettings layers run settings: built-in defaults, then the optional --config
// file, then VMSIM_* environment variables, then flags set on the command line.
func loadSettings(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault("log", "error")

	configPath, err := fs.GetString("config")
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", configPath, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}
	return v, nil
}

// applyOverrides copies every setting that was given explicitly onto spec. Settings
// left at their flag defaults keep the scenario file's values.
func applyOverrides(v *viper.Viper, spec *workload.ScenarioSpec) {
	if v.IsSet("seed") {
		spec.Seed = v.GetInt64("seed")
	}
	if v.IsSet("horizon") {
		spec.Horizon = v.GetFloat64("horizon")
	}
	if v.IsSet("trace") {
		spec.TraceLevel = v.GetString("trace")
	}

	p := &spec.Policy
	if v.IsSet("upper") {
		upper := v.GetFloat64("upper")
		p.UpperThreshold = &upper
	}
	if v.IsSet("lower") {
		lower := v.GetFloat64("lower")
		p.LowerThreshold = &lower
	}
	if v.IsSet("threshold-mode") {
		p.ThresholdMode = v.GetString("threshold-mode")
	}
	if v.IsSet("safety") {
		safety := v.GetFloat64("safety")
		p.SafetyParameter = &safety
	}
	if v.IsSet("selection") {
		p.Selection = v.GetString("selection")
	}
	if v.IsSet("interval") {
		interval := v.GetFloat64("interval")
		p.SchedulingInterval = &interval
	}
	if v.IsSet("no-migrations") && v.GetBool("no-migrations") {
		enabled := false
		p.Migrations = &enabled
	}
}
