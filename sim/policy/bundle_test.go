package policy

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBundle_ValidYAML(t *testing.T) {
	path := writeTempYAML(t, `
upper_threshold: 0.7
lower_threshold: 0.35
threshold_mode: mad
safety_parameter: 2.0
selection: maximum-correlation
scheduling_interval: 0
migrations: false
`)
	b, err := LoadBundle(path)
	require.NoError(t, err)
	require.NoError(t, b.Validate())

	assert.Equal(t, 0.7, *b.UpperThreshold)
	assert.Equal(t, 0.35, *b.LowerThreshold)
	assert.Equal(t, "mad", b.ThresholdMode)
	assert.Equal(t, "maximum-correlation", b.Selection)
	// scheduling_interval: 0 is set, not defaulted
	require.NotNil(t, b.SchedulingInterval)
	assert.Equal(t, 0.0, b.Interval())
	assert.False(t, b.MigrationsEnabled())

	th, err := b.Thresholds()
	require.NoError(t, err)
	assert.Equal(t, ThresholdMAD, th.Mode())
}

func TestLoadBundle_UnknownFieldRejected(t *testing.T) {
	path := writeTempYAML(t, "upper_treshold: 0.7\n")
	_, err := LoadBundle(path)
	assert.Error(t, err)
}

func TestLoadBundle_MissingFile(t *testing.T) {
	_, err := LoadBundle("/nonexistent/policy.yaml")
	assert.Error(t, err)
}

func TestBundle_Defaults(t *testing.T) {
	var b Bundle
	require.NoError(t, b.Validate())
	r := b.Resolved()

	assert.Equal(t, DefaultUpperThreshold, *r.UpperThreshold)
	assert.Equal(t, DefaultLowerThreshold, *r.LowerThreshold)
	assert.Equal(t, "static", r.ThresholdMode)
	assert.Equal(t, "minimum-utilization", r.Selection)
	assert.Equal(t, DefaultSchedulingInterval, b.Interval())
	assert.True(t, b.MigrationsEnabled())
	assert.Nil(t, b.UpperThreshold, "Resolved must not modify the receiver")
}

func TestBundle_ValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		bundle Bundle
	}{
		{"inverted thresholds", Bundle{UpperThreshold: ptr(0.3), LowerThreshold: ptr(0.5)}},
		{"unknown mode", Bundle{ThresholdMode: "lr"}},
		{"unknown selection", Bundle{Selection: "best-fit"}},
		{"negative interval", Bundle{SchedulingInterval: ptr(-1.0)}},
		{"negative safety", Bundle{SafetyParameter: ptr(-0.5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.bundle.Validate())
		})
	}
}

func TestBundle_InvalidThresholdsWrapSentinel(t *testing.T) {
	b := Bundle{UpperThreshold: ptr(0.5), LowerThreshold: ptr(0.5)}
	_, err := b.NewPolicy(nil)
	assert.True(t, errors.Is(err, ErrInvalidThresholds))
}

func TestBundle_NewPolicy(t *testing.T) {
	b := Bundle{UpperThreshold: ptr(0.9), LowerThreshold: ptr(0.1), Selection: "random", ThresholdMode: "iqr"}

	p, err := b.NewPolicy(rand.New(rand.NewPCG(3, 4)))

	require.NoError(t, err)
	assert.Equal(t, "random", p.Selection().Name())
	assert.Equal(t, ThresholdIQR, p.Thresholds().Mode())
	assert.Equal(t, 0.9, p.Thresholds().Upper())
}
