package policy

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewThresholds_Validation(t *testing.T) {
	tests := []struct {
		name         string
		lower, upper float64
		wantErr      bool
	}{
		{"valid", 0.2, 0.8, false},
		{"full range", 0, 1, false},
		{"equal", 0.5, 0.5, true},
		{"inverted", 0.8, 0.2, true},
		{"upper above one", 0.2, 1.1, true},
		{"negative lower", -0.1, 0.5, true},
		{"nan", math.NaN(), 0.5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th, err := NewThresholds(tt.lower, tt.upper)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidThresholds))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.lower, th.Lower())
			assert.Equal(t, tt.upper, th.Upper())
			assert.Equal(t, ThresholdStatic, th.Mode())
		})
	}
}

// rampHistory is 0, 0.05, ..., 0.55: median 0.25, MAD 0.15, IQR 0.30.
func rampHistory() []float64 {
	h := make([]float64, 12)
	for i := range h {
		h[i] = 0.05 * float64(i)
	}
	return h
}

func TestThresholds_MAD(t *testing.T) {
	// GIVEN MAD thresholds with the default safety parameter 2.5
	th, err := mustThresholds(t, 0.2, 0.8).WithMode(ThresholdMAD, 0)
	require.NoError(t, err)

	// THEN the upper threshold is 1 - 2.5 * 0.15
	assert.InDelta(t, 0.625, th.UpperFor(rampHistory()), 1e-9)
}

func TestThresholds_IQR(t *testing.T) {
	th, err := mustThresholds(t, 0.2, 0.8).WithMode(ThresholdIQR, 0)
	require.NoError(t, err)

	// Q3 = 0.40, Q1 = 0.10 under the empirical quantile, so 1 - 1.5 * 0.30
	assert.InDelta(t, 0.55, th.UpperFor(rampHistory()), 1e-9)
}

func TestThresholds_AdaptiveFallsBackToStatic(t *testing.T) {
	th, err := mustThresholds(t, 0.7, 0.9).WithMode(ThresholdMAD, 2.5)
	require.NoError(t, err)

	// Too few samples
	assert.Equal(t, 0.9, th.UpperFor([]float64{0.1, 0.9, 0.1}))
	// Adaptive value 0.625 is not above the lower threshold 0.7
	assert.Equal(t, 0.9, th.UpperFor(rampHistory()))
}

func TestThresholds_StaticIgnoresHistory(t *testing.T) {
	th := mustThresholds(t, 0.2, 0.8)
	assert.Equal(t, 0.8, th.UpperFor(rampHistory()))
}

func TestThresholds_WithModeRejectsUnknown(t *testing.T) {
	_, err := mustThresholds(t, 0.2, 0.8).WithMode("lr", 1)
	assert.Error(t, err)
	_, err = mustThresholds(t, 0.2, 0.8).WithMode(ThresholdIQR, -1)
	assert.Error(t, err)
}
