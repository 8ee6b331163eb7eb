package policy

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// ErrInvalidThresholds is returned for thresholds outside [0,1] or with lower >= upper.
var ErrInvalidThresholds = errors.New("invalid utilization thresholds")

// ThresholdMode selects how the upper threshold is derived for each host.
type ThresholdMode string

const (
	// ThresholdStatic uses the configured upper threshold for every host.
	ThresholdStatic ThresholdMode = "static"
	// ThresholdMAD uses 1 - s*MAD of the host's utilization history.
	ThresholdMAD ThresholdMode = "mad"
	// ThresholdIQR uses 1 - s*IQR of the host's utilization history.
	ThresholdIQR ThresholdMode = "iqr"
)

// MinAdaptiveHistory is the number of samples a host needs before an adaptive
// threshold replaces the static one.
const MinAdaptiveHistory = 12

// DefaultSafetyParameter returns the conventional safety parameter for mode.
func DefaultSafetyParameter(mode ThresholdMode) float64 {
	switch mode {
	case ThresholdMAD:
		return 2.5
	case ThresholdIQR:
		return 1.5
	default:
		return 0
	}
}

// Thresholds holds the under- and over-utilization limits of an allocation policy.
// The zero value is not valid; use NewThresholds.
type Thresholds struct {
	lower  float64
	upper  float64
	mode   ThresholdMode
	safety float64
}

// NewThresholds returns static thresholds. Both must lie in [0,1] with lower < upper.
func NewThresholds(lower, upper float64) (Thresholds, error) {
	if math.IsNaN(lower) || math.IsNaN(upper) || lower < 0 || upper > 1 || lower >= upper {
		return Thresholds{}, fmt.Errorf("lower=%v upper=%v: %w", lower, upper, ErrInvalidThresholds)
	}
	return Thresholds{lower: lower, upper: upper, mode: ThresholdStatic}, nil
}

// WithMode returns a copy deriving the upper threshold adaptively. A safety parameter
// of 0 selects DefaultSafetyParameter(mode).
func (t Thresholds) WithMode(mode ThresholdMode, safety float64) (Thresholds, error) {
	if !ValidThresholdModes[string(mode)] || mode == "" {
		return t, fmt.Errorf("unknown threshold mode %q", mode)
	}
	if safety < 0 {
		return t, fmt.Errorf("safety parameter must be >= 0, got %v", safety)
	}
	if safety == 0 {
		safety = DefaultSafetyParameter(mode)
	}
	t.mode = mode
	t.safety = safety
	return t, nil
}

func (t Thresholds) Lower() float64      { return t.lower }
func (t Thresholds) Upper() float64      { return t.upper }
func (t Thresholds) Mode() ThresholdMode { return t.mode }

// UpperFor returns the upper threshold for a host with the given utilization history.
// Adaptive modes fall back to the static value when the history is too short or the
// adaptive value would not stay above the lower threshold.
func (t Thresholds) UpperFor(history []float64) float64 {
	if t.mode == ThresholdStatic || t.mode == "" || len(history) < MinAdaptiveHistory {
		return t.upper
	}
	var spread float64
	switch t.mode {
	case ThresholdMAD:
		spread = medianAbsoluteDeviation(history)
	case ThresholdIQR:
		spread = interquartileRange(history)
	}
	adaptive := 1 - t.safety*spread
	if adaptive <= t.lower {
		return t.upper
	}
	return adaptive
}

func (t Thresholds) String() string {
	if t.mode == ThresholdStatic || t.mode == "" {
		return fmt.Sprintf("lower=%.2f upper=%.2f", t.lower, t.upper)
	}
	return fmt.Sprintf("lower=%.2f upper=%.2f mode=%s s=%.2f", t.lower, t.upper, t.mode, t.safety)
}

func median(sorted []float64) float64 {
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

func medianAbsoluteDeviation(x []float64) float64 {
	sorted := slices.Clone(x)
	slices.Sort(sorted)
	m := median(sorted)
	dev := make([]float64, len(x))
	for i, v := range x {
		dev[i] = math.Abs(v - m)
	}
	slices.Sort(dev)
	return median(dev)
}

func interquartileRange(x []float64) float64 {
	sorted := slices.Clone(x)
	slices.Sort(sorted)
	return stat.Quantile(0.75, stat.Empirical, sorted, nil) - stat.Quantile(0.25, stat.Empirical, sorted, nil)
}
