package workload

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// LengthSampler generates task lengths in MI.
type LengthSampler interface {
	// Sample returns a positive length (>= 1 MI).
	Sample(rng *rand.Rand) float64
}

// ConstantSampler always returns the same length.
type ConstantSampler struct {
	value float64
}

func (s *ConstantSampler) Sample(_ *rand.Rand) float64 { return atLeastOne(s.value) }

// GaussianSampler produces Gaussian lengths clamped to [min, max].
type GaussianSampler struct {
	mean, stdDev float64
	min, max     float64
}

func (s *GaussianSampler) Sample(rng *rand.Rand) float64 {
	if s.stdDev == 0 || s.min == s.max {
		return atLeastOne(math.Min(s.max, math.Max(s.min, s.mean)))
	}
	val := distuv.Normal{Mu: s.mean, Sigma: s.stdDev, Src: rng}.Rand()
	return atLeastOne(math.Min(s.max, math.Max(s.min, val)))
}

// ExponentialSampler produces exponentially distributed lengths.
type ExponentialSampler struct {
	mean float64
}

func (s *ExponentialSampler) Sample(rng *rand.Rand) float64 {
	return atLeastOne(distuv.Exponential{Rate: 1 / s.mean, Src: rng}.Rand())
}

// LogNormalSampler produces lengths whose logarithm is Normal(mu, sigma).
type LogNormalSampler struct {
	mu, sigma float64
}

func (s *LogNormalSampler) Sample(rng *rand.Rand) float64 {
	val := distuv.LogNormal{Mu: s.mu, Sigma: s.sigma, Src: rng}.Rand()
	if math.IsInf(val, 0) || math.IsNaN(val) {
		return 1
	}
	return atLeastOne(val)
}

// UniformSampler produces lengths uniformly distributed in [min, max].
type UniformSampler struct {
	min, max float64
}

func (s *UniformSampler) Sample(rng *rand.Rand) float64 {
	if s.min == s.max {
		return atLeastOne(s.min)
	}
	return atLeastOne(distuv.Uniform{Min: s.min, Max: s.max, Src: rng}.Rand())
}

func atLeastOne(v float64) float64 {
	if v < 1 {
		return 1
	}
	return v
}

// requireParam checks that all required keys exist in a params map.
func requireParam(params map[string]float64, keys ...string) error {
	for _, k := range keys {
		if _, ok := params[k]; !ok {
			return fmt.Errorf("distribution requires parameter %q", k)
		}
	}
	return nil
}

// NewLengthSampler creates a LengthSampler from a DistSpec.
func NewLengthSampler(spec DistSpec) (LengthSampler, error) {
	switch spec.Type {
	case "constant":
		if err := requireParam(spec.Params, "value"); err != nil {
			return nil, err
		}
		return &ConstantSampler{value: spec.Params["value"]}, nil

	case "gaussian":
		if err := requireParam(spec.Params, "mean", "std_dev"); err != nil {
			return nil, err
		}
		s := &GaussianSampler{
			mean:   spec.Params["mean"],
			stdDev: spec.Params["std_dev"],
			min:    1,
			max:    math.Inf(1),
		}
		if v, ok := spec.Params["min"]; ok {
			s.min = v
		}
		if v, ok := spec.Params["max"]; ok {
			s.max = v
		}
		if s.stdDev < 0 || s.min > s.max {
			return nil, fmt.Errorf("gaussian distribution: invalid std_dev %f or range [%f, %f]", s.stdDev, s.min, s.max)
		}
		return s, nil

	case "exponential":
		if err := requireParam(spec.Params, "mean"); err != nil {
			return nil, err
		}
		if spec.Params["mean"] <= 0 {
			return nil, fmt.Errorf("exponential distribution: mean must be positive, got %f", spec.Params["mean"])
		}
		return &ExponentialSampler{mean: spec.Params["mean"]}, nil

	case "lognormal":
		if err := requireParam(spec.Params, "mu", "sigma"); err != nil {
			return nil, err
		}
		if spec.Params["sigma"] < 0 {
			return nil, fmt.Errorf("lognormal distribution: sigma must be non-negative, got %f", spec.Params["sigma"])
		}
		return &LogNormalSampler{mu: spec.Params["mu"], sigma: spec.Params["sigma"]}, nil

	case "uniform":
		if err := requireParam(spec.Params, "min", "max"); err != nil {
			return nil, err
		}
		if spec.Params["min"] > spec.Params["max"] {
			return nil, fmt.Errorf("uniform distribution: min %f exceeds max %f", spec.Params["min"], spec.Params["max"])
		}
		return &UniformSampler{min: spec.Params["min"], max: spec.Params["max"]}, nil

	default:
		return nil, fmt.Errorf("unknown distribution type %q", spec.Type)
	}
}
