package cluster

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// UtilizationModel gives the fraction of its VM's CPU a task demands at time t.
// Implementations return values in [0, 1].
type UtilizationModel interface {
	Utilization(t float64) float64
}

// Full demands the whole VM at all times.
type Full struct{}

func (Full) Utilization(float64) float64 { return 1 }

// Constant demands a fixed fraction of the VM.
type Constant struct {
	Fraction float64
}

func (c Constant) Utilization(float64) float64 { return clamp01(c.Fraction) }

// Stochastic draws a uniform fraction in [Min, Max] the first time each instant is
// queried and returns the same value for later queries at that instant, so that every
// reader within one dispatch sees a consistent load.
type Stochastic struct {
	dist  distuv.Uniform
	cache map[float64]float64
}

// NewStochastic creates a stochastic model sampling from [min, max] with src.
// Panics if src is nil or the bounds are not 0 <= min <= max <= 1.
func NewStochastic(min, max float64, src *rand.Rand) *Stochastic {
	if src == nil {
		panic("NewStochastic: src must not be nil")
	}
	if min < 0 || max > 1 || min > max {
		panic(fmt.Sprintf("NewStochastic: invalid bounds [%v, %v]", min, max))
	}
	return &Stochastic{
		dist:  distuv.Uniform{Min: min, Max: max, Src: src},
		cache: make(map[float64]float64),
	}
}

func (s *Stochastic) Utilization(t float64) float64 {
	if u, ok := s.cache[t]; ok {
		return u
	}
	u := s.dist.Rand()
	s.cache[t] = u
	return u
}

// Trace replays utilization samples recorded at a fixed interval, interpolating
// linearly between them. Times past the last sample hold its value.
type Trace struct {
	samples  []float64
	interval float64
}

// NewTrace creates a trace model. Panics on an empty trace or non-positive interval.
func NewTrace(samples []float64, interval float64) *Trace {
	if len(samples) == 0 {
		panic("NewTrace: samples must not be empty")
	}
	if interval <= 0 {
		panic(fmt.Sprintf("NewTrace: interval must be > 0, got %v", interval))
	}
	cp := make([]float64, len(samples))
	for i, s := range samples {
		cp[i] = clamp01(s)
	}
	return &Trace{samples: cp, interval: interval}
}

func (tr *Trace) Utilization(t float64) float64 {
	if t <= 0 {
		return tr.samples[0]
	}
	pos := t / tr.interval
	i := int(math.Floor(pos))
	if i >= len(tr.samples)-1 {
		return tr.samples[len(tr.samples)-1]
	}
	frac := pos - float64(i)
	return tr.samples[i] + (tr.samples[i+1]-tr.samples[i])*frac
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
