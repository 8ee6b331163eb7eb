package trace

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	Placements         int
	FailedPlacements   int
	Migrations         int
	MeanMigrationTime  float64
	MaxMigrationTime   float64
	MigrationsByReason map[string]int
	UniqueTargets      int
	TargetDistribution map[int]int // host ID → migrations received
	OptimizationPasses int
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		MigrationsByReason: make(map[string]int),
		TargetDistribution: make(map[int]int),
	}
	if st == nil {
		return summary
	}

	for _, a := range st.Allocations {
		if a.Success {
			summary.Placements++
		} else {
			summary.FailedPlacements++
		}
	}

	summary.Migrations = len(st.Migrations)
	if len(st.Migrations) > 0 {
		durations := make([]float64, len(st.Migrations))
		for i, m := range st.Migrations {
			durations[i] = m.Duration()
			summary.MigrationsByReason[m.Reason]++
			summary.TargetDistribution[m.TargetHost]++
		}
		summary.MeanMigrationTime = stat.Mean(durations, nil)
		summary.MaxMigrationTime = floats.Max(durations)
	}

	summary.UniqueTargets = len(summary.TargetDistribution)
	summary.OptimizationPasses = len(st.Recomputes)

	return summary
}
