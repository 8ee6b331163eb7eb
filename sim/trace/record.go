// Package trace provides decision-trace recording for allocation and migration analysis.
// This package has no dependencies on sim/ or its other sub-packages; it stores pure data types.
package trace

// NoHost marks a record field that refers to no host.
const NoHost = -1

// AllocationRecord captures a single initial-placement decision.
type AllocationRecord struct {
	Clock   float64
	VMID    int
	HostID  int // NoHost when placement failed
	Success bool
	Pinned  bool
	Attempt int // 0 for the first submission, n for the n-th retry
}

// MigrationRecord captures one completed migration.
type MigrationRecord struct {
	VMID       int
	SourceHost int
	TargetHost int
	Reason     string
	Planned    float64 // clock of the optimization pass that proposed it
	Start      float64
	End        float64
}

// Duration is End - Start.
func (m MigrationRecord) Duration() float64 { return m.End - m.Start }

// RecomputeRecord captures one optimization pass.
type RecomputeRecord struct {
	Clock       float64
	ActiveHosts int
	PlanSize    int
	MeanUtil    float64
}
