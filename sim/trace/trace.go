package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures placement and migration decisions.
	TraceLevelDecisions TraceLevel = "decisions"
	// TraceLevelFull also captures every optimization pass.
	TraceLevelFull TraceLevel = "full"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	TraceLevelFull:      true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
	RunID string
}

// SimulationTrace collects decision records during a run. A nil *SimulationTrace
// records nothing, so callers need not check the level.
type SimulationTrace struct {
	Config      TraceConfig
	Allocations []AllocationRecord
	Migrations  []MigrationRecord
	Recomputes  []RecomputeRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
// Returns nil for TraceLevelNone.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	if config.Level == TraceLevelNone || config.Level == "" {
		return nil
	}
	return &SimulationTrace{
		Config:      config,
		Allocations: make([]AllocationRecord, 0),
		Migrations:  make([]MigrationRecord, 0),
		Recomputes:  make([]RecomputeRecord, 0),
	}
}

// RecordAllocation appends a placement decision record.
func (st *SimulationTrace) RecordAllocation(record AllocationRecord) {
	if st == nil {
		return
	}
	st.Allocations = append(st.Allocations, record)
}

// RecordMigration appends a completed migration record.
func (st *SimulationTrace) RecordMigration(record MigrationRecord) {
	if st == nil {
		return
	}
	st.Migrations = append(st.Migrations, record)
}

// RecordRecompute appends an optimization pass record at TraceLevelFull.
func (st *SimulationTrace) RecordRecompute(record RecomputeRecord) {
	if st == nil || st.Config.Level != TraceLevelFull {
		return
	}
	st.Recomputes = append(st.Recomputes, record)
}
