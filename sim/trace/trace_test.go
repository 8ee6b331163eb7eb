package trace

import (
	"testing"
)

func TestSimulationTrace_RecordAllocation_AppendsRecord(t *testing.T) {
	// GIVEN a trace configured for decisions
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDecisions})

	// WHEN an allocation record is recorded
	st.RecordAllocation(AllocationRecord{Clock: 0, VMID: 3, HostID: 1, Success: true})

	// THEN the trace contains one allocation record with correct data
	if len(st.Allocations) != 1 {
		t.Fatalf("expected 1 allocation, got %d", len(st.Allocations))
	}
	if st.Allocations[0].VMID != 3 || st.Allocations[0].HostID != 1 {
		t.Errorf("unexpected record %+v", st.Allocations[0])
	}
}

func TestSimulationTrace_MultipleRecords_PreservesOrder(t *testing.T) {
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDecisions})

	st.RecordMigration(MigrationRecord{VMID: 1, SourceHost: 0, TargetHost: 2, Start: 300, End: 301.024})
	st.RecordMigration(MigrationRecord{VMID: 4, SourceHost: 1, TargetHost: 2, Start: 300, End: 302})

	if len(st.Migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(st.Migrations))
	}
	if st.Migrations[0].VMID != 1 || st.Migrations[1].VMID != 4 {
		t.Error("migration order not preserved")
	}
}

func TestSimulationTrace_NoneLevelIsNil(t *testing.T) {
	// GIVEN tracing disabled
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelNone})

	// WHEN recording on the nil trace
	st.RecordAllocation(AllocationRecord{VMID: 1})
	st.RecordMigration(MigrationRecord{VMID: 1})
	st.RecordRecompute(RecomputeRecord{Clock: 1})

	// THEN nothing panics and there is no trace
	if st != nil {
		t.Fatalf("expected nil trace for level none, got %+v", st)
	}
}

func TestSimulationTrace_RecomputesOnlyAtFullLevel(t *testing.T) {
	decisions := NewSimulationTrace(TraceConfig{Level: TraceLevelDecisions})
	full := NewSimulationTrace(TraceConfig{Level: TraceLevelFull})

	decisions.RecordRecompute(RecomputeRecord{Clock: 300, PlanSize: 2})
	full.RecordRecompute(RecomputeRecord{Clock: 300, PlanSize: 2})

	if len(decisions.Recomputes) != 0 {
		t.Errorf("decisions level recorded %d passes", len(decisions.Recomputes))
	}
	if len(full.Recomputes) != 1 {
		t.Errorf("full level recorded %d passes, want 1", len(full.Recomputes))
	}
}

func TestIsValidTraceLevel_ValidLevels(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"none", true},
		{"decisions", true},
		{"full", true},
		{"", true},
		{"verbose", false},
		{"DECISIONS", false},
	}
	for _, tt := range tests {
		if got := IsValidTraceLevel(tt.level); got != tt.valid {
			t.Errorf("IsValidTraceLevel(%q) = %v, want %v", tt.level, got, tt.valid)
		}
	}
}
