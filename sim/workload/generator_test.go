package workload

import (
	"testing"

	"github.com/vmsim/vmsim/sim"
	"github.com/vmsim/vmsim/sim/cluster"
)

func TestBuildScenario_MaterializesGroupsInOrder(t *testing.T) {
	// GIVEN the consolidation scenario
	spec, err := LoadScenario(writeScenario(t, consolidationScenario))
	if err != nil {
		t.Fatal(err)
	}

	// WHEN built for broker entity 3
	sc, err := BuildScenario(spec, 3, sim.NewPartitionedRNG(sim.NewSimulationKey(spec.Seed)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN hosts and VMs carry sequential IDs in file order
	if len(sc.Hosts) != 4 {
		t.Fatalf("hosts = %d, want 4", len(sc.Hosts))
	}
	for i, h := range sc.Hosts {
		if h.ID() != i || h.TotalMIPS() != 2000 {
			t.Errorf("host %d: id=%d mips=%f", i, h.ID(), h.TotalMIPS())
		}
	}
	if len(sc.VMs) != 4 {
		t.Fatalf("vms = %d, want 4", len(sc.VMs))
	}
	for i, p := range sc.VMs {
		if p.VM.ID() != i || p.VM.Owner() != 3 {
			t.Errorf("vm %d: id=%d owner=%d", i, p.VM.ID(), p.VM.Owner())
		}
		if p.VM.State() != cluster.VMUnplaced {
			t.Errorf("vm %d should start unplaced, got %v", i, p.VM.State())
		}
	}

	// AND only the last VM is pinned, to host 0
	if _, pinned := sc.VMs[0].VM.PinnedHost(); pinned {
		t.Error("vm 0 should not be pinned")
	}
	if h, pinned := sc.VMs[3].VM.PinnedHost(); !pinned || h != 0 {
		t.Errorf("vm 3 pin = %d/%v, want 0/true", h, pinned)
	}

	// AND each VM carries its tasks with unique IDs
	if sc.NumTasks() != 5 {
		t.Errorf("tasks = %d, want 3*1 + 1*2", sc.NumTasks())
	}
	seen := map[int]bool{}
	for _, p := range sc.VMs {
		for _, task := range p.Tasks {
			if seen[task.ID()] {
				t.Errorf("duplicate task id %d", task.ID())
			}
			seen[task.ID()] = true
			if task.Owner() != 3 {
				t.Errorf("task %d owner = %d, want 3", task.ID(), task.Owner())
			}
		}
	}
	if got := sc.VMs[0].Tasks[0].Length(); got != 600000 {
		t.Errorf("constant length = %f, want 600000", got)
	}
	u := sc.VMs[3].Tasks[0].Model().Utilization(10)
	if u < 0.4 || u > 0.6 {
		t.Errorf("stochastic utilization %f outside [0.4, 0.6]", u)
	}
}

func TestBuildScenario_SameSeedSameScenario(t *testing.T) {
	spec, err := LoadScenario(writeScenario(t, consolidationScenario))
	if err != nil {
		t.Fatal(err)
	}
	a, err := BuildScenario(spec, 0, sim.NewPartitionedRNG(sim.NewSimulationKey(11)))
	if err != nil {
		t.Fatal(err)
	}
	b, err := BuildScenario(spec, 0, sim.NewPartitionedRNG(sim.NewSimulationKey(11)))
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.VMs {
		for j := range a.VMs[i].Tasks {
			ta, tb := a.VMs[i].Tasks[j], b.VMs[i].Tasks[j]
			if ta.Length() != tb.Length() {
				t.Errorf("vm %d task %d length differs: %f vs %f", i, j, ta.Length(), tb.Length())
			}
			if ta.Model().Utilization(300) != tb.Model().Utilization(300) {
				t.Errorf("vm %d task %d utilization differs", i, j)
			}
		}
	}
}

func TestBuildScenario_InvalidSpec_ReturnsError(t *testing.T) {
	spec := validSpec()
	spec.Hosts[0].Count = 0
	if _, err := BuildScenario(spec, 0, sim.NewPartitionedRNG(sim.NewSimulationKey(1))); err == nil {
		t.Fatal("expected error for invalid scenario")
	}
}

func TestNewUtilizationModel_Kinds(t *testing.T) {
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(1))
	if got := newUtilizationModel(UtilizationModelSpec{}, rng, 0).Utilization(5); got != 1 {
		t.Errorf("default model = %f, want full", got)
	}
	if got := newUtilizationModel(UtilizationModelSpec{Model: "constant", Fraction: 0.3}, rng, 0).Utilization(5); got != 0.3 {
		t.Errorf("constant model = %f, want 0.3", got)
	}
	tr := newUtilizationModel(UtilizationModelSpec{Model: "trace", Samples: []float64{0.2, 0.6}, Interval: 100}, rng, 0)
	if got := tr.Utilization(50); got < 0.399 || got > 0.401 {
		t.Errorf("trace model at midpoint = %f, want 0.4", got)
	}
}
