package workload

import (
	"fmt"

	"github.com/vmsim/vmsim/sim"
	"github.com/vmsim/vmsim/sim/cluster"
)

// VMPlan is one VM of a scenario together with its submission time and the tasks it
// runs once created.
type VMPlan struct {
	VM         *cluster.VM
	SubmitTime float64
	Tasks      []*cluster.Task
}

// Scenario is the materialized form of a ScenarioSpec.
type Scenario struct {
	Hosts []*cluster.Host
	VMs   []VMPlan
}

// NumTasks is the total task count over all VMs.
func (s *Scenario) NumTasks() int {
	n := 0
	for _, p := range s.VMs {
		n += len(p.Tasks)
	}
	return n
}

// BuildScenario materializes spec. VMs are owned by owner (the submitting broker).
// Task lengths draw from the workload stream of rng and each VM's stochastic
// utilization from its own per-VM stream, so adding a VM group does not perturb the
// draws of existing VMs.
// Deterministic given the same spec and rng key.
func BuildScenario(spec *ScenarioSpec, owner sim.EntityID, rng *sim.PartitionedRNG) (*Scenario, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	sc := &Scenario{
		Hosts: make([]*cluster.Host, 0, spec.NumHosts()),
		VMs:   make([]VMPlan, 0, spec.NumVMs()),
	}

	for _, g := range spec.Hosts {
		cfg := cluster.HostConfig{
			Cores:       g.Cores,
			MIPSPerCore: g.MIPSPerCore,
			RAM:         g.RAM,
			BW:          g.BW,
			Storage:     g.Storage,
		}
		for i := 0; i < g.Count; i++ {
			h, err := cluster.NewHost(len(sc.Hosts), cfg)
			if err != nil {
				return nil, err
			}
			sc.Hosts = append(sc.Hosts, h)
		}
	}

	lengthRNG := rng.ForSubsystem(sim.SubsystemWorkload)
	taskID := 0
	for gi := range spec.VMs {
		g := &spec.VMs[gi]

		samplers := make([]LengthSampler, len(g.Tasks))
		for ti := range g.Tasks {
			s, err := NewLengthSampler(g.Tasks[ti].Length)
			if err != nil {
				return nil, fmt.Errorf("vms[%d].tasks[%d] length: %w", gi, ti, err)
			}
			samplers[ti] = s
		}

		req := cluster.Resources{MIPS: g.MIPS, RAM: g.RAM, BW: g.BW, Storage: g.Storage}
		for i := 0; i < g.Count; i++ {
			id := len(sc.VMs)
			vm := cluster.NewVM(id, owner, g.PEs, req, nil)
			if g.Host != nil {
				vm.Pin(*g.Host)
			}

			plan := VMPlan{VM: vm, SubmitTime: g.SubmitTime}
			for ti := range g.Tasks {
				ts := &g.Tasks[ti]
				for k := 0; k < ts.PerVM; k++ {
					model := newUtilizationModel(ts.Utilization, rng, id)
					task := cluster.NewTask(taskID, samplers[ti].Sample(lengthRNG), model)
					task.SetOwner(owner)
					plan.Tasks = append(plan.Tasks, task)
					taskID++
				}
			}
			sc.VMs = append(sc.VMs, plan)
		}
	}
	return sc, nil
}

// newUtilizationModel builds the model for one task of VM vmID. Stochastic models of
// the same VM share its stream.
func newUtilizationModel(u UtilizationModelSpec, rng *sim.PartitionedRNG, vmID int) cluster.UtilizationModel {
	switch u.Model {
	case "constant":
		return cluster.Constant{Fraction: u.Fraction}
	case "stochastic":
		return cluster.NewStochastic(u.Min, u.Max, rng.ForSubsystem(sim.SubsystemVM(vmID)))
	case "trace":
		return cluster.NewTrace(u.Samples, u.Interval)
	default:
		return cluster.Full{}
	}
}
