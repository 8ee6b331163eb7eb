package datacenter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vmsim/vmsim/sim"
	"github.com/vmsim/vmsim/sim/cluster"
	"github.com/vmsim/vmsim/sim/policy"
	"github.com/vmsim/vmsim/sim/trace"
	"github.com/vmsim/vmsim/sim/workload"
)

// harness wires a broker and a datacenter into a fresh simulator.
type harness struct {
	s        *sim.Simulator
	dc       *Datacenter
	broker   *Broker
	hosts    []*cluster.Host
	nextTask int
}

func newHarness(t *testing.T, hosts []*cluster.Host, upper, lower float64, cfg Config, bcfg BrokerConfig) *harness {
	t.Helper()
	th, err := policy.NewThresholds(lower, upper)
	require.NoError(t, err)
	s := sim.NewSimulator()
	b := NewBroker("broker", bcfg)
	s.Register(b)
	dc := New("datacenter", hosts, policy.NewThresholdPolicy(th, policy.MinimumUtilization{}), cfg,
		trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelFull}))
	s.Register(dc)
	return &harness{s: s, dc: dc, broker: b, hosts: hosts}
}

// newHosts creates n single-core hosts of mips MIPS with bw bandwidth.
func newHosts(t *testing.T, n int, mips float64, bw int64) []*cluster.Host {
	t.Helper()
	hosts := make([]*cluster.Host, n)
	for i := range hosts {
		h, err := cluster.NewHost(i, cluster.HostConfig{Cores: 1, MIPSPerCore: mips, RAM: 8192, BW: bw, Storage: 100000})
		require.NoError(t, err)
		hosts[i] = h
	}
	return hosts
}

// plan builds a broker-owned VM submitted at submit with one full-load task per length.
func (h *harness) plan(id int, mips, submit float64, lengths ...float64) workload.VMPlan {
	vm := cluster.NewVM(id, h.broker.ID(), 1, cluster.Resources{MIPS: mips, RAM: 1024, BW: 100, Storage: 1000}, nil)
	p := workload.VMPlan{VM: vm, SubmitTime: submit}
	for _, l := range lengths {
		task := cluster.NewTask(h.nextTask, l, nil)
		task.SetOwner(h.broker.ID())
		h.nextTask++
		p.Tasks = append(p.Tasks, task)
	}
	return p
}

func (h *harness) submit(plans ...workload.VMPlan) {
	h.broker.Submit(h.dc.ID(), plans)
	h.s.SetTerminationPredicate(func(*sim.Simulator) bool { return h.broker.Finished() })
}

// step advances the clock by delta and fails the test on an abort.
func (h *harness) step(t *testing.T, delta float64) bool {
	t.Helper()
	running, err := h.s.Step(delta)
	require.NoError(t, err)
	return running
}

func ptr[T any](v T) *T { return &v }

// fourHostSpec is three VMs spread by worst-fit plus a fourth pinned onto host 0,
// which pushes host 0 to full load on 2000-MIPS single-core hosts.
func fourHostSpec() *workload.ScenarioSpec {
	full := []workload.TaskSpec{{
		PerVM:  1,
		Length: workload.DistSpec{Type: "constant", Params: map[string]float64{"value": 600000}},
	}}
	return &workload.ScenarioSpec{
		Name:       "over-utilized",
		Seed:       1,
		TraceLevel: "full",
		Hosts: []workload.HostGroupSpec{
			{Count: 4, Cores: 1, MIPSPerCore: 2000, RAM: 8192, BW: 2000, Storage: 100000},
		},
		VMs: []workload.VMGroupSpec{
			{Count: 3, PEs: 1, MIPS: 1000, RAM: 1024, BW: 100, Storage: 1000, Tasks: full},
			{Count: 1, PEs: 1, MIPS: 1000, RAM: 1024, BW: 100, Storage: 1000, Host: ptr(0), Tasks: full},
		},
		Policy: policy.Bundle{
			UpperThreshold:     ptr(0.7),
			LowerThreshold:     ptr(0.35),
			SchedulingInterval: ptr(300.0),
		},
	}
}
