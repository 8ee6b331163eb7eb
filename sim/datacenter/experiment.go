package datacenter

import (
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/vmsim/vmsim/sim"
	"github.com/vmsim/vmsim/sim/policy"
	"github.com/vmsim/vmsim/sim/trace"
	"github.com/vmsim/vmsim/sim/workload"
)

// runNamespace scopes run identifiers generated by NewRunID.
var runNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/vmsim/vmsim/run"))

// NewRunID derives a stable identifier for a scenario and seed, so repeated runs of
// the same configuration can be matched across reports.
func NewRunID(name string, seed int64) string {
	return uuid.NewSHA1(runNamespace, []byte(fmt.Sprintf("%s/%d", name, seed))).String()
}

// Report is the outcome of one scenario run.
type Report struct {
	RunID    string
	Scenario string
	Seed     int64
	EndClock float64
	Events   uint64

	Hosts         int
	CreatedVMs    []int
	NeverCreated  []int
	TotalTasks    int
	FinishedTasks int

	TaskTurnaround  Distribution // seconds from task submission to completion
	HostUtilization Distribution // active-host utilization sampled at each recompute

	Stats   Stats
	Trace   *trace.SimulationTrace
	Summary *trace.TraceSummary
}

// Experiment is a scenario wired into a simulator, ready to run or step.
type Experiment struct {
	RunID      string
	Spec       *workload.ScenarioSpec
	Scenario   *workload.Scenario
	Sim        *sim.Simulator
	Datacenter *Datacenter
	Broker     *Broker
	Trace      *trace.SimulationTrace
}

// NewExperiment validates spec, builds its hosts, VMs and tasks and registers the
// broker and datacenter entities. The run stops when every VM is done, the horizon
// passes or no events remain.
func NewExperiment(spec *workload.ScenarioSpec) (*Experiment, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(spec.Seed))
	pol, err := spec.Policy.NewPolicy(rng.ForSubsystem(sim.SubsystemSelection))
	if err != nil {
		return nil, fmt.Errorf("building policy: %w", err)
	}

	runID := NewRunID(spec.Name, spec.Seed)
	st := trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevel(spec.TraceLevel), RunID: runID})

	s := sim.NewSimulator()
	broker := NewBroker("broker", BrokerConfig{RetryInterval: spec.RetryInterval, MaxRetries: spec.MaxRetries})
	brokerID := s.Register(broker)

	sc, err := workload.BuildScenario(spec, brokerID, rng)
	if err != nil {
		return nil, err
	}
	dc := New("datacenter", sc.Hosts, pol, Config{
		SchedulingInterval: spec.Policy.Interval(),
		Migrations:         spec.Policy.MigrationsEnabled(),
	}, st)
	broker.Submit(s.Register(dc), sc.VMs)

	if spec.Horizon > 0 {
		s.TerminateAt(spec.Horizon)
	}
	s.SetTerminationPredicate(func(*sim.Simulator) bool { return broker.Finished() })

	return &Experiment{
		RunID:      runID,
		Spec:       spec,
		Scenario:   sc,
		Sim:        s,
		Datacenter: dc,
		Broker:     broker,
		Trace:      st,
	}, nil
}

// Run runs the experiment to termination and reports the result. Unplaceable VMs
// are reported, not errors.
func (e *Experiment) Run() (*Report, error) {
	if err := e.Sim.Run(); err != nil {
		return nil, fmt.Errorf("running scenario %q: %w", e.Spec.Name, err)
	}
	return e.Report(), nil
}

// Report summarizes the experiment in its current state.
func (e *Experiment) Report() *Report {
	var turnaround []float64
	finished := e.Broker.FinishedTasks()
	for _, t := range finished {
		turnaround = append(turnaround, t.FinishTime()-t.SubmitTime())
	}
	return &Report{
		RunID:           e.RunID,
		Scenario:        e.Spec.Name,
		Seed:            e.Spec.Seed,
		EndClock:        e.Sim.Clock(),
		Events:          e.Sim.Dispatched(),
		Hosts:           len(e.Scenario.Hosts),
		CreatedVMs:      e.Broker.Created(),
		NeverCreated:    e.Broker.NeverCreated(),
		TotalTasks:      e.Scenario.NumTasks(),
		FinishedTasks:   len(finished),
		TaskTurnaround:  NewDistribution(turnaround),
		HostUtilization: NewDistribution(e.Datacenter.UtilizationSamples()),
		Stats:           e.Datacenter.Stats(),
		Trace:           e.Trace,
		Summary:         trace.Summarize(e.Trace),
	}
}

// RunScenario builds and runs spec in one call.
func RunScenario(spec *workload.ScenarioSpec) (*Report, error) {
	exp, err := NewExperiment(spec)
	if err != nil {
		return nil, err
	}
	return exp.Run()
}

// Print writes a plain-text summary of the run.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Simulation Report ===")
	fmt.Fprintf(w, "Run ID               : %s\n", r.RunID)
	if r.Scenario != "" {
		fmt.Fprintf(w, "Scenario             : %s (seed %d)\n", r.Scenario, r.Seed)
	}
	fmt.Fprintf(w, "End Clock            : %.3f s\n", r.EndClock)
	fmt.Fprintf(w, "Events Dispatched    : %d\n", r.Events)
	fmt.Fprintf(w, "Hosts                : %d\n", r.Hosts)
	fmt.Fprintf(w, "VMs Created          : %d\n", len(r.CreatedVMs))
	fmt.Fprintf(w, "Tasks Finished       : %d / %d\n", r.FinishedTasks, r.TotalTasks)
	if r.TaskTurnaround.Count > 0 {
		fmt.Fprintf(w, "Task Turnaround      : mean %.2f s, p50 %.2f s, p99 %.2f s\n",
			r.TaskTurnaround.Mean, r.TaskTurnaround.P50, r.TaskTurnaround.P99)
	}
	if r.HostUtilization.Count > 0 {
		fmt.Fprintf(w, "Active Host Util     : mean %.3f, p95 %.3f, max %.3f\n",
			r.HostUtilization.Mean, r.HostUtilization.P95, r.HostUtilization.Max)
	}
	fmt.Fprintf(w, "Recomputes           : %d\n", r.Stats.Recomputes)
	fmt.Fprintf(w, "Migrations           : %d completed, %d cancelled\n", r.Stats.MigrationsCompleted, r.Stats.MigrationsCancelled)
	if r.Summary != nil && r.Summary.Migrations > 0 {
		fmt.Fprintf(w, "Migration Time       : mean %.3f s, max %.3f s\n", r.Summary.MeanMigrationTime, r.Summary.MaxMigrationTime)
		for _, reason := range []policy.MigrationReason{policy.ReasonOverUtilized, policy.ReasonConsolidation} {
			if n := r.Summary.MigrationsByReason[string(reason)]; n > 0 {
				fmt.Fprintf(w, "  %-19s: %d\n", reason, n)
			}
		}
	}
	if len(r.NeverCreated) > 0 {
		fmt.Fprintf(w, "Never Created VMs    : %v\n", r.NeverCreated)
	}
}
