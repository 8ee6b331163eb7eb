package datacenter

import (
	"fmt"
	"math"
	"slices"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/vmsim/vmsim/sim"
	"github.com/vmsim/vmsim/sim/cluster"
	"github.com/vmsim/vmsim/sim/policy"
	"github.com/vmsim/vmsim/sim/trace"
)

// Config parameterizes a Datacenter.
type Config struct {
	// SchedulingInterval is the recompute period in seconds. Zero recomputes only
	// when a task is due to finish.
	SchedulingInterval float64
	// Migrations enables the periodic OptimizeAllocation pass.
	Migrations bool
}

// Stats counts what a Datacenter did during a run.
type Stats struct {
	Placements          int
	FailedPlacements    int
	MigrationsPlanned   int
	MigrationsStarted   int
	MigrationsCompleted int
	MigrationsCancelled int
	Recomputes          int
	FinishedTasks       int
}

// Datacenter owns the hosts, is the only caller of the allocation policy, and
// translates its decisions into VM membership changes and timed migration events.
type Datacenter struct {
	sim.BaseEntity

	hosts  []*cluster.Host
	vms    map[int]*cluster.VM // live VMs by ID
	policy policy.AllocationPolicy
	config Config
	trace  *trace.SimulationTrace
	stats  Stats

	utilSamples []float64 // active-host utilization at each recompute
}

// New creates a datacenter entity over hosts. Host IDs must equal their index.
// Panics on an empty host list or a nil policy.
func New(name string, hosts []*cluster.Host, p policy.AllocationPolicy, cfg Config, st *trace.SimulationTrace) *Datacenter {
	if len(hosts) == 0 {
		panic("Datacenter: hosts must not be empty")
	}
	if p == nil {
		panic("Datacenter: policy must not be nil")
	}
	for i, h := range hosts {
		if h.ID() != i {
			panic(fmt.Sprintf("Datacenter: host at index %d has ID %d", i, h.ID()))
		}
	}
	if cfg.SchedulingInterval < 0 {
		panic(fmt.Sprintf("Datacenter: scheduling interval must be >= 0, got %v", cfg.SchedulingInterval))
	}
	dc := &Datacenter{
		hosts:  hosts,
		vms:    make(map[int]*cluster.VM),
		policy: p,
		config: cfg,
		trace:  st,
	}
	dc.Init(name, sim.HandlerTable{
		TagVMCreate:          dc.handleVMCreate,
		TagVMDestroy:         dc.handleVMDestroy,
		TagTaskSubmit:        dc.handleTaskSubmit,
		TagRecompute:         dc.handleRecompute,
		TagMigrationStart:    dc.handleMigrationStart,
		TagMigrationComplete: dc.handleMigrationComplete,
	})
	return dc
}

func (dc *Datacenter) Hosts() []*cluster.Host { return dc.hosts }
func (dc *Datacenter) Stats() Stats           { return dc.stats }

// UtilizationSamples returns the utilization of every active host at every recompute.
func (dc *Datacenter) UtilizationSamples() []float64 { return slices.Clone(dc.utilSamples) }

// VM returns the live VM with the given ID.
func (dc *Datacenter) VM(id int) (*cluster.VM, bool) {
	vm, ok := dc.vms[id]
	return vm, ok
}

// ActiveHosts counts hosts running at least one VM.
func (dc *Datacenter) ActiveHosts() int {
	n := 0
	for _, h := range dc.hosts {
		if h.NumVMs() > 0 {
			n++
		}
	}
	return n
}

// ScheduleRecompute replaces any pending recompute event with one delay seconds from
// now, so at most one is ever outstanding.
func (dc *Datacenter) ScheduleRecompute(s *sim.Simulator, delay float64) {
	if n := s.Cancel(dc.recomputeEvents()); n > 0 {
		logrus.Debugf("[t=%.3f] %s: replaced %d pending recompute(s)", s.Clock(), dc.Name(), n)
	}
	dc.ScheduleSelf(s, delay, TagRecompute, nil)
}

func (dc *Datacenter) recomputeEvents() sim.Predicate {
	return sim.And(sim.DestinedFor(dc.ID()), sim.TagIs(TagRecompute))
}

// Shutdown terminates every live VM.
func (dc *Datacenter) Shutdown(s *sim.Simulator) {
	for _, vm := range dc.liveVMs() {
		if h, ok := vm.Host(); ok {
			h.Deallocate(vm)
		}
		if t, ok := vm.MigrationTarget(); ok {
			t.Deallocate(vm)
		}
		vm.Terminate()
	}
	logrus.Infof("[t=%.3f] %s: shut down with %d live VMs", s.Clock(), dc.Name(), len(dc.vms))
	clear(dc.vms)
}

func (dc *Datacenter) handleVMCreate(s *sim.Simulator, ev *sim.Event) {
	req := ev.Payload().(*CreateRequest)
	vm := req.VM
	now := s.Clock()

	host, pinned := dc.placeVM(vm, now)
	ack := &CreateAck{VM: vm, Host: host, Success: host != nil}
	rec := trace.AllocationRecord{Clock: now, VMID: vm.ID(), HostID: trace.NoHost, Pinned: pinned, Attempt: req.Attempt}
	if host != nil {
		dc.vms[vm.ID()] = vm
		dc.stats.Placements++
		rec.HostID = host.ID()
		rec.Success = true
		logrus.Debugf("[t=%.3f] %s: vm %d placed on host %d", now, dc.Name(), vm.ID(), host.ID())
	} else {
		dc.stats.FailedPlacements++
		logrus.Infof("[t=%.3f] %s: no host for vm %d", now, dc.Name(), vm.ID())
	}
	dc.trace.RecordAllocation(rec)
	dc.Schedule(s, ev.Src(), 0, TagVMCreateAck, ack)
}

// placeVM allocates vm on its pinned host or on the policy's choice. A pinned VM
// skips the threshold check but not the capacity check.
func (dc *Datacenter) placeVM(vm *cluster.VM, now float64) (*cluster.Host, bool) {
	if id, ok := vm.PinnedHost(); ok {
		if id >= len(dc.hosts) {
			logrus.Warnf("%s: vm %d pinned to unknown host %d", dc.Name(), vm.ID(), id)
			return nil, true
		}
		h := dc.hosts[id]
		if err := h.Allocate(vm); err != nil {
			logrus.Infof("%s: pinned vm %d rejected: %v", dc.Name(), vm.ID(), err)
			return nil, true
		}
		return h, true
	}
	h, ok := dc.policy.FindHostForVM(dc.hosts, vm, nil, now)
	if !ok {
		return nil, false
	}
	if err := h.Allocate(vm); err != nil {
		logrus.Warnf("%s: policy chose host %d for vm %d but allocation failed: %v", dc.Name(), h.ID(), vm.ID(), err)
		return nil, false
	}
	return h, false
}

func (dc *Datacenter) handleVMDestroy(s *sim.Simulator, ev *sim.Event) {
	vm := ev.Payload().(*cluster.VM)
	if _, ok := dc.vms[vm.ID()]; !ok {
		logrus.Warnf("[t=%.3f] %s: destroy for unknown vm %d", s.Clock(), dc.Name(), vm.ID())
		return
	}
	if t, ok := vm.MigrationTarget(); ok {
		t.Deallocate(vm)
		dc.stats.MigrationsCancelled++
	}
	if h, ok := vm.Host(); ok {
		h.Deallocate(vm)
	}
	vm.Terminate()
	delete(dc.vms, vm.ID())
	logrus.Debugf("[t=%.3f] %s: vm %d destroyed", s.Clock(), dc.Name(), vm.ID())
}

func (dc *Datacenter) handleTaskSubmit(s *sim.Simulator, ev *sim.Event) {
	task := ev.Payload().(*cluster.Task)
	vm, ok := dc.vms[task.VMID()]
	if !ok {
		s.Abort(fmt.Errorf("%s: task %d submitted to unknown vm %d", dc.Name(), task.ID(), task.VMID()))
		return
	}
	// Bring running tasks up to now before the share changes.
	dc.updateProcessing(s)
	vm.SubmitTask(task, s.Clock())
	next := vm.UpdateProcessing(s.Clock())

	if dc.config.SchedulingInterval > 0 {
		if _, pending := s.FindFuture(dc.recomputeEvents()); !pending {
			dc.ScheduleRecompute(s, dc.config.SchedulingInterval)
		}
		return
	}
	if pendingEv, pending := s.FindFuture(dc.recomputeEvents()); pending && pendingEv.Time() <= s.Clock()+next {
		return
	}
	dc.ScheduleRecompute(s, next)
}

// handleRecompute advances every VM's tasks, samples utilization, runs the
// optimization pass and schedules the next recompute.
func (dc *Datacenter) handleRecompute(s *sim.Simulator, _ *sim.Event) {
	now := s.Clock()
	dc.stats.Recomputes++
	next := dc.updateProcessing(s)
	for _, h := range dc.hosts {
		h.RecordUtilization(now)
		if h.NumVMs() > 0 {
			dc.utilSamples = append(dc.utilSamples, h.Utilization(now))
		}
	}
	for _, vm := range dc.liveVMs() {
		vm.RecordUtilization(now)
	}

	if dc.config.Migrations && now > 0 {
		plan := dc.policy.OptimizeAllocation(dc.hosts, now)
		dc.trace.RecordRecompute(trace.RecomputeRecord{
			Clock:       now,
			ActiveHosts: dc.ActiveHosts(),
			PlanSize:    plan.Len(),
			MeanUtil:    dc.meanUtilization(now),
		})
		dc.dispatchPlan(s, plan)
	}

	if !dc.hasActiveTasks() {
		s.Cancel(dc.recomputeEvents())
		logrus.Debugf("[t=%.3f] %s: no active tasks, recompute cadence paused", now, dc.Name())
		return
	}
	if dc.config.SchedulingInterval > 0 {
		dc.ScheduleRecompute(s, dc.config.SchedulingInterval)
	} else {
		dc.ScheduleRecompute(s, next)
	}
}

// updateProcessing advances every live VM to now, returns finished tasks to their
// owners and returns the delay until the earliest upcoming task completion.
func (dc *Datacenter) updateProcessing(s *sim.Simulator) float64 {
	now := s.Clock()
	next := math.Inf(1)
	for _, vm := range dc.liveVMs() {
		next = math.Min(next, vm.UpdateProcessing(now))
		for _, t := range vm.Scheduler().TakeFinished() {
			dc.stats.FinishedTasks++
			dc.Schedule(s, t.Owner(), 0, TagTaskReturn, t)
		}
	}
	return next
}

func (dc *Datacenter) hasActiveTasks() bool {
	for _, vm := range dc.vms {
		if vm.Scheduler().ActiveCount() > 0 {
			return true
		}
	}
	return false
}

func (dc *Datacenter) meanUtilization(now float64) float64 {
	var utils []float64
	for _, h := range dc.hosts {
		if h.NumVMs() > 0 {
			utils = append(utils, h.Utilization(now))
		}
	}
	if len(utils) == 0 {
		return 0
	}
	return stat.Mean(utils, nil)
}

// dispatchPlan flags every planned VM and sends a zero-delay migration start for it.
// A VM that already has a migration event pending is skipped.
func (dc *Datacenter) dispatchPlan(s *sim.Simulator, plan policy.MigrationPlan) {
	now := s.Clock()
	for _, m := range plan {
		if _, pending := s.FindFuture(forVM(m.VM)); pending || m.VM.InMigration() {
			logrus.Debugf("[t=%.3f] %s: vm %d already migrating, skipped", now, dc.Name(), m.VM.ID())
			continue
		}
		m.VM.MarkInMigration(m.Target)
		dc.stats.MigrationsPlanned++
		logrus.Infof("[t=%.3f] %s: migrating %v", now, dc.Name(), m)
		dc.ScheduleSelf(s, 0, TagMigrationStart, &transfer{migration: m, planned: now})
	}
}

func (dc *Datacenter) handleMigrationStart(s *sim.Simulator, ev *sim.Event) {
	tr := ev.Payload().(*transfer)
	m := tr.migration
	if m.VM.State() == cluster.VMTerminated {
		return
	}
	if err := m.Target.ReserveForMigration(m.VM); err != nil {
		m.VM.ClearMigration()
		dc.stats.MigrationsCancelled++
		logrus.Warnf("[t=%.3f] %s: migration of vm %d cancelled: %v", s.Clock(), dc.Name(), m.VM.ID(), err)
		return
	}
	m.VM.BeginTransfer()
	tr.start = s.Clock()
	dc.stats.MigrationsStarted++
	dc.ScheduleSelf(s, m.Target.MigrationDelay(m.VM), TagMigrationComplete, tr)
}

func (dc *Datacenter) handleMigrationComplete(s *sim.Simulator, ev *sim.Event) {
	tr := ev.Payload().(*transfer)
	m := tr.migration
	earlier := func(e *sim.Event) bool { return e != ev }
	if _, done := s.FindDeferred(sim.And(sim.TagIs(TagMigrationComplete), sim.PayloadIs(tr), earlier)); done {
		logrus.Debugf("[t=%.3f] %s: duplicate completion for vm %d ignored", s.Clock(), dc.Name(), m.VM.ID())
		return
	}
	if m.VM.State() != cluster.VMMigrating {
		return
	}

	// Finished work is accounted to the source before the VM leaves it.
	dc.updateProcessing(s)
	m.Source.Deallocate(m.VM)
	if err := m.Target.CompleteMigrationIn(m.VM); err != nil {
		s.Abort(fmt.Errorf("%s: completing migration of vm %d: %w", dc.Name(), m.VM.ID(), err))
		return
	}
	dc.stats.MigrationsCompleted++
	dc.trace.RecordMigration(trace.MigrationRecord{
		VMID:       m.VM.ID(),
		SourceHost: m.Source.ID(),
		TargetHost: m.Target.ID(),
		Reason:     string(m.Reason),
		Planned:    tr.planned,
		Start:      tr.start,
		End:        s.Clock(),
	})
	logrus.Debugf("[t=%.3f] %s: vm %d now on host %d", s.Clock(), dc.Name(), m.VM.ID(), m.Target.ID())
}

// liveVMs returns live VMs in ID order.
func (dc *Datacenter) liveVMs() []*cluster.VM {
	ids := make([]int, 0, len(dc.vms))
	for id := range dc.vms {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]*cluster.VM, len(ids))
	for i, id := range ids {
		out[i] = dc.vms[id]
	}
	return out
}
