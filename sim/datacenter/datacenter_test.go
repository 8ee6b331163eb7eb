package datacenter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmsim/vmsim/sim"
	"github.com/vmsim/vmsim/sim/cluster"
	"github.com/vmsim/vmsim/sim/policy"
)

func TestDatacenter_ScheduleRecompute_AtMostOnePending(t *testing.T) {
	// GIVEN a datacenter
	h := newHarness(t, newHosts(t, 1, 1000, 1000), 0.8, 0.2, Config{SchedulingInterval: 300}, BrokerConfig{})

	// WHEN two recomputes are requested back to back
	h.dc.ScheduleRecompute(h.s, 10)
	h.dc.ScheduleRecompute(h.s, 20)

	// THEN only the later one is pending
	pending := sim.And(sim.DestinedFor(h.dc.ID()), sim.TagIs(TagRecompute))
	assert.Equal(t, 1, h.s.CountFuture(pending))
	ev, ok := h.s.FindFuture(pending)
	require.True(t, ok)
	assert.Equal(t, 20.0, ev.Time())
}

func TestDatacenter_NewPanicsOnMisuse(t *testing.T) {
	th, err := policy.NewThresholds(0.2, 0.8)
	require.NoError(t, err)
	pol := policy.NewThresholdPolicy(th, policy.MinimumUtilization{})

	assert.Panics(t, func() { New("dc", nil, pol, Config{}, nil) })
	assert.Panics(t, func() { New("dc", newHosts(t, 1, 1000, 1000), nil, Config{}, nil) })
	assert.Panics(t, func() { New("dc", newHosts(t, 1, 1000, 1000), pol, Config{SchedulingInterval: -1}, nil) })
}

func TestDatacenter_ZeroInterval_RecomputesAtTaskCompletion(t *testing.T) {
	// GIVEN a 1000-MIPS VM sharing its CPU between a 1000 MI and a 3000 MI task
	h := newHarness(t, newHosts(t, 1, 2000, 1000), 0.8, 0.2, Config{SchedulingInterval: 0}, BrokerConfig{})
	p := h.plan(0, 1000, 0, 1000, 3000)
	h.submit(p)

	// WHEN the run completes
	require.NoError(t, h.s.Run())

	// THEN the short task finishes at 2s (half share) and the long one at 4s
	finished := h.broker.FinishedTasks()
	require.Len(t, finished, 2)
	assert.Equal(t, p.Tasks[0], finished[0])
	assert.InDelta(t, 2.0, finished[0].FinishTime(), 1e-9)
	assert.InDelta(t, 4.0, finished[1].FinishTime(), 1e-9)
	assert.InDelta(t, 4.0, h.s.Clock(), 1e-9)
	assert.Equal(t, cluster.VMTerminated, p.VM.State())
}

func TestDatacenter_PinnedVMBypassesThresholdButNotCapacity(t *testing.T) {
	// GIVEN one 2000-MIPS host at upper threshold 0.5
	h := newHarness(t, newHosts(t, 1, 2000, 1000), 0.5, 0.1, Config{SchedulingInterval: 300}, BrokerConfig{})
	a := h.plan(0, 1000, 0, 1e6)
	b := h.plan(1, 1000, 0, 1e6)
	c := h.plan(2, 1000, 0, 1e6)
	b.VM.Pin(0)
	c.VM.Pin(0)
	h.submit(a, b, c)

	// WHEN the VMs are created
	h.step(t, 0)

	// THEN the first goes through the policy, the pinned second exceeds the threshold,
	// and the pinned third is rejected for capacity
	host := h.hosts[0]
	assert.True(t, host.HasVM(a.VM))
	assert.True(t, host.HasVM(b.VM))
	assert.False(t, host.HasVM(c.VM))
	assert.Equal(t, []int{2}, h.broker.NeverCreated())

	recs := h.dc.trace.Allocations
	require.Len(t, recs, 3)
	assert.False(t, recs[0].Pinned)
	assert.True(t, recs[1].Pinned && recs[1].Success)
	assert.True(t, recs[2].Pinned)
	assert.False(t, recs[2].Success)
}

// migrationFixture places one VM with a long task on host 0 of two 2000-MIPS hosts
// with 2000 bandwidth units each.
func migrationFixture(t *testing.T) (*harness, *cluster.VM) {
	t.Helper()
	h := newHarness(t, newHosts(t, 2, 2000, 2000), 0.9, 0.1, Config{SchedulingInterval: 1000}, BrokerConfig{})
	p := h.plan(0, 1000, 0, 1e9)
	h.submit(p)
	h.step(t, 0)
	require.True(t, h.hosts[0].HasVM(p.VM))
	return h, p.VM
}

func (h *harness) planMove(vm *cluster.VM, from, to int) policy.MigrationPlan {
	return policy.MigrationPlan{{VM: vm, Source: h.hosts[from], Target: h.hosts[to], Reason: policy.ReasonOverUtilized}}
}

func TestDatacenter_Migration_TakesRAMOverHalfBandwidth(t *testing.T) {
	// GIVEN a 1024 MB VM and a target with 2000 bandwidth units
	h, vm := migrationFixture(t)

	// WHEN a migration to host 1 is dispatched
	h.dc.dispatchPlan(h.s, h.planMove(vm, 0, 1))
	assert.True(t, vm.InMigration())
	h.step(t, 0)

	// THEN the VM is transferring, with resources held on both hosts
	assert.Equal(t, cluster.VMMigrating, vm.State())
	assert.True(t, h.hosts[1].IsMigratingIn(vm))
	assert.Equal(t, 1000.0, h.hosts[0].Allocated().MIPS)
	assert.Equal(t, 1000.0, h.hosts[1].Allocated().MIPS)

	// AND completion is due 1024 / (2000 / 2) = 1.024 s later
	ev, ok := h.s.FindFuture(sim.TagIs(TagMigrationComplete))
	require.True(t, ok)
	assert.InDelta(t, 1.024, ev.Time(), 1e-12)

	// WHEN the transfer completes
	h.step(t, 2)

	// THEN the VM lives on host 1 only
	assert.Equal(t, cluster.VMPlaced, vm.State())
	assert.False(t, vm.InMigration())
	got, _ := vm.Host()
	assert.Equal(t, h.hosts[1], got)
	assert.Equal(t, 0.0, h.hosts[0].Allocated().MIPS)
	assert.Equal(t, 1000.0, h.hosts[1].Allocated().MIPS)

	require.Len(t, h.dc.trace.Migrations, 1)
	rec := h.dc.trace.Migrations[0]
	assert.Equal(t, 0, rec.SourceHost)
	assert.Equal(t, 1, rec.TargetHost)
	assert.InDelta(t, 1.024, rec.Duration(), 1e-12)
	assert.Equal(t, 1, h.dc.Stats().MigrationsCompleted)
}

func TestDatacenter_DuplicateCompletionIgnored(t *testing.T) {
	// GIVEN a migration in flight
	h, vm := migrationFixture(t)
	h.dc.dispatchPlan(h.s, h.planMove(vm, 0, 1))
	h.step(t, 0)
	ev, ok := h.s.FindFuture(sim.TagIs(TagMigrationComplete))
	require.True(t, ok)

	// WHEN a second completion for the same transfer fires later
	_, err := h.s.Send(h.dc.ID(), h.dc.ID(), 2, TagMigrationComplete, ev.Payload())
	require.NoError(t, err)
	h.step(t, 5)

	// THEN the migration is applied exactly once
	assert.Equal(t, 1, h.dc.Stats().MigrationsCompleted)
	assert.True(t, h.hosts[1].HasVM(vm))
	assert.False(t, h.hosts[0].HasVM(vm))
	assert.Equal(t, 1000.0, h.hosts[1].Allocated().MIPS)
	assert.Len(t, h.dc.trace.Migrations, 1)
}

func TestDatacenter_DispatchPlan_SkipsVMAlreadyMigrating(t *testing.T) {
	h, vm := migrationFixture(t)

	// WHEN the same move is dispatched twice before it starts
	h.dc.dispatchPlan(h.s, h.planMove(vm, 0, 1))
	h.dc.dispatchPlan(h.s, h.planMove(vm, 0, 1))

	// THEN only one migration start is pending
	assert.Equal(t, 1, h.s.CountFuture(sim.TagIs(TagMigrationStart)))
	assert.Equal(t, 1, h.dc.Stats().MigrationsPlanned)
}

func TestDatacenter_DestroyDuringMigration_ReleasesBothHosts(t *testing.T) {
	// GIVEN a migration in flight
	h, vm := migrationFixture(t)
	h.dc.dispatchPlan(h.s, h.planMove(vm, 0, 1))
	h.step(t, 0)

	// WHEN the VM is destroyed before the transfer completes
	_, err := h.s.Send(h.broker.ID(), h.dc.ID(), 0.5, TagVMDestroy, vm)
	require.NoError(t, err)
	h.step(t, 5)

	// THEN neither host holds anything and the completion is ignored
	assert.Equal(t, cluster.VMTerminated, vm.State())
	assert.Equal(t, cluster.Resources{}, h.hosts[0].Allocated())
	assert.Equal(t, cluster.Resources{}, h.hosts[1].Allocated())
	assert.Equal(t, 0, h.dc.Stats().MigrationsCompleted)
	assert.Equal(t, 1, h.dc.Stats().MigrationsCancelled)
	_, live := h.dc.VM(vm.ID())
	assert.False(t, live)
}

func TestDatacenter_MigrationStart_CancelledWhenTargetFull(t *testing.T) {
	// GIVEN a move planned to host 1, which fills up before the move starts
	h, vm := migrationFixture(t)
	blocker := cluster.NewVM(99, h.broker.ID(), 1, cluster.Resources{MIPS: 1500, RAM: 1024, BW: 100, Storage: 1000}, nil)
	require.NoError(t, h.hosts[1].Allocate(blocker))

	// WHEN the migration starts
	h.dc.dispatchPlan(h.s, h.planMove(vm, 0, 1))
	h.step(t, 0)

	// THEN it is cancelled and the VM stays put
	assert.False(t, vm.InMigration())
	assert.Equal(t, cluster.VMPlaced, vm.State())
	assert.True(t, h.hosts[0].HasVM(vm))
	assert.False(t, h.hosts[1].IsMigratingIn(vm))
	assert.Equal(t, 1, h.dc.Stats().MigrationsCancelled)
	assert.Equal(t, 0, h.s.CountFuture(sim.TagIs(TagMigrationComplete)))
}

func TestDatacenter_Shutdown_TerminatesLiveVMs(t *testing.T) {
	h, vm := migrationFixture(t)
	h.s.TerminateAt(10)

	require.NoError(t, h.s.Run())

	assert.Equal(t, sim.StateTerminated, h.s.State())
	assert.Equal(t, cluster.VMTerminated, vm.State())
	assert.Equal(t, 0, h.hosts[0].NumVMs())
}
