package cluster

import (
	"fmt"

	"github.com/vmsim/vmsim/sim"
)

// DefaultHistoryLength bounds the utilization history kept per host and VM.
const DefaultHistoryLength = 30

// VMState is the placement/migration state of a VM.
type VMState int

const (
	VMUnplaced VMState = iota
	VMPlaced
	VMMigrating
	VMTerminated
)

func (s VMState) String() string {
	switch s {
	case VMUnplaced:
		return "unplaced"
	case VMPlaced:
		return "placed"
	case VMMigrating:
		return "migrating"
	case VMTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("vmstate(%d)", int(s))
	}
}

// VM is a virtual machine. Its host reference changes only through Host.Allocate,
// Host.CompleteMigrationIn and Host.Deallocate.
type VM struct {
	id        int
	owner     sim.EntityID
	pes       int
	requested Resources
	scheduler TaskScheduler
	pinned    int
	hasWork   bool

	host        *Host
	state       VMState
	inMigration bool
	target      *Host

	history      []float64
	historyLimit int
}

// NewVM creates an unplaced VM owned by the given broker entity.
// A nil scheduler means a fresh TimeShared. Panics on non-positive PEs or resources.
func NewVM(id int, owner sim.EntityID, pes int, req Resources, scheduler TaskScheduler) *VM {
	if pes <= 0 {
		panic(fmt.Sprintf("NewVM: pes must be > 0, got %d", pes))
	}
	if !req.Positive() {
		panic(fmt.Sprintf("NewVM: vm %d requests non-positive resources (%v)", id, req))
	}
	if scheduler == nil {
		scheduler = NewTimeShared()
	}
	return &VM{
		id:           id,
		owner:        owner,
		pes:          pes,
		requested:    req,
		scheduler:    scheduler,
		pinned:       -1,
		historyLimit: DefaultHistoryLength,
	}
}

func (v *VM) ID() int                  { return v.id }
func (v *VM) Owner() sim.EntityID      { return v.owner }
func (v *VM) PEs() int                 { return v.pes }
func (v *VM) Requested() Resources     { return v.requested }
func (v *VM) RequestedMIPS() float64   { return v.requested.MIPS }
func (v *VM) RAM() int64               { return v.requested.RAM }
func (v *VM) Scheduler() TaskScheduler { return v.scheduler }
func (v *VM) State() VMState           { return v.state }

// InMigration reports whether the VM has been chosen for a migration that has not
// completed yet.
func (v *VM) InMigration() bool { return v.inMigration }

// Host returns the host the VM resides on.
func (v *VM) Host() (*Host, bool) { return v.host, v.host != nil }

// MigrationTarget returns the host the VM is moving to.
func (v *VM) MigrationTarget() (*Host, bool) { return v.target, v.target != nil }

// Pin restricts initial placement to the given host ID.
func (v *VM) Pin(hostID int) { v.pinned = hostID }

// PinnedHost returns the host ID this VM was pinned to.
func (v *VM) PinnedHost() (int, bool) { return v.pinned, v.pinned >= 0 }

// SubmitTask binds t to this VM and starts it on the VM's scheduler.
func (v *VM) SubmitTask(t *Task, now float64) {
	t.BindVM(v.id)
	v.scheduler.Submit(t, now)
	v.hasWork = true
}

// CurrentUtilization is the fraction of requested MIPS demanded by running tasks.
func (v *VM) CurrentUtilization(now float64) float64 {
	return v.scheduler.Utilization(now)
}

// CurrentMIPS is the MIPS the VM demands at now. A VM that has not been given any
// task yet is accounted at its full request.
func (v *VM) CurrentMIPS(now float64) float64 {
	if !v.hasWork {
		return v.requested.MIPS
	}
	return v.requested.MIPS * v.CurrentUtilization(now)
}

// PlacementMIPS is the CPU a placement decision must account for: the full request for
// a VM that has no host yet, the current demand otherwise.
func (v *VM) PlacementMIPS(now float64) float64 {
	if v.host == nil {
		return v.requested.MIPS
	}
	return v.CurrentMIPS(now)
}

// UpdateProcessing advances the VM's tasks to now. See TaskScheduler.Update.
func (v *VM) UpdateProcessing(now float64) float64 {
	return v.scheduler.Update(now, v.requested.MIPS)
}

// RecordUtilization appends the current utilization to the bounded history.
func (v *VM) RecordUtilization(now float64) {
	v.history = appendBounded(v.history, v.CurrentUtilization(now), v.historyLimit)
}

// History returns a copy of the utilization history, oldest first.
func (v *VM) History() []float64 {
	out := make([]float64, len(v.history))
	copy(out, v.history)
	return out
}

// MarkInMigration flags the VM as chosen for migration to target.
func (v *VM) MarkInMigration(target *Host) {
	v.inMigration = true
	v.target = target
}

// BeginTransfer moves a flagged VM into the Migrating state.
func (v *VM) BeginTransfer() {
	v.state = VMMigrating
}

// ClearMigration drops the migration flags; a migrating VM returns to Placed.
func (v *VM) ClearMigration() {
	v.inMigration = false
	v.target = nil
	if v.state == VMMigrating {
		v.state = VMPlaced
	}
}

// Terminate marks the VM as destroyed. Callers must deallocate it first.
func (v *VM) Terminate() {
	v.inMigration = false
	v.target = nil
	v.state = VMTerminated
}

func (v *VM) String() string {
	host := "-"
	if v.host != nil {
		host = fmt.Sprintf("%d", v.host.id)
	}
	return fmt.Sprintf("vm#%d(host=%s, %s)", v.id, host, v.state)
}

func appendBounded(h []float64, x float64, limit int) []float64 {
	h = append(h, x)
	if len(h) > limit {
		h = append(h[:0], h[len(h)-limit:]...)
	}
	return h
}
