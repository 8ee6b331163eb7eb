package cluster

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// ErrInvalidCapacity is returned when a host is configured with a non-positive capacity.
var ErrInvalidCapacity = errors.New("invalid host capacity")

// HostConfig describes a physical machine.
type HostConfig struct {
	Cores       int
	MIPSPerCore float64
	RAM         int64
	BW          int64
	Storage     int64
}

// Capacity returns the host's total resources.
func (c HostConfig) Capacity() Resources {
	return Resources{
		MIPS:    float64(c.Cores) * c.MIPSPerCore,
		RAM:     c.RAM,
		BW:      c.BW,
		Storage: c.Storage,
	}
}

// Host is a physical machine. Resident VMs hold reservations on the host's provisioners;
// a VM migrating in holds a reservation here while still resident on its source.
type Host struct {
	id     int
	config HostConfig

	mips    Provisioner
	ram     Provisioner
	bw      Provisioner
	storage Provisioner

	vms         map[int]*VM
	migratingIn map[int]*VM

	history      []float64
	historyLimit int
}

// NewHost creates an empty host. Returns ErrInvalidCapacity if any capacity is not
// positive.
func NewHost(id int, cfg HostConfig) (*Host, error) {
	if cfg.Cores <= 0 || cfg.MIPSPerCore <= 0 || cfg.RAM <= 0 || cfg.BW <= 0 || cfg.Storage <= 0 {
		return nil, fmt.Errorf("host %d: cores=%d mips_per_core=%v ram=%d bw=%d storage=%d: %w",
			id, cfg.Cores, cfg.MIPSPerCore, cfg.RAM, cfg.BW, cfg.Storage, ErrInvalidCapacity)
	}
	capacity := cfg.Capacity()
	return &Host{
		id:           id,
		config:       cfg,
		mips:         NewSimpleProvisioner("mips", capacity.MIPS),
		ram:          NewSimpleProvisioner("ram", float64(capacity.RAM)),
		bw:           NewSimpleProvisioner("bw", float64(capacity.BW)),
		storage:      NewSimpleProvisioner("storage", float64(capacity.Storage)),
		vms:          make(map[int]*VM),
		migratingIn:  make(map[int]*VM),
		historyLimit: DefaultHistoryLength,
	}, nil
}

func (h *Host) ID() int             { return h.id }
func (h *Host) Config() HostConfig  { return h.config }
func (h *Host) Cores() int          { return h.config.Cores }
func (h *Host) TotalMIPS() float64  { return h.mips.Capacity() }
func (h *Host) BW() int64           { return h.config.BW }
func (h *Host) Capacity() Resources { return h.config.Capacity() }
func (h *Host) NumVMs() int         { return len(h.vms) }
func (h *Host) HasVM(vm *VM) bool   { return h.vms[vm.id] == vm }

// IsMigratingIn reports whether vm holds a migration reservation on this host.
func (h *Host) IsMigratingIn(vm *VM) bool { return h.migratingIn[vm.id] == vm }

// SetHistoryLength changes the utilization history bound. Panics if n < 1.
func (h *Host) SetHistoryLength(n int) {
	if n < 1 {
		panic(fmt.Sprintf("Host.SetHistoryLength: n must be >= 1, got %d", n))
	}
	h.historyLimit = n
	if len(h.history) > n {
		h.history = append(h.history[:0], h.history[len(h.history)-n:]...)
	}
}

// Allocated returns the sum of reservations held on this host, including those of
// VMs migrating in.
func (h *Host) Allocated() Resources {
	return Resources{
		MIPS:    h.mips.Allocated(),
		RAM:     int64(h.ram.Allocated()),
		BW:      int64(h.bw.Allocated()),
		Storage: int64(h.storage.Allocated()),
	}
}

// Available returns the unreserved capacity.
func (h *Host) Available() Resources {
	return h.Capacity().Sub(h.Allocated())
}

// VMs returns the resident VMs sorted by ID. The slice is a copy.
func (h *Host) VMs() []*VM {
	return sortedVMs(h.vms)
}

// MigratingIn returns the VMs migrating to this host sorted by ID. The slice is a copy.
func (h *Host) MigratingIn() []*VM {
	return sortedVMs(h.migratingIn)
}

// AllVMsMigratingOut reports whether the host has resident VMs and every one of them is
// in migration.
func (h *Host) AllVMsMigratingOut() bool {
	if len(h.vms) == 0 {
		return false
	}
	for _, vm := range h.vms {
		if !vm.inMigration {
			return false
		}
	}
	return true
}

// UsedMIPS is the CPU demanded at now by resident VMs and VMs migrating in.
func (h *Host) UsedMIPS(now float64) float64 {
	used := 0.0
	for _, vm := range h.vms {
		used += vm.CurrentMIPS(now)
	}
	for _, vm := range h.migratingIn {
		used += vm.CurrentMIPS(now)
	}
	return used
}

// Utilization is UsedMIPS as a fraction of total MIPS.
func (h *Host) Utilization(now float64) float64 {
	return h.UsedMIPS(now) / h.TotalMIPS()
}

// RecordUtilization appends the current utilization to the bounded history.
func (h *Host) RecordUtilization(now float64) {
	h.history = appendBounded(h.history, h.Utilization(now), h.historyLimit)
}

// History returns a copy of the utilization history, oldest first.
func (h *Host) History() []float64 {
	out := make([]float64, len(h.history))
	copy(out, h.history)
	return out
}

// IsSuitable reports whether vm's request fits the host's unreserved capacity.
func (h *Host) IsSuitable(vm *VM) bool {
	req := vm.requested
	return vm.pes <= h.config.Cores &&
		h.mips.Fits(vm.id, req.MIPS) &&
		h.ram.Fits(vm.id, float64(req.RAM)) &&
		h.bw.Fits(vm.id, float64(req.BW)) &&
		h.storage.Fits(vm.id, float64(req.Storage))
}

// Allocate places vm on this host. Returns ErrInsufficientCapacity if it does not fit.
func (h *Host) Allocate(vm *VM) error {
	if err := h.reserve(vm); err != nil {
		return err
	}
	h.vms[vm.id] = vm
	vm.host = h
	vm.state = VMPlaced
	return nil
}

// ReserveForMigration reserves vm's resources here while it stays resident on its source.
func (h *Host) ReserveForMigration(vm *VM) error {
	if h.vms[vm.id] == vm {
		return fmt.Errorf("host %d: vm %d already resident", h.id, vm.id)
	}
	if err := h.reserve(vm); err != nil {
		return err
	}
	h.migratingIn[vm.id] = vm
	return nil
}

// CompleteMigrationIn turns a reservation made by ReserveForMigration into residency.
// The caller releases the source reservation with Deallocate first.
func (h *Host) CompleteMigrationIn(vm *VM) error {
	if h.migratingIn[vm.id] != vm {
		return fmt.Errorf("host %d: vm %d is not migrating in", h.id, vm.id)
	}
	delete(h.migratingIn, vm.id)
	h.vms[vm.id] = vm
	vm.host = h
	vm.ClearMigration()
	vm.state = VMPlaced
	return nil
}

// Deallocate releases every reservation vm holds on this host.
func (h *Host) Deallocate(vm *VM) {
	h.mips.Deallocate(vm.id)
	h.ram.Deallocate(vm.id)
	h.bw.Deallocate(vm.id)
	h.storage.Deallocate(vm.id)
	delete(h.vms, vm.id)
	delete(h.migratingIn, vm.id)
	if vm.host == h {
		vm.host = nil
	}
}

// MigrationDelay is the time to move vm here: its RAM over the half of this host's
// bandwidth reserved for migration traffic.
func (h *Host) MigrationDelay(vm *VM) float64 {
	if h.config.BW <= 0 {
		return math.Inf(1)
	}
	return float64(vm.requested.RAM) / (float64(h.config.BW) / 2)
}

func (h *Host) reserve(vm *VM) error {
	if vm.pes > h.config.Cores {
		return fmt.Errorf("host %d: vm %d needs %d PEs, host has %d: %w",
			h.id, vm.id, vm.pes, h.config.Cores, ErrInsufficientCapacity)
	}
	if !h.IsSuitable(vm) {
		return fmt.Errorf("host %d: vm %d (%v) exceeds available (%v): %w",
			h.id, vm.id, vm.requested, h.Available(), ErrInsufficientCapacity)
	}
	req := vm.requested
	// Fits was checked above, so these cannot fail.
	_ = h.mips.Allocate(vm.id, req.MIPS)
	_ = h.ram.Allocate(vm.id, float64(req.RAM))
	_ = h.bw.Allocate(vm.id, float64(req.BW))
	_ = h.storage.Allocate(vm.id, float64(req.Storage))
	return nil
}

func (h *Host) String() string {
	return fmt.Sprintf("host#%d(vms=%d, in=%d)", h.id, len(h.vms), len(h.migratingIn))
}

func sortedVMs(m map[int]*VM) []*VM {
	out := make([]*VM, 0, len(m))
	for _, vm := range m {
		out = append(out, vm)
	}
	slices.SortFunc(out, func(a, b *VM) int { return a.id - b.id })
	return out
}
