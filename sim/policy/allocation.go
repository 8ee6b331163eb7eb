package policy

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/vmsim/vmsim/sim/cluster"
)

// MigrationReason records which pass proposed a migration.
type MigrationReason string

const (
	ReasonOverUtilized  MigrationReason = "over-utilized"
	ReasonConsolidation MigrationReason = "consolidation"
)

// Migration moves VM from Source to Target.
type Migration struct {
	VM     *cluster.VM
	Source *cluster.Host
	Target *cluster.Host
	Reason MigrationReason
}

func (m Migration) String() string {
	return fmt.Sprintf("vm %d: host %d -> host %d (%s)", m.VM.ID(), m.Source.ID(), m.Target.ID(), m.Reason)
}

// MigrationPlan is the ordered output of one OptimizeAllocation call. It is consumed
// immediately by the caller and never stored.
type MigrationPlan []Migration

func (p MigrationPlan) Len() int { return len(p) }

// ByVM maps VM ID to target host.
func (p MigrationPlan) ByVM() map[int]*cluster.Host {
	out := make(map[int]*cluster.Host, len(p))
	for _, m := range p {
		out[m.VM.ID()] = m.Target
	}
	return out
}

// Targets returns the distinct target hosts in first-use order.
func (p MigrationPlan) Targets() []*cluster.Host {
	seen := make(map[int]bool)
	var out []*cluster.Host
	for _, m := range p {
		if !seen[m.Target.ID()] {
			seen[m.Target.ID()] = true
			out = append(out, m.Target)
		}
	}
	return out
}

// AllocationPolicy places new VMs and proposes migrations. Both operations read the
// cluster without mutating it.
type AllocationPolicy interface {
	// FindHostForVM returns the eligible host with the least CPU in use, or false when
	// none qualifies. Hosts whose IDs are in excluded are skipped.
	FindHostForVM(hosts []*cluster.Host, vm *cluster.VM, excluded map[int]bool, now float64) (*cluster.Host, bool)
	// OptimizeAllocation returns the migrations that relieve over-utilized hosts and
	// drain under-utilized ones. A host appears at most once as a target and never as
	// both source and target.
	OptimizeAllocation(hosts []*cluster.Host, now float64) MigrationPlan
	Thresholds() Thresholds
}

// ThresholdPolicy is a worst-fit allocation policy driven by utilization thresholds.
type ThresholdPolicy struct {
	thresholds Thresholds
	selection  VMSelectionPolicy
}

// NewThresholdPolicy creates a ThresholdPolicy. Panics if selection is nil.
func NewThresholdPolicy(th Thresholds, selection VMSelectionPolicy) *ThresholdPolicy {
	if selection == nil {
		panic("NewThresholdPolicy: selection must not be nil")
	}
	if th.upper <= th.lower {
		panic(fmt.Sprintf("NewThresholdPolicy: invalid thresholds (%v); use NewThresholds", th))
	}
	return &ThresholdPolicy{thresholds: th, selection: selection}
}

func (p *ThresholdPolicy) Thresholds() Thresholds       { return p.thresholds }
func (p *ThresholdPolicy) Selection() VMSelectionPolicy { return p.selection }

func (p *ThresholdPolicy) FindHostForVM(hosts []*cluster.Host, vm *cluster.VM, excluded map[int]bool, now float64) (*cluster.Host, bool) {
	s := newSnapshot(hosts, p.thresholds, now)
	v := p.findHost(s, vm, excluded, nil)
	if v == nil {
		return nil, false
	}
	return v.host, true
}

// findHost scans views in worst-fit order: CPU in use ascending, then host ID.
// admit, when set, filters views further.
func (p *ThresholdPolicy) findHost(s *snapshot, vm *cluster.VM, excluded map[int]bool, admit func(*hostView) bool) *hostView {
	order := slices.Clone(s.views)
	slices.SortStableFunc(order, func(a, b *hostView) int {
		if c := cmp.Compare(a.used, b.used); c != 0 {
			return c
		}
		return a.host.ID() - b.host.ID()
	})
	demand := vm.PlacementMIPS(s.now)
	for _, v := range order {
		if excluded[v.host.ID()] {
			continue
		}
		if admit != nil && !admit(v) {
			continue
		}
		if !v.fits(vm) {
			continue
		}
		if (v.used+demand)/v.total > v.upper {
			continue
		}
		return v
	}
	return nil
}

func (p *ThresholdPolicy) OptimizeAllocation(hosts []*cluster.Host, now float64) MigrationPlan {
	s := newSnapshot(hosts, p.thresholds, now)
	var plan MigrationPlan
	// touched holds every host that is a source or target in this pass. None of them
	// may be chosen as a target again.
	touched := make(map[int]bool)
	planned := make(map[int]bool)

	var overloaded []*hostView
	for _, v := range s.views {
		if v.utilization() > v.upper {
			overloaded = append(overloaded, v)
			touched[v.host.ID()] = true
		}
	}

	for _, src := range overloaded {
		for src.utilization() > src.upper {
			candidates := movableVMs(src.host, planned)
			victim, ok := p.selection.SelectVMForMigration(src.host, candidates, now)
			if !ok {
				break
			}
			dst := p.findHost(s, victim, touched, nil)
			if dst == nil {
				logrus.Debugf("[t=%.3f] host %d stays over-utilized (%.2f > %.2f): no target for vm %d",
					now, src.host.ID(), src.utilization(), src.upper, victim.ID())
				break
			}
			s.place(victim, src, dst)
			planned[victim.ID()] = true
			touched[dst.host.ID()] = true
			plan = append(plan, Migration{VM: victim, Source: src.host, Target: dst.host, Reason: ReasonOverUtilized})
		}
	}

	var underloaded []*hostView
	for _, v := range s.views {
		id := v.host.ID()
		if touched[id] || v.idle || v.draining || v.receiving {
			continue
		}
		if u := v.utilization(); u > 0 && u < p.thresholds.lower {
			underloaded = append(underloaded, v)
		}
	}
	slices.SortStableFunc(underloaded, func(a, b *hostView) int {
		if c := cmp.Compare(a.utilization(), b.utilization()); c != 0 {
			return c
		}
		return a.host.ID() - b.host.ID()
	})

	receivesConsolidation := func(v *hostView) bool { return !v.idle && !v.draining }
	for _, src := range underloaded {
		id := src.host.ID()
		if touched[id] {
			continue
		}
		vms := movableVMs(src.host, planned)
		if len(vms) == 0 {
			continue
		}
		slices.SortStableFunc(vms, func(a, b *cluster.VM) int {
			if c := cmp.Compare(b.CurrentMIPS(now), a.CurrentMIPS(now)); c != 0 {
				return c
			}
			return a.ID() - b.ID()
		})

		saved := s.save()
		touched[id] = true
		var moves []Migration
		for _, vm := range vms {
			dst := p.findHost(s, vm, touched, receivesConsolidation)
			if dst == nil {
				break
			}
			s.place(vm, src, dst)
			touched[dst.host.ID()] = true
			moves = append(moves, Migration{VM: vm, Source: src.host, Target: dst.host, Reason: ReasonConsolidation})
		}
		if len(moves) < len(vms) {
			s.restore(saved)
			delete(touched, id)
			for _, m := range moves {
				delete(touched, m.Target.ID())
			}
			logrus.Debugf("[t=%.3f] consolidation of host %d abandoned: %d of %d VMs placeable",
				now, id, len(moves), len(vms))
			continue
		}
		for _, m := range moves {
			planned[m.VM.ID()] = true
		}
		plan = append(plan, moves...)
	}

	if len(plan) > 0 {
		logrus.Infof("[t=%.3f] migration plan: %d migrations (%d over-utilized hosts, %d consolidation candidates)",
			now, len(plan), len(overloaded), len(underloaded))
	}
	return plan
}

// movableVMs returns the host's resident VMs that are neither migrating nor already
// in the plan, sorted by ID.
func movableVMs(h *cluster.Host, planned map[int]bool) []*cluster.VM {
	var out []*cluster.VM
	for _, vm := range h.VMs() {
		if vm.InMigration() || planned[vm.ID()] {
			continue
		}
		out = append(out, vm)
	}
	return out
}
