package policy

import (
	"github.com/vmsim/vmsim/sim/cluster"
)

// hostView is the planning copy of one host. Tentative decisions within a pass update
// the view, never the host.
type hostView struct {
	host      *cluster.Host
	total     float64
	cores     int
	used      float64
	available cluster.Resources
	upper     float64
	idle      bool
	draining  bool // every resident VM is migrating out
	receiving bool // some VM is migrating in
}

func (v *hostView) utilization() float64 { return v.used / v.total }

// fits checks capacity against the view, which includes tentative placements.
func (v *hostView) fits(vm *cluster.VM) bool {
	return vm.PEs() <= v.cores && vm.Requested().Fits(v.available)
}

// snapshot is a copy-on-read image of the cluster used for one planning call.
type snapshot struct {
	now   float64
	views []*hostView
	byID  map[int]*hostView
}

func newSnapshot(hosts []*cluster.Host, th Thresholds, now float64) *snapshot {
	s := &snapshot{
		now:   now,
		views: make([]*hostView, 0, len(hosts)),
		byID:  make(map[int]*hostView, len(hosts)),
	}
	for _, h := range hosts {
		used := h.UsedMIPS(now)
		v := &hostView{
			host:      h,
			total:     h.TotalMIPS(),
			cores:     h.Cores(),
			used:      used,
			available: h.Available(),
			upper:     th.UpperFor(h.History()),
			idle:      used == 0,
			draining:  h.AllVMsMigratingOut(),
			receiving: len(h.MigratingIn()) > 0,
		}
		s.views = append(s.views, v)
		s.byID[h.ID()] = v
	}
	return s
}

// place records a tentative move of vm from source (nil for a new VM) to target.
func (s *snapshot) place(vm *cluster.VM, source, target *hostView) {
	demand := vm.PlacementMIPS(s.now)
	target.used += demand
	target.available = target.available.Sub(vm.Requested())
	if source != nil {
		source.used -= vm.CurrentMIPS(s.now)
	}
}

type viewState struct {
	used      float64
	available cluster.Resources
}

// save captures the mutable part of every view for restore.
func (s *snapshot) save() []viewState {
	out := make([]viewState, len(s.views))
	for i, v := range s.views {
		out[i] = viewState{used: v.used, available: v.available}
	}
	return out
}

func (s *snapshot) restore(saved []viewState) {
	for i, v := range s.views {
		v.used = saved[i].used
		v.available = saved[i].available
	}
}
