package policy

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"

	"github.com/vmsim/vmsim/sim/cluster"
)

// VMSelectionPolicy picks the VM to evict from an over-utilized host.
// candidates are the host's resident VMs that are not already migrating; the returned
// VM is always one of them. Returns false when candidates is empty.
type VMSelectionPolicy interface {
	Name() string
	SelectVMForMigration(host *cluster.Host, candidates []*cluster.VM, now float64) (*cluster.VM, bool)
}

// MinimumUtilization evicts the VM demanding the least CPU.
type MinimumUtilization struct{}

func (MinimumUtilization) Name() string { return "minimum-utilization" }

func (MinimumUtilization) SelectVMForMigration(_ *cluster.Host, candidates []*cluster.VM, now float64) (*cluster.VM, bool) {
	return pickMin(candidates, func(vm *cluster.VM) float64 { return vm.CurrentMIPS(now) })
}

// MinimumMigrationTime evicts the VM with the least RAM to transfer.
type MinimumMigrationTime struct{}

func (MinimumMigrationTime) Name() string { return "minimum-migration-time" }

func (MinimumMigrationTime) SelectVMForMigration(_ *cluster.Host, candidates []*cluster.VM, _ float64) (*cluster.VM, bool) {
	return pickMin(candidates, func(vm *cluster.VM) float64 { return float64(vm.RAM()) })
}

// RandomSelection evicts a uniformly random VM.
type RandomSelection struct {
	rng *rand.Rand
}

// NewRandomSelection creates a RandomSelection drawing from rng. Panics if rng is nil.
func NewRandomSelection(rng *rand.Rand) *RandomSelection {
	if rng == nil {
		panic("NewRandomSelection: rng must not be nil")
	}
	return &RandomSelection{rng: rng}
}

func (*RandomSelection) Name() string { return "random" }

func (r *RandomSelection) SelectVMForMigration(_ *cluster.Host, candidates []*cluster.VM, _ float64) (*cluster.VM, bool) {
	if len(candidates) == 0 {
		return nil, false
	}
	return candidates[r.rng.IntN(len(candidates))], true
}

// MaximumCorrelation evicts the VM whose utilization history correlates most with the
// other VMs on the host. Falls back to MinimumUtilization when no correlation can be
// computed.
type MaximumCorrelation struct{}

func (MaximumCorrelation) Name() string { return "maximum-correlation" }

func (MaximumCorrelation) SelectVMForMigration(host *cluster.Host, candidates []*cluster.VM, now float64) (*cluster.VM, bool) {
	if len(candidates) == 0 {
		return nil, false
	}
	residents := host.VMs()
	histories := make([]vmHistory, len(residents))
	for i, vm := range residents {
		histories[i] = vmHistory{id: vm.ID(), samples: vm.History()}
	}

	var best *cluster.VM
	bestScore := math.Inf(-1)
	for _, c := range candidates {
		score := meanCorrelation(c.ID(), histories)
		if math.IsNaN(score) {
			continue
		}
		if best == nil || score > bestScore || (score == bestScore && c.ID() < best.ID()) {
			best, bestScore = c, score
		}
	}
	if best == nil {
		return MinimumUtilization{}.SelectVMForMigration(host, candidates, now)
	}
	return best, true
}

type vmHistory struct {
	id      int
	samples []float64
}

// meanCorrelation averages the Pearson correlation of vmID's history with every other
// history, over their common most recent window. Returns NaN if none is defined.
func meanCorrelation(vmID int, histories []vmHistory) float64 {
	var own []float64
	for _, h := range histories {
		if h.id == vmID {
			own = h.samples
		}
	}
	sum, n := 0.0, 0
	for _, h := range histories {
		if h.id == vmID {
			continue
		}
		other := h.samples
		w := min(len(own), len(other))
		if w < 2 {
			continue
		}
		r := stat.Correlation(own[len(own)-w:], other[len(other)-w:], nil)
		if math.IsNaN(r) {
			continue
		}
		sum += r
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

func pickMin(candidates []*cluster.VM, key func(*cluster.VM) float64) (*cluster.VM, bool) {
	var best *cluster.VM
	bestKey := math.Inf(1)
	for _, vm := range candidates {
		k := key(vm)
		if best == nil || k < bestKey || (k == bestKey && vm.ID() < best.ID()) {
			best, bestKey = vm, k
		}
	}
	return best, best != nil
}

// NewSelectionPolicy creates a VM selection policy by name.
// Valid names: "minimum-utilization" (default for ""), "minimum-migration-time",
// "random", "maximum-correlation". rng is used by "random" only.
// Panics on unrecognized names.
func NewSelectionPolicy(name string, rng *rand.Rand) VMSelectionPolicy {
	if !ValidSelectionPolicies[name] {
		panic(fmt.Sprintf("unknown VM selection policy %q", name))
	}
	switch name {
	case "", "minimum-utilization":
		return MinimumUtilization{}
	case "minimum-migration-time":
		return MinimumMigrationTime{}
	case "random":
		return NewRandomSelection(rng)
	case "maximum-correlation":
		return MaximumCorrelation{}
	default:
		panic(fmt.Sprintf("unhandled VM selection policy %q", name))
	}
}
