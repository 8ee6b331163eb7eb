package policy

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmsim/vmsim/sim"
	"github.com/vmsim/vmsim/sim/cluster"
)

func TestMinimumUtilization_PicksLeastLoadedWithIDTieBreak(t *testing.T) {
	h := newHost(t, 0, 4, 1000)
	a := placeVM(t, h, 3, 1000, 0.5)
	b := placeVM(t, h, 1, 1000, 0.2)
	c := placeVM(t, h, 2, 1000, 0.2)

	got, ok := MinimumUtilization{}.SelectVMForMigration(h, []*cluster.VM{a, b, c}, 0)

	require.True(t, ok)
	assert.Same(t, b, got)
}

func TestSelection_EmptyCandidates(t *testing.T) {
	h := newHost(t, 0, 1, 1000)
	policies := []VMSelectionPolicy{
		MinimumUtilization{},
		MinimumMigrationTime{},
		NewRandomSelection(rand.New(rand.NewPCG(1, 1))),
		MaximumCorrelation{},
	}
	for _, p := range policies {
		t.Run(p.Name(), func(t *testing.T) {
			vm, ok := p.SelectVMForMigration(h, nil, 0)
			assert.False(t, ok)
			assert.Nil(t, vm)
		})
	}
}

func TestMinimumMigrationTime_PicksSmallestRAM(t *testing.T) {
	h := newHost(t, 0, 4, 1000)
	mk := func(id int, ram int64) *cluster.VM {
		vm := cluster.NewVM(id, sim.NoEntity, 1, cluster.Resources{MIPS: 100, RAM: ram, BW: 10, Storage: 10}, nil)
		require.NoError(t, h.Allocate(vm))
		return vm
	}
	big, small := mk(1, 4096), mk(2, 512)

	got, ok := MinimumMigrationTime{}.SelectVMForMigration(h, []*cluster.VM{big, small}, 0)

	require.True(t, ok)
	assert.Same(t, small, got)
}

func TestRandomSelection_ReturnsCandidateDeterministically(t *testing.T) {
	h := newHost(t, 0, 4, 1000)
	vms := []*cluster.VM{placeVM(t, h, 1, 100, 1), placeVM(t, h, 2, 100, 1), placeVM(t, h, 3, 100, 1)}

	pick := func() []int {
		p := NewRandomSelection(rand.New(rand.NewPCG(42, 0)))
		var ids []int
		for i := 0; i < 10; i++ {
			vm, ok := p.SelectVMForMigration(h, vms, 0)
			require.True(t, ok)
			assert.Contains(t, vms, vm)
			ids = append(ids, vm.ID())
		}
		return ids
	}

	assert.Equal(t, pick(), pick())
}

func TestMaximumCorrelation_PicksMostCorrelated(t *testing.T) {
	// GIVEN a and b rising together and c alternating against them
	h := newHost(t, 0, 4, 1000)
	traced := func(id int, samples []float64) *cluster.VM {
		vm := cluster.NewVM(id, sim.NoEntity, 1, cluster.Resources{MIPS: 500, RAM: 1024, BW: 10, Storage: 10}, nil)
		submitTask(vm, cluster.NewTrace(samples, 300))
		require.NoError(t, h.Allocate(vm))
		return vm
	}
	a := traced(1, []float64{0.1, 0.2, 0.3, 0.4})
	b := traced(2, []float64{0.2, 0.4, 0.6, 0.8})
	c := traced(3, []float64{0.4, 0.1, 0.4, 0.1})
	for _, now := range []float64{0, 300, 600, 900} {
		for _, vm := range []*cluster.VM{a, b, c} {
			vm.RecordUtilization(now)
		}
	}

	// WHEN choosing among b and c
	got, ok := MaximumCorrelation{}.SelectVMForMigration(h, []*cluster.VM{c, b}, 900)

	// THEN b, which moves with a, is evicted
	require.True(t, ok)
	assert.Same(t, b, got)

	got, _ = MaximumCorrelation{}.SelectVMForMigration(h, []*cluster.VM{a, b, c}, 900)
	assert.NotSame(t, c, got)
}

func TestMaximumCorrelation_FallsBackWithoutHistory(t *testing.T) {
	h := newHost(t, 0, 4, 1000)
	a := placeVM(t, h, 1, 1000, 0.9)
	b := placeVM(t, h, 2, 1000, 0.1)

	got, ok := MaximumCorrelation{}.SelectVMForMigration(h, []*cluster.VM{a, b}, 0)

	require.True(t, ok)
	assert.Same(t, b, got)
}

func TestNewSelectionPolicy(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for name := range ValidSelectionPolicies {
		p := NewSelectionPolicy(name, rng)
		require.NotNil(t, p)
		if name != "" {
			assert.Equal(t, name, p.Name())
		}
	}
	assert.Panics(t, func() { NewSelectionPolicy("best-fit", rng) })
}
