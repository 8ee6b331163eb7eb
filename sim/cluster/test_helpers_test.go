package cluster

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vmsim/vmsim/sim"
)

// newTestHost creates a host with ample RAM, bandwidth and storage so that CPU is the
// only binding dimension.
func newTestHost(t *testing.T, id, cores int, mipsPerCore float64) *Host {
	t.Helper()
	h, err := NewHost(id, HostConfig{
		Cores:       cores,
		MIPSPerCore: mipsPerCore,
		RAM:         65536,
		BW:          100000,
		Storage:     1000000,
	})
	require.NoError(t, err)
	return h
}

// newLoadedVM creates a VM requesting mips whose single long-running task demands util
// of it from t=0 onwards.
func newLoadedVM(id int, mips, util float64) *VM {
	vm := NewVM(id, sim.NoEntity, 1, Resources{MIPS: mips, RAM: 1024, BW: 100, Storage: 1000}, nil)
	vm.SubmitTask(NewTask(id*1000, 1e12, Constant{Fraction: util}), 0)
	return vm
}
