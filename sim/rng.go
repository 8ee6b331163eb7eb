package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
)

// SimulationKey is the seed of a run. The same key and scenario replay the same run.
type SimulationKey int64

func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// Random stream names.
const (
	SubsystemWorkload  = "workload"  // task lengths
	SubsystemSelection = "selection" // the random VM selection policy
)

// SubsystemVM names the stream feeding the stochastic utilization of VM id.
func SubsystemVM(id int) string {
	return fmt.Sprintf("vm_%d", id)
}

// masterStream selects the PCG stream of SubsystemWorkload. Every other stream uses
// the FNV-1a hash of its name, so streams stay independent even for equal seeds.
const masterStream = 0x9e3779b97f4a7c15

// PartitionedRNG hands out one *rand.Rand per named stream, all derived from a single
// SimulationKey. Draws from one stream never shift another, so adding a VM or
// switching the selection policy leaves task lengths unchanged.
// Not safe for concurrent use; the kernel is single-threaded.
type PartitionedRNG struct {
	key     SimulationKey
	streams map[string]*rand.Rand
}

func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{key: key, streams: make(map[string]*rand.Rand)}
}

// ForSubsystem returns the stream called name, creating it on first use. The result
// is a PCG-backed generator and can be passed to gonum distributions as their Src.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if r, ok := p.streams[name]; ok {
		return r
	}
	stream := uint64(masterStream)
	if name != SubsystemWorkload {
		stream = streamID(name)
	}
	r := rand.New(rand.NewPCG(uint64(p.key), stream))
	p.streams[name] = r
	return r
}

func (p *PartitionedRNG) Key() SimulationKey { return p.key }

func streamID(name string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return h.Sum64()
}
