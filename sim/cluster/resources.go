// Package cluster models the physical and virtual resources of a simulated datacenter:
// hosts, the VMs placed on them, the tasks those VMs execute and the per-resource
// provisioners that enforce host capacity.
//
// Nothing in this package schedules events. Hosts and VMs are mutated only from entity
// callbacks (see sim/datacenter), so no locking is required.
//
// Thread-safety: NOT thread-safe.
package cluster

import "fmt"

// Resources is a bundle of the four provisioned resource kinds.
// MIPS is total processing capacity; RAM, BW and Storage are integral units.
type Resources struct {
	MIPS    float64
	RAM     int64
	BW      int64
	Storage int64
}

// Fits reports whether r fits within capacity on every dimension.
func (r Resources) Fits(capacity Resources) bool {
	return r.MIPS <= capacity.MIPS &&
		r.RAM <= capacity.RAM &&
		r.BW <= capacity.BW &&
		r.Storage <= capacity.Storage
}

// Add returns r + o.
func (r Resources) Add(o Resources) Resources {
	return Resources{
		MIPS:    r.MIPS + o.MIPS,
		RAM:     r.RAM + o.RAM,
		BW:      r.BW + o.BW,
		Storage: r.Storage + o.Storage,
	}
}

// Sub returns r - o.
func (r Resources) Sub(o Resources) Resources {
	return Resources{
		MIPS:    r.MIPS - o.MIPS,
		RAM:     r.RAM - o.RAM,
		BW:      r.BW - o.BW,
		Storage: r.Storage - o.Storage,
	}
}

// Positive reports whether every dimension is strictly positive.
func (r Resources) Positive() bool {
	return r.MIPS > 0 && r.RAM > 0 && r.BW > 0 && r.Storage > 0
}

func (r Resources) String() string {
	return fmt.Sprintf("mips=%.1f ram=%d bw=%d storage=%d", r.MIPS, r.RAM, r.BW, r.Storage)
}
