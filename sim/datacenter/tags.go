// Package datacenter holds the simulated entities that drive a scenario: the
// Datacenter, which owns hosts and turns allocation decisions into timed events, and
// the Broker, which submits VMs and tasks on behalf of a user.
package datacenter

import (
	"fmt"

	"github.com/vmsim/vmsim/sim"
	"github.com/vmsim/vmsim/sim/cluster"
	"github.com/vmsim/vmsim/sim/policy"
)

// Event tags exchanged between the broker and the datacenter.
const (
	TagVMCreate sim.Tag = iota + 1
	TagVMCreateAck
	TagVMDestroy
	TagTaskSubmit
	TagTaskReturn
	TagRecompute
	TagMigrationStart
	TagMigrationComplete
	TagSubmitVMs
	TagRetryVMs
)

var tagNames = map[sim.Tag]string{
	TagVMCreate:          "vm-create",
	TagVMCreateAck:       "vm-create-ack",
	TagVMDestroy:         "vm-destroy",
	TagTaskSubmit:        "task-submit",
	TagTaskReturn:        "task-return",
	TagRecompute:         "recompute",
	TagMigrationStart:    "migration-start",
	TagMigrationComplete: "migration-complete",
	TagSubmitVMs:         "submit-vms",
	TagRetryVMs:          "retry-vms",
}

// TagName returns a readable name for tag.
func TagName(tag sim.Tag) string {
	if n, ok := tagNames[tag]; ok {
		return n
	}
	return fmt.Sprintf("tag(%d)", tag)
}

// CreateRequest asks the datacenter to place VM. Attempt is 0 for the first
// submission and n for the n-th retry.
type CreateRequest struct {
	VM      *cluster.VM
	Attempt int
}

// CreateAck answers a TagVMCreate request. Host is nil when placement failed.
type CreateAck struct {
	VM      *cluster.VM
	Host    *cluster.Host
	Success bool
}

// transfer is the payload of both events of one migration. Completion events are
// matched against the deferred log by pointer identity.
type transfer struct {
	migration policy.Migration
	planned   float64
	start     float64
}

// forVM matches migration events moving vm.
func forVM(vm *cluster.VM) sim.Predicate {
	return func(ev *sim.Event) bool {
		if ev.Tag() != TagMigrationStart && ev.Tag() != TagMigrationComplete {
			return false
		}
		tr, ok := ev.Payload().(*transfer)
		return ok && tr.migration.VM == vm
	}
}
