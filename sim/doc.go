// Package sim provides the discrete-event simulation kernel for vmsim.
//
// # Reading Guide
//
// Start with these files to understand the kernel:
//   - event.go: Event record, tags, lifecycle kinds and predicates
//   - event_queue.go: the Future Event Set, a (time, seq) min-heap
//   - deferred_log.go: the Deferred Event Log of dispatched events
//   - entity.go: Entity interface, BaseEntity and handler tables
//   - simulator.go: the clock, lifecycle state machine and dispatch loop
//
// # Architecture
//
// The kernel knows nothing about hosts or VMs; those live in sub-packages:
//   - sim/cluster/: hosts, VMs, tasks, provisioners and the time-shared task scheduler
//   - sim/policy/: VM placement, over/under-utilization detection and migration planning
//   - sim/datacenter/: the Datacenter and Broker entities that drive the policy engine
//   - sim/workload/: YAML scenario specs and the scenario builder
//   - sim/trace/: allocation and migration decision records
//
// # Ordering Guarantees
//
// The clock never decreases. Events with the same fire time are delivered in the order
// they were scheduled. An entity callback runs to completion before the next event is
// popped, so entities can treat shared state as consistent while handling an event.
package sim
