package datacenter

import (
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/vmsim/vmsim/sim"
	"github.com/vmsim/vmsim/sim/cluster"
	"github.com/vmsim/vmsim/sim/workload"
)

// BrokerConfig controls how the broker reacts to failed placements.
type BrokerConfig struct {
	// RetryInterval is the delay before unplaced VMs are resubmitted.
	RetryInterval float64
	// MaxRetries bounds resubmissions per VM. Zero never retries.
	MaxRetries int
}

type vmEntry struct {
	plan      workload.VMPlan
	attempts  int // failed placement attempts
	created   bool
	hostID    int
	returned  int
	destroyed bool
}

func (e *vmEntry) exhausted(maxRetries int) bool {
	return !e.created && e.attempts > maxRetries
}

// Broker submits VMs and their tasks to a datacenter on behalf of one user, retries
// failed placements and destroys each VM once all its tasks came back.
type Broker struct {
	sim.BaseEntity

	datacenter sim.EntityID
	config     BrokerConfig
	entries    []*vmEntry // in VM ID order
	byVM       map[int]*vmEntry
	waiting    waitQueue
	finished   []*cluster.Task
}

// NewBroker creates a broker with no VMs. Call Submit before the run starts.
func NewBroker(name string, cfg BrokerConfig) *Broker {
	if cfg.MaxRetries < 0 {
		panic(fmt.Sprintf("Broker: max retries must be >= 0, got %d", cfg.MaxRetries))
	}
	if cfg.MaxRetries > 0 && cfg.RetryInterval <= 0 {
		panic(fmt.Sprintf("Broker: retry interval must be > 0 with %d retries, got %v", cfg.MaxRetries, cfg.RetryInterval))
	}
	b := &Broker{
		datacenter: sim.NoEntity,
		config:     cfg,
		byVM:       make(map[int]*vmEntry),
	}
	b.Init(name, sim.HandlerTable{
		TagSubmitVMs:   b.handleSubmitVMs,
		TagRetryVMs:    b.handleRetryVMs,
		TagVMCreateAck: b.handleCreateAck,
		TagTaskReturn:  b.handleTaskReturn,
	})
	return b
}

// Submit hands the broker the VMs it will request from datacenter. VMs must be owned
// by this broker.
func (b *Broker) Submit(datacenter sim.EntityID, plans []workload.VMPlan) {
	b.datacenter = datacenter
	for _, p := range plans {
		if p.VM.Owner() != b.ID() {
			panic(fmt.Sprintf("Broker.Submit: vm %d is owned by entity %d, not %d", p.VM.ID(), p.VM.Owner(), b.ID()))
		}
		e := &vmEntry{plan: p, hostID: -1}
		b.entries = append(b.entries, e)
		b.byVM[p.VM.ID()] = e
	}
	slices.SortFunc(b.entries, func(x, y *vmEntry) int { return x.plan.VM.ID() - y.plan.VM.ID() })
}

// Start schedules one submission wake-up per distinct submit time.
func (b *Broker) Start(s *sim.Simulator) {
	var times []float64
	for _, e := range b.entries {
		times = append(times, e.plan.SubmitTime)
	}
	slices.Sort(times)
	for _, t := range slices.Compact(times) {
		b.ScheduleSelf(s, t-s.Clock(), TagSubmitVMs, t)
	}
}

func (b *Broker) handleSubmitVMs(s *sim.Simulator, ev *sim.Event) {
	at := ev.Payload().(float64)
	for _, e := range b.entries {
		if e.plan.SubmitTime == at {
			b.requestCreate(s, e)
		}
	}
}

func (b *Broker) requestCreate(s *sim.Simulator, e *vmEntry) {
	b.Schedule(s, b.datacenter, 0, TagVMCreate, &CreateRequest{VM: e.plan.VM, Attempt: e.attempts})
}

func (b *Broker) handleCreateAck(s *sim.Simulator, ev *sim.Event) {
	ack := ev.Payload().(*CreateAck)
	e, ok := b.byVM[ack.VM.ID()]
	if !ok {
		logrus.Warnf("[t=%.3f] %s: ack for unknown vm %d", s.Clock(), b.Name(), ack.VM.ID())
		return
	}
	if !ack.Success {
		b.placementFailed(s, e)
		return
	}

	e.created = true
	e.hostID = ack.Host.ID()
	if len(e.plan.Tasks) == 0 {
		b.destroy(s, e)
		return
	}
	for _, t := range e.plan.Tasks {
		t.BindVM(e.plan.VM.ID())
		b.Schedule(s, b.datacenter, 0, TagTaskSubmit, t)
	}
}

func (b *Broker) placementFailed(s *sim.Simulator, e *vmEntry) {
	e.attempts++
	b.waiting.Enqueue(e)
	if e.exhausted(b.config.MaxRetries) {
		logrus.Infof("[t=%.3f] %s: vm %d could not be placed after %d attempt(s)", s.Clock(), b.Name(), e.plan.VM.ID(), e.attempts)
		return
	}
	retries := sim.And(sim.DestinedFor(b.ID()), sim.TagIs(TagRetryVMs))
	if _, pending := s.FindFuture(retries); !pending {
		b.ScheduleSelf(s, b.config.RetryInterval, TagRetryVMs, nil)
	}
}

func (b *Broker) handleRetryVMs(s *sim.Simulator, _ *sim.Event) {
	due := b.waiting.DequeueIf(func(e *vmEntry) bool { return !e.exhausted(b.config.MaxRetries) })
	logrus.Debugf("[t=%.3f] %s: retrying %d vm(s), %d left waiting", s.Clock(), b.Name(), len(due), b.waiting.Len())
	for _, e := range due {
		b.requestCreate(s, e)
	}
}

func (b *Broker) handleTaskReturn(s *sim.Simulator, ev *sim.Event) {
	t := ev.Payload().(*cluster.Task)
	b.finished = append(b.finished, t)
	e, ok := b.byVM[t.VMID()]
	if !ok {
		logrus.Warnf("[t=%.3f] %s: task %d returned from unknown vm %d", s.Clock(), b.Name(), t.ID(), t.VMID())
		return
	}
	e.returned++
	if e.returned == len(e.plan.Tasks) {
		b.destroy(s, e)
	}
}

func (b *Broker) destroy(s *sim.Simulator, e *vmEntry) {
	e.destroyed = true
	b.Schedule(s, b.datacenter, 0, TagVMDestroy, e.plan.VM)
}

// Finished reports whether every VM was either destroyed after running its tasks or
// abandoned after its last placement attempt.
func (b *Broker) Finished() bool {
	for _, e := range b.entries {
		if !e.destroyed && !e.exhausted(b.config.MaxRetries) {
			return false
		}
	}
	return true
}

// Created returns the IDs of VMs that were placed at some point, in ID order.
func (b *Broker) Created() []int {
	var ids []int
	for _, e := range b.entries {
		if e.created {
			ids = append(ids, e.plan.VM.ID())
		}
	}
	return ids
}

// NeverCreated returns the IDs of VMs that were never placed, in ID order.
func (b *Broker) NeverCreated() []int {
	var ids []int
	for _, e := range b.entries {
		if !e.created {
			ids = append(ids, e.plan.VM.ID())
		}
	}
	return ids
}

// FinishedTasks returns the tasks returned so far, in return order.
func (b *Broker) FinishedTasks() []*cluster.Task {
	return slices.Clone(b.finished)
}

// Waiting returns the number of VMs queued for another placement attempt or given up on.
func (b *Broker) Waiting() int { return b.waiting.Len() }
