package cluster

import (
	"fmt"
	"math"
)

// progressEpsilon absorbs floating-point drift when deciding a task is complete.
const progressEpsilon = 1e-6

// TaskScheduler runs tasks inside one VM. The allocation engine only reads
// Utilization; the datacenter drives Update on its recompute cadence.
type TaskScheduler interface {
	// Submit starts t at now.
	Submit(t *Task, now float64)
	// Update advances every active task to now given the VM's MIPS, moves completed
	// tasks to the finished list, and returns the delay until the next completion
	// (+Inf when nothing is active).
	Update(now, mips float64) float64
	// Utilization is the VM CPU fraction demanded by active tasks at now, capped at 1.
	Utilization(now float64) float64
	ActiveCount() int
	// TakeFinished returns tasks finished since the last call and forgets them.
	TakeFinished() []*Task
}

// TimeShared splits the VM's MIPS equally across all active tasks.
type TimeShared struct {
	active     []*Task
	finished   []*Task
	lastUpdate float64
}

// NewTimeShared creates an empty time-shared scheduler.
func NewTimeShared() *TimeShared {
	return &TimeShared{}
}

func (ts *TimeShared) Submit(t *Task, now float64) {
	if t.status != TaskCreated {
		panic(fmt.Sprintf("TimeShared.Submit: %v already submitted", t))
	}
	if len(ts.active) == 0 {
		ts.lastUpdate = now
	}
	t.status = TaskRunning
	t.submitTime = now
	ts.active = append(ts.active, t)
}

func (ts *TimeShared) Update(now, mips float64) float64 {
	if len(ts.active) == 0 {
		ts.lastUpdate = now
		return math.Inf(1)
	}
	elapsed := now - ts.lastUpdate
	ts.lastUpdate = now
	if elapsed > 0 {
		share := mips / float64(len(ts.active))
		for _, t := range ts.active {
			t.executed = math.Min(t.length, t.executed+share*elapsed)
		}
	}

	still := ts.active[:0]
	for _, t := range ts.active {
		if t.Remaining() <= progressEpsilon {
			t.executed = t.length
			t.status = TaskFinished
			t.finishTime = now
			ts.finished = append(ts.finished, t)
			continue
		}
		still = append(still, t)
	}
	for i := len(still); i < len(ts.active); i++ {
		ts.active[i] = nil
	}
	ts.active = still

	if len(ts.active) == 0 || mips <= 0 {
		return math.Inf(1)
	}
	share := mips / float64(len(ts.active))
	next := math.Inf(1)
	for _, t := range ts.active {
		next = math.Min(next, t.Remaining()/share)
	}
	return next
}

func (ts *TimeShared) Utilization(now float64) float64 {
	total := 0.0
	for _, t := range ts.active {
		total += t.model.Utilization(now)
	}
	return math.Min(1, total)
}

func (ts *TimeShared) ActiveCount() int { return len(ts.active) }

func (ts *TimeShared) TakeFinished() []*Task {
	out := ts.finished
	ts.finished = nil
	return out
}
