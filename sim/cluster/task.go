package cluster

import (
	"fmt"

	"github.com/vmsim/vmsim/sim"
)

// TaskStatus is the lifecycle state of a Task.
type TaskStatus int

const (
	TaskCreated TaskStatus = iota
	TaskRunning
	TaskFinished
)

func (s TaskStatus) String() string {
	switch s {
	case TaskCreated:
		return "created"
	case TaskRunning:
		return "running"
	case TaskFinished:
		return "finished"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Task is a unit of work of a fixed length in million instructions, executed inside
// a VM by that VM's TaskScheduler.
type Task struct {
	id     int
	length float64
	model  UtilizationModel
	owner  sim.EntityID
	vmID   int

	status     TaskStatus
	executed   float64
	submitTime float64
	finishTime float64
}

// NewTask creates a task of length MI. A nil model means Full.
// Panics if length is not positive.
func NewTask(id int, length float64, model UtilizationModel) *Task {
	if length <= 0 {
		panic(fmt.Sprintf("NewTask: length must be > 0, got %v", length))
	}
	if model == nil {
		model = Full{}
	}
	return &Task{id: id, length: length, model: model, owner: sim.NoEntity, vmID: -1}
}

func (t *Task) ID() int                  { return t.id }
func (t *Task) Length() float64          { return t.length }
func (t *Task) Model() UtilizationModel  { return t.model }
func (t *Task) Owner() sim.EntityID      { return t.owner }
func (t *Task) VMID() int                { return t.vmID }
func (t *Task) Status() TaskStatus       { return t.status }
func (t *Task) Executed() float64        { return t.executed }
func (t *Task) Remaining() float64       { return t.length - t.executed }
func (t *Task) SubmitTime() float64      { return t.submitTime }
func (t *Task) FinishTime() float64      { return t.finishTime }
func (t *Task) SetOwner(id sim.EntityID) { t.owner = id }

// BindVM assigns the task to a VM. It must be called before submission.
func (t *Task) BindVM(vmID int) { t.vmID = vmID }

func (t *Task) String() string {
	return fmt.Sprintf("task#%d(vm=%d, %.0f/%.0f MI, %s)", t.id, t.vmID, t.executed, t.length, t.status)
}
