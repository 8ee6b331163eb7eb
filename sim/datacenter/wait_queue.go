package datacenter

import (
	"fmt"
	"strings"
)

// waitQueue is a FIFO of VMs the broker could not get placed yet.
type waitQueue struct {
	queue []*vmEntry
}

// Enqueue adds an entry to the back of the queue.
func (wq *waitQueue) Enqueue(e *vmEntry) {
	if e == nil {
		panic("Enqueue: entry must not be nil")
	}
	wq.queue = append(wq.queue, e)
}

func (wq *waitQueue) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, e := range wq.queue {
		sb.WriteString(fmt.Sprintf("vm%d", e.plan.VM.ID()))
		if i < len(wq.queue)-1 {
			sb.WriteString(" ")
		}
	}
	sb.WriteString("]")
	return sb.String()
}

// Len returns the number of queued entries.
func (wq *waitQueue) Len() int {
	return len(wq.queue)
}

// Peek returns the entry at the front without removing it, or nil.
func (wq *waitQueue) Peek() *vmEntry {
	if len(wq.queue) == 0 {
		return nil
	}
	return wq.queue[0]
}

// Dequeue removes and returns the entry at the front, or nil.
func (wq *waitQueue) Dequeue() *vmEntry {
	if len(wq.queue) == 0 {
		return nil
	}
	e := wq.queue[0]
	wq.queue[0] = nil
	wq.queue = wq.queue[1:]
	return e
}

// DequeueIf removes and returns, in order, every entry for which take returns true.
// The remaining entries keep their order.
func (wq *waitQueue) DequeueIf(take func(*vmEntry) bool) []*vmEntry {
	var out []*vmEntry
	kept := wq.queue[:0]
	for _, e := range wq.queue {
		if take(e) {
			out = append(out, e)
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(wq.queue); i++ {
		wq.queue[i] = nil
	}
	wq.queue = kept
	return out
}

// Items returns the queue contents for iteration. Callers must not modify the slice.
func (wq *waitQueue) Items() []*vmEntry {
	return wq.queue
}
