package sim

import "container/heap"

// eventHeap implements heap.Interface ordered by (time, seq).
// See canonical Golang example here: https://pkg.go.dev/container/heap#example-package-IntHeap
type eventHeap []*Event

func (h eventHeap) Len() int           { return len(h) }
func (h eventHeap) Less(i, j int) bool { return h[i].before(h[j]) }
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(*Event))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	*h = old[:n-1]
	return item
}

// FutureEventSet holds all events that have not fired yet. Repeated PopEarliest calls
// yield events in non-decreasing (time, seq) order. The sequence counter is owned by the
// set and increases monotonically across the whole run, so events scheduled for the same
// instant are delivered FIFO.
type FutureEventSet struct {
	events  eventHeap
	nextSeq uint64
}

// NewFutureEventSet creates an empty FutureEventSet.
func NewFutureEventSet() *FutureEventSet {
	return &FutureEventSet{events: make(eventHeap, 0)}
}

// Len returns the number of pending events.
func (f *FutureEventSet) Len() int {
	return len(f.events)
}

// insert assigns the next sequence number to ev and adds it to the set.
func (f *FutureEventSet) insert(ev *Event) *Event {
	ev.seq = f.nextSeq
	f.nextSeq++
	heap.Push(&f.events, ev)
	return ev
}

// PopEarliest removes and returns the (time, seq)-minimal event.
// Returns false if the set is empty.
func (f *FutureEventSet) PopEarliest() (*Event, bool) {
	if len(f.events) == 0 {
		return nil, false
	}
	return heap.Pop(&f.events).(*Event), true
}

// Peek returns the next event without removing it.
func (f *FutureEventSet) Peek() (*Event, bool) {
	if len(f.events) == 0 {
		return nil, false
	}
	return f.events[0], true
}

// Cancel removes every pending event matching pred and returns how many were removed.
func (f *FutureEventSet) Cancel(pred Predicate) int {
	kept := f.events[:0]
	removed := 0
	for _, ev := range f.events {
		if pred(ev) {
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	if removed == 0 {
		return 0
	}
	for i := len(kept); i < len(f.events); i++ {
		f.events[i] = nil
	}
	f.events = kept
	heap.Init(&f.events)
	return removed
}

// FindFirst returns the earliest pending event matching pred without removing it.
func (f *FutureEventSet) FindFirst(pred Predicate) (*Event, bool) {
	var found *Event
	for _, ev := range f.events {
		if pred(ev) && (found == nil || ev.before(found)) {
			found = ev
		}
	}
	return found, found != nil
}

// Count returns the number of pending events matching pred.
func (f *FutureEventSet) Count(pred Predicate) int {
	n := 0
	for _, ev := range f.events {
		if pred(ev) {
			n++
		}
	}
	return n
}
