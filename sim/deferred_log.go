package sim

// DeferredEventLog holds events that have already been dispatched, in dispatch order.
// Events in the log are never mutated; they can only be queried or purged.
type DeferredEventLog struct {
	events []*Event
}

// NewDeferredEventLog creates an empty log.
func NewDeferredEventLog() *DeferredEventLog {
	return &DeferredEventLog{events: make([]*Event, 0)}
}

// Append records a dispatched event.
func (d *DeferredEventLog) Append(ev *Event) {
	d.events = append(d.events, ev)
}

// Len returns the number of logged events.
func (d *DeferredEventLog) Len() int {
	return len(d.events)
}

// FindFirst returns the earliest-dispatched event matching pred, without removing it.
func (d *DeferredEventLog) FindFirst(pred Predicate) (*Event, bool) {
	for _, ev := range d.events {
		if pred(ev) {
			return ev, true
		}
	}
	return nil, false
}

// FindLast returns the most recently dispatched event matching pred.
func (d *DeferredEventLog) FindLast(pred Predicate) (*Event, bool) {
	for i := len(d.events) - 1; i >= 0; i-- {
		if pred(d.events[i]) {
			return d.events[i], true
		}
	}
	return nil, false
}

// Purge removes every logged event matching pred and returns how many were removed.
func (d *DeferredEventLog) Purge(pred Predicate) int {
	kept := d.events[:0]
	for _, ev := range d.events {
		if !pred(ev) {
			kept = append(kept, ev)
		}
	}
	removed := len(d.events) - len(kept)
	for i := len(kept); i < len(d.events); i++ {
		d.events[i] = nil
	}
	d.events = kept
	return removed
}

// Events returns a copy of the logged events in dispatch order.
func (d *DeferredEventLog) Events() []*Event {
	out := make([]*Event, len(d.events))
	copy(out, d.events)
	return out
}
