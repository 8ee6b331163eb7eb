package sim

import "fmt"

// EntityID identifies a registered entity. IDs are assigned in registration order
// starting at 0.
type EntityID int

// NoEntity is the source of events scheduled from outside any entity callback.
const NoEntity EntityID = -1

// Tag identifies what the recipient of an event should do. Each entity declares its
// own closed set of tags and maps them to handlers via a HandlerTable.
type Tag int

// EventKind is the lifecycle type of an event.
type EventKind int

const (
	KindSend   EventKind = iota // message from one entity to another (or itself)
	KindHold                    // self wake-up after a delay
	KindCreate                  // deferred entity registration
)

func (k EventKind) String() string {
	switch k {
	case KindSend:
		return "send"
	case KindHold:
		return "hold"
	case KindCreate:
		return "create"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is a timed action. All fields are fixed when the event is inserted into the
// Future Event Set; identity is by pointer, so two events with identical fields are
// still distinct.
type Event struct {
	time    float64   // scheduled fire time (simulated seconds)
	seq     uint64    // insertion sequence number, breaks time ties (FIFO)
	tag     Tag       // purpose tag
	payload any       // opaque data for the recipient
	src     EntityID  // sender
	dst     EntityID  // recipient
	kind    EventKind // lifecycle type
	created Entity    // entity to register (KindCreate only)
}

// Time returns the scheduled fire time of the event.
func (e *Event) Time() float64 { return e.time }

// Seq returns the sequence number assigned at insertion.
func (e *Event) Seq() uint64 { return e.seq }

// Tag returns the purpose tag.
func (e *Event) Tag() Tag { return e.tag }

// Payload returns the opaque payload (may be nil).
func (e *Event) Payload() any { return e.payload }

// Src returns the sending entity, or NoEntity for externally scheduled events.
func (e *Event) Src() EntityID { return e.src }

// Dst returns the destination entity.
func (e *Event) Dst() EntityID { return e.dst }

// Kind returns the lifecycle type.
func (e *Event) Kind() EventKind { return e.kind }

func (e *Event) String() string {
	return fmt.Sprintf("event{t=%.4f seq=%d tag=%d %s %d->%d}", e.time, e.seq, e.tag, e.kind, e.src, e.dst)
}

// before reports whether e fires before o in (time, seq) order.
func (e *Event) before(o *Event) bool {
	if e.time != o.time {
		return e.time < o.time
	}
	return e.seq < o.seq
}

// Predicate selects events for Cancel, FindFuture and FindDeferred.
type Predicate func(*Event) bool

// TagIs matches events carrying the given tag.
func TagIs(tag Tag) Predicate {
	return func(e *Event) bool { return e.tag == tag }
}

// DestinedFor matches events addressed to the given entity.
func DestinedFor(id EntityID) Predicate {
	return func(e *Event) bool { return e.dst == id }
}

// SentBy matches events sent by the given entity.
func SentBy(id EntityID) Predicate {
	return func(e *Event) bool { return e.src == id }
}

// PayloadIs matches events whose payload is the given value. Pointer payloads compare
// by identity.
func PayloadIs(payload any) Predicate {
	return func(e *Event) bool { return e.payload == payload }
}

// And matches events satisfying every predicate.
func And(preds ...Predicate) Predicate {
	return func(e *Event) bool {
		for _, p := range preds {
			if !p(e) {
				return false
			}
		}
		return true
	}
}
