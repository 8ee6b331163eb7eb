package sim

import "github.com/sirupsen/logrus"

// Entity is a simulated actor with private state and a single event-handling callback.
// Concrete entities embed BaseEntity, which carries the ID and handler table.
//
// Process runs synchronously and to completion; it must never block. An entity that
// needs to wait schedules an event to itself and returns.
type Entity interface {
	ID() EntityID
	Name() string
	Start(sim *Simulator)
	Process(sim *Simulator, ev *Event)
	Shutdown(sim *Simulator)
	base() *BaseEntity
}

// HandlerFunc handles one tag for an entity.
type HandlerFunc func(sim *Simulator, ev *Event)

// HandlerTable maps an entity's closed set of tags to handlers.
type HandlerTable map[Tag]HandlerFunc

// BaseEntity provides identity, a handler table and scheduling helpers.
// Embed it by value and call Init from the concrete constructor.
type BaseEntity struct {
	id       EntityID
	name     string
	handlers HandlerTable
	bound    bool
}

// Init sets the entity name and its handler table.
func (b *BaseEntity) Init(name string, handlers HandlerTable) {
	b.name = name
	b.handlers = handlers
	b.id = NoEntity
}

// ID returns the entity ID assigned at registration (NoEntity before that).
func (b *BaseEntity) ID() EntityID { return b.id }

// Name returns the entity name.
func (b *BaseEntity) Name() string { return b.name }

func (b *BaseEntity) base() *BaseEntity { return b }

// Start is a no-op by default.
func (b *BaseEntity) Start(*Simulator) {}

// Shutdown is a no-op by default.
func (b *BaseEntity) Shutdown(*Simulator) {}

// Process dispatches ev to the handler registered for its tag.
// Events without a handler are logged and dropped.
func (b *BaseEntity) Process(sim *Simulator, ev *Event) {
	if !b.Dispatch(sim, ev) {
		logrus.Warnf("[t=%.3f] %s: no handler for tag %d", sim.Clock(), b.name, ev.Tag())
	}
}

// Dispatch invokes the handler for ev's tag. Returns false if none is registered.
func (b *BaseEntity) Dispatch(sim *Simulator, ev *Event) bool {
	h, ok := b.handlers[ev.Tag()]
	if !ok {
		return false
	}
	h(sim, ev)
	return true
}

// Schedule sends an event from this entity to dst after delay. A scheduling error
// aborts the simulation, since it can only come from an invariant violation.
func (b *BaseEntity) Schedule(sim *Simulator, dst EntityID, delay float64, tag Tag, payload any) *Event {
	ev, err := sim.Send(b.id, dst, delay, tag, payload)
	if err != nil {
		sim.Abort(err)
		return nil
	}
	return ev
}

// ScheduleSelf sends an event from this entity to itself after delay.
func (b *BaseEntity) ScheduleSelf(sim *Simulator, delay float64, tag Tag, payload any) *Event {
	return b.Schedule(sim, b.id, delay, tag, payload)
}
