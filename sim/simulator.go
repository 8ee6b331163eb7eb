// sim/simulator.go
package sim

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// State is the lifecycle state of a Simulator.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TerminationPredicate stops the run when it returns true. It is evaluated before
// every dispatch.
type TerminationPredicate func(sim *Simulator) bool

// Simulator is the simulation context: it owns the logical clock, the event sets and the
// registered entities, and runs the dispatch loop. Each run gets its own Simulator, so
// independent runs share no state.
//
// Thread-safety: NOT thread-safe. All entity callbacks run on the caller's goroutine.
type Simulator struct {
	clock       float64
	state       State
	future      *FutureEventSet
	deferred    *DeferredEventLog
	entities    []Entity
	byName      map[string]EntityID
	terminateAt float64
	until       TerminationPredicate
	abortErr    error
	dispatched  uint64
}

// NewSimulator creates an idle Simulator with the clock at 0 and no termination time.
func NewSimulator() *Simulator {
	return &Simulator{
		future:      NewFutureEventSet(),
		deferred:    NewDeferredEventLog(),
		entities:    make([]Entity, 0),
		byName:      make(map[string]EntityID),
		terminateAt: math.Inf(1),
	}
}

// Clock returns the current logical time in simulated seconds.
func (s *Simulator) Clock() float64 { return s.clock }

// State returns the lifecycle state.
func (s *Simulator) State() State { return s.state }

// Dispatched returns the number of events delivered so far.
func (s *Simulator) Dispatched() uint64 { return s.dispatched }

// Pending returns the number of events in the Future Event Set.
func (s *Simulator) Pending() int { return s.future.Len() }

// Err returns the error that aborted the run, if any.
func (s *Simulator) Err() error { return s.abortErr }

// TerminateAt stops the run before dispatching any event scheduled after t.
func (s *Simulator) TerminateAt(t float64) {
	s.terminateAt = t
}

// SetTerminationPredicate installs a predicate that ends the run when it holds.
func (s *Simulator) SetTerminationPredicate(p TerminationPredicate) {
	s.until = p
}

// Register adds an entity and assigns its ID. Entities registered while running are
// started immediately. Panics if the entity is already registered or its name is taken.
func (s *Simulator) Register(e Entity) EntityID {
	b := e.base()
	if b.bound {
		panic(fmt.Sprintf("Simulator.Register: entity %q already registered", b.name))
	}
	if _, dup := s.byName[b.name]; dup {
		panic(fmt.Sprintf("Simulator.Register: duplicate entity name %q", b.name))
	}
	id := EntityID(len(s.entities))
	b.id = id
	b.bound = true
	s.entities = append(s.entities, e)
	s.byName[b.name] = id
	logrus.Debugf("registered entity %s as #%d", b.name, id)
	if s.state == StateRunning {
		e.Start(s)
	}
	return id
}

// Entity returns the entity with the given ID.
func (s *Simulator) Entity(id EntityID) (Entity, bool) {
	if id < 0 || int(id) >= len(s.entities) {
		return nil, false
	}
	return s.entities[id], true
}

// EntityByName returns the entity registered under name.
func (s *Simulator) EntityByName(name string) (Entity, bool) {
	id, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return s.entities[id], true
}

// Send schedules an event from src to dst after delay seconds.
func (s *Simulator) Send(src, dst EntityID, delay float64, tag Tag, payload any) (*Event, error) {
	if math.IsNaN(delay) || delay < 0 {
		return nil, fmt.Errorf("send tag %d to #%d with delay %v: %w", tag, dst, delay, ErrPastEvent)
	}
	return s.ScheduleAt(src, dst, s.clock+delay, tag, payload)
}

// ScheduleAt schedules an event from src to dst at absolute time t.
func (s *Simulator) ScheduleAt(src, dst EntityID, t float64, tag Tag, payload any) (*Event, error) {
	kind := KindSend
	if src == dst {
		kind = KindHold
	}
	return s.schedule(&Event{time: t, tag: tag, payload: payload, src: src, dst: dst, kind: kind})
}

// Hold schedules a wake-up for src after delay seconds.
func (s *Simulator) Hold(src EntityID, delay float64, tag Tag) (*Event, error) {
	return s.Send(src, src, delay, tag, nil)
}

// ScheduleCreation registers e when the returned event fires, then starts it.
func (s *Simulator) ScheduleCreation(e Entity, delay float64) (*Event, error) {
	if math.IsNaN(delay) || delay < 0 {
		return nil, fmt.Errorf("create %q with delay %v: %w", e.Name(), delay, ErrPastEvent)
	}
	return s.schedule(&Event{time: s.clock + delay, src: NoEntity, dst: NoEntity, kind: KindCreate, created: e})
}

func (s *Simulator) schedule(ev *Event) (*Event, error) {
	if s.state == StateTerminated {
		return nil, ErrTerminated
	}
	if math.IsNaN(ev.time) || ev.time < s.clock {
		return nil, fmt.Errorf("event at %v with clock %v: %w", ev.time, s.clock, ErrPastEvent)
	}
	if ev.kind != KindCreate {
		if _, ok := s.Entity(ev.dst); !ok {
			return nil, fmt.Errorf("event tag %d to #%d: %w", ev.tag, ev.dst, ErrUnknownEntity)
		}
	}
	return s.future.insert(ev), nil
}

// Cancel removes pending events matching pred. Already-dispatched events are unaffected.
func (s *Simulator) Cancel(pred Predicate) int {
	return s.future.Cancel(pred)
}

// FindFuture returns the earliest pending event matching pred.
func (s *Simulator) FindFuture(pred Predicate) (*Event, bool) {
	return s.future.FindFirst(pred)
}

// CountFuture returns the number of pending events matching pred.
func (s *Simulator) CountFuture(pred Predicate) int {
	return s.future.Count(pred)
}

// FindDeferred returns the earliest dispatched event matching pred.
func (s *Simulator) FindDeferred(pred Predicate) (*Event, bool) {
	return s.deferred.FindFirst(pred)
}

// PurgeDeferred drops dispatched events matching pred from the history.
func (s *Simulator) PurgeDeferred(pred Predicate) int {
	return s.deferred.Purge(pred)
}

// History returns a copy of the dispatched events in dispatch order.
func (s *Simulator) History() []*Event {
	return s.deferred.Events()
}

// Abort stops the run with err. Only the first error is kept.
func (s *Simulator) Abort(err error) {
	if err == nil || s.abortErr != nil {
		return
	}
	logrus.Errorf("[t=%.3f] simulation aborted: %v", s.clock, err)
	s.abortErr = err
}

// Start moves the simulation from Idle to Running and starts every registered entity.
func (s *Simulator) Start() error {
	if s.state != StateIdle {
		return ErrNotIdle
	}
	s.state = StateRunning
	logrus.Infof("[t=%.3f] simulation started with %d entities", s.clock, len(s.entities))
	// Entities registered by another entity's Start are started by Register.
	n := len(s.entities)
	for i := 0; i < n; i++ {
		s.entities[i].Start(s)
	}
	return s.abortErr
}

// Run starts the simulation and dispatches events until it terminates.
// Returns the abort error, if any.
func (s *Simulator) Run() error {
	if err := s.Start(); err != nil {
		if !errors.Is(err, ErrNotIdle) {
			s.terminate()
		}
		return err
	}
	for s.state == StateRunning {
		if s.shouldTerminate() {
			s.terminate()
			break
		}
		s.dispatchNext()
	}
	return s.abortErr
}

// Step dispatches every event due within the next delta seconds, in the same order Run
// would, then advances the clock by exactly delta. Returns whether the simulation is
// still running. An idle simulation is started first. When the remaining events lie
// past the termination time the clock still advances, stopping at that time.
func (s *Simulator) Step(delta float64) (bool, error) {
	if s.state == StateIdle {
		if err := s.Start(); err != nil {
			s.terminate()
			return false, err
		}
	}
	if s.state == StateTerminated {
		return false, ErrTerminated
	}
	if math.IsNaN(delta) || delta < 0 {
		return true, fmt.Errorf("step by %v: %w", delta, ErrPastEvent)
	}
	target := s.clock + delta
	for {
		if s.beyondHorizon() && s.abortErr == nil && (s.until == nil || !s.until(s)) {
			break
		}
		if s.shouldTerminate() {
			s.terminate()
			return false, s.abortErr
		}
		next, _ := s.future.Peek()
		if next.time > target {
			break
		}
		s.dispatchNext()
	}
	if target > s.terminateAt {
		s.clock = math.Max(s.clock, s.terminateAt)
		s.terminate()
		return false, s.abortErr
	}
	s.clock = target
	return true, nil
}

func (s *Simulator) shouldTerminate() bool {
	if s.abortErr != nil {
		return true
	}
	if _, ok := s.future.Peek(); !ok {
		logrus.Debugf("[t=%.3f] no more future events", s.clock)
		return true
	}
	if s.beyondHorizon() {
		logrus.Debugf("[t=%.3f] termination time %.3f reached", s.clock, s.terminateAt)
		return true
	}
	if s.until != nil && s.until(s) {
		logrus.Debugf("[t=%.3f] termination predicate holds", s.clock)
		return true
	}
	return false
}

// beyondHorizon reports whether events remain but all of them fire after the
// termination time.
func (s *Simulator) beyondHorizon() bool {
	next, ok := s.future.Peek()
	return ok && next.time > s.terminateAt
}

func (s *Simulator) dispatchNext() {
	ev, ok := s.future.PopEarliest()
	if !ok {
		return
	}
	if ev.time < s.clock {
		s.Abort(fmt.Errorf("dispatching %v at clock %v: %w", ev, s.clock, ErrPastEvent))
		return
	}
	s.clock = ev.time
	s.deferred.Append(ev)
	s.dispatched++

	if ev.kind == KindCreate {
		logrus.Debugf("[t=%.3f] creating entity %s", s.clock, ev.created.Name())
		s.Register(ev.created)
		return
	}
	dst := s.entities[ev.dst]
	logrus.Debugf("[t=%.3f] dispatch seq=%d tag=%d -> %s", s.clock, ev.seq, ev.tag, dst.Name())
	dst.Process(s, ev)
}

func (s *Simulator) terminate() {
	if s.state == StateTerminated {
		return
	}
	s.state = StateTerminated
	for _, e := range s.entities {
		e.Shutdown(s)
	}
	logrus.Infof("[t=%.3f] simulation ended after %d events", s.clock, s.dispatched)
}
