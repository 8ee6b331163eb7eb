package sim

import "errors"

var (
	// ErrPastEvent is returned when an event would fire before the current clock.
	ErrPastEvent = errors.New("event scheduled before current simulation time")
	// ErrUnknownEntity is returned when an event is addressed to an unregistered entity.
	ErrUnknownEntity = errors.New("unknown destination entity")
	// ErrNotIdle is returned when Run or Start is called on a simulation that already started.
	ErrNotIdle = errors.New("simulation already started")
	// ErrTerminated is returned when stepping a terminated simulation.
	ErrTerminated = errors.New("simulation terminated")
)
