package sim

import "errors"

// Scheduling errors abort the run. They indicate a logic bug in an actor,
// never a protocol outcome.
var (
	// ErrOrderingViolation is returned when an event is scheduled before the current time.
	ErrOrderingViolation = errors.New("ordering violation")
	// ErrInvalidSchedule is returned for negative or non-finite timer delays.
	ErrInvalidSchedule = errors.New("invalid schedule")
	// ErrUnknownActor is returned when an event targets an unregistered actor.
	ErrUnknownActor = errors.New("unknown actor")
	// ErrDuplicateActor is returned when an actor id is registered twice.
	ErrDuplicateActor = errors.New("actor already registered")
)
