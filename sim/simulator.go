// sim/simulator.go
package sim

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/sparse-blobpool/blobsim/sim/trace"
)

// Simulator owns the clock, the event queue, the actor registry, and the only
// source of randomness in a run.
type Simulator struct {
	clock           float64
	queue           *EventHeap
	actors          map[ActorID]Actor
	order           []ActorID // registration order
	rng             *PartitionedRNG
	nextSeq         uint64
	eventsProcessed uint64
	trace           *trace.SimulationTrace
}

// NewSimulator creates an empty simulator at time zero.
func NewSimulator(seed int64) *Simulator {
	return &Simulator{
		queue:  NewEventHeap(),
		actors: make(map[ActorID]Actor),
		rng:    NewPartitionedRNG(NewSimulationKey(seed)),
	}
}

// Now returns the current simulation time in seconds.
func (s *Simulator) Now() float64 {
	return s.clock
}

// RNG returns the simulator-owned random source.
func (s *Simulator) RNG() *PartitionedRNG {
	return s.rng
}

// SetTrace enables dispatch tracing. A nil trace disables it.
func (s *Simulator) SetTrace(st *trace.SimulationTrace) {
	s.trace = st
}

// Trace returns the dispatch trace, or nil when tracing is off.
func (s *Simulator) Trace() *trace.SimulationTrace {
	return s.trace
}

// Register adds an actor. Actors are registered once, before the run.
func (s *Simulator) Register(a Actor) error {
	id := a.ID()
	if _, ok := s.actors[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateActor, id)
	}
	s.actors[id] = a
	s.order = append(s.order, id)
	return nil
}

// Actor looks up a registered actor.
func (s *Simulator) Actor(id ActorID) (Actor, bool) {
	a, ok := s.actors[id]
	return a, ok
}

// ActorIDs returns actor ids in registration order.
func (s *Simulator) ActorIDs() []ActorID {
	out := make([]ActorID, len(s.order))
	copy(out, s.order)
	return out
}

// Schedule inserts an event. Events earlier than the current time are rejected.
func (s *Simulator) Schedule(ev *Event) error {
	if math.IsNaN(ev.Timestamp) {
		return fmt.Errorf("%w: NaN timestamp for %s", ErrInvalidSchedule, ev.Target)
	}
	if ev.Timestamp < s.clock {
		return fmt.Errorf("%w: event for %s at %.9f before current time %.9f",
			ErrOrderingViolation, ev.Target, ev.Timestamp, s.clock)
	}
	s.enqueue(ev)
	return nil
}

// enqueue assigns the insertion sequence and pushes without validation.
func (s *Simulator) enqueue(ev *Event) {
	s.nextSeq++
	ev.seq = s.nextSeq
	s.queue.Schedule(ev)
}

// Pending returns the number of queued events.
func (s *Simulator) Pending() int {
	return s.queue.Len()
}

// EventsProcessed returns the number of dispatched events.
func (s *Simulator) EventsProcessed() uint64 {
	return s.eventsProcessed
}

// Run dispatches events in (timestamp, priority, sequence) order until the
// queue is empty or holds only events later than until. Every event stamped
// exactly until is dispatched, including ones scheduled while dispatching.
func (s *Simulator) Run(until float64) error {
	for s.queue.Len() > 0 {
		if s.queue.Peek().Timestamp > until {
			break
		}
		ev := s.queue.PopNext()
		if ev.Timestamp < s.clock {
			return fmt.Errorf("%w: clock went backwards from %.9f to %.9f", ErrOrderingViolation, s.clock, ev.Timestamp)
		}
		s.clock = ev.Timestamp

		actor, ok := s.actors[ev.Target]
		if !ok {
			return fmt.Errorf("%w: %s at %.6f", ErrUnknownActor, ev.Target, ev.Timestamp)
		}
		kind := PayloadKind(ev.Payload)
		if s.trace != nil {
			s.trace.RecordDispatch(trace.DispatchRecord{
				Seq:    ev.seq,
				Clock:  ev.Timestamp,
				Target: string(ev.Target),
				Kind:   kind,
			})
		}
		logrus.Debugf("[t=%.6f] %s -> %s", s.clock, kind, ev.Target)

		if err := actor.HandleEvent(ev.Payload); err != nil {
			return fmt.Errorf("dispatching %s to %s at %.6f: %w", kind, ev.Target, s.clock, err)
		}
		s.eventsProcessed++
	}
	return nil
}
