package sim

import (
	"fmt"
	"math"
)

// ActorID is the stable identity of a registered actor.
type ActorID string

// TransportID is the id every delivery request is addressed to.
const TransportID ActorID = "network"

// Actor is anything that receives dispatched events. HandleEvent returns an
// error only for scheduling failures; protocol failures are state transitions.
type Actor interface {
	ID() ActorID
	HandleEvent(p Payload) error
}

// BaseActor gives an actor its identity and the two outbound primitives.
// Both only enqueue events; neither touches another actor's state.
type BaseActor struct {
	id  ActorID
	sim *Simulator
}

// NewBaseActor binds an actor id to a simulator.
func NewBaseActor(id ActorID, s *Simulator) BaseActor {
	return BaseActor{id: id, sim: s}
}

// ID returns the actor id.
func (a *BaseActor) ID() ActorID {
	return a.id
}

// Now returns the simulator clock.
func (a *BaseActor) Now() float64 {
	return a.sim.Now()
}

// Simulator returns the simulator the actor is bound to.
func (a *BaseActor) Simulator() *Simulator {
	return a.sim
}

// Send enqueues an immediate delivery request to the transport.
func (a *BaseActor) Send(to ActorID, msg Message) {
	a.sim.enqueue(&Event{
		Timestamp: a.sim.Now(),
		Priority:  PriorityMessage,
		Target:    TransportID,
		Payload:   Delivery{From: a.id, To: to, Msg: msg},
	})
}

// ScheduleTimer enqueues a timer for this actor at now+delay.
func (a *BaseActor) ScheduleTimer(delay float64, t Timer) error {
	if delay < 0 || math.IsNaN(delay) || math.IsInf(delay, 0) {
		return fmt.Errorf("%w: %s timer on %s with delay %v", ErrInvalidSchedule, t.Kind, a.id, delay)
	}
	return a.sim.Schedule(&Event{
		Timestamp: a.sim.Now() + delay,
		Priority:  PriorityTimer,
		Target:    a.id,
		Payload:   t,
	})
}
