package testutil

import (
	"fmt"

	"github.com/sparse-blobpool/blobsim/sim"
)

// Loopback is a zero-delay transport: every delivery arrives at the current time.
type Loopback struct {
	sim.BaseActor
	Delivered []sim.Delivery
}

// NewLoopback creates a loopback bound to s under the transport id.
func NewLoopback(s *sim.Simulator) *Loopback {
	return &Loopback{BaseActor: sim.NewBaseActor(sim.TransportID, s)}
}

func (l *Loopback) HandleEvent(p sim.Payload) error {
	d, ok := p.(sim.Delivery)
	if !ok {
		return fmt.Errorf("loopback received %s", sim.PayloadKind(p))
	}
	l.Delivered = append(l.Delivered, d)
	return l.Simulator().Schedule(&sim.Event{
		Timestamp: l.Now(),
		Priority:  sim.PriorityMessage,
		Target:    d.To,
		Payload:   d.Msg,
	})
}

// Inbox records everything dispatched to it.
type Inbox struct {
	sim.BaseActor
	Got []sim.Payload
}

// NewInbox creates an inbox bound to s.
func NewInbox(id sim.ActorID, s *sim.Simulator) *Inbox {
	return &Inbox{BaseActor: sim.NewBaseActor(id, s)}
}

func (in *Inbox) HandleEvent(p sim.Payload) error {
	in.Got = append(in.Got, p)
	return nil
}

// Received returns the payloads of type T an inbox got, in arrival order.
func Received[T sim.Payload](in *Inbox) []T {
	var out []T
	for _, p := range in.Got {
		if v, ok := p.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// Deliver schedules msg directly on target at time at, bypassing the transport.
func Deliver(s *sim.Simulator, at float64, target sim.ActorID, msg sim.Message) error {
	return s.Schedule(&sim.Event{
		Timestamp: at,
		Priority:  sim.PriorityMessage,
		Target:    target,
		Payload:   msg,
	})
}
