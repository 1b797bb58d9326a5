package sim

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Dispatch priorities. At equal timestamps lower values run first.
const (
	PriorityMessage = 0 // delivery requests and delivered messages
	PriorityTimer   = 1 // self-scheduled timers
)

// Event is a scheduled dispatch of a payload to a target actor.
// The sequence number is assigned by Simulator.Schedule and breaks ties
// between events with equal (Timestamp, Priority).
type Event struct {
	Timestamp float64
	Priority  int
	Target    ActorID
	Payload   Payload
	seq       uint64
}

// Seq returns the insertion sequence assigned when the event was scheduled.
func (e *Event) Seq() uint64 {
	return e.seq
}

// Payload is the closed set of values an event can carry: a Delivery handed
// to the transport, a Message delivered to an actor, or a Timer.
// Types outside this package join the set by embedding Envelope.
type Payload interface {
	isPayload()
}

// Message is a protocol message. Concrete messages live in sim/protocol and
// embed Envelope for the sender identity.
type Message interface {
	Payload
	Sender() ActorID
	SizeBytes() int
	Kind() string
}

// Envelope carries the sender of a message.
type Envelope struct {
	From ActorID
}

// Sender returns the actor that originated the message.
func (e Envelope) Sender() ActorID {
	return e.From
}

func (Envelope) isPayload() {}

// Delivery asks the transport to deliver Msg from From to To.
type Delivery struct {
	From ActorID
	To   ActorID
	Msg  Message
}

func (Delivery) isPayload() {}

// TimerKind enumerates every timer an actor may arm.
type TimerKind int

const (
	TimerProviderObservation TimerKind = iota // sampler waited too long for providers
	TimerRequestTimeout                       // pending fetch request expired
	TimerTxCleanup                            // remove an INCLUDED entry
	TimerTxExpiration                         // periodic pool expiration sweep
	TimerSlotTick                             // block producer slot boundary
	TimerAdversaryTick                        // adversary action cadence
)

var timerKindNames = map[TimerKind]string{
	TimerProviderObservation: "provider_observation_timeout",
	TimerRequestTimeout:      "request_timeout",
	TimerTxCleanup:           "tx_cleanup",
	TimerTxExpiration:        "tx_expiration_check",
	TimerSlotTick:            "slot_tick",
	TimerAdversaryTick:       "adversary_tick",
}

func (k TimerKind) String() string {
	if name, ok := timerKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("timer(%d)", int(k))
}

// Timer is a self-scheduled payload. Generation is the version of the guarded
// state captured when the timer was armed; handlers drop the timer when it no
// longer matches.
type Timer struct {
	Kind       TimerKind
	TxHash     common.Hash
	RequestID  uint64
	Generation uint64
}

func (Timer) isPayload() {}

// PayloadKind names a payload for logs and traces.
func PayloadKind(p Payload) string {
	switch v := p.(type) {
	case Timer:
		return v.Kind.String()
	case Delivery:
		if v.Msg == nil {
			return "delivery"
		}
		return "delivery:" + v.Msg.Kind()
	case Message:
		return v.Kind()
	default:
		return fmt.Sprintf("%T", p)
	}
}
