// Package sim provides the core discrete-event simulation engine for blobsim.
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - event.go: Event, the closed Payload set (Delivery, messages, Timer) and timer kinds
//   - actor.go: the Actor contract and BaseActor's Send / ScheduleTimer primitives
//   - simulator.go: the event loop, actor registry and (timestamp, priority, seq) ordering
//
// # Architecture
//
// The sim package owns the clock, the queue and all randomness; the protocol
// lives in sub-packages:
//   - sim/protocol/: wire messages, cell masks, transaction metadata
//   - sim/transport/: latency, bandwidth and per-link queueing between actors
//   - sim/blobpool/: per-node pool with replace-by-fee, sender limits and eviction
//   - sim/node/: the provider/sampler state machine
//   - sim/producer/: slot-driven block building under an inclusion policy
//   - sim/adversary/: withholding, spamming and nonce-poisoning actors
//   - sim/topology/: peer graph and region placement
//   - sim/metrics/: collector, Prometheus export
//   - sim/scenario/: assembles all of the above from a SimulationConfig
//   - sim/trace/: dispatch trace recording
//
// Actors never call each other. Every interaction is an event: Send enqueues
// a Delivery for the transport actor, which schedules the message at the
// recipient; ScheduleTimer enqueues a Timer for the actor itself.
//
// # Determinism
//
// A run is a pure function of (seed, configuration, peer graph). Randomness
// comes only from Simulator.RNG(), partitioned by subsystem so that draws in
// one subsystem never shift another.
package sim
