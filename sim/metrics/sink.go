// Package metrics receives the observable side effects of a run: bandwidth,
// transaction sightings, fetch outcomes and inclusions.
package metrics

import (
	"github.com/sparse-blobpool/blobsim/sim"
	"github.com/sparse-blobpool/blobsim/sim/protocol"
)

// Sink is the metrics collaborator. The simulation never reads back from it.
type Sink interface {
	// RecordBandwidth is called once per message handed to the transport;
	// kind is the message's Kind.
	RecordBandwidth(from, to sim.ActorID, kind string, size int)
	RecordTxSeen(node sim.ActorID, tx protocol.TxHash, role protocol.Role)
	// RecordCellsHeld reports the columns a node holds once a transaction
	// becomes available there.
	RecordCellsHeld(node sim.ActorID, tx protocol.TxHash, held protocol.CellMask)
	RecordFetchResult(tx protocol.TxHash, success bool)
	RecordInclusion(tx protocol.TxHash, slot uint64)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordBandwidth(sim.ActorID, sim.ActorID, string, int) {}
func (Nop) RecordTxSeen(sim.ActorID, protocol.TxHash, protocol.Role) {}
func (Nop) RecordCellsHeld(sim.ActorID, protocol.TxHash, protocol.CellMask) {}
func (Nop) RecordFetchResult(protocol.TxHash, bool) {}
func (Nop) RecordInclusion(protocol.TxHash, uint64) {}

// Multi fans every call out to each sink in order.
type Multi []Sink

func (m Multi) RecordBandwidth(from, to sim.ActorID, kind string, size int) {
	for _, s := range m {
		s.RecordBandwidth(from, to, kind, size)
	}
}

func (m Multi) RecordTxSeen(node sim.ActorID, tx protocol.TxHash, role protocol.Role) {
	for _, s := range m {
		s.RecordTxSeen(node, tx, role)
	}
}

func (m Multi) RecordCellsHeld(node sim.ActorID, tx protocol.TxHash, held protocol.CellMask) {
	for _, s := range m {
		s.RecordCellsHeld(node, tx, held)
	}
}

func (m Multi) RecordFetchResult(tx protocol.TxHash, success bool) {
	for _, s := range m {
		s.RecordFetchResult(tx, success)
	}
}

func (m Multi) RecordInclusion(tx protocol.TxHash, slot uint64) {
	for _, s := range m {
		s.RecordInclusion(tx, slot)
	}
}
