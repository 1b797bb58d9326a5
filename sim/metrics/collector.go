package metrics

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/sparse-blobpool/blobsim/sim"
	"github.com/sparse-blobpool/blobsim/sim/protocol"
)

// PropagationCoverage is the fraction of nodes that must have seen a
// transaction for it to count as propagated.
const PropagationCoverage = 0.99

// Clock supplies the current simulation time.
type Clock interface {
	Now() float64
}

// CallKind names a Sink method.
type CallKind string

const (
	CallBandwidth   CallKind = "bandwidth"
	CallTxSeen      CallKind = "tx_seen"
	CallCellsHeld   CallKind = "cells_held"
	CallFetchResult CallKind = "fetch_result"
	CallInclusion   CallKind = "inclusion"
)

// Call is one recorded Sink invocation.
type Call struct {
	Kind    CallKind
	Time    float64
	From    sim.ActorID
	To      sim.ActorID
	MsgKind string
	Size    int
	Tx      protocol.TxHash
	Role    protocol.Role
	Cells   protocol.CellMask
	Success bool
	Slot    uint64
}

// TxStats aggregates what the network did with one transaction.
type TxStats struct {
	FirstSeen       float64
	NodesSeen       int
	Providers       int
	Samplers        int
	FetchSuccesses  int
	FetchFailures   int
	Propagated      bool
	PropagationTime float64 // from first sighting to PropagationCoverage of nodes
	Included        bool
	InclusionSlot   uint64
	// Columns is the union of the columns held by every node that made the
	// transaction available.
	Columns protocol.CellMask
}

// Reconstructable reports whether the network as a whole holds enough
// distinct columns to rebuild the blob.
func (st TxStats) Reconstructable() bool {
	return st.Columns.Count() >= protocol.ReconstructionThreshold
}

// Collector is an in-memory Sink.
type Collector struct {
	clock     Clock
	nodeCount int

	bytesSent     map[sim.ActorID]uint64
	bytesReceived map[sim.ActorID]uint64
	totalBytes    uint64
	controlBytes  uint64
	dataBytes     uint64
	messages      uint64

	txs     map[protocol.TxHash]*TxStats
	txOrder []protocol.TxHash

	fetchSuccesses int
	fetchFailures  int

	logCalls bool
	calls    []Call
}

// NewCollector creates a collector for a network of nodeCount nodes.
func NewCollector(clock Clock, nodeCount int) *Collector {
	return &Collector{
		clock:         clock,
		nodeCount:     nodeCount,
		bytesSent:     make(map[sim.ActorID]uint64),
		bytesReceived: make(map[sim.ActorID]uint64),
		txs:           make(map[protocol.TxHash]*TxStats),
	}
}

// EnableCallLog keeps every call in order, for replay comparisons.
func (c *Collector) EnableCallLog() {
	c.logCalls = true
}

// Calls returns the recorded call log.
func (c *Collector) Calls() []Call {
	return c.calls
}

func (c *Collector) log(call Call) {
	if !c.logCalls {
		return
	}
	call.Time = c.clock.Now()
	c.calls = append(c.calls, call)
}

// RecordBandwidth implements Sink. Bodies and cells count as data, every
// other message as control.
func (c *Collector) RecordBandwidth(from, to sim.ActorID, kind string, size int) {
	c.bytesSent[from] += uint64(size)
	c.bytesReceived[to] += uint64(size)
	c.totalBytes += uint64(size)
	if protocol.IsDataKind(kind) {
		c.dataBytes += uint64(size)
	} else {
		c.controlBytes += uint64(size)
	}
	c.messages++
	c.log(Call{Kind: CallBandwidth, From: from, To: to, MsgKind: kind, Size: size})
}

// RecordTxSeen implements Sink.
func (c *Collector) RecordTxSeen(node sim.ActorID, tx protocol.TxHash, role protocol.Role) {
	st := c.stats(tx)
	st.NodesSeen++
	if role == protocol.RoleProvider {
		st.Providers++
	} else {
		st.Samplers++
	}
	if !st.Propagated && c.nodeCount > 0 && float64(st.NodesSeen) >= PropagationCoverage*float64(c.nodeCount) {
		st.Propagated = true
		st.PropagationTime = c.clock.Now() - st.FirstSeen
	}
	c.log(Call{Kind: CallTxSeen, From: node, Tx: tx, Role: role})
}

// RecordCellsHeld implements Sink.
func (c *Collector) RecordCellsHeld(node sim.ActorID, tx protocol.TxHash, held protocol.CellMask) {
	st := c.stats(tx)
	st.Columns = st.Columns.Union(held)
	c.log(Call{Kind: CallCellsHeld, From: node, Tx: tx, Cells: held})
}

// RecordFetchResult implements Sink.
func (c *Collector) RecordFetchResult(tx protocol.TxHash, success bool) {
	st := c.stats(tx)
	if success {
		st.FetchSuccesses++
		c.fetchSuccesses++
	} else {
		st.FetchFailures++
		c.fetchFailures++
	}
	c.log(Call{Kind: CallFetchResult, Tx: tx, Success: success})
}

// RecordInclusion implements Sink.
func (c *Collector) RecordInclusion(tx protocol.TxHash, slot uint64) {
	st := c.stats(tx)
	st.Included = true
	st.InclusionSlot = slot
	c.log(Call{Kind: CallInclusion, Tx: tx, Slot: slot})
}

func (c *Collector) stats(tx protocol.TxHash) *TxStats {
	st, ok := c.txs[tx]
	if !ok {
		st = &TxStats{FirstSeen: c.clock.Now()}
		c.txs[tx] = st
		c.txOrder = append(c.txOrder, tx)
	}
	return st
}

// Tx returns the stats of one transaction.
func (c *Collector) Tx(tx protocol.TxHash) (TxStats, bool) {
	st, ok := c.txs[tx]
	if !ok {
		return TxStats{}, false
	}
	return *st, true
}

// BytesSent returns the bytes an actor put on the wire.
func (c *Collector) BytesSent(id sim.ActorID) uint64 {
	return c.bytesSent[id]
}

// BytesReceived returns the bytes delivered to an actor.
func (c *Collector) BytesReceived(id sim.ActorID) uint64 {
	return c.bytesReceived[id]
}

// Results is the end-of-run summary.
type Results struct {
	TotalBytes   uint64
	ControlBytes uint64
	DataBytes    uint64
	Messages     uint64
	// ControlOverhead is the control share of all bytes on the wire.
	ControlOverhead float64

	TxsSeen          int
	TxsPropagated    int
	TxsIncluded      int
	ProviderRatio    float64
	FetchSuccesses   int
	FetchFailures    int
	FetchSuccessRate float64

	// TxsReconstructable counts transactions whose held columns, across all
	// nodes, reach the reconstruction threshold.
	TxsReconstructable        int
	ReconstructionSuccessRate float64

	MeanPropagation   float64
	MedianPropagation float64
	P99Propagation    float64
	BytesPerTx        float64
}

// Results summarizes everything recorded so far.
func (c *Collector) Results() Results {
	r := Results{
		TotalBytes:     c.totalBytes,
		ControlBytes:   c.controlBytes,
		DataBytes:      c.dataBytes,
		Messages:       c.messages,
		TxsSeen:        len(c.txOrder),
		FetchSuccesses: c.fetchSuccesses,
		FetchFailures:  c.fetchFailures,
	}

	var providers, sightings int
	propagation := make([]float64, 0, len(c.txOrder))
	for _, h := range c.txOrder {
		st := c.txs[h]
		providers += st.Providers
		sightings += st.NodesSeen
		if st.Propagated {
			r.TxsPropagated++
			propagation = append(propagation, st.PropagationTime)
		}
		if st.Included {
			r.TxsIncluded++
		}
		if st.Reconstructable() {
			r.TxsReconstructable++
		}
	}
	if sightings > 0 {
		r.ProviderRatio = float64(providers) / float64(sightings)
	}
	if total := c.fetchSuccesses + c.fetchFailures; total > 0 {
		r.FetchSuccessRate = float64(c.fetchSuccesses) / float64(total)
	}
	if r.TxsSeen > 0 {
		r.BytesPerTx = float64(c.totalBytes) / float64(r.TxsSeen)
		r.ReconstructionSuccessRate = float64(r.TxsReconstructable) / float64(r.TxsSeen)
	}
	if c.totalBytes > 0 {
		r.ControlOverhead = float64(c.controlBytes) / float64(c.totalBytes)
	}
	if len(propagation) > 0 {
		sort.Float64s(propagation)
		r.MeanPropagation = stat.Mean(propagation, nil)
		r.MedianPropagation = stat.Quantile(0.5, stat.Empirical, propagation, nil)
		r.P99Propagation = stat.Quantile(0.99, stat.Empirical, propagation, nil)
	}
	return r
}
