// Package node implements the provider/sampler protocol state machine run by
// every simulated peer.
package node

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/sparse-blobpool/blobsim/sim"
	"github.com/sparse-blobpool/blobsim/sim/blobpool"
	"github.com/sparse-blobpool/blobsim/sim/metrics"
	"github.com/sparse-blobpool/blobsim/sim/protocol"
)

// RequestKind distinguishes body fetches from cell fetches.
type RequestKind int

const (
	RequestBodies RequestKind = iota
	RequestCells
)

func (k RequestKind) String() string {
	if k == RequestCells {
		return "cells"
	}
	return "bodies"
}

// PendingRequest is an outstanding fetch. Whichever of the response or the
// timeout arrives first removes it.
type PendingRequest struct {
	ID       uint64
	Kind     RequestKind
	Hashes   []protocol.TxHash
	Peer     sim.ActorID
	Mask     protocol.CellMask // requested columns, cell requests only
	SentTime float64
	Timeout  float64
}

// fetchState is the per-transaction fetch bookkeeping.
type fetchState struct {
	tried        blobpool.PeerSet
	retries      int
	waitingTimer bool // provider observation timer armed
}

// Stats counts a node's protocol activity.
type Stats struct {
	AnnouncementsSent uint64
	RequestsSent      uint64
	Retries           uint64
	Timeouts          uint64
	BodyMisses        uint64 // body responses without the requested body
	BodiesServed      uint64
	CellsServed       uint64
	Rejected          uint64 // announcements or injections refused by the pool
}

// Node is one peer: its blobpool, its peers and its protocol state.
type Node struct {
	sim.BaseActor

	cfg      Config
	pool     *blobpool.Pool
	peers    []sim.ActorID
	behavior Behavior
	sink     metrics.Sink
	rng      *rand.Rand

	custody protocol.CellMask
	roles   map[protocol.TxHash]protocol.Role
	pending map[uint64]*PendingRequest
	fetches map[protocol.TxHash]*fetchState
	retired map[protocol.TxHash]struct{} // removed or refused, ignored from now on

	nextRequestID uint64
	expiryArmed   bool
	stats         Stats
}

// New creates a node bound to s. A nil behavior is Honest; a nil sink is Nop.
func New(id sim.ActorID, s *sim.Simulator, cfg Config, behavior Behavior, sink metrics.Sink) *Node {
	if behavior == nil {
		behavior = Honest{}
	}
	if sink == nil {
		sink = metrics.Nop{}
	}
	return &Node{
		BaseActor: sim.NewBaseActor(id, s),
		cfg:       cfg,
		pool:      blobpool.New(cfg.Pool),
		behavior:  behavior,
		sink:      sink,
		rng:       s.RNG().ForSubsystem(sim.SubsystemSampling),
		custody:   CustodyColumns(id, cfg.CustodyColumns),
		roles:     make(map[protocol.TxHash]protocol.Role),
		pending:   make(map[uint64]*PendingRequest),
		fetches:   make(map[protocol.TxHash]*fetchState),
		retired:   make(map[protocol.TxHash]struct{}),
	}
}

// SetPeers installs the peer list supplied by the topology.
func (n *Node) SetPeers(peers []sim.ActorID) {
	n.peers = append([]sim.ActorID(nil), peers...)
}

// Peers returns the peer list.
func (n *Node) Peers() []sim.ActorID {
	return n.peers
}

// SetBehavior swaps the message handlers.
func (n *Node) SetBehavior(b Behavior) {
	n.behavior = b
}

// Pool exposes the node's blobpool for the block producer and for inspection.
func (n *Node) Pool() *blobpool.Pool {
	return n.pool
}

// Stats returns the activity counters.
func (n *Node) Stats() Stats {
	return n.stats
}

// PendingRequests returns the number of outstanding fetches.
func (n *Node) PendingRequests() int {
	return len(n.pending)
}

// HandleEvent implements sim.Actor.
func (n *Node) HandleEvent(p sim.Payload) error {
	switch m := p.(type) {
	case *protocol.Announcement:
		return n.behavior.OnAnnouncement(n, m)
	case *protocol.GetPooledTransactions:
		return n.behavior.OnBodyRequest(n, m)
	case *protocol.GetCells:
		return n.behavior.OnCellRequest(n, m)
	case *protocol.BlockAnnouncement:
		return n.behavior.OnBlock(n, m)
	case *protocol.PooledTransactions:
		return n.handleBodies(m)
	case *protocol.Cells:
		return n.handleCells(m)
	case *protocol.BroadcastTransaction:
		return n.handleBroadcast(m)
	case sim.Timer:
		return n.handleTimer(m)
	default:
		return fmt.Errorf("node %s: unexpected payload %s", n.ID(), sim.PayloadKind(p))
	}
}

// ObserveAnnouncement records who announced what and admits new blob
// transactions into the pool.
func (n *Node) ObserveAnnouncement(msg *protocol.Announcement) error {
	from := msg.Sender()
	full := msg.CellMask.IsFull()
	for i, h := range msg.Hashes {
		if i >= len(msg.Types) || msg.Types[i] != protocol.BlobTxType {
			continue
		}
		if _, gone := n.retired[h]; gone {
			continue
		}
		if e, ok := n.pool.Get(h); ok {
			observe(e, from, full)
			if err := n.maybeStartFetch(e); err != nil {
				return err
			}
			continue
		}

		var meta protocol.TxMeta
		if i < len(msg.Metas) {
			meta = msg.Metas[i]
		}
		var size int
		if i < len(msg.Sizes) {
			size = int(msg.Sizes[i])
		}
		e := blobpool.NewEntry(h, meta, size, n.Now())
		e.Role = n.Role(h)
		observe(e, from, full)
		if !n.admit(e) {
			continue
		}
		if err := n.armExpiry(); err != nil {
			return err
		}
		// admission may evict the newcomer itself
		if _, ok := n.pool.Get(h); !ok {
			continue
		}
		n.sink.RecordTxSeen(n.ID(), h, e.Role)
		if err := n.maybeStartFetch(e); err != nil {
			return err
		}
	}
	return nil
}

func observe(e *blobpool.Entry, from sim.ActorID, full bool) {
	if full {
		e.ProvidersSeen.Add(from)
	} else {
		e.SamplersSeen.Add(from)
	}
	// the announcer already knows the transaction
	e.AnnouncedTo.Add(from)
}

// admit places e in the pool, replacing a pending transaction with the same
// sender and nonce when the fee bump allows it.
func (n *Node) admit(e *blobpool.Entry) bool {
	replaced, evicted, err := n.pool.TryReplace(e)
	if err == nil && !replaced {
		evicted, err = n.pool.Insert(e)
	}
	if err != nil {
		n.stats.Rejected++
		n.retired[e.Hash] = struct{}{}
		logrus.WithFields(logrus.Fields{
			"node": n.ID(),
			"tx":   e.Hash.TerminalString(),
		}).Debugf("refused blob transaction: %v", err)
		return false
	}
	n.forget(evicted)
	return true
}

// forget drops the local state of hashes the pool no longer holds.
func (n *Node) forget(hashes []protocol.TxHash) {
	for _, h := range hashes {
		delete(n.fetches, h)
		n.retired[h] = struct{}{}
	}
}

func (n *Node) fetchFor(h protocol.TxHash) *fetchState {
	fs, ok := n.fetches[h]
	if !ok {
		fs = &fetchState{}
		n.fetches[h] = fs
	}
	return fs
}

// maybeStartFetch moves a PENDING_PROVIDERS entry to FETCHING once enough
// full holders have announced it, or arms the provider observation timer.
// A provider needs one full holder to pull the body from; a sampler needs
// MinProvidersBeforeSample of them.
func (n *Node) maybeStartFetch(e *blobpool.Entry) error {
	if e.Status != blobpool.StatusPendingProviders {
		return nil
	}
	need := n.cfg.MinProvidersBeforeSample
	if e.Role == protocol.RoleProvider || need < 1 {
		need = 1
	}
	if e.ProvidersSeen.Len() >= need {
		return n.startFetch(e)
	}
	fs := n.fetchFor(e.Hash)
	if fs.waitingTimer {
		return nil
	}
	fs.waitingTimer = true
	return n.ScheduleTimer(n.cfg.ProviderObservationTimeout, sim.Timer{
		Kind:       sim.TimerProviderObservation,
		TxHash:     e.Hash,
		Generation: e.Generation,
	})
}

func (n *Node) startFetch(e *blobpool.Entry) error {
	e.SetStatus(blobpool.StatusFetching)
	peer, ok := n.nextPeer(e)
	if !ok {
		n.fail(e, "no peer to fetch from")
		return nil
	}
	return n.request(e, peer)
}

// nextPeer picks the first provider-observed peer not tried yet.
func (n *Node) nextPeer(e *blobpool.Entry) (sim.ActorID, bool) {
	fs := n.fetchFor(e.Hash)
	for _, p := range e.ProvidersSeen.IDs() {
		if !fs.tried.Has(p) {
			return p, true
		}
	}
	return "", false
}

func (n *Node) request(e *blobpool.Entry, peer sim.ActorID) error {
	n.fetchFor(e.Hash).tried.Add(peer)
	n.nextRequestID++
	req := &PendingRequest{
		ID:       n.nextRequestID,
		Hashes:   []protocol.TxHash{e.Hash},
		Peer:     peer,
		SentTime: n.Now(),
		Timeout:  n.Now() + n.cfg.RequestTimeout,
	}
	var msg sim.Message
	if e.Role == protocol.RoleProvider {
		req.Kind = RequestBodies
		msg = &protocol.GetPooledTransactions{
			Envelope:  sim.Envelope{From: n.ID()},
			RequestID: req.ID,
			Hashes:    req.Hashes,
		}
	} else {
		req.Kind = RequestCells
		req.Mask = n.SampleMask()
		msg = &protocol.GetCells{
			Envelope:  sim.Envelope{From: n.ID()},
			RequestID: req.ID,
			Hashes:    req.Hashes,
			Mask:      req.Mask,
		}
	}
	n.pending[req.ID] = req
	n.stats.RequestsSent++
	n.Send(peer, msg)
	return n.ScheduleTimer(n.cfg.RequestTimeout, sim.Timer{
		Kind:      sim.TimerRequestTimeout,
		TxHash:    e.Hash,
		RequestID: req.ID,
	})
}

// SampleMask returns the custody columns plus freshly drawn extra columns,
// capped at MaxColumnsPerRequest.
func (n *Node) SampleMask() protocol.CellMask {
	extra := n.cfg.ExtraRandomColumns
	if room := n.cfg.MaxColumnsPerRequest - n.custody.Count(); extra > room {
		extra = room
	}
	mask := n.custody
	if extra <= 0 {
		return mask
	}
	candidates := protocol.AllColumns.Without(n.custody).Columns()
	if extra > len(candidates) {
		extra = len(candidates)
	}
	for _, i := range n.rng.Perm(len(candidates))[:extra] {
		mask = mask.With(candidates[i])
	}
	return mask
}

func (n *Node) handleBodies(m *protocol.PooledTransactions) error {
	req := n.claim(m.RequestID, m.Sender(), RequestBodies)
	if req == nil {
		return nil
	}
	for i, h := range req.Hashes {
		e, ok := n.pool.Get(h)
		if !ok || e.Status != blobpool.StatusFetching {
			continue
		}
		var body *protocol.TxBody
		if i < len(m.Bodies) {
			body = m.Bodies[i]
		}
		if body == nil || body.Hash != h {
			n.stats.BodyMisses++
			if err := n.retryOrFail(e, "missing body"); err != nil {
				return err
			}
			continue
		}
		e.HasFullBlob = true
		e.CellsHeld = protocol.AllColumns
		n.complete(e)
	}
	return nil
}

func (n *Node) handleCells(m *protocol.Cells) error {
	req := n.claim(m.RequestID, m.Sender(), RequestCells)
	if req == nil {
		return nil
	}
	for i, h := range req.Hashes {
		e, ok := n.pool.Get(h)
		if !ok || e.Status != blobpool.StatusFetching {
			continue
		}
		var got protocol.CellMask
		if i < len(m.Provided) && i < len(m.Hashes) && m.Hashes[i] == h {
			got = m.Provided[i].Intersect(req.Mask)
		}
		if !got.Contains(req.Mask) {
			if err := n.retryOrFail(e, "partial cells"); err != nil {
				return err
			}
			continue
		}
		e.CellsHeld = e.CellsHeld.Union(got)
		n.complete(e)
	}
	return nil
}

// claim removes and returns the pending request answered by a response, or
// nil when the response is stale or does not match.
func (n *Node) claim(id uint64, from sim.ActorID, kind RequestKind) *PendingRequest {
	req, ok := n.pending[id]
	if !ok || req.Peer != from || req.Kind != kind {
		logrus.Debugf("node %s: dropping unmatched %s response %d from %s", n.ID(), kind, id, from)
		return nil
	}
	delete(n.pending, id)
	return req
}

func (n *Node) retryOrFail(e *blobpool.Entry, reason string) error {
	fs := n.fetchFor(e.Hash)
	if fs.retries < n.cfg.MaxFetchRetries {
		if peer, ok := n.nextPeer(e); ok {
			fs.retries++
			n.stats.Retries++
			logrus.WithFields(logrus.Fields{
				"node": n.ID(),
				"tx":   e.Hash.TerminalString(),
				"peer": peer,
			}).Debugf("retrying fetch after %s", reason)
			return n.request(e, peer)
		}
	}
	n.fail(e, reason)
	return nil
}

func (n *Node) complete(e *blobpool.Entry) {
	e.SetStatus(blobpool.StatusAvailable)
	delete(n.fetches, e.Hash)
	n.sink.RecordFetchResult(e.Hash, true)
	n.sink.RecordCellsHeld(n.ID(), e.Hash, e.CellsHeld)
	n.announce(e)
}

func (n *Node) fail(e *blobpool.Entry, reason string) {
	e.SetStatus(blobpool.StatusFailed)
	delete(n.fetches, e.Hash)
	n.sink.RecordFetchResult(e.Hash, false)
	logrus.WithFields(logrus.Fields{
		"node": n.ID(),
		"tx":   e.Hash.TerminalString(),
		"role": e.Role,
	}).Debugf("fetch failed: %s", reason)
}

// announce tells every peer not yet announced to that e is available here.
func (n *Node) announce(e *blobpool.Entry) {
	mask := e.CellsHeld
	if e.HasFullBlob {
		mask = protocol.AllColumns
	}
	msg := &protocol.Announcement{
		Envelope: sim.Envelope{From: n.ID()},
		Types:    []byte{protocol.BlobTxType},
		Sizes:    []uint32{uint32(e.SizeBytes)},
		Hashes:   []protocol.TxHash{e.Hash},
		CellMask: mask,
		Metas:    []protocol.TxMeta{e.TxMeta},
	}
	for _, p := range n.peers {
		if !e.AnnouncedTo.Add(p) {
			continue
		}
		n.stats.AnnouncementsSent++
		n.Send(p, msg)
	}
	e.LastAnnouncedTime = n.Now()
}

// ServeBodies answers a body request with every full blob this node holds.
func (n *Node) ServeBodies(req *protocol.GetPooledTransactions) *protocol.PooledTransactions {
	resp := &protocol.PooledTransactions{
		Envelope:  sim.Envelope{From: n.ID()},
		RequestID: req.RequestID,
		Bodies:    make([]*protocol.TxBody, len(req.Hashes)),
	}
	for i, h := range req.Hashes {
		e, ok := n.pool.Get(h)
		if !ok || !e.HasFullBlob {
			continue
		}
		resp.Bodies[i] = &protocol.TxBody{Hash: h, Meta: e.TxMeta, SizeBytes: e.SizeBytes}
		n.stats.BodiesServed++
	}
	return resp
}

// ServeCells answers a cell request with the requested columns this node
// holds, restricted to allowed.
func (n *Node) ServeCells(req *protocol.GetCells, allowed protocol.CellMask) *protocol.Cells {
	resp := &protocol.Cells{
		Envelope:  sim.Envelope{From: n.ID()},
		RequestID: req.RequestID,
		Hashes:    req.Hashes,
		Mask:      req.Mask,
		Provided:  make([]protocol.CellMask, len(req.Hashes)),
	}
	for i, h := range req.Hashes {
		e, ok := n.pool.Get(h)
		if !ok {
			continue
		}
		resp.Provided[i] = e.CellsHeld.Intersect(req.Mask).Intersect(allowed)
		n.stats.CellsServed += uint64(resp.Provided[i].Count())
	}
	return resp
}

// ApplyBlock marks every locally held included transaction INCLUDED and arms
// its cleanup.
func (n *Node) ApplyBlock(msg *protocol.BlockAnnouncement) error {
	for _, h := range msg.Block.BlobTxHashes {
		e, ok := n.pool.Get(h)
		if !ok || e.Status.Absorbing() {
			continue
		}
		e.SetStatus(blobpool.StatusIncluded)
		e.IncludedSlot = msg.Block.Slot
		delete(n.fetches, h)
		err := n.ScheduleTimer(n.cfg.InclusionCleanupDelay, sim.Timer{
			Kind:       sim.TimerTxCleanup,
			TxHash:     h,
			Generation: e.Generation,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) handleBroadcast(m *protocol.BroadcastTransaction) error {
	if _, ok := n.pool.Get(m.Hash); ok {
		return nil
	}
	e := blobpool.NewEntry(m.Hash, m.Meta, m.TxSize, n.Now())
	e.Role = protocol.RoleProvider
	e.HasFullBlob = true
	e.CellsHeld = protocol.AllColumns
	if !n.admit(e) {
		return nil
	}
	if err := n.armExpiry(); err != nil {
		return err
	}
	if _, ok := n.pool.Get(m.Hash); !ok {
		return nil
	}
	n.sink.RecordTxSeen(n.ID(), m.Hash, e.Role)
	n.sink.RecordCellsHeld(n.ID(), m.Hash, e.CellsHeld)
	e.SetStatus(blobpool.StatusAvailable)
	n.announce(e)
	return nil
}

func (n *Node) handleTimer(t sim.Timer) error {
	switch t.Kind {
	case sim.TimerProviderObservation:
		if fs, ok := n.fetches[t.TxHash]; ok {
			fs.waitingTimer = false
		}
		e, ok := n.pool.Get(t.TxHash)
		if !ok || e.Status != blobpool.StatusPendingProviders || e.Generation != t.Generation {
			return nil
		}
		n.fail(e, "not enough providers observed")
		return nil

	case sim.TimerRequestTimeout:
		req, ok := n.pending[t.RequestID]
		if !ok {
			return nil
		}
		delete(n.pending, t.RequestID)
		n.stats.Timeouts++
		for _, h := range req.Hashes {
			e, ok := n.pool.Get(h)
			if !ok || e.Status != blobpool.StatusFetching {
				continue
			}
			if err := n.retryOrFail(e, "request timeout"); err != nil {
				return err
			}
		}
		return nil

	case sim.TimerTxCleanup:
		e, ok := n.pool.Get(t.TxHash)
		if !ok || e.Status != blobpool.StatusIncluded || e.Generation != t.Generation {
			return nil
		}
		n.forget(n.pool.Remove(t.TxHash))
		return nil

	case sim.TimerTxExpiration:
		n.expiryArmed = false
		expired := n.pool.Expire(n.Now(), n.cfg.TxExpiration)
		if len(expired) > 0 {
			logrus.Debugf("node %s: expired %d transactions", n.ID(), len(expired))
		}
		n.forget(expired)
		return n.armExpiry()

	default:
		return fmt.Errorf("node %s: unexpected timer %s", n.ID(), t.Kind)
	}
}

// armExpiry keeps one expiration sweep pending while the pool is non-empty.
func (n *Node) armExpiry() error {
	if n.expiryArmed || n.pool.Len() == 0 {
		return nil
	}
	n.expiryArmed = true
	return n.ScheduleTimer(n.cfg.TxExpiration/expirySweepsPerTTL, sim.Timer{Kind: sim.TimerTxExpiration})
}
