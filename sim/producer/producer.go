// Package producer implements the block producer: one actor that wakes every
// slot, selects blob transactions from the proposer's pool and broadcasts the
// block to every node.
package producer

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sparse-blobpool/blobsim/sim"
	"github.com/sparse-blobpool/blobsim/sim/blobpool"
	"github.com/sparse-blobpool/blobsim/sim/metrics"
	"github.com/sparse-blobpool/blobsim/sim/protocol"
)

// ID is the actor id of the block producer.
const ID sim.ActorID = "block-producer"

// PoolSource resolves a proposer to its blobpool.
type PoolSource interface {
	Pool(id sim.ActorID) (*blobpool.Pool, bool)
}

// Resampler re-checks availability of candidates before a PROACTIVE proposer
// commits to them. It returns the candidates it still trusts, in order.
type Resampler interface {
	Resample(proposer sim.ActorID, candidates []*blobpool.Entry) []*blobpool.Entry
}

// Config holds the block production parameters.
type Config struct {
	SlotDuration     float64
	MaxBlobsPerBlock int
	Policy           string
	Schedule         []sim.ActorID // round-robin proposer order
}

// ConfigFrom extracts the producer parameters of a simulation config. An
// empty proposer schedule falls back to nodes.
func ConfigFrom(c sim.SimulationConfig, nodes []sim.ActorID) Config {
	schedule := make([]sim.ActorID, 0, len(c.Slot.ProposerSchedule))
	for _, id := range c.Slot.ProposerSchedule {
		schedule = append(schedule, sim.ActorID(id))
	}
	if len(schedule) == 0 {
		schedule = append(schedule, nodes...)
	}
	return Config{
		SlotDuration:     c.Slot.SlotDuration,
		MaxBlobsPerBlock: c.Slot.MaxBlobsPerBlock,
		Policy:           c.Slot.InclusionPolicy,
		Schedule:         schedule,
	}
}

// BlockProducer selects and broadcasts one block per slot.
type BlockProducer struct {
	sim.BaseActor
	cfg       Config
	pools     PoolSource
	nodes     []sim.ActorID
	resampler Resampler
	sink      metrics.Sink

	included       map[protocol.TxHash]struct{}
	blocks         []protocol.Block
	blocksProduced uint64
	blobsIncluded  uint64
}

// New creates the block producer. Blocks are broadcast to nodes. A nil sink is Nop.
func New(s *sim.Simulator, cfg Config, pools PoolSource, nodes []sim.ActorID, sink metrics.Sink) (*BlockProducer, error) {
	if !sim.ValidInclusionPolicies[cfg.Policy] {
		return nil, fmt.Errorf("unknown inclusion policy %q", cfg.Policy)
	}
	if len(cfg.Schedule) == 0 {
		return nil, fmt.Errorf("empty proposer schedule")
	}
	if cfg.SlotDuration <= 0 {
		return nil, fmt.Errorf("slot duration must be positive, got %v", cfg.SlotDuration)
	}
	if sink == nil {
		sink = metrics.Nop{}
	}
	return &BlockProducer{
		BaseActor: sim.NewBaseActor(ID, s),
		cfg:       cfg,
		pools:     pools,
		nodes:     append([]sim.ActorID(nil), nodes...),
		sink:      sink,
		included:  make(map[protocol.TxHash]struct{}),
	}, nil
}

// SetResampler installs the PROACTIVE resampling pass.
func (p *BlockProducer) SetResampler(r Resampler) {
	p.resampler = r
}

// Start arms the first slot tick one slot from now.
func (p *BlockProducer) Start() error {
	return p.ScheduleTimer(p.cfg.SlotDuration, sim.Timer{Kind: sim.TimerSlotTick})
}

// BlocksProduced returns the number of blocks broadcast.
func (p *BlockProducer) BlocksProduced() uint64 { return p.blocksProduced }

// BlobsIncluded returns the number of blobs across all blocks.
func (p *BlockProducer) BlobsIncluded() uint64 { return p.blobsIncluded }

// Blocks returns every block produced, in slot order.
func (p *BlockProducer) Blocks() []protocol.Block { return p.blocks }

// Proposer returns the proposer of slot.
func (p *BlockProducer) Proposer(slot uint64) sim.ActorID {
	return p.cfg.Schedule[slot%uint64(len(p.cfg.Schedule))]
}

func (p *BlockProducer) HandleEvent(pl sim.Payload) error {
	t, ok := pl.(sim.Timer)
	if !ok || t.Kind != sim.TimerSlotTick {
		return fmt.Errorf("block producer received %s", sim.PayloadKind(pl))
	}
	p.produce()
	return p.ScheduleTimer(p.cfg.SlotDuration, sim.Timer{Kind: sim.TimerSlotTick})
}

func (p *BlockProducer) produce() {
	slot := uint64(p.Now()/p.cfg.SlotDuration + 0.5)
	proposer := p.Proposer(slot)

	var chosen []*blobpool.Entry
	if pool, ok := p.pools.Pool(proposer); ok {
		chosen = p.Select(proposer, pool)
	}

	block := protocol.Block{Slot: slot, Proposer: proposer}
	blobs := 0
	for _, e := range chosen {
		block.BlobTxHashes = append(block.BlobTxHashes, e.Hash)
		blobs += e.BlobCount
		if _, seen := p.included[e.Hash]; !seen {
			p.included[e.Hash] = struct{}{}
			p.sink.RecordInclusion(e.Hash, slot)
		}
	}
	p.blocks = append(p.blocks, block)
	p.blocksProduced++
	p.blobsIncluded += uint64(blobs)

	msg := &protocol.BlockAnnouncement{Envelope: sim.Envelope{From: p.ID()}, Block: block}
	for _, n := range p.nodes {
		p.Send(n, msg)
	}
	logrus.WithFields(logrus.Fields{
		"slot":     slot,
		"proposer": proposer,
		"txs":      len(block.BlobTxHashes),
		"blobs":    blobs,
	}).Debug("produced block")
}

// Select applies the inclusion policy to a proposer's pool and fills the
// block greedily by priority fee. A transaction that does not fit is skipped
// and smaller ones after it may still be taken.
func (p *BlockProducer) Select(proposer sim.ActorID, pool *blobpool.Pool) []*blobpool.Entry {
	candidates := pool.IterByPriority(Eligible(p.cfg.Policy))
	if p.cfg.Policy == sim.InclusionProactive && p.resampler != nil {
		candidates = p.resampler.Resample(proposer, candidates)
	}

	var out []*blobpool.Entry
	blobs := 0
	for _, e := range candidates {
		if _, done := p.included[e.Hash]; done {
			continue
		}
		if blobs+e.BlobCount > p.cfg.MaxBlobsPerBlock {
			continue
		}
		blobs += e.BlobCount
		out = append(out, e)
	}
	return out
}

// Eligible returns the entry filter of an inclusion policy.
func Eligible(policy string) func(*blobpool.Entry) bool {
	if policy == sim.InclusionConservative {
		return func(e *blobpool.Entry) bool {
			return e.Status == blobpool.StatusAvailable && e.HasFullBlob
		}
	}
	return func(e *blobpool.Entry) bool {
		return e.Status == blobpool.StatusAvailable
	}
}
