package adversary

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/sparse-blobpool/blobsim/sim"
	"github.com/sparse-blobpool/blobsim/sim/protocol"
)

// DefaultPoisonFee is the fee a Poisoner bids unless configured otherwise.
const DefaultPoisonFee = 1_000_000_000_000

// PoisonerConfig describes one poisoning burst.
type PoisonerConfig struct {
	Victim sim.ActorID
	At     float64
	Count  int              // length of the nonce chain
	Sender protocol.Address // zero derives an address from the actor id
	Fee    uint64
}

// Poisoner announces a chain of consecutive nonces for one sender to a single
// victim and never serves them. The victim's sender slots fill with entries
// that can only fail, and honest transactions for those nonces must outbid
// the poisoned ones.
type Poisoner struct {
	sim.BaseActor
	cfg      PoisonerConfig
	hashes   []protocol.TxHash
	requests uint64
}

// NewPoisoner creates a poisoner. It must be registered and started.
func NewPoisoner(id sim.ActorID, s *sim.Simulator, cfg PoisonerConfig) *Poisoner {
	if cfg.Sender == (protocol.Address{}) {
		cfg.Sender = common.BytesToAddress(protocol.Keccak256([]byte(id)).Bytes()[12:])
	}
	if cfg.Fee == 0 {
		cfg.Fee = DefaultPoisonFee
	}
	return &Poisoner{BaseActor: sim.NewBaseActor(id, s), cfg: cfg}
}

// Start arms the burst.
func (p *Poisoner) Start() error {
	if p.cfg.Count <= 0 {
		return fmt.Errorf("poisoner %s: count must be positive, got %d", p.ID(), p.cfg.Count)
	}
	return p.ScheduleTimer(p.cfg.At-p.Now(), sim.Timer{Kind: sim.TimerAdversaryTick})
}

// Hashes returns the poisoned transaction hashes announced so far.
func (p *Poisoner) Hashes() []protocol.TxHash { return p.hashes }

// Requests returns the number of fetch requests left unanswered.
func (p *Poisoner) Requests() uint64 { return p.requests }

func (p *Poisoner) HandleEvent(pl sim.Payload) error {
	switch m := pl.(type) {
	case sim.Timer:
		if m.Kind != sim.TimerAdversaryTick {
			return fmt.Errorf("poisoner %s: unexpected timer %s", p.ID(), m.Kind)
		}
		p.poison()
	case *protocol.GetPooledTransactions, *protocol.GetCells:
		p.requests++
	}
	return nil
}

func (p *Poisoner) poison() {
	msg := &protocol.Announcement{
		Envelope: sim.Envelope{From: p.ID()},
		CellMask: protocol.AllColumns,
	}
	fee := uint256.NewInt(p.cfg.Fee)
	var n [8]byte
	for nonce := 0; nonce < p.cfg.Count; nonce++ {
		binary.BigEndian.PutUint64(n[:], uint64(nonce))
		hash := protocol.Keccak256([]byte("poison"), p.cfg.Sender.Bytes(), n[:])
		msg.Types = append(msg.Types, protocol.BlobTxType)
		msg.Sizes = append(msg.Sizes, uint32(protocol.BlobTxSize(1)))
		msg.Hashes = append(msg.Hashes, hash)
		msg.Metas = append(msg.Metas, protocol.TxMeta{
			Sender:               p.cfg.Sender,
			Nonce:                uint64(nonce),
			BlobCount:            1,
			MaxFeePerGas:         fee.Clone(),
			MaxPriorityFeePerGas: fee.Clone(),
			MaxFeePerBlobGas:     fee.Clone(),
		})
		p.hashes = append(p.hashes, hash)
	}
	p.Send(p.cfg.Victim, msg)
	logrus.WithFields(logrus.Fields{
		"victim": p.cfg.Victim,
		"sender": p.cfg.Sender.Hex(),
		"count":  p.cfg.Count,
	}).Debug("poisoner announced nonce chain")
}
