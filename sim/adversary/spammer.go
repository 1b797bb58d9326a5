package adversary

import (
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/sparse-blobpool/blobsim/sim"
	"github.com/sparse-blobpool/blobsim/sim/protocol"
)

// SpammerConfig sets the cadence of a Spammer.
type SpammerConfig struct {
	Rate      float64 // announcements per second
	Start     float64 // first announcement time
	Stop      float64 // no announcements at or after this time
	BlobCount int
}

// Spammer announces transactions it never serves, claiming full availability,
// so that every receiver spends a fetch and a request timeout on each one.
type Spammer struct {
	sim.BaseActor
	cfg     SpammerConfig
	targets []sim.ActorID
	rng     *rand.Rand

	sent     uint64
	requests uint64
}

// NewSpammer creates a spammer aimed at targets. It must be registered and
// started.
func NewSpammer(id sim.ActorID, s *sim.Simulator, targets []sim.ActorID, cfg SpammerConfig) *Spammer {
	if cfg.BlobCount <= 0 {
		cfg.BlobCount = 1
	}
	return &Spammer{
		BaseActor: sim.NewBaseActor(id, s),
		cfg:       cfg,
		targets:   append([]sim.ActorID(nil), targets...),
		rng:       s.RNG().ForSubsystem(sim.SubsystemAdversary),
	}
}

// Start arms the first tick.
func (sp *Spammer) Start() error {
	if sp.cfg.Rate <= 0 {
		return fmt.Errorf("spammer %s: rate must be positive, got %v", sp.ID(), sp.cfg.Rate)
	}
	return sp.ScheduleTimer(sp.cfg.Start-sp.Now(), sim.Timer{Kind: sim.TimerAdversaryTick})
}

// Sent returns the number of spam transactions announced.
func (sp *Spammer) Sent() uint64 { return sp.sent }

// Requests returns the number of fetch requests left unanswered.
func (sp *Spammer) Requests() uint64 { return sp.requests }

func (sp *Spammer) HandleEvent(p sim.Payload) error {
	switch m := p.(type) {
	case sim.Timer:
		if m.Kind != sim.TimerAdversaryTick {
			return fmt.Errorf("spammer %s: unexpected timer %s", sp.ID(), m.Kind)
		}
		if sp.Now() >= sp.cfg.Stop {
			return nil
		}
		sp.spam()
		return sp.ScheduleTimer(1/sp.cfg.Rate, sim.Timer{Kind: sim.TimerAdversaryTick})
	case *protocol.GetPooledTransactions, *protocol.GetCells:
		sp.requests++
	}
	return nil
}

func (sp *Spammer) spam() {
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], sp.sent)
	hash := protocol.Keccak256([]byte("spam"), []byte(sp.ID()), ctr[:])
	tip := uint256.NewInt(1 + uint64(sp.rng.Int63n(1_000_000_000)))
	meta := protocol.TxMeta{
		Sender:               common.BytesToAddress(hash[12:]),
		BlobCount:            sp.cfg.BlobCount,
		MaxFeePerGas:         tip.Clone(),
		MaxPriorityFeePerGas: tip,
		MaxFeePerBlobGas:     tip.Clone(),
	}
	msg := &protocol.Announcement{
		Envelope: sim.Envelope{From: sp.ID()},
		Types:    []byte{protocol.BlobTxType},
		Sizes:    []uint32{uint32(protocol.BlobTxSize(sp.cfg.BlobCount))},
		Hashes:   []protocol.TxHash{hash},
		CellMask: protocol.AllColumns,
		Metas:    []protocol.TxMeta{meta},
	}
	for _, t := range sp.targets {
		sp.Send(t, msg)
	}
	sp.sent++
	logrus.Debugf("spammer %s announced %s to %d peers", sp.ID(), hash.TerminalString(), len(sp.targets))
}
