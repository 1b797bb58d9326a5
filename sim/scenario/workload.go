package scenario

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/sparse-blobpool/blobsim/sim"
	"github.com/sparse-blobpool/blobsim/sim/protocol"
)

const gwei = 1_000_000_000

// WorkloadConfig describes the injected transaction stream.
type WorkloadConfig struct {
	Count    int
	Interval float64 // seconds between injections
	Start    float64
	Senders  int // distinct sender accounts, 0 means one per transaction
}

// DefaultWorkload returns a short stream of ten transactions, one per second.
func DefaultWorkload() WorkloadConfig {
	return WorkloadConfig{Count: 10, Interval: 1, Start: 1}
}

// TxHash derives the hash of a transaction from its economic identity.
func TxHash(meta protocol.TxMeta) protocol.TxHash {
	var nonce, blobs [8]byte
	binary.BigEndian.PutUint64(nonce[:], meta.Nonce)
	binary.BigEndian.PutUint64(blobs[:], uint64(meta.BlobCount))
	return protocol.Keccak256(
		meta.Sender.Bytes(), nonce[:], blobs[:],
		feeBytes(meta.MaxFeePerGas), feeBytes(meta.MaxPriorityFeePerGas), feeBytes(meta.MaxFeePerBlobGas),
	)
}

func feeBytes(v *uint256.Int) []byte {
	if v == nil {
		return make([]byte, 32)
	}
	b := v.Bytes32()
	return b[:]
}

// SenderAddress derives the k-th workload sender.
func SenderAddress(k int) protocol.Address {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(k))
	return common.BytesToAddress(protocol.Keccak256([]byte("sender"), b[:]).Bytes()[12:])
}

// InjectTransaction schedules a local submission of meta at origin. The
// transaction size follows its blob count.
func (sm *Simulation) InjectTransaction(origin sim.ActorID, at float64, meta protocol.TxMeta) (protocol.TxHash, error) {
	if _, ok := sm.byID[origin]; !ok {
		return protocol.TxHash{}, fmt.Errorf("inject at unknown node %s", origin)
	}
	if meta.BlobCount <= 0 || meta.BlobCount > protocol.MaxBlobsPerTx {
		return protocol.TxHash{}, fmt.Errorf("blob count %d out of range [1, %d]", meta.BlobCount, protocol.MaxBlobsPerTx)
	}
	hash := TxHash(meta)
	err := sm.Sim.Schedule(&sim.Event{
		Timestamp: at,
		Priority:  sim.PriorityMessage,
		Target:    origin,
		Payload: &protocol.BroadcastTransaction{
			Hash:   hash,
			Meta:   meta.Copy(),
			TxSize: protocol.BlobTxSize(meta.BlobCount),
		},
	})
	if err != nil {
		return protocol.TxHash{}, fmt.Errorf("scheduling injection: %w", err)
	}
	return hash, nil
}

// ScheduleWorkload injects w.Count transactions from random origins with
// random fees and blob counts, drawn from the workload stream.
func (sm *Simulation) ScheduleWorkload(w WorkloadConfig) ([]protocol.TxHash, error) {
	if w.Count < 0 || w.Interval < 0 {
		return nil, fmt.Errorf("invalid workload: count %d, interval %v", w.Count, w.Interval)
	}
	rng := sm.Sim.RNG().ForSubsystem(sim.SubsystemWorkload)
	senders := w.Senders
	if senders <= 0 {
		senders = w.Count
	}

	hashes := make([]protocol.TxHash, 0, w.Count)
	for i := 0; i < w.Count; i++ {
		origin := sm.Nodes[rng.Intn(len(sm.Nodes))].ID()
		sender := SenderAddress(rng.Intn(senders))
		tip := uint64(gwei + rng.Int63n(9*gwei))
		meta := protocol.TxMeta{
			Sender:               sender,
			Nonce:                sm.injected[sender.Hex()],
			BlobCount:            1 + rng.Intn(protocol.MaxBlobsPerTx),
			MaxFeePerGas:         uint256.NewInt(10*gwei + tip),
			MaxPriorityFeePerGas: uint256.NewInt(tip),
			MaxFeePerBlobGas:     uint256.NewInt(uint64(gwei + rng.Int63n(9*gwei))),
		}
		sm.injected[sender.Hex()]++

		hash, err := sm.InjectTransaction(origin, w.Start+float64(i)*w.Interval, meta)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, hash)
	}
	return hashes, nil
}

// RunBaseline builds an honest network, injects the workload and runs it to
// the configured duration.
func RunBaseline(cfg sim.SimulationConfig, w WorkloadConfig, opts ...Option) (*Simulation, error) {
	sm, err := Build(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := sm.ScheduleWorkload(w); err != nil {
		return nil, err
	}
	if err := sm.Run(); err != nil {
		return sm, err
	}
	return sm, nil
}
