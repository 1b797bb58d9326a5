package node

import (
	"encoding/binary"
	"math"

	"github.com/sparse-blobpool/blobsim/sim"
	"github.com/sparse-blobpool/blobsim/sim/protocol"
)

// ComputeRole maps (node, tx, epoch) to a role. The first eight bytes of
// keccak256(node || tx || epoch) are read as a fraction of 2^64 and compared
// against p.
func ComputeRole(id sim.ActorID, tx protocol.TxHash, epoch uint64, p float64) protocol.Role {
	var e [8]byte
	binary.BigEndian.PutUint64(e[:], epoch)
	h := protocol.Keccak256([]byte(id), tx[:], e[:])
	v := float64(binary.BigEndian.Uint64(h[:8])) / math.Exp2(64)
	if v < p {
		return protocol.RoleProvider
	}
	return protocol.RoleSampler
}

// Epoch returns the role epoch containing time now.
func Epoch(now, slotDuration float64) uint64 {
	if slotDuration <= 0 {
		return 0
	}
	return uint64(now / (slotDuration * SlotsPerEpoch))
}

// CustodyColumns derives the fixed column set of a node from its id. Column
// candidates are drawn from keccak256(id || counter) until count distinct
// columns are found.
func CustodyColumns(id sim.ActorID, count int) protocol.CellMask {
	if count >= protocol.CellsPerBlob {
		return protocol.AllColumns
	}
	var mask protocol.CellMask
	var ctr [8]byte
	for i := uint64(0); mask.Count() < count; i++ {
		binary.BigEndian.PutUint64(ctr[:], i)
		h := protocol.Keccak256([]byte(id), ctr[:])
		col := int(binary.BigEndian.Uint16(h[:2])) % protocol.CellsPerBlob
		mask = mask.With(col)
	}
	return mask
}

// Role returns the memoized role of this node for tx. The first query fixes
// the role for the rest of the run.
func (n *Node) Role(tx protocol.TxHash) protocol.Role {
	if r, ok := n.roles[tx]; ok {
		return r
	}
	r := ComputeRole(n.ID(), tx, Epoch(n.Now(), n.cfg.SlotDuration), n.cfg.ProviderProbability)
	n.roles[tx] = r
	return r
}

// Custody returns the node's custody columns.
func (n *Node) Custody() protocol.CellMask {
	return n.custody
}
