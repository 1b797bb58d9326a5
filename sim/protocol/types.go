package protocol

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

// TxHash identifies a transaction.
type TxHash = common.Hash

// Address identifies a transaction sender.
type Address = common.Address

// Role is a node's per-transaction availability duty.
type Role int

const (
	RoleSampler Role = iota
	RoleProvider
)

func (r Role) String() string {
	if r == RoleProvider {
		return "provider"
	}
	return "sampler"
}

// TxMeta is the economic identity of a blob transaction.
type TxMeta struct {
	Sender               Address
	Nonce                uint64
	BlobCount            int
	MaxFeePerGas         *uint256.Int
	MaxPriorityFeePerGas *uint256.Int
	MaxFeePerBlobGas     *uint256.Int
}

// Copy returns a deep copy so fee values are never shared between pools.
func (m TxMeta) Copy() TxMeta {
	cp := m
	cp.MaxFeePerGas = cloneFee(m.MaxFeePerGas)
	cp.MaxPriorityFeePerGas = cloneFee(m.MaxPriorityFeePerGas)
	cp.MaxFeePerBlobGas = cloneFee(m.MaxFeePerBlobGas)
	return cp
}

func cloneFee(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v.Clone()
}

// Keccak256 hashes the concatenation of parts.
func Keccak256(parts ...[]byte) TxHash {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	var out TxHash
	h.Sum(out[:0])
	return out
}
