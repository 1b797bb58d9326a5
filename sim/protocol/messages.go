package protocol

import (
	"github.com/sparse-blobpool/blobsim/sim"
)

// Messages are immutable once sent; handlers must not modify them.

// Message kinds as reported by Kind.
const (
	KindAnnouncement          = "announcement"
	KindGetPooledTransactions = "get_pooled_transactions"
	KindPooledTransactions    = "pooled_transactions"
	KindGetCells              = "get_cells"
	KindCells                 = "cells"
	KindBlockAnnouncement     = "block_announcement"
	KindBroadcastTransaction  = "broadcast_transaction"
)

// IsDataKind reports whether messages of kind carry blob payload: bodies or
// cells. Everything else is control traffic.
func IsDataKind(kind string) bool {
	return kind == KindPooledTransactions || kind == KindCells
}

// Announcement advertises transaction hashes (NewPooledTransactionHashes).
// CellMask is the sender's availability for every announced hash: AllColumns
// for a full holder, the held columns for a sampler. Metas travels alongside
// as simulation metadata and is not part of the wire size.
type Announcement struct {
	sim.Envelope
	Types    []byte
	Sizes    []uint32
	Hashes   []TxHash
	CellMask CellMask
	Metas    []TxMeta
}

// SizeBytes implements sim.Message.
func (m *Announcement) SizeBytes() int {
	size := MessageOverhead + len(m.Types) + TxSizeFieldSize*len(m.Sizes) + HashSize*len(m.Hashes)
	for _, t := range m.Types {
		if t == BlobTxType {
			size += CellMaskSize
			break
		}
	}
	return size
}

// Kind implements sim.Message.
func (m *Announcement) Kind() string { return KindAnnouncement }

// GetPooledTransactions requests transaction bodies.
type GetPooledTransactions struct {
	sim.Envelope
	RequestID uint64
	Hashes    []TxHash
}

// SizeBytes implements sim.Message.
func (m *GetPooledTransactions) SizeBytes() int {
	return MessageOverhead + HashSize*len(m.Hashes)
}

// Kind implements sim.Message.
func (m *GetPooledTransactions) Kind() string { return KindGetPooledTransactions }

// TxBody is a full blob transaction as served to a provider.
type TxBody struct {
	Hash      TxHash
	Meta      TxMeta
	SizeBytes int
}

// PooledTransactions answers GetPooledTransactions. Bodies is aligned with the
// request hashes; nil marks a body the responder does not hold.
type PooledTransactions struct {
	sim.Envelope
	RequestID uint64
	Bodies    []*TxBody
}

// SizeBytes implements sim.Message.
func (m *PooledTransactions) SizeBytes() int {
	size := MessageOverhead
	for _, b := range m.Bodies {
		if b != nil {
			size += b.SizeBytes
		}
	}
	return size
}

// Kind implements sim.Message.
func (m *PooledTransactions) Kind() string { return KindPooledTransactions }

// GetCells requests the columns in Mask for every hash.
type GetCells struct {
	sim.Envelope
	RequestID uint64
	Hashes    []TxHash
	Mask      CellMask
}

// SizeBytes implements sim.Message.
func (m *GetCells) SizeBytes() int {
	return MessageOverhead + HashSize*len(m.Hashes) + CellMaskSize
}

// Kind implements sim.Message.
func (m *GetCells) Kind() string { return KindGetCells }

// Cells answers GetCells. Provided is aligned with Hashes and holds the
// columns actually returned for each hash; requested columns missing from it
// are absent cells.
type Cells struct {
	sim.Envelope
	RequestID uint64
	Hashes    []TxHash
	Mask      CellMask
	Provided  []CellMask
}

// CellCount returns the number of non-absent cells in the response.
func (m *Cells) CellCount() int {
	n := 0
	for _, p := range m.Provided {
		n += p.Count()
	}
	return n
}

// SizeBytes implements sim.Message.
func (m *Cells) SizeBytes() int {
	return MessageOverhead + HashSize*len(m.Hashes) + CellMaskSize + CellSize*m.CellCount()
}

// Kind implements sim.Message.
func (m *Cells) Kind() string { return KindCells }

// Block is the blob-carrying content of a produced block.
type Block struct {
	Slot         uint64
	Proposer     sim.ActorID
	BlobTxHashes []TxHash
}

// BlockAnnouncement broadcasts a produced block to every node.
type BlockAnnouncement struct {
	sim.Envelope
	Block Block
}

// SizeBytes implements sim.Message.
func (m *BlockAnnouncement) SizeBytes() int {
	return BlockHeaderOverhead + HashSize*len(m.Block.BlobTxHashes)
}

// Kind implements sim.Message.
func (m *BlockAnnouncement) Kind() string { return KindBlockAnnouncement }

// BroadcastTransaction injects a locally submitted transaction into its origin
// node. It is scheduled directly on the node and never crosses the transport.
type BroadcastTransaction struct {
	sim.Envelope
	Hash   TxHash
	Meta   TxMeta
	TxSize int
}

// SizeBytes implements sim.Message. Local injection costs no bandwidth.
func (m *BroadcastTransaction) SizeBytes() int { return 0 }

// Kind implements sim.Message.
func (m *BroadcastTransaction) Kind() string { return KindBroadcastTransaction }
