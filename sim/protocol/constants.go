// Package protocol defines the wire messages of the sparse blobpool protocol
// and their byte sizes for bandwidth accounting.
package protocol

// Data-availability layout.
const (
	CellSize                = 2048 // bytes per cell
	CellsPerBlob            = 128  // columns of an extended blob
	ReconstructionThreshold = 64   // columns needed to rebuild a blob
	MaxBlobsPerTx           = 6
	TxEnvelopeSize          = 1024 // non-blob part of a blob transaction
)

// Wire layout.
const (
	MessageOverhead     = 8  // request id and message code
	HashSize            = 32 // transaction hash
	TxSizeFieldSize     = 4  // one entry of an announcement's sizes list
	CellMaskSize        = 16 // 128-bit column bitmap
	BlockHeaderOverhead = 64
)

// BlobTxType is the EIP-4844 transaction type.
const BlobTxType byte = 0x03

// Message codes.
const (
	CodeNewPooledTransactionHashes = 0x08
	CodeGetPooledTransactions      = 0x09
	CodePooledTransactions         = 0x0A
	CodeGetCells                   = 0x12
	CodeCells                      = 0x13
)

// BlobTxSize returns the full size of a blob transaction carrying blobCount
// extended blobs.
func BlobTxSize(blobCount int) int {
	return TxEnvelopeSize + blobCount*CellsPerBlob*CellSize
}
