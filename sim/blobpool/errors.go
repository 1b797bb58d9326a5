package blobpool

import "errors"

var (
	// ErrDuplicateTransaction is returned when inserting a hash already in the pool.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrReplaceUnderpriced is returned when a replacement does not bump both
	// the priority fee and the blob fee by the configured percentage.
	ErrReplaceUnderpriced = errors.New("replacement transaction underpriced")

	// ErrNonceTaken is returned when inserting a sender/nonce that an existing
	// entry already holds. Replacements must go through TryReplace.
	ErrNonceTaken = errors.New("nonce already pooled")
)
