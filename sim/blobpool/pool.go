// Package blobpool implements the per-node blob transaction store: sender and
// nonce indexing, replace-by-fee, and capacity eviction.
package blobpool

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/sparse-blobpool/blobsim/sim/protocol"
)

// Config bounds a pool.
type Config struct {
	MaxBytes         int64
	MaxTxsPerSender  int
	PriceBumpPercent uint64 // minimum fee bump for a replacement, in percent
}

// Pool is owned by exactly one node and mutated only by its handlers.
//
// Invariants:
//   - totalSize equals the sum of SizeBytes over every entry in txs
//   - bySender lists exactly the non-REPLACED entries of each sender, by nonce
type Pool struct {
	cfg       Config
	txs       map[protocol.TxHash]*Entry
	bySender  map[protocol.Address][]protocol.TxHash
	totalSize int64
	seq       uint64
}

// New creates an empty pool.
func New(cfg Config) *Pool {
	return &Pool{
		cfg:      cfg,
		txs:      make(map[protocol.TxHash]*Entry),
		bySender: make(map[protocol.Address][]protocol.TxHash),
	}
}

// Get looks up an entry.
func (p *Pool) Get(hash protocol.TxHash) (*Entry, bool) {
	e, ok := p.txs[hash]
	return e, ok
}

// Len returns the number of entries, REPLACED ones included.
func (p *Pool) Len() int {
	return len(p.txs)
}

// TotalSize returns the summed size of all entries.
func (p *Pool) TotalSize() int64 {
	return p.totalSize
}

// MaxSize returns the configured capacity.
func (p *Pool) MaxSize() int64 {
	return p.cfg.MaxBytes
}

// BySender returns the non-REPLACED hashes of sender ordered by nonce.
func (p *Pool) BySender(sender protocol.Address) []protocol.TxHash {
	list := p.bySender[sender]
	out := make([]protocol.TxHash, len(list))
	copy(out, list)
	return out
}

// Entries returns every entry in insertion order.
func (p *Pool) Entries() []*Entry {
	out := make([]*Entry, 0, len(p.txs))
	for _, e := range p.txs {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Insert adds a new entry and runs the sender-limit and size eviction passes.
// It returns the hashes evicted as a consequence, which may include e itself.
func (p *Pool) Insert(e *Entry) ([]protocol.TxHash, error) {
	if _, ok := p.txs[e.Hash]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTransaction, e.Hash)
	}
	if held := p.holder(e.Sender, e.Nonce); held != nil {
		return nil, fmt.Errorf("%w: sender %s nonce %d held by %s", ErrNonceTaken, e.Sender, e.Nonce, held.Hash)
	}

	p.seq++
	e.seq = p.seq
	p.txs[e.Hash] = e
	p.totalSize += int64(e.SizeBytes)
	if e.Status != StatusReplaced {
		p.index(e)
	}

	evicted := p.EvictForSenderLimit(e.Sender)
	if p.totalSize > p.cfg.MaxBytes {
		evicted = append(evicted, p.SizeEvict()...)
	}
	return evicted, nil
}

// TryReplace replaces the live entry with e's sender and nonce. It returns
// false without mutating anything when no such entry exists, and false with
// ErrReplaceUnderpriced when e does not bump both fees enough. The replaced
// entry stays in the pool with status REPLACED.
func (p *Pool) TryReplace(e *Entry) (bool, []protocol.TxHash, error) {
	old := p.holder(e.Sender, e.Nonce)
	if old == nil || old.Status.Absorbing() {
		return false, nil, nil
	}
	if _, ok := p.txs[e.Hash]; ok {
		return false, nil, fmt.Errorf("%w: %s", ErrDuplicateTransaction, e.Hash)
	}
	if err := p.checkBump(old, e); err != nil {
		return false, nil, err
	}

	p.unindex(old)
	newHash, oldHash := e.Hash, old.Hash
	old.ReplacedBy = &newHash
	old.SetStatus(StatusReplaced)
	e.Replaces = &oldHash

	evicted, err := p.Insert(e)
	if err != nil {
		return false, nil, fmt.Errorf("inserting replacement %s: %w", e.Hash, err)
	}
	logrus.WithFields(logrus.Fields{
		"old":    oldHash.TerminalString(),
		"new":    newHash.TerminalString(),
		"sender": e.Sender.Hex(),
		"nonce":  e.Nonce,
	}).Debug("replaced blob transaction")
	return true, evicted, nil
}

// checkBump requires both fee fields of e to be at least
// old * (100 + bump) / 100, rounded down.
func (p *Pool) checkBump(old, e *Entry) error {
	multiplier := uint256.NewInt(100 + p.cfg.PriceBumpPercent)
	onehundred := uint256.NewInt(100)

	minTip := new(uint256.Int).Mul(multiplier, old.MaxPriorityFeePerGas)
	minTip.Div(minTip, onehundred)
	if e.MaxPriorityFeePerGas.Lt(minTip) {
		return fmt.Errorf("%w: new tx priority fee %v < %v queued + %d%% replacement penalty",
			ErrReplaceUnderpriced, e.MaxPriorityFeePerGas, old.MaxPriorityFeePerGas, p.cfg.PriceBumpPercent)
	}

	minBlobFee := new(uint256.Int).Mul(multiplier, old.MaxFeePerBlobGas)
	minBlobFee.Div(minBlobFee, onehundred)
	if e.MaxFeePerBlobGas.Lt(minBlobFee) {
		return fmt.Errorf("%w: new tx blob fee %v < %v queued + %d%% replacement penalty",
			ErrReplaceUnderpriced, e.MaxFeePerBlobGas, old.MaxFeePerBlobGas, p.cfg.PriceBumpPercent)
	}
	return nil
}

// EvictForSenderLimit drops the oldest non-INCLUDED entries of sender while it
// holds more than MaxTxsPerSender live entries.
func (p *Pool) EvictForSenderLimit(sender protocol.Address) []protocol.TxHash {
	var evicted []protocol.TxHash
	for len(p.bySender[sender]) > p.cfg.MaxTxsPerSender {
		var victim *Entry
		for _, h := range p.bySender[sender] {
			e := p.txs[h]
			if e.Status == StatusIncluded {
				continue
			}
			if victim == nil || e.seq < victim.seq {
				victim = e
			}
		}
		if victim == nil {
			break
		}
		logrus.WithFields(logrus.Fields{
			"tx":     victim.Hash.TerminalString(),
			"sender": sender.Hex(),
		}).Debug("evicting for sender limit")
		evicted = append(evicted, p.drop(victim)...)
	}
	return evicted
}

// SizeEvict removes the lowest-fee, oldest eligible entries until the pool is
// within capacity. INCLUDED and REPLACED entries are never candidates.
func (p *Pool) SizeEvict() []protocol.TxHash {
	if p.totalSize <= p.cfg.MaxBytes {
		return nil
	}
	candidates := make([]*Entry, 0, len(p.txs))
	for _, e := range p.txs {
		if e.Status.Absorbing() {
			continue
		}
		candidates = append(candidates, e)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if c := candidates[i].MaxPriorityFeePerGas.Cmp(candidates[j].MaxPriorityFeePerGas); c != 0 {
			return c < 0
		}
		return candidates[i].seq < candidates[j].seq
	})

	var evicted []protocol.TxHash
	for _, victim := range candidates {
		if p.totalSize <= p.cfg.MaxBytes {
			break
		}
		if _, ok := p.txs[victim.Hash]; !ok {
			continue
		}
		evicted = append(evicted, p.drop(victim)...)
	}
	if len(evicted) > 0 {
		logrus.Debugf("size eviction removed %d entries, pool at %d/%d bytes", len(evicted), p.totalSize, p.cfg.MaxBytes)
	}
	return evicted
}

// Remove deletes an entry together with the REPLACED entries it superseded.
func (p *Pool) Remove(hash protocol.TxHash) []protocol.TxHash {
	e, ok := p.txs[hash]
	if !ok {
		return nil
	}
	return p.drop(e)
}

// Expire removes non-INCLUDED entries first seen at or before now-ttl.
func (p *Pool) Expire(now, ttl float64) []protocol.TxHash {
	var expired []protocol.TxHash
	for _, e := range p.Entries() {
		if e.Status == StatusIncluded || e.FirstSeenTime > now-ttl {
			continue
		}
		if _, ok := p.txs[e.Hash]; !ok {
			continue
		}
		expired = append(expired, p.drop(e)...)
	}
	return expired
}

// IterByPriority returns the entries accepted by keep, ordered by priority fee
// descending and then by age.
func (p *Pool) IterByPriority(keep func(*Entry) bool) []*Entry {
	out := make([]*Entry, 0)
	for _, e := range p.txs {
		if keep == nil || keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].MaxPriorityFeePerGas.Cmp(out[j].MaxPriorityFeePerGas); c != 0 {
			return c > 0
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// holder returns the indexed entry for sender and nonce, if any.
func (p *Pool) holder(sender protocol.Address, nonce uint64) *Entry {
	for _, h := range p.bySender[sender] {
		if e := p.txs[h]; e.Nonce == nonce {
			return e
		}
	}
	return nil
}

func (p *Pool) index(e *Entry) {
	list := p.bySender[e.Sender]
	i := sort.Search(len(list), func(i int) bool { return p.txs[list[i]].Nonce > e.Nonce })
	list = append(list, protocol.TxHash{})
	copy(list[i+1:], list[i:])
	list[i] = e.Hash
	p.bySender[e.Sender] = list
}

func (p *Pool) unindex(e *Entry) {
	list := p.bySender[e.Sender]
	for i, h := range list {
		if h == e.Hash {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(p.bySender, e.Sender)
		return
	}
	p.bySender[e.Sender] = list
}

// drop removes e and walks back through the REPLACED entries it superseded.
func (p *Pool) drop(e *Entry) []protocol.TxHash {
	var removed []protocol.TxHash
	for e != nil {
		if e.Status != StatusReplaced {
			p.unindex(e)
		}
		delete(p.txs, e.Hash)
		p.totalSize -= int64(e.SizeBytes)
		removed = append(removed, e.Hash)

		var prev *Entry
		if e.Replaces != nil {
			if cand, ok := p.txs[*e.Replaces]; ok && cand.Status == StatusReplaced {
				prev = cand
			}
		}
		e = prev
	}
	return removed
}

// verify checks the size and index invariants.
func (p *Pool) verify() error {
	var sum int64
	for _, e := range p.txs {
		sum += int64(e.SizeBytes)
	}
	if sum != p.totalSize {
		return fmt.Errorf("total size %d != sum of entries %d", p.totalSize, sum)
	}
	indexed := 0
	for sender, list := range p.bySender {
		for i, h := range list {
			e, ok := p.txs[h]
			if !ok {
				return fmt.Errorf("index of %s references missing %s", sender, h)
			}
			if e.Status == StatusReplaced {
				return fmt.Errorf("index of %s holds replaced %s", sender, h)
			}
			if i > 0 && p.txs[list[i-1]].Nonce >= e.Nonce {
				return fmt.Errorf("index of %s not ordered by nonce", sender)
			}
		}
		indexed += len(list)
	}
	live := 0
	for _, e := range p.txs {
		if e.Status != StatusReplaced {
			live++
		}
	}
	if live != indexed {
		return fmt.Errorf("%d live entries but %d indexed", live, indexed)
	}
	return nil
}
