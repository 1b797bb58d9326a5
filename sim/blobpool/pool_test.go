package blobpool

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparse-blobpool/blobsim/sim/protocol"
)

var (
	alice = protocol.Address{0xa1}
	bob   = protocol.Address{0xb0}
)

func testConfig() Config {
	return Config{MaxBytes: 1 << 30, MaxTxsPerSender: 16, PriceBumpPercent: 10}
}

func newTestEntry(name string, sender protocol.Address, nonce uint64, tip, blobFee uint64, size int) *Entry {
	meta := protocol.TxMeta{
		Sender:               sender,
		Nonce:                nonce,
		BlobCount:            1,
		MaxFeePerGas:         uint256.NewInt(1000),
		MaxPriorityFeePerGas: uint256.NewInt(tip),
		MaxFeePerBlobGas:     uint256.NewInt(blobFee),
	}
	return NewEntry(protocol.Keccak256([]byte(name)), meta, size, 0)
}

func TestPool_Insert_DuplicateRejected(t *testing.T) {
	p := New(testConfig())
	a := newTestEntry("a", alice, 0, 100, 100, 1000)
	_, err := p.Insert(a)
	require.NoError(t, err)

	_, err = p.Insert(newTestEntry("a", alice, 1, 100, 100, 1000))
	assert.True(t, errors.Is(err, ErrDuplicateTransaction))
	assert.Equal(t, 1, p.Len())
	assert.Equal(t, int64(1000), p.TotalSize())
}

func TestPool_Insert_NonceTakenRejected(t *testing.T) {
	p := New(testConfig())
	_, err := p.Insert(newTestEntry("a", alice, 0, 100, 100, 1000))
	require.NoError(t, err)

	_, err = p.Insert(newTestEntry("b", alice, 0, 500, 500, 1000))
	assert.True(t, errors.Is(err, ErrNonceTaken))
	assert.Equal(t, 1, p.Len())
}

func TestPool_BySender_OrderedByNonce(t *testing.T) {
	p := New(testConfig())
	for _, n := range []uint64{3, 1, 2, 0} {
		_, err := p.Insert(newTestEntry(string(rune('a'+n)), alice, n, 100, 100, 10))
		require.NoError(t, err)
	}
	list := p.BySender(alice)
	require.Len(t, list, 4)
	for i, h := range list {
		e, _ := p.Get(h)
		assert.Equal(t, uint64(i), e.Nonce)
	}
	require.NoError(t, p.verify())
}

func TestPool_TryReplace_RBFChain(t *testing.T) {
	// GIVEN tx A with nonce 0, priority fee 100, blob fee 100
	p := New(testConfig())
	a := newTestEntry("A", alice, 0, 100, 100, 1000)
	_, err := p.Insert(a)
	require.NoError(t, err)

	// WHEN replaced with priority fee 109 and blob fee 110
	low := newTestEntry("B-low", alice, 0, 109, 110, 1000)
	ok, _, err := p.TryReplace(low)

	// THEN the replacement is rejected and A is unchanged
	assert.False(t, ok)
	assert.True(t, errors.Is(err, ErrReplaceUnderpriced))
	assert.Equal(t, StatusPendingProviders, a.Status)
	assert.Nil(t, a.ReplacedBy)
	_, present := p.Get(low.Hash)
	assert.False(t, present)

	// WHEN replaced with priority fee 110 and blob fee 110
	b := newTestEntry("B", alice, 0, 110, 110, 1000)
	ok, _, err = p.TryReplace(b)

	// THEN B is accepted and A becomes REPLACED pointing at B
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StatusReplaced, a.Status)
	require.NotNil(t, a.ReplacedBy)
	assert.Equal(t, b.Hash, *a.ReplacedBy)
	require.NotNil(t, b.Replaces)
	assert.Equal(t, a.Hash, *b.Replaces)

	// A is retained but no longer indexed by sender
	_, present = p.Get(a.Hash)
	assert.True(t, present)
	assert.Equal(t, []protocol.TxHash{b.Hash}, p.BySender(alice))
	assert.Equal(t, int64(2000), p.TotalSize())
	require.NoError(t, p.verify())
}

func TestPool_TryReplace_BlobFeeBelowBumpRejected(t *testing.T) {
	p := New(testConfig())
	_, err := p.Insert(newTestEntry("A", alice, 0, 100, 100, 1000))
	require.NoError(t, err)

	ok, _, err := p.TryReplace(newTestEntry("B", alice, 0, 200, 109, 1000))
	assert.False(t, ok)
	assert.True(t, errors.Is(err, ErrReplaceUnderpriced))
}

func TestPool_TryReplace_FloorDivision(t *testing.T) {
	// 15 * 110 / 100 = 16.5, floored to 16
	p := New(testConfig())
	_, err := p.Insert(newTestEntry("A", alice, 0, 15, 15, 1000))
	require.NoError(t, err)

	ok, _, err := p.TryReplace(newTestEntry("B", alice, 0, 16, 16, 1000))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPool_TryReplace_NoCandidateIsNoOp(t *testing.T) {
	p := New(testConfig())
	_, err := p.Insert(newTestEntry("A", alice, 0, 100, 100, 1000))
	require.NoError(t, err)

	ok, evicted, err := p.TryReplace(newTestEntry("B", alice, 1, 500, 500, 1000))
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.Empty(t, evicted)
	assert.Equal(t, 1, p.Len())
}

func TestPool_TryReplace_IncludedNotReplaceable(t *testing.T) {
	p := New(testConfig())
	a := newTestEntry("A", alice, 0, 100, 100, 1000)
	_, err := p.Insert(a)
	require.NoError(t, err)
	a.SetStatus(StatusIncluded)

	ok, _, err := p.TryReplace(newTestEntry("B", alice, 0, 500, 500, 1000))
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, StatusIncluded, a.Status)
}

func TestPool_SenderLimit_DropsOldest(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTxsPerSender = 3
	p := New(cfg)

	var first *Entry
	for n := uint64(0); n < 4; n++ {
		e := newTestEntry(string(rune('a'+n)), alice, n, 100, 100, 10)
		if first == nil {
			first = e
		}
		evicted, err := p.Insert(e)
		require.NoError(t, err)
		if n < 3 {
			assert.Empty(t, evicted)
		} else {
			assert.Equal(t, []protocol.TxHash{first.Hash}, evicted)
		}
	}
	assert.Len(t, p.BySender(alice), 3)
	_, present := p.Get(first.Hash)
	assert.False(t, present)
	require.NoError(t, p.verify())
}

func TestPool_SenderLimit_SkipsIncluded(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTxsPerSender = 2
	p := New(cfg)

	a := newTestEntry("a", alice, 0, 100, 100, 10)
	b := newTestEntry("b", alice, 1, 100, 100, 10)
	_, _ = p.Insert(a)
	_, _ = p.Insert(b)
	a.SetStatus(StatusIncluded)

	evicted, err := p.Insert(newTestEntry("c", alice, 2, 100, 100, 10))
	require.NoError(t, err)
	assert.Equal(t, []protocol.TxHash{b.Hash}, evicted)
	_, present := p.Get(a.Hash)
	assert.True(t, present)
}

func TestPool_SizeEvict_FeeThenAge(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBytes = 3000
	p := New(cfg)

	cheapOld := newTestEntry("cheap-old", alice, 0, 5, 100, 1000)
	cheapNew := newTestEntry("cheap-new", bob, 0, 5, 100, 1000)
	rich := newTestEntry("rich", alice, 1, 50, 100, 1000)
	for _, e := range []*Entry{cheapOld, cheapNew, rich} {
		evicted, err := p.Insert(e)
		require.NoError(t, err)
		assert.Empty(t, evicted)
	}

	// One more entry pushes the pool over capacity by 1000 bytes.
	evicted, err := p.Insert(newTestEntry("mid", bob, 1, 20, 100, 1000))
	require.NoError(t, err)
	assert.Equal(t, []protocol.TxHash{cheapOld.Hash}, evicted)
	assert.Equal(t, int64(3000), p.TotalSize())
	require.NoError(t, p.verify())
}

func TestPool_SizeEvict_SkipsIncludedAndReplaced(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBytes = 2500
	p := New(cfg)

	a := newTestEntry("A", alice, 0, 1, 1, 1000)
	_, err := p.Insert(a)
	require.NoError(t, err)
	b := newTestEntry("B", alice, 0, 2, 2, 1000)
	ok, _, err := p.TryReplace(b)
	require.NoError(t, err)
	require.True(t, ok)
	b.SetStatus(StatusIncluded)

	// Over capacity, only the new entry itself is eligible.
	c := newTestEntry("C", bob, 0, 100, 100, 1000)
	evicted, err := p.Insert(c)
	require.NoError(t, err)
	assert.Equal(t, []protocol.TxHash{c.Hash}, evicted)
	_, present := p.Get(a.Hash)
	assert.True(t, present, "replaced entry is not an eviction candidate")
	_, present = p.Get(b.Hash)
	assert.True(t, present, "included entry is not an eviction candidate")
}

func TestPool_Remove_TakesReplacedPredecessors(t *testing.T) {
	p := New(testConfig())
	a := newTestEntry("A", alice, 0, 100, 100, 1000)
	b := newTestEntry("B", alice, 0, 110, 110, 1000)
	c := newTestEntry("C", alice, 0, 121, 121, 1000)
	_, err := p.Insert(a)
	require.NoError(t, err)
	_, _, err = p.TryReplace(b)
	require.NoError(t, err)
	_, _, err = p.TryReplace(c)
	require.NoError(t, err)
	require.Equal(t, 3, p.Len())

	removed := p.Remove(c.Hash)
	assert.Equal(t, []protocol.TxHash{c.Hash, b.Hash, a.Hash}, removed)
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, int64(0), p.TotalSize())
	require.NoError(t, p.verify())
}

func TestPool_Expire(t *testing.T) {
	p := New(testConfig())
	old := newTestEntry("old", alice, 0, 1, 1, 10)
	old.FirstSeenTime = 1
	fresh := newTestEntry("fresh", alice, 1, 1, 1, 10)
	fresh.FirstSeenTime = 250
	included := newTestEntry("included", bob, 0, 1, 1, 10)
	included.FirstSeenTime = 1
	for _, e := range []*Entry{old, fresh, included} {
		_, err := p.Insert(e)
		require.NoError(t, err)
	}
	included.SetStatus(StatusIncluded)

	expired := p.Expire(301, 300)
	assert.Equal(t, []protocol.TxHash{old.Hash}, expired)
	assert.Equal(t, 2, p.Len())
}

func TestPool_IterByPriority(t *testing.T) {
	p := New(testConfig())
	low := newTestEntry("low", alice, 0, 1, 1, 10)
	high := newTestEntry("high", alice, 1, 9, 1, 10)
	mid := newTestEntry("mid", bob, 0, 5, 1, 10)
	midLater := newTestEntry("mid-later", bob, 1, 5, 1, 10)
	for _, e := range []*Entry{low, high, mid, midLater} {
		_, err := p.Insert(e)
		require.NoError(t, err)
	}
	low.SetStatus(StatusFailed)

	got := p.IterByPriority(func(e *Entry) bool { return e.Status != StatusFailed })
	require.Len(t, got, 3)
	assert.Equal(t, high.Hash, got[0].Hash)
	assert.Equal(t, mid.Hash, got[1].Hash)
	assert.Equal(t, midLater.Hash, got[2].Hash)
}

// TestPool_Invariants_RandomOperations drives a random mix of inserts,
// replacements, removals and status changes and checks the size and
// per-sender invariants after every step.
func TestPool_Invariants_RandomOperations(t *testing.T) {
	cfg := Config{MaxBytes: 20_000, MaxTxsPerSender: 4, PriceBumpPercent: 10}
	p := New(cfg)
	rng := rand.New(rand.NewSource(7))
	senders := []protocol.Address{{1}, {2}, {3}}

	for i := 0; i < 2000; i++ {
		sender := senders[rng.Intn(len(senders))]
		nonce := uint64(rng.Intn(8))
		e := newTestEntry(string(rune(i))+"/op", sender, nonce, uint64(rng.Intn(200)), uint64(rng.Intn(200)), 500+rng.Intn(2000))

		switch rng.Intn(4) {
		case 0, 1:
			_, _ = p.Insert(e)
		case 2:
			_, _, _ = p.TryReplace(e)
		case 3:
			entries := p.Entries()
			if len(entries) > 0 {
				victim := entries[rng.Intn(len(entries))]
				if rng.Intn(2) == 0 {
					p.Remove(victim.Hash)
				} else if !victim.Status.Absorbing() {
					victim.SetStatus(StatusAvailable)
				}
			}
		}

		require.NoError(t, p.verify(), "step %d", i)
		for _, s := range senders {
			live := 0
			for _, h := range p.BySender(s) {
				if e, _ := p.Get(h); e.Status != StatusIncluded {
					live++
				}
			}
			require.LessOrEqual(t, live, cfg.MaxTxsPerSender, "step %d", i)
		}
	}
}
