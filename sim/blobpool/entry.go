package blobpool

import (
	"github.com/sparse-blobpool/blobsim/sim"
	"github.com/sparse-blobpool/blobsim/sim/protocol"
)

// Status is the per-node lifecycle state of a pooled transaction.
//
//	PendingProviders → Fetching → Available | Failed
//	Available → Included → (removed)
//	any non-terminal → Replaced
type Status int

const (
	StatusPendingProviders Status = iota
	StatusFetching
	StatusAvailable
	StatusFailed
	StatusIncluded
	StatusReplaced
)

var statusNames = [...]string{
	StatusPendingProviders: "PENDING_PROVIDERS",
	StatusFetching:         "FETCHING",
	StatusAvailable:        "AVAILABLE",
	StatusFailed:           "FAILED",
	StatusIncluded:         "INCLUDED",
	StatusReplaced:         "REPLACED",
}

func (s Status) String() string {
	if int(s) >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "UNKNOWN"
}

// Absorbing reports whether no further transition is allowed.
func (s Status) Absorbing() bool {
	return s == StatusIncluded || s == StatusReplaced
}

// PeerSet is an insertion-ordered set of actor ids.
type PeerSet struct {
	ids   []sim.ActorID
	index map[sim.ActorID]struct{}
}

// Add inserts id and reports whether it was new.
func (s *PeerSet) Add(id sim.ActorID) bool {
	if s.index == nil {
		s.index = make(map[sim.ActorID]struct{})
	}
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = struct{}{}
	s.ids = append(s.ids, id)
	return true
}

// Has reports membership.
func (s *PeerSet) Has(id sim.ActorID) bool {
	_, ok := s.index[id]
	return ok
}

// Len returns the set size.
func (s *PeerSet) Len() int {
	return len(s.ids)
}

// IDs returns the members in insertion order.
func (s *PeerSet) IDs() []sim.ActorID {
	out := make([]sim.ActorID, len(s.ids))
	copy(out, s.ids)
	return out
}

// Entry is one transaction as seen by one node.
type Entry struct {
	Hash protocol.TxHash
	protocol.TxMeta
	SizeBytes int

	Role        protocol.Role
	CellsHeld   protocol.CellMask
	HasFullBlob bool

	ProvidersSeen     PeerSet
	SamplersSeen      PeerSet
	AnnouncedTo       PeerSet
	FirstSeenTime     float64
	LastAnnouncedTime float64

	ReplacedBy *protocol.TxHash
	Replaces   *protocol.TxHash

	Status       Status
	IncludedSlot uint64

	// Generation increments on every status change. Timers capture it when
	// armed and are ignored once it moves on.
	Generation uint64

	seq uint64 // pool insertion order, used as age
}

// NewEntry creates a PendingProviders entry first seen at now.
func NewEntry(hash protocol.TxHash, meta protocol.TxMeta, size int, now float64) *Entry {
	return &Entry{
		Hash:          hash,
		TxMeta:        meta.Copy(),
		SizeBytes:     size,
		FirstSeenTime: now,
		Status:        StatusPendingProviders,
	}
}

// SetStatus moves the entry to s and bumps its generation.
func (e *Entry) SetStatus(s Status) {
	e.Status = s
	e.Generation++
}
