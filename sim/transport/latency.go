package transport

import "github.com/sparse-blobpool/blobsim/sim"

// Region is a coarse geographic placement of an actor.
type Region string

const (
	RegionNA Region = "NA"
	RegionEU Region = "EU"
	RegionAS Region = "AS"
)

// LatencyParams is the one-way latency model of a region pair.
type LatencyParams struct {
	BaseMs      float64
	JitterRatio float64 // jitter standard deviation as a fraction of base
}

// FallbackLatency applies to region pairs missing from the table.
var FallbackLatency = LatencyParams{BaseMs: 50, JitterRatio: 0.15}

// DefaultJitterRatio derives a jitter ratio from the base latency:
// short paths are steadier than long ones.
func DefaultJitterRatio(baseMs float64) float64 {
	switch {
	case baseMs < 30:
		return 0.05
	case baseMs < 80:
		return 0.10
	default:
		return 0.15
	}
}

type regionPair struct {
	a, b Region
}

func pairOf(a, b Region) regionPair {
	if b < a {
		a, b = b, a
	}
	return regionPair{a, b}
}

// LatencyTable is a symmetric region-pair latency lookup.
type LatencyTable struct {
	pairs    map[regionPair]LatencyParams
	fallback LatencyParams
}

// NewLatencyTable creates an empty table.
func NewLatencyTable(fallback LatencyParams) *LatencyTable {
	return &LatencyTable{pairs: make(map[regionPair]LatencyParams), fallback: fallback}
}

// DefaultLatencyTable returns the built-in NA / EU / AS table.
func DefaultLatencyTable() *LatencyTable {
	t := NewLatencyTable(FallbackLatency)
	t.Set(RegionNA, RegionNA, LatencyParams{BaseMs: 20, JitterRatio: 0.10})
	t.Set(RegionEU, RegionEU, LatencyParams{BaseMs: 15, JitterRatio: 0.10})
	t.Set(RegionAS, RegionAS, LatencyParams{BaseMs: 25, JitterRatio: 0.10})
	t.Set(RegionNA, RegionEU, LatencyParams{BaseMs: 45, JitterRatio: 0.15})
	t.Set(RegionNA, RegionAS, LatencyParams{BaseMs: 90, JitterRatio: 0.20})
	t.Set(RegionEU, RegionAS, LatencyParams{BaseMs: 75, JitterRatio: 0.15})
	return t
}

// LatencyTableFromConfig builds a table from configuration entries. An empty
// list yields the default table.
func LatencyTableFromConfig(entries []sim.LatencyConfig) *LatencyTable {
	if len(entries) == 0 {
		return DefaultLatencyTable()
	}
	t := NewLatencyTable(FallbackLatency)
	for _, e := range entries {
		ratio := DefaultJitterRatio(e.BaseMs)
		if e.JitterRatio != nil {
			ratio = *e.JitterRatio
		}
		t.Set(Region(e.From), Region(e.To), LatencyParams{BaseMs: e.BaseMs, JitterRatio: ratio})
	}
	return t
}

// Set stores the parameters for both directions of a pair.
func (t *LatencyTable) Set(a, b Region, p LatencyParams) {
	t.pairs[pairOf(a, b)] = p
}

// Lookup returns the parameters for a pair, or the fallback.
func (t *LatencyTable) Lookup(a, b Region) LatencyParams {
	if p, ok := t.pairs[pairOf(a, b)]; ok {
		return p
	}
	return t.fallback
}
