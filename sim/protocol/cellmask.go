package protocol

import (
	"fmt"
	"math/bits"
)

// CellMask is a 128-bit column bitmap. Column i lives in bit i%64 of word i/64.
type CellMask struct {
	lo, hi uint64
}

// AllColumns is the all-ones mask, reserved to mean "full provider".
var AllColumns = CellMask{lo: ^uint64(0), hi: ^uint64(0)}

// MaskOf builds a mask with the given columns set.
func MaskOf(cols ...int) CellMask {
	var m CellMask
	for _, c := range cols {
		m = m.With(c)
	}
	return m
}

// MaskRange builds a mask with columns [from, to) set.
func MaskRange(from, to int) CellMask {
	var m CellMask
	for c := from; c < to; c++ {
		m = m.With(c)
	}
	return m
}

// With returns m with column c set. Out-of-range columns are ignored.
func (m CellMask) With(c int) CellMask {
	switch {
	case c < 0 || c >= CellsPerBlob:
	case c < 64:
		m.lo |= 1 << uint(c)
	default:
		m.hi |= 1 << uint(c-64)
	}
	return m
}

// Has reports whether column c is set.
func (m CellMask) Has(c int) bool {
	switch {
	case c < 0 || c >= CellsPerBlob:
		return false
	case c < 64:
		return m.lo&(1<<uint(c)) != 0
	default:
		return m.hi&(1<<uint(c-64)) != 0
	}
}

// Count returns the number of set columns.
func (m CellMask) Count() int {
	return bits.OnesCount64(m.lo) + bits.OnesCount64(m.hi)
}

// Union returns m ∪ o.
func (m CellMask) Union(o CellMask) CellMask {
	return CellMask{lo: m.lo | o.lo, hi: m.hi | o.hi}
}

// Intersect returns m ∩ o.
func (m CellMask) Intersect(o CellMask) CellMask {
	return CellMask{lo: m.lo & o.lo, hi: m.hi & o.hi}
}

// Without returns m \ o.
func (m CellMask) Without(o CellMask) CellMask {
	return CellMask{lo: m.lo &^ o.lo, hi: m.hi &^ o.hi}
}

// Contains reports whether every column of o is in m.
func (m CellMask) Contains(o CellMask) bool {
	return o.Without(m).IsZero()
}

// IsFull reports whether m is the all-ones sentinel.
func (m CellMask) IsFull() bool {
	return m == AllColumns
}

// IsZero reports whether no column is set.
func (m CellMask) IsZero() bool {
	return m.lo == 0 && m.hi == 0
}

// Columns lists the set columns in ascending order.
func (m CellMask) Columns() []int {
	out := make([]int, 0, m.Count())
	for c := 0; c < CellsPerBlob; c++ {
		if m.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

func (m CellMask) String() string {
	return fmt.Sprintf("%016x%016x", m.hi, m.lo)
}
