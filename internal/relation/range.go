package relation

import (
	"sort"

	"github.com/agentic-research/clrmeta/internal/metadata"
)

// RangeOwner is one row of an owner table that uses the list pattern.
// Key is what callers query by: the owner's own rid for TypeDef and
// Method, the parent TypeDef rid for PropertyMap and EventMap.
type RangeOwner struct {
	Key   uint32
	First uint32
}

// RangeRelation answers "which children does this owner have" and "who
// owns this child" for a list-pattern column. It is immutable once built.
type RangeRelation struct {
	keys   []uint32
	starts []uint32
	ends   []uint32
	byKey  map[uint32]int
}

// NewRangeRelation builds the relation from the owner rows in table order.
// Owner i spans [First_i, First_i+1); the last owner runs to childCount+1.
// First pointers are clamped to [1, childCount+1], so a zero pointer on
// the first owner reads as 1 and a pointer below its predecessor yields an
// empty range.
func NewRangeRelation(owners []RangeOwner, childCount uint32) *RangeRelation {
	n := len(owners)
	r := &RangeRelation{
		keys:   make([]uint32, n),
		starts: make([]uint32, n),
		ends:   make([]uint32, n),
		byKey:  make(map[uint32]int, n),
	}
	limit := childCount + 1
	clamp := func(p uint32) uint32 {
		if p == 0 {
			return 1
		}
		if p > limit {
			return limit
		}
		return p
	}
	prev := uint32(1)
	for i, o := range owners {
		start := clamp(o.First)
		if start < prev {
			start = prev
		}
		r.keys[i] = o.Key
		r.starts[i] = start
		prev = start
		if _, dup := r.byKey[o.Key]; !dup {
			r.byKey[o.Key] = i
		}
	}
	for i := range owners {
		if i+1 < n {
			r.ends[i] = r.starts[i+1]
		} else {
			r.ends[i] = limit
		}
	}
	return r
}

// Range returns the children of the owner with the given key. Unknown keys
// get an empty range.
func (r *RangeRelation) Range(key uint32) metadata.RidRange {
	i, ok := r.byKey[key]
	if !ok {
		return metadata.RidRange{}
	}
	return metadata.RidRange{Start: r.starts[i], End: r.ends[i]}
}

// Owner returns the key of the owner whose range contains child.
func (r *RangeRelation) Owner(child uint32) (uint32, bool) {
	// first owner starting after child, then step back to the last one
	// starting at or before it; empty ranges share a start with their
	// successor so the last match is the only candidate.
	i := sort.Search(len(r.starts), func(i int) bool { return r.starts[i] > child }) - 1
	if i < 0 || child >= r.ends[i] {
		return 0, false
	}
	return r.keys[i], true
}

// Len returns the number of owners.
func (r *RangeRelation) Len() int { return len(r.keys) }

// Keys returns the owner keys in table order.
func (r *RangeRelation) Keys() []uint32 {
	return append([]uint32(nil), r.keys...)
}
