package relation

import (
	"github.com/RoaringBitmap/roaring"
)

// OneToMany maps an owner to the set of child rids that point at it, and
// each child back to its owner.
type OneToMany[K comparable] struct {
	forward map[K]*roaring.Bitmap
	reverse map[uint32]K
	order   []K
}

func NewOneToMany[K comparable]() *OneToMany[K] {
	return &OneToMany[K]{
		forward: make(map[K]*roaring.Bitmap),
		reverse: make(map[uint32]K),
	}
}

// Add records owner -> rid. A rid can only be added once; a second Add for
// the same rid is ignored and reports false.
func (r *OneToMany[K]) Add(owner K, rid uint32) bool {
	if _, seen := r.reverse[rid]; seen {
		return false
	}
	bm, ok := r.forward[owner]
	if !ok {
		bm = roaring.New()
		r.forward[owner] = bm
		r.order = append(r.order, owner)
	}
	bm.Add(rid)
	r.reverse[rid] = owner
	return true
}

// Values returns the children of owner in ascending rid order.
func (r *OneToMany[K]) Values(owner K) []uint32 {
	bm, ok := r.forward[owner]
	if !ok {
		return nil
	}
	return bm.ToArray()
}

// Count returns the number of children of owner.
func (r *OneToMany[K]) Count(owner K) int {
	bm, ok := r.forward[owner]
	if !ok {
		return 0
	}
	return int(bm.GetCardinality())
}

// Owner returns the owner recorded for rid.
func (r *OneToMany[K]) Owner(rid uint32) (K, bool) {
	k, ok := r.reverse[rid]
	return k, ok
}

// Len returns the number of recorded pairs.
func (r *OneToMany[K]) Len() int { return len(r.reverse) }

// Each calls fn for every owner in first-seen order with its child set.
// fn must not modify the bitmap.
func (r *OneToMany[K]) Each(fn func(owner K, children *roaring.Bitmap)) {
	for _, k := range r.order {
		fn(k, r.forward[k])
	}
}

// OneToOne is OneToMany restricted to at most one child per owner.
type OneToOne[K comparable] struct {
	forward map[K]uint32
	reverse map[uint32]K
}

func NewOneToOne[K comparable]() *OneToOne[K] {
	return &OneToOne[K]{
		forward: make(map[K]uint32),
		reverse: make(map[uint32]K),
	}
}

// Add records owner -> rid. It reports false, leaving the relation
// unchanged, when owner already has a child or rid already has an owner.
func (r *OneToOne[K]) Add(owner K, rid uint32) bool {
	if _, taken := r.forward[owner]; taken {
		return false
	}
	if _, seen := r.reverse[rid]; seen {
		return false
	}
	r.forward[owner] = rid
	r.reverse[rid] = owner
	return true
}

func (r *OneToOne[K]) Value(owner K) (uint32, bool) {
	v, ok := r.forward[owner]
	return v, ok
}

func (r *OneToOne[K]) Owner(rid uint32) (K, bool) {
	k, ok := r.reverse[rid]
	return k, ok
}

func (r *OneToOne[K]) Len() int { return len(r.forward) }

// Each calls fn for every pair. Order is unspecified.
func (r *OneToOne[K]) Each(fn func(owner K, rid uint32)) {
	for k, v := range r.forward {
		fn(k, v)
	}
}
