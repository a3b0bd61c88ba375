// Package relation holds the lazily built, immutable indices that invert
// the implicit relations of metadata tables: contiguous child ranges and
// owner-pointer columns.
package relation

import "sync/atomic"

// Lazy is a write-once cell. The first Get to finish building installs its
// value; concurrent builders that lose the race discard theirs and return
// the installed one. A zero Lazy is ready to use.
type Lazy[T any] struct {
	p atomic.Pointer[T]
}

// Get returns the installed value, building it with build on first use.
// build may run more than once under contention but only one result is
// ever observed.
func (l *Lazy[T]) Get(build func() T) T {
	if v := l.p.Load(); v != nil {
		return *v
	}
	v := build()
	if l.p.CompareAndSwap(nil, &v) {
		return v
	}
	return *l.p.Load()
}

// Loaded reports whether a value has been installed.
func (l *Lazy[T]) Loaded() bool {
	return l.p.Load() != nil
}
