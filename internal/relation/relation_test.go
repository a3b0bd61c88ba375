package relation

import (
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/clrmeta/internal/metadata"
)

func ownersFromPointers(ptrs ...uint32) []RangeOwner {
	out := make([]RangeOwner, len(ptrs))
	for i, p := range ptrs {
		out[i] = RangeOwner{Key: uint32(i + 1), First: p}
	}
	return out
}

func TestRangeRelation_ListPattern(t *testing.T) {
	r := NewRangeRelation(ownersFromPointers(1, 1, 4, 4, 7), 6)

	assert.Equal(t, metadata.RidRange{Start: 1, End: 1}, r.Range(1))
	assert.Equal(t, metadata.RidRange{Start: 1, End: 4}, r.Range(2))
	assert.Equal(t, metadata.RidRange{Start: 4, End: 4}, r.Range(3))
	assert.Equal(t, metadata.RidRange{Start: 4, End: 7}, r.Range(4))
	assert.Equal(t, metadata.RidRange{Start: 7, End: 7}, r.Range(5))

	for child, want := range map[uint32]uint32{1: 2, 2: 2, 3: 2, 4: 4, 5: 4, 6: 4} {
		got, ok := r.Owner(child)
		require.True(t, ok, "child %d", child)
		assert.Equal(t, want, got, "child %d", child)
	}
	_, ok := r.Owner(7)
	assert.False(t, ok)
	_, ok = r.Owner(0)
	assert.False(t, ok)
}

func TestRangeRelation_ThreeTypesTwoFieldsEach(t *testing.T) {
	// A owns [1,3), B owns [3,5), C owns nothing.
	r := NewRangeRelation(ownersFromPointers(1, 3, 5), 4)

	assert.Equal(t, metadata.RidRange{Start: 1, End: 3}, r.Range(1))
	assert.Equal(t, metadata.RidRange{Start: 3, End: 5}, r.Range(2))
	assert.True(t, r.Range(3).Empty())

	owner, ok := r.Owner(2)
	require.True(t, ok)
	assert.Equal(t, uint32(1), owner)
	owner, ok = r.Owner(4)
	require.True(t, ok)
	assert.Equal(t, uint32(2), owner)
}

func TestRangeRelation_EdgeCases(t *testing.T) {
	t.Run("no owners", func(t *testing.T) {
		r := NewRangeRelation(nil, 5)
		assert.Equal(t, 0, r.Len())
		assert.True(t, r.Range(1).Empty())
		_, ok := r.Owner(1)
		assert.False(t, ok)
	})
	t.Run("zero first pointer", func(t *testing.T) {
		r := NewRangeRelation(ownersFromPointers(0, 3), 4)
		assert.Equal(t, metadata.RidRange{Start: 1, End: 3}, r.Range(1))
		assert.Equal(t, metadata.RidRange{Start: 3, End: 5}, r.Range(2))
	})
	t.Run("pointer past end", func(t *testing.T) {
		r := NewRangeRelation(ownersFromPointers(1, 99), 2)
		assert.Equal(t, metadata.RidRange{Start: 1, End: 3}, r.Range(1))
		assert.True(t, r.Range(2).Empty())
	})
	t.Run("decreasing pointer", func(t *testing.T) {
		r := NewRangeRelation(ownersFromPointers(3, 1, 4), 5)
		assert.Equal(t, metadata.RidRange{Start: 3, End: 3}, r.Range(1))
		assert.Equal(t, metadata.RidRange{Start: 3, End: 4}, r.Range(2))
		_, ok := r.Owner(1)
		assert.False(t, ok)
	})
	t.Run("parent keyed owners", func(t *testing.T) {
		r := NewRangeRelation([]RangeOwner{{Key: 7, First: 1}, {Key: 2, First: 3}}, 3)
		assert.Equal(t, metadata.RidRange{Start: 1, End: 3}, r.Range(7))
		assert.Equal(t, metadata.RidRange{Start: 3, End: 4}, r.Range(2))
		assert.True(t, r.Range(1).Empty())
		owner, ok := r.Owner(3)
		require.True(t, ok)
		assert.Equal(t, uint32(2), owner)
		assert.Equal(t, []uint32{7, 2}, r.Keys())
	})
}

func TestRangeRelation_Properties(t *testing.T) {
	const childCount = 30
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 300
	properties := gopter.NewProperties(params)

	properties.Property("range(i) = [p_i, p_i+1) and last runs to the end", prop.ForAll(
		func(ptrs []uint32) bool {
			sort.Slice(ptrs, func(i, j int) bool { return ptrs[i] < ptrs[j] })
			r := NewRangeRelation(ownersFromPointers(ptrs...), childCount)
			for i, p := range ptrs {
				end := uint32(childCount + 1)
				if i+1 < len(ptrs) {
					end = ptrs[i+1]
				}
				if r.Range(uint32(i+1)) != (metadata.RidRange{Start: p, End: end}) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.UInt32Range(1, childCount+1)),
	))

	properties.Property("owner_of inverts every non-empty range", prop.ForAll(
		func(ptrs []uint32) bool {
			sort.Slice(ptrs, func(i, j int) bool { return ptrs[i] < ptrs[j] })
			r := NewRangeRelation(ownersFromPointers(ptrs...), childCount)
			covered := 0
			for key := uint32(1); key <= uint32(len(ptrs)); key++ {
				for _, child := range r.Range(key).Rids() {
					covered++
					owner, ok := r.Owner(child)
					if !ok || owner != key {
						return false
					}
				}
			}
			for child := uint32(1); child <= childCount; child++ {
				if owner, ok := r.Owner(child); ok && !r.Range(owner).Contains(child) {
					return false
				}
			}
			if len(ptrs) > 0 && covered != int(childCount+1-ptrs[0]) {
				return false
			}
			return true
		},
		gen.SliceOf(gen.UInt32Range(1, childCount+1)),
	))

	properties.TestingRun(t)
}

func TestOneToMany_Completeness(t *testing.T) {
	typeA := metadata.NewToken(metadata.TableTypeDef, 1)
	typeB := metadata.NewToken(metadata.TableTypeDef, 2)
	owners := []metadata.Token{typeA, typeB, typeA, typeA, typeB}

	r := NewOneToMany[metadata.Token]()
	for i, o := range owners {
		require.True(t, r.Add(o, uint32(i+1)))
	}
	assert.Equal(t, []uint32{1, 3, 4}, r.Values(typeA))
	assert.Equal(t, []uint32{2, 5}, r.Values(typeB))
	assert.Equal(t, 3, r.Count(typeA))
	assert.Equal(t, 5, r.Len())
	for i, o := range owners {
		got, ok := r.Owner(uint32(i + 1))
		require.True(t, ok)
		assert.Equal(t, o, got)
	}

	assert.False(t, r.Add(typeB, 1), "rid 1 is already owned by A")
	assert.Equal(t, []uint32{2, 5}, r.Values(typeB))

	assert.Nil(t, r.Values(metadata.NewToken(metadata.TableTypeDef, 9)))
	_, ok := r.Owner(42)
	assert.False(t, ok)

	var seen []metadata.Token
	r.Each(func(owner metadata.Token, children *roaring.Bitmap) {
		seen = append(seen, owner)
	})
	assert.Equal(t, []metadata.Token{typeA, typeB}, seen)
}

func TestOneToMany_Properties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("every child appears once under its owner", prop.ForAll(
		func(owners []uint32) bool {
			r := NewOneToMany[uint32]()
			for i, o := range owners {
				r.Add(o, uint32(i+1))
			}
			for i, o := range owners {
				rid := uint32(i + 1)
				hits := 0
				for _, v := range r.Values(o) {
					if v == rid {
						hits++
					}
				}
				if hits != 1 {
					return false
				}
				if got, ok := r.Owner(rid); !ok || got != o {
					return false
				}
			}
			return r.Len() == len(owners)
		},
		gen.SliceOf(gen.UInt32Range(0, 8)),
	))

	properties.TestingRun(t)
}

func TestOneToOne(t *testing.T) {
	field := metadata.NewToken(metadata.TableField, 3)
	r := NewOneToOne[metadata.Token]()
	require.True(t, r.Add(field, 1))
	assert.False(t, r.Add(field, 2), "second child for the same owner")
	assert.False(t, r.Add(metadata.NewToken(metadata.TableField, 4), 1), "rid already owned")

	v, ok := r.Value(field)
	require.True(t, ok)
	assert.Equal(t, uint32(1), v)
	owner, ok := r.Owner(1)
	require.True(t, ok)
	assert.Equal(t, field, owner)
	_, ok = r.Value(metadata.NewToken(metadata.TableField, 4))
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestLazy_SingleWinner(t *testing.T) {
	var cell Lazy[*int]
	var builds atomic.Int32
	start := make(chan struct{})
	results := make([]*int, 32)

	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i] = cell.Get(func() *int {
				builds.Add(1)
				v := i
				return &v
			})
		}(i)
	}
	close(start)
	wg.Wait()

	assert.True(t, cell.Loaded())
	assert.GreaterOrEqual(t, builds.Load(), int32(1))
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestLazy_CachesNil(t *testing.T) {
	var cell Lazy[error]
	calls := 0
	for range 3 {
		assert.NoError(t, cell.Get(func() error { calls++; return nil }))
	}
	assert.Equal(t, 1, calls)
}
