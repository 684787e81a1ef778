package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
	assert.Panics(t, func() { New[int](-1) })
}

func TestInsertSizeBound(t *testing.T) {
	r := New[int](3)
	for k := 1; k <= 10; k++ {
		r.Insert(k)
		want := k
		if want > 3 {
			want = 3
		}
		require.Equal(t, want, r.Len())
		require.Len(t, r.Iter(), want)
	}
}

func TestIterOrderAndEviction(t *testing.T) {
	r := New[int](3)
	for k := 1; k <= 5; k++ {
		r.Insert(k)
	}
	// Capacity 3, 5 inserts: last 3 values retained in insertion order.
	assert.Equal(t, []int{3, 4, 5}, r.Iter())

	front, ok := r.Front()
	require.True(t, ok)
	assert.Equal(t, 3, front)

	back, ok := r.Back()
	require.True(t, ok)
	assert.Equal(t, 5, back)
}

func TestEvictionIdentity(t *testing.T) {
	// For k > N, the (k)th insert evicts the element at position k-N-1
	// (0-indexed insertion order).
	const n = 4
	r := New[int](n)
	inserted := make([]int, 0, 10)
	for k := 1; k <= 10; k++ {
		v := k * 100
		inserted = append(inserted, v)
		evicted, didEvict := r.Insert(v)
		if k > n {
			require.True(t, didEvict)
			want := inserted[k-n-1] // inserted is 0-indexed; k is the 1-indexed insert count
			assert.Equal(t, want, evicted)
		} else {
			require.False(t, didEvict)
		}
	}
}

func TestGetAndLast(t *testing.T) {
	r := New[int](5)
	for k := 1; k <= 3; k++ {
		r.Insert(k)
	}
	assert.Equal(t, []int{1, 2}, r.Get(2))
	assert.Equal(t, []int{1, 2, 3}, r.Get(10)) // capped at len
	assert.Equal(t, []int{2, 3}, r.Last(2))
	assert.Equal(t, []int{1, 2, 3}, r.Last(100))
}

func TestEmptyRing(t *testing.T) {
	r := New[int](2)
	_, ok := r.Front()
	assert.False(t, ok)
	_, ok = r.Back()
	assert.False(t, ok)
	assert.Empty(t, r.Iter())
}
