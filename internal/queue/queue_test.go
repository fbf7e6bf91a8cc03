package queue

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMinQueueOrder(t *testing.T) {
	pq := NewMin(8)

	r := rand.New(rand.NewSource(42))
	want := make([]float32, 0, 100)
	for i := 0; i < 100; i++ {
		d := r.Float32()
		want = append(want, d)
		pq.Push(Item{Node: uint32(i), Distance: d})
	}
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

	for i := 0; i < 100; i++ {
		item, ok := pq.Pop()
		require.True(t, ok)
		require.Equal(t, want[i], item.Distance)
	}

	_, ok := pq.Pop()
	require.False(t, ok)
}

func TestMaxQueueOrder(t *testing.T) {
	pq := NewMax(8)
	for _, d := range []float32{0.5, 0.1, 0.9, 0.3} {
		pq.Push(Item{Distance: d})
	}

	top, ok := pq.Top()
	require.True(t, ok)
	require.Equal(t, float32(0.9), top.Distance)

	var got []float32
	for pq.Len() > 0 {
		item, _ := pq.Pop()
		got = append(got, item.Distance)
	}
	require.Equal(t, []float32{0.9, 0.5, 0.3, 0.1}, got)
}

func TestMaxQueueMin(t *testing.T) {
	pq := NewMax(4)
	pq.Push(Item{Node: 1, Distance: 0.5})
	pq.Push(Item{Node: 2, Distance: 0.2})
	pq.Push(Item{Node: 3, Distance: 0.8})

	min, ok := pq.Min()
	require.True(t, ok)
	require.Equal(t, uint32(2), min.Node)
}

func TestReset(t *testing.T) {
	pq := NewMin(4)
	pq.Push(Item{Distance: 1})
	pq.Reset()
	require.Equal(t, 0, pq.Len())

	_, ok := pq.Top()
	require.False(t, ok)
}
