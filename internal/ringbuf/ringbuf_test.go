package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow_PushBelowCapacity(t *testing.T) {
	w := New(4)
	for _, v := range []float64{1, 2, 3} {
		_, evicted := w.Push(v)
		assert.False(t, evicted)
	}

	assert.Equal(t, 3, w.Len())
	assert.Equal(t, []float64{1, 2, 3}, w.Last(10))
	assert.Equal(t, 3.0, w.At(0))
	assert.Equal(t, 1.0, w.At(2))
}

func TestWindow_EvictsOldest(t *testing.T) {
	w := New(3)
	for _, v := range []float64{1, 2, 3} {
		w.Push(v)
	}
	old, evicted := w.Push(4)
	require.True(t, evicted)
	assert.Equal(t, 1.0, old)

	old, evicted = w.Push(5)
	require.True(t, evicted)
	assert.Equal(t, 2.0, old)

	assert.Equal(t, w.Cap(), w.Len())
	assert.Equal(t, []float64{3, 4, 5}, w.Last(3))
	assert.Equal(t, []float64{4, 5}, w.Last(2))
}

func TestWindow_WrapsManyTimes(t *testing.T) {
	w := New(50)
	for i := 1; i <= 1000; i++ {
		w.Push(float64(i))
	}
	last := w.Last(50)
	require.Len(t, last, 50)
	assert.Equal(t, 951.0, last[0])
	assert.Equal(t, 1000.0, last[49])
}

func TestWindow_InvalidCapacityPanics(t *testing.T) {
	assert.Panics(t, func() { New(0) })
	assert.Panics(t, func() { New(-1) })
}

func TestWindow_AtOutOfRangePanics(t *testing.T) {
	w := New(2)
	w.Push(1)
	assert.Panics(t, func() { w.At(1) })
}
