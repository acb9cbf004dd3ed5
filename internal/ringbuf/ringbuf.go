// Package ringbuf provides a fixed-capacity sliding window of float64
// samples. When full, each Push evicts the oldest sample. It is not safe
// for concurrent use; callers own one window per series.
package ringbuf

// Window keeps the most recent Cap() samples in arrival order.
type Window struct {
	buf   []float64
	head  int // next write position
	count int
}

// New creates a window holding up to capacity samples.
// Panics on a non-positive capacity, which is a programming error.
func New(capacity int) *Window {
	if capacity <= 0 {
		panic("ringbuf: capacity must be positive")
	}
	return &Window{buf: make([]float64, capacity)}
}

// Push appends v, evicting the oldest sample when the window is full.
// It returns the evicted value and whether one was evicted.
func (w *Window) Push(v float64) (evicted float64, ok bool) {
	if w.count == len(w.buf) {
		evicted, ok = w.buf[w.head], true
	} else {
		w.count++
	}
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
	return evicted, ok
}

// Len returns the number of samples held.
func (w *Window) Len() int { return w.count }

// Cap returns the window capacity.
func (w *Window) Cap() int { return len(w.buf) }

// At returns the i-th newest sample: At(0) is the latest push.
func (w *Window) At(i int) float64 {
	if i < 0 || i >= w.count {
		panic("ringbuf: index out of range")
	}
	idx := (w.head - 1 - i + 2*len(w.buf)) % len(w.buf)
	return w.buf[idx]
}

// Last copies the newest n samples, oldest first. n is clamped to Len().
func (w *Window) Last(n int) []float64 {
	if n > w.count {
		n = w.count
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[n-1-i] = w.At(i)
	}
	return out
}
