package indicator

import "coinstream/internal/ringbuf"

// SMA calculates Simple Moving Average over a rolling window with a
// running sum.
type SMA struct {
	w   *ringbuf.Window
	sum float64
}

// NewSMA creates a new SMA with the given period.
func NewSMA(period int) *SMA {
	mustPositive(period, "SMA")
	return &SMA{w: ringbuf.New(period)}
}

func (s *SMA) Update(close float64) {
	if old, ok := s.w.Push(close); ok {
		s.sum -= old
	}
	s.sum += close
}

func (s *SMA) Value() float64 {
	if !s.Ready() {
		return 0
	}
	return s.sum / float64(s.w.Cap())
}

func (s *SMA) Ready() bool { return s.w.Len() == s.w.Cap() }
