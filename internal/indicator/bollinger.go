package indicator

import (
	"math"

	"coinstream/internal/ringbuf"
)

// Bands holds one Bollinger Bands reading.
type Bands struct {
	Upper, Middle, Lower float64
}

// Bollinger computes bands over the newest period samples of a shared
// close window. The standard deviation is the sample (n-1) deviation.
func Bollinger(w *ringbuf.Window, period int, k float64) (Bands, bool) {
	mustPositive(period, "Bollinger")
	if period < 2 || w.Len() < period {
		return Bands{}, false
	}

	closes := w.Last(period)
	var sum float64
	for _, c := range closes {
		sum += c
	}
	mean := sum / float64(period)

	var sq float64
	for _, c := range closes {
		d := c - mean
		sq += d * d
	}
	sd := math.Sqrt(sq / float64(period-1))

	return Bands{
		Upper:  mean + k*sd,
		Middle: mean,
		Lower:  mean - k*sd,
	}, true
}
