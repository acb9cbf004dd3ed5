package indicator

import (
	"math"
	"testing"

	"coinstream/internal/ringbuf"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

func TestSMA_Correctness_Period3(t *testing.T) {
	// (100+102+104)/3 = 102, (102+104+103)/3 = 103, (104+103+105)/3 = 104
	sma := NewSMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102, 103, 104}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		sma.Update(p)
		assert.Equal(t, ready[i], sma.Ready(), "candle %d", i)
		if ready[i] {
			assertClose(t, "SMA(3)", sma.Value(), expected[i], 1e-9)
		}
	}
}

func TestEMA_SeededWithFirstClose(t *testing.T) {
	// α = 0.5: 2 → 3 → 4.5
	ema := NewEMA(3)
	ema.Update(2)
	assert.True(t, ema.Seeded())
	assert.False(t, ema.Ready())
	assertClose(t, "EMA seed", ema.Value(), 2, 1e-9)

	ema.Update(4)
	assertClose(t, "EMA step 2", ema.Value(), 3, 1e-9)
	assert.False(t, ema.Ready())

	ema.Update(6)
	assert.True(t, ema.Ready())
	assertClose(t, "EMA step 3", ema.Value(), 4.5, 1e-9)
}

func TestRSI_AllGains_Is100(t *testing.T) {
	rsi := NewRSI(14)
	for i := 1; i <= 15; i++ {
		rsi.Update(float64(i))
	}
	require.True(t, rsi.Ready())
	assert.Equal(t, 100.0, rsi.Value())
}

func TestRSI_Flat_Is50(t *testing.T) {
	rsi := NewRSI(14)
	for i := 0; i < 20; i++ {
		rsi.Update(42)
	}
	require.True(t, rsi.Ready())
	assert.Equal(t, 50.0, rsi.Value())
}

func TestRSI_NotReadyBeforePeriodPlusOne(t *testing.T) {
	rsi := NewRSI(14)
	for i := 1; i <= 14; i++ {
		rsi.Update(float64(i))
		assert.False(t, rsi.Ready(), "close %d", i)
	}
	rsi.Update(15)
	assert.True(t, rsi.Ready())
}

func TestRSI_WilderSmoothing(t *testing.T) {
	// Alternating +1/-1 gives avg gain = avg loss = 0.5 -> 50.
	// Next delta +2: gain = (0.5*13+2)/14, loss = 0.5*13/14, rs = 17/13,
	// RSI = 100*17/30.
	rsi := NewRSI(14)
	price := 100.0
	rsi.Update(price)
	for i := 0; i < 14; i++ {
		if i%2 == 0 {
			price++
		} else {
			price--
		}
		rsi.Update(price)
	}
	require.True(t, rsi.Ready())
	assertClose(t, "RSI seed", rsi.Value(), 50, 1e-9)

	rsi.Update(price + 2)
	assertClose(t, "RSI smoothed", rsi.Value(), 100.0*17.0/30.0, 1e-9)

	gain, loss := rsi.Averages()
	assertClose(t, "avg gain", gain, 8.5/14, 1e-12)
	assertClose(t, "avg loss", loss, 6.5/14, 1e-12)
}

func TestMACD_Readiness(t *testing.T) {
	m := NewMACD(12, 26, 9)
	for i := 1; i <= 33; i++ {
		m.Update(float64(100 + i))
		assert.Equal(t, i >= 26, m.Ready(), "close %d", i)
		_, sigOK := m.Signal()
		assert.False(t, sigOK, "close %d", i)
	}
	m.Update(134)
	sig, ok := m.Signal()
	require.True(t, ok)
	hist, ok := m.Histogram()
	require.True(t, ok)
	assertClose(t, "histogram", hist, m.Value()-sig, 1e-12)
}

func TestMACD_ConstantSeriesIsZero(t *testing.T) {
	m := NewMACD(12, 26, 9)
	for i := 0; i < 40; i++ {
		m.Update(50)
	}
	assertClose(t, "macd", m.Value(), 0, 1e-12)
	hist, _ := m.Histogram()
	assertClose(t, "hist", hist, 0, 1e-12)
}

func TestMACD_InvalidPeriodsPanic(t *testing.T) {
	assert.Panics(t, func() { NewMACD(26, 12, 9) })
}

func TestBollinger_SampleStdDev(t *testing.T) {
	// closes 1..20: mean 10.5, sample variance n(n+1)/12 = 35
	w := ringbuf.New(50)
	for i := 1; i <= 20; i++ {
		w.Push(float64(i))
	}
	b, ok := Bollinger(w, 20, 2)
	require.True(t, ok)

	sd := math.Sqrt(35)
	assertClose(t, "middle", b.Middle, 10.5, 1e-9)
	assertClose(t, "upper", b.Upper, 10.5+2*sd, 1e-9)
	assertClose(t, "lower", b.Lower, 10.5-2*sd, 1e-9)
}

func TestBollinger_NotReady(t *testing.T) {
	w := ringbuf.New(50)
	for i := 0; i < 19; i++ {
		w.Push(1)
	}
	_, ok := Bollinger(w, 20, 2)
	assert.False(t, ok)
}

func TestConstructors_RejectNonPositivePeriods(t *testing.T) {
	assert.Panics(t, func() { NewSMA(0) })
	assert.Panics(t, func() { NewEMA(-1) })
	assert.Panics(t, func() { NewRSI(0) })
}
