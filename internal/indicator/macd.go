package indicator

// MACD tracks EMA(fast) - EMA(slow) and a signal EMA of that difference.
// The line is available once the slow EMA is ready; the signal EMA is
// seeded with the first available line value.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA
}

// NewMACD creates a MACD with the given fast, slow and signal periods.
func NewMACD(fast, slow, signal int) *MACD {
	if fast >= slow {
		panic("indicator: MACD fast period must be shorter than slow")
	}
	return &MACD{
		fast:   NewEMA(fast),
		slow:   NewEMA(slow),
		signal: NewEMA(signal),
	}
}

func (m *MACD) Update(close float64) {
	m.fast.Update(close)
	m.slow.Update(close)
	if m.slow.Ready() {
		m.signal.Update(m.Value())
	}
}

// Value returns the MACD line.
func (m *MACD) Value() float64 { return m.fast.Value() - m.slow.Value() }

// Ready reports whether the MACD line is available.
func (m *MACD) Ready() bool { return m.slow.Ready() }

// Signal returns the signal line and whether it is available.
func (m *MACD) Signal() (float64, bool) {
	return m.signal.Value(), m.signal.Ready()
}

// Histogram returns MACD - signal and whether it is available.
func (m *MACD) Histogram() (float64, bool) {
	sig, ok := m.Signal()
	return m.Value() - sig, ok
}
