package indicator

// EMA calculates Exponential Moving Average with α = 2/(period+1).
// The first close seeds the average; Ready once period closes are seen.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
}

// NewEMA creates a new EMA with the given period.
func NewEMA(period int) *EMA {
	mustPositive(period, "EMA")
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Update(close float64) {
	e.count++
	if e.count == 1 {
		e.current = close
		return
	}
	e.current += e.multiplier * (close - e.current)
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count >= e.period }

// Seeded reports whether at least one value has been fed.
func (e *EMA) Seeded() bool { return e.count > 0 }
