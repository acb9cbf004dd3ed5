// Package indicator maintains rolling technical-indicator state per
// (symbol, timeframe) and updates it incrementally as bars close.
//
// Each primitive (SMA, EMA, RSI, MACD, Bollinger) is O(1) or O(window) per
// update and keeps no history beyond what its formula needs.
package indicator

import "errors"

// Windows used by State.
const (
	WindowCapacity = 50

	SMAShort     = 20
	SMALong      = 50
	EMAFast      = 12
	EMASlow      = 26
	RSIPeriod    = 14
	SignalPeriod = 9
	BBPeriod     = 20
	BBStdDevs    = 2.0
)

var (
	// ErrStaleBar is returned for a bar whose open_time is not after the
	// last accepted bar of its series.
	ErrStaleBar = errors.New("stale or duplicate bar")

	// ErrInvalidBar is returned for bars failing model.Bar.Validate.
	ErrInvalidBar = errors.New("invalid bar")
)

func mustPositive(period int, name string) {
	if period <= 0 {
		panic("indicator: " + name + " period must be positive")
	}
}
