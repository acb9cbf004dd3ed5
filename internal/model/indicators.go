package model

import "time"

// IndicatorSnapshot is the derived indicator set at one point in time.
// A nil field means the indicator's window is not yet full.
type IndicatorSnapshot struct {
	SMA20         *float64 `json:"sma_20"`
	SMA50         *float64 `json:"sma_50"`
	EMA12         *float64 `json:"ema_12"`
	EMA26         *float64 `json:"ema_26"`
	RSI           *float64 `json:"rsi"`
	MACD          *float64 `json:"macd"`
	MACDSignal    *float64 `json:"macd_signal"`
	MACDHistogram *float64 `json:"macd_histogram"`
	BBUpper       *float64 `json:"bb_upper"`
	BBMiddle      *float64 `json:"bb_middle"`
	BBLower       *float64 `json:"bb_lower"`
}

// SeriesSnapshot pairs a snapshot with the bar it was computed from.
type SeriesSnapshot struct {
	Symbol     string            `json:"symbol"`
	Timeframe  Timeframe         `json:"timeframe"`
	OpenTime   time.Time         `json:"open_time"`
	Close      float64           `json:"close"`
	Indicators IndicatorSnapshot `json:"indicators"`
}

// Float returns a pointer to v, for building snapshots in tests and literals.
func Float(v float64) *float64 { return &v }
