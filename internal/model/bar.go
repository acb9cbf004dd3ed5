package model

import (
	"fmt"
	"time"
)

// Timeframe is a bar interval label such as "1m", "1h" or "1d".
// Labels match the Binance kline interval names.
type Timeframe string

var timeframeDurations = map[Timeframe]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
}

// ParseTimeframe validates a timeframe label.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeDurations[tf]; !ok {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// Duration returns the bar length, or 0 for an unknown label.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

// BucketStart aligns t to the start of its bar in UTC.
func (tf Timeframe) BucketStart(t time.Time) time.Time {
	d := tf.Duration()
	if d <= 0 {
		return t.UTC()
	}
	return t.UTC().Truncate(d)
}

func (tf Timeframe) String() string { return string(tf) }

// Bar is one OHLCV interval. Identified by (Symbol, Timeframe, OpenTime);
// never mutated once stored.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	OpenTime  time.Time `json:"open_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Key returns "SYMBOL:TF", the sharding key used across the pipeline.
func (b Bar) Key() string {
	return SeriesKey(b.Symbol, b.Timeframe)
}

// SeriesKey builds the per-(symbol, timeframe) key.
func SeriesKey(symbol string, tf Timeframe) string {
	return symbol + ":" + string(tf)
}

// Validate reports bars that cannot be fed to indicators.
func (b Bar) Validate() error {
	switch {
	case b.Symbol == "":
		return fmt.Errorf("bar: empty symbol")
	case b.Timeframe.Duration() == 0:
		return fmt.Errorf("bar %s: unknown timeframe %q", b.Symbol, b.Timeframe)
	case b.OpenTime.IsZero():
		return fmt.Errorf("bar %s: zero open_time", b.Key())
	case b.Close <= 0:
		return fmt.Errorf("bar %s: non-positive close %v", b.Key(), b.Close)
	}
	return nil
}
