package indicator

import (
	"time"

	"coinstream/internal/model"
	"coinstream/internal/ringbuf"
)

// State is the rolling indicator state of one (symbol, timeframe) series.
// It is not safe for concurrent use; Engine serialises access per key.
type State struct {
	closes   *ringbuf.Window
	sma20    *SMA
	sma50    *SMA
	ema12    *EMA
	ema26    *EMA
	rsi      *RSI
	macd     *MACD
	lastOpen time.Time
	bars     int
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		closes: ringbuf.New(WindowCapacity),
		sma20:  NewSMA(SMAShort),
		sma50:  NewSMA(SMALong),
		ema12:  NewEMA(EMAFast),
		ema26:  NewEMA(EMASlow),
		rsi:    NewRSI(RSIPeriod),
		macd:   NewMACD(EMAFast, EMASlow, SignalPeriod),
	}
}

// Apply feeds bar into the state. A bar not strictly after the last
// accepted open_time returns ErrStaleBar and leaves the state unchanged.
func (s *State) Apply(bar model.Bar) (model.IndicatorSnapshot, error) {
	if s.bars > 0 && !bar.OpenTime.After(s.lastOpen) {
		return model.IndicatorSnapshot{}, ErrStaleBar
	}

	c := bar.Close
	s.closes.Push(c)
	s.sma20.Update(c)
	s.sma50.Update(c)
	s.ema12.Update(c)
	s.ema26.Update(c)
	s.rsi.Update(c)
	s.macd.Update(c)

	s.lastOpen = bar.OpenTime
	s.bars++
	return s.Snapshot(), nil
}

// Snapshot derives the current indicator values. Unready values are nil.
func (s *State) Snapshot() model.IndicatorSnapshot {
	var snap model.IndicatorSnapshot
	if s.sma20.Ready() {
		snap.SMA20 = model.Float(s.sma20.Value())
	}
	if s.sma50.Ready() {
		snap.SMA50 = model.Float(s.sma50.Value())
	}
	if s.ema12.Ready() {
		snap.EMA12 = model.Float(s.ema12.Value())
	}
	if s.ema26.Ready() {
		snap.EMA26 = model.Float(s.ema26.Value())
	}
	if s.rsi.Ready() {
		snap.RSI = model.Float(s.rsi.Value())
	}
	if s.macd.Ready() {
		snap.MACD = model.Float(s.macd.Value())
		if sig, ok := s.macd.Signal(); ok {
			hist, _ := s.macd.Histogram()
			snap.MACDSignal = model.Float(sig)
			snap.MACDHistogram = model.Float(hist)
		}
	}
	if b, ok := Bollinger(s.closes, BBPeriod, BBStdDevs); ok {
		snap.BBUpper = model.Float(b.Upper)
		snap.BBMiddle = model.Float(b.Middle)
		snap.BBLower = model.Float(b.Lower)
	}
	return snap
}

// LastOpen returns the open_time of the last accepted bar.
func (s *State) LastOpen() time.Time { return s.lastOpen }

// Bars returns the number of accepted bars.
func (s *State) Bars() int { return s.bars }
