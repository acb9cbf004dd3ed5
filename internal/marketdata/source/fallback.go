package source

import (
	"context"
	"log/slog"

	"coinstream/internal/model"
)

// FallbackSource calls Primary and substitutes Simulated for the current
// call when Primary fails. It never returns an error.
type FallbackSource struct {
	Primary   model.PriceSource
	Simulated *SimulatedSource
	Log       *slog.Logger

	// OnFallback is called for every substituted call (optional).
	OnFallback func(symbol, op string, err error)
}

// NewFallback wraps primary with sim.
func NewFallback(primary model.PriceSource, sim *SimulatedSource, log *slog.Logger) *FallbackSource {
	if log == nil {
		log = slog.Default()
	}
	return &FallbackSource{Primary: primary, Simulated: sim, Log: log}
}

func (f *FallbackSource) fellBack(symbol, op string, err error) {
	f.Log.Warn("price source failed, using simulated fallback",
		"symbol", symbol, "op", op, "error", err)
	if f.OnFallback != nil {
		f.OnFallback(symbol, op, err)
	}
}

func (f *FallbackSource) FetchPrice(ctx context.Context, symbol string) (model.Quote, error) {
	q, err := f.Primary.FetchPrice(ctx, symbol)
	if err == nil {
		f.Simulated.Anchor(symbol, q.Price)
		return q, nil
	}
	f.fellBack(symbol, "fetch_price", err)
	return f.Simulated.FetchPrice(ctx, symbol)
}

func (f *FallbackSource) FetchOHLCV(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Bar, error) {
	bars, err := f.Primary.FetchOHLCV(ctx, symbol, tf, limit)
	if err == nil && len(bars) > 0 {
		f.Simulated.Anchor(symbol, bars[len(bars)-1].Close)
		return bars, nil
	}
	if err == nil {
		err = ErrMalformed
	}
	f.fellBack(symbol, "fetch_ohlcv", err)
	return f.Simulated.FetchOHLCV(ctx, symbol, tf, limit)
}
