package indicator

import (
	"context"
	"errors"
	"log/slog"

	"coinstream/internal/model"
)

// Warmup seeds an Engine before live ingestion starts. For each series it
// replays stored bars; a series with no stored history is backfilled from
// the PriceSource and the fetched bars are saved.
type Warmup struct {
	Engine *Engine
	Store  model.BarStore     // optional
	Source model.PriceSource  // optional
	Limit  int
	Log    *slog.Logger
}

// Run warms every (symbol, timeframe) pair and returns the number of bars
// ingested. Per-series failures are logged and skipped.
func (w *Warmup) Run(ctx context.Context, symbols []string, tfs []model.Timeframe) int {
	log := w.Log
	if log == nil {
		log = slog.Default()
	}
	limit := w.Limit
	if limit <= 0 {
		limit = WindowCapacity
	}

	total := 0
	for _, sym := range symbols {
		for _, tf := range tfs {
			if ctx.Err() != nil {
				return total
			}
			n, origin, err := w.warmSeries(ctx, sym, tf, limit)
			if err != nil {
				log.Warn("indicator warmup failed", "symbol", sym, "timeframe", tf, "error", err)
				continue
			}
			log.Info("indicator warmup", "symbol", sym, "timeframe", tf, "bars", n, "origin", origin)
			total += n
		}
	}
	return total
}

func (w *Warmup) warmSeries(ctx context.Context, sym string, tf model.Timeframe, limit int) (int, string, error) {
	var (
		bars   []model.Bar
		origin = "storage"
		err    error
	)
	if w.Store != nil {
		bars, err = w.Store.LoadRecentBars(ctx, sym, tf, limit)
		if err != nil {
			return 0, origin, err
		}
	}

	if len(bars) == 0 && w.Source != nil {
		origin = "source"
		bars, err = w.Source.FetchOHLCV(ctx, sym, tf, limit)
		if err != nil {
			return 0, origin, err
		}
		if w.Store != nil {
			for _, b := range bars {
				if err := w.Store.SaveBar(ctx, b); err != nil {
					return 0, origin, err
				}
			}
		}
	}

	n := 0
	for _, b := range bars {
		if _, err := w.Engine.Ingest(b); err != nil {
			if errors.Is(err, ErrStaleBar) {
				continue
			}
			return n, origin, err
		}
		n++
	}
	return n, origin, nil
}
