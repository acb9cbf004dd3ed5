package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"coinstream/internal/indicator"
	"coinstream/internal/logger"
	"coinstream/internal/marketdata/tfbuilder"
	"coinstream/internal/model"
)

// Publisher delivers an event to a topic's subscribers.
type Publisher interface {
	Publish(topic string, ev model.Event) (int, error)
}

// AlertChecker evaluates alerts for a new price.
type AlertChecker interface {
	Evaluate(ctx context.Context, symbol string, price float64) ([]model.AlertSpec, error)
}

// PriceTickConfig wires a PriceTicker. Store and Alerts may be nil.
type PriceTickConfig struct {
	Symbols   []string
	Source    model.PriceSource
	Builder   *tfbuilder.Builder
	Engine    *indicator.Engine
	Store     model.BarStore
	Alerts    AlertChecker
	Publisher Publisher
	Interval  time.Duration
	Timeout   time.Duration
	Log       *slog.Logger
}

// PriceTicker is the price tick job. Each run fetches one quote per
// symbol, folds it into the forming bars, pushes closed bars through the
// indicator engine and storage, evaluates alerts and publishes the quote.
type PriceTicker struct {
	symbols  []string
	source   model.PriceSource
	builder  *tfbuilder.Builder
	engine   *indicator.Engine
	store    model.BarStore
	alerts   AlertChecker
	pub      Publisher
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger

	mu     sync.RWMutex
	quotes map[string]model.Quote

	// Hooks (optional)
	OnQuote      func(q model.Quote)
	OnBar        func(b model.Bar)
	OnStoreError func(op string, err error)
}

// NewPriceTicker creates the price tick job.
func NewPriceTicker(cfg PriceTickConfig) *PriceTicker {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 4 * time.Second
	}
	return &PriceTicker{
		symbols:  cfg.Symbols,
		source:   cfg.Source,
		builder:  cfg.Builder,
		engine:   cfg.Engine,
		store:    cfg.Store,
		alerts:   cfg.Alerts,
		pub:      cfg.Publisher,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		log:      cfg.Log.With("component", "price_tick"),
		quotes:   make(map[string]model.Quote, len(cfg.Symbols)),
	}
}

type fetchResult struct {
	quote model.Quote
	err   error
}

// Run performs one tick. Symbols are fetched concurrently, each bounded by
// the configured timeout, then processed in configured order.
func (p *PriceTicker) Run(ctx context.Context) error {
	results := make([]fetchResult, len(p.symbols))
	var wg sync.WaitGroup
	for i, sym := range p.symbols {
		wg.Add(1)
		go func(i int, sym string) {
			defer wg.Done()
			fctx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			q, err := p.source.FetchPrice(fctx, sym)
			results[i] = fetchResult{quote: q, err: err}
		}(i, sym)
	}
	wg.Wait()

	var errs []error
	for i, sym := range p.symbols {
		if err := results[i].err; err != nil {
			p.log.Warn("price unavailable", append(logger.Attrs(ctx), "symbol", sym, "error", err)...)
			errs = append(errs, fmt.Errorf("%s: %w", sym, err))
			continue
		}
		p.process(ctx, results[i].quote)
	}
	return errors.Join(errs...)
}

func (p *PriceTicker) process(ctx context.Context, q model.Quote) {
	p.mu.Lock()
	p.quotes[q.Symbol] = q
	p.mu.Unlock()
	if p.OnQuote != nil {
		p.OnQuote(q)
	}

	for _, bar := range p.builder.Observe(q.Symbol, q.Price, p.tickVolume(q), q.Timestamp) {
		p.closeBar(ctx, bar)
	}

	if p.alerts != nil {
		if _, err := p.alerts.Evaluate(ctx, q.Symbol, q.Price); err != nil {
			p.log.Error("alert evaluation failed", append(logger.Attrs(ctx), "symbol", q.Symbol, "error", err)...)
		}
	}

	if _, err := p.pub.Publish(model.PriceTopic(q.Symbol), model.Event{Name: model.EventPriceUpdate, Data: q}); err != nil {
		p.log.Error("publish price failed", "symbol", q.Symbol, "error", err)
	}
}

// tickVolume apportions the 24h volume to one tick interval.
func (p *PriceTicker) tickVolume(q model.Quote) float64 {
	if p.interval <= 0 || q.Volume24h <= 0 {
		return 0
	}
	return q.Volume24h * p.interval.Seconds() / (24 * time.Hour).Seconds()
}

func (p *PriceTicker) closeBar(ctx context.Context, bar model.Bar) {
	snap, err := p.engine.Ingest(bar)
	if err != nil {
		p.log.Debug("bar not ingested", "key", bar.Key(), "error", err)
		return
	}
	if p.OnBar != nil {
		p.OnBar(bar)
	}

	if p.store != nil {
		if err := p.store.SaveBar(ctx, bar); err != nil {
			p.storeError("save_bar", err)
		}
		if err := p.store.SaveIndicatorSnapshot(ctx, bar.Symbol, bar.Timeframe, snap, bar.OpenTime); err != nil {
			p.storeError("save_indicator_snapshot", err)
		}
	}

	payload := model.SeriesSnapshot{
		Symbol:     bar.Symbol,
		Timeframe:  bar.Timeframe,
		OpenTime:   bar.OpenTime,
		Close:      bar.Close,
		Indicators: snap,
	}
	if _, err := p.pub.Publish(model.PriceTopic(bar.Symbol), model.Event{Name: model.EventIndicatorUpdate, Data: payload}); err != nil {
		p.log.Error("publish indicators failed", "key", bar.Key(), "error", err)
	}
}

func (p *PriceTicker) storeError(op string, err error) {
	p.log.Error("store write failed", "op", op, "error", err)
	if p.OnStoreError != nil {
		p.OnStoreError(op, err)
	}
}

// LatestQuotes returns the last quote per symbol in configured order.
func (p *PriceTicker) LatestQuotes() []model.Quote {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]model.Quote, 0, len(p.quotes))
	for _, sym := range p.symbols {
		if q, ok := p.quotes[sym]; ok {
			out = append(out, q)
		}
	}
	return out
}
