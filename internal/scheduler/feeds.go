package scheduler

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"coinstream/internal/model"
)

// QuoteLister returns the latest quote per symbol.
type QuoteLister interface {
	LatestQuotes() []model.Quote
}

// IndicatorLookup reads the latest indicator snapshot of a series.
type IndicatorLookup interface {
	Latest(symbol string, tf model.Timeframe) (model.SeriesSnapshot, bool)
}

// OverviewEntry is one row of the market_overview payload.
type OverviewEntry struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change_24h"`
	Volume24h float64 `json:"volume_24h"`
}

// MarketOverview is the market_overview payload.
type MarketOverview struct {
	Overview  []OverviewEntry `json:"overview"`
	Timestamp time.Time       `json:"timestamp"`
}

// Sentiment is the sentiment_update payload.
type Sentiment struct {
	FearGreedIndex          int       `json:"fear_greed_index"`
	FearGreedClassification string    `json:"fear_greed_classification"`
	NewsSentiment           float64   `json:"news_sentiment"`
	SocialSentiment         float64   `json:"social_sentiment"`
	Timestamp               time.Time `json:"timestamp"`
}

// News is the news_update payload.
type News struct {
	Headline  string    `json:"headline"`
	Sentiment string    `json:"sentiment"`
	Impact    string    `json:"impact"`
	Timestamp time.Time `json:"timestamp"`
}

// TrendSignal compares the short and long SMA of one series.
type TrendSignal struct {
	Symbol    string          `json:"symbol"`
	Timeframe model.Timeframe `json:"timeframe"`
	Signal    string          `json:"signal"` // bullish | bearish
	SMA20     float64         `json:"sma_20"`
	SMA50     float64         `json:"sma_50"`

	// Cross is "golden_cross" or "death_cross" when the signal flipped
	// since the previous strategy update.
	Cross string `json:"cross,omitempty"`
}

// StrategyUpdate is the strategy_update payload.
type StrategyUpdate struct {
	StrategyName      string        `json:"strategy_name"`
	PerformanceChange float64       `json:"performance_change"`
	Message           string        `json:"message"`
	Signals           []TrendSignal `json:"signals"`
	Timestamp         time.Time     `json:"timestamp"`
}

var (
	newsHeadlines = []string{
		"Bitcoin ETF approval rumors circulating",
		"Ethereum network upgrade shows promising results",
		"Major institution announces crypto adoption",
		"Regulatory clarity improves market sentiment",
		"DeFi protocol launches innovative features",
	}
	newsSentiments = []string{"positive", "neutral", "negative"}
	newsImpacts    = []string{"low", "medium", "high"}

	strategyNames    = []string{"DCA Bitcoin", "Momentum Trading", "Mean Reversion"}
	strategyOutcomes = []string{"outperforming", "underperforming", "meeting"}
)

// FeedConfig wires the non-price jobs.
type FeedConfig struct {
	Symbols    []string
	Timeframe  model.Timeframe // series read for RSI and SMA signals
	Quotes     QuoteLister
	Indicators IndicatorLookup
	Publisher  Publisher
	Seed       int64
}

// Feeds produces the market overview, sentiment, news and strategy events.
type Feeds struct {
	symbols    []string
	tf         model.Timeframe
	quotes     QuoteLister
	indicators IndicatorLookup
	pub        Publisher
	now        func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	trendMu   sync.Mutex
	prevTrend map[string]bool // series key -> SMA20 above SMA50
}

// NewFeeds creates the feed jobs.
func NewFeeds(cfg FeedConfig) *Feeds {
	return &Feeds{
		symbols:    cfg.Symbols,
		tf:         cfg.Timeframe,
		quotes:     cfg.Quotes,
		indicators: cfg.Indicators,
		pub:        cfg.Publisher,
		now:        time.Now,
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		prevTrend:  make(map[string]bool),
	}
}

func (f *Feeds) uniform(lo, hi float64) float64 {
	f.rngMu.Lock()
	defer f.rngMu.Unlock()
	return lo + f.rng.Float64()*(hi-lo)
}

func (f *Feeds) pick(options []string) string {
	f.rngMu.Lock()
	defer f.rngMu.Unlock()
	return options[f.rng.Intn(len(options))]
}

func (f *Feeds) intn(lo, hi int) int {
	f.rngMu.Lock()
	defer f.rngMu.Unlock()
	return lo + f.rng.Intn(hi-lo+1)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// Overview publishes market_overview from the latest quotes. It is a
// no-op until the first price tick has run.
func (f *Feeds) Overview(_ context.Context) error {
	quotes := f.quotes.LatestQuotes()
	if len(quotes) == 0 {
		return nil
	}
	entries := make([]OverviewEntry, len(quotes))
	for i, q := range quotes {
		entries[i] = OverviewEntry{
			Symbol:    q.Symbol,
			Price:     round2(q.Price),
			Change24h: round2(q.Change24h),
			Volume24h: q.Volume24h,
		}
	}
	_, err := f.pub.Publish(model.TopicMarket, model.Event{
		Name: model.EventMarketOverview,
		Data: MarketOverview{Overview: entries, Timestamp: f.now().UTC()},
	})
	return err
}

// Sentiment publishes sentiment_update. The fear/greed index is the mean
// RSI across tracked symbols when any is available, else a random value
// in [20, 80].
func (f *Feeds) Sentiment(_ context.Context) error {
	index, ok := f.meanRSI()
	if !ok {
		index = f.intn(20, 80)
	}
	_, err := f.pub.Publish(model.TopicSentiment, model.Event{
		Name: model.EventSentimentUpdate,
		Data: Sentiment{
			FearGreedIndex:          index,
			FearGreedClassification: classifyFearGreed(index),
			NewsSentiment:           f.uniform(-0.5, 0.5),
			SocialSentiment:         f.uniform(-0.3, 0.3),
			Timestamp:               f.now().UTC(),
		},
	})
	return err
}

func (f *Feeds) meanRSI() (int, bool) {
	if f.indicators == nil {
		return 0, false
	}
	var sum float64
	var n int
	for _, sym := range f.symbols {
		s, ok := f.indicators.Latest(sym, f.tf)
		if !ok || s.Indicators.RSI == nil {
			continue
		}
		sum += *s.Indicators.RSI
		n++
	}
	if n == 0 {
		return 0, false
	}
	return int(math.Round(sum / float64(n))), true
}

func classifyFearGreed(index int) string {
	switch {
	case index < 40:
		return "Fear"
	case index > 60:
		return "Greed"
	default:
		return "Neutral"
	}
}

// News publishes news_update.
func (f *Feeds) News(_ context.Context) error {
	_, err := f.pub.Publish(model.TopicNews, model.Event{
		Name: model.EventNewsUpdate,
		Data: News{
			Headline:  f.pick(newsHeadlines),
			Sentiment: f.pick(newsSentiments),
			Impact:    f.pick(newsImpacts),
			Timestamp: f.now().UTC(),
		},
	})
	return err
}

// Strategy publishes strategy_update with SMA-20/SMA-50 trend signals for
// every series whose long window is full.
func (f *Feeds) Strategy(_ context.Context) error {
	_, err := f.pub.Publish(model.TopicStrategy, model.Event{
		Name: model.EventStrategyUpdate,
		Data: StrategyUpdate{
			StrategyName:      f.pick(strategyNames),
			PerformanceChange: round2(f.uniform(-2, 3)),
			Message:           "Strategy performance updated: " + f.pick(strategyOutcomes) + " expectations",
			Signals:           f.trendSignals(),
			Timestamp:         f.now().UTC(),
		},
	})
	return err
}

func (f *Feeds) trendSignals() []TrendSignal {
	signals := []TrendSignal{}
	if f.indicators == nil {
		return signals
	}
	f.trendMu.Lock()
	defer f.trendMu.Unlock()
	for _, sym := range f.symbols {
		s, ok := f.indicators.Latest(sym, f.tf)
		if !ok || s.Indicators.SMA20 == nil || s.Indicators.SMA50 == nil {
			continue
		}
		sig := TrendSignal{
			Symbol:    sym,
			Timeframe: f.tf,
			Signal:    "bearish",
			SMA20:     *s.Indicators.SMA20,
			SMA50:     *s.Indicators.SMA50,
		}
		bullish := sig.SMA20 > sig.SMA50
		if bullish {
			sig.Signal = "bullish"
		}

		key := model.SeriesKey(sym, f.tf)
		if prev, seen := f.prevTrend[key]; seen && prev != bullish {
			sig.Cross = "death_cross"
			if bullish {
				sig.Cross = "golden_cross"
			}
		}
		f.prevTrend[key] = bullish
		signals = append(signals, sig)
	}
	return signals
}
