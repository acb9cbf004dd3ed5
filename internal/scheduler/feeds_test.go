package scheduler

import (
	"context"
	"testing"
	"time"

	"coinstream/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quoteList []model.Quote

func (q quoteList) LatestQuotes() []model.Quote { return q }

func newTestFeeds(quotes quoteList, ind IndicatorLookup) (*Feeds, *fakePublisher) {
	pub := &fakePublisher{}
	f := NewFeeds(FeedConfig{
		Symbols:    []string{"BTC", "ETH"},
		Timeframe:  "1h",
		Quotes:     quotes,
		Indicators: ind,
		Publisher:  pub,
		Seed:       7,
	})
	f.now = func() time.Time { return t0 }
	return f, pub
}

func TestOverview_SkipsUntilFirstQuote(t *testing.T) {
	f, pub := newTestFeeds(nil, nil)
	require.NoError(t, f.Overview(context.Background()))
	assert.Empty(t, pub.all())
}

func TestOverview_RoundsPrices(t *testing.T) {
	f, pub := newTestFeeds(quoteList{
		{Symbol: "BTC", Price: 50000.126, Change24h: 1.499, Volume24h: 12345},
		{Symbol: "ETH", Price: 3000, Change24h: -2.5},
	}, nil)
	require.NoError(t, f.Overview(context.Background()))

	require.Equal(t, []string{"market market_overview"}, pub.names())
	ov := pub.all()[0].data.(MarketOverview)
	require.Len(t, ov.Overview, 2)
	assert.Equal(t, OverviewEntry{Symbol: "BTC", Price: 50000.13, Change24h: 1.5, Volume24h: 12345}, ov.Overview[0])
	assert.Equal(t, t0, ov.Timestamp)
}

func TestSentiment_FromMeanRSI(t *testing.T) {
	f, pub := newTestFeeds(nil, staticIndicators{
		"BTC:1h": {Indicators: model.IndicatorSnapshot{RSI: model.Float(70)}},
		"ETH:1h": {Indicators: model.IndicatorSnapshot{RSI: model.Float(81)}},
	})
	require.NoError(t, f.Sentiment(context.Background()))

	s := pub.all()[0].data.(Sentiment)
	assert.Equal(t, "sentiment", pub.all()[0].topic)
	assert.Equal(t, 76, s.FearGreedIndex)
	assert.Equal(t, "Greed", s.FearGreedClassification)
	assert.GreaterOrEqual(t, s.NewsSentiment, -0.5)
	assert.Less(t, s.NewsSentiment, 0.5)
	assert.GreaterOrEqual(t, s.SocialSentiment, -0.3)
	assert.Less(t, s.SocialSentiment, 0.3)
}

func TestSentiment_RandomWithoutIndicators(t *testing.T) {
	f, pub := newTestFeeds(nil, staticIndicators{})
	for i := 0; i < 50; i++ {
		require.NoError(t, f.Sentiment(context.Background()))
	}
	for _, p := range pub.all() {
		s := p.data.(Sentiment)
		assert.GreaterOrEqual(t, s.FearGreedIndex, 20)
		assert.LessOrEqual(t, s.FearGreedIndex, 80)
		assert.Equal(t, classifyFearGreed(s.FearGreedIndex), s.FearGreedClassification)
	}
}

func TestClassifyFearGreed(t *testing.T) {
	assert.Equal(t, "Fear", classifyFearGreed(39))
	assert.Equal(t, "Neutral", classifyFearGreed(40))
	assert.Equal(t, "Neutral", classifyFearGreed(60))
	assert.Equal(t, "Greed", classifyFearGreed(61))
}

func TestNews_PicksFromCatalog(t *testing.T) {
	f, pub := newTestFeeds(nil, nil)
	require.NoError(t, f.News(context.Background()))

	n := pub.all()[0].data.(News)
	assert.Equal(t, "news", pub.all()[0].topic)
	assert.Contains(t, newsHeadlines, n.Headline)
	assert.Contains(t, newsSentiments, n.Sentiment)
	assert.Contains(t, newsImpacts, n.Impact)
}

func TestStrategy_TrendSignals(t *testing.T) {
	f, pub := newTestFeeds(nil, staticIndicators{
		"BTC:1h": {Indicators: model.IndicatorSnapshot{SMA20: model.Float(51000), SMA50: model.Float(50000)}},
		"ETH:1h": {Indicators: model.IndicatorSnapshot{SMA20: model.Float(2900)}},
	})
	require.NoError(t, f.Strategy(context.Background()))

	s := pub.all()[0].data.(StrategyUpdate)
	assert.Contains(t, strategyNames, s.StrategyName)
	assert.GreaterOrEqual(t, s.PerformanceChange, -2.0)
	assert.LessOrEqual(t, s.PerformanceChange, 3.0)
	assert.Contains(t, s.Message, "Strategy performance updated: ")
	assert.Equal(t, []TrendSignal{{Symbol: "BTC", Timeframe: "1h", Signal: "bullish", SMA20: 51000, SMA50: 50000}}, s.Signals)
}

func TestStrategy_EmptySignalsEncodeAsArray(t *testing.T) {
	f, pub := newTestFeeds(nil, nil)
	require.NoError(t, f.Strategy(context.Background()))
	assert.Equal(t, []any{}, decode(pub.all()[0].data)["signals"])
}

func TestStrategy_ReportsCrossOnFlip(t *testing.T) {
	ind := staticIndicators{
		"BTC:1h": {Indicators: model.IndicatorSnapshot{SMA20: model.Float(49000), SMA50: model.Float(50000)}},
	}
	f, pub := newTestFeeds(nil, ind)

	require.NoError(t, f.Strategy(context.Background()))
	require.NoError(t, f.Strategy(context.Background()))
	ind["BTC:1h"] = model.SeriesSnapshot{Indicators: model.IndicatorSnapshot{SMA20: model.Float(50500), SMA50: model.Float(50000)}}
	require.NoError(t, f.Strategy(context.Background()))
	ind["BTC:1h"] = model.SeriesSnapshot{Indicators: model.IndicatorSnapshot{SMA20: model.Float(49500), SMA50: model.Float(50000)}}
	require.NoError(t, f.Strategy(context.Background()))

	var crosses []string
	for _, p := range pub.all() {
		crosses = append(crosses, p.data.(StrategyUpdate).Signals[0].Cross)
	}
	assert.Equal(t, []string{"", "", "golden_cross", "death_cross"}, crosses)
}
