package indicator

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"coinstream/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func bar(symbol string, tf model.Timeframe, i int, close float64) model.Bar {
	return model.Bar{
		Symbol:    symbol,
		Timeframe: tf,
		OpenTime:  t0.Add(time.Duration(i) * tf.Duration()),
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Volume:    1,
	}
}

func TestEngine_SMA20Scenario(t *testing.T) {
	e := NewEngine()
	var snap model.IndicatorSnapshot
	var err error
	for i := 0; i < 20; i++ {
		snap, err = e.Ingest(bar("BTC", "1d", i, float64(10+i)))
		require.NoError(t, err)
	}

	require.NotNil(t, snap.SMA20)
	assertClose(t, "SMA20", *snap.SMA20, 19.5, 1e-9)
	assert.Nil(t, snap.SMA50)
	assert.Nil(t, snap.MACD)
	assert.NotNil(t, snap.EMA12)
	assert.Nil(t, snap.EMA26)
	assert.NotNil(t, snap.RSI)
	require.NotNil(t, snap.BBMiddle)
	assertClose(t, "BB middle", *snap.BBMiddle, 19.5, 1e-9)
}

func TestEngine_SMA20MatchesMeanOfLast20(t *testing.T) {
	e := NewEngine()
	rng := rand.New(rand.NewSource(7))
	var closes []float64
	price := 100.0

	for i := 0; i < 200; i++ {
		price *= 1 + (rng.Float64()-0.5)/50
		closes = append(closes, price)
		snap, err := e.Ingest(bar("ETH", "1h", i, price))
		require.NoError(t, err)

		if len(closes) < 20 {
			assert.Nil(t, snap.SMA20, "bar %d", i)
			continue
		}
		var sum float64
		for _, c := range closes[len(closes)-20:] {
			sum += c
		}
		require.NotNil(t, snap.SMA20, "bar %d", i)
		assertClose(t, "SMA20", *snap.SMA20, sum/20, 1e-9)
	}
}

func TestEngine_RSIAlwaysInRange(t *testing.T) {
	e := NewEngine()
	rng := rand.New(rand.NewSource(11))
	price := 50.0
	for i := 0; i < 500; i++ {
		price = math.Max(0.01, price+rng.NormFloat64())
		snap, err := e.Ingest(bar("SOL", "1m", i, price))
		require.NoError(t, err)
		if snap.RSI != nil {
			assert.GreaterOrEqual(t, *snap.RSI, 0.0)
			assert.LessOrEqual(t, *snap.RSI, 100.0)
		}
	}
}

func TestEngine_FullSnapshotAfter50Bars(t *testing.T) {
	e := NewEngine()
	var snap model.IndicatorSnapshot
	for i := 0; i < 50; i++ {
		var err error
		snap, err = e.Ingest(bar("ADA", "1d", i, 1+float64(i%7)/10))
		require.NoError(t, err)
	}
	for name, v := range map[string]*float64{
		"sma_20": snap.SMA20, "sma_50": snap.SMA50, "ema_12": snap.EMA12, "ema_26": snap.EMA26,
		"rsi": snap.RSI, "macd": snap.MACD, "macd_signal": snap.MACDSignal,
		"macd_histogram": snap.MACDHistogram, "bb_upper": snap.BBUpper, "bb_lower": snap.BBLower,
	} {
		assert.NotNil(t, v, name)
	}
}

func TestEngine_OnAcceptedSeesEveryAcceptedBar(t *testing.T) {
	var accepted []model.SeriesSnapshot
	e := NewEngine()
	e.OnAccepted = func(s model.SeriesSnapshot) { accepted = append(accepted, s) }

	for i := 0; i < 3; i++ {
		_, err := e.Ingest(bar("ETH", "1h", i, float64(10+i)))
		require.NoError(t, err)
	}
	_, err := e.Ingest(bar("ETH", "1h", 1, 50))
	require.ErrorIs(t, err, ErrStaleBar)

	require.Len(t, accepted, 3)
	assert.Equal(t, model.Timeframe("1h"), accepted[2].Timeframe)
	assert.Equal(t, 12.0, accepted[2].Close)
}

func TestEngine_RejectsStaleAndDuplicateBars(t *testing.T) {
	stale := 0
	e := NewEngine()
	e.OnStale = func(model.Bar) { stale++ }

	for i := 0; i < 30; i++ {
		_, err := e.Ingest(bar("BTC", "1m", i, float64(100+i)))
		require.NoError(t, err)
	}
	before, ok := e.Latest("BTC", "1m")
	require.True(t, ok)

	for _, b := range []model.Bar{
		bar("BTC", "1m", 29, 999), // duplicate open_time
		bar("BTC", "1m", 3, 1),    // out of order
	} {
		_, err := e.Ingest(b)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrStaleBar))
	}
	assert.Equal(t, 2, stale)

	after, _ := e.Latest("BTC", "1m")
	assert.Equal(t, before, after)

	// The next valid bar matches a reference engine that never saw the
	// rejected bars.
	ref := NewEngine()
	for i := 0; i < 30; i++ {
		_, _ = ref.Ingest(bar("BTC", "1m", i, float64(100+i)))
	}
	got, err := e.Ingest(bar("BTC", "1m", 30, 131))
	require.NoError(t, err)
	want, _ := ref.Ingest(bar("BTC", "1m", 30, 131))
	assert.Equal(t, want, got)
}

func TestEngine_KeysAreIndependent(t *testing.T) {
	e := NewEngine()
	_, err := e.Ingest(bar("BTC", "1m", 5, 10))
	require.NoError(t, err)

	// Earlier open_time on a different timeframe or symbol is fine.
	_, err = e.Ingest(bar("BTC", "1h", 0, 10))
	assert.NoError(t, err)
	_, err = e.Ingest(bar("ETH", "1m", 0, 10))
	assert.NoError(t, err)

	assert.Len(t, e.Snapshots(), 3)
}

func TestEngine_RejectsInvalidBar(t *testing.T) {
	e := NewEngine()
	_, err := e.Ingest(model.Bar{Symbol: "BTC", Timeframe: "1m", OpenTime: t0})
	assert.ErrorIs(t, err, ErrInvalidBar)

	_, ok := e.Latest("BTC", "1m")
	assert.False(t, ok)
}

func TestEngine_ConcurrentIngestPerKey(t *testing.T) {
	e := NewEngine()
	symbols := []string{"BTC", "ETH", "ADA", "SOL", "DOT", "LINK"}

	var wg sync.WaitGroup
	for _, sym := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, err := e.Ingest(bar(sym, "1m", i, float64(100+i%10)))
				assert.NoError(t, err)
			}
		}(sym)
	}
	wg.Wait()

	snaps := e.Snapshots()
	require.Len(t, snaps, len(symbols))
	for _, s := range snaps {
		assert.Equal(t, t0.Add(99*time.Minute), s.OpenTime)
	}
}

type fakeStore struct {
	bars  map[string][]model.Bar
	saved []model.Bar
}

func (f *fakeStore) SaveBar(_ context.Context, b model.Bar) error {
	f.saved = append(f.saved, b)
	return nil
}

func (f *fakeStore) SaveIndicatorSnapshot(context.Context, string, model.Timeframe, model.IndicatorSnapshot, time.Time) error {
	return nil
}

func (f *fakeStore) LoadRecentBars(_ context.Context, sym string, tf model.Timeframe, limit int) ([]model.Bar, error) {
	bars := f.bars[model.SeriesKey(sym, tf)]
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

type fakeSource struct {
	calls int
}

func (f *fakeSource) FetchPrice(context.Context, string) (model.Quote, error) {
	return model.Quote{}, errors.New("unused")
}

func (f *fakeSource) FetchOHLCV(_ context.Context, sym string, tf model.Timeframe, limit int) ([]model.Bar, error) {
	f.calls++
	out := make([]model.Bar, limit)
	for i := range out {
		out[i] = bar(sym, tf, i, float64(1+i))
	}
	return out, nil
}

func TestWarmup_PrefersStorage(t *testing.T) {
	stored := make([]model.Bar, 0, 60)
	for i := 0; i < 60; i++ {
		stored = append(stored, bar("BTC", "1d", i, float64(10+i)))
	}
	store := &fakeStore{bars: map[string][]model.Bar{"BTC:1d": stored}}
	src := &fakeSource{}
	e := NewEngine()

	w := &Warmup{Engine: e, Store: store, Source: src, Limit: 50}
	n := w.Run(context.Background(), []string{"BTC"}, []model.Timeframe{"1d"})

	assert.Equal(t, 50, n)
	assert.Zero(t, src.calls)
	latest, ok := e.Latest("BTC", "1d")
	require.True(t, ok)
	assert.Equal(t, 69.0, latest.Close)
	require.NotNil(t, latest.Indicators.SMA50)
}

func TestWarmup_FallsBackToSourceAndSaves(t *testing.T) {
	store := &fakeStore{bars: map[string][]model.Bar{}}
	src := &fakeSource{}
	e := NewEngine()

	w := &Warmup{Engine: e, Store: store, Source: src, Limit: 30}
	n := w.Run(context.Background(), []string{"ETH", "SOL"}, []model.Timeframe{"1h"})

	assert.Equal(t, 60, n)
	assert.Equal(t, 2, src.calls)
	assert.Len(t, store.saved, 60)
}
