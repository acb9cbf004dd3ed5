package source

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"coinstream/internal/model"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const baseURLProduction = "https://fapi.binance.com"

// LiveConfig configures a LiveSource.
type LiveConfig struct {
	BaseURL    string        // defaults to the production futures endpoint
	QuoteAsset string        // appended to symbols, e.g. "USDT"
	Timeout    time.Duration // per request; keep below the tick interval
}

// LiveSource reads public market data from Binance futures. No API key is
// needed for the endpoints it uses.
type LiveSource struct {
	client  *futures.Client
	quote   string
	timeout time.Duration
	now     func() time.Time
}

// NewLive creates a LiveSource.
func NewLive(cfg LiveConfig) *LiveSource {
	client := futures.NewClient("", "")
	client.BaseURL = baseURLProduction
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 4 * time.Second
	}
	return &LiveSource{
		client:  client,
		quote:   strings.ToUpper(cfg.QuoteAsset),
		timeout: cfg.Timeout,
		now:     time.Now,
	}
}

func (s *LiveSource) pair(symbol string) string {
	return strings.ToUpper(symbol) + s.quote
}

// FetchPrice returns the last price with 24h change (percent) and 24h
// quote volume.
func (s *LiveSource) FetchPrice(ctx context.Context, symbol string) (model.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stats, err := s.client.NewListPriceChangeStatsService().Symbol(s.pair(symbol)).Do(ctx)
	if err != nil {
		return model.Quote{}, wrapUpstream("FetchPrice", err)
	}
	if len(stats) == 0 || stats[0] == nil {
		return model.Quote{}, fmt.Errorf("FetchPrice %s: %w: empty ticker response", symbol, ErrMalformed)
	}

	st := stats[0]
	price, err := parseFloat(st.LastPrice)
	if err != nil || price <= 0 {
		return model.Quote{}, fmt.Errorf("FetchPrice %s: %w: last price %q", symbol, ErrMalformed, st.LastPrice)
	}
	change, err := parseFloat(st.PriceChangePercent)
	if err != nil {
		return model.Quote{}, fmt.Errorf("FetchPrice %s: %w: change %q", symbol, ErrMalformed, st.PriceChangePercent)
	}
	volume, err := parseFloat(st.QuoteVolume)
	if err != nil {
		return model.Quote{}, fmt.Errorf("FetchPrice %s: %w: volume %q", symbol, ErrMalformed, st.QuoteVolume)
	}

	return model.Quote{
		Symbol:    strings.ToUpper(symbol),
		Price:     price,
		Change24h: change,
		Volume24h: volume,
		Timestamp: s.now().UTC(),
		Source:    "live",
	}, nil
}

// FetchOHLCV returns up to limit closed klines, oldest first. The still
// forming kline Binance appends last is dropped.
func (s *LiveSource) FetchOHLCV(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Bar, error) {
	if limit <= 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	klines, err := s.client.NewKlinesService().
		Symbol(s.pair(symbol)).
		Interval(string(tf)).
		Limit(limit + 1).
		Do(ctx)
	if err != nil {
		return nil, wrapUpstream("FetchOHLCV", err)
	}

	now := s.now()
	bars := make([]model.Bar, 0, len(klines))
	for _, k := range klines {
		if k == nil {
			continue
		}
		if time.UnixMilli(k.CloseTime).After(now) {
			continue
		}
		b, err := translateKline(k, strings.ToUpper(symbol), tf)
		if err != nil {
			return nil, fmt.Errorf("FetchOHLCV %s: %w", symbol, err)
		}
		bars = append(bars, b)
	}
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

func translateKline(k *futures.Kline, symbol string, tf model.Timeframe) (model.Bar, error) {
	fields := []string{k.Open, k.High, k.Low, k.Close, k.Volume}
	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := parseFloat(f)
		if err != nil {
			return model.Bar{}, fmt.Errorf("%w: kline field %q", ErrMalformed, f)
		}
		vals[i] = v
	}
	return model.Bar{
		Symbol:    symbol,
		Timeframe: tf,
		OpenTime:  time.UnixMilli(k.OpenTime).UTC(),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func wrapUpstream(op string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w: api code %d: %s", op, ErrUpstream, apiErr.Code, apiErr.Message)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUpstream, err)
}
