package source

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"coinstream/internal/model"
)

// DefaultBasePrices seed the random walk for the default symbol set.
var DefaultBasePrices = map[string]float64{
	"BTC":  45000,
	"ETH":  3200,
	"ADA":  0.5,
	"SOL":  100,
	"DOT":  25,
	"LINK": 15,
}

const unknownBasePrice = 100

// SimulatedSource produces a deterministic random walk per symbol for a
// given seed. Each symbol draws from its own generator, so a symbol's walk
// does not depend on the order in which symbols are fetched. It never
// returns an error.
type SimulatedSource struct {
	mu     sync.Mutex
	seed   int64
	rngs   map[string]*rand.Rand
	prices map[string]float64
	base   map[string]float64
	now    func() time.Time
}

// NewSimulated creates a SimulatedSource. base overrides DefaultBasePrices
// per symbol; nil uses the defaults.
func NewSimulated(seed int64, base map[string]float64) *SimulatedSource {
	merged := make(map[string]float64, len(DefaultBasePrices)+len(base))
	for k, v := range DefaultBasePrices {
		merged[k] = v
	}
	for k, v := range base {
		if v > 0 {
			merged[strings.ToUpper(k)] = v
		}
	}
	return &SimulatedSource{
		seed:   seed,
		rngs:   make(map[string]*rand.Rand),
		prices: make(map[string]float64),
		base:   merged,
		now:    time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *SimulatedSource) WithClock(now func() time.Time) *SimulatedSource {
	s.now = now
	return s
}

// rng returns symbol's generator, seeded from the source seed and the
// symbol name. Callers hold s.mu.
func (s *SimulatedSource) rng(symbol string) *rand.Rand {
	if r, ok := s.rngs[symbol]; ok {
		return r
	}
	h := fnv.New64a()
	h.Write([]byte(symbol))
	r := rand.New(rand.NewSource(s.seed ^ int64(h.Sum64())))
	s.rngs[symbol] = r
	return r
}

func (s *SimulatedSource) current(symbol string) float64 {
	if p, ok := s.prices[symbol]; ok {
		return p
	}
	if p, ok := s.base[symbol]; ok {
		return p
	}
	return unknownBasePrice
}

// Anchor moves the walk for symbol to price, so a fallback continues
// from the last real reading rather than the base price.
func (s *SimulatedSource) Anchor(symbol string, price float64) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return
	}
	s.mu.Lock()
	s.prices[strings.ToUpper(symbol)] = price
	s.mu.Unlock()
}

// FetchPrice advances the walk by up to ±0.5% and returns the new price
// with a random 24h change in [-5, 5)% and volume in [1e5, 1e6).
func (s *SimulatedSource) FetchPrice(_ context.Context, symbol string) (model.Quote, error) {
	symbol = strings.ToUpper(symbol)

	s.mu.Lock()
	rng := s.rng(symbol)
	price := s.current(symbol) * (1 + (rng.Float64()-0.5)/100)
	s.prices[symbol] = price
	change := rng.Float64()*10 - 5
	volume := 1e5 + rng.Float64()*9e5
	s.mu.Unlock()

	return model.Quote{
		Symbol:    symbol,
		Price:     price,
		Change24h: change,
		Volume24h: volume,
		Timestamp: s.now().UTC(),
		Source:    "simulated",
	}, nil
}

// FetchOHLCV generates limit closed bars ending just before the current
// bucket, walking backwards so the newest close sits at the current price.
// Log returns are drawn from N(0.001, 0.02).
func (s *SimulatedSource) FetchOHLCV(_ context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Bar, error) {
	if limit <= 0 || tf.Duration() <= 0 {
		return nil, nil
	}
	symbol = strings.ToUpper(symbol)
	d := tf.Duration()
	firstOpen := tf.BucketStart(s.now()).Add(-time.Duration(limit) * d)

	s.mu.Lock()
	defer s.mu.Unlock()
	rng := s.rng(symbol)

	closes := make([]float64, limit)
	price := s.current(symbol)
	for i := limit - 1; i >= 0; i-- {
		closes[i] = price
		ret := rng.NormFloat64()*0.02 + 0.001
		price /= math.Exp(ret)
	}

	bars := make([]model.Bar, limit)
	open := price
	for i, c := range closes {
		spread := math.Abs(rng.NormFloat64()) * 0.005
		hi := math.Max(open, c) * (1 + spread)
		lo := math.Min(open, c) * (1 - spread)
		bars[i] = model.Bar{
			Symbol:    symbol,
			Timeframe: tf,
			OpenTime:  firstOpen.Add(time.Duration(i) * d),
			Open:      open,
			High:      hi,
			Low:       lo,
			Close:     c,
			Volume:    1000 + rng.Float64()*9000,
		}
		open = c
	}
	return bars, nil
}
