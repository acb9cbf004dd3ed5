package indicator

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"coinstream/internal/model"
)

// series is one shard: the state for a key plus its own lock, so
// ingestion for different keys never contends.
type series struct {
	mu     sync.Mutex
	state  *State
	latest model.SeriesSnapshot
}

// Engine owns the indicator state of every (symbol, timeframe).
// Safe for concurrent use; writers for distinct keys run in parallel.
type Engine struct {
	mu     sync.RWMutex
	series map[string]*series

	// Metrics hooks (optional)
	OnStale    func(bar model.Bar)
	OnAccepted func(snap model.SeriesSnapshot)
}

// NewEngine creates an empty engine.
func NewEngine() *Engine {
	return &Engine{series: make(map[string]*series, 64)}
}

func (e *Engine) shard(key string) *series {
	e.mu.RLock()
	s, ok := e.series[key]
	e.mu.RUnlock()
	if ok {
		return s
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok = e.series[key]; !ok {
		s = &series{state: NewState()}
		e.series[key] = s
	}
	return s
}

// Ingest applies bar to its series and returns the resulting snapshot.
// Stale or duplicate bars return an error wrapping ErrStaleBar and leave
// the state untouched.
func (e *Engine) Ingest(bar model.Bar) (model.IndicatorSnapshot, error) {
	if err := bar.Validate(); err != nil {
		return model.IndicatorSnapshot{}, fmt.Errorf("%w: %v", ErrInvalidBar, err)
	}

	s := e.shard(bar.Key())
	s.mu.Lock()
	last := s.state.LastOpen()
	snap, err := s.state.Apply(bar)
	if err != nil {
		s.mu.Unlock()
		if e.OnStale != nil {
			e.OnStale(bar)
		}
		return snap, fmt.Errorf("%w: %s open_time %s not after %s",
			err, bar.Key(), bar.OpenTime.Format(time.RFC3339), last.Format(time.RFC3339))
	}
	s.latest = model.SeriesSnapshot{
		Symbol:     bar.Symbol,
		Timeframe:  bar.Timeframe,
		OpenTime:   bar.OpenTime,
		Close:      bar.Close,
		Indicators: snap,
	}
	latest := s.latest
	s.mu.Unlock()

	if e.OnAccepted != nil {
		e.OnAccepted(latest)
	}
	return snap, nil
}

// Latest returns the most recent snapshot for a series.
func (e *Engine) Latest(symbol string, tf model.Timeframe) (model.SeriesSnapshot, bool) {
	e.mu.RLock()
	s, ok := e.series[model.SeriesKey(symbol, tf)]
	e.mu.RUnlock()
	if !ok {
		return model.SeriesSnapshot{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Bars() == 0 {
		return model.SeriesSnapshot{}, false
	}
	return s.latest, true
}

// Snapshots returns the latest snapshot of every series, sorted by key.
func (e *Engine) Snapshots() []model.SeriesSnapshot {
	e.mu.RLock()
	keys := make([]string, 0, len(e.series))
	shards := make(map[string]*series, len(e.series))
	for k, s := range e.series {
		keys = append(keys, k)
		shards[k] = s
	}
	e.mu.RUnlock()

	sort.Strings(keys)
	out := make([]model.SeriesSnapshot, 0, len(keys))
	for _, k := range keys {
		s := shards[k]
		s.mu.Lock()
		if s.state.Bars() > 0 {
			out = append(out, s.latest)
		}
		s.mu.Unlock()
	}
	return out
}
