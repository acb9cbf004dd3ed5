package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"coinstream/internal/model"
)

type published struct {
	topic string
	event string
	data  any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *fakePublisher) Publish(topic string, ev model.Event) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{topic: topic, event: ev.Name, data: ev.Data})
	return 1, nil
}

func (p *fakePublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.events...)
}

func (p *fakePublisher) names() []string {
	var out []string
	for _, e := range p.all() {
		out = append(out, e.topic+" "+e.event)
	}
	return out
}

// decode round-trips a payload through JSON, the way clients see it.
func decode(v any) map[string]any {
	raw, _ := json.Marshal(v)
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	return m
}

// scriptedSource returns queued quotes per symbol, one per call.
type scriptedSource struct {
	mu     sync.Mutex
	quotes map[string][]model.Quote
	fail   map[string]error
}

func newScriptedSource() *scriptedSource {
	return &scriptedSource{quotes: map[string][]model.Quote{}, fail: map[string]error{}}
}

func (s *scriptedSource) push(sym string, price float64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[sym] = append(s.quotes[sym], model.Quote{
		Symbol: sym, Price: price, Change24h: 1.234, Volume24h: 86400, Timestamp: at, Source: "live",
	})
}

func (s *scriptedSource) FetchPrice(_ context.Context, sym string) (model.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[sym]; err != nil {
		return model.Quote{}, err
	}
	q := s.quotes[sym]
	if len(q) == 0 {
		return model.Quote{}, errors.New("no quote scripted")
	}
	s.quotes[sym] = q[1:]
	return q[0], nil
}

func (s *scriptedSource) FetchOHLCV(context.Context, string, model.Timeframe, int) ([]model.Bar, error) {
	return nil, errors.New("not scripted")
}

type memBarStore struct {
	mu        sync.Mutex
	bars      []model.Bar
	snapshots []model.IndicatorSnapshot
	fail      error
}

func (m *memBarStore) SaveBar(_ context.Context, b model.Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.bars = append(m.bars, b)
	return nil
}

func (m *memBarStore) SaveIndicatorSnapshot(_ context.Context, _ string, _ model.Timeframe, snap model.IndicatorSnapshot, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.snapshots = append(m.snapshots, snap)
	return nil
}

func (m *memBarStore) LoadRecentBars(context.Context, string, model.Timeframe, int) ([]model.Bar, error) {
	return nil, nil
}

type recordingAlerts struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingAlerts) Evaluate(_ context.Context, symbol string, _ float64) ([]model.AlertSpec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, symbol)
	return nil, nil
}

type staticIndicators map[string]model.SeriesSnapshot

func (s staticIndicators) Latest(symbol string, tf model.Timeframe) (model.SeriesSnapshot, bool) {
	snap, ok := s[model.SeriesKey(symbol, tf)]
	return snap, ok
}
