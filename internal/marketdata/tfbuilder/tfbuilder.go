// Package tfbuilder aggregates price observations into per-timeframe bars.
// Each (symbol, timeframe) keeps one forming bar that is updated in O(1)
// per observation. When an observation lands in a later bucket, the
// forming bar is finalized and returned.
package tfbuilder

import (
	"sync"
	"time"

	"coinstream/internal/model"
)

// tfState holds the forming bar for one (symbol, timeframe) pair.
type tfState struct {
	bucket time.Time
	bar    model.Bar
	seeded bool // bar was already emitted elsewhere; do not emit on close
}

// Builder resamples price observations into several timeframes.
// Safe for concurrent use.
type Builder struct {
	mu     sync.Mutex
	tfs    []model.Timeframe
	states map[string]*tfState

	// OnStale is called when an observation behind the forming bucket is
	// dropped. Optional.
	OnStale func()
}

// New creates a builder for the given timeframes.
func New(tfs []model.Timeframe) *Builder {
	return &Builder{
		tfs:    tfs,
		states: make(map[string]*tfState, 64),
	}
}

// Observe merges one price reading into every timeframe and returns the
// bars it closed, oldest timeframe order preserved.
func (b *Builder) Observe(symbol string, price, volume float64, at time.Time) []model.Bar {
	if price <= 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var closed []model.Bar
	for _, tf := range b.tfs {
		bucket := tf.BucketStart(at)
		key := model.SeriesKey(symbol, tf)
		st, exists := b.states[key]

		if exists && bucket.Before(st.bucket) {
			if b.OnStale != nil {
				b.OnStale()
			}
			continue
		}

		if exists && bucket.After(st.bucket) {
			if !st.seeded {
				closed = append(closed, st.bar)
			}
			exists = false
		}

		if !exists {
			b.states[key] = &tfState{
				bucket: bucket,
				bar: model.Bar{
					Symbol:    symbol,
					Timeframe: tf,
					OpenTime:  bucket,
					Open:      price,
					High:      price,
					Low:       price,
					Close:     price,
					Volume:    volume,
				},
			}
			continue
		}

		fb := &st.bar
		if price > fb.High {
			fb.High = price
		}
		if price < fb.Low {
			fb.Low = price
		}
		fb.Close = price
		fb.Volume += volume
	}
	return closed
}

// Seed marks last as the newest known bar of its series, so the builder
// does not emit a second bar for that bucket. Used after warmup.
func (b *Builder) Seed(last model.Bar) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := last.Key()
	if st, ok := b.states[key]; ok && !st.bucket.Before(last.OpenTime) {
		return
	}
	b.states[key] = &tfState{bucket: last.OpenTime, bar: last, seeded: true}
}
