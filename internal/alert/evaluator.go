// Package alert evaluates user-defined alert conditions against new
// prices and indicator snapshots, firing each alert at most once until it
// is explicitly reset.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"coinstream/internal/model"
	"coinstream/internal/notification"

	"github.com/google/uuid"
)

// IndicatorLookup reads the latest snapshot of a series.
type IndicatorLookup interface {
	Latest(symbol string, tf model.Timeframe) (model.SeriesSnapshot, bool)
}

// Publisher delivers events to a topic.
type Publisher interface {
	Publish(topic string, ev model.Event) (int, error)
}

// Triggered is the alert_triggered payload.
type Triggered struct {
	model.AlertSpec
	Price   float64 `json:"price"`
	Value   float64 `json:"value"`
	Message string  `json:"message"`
}

// Evaluator checks active alerts and publishes trigger events.
type Evaluator struct {
	store      model.AlertStore
	indicators IndicatorLookup
	pub        Publisher
	notifier   notification.Notifier
	log        *slog.Logger
	now        func() time.Time

	// OnTrigger is called for each fired alert (optional).
	OnTrigger func(a model.AlertSpec)
}

// Config wires an Evaluator. Indicators and Notifier may be nil.
type Config struct {
	Store      model.AlertStore
	Indicators IndicatorLookup
	Publisher  Publisher
	Notifier   notification.Notifier
	Log        *slog.Logger
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(cfg Config) *Evaluator {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Evaluator{
		store:      cfg.Store,
		indicators: cfg.Indicators,
		pub:        cfg.Publisher,
		notifier:   cfg.Notifier,
		log:        log.With("component", "alert"),
		now:        time.Now,
	}
}

// Evaluate checks every armed alert for symbol against price and returns
// the alerts that fired during this call.
func (e *Evaluator) Evaluate(ctx context.Context, symbol string, price float64) ([]model.AlertSpec, error) {
	alerts, err := e.store.ListActive(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", symbol, err)
	}

	var fired []model.AlertSpec
	for _, a := range alerts {
		if !a.Armed() {
			continue
		}
		value, hit := e.check(a, price)
		if !hit {
			continue
		}

		at := e.now().UTC()
		won, err := e.store.MarkTriggered(ctx, a.ID, at)
		if err != nil {
			e.log.Error("mark alert triggered failed", "alert_id", a.ID, "error", err)
			continue
		}
		if !won {
			continue
		}
		a.Triggered = true
		a.TriggeredAt = &at
		fired = append(fired, a)
		e.emit(ctx, a, price, value)
	}
	return fired, nil
}

// check returns the observed value and whether the condition holds.
func (e *Evaluator) check(a model.AlertSpec, price float64) (float64, bool) {
	c := a.Condition
	switch c.Comparator {
	case model.PriceAbove:
		return price, price > c.Threshold
	case model.PriceBelow:
		return price, price < c.Threshold
	case model.RSIAbove, model.RSIBelow:
		if e.indicators == nil {
			return 0, false
		}
		snap, ok := e.indicators.Latest(a.Symbol, c.Timeframe)
		if !ok || snap.Indicators.RSI == nil {
			return 0, false
		}
		rsi := *snap.Indicators.RSI
		if c.Comparator == model.RSIAbove {
			return rsi, rsi > c.Threshold
		}
		return rsi, rsi < c.Threshold
	}
	return 0, false
}

func (e *Evaluator) emit(ctx context.Context, a model.AlertSpec, price, value float64) {
	msg := fmt.Sprintf("%s: %s %s %g (value %g)", a.Name, a.Symbol, a.Condition.Comparator, a.Condition.Threshold, value)
	e.log.Info("alert triggered", "alert_id", a.ID, "symbol", a.Symbol, "condition", a.Condition.Comparator, "value", value)

	if _, err := e.pub.Publish(model.TopicAlerts, model.Event{
		Name: model.EventAlertTriggered,
		Data: Triggered{AlertSpec: a, Price: price, Value: value, Message: msg},
	}); err != nil {
		e.log.Error("publish alert failed", "alert_id", a.ID, "error", err)
	}

	if e.OnTrigger != nil {
		e.OnTrigger(a)
	}

	if e.notifier != nil {
		nctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := e.notifier.Send(nctx, notification.Alert{
			Level:   notification.AlertWarning,
			Title:   "Alert triggered: " + a.Name,
			Message: msg,
		}); err != nil {
			e.log.Warn("alert notification failed", "alert_id", a.ID, "error", err)
		}
	}
}

// List returns all alerts.
func (e *Evaluator) List(ctx context.Context) ([]model.AlertSpec, error) {
	return e.store.List(ctx)
}

// Create stores a new armed alert.
func (e *Evaluator) Create(ctx context.Context, a model.AlertSpec) (model.AlertSpec, error) {
	if err := a.Condition.Validate(); err != nil {
		return model.AlertSpec{}, err
	}
	a.ID = uuid.New().String()
	a.Symbol = strings.ToUpper(a.Symbol)
	if a.Name == "" {
		a.Name = fmt.Sprintf("%s %s %g", a.Symbol, a.Condition.Comparator, a.Condition.Threshold)
	}
	a.Active = true
	a.Triggered = false
	a.TriggeredAt = nil
	a.CreatedAt = e.now().UTC()
	return e.store.Create(ctx, a)
}

// Reset re-arms a triggered alert.
func (e *Evaluator) Reset(ctx context.Context, id string) error {
	if err := e.store.Reset(ctx, id); err != nil {
		return err
	}
	e.log.Info("alert reset", "alert_id", id)
	return nil
}
