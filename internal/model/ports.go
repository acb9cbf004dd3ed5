package model

import (
	"context"
	"time"
)

// PriceSource supplies current quotes and OHLCV history.
// Errors are non-fatal to callers.
type PriceSource interface {
	FetchPrice(ctx context.Context, symbol string) (Quote, error)
	// FetchOHLCV returns up to limit bars, oldest first.
	FetchOHLCV(ctx context.Context, symbol string, tf Timeframe, limit int) ([]Bar, error)
}

// BarStore persists bars and indicator snapshots.
type BarStore interface {
	// SaveBar is idempotent on (symbol, timeframe, open_time).
	SaveBar(ctx context.Context, bar Bar) error
	SaveIndicatorSnapshot(ctx context.Context, symbol string, tf Timeframe, snap IndicatorSnapshot, ts time.Time) error
	// LoadRecentBars returns at most limit of the newest bars, oldest first.
	LoadRecentBars(ctx context.Context, symbol string, tf Timeframe, limit int) ([]Bar, error)
}

// AlertStore holds alert definitions. MarkTriggered must be atomic: it
// returns false when the alert was already triggered or inactive.
type AlertStore interface {
	ListActive(ctx context.Context, symbol string) ([]AlertSpec, error)
	List(ctx context.Context) ([]AlertSpec, error)
	Create(ctx context.Context, a AlertSpec) (AlertSpec, error)
	MarkTriggered(ctx context.Context, id string, at time.Time) (bool, error)
	Reset(ctx context.Context, id string) error
}

// EventMirror republishes outbound events to an external bus.
type EventMirror interface {
	Mirror(ctx context.Context, topic string, env []byte)
}
