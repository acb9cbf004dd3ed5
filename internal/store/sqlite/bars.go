package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"coinstream/internal/model"
)

type barRow struct {
	Symbol    string  `db:"symbol"`
	Timeframe string  `db:"timeframe"`
	OpenTime  int64   `db:"open_time"`
	Open      float64 `db:"open"`
	High      float64 `db:"high"`
	Low       float64 `db:"low"`
	Close     float64 `db:"close"`
	Volume    float64 `db:"volume"`
}

func (r barRow) bar() model.Bar {
	return model.Bar{
		Symbol:    r.Symbol,
		Timeframe: model.Timeframe(r.Timeframe),
		OpenTime:  fromMillis(r.OpenTime),
		Open:      r.Open,
		High:      r.High,
		Low:       r.Low,
		Close:     r.Close,
		Volume:    r.Volume,
	}
}

// SaveBar stores a closed bar. A second write of the same
// (symbol, timeframe, open_time) is ignored since bars are immutable.
func (s *Store) SaveBar(ctx context.Context, bar model.Bar) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT OR IGNORE INTO bars (symbol, timeframe, open_time, open, high, low, close, volume)
		VALUES (:symbol, :timeframe, :open_time, :open, :high, :low, :close, :volume)`,
		barRow{
			Symbol:    bar.Symbol,
			Timeframe: string(bar.Timeframe),
			OpenTime:  toMillis(bar.OpenTime),
			Open:      bar.Open,
			High:      bar.High,
			Low:       bar.Low,
			Close:     bar.Close,
			Volume:    bar.Volume,
		})
	if err != nil {
		return fmt.Errorf("sqlite save bar %s: %w", bar.Key(), err)
	}
	return nil
}

// LoadRecentBars returns up to limit of the newest bars, oldest first.
func (s *Store) LoadRecentBars(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Bar, error) {
	if limit <= 0 {
		return nil, nil
	}
	var rows []barRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT symbol, timeframe, open_time, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND timeframe = ?
		ORDER BY open_time DESC
		LIMIT ?`, symbol, string(tf), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite load bars %s: %w", model.SeriesKey(symbol, tf), err)
	}

	bars := make([]model.Bar, len(rows))
	for i, r := range rows {
		bars[len(rows)-1-i] = r.bar()
	}
	return bars, nil
}

// SaveIndicatorSnapshot records the indicator values computed at ts.
func (s *Store) SaveIndicatorSnapshot(ctx context.Context, symbol string, tf model.Timeframe, snap model.IndicatorSnapshot, ts time.Time) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO indicator_snapshots (symbol, timeframe, ts, data)
		VALUES (?, ?, ?, ?)`, symbol, string(tf), toMillis(ts), string(data))
	if err != nil {
		return fmt.Errorf("sqlite save snapshot %s: %w", model.SeriesKey(symbol, tf), err)
	}
	return nil
}

// LatestIndicatorSnapshot loads the most recent snapshot of a series.
// ok is false when none has been stored.
func (s *Store) LatestIndicatorSnapshot(ctx context.Context, symbol string, tf model.Timeframe) (snap model.IndicatorSnapshot, ts time.Time, ok bool, err error) {
	var row struct {
		TS   int64  `db:"ts"`
		Data string `db:"data"`
	}
	err = s.db.GetContext(ctx, &row, `
		SELECT ts, data FROM indicator_snapshots
		WHERE symbol = ? AND timeframe = ?
		ORDER BY ts DESC
		LIMIT 1`, symbol, string(tf))
	if errors.Is(err, sql.ErrNoRows) {
		return snap, ts, false, nil
	}
	if err != nil {
		return snap, ts, false, fmt.Errorf("sqlite read snapshot %s: %w", model.SeriesKey(symbol, tf), err)
	}
	if err := json.Unmarshal([]byte(row.Data), &snap); err != nil {
		return snap, ts, false, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, fromMillis(row.TS), true, nil
}
