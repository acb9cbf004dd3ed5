package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"coinstream/internal/model"
)

type alertRow struct {
	ID          string        `db:"id"`
	Name        string        `db:"name"`
	Symbol      string        `db:"symbol"`
	Comparator  string        `db:"comparator"`
	Threshold   float64       `db:"threshold"`
	Timeframe   string        `db:"timeframe"`
	Active      bool          `db:"is_active"`
	Triggered   bool          `db:"is_triggered"`
	TriggeredAt sql.NullInt64 `db:"triggered_at"`
	CreatedAt   int64         `db:"created_at"`
}

func (r alertRow) toModel() model.AlertSpec {
	a := model.AlertSpec{
		ID:     r.ID,
		Name:   r.Name,
		Symbol: r.Symbol,
		Condition: model.Condition{
			Comparator: model.Comparator(r.Comparator),
			Threshold:  r.Threshold,
			Timeframe:  model.Timeframe(r.Timeframe),
		},
		Active:    r.Active,
		Triggered: r.Triggered,
		CreatedAt: fromMillis(r.CreatedAt),
	}
	if r.TriggeredAt.Valid {
		t := fromMillis(r.TriggeredAt.Int64)
		a.TriggeredAt = &t
	}
	return a
}

const alertColumns = `id, name, symbol, comparator, threshold, timeframe, is_active, is_triggered, triggered_at, created_at`

func (s *Store) selectAlerts(ctx context.Context, where string, args ...any) ([]model.AlertSpec, error) {
	var rows []alertRow
	q := `SELECT ` + alertColumns + ` FROM alerts ` + where + ` ORDER BY created_at, id`
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("sqlite list alerts: %w", err)
	}
	out := make([]model.AlertSpec, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *Store) ListActive(ctx context.Context, symbol string) ([]model.AlertSpec, error) {
	return s.selectAlerts(ctx, `WHERE symbol = ? AND is_active = 1`, symbol)
}

func (s *Store) List(ctx context.Context) ([]model.AlertSpec, error) {
	return s.selectAlerts(ctx, ``)
}

func (s *Store) Create(ctx context.Context, a model.AlertSpec) (model.AlertSpec, error) {
	row := alertRow{
		ID:         a.ID,
		Name:       a.Name,
		Symbol:     a.Symbol,
		Comparator: string(a.Condition.Comparator),
		Threshold:  a.Condition.Threshold,
		Timeframe:  string(a.Condition.Timeframe),
		Active:     a.Active,
		Triggered:  a.Triggered,
		CreatedAt:  toMillis(a.CreatedAt),
	}
	if a.TriggeredAt != nil {
		row.TriggeredAt = sql.NullInt64{Int64: toMillis(*a.TriggeredAt), Valid: true}
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES (:id, :name, :symbol, :comparator, :threshold, :timeframe, :is_active, :is_triggered, :triggered_at, :created_at)`, row)
	if err != nil {
		return model.AlertSpec{}, fmt.Errorf("sqlite create alert %s: %w", a.ID, err)
	}
	return row.toModel(), nil
}

// MarkTriggered is a conditional update; at most one caller sees a row
// change for a given trigger edge.
func (s *Store) MarkTriggered(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET is_triggered = 1, triggered_at = ?
		WHERE id = ? AND is_active = 1 AND is_triggered = 0`, toMillis(at), id)
	if err != nil {
		return false, fmt.Errorf("sqlite mark alert %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite mark alert %s: %w", id, err)
	}
	if n == 1 {
		return true, nil
	}
	if err := s.exists(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) Reset(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET is_triggered = 0, triggered_at = NULL WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite reset alert %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("reset %s: %w", id, model.ErrAlertNotFound)
	}
	return nil
}

func (s *Store) exists(ctx context.Context, id string) error {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM alerts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite lookup alert %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("alert %s: %w", id, model.ErrAlertNotFound)
	}
	return nil
}
