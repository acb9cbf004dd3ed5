package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrAlertNotFound is returned by alert stores for unknown IDs.
var ErrAlertNotFound = errors.New("alert not found")

// Comparator names an alert condition.
type Comparator string

const (
	PriceAbove Comparator = "price_above"
	PriceBelow Comparator = "price_below"
	RSIAbove   Comparator = "rsi_above"
	RSIBelow   Comparator = "rsi_below"
)

// Condition is a threshold plus comparator. Indicator-based conditions read
// the latest snapshot on Timeframe.
type Condition struct {
	Comparator Comparator `json:"type"`
	Threshold  float64    `json:"threshold"`
	Timeframe  Timeframe  `json:"timeframe,omitempty"`
}

// IsIndicator reports whether the condition needs an indicator snapshot.
func (c Condition) IsIndicator() bool {
	return c.Comparator == RSIAbove || c.Comparator == RSIBelow
}

// Validate checks the comparator is known.
func (c Condition) Validate() error {
	switch c.Comparator {
	case PriceAbove, PriceBelow:
		if c.Threshold <= 0 {
			return fmt.Errorf("condition %s: threshold must be positive", c.Comparator)
		}
	case RSIAbove, RSIBelow:
		if c.Threshold < 0 || c.Threshold > 100 {
			return fmt.Errorf("condition %s: threshold must be within [0, 100]", c.Comparator)
		}
	default:
		return fmt.Errorf("unknown condition type %q", c.Comparator)
	}
	return nil
}

// AlertSpec is a user-defined alert. Triggered flips once per trigger edge
// and stays set until an explicit reset.
type AlertSpec struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Symbol      string     `json:"symbol"`
	Condition   Condition  `json:"condition"`
	Active      bool       `json:"is_active"`
	Triggered   bool       `json:"is_triggered"`
	TriggeredAt *time.Time `json:"triggered_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Armed reports whether the alert may fire.
func (a AlertSpec) Armed() bool {
	return a.Active && !a.Triggered
}
