package model

import "time"

// Quote is the latest price reading for one symbol.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Change24h float64   `json:"change_24h"`
	Volume24h float64   `json:"volume_24h"`
	Timestamp time.Time `json:"timestamp"`

	// Source is "live" or "simulated".
	Source string `json:"source"`
}
