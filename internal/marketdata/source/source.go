// Package source provides PriceSource variants: LiveSource backed by the
// Binance USDⓈ-M futures REST API, SimulatedSource producing a seeded random
// walk, and FallbackSource which substitutes the simulation whenever the
// live source fails.
package source

import "errors"

var (
	// ErrUpstream wraps transport and API failures from the live exchange.
	ErrUpstream = errors.New("upstream price source failed")

	// ErrMalformed wraps responses that could not be interpreted.
	ErrMalformed = errors.New("malformed price payload")
)
