// Package domain contains the core model of the bar-driven matching and
// position-ledger engine: orders, positions, the simulated account and the
// matching loop that consumes completed OHLCV bars.
package domain

import (
	"context"
	"time"
)

// Bar is one OHLCV-summarized interval of price activity for an instrument.
type Bar struct {
	Symbol string
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Contains reports whether the price lies within the bar's traded range.
func (b Bar) Contains(price float64) bool {
	return price >= b.Low && price <= b.High
}

// BarRepository is the historical data source used by batch backtests.
type BarRepository interface {
	GetHistoricalBars(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error)
	SaveBars(ctx context.Context, bars []Bar) error
}
