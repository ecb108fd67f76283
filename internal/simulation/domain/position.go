package domain

import (
	"math"
	"time"
)

// QuantityEpsilon is the smallest quantity the engine distinguishes from
// zero. Quantities are never compared to exactly zero after arithmetic; a
// magnitude below this threshold means the position is fully closed.
const QuantityEpsilon = 1e-6

// Position is the open exposure on one instrument. A position's quantity is
// strictly positive while it exists; once reduced below QuantityEpsilon the
// position is removed, never retained as a zero-size object. Scale-in and
// scale-out mutate the position in place; a reversal replaces it with a new
// identity.
type Position struct {
	ID        int64
	Symbol    string
	Direction Direction
	// EntryPrice is the price of the first lot.
	EntryPrice float64
	// AvgPrice is the quantity-weighted mean entry price over all still-open
	// lots, recomputed atomically with each scale-in.
	AvgPrice float64
	Quantity float64
	// EntryOrder is the order that opened the position.
	EntryOrder *Order
	// OpeningCommission paid when the position (first lot) was opened.
	OpeningCommission float64
	EntryTime         time.Time

	// ExitStop and ExitLimit are protective levels carried over from the
	// entry order. NaN means unset.
	ExitStop  float64
	ExitLimit float64

	marketPrice  float64
	marketTime   time.Time
	profit       float64
	maxFavorable float64
	maxAdverse   float64
	barsHeld     int
}

func newPosition(id int64, order *Order, direction Direction, price, quantity, openingCommission float64, entryTime time.Time) *Position {
	return &Position{
		ID:                id,
		Symbol:            order.Symbol,
		Direction:         direction,
		EntryPrice:        price,
		AvgPrice:          price,
		Quantity:          quantity,
		EntryOrder:        order,
		OpeningCommission: openingCommission,
		EntryTime:         entryTime,
		ExitStop:          order.ExitStop,
		ExitLimit:         order.ExitLimit,
		marketPrice:       math.NaN(),
	}
}

// UpdateProfit revalues the position against the given mark price. The
// unrealized profit is fully determined by (price, AvgPrice, Quantity,
// Direction) and recomputed from scratch, so repeated calls with the same
// inputs are idempotent. Returns the change against the previous valuation.
func (p *Position) UpdateProfit(price float64, t time.Time) float64 {
	delta := -p.profit
	p.marketPrice = price
	p.marketTime = t
	p.profit = (price - p.AvgPrice) * p.Quantity * float64(p.Direction)
	p.maxFavorable = math.Max(p.profit, p.maxFavorable)
	p.maxAdverse = math.Min(p.profit, p.maxAdverse)
	return delta + p.profit
}

// Profit returns the unrealized profit at the last mark.
func (p *Position) Profit() float64 { return p.profit }

// MarketPrice returns the last mark price, NaN before the first mark.
func (p *Position) MarketPrice() float64 { return p.marketPrice }

// MarketTime returns the time of the last mark.
func (p *Position) MarketTime() time.Time { return p.marketTime }

// MaxFavorableExcursion is the largest unrealized profit observed.
func (p *Position) MaxFavorableExcursion() float64 { return p.maxFavorable }

// MaxAdverseExcursion is the largest unrealized loss observed (non-positive).
func (p *Position) MaxAdverseExcursion() float64 { return p.maxAdverse }

// BarsHeld is the number of completed bars the position has been open for.
func (p *Position) BarsHeld() int { return p.barsHeld }

// HasExitStop reports whether a protective stop is set.
func (p *Position) HasExitStop() bool { return !math.IsNaN(p.ExitStop) }

// HasExitLimit reports whether a protective profit target is set.
func (p *Position) HasExitLimit() bool { return !math.IsNaN(p.ExitLimit) }
