package domain

import "github.com/shopspring/decimal"

// CommissionModel computes the commission of opening or closing a trade.
// position is the position being reduced, or nil when the trade opens a new
// lot; schedules may use it for tiering.
type CommissionModel interface {
	Commission(price, quantity float64, position *Position) float64
}

// FlatCommission charges a fixed amount per trade.
type FlatCommission struct {
	PerTrade decimal.Decimal
}

func (c FlatCommission) Commission(price, quantity float64, position *Position) float64 {
	return c.PerTrade.InexactFloat64()
}

// PerShareCommission charges a rate per share/contract with an optional
// minimum per trade. Amounts are computed in decimal so schedule rounding is
// exact regardless of trade size.
type PerShareCommission struct {
	Rate    decimal.Decimal
	Minimum decimal.Decimal
}

func (c PerShareCommission) Commission(price, quantity float64, position *Position) float64 {
	amount := c.Rate.Mul(decimal.NewFromFloat(quantity))
	if amount.LessThan(c.Minimum) {
		amount = c.Minimum
	}
	return amount.InexactFloat64()
}

// CommissionTier is one band of a tiered schedule: the rate applies when the
// trade's notional value is at least MinNotional.
type CommissionTier struct {
	MinNotional decimal.Decimal
	Rate        decimal.Decimal
}

// TieredCommission charges a percentage of notional value, with the rate
// selected by the highest tier the trade reaches. Tiers must be ordered by
// ascending MinNotional.
type TieredCommission struct {
	Tiers []CommissionTier
}

func (c TieredCommission) Commission(price, quantity float64, position *Position) float64 {
	notional := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(quantity))
	rate := decimal.Zero
	for _, tier := range c.Tiers {
		if notional.GreaterThanOrEqual(tier.MinNotional) {
			rate = tier.Rate
		}
	}
	return notional.Mul(rate).Round(8).InexactFloat64()
}
