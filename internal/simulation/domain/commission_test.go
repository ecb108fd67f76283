package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatCommission(t *testing.T) {
	c := FlatCommission{PerTrade: decimal.NewFromFloat(1.5)}
	assert.Equal(t, 1.5, c.Commission(100, 10, nil))
	assert.Equal(t, 1.5, c.Commission(5000, 1, nil))
}

func TestPerShareCommission(t *testing.T) {
	c := PerShareCommission{
		Rate:    decimal.NewFromFloat(0.005),
		Minimum: decimal.NewFromFloat(1),
	}
	assert.Equal(t, 2.5, c.Commission(100, 500, nil))
	// small trades hit the minimum
	assert.Equal(t, 1.0, c.Commission(100, 10, nil))
}

func TestTieredCommission(t *testing.T) {
	c := TieredCommission{Tiers: []CommissionTier{
		{MinNotional: decimal.Zero, Rate: decimal.NewFromFloat(0.002)},
		{MinNotional: decimal.NewFromInt(10000), Rate: decimal.NewFromFloat(0.001)},
	}}
	assert.InDelta(t, 2.0, c.Commission(100, 10, nil), 1e-9)
	assert.InDelta(t, 20.0, c.Commission(100, 200, nil), 1e-9)
}

func TestCommissionsKeptOutOfRealized(t *testing.T) {
	e := testEngine(Options{InitialBalance: 1000})
	o := NewOrder("AAPL", OrderTypeMarket, SideBuy, 2)
	o.Commission = FlatCommission{PerTrade: decimal.NewFromFloat(1)}
	_, err := e.SubmitOrder(o)
	require.NoError(t, err)
	feedBar(t, e, 0, 100, 101, 99, 100)

	exit := NewOrder("AAPL", OrderTypeMarket, SideSell, 2)
	exit.Commission = FlatCommission{PerTrade: decimal.NewFromFloat(1)}
	_, err = e.SubmitOrder(exit)
	require.NoError(t, err)
	feedBar(t, e, 1, 104, 105, 103, 104)

	// realized reflects the trade alone; commissions accumulate separately
	assert.InDelta(t, 8.0, e.Account().RealizedPnL(), 1e-9)
	assert.InDelta(t, 2.0, e.Account().TotalCommission(), 1e-9)
	assert.InDelta(t, 1000+8-2, e.Account().Balance(), 1e-9)
}
