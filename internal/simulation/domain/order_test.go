package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSideAlgebra(t *testing.T) {
	cases := []struct {
		side      Side
		buy       bool
		entry     bool
		direction Direction
	}{
		{SideBuy, true, true, Long},
		{SideSellShort, false, true, Short},
		{SideBuyToCover, true, false, Long},
		{SideSell, false, false, Short},
	}
	for _, c := range cases {
		t.Run(c.side.String(), func(t *testing.T) {
			assert.Equal(t, c.buy, c.side.IsBuy())
			assert.Equal(t, c.entry, c.side.IsEntry())
			assert.Equal(t, c.direction, c.side.Direction())
		})
	}
}

func TestStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to OrderStatus }{
		{StatusNew, StatusSubmitted},
		{StatusSubmitted, StatusAccepted},
		{StatusSubmitted, StatusCancelled},
		{StatusSubmitted, StatusExpired},
		{StatusAccepted, StatusWorking},
		{StatusAccepted, StatusFilled},
		{StatusAccepted, StatusRejected},
		{StatusWorking, StatusFilled},
		{StatusWorking, StatusCancelled},
		{StatusWorking, StatusExpired},
		{StatusWorking, StatusRejected},
	}
	for _, c := range allowed {
		assert.True(t, canTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}

	denied := []struct{ from, to OrderStatus }{
		{StatusNew, StatusFilled},
		{StatusNew, StatusWorking},
		{StatusFilled, StatusCancelled},
		{StatusCancelled, StatusWorking},
		{StatusExpired, StatusSubmitted},
		{StatusRejected, StatusAccepted},
		{StatusWorking, StatusSubmitted},
	}
	for _, c := range denied {
		assert.False(t, canTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []OrderStatus{StatusFilled, StatusCancelled, StatusExpired, StatusRejected} {
		assert.True(t, s.Terminal(), s.String())
	}
	for _, s := range []OrderStatus{StatusNew, StatusSubmitted, StatusAccepted, StatusWorking} {
		assert.False(t, s.Terminal(), s.String())
	}
}

func TestNewOrderDefaults(t *testing.T) {
	o := NewOrder("AAPL", OrderTypeMarket, SideBuy, 1)
	assert.Equal(t, StatusNew, o.Status())
	assert.Equal(t, int64(0), o.ID())
	assert.True(t, math.IsNaN(o.ExitStop))
	assert.True(t, math.IsNaN(o.ExitLimit))
	assert.True(t, math.IsNaN(o.FillPrice()))
	assert.False(t, o.CancelRequested())
}

func TestOrderExpiration(t *testing.T) {
	o := NewOrder("AAPL", OrderTypeMarket, SideBuy, 1)
	now := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	assert.False(t, o.expired(now), "zero expiration never expires")

	o.Expiration = now
	assert.False(t, o.expired(now), "expiration is inclusive")
	assert.True(t, o.expired(now.Add(time.Second)))
}

func TestEffectiveAcceptedTime(t *testing.T) {
	submit := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	o := NewOrder("AAPL", OrderTypeMarket, SideBuy, 1)
	o.submitTime = submit
	o.Latency = time.Minute
	assert.Equal(t, submit.Add(time.Minute), o.effectiveAcceptedTime())

	o.ValidSince = submit.Add(5 * time.Minute)
	assert.Equal(t, submit.Add(5*time.Minute), o.effectiveAcceptedTime())
}
