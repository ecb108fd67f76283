package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtCloseFillsAtPreviousBarClose(t *testing.T) {
	e := testEngine(Options{})
	feedBar(t, e, 0, 100, 101, 99, 100.5)

	o := NewOrder("AAPL", OrderTypeMarket, SideBuy, 1)
	o.TimeInForce = TIFAtClose
	_, err := e.SubmitOrder(o)
	require.NoError(t, err)

	feedBar(t, e, 1, 103, 104, 102, 103)

	require.True(t, o.Filled())
	assert.Equal(t, 100.5, o.FillPrice())
	assert.Equal(t, testBase, o.FillTime())
	p := e.Account().Position("AAPL")
	require.NotNil(t, p)
	assert.Equal(t, 100.5, p.AvgPrice)
}

func TestAtCloseRejectedOnFirstBar(t *testing.T) {
	e := testEngine(Options{})
	o := NewOrder("AAPL", OrderTypeMarket, SideBuy, 1)
	o.TimeInForce = TIFAtClose
	_, err := e.SubmitOrder(o)
	require.NoError(t, err)

	// no previous close exists to fill against
	feedBar(t, e, 0, 100, 101, 99, 100)
	assert.Equal(t, StatusRejected, o.Status())
}

func TestAtOpenFillsAtNewBarOpen(t *testing.T) {
	e := testEngine(Options{})
	feedBar(t, e, 0, 100, 101, 99, 100)

	o := NewOrder("AAPL", OrderTypeMarket, SideBuy, 1)
	o.TimeInForce = TIFAtOpen
	_, err := e.SubmitOrder(o)
	require.NoError(t, err)

	feedBar(t, e, 1, 103, 104, 102, 103.5)
	require.True(t, o.Filled())
	assert.Equal(t, 103.0, o.FillPrice())
	assert.Equal(t, testBase.Add(time.Minute), o.FillTime())
}

func TestLatencyDelaysAdmission(t *testing.T) {
	e := testEngine(Options{})
	feedBar(t, e, 0, 100, 101, 99, 100)

	o := NewOrder("AAPL", OrderTypeMarket, SideBuy, 1)
	o.Latency = 90 * time.Second
	_, err := e.SubmitOrder(o)
	require.NoError(t, err)

	// still inside the latency window at the next two visits
	feedBar(t, e, 1, 101, 102, 100, 101)
	assert.Equal(t, StatusSubmitted, o.Status())
	feedBar(t, e, 2, 102, 103, 101, 102)
	assert.Equal(t, StatusSubmitted, o.Status())

	feedBar(t, e, 3, 104, 105, 103, 104)
	require.True(t, o.Filled())
	assert.Equal(t, 104.0, o.FillPrice())
}

func TestValidSinceDelaysAdmission(t *testing.T) {
	e := testEngine(Options{})
	feedBar(t, e, 0, 100, 101, 99, 100)

	o := NewOrder("AAPL", OrderTypeMarket, SideBuy, 1)
	o.ValidSince = testBase.Add(2 * time.Minute)
	_, err := e.SubmitOrder(o)
	require.NoError(t, err)

	feedBar(t, e, 1, 101, 102, 100, 101)
	assert.Equal(t, StatusSubmitted, o.Status())

	feedBar(t, e, 2, 102, 103, 101, 102)
	feedBar(t, e, 3, 104, 105, 103, 104)
	assert.True(t, o.Filled())
}

func TestCancelBeforeAdmission(t *testing.T) {
	e := testEngine(Options{})
	feedBar(t, e, 0, 100, 101, 99, 100)

	o := marketOrder(t, e, SideBuy, 1)
	o.Cancel()
	feedBar(t, e, 1, 101, 102, 100, 101)

	assert.Equal(t, StatusCancelled, o.Status())
	assert.Nil(t, e.Account().Position("AAPL"))
}

func TestCancelWorkingOrder(t *testing.T) {
	e := testEngine(Options{})
	feedBar(t, e, 0, 100, 101, 99, 100)

	o := NewOrder("AAPL", OrderTypeLimit, SideBuy, 1)
	o.Price = 90
	_, err := e.SubmitOrder(o)
	require.NoError(t, err)
	feedBar(t, e, 1, 101, 102, 100, 101)
	require.Equal(t, StatusWorking, o.Status())
	assert.Len(t, e.Account().Instrument("AAPL").WorkingOrders(), 1)

	o.Cancel()
	feedBar(t, e, 2, 101, 102, 100, 101)
	assert.Equal(t, StatusCancelled, o.Status())
	assert.Empty(t, e.Account().Instrument("AAPL").WorkingOrders())
}

func TestExpiredOrderNeverFills(t *testing.T) {
	e := testEngine(Options{})
	o := NewOrder("AAPL", OrderTypeMarket, SideBuy, 1)
	o.Expiration = testBase.Add(-time.Second)
	_, err := e.SubmitOrder(o)
	require.NoError(t, err)

	feedBar(t, e, 0, 100, 101, 99, 100)
	assert.Equal(t, StatusExpired, o.Status())
}

func TestWorkingLimitFillsInsideBar(t *testing.T) {
	e := testEngine(Options{})
	feedBar(t, e, 0, 100, 101, 99, 100)

	o := NewOrder("AAPL", OrderTypeLimit, SideBuy, 1)
	o.Price = 98
	_, err := e.SubmitOrder(o)
	require.NoError(t, err)
	feedBar(t, e, 1, 100, 101, 99, 100)
	require.Equal(t, StatusWorking, o.Status())

	feedBar(t, e, 2, 100, 101, 97, 98.5)
	require.True(t, o.Filled())
	assert.Equal(t, 98.0, o.FillPrice())
}

func TestWorkingLimitFillsAtOpenWhenGapped(t *testing.T) {
	e := testEngine(Options{})
	feedBar(t, e, 0, 100, 101, 99, 100)

	o := NewOrder("AAPL", OrderTypeLimit, SideBuy, 1)
	o.Price = 98
	_, err := e.SubmitOrder(o)
	require.NoError(t, err)
	feedBar(t, e, 1, 100, 101, 99, 100)

	// opens already through the limit: fill improves to the open
	feedBar(t, e, 2, 96, 99, 95, 97)
	require.True(t, o.Filled())
	assert.Equal(t, 96.0, o.FillPrice())
}

func TestWorkingStopFill(t *testing.T) {
	e := testEngine(Options{})
	feedBar(t, e, 0, 100, 101, 99, 100)

	o := NewOrder("AAPL", OrderTypeStop, SideBuy, 1)
	o.StopPrice = 105
	_, err := e.SubmitOrder(o)
	require.NoError(t, err)
	feedBar(t, e, 1, 100, 101, 99, 100)
	require.Equal(t, StatusWorking, o.Status())

	t.Run("touch", func(t *testing.T) {
		feedBar(t, e, 2, 103, 106, 102, 104)
		require.True(t, o.Filled())
		assert.Equal(t, 105.0, o.FillPrice())
	})
}

func TestWorkingStopGapFillsAtOpen(t *testing.T) {
	e := testEngine(Options{})
	feedBar(t, e, 0, 100, 101, 99, 100)

	o := NewOrder("AAPL", OrderTypeStop, SideBuy, 1)
	o.StopPrice = 105
	_, err := e.SubmitOrder(o)
	require.NoError(t, err)
	feedBar(t, e, 1, 100, 101, 99, 100)

	feedBar(t, e, 2, 107, 109, 106, 108)
	require.True(t, o.Filled())
	assert.Equal(t, 107.0, o.FillPrice())
}

func TestStopLimitRespectsLimitCap(t *testing.T) {
	e := testEngine(Options{})
	feedBar(t, e, 0, 100, 101, 99, 100)

	o := NewOrder("AAPL", OrderTypeStopLimit, SideBuy, 1)
	o.StopPrice = 105
	o.Price = 105.5
	_, err := e.SubmitOrder(o)
	require.NoError(t, err)
	feedBar(t, e, 1, 100, 101, 99, 100)
	require.Equal(t, StatusWorking, o.Status())

	// triggers, but the gap open exceeds the limit cap: stays working
	feedBar(t, e, 2, 107, 109, 106, 108)
	assert.Equal(t, StatusWorking, o.Status())

	feedBar(t, e, 3, 104, 105.2, 103, 105)
	require.True(t, o.Filled())
	assert.Equal(t, 105.0, o.FillPrice())
}

func TestSpreadAppliedToBuySide(t *testing.T) {
	e := testEngine(Options{Spread: 0.05})
	marketOrder(t, e, SideBuy, 1)
	feedBar(t, e, 0, 100, 101, 99, 100)

	p := e.Account().Position("AAPL")
	require.NotNil(t, p)
	assert.InDelta(t, 100.05, p.AvgPrice, 1e-12)

	marketOrder(t, e, SideSell, 1)
	feedBar(t, e, 1, 102, 103, 101, 102)
	// sell side pays no spread
	assert.InDelta(t, 102.0-100.05, e.Account().RealizedPnL(), 1e-9)
}

func TestProtectiveStopLong(t *testing.T) {
	e := testEngine(Options{})
	o := NewOrder("AAPL", OrderTypeMarket, SideBuy, 2)
	o.ExitStop = 95
	_, err := e.SubmitOrder(o)
	require.NoError(t, err)
	feedBar(t, e, 0, 100, 101, 99, 100)
	require.NotNil(t, e.Account().Position("AAPL"))

	rec := &recordingListener{}
	e.Sink().AddExecutionListener(rec)

	feedBar(t, e, 1, 96, 97, 94, 96)
	assert.Nil(t, e.Account().Position("AAPL"))
	assert.InDelta(t, (95.0-100.0)*2, e.Account().RealizedPnL(), 1e-9)
	require.Len(t, rec.executions, 1)
	assert.True(t, rec.executions[0].StopLossHit)
	assert.Equal(t, 95.0, rec.executions[0].Price)
}

func TestProtectiveStopGapSlippage(t *testing.T) {
	e := testEngine(Options{})
	o := NewOrder("AAPL", OrderTypeMarket, SideBuy, 2)
	o.ExitStop = 95
	_, err := e.SubmitOrder(o)
	require.NoError(t, err)
	feedBar(t, e, 0, 100, 101, 99, 100)

	// opens below the stop: exit at the open, not the stop level
	feedBar(t, e, 1, 92, 94, 91, 93)
	assert.Nil(t, e.Account().Position("AAPL"))
	assert.InDelta(t, (92.0-100.0)*2, e.Account().RealizedPnL(), 1e-9)
}

func TestProtectiveStopShort(t *testing.T) {
	e := testEngine(Options{})
	o := NewOrder("AAPL", OrderTypeMarket, SideSellShort, 1)
	o.ExitStop = 105
	_, err := e.SubmitOrder(o)
	require.NoError(t, err)
	feedBar(t, e, 0, 100, 101, 99, 100)
	require.Equal(t, Short, e.Account().Position("AAPL").Direction)

	feedBar(t, e, 1, 103, 106, 102, 104)
	assert.Nil(t, e.Account().Position("AAPL"))
	assert.InDelta(t, (100.0-105.0)*1, e.Account().RealizedPnL(), 1e-9)
}

func TestProfitTargetExactWithoutSlippage(t *testing.T) {
	e := testEngine(Options{})
	o := NewOrder("AAPL", OrderTypeMarket, SideBuy, 1)
	o.ExitLimit = 110
	_, err := e.SubmitOrder(o)
	require.NoError(t, err)
	feedBar(t, e, 0, 100, 101, 99, 100)

	rec := &recordingListener{}
	e.Sink().AddExecutionListener(rec)

	// gap open above the target still fills at the target level
	feedBar(t, e, 1, 112, 114, 111, 113)
	assert.Nil(t, e.Account().Position("AAPL"))
	assert.InDelta(t, 10.0, e.Account().RealizedPnL(), 1e-9)
	require.Len(t, rec.executions, 1)
	assert.True(t, rec.executions[0].ProfitTargetHit)
}

func TestProfitTargetGapSlippageEnabled(t *testing.T) {
	e := testEngine(Options{AllowTakeProfitSlippage: true})
	o := NewOrder("AAPL", OrderTypeMarket, SideBuy, 1)
	o.ExitLimit = 110
	_, err := e.SubmitOrder(o)
	require.NoError(t, err)
	feedBar(t, e, 0, 100, 101, 99, 100)

	feedBar(t, e, 1, 112, 114, 111, 113)
	assert.Nil(t, e.Account().Position("AAPL"))
	assert.InDelta(t, 12.0, e.Account().RealizedPnL(), 1e-9)
}

func TestStopCheckedBeforeProfitTarget(t *testing.T) {
	e := testEngine(Options{})
	o := NewOrder("AAPL", OrderTypeMarket, SideBuy, 1)
	o.ExitStop = 95
	o.ExitLimit = 110
	_, err := e.SubmitOrder(o)
	require.NoError(t, err)
	feedBar(t, e, 0, 100, 101, 99, 100)

	rec := &recordingListener{}
	e.Sink().AddExecutionListener(rec)

	// the bar spans both levels; the stop wins
	feedBar(t, e, 1, 100, 112, 94, 105)
	require.Len(t, rec.executions, 1)
	assert.True(t, rec.executions[0].StopLossHit)
	assert.False(t, rec.executions[0].ProfitTargetHit)
	assert.InDelta(t, -5.0, e.Account().RealizedPnL(), 1e-9)
}

func TestSameBarExit(t *testing.T) {
	e := testEngine(Options{AllowSameBarExit: true})
	feedBar(t, e, 0, 100, 101, 99, 100)

	o := NewOrder("AAPL", OrderTypeStop, SideBuy, 1)
	o.StopPrice = 105
	o.ExitStop = 103
	_, err := e.SubmitOrder(o)
	require.NoError(t, err)
	feedBar(t, e, 1, 100, 101, 99, 100)

	rec := &recordingListener{}
	e.Sink().AddExecutionListener(rec)

	// entry triggers at 105 and the bar closes below the protective stop
	feedBar(t, e, 2, 103, 106, 101, 102)
	assert.Nil(t, e.Account().Position("AAPL"))
	require.Len(t, rec.executions, 2)
	assert.True(t, rec.executions[1].StopLossHit)
	assert.InDelta(t, 103.0-105.0, e.Account().RealizedPnL(), 1e-9)
}

func TestSameBarExitDisabled(t *testing.T) {
	e := testEngine(Options{})
	feedBar(t, e, 0, 100, 101, 99, 100)

	o := NewOrder("AAPL", OrderTypeStop, SideBuy, 1)
	o.StopPrice = 105
	o.ExitStop = 103
	_, err := e.SubmitOrder(o)
	require.NoError(t, err)
	feedBar(t, e, 1, 100, 101, 99, 100)

	feedBar(t, e, 2, 103, 106, 101, 102)
	// the protective exit waits for the next bar
	require.NotNil(t, e.Account().Position("AAPL"))

	feedBar(t, e, 3, 102, 104, 100, 101)
	assert.Nil(t, e.Account().Position("AAPL"))
}

func TestFinishClosesOpenPosition(t *testing.T) {
	e := testEngine(Options{CloseAllPositionsAtEnd: true})
	marketOrder(t, e, SideBuy, 2)
	feedBar(t, e, 0, 100, 103, 99, 102)

	e.Finish("AAPL")
	assert.Nil(t, e.Account().Position("AAPL"))
	assert.InDelta(t, 4.0, e.Account().RealizedPnL(), 1e-9)
	assert.Equal(t, 0.0, e.Account().UnrealizedPnL())
}

func TestFinishKeepsPositionWhenDisabled(t *testing.T) {
	e := testEngine(Options{})
	marketOrder(t, e, SideBuy, 2)
	feedBar(t, e, 0, 100, 103, 99, 102)

	e.Finish("AAPL")
	assert.NotNil(t, e.Account().Position("AAPL"))
}

func TestBarOutOfOrder(t *testing.T) {
	e := testEngine(Options{})
	feedBar(t, e, 1, 100, 101, 99, 100)
	err := e.OnBar(Bar{Symbol: "AAPL", Time: testBase, Open: 100, High: 101, Low: 99, Close: 100})
	assert.True(t, errors.Is(err, ErrBarOutOfOrder))
}

func TestResubmitRejected(t *testing.T) {
	e := testEngine(Options{})
	o := marketOrder(t, e, SideBuy, 1)
	_, err := e.SubmitOrder(o)
	assert.True(t, errors.Is(err, ErrOrderAlreadySubmitted))
}

func TestEquityAccounting(t *testing.T) {
	e := testEngine(Options{InitialBalance: 10000})
	marketOrder(t, e, SideBuy, 2)
	feedBar(t, e, 0, 100, 103, 99, 102)

	assert.Equal(t, 10000.0, e.Account().Balance())
	assert.InDelta(t, 10004.0, e.Account().Equity(), 1e-9)

	marketOrder(t, e, SideSell, 2)
	feedBar(t, e, 1, 104, 105, 103, 104)
	assert.InDelta(t, 10008.0, e.Account().Balance(), 1e-9)
	assert.InDelta(t, 10008.0, e.Account().Equity(), 1e-9)
}

func TestEventOrderingOnFill(t *testing.T) {
	e := testEngine(Options{})
	seq := &sequenceListener{}
	e.Sink().AddOrderStatusListener(seq)
	e.Sink().AddExecutionListener(seq)
	e.Sink().AddPositionChangeListener(seq)

	marketOrder(t, e, SideBuy, 1)
	feedBar(t, e, 0, 100, 101, 99, 100)

	assert.Equal(t, []string{
		"status:SUBMITTED",
		"status:ACCEPTED",
		"position-opened",
		"status:FILLED",
		"execution",
	}, seq.events)
}

func TestListenerPanicIsIsolated(t *testing.T) {
	e := testEngine(Options{})
	e.Sink().AddExecutionListener(panickingListener{})
	rec := &recordingListener{}
	e.Sink().AddExecutionListener(rec)

	marketOrder(t, e, SideBuy, 1)
	feedBar(t, e, 0, 100, 101, 99, 100)

	// the panic neither aborted the bar nor starved later listeners
	assert.Len(t, rec.executions, 1)
	assert.NotNil(t, e.Account().Position("AAPL"))
}

// sequenceListener flattens all event kinds into one ordered log.
type sequenceListener struct {
	events []string
}

func (s *sequenceListener) OrderStatusChanged(ev OrderStatusEvent) {
	s.events = append(s.events, "status:"+ev.NewStatus.String())
}
func (s *sequenceListener) OnExecution(*Execution)      { s.events = append(s.events, "execution") }
func (s *sequenceListener) PositionOpened(*Position)    { s.events = append(s.events, "position-opened") }
func (s *sequenceListener) PositionChanged(*Position)   { s.events = append(s.events, "position-changed") }
func (s *sequenceListener) PositionClosed(*Position, float64) {
	s.events = append(s.events, "position-closed")
}

type panickingListener struct{}

func (panickingListener) OnExecution(*Execution) { panic("listener failure") }
