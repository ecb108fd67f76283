package domain

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

// Options is the engine configuration.
type Options struct {
	// Spread is added to the fill price of buy-side trades.
	Spread float64
	// AllowSameBarExit re-checks a freshly filled order's protective levels
	// against the same bar's close, covering entry and stop hit within one
	// bar.
	AllowSameBarExit bool
	// AllowTakeProfitSlippage fills a gapped-through profit target at the bar
	// open instead of exactly at the limit level.
	AllowTakeProfitSlippage bool
	// CloseAllPositionsAtEnd closes any open position at the last bar's close
	// when Finish is called.
	CloseAllPositionsAtEnd bool
	// InitialBalance is the account's starting balance.
	InitialBalance float64
}

// MatchingEngine consumes completed bars and matches the pending orders of
// each instrument against them. Bar processing for one symbol must be
// strictly sequential and in nondecreasing bar-time order; the engine itself
// performs no internal concurrency. SubmitOrder and Cancel may be called from
// other goroutines.
type MatchingEngine struct {
	opts    Options
	account *Account
	sink    *EventSink
	logger  *slog.Logger

	orderIDs     atomic.Int64
	executionIDs atomic.Int64
	positionIDs  atomic.Int64
	// currentTime is the last processed bar time in nanoseconds; read by the
	// submission side when stamping submit times.
	currentTime atomic.Int64
}

// NewMatchingEngine creates an engine with the given options and event sink.
// A nil sink gets a fresh one; a nil logger falls back to slog.Default.
func NewMatchingEngine(opts Options, sink *EventSink, logger *slog.Logger) *MatchingEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = NewEventSink(logger)
	}
	return &MatchingEngine{
		opts:    opts,
		account: NewAccount(opts.InitialBalance),
		sink:    sink,
		logger:  logger,
	}
}

// Account returns the simulated account.
func (e *MatchingEngine) Account() *Account { return e.account }

// Sink returns the engine's event sink.
func (e *MatchingEngine) Sink() *EventSink { return e.sink }

// Options returns the engine configuration.
func (e *MatchingEngine) Options() Options { return e.opts }

// Now returns the last processed bar time, zero before the first bar.
func (e *MatchingEngine) Now() time.Time {
	nanos := e.currentTime.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// SubmitOrder assigns an identifier, stamps the submission time and hands the
// order to its instrument's transmit queue. Safe to call concurrently with
// bar processing.
func (e *MatchingEngine) SubmitOrder(o *Order) (*Order, error) {
	if o.id != 0 {
		return nil, fmt.Errorf("%w: order %d", ErrOrderAlreadySubmitted, o.id)
	}
	inst := e.account.Instrument(o.Symbol)
	o.id = e.orderIDs.Add(1)
	o.submitTime = e.Now()
	if err := inst.enqueue(o); err != nil {
		// leave the order resubmittable
		o.id = 0
		return nil, fmt.Errorf("submit order %s: %w", o.Symbol, err)
	}
	e.transition(o, StatusSubmitted)
	return o, nil
}

// OnBar consumes one new bar and performs, in fixed order: close-phase
// admission against the previous bar's close, open-phase admission at the new
// bar's open, the position's protective-exit check, working-order fill
// attempts, and the mark-to-market. A non-transactional fill price aborts the
// bar with ErrNonTransactionalPrice.
func (e *MatchingEngine) OnBar(bar Bar) error {
	inst := e.account.Instrument(bar.Symbol)
	if inst.lastBar != nil && bar.Time.Before(inst.lastBar.Time) {
		return fmt.Errorf("%w: %s %v after %v", ErrBarOutOfOrder, bar.Symbol, bar.Time, inst.lastBar.Time)
	}
	inst.drainSubmitted()

	if len(inst.transmit) > 0 {
		var deferred []*Order
		var err error
		if last := inst.lastBar; last != nil {
			deferred, err = e.admitAtClose(inst, *last)
			if err != nil {
				return err
			}
		} else {
			deferred = inst.transmit
			inst.transmit = nil
		}
		if err := e.admitAtOpen(inst, bar, deferred); err != nil {
			return err
		}
	}

	e.currentTime.Store(bar.Time.UnixNano())
	snapshot := bar
	inst.lastBar = &snapshot

	if err := e.checkProtectiveExits(inst, bar); err != nil {
		return err
	}
	if err := e.scanWorkingOrders(inst, bar); err != nil {
		return err
	}
	e.account.markToMarket(inst, bar)
	return nil
}

// Finish ends the simulation for one symbol, closing any open position at the
// last observed close when the engine is configured to do so.
func (e *MatchingEngine) Finish(symbol string) {
	if !e.opts.CloseAllPositionsAtEnd {
		return
	}
	inst := e.account.Instrument(symbol)
	if inst.lastBar == nil || inst.position == nil {
		return
	}
	bar := *inst.lastBar
	exec := e.closePosition(inst, inst.position, bar, bar.Close)
	e.sink.fireExecution(exec)
}

// admitAtClose runs the close-phase disposition over the transmit queue at
// the previous bar's close. Orders whose effective accepted time is still in
// the future stay queued; at-the-open and market orders are deferred to the
// open phase.
func (e *MatchingEngine) admitAtClose(inst *Instrument, last Bar) ([]*Order, error) {
	closeBar := priceBar(last.Symbol, last.Time, last.Close)
	var pending, deferred []*Order
	for _, o := range inst.transmit {
		switch {
		case o.CancelRequested():
			e.transition(o, StatusCancelled)
		case o.expired(last.Time):
			e.transition(o, StatusExpired)
		case o.effectiveAcceptedTime().After(last.Time):
			pending = append(pending, o)
		case o.TimeInForce == TIFAtClose:
			e.accept(o, last.Time)
			if err := e.fillOrReject(inst, o, closeBar, last.Close); err != nil {
				inst.transmit = pending
				return nil, err
			}
		case o.TimeInForce == TIFAtOpen || o.Type.ImmediateOnly():
			deferred = append(deferred, o)
		default:
			e.accept(o, last.Time)
			e.toWorking(inst, o)
		}
	}
	inst.transmit = pending
	return deferred, nil
}

// admitAtOpen runs the open-phase disposition at the new bar's open over the
// orders deferred from the close phase. An at-the-close order seen here is
// rejected: it cannot still be pending after the close phase already ran.
func (e *MatchingEngine) admitAtOpen(inst *Instrument, bar Bar, deferred []*Order) error {
	openBar := priceBar(bar.Symbol, bar.Time, bar.Open)
	for idx, o := range deferred {
		switch {
		case o.CancelRequested():
			e.transition(o, StatusCancelled)
		case o.expired(bar.Time):
			e.transition(o, StatusExpired)
		case o.effectiveAcceptedTime().After(bar.Time):
			inst.transmit = append(inst.transmit, o)
		case o.TimeInForce == TIFAtClose:
			e.transition(o, StatusRejected)
		case o.TimeInForce == TIFAtOpen || o.Type.ImmediateOnly():
			e.accept(o, bar.Time)
			if err := e.fillOrReject(inst, o, openBar, bar.Open); err != nil {
				inst.transmit = append(inst.transmit, deferred[idx+1:]...)
				return err
			}
		default:
			e.accept(o, bar.Time)
			e.toWorking(inst, o)
		}
	}
	return nil
}

// checkProtectiveExits tests the open position's protective stop and limit
// against the bar. The stop is checked first and at most one of the two can
// fire per bar. When the bar opened already past the trigger level the fill
// price becomes the open (slippage); for the profit target this is gated by
// the AllowTakeProfitSlippage option.
func (e *MatchingEngine) checkProtectiveExits(inst *Instrument, bar Bar) error {
	p := inst.position
	if p == nil {
		return nil
	}
	long := p.Direction == Long

	if sl := p.ExitStop; !math.IsNaN(sl) &&
		(long && bar.Low <= sl || !long && bar.High >= sl-e.opts.Spread) {
		if long == (bar.Open <= sl) {
			sl = bar.Open
		}
		exec := e.closePosition(inst, p, bar, sl)
		exec.StopLossHit = true
		e.sink.fireExecution(exec)
		return nil
	}

	if tp := p.ExitLimit; !math.IsNaN(tp) &&
		(long && bar.High >= tp || !long && bar.Low <= tp-e.opts.Spread) {
		if long == (bar.Open > tp) && e.opts.AllowTakeProfitSlippage {
			tp = bar.Open
		}
		exec := e.closePosition(inst, p, bar, tp)
		exec.ProfitTargetHit = true
		e.sink.fireExecution(exec)
	}
	return nil
}

// scanWorkingOrders offers the bar to every working order. Each order type
// decides for itself whether it fires this bar; the fill engine validates the
// resulting price.
func (e *MatchingEngine) scanWorkingOrders(inst *Instrument, bar Bar) error {
	for idx := 0; idx < len(inst.working); {
		o := inst.working[idx]
		switch {
		case o.CancelRequested():
			e.transition(o, StatusCancelled)
		case o.expired(bar.Time):
			e.transition(o, StatusExpired)
		default:
			price, triggered := candidateFill(o, bar)
			if !triggered {
				idx++
				continue
			}
			exec, err := e.fill(inst, o, bar, price)
			if err != nil {
				return err
			}
			if exec == nil {
				e.transition(o, StatusRejected)
				break
			}
			inst.working = append(inst.working[:idx], inst.working[idx+1:]...)
			e.sink.fireExecution(exec)
			if e.opts.AllowSameBarExit {
				e.sameBarExitCheck(inst, o, bar)
			}
			continue
		}
		inst.working = append(inst.working[:idx], inst.working[idx+1:]...)
	}
	return nil
}

// sameBarExitCheck closes the just-opened position when the bar's close has
// already violated the filled order's protective levels. Single pass: the
// resulting exit is not itself re-checked.
func (e *MatchingEngine) sameBarExitCheck(inst *Instrument, o *Order, bar Bar) {
	p := inst.position
	if p == nil {
		return
	}
	long := o.Side.Direction() == Long
	// NaN levels compare false and never trigger.
	if sl := o.ExitStop; long && bar.Close < sl || !long && bar.Close > sl {
		exec := e.closePosition(inst, p, bar, sl)
		exec.StopLossHit = true
		e.sink.fireExecution(exec)
	} else if tp := o.ExitLimit; long && bar.Close > tp || !long && bar.Close < tp {
		exec := e.closePosition(inst, p, bar, tp)
		exec.ProfitTargetHit = true
		e.sink.fireExecution(exec)
	}
}

// fillOrReject attempts an admission-phase fill; a refused fill rejects the
// order, a completed one emits the execution.
func (e *MatchingEngine) fillOrReject(inst *Instrument, o *Order, bar Bar, price float64) error {
	exec, err := e.fill(inst, o, bar, price)
	if err != nil {
		return err
	}
	if exec == nil {
		e.transition(o, StatusRejected)
		return nil
	}
	e.sink.fireExecution(exec)
	return nil
}

// fill is the fill engine: it validates the candidate price against the
// bar's traded range, applies the configured spread to buy-side trades and
// delegates the position delta to the ledger. A nil result means the ledger
// refused the side/position combination.
func (e *MatchingEngine) fill(inst *Instrument, o *Order, bar Bar, price float64) (*Execution, error) {
	if !bar.Contains(price) {
		return nil, fmt.Errorf("%w: %s order %d price %v at bar %v [%v, %v]",
			ErrNonTransactionalPrice, o.Symbol, o.id, price, bar.Time, bar.Low, bar.High)
	}
	if o.Side.IsBuy() {
		price += e.opts.Spread
	}
	exec := e.applyTrade(inst, o, price, bar.Time)
	if exec == nil {
		return nil, nil
	}
	o.fillPrice = price
	o.fillTime = bar.Time
	e.transition(o, StatusFilled)
	return exec, nil
}

// closePosition closes the whole position at the given price through a
// synthetic market exit order. The price comes from the protective trigger
// rule, so the admission bounds check does not apply here; the buy-side
// spread is already reflected in the trigger comparison.
func (e *MatchingEngine) closePosition(inst *Instrument, p *Position, bar Bar, price float64) *Execution {
	side := SideSell
	if p.Direction == Short {
		side = SideBuyToCover
	}
	exit := NewOrder(p.Symbol, OrderTypeMarket, side, p.Quantity)
	exit.Commission = p.EntryOrder.Commission
	return e.applyTrade(inst, exit, price, bar.Time)
}

// candidateFill evaluates the order type's intrabar trigger rule, returning
// the admissible fill price when the order fires this bar. A level gapped
// through at the open fills at the open.
func candidateFill(o *Order, bar Bar) (float64, bool) {
	buy := o.Side.IsBuy()
	switch o.Type {
	case OrderTypeMarket:
		return bar.Open, true
	case OrderTypeStop:
		if buy {
			if bar.High >= o.StopPrice {
				return math.Max(bar.Open, o.StopPrice), true
			}
		} else if bar.Low <= o.StopPrice {
			return math.Min(bar.Open, o.StopPrice), true
		}
	case OrderTypeLimit:
		if buy {
			if bar.Low <= o.Price {
				return math.Min(bar.Open, o.Price), true
			}
		} else if bar.High >= o.Price {
			return math.Max(bar.Open, o.Price), true
		}
	case OrderTypeStopLimit:
		if buy {
			if bar.High >= o.StopPrice {
				if price := math.Max(bar.Open, o.StopPrice); price <= o.Price {
					return price, true
				}
			}
		} else if bar.Low <= o.StopPrice {
			if price := math.Min(bar.Open, o.StopPrice); price >= o.Price {
				return price, true
			}
		}
	}
	return 0, false
}

// accept stamps the admission time and moves the order to Accepted.
func (e *MatchingEngine) accept(o *Order, t time.Time) {
	if o.acceptedTime.IsZero() {
		o.acceptedTime = t
	}
	e.transition(o, StatusAccepted)
}

func (e *MatchingEngine) toWorking(inst *Instrument, o *Order) {
	e.transition(o, StatusWorking)
	inst.working = append(inst.working, o)
}

// transition moves the order through its state machine and notifies
// listeners. An illegal transition is a programming error: it is logged and
// ignored rather than corrupting the order.
func (e *MatchingEngine) transition(o *Order, to OrderStatus) {
	from := o.status
	if from == to {
		return
	}
	if !canTransition(from, to) {
		e.logger.Error("illegal order status transition",
			"order_id", o.id, "from", from.String(), "to", to.String())
		return
	}
	o.status = to
	e.sink.fireOrderStatusChanged(OrderStatusEvent{Order: o, OldStatus: from, NewStatus: to})
}

func (e *MatchingEngine) nextExecutionID() int64 { return e.executionIDs.Add(1) }
func (e *MatchingEngine) nextPositionID() int64  { return e.positionIDs.Add(1) }

// effectiveAcceptedTime is the earliest moment the order may be admitted.
func (o *Order) effectiveAcceptedTime() time.Time {
	t := o.submitTime.Add(o.Latency)
	if o.ValidSince.After(t) {
		t = o.ValidSince
	}
	return t
}

// priceBar is the degenerate single-price bar used for admission-phase fills.
func priceBar(symbol string, t time.Time, price float64) Bar {
	return Bar{Symbol: symbol, Time: t, Open: price, High: price, Low: price, Close: price}
}
