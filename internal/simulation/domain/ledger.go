package domain

import "time"

// applyTrade applies one trade to the instrument's position and the account.
// The case is selected by comparing the trade's direction sign to the open
// position's direction:
//
//   - no position: entry sides open a new position, exit sides are invalid;
//   - same direction: scale-in, average price becomes the quantity-weighted
//     mean of the open lots;
//   - opposite direction, traded quantity below the open quantity: scale-out,
//     average price unchanged, profit realized on the reduced lot;
//   - opposite direction, traded quantity at or above the open quantity: the
//     position is closed first, then any excess opens a new position in the
//     opposite direction (a reversal in one trade), as two ledger operations
//     with distinct position identities.
//
// Returns nil for an invalid side/position combination; the caller rejects
// the order. Realized profit only changes on a reducing trade. Commissions
// are charged through the account's separate commission accumulator.
func (e *MatchingEngine) applyTrade(inst *Instrument, o *Order, price float64, t time.Time) *Execution {
	position := inst.position
	direction := o.Side.Direction()
	quantity := o.Quantity

	exec := &Execution{
		ID:        e.nextExecutionID(),
		OrderID:   o.id,
		Symbol:    o.Symbol,
		Time:      t,
		Direction: direction,
		Price:     price,
		Quantity:  quantity,
	}

	switch {
	case position == nil:
		if !o.Side.IsEntry() {
			return nil
		}
		e.openPosition(inst, o, direction, price, quantity, t)
		exec.ScaleIn = true
		exec.OpeningCommission = inst.position.OpeningCommission

	case position.Direction == direction: // scale-in
		opening := o.commission(price, quantity, nil)
		newQuantity := position.Quantity + quantity
		position.AvgPrice = (position.Quantity*position.AvgPrice + quantity*price) / newQuantity
		position.Quantity = newQuantity
		e.account.addCommission(opening)
		e.sink.firePositionChanged(position)
		exec.ScaleIn = true
		exec.OpeningCommission = opening

	case quantity < position.Quantity-QuantityEpsilon: // scale-out
		realized := quantity * (price - position.AvgPrice) * float64(position.Direction)
		closing := o.commission(price, quantity, position)
		position.Quantity -= quantity
		e.account.addRealized(realized)
		e.account.addCommission(closing)
		e.sink.firePositionChanged(position)
		exec.ScaleOut = true
		exec.ClosingCommission = closing

	default: // close, or close and reverse
		realized := position.Quantity * (price - position.AvgPrice) * float64(position.Direction)
		closing := o.commission(price, position.Quantity, position)
		excess := quantity - position.Quantity

		inst.position = nil
		e.account.addRealized(realized)
		e.account.addCommission(closing)
		e.account.clearUnrealized(inst.symbol)
		e.sink.firePositionClosed(position, realized)

		exec.ScaleOut = true
		exec.ClosingCommission = closing
		if excess > QuantityEpsilon {
			e.openPosition(inst, o, direction, price, excess, t)
			exec.ScaleIn = true
			exec.OpeningCommission = inst.position.OpeningCommission
		}
	}
	return exec
}

// openPosition opens a fresh position and notifies listeners.
func (e *MatchingEngine) openPosition(inst *Instrument, o *Order, direction Direction, price, quantity float64, t time.Time) {
	opening := o.commission(price, quantity, nil)
	position := newPosition(e.nextPositionID(), o, direction, price, quantity, opening, t)
	inst.position = position
	e.account.addCommission(opening)
	e.sink.firePositionOpened(position)
}
