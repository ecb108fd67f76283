package domain

import (
	"math"
	"sync/atomic"
	"time"
)

// Direction is the sign of an exposure: +1 long, -1 short.
type Direction int8

const (
	Long  Direction = 1
	Short Direction = -1
)

// Reverse returns the opposite direction.
func (d Direction) Reverse() Direction { return -d }

func (d Direction) String() string {
	if d == Long {
		return "LONG"
	}
	return "SHORT"
}

// Side is the side of an order. The numeric tags follow a small algebra used
// throughout the engine: the sign of the tag is the trade direction, and odd
// tags mark entry sides (orders allowed to open a fresh position).
type Side int8

const (
	SideBuy        Side = 1
	SideSellShort  Side = -1
	SideBuyToCover Side = 2
	SideSell       Side = -2
)

// IsBuy reports whether the side is Buy or BuyToCover.
func (s Side) IsBuy() bool { return s > 0 }

// IsEntry reports whether the side may open a fresh position
// (Buy or SellShort).
func (s Side) IsEntry() bool { return s&1 != 0 }

// Direction gives the trade direction implied by the side.
func (s Side) Direction() Direction {
	if s > 0 {
		return Long
	}
	return Short
}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	case SideSellShort:
		return "SELL_SHORT"
	case SideBuyToCover:
		return "BUY_TO_COVER"
	}
	return "UNKNOWN"
}

// OrderType is the closed set of supported order types. Each type carries its
// own intrabar trigger rule, evaluated in candidateFill.
type OrderType int8

const (
	OrderTypeMarket OrderType = iota
	OrderTypeStop
	OrderTypeLimit
	OrderTypeStopLimit
)

// ImmediateOnly reports whether the order type can never rest in the working
// set and must fill on admission or be rejected.
func (t OrderType) ImmediateOnly() bool { return t == OrderTypeMarket }

func (t OrderType) String() string {
	switch t {
	case OrderTypeMarket:
		return "MARKET"
	case OrderTypeStop:
		return "STOP"
	case OrderTypeLimit:
		return "LIMIT"
	case OrderTypeStopLimit:
		return "STOP_LIMIT"
	}
	return "UNKNOWN"
}

// TimeInForce constrains when an order may execute.
type TimeInForce int8

const (
	// TIFStandard keeps the order working until filled, cancelled or expired.
	TIFStandard TimeInForce = iota
	// TIFAtOpen must fill at the next bar's open or be rejected.
	TIFAtOpen
	// TIFAtClose must fill at the current bar's close or be rejected.
	TIFAtClose
)

func (t TimeInForce) String() string {
	switch t {
	case TIFAtOpen:
		return "OPEN"
	case TIFAtClose:
		return "CLOSE"
	}
	return "STANDARD"
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus int8

const (
	// StatusNew is the state of a freshly constructed, not yet submitted order.
	StatusNew OrderStatus = iota
	StatusSubmitted
	StatusAccepted
	StatusWorking
	StatusFilled
	StatusCancelled
	StatusExpired
	StatusRejected
)

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusExpired, StatusRejected:
		return true
	}
	return false
}

func (s OrderStatus) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusSubmitted:
		return "SUBMITTED"
	case StatusAccepted:
		return "ACCEPTED"
	case StatusWorking:
		return "WORKING"
	case StatusFilled:
		return "FILLED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusExpired:
		return "EXPIRED"
	case StatusRejected:
		return "REJECTED"
	}
	return "UNKNOWN"
}

// Order is a single simulated order. The exported fields are set by the
// strategy before submission; after SubmitOrder the order is owned by the
// engine until it reaches a terminal status. Cancel is the only mutation
// allowed from other goroutines and is cooperative: it sets a flag observed
// the next time the matching loop visits the order.
type Order struct {
	Symbol   string
	Type     OrderType
	Side     Side
	Quantity float64

	// Price is the limit price for Limit and StopLimit orders.
	Price float64
	// StopPrice is the trigger price for Stop and StopLimit orders.
	StopPrice float64

	// ExitStop and ExitLimit are protective levels attached to the position
	// opened by this order. NaN means unset.
	ExitStop  float64
	ExitLimit float64

	TimeInForce TimeInForce
	// Expiration is the moment after which the order expires. Zero means never.
	Expiration time.Time
	// ValidSince is the earliest moment the order may be admitted. Zero means
	// no floor.
	ValidSince time.Time
	// Latency is the minimum delay between submission and admission.
	Latency time.Duration

	// Commission computes the trade commission; nil means no commission.
	Commission CommissionModel

	id           int64
	status       OrderStatus
	cancelled    atomic.Bool
	submitTime   time.Time
	acceptedTime time.Time
	fillPrice    float64
	fillTime     time.Time
}

// NewOrder creates an order with unset protective levels.
func NewOrder(symbol string, typ OrderType, side Side, quantity float64) *Order {
	return &Order{
		Symbol:    symbol,
		Type:      typ,
		Side:      side,
		Quantity:  quantity,
		ExitStop:  math.NaN(),
		ExitLimit: math.NaN(),
		fillPrice: math.NaN(),
	}
}

// ID returns the engine-assigned order identifier, 0 before submission.
func (o *Order) ID() int64 { return o.id }

// Status returns the current lifecycle state.
func (o *Order) Status() OrderStatus { return o.status }

// Cancel requests cancellation. It only marks the order; the cancellation
// takes effect the next time the matching loop visits it.
func (o *Order) Cancel() { o.cancelled.Store(true) }

// CancelRequested reports whether Cancel has been called.
func (o *Order) CancelRequested() bool { return o.cancelled.Load() }

// SubmitTime returns the time the order was handed to the engine.
func (o *Order) SubmitTime() time.Time { return o.submitTime }

// AcceptedTime returns the admission time stamped by the engine, zero until
// the order is first visited.
func (o *Order) AcceptedTime() time.Time { return o.acceptedTime }

// FillPrice returns the execution price, NaN until filled.
func (o *Order) FillPrice() float64 { return o.fillPrice }

// FillTime returns the execution time, zero until filled.
func (o *Order) FillTime() time.Time { return o.fillTime }

// Filled reports whether the order reached the Filled status.
func (o *Order) Filled() bool { return o.status == StatusFilled }

// expired reports whether the order's expiration lies strictly before t.
func (o *Order) expired(t time.Time) bool {
	return !o.Expiration.IsZero() && o.Expiration.Before(t)
}

// commission returns the commission for a trade of the given size, using the
// position being closed (nil for an opening trade).
func (o *Order) commission(price, quantity float64, position *Position) float64 {
	if o.Commission == nil {
		return 0
	}
	return o.Commission.Commission(price, quantity, position)
}

// canTransition validates the order state machine.
func canTransition(from, to OrderStatus) bool {
	if from.Terminal() {
		return false
	}
	switch from {
	case StatusNew:
		return to == StatusSubmitted
	case StatusSubmitted:
		return to == StatusAccepted || to == StatusCancelled || to == StatusExpired || to == StatusRejected
	case StatusAccepted:
		return to == StatusWorking || to == StatusFilled || to == StatusCancelled ||
			to == StatusExpired || to == StatusRejected
	case StatusWorking:
		return to == StatusFilled || to == StatusCancelled || to == StatusExpired || to == StatusRejected
	}
	return false
}
