package domain

import "errors"

var (
	// ErrNonTransactionalPrice marks a computed fill price outside the bar's
	// traded range. It indicates a broken order-type trigger rule, not a
	// market condition: processing of the bar must stop rather than continue
	// with corrupted state.
	ErrNonTransactionalPrice = errors.New("non-transactional order price")

	// ErrSubmitQueueFull is returned when an instrument's submission queue
	// cannot accept another order before the next bar is processed.
	ErrSubmitQueueFull = errors.New("order submit queue full")

	// ErrBarOutOfOrder is returned when a bar arrives with a time earlier
	// than the previous bar of the same instrument.
	ErrBarOutOfOrder = errors.New("bar time decreased")

	// ErrOrderAlreadySubmitted is returned when an order is submitted twice.
	ErrOrderAlreadySubmitted = errors.New("order already submitted")
)
