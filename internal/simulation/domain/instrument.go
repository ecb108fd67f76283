package domain

// submitQueueSize bounds the per-instrument channel between the submission
// goroutine and the matching loop.
const submitQueueSize = 256

// Instrument holds the per-symbol order queues and market state. Orders flow
// from the submission side through a bounded channel into the engine-private
// transmit queue, then into the working set or a terminal status. Only the
// matching loop touches the transmit queue and working set.
type Instrument struct {
	symbol string

	// submitted decouples the submission goroutine from bar processing.
	submitted chan *Order
	// transmit is the FIFO of admitted-but-not-yet-dispositioned orders.
	transmit []*Order
	// working is the set of admitted, live orders.
	working []*Order

	lastBar  *Bar
	position *Position
}

func newInstrument(symbol string) *Instrument {
	return &Instrument{
		symbol:    symbol,
		submitted: make(chan *Order, submitQueueSize),
	}
}

// Symbol returns the instrument's symbol.
func (i *Instrument) Symbol() string { return i.symbol }

// Position returns the open position, nil when flat.
func (i *Instrument) Position() *Position { return i.position }

// LastBar returns the most recent bar observed, nil before the first.
func (i *Instrument) LastBar() *Bar { return i.lastBar }

// WorkingOrders returns a copy of the current working set.
func (i *Instrument) WorkingOrders() []*Order {
	out := make([]*Order, len(i.working))
	copy(out, i.working)
	return out
}

// enqueue hands an order to the instrument from the submission side.
func (i *Instrument) enqueue(o *Order) error {
	select {
	case i.submitted <- o:
		return nil
	default:
		return ErrSubmitQueueFull
	}
}

// drainSubmitted moves newly submitted orders into the transmit queue.
// Called by the matching loop at the start of each bar.
func (i *Instrument) drainSubmitted() {
	for {
		select {
		case o := <-i.submitted:
			i.transmit = append(i.transmit, o)
		default:
			return
		}
	}
}
