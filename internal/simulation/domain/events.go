package domain

import (
	"log/slog"
	"sync"
)

// OrderStatusEvent is fired on every order disposition.
type OrderStatusEvent struct {
	Order     *Order
	OldStatus OrderStatus
	NewStatus OrderStatus
}

// OrderStatusListener observes order lifecycle transitions.
type OrderStatusListener interface {
	OrderStatusChanged(event OrderStatusEvent)
}

// ExecutionListener observes completed trades.
type ExecutionListener interface {
	OnExecution(execution *Execution)
}

// PositionChangeListener observes position lifecycle changes. PositionClosed
// receives the realized profit of the closing trade.
type PositionChangeListener interface {
	PositionOpened(position *Position)
	PositionChanged(position *Position)
	PositionClosed(position *Position, realized float64)
}

// EventSink multicasts engine notifications to registered listeners.
// Invocation is synchronous and in the order the originating events occurred.
// A panicking listener is isolated: the panic is recovered and logged, never
// propagated into the matching loop.
type EventSink struct {
	mu                sync.RWMutex
	orderListeners    []OrderStatusListener
	execListeners     []ExecutionListener
	positionListeners []PositionChangeListener
	logger            *slog.Logger
}

// NewEventSink creates a sink; a nil logger falls back to slog.Default.
func NewEventSink(logger *slog.Logger) *EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventSink{logger: logger}
}

// AddOrderStatusListener registers a listener for order transitions.
func (s *EventSink) AddOrderStatusListener(l OrderStatusListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderListeners = append(s.orderListeners, l)
}

// AddExecutionListener registers a listener for executions.
func (s *EventSink) AddExecutionListener(l ExecutionListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execListeners = append(s.execListeners, l)
}

// AddPositionChangeListener registers a listener for position changes.
func (s *EventSink) AddPositionChangeListener(l PositionChangeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positionListeners = append(s.positionListeners, l)
}

func (s *EventSink) fireOrderStatusChanged(event OrderStatusEvent) {
	s.mu.RLock()
	listeners := s.orderListeners
	s.mu.RUnlock()
	for _, l := range listeners {
		s.notify(func() { l.OrderStatusChanged(event) })
	}
}

func (s *EventSink) fireExecution(execution *Execution) {
	s.mu.RLock()
	listeners := s.execListeners
	s.mu.RUnlock()
	for _, l := range listeners {
		s.notify(func() { l.OnExecution(execution) })
	}
}

func (s *EventSink) firePositionOpened(position *Position) {
	s.mu.RLock()
	listeners := s.positionListeners
	s.mu.RUnlock()
	for _, l := range listeners {
		s.notify(func() { l.PositionOpened(position) })
	}
}

func (s *EventSink) firePositionChanged(position *Position) {
	s.mu.RLock()
	listeners := s.positionListeners
	s.mu.RUnlock()
	for _, l := range listeners {
		s.notify(func() { l.PositionChanged(position) })
	}
}

func (s *EventSink) firePositionClosed(position *Position, realized float64) {
	s.mu.RLock()
	listeners := s.positionListeners
	s.mu.RUnlock()
	for _, l := range listeners {
		s.notify(func() { l.PositionClosed(position, realized) })
	}
}

// notify invokes one listener, recovering a panic so listener errors cannot
// corrupt engine state.
func (s *EventSink) notify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event listener panicked", "panic", r)
		}
	}()
	fn()
}
