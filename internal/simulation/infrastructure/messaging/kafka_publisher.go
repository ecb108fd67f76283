// Package messaging publishes engine events to Kafka.
package messaging

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/messagequeue/kafka"

	"github.com/wyfcoding/marketsim/internal/simulation/domain"
)

// Topics carrying simulation events.
const (
	TopicExecution = "simulation.execution"
	TopicOrder     = "simulation.order"
	TopicPosition  = "simulation.position"
)

// KafkaEventPublisher forwards engine events to Kafka topics. It implements
// the engine's listener interfaces; publish failures are logged, never
// propagated back into the matching loop.
type KafkaEventPublisher struct {
	sessionID string
	producer  *kafka.Producer
	logger    *slog.Logger
}

func NewKafkaEventPublisher(sessionID string, producer *kafka.Producer, logger *slog.Logger) *KafkaEventPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaEventPublisher{sessionID: sessionID, producer: producer, logger: logger}
}

// Attach registers the publisher on a sink.
func (p *KafkaEventPublisher) Attach(sink *domain.EventSink) {
	sink.AddOrderStatusListener(p)
	sink.AddExecutionListener(p)
	sink.AddPositionChangeListener(p)
}

func (p *KafkaEventPublisher) OrderStatusChanged(ev domain.OrderStatusEvent) {
	p.publish(TopicOrder, ev.Order.Symbol, map[string]any{
		"session_id": p.sessionID,
		"order_id":   ev.Order.ID(),
		"symbol":     ev.Order.Symbol,
		"old_status": ev.OldStatus.String(),
		"new_status": ev.NewStatus.String(),
	})
}

func (p *KafkaEventPublisher) OnExecution(x *domain.Execution) {
	p.publish(TopicExecution, x.Symbol, map[string]any{
		"session_id":        p.sessionID,
		"execution_id":      x.ID,
		"order_id":          x.OrderID,
		"symbol":            x.Symbol,
		"time":              x.Time.UnixMilli(),
		"direction":         x.Direction.String(),
		"price":             decimal.NewFromFloat(x.Price).String(),
		"quantity":          decimal.NewFromFloat(x.Quantity).String(),
		"scale_in":          x.ScaleIn,
		"scale_out":         x.ScaleOut,
		"stop_loss_hit":     x.StopLossHit,
		"profit_target_hit": x.ProfitTargetHit,
	})
}

func (p *KafkaEventPublisher) PositionOpened(pos *domain.Position) {
	p.publishPosition("OPENED", pos, 0)
}

func (p *KafkaEventPublisher) PositionChanged(pos *domain.Position) {
	p.publishPosition("CHANGED", pos, 0)
}

func (p *KafkaEventPublisher) PositionClosed(pos *domain.Position, realized float64) {
	p.publishPosition("CLOSED", pos, realized)
}

func (p *KafkaEventPublisher) publishPosition(change string, pos *domain.Position, realized float64) {
	p.publish(TopicPosition, pos.Symbol, map[string]any{
		"session_id":  p.sessionID,
		"change":      change,
		"position_id": pos.ID,
		"symbol":      pos.Symbol,
		"direction":   pos.Direction.String(),
		"quantity":    decimal.NewFromFloat(pos.Quantity).String(),
		"avg_price":   decimal.NewFromFloat(pos.AvgPrice).String(),
		"realized":    decimal.NewFromFloat(realized).String(),
	})
}

func (p *KafkaEventPublisher) publish(topic, key string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("failed to marshal event", "topic", topic, "error", err)
		return
	}
	if err := p.producer.PublishToTopic(context.Background(), topic, []byte(key), data); err != nil {
		p.logger.Error("failed to publish event", "topic", topic, "error", err)
	}
}
