// Package consumer feeds Kafka candle events into simulation sessions.
package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/wyfcoding/pkg/messagequeue/kafka"

	"github.com/wyfcoding/marketsim/internal/simulation/application"
	"github.com/wyfcoding/marketsim/internal/simulation/domain"
)

// BarEventHandler consumes completed candles, archives them for backtests
// and forwards them into a simulation session. Events naming no session go
// to the default session configured at startup.
type BarEventHandler struct {
	sim       *application.SimulationApplicationService
	bars      domain.BarRepository
	sessionID string
	logger    *slog.Logger
}

func NewBarEventHandler(sim *application.SimulationApplicationService, bars domain.BarRepository, defaultSessionID string, logger *slog.Logger) *BarEventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BarEventHandler{sim: sim, bars: bars, sessionID: defaultSessionID, logger: logger}
}

func (h *BarEventHandler) HandleCandle(ctx context.Context, msg kafkago.Message) error {
	var event struct {
		SessionID string `json:"session_id"`
		Symbol    string `json:"symbol"`
		Time      int64  `json:"time"`
		Open      string `json:"open"`
		High      string `json:"high"`
		Low       string `json:"low"`
		Close     string `json:"close"`
		Volume    string `json:"volume"`
	}
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Error("malformed candle event", "error", err)
		return err
	}

	cmd := application.FeedBarCommand{
		Symbol: event.Symbol,
		Time:   event.Time,
		Open:   event.Open,
		High:   event.High,
		Low:    event.Low,
		Close:  event.Close,
		Volume: event.Volume,
	}

	sessionID := event.SessionID
	if sessionID == "" {
		sessionID = h.sessionID
	}
	if err := h.sim.FeedBar(ctx, sessionID, cmd); err != nil {
		return err
	}

	if h.bars != nil {
		bar, err := application.ParseBar(cmd)
		if err == nil {
			if err := h.bars.SaveBars(ctx, []domain.Bar{bar}); err != nil {
				h.logger.Error("failed to archive bar", "symbol", bar.Symbol, "error", err)
			}
		}
	}
	return nil
}

func (h *BarEventHandler) Subscribe(ctx context.Context, consumer *kafka.Consumer) {
	consumer.Start(ctx, 1, h.HandleCandle)
}
