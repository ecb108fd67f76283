// Package application orchestrates simulation sessions and backtest runs on
// top of the matching engine domain.
package application

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/marketsim/internal/simulation/domain"
)

// SessionDTO describes a live simulation session.
type SessionDTO struct {
	SessionID string `json:"session_id"`
	CreatedAt int64  `json:"created_at"`
}

// AccountDTO is the wire form of the simulated account.
type AccountDTO struct {
	StartingBalance string `json:"starting_balance"`
	Balance         string `json:"balance"`
	Equity          string `json:"equity"`
	RealizedPnL     string `json:"realized_pnl"`
	UnrealizedPnL   string `json:"unrealized_pnl"`
	TotalCommission string `json:"total_commission"`
}

// PositionDTO is the wire form of an open position.
type PositionDTO struct {
	PositionID    int64  `json:"position_id"`
	Symbol        string `json:"symbol"`
	Direction     string `json:"direction"`
	Quantity      string `json:"quantity"`
	EntryPrice    string `json:"entry_price"`
	AvgPrice      string `json:"avg_price"`
	UnrealizedPnL string `json:"unrealized_pnl"`
	ExitStop      string `json:"exit_stop,omitempty"`
	ExitLimit     string `json:"exit_limit,omitempty"`
	BarsHeld      int    `json:"bars_held"`
	EntryTime     int64  `json:"entry_time"`
}

// OrderDTO is the wire form of an order.
type OrderDTO struct {
	OrderID     int64  `json:"order_id"`
	Symbol      string `json:"symbol"`
	Type        string `json:"type"`
	Side        string `json:"side"`
	Quantity    string `json:"quantity"`
	Price       string `json:"price,omitempty"`
	StopPrice   string `json:"stop_price,omitempty"`
	TimeInForce string `json:"time_in_force"`
	Status      string `json:"status"`
	FillPrice   string `json:"fill_price,omitempty"`
	FillTime    int64  `json:"fill_time,omitempty"`
}

// ExecutionDTO is the wire form of a recorded fill.
type ExecutionDTO struct {
	ExecutionID     int64  `json:"execution_id"`
	OrderID         int64  `json:"order_id"`
	Symbol          string `json:"symbol"`
	Time            int64  `json:"time"`
	Direction       string `json:"direction"`
	Price           string `json:"price"`
	Quantity        string `json:"quantity"`
	ScaleIn         bool   `json:"scale_in"`
	ScaleOut        bool   `json:"scale_out"`
	StopLossHit     bool   `json:"stop_loss_hit"`
	ProfitTargetHit bool   `json:"profit_target_hit"`
}

// BacktestReportDTO is the wire form of a backtest report.
type BacktestReportDTO struct {
	TaskID          string `json:"task_id"`
	TotalReturn     string `json:"total_return"`
	NetProfit       string `json:"net_profit"`
	TotalCommission string `json:"total_commission"`
	MaxDrawdown     string `json:"max_drawdown"`
	TotalTrades     int    `json:"total_trades"`
	WinningTrades   int    `json:"winning_trades"`
	WinRate         string `json:"win_rate"`
	FinalEquity     string `json:"final_equity"`
}

func formatAmount(v float64) string {
	return decimal.NewFromFloat(v).String()
}

// formatOptional renders NaN (unset) as the empty string.
func formatOptional(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return formatAmount(v)
}

func toAccountDTO(a *domain.Account) AccountDTO {
	return AccountDTO{
		StartingBalance: formatAmount(a.StartingBalance()),
		Balance:         formatAmount(a.Balance()),
		Equity:          formatAmount(a.Equity()),
		RealizedPnL:     formatAmount(a.RealizedPnL()),
		UnrealizedPnL:   formatAmount(a.UnrealizedPnL()),
		TotalCommission: formatAmount(a.TotalCommission()),
	}
}

func toPositionDTO(p *domain.Position) *PositionDTO {
	if p == nil {
		return nil
	}
	return &PositionDTO{
		PositionID:    p.ID,
		Symbol:        p.Symbol,
		Direction:     p.Direction.String(),
		Quantity:      formatAmount(p.Quantity),
		EntryPrice:    formatAmount(p.EntryPrice),
		AvgPrice:      formatAmount(p.AvgPrice),
		UnrealizedPnL: formatAmount(p.Profit()),
		ExitStop:      formatOptional(p.ExitStop),
		ExitLimit:     formatOptional(p.ExitLimit),
		BarsHeld:      p.BarsHeld(),
		EntryTime:     p.EntryTime.UnixMilli(),
	}
}

func toOrderDTO(o *domain.Order) OrderDTO {
	dto := OrderDTO{
		OrderID:     o.ID(),
		Symbol:      o.Symbol,
		Type:        o.Type.String(),
		Side:        o.Side.String(),
		Quantity:    formatAmount(o.Quantity),
		TimeInForce: o.TimeInForce.String(),
		Status:      o.Status().String(),
		FillPrice:   formatOptional(o.FillPrice()),
	}
	if o.Type == domain.OrderTypeLimit || o.Type == domain.OrderTypeStopLimit {
		dto.Price = formatAmount(o.Price)
	}
	if o.Type == domain.OrderTypeStop || o.Type == domain.OrderTypeStopLimit {
		dto.StopPrice = formatAmount(o.StopPrice)
	}
	if !o.FillTime().IsZero() {
		dto.FillTime = o.FillTime().UnixMilli()
	}
	return dto
}

func toExecutionDTO(x *domain.Execution) ExecutionDTO {
	return ExecutionDTO{
		ExecutionID:     x.ID,
		OrderID:         x.OrderID,
		Symbol:          x.Symbol,
		Time:            x.Time.UnixMilli(),
		Direction:       x.Direction.String(),
		Price:           formatAmount(x.Price),
		Quantity:        formatAmount(x.Quantity),
		ScaleIn:         x.ScaleIn,
		ScaleOut:        x.ScaleOut,
		StopLossHit:     x.StopLossHit,
		ProfitTargetHit: x.ProfitTargetHit,
	}
}

func toBacktestReportDTO(r *domain.BacktestReport) *BacktestReportDTO {
	if r == nil {
		return nil
	}
	return &BacktestReportDTO{
		TaskID:          r.TaskID,
		TotalReturn:     formatAmount(r.TotalReturn),
		NetProfit:       formatAmount(r.NetProfit),
		TotalCommission: formatAmount(r.TotalCommission),
		MaxDrawdown:     formatAmount(r.MaxDrawdown),
		TotalTrades:     r.TotalTrades,
		WinningTrades:   r.WinningTrades,
		WinRate:         formatAmount(r.WinRate),
		FinalEquity:     formatAmount(r.FinalEquity),
	}
}

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
