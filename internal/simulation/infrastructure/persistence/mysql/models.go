// Package mysql provides the GORM-backed repositories of the simulation
// service.
package mysql

import (
	"time"

	"gorm.io/gorm"
)

// BarModel stores one historical OHLCV bar.
type BarModel struct {
	gorm.Model
	Symbol  string    `gorm:"column:symbol;type:varchar(20);not null;uniqueIndex:idx_symbol_time,priority:1"`
	BarTime time.Time `gorm:"column:bar_time;type:datetime(3);not null;uniqueIndex:idx_symbol_time,priority:2"`
	Open    float64   `gorm:"column:open;type:decimal(20,8);not null"`
	High    float64   `gorm:"column:high;type:decimal(20,8);not null"`
	Low     float64   `gorm:"column:low;type:decimal(20,8);not null"`
	Close   float64   `gorm:"column:close;type:decimal(20,8);not null"`
	Volume  float64   `gorm:"column:volume;type:decimal(20,8)"`
}

func (BarModel) TableName() string { return "simulation_bars" }

// ExecutionModel stores one fill produced by the matching engine.
type ExecutionModel struct {
	gorm.Model
	ExecutionID       int64     `gorm:"column:execution_id;not null;index"`
	OrderID           int64     `gorm:"column:order_id;not null;index"`
	Symbol            string    `gorm:"column:symbol;type:varchar(20);not null;index"`
	ExecutedAt        time.Time `gorm:"column:executed_at;type:datetime(3);not null"`
	Direction         int8      `gorm:"column:direction;not null"`
	Price             float64   `gorm:"column:price;type:decimal(20,8);not null"`
	Quantity          float64   `gorm:"column:quantity;type:decimal(20,8);not null"`
	ScaleIn           bool      `gorm:"column:scale_in"`
	ScaleOut          bool      `gorm:"column:scale_out"`
	StopLossHit       bool      `gorm:"column:stop_loss_hit"`
	ProfitTargetHit   bool      `gorm:"column:profit_target_hit"`
	OpeningCommission float64   `gorm:"column:opening_commission;type:decimal(20,8)"`
	ClosingCommission float64   `gorm:"column:closing_commission;type:decimal(20,8)"`
}

func (ExecutionModel) TableName() string { return "simulation_executions" }

// BacktestTaskModel stores a backtest request and its status.
type BacktestTaskModel struct {
	gorm.Model
	TaskID         string    `gorm:"column:task_id;type:varchar(32);uniqueIndex;not null"`
	Symbol         string    `gorm:"column:symbol;type:varchar(20);not null"`
	StartTime      time.Time `gorm:"column:start_time;type:datetime(3);not null"`
	EndTime        time.Time `gorm:"column:end_time;type:datetime(3);not null"`
	InitialBalance float64   `gorm:"column:initial_balance;type:decimal(20,8)"`
	Status         string    `gorm:"column:status;type:varchar(20);default:'PENDING'"`
}

func (BacktestTaskModel) TableName() string { return "backtest_tasks" }

// BacktestReportModel stores the summary of a completed backtest.
type BacktestReportModel struct {
	gorm.Model
	TaskID          string  `gorm:"column:task_id;type:varchar(32);uniqueIndex;not null"`
	TotalReturn     float64 `gorm:"column:total_return;type:decimal(20,8)"`
	NetProfit       float64 `gorm:"column:net_profit;type:decimal(20,8)"`
	TotalCommission float64 `gorm:"column:total_commission;type:decimal(20,8)"`
	MaxDrawdown     float64 `gorm:"column:max_drawdown;type:decimal(10,6)"`
	TotalTrades     int     `gorm:"column:total_trades"`
	WinningTrades   int     `gorm:"column:winning_trades"`
	WinRate         float64 `gorm:"column:win_rate;type:decimal(10,6)"`
	FinalEquity     float64 `gorm:"column:final_equity;type:decimal(20,8)"`
}

func (BacktestReportModel) TableName() string { return "backtest_reports" }
