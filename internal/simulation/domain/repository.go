package domain

import (
	"context"
	"time"
)

// ExecutionRepository persists the fill history.
type ExecutionRepository interface {
	SaveExecution(ctx context.Context, execution *Execution) error
	FindExecutions(ctx context.Context, symbol string, limit int) ([]*Execution, error)
}

// BacktestTask is one requested historical replay.
type BacktestTask struct {
	TaskID         string
	Symbol         string
	StartTime      time.Time
	EndTime        time.Time
	InitialBalance float64
	Status         string
	CreatedAt      time.Time
}

// Backtest task statuses.
const (
	BacktestPending   = "PENDING"
	BacktestRunning   = "RUNNING"
	BacktestCompleted = "COMPLETED"
	BacktestFailed    = "FAILED"
)

// BacktestReport summarizes a completed replay.
type BacktestReport struct {
	TaskID          string
	TotalReturn     float64
	NetProfit       float64
	TotalCommission float64
	MaxDrawdown     float64
	TotalTrades     int
	WinningTrades   int
	WinRate         float64
	FinalEquity     float64
}

// BacktestRepository persists backtest tasks and their reports.
type BacktestRepository interface {
	SaveTask(ctx context.Context, task *BacktestTask) error
	FindTaskByID(ctx context.Context, taskID string) (*BacktestTask, error)
	SaveReport(ctx context.Context, report *BacktestReport) error
	FindReportByTaskID(ctx context.Context, taskID string) (*BacktestReport, error)
}
