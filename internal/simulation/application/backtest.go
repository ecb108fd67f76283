package application

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/wyfcoding/pkg/idgen"

	"github.com/wyfcoding/marketsim/internal/simulation/domain"
)

// OrderInstruction is one scripted order of a backtest: it is submitted to
// the engine just before the first bar at or after At is processed. Price
// fields are decimal strings; empty protective levels mean unset.
type OrderInstruction struct {
	At        time.Time `json:"at"`
	Type      string    `json:"type"`
	Side      string    `json:"side"`
	Quantity  string    `json:"quantity"`
	Price     string    `json:"price"`
	StopPrice string    `json:"stop_price"`
	ExitStop  string    `json:"exit_stop"`
	ExitLimit string    `json:"exit_limit"`
	LatencyMs int64     `json:"latency_ms"`
}

// RunBacktestCommand requests a historical replay of scripted orders.
type RunBacktestCommand struct {
	Symbol         string             `json:"symbol" binding:"required"`
	StartTime      time.Time          `json:"start_time" binding:"required"`
	EndTime        time.Time          `json:"end_time" binding:"required"`
	InitialBalance string             `json:"initial_balance"`
	Spread         string             `json:"spread"`
	Orders         []OrderInstruction `json:"orders"`
}

// BacktestApplicationService replays historical bars through a dedicated
// engine per task and persists the resulting report.
type BacktestApplicationService struct {
	bars   domain.BarRepository
	repo   domain.BacktestRepository
	logger *slog.Logger
}

func NewBacktestApplicationService(bars domain.BarRepository, repo domain.BacktestRepository, logger *slog.Logger) *BacktestApplicationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BacktestApplicationService{bars: bars, repo: repo, logger: logger}
}

// RunBacktest registers the task and runs the replay asynchronously,
// returning the task identifier immediately.
func (s *BacktestApplicationService) RunBacktest(ctx context.Context, cmd RunBacktestCommand) (string, error) {
	balance, err := parseAmount(cmd.InitialBalance)
	if err != nil {
		return "", fmt.Errorf("invalid initial balance: %w", err)
	}

	task := &domain.BacktestTask{
		TaskID:         fmt.Sprintf("BT-%d", idgen.GenID()),
		Symbol:         cmd.Symbol,
		StartTime:      cmd.StartTime,
		EndTime:        cmd.EndTime,
		InitialBalance: balance,
		Status:         domain.BacktestPending,
		CreatedAt:      time.Now(),
	}
	if err := s.repo.SaveTask(ctx, task); err != nil {
		return "", err
	}
	s.logger.Info("backtest task accepted", "task_id", task.TaskID, "symbol", task.Symbol)

	go func() {
		bg := context.Background()
		task.Status = domain.BacktestRunning
		if err := s.repo.SaveTask(bg, task); err != nil {
			s.logger.Error("failed to update backtest task", "task_id", task.TaskID, "error", err)
		}

		report, err := s.run(bg, task, cmd)
		if err != nil {
			s.logger.Error("backtest failed", "task_id", task.TaskID, "error", err)
			task.Status = domain.BacktestFailed
			s.repo.SaveTask(bg, task)
			return
		}

		task.Status = domain.BacktestCompleted
		s.repo.SaveTask(bg, task)
		if err := s.repo.SaveReport(bg, report); err != nil {
			s.logger.Error("failed to save backtest report", "task_id", task.TaskID, "error", err)
			return
		}
		s.logger.Info("backtest completed",
			"task_id", task.TaskID, "return", report.TotalReturn, "trades", report.TotalTrades)
	}()

	return task.TaskID, nil
}

// GetReport returns the report of a completed task.
func (s *BacktestApplicationService) GetReport(ctx context.Context, taskID string) (*BacktestReportDTO, error) {
	report, err := s.repo.FindReportByTaskID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return toBacktestReportDTO(report), nil
}

// GetTask returns the task itself, including its status.
func (s *BacktestApplicationService) GetTask(ctx context.Context, taskID string) (*domain.BacktestTask, error) {
	return s.repo.FindTaskByID(ctx, taskID)
}

// run performs the replay synchronously and builds the report.
func (s *BacktestApplicationService) run(ctx context.Context, task *domain.BacktestTask, cmd RunBacktestCommand) (*domain.BacktestReport, error) {
	bars, err := s.bars.GetHistoricalBars(ctx, task.Symbol, task.StartTime, task.EndTime)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars for %s in [%v, %v]", task.Symbol, task.StartTime, task.EndTime)
	}

	spread, err := parseAmount(cmd.Spread)
	if err != nil {
		return nil, fmt.Errorf("invalid spread: %w", err)
	}
	engine := domain.NewMatchingEngine(domain.Options{
		Spread:                 spread,
		CloseAllPositionsAtEnd: true,
		InitialBalance:         task.InitialBalance,
	}, nil, s.logger)

	stats := &backtestStats{}
	engine.Sink().AddExecutionListener(stats)
	engine.Sink().AddPositionChangeListener(stats)

	script := make([]OrderInstruction, len(cmd.Orders))
	copy(script, cmd.Orders)
	sort.SliceStable(script, func(i, j int) bool { return script[i].At.Before(script[j].At) })

	equity := newEquityCurve(task.InitialBalance)
	next := 0
	for _, bar := range bars {
		for next < len(script) && !script[next].At.After(bar.Time) {
			order, err := buildOrder(instructionToCommand(task.Symbol, script[next]))
			if err != nil {
				return nil, fmt.Errorf("order %d: %w", next, err)
			}
			if _, err := engine.SubmitOrder(order); err != nil {
				return nil, fmt.Errorf("order %d: %w", next, err)
			}
			next++
		}
		if err := engine.OnBar(bar); err != nil {
			return nil, err
		}
		equity.observe(engine.Account().Equity())
	}
	engine.Finish(task.Symbol)
	equity.observe(engine.Account().Equity())

	final := engine.Account().Equity()
	report := &domain.BacktestReport{
		TaskID:          task.TaskID,
		NetProfit:       final - task.InitialBalance,
		TotalCommission: engine.Account().TotalCommission(),
		MaxDrawdown:     equity.maxDrawdown,
		TotalTrades:     stats.trades,
		WinningTrades:   stats.wins,
		FinalEquity:     final,
	}
	if task.InitialBalance > 0 {
		report.TotalReturn = report.NetProfit / task.InitialBalance
	}
	if stats.closed > 0 {
		report.WinRate = float64(stats.wins) / float64(stats.closed)
	}
	return report, nil
}

func instructionToCommand(symbol string, in OrderInstruction) SubmitOrderCommand {
	return SubmitOrderCommand{
		Symbol:    symbol,
		Type:      in.Type,
		Side:      in.Side,
		Quantity:  in.Quantity,
		Price:     in.Price,
		StopPrice: in.StopPrice,
		ExitStop:  in.ExitStop,
		ExitLimit: in.ExitLimit,
		LatencyMs: in.LatencyMs,
	}
}

// backtestStats tallies trade outcomes from engine events.
type backtestStats struct {
	trades int
	closed int
	wins   int
}

func (s *backtestStats) OnExecution(*domain.Execution) { s.trades++ }

func (s *backtestStats) PositionOpened(*domain.Position)  {}
func (s *backtestStats) PositionChanged(*domain.Position) {}
func (s *backtestStats) PositionClosed(_ *domain.Position, realized float64) {
	s.closed++
	if realized > 0 {
		s.wins++
	}
}

// equityCurve tracks the running peak and the worst peak-to-trough drawdown
// as a fraction of the peak.
type equityCurve struct {
	peak        float64
	maxDrawdown float64
}

func newEquityCurve(initial float64) *equityCurve {
	return &equityCurve{peak: initial}
}

func (c *equityCurve) observe(equity float64) {
	c.peak = math.Max(c.peak, equity)
	if c.peak > 0 {
		c.maxDrawdown = math.Max(c.maxDrawdown, (c.peak-equity)/c.peak)
	}
}
