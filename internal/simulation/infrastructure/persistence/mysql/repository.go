package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/marketsim/internal/simulation/domain"
)

type barRepositoryImpl struct {
	db *gorm.DB
}

// NewBarRepository creates the MySQL bar repository.
func NewBarRepository(db *gorm.DB) domain.BarRepository {
	return &barRepositoryImpl{db: db}
}

func (r *barRepositoryImpl) GetHistoricalBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	var models []BarModel
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND bar_time BETWEEN ? AND ?", symbol, start, end).
		Order("bar_time ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	bars := make([]domain.Bar, 0, len(models))
	for _, m := range models {
		bars = append(bars, domain.Bar{
			Symbol: m.Symbol,
			Time:   m.BarTime,
			Open:   m.Open,
			High:   m.High,
			Low:    m.Low,
			Close:  m.Close,
			Volume: m.Volume,
		})
	}
	return bars, nil
}

func (r *barRepositoryImpl) SaveBars(ctx context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	models := make([]BarModel, 0, len(bars))
	for _, b := range bars {
		models = append(models, BarModel{
			Symbol:  b.Symbol,
			BarTime: b.Time,
			Open:    b.Open,
			High:    b.High,
			Low:     b.Low,
			Close:   b.Close,
			Volume:  b.Volume,
		})
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "bar_time"}},
		UpdateAll: true,
	}).Create(&models).Error
}

type executionRepositoryImpl struct {
	db *gorm.DB
}

// NewExecutionRepository creates the MySQL execution repository.
func NewExecutionRepository(db *gorm.DB) domain.ExecutionRepository {
	return &executionRepositoryImpl{db: db}
}

func (r *executionRepositoryImpl) SaveExecution(ctx context.Context, x *domain.Execution) error {
	m := &ExecutionModel{
		ExecutionID:       x.ID,
		OrderID:           x.OrderID,
		Symbol:            x.Symbol,
		ExecutedAt:        x.Time,
		Direction:         int8(x.Direction),
		Price:             x.Price,
		Quantity:          x.Quantity,
		ScaleIn:           x.ScaleIn,
		ScaleOut:          x.ScaleOut,
		StopLossHit:       x.StopLossHit,
		ProfitTargetHit:   x.ProfitTargetHit,
		OpeningCommission: x.OpeningCommission,
		ClosingCommission: x.ClosingCommission,
	}
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *executionRepositoryImpl) FindExecutions(ctx context.Context, symbol string, limit int) ([]*domain.Execution, error) {
	q := r.db.WithContext(ctx).Where("symbol = ?", symbol).Order("executed_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []ExecutionModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Execution, 0, len(models))
	for _, m := range models {
		out = append(out, &domain.Execution{
			ID:                m.ExecutionID,
			OrderID:           m.OrderID,
			Symbol:            m.Symbol,
			Time:              m.ExecutedAt,
			Direction:         domain.Direction(m.Direction),
			Price:             m.Price,
			Quantity:          m.Quantity,
			ScaleIn:           m.ScaleIn,
			ScaleOut:          m.ScaleOut,
			StopLossHit:       m.StopLossHit,
			ProfitTargetHit:   m.ProfitTargetHit,
			OpeningCommission: m.OpeningCommission,
			ClosingCommission: m.ClosingCommission,
		})
	}
	return out, nil
}

type backtestRepositoryImpl struct {
	db *gorm.DB
}

// NewBacktestRepository creates the MySQL backtest repository.
func NewBacktestRepository(db *gorm.DB) domain.BacktestRepository {
	return &backtestRepositoryImpl{db: db}
}

func (r *backtestRepositoryImpl) SaveTask(ctx context.Context, task *domain.BacktestTask) error {
	m := &BacktestTaskModel{
		TaskID:         task.TaskID,
		Symbol:         task.Symbol,
		StartTime:      task.StartTime,
		EndTime:        task.EndTime,
		InitialBalance: task.InitialBalance,
		Status:         task.Status,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task_id"}},
		UpdateAll: true,
	}).Create(m).Error
}

func (r *backtestRepositoryImpl) FindTaskByID(ctx context.Context, taskID string) (*domain.BacktestTask, error) {
	var m BacktestTaskModel
	err := r.db.WithContext(ctx).Where("task_id = ?", taskID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.BacktestTask{
		TaskID:         m.TaskID,
		Symbol:         m.Symbol,
		StartTime:      m.StartTime,
		EndTime:        m.EndTime,
		InitialBalance: m.InitialBalance,
		Status:         m.Status,
		CreatedAt:      m.CreatedAt,
	}, nil
}

func (r *backtestRepositoryImpl) SaveReport(ctx context.Context, report *domain.BacktestReport) error {
	m := &BacktestReportModel{
		TaskID:          report.TaskID,
		TotalReturn:     report.TotalReturn,
		NetProfit:       report.NetProfit,
		TotalCommission: report.TotalCommission,
		MaxDrawdown:     report.MaxDrawdown,
		TotalTrades:     report.TotalTrades,
		WinningTrades:   report.WinningTrades,
		WinRate:         report.WinRate,
		FinalEquity:     report.FinalEquity,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task_id"}},
		UpdateAll: true,
	}).Create(m).Error
}

func (r *backtestRepositoryImpl) FindReportByTaskID(ctx context.Context, taskID string) (*domain.BacktestReport, error) {
	var m BacktestReportModel
	err := r.db.WithContext(ctx).Where("task_id = ?", taskID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.BacktestReport{
		TaskID:          m.TaskID,
		TotalReturn:     m.TotalReturn,
		NetProfit:       m.NetProfit,
		TotalCommission: m.TotalCommission,
		MaxDrawdown:     m.MaxDrawdown,
		TotalTrades:     m.TotalTrades,
		WinningTrades:   m.WinningTrades,
		WinRate:         m.WinRate,
		FinalEquity:     m.FinalEquity,
	}, nil
}
