package domain

import "time"

// Execution is the immutable record of one fill. Created exactly once per
// fill event and never mutated afterwards.
type Execution struct {
	ID      int64
	OrderID int64
	Symbol  string
	Time    time.Time
	// Direction of the trade that produced this execution.
	Direction Direction
	Price     float64
	Quantity  float64

	ScaleIn         bool
	ScaleOut        bool
	StopLossHit     bool
	ProfitTargetHit bool

	OpeningCommission float64
	ClosingCommission float64
}
