package application

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/idgen"

	"github.com/wyfcoding/marketsim/internal/simulation/domain"
)

// EngineObserver hooks external listeners (event publishers, recorders) into
// every newly created engine's sink.
type EngineObserver func(sessionID string, sink *domain.EventSink)

// ErrSessionNotFound is returned for an unknown session identifier.
var ErrSessionNotFound = fmt.Errorf("simulation session not found")

// ErrOrderNotFound is returned when an order identifier is not part of the
// session.
var ErrOrderNotFound = fmt.Errorf("order not found")

// CreateSessionCommand configures a new simulation session. Monetary fields
// are decimal strings; empty means zero.
type CreateSessionCommand struct {
	Spread                  string `json:"spread"`
	InitialBalance          string `json:"initial_balance"`
	AllowSameBarExit        bool   `json:"allow_same_bar_exit"`
	AllowTakeProfitSlippage bool   `json:"allow_take_profit_slippage"`
	CloseAllPositionsAtEnd  bool   `json:"close_all_positions_at_end"`
}

// SubmitOrderCommand places one order into a session.
type SubmitOrderCommand struct {
	Symbol      string `json:"symbol" binding:"required"`
	Type        string `json:"type" binding:"required"`
	Side        string `json:"side" binding:"required"`
	Quantity    string `json:"quantity" binding:"required"`
	Price       string `json:"price"`
	StopPrice   string `json:"stop_price"`
	ExitStop    string `json:"exit_stop"`
	ExitLimit   string `json:"exit_limit"`
	TimeInForce string `json:"time_in_force"`
	LatencyMs   int64  `json:"latency_ms"`
	Expiration  int64  `json:"expiration"`
	ValidSince  int64  `json:"valid_since"`
}

// FeedBarCommand pushes one completed bar into a session.
type FeedBarCommand struct {
	Symbol string `json:"symbol" binding:"required"`
	Time   int64  `json:"time" binding:"required"`
	Open   string `json:"open" binding:"required"`
	High   string `json:"high" binding:"required"`
	Low    string `json:"low" binding:"required"`
	Close  string `json:"close" binding:"required"`
	Volume string `json:"volume"`
}

type session struct {
	id      string
	engine  *domain.MatchingEngine
	created time.Time

	mu     sync.Mutex
	orders map[int64]*domain.Order
}

// SimulationApplicationService owns the live simulation sessions. Each
// session wraps one matching engine; bar feeding for a session must stay
// sequential, which the service enforces with a per-session lock.
type SimulationApplicationService struct {
	logger    *slog.Logger
	execs     domain.ExecutionRepository
	observers []EngineObserver

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewSimulationApplicationService creates the session manager. execs may be
// nil when fills need not be persisted; observers are attached to every new
// session's event sink.
func NewSimulationApplicationService(execs domain.ExecutionRepository, logger *slog.Logger, observers ...EngineObserver) *SimulationApplicationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SimulationApplicationService{
		logger:    logger,
		execs:     execs,
		observers: observers,
		sessions:  make(map[string]*session),
	}
}

// CreateSession starts a new simulation session and returns its identifier.
func (s *SimulationApplicationService) CreateSession(ctx context.Context, cmd CreateSessionCommand) (*SessionDTO, error) {
	spread, err := parseAmount(cmd.Spread)
	if err != nil {
		return nil, fmt.Errorf("invalid spread: %w", err)
	}
	balance, err := parseAmount(cmd.InitialBalance)
	if err != nil {
		return nil, fmt.Errorf("invalid initial balance: %w", err)
	}

	opts := domain.Options{
		Spread:                  spread,
		AllowSameBarExit:        cmd.AllowSameBarExit,
		AllowTakeProfitSlippage: cmd.AllowTakeProfitSlippage,
		CloseAllPositionsAtEnd:  cmd.CloseAllPositionsAtEnd,
		InitialBalance:          balance,
	}

	sess := &session{
		id:      fmt.Sprintf("SIM-%d", idgen.GenID()),
		engine:  domain.NewMatchingEngine(opts, nil, s.logger),
		created: time.Now(),
		orders:  make(map[int64]*domain.Order),
	}
	if s.execs != nil {
		sess.engine.Sink().AddExecutionListener(&executionRecorder{repo: s.execs, logger: s.logger})
	}
	for _, attach := range s.observers {
		attach(sess.id, sess.engine.Sink())
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.logger.Info("simulation session created", "session_id", sess.id, "spread", spread)
	return &SessionDTO{SessionID: sess.id, CreatedAt: sess.created.UnixMilli()}, nil
}

// SubmitOrder places an order into the session's engine.
func (s *SimulationApplicationService) SubmitOrder(ctx context.Context, sessionID string, cmd SubmitOrderCommand) (*OrderDTO, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	order, err := buildOrder(cmd)
	if err != nil {
		return nil, err
	}
	if _, err := sess.engine.SubmitOrder(order); err != nil {
		return nil, err
	}

	sess.mu.Lock()
	sess.orders[order.ID()] = order
	sess.mu.Unlock()

	dto := toOrderDTO(order)
	return &dto, nil
}

// CancelOrder requests cancellation of an order. The cancellation is
// cooperative and takes effect on the next bar.
func (s *SimulationApplicationService) CancelOrder(ctx context.Context, sessionID string, orderID int64) error {
	sess, err := s.session(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	order := sess.orders[orderID]
	sess.mu.Unlock()
	if order == nil {
		return fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
	}
	order.Cancel()
	return nil
}

// FeedBar pushes one completed bar through the session's engine.
func (s *SimulationApplicationService) FeedBar(ctx context.Context, sessionID string, cmd FeedBarCommand) error {
	sess, err := s.session(sessionID)
	if err != nil {
		return err
	}
	bar, err := buildBar(cmd)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.engine.OnBar(bar); err != nil {
		s.logger.Error("bar processing failed", "session_id", sessionID, "symbol", bar.Symbol, "error", err)
		return err
	}
	return nil
}

// GetAccount returns the session's account snapshot.
func (s *SimulationApplicationService) GetAccount(ctx context.Context, sessionID string) (*AccountDTO, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	dto := toAccountDTO(sess.engine.Account())
	return &dto, nil
}

// GetPosition returns the open position for a symbol, nil when flat.
func (s *SimulationApplicationService) GetPosition(ctx context.Context, sessionID, symbol string) (*PositionDTO, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return toPositionDTO(sess.engine.Account().Position(symbol)), nil
}

// GetOpenOrders returns the working orders of a symbol.
func (s *SimulationApplicationService) GetOpenOrders(ctx context.Context, sessionID, symbol string) ([]OrderDTO, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	working := sess.engine.Account().Instrument(symbol).WorkingOrders()
	out := make([]OrderDTO, 0, len(working))
	for _, o := range working {
		out = append(out, toOrderDTO(o))
	}
	return out, nil
}

// CloseSession finishes every instrument of the session and removes it,
// returning the final account snapshot.
func (s *SimulationApplicationService) CloseSession(ctx context.Context, sessionID string) (*AccountDTO, error) {
	s.mu.Lock()
	sess := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if sess == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	sess.mu.Lock()
	for _, symbol := range sess.engine.Account().Symbols() {
		sess.engine.Finish(symbol)
	}
	sess.mu.Unlock()

	dto := toAccountDTO(sess.engine.Account())
	s.logger.Info("simulation session closed", "session_id", sessionID, "equity", dto.Equity)
	return &dto, nil
}

// ListExecutions returns the most recent recorded fills of a symbol across
// sessions.
func (s *SimulationApplicationService) ListExecutions(ctx context.Context, symbol string, limit int) ([]ExecutionDTO, error) {
	if s.execs == nil {
		return nil, nil
	}
	executions, err := s.execs.FindExecutions(ctx, symbol, limit)
	if err != nil {
		return nil, err
	}
	out := make([]ExecutionDTO, 0, len(executions))
	for _, x := range executions {
		out = append(out, toExecutionDTO(x))
	}
	return out, nil
}

func (s *SimulationApplicationService) session(id string) (*session, error) {
	s.mu.RLock()
	sess := s.sessions[id]
	s.mu.RUnlock()
	if sess == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// executionRecorder persists fills as the engine produces them.
type executionRecorder struct {
	repo   domain.ExecutionRepository
	logger *slog.Logger
}

func (r *executionRecorder) OnExecution(execution *domain.Execution) {
	if err := r.repo.SaveExecution(context.Background(), execution); err != nil {
		r.logger.Error("failed to persist execution",
			"execution_id", execution.ID, "symbol", execution.Symbol, "error", err)
	}
}

func buildOrder(cmd SubmitOrderCommand) (*domain.Order, error) {
	typ, err := parseOrderType(cmd.Type)
	if err != nil {
		return nil, err
	}
	side, err := parseSide(cmd.Side)
	if err != nil {
		return nil, err
	}
	tif, err := parseTimeInForce(cmd.TimeInForce)
	if err != nil {
		return nil, err
	}
	quantity, err := parseAmount(cmd.Quantity)
	if err != nil {
		return nil, fmt.Errorf("invalid quantity: %w", err)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}

	o := domain.NewOrder(cmd.Symbol, typ, side, quantity)
	o.TimeInForce = tif
	o.Latency = time.Duration(cmd.LatencyMs) * time.Millisecond
	o.Expiration = millisToTime(cmd.Expiration)
	o.ValidSince = millisToTime(cmd.ValidSince)

	if o.Price, err = parseAmount(cmd.Price); err != nil {
		return nil, fmt.Errorf("invalid price: %w", err)
	}
	if o.StopPrice, err = parseAmount(cmd.StopPrice); err != nil {
		return nil, fmt.Errorf("invalid stop price: %w", err)
	}
	if o.ExitStop, err = parseLevel(cmd.ExitStop); err != nil {
		return nil, fmt.Errorf("invalid exit stop: %w", err)
	}
	if o.ExitLimit, err = parseLevel(cmd.ExitLimit); err != nil {
		return nil, fmt.Errorf("invalid exit limit: %w", err)
	}
	return o, nil
}

// ParseBar converts a bar command into its domain form, validating the
// OHLC relationship.
func ParseBar(cmd FeedBarCommand) (domain.Bar, error) {
	return buildBar(cmd)
}

func buildBar(cmd FeedBarCommand) (domain.Bar, error) {
	bar := domain.Bar{Symbol: cmd.Symbol, Time: time.UnixMilli(cmd.Time)}
	var err error
	if bar.Open, err = parseAmount(cmd.Open); err != nil {
		return bar, fmt.Errorf("invalid open: %w", err)
	}
	if bar.High, err = parseAmount(cmd.High); err != nil {
		return bar, fmt.Errorf("invalid high: %w", err)
	}
	if bar.Low, err = parseAmount(cmd.Low); err != nil {
		return bar, fmt.Errorf("invalid low: %w", err)
	}
	if bar.Close, err = parseAmount(cmd.Close); err != nil {
		return bar, fmt.Errorf("invalid close: %w", err)
	}
	if bar.Volume, err = parseAmount(cmd.Volume); err != nil {
		return bar, fmt.Errorf("invalid volume: %w", err)
	}
	if bar.High < bar.Low || !bar.Contains(bar.Open) || !bar.Contains(bar.Close) {
		return bar, fmt.Errorf("malformed bar: open/close outside [low, high]")
	}
	return bar, nil
}

// parseAmount parses a decimal string, empty meaning zero.
func parseAmount(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

// parseLevel parses an optional protective level, empty meaning unset.
func parseLevel(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return parseAmount(s)
}

func parseOrderType(s string) (domain.OrderType, error) {
	switch s {
	case "MARKET":
		return domain.OrderTypeMarket, nil
	case "STOP":
		return domain.OrderTypeStop, nil
	case "LIMIT":
		return domain.OrderTypeLimit, nil
	case "STOP_LIMIT":
		return domain.OrderTypeStopLimit, nil
	}
	return 0, fmt.Errorf("unknown order type %q", s)
}

func parseSide(s string) (domain.Side, error) {
	switch s {
	case "BUY":
		return domain.SideBuy, nil
	case "SELL":
		return domain.SideSell, nil
	case "SELL_SHORT":
		return domain.SideSellShort, nil
	case "BUY_TO_COVER":
		return domain.SideBuyToCover, nil
	}
	return 0, fmt.Errorf("unknown side %q", s)
}

func parseTimeInForce(s string) (domain.TimeInForce, error) {
	switch s {
	case "", "STANDARD":
		return domain.TIFStandard, nil
	case "OPEN":
		return domain.TIFAtOpen, nil
	case "CLOSE":
		return domain.TIFAtClose, nil
	}
	return 0, fmt.Errorf("unknown time in force %q", s)
}
