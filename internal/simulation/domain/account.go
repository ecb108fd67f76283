package domain

import "sync"

// Account aggregates the simulated balances and the per-symbol state. The
// realized profit accumulator only changes on reducing trades; the unrealized
// map is recomputed from the latest bar close, never drifted incrementally.
// Commissions are accumulated separately so they never leak into the realized
// trading result.
type Account struct {
	startingBalance float64
	realized        float64
	commission      float64

	mu          sync.RWMutex
	instruments map[string]*Instrument
	unrealized  map[string]float64
}

// NewAccount creates an account with the given starting balance.
func NewAccount(startingBalance float64) *Account {
	return &Account{
		startingBalance: startingBalance,
		instruments:     make(map[string]*Instrument),
		unrealized:      make(map[string]float64),
	}
}

// StartingBalance returns the initial account balance.
func (a *Account) StartingBalance() float64 { return a.startingBalance }

// RealizedPnL returns the accumulated realized trading profit, before
// commissions.
func (a *Account) RealizedPnL() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.realized
}

// TotalCommission returns the commissions charged so far.
func (a *Account) TotalCommission() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.commission
}

// UnrealizedPnL returns the mark-to-market profit over all open positions.
func (a *Account) UnrealizedPnL() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.unrealizedLocked()
}

func (a *Account) unrealizedLocked() float64 {
	var total float64
	for _, p := range a.unrealized {
		total += p
	}
	return total
}

// Balance returns the cash balance: starting balance plus realized profit
// minus commissions.
func (a *Account) Balance() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.startingBalance + a.realized - a.commission
}

// Equity returns balance plus unrealized profit.
func (a *Account) Equity() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.startingBalance + a.realized - a.commission + a.unrealizedLocked()
}

// Instrument returns the per-symbol state, created lazily on first use.
func (a *Account) Instrument(symbol string) *Instrument {
	a.mu.RLock()
	inst := a.instruments[symbol]
	a.mu.RUnlock()
	if inst != nil {
		return inst
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if inst = a.instruments[symbol]; inst == nil {
		inst = newInstrument(symbol)
		a.instruments[symbol] = inst
	}
	return inst
}

// Position returns the open position for the symbol, nil when flat.
func (a *Account) Position(symbol string) *Position {
	return a.Instrument(symbol).position
}

// Symbols returns the symbols referenced so far.
func (a *Account) Symbols() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.instruments))
	for s := range a.instruments {
		out = append(out, s)
	}
	return out
}

// addRealized records realized profit from a reducing trade.
func (a *Account) addRealized(delta float64) {
	a.mu.Lock()
	a.realized += delta
	a.mu.Unlock()
}

// addCommission records a charged commission.
func (a *Account) addCommission(amount float64) {
	if amount == 0 {
		return
	}
	a.mu.Lock()
	a.commission += amount
	a.mu.Unlock()
}

// markToMarket recomputes the symbol's unrealized profit from the bar close.
func (a *Account) markToMarket(inst *Instrument, bar Bar) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p := inst.position; p != nil {
		p.UpdateProfit(bar.Close, bar.Time)
		p.barsHeld++
		a.unrealized[inst.symbol] = p.Profit()
	} else {
		delete(a.unrealized, inst.symbol)
	}
}

// clearUnrealized drops the symbol's mark after its position closed mid-bar.
func (a *Account) clearUnrealized(symbol string) {
	a.mu.Lock()
	delete(a.unrealized, symbol)
	a.mu.Unlock()
}
