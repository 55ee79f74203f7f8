package models

import (
	"fmt"
	"time"
)

// Position is a filled entry being trailed by its monitor. It is owned
// exclusively by one TrailingStopMonitor goroutine: no other component reads
// or writes the mutable fields (HighPrice, StopPrice, State), so no lock is
// needed per position.
type Position struct {
	ID          string          `json:"id"`
	Record      ExecutionRecord `json:"record"`
	HighPrice   float64         `json:"high_price"`
	StopPrice   float64         `json:"stop_price"`
	State       PositionState   `json:"state"`
	OpenedAt    time.Time       `json:"opened_at"`
	ClosedAt    time.Time       `json:"closed_at,omitempty"`
	ExitPrice   float64         `json:"exit_price,omitempty"`
	ExitOrderID string          `json:"exit_order_id,omitempty"`
}

// NewPosition creates an active position from a filled execution record.
// The initial stop is entryPrice x (1 - stopLossPct/100).
func NewPosition(id string, record ExecutionRecord, stopLossPct float64) (*Position, error) {
	if !record.Filled() {
		return nil, fmt.Errorf("position %s: execution record for %s has no order id", id, record.OptionSymbol)
	}
	if stopLossPct <= 0 || stopLossPct >= 100 {
		return nil, fmt.Errorf("position %s: stop loss pct %.2f out of range (0,100)", id, stopLossPct)
	}
	p := &Position{
		ID:       id,
		Record:   record,
		State:    StateActive,
		OpenedAt: time.Now().UTC(),
	}
	p.HighPrice = record.EntryPrice
	p.StopPrice = stopPrice(p.HighPrice, stopLossPct)
	return p, nil
}

// RaiseHigh ratchets the high-water mark and recomputes the stop. The high is
// monotonically non-decreasing over the position's lifetime and the stop is
// recomputed only when the high increases, so the stop never falls.
func (p *Position) RaiseHigh(ltp, stopLossPct float64) bool {
	if ltp < p.HighPrice {
		return false
	}
	p.HighPrice = ltp
	p.StopPrice = stopPrice(p.HighPrice, stopLossPct)
	return true
}

// StopBreached reports whether the last traded price is at or below the stop.
func (p *Position) StopBreached(ltp float64) bool {
	return ltp <= p.StopPrice
}

// Close transitions the position to the terminal closed state. The position
// is considered closed once the exit decision fires, regardless of the sell
// order outcome.
func (p *Position) Close(exitPrice float64, exitOrderID string) error {
	next, err := Transition(p.State, StateClosed, ConditionStopTriggered)
	if err != nil {
		return fmt.Errorf("position %s: %w", p.ID, err)
	}
	p.State = next
	p.ExitPrice = exitPrice
	p.ExitOrderID = exitOrderID
	p.ClosedAt = time.Now().UTC()
	return nil
}

// Active reports whether the monitor should keep polling.
func (p *Position) Active() bool {
	return p.State == StateActive
}

func stopPrice(high, stopLossPct float64) float64 {
	return high * (1 - stopLossPct/100)
}
