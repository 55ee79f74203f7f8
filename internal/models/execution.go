package models

// Skip reasons recorded on execution records that did not reach a broker order.
const (
	SkipNoContract        = "no contract"
	SkipNoQuote           = "no quote"
	SkipInsufficientFunds = "insufficient funds"
)

// ExecutionRecord captures one candidate's trip through the planner. Created
// once per candidate that reaches order placement; immutable after creation
// except OrderID, which is filled on a successful placement.
type ExecutionRecord struct {
	Token            string      `json:"token"`
	OptionSymbol     string      `json:"option_symbol"`
	UnderlyingSymbol string      `json:"underlying_symbol"`
	OptionType       OptionRight `json:"option_type"`
	Strike           float64     `json:"strike"`
	EntryPrice       float64     `json:"entry_price"`
	LotSize          int         `json:"lot_size"`
	NotionalCost     float64     `json:"notional_cost"`
	OpenInterest     float64     `json:"open_interest_at_entry"`
	OrderID          string      `json:"order_id,omitempty"`
	SkippedReason    string      `json:"skipped_reason,omitempty"`
}

// Filled reports whether the record resulted in an accepted broker order.
func (r *ExecutionRecord) Filled() bool {
	return r.OrderID != ""
}

// Shortfall describes a candidate skipped for insufficient funds.
type Shortfall struct {
	OptionSymbol     string  `json:"option_symbol"`
	RequiredCost     float64 `json:"required_cost"`
	AvailableBalance float64 `json:"available_balance"`
	Shortfall        float64 `json:"shortfall"`
}

// LedgerSummary aggregates notional cost across a run's filled records.
type LedgerSummary struct {
	MaxNotional   float64 `json:"max_notional"`
	MinNotional   float64 `json:"min_notional"`
	TotalNotional float64 `json:"total_notional"`
	FilledOrders  int     `json:"filled_orders"`
}

// ExecutionLedger is the per-run record of everything the planner did.
type ExecutionLedger struct {
	RunID      string            `json:"run_id"`
	Records    []ExecutionRecord `json:"records"`
	Shortfalls []Shortfall       `json:"shortfalls"`
}

// Summary computes max/min/total notional over filled records. Skipped
// candidates and failed placements (no order ID) are excluded.
func (l *ExecutionLedger) Summary() LedgerSummary {
	var s LedgerSummary
	for i := range l.Records {
		r := &l.Records[i]
		if !r.Filled() {
			continue
		}
		if s.FilledOrders == 0 || r.NotionalCost > s.MaxNotional {
			s.MaxNotional = r.NotionalCost
		}
		if s.FilledOrders == 0 || r.NotionalCost < s.MinNotional {
			s.MinNotional = r.NotionalCost
		}
		s.TotalNotional += r.NotionalCost
		s.FilledOrders++
	}
	return s
}
