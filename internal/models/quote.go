package models

import "math"

// PrevDayOHLC is the prior trading session's daily candle for an instrument.
// A zero value is the documented degraded mode when the provider returns no
// data: every previous-day comparison predicate then evaluates false.
type PrevDayOHLC struct {
	Open  float64 `json:"prev_open"`
	High  float64 `json:"prev_high"`
	Low   float64 `json:"prev_low"`
	Close float64 `json:"prev_close"`
}

// QuoteSnapshot is one full market-quote row for an instrument within a scan
// cycle. The Prev fields start unset and are filled by the previous-day
// resolver exactly once per instrument per run. No history is retained beyond
// the current cycle.
type QuoteSnapshot struct {
	Token         string  `json:"token"`
	TradingSymbol string  `json:"trading_symbol"`
	Exchange      string  `json:"exchange"`
	LTP           float64 `json:"ltp"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	NetChange     float64 `json:"net_change"`
	TradeVolume   float64 `json:"trade_volume"`
	OpenInterest  float64 `json:"open_interest"`
	TotalBuyQty   float64 `json:"total_buy_qty"`
	TotalSellQty  float64 `json:"total_sell_qty"`

	Prev       PrevDayOHLC `json:"prev"`
	PrevFilled bool        `json:"prev_filled"`
}

// SetPrevDay fills the previous-day fields. It is a no-op once filled so a
// snapshot's enrichment happens at most once per run.
func (q *QuoteSnapshot) SetPrevDay(prev PrevDayOHLC) {
	if q.PrevFilled {
		return
	}
	q.Prev = prev
	q.PrevFilled = true
}

// Numeric returns the fields the scorer requires to be parsable, in a fixed
// order. A NaN in any of them invalidates the row.
func (q *QuoteSnapshot) Numeric() []float64 {
	return []float64{
		q.Open, q.High, q.Low, q.Close,
		q.TradeVolume, q.OpenInterest, q.TotalBuyQty, q.TotalSellQty, q.NetChange,
	}
}

// Valid reports whether every required numeric field parsed cleanly.
func (q *QuoteSnapshot) Valid() bool {
	for _, v := range q.Numeric() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
