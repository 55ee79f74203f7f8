// Package models provides the domain types shared across the bot: instruments,
// quote snapshots, scored candidates, execution records and positions.
package models

import "fmt"

// Exchange segment identifiers used by the provider.
const (
	SegmentNSE = "NSE" // cash equities
	SegmentNFO = "NFO" // derivatives
)

// Instrument type identifiers from the scrip master.
const (
	InstrumentTypeEquity      = "EQ"
	InstrumentTypeStockOption = "OPTSTK"
)

// OptionRight identifies the side of an option contract.
type OptionRight string

const (
	// RightCall is a call option (CE suffix in the provider's symbols).
	RightCall OptionRight = "CE"
	// RightPut is a put option (PE suffix in the provider's symbols).
	RightPut OptionRight = "PE"
)

// Valid returns true if the right is one of the defined constants.
func (r OptionRight) Valid() bool {
	return r == RightCall || r == RightPut
}

// Instrument is a resolved entry from the scrip master. Immutable once
// resolved. Option instruments carry Expiry and Strike; equities do not.
type Instrument struct {
	Symbol          string      `json:"symbol"`           // provider trading symbol, e.g. "RELIANCE-EQ"
	Name            string      `json:"name"`             // underlying name, e.g. "RELIANCE"
	Token           string      `json:"token"`            // numeric token as string
	ExchangeSegment string      `json:"exchange_segment"` // NSE | NFO
	InstrumentType  string      `json:"instrument_type"`  // EQ | OPTSTK
	Expiry          string      `json:"expiry,omitempty"` // provider expiry string, e.g. "27MAR25"
	Strike          float64     `json:"strike,omitempty"` // provider scale (underlying price x100)
	Right           OptionRight `json:"right,omitempty"`
	LotSize         int         `json:"lot_size"`
}

// Key returns a unique identifier for the instrument: "segment:token".
// Tokens alone are only unique within an exchange segment.
func (i Instrument) Key() string {
	return fmt.Sprintf("%s:%s", i.ExchangeSegment, i.Token)
}
