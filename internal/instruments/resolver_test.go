package instruments

import (
	"errors"
	"log"
	"math"
	"testing"

	"github.com/pmansara/opendrive/internal/broker"
	"github.com/pmansara/opendrive/internal/models"
)

func testLogger() *log.Logger {
	return log.New(nullWriter{}, "", 0)
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

func sampleRows() []broker.ScripRow {
	return []broker.ScripRow{
		{Token: "3045", Symbol: "SBIN-EQ", Name: "SBIN", ExchSeg: "NSE", LotSize: 1},
		{Token: "2885", Symbol: "RELIANCE-EQ", Name: "RELIANCE", ExchSeg: "NSE", LotSize: 1},
		// Duplicate listing; the first row must win.
		{Token: "9999", Symbol: "SBIN-EQ", Name: "SBIN", ExchSeg: "NSE", LotSize: 1},
		// Non-EQ series on the cash segment, ignored.
		{Token: "3046", Symbol: "SBIN-BE", Name: "SBIN", ExchSeg: "NSE", LotSize: 1},

		{Token: "71001", Symbol: "SBIN25SEP25800CE", Name: "SBIN", Expiry: "25SEP25",
			Strike: 80000, LotSize: 750, InstrumentType: "OPTSTK", ExchSeg: "NFO"},
		{Token: "71000", Symbol: "SBIN25SEP25750CE", Name: "SBIN", Expiry: "25SEP25",
			Strike: 75000, LotSize: 750, InstrumentType: "OPTSTK", ExchSeg: "NFO"},
		{Token: "71002", Symbol: "SBIN25SEP25750PE", Name: "SBIN", Expiry: "25SEP25",
			Strike: 75000, LotSize: 750, InstrumentType: "OPTSTK", ExchSeg: "NFO"},
		{Token: "71003", Symbol: "SBIN25OCT25750CE", Name: "SBIN", Expiry: "25OCT25",
			Strike: 75000, LotSize: 750, InstrumentType: "OPTSTK", ExchSeg: "NFO"},
		// Unparsable strike, dropped.
		{Token: "71004", Symbol: "SBIN25SEP25900CE", Name: "SBIN", Expiry: "25SEP25",
			Strike: broker.Float(math.NaN()), LotSize: 750, InstrumentType: "OPTSTK", ExchSeg: "NFO"},
		// Futures row on the derivatives segment, ignored.
		{Token: "71005", Symbol: "SBIN25SEPFUT", Name: "SBIN", Expiry: "25SEP25",
			LotSize: 750, InstrumentType: "FUTSTK", ExchSeg: "NFO"},
	}
}

func TestResolveEquity(t *testing.T) {
	r := NewResolverFromRows(sampleRows(), testLogger())

	inst, err := r.ResolveEquity("SBIN")
	if err != nil {
		t.Fatalf("ResolveEquity: %v", err)
	}
	if inst.Token != "3045" {
		t.Errorf("token = %s, expected first listing 3045", inst.Token)
	}
	if inst.ExchangeSegment != models.SegmentNSE {
		t.Errorf("segment = %s", inst.ExchangeSegment)
	}

	if _, err := r.ResolveEquity("NOSUCH"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown symbol error = %v, expected ErrNotFound", err)
	}
}

func TestResolveOptionsFiltersAndSorts(t *testing.T) {
	r := NewResolverFromRows(sampleRows(), testLogger())

	chain, err := r.ResolveOptions("SBIN", "25SEP25", models.RightCall)
	if err != nil {
		t.Fatalf("ResolveOptions: %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("chain length = %d, expected 2 SEP calls", len(chain))
	}
	if chain[0].Strike != 75000 || chain[1].Strike != 80000 {
		t.Errorf("chain not strike-ascending: %v, %v", chain[0].Strike, chain[1].Strike)
	}
	for _, inst := range chain {
		if inst.Right != models.RightCall {
			t.Errorf("wrong right in call chain: %s", inst.Symbol)
		}
	}

	puts, err := r.ResolveOptions("SBIN", "25SEP25", models.RightPut)
	if err != nil {
		t.Fatalf("ResolveOptions puts: %v", err)
	}
	if len(puts) != 1 || puts[0].Token != "71002" {
		t.Errorf("puts = %+v", puts)
	}
}

func TestResolveOptionsNotFound(t *testing.T) {
	r := NewResolverFromRows(sampleRows(), testLogger())

	if _, err := r.ResolveOptions("RELIANCE", "25SEP25", models.RightCall); !errors.Is(err, ErrNotFound) {
		t.Errorf("no chain error = %v, expected ErrNotFound", err)
	}
	if _, err := r.ResolveOptions("SBIN", "25DEC25", models.RightCall); !errors.Is(err, ErrNotFound) {
		t.Errorf("no expiry match error = %v, expected ErrNotFound", err)
	}
}

func TestResolveOptionsMatchesExpiryInSymbol(t *testing.T) {
	rows := []broker.ScripRow{
		// Expiry field uses a different format than the request; the symbol
		// substring still matches.
		{Token: "71010", Symbol: "SBIN25SEP25750CE", Name: "SBIN", Expiry: "25SEP2025",
			Strike: 75000, LotSize: 750, InstrumentType: "OPTSTK", ExchSeg: "NFO"},
	}
	r := NewResolverFromRows(rows, testLogger())

	chain, err := r.ResolveOptions("SBIN", "25SEP25", models.RightCall)
	if err != nil {
		t.Fatalf("ResolveOptions: %v", err)
	}
	if len(chain) != 1 {
		t.Fatalf("chain length = %d", len(chain))
	}
}
