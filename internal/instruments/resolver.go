// Package instruments resolves trading symbols against the provider's scrip
// master: equities on the cash segment and stock-option chains on the
// derivatives segment.
package instruments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"

	"github.com/pmansara/opendrive/internal/broker"
	"github.com/pmansara/opendrive/internal/models"
)

// ErrNotFound is returned when a symbol has no listed equity or no contract
// for the requested expiry. Callers skip the symbol; it is never fatal.
var ErrNotFound = errors.New("instrument not found")

// Resolver answers equity and option-chain lookups from an in-memory copy of
// the scrip master. Loaded once at startup; read-only afterwards.
type Resolver struct {
	equities map[string]models.Instrument   // underlying name -> -EQ instrument
	options  map[string][]models.Instrument // underlying name -> OPTSTK contracts
	logger   *log.Logger
}

// NewResolver downloads the scrip master and builds the lookup tables.
func NewResolver(ctx context.Context, b broker.Broker, logger *log.Logger) (*Resolver, error) {
	rows, err := b.GetScripMaster(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading scrip master: %w", err)
	}
	return NewResolverFromRows(rows, logger), nil
}

// NewResolverFromRows builds a resolver from already-loaded scrip rows.
func NewResolverFromRows(rows []broker.ScripRow, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	r := &Resolver{
		equities: make(map[string]models.Instrument),
		options:  make(map[string][]models.Instrument),
		logger:   logger,
	}

	dropped := 0
	for i := range rows {
		row := &rows[i]
		switch {
		case row.ExchSeg == models.SegmentNSE && strings.Contains(row.Symbol, "EQ"):
			inst, ok := equityFromRow(row)
			if !ok {
				dropped++
				continue
			}
			// First listing wins; the dump can contain duplicates.
			if _, exists := r.equities[inst.Name]; !exists {
				r.equities[inst.Name] = inst
			}
		case row.ExchSeg == models.SegmentNFO && row.InstrumentType == models.InstrumentTypeStockOption:
			inst, ok := optionFromRow(row)
			if !ok {
				dropped++
				continue
			}
			r.options[inst.Name] = append(r.options[inst.Name], inst)
		}
	}

	// Strike-ascending order supports nearest-strike lookup downstream.
	for name := range r.options {
		chain := r.options[name]
		sort.SliceStable(chain, func(i, j int) bool { return chain[i].Strike < chain[j].Strike })
	}

	if dropped > 0 {
		r.logger.Printf("scrip master: dropped %d rows with unparsable strike or lot size", dropped)
	}
	return r
}

// ResolveEquity returns the cash-segment instrument for an underlying symbol.
func (r *Resolver) ResolveEquity(symbol string) (models.Instrument, error) {
	inst, ok := r.equities[symbol]
	if !ok {
		return models.Instrument{}, fmt.Errorf("equity %s: %w", symbol, ErrNotFound)
	}
	return inst, nil
}

// ResolveOptions returns the stock-option contracts for an underlying, right
// and expiry, ordered by strike ascending. Returns ErrNotFound when no
// contract matches.
func (r *Resolver) ResolveOptions(underlying string, expiry string, right models.OptionRight) ([]models.Instrument, error) {
	chain, ok := r.options[underlying]
	if !ok {
		return nil, fmt.Errorf("options for %s: %w", underlying, ErrNotFound)
	}

	out := make([]models.Instrument, 0, 16)
	for _, inst := range chain {
		if inst.Right != right {
			continue
		}
		if inst.Expiry != expiry && !strings.Contains(inst.Symbol, expiry) {
			continue
		}
		out = append(out, inst)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("options for %s expiry %s %s: %w", underlying, expiry, right, ErrNotFound)
	}
	return out, nil
}

func equityFromRow(row *broker.ScripRow) (models.Instrument, bool) {
	lot := row.LotSize.Float64()
	if math.IsNaN(lot) || lot <= 0 {
		return models.Instrument{}, false
	}
	return models.Instrument{
		Symbol:          row.Symbol,
		Name:            row.Name,
		Token:           row.Token,
		ExchangeSegment: models.SegmentNSE,
		InstrumentType:  models.InstrumentTypeEquity,
		LotSize:         int(lot),
	}, true
}

func optionFromRow(row *broker.ScripRow) (models.Instrument, bool) {
	strike := row.Strike.Float64()
	lot := row.LotSize.Float64()
	if math.IsNaN(strike) || strike <= 0 || math.IsNaN(lot) || lot <= 0 {
		return models.Instrument{}, false
	}

	var right models.OptionRight
	switch {
	case strings.HasSuffix(row.Symbol, string(models.RightCall)):
		right = models.RightCall
	case strings.HasSuffix(row.Symbol, string(models.RightPut)):
		right = models.RightPut
	default:
		return models.Instrument{}, false
	}

	return models.Instrument{
		Symbol:          row.Symbol,
		Name:            row.Name,
		Token:           row.Token,
		ExchangeSegment: models.SegmentNFO,
		InstrumentType:  models.InstrumentTypeStockOption,
		Expiry:          row.Expiry,
		Strike:          strike,
		Right:           right,
		LotSize:         int(lot),
	}, true
}
