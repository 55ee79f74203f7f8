// Package executor maps ranked candidates to concrete option contracts,
// checks capital sufficiency, and places entry orders.
package executor

import (
	"context"
	"errors"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pmansara/opendrive/internal/broker"
	"github.com/pmansara/opendrive/internal/instruments"
	"github.com/pmansara/opendrive/internal/models"
	"github.com/pmansara/opendrive/internal/util"
)

// OrderPlacer places entry orders. Satisfied by retry.Client so transient
// placement failures are retried before being recorded as misses.
type OrderPlacer interface {
	PlaceOrderWithRetry(ctx context.Context, req broker.OrderRequest) (string, error)
}

// Planner executes one planning pass over ranked candidates: calls first,
// then puts, in ranked order, so capital goes to the strongest signals.
type Planner struct {
	resolver    *instruments.Resolver
	broker      broker.Broker
	orders      OrderPlacer
	sleeper     util.Sleeper
	logger      *log.Logger
	pause       time.Duration
	productType string
	variety     string
}

// NewPlanner creates an execution planner.
func NewPlanner(resolver *instruments.Resolver, b broker.Broker, orders OrderPlacer,
	pause time.Duration, productType, variety string,
	sleeper util.Sleeper, logger *log.Logger) *Planner {
	if sleeper == nil {
		sleeper = util.RealSleeper{}
	}
	if logger == nil {
		logger = log.Default()
	}
	if productType == "" {
		productType = broker.ProductCarryForward
	}
	if variety == "" {
		variety = broker.VarietyNormal
	}
	return &Planner{
		resolver:    resolver,
		broker:      b,
		orders:      orders,
		sleeper:     sleeper,
		logger:      logger,
		pause:       pause,
		productType: productType,
		variety:     variety,
	}
}

// Execute maps each candidate to the near-the-money contract for expiry,
// checks it against the availableBalance snapshot, and places market buys.
//
// The balance snapshot is taken at planning start and never decremented:
// two orders can each individually pass the check and collectively overspend.
// This preserves the documented sequential, non-reserving behavior.
func (p *Planner) Execute(ctx context.Context, calls, puts []models.ScoredCandidate,
	availableBalance float64, expiry string) *models.ExecutionLedger {
	ledger := &models.ExecutionLedger{RunID: uuid.New().String()}

	candidates := make([]models.ScoredCandidate, 0, len(calls)+len(puts))
	candidates = append(candidates, calls...)
	candidates = append(candidates, puts...)

	for i := range candidates {
		// Pacing after every live-quote/order pair, to respect rate limits.
		// Contract misses make no provider call and skip the delay.
		if p.executeOne(ctx, &candidates[i], availableBalance, expiry, ledger) {
			p.sleeper.Sleep(p.pause)
		}
	}

	s := ledger.Summary()
	p.logger.Printf("planning pass complete: %d records, %d insufficient-funds skips, notional max %.2f min %.2f total %.2f",
		len(ledger.Records), len(ledger.Shortfalls), s.MaxNotional, s.MinNotional, s.TotalNotional)
	return ledger
}

// executeOne processes a single candidate and reports whether it reached the
// live-quote call, so the caller knows to pace.
func (p *Planner) executeOne(ctx context.Context, cand *models.ScoredCandidate,
	availableBalance float64, expiry string, ledger *models.ExecutionLedger) bool {
	underlying := underlyingName(cand.Snapshot.TradingSymbol)

	chain, err := p.resolver.ResolveOptions(underlying, expiry, cand.OptionType)
	if err != nil {
		if errors.Is(err, instruments.ErrNotFound) {
			p.logger.Printf("no valid option found for %s (%s %s)", underlying, expiry, cand.OptionType)
		} else {
			p.logger.Printf("resolving options for %s failed: %v", underlying, err)
		}
		ledger.Records = append(ledger.Records, models.ExecutionRecord{
			UnderlyingSymbol: underlying,
			OptionType:       cand.OptionType,
			SkippedReason:    models.SkipNoContract,
		})
		return false
	}

	contract := nearestStrike(chain, util.ScaledStrike(cand.Snapshot.Open))

	ltp, openInterest, err := p.fetchContractQuote(ctx, contract)
	if err != nil {
		p.logger.Printf("live quote for %s failed: %v", contract.Symbol, err)
		ledger.Records = append(ledger.Records, models.ExecutionRecord{
			Token:            contract.Token,
			OptionSymbol:     contract.Symbol,
			UnderlyingSymbol: underlying,
			OptionType:       cand.OptionType,
			Strike:           contract.Strike,
			LotSize:          contract.LotSize,
			SkippedReason:    models.SkipNoQuote,
		})
		return true
	}

	record := models.ExecutionRecord{
		Token:            contract.Token,
		OptionSymbol:     contract.Symbol,
		UnderlyingSymbol: underlying,
		OptionType:       cand.OptionType,
		Strike:           contract.Strike,
		EntryPrice:       ltp,
		LotSize:          contract.LotSize,
		NotionalCost:     ltp * float64(contract.LotSize),
		OpenInterest:     openInterest,
	}

	if record.NotionalCost > availableBalance {
		record.SkippedReason = models.SkipInsufficientFunds
		ledger.Shortfalls = append(ledger.Shortfalls, models.Shortfall{
			OptionSymbol:     contract.Symbol,
			RequiredCost:     record.NotionalCost,
			AvailableBalance: availableBalance,
			Shortfall:        record.NotionalCost - availableBalance,
		})
		ledger.Records = append(ledger.Records, record)
		p.logger.Printf("skipping %s: requires %.2f, available %.2f", contract.Symbol,
			record.NotionalCost, availableBalance)
		return true
	}

	p.logger.Printf("placing BUY %s at LTP %.2f, lot %d, notional %.2f",
		contract.Symbol, ltp, contract.LotSize, record.NotionalCost)
	orderID, err := p.orders.PlaceOrderWithRetry(ctx, broker.OrderRequest{
		Token:       contract.Token,
		Symbol:      contract.Symbol,
		Quantity:    contract.LotSize,
		Side:        broker.SideBuy,
		OrderType:   broker.OrderTypeMarket,
		ProductType: p.productType,
		Variety:     p.variety,
		Segment:     models.SegmentNFO,
	})
	if err != nil {
		// Non-fatal: the record stays with OrderID unset and the pass continues.
		p.logger.Printf("order placement for %s failed: %v", contract.Symbol, err)
	} else {
		record.OrderID = orderID
	}
	ledger.Records = append(ledger.Records, record)
	return true
}

// fetchContractQuote fetches the live quote for exactly one contract.
func (p *Planner) fetchContractQuote(ctx context.Context, contract models.Instrument) (ltp, oi float64, err error) {
	rows, err := p.broker.GetMarketQuotes(ctx, broker.QuoteModeFull,
		map[string][]string{models.SegmentNFO: {contract.Token}})
	if err != nil {
		return 0, 0, err
	}
	if len(rows) == 0 {
		return 0, 0, errors.New("empty quote response")
	}
	ltp = rows[0].LTP.Float64()
	oi = rows[0].OpenInterest.Float64()
	if math.IsNaN(ltp) {
		return 0, 0, errors.New("ltp not numeric")
	}
	if math.IsNaN(oi) {
		oi = 0
	}
	return ltp, oi, nil
}

// nearestStrike picks the contract whose strike is numerically closest to the
// scaled reference price. The chain is strike-ascending, so on a tie the
// lowest-index match wins.
func nearestStrike(chain []models.Instrument, scaledPrice float64) models.Instrument {
	best := chain[0]
	bestDiff := math.Abs(chain[0].Strike - scaledPrice)
	for _, inst := range chain[1:] {
		diff := math.Abs(inst.Strike - scaledPrice)
		if diff < bestDiff {
			bestDiff = diff
			best = inst
		}
	}
	return best
}

// underlyingName strips the provider series suffix ("RELIANCE-EQ" -> "RELIANCE").
func underlyingName(tradingSymbol string) string {
	if i := strings.Index(tradingSymbol, "-"); i >= 0 {
		return tradingSymbol[:i]
	}
	return tradingSymbol
}
