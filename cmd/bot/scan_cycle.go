package main

import (
	"context"

	"github.com/pmansara/opendrive/internal/models"
)

// runScanCycle executes one full pass: resolve the universe, fetch batched
// quotes, enrich with previous-day bars, score both sides, and hand the
// ranked candidates to the planner. Filled orders get a trailing-stop
// monitor; the run ledger is persisted either way.
func (b *Bot) runScanCycle(ctx context.Context) {
	b.logger.Println("Starting scan cycle...")

	universe := b.pendingUniverse()
	if len(universe) == 0 {
		b.logger.Println("Every universe symbol has been traded, nothing to scan")
		return
	}

	insts := make([]models.Instrument, 0, len(universe))
	byToken := make(map[string]models.Instrument, len(universe))
	for _, sym := range universe {
		inst, err := b.resolver.ResolveEquity(sym)
		if err != nil {
			b.logger.Printf("Skipping %s: %v", sym, err)
			continue
		}
		insts = append(insts, inst)
		byToken[inst.Token] = inst
	}
	if len(insts) == 0 {
		b.logger.Println("No universe symbols resolved, skipping cycle")
		return
	}

	snapshots := b.batcher.FetchQuotes(ctx, insts)
	if len(snapshots) == 0 {
		b.logger.Println("No quotes fetched, skipping cycle")
		return
	}

	b.prevDay.Enrich(ctx, snapshots, byToken)

	calls, puts := b.scorer.ScoreCandidates(snapshots)
	b.logger.Printf("Scan found %d call and %d put candidates", len(calls), len(puts))
	if len(calls) == 0 && len(puts) == 0 {
		return
	}
	b.logShortlist("CALL", calls)
	b.logShortlist("PUT", puts)

	balance, err := b.broker.GetAvailableBalance(ctx)
	if err != nil {
		b.logger.Printf("Fetching available balance failed, skipping cycle: %v", err)
		return
	}
	b.logger.Printf("Available balance: %.2f", balance)

	ledger := b.planner.Execute(ctx, calls, puts, balance, b.config.Execution.Expiry)

	for i := range ledger.Records {
		rec := &ledger.Records[i]
		if !rec.Filled() {
			continue
		}
		b.traded[rec.UnderlyingSymbol] = struct{}{}
		if err := b.supervisor.Spawn(ctx, rec.OrderID, *rec); err != nil {
			b.logger.Printf("Spawning monitor for %s: %v", rec.OptionSymbol, err)
		}
	}

	if err := b.storage.AppendRun(*ledger); err != nil {
		b.logger.Printf("Persisting run %s: %v", ledger.RunID, err)
	}

	s := ledger.Summary()
	b.logger.Printf("Scan cycle complete: run %s, %d orders filled, notional total %.2f",
		ledger.RunID, s.FilledOrders, s.TotalNotional)
}

// logShortlist prints the ranked candidates for one side.
func (b *Bot) logShortlist(side string, candidates []models.ScoredCandidate) {
	for i, c := range candidates {
		b.logger.Printf("  %s #%d %-12s score %d/%d, open %.2f ltp %.2f change %+.2f",
			side, i+1, c.Snapshot.TradingSymbol, c.Total, models.MaxScore,
			c.Snapshot.Open, c.Snapshot.LTP, c.Snapshot.NetChange)
	}
}

// pendingUniverse returns configured symbols not yet traded this process.
func (b *Bot) pendingUniverse() []string {
	out := make([]string, 0, len(b.config.Universe.Symbols))
	for _, sym := range b.config.Universe.Symbols {
		if _, done := b.traded[sym]; done {
			continue
		}
		out = append(out, sym)
	}
	return out
}
