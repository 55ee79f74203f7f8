// Package marketdata retrieves quote snapshots under the provider's per-call
// symbol limit and enriches them with the previous trading session's candle.
package marketdata

import (
	"context"
	"log"
	"time"

	"github.com/pmansara/opendrive/internal/broker"
	"github.com/pmansara/opendrive/internal/models"
	"github.com/pmansara/opendrive/internal/util"
)

// QuoteBatcher splits instrument tokens into bounded batches and retrieves
// full market-quote snapshots per batch with inter-batch pacing. The pacing
// delay is deliberate backpressure against provider rate limits, not an
// incidental sleep.
type QuoteBatcher struct {
	broker    broker.Broker
	batchSize int
	pause     time.Duration
	sleeper   util.Sleeper
	logger    *log.Logger
}

// NewQuoteBatcher creates a batcher. A nil sleeper gets the real one.
func NewQuoteBatcher(b broker.Broker, batchSize int, pause time.Duration,
	sleeper util.Sleeper, logger *log.Logger) *QuoteBatcher {
	if sleeper == nil {
		sleeper = util.RealSleeper{}
	}
	if logger == nil {
		logger = log.Default()
	}
	if batchSize <= 0 {
		batchSize = 45
	}
	return &QuoteBatcher{
		broker:    b,
		batchSize: batchSize,
		pause:     pause,
		sleeper:   sleeper,
		logger:    logger,
	}
}

// FetchQuotes issues ceil(len(instruments)/batchSize) full-quote requests and
// concatenates the results. A failed batch yields zero snapshots for its
// tokens and is logged; the scan continues with the remaining batches.
func (qb *QuoteBatcher) FetchQuotes(ctx context.Context, instruments []models.Instrument) []models.QuoteSnapshot {
	if len(instruments) == 0 {
		return nil
	}

	var snapshots []models.QuoteSnapshot
	batches := splitTokens(instruments, qb.batchSize)

	for i, batch := range batches {
		if i > 0 {
			qb.sleeper.Sleep(qb.pause)
		}

		tokens := make([]string, len(batch))
		segment := batch[0].ExchangeSegment
		for j, inst := range batch {
			tokens[j] = inst.Token
		}

		rows, err := qb.broker.GetMarketQuotes(ctx, broker.QuoteModeFull, map[string][]string{segment: tokens})
		if err != nil {
			qb.logger.Printf("quote batch %d/%d failed (%d tokens): %v", i+1, len(batches), len(tokens), err)
			continue
		}

		for k := range rows {
			snapshots = append(snapshots, SnapshotFromRow(&rows[k]))
		}
	}

	qb.logger.Printf("fetched %d quote snapshots across %d batches", len(snapshots), len(batches))
	return snapshots
}

// splitTokens groups instruments into consecutive batches of at most size.
func splitTokens(instruments []models.Instrument, size int) [][]models.Instrument {
	var batches [][]models.Instrument
	for start := 0; start < len(instruments); start += size {
		end := start + size
		if end > len(instruments) {
			end = len(instruments)
		}
		batches = append(batches, instruments[start:end])
	}
	return batches
}

// SnapshotFromRow converts a raw provider quote row into a domain snapshot.
// Unparsable numerics arrive as NaN and invalidate the row at scoring time.
func SnapshotFromRow(row *broker.QuoteRow) models.QuoteSnapshot {
	return models.QuoteSnapshot{
		Token:         row.SymbolToken,
		TradingSymbol: row.TradingSymbol,
		Exchange:      row.Exchange,
		LTP:           row.LTP.Float64(),
		Open:          row.Open.Float64(),
		High:          row.High.Float64(),
		Low:           row.Low.Float64(),
		Close:         row.Close.Float64(),
		NetChange:     row.NetChange.Float64(),
		TradeVolume:   row.TradeVolume.Float64(),
		OpenInterest:  row.OpenInterest.Float64(),
		TotalBuyQty:   row.TotalBuyQty.Float64(),
		TotalSellQty:  row.TotalSellQty.Float64(),
	}
}
