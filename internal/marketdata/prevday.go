package marketdata

import (
	"context"
	"log"
	"time"

	"github.com/pmansara/opendrive/internal/broker"
	"github.com/pmansara/opendrive/internal/models"
	"github.com/pmansara/opendrive/internal/util"
)

// PreviousDayResolver supplies the prior trading session's OHLC per
// instrument. Results are cached per instrument key (tokens are only unique
// within a segment) for the lifetime of the run, so repeated lookups are O(1)
// after the first fetch.
type PreviousDayResolver struct {
	broker broker.Broker
	clock  util.Clock
	logger *log.Logger
	cache  map[string]models.PrevDayOHLC
}

// NewPreviousDayResolver creates a resolver with a fresh per-run cache.
func NewPreviousDayResolver(b broker.Broker, clock util.Clock, logger *log.Logger) *PreviousDayResolver {
	if clock == nil {
		clock = util.RealClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &PreviousDayResolver{
		broker: b,
		clock:  clock,
		logger: logger,
		cache:  make(map[string]models.PrevDayOHLC),
	}
}

// PreviousTradingDay computes the prior session date from now:
// Monday -> 3 calendar days back, Saturday -> 1, Sunday -> 2, otherwise 1.
func PreviousTradingDay(now time.Time) time.Time {
	switch now.Weekday() {
	case time.Monday:
		return now.AddDate(0, 0, -3)
	case time.Saturday:
		return now.AddDate(0, 0, -1)
	case time.Sunday:
		return now.AddDate(0, 0, -2)
	default:
		return now.AddDate(0, 0, -1)
	}
}

// ResolvePreviousDay fetches the single end-of-day candle for the prior
// session. When the provider returns no data the result is all-zero OHLC
// rather than an error: a documented degraded mode in which every
// previous-day comparison predicate evaluates false.
func (r *PreviousDayResolver) ResolvePreviousDay(ctx context.Context, inst models.Instrument) models.PrevDayOHLC {
	if cached, ok := r.cache[inst.Key()]; ok {
		return cached
	}

	day := PreviousTradingDay(r.clock.Now())
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	to := time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 0, 0, day.Location())

	prev := models.PrevDayOHLC{}
	candles, err := r.broker.GetCandles(ctx, inst.ExchangeSegment, inst.Token, broker.CandleIntervalDay, from, to)
	switch {
	case err != nil:
		r.logger.Printf("previous-day candle for %s (token %s) failed, using zeros: %v",
			inst.Symbol, inst.Token, err)
	case len(candles) == 0:
		r.logger.Printf("no previous-day candle for %s (token %s), using zeros", inst.Symbol, inst.Token)
	default:
		// The last candle in range is the prior session's daily bar.
		last := candles[len(candles)-1]
		prev = models.PrevDayOHLC{
			Open:  last.Open,
			High:  last.High,
			Low:   last.Low,
			Close: last.Close,
		}
	}

	r.cache[inst.Key()] = prev
	return prev
}

// Enrich fills previous-day fields on every snapshot that is still missing
// them. Each snapshot is filled at most once per run.
func (r *PreviousDayResolver) Enrich(ctx context.Context, snapshots []models.QuoteSnapshot,
	byToken map[string]models.Instrument) {
	for i := range snapshots {
		snap := &snapshots[i]
		if snap.PrevFilled {
			continue
		}
		inst, ok := byToken[snap.Token]
		if !ok {
			inst = models.Instrument{
				Symbol:          snap.TradingSymbol,
				Token:           snap.Token,
				ExchangeSegment: snap.Exchange,
			}
		}
		snap.SetPrevDay(r.ResolvePreviousDay(ctx, inst))
	}
}
