// Package broker provides the brokerage client used for market data and order
// placement, plus a circuit-breaker wrapper around it.
package broker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// QuoteMode selects the payload depth of a market-quote request.
type QuoteMode string

const (
	// QuoteModeFull returns the full snapshot (OHLC, depth totals, OI).
	QuoteModeFull QuoteMode = "FULL"
	// QuoteModeLTP returns only the last traded price.
	QuoteModeLTP QuoteMode = "LTP"
)

// Order sides and parameter constants accepted by PlaceOrder.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	OrderTypeMarket = "MARKET"
	OrderTypeLimit  = "LIMIT"

	ProductCarryForward = "CARRYFORWARD"
	VarietyNormal       = "NORMAL"
	DurationDay         = "DAY"
)

// CandleIntervalDay is the end-of-day candle interval identifier.
const CandleIntervalDay = "ONE_DAY"

// OrderRequest carries the full provider order parameter surface.
type OrderRequest struct {
	Token        string
	Symbol       string
	Quantity     int
	Side         string // BUY | SELL
	OrderType    string // MARKET | LIMIT
	Price        float64
	ProductType  string
	Variety      string
	Segment      string // NSE | NFO
	TriggerPrice float64
}

// Candle is one OHLCV bar from the historical endpoint.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Broker defines the capabilities the bot consumes from the brokerage.
type Broker interface {
	// Instrument master, loaded once at startup.
	GetScripMaster(ctx context.Context) ([]ScripRow, error)

	// Batched market quotes, keyed by exchange segment.
	GetMarketQuotes(ctx context.Context, mode QuoteMode, tokensBySegment map[string][]string) ([]QuoteRow, error)

	// Historical candles, used for previous-day lookups.
	GetCandles(ctx context.Context, segment, token, interval string, from, to time.Time) ([]Candle, error)

	// Available cash from the RMS limit endpoint.
	GetAvailableBalance(ctx context.Context) (float64, error)

	// Order placement. Returns the provider order identifier.
	PlaceOrder(ctx context.Context, req OrderRequest) (string, error)
}

// CircuitBreakerBroker wraps a Broker with circuit breaker functionality.
type CircuitBreakerBroker struct {
	broker  Broker
	breaker *gobreaker.CircuitBreaker
}

// Ensure CircuitBreakerBroker implements Broker at compile time.
var _ Broker = (*CircuitBreakerBroker)(nil)

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerBroker creates a CircuitBreakerBroker with sensible defaults.
func NewCircuitBreakerBroker(broker Broker) *CircuitBreakerBroker {
	return NewCircuitBreakerBrokerWithSettings(broker, CircuitBreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	})
}

// NewCircuitBreakerBrokerWithSettings creates a CircuitBreakerBroker with custom settings.
func NewCircuitBreakerBrokerWithSettings(broker Broker, settings CircuitBreakerSettings) *CircuitBreakerBroker {
	gbSettings := gobreaker.Settings{
		Name:        "BrokerCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerBroker{
		broker:  broker,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// execCircuitBreaker is a generic helper for circuit breaker wrapper methods.
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	broker Broker,
	fn func(Broker) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(broker) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// GetScripMaster wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetScripMaster(ctx context.Context) ([]ScripRow, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]ScripRow, error) {
		return b.GetScripMaster(ctx)
	})
}

// GetMarketQuotes wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetMarketQuotes(ctx context.Context, mode QuoteMode,
	tokensBySegment map[string][]string) ([]QuoteRow, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]QuoteRow, error) {
		return b.GetMarketQuotes(ctx, mode, tokensBySegment)
	})
}

// GetCandles wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetCandles(ctx context.Context, segment, token, interval string,
	from, to time.Time) ([]Candle, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]Candle, error) {
		return b.GetCandles(ctx, segment, token, interval, from, to)
	})
}

// GetAvailableBalance wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetAvailableBalance(ctx context.Context) (float64, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (float64, error) {
		return b.GetAvailableBalance(ctx)
	})
}

// PlaceOrder wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (string, error) {
		return b.PlaceOrder(ctx, req)
	})
}
