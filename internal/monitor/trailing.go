// Package monitor runs one trailing-stop control loop per filled position:
// a rising high-water mark with a percentage stop that ratchets up and never
// falls, exiting via a market sell when price drops through the stop.
package monitor

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/pmansara/opendrive/internal/broker"
	"github.com/pmansara/opendrive/internal/models"
)

// TrailingStopMonitor polls last-traded price for a single position and
// drives its ACTIVE -> CLOSED state machine. Each monitor owns its Position
// exclusively; nothing else mutates it.
type TrailingStopMonitor struct {
	broker       broker.Broker
	logger       *log.Logger
	stopLossPct  float64
	pollInterval time.Duration
	stop         <-chan struct{}
	onUpdate     func(models.Position) // snapshot callback, may be nil
}

// NewTrailingStopMonitor creates a monitor. onUpdate, if non-nil, receives a
// copy of the position after every state change (for the dashboard and the
// run ledger); the copy keeps ownership with the monitor.
func NewTrailingStopMonitor(b broker.Broker, stopLossPct float64, pollInterval time.Duration,
	stop <-chan struct{}, onUpdate func(models.Position), logger *log.Logger) *TrailingStopMonitor {
	if logger == nil {
		logger = log.Default()
	}
	return &TrailingStopMonitor{
		broker:       b,
		logger:       logger,
		stopLossPct:  stopLossPct,
		pollInterval: pollInterval,
		stop:         stop,
		onUpdate:     onUpdate,
	}
}

// Run polls until the position closes or the stop channel fires. Poll
// failures are logged and retried on the next tick; they are the only
// retried failure in this pipeline.
func (m *TrailingStopMonitor) Run(ctx context.Context, pos *models.Position) {
	m.logger.Printf("monitoring %s: entry %.2f, initial stop %.2f",
		pos.Record.OptionSymbol, pos.Record.EntryPrice, pos.StopPrice)
	m.notify(pos)

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	consecutiveFailures := 0
	for pos.Active() {
		select {
		case <-ctx.Done():
			m.logger.Printf("context canceled, stopping monitor for %s", pos.Record.OptionSymbol)
			return
		case <-m.stop:
			m.logger.Printf("shutdown signal received, stopping monitor for %s (position stays open)",
				pos.Record.OptionSymbol)
			return
		case <-ticker.C:
			ltp, err := m.fetchLTP(ctx, pos)
			if err != nil {
				consecutiveFailures++
				m.logger.Printf("ltp fetch for %s failed (%d consecutive): %v",
					pos.Record.OptionSymbol, consecutiveFailures, err)
				continue
			}
			consecutiveFailures = 0

			if pos.RaiseHigh(ltp, m.stopLossPct) {
				m.logger.Printf("%s new high %.2f, stop raised to %.2f",
					pos.Record.OptionSymbol, pos.HighPrice, pos.StopPrice)
				m.notify(pos)
			}

			if pos.StopBreached(ltp) {
				m.exit(ctx, pos, ltp)
				m.notify(pos)
				return
			}
		}
	}
}

// exit places the market sell and closes the position. The position is
// considered closed once the exit decision fires: a failed sell order is
// logged, not re-driven into a retry loop.
func (m *TrailingStopMonitor) exit(ctx context.Context, pos *models.Position, ltp float64) {
	m.logger.Printf("%s ltp %.2f breached stop %.2f, selling %d",
		pos.Record.OptionSymbol, ltp, pos.StopPrice, pos.Record.LotSize)

	orderID, err := m.broker.PlaceOrder(ctx, broker.OrderRequest{
		Token:       pos.Record.Token,
		Symbol:      pos.Record.OptionSymbol,
		Quantity:    pos.Record.LotSize,
		Side:        broker.SideSell,
		OrderType:   broker.OrderTypeMarket,
		ProductType: broker.ProductCarryForward,
		Variety:     broker.VarietyNormal,
		Segment:     models.SegmentNFO,
	})
	if err != nil {
		m.logger.Printf("sell order for %s failed: %v", pos.Record.OptionSymbol, err)
	} else {
		m.logger.Printf("sell order for %s accepted: %s", pos.Record.OptionSymbol, orderID)
	}

	if err := pos.Close(ltp, orderID); err != nil {
		m.logger.Printf("closing position %s: %v", pos.ID, err)
	}
}

func (m *TrailingStopMonitor) fetchLTP(ctx context.Context, pos *models.Position) (float64, error) {
	rows, err := m.broker.GetMarketQuotes(ctx, broker.QuoteModeLTP,
		map[string][]string{models.SegmentNFO: {pos.Record.Token}})
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, errNoData
	}
	ltp := rows[0].LTP.Float64()
	if math.IsNaN(ltp) {
		return 0, errNoData
	}
	return ltp, nil
}

func (m *TrailingStopMonitor) notify(pos *models.Position) {
	if m.onUpdate != nil {
		m.onUpdate(*pos)
	}
}
