// Package mock provides a synthetic Broker for paper trading and tests. It
// fabricates a small scrip master, drifting quotes, and filled orders without
// touching the network.
package mock

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/pmansara/opendrive/internal/broker"
	"github.com/pmansara/opendrive/internal/util"
)

// secureFloat64 generates a cryptographically secure random float64 between 0 and 1
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		// Fallback to a reasonable default if crypto/rand fails
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// quoteProfile is the fabricated day shape for one token.
type quoteProfile struct {
	segment   string
	symbol    string
	open      float64
	high      float64
	low       float64
	ltp       float64
	prevOpen  float64
	prevHigh  float64
	prevLow   float64
	prevClose float64
	volume    float64
	oi        float64
}

// Broker is an in-memory brokerage. Quotes drift a little on every request so
// trailing-stop monitors see movement.
type Broker struct {
	mu       sync.Mutex
	scrips   []broker.ScripRow
	profiles map[string]*quoteProfile
	balance  float64
	orderSeq int
	orders   []broker.OrderRequest
}

// Ensure Broker implements the brokerage interface.
var _ broker.Broker = (*Broker)(nil)

// NewBroker fabricates a universe for the given underlyings. Every third
// symbol opens on its low (a long setup), every third on its high (a short
// setup); the rest open mid-range. Option chains carry the given expiry.
func NewBroker(symbols []string, expiry string, balance float64) *Broker {
	b := &Broker{
		profiles: make(map[string]*quoteProfile),
		balance:  balance,
	}

	for i, sym := range symbols {
		base := 100.0 + secureFloat64()*900.0
		token := strconv.Itoa(3000 + i)

		b.scrips = append(b.scrips, broker.ScripRow{
			Token:    token,
			Symbol:   sym + "-EQ",
			Name:     sym,
			ExchSeg:  "NSE",
			LotSize:  broker.Float(1),
			TickSize: broker.Float(5),
		})
		b.profiles[token] = equityProfile(sym, base, i%3)

		// Eleven strikes around spot, 2.5% apart, both rights.
		step := util.RoundToTick(base*0.025, 0.05)
		for k := -5; k <= 5; k++ {
			strike := util.RoundToTick(base+float64(k)*step, 0.05)
			for _, right := range []string{"CE", "PE"} {
				optToken := fmt.Sprintf("7%03d%02d%s", i, k+5, map[string]string{"CE": "1", "PE": "2"}[right])
				optSymbol := fmt.Sprintf("%s%s%d%s", sym, expiry, int(strike), right)
				b.scrips = append(b.scrips, broker.ScripRow{
					Token:          optToken,
					Symbol:         optSymbol,
					Name:           sym,
					Expiry:         expiry,
					Strike:         broker.Float(strike * util.StrikeScale),
					LotSize:        broker.Float(250),
					InstrumentType: "OPTSTK",
					ExchSeg:        "NFO",
					TickSize:       broker.Float(5),
				})
				b.profiles[optToken] = optionProfile(optSymbol, base, strike, right)
			}
		}
	}
	return b
}

func equityProfile(sym string, base float64, shape int) *quoteProfile {
	spread := base * 0.02
	p := &quoteProfile{
		segment:   "NSE",
		symbol:    sym + "-EQ",
		prevOpen:  base - spread*0.5,
		prevHigh:  base + spread*0.3,
		prevLow:   base - spread*0.8,
		prevClose: base - spread*0.2,
		volume:    float64(100000 + int(secureFloat64()*900000)),
	}
	switch shape {
	case 0: // opened on the low, drove up
		p.open = base
		p.low = base
		p.high = base + spread
		p.ltp = base + spread*0.7
	case 1: // opened on the high, drove down
		p.open = base
		p.high = base
		p.low = base - spread
		p.ltp = base - spread*0.7
	default:
		p.open = base
		p.high = base + spread*0.5
		p.low = base - spread*0.5
		p.ltp = base + (secureFloat64()-0.5)*spread*0.4
	}
	return p
}

func optionProfile(symbol string, spot, strike float64, right string) *quoteProfile {
	intrinsic := spot - strike
	if right == "PE" {
		intrinsic = strike - spot
	}
	premium := math.Max(5.0, intrinsic) + spot*0.01
	return &quoteProfile{
		segment:   "NFO",
		symbol:    symbol,
		open:      premium,
		high:      premium * 1.05,
		low:       premium * 0.95,
		ltp:       premium,
		prevClose: premium * 0.98,
		volume:    float64(1000 + int(secureFloat64()*50000)),
		oi:        float64(10000 + int(secureFloat64()*200000)),
	}
}

// GetScripMaster returns the fabricated instrument dump.
func (b *Broker) GetScripMaster(_ context.Context) ([]broker.ScripRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]broker.ScripRow, len(b.scrips))
	copy(out, b.scrips)
	return out, nil
}

// GetMarketQuotes returns rows for every known token in the request. Each call
// nudges the last traded price so repeated polls see a moving market.
func (b *Broker) GetMarketQuotes(_ context.Context, _ broker.QuoteMode,
	tokensBySegment map[string][]string) ([]broker.QuoteRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var rows []broker.QuoteRow
	for segment, tokens := range tokensBySegment {
		for _, token := range tokens {
			p, ok := b.profiles[token]
			if !ok || p.segment != segment {
				continue
			}
			b.drift(p)
			rows = append(rows, broker.QuoteRow{
				Exchange:      p.segment,
				TradingSymbol: p.symbol,
				SymbolToken:   token,
				LTP:           broker.Float(p.ltp),
				Open:          broker.Float(p.open),
				High:          broker.Float(p.high),
				Low:           broker.Float(p.low),
				Close:         broker.Float(p.prevClose),
				NetChange:     broker.Float(p.ltp - p.prevClose),
				TradeVolume:   broker.Float(p.volume),
				OpenInterest:  broker.Float(p.oi),
				TotalBuyQty:   broker.Float(p.volume * 0.4),
				TotalSellQty:  broker.Float(p.volume * 0.6),
			})
		}
	}
	return rows, nil
}

// drift moves the last traded price by up to half a percent, keeping the day
// high and low consistent. The drive shape is preserved: a token that opened
// on its low never trades below its open.
func (b *Broker) drift(p *quoteProfile) {
	p.ltp += p.ltp * (secureFloat64() - 0.5) * 0.01
	if p.open == p.low && p.ltp < p.open {
		p.ltp = p.open
	}
	if p.open == p.high && p.ltp > p.open {
		p.ltp = p.open
	}
	if p.ltp > p.high {
		p.high = p.ltp
	}
	if p.ltp < p.low {
		p.low = p.ltp
	}
}

// GetCandles returns a single synthetic daily bar for the requested range.
func (b *Broker) GetCandles(_ context.Context, _, token, _ string,
	from, _ time.Time) ([]broker.Candle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.profiles[token]
	if !ok {
		return nil, nil
	}
	return []broker.Candle{{
		Timestamp: from,
		Open:      p.prevOpen,
		High:      p.prevHigh,
		Low:       p.prevLow,
		Close:     p.prevClose,
		Volume:    p.volume,
	}}, nil
}

// GetAvailableBalance returns the remaining paper cash.
func (b *Broker) GetAvailableBalance(_ context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance, nil
}

// PlaceOrder fills every order immediately at the token's current price and
// adjusts the paper cash.
func (b *Broker) PlaceOrder(_ context.Context, req broker.OrderRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	price := req.Price
	if p, ok := b.profiles[req.Token]; ok && req.OrderType == broker.OrderTypeMarket {
		price = p.ltp
	}
	notional := price * float64(req.Quantity)
	switch req.Side {
	case broker.SideBuy:
		b.balance -= notional
	case broker.SideSell:
		b.balance += notional
	default:
		return "", fmt.Errorf("mock broker: unknown side %q", req.Side)
	}

	b.orderSeq++
	b.orders = append(b.orders, req)
	return fmt.Sprintf("MOCK-%06d", b.orderSeq), nil
}

// PlacedOrders returns a copy of everything placed so far.
func (b *Broker) PlacedOrders() []broker.OrderRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]broker.OrderRequest, len(b.orders))
	copy(out, b.orders)
	return out
}
