package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL     = "https://apiconnect.angelone.in"
	defaultScripMaster = "https://margincalculator.angelbroking.com/OpenAPI_File/files/OpenAPIScripMaster.json"

	quotePath  = "/rest/secure/angelbroking/market/v1/quote/"
	candlePath = "/rest/secure/angelbroking/historical/v1/getCandleData"
	rmsPath    = "/rest/secure/angelbroking/user/v1/getRMS"
	orderPath  = "/rest/secure/angelbroking/order/v1/placeOrder"

	candleTimeLayout = "2006-01-02 15:04"
)

// APIError represents an API error with status code and response body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// Float decodes a JSON value that may arrive as a number, a numeric
// string, or something else entirely. Unparsable values become NaN rather
// than failing the whole payload; the scorer drops NaN rows.
type Float float64

func (f *Float) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = Float(math.NaN())
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			*f = Float(math.NaN())
			return nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			*f = Float(math.NaN())
			return nil
		}
		*f = Float(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		*f = Float(math.NaN())
		return nil
	}
	*f = Float(v)
	return nil
}

// Float64 returns the plain float64 value (possibly NaN).
func (f Float) Float64() float64 { return float64(f) }

// ScripRow is one raw row of the provider's instrument dump.
type ScripRow struct {
	Token          string `json:"token"`
	Symbol         string `json:"symbol"`
	Name           string `json:"name"`
	Expiry         string `json:"expiry"`
	Strike         Float  `json:"strike"`
	LotSize        Float  `json:"lotsize"`
	InstrumentType string `json:"instrumenttype"`
	ExchSeg        string `json:"exch_seg"`
	TickSize       Float  `json:"tick_size"`
}

// QuoteRow is one raw row of a FULL market-quote response. Numeric fields use
// Float so a malformed value poisons only its own row.
type QuoteRow struct {
	Exchange      string `json:"exchange"`
	TradingSymbol string `json:"tradingSymbol"`
	SymbolToken   string `json:"symbolToken"`
	LTP           Float  `json:"ltp"`
	Open          Float  `json:"open"`
	High          Float  `json:"high"`
	Low           Float  `json:"low"`
	Close         Float  `json:"close"`
	NetChange     Float  `json:"netChange"`
	TradeVolume   Float  `json:"tradeVolume"`
	OpenInterest  Float  `json:"opnInterest"`
	TotalBuyQty   Float  `json:"totBuyQuan"`
	TotalSellQty  Float  `json:"totSellQuan"`
}

// envelope is the provider's standard response wrapper.
type envelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	Data      json.RawMessage `json:"data"`
}

// SmartAPIClient talks to the provider's REST API. The session handshake is an
// external concern: the client is constructed with a ready access token.
type SmartAPIClient struct {
	client         *http.Client
	apiKey         string
	accessToken    string
	baseURL        string
	scripMasterURL string
	logger         *log.Logger
}

// Ensure SmartAPIClient implements Broker at compile time.
var _ Broker = (*SmartAPIClient)(nil)

// Option customizes a SmartAPIClient.
type Option func(*SmartAPIClient)

// WithHTTPClient overrides the HTTP client (tests use httptest servers).
func WithHTTPClient(c *http.Client) Option {
	return func(s *SmartAPIClient) { s.client = c }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(s *SmartAPIClient) { s.baseURL = strings.TrimRight(u, "/") }
}

// WithScripMasterURL overrides the instrument dump URL.
func WithScripMasterURL(u string) Option {
	return func(s *SmartAPIClient) { s.scripMasterURL = u }
}

// WithLogger overrides the client logger.
func WithLogger(l *log.Logger) Option {
	return func(s *SmartAPIClient) { s.logger = l }
}

// NewSmartAPIClient creates a provider client with a ready session token.
func NewSmartAPIClient(apiKey, accessToken string, opts ...Option) *SmartAPIClient {
	s := &SmartAPIClient{
		client:         &http.Client{Timeout: 15 * time.Second},
		apiKey:         apiKey,
		accessToken:    accessToken,
		baseURL:        defaultBaseURL,
		scripMasterURL: defaultScripMaster,
		logger:         log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetScripMaster downloads and decodes the full instrument dump.
func (s *SmartAPIClient) GetScripMaster(ctx context.Context) ([]ScripRow, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.scripMasterURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching scrip master: %w", err)
	}
	defer s.closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	var rows []ScripRow
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decoding scrip master: %w", err)
	}
	return rows, nil
}

// GetMarketQuotes issues one quote request for the given tokens.
func (s *SmartAPIClient) GetMarketQuotes(ctx context.Context, mode QuoteMode,
	tokensBySegment map[string][]string) ([]QuoteRow, error) {
	payload := map[string]interface{}{
		"mode":           string(mode),
		"exchangeTokens": tokensBySegment,
	}

	var data struct {
		Fetched   []QuoteRow `json:"fetched"`
		Unfetched []struct {
			SymbolToken string `json:"symbolToken"`
			Message     string `json:"message"`
		} `json:"unfetched"`
	}
	if err := s.post(ctx, quotePath, payload, &data); err != nil {
		return nil, err
	}
	for _, u := range data.Unfetched {
		s.logger.Printf("quote not fetched for token %s: %s", u.SymbolToken, u.Message)
	}
	return data.Fetched, nil
}

// GetCandles fetches OHLCV bars for one token over a date range.
func (s *SmartAPIClient) GetCandles(ctx context.Context, segment, token, interval string,
	from, to time.Time) ([]Candle, error) {
	payload := map[string]string{
		"exchange":    segment,
		"symboltoken": token,
		"interval":    interval,
		"fromdate":    from.Format(candleTimeLayout),
		"todate":      to.Format(candleTimeLayout),
	}

	// Each candle arrives as [timestamp, open, high, low, close, volume].
	var rows [][]json.RawMessage
	if err := s.post(ctx, candlePath, payload, &rows); err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		var ts string
		if err := json.Unmarshal(row[0], &ts); err != nil {
			continue
		}
		t, err := time.Parse("2006-01-02T15:04:05-07:00", ts)
		if err != nil {
			// Some endpoints omit the offset.
			t, err = time.Parse("2006-01-02T15:04:05", ts)
			if err != nil {
				continue
			}
		}
		var vals [5]float64
		ok := true
		for i := 0; i < 5; i++ {
			var f Float
			if err := json.Unmarshal(row[i+1], &f); err != nil || math.IsNaN(f.Float64()) {
				ok = false
				break
			}
			vals[i] = f.Float64()
		}
		if !ok {
			continue
		}
		candles = append(candles, Candle{
			Timestamp: t,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	return candles, nil
}

// GetAvailableBalance returns available cash from the RMS limit endpoint.
func (s *SmartAPIClient) GetAvailableBalance(ctx context.Context) (float64, error) {
	var data struct {
		AvailableCash Float `json:"availablecash"`
	}
	if err := s.get(ctx, rmsPath, &data); err != nil {
		return 0, err
	}
	cash := data.AvailableCash.Float64()
	if math.IsNaN(cash) {
		return 0, fmt.Errorf("rms limit: availablecash not numeric")
	}
	return cash, nil
}

// PlaceOrder submits an order and returns the provider order identifier.
func (s *SmartAPIClient) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	payload := map[string]string{
		"variety":         req.Variety,
		"tradingsymbol":   req.Symbol,
		"symboltoken":     req.Token,
		"transactiontype": req.Side,
		"exchange":        req.Segment,
		"ordertype":       req.OrderType,
		"producttype":     req.ProductType,
		"duration":        DurationDay,
		"price":           strconv.FormatFloat(req.Price, 'f', -1, 64),
		"squareoff":       "0",
		"stoploss":        "0",
		"quantity":        strconv.Itoa(req.Quantity),
		"triggerprice":    strconv.FormatFloat(req.TriggerPrice, 'f', -1, 64),
	}

	var data struct {
		Script  string `json:"script"`
		OrderID string `json:"orderid"`
	}
	if err := s.post(ctx, orderPath, payload, &data); err != nil {
		return "", err
	}
	if data.OrderID == "" {
		return "", fmt.Errorf("place order: empty order id in response")
	}
	return data.OrderID, nil
}

func (s *SmartAPIClient) get(ctx context.Context, path string, out interface{}) error {
	return s.makeRequestCtx(ctx, http.MethodGet, path, nil, out)
}

func (s *SmartAPIClient) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	return s.makeRequestCtx(ctx, http.MethodPost, path, payload, out)
}

// makeRequestCtx performs one authenticated API call, unwraps the standard
// response envelope, and decodes data into out.
func (s *SmartAPIClient) makeRequestCtx(ctx context.Context, method, path string,
	payload interface{}, out interface{}) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Add("Authorization", "Bearer "+s.accessToken)
	req.Header.Add("X-PrivateKey", s.apiKey)
	req.Header.Add("X-UserType", "USER")
	req.Header.Add("X-SourceID", "WEB")
	req.Header.Add("Accept", "application/json")
	if payload != nil {
		req.Header.Add("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer s.closeBody(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if readErr != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> failed to read error body", method, path)}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> %s", method, path, string(b))}
	}

	var env envelope
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&env); err != nil && err != io.EOF {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	if !env.Status {
		return fmt.Errorf("%s %s rejected: %s (code %s)", method, path, env.Message, env.ErrorCode)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decoding %s data: %w", path, err)
	}
	return nil
}

func (s *SmartAPIClient) closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		s.logger.Printf("Failed to close response body: %v", err)
	}
}
