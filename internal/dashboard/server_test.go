package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmansara/opendrive/internal/broker"
	"github.com/pmansara/opendrive/internal/models"
	"github.com/pmansara/opendrive/internal/storage"
)

type fakeStore struct {
	runs   []storage.RunRecord
	closed []models.Position
}

func (f *fakeStore) AppendRun(ledger models.ExecutionLedger) error {
	f.runs = append(f.runs, storage.RunRecord{RunID: ledger.RunID, Ledger: ledger})
	return nil
}

func (f *fakeStore) RecordClose(pos models.Position) error {
	f.closed = append(f.closed, pos)
	return nil
}

func (f *fakeStore) GetRuns() []storage.RunRecord          { return f.runs }
func (f *fakeStore) GetClosedPositions() []models.Position { return f.closed }
func (f *fakeStore) Save() error                           { return nil }
func (f *fakeStore) Load() error                           { return nil }

var _ storage.Interface = (*fakeStore)(nil)

// balanceBroker stubs only the balance call. Any other method panics via the
// embedded nil interface, which is what we want in these tests.
type balanceBroker struct {
	broker.Broker
	balance float64
	err     error
}

func (b *balanceBroker) GetAvailableBalance(context.Context) (float64, error) {
	return b.balance, b.err
}

type fakePositions struct {
	positions []models.Position
}

func (f *fakePositions) Positions() []models.Position { return f.positions }
func (f *fakePositions) ActiveCount() int             { return len(f.positions) }

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestServer(store storage.Interface, b broker.Broker,
	positions PositionSource, authToken string) *Server {
	return NewServer(Config{Port: 0, AuthToken: authToken}, store, b, positions, newTestLogger())
}

func doRequest(s *Server, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func seedStore(t *testing.T) *fakeStore {
	t.Helper()

	store := &fakeStore{}
	err := store.AppendRun(models.ExecutionLedger{
		RunID: "run-1",
		Records: []models.ExecutionRecord{
			{
				Token:            "71001",
				OptionSymbol:     "RELIANCE25SEP25750CE",
				UnderlyingSymbol: "RELIANCE",
				OptionType:       models.RightCall,
				EntryPrice:       18.5,
				LotSize:          250,
				NotionalCost:     4625,
				OrderID:          "ORD-1",
			},
			{
				OptionSymbol:  "TCS25SEP253100CE",
				SkippedReason: models.SkipNoQuote,
			},
			{
				// Placement failed: no order ID and no skip reason. Must not
				// count as an order or contribute notional.
				OptionSymbol: "HDFCBANK25SEP251600CE",
				EntryPrice:   30.0,
				LotSize:      550,
				NotionalCost: 16500,
			},
		},
	})
	require.NoError(t, err)
	err = store.AppendRun(models.ExecutionLedger{
		RunID: "run-2",
		Records: []models.ExecutionRecord{
			{
				OptionSymbol: "INFY25SEP251500PE",
				OptionType:   models.RightPut,
				EntryPrice:   22.0,
				LotSize:      400,
				NotionalCost: 8800,
				OrderID:      "ORD-2",
			},
		},
	})
	require.NoError(t, err)

	// One winner, one loser.
	require.NoError(t, store.RecordClose(models.Position{
		ID:        "ORD-1",
		Record:    models.ExecutionRecord{EntryPrice: 18.5, LotSize: 250, OrderID: "ORD-1"},
		State:     models.StateClosed,
		ExitPrice: 20.5,
	}))
	require.NoError(t, store.RecordClose(models.Position{
		ID:        "ORD-2",
		Record:    models.ExecutionRecord{EntryPrice: 22.0, LotSize: 400, OrderID: "ORD-2"},
		State:     models.StateClosed,
		ExitPrice: 20.0,
	}))
	return store
}

func TestGetRuns(t *testing.T) {
	store := seedStore(t)
	s := newTestServer(store, &balanceBroker{balance: 50000}, &fakePositions{}, "")

	rec := doRequest(s, http.MethodGet, "/api/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var runs []storage.RunRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, "run-1", runs[0].RunID)
	assert.Equal(t, "run-2", runs[1].RunID)
}

func TestGetRunByID(t *testing.T) {
	store := seedStore(t)
	s := newTestServer(store, &balanceBroker{}, &fakePositions{}, "")

	rec := doRequest(s, http.MethodGet, "/api/runs/run-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var run storage.RunRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "run-2", run.RunID)
	require.Len(t, run.Ledger.Records, 1)
	assert.Equal(t, "INFY25SEP251500PE", run.Ledger.Records[0].OptionSymbol)

	rec = doRequest(s, http.MethodGet, "/api/runs/run-99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetPositions(t *testing.T) {
	positions := &fakePositions{positions: []models.Position{
		{ID: "ORD-3", State: models.StateActive, HighPrice: 25, StopPrice: 23.75},
	}}
	s := newTestServer(&fakeStore{}, &balanceBroker{}, positions, "")

	rec := doRequest(s, http.MethodGet, "/api/positions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got []models.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "ORD-3", got[0].ID)
	assert.Equal(t, 23.75, got[0].StopPrice)
}

func TestGetStats(t *testing.T) {
	store := seedStore(t)
	positions := &fakePositions{positions: []models.Position{
		{ID: "ORD-3", State: models.StateActive},
	}}
	s := newTestServer(store, &balanceBroker{}, positions, "")

	rec := doRequest(s, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats Statistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.TotalRuns)
	assert.Equal(t, 2, stats.TotalOrders)
	assert.Equal(t, 1, stats.TotalSkips)
	assert.Equal(t, 13425.0, stats.TotalNotional)
	assert.Equal(t, 2, stats.ClosedPositions)
	assert.Equal(t, 1, stats.WinningExits)
	assert.Equal(t, 1, stats.LosingExits)
	// (20.5-18.5)*250 + (20.0-22.0)*400 = 500 - 800
	assert.InDelta(t, -300.0, stats.TotalPnL, 1e-9)
	assert.Equal(t, 1, stats.ActiveMonitors)
	assert.Contains(t, []string{"Open", "Closed"}, stats.MarketStatus)
}

func TestGetBalance(t *testing.T) {
	s := newTestServer(&fakeStore{}, &balanceBroker{balance: 123456.78}, &fakePositions{}, "")

	rec := doRequest(s, http.MethodGet, "/api/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 123456.78, got["available_balance"])
}

func TestGetBalanceBrokerError(t *testing.T) {
	s := newTestServer(&fakeStore{}, &balanceBroker{err: assert.AnError}, &fakePositions{}, "")

	rec := doRequest(s, http.MethodGet, "/api/balance", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeStore{}, &balanceBroker{}, &fakePositions{}, "")

	rec := doRequest(s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.NotZero(t, body["timestamp"])
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(&fakeStore{}, &balanceBroker{}, &fakePositions{}, "secret")

	rec := doRequest(s, http.MethodGet, "/api/runs", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/runs", http.Header{"X-Auth-Token": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/runs", http.Header{"X-Auth-Token": {"secret"}})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/runs?token=secret", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays reachable for probes even with auth enabled.
	rec = doRequest(s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestShutdownWithoutStart(t *testing.T) {
	s := newTestServer(&fakeStore{}, &balanceBroker{}, &fakePositions{}, "")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))
}
