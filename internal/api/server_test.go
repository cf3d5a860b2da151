package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"virtual-trading-sim/internal/config"
	"virtual-trading-sim/internal/database"
	"virtual-trading-sim/internal/ledger"
	"virtual-trading-sim/internal/models"
	"virtual-trading-sim/internal/portfolio"
	"virtual-trading-sim/internal/pricefeed"
	"virtual-trading-sim/internal/trading"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var seeds = []config.Instrument{
	{Symbol: "TCS", Name: "Tata Consultancy Services", Kind: "EQUITY", Sector: "IT", BasePrice: 100},
	{Symbol: "INFY", Name: "Infosys", Kind: "EQUITY", Sector: "IT", BasePrice: 50},
	{Symbol: "BTC", Name: "Bitcoin", Kind: "CRYPTO", Sector: "Crypto", BasePrice: 60000},
}

// setupServer wires the real components over a private in-memory database.
func setupServer(t *testing.T, cfg config.Server) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.Open(dsn)
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	require.NoError(t, database.SeedInstruments(db, seeds, time.Now().UTC()))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})

	store := ledger.NewGormStore(db)
	feed := pricefeed.NewFeed(zap.NewNop(), store, config.Simulation{Seed: 1})
	require.NoError(t, feed.Load(ctx))

	srv := NewServer(zap.NewNop(), cfg, Deps{
		Trader:      trading.NewEngine(zap.NewNop(), config.Trading{}, store, feed),
		Portfolios:  portfolio.NewProjector(zap.NewNop(), config.Trading{}, store, feed),
		Market:      feed,
		Instruments: store,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func call(t *testing.T, ts *httptest.Server, method, path, user string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func TestServer_Health(t *testing.T) {
	ts := setupServer(t, config.Server{})

	status, env := call(t, ts, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)
	assert.JSONEq(t, `{"status":"UP","instruments":3}`, string(env.Data))
}

func TestServer_RequiresUser(t *testing.T) {
	ts := setupServer(t, config.Server{})

	for _, user := range []string{"", "abc", "0"} {
		status, env := call(t, ts, http.MethodGet, "/api/portfolio", user, nil)
		assert.Equal(t, http.StatusUnauthorized, status, user)
		assert.False(t, env.Success)
	}
}

func TestServer_TradingFlow(t *testing.T) {
	ts := setupServer(t, config.Server{})

	status, env := call(t, ts, http.MethodPost, "/api/accounts", "7", map[string]any{"initialCapital": "1000"})
	require.Equal(t, http.StatusCreated, status, env.Message)

	status, _ = call(t, ts, http.MethodPost, "/api/accounts", "7", map[string]any{"initialCapital": "1000"})
	assert.Equal(t, http.StatusConflict, status)

	tests := []struct {
		name    string
		body    map[string]any
		status  int
		success bool
		message string
	}{
		{"buy by symbol", map[string]any{"symbol": "tcs", "side": "buy", "quantity": 4}, http.StatusOK, true, "Bought 4 Tata Consultancy Services @ 100.00"},
		{"insufficient balance", map[string]any{"symbol": "TCS", "side": "BUY", "quantity": "10"}, http.StatusUnprocessableEntity, false, "Insufficient balance. Need 1000.00 but have 600.00"},
		{"insufficient holdings", map[string]any{"symbol": "INFY", "side": "SELL", "quantity": "1"}, http.StatusUnprocessableEntity, false, "Insufficient holdings. Have 0 but trying to sell 1"},
		{"bad side", map[string]any{"symbol": "TCS", "side": "HOLD", "quantity": "1"}, http.StatusBadRequest, false, ""},
		{"bad order type", map[string]any{"symbol": "TCS", "side": "BUY", "orderType": "STOP", "quantity": "1"}, http.StatusBadRequest, false, ""},
		{"zero quantity", map[string]any{"symbol": "TCS", "side": "BUY", "quantity": "0"}, http.StatusBadRequest, false, ""},
		{"unknown symbol", map[string]any{"symbol": "NOPE", "side": "BUY", "quantity": "1"}, http.StatusNotFound, false, ""},
		{"unknown instrument id", map[string]any{"instrumentId": 999, "side": "BUY", "quantity": "1"}, http.StatusNotFound, false, ""},
		{"no instrument", map[string]any{"side": "BUY", "quantity": "1"}, http.StatusBadRequest, false, ""},
		{"sell part", map[string]any{"symbol": "TCS", "side": "SELL", "quantity": "1"}, http.StatusOK, true, "Sold 1 Tata Consultancy Services @ 100.00 | P&L: +0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := call(t, ts, http.MethodPost, "/api/trade/execute", "7", tt.body)

			assert.Equal(t, tt.status, status, env.Message)
			assert.Equal(t, tt.success, env.Success)
			if tt.message != "" {
				assert.Equal(t, tt.message, env.Message)
			}
		})
	}

	status, env = call(t, ts, http.MethodGet, "/api/portfolio", "7", nil)
	require.Equal(t, http.StatusOK, status)
	var view portfolio.View
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.True(t, decimal.NewFromInt(700).Equal(view.CashBalance), view.CashBalance.String())
	assert.Equal(t, 1, view.TotalPositions)
	require.Len(t, view.Holdings, 1)
	assert.Equal(t, "TCS", view.Holdings[0].Symbol)

	status, env = call(t, ts, http.MethodGet, "/api/portfolio/history?size=1", "7", nil)
	require.Equal(t, http.StatusOK, status)
	var history portfolio.HistoryPage
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history.Entries, 1)
	assert.Equal(t, models.SideSell, history.Entries[0].Side)

	status, _ = call(t, ts, http.MethodGet, "/api/portfolio/history?page=x", "7", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = call(t, ts, http.MethodGet, "/api/portfolio/statistics", "7", nil)
	require.Equal(t, http.StatusOK, status)
	var summary portfolio.PnLSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, 1, summary.AllTime.Sells)

	status, env = call(t, ts, http.MethodGet, "/api/portfolio/verify", "7", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), `"consistent":true`)

	status, _ = call(t, ts, http.MethodGet, "/api/portfolio", "8", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_Market(t *testing.T) {
	ts := setupServer(t, config.Server{})

	status, env := call(t, ts, http.MethodGet, "/api/market/prices", "", nil)
	require.Equal(t, http.StatusOK, status)
	var prices map[string]decimal.Decimal
	require.NoError(t, json.Unmarshal(env.Data, &prices))
	assert.Len(t, prices, 3)

	status, env = call(t, ts, http.MethodGet, "/api/market/instruments?kind=crypto", "", nil)
	require.Equal(t, http.StatusOK, status)
	var instruments []models.Instrument
	require.NoError(t, json.Unmarshal(env.Data, &instruments))
	require.Len(t, instruments, 1)
	assert.Equal(t, "BTC", instruments[0].Symbol)

	status, env = call(t, ts, http.MethodGet, "/api/market/instruments?search=info", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &instruments))
	require.Len(t, instruments, 1)
	assert.Equal(t, "INFY", instruments[0].Symbol)

	status, _ = call(t, ts, http.MethodGet, "/api/market/instruments?kind=bond", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = call(t, ts, http.MethodGet, "/api/market/instruments/tcs", "", nil)
	require.Equal(t, http.StatusOK, status)
	var one models.Instrument
	require.NoError(t, json.Unmarshal(env.Data, &one))
	assert.Equal(t, "TCS", one.Symbol)

	status, _ = call(t, ts, http.MethodGet, "/api/market/instruments/NOPE", "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, env = call(t, ts, http.MethodGet, "/api/market/movers?limit=2", "", nil)
	require.Equal(t, http.StatusOK, status)
	var movers []pricefeed.Quote
	require.NoError(t, json.Unmarshal(env.Data, &movers))
	assert.Len(t, movers, 2)
}

func TestServer_RateLimitsOrders(t *testing.T) {
	ts := setupServer(t, config.Server{RateLimit: 0.001, RateLimitBurst: 1})
	body := map[string]any{"symbol": "TCS", "side": "BUY", "quantity": "1"}

	status, _ := call(t, ts, http.MethodPost, "/api/trade/execute", "7", body)
	assert.Equal(t, http.StatusNotFound, status) // no account yet

	status, env := call(t, ts, http.MethodPost, "/api/trade/execute", "7", body)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.False(t, env.Success)

	// other users have their own bucket
	status, _ = call(t, ts, http.MethodPost, "/api/trade/execute", "8", body)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_RateLimitKeysOnParsedUser(t *testing.T) {
	ts := setupServer(t, config.Server{RateLimit: 0.001, RateLimitBurst: 1})
	body := map[string]any{"symbol": "TCS", "side": "BUY", "quantity": "1"}

	status, _ := call(t, ts, http.MethodPost, "/api/trade/execute", "7", body)
	assert.Equal(t, http.StatusNotFound, status)
	for _, spelling := range []string{"07", "007", "0007"} {
		status, _ = call(t, ts, http.MethodPost, "/api/trade/execute", spelling, body)
		assert.Equal(t, http.StatusTooManyRequests, status, spelling)
	}

	// invalid ids are turned away before they reach a bucket
	for _, header := range []string{"abc", "0", "-1"} {
		status, _ = call(t, ts, http.MethodPost, "/api/trade/execute", header, body)
		assert.Equal(t, http.StatusUnauthorized, status, header)
	}
}

func TestUserLimiter_SweepsRefilledBuckets(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newUserLimiter(1, 1)
	l.now = func() time.Time { return now }

	for id := uint64(1); id <= maxIdleBuckets; id++ {
		assert.True(t, l.allow(id))
	}
	assert.False(t, l.allow(1), "bucket of user 1 is empty")
	assert.Equal(t, maxIdleBuckets, l.size())

	// a second later every bucket is full again and the next new user sweeps them
	now = now.Add(time.Second)
	assert.True(t, l.allow(maxIdleBuckets+1))
	assert.Equal(t, 1, l.size())

	// buckets still draining survive a sweep
	for id := uint64(2); id <= maxIdleBuckets; id++ {
		assert.True(t, l.allow(id))
	}
	assert.True(t, l.allow(maxIdleBuckets+2))
	assert.Equal(t, maxIdleBuckets+1, l.size())
	assert.False(t, l.allow(2), "user 2 keeps its drained bucket")
}

func TestUserLimiter_Disabled(t *testing.T) {
	assert.Nil(t, newUserLimiter(0, 5))
}

// MockTrader is a mock implementation of Trader.
type MockTrader struct {
	mock.Mock
}

func (m *MockTrader) Execute(ctx context.Context, order trading.Order) (*trading.ExecutionResult, error) {
	args := m.Called(ctx, order)
	return args.Get(0).(*trading.ExecutionResult), args.Error(1)
}

func (m *MockTrader) OpenAccount(ctx context.Context, userID uint64, capital decimal.Decimal) (*models.Account, error) {
	args := m.Called(ctx, userID, capital)
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockTrader) Verify(ctx context.Context, userID uint64) (*trading.ReplayState, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(*trading.ReplayState), args.Error(1)
}

func TestServer_FaultsAreOpaque(t *testing.T) {
	trader := new(MockTrader)
	srv := NewServer(zap.NewNop(), config.Server{}, Deps{Trader: trader})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	trader.On("Execute", mock.Anything, mock.MatchedBy(func(o trading.Order) bool { return o.UserID == 3 })).
		Return(&trading.ExecutionResult{Outcome: trading.OutcomeSystemFault, Message: "trade could not be processed, please retry"},
			fmt.Errorf("%w: disk full", models.ErrSystemFault))
	trader.On("OpenAccount", mock.Anything, uint64(3), mock.Anything).
		Return((*models.Account)(nil), errors.New("connection reset"))
	trader.On("Verify", mock.Anything, uint64(3)).
		Return((*trading.ReplayState)(nil), fmt.Errorf("%w: cash: journal 1, stored 2", trading.ErrLedgerDrift))

	status, env := call(t, ts, http.MethodPost, "/api/trade/execute", "3", map[string]any{"instrumentId": 1, "side": "BUY", "quantity": "1"})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.NotContains(t, env.Message, "disk full")

	status, env = call(t, ts, http.MethodPost, "/api/accounts", "3", map[string]any{"initialCapital": "10"})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.NotContains(t, env.Message, "connection reset")

	status, env = call(t, ts, http.MethodGet, "/api/portfolio/verify", "3", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, string(env.Data), "cash: journal 1, stored 2")

	trader.AssertExpectations(t)
}
