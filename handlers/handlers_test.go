package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"crypto-portfolio/handlers"
	"crypto-portfolio/middleware"
	"crypto-portfolio/models"
	"crypto-portfolio/portfolio"
	"crypto-portfolio/pricing"
	"crypto-portfolio/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	nopLog = zerolog.New(nil).Level(zerolog.Disabled)
	secret = []byte("test-secret")
)

type fakePrices struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	err    error
}

func (f *fakePrices) FetchPrices(_ context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]decimal.Decimal)
	for _, s := range symbols {
		if p, ok := f.prices[s]; ok {
			out[s] = p
		}
	}
	return out, nil
}

type fakeHistory struct {
	quotes []models.PriceQuote
	limit  int
}

func (f *fakeHistory) History(_ context.Context, symbol string, limit int) ([]models.PriceQuote, error) {
	f.limit = limit
	return f.quotes, nil
}

type fakeListings struct {
	top, growth []pricing.Listing
	err         error
	limits      []int
}

func (f *fakeListings) TopCoins(_ context.Context, limit int) ([]pricing.Listing, error) {
	f.limits = append(f.limits, limit)
	return f.top, f.err
}

func (f *fakeListings) GrowthLeaders(_ context.Context, limit int) ([]pricing.Listing, error) {
	f.limits = append(f.limits, limit)
	return f.growth, f.err
}

type testServer struct {
	router  *gin.Engine
	prices  *fakePrices
	mr      *miniredis.Miniredis
	history *fakeHistory
}

type serverOptions struct {
	history  bool
	listings pricing.Market
	// accounts wraps the ledger the auth handlers see
	accounts func(*store.MemoryLedger) handlers.AccountStore
}

func newTestServer(t *testing.T, withHistory bool) *testServer {
	t.Helper()
	return newTestServerWith(t, serverOptions{history: withHistory})
}

func newTestServerWith(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	ledger := store.NewMemoryLedger()
	prices := &fakePrices{prices: map[string]decimal.Decimal{
		"BTC": decimal.RequireFromString("70000"),
		"ETH": decimal.RequireFromString("3500"),
	}}
	engine := portfolio.NewEngine(ledger, portfolio.DefaultEngineOptions(), nopLog)
	refresher := portfolio.NewRefresher(ledger, prices, portfolio.RefreshOptions{}, nopLog)
	svc := portfolio.NewService(ledger, engine, refresher, nopLog)

	var history handlers.HistoryReader
	hist := &fakeHistory{}
	if opts.history {
		history = hist
	}
	var accounts handlers.AccountStore = ledger
	if opts.accounts != nil {
		accounts = opts.accounts(ledger)
	}

	router := gin.New()
	router.Use(middleware.RequestLogger(nopLog))
	handlers.Register(router,
		handlers.NewAuth(accounts, rdb, secret),
		handlers.NewPortfolio(svc),
		handlers.NewMarket(prices, opts.listings, history, time.Second, nopLog),
		secret,
	)
	return &testServer{router: router, prices: prices, mr: mr, history: hist}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func (s *testServer) login(t *testing.T, account string) (string, string) {
	t.Helper()
	creds := map[string]string{"account_key": account, "password": "correct horse"}
	w, _ := s.do(t, http.MethodPost, "/signup", "", creds)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, body := s.do(t, http.MethodPost, "/login", "", creds)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return body["access_token"].(string), body["refresh_token"].(string)
}

func TestAuth_SignupLoginRefresh(t *testing.T) {
	s := newTestServer(t, false)
	_, refresh := s.login(t, "alice")

	w, _ := s.do(t, http.MethodPost, "/signup", "", map[string]string{"account_key": "alice", "password": "another one"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = s.do(t, http.MethodPost, "/login", "", map[string]string{"account_key": "alice", "password": "wrong password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = s.do(t, http.MethodPost, "/login", "", map[string]string{"account_key": "nobody", "password": "whatever1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body := s.do(t, http.MethodPost, "/token/refresh", "", map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["access_token"])
	assert.NotEqual(t, refresh, body["refresh_token"])

	// a refresh token is single use
	w, _ = s.do(t, http.MethodPost, "/token/refresh", "", map[string]string{"refresh_token": refresh})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// racingSignups holds every EnsureAccount until both sign-ups have read the
// account, so both see it without a password.
type racingSignups struct {
	*store.MemoryLedger
	arrived sync.WaitGroup
}

func (r *racingSignups) EnsureAccount(ctx context.Context, key string) (*models.Account, error) {
	account, err := r.MemoryLedger.EnsureAccount(ctx, key)
	r.arrived.Done()
	r.arrived.Wait()
	return account, err
}

func TestAuth_ConcurrentSignupHasOneWinner(t *testing.T) {
	gate := &racingSignups{}
	gate.arrived.Add(2)
	s := newTestServerWith(t, serverOptions{accounts: func(l *store.MemoryLedger) handlers.AccountStore {
		gate.MemoryLedger = l
		return gate
	}})

	passwords := []string{"first password", "second password"}
	codes := make([]int, len(passwords))
	var wg sync.WaitGroup
	for i, pw := range passwords {
		wg.Add(1)
		go func(i int, pw string) {
			defer wg.Done()
			w, _ := s.do(t, http.MethodPost, "/signup", "", map[string]string{"account_key": "zoe", "password": pw})
			codes[i] = w.Code
		}(i, pw)
	}
	wg.Wait()

	assert.ElementsMatch(t, []int{http.StatusCreated, http.StatusConflict}, codes)

	winner, loser := passwords[0], passwords[1]
	if codes[1] == http.StatusCreated {
		winner, loser = loser, winner
	}
	w, _ := s.do(t, http.MethodPost, "/login", "", map[string]string{"account_key": "zoe", "password": winner})
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodPost, "/login", "", map[string]string{"account_key": "zoe", "password": loser})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_RejectsBadInput(t *testing.T) {
	s := newTestServer(t, false)

	w, _ := s.do(t, http.MethodPost, "/signup", "", map[string]string{"account_key": "bob", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// an access token is not a refresh token
	access, _ := s.login(t, "bob")
	w, _ = s.do(t, http.MethodPost, "/token/refresh", "", map[string]string{"refresh_token": access})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPortfolio_RequiresToken(t *testing.T) {
	s := newTestServer(t, false)

	w, _ := s.do(t, http.MethodGet, "/portfolio", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = s.do(t, http.MethodGet, "/portfolio", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPortfolio_TradeAndView(t *testing.T) {
	s := newTestServer(t, false)
	token, _ := s.login(t, "carol")

	w, tx := s.do(t, http.MethodPost, "/portfolio/buy", token, map[string]interface{}{"symbol": "btc", "name": "Bitcoin", "quantity": 1, "price": "50000"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "BUY", tx["kind"])
	assert.Equal(t, "50000", tx["amount"])

	w, _ = s.do(t, http.MethodPost, "/portfolio/buy", token, map[string]interface{}{"symbol": "BTC", "quantity": "1", "price": 60000})
	require.Equal(t, http.StatusCreated, w.Code)

	w, tx = s.do(t, http.MethodPost, "/portfolio/sell", token, map[string]interface{}{"symbol": "BTC", "quantity": "1", "price": "70000"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "SELL", tx["kind"])
	assert.Equal(t, "70000", tx["amount"])
	assert.Equal(t, "15000", tx["realized_gain"])

	w, view := s.do(t, http.MethodGet, "/portfolio", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	items := view["items"].([]interface{})
	require.Len(t, items, 1)
	item := items[0].(map[string]interface{})
	assert.Equal(t, "BTC", item["symbol"])
	assert.Equal(t, "Bitcoin", item["display_name"])
	assert.Equal(t, "1", item["quantity"])
	assert.Equal(t, "55000", item["avg_cost"])
	assert.Equal(t, "55000", item["cumulative_spent"])
	assert.Equal(t, "70000", item["cached_price"])
	assert.Equal(t, "70000", view["total_value"])
	assert.Equal(t, "15000", view["unrealized_pnl"])

	w, body := s.do(t, http.MethodGet, "/transactions?limit=2", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	txs := body["transactions"].([]interface{})
	require.Len(t, txs, 2)
	assert.Equal(t, "SELL", txs[0].(map[string]interface{})["kind"])
}

func TestPortfolio_TradeErrors(t *testing.T) {
	s := newTestServer(t, false)
	token, _ := s.login(t, "dave")

	tests := []struct {
		name string
		path string
		body map[string]interface{}
		want int
	}{
		{"sell without position", "/portfolio/sell", map[string]interface{}{"symbol": "ETH", "quantity": 1, "price": 3000}, http.StatusNotFound},
		{"zero quantity", "/portfolio/buy", map[string]interface{}{"symbol": "ETH", "quantity": 0, "price": 3000}, http.StatusBadRequest},
		{"missing price", "/portfolio/buy", map[string]interface{}{"symbol": "ETH", "quantity": 1}, http.StatusBadRequest},
		{"missing symbol", "/portfolio/buy", map[string]interface{}{"quantity": 1, "price": 1}, http.StatusBadRequest},
		{"not a number", "/portfolio/buy", map[string]interface{}{"symbol": "ETH", "quantity": "lots", "price": 1}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := s.do(t, http.MethodPost, tt.path, token, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	w, _ := s.do(t, http.MethodPost, "/portfolio/buy", token, map[string]interface{}{"symbol": "ETH", "quantity": 1, "price": 3000})
	require.Equal(t, http.StatusCreated, w.Code)
	w, _ = s.do(t, http.MethodPost, "/portfolio/sell", token, map[string]interface{}{"symbol": "ETH", "quantity": 2, "price": 3000})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestPortfolio_PriceOutageStillServesView(t *testing.T) {
	s := newTestServer(t, false)
	token, _ := s.login(t, "erin")
	s.prices.err = errors.New("upstream down")

	w, _ := s.do(t, http.MethodPost, "/portfolio/buy", token, map[string]interface{}{"symbol": "ETH", "quantity": 2, "price": 3000})
	require.Equal(t, http.StatusCreated, w.Code)

	w, view := s.do(t, http.MethodGet, "/portfolio?sort=value", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", view["total_value"])
	assert.Equal(t, "6000", view["total_spent"])
}

func TestMarket_Prices(t *testing.T) {
	s := newTestServer(t, false)
	token, _ := s.login(t, "fay")

	w, body := s.do(t, http.MethodGet, "/prices/btc,ETH,nope", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	prices := body["prices"].(map[string]interface{})
	assert.Equal(t, "70000", prices["BTC"])
	assert.Equal(t, []interface{}{"NOPE"}, body["missing"])

	s.prices.err = errors.New("down")
	w, _ = s.do(t, http.MethodGet, "/prices/BTC", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMarket_History(t *testing.T) {
	s := newTestServer(t, false)
	token, _ := s.login(t, "gus")
	w, _ := s.do(t, http.MethodGet, "/prices/BTC/history", token, nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	s = newTestServer(t, true)
	token, _ = s.login(t, "gus")
	s.history.quotes = []models.PriceQuote{{Symbol: "BTC", Price: decimal.RequireFromString("1"), Source: "test"}}

	w, body := s.do(t, http.MethodGet, "/prices/btc/history?limit=5000", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "BTC", body["symbol"])
	assert.Len(t, body["history"], 1)
	assert.Equal(t, 1000, s.history.limit)

	w, _ = s.do(t, http.MethodGet, "/prices/BTC,ETH/history", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPortfolio_Account(t *testing.T) {
	s := newTestServer(t, false)
	token, _ := s.login(t, "hal")

	w, body := s.do(t, http.MethodGet, "/account", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "hal", body["key"])
	assert.Equal(t, "0", body["balance"])
	assert.NotContains(t, body, "password_hash")
	assert.NotContains(t, body, "PasswordHash")

	ghost, err := middleware.IssueToken(secret, "ghost", middleware.TokenAccess, time.Hour, time.Now())
	require.NoError(t, err)
	w, _ = s.do(t, http.MethodGet, "/account", ghost, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMarket_Listings(t *testing.T) {
	s := newTestServer(t, false)
	token, _ := s.login(t, "ivy")
	w, _ := s.do(t, http.MethodGet, "/market/top-coins", token, nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	listings := &fakeListings{
		top:    []pricing.Listing{{ID: "bitcoin", Symbol: "BTC", MarketCapRank: 1, CurrentPrice: decimal.RequireFromString("70000")}},
		growth: []pricing.Listing{{ID: "pepe", Symbol: "PEPE", PriceChange24h: decimal.RequireFromString("42.5")}},
	}
	s = newTestServerWith(t, serverOptions{listings: listings})
	token, _ = s.login(t, "ivy")

	w, body := s.do(t, http.MethodGet, "/market/top-coins", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	coins := body["coins"].([]interface{})
	require.Len(t, coins, 1)
	assert.Equal(t, "BTC", coins[0].(map[string]interface{})["symbol"])
	assert.Equal(t, "70000", coins[0].(map[string]interface{})["current_price"])

	w, body = s.do(t, http.MethodGet, "/market/growth-leaders", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42.5", body["coins"].([]interface{})[0].(map[string]interface{})["price_change_percentage_24h"])

	w, _ = s.do(t, http.MethodGet, "/market/top-coins?limit=1000", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodGet, "/market/growth-leaders?limit=1000", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{10, 5, 100, 50}, listings.limits, "defaults then caps")

	w, _ = s.do(t, http.MethodGet, "/market/top-coins?limit=-3", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	listings.err = errors.New("upstream down")
	w, _ = s.do(t, http.MethodGet, "/market/growth-leaders", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRequestLogger_EchoesRequestID(t *testing.T) {
	s := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/portfolio", nil)
	req.Header.Set(middleware.RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(middleware.RequestIDHeader))
}
