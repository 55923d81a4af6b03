package portfolio_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"crypto-portfolio/portfolio"
	"crypto-portfolio/store"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

var nopLog = zerolog.New(nil).Level(zerolog.Disabled)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// MockPriceSource is a testify mock of portfolio.PriceSource.
type MockPriceSource struct {
	mock.Mock
}

func (m *MockPriceSource) FetchPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	args := m.Called(symbols)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]decimal.Decimal), args.Error(1)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	ledger *store.MemoryLedger
	source *MockPriceSource
	clock  *fakeClock
	engine *portfolio.Engine
	svc    *portfolio.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, store.NewMemoryLedger(), portfolio.DefaultEngineOptions())
}

func newHarnessWith(t *testing.T, ledger *store.MemoryLedger, opts portfolio.EngineOptions) *harness {
	t.Helper()
	h := &harness{
		ledger: ledger,
		source: &MockPriceSource{},
		clock:  newFakeClock(),
	}
	opts.Clock = h.clock.Now
	h.engine = portfolio.NewEngine(ledger, opts, nopLog)
	refresher := portfolio.NewRefresher(ledger, h.source, portfolio.RefreshOptions{
		StaleAfter: 5 * time.Minute,
		Timeout:    time.Second,
		Clock:      h.clock.Now,
	}, nopLog)
	h.svc = portfolio.NewService(ledger, h.engine, refresher, nopLog)
	return h
}

func (h *harness) position(t *testing.T, account, symbol string) (*portfolio.LineItem, bool) {
	t.Helper()
	acct, err := h.ledger.LoadAccount(context.Background(), account)
	if err != nil {
		return nil, false
	}
	pos, err := h.ledger.LoadPosition(context.Background(), acct.ID, symbol)
	if err != nil {
		return nil, false
	}
	return &portfolio.LineItem{
		Symbol:          pos.Symbol,
		Quantity:        pos.Quantity,
		AvgCost:         pos.AvgCost,
		CumulativeSpent: pos.CumulativeSpent,
		CachedPrice:     pos.CachedPrice,
		CachedPriceAt:   pos.CachedPriceAt,
	}, true
}
