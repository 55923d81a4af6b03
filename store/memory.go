package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"crypto-portfolio/models"
	"crypto-portfolio/portfolio"

	"github.com/shopspring/decimal"
)

// memoryState is everything the in-memory ledger holds.
type memoryState struct {
	accounts     map[string]models.Account // by key
	positions    map[uint]models.Position
	transactions []models.Transaction

	nextAccountID  uint
	nextPositionID uint
	nextTxID       uint
}

func newMemoryState() *memoryState {
	return &memoryState{
		accounts:  make(map[string]models.Account),
		positions: make(map[uint]models.Position),
	}
}

func (s *memoryState) clone() *memoryState {
	cp := &memoryState{
		accounts:       make(map[string]models.Account, len(s.accounts)),
		positions:      make(map[uint]models.Position, len(s.positions)),
		transactions:   make([]models.Transaction, len(s.transactions)),
		nextAccountID:  s.nextAccountID,
		nextPositionID: s.nextPositionID,
		nextTxID:       s.nextTxID,
	}
	for k, a := range s.accounts {
		cp.accounts[k] = a
	}
	for id, p := range s.positions {
		cp.positions[id] = clonePosition(p)
	}
	copy(cp.transactions, s.transactions)
	return cp
}

func clonePosition(p models.Position) models.Position {
	if p.CachedPriceAt != nil {
		at := *p.CachedPriceAt
		p.CachedPriceAt = &at
	}
	return p
}

// MemoryLedger keeps the whole ledger in process memory. Atomic holds the
// store lock for the duration of fn and restores a snapshot when fn fails.
type MemoryLedger struct {
	mu    sync.Mutex
	state *memoryState
	clock func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{state: newMemoryState(), clock: time.Now}
}

func (m *MemoryLedger) tx() *memoryTx {
	return &memoryTx{state: m.state, clock: m.clock}
}

func (m *MemoryLedger) LoadAccount(ctx context.Context, key string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().LoadAccount(ctx, key)
}

func (m *MemoryLedger) EnsureAccount(ctx context.Context, key string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().EnsureAccount(ctx, key)
}

func (m *MemoryLedger) SetPasswordHash(ctx context.Context, accountID uint, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().SetPasswordHash(ctx, accountID, hash)
}

func (m *MemoryLedger) ListAccountIDs(ctx context.Context) ([]uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().ListAccountIDs(ctx)
}

func (m *MemoryLedger) LoadPosition(ctx context.Context, accountID uint, symbol string) (*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().LoadPosition(ctx, accountID, symbol)
}

func (m *MemoryLedger) SavePosition(ctx context.Context, pos *models.Position, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().SavePosition(ctx, pos, expectedVersion)
}

func (m *MemoryLedger) DeletePosition(ctx context.Context, pos *models.Position, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().DeletePosition(ctx, pos, expectedVersion)
}

func (m *MemoryLedger) ListPositions(ctx context.Context, accountID uint) ([]models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().ListPositions(ctx, accountID)
}

func (m *MemoryLedger) UpdateCachedPrice(ctx context.Context, positionID uint, price decimal.Decimal, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().UpdateCachedPrice(ctx, positionID, price, at)
}

func (m *MemoryLedger) AppendTransaction(ctx context.Context, tx *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().AppendTransaction(ctx, tx)
}

func (m *MemoryLedger) ListTransactions(ctx context.Context, accountID uint, limit int) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().ListTransactions(ctx, accountID, limit)
}

func (m *MemoryLedger) Atomic(ctx context.Context, fn func(portfolio.Ledger) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(m.tx()); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

// memoryTx is the unlocked view of the state, used inside and outside Atomic.
type memoryTx struct {
	state *memoryState
	clock func() time.Time
}

func (t *memoryTx) LoadAccount(_ context.Context, key string) (*models.Account, error) {
	a, ok := t.state.accounts[key]
	if !ok {
		return nil, portfolio.ErrAccountNotFound
	}
	return &a, nil
}

func (t *memoryTx) EnsureAccount(ctx context.Context, key string) (*models.Account, error) {
	if a, err := t.LoadAccount(ctx, key); err == nil {
		return a, nil
	}
	now := t.clock()
	t.state.nextAccountID++
	a := models.Account{
		ID:        t.state.nextAccountID,
		Key:       key,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.state.accounts[key] = a
	return &a, nil
}

func (t *memoryTx) SetPasswordHash(_ context.Context, accountID uint, hash string) error {
	for k, a := range t.state.accounts {
		if a.ID == accountID {
			if a.PasswordHash != "" {
				return portfolio.ErrAccountRegistered
			}
			a.PasswordHash = hash
			a.UpdatedAt = t.clock()
			t.state.accounts[k] = a
			return nil
		}
	}
	return portfolio.ErrAccountNotFound
}

func (t *memoryTx) ListAccountIDs(_ context.Context) ([]uint, error) {
	ids := make([]uint, 0, len(t.state.accounts))
	for _, a := range t.state.accounts {
		ids = append(ids, a.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (t *memoryTx) find(accountID uint, symbol string) (models.Position, bool) {
	for _, p := range t.state.positions {
		if p.AccountID == accountID && p.Symbol == symbol {
			return p, true
		}
	}
	return models.Position{}, false
}

func (t *memoryTx) LoadPosition(_ context.Context, accountID uint, symbol string) (*models.Position, error) {
	p, ok := t.find(accountID, symbol)
	if !ok {
		return nil, portfolio.ErrPositionNotFound
	}
	p = clonePosition(p)
	return &p, nil
}

func (t *memoryTx) SavePosition(_ context.Context, pos *models.Position, expectedVersion int64) error {
	now := t.clock()
	if pos.ID == 0 {
		if _, exists := t.find(pos.AccountID, pos.Symbol); exists {
			return portfolio.ErrConcurrentUpdate
		}
		t.state.nextPositionID++
		pos.ID = t.state.nextPositionID
		pos.Version = expectedVersion + 1
		pos.CreatedAt = now
		pos.UpdatedAt = now
		t.state.positions[pos.ID] = clonePosition(*pos)
		return nil
	}

	stored, ok := t.state.positions[pos.ID]
	if !ok || stored.Version != expectedVersion {
		return portfolio.ErrConcurrentUpdate
	}
	stored.DisplayName = pos.DisplayName
	stored.Quantity = pos.Quantity
	stored.AvgCost = pos.AvgCost
	stored.CumulativeSpent = pos.CumulativeSpent
	stored.Version = expectedVersion + 1
	stored.UpdatedAt = now
	t.state.positions[pos.ID] = stored

	pos.Version = stored.Version
	pos.UpdatedAt = now
	return nil
}

func (t *memoryTx) DeletePosition(_ context.Context, pos *models.Position, expectedVersion int64) error {
	stored, ok := t.state.positions[pos.ID]
	if !ok || stored.Version != expectedVersion {
		return portfolio.ErrConcurrentUpdate
	}
	delete(t.state.positions, pos.ID)
	return nil
}

func (t *memoryTx) ListPositions(_ context.Context, accountID uint) ([]models.Position, error) {
	out := make([]models.Position, 0)
	for _, p := range t.state.positions {
		if p.AccountID == accountID {
			out = append(out, clonePosition(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memoryTx) UpdateCachedPrice(_ context.Context, positionID uint, price decimal.Decimal, at time.Time) error {
	stored, ok := t.state.positions[positionID]
	if !ok {
		// closed meanwhile; nothing to price
		return nil
	}
	stored.CachedPrice = price
	stored.CachedPriceAt = &at
	t.state.positions[positionID] = stored
	return nil
}

func (t *memoryTx) AppendTransaction(_ context.Context, tx *models.Transaction) error {
	t.state.nextTxID++
	tx.ID = t.state.nextTxID
	t.state.transactions = append(t.state.transactions, *tx)
	return nil
}

func (t *memoryTx) ListTransactions(_ context.Context, accountID uint, limit int) ([]models.Transaction, error) {
	out := make([]models.Transaction, 0)
	for i := len(t.state.transactions) - 1; i >= 0; i-- {
		tx := t.state.transactions[i]
		if tx.AccountID != accountID {
			continue
		}
		out = append(out, tx)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (t *memoryTx) Atomic(_ context.Context, fn func(portfolio.Ledger) error) error {
	return fn(t)
}
