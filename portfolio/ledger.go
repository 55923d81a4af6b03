package portfolio

import (
	"context"
	"time"

	"crypto-portfolio/models"

	"github.com/shopspring/decimal"
)

// Ledger is the durable storage the engine reads and writes.
//
// SavePosition creates the position when its ID is zero, otherwise it
// updates quantity, average cost, cumulative spend and display name only if
// the stored version still equals expectedVersion, bumping the version.
// DeletePosition has the same version check. Both report ErrConcurrentUpdate
// on a mismatch. UpdateCachedPrice touches the cached price columns only and
// never the version, so it cannot conflict with a buy or sell.
type Ledger interface {
	LoadAccount(ctx context.Context, key string) (*models.Account, error)
	EnsureAccount(ctx context.Context, key string) (*models.Account, error)
	ListAccountIDs(ctx context.Context) ([]uint, error)

	LoadPosition(ctx context.Context, accountID uint, symbol string) (*models.Position, error)
	SavePosition(ctx context.Context, pos *models.Position, expectedVersion int64) error
	DeletePosition(ctx context.Context, pos *models.Position, expectedVersion int64) error
	// ListPositions returns the account's open positions in creation order.
	ListPositions(ctx context.Context, accountID uint) ([]models.Position, error)
	UpdateCachedPrice(ctx context.Context, positionID uint, price decimal.Decimal, at time.Time) error

	AppendTransaction(ctx context.Context, tx *models.Transaction) error
	// ListTransactions returns newest first. limit <= 0 means no limit.
	ListTransactions(ctx context.Context, accountID uint, limit int) ([]models.Transaction, error)

	// Atomic runs fn against a ledger whose writes commit together or not at all.
	Atomic(ctx context.Context, fn func(Ledger) error) error
}

// PriceSource returns current USD prices. Symbols it cannot price are left
// out of the map.
type PriceSource interface {
	FetchPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}
