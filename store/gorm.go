package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crypto-portfolio/models"
	"crypto-portfolio/portfolio"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLedger stores accounts, positions and transactions through gorm
// (Postgres in production). Position writes are guarded by the version column.
type GormLedger struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewGormLedger(db *gorm.DB, log zerolog.Logger) *GormLedger {
	return &GormLedger{
		db:  db,
		log: log.With().Str("repo", "ledger").Logger(),
	}
}

func (l *GormLedger) LoadAccount(ctx context.Context, key string) (*models.Account, error) {
	var account models.Account
	err := l.db.WithContext(ctx).Where("account_key = ?", key).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, portfolio.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return &account, nil
}

// EnsureAccount inserts the account if missing. Concurrent first calls for
// the same key all end up reading the one row that won the insert.
func (l *GormLedger) EnsureAccount(ctx context.Context, key string) (*models.Account, error) {
	account := models.Account{Key: key, Balance: decimal.Zero}
	err := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "account_key"}}, DoNothing: true}).
		Create(&account).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return l.LoadAccount(ctx, key)
}

// SetPasswordHash only writes over an empty hash, so of two racing sign-ups
// exactly one wins.
func (l *GormLedger) SetPasswordHash(ctx context.Context, accountID uint, hash string) error {
	db := l.db.WithContext(ctx)
	res := db.Model(&models.Account{}).
		Where("id = ? AND (password_hash = '' OR password_hash IS NULL)", accountID).
		Update("password_hash", hash)
	if res.Error != nil {
		return fmt.Errorf("failed to set password: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := db.Model(&models.Account{}).Where("id = ?", accountID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check account: %w", err)
	}
	if count == 0 {
		return portfolio.ErrAccountNotFound
	}
	return portfolio.ErrAccountRegistered
}

func (l *GormLedger) ListAccountIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	if err := l.db.WithContext(ctx).Model(&models.Account{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return ids, nil
}

func (l *GormLedger) LoadPosition(ctx context.Context, accountID uint, symbol string) (*models.Position, error) {
	var pos models.Position
	err := l.db.WithContext(ctx).Where("account_id = ? AND symbol = ?", accountID, symbol).First(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, portfolio.ErrPositionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load position: %w", err)
	}
	return &pos, nil
}

func (l *GormLedger) SavePosition(ctx context.Context, pos *models.Position, expectedVersion int64) error {
	db := l.db.WithContext(ctx)

	if pos.ID == 0 {
		pos.Version = expectedVersion + 1
		if err := db.Create(pos).Error; err != nil {
			pos.Version = expectedVersion
			if isDuplicate(err) {
				return portfolio.ErrConcurrentUpdate
			}
			return fmt.Errorf("failed to create position: %w", err)
		}
		return nil
	}

	res := db.Model(&models.Position{}).
		Where("id = ? AND version = ?", pos.ID, expectedVersion).
		Updates(map[string]interface{}{
			"display_name":     pos.DisplayName,
			"quantity":         pos.Quantity,
			"avg_cost":         pos.AvgCost,
			"cumulative_spent": pos.CumulativeSpent,
			"version":          expectedVersion + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update position: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return portfolio.ErrConcurrentUpdate
	}
	pos.Version = expectedVersion + 1
	return nil
}

func (l *GormLedger) DeletePosition(ctx context.Context, pos *models.Position, expectedVersion int64) error {
	res := l.db.WithContext(ctx).
		Where("id = ? AND version = ?", pos.ID, expectedVersion).
		Delete(&models.Position{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete position: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return portfolio.ErrConcurrentUpdate
	}
	return nil
}

func (l *GormLedger) ListPositions(ctx context.Context, accountID uint) ([]models.Position, error) {
	positions := make([]models.Position, 0)
	if err := l.db.WithContext(ctx).Where("account_id = ?", accountID).Order("id").Find(&positions).Error; err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	return positions, nil
}

// UpdateCachedPrice leaves the version alone: a price write never races a
// cost-basis write for the same columns.
func (l *GormLedger) UpdateCachedPrice(ctx context.Context, positionID uint, price decimal.Decimal, at time.Time) error {
	err := l.db.WithContext(ctx).Model(&models.Position{}).
		Where("id = ?", positionID).
		UpdateColumns(map[string]interface{}{
			"cached_price":    price,
			"cached_price_at": at,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update cached price: %w", err)
	}
	return nil
}

func (l *GormLedger) AppendTransaction(ctx context.Context, tx *models.Transaction) error {
	if err := l.db.WithContext(ctx).Create(tx).Error; err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

func (l *GormLedger) ListTransactions(ctx context.Context, accountID uint, limit int) ([]models.Transaction, error) {
	q := l.db.WithContext(ctx).Where("account_id = ?", accountID).Order("occurred_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	txs := make([]models.Transaction, 0)
	if err := q.Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	return txs, nil
}

func (l *GormLedger) Atomic(ctx context.Context, fn func(portfolio.Ledger) error) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormLedger{db: tx, log: l.log})
	})
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
