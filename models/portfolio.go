package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is an account's open holding in one symbol. A position whose
// quantity reaches zero is deleted, never kept around with a stale average.
type Position struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	AccountID       uint            `gorm:"not null;uniqueIndex:idx_positions_account_symbol" json:"account_id"`
	Symbol          string          `gorm:"type:varchar(32);not null;uniqueIndex:idx_positions_account_symbol" json:"symbol"`
	DisplayName     string          `gorm:"type:varchar(128);not null" json:"display_name"`
	Quantity        decimal.Decimal `gorm:"type:numeric(38,18);not null;default:0" json:"quantity"`
	AvgCost         decimal.Decimal `gorm:"type:numeric(38,18);not null;default:0" json:"avg_cost"`
	CumulativeSpent decimal.Decimal `gorm:"type:numeric(38,18);not null;default:0" json:"cumulative_spent"`
	CachedPrice     decimal.Decimal `gorm:"type:numeric(38,18);not null;default:0" json:"cached_price"`
	CachedPriceAt   *time.Time      `json:"cached_price_at"`
	Version         int64           `gorm:"not null;default:0" json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type TransactionKind string

const (
	KindBuy  TransactionKind = "BUY"
	KindSell TransactionKind = "SELL"
)

// Transaction is the append-only audit record of an accepted buy or sell.
// Amount is the cost of a buy and the proceeds of a sell.
type Transaction struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	AccountID    uint            `gorm:"not null;index" json:"account_id"`
	Symbol       string          `gorm:"type:varchar(32);not null;index" json:"symbol"`
	DisplayName  string          `gorm:"type:varchar(128);not null" json:"display_name"`
	Kind         TransactionKind `gorm:"type:varchar(4);not null" json:"kind"`
	Quantity     decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"quantity"`
	UnitPrice    decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"unit_price"`
	Amount       decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"amount"`
	RealizedGain decimal.Decimal `gorm:"type:numeric(38,18);not null;default:0" json:"realized_gain"`
	OccurredAt   time.Time       `gorm:"not null;index" json:"occurred_at"`
}
