package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote is one fetched USD price, kept as history.
type PriceQuote struct {
	ID        uint            `gorm:"primaryKey" json:"-"`
	Symbol    string          `gorm:"type:varchar(32);not null;index:idx_price_quotes_symbol_fetched" json:"symbol"`
	Price     decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"price"`
	Source    string          `gorm:"type:varchar(32)" json:"source"`
	FetchedAt time.Time       `gorm:"not null;index:idx_price_quotes_symbol_fetched" json:"fetched_at"`
}
