package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is one user, keyed by the external user id (chat id, API user).
// Balance is informational: buys and sells never move it.
type Account struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Key          string          `gorm:"column:account_key;type:varchar(64);not null;uniqueIndex" json:"key"`
	Balance      decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0" json:"balance"`
	PasswordHash string          `json:"-"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
