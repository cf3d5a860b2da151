package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds the virtual cash of one user.
type Account struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	UserID         uint64          `gorm:"uniqueIndex;not null" json:"user_id"`
	CashBalance    decimal.Decimal `gorm:"type:text;not null" json:"cash_balance"`
	InitialCapital decimal.Decimal `gorm:"type:text;not null" json:"initial_capital"`
	RealizedPnL    decimal.Decimal `gorm:"column:realized_pnl;type:text;not null" json:"realized_pnl"`
	OpenedAt       time.Time       `gorm:"not null" json:"opened_at"`
	ModifiedAt     time.Time       `gorm:"not null" json:"modified_at"`
}

// NewAccount funds a fresh account with capital rounded to MoneyScale.
func NewAccount(userID uint64, capital decimal.Decimal, now time.Time) *Account {
	capital = RoundMoney(capital)
	return &Account{
		UserID:         userID,
		CashBalance:    capital,
		InitialCapital: capital,
		RealizedPnL:    decimal.Zero,
		OpenedAt:       now,
		ModifiedAt:     now,
	}
}
