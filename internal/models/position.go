package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is an account's holding of one instrument.
type Position struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	AccountID     uint            `gorm:"uniqueIndex:idx_account_instrument;not null" json:"account_id"`
	InstrumentID  uint            `gorm:"uniqueIndex:idx_account_instrument;not null" json:"instrument_id"`
	Quantity      decimal.Decimal `gorm:"type:text;not null" json:"quantity"`
	AvgCost       decimal.Decimal `gorm:"type:text;not null" json:"avg_cost"`
	TotalInvested decimal.Decimal `gorm:"type:text;not null" json:"total_invested"`
	OpenedAt      time.Time       `gorm:"not null" json:"opened_at"`
	ModifiedAt    time.Time       `gorm:"not null" json:"modified_at"`
}

// NewPosition opens an empty position; the first fill sets its quantity and cost.
func NewPosition(accountID, instrumentID uint, now time.Time) *Position {
	return &Position{
		AccountID:     accountID,
		InstrumentID:  instrumentID,
		Quantity:      decimal.Zero,
		AvgCost:       decimal.Zero,
		TotalInvested: decimal.Zero,
		OpenedAt:      now,
		ModifiedAt:    now,
	}
}
