package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JournalEntry records one executed trade. Entries are never updated or deleted.
type JournalEntry struct {
	ID              uint             `gorm:"primaryKey" json:"id"`
	Ref             string           `gorm:"uniqueIndex;not null" json:"ref"`
	AccountID       uint             `gorm:"index:idx_journal_account_time;not null" json:"account_id"`
	InstrumentID    uint             `gorm:"index;not null" json:"instrument_id"`
	Symbol          string           `gorm:"not null" json:"symbol"`
	Side            Side             `gorm:"not null" json:"side"`
	OrderKind       OrderKind        `gorm:"not null" json:"order_kind"`
	Quantity        decimal.Decimal  `gorm:"type:text;not null" json:"quantity"`
	Price           decimal.Decimal  `gorm:"type:text;not null" json:"price"`
	Total           decimal.Decimal  `gorm:"type:text;not null" json:"total"`
	RealizedPnL     *decimal.Decimal `gorm:"column:realized_pnl;type:text" json:"realized_pnl,omitempty"`
	AvgCostSnapshot *decimal.Decimal `gorm:"type:text" json:"avg_cost_snapshot,omitempty"`
	LimitPrice      *decimal.Decimal `gorm:"type:text" json:"limit_price,omitempty"`
	ExecutedAt      time.Time        `gorm:"index:idx_journal_account_time;not null" json:"executed_at"`
}

// Fill describes an executed order before it is journaled.
type Fill struct {
	AccountID    uint
	InstrumentID uint
	Symbol       string
	Side         Side
	OrderKind    OrderKind
	Quantity     decimal.Decimal
	Price        decimal.Decimal
	Total        decimal.Decimal
	LimitPrice   *decimal.Decimal
}

// NewJournalEntry stamps a fill with a reference and its execution time.
func NewJournalEntry(f Fill, now time.Time) *JournalEntry {
	return &JournalEntry{
		Ref:          uuid.NewString(),
		AccountID:    f.AccountID,
		InstrumentID: f.InstrumentID,
		Symbol:       f.Symbol,
		Side:         f.Side,
		OrderKind:    f.OrderKind,
		Quantity:     f.Quantity,
		Price:        f.Price,
		Total:        f.Total,
		LimitPrice:   f.LimitPrice,
		ExecutedAt:   now,
	}
}

// WithRealized attaches the P&L and the average cost it was computed from (SELL only).
func (e *JournalEntry) WithRealized(pnl, avgCost decimal.Decimal) *JournalEntry {
	e.RealizedPnL = &pnl
	e.AvgCostSnapshot = &avgCost
	return e
}
