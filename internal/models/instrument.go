package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Instrument is a tradable symbol with a simulated price.
// Decimal columns are stored as text so sqlite keeps them exact.
type Instrument struct {
	gorm.Model
	Symbol       string          `gorm:"uniqueIndex;not null" json:"symbol"`
	Name         string          `gorm:"not null" json:"name"`
	Kind         InstrumentKind  `gorm:"index;not null" json:"kind"`
	Sector       string          `json:"sector,omitempty"`
	BasePrice    decimal.Decimal `gorm:"type:text;not null" json:"base_price"`
	CurrentPrice decimal.Decimal `gorm:"type:text;not null" json:"current_price"`
	ChangePct    decimal.Decimal `gorm:"type:text;not null" json:"change_pct"`
	Active       bool            `gorm:"index;not null;default:true" json:"active"`
	PricedAt     time.Time       `json:"priced_at"`
}
