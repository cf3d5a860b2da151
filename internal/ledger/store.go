// Package ledger defines the repositories the trading core reads and writes
// through, and a gorm implementation of them.
package ledger

import (
	"context"
	"time"

	"virtual-trading-sim/internal/models"

	"github.com/shopspring/decimal"
)

// Accounts resolves and persists user accounts.
type Accounts interface {
	GetAccount(ctx context.Context, userID uint64) (*models.Account, error)
	CreateAccount(ctx context.Context, account *models.Account) error
	SaveAccount(ctx context.Context, account *models.Account) error
}

// Catalog is the instrument catalog.
type Catalog interface {
	ActiveInstruments(ctx context.Context) ([]models.Instrument, error)
	ListInstruments(ctx context.Context, filter InstrumentFilter) ([]models.Instrument, error)
	GetInstrument(ctx context.Context, id uint) (*models.Instrument, error)
	GetInstrumentBySymbol(ctx context.Context, symbol string) (*models.Instrument, error)
	SaveInstrument(ctx context.Context, instrument *models.Instrument) error
	SavePrices(ctx context.Context, updates []PriceUpdate) error
}

// Positions stores at most one position per account and instrument.
type Positions interface {
	GetPosition(ctx context.Context, accountID, instrumentID uint) (*models.Position, error)
	ListPositions(ctx context.Context, accountID uint) ([]models.Position, error)
	SavePosition(ctx context.Context, position *models.Position) error
	DeletePosition(ctx context.Context, position *models.Position) error
}

// Journal is the append-only trade history.
type Journal interface {
	Append(ctx context.Context, entry *models.JournalEntry) error
	// ListJournal returns entries newest first.
	ListJournal(ctx context.Context, accountID uint, page, size int) ([]models.JournalEntry, error)
	// ReplayJournal returns every entry oldest first.
	ReplayJournal(ctx context.Context, accountID uint) ([]models.JournalEntry, error)
}

// Store groups the repositories. Atomically runs fn against a transactional
// Store: every write inside fn commits together or not at all.
type Store interface {
	Accounts
	Catalog
	Positions
	Journal
	Atomically(ctx context.Context, fn func(tx Store) error) error
}

// InstrumentFilter narrows ListInstruments. Zero values match everything.
type InstrumentFilter struct {
	Kind       models.InstrumentKind
	Search     string
	ActiveOnly bool
}

// PriceUpdate is one simulated price committed by the feed.
type PriceUpdate struct {
	InstrumentID uint
	Price        decimal.Decimal
	ChangePct    decimal.Decimal
	At           time.Time
}
