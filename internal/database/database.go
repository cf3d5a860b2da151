package database

import (
	"fmt"
	"strings"
	"time"

	"virtual-trading-sim/internal/config"
	"virtual-trading-sim/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDatabase opens the sqlite database, migrates the schema and seeds the instrument catalog.
func NewDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := Open(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}

	if err := SeedInstruments(db, cfg.Instruments, time.Now().UTC()); err != nil {
		return nil, err
	}

	return db, nil
}

// Open connects to sqlite. sqlite has a single writer, so the pool is limited
// to one connection and transactions queue instead of failing with SQLITE_BUSY.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

// AutoMigrate creates or updates the ledger tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Instrument{},
		&models.Account{},
		&models.Position{},
		&models.JournalEntry{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}

// SeedInstruments inserts catalog entries that do not exist yet. Existing
// instruments keep their simulated price.
func SeedInstruments(db *gorm.DB, seeds []config.Instrument, now time.Time) error {
	for _, seed := range seeds {
		symbol := strings.ToUpper(strings.TrimSpace(seed.Symbol))
		if symbol == "" {
			return fmt.Errorf("instrument seed without symbol")
		}
		kind, err := models.ParseInstrumentKind(seed.Kind)
		if err != nil {
			return fmt.Errorf("instrument %s: %w", symbol, err)
		}
		base := models.RoundPrice(decimal.NewFromFloat(seed.BasePrice))
		if !base.IsPositive() {
			return fmt.Errorf("instrument %s: base price must be positive", symbol)
		}

		name := seed.Name
		if name == "" {
			name = symbol
		}
		instrument := models.Instrument{
			Symbol:       symbol,
			Name:         name,
			Kind:         kind,
			Sector:       seed.Sector,
			BasePrice:    base,
			CurrentPrice: base,
			ChangePct:    decimal.Zero,
			Active:       true,
			PricedAt:     now,
		}
		if err := db.Where(models.Instrument{Symbol: symbol}).FirstOrCreate(&instrument).Error; err != nil {
			return fmt.Errorf("failed to populate instrument '%s': %w", symbol, err)
		}
	}
	return nil
}
