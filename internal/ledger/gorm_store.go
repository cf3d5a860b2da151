package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"virtual-trading-sim/internal/models"

	"gorm.io/gorm"
)

// GormStore implements Store on top of gorm.
type GormStore struct {
	db *gorm.DB
}

// ensure GormStore implements the interface
var _ Store = (*GormStore)(nil)

// NewGormStore wraps an open, migrated database.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Atomically runs fn inside a database transaction.
func (s *GormStore) Atomically(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), models.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// --- accounts ---

func (s *GormStore) GetAccount(ctx context.Context, userID uint64) (*models.Account, error) {
	var account models.Account
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error; err != nil {
		return nil, notFound(err, "account for user %d", userID)
	}
	return &account, nil
}

func (s *GormStore) CreateAccount(ctx context.Context, account *models.Account) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Account{}).Where("user_id = ?", account.UserID).Count(&count).Error; err != nil {
		return fmt.Errorf("count accounts for user %d: %w", account.UserID, err)
	}
	if count > 0 {
		return fmt.Errorf("account for user %d: %w", account.UserID, models.ErrAlreadyExists)
	}
	if err := s.db.WithContext(ctx).Create(account).Error; err != nil {
		return fmt.Errorf("create account for user %d: %w", account.UserID, err)
	}
	return nil
}

func (s *GormStore) SaveAccount(ctx context.Context, account *models.Account) error {
	if err := s.db.WithContext(ctx).Save(account).Error; err != nil {
		return fmt.Errorf("save account %d: %w", account.ID, err)
	}
	return nil
}

// --- catalog ---

func (s *GormStore) ActiveInstruments(ctx context.Context) ([]models.Instrument, error) {
	return s.ListInstruments(ctx, InstrumentFilter{ActiveOnly: true})
}

func (s *GormStore) ListInstruments(ctx context.Context, filter InstrumentFilter) ([]models.Instrument, error) {
	q := s.db.WithContext(ctx).Model(&models.Instrument{})
	if filter.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	if filter.Kind != "" {
		q = q.Where("kind = ?", filter.Kind)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		q = q.Where("LOWER(symbol) LIKE ? OR LOWER(name) LIKE ? OR LOWER(sector) LIKE ?", like, like, like)
	}

	var instruments []models.Instrument
	if err := q.Order("symbol").Find(&instruments).Error; err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	return instruments, nil
}

func (s *GormStore) GetInstrument(ctx context.Context, id uint) (*models.Instrument, error) {
	var instrument models.Instrument
	if err := s.db.WithContext(ctx).First(&instrument, id).Error; err != nil {
		return nil, notFound(err, "instrument %d", id)
	}
	return &instrument, nil
}

func (s *GormStore) GetInstrumentBySymbol(ctx context.Context, symbol string) (*models.Instrument, error) {
	var instrument models.Instrument
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if err := s.db.WithContext(ctx).Where("symbol = ?", symbol).First(&instrument).Error; err != nil {
		return nil, notFound(err, "instrument %s", symbol)
	}
	return &instrument, nil
}

func (s *GormStore) SaveInstrument(ctx context.Context, instrument *models.Instrument) error {
	if err := s.db.WithContext(ctx).Save(instrument).Error; err != nil {
		return fmt.Errorf("save instrument %s: %w", instrument.Symbol, err)
	}
	return nil
}

// SavePrices writes a batch of simulated prices in one transaction.
func (s *GormStore) SavePrices(ctx context.Context, updates []PriceUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			err := tx.Model(&models.Instrument{}).Where("id = ?", u.InstrumentID).Updates(map[string]any{
				"current_price": u.Price,
				"change_pct":    u.ChangePct,
				"priced_at":     u.At,
			}).Error
			if err != nil {
				return fmt.Errorf("save price of instrument %d: %w", u.InstrumentID, err)
			}
		}
		return nil
	})
}

// --- positions ---

func (s *GormStore) GetPosition(ctx context.Context, accountID, instrumentID uint) (*models.Position, error) {
	var position models.Position
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND instrument_id = ?", accountID, instrumentID).
		First(&position).Error
	if err != nil {
		return nil, notFound(err, "position %d/%d", accountID, instrumentID)
	}
	return &position, nil
}

func (s *GormStore) ListPositions(ctx context.Context, accountID uint) ([]models.Position, error) {
	var positions []models.Position
	if err := s.db.WithContext(ctx).Where("account_id = ?", accountID).Order("instrument_id").Find(&positions).Error; err != nil {
		return nil, fmt.Errorf("list positions of account %d: %w", accountID, err)
	}
	return positions, nil
}

func (s *GormStore) SavePosition(ctx context.Context, position *models.Position) error {
	if err := s.db.WithContext(ctx).Save(position).Error; err != nil {
		return fmt.Errorf("save position %d/%d: %w", position.AccountID, position.InstrumentID, err)
	}
	return nil
}

func (s *GormStore) DeletePosition(ctx context.Context, position *models.Position) error {
	if err := s.db.WithContext(ctx).Delete(&models.Position{}, position.ID).Error; err != nil {
		return fmt.Errorf("delete position %d/%d: %w", position.AccountID, position.InstrumentID, err)
	}
	return nil
}

// --- journal ---

func (s *GormStore) Append(ctx context.Context, entry *models.JournalEntry) error {
	if entry.ID != 0 {
		return fmt.Errorf("journal entry %s already written", entry.Ref)
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("append journal entry %s: %w", entry.Ref, err)
	}
	return nil
}

func (s *GormStore) ListJournal(ctx context.Context, accountID uint, page, size int) ([]models.JournalEntry, error) {
	// an offset that would overflow lies past any journal
	if page < 0 || size <= 0 || page > math.MaxInt/size {
		return []models.JournalEntry{}, nil
	}
	var entries []models.JournalEntry
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("executed_at DESC, id DESC").
		Offset(page * size).
		Limit(size).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list journal of account %d: %w", accountID, err)
	}
	return entries, nil
}

func (s *GormStore) ReplayJournal(ctx context.Context, accountID uint) ([]models.JournalEntry, error) {
	var entries []models.JournalEntry
	if err := s.db.WithContext(ctx).Where("account_id = ?", accountID).Order("id").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("replay journal of account %d: %w", accountID, err)
	}
	return entries, nil
}
