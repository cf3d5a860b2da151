// Package trading executes simulated orders against the ledger.
package trading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"virtual-trading-sim/internal/config"
	"virtual-trading-sim/internal/ledger"
	"virtual-trading-sim/internal/models"
	"virtual-trading-sim/internal/pricefeed"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PriceSource serves the last committed price of an instrument.
type PriceSource interface {
	Snapshot(instrumentID uint) (pricefeed.Quote, error)
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock sets the time source used to stamp accounts, positions and journal entries.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine is the trading core. Orders for one user run one at a time; orders
// for different users run in parallel.
type Engine struct {
	logger      *zap.Logger
	store       ledger.Store
	prices      PriceSource
	locks       *accountLocks
	now         func() time.Time
	maxQuantity decimal.Decimal
	maxCapital  decimal.Decimal
}

// NewEngine creates a new trading engine.
func NewEngine(logger *zap.Logger, cfg config.Trading, store ledger.Store, prices PriceSource, opts ...Option) *Engine {
	maxQuantity := decimal.NewFromInt(1_000_000)
	if cfg.MaxQuantity > 0 {
		maxQuantity = decimal.NewFromFloat(cfg.MaxQuantity)
	}
	maxCapital := decimal.NewFromInt(100_000_000)
	if cfg.MaxInitialCapital > 0 {
		maxCapital = decimal.NewFromFloat(cfg.MaxInitialCapital)
	}

	e := &Engine{
		logger:      logger.Named("trading"),
		store:       store,
		prices:      prices,
		locks:       newAccountLocks(),
		now:         func() time.Time { return time.Now().UTC() },
		maxQuantity: maxQuantity,
		maxCapital:  maxCapital,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OpenAccount funds a new account for userID.
func (e *Engine) OpenAccount(ctx context.Context, userID uint64, capital decimal.Decimal) (*models.Account, error) {
	capital = models.RoundMoney(capital)
	if !capital.IsPositive() {
		return nil, fmt.Errorf("%w: initial capital must be positive", models.ErrInvalidOrder)
	}
	if capital.GreaterThan(e.maxCapital) {
		return nil, fmt.Errorf("%w: initial capital cannot exceed %s", models.ErrInvalidOrder, e.maxCapital)
	}

	unlock := e.locks.Lock(userID)
	defer unlock()

	account := models.NewAccount(userID, capital, e.now())
	if err := e.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	e.logger.Info("Opened account", zap.Uint64("user_id", userID), zap.String("capital", capital.String()))
	return account, nil
}

// Execute validates and fills an order. Everything the order changes (cash,
// position, journal, realized P&L) commits in one store transaction.
func (e *Engine) Execute(ctx context.Context, order Order) (*ExecutionResult, error) {
	l := e.logger.With(
		zap.Uint64("user_id", order.UserID),
		zap.Uint("instrument_id", order.InstrumentID),
		zap.String("side", string(order.Side)),
		zap.String("order_kind", string(order.Kind)),
		zap.String("quantity", order.Quantity.String()),
	)

	qty, err := e.validate(order)
	if err != nil {
		l.Debug("Order failed validation", zap.Error(err))
		return failed(OutcomeValidationFault, err.Error()), err
	}

	unlock := e.locks.Lock(order.UserID)
	defer unlock()

	var result *ExecutionResult
	err = e.store.Atomically(ctx, func(tx ledger.Store) error {
		r, err := e.fill(ctx, tx, order, qty)
		if err != nil {
			return err
		}
		result = r
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, models.ErrNotFound):
		l.Warn("Order references an unknown account or instrument", zap.Error(err))
		return failed(OutcomeNotFound, err.Error()), err
	default:
		l.Error("Order failed, nothing was committed", zap.Error(err))
		return failed(OutcomeSystemFault, "trade could not be processed, please retry"),
			fmt.Errorf("%w: execute order: %w", models.ErrSystemFault, err)
	}

	if result.Success {
		l.Info("Order executed",
			zap.String("ref", result.Entry.Ref),
			zap.String("price", result.Entry.Price.String()),
			zap.String("total", result.Entry.Total.String()),
			zap.String("new_balance", result.NewBalance.String()))
	} else {
		l.Info("Order rejected", zap.String("reason", result.Message))
	}
	return result, nil
}

func (e *Engine) validate(o Order) (decimal.Decimal, error) {
	if o.Side != models.SideBuy && o.Side != models.SideSell {
		return decimal.Zero, fmt.Errorf("%w: unknown side %q", models.ErrInvalidOrder, o.Side)
	}
	if o.Kind != models.OrderMarket && o.Kind != models.OrderLimit {
		return decimal.Zero, fmt.Errorf("%w: unknown order kind %q", models.ErrInvalidOrder, o.Kind)
	}
	qty := models.RoundQuantity(o.Quantity)
	if !qty.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: quantity must be positive", models.ErrInvalidOrder)
	}
	if qty.GreaterThan(e.maxQuantity) {
		return decimal.Zero, fmt.Errorf("%w: quantity %s exceeds the maximum of %s", models.ErrInvalidOrder, qty, e.maxQuantity)
	}
	if o.LimitPrice != nil && !o.LimitPrice.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: limit price must be positive", models.ErrInvalidOrder)
	}
	return qty, nil
}

// fill runs inside the store transaction. A business rejection returns a
// result and writes nothing.
func (e *Engine) fill(ctx context.Context, tx ledger.Store, order Order, qty decimal.Decimal) (*ExecutionResult, error) {
	instrument, err := tx.GetInstrument(ctx, order.InstrumentID)
	if err != nil {
		return nil, err
	}

	account, err := tx.GetAccount(ctx, order.UserID)
	if err != nil {
		return nil, err
	}

	if !instrument.Active {
		return rejected(fmt.Sprintf("%s is not available for trading", instrument.Symbol), account.CashBalance), nil
	}

	// the fill price is fixed here and never re-read
	price := instrument.CurrentPrice
	quote, err := e.prices.Snapshot(instrument.ID)
	switch {
	case err == nil:
		price = quote.Price
	case !errors.Is(err, models.ErrNotFound):
		return nil, err
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("no price for %s", instrument.Symbol)
	}
	total := models.RoundMoney(qty.Mul(price))

	var limit *decimal.Decimal
	if order.LimitPrice != nil {
		lp := models.RoundPrice(*order.LimitPrice)
		limit = &lp
	}
	fill := models.Fill{
		AccountID:    account.ID,
		InstrumentID: instrument.ID,
		Symbol:       instrument.Symbol,
		Side:         order.Side,
		OrderKind:    order.Kind,
		Quantity:     qty,
		Price:        price,
		Total:        total,
		LimitPrice:   limit,
	}

	if order.Side == models.SideBuy {
		return e.buy(ctx, tx, account, instrument, fill)
	}
	return e.sell(ctx, tx, account, instrument, fill)
}

func (e *Engine) buy(ctx context.Context, tx ledger.Store, account *models.Account, instrument *models.Instrument, fill models.Fill) (*ExecutionResult, error) {
	if account.CashBalance.LessThan(fill.Total) {
		return rejected(fmt.Sprintf("Insufficient balance. Need %s but have %s",
			fill.Total.StringFixed(2), account.CashBalance.StringFixed(2)), account.CashBalance), nil
	}

	now := e.now()
	position, err := tx.GetPosition(ctx, account.ID, instrument.ID)
	if errors.Is(err, models.ErrNotFound) {
		position = models.NewPosition(account.ID, instrument.ID, now)
	} else if err != nil {
		return nil, err
	}

	applyBuy(position, fill.Quantity, fill.Price, fill.Total)
	position.ModifiedAt = now
	account.CashBalance = account.CashBalance.Sub(fill.Total)
	account.ModifiedAt = now

	entry := models.NewJournalEntry(fill, now)
	if err := e.commit(ctx, tx, account, position, false, entry); err != nil {
		return nil, err
	}

	return &ExecutionResult{
		Success:    true,
		Outcome:    OutcomeOK,
		Message:    fmt.Sprintf("Bought %s %s @ %s", fill.Quantity, instrument.Name, fill.Price.StringFixed(2)),
		NewBalance: account.CashBalance,
		Entry:      entry,
	}, nil
}

func (e *Engine) sell(ctx context.Context, tx ledger.Store, account *models.Account, instrument *models.Instrument, fill models.Fill) (*ExecutionResult, error) {
	held := decimal.Zero
	position, err := tx.GetPosition(ctx, account.ID, instrument.ID)
	switch {
	case err == nil:
		held = position.Quantity
	case !errors.Is(err, models.ErrNotFound):
		return nil, err
	}

	if position == nil || held.LessThan(fill.Quantity) {
		requested := fill.Quantity
		r := rejected(fmt.Sprintf("Insufficient holdings. Have %s but trying to sell %s", held, requested), account.CashBalance)
		r.Held = &held
		r.Requested = &requested
		return r, nil
	}

	now := e.now()
	realized, avgCost, closed := applySell(position, fill.Quantity, fill.Price)
	position.ModifiedAt = now
	account.CashBalance = account.CashBalance.Add(fill.Total)
	account.RealizedPnL = account.RealizedPnL.Add(realized)
	account.ModifiedAt = now

	entry := models.NewJournalEntry(fill, now).WithRealized(realized, avgCost)
	if err := e.commit(ctx, tx, account, position, closed, entry); err != nil {
		return nil, err
	}

	sign := ""
	if !realized.IsNegative() {
		sign = "+"
	}
	return &ExecutionResult{
		Success:    true,
		Outcome:    OutcomeOK,
		Message:    fmt.Sprintf("Sold %s %s @ %s | P&L: %s%s", fill.Quantity, instrument.Name, fill.Price.StringFixed(2), sign, realized.StringFixed(2)),
		NewBalance: account.CashBalance,
		Entry:      entry,
	}, nil
}

func (e *Engine) commit(ctx context.Context, tx ledger.Store, account *models.Account, position *models.Position, closed bool, entry *models.JournalEntry) error {
	if err := tx.SaveAccount(ctx, account); err != nil {
		return err
	}
	if closed {
		if err := tx.DeletePosition(ctx, position); err != nil {
			return err
		}
	} else if err := tx.SavePosition(ctx, position); err != nil {
		return err
	}
	return tx.Append(ctx, entry)
}

// Verify replays userID's journal and compares it with the stored account and
// positions. It returns ErrLedgerDrift describing any mismatch.
func (e *Engine) Verify(ctx context.Context, userID uint64) (*ReplayState, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()

	account, err := e.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries, err := e.store.ReplayJournal(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	positions, err := e.store.ListPositions(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	state, err := Replay(account.InitialCapital, entries)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedgerDrift, err)
	}
	if diffs := state.Diff(account, positions); len(diffs) > 0 {
		e.logger.Warn("Journal replay disagrees with stored state",
			zap.Uint64("user_id", userID), zap.Strings("diffs", diffs))
		return state, fmt.Errorf("%w: %s", ErrLedgerDrift, strings.Join(diffs, "; "))
	}
	return state, nil
}
