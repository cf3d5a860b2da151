// Package pricefeed simulates instrument prices and serves the last committed
// price of each instrument to the trading core.
package pricefeed

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"virtual-trading-sim/internal/config"
	"virtual-trading-sim/internal/ledger"
	"virtual-trading-sim/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Quote is an immutable price observation. Quotes are replaced, never mutated,
// so a reader always sees every field from the same tick.
type Quote struct {
	InstrumentID uint                  `json:"instrument_id"`
	Symbol       string                `json:"symbol"`
	Kind         models.InstrumentKind `json:"kind"`
	BasePrice    decimal.Decimal       `json:"base_price"`
	Price        decimal.Decimal       `json:"price"`
	ChangePct    decimal.Decimal       `json:"change_pct"`
	Active       bool                  `json:"active"`
	At           time.Time             `json:"at"`
}

func quoteOf(i *models.Instrument) Quote {
	return Quote{
		InstrumentID: i.ID,
		Symbol:       i.Symbol,
		Kind:         i.Kind,
		BasePrice:    i.BasePrice,
		Price:        i.CurrentPrice,
		ChangePct:    i.ChangePct,
		Active:       i.Active,
		At:           i.PricedAt,
	}
}

// Option customizes a Feed.
type Option func(*Feed)

// WithRand sets the source of the normal shocks.
func WithRand(r *rand.Rand) Option {
	return func(f *Feed) { f.rng = r }
}

// WithClock sets the time source used to stamp quotes.
func WithClock(now func() time.Time) Option {
	return func(f *Feed) { f.now = now }
}

// Feed holds the current quote of every known instrument and advances the
// active ones on each tick.
type Feed struct {
	logger   *zap.Logger
	catalog  ledger.Catalog
	params   Params
	interval time.Duration
	now      func() time.Time

	tickMu sync.Mutex // one tick at a time; guards rng
	rng    *rand.Rand

	mu     sync.RWMutex
	quotes map[uint]Quote

	obsMu     sync.RWMutex
	observers []func([]Quote)
}

// NewFeed creates a feed over the catalog. Call Load before serving snapshots.
func NewFeed(logger *zap.Logger, catalog ledger.Catalog, cfg config.Simulation, opts ...Option) *Feed {
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	f := &Feed{
		logger:   logger.Named("pricefeed"),
		catalog:  catalog,
		params:   ParamsFromConfig(cfg),
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		quotes:   make(map[uint]Quote),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Load seeds quotes for every catalog instrument, active or not, so held
// positions in deactivated instruments can still be valued.
func (f *Feed) Load(ctx context.Context) error {
	instruments, err := f.catalog.ListInstruments(ctx, ledger.InstrumentFilter{})
	if err != nil {
		return fmt.Errorf("could not load instruments: %w", err)
	}

	f.mu.Lock()
	for i := range instruments {
		f.quotes[instruments[i].ID] = quoteOf(&instruments[i])
	}
	f.mu.Unlock()

	f.logger.Info("Loaded instrument quotes", zap.Int("count", len(instruments)))
	return nil
}

// Snapshot returns the last committed quote for an instrument.
func (f *Feed) Snapshot(instrumentID uint) (Quote, error) {
	f.mu.RLock()
	q, ok := f.quotes[instrumentID]
	f.mu.RUnlock()
	if !ok {
		return Quote{}, fmt.Errorf("quote for instrument %d: %w", instrumentID, models.ErrNotFound)
	}
	return q, nil
}

// Prices returns the current price of every active instrument.
func (f *Feed) Prices() map[uint]decimal.Decimal {
	f.mu.RLock()
	defer f.mu.RUnlock()

	prices := make(map[uint]decimal.Decimal, len(f.quotes))
	for id, q := range f.quotes {
		if q.Active {
			prices[id] = q.Price
		}
	}
	return prices
}

// Quotes returns every quote ordered by symbol.
func (f *Feed) Quotes() []Quote {
	f.mu.RLock()
	quotes := make([]Quote, 0, len(f.quotes))
	for _, q := range f.quotes {
		quotes = append(quotes, q)
	}
	f.mu.RUnlock()

	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Symbol < quotes[j].Symbol })
	return quotes
}

// Movers returns up to n active quotes with the largest absolute move from base.
func (f *Feed) Movers(n int) []Quote {
	var movers []Quote
	for _, q := range f.Quotes() {
		if q.Active {
			movers = append(movers, q)
		}
	}
	sort.SliceStable(movers, func(i, j int) bool {
		return movers[i].ChangePct.Abs().GreaterThan(movers[j].ChangePct.Abs())
	})
	if n >= 0 && len(movers) > n {
		movers = movers[:n]
	}
	return movers
}

// Subscribe registers fn to receive the quotes committed by each tick.
// fn runs on the ticking goroutine and must not block.
func (f *Feed) Subscribe(fn func([]Quote)) {
	f.obsMu.Lock()
	f.observers = append(f.observers, fn)
	f.obsMu.Unlock()
}

// Tick advances every active instrument once and returns how many moved.
// New prices are computed from a copy of the current quotes, persisted, then
// swapped in under one write lock. A failing instrument is logged and skipped;
// a failed write leaves every quote untouched.
func (f *Feed) Tick(ctx context.Context) (int, error) {
	f.tickMu.Lock()
	defer f.tickMu.Unlock()

	instruments, err := f.catalog.ActiveInstruments(ctx)
	if err != nil {
		return 0, fmt.Errorf("could not get active instruments: %w", err)
	}

	current := f.copyQuotes()
	now := f.now()
	active := make(map[uint]bool, len(instruments))
	next := make([]Quote, 0, len(instruments))
	updates := make([]ledger.PriceUpdate, 0, len(instruments))

	for i := range instruments {
		instrument := &instruments[i]
		active[instrument.ID] = true

		q, ok := current[instrument.ID]
		if !ok {
			q = quoteOf(instrument)
		}
		q.Active = true

		price, changePct, err := f.step(q)
		if err != nil {
			f.logger.Warn("Skipping instrument price update",
				zap.Uint("instrument_id", instrument.ID),
				zap.String("symbol", instrument.Symbol),
				zap.Error(err))
			continue
		}

		q.Price = price
		q.ChangePct = changePct
		q.At = now
		next = append(next, q)
		updates = append(updates, ledger.PriceUpdate{
			InstrumentID: q.InstrumentID,
			Price:        price,
			ChangePct:    changePct,
			At:           now,
		})
	}

	if err := f.catalog.SavePrices(ctx, updates); err != nil {
		return 0, fmt.Errorf("could not persist prices: %w", err)
	}

	f.mu.Lock()
	for id, q := range f.quotes {
		if q.Active && !active[id] {
			q.Active = false
			f.quotes[id] = q
		}
	}
	for _, q := range next {
		f.quotes[q.InstrumentID] = q
	}
	f.mu.Unlock()

	f.notify(next)
	f.logger.Debug("Updated prices", zap.Int("count", len(next)), zap.Time("at", now))
	return len(next), nil
}

// step draws a shock and computes the next price, turning a panic into an error
// so one bad instrument cannot abort the batch.
func (f *Feed) step(q Quote) (price, changePct decimal.Decimal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("price step panicked: %v", r)
		}
	}()
	return NextPrice(q, f.rng.NormFloat64(), f.params)
}

func (f *Feed) copyQuotes() map[uint]Quote {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[uint]Quote, len(f.quotes))
	for id, q := range f.quotes {
		out[id] = q
	}
	return out
}

func (f *Feed) notify(quotes []Quote) {
	if len(quotes) == 0 {
		return
	}
	f.obsMu.RLock()
	observers := append([]func([]Quote){}, f.observers...)
	f.obsMu.RUnlock()

	for _, fn := range observers {
		fn(append([]Quote(nil), quotes...))
	}
}

// Run ticks the feed on its interval until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.logger.Info("Starting price simulation", zap.Duration("interval", f.interval))

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("Stopping price simulation...")
			return
		case <-ticker.C:
			if _, err := f.Tick(ctx); err != nil {
				f.logger.Error("Price tick failed", zap.Error(err))
			}
		}
	}
}
