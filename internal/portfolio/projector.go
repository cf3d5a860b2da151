// Package portfolio derives read-only views of an account from the ledger.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sort"
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

// Holding is one position valued at the current price.
type Holding struct {
	InstrumentID uint                  `json:"instrument_id"`
	Symbol       string                `json:"symbol"`
	Name         string                `json:"name"`
	Kind         models.InstrumentKind `json:"kind"`
	Quantity     decimal.Decimal       `json:"quantity"`
	AvgCost      decimal.Decimal       `json:"avg_cost"`
	Price        decimal.Decimal       `json:"current_price"`
	MarketValue  decimal.Decimal       `json:"market_value"`
	CostBasis    decimal.Decimal       `json:"cost_basis"`
	PnL          decimal.Decimal       `json:"pnl"`
	PnLPct       decimal.Decimal       `json:"pnl_percent"`
}

// View is an account's portfolio at a point in time.
type View struct {
	UserID           uint64          `json:"user_id"`
	CashBalance      decimal.Decimal `json:"cash_balance"`
	InitialCapital   decimal.Decimal `json:"initial_capital"`
	MarketValue      decimal.Decimal `json:"market_value"`
	CostBasis        decimal.Decimal `json:"cost_basis"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	UnrealizedPnLPct decimal.Decimal `json:"unrealized_pnl_percent"`
	RealizedPnL      decimal.Decimal `json:"realized_pnl"`
	TotalEquity      decimal.Decimal `json:"total_equity"`
	TotalPositions   int             `json:"total_positions"`
	WinningPositions int             `json:"winning_positions"`
	Holdings         []Holding       `json:"holdings"`
}

// HistoryPage is one page of the journal, newest first.
type HistoryPage struct {
	Page    int                   `json:"page"`
	Size    int                   `json:"size"`
	Entries []models.JournalEntry `json:"entries"`
}

// Projector builds portfolio views. It never writes to the store.
type Projector struct {
	logger          *zap.Logger
	store           ledger.Store
	prices          PriceSource
	defaultPageSize int
	maxPageSize     int
}

// NewProjector creates a new Projector.
func NewProjector(logger *zap.Logger, cfg config.Trading, store ledger.Store, prices PriceSource) *Projector {
	p := &Projector{
		logger:          logger.Named("portfolio"),
		store:           store,
		prices:          prices,
		defaultPageSize: 50,
		maxPageSize:     200,
	}
	if cfg.DefaultPageSize > 0 {
		p.defaultPageSize = cfg.DefaultPageSize
	}
	if cfg.MaxPageSize > 0 {
		p.maxPageSize = cfg.MaxPageSize
	}
	return p
}

// Project values every position of userID at the current feed price, falling
// back to the stored instrument price when the feed has no quote.
func (p *Projector) Project(ctx context.Context, userID uint64) (*View, error) {
	var (
		account     *models.Account
		positions   []models.Position
		instruments = make(map[uint]*models.Instrument)
	)

	// cash and positions must come from the same commit; the transaction
	// holds the connection for these two reads only
	err := p.store.Atomically(ctx, func(tx ledger.Store) error {
		var err error
		if account, err = tx.GetAccount(ctx, userID); err != nil {
			return err
		}
		positions, err = tx.ListPositions(ctx, account.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load portfolio of user %d: %w", userID, err)
	}
	for _, pos := range positions {
		instrument, err := p.store.GetInstrument(ctx, pos.InstrumentID)
		if err != nil {
			return nil, fmt.Errorf("load portfolio of user %d: instrument of position %d: %w", userID, pos.ID, err)
		}
		instruments[pos.InstrumentID] = instrument
	}

	view := &View{
		UserID:         userID,
		CashBalance:    account.CashBalance,
		InitialCapital: account.InitialCapital,
		RealizedPnL:    account.RealizedPnL,
		MarketValue:    decimal.Zero,
		CostBasis:      decimal.Zero,
		TotalPositions: len(positions),
		Holdings:       make([]Holding, 0, len(positions)),
	}

	for _, pos := range positions {
		instrument := instruments[pos.InstrumentID]
		price := p.priceOf(instrument)

		value := models.RoundMoney(pos.Quantity.Mul(price))
		cost := models.RoundMoney(pos.AvgCost.Mul(pos.Quantity))
		pnl := value.Sub(cost)
		view.Holdings = append(view.Holdings, Holding{
			InstrumentID: instrument.ID,
			Symbol:       instrument.Symbol,
			Name:         instrument.Name,
			Kind:         instrument.Kind,
			Quantity:     pos.Quantity,
			AvgCost:      pos.AvgCost,
			Price:        price,
			MarketValue:  value,
			CostBasis:    cost,
			PnL:          pnl,
			PnLPct:       models.Percent(pnl, cost),
		})

		view.MarketValue = view.MarketValue.Add(value)
		view.CostBasis = view.CostBasis.Add(pos.TotalInvested)
		if price.GreaterThan(pos.AvgCost) {
			view.WinningPositions++
		}
	}
	sort.Slice(view.Holdings, func(i, j int) bool { return view.Holdings[i].Symbol < view.Holdings[j].Symbol })

	view.UnrealizedPnL = view.MarketValue.Sub(view.CostBasis)
	view.UnrealizedPnLPct = models.Percent(view.UnrealizedPnL, view.CostBasis)
	view.TotalEquity = view.CashBalance.Add(view.MarketValue)
	return view, nil
}

func (p *Projector) priceOf(instrument *models.Instrument) decimal.Decimal {
	quote, err := p.prices.Snapshot(instrument.ID)
	if err == nil {
		return quote.Price
	}
	if !errors.Is(err, models.ErrNotFound) {
		p.logger.Warn("Price snapshot failed, using stored price",
			zap.String("symbol", instrument.Symbol), zap.Error(err))
	}
	return instrument.CurrentPrice
}

// History returns one page of userID's journal, newest first. A negative page
// is treated as the first; a non-positive size gets the default and sizes
// above the maximum are capped.
func (p *Projector) History(ctx context.Context, userID uint64, page, size int) (*HistoryPage, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = p.defaultPageSize
	}
	if size > p.maxPageSize {
		size = p.maxPageSize
	}

	account, err := p.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries, err := p.store.ListJournal(ctx, account.ID, page, size)
	if err != nil {
		return nil, fmt.Errorf("list journal of user %d: %w", userID, err)
	}
	if entries == nil {
		entries = []models.JournalEntry{}
	}
	return &HistoryPage{Page: page, Size: size, Entries: entries}, nil
}

// PnLStats summarises the SELL fills of a period.
type PnLStats struct {
	Sells       int             `json:"total_sells"`
	Winning     int             `json:"winning_sells"`
	Losing      int             `json:"losing_sells"`
	WinRate     decimal.Decimal `json:"win_rate_percent"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
}

func (s *PnLStats) add(pnl decimal.Decimal) {
	s.Sells++
	switch pnl.Sign() {
	case 1:
		s.Winning++
	case -1:
		s.Losing++
	}
	s.RealizedPnL = s.RealizedPnL.Add(pnl)
}

func (s *PnLStats) finish() {
	s.WinRate = models.Percent(decimal.NewFromInt(int64(s.Winning)), decimal.NewFromInt(int64(s.Sells)))
}

// PnLSummary holds realized P&L statistics for all time and the last 24 hours.
type PnLSummary struct {
	AllTime  PnLStats `json:"all_time"`
	Since24h PnLStats `json:"since_24h"`
}

// Summary recomputes userID's realized P&L statistics from the journal.
func (p *Projector) Summary(ctx context.Context, userID uint64, now time.Time) (*PnLSummary, error) {
	account, err := p.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries, err := p.store.ReplayJournal(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("read journal of user %d: %w", userID, err)
	}

	since := now.Add(-24 * time.Hour)
	summary := &PnLSummary{
		AllTime:  PnLStats{RealizedPnL: decimal.Zero},
		Since24h: PnLStats{RealizedPnL: decimal.Zero},
	}
	for _, e := range entries {
		if e.Side != models.SideSell || e.RealizedPnL == nil {
			continue
		}
		summary.AllTime.add(*e.RealizedPnL)
		if e.ExecutedAt.After(since) {
			summary.Since24h.add(*e.RealizedPnL)
		}
	}
	summary.AllTime.finish()
	summary.Since24h.finish()
	return summary, nil
}
