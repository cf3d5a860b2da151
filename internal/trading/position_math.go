package trading

import (
	"errors"
	"fmt"

	"virtual-trading-sim/internal/models"

	"github.com/shopspring/decimal"
)

// applyBuy adds a fill to p and re-averages its cost:
// avg = (q0*avg0 + q*price) / (q0+q), rounded to PriceScale.
func applyBuy(p *models.Position, qty, price, total decimal.Decimal) {
	if p.Quantity.IsZero() {
		p.AvgCost = price
	} else {
		newQty := p.Quantity.Add(qty)
		p.AvgCost = p.Quantity.Mul(p.AvgCost).Add(qty.Mul(price)).DivRound(newQty, models.PriceScale)
	}
	p.Quantity = p.Quantity.Add(qty)
	p.TotalInvested = models.RoundMoney(p.TotalInvested.Add(total))
}

// applySell removes qty from p. The average cost of what remains does not
// change; totalInvested shrinks by avg*qty and never goes below zero. closed
// reports that the remainder is dust and the position should be deleted.
func applySell(p *models.Position, qty, price decimal.Decimal) (realized, avgCost decimal.Decimal, closed bool) {
	avgCost = p.AvgCost
	realized = models.RoundMoney(price.Sub(avgCost).Mul(qty))

	remaining := p.Quantity.Sub(qty)
	if remaining.LessThanOrEqual(models.DustQuantity) {
		p.Quantity = decimal.Zero
		p.TotalInvested = decimal.Zero
		return realized, avgCost, true
	}

	p.Quantity = remaining
	p.TotalInvested = decimal.Max(decimal.Zero, models.RoundMoney(p.TotalInvested.Sub(avgCost.Mul(qty))))
	return realized, avgCost, false
}

// ErrLedgerDrift reports that stored balances disagree with the journal.
var ErrLedgerDrift = errors.New("ledger drift")

// ReplayState is an account rebuilt from its journal.
type ReplayState struct {
	Cash        decimal.Decimal
	RealizedPnL decimal.Decimal
	Positions   map[uint]*models.Position
}

// Replay applies entries, oldest first, to a fresh account funded with
// initialCapital, using the same arithmetic as order execution.
func Replay(initialCapital decimal.Decimal, entries []models.JournalEntry) (*ReplayState, error) {
	state := &ReplayState{
		Cash:        models.RoundMoney(initialCapital),
		RealizedPnL: decimal.Zero,
		Positions:   make(map[uint]*models.Position),
	}

	for i := range entries {
		e := &entries[i]
		switch e.Side {
		case models.SideBuy:
			if state.Cash.LessThan(e.Total) {
				return nil, fmt.Errorf("entry %s: buy of %s exceeds cash %s", e.Ref, e.Total, state.Cash)
			}
			p, ok := state.Positions[e.InstrumentID]
			if !ok {
				p = models.NewPosition(e.AccountID, e.InstrumentID, e.ExecutedAt)
				state.Positions[e.InstrumentID] = p
			}
			applyBuy(p, e.Quantity, e.Price, e.Total)
			state.Cash = state.Cash.Sub(e.Total)

		case models.SideSell:
			p, ok := state.Positions[e.InstrumentID]
			if !ok || p.Quantity.LessThan(e.Quantity) {
				return nil, fmt.Errorf("entry %s: sells more %s than held", e.Ref, e.Symbol)
			}
			realized, _, closed := applySell(p, e.Quantity, e.Price)
			if closed {
				delete(state.Positions, e.InstrumentID)
			}
			state.Cash = state.Cash.Add(e.Total)
			state.RealizedPnL = state.RealizedPnL.Add(realized)

		default:
			return nil, fmt.Errorf("entry %s: unknown side %q", e.Ref, e.Side)
		}
	}
	return state, nil
}

// Diff lists every difference between the replayed state and stored state.
func (s *ReplayState) Diff(account *models.Account, positions []models.Position) []string {
	var diffs []string
	if !s.Cash.Equal(account.CashBalance) {
		diffs = append(diffs, fmt.Sprintf("cash: journal %s, stored %s", s.Cash, account.CashBalance))
	}
	if !s.RealizedPnL.Equal(account.RealizedPnL) {
		diffs = append(diffs, fmt.Sprintf("realized pnl: journal %s, stored %s", s.RealizedPnL, account.RealizedPnL))
	}

	seen := make(map[uint]bool, len(positions))
	for _, stored := range positions {
		seen[stored.InstrumentID] = true
		replayed, ok := s.Positions[stored.InstrumentID]
		if !ok {
			diffs = append(diffs, fmt.Sprintf("instrument %d: stored position not in journal", stored.InstrumentID))
			continue
		}
		if !replayed.Quantity.Equal(stored.Quantity) ||
			!replayed.AvgCost.Equal(stored.AvgCost) ||
			!replayed.TotalInvested.Equal(stored.TotalInvested) {
			diffs = append(diffs, fmt.Sprintf("instrument %d: journal %s@%s (%s), stored %s@%s (%s)",
				stored.InstrumentID,
				replayed.Quantity, replayed.AvgCost, replayed.TotalInvested,
				stored.Quantity, stored.AvgCost, stored.TotalInvested))
		}
	}
	for id := range s.Positions {
		if !seen[id] {
			diffs = append(diffs, fmt.Sprintf("instrument %d: journal position missing from store", id))
		}
	}
	return diffs
}
