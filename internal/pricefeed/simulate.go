package pricefeed

import (
	"fmt"
	"math"

	"virtual-trading-sim/internal/config"
	"virtual-trading-sim/internal/models"

	"github.com/shopspring/decimal"
)

// Params tune the random walk.
type Params struct {
	EquityVolatility float64
	CryptoVolatility float64
	MeanReversion    float64
	FloorRatio       float64
	CeilingRatio     float64
}

// DefaultParams returns the stock simulation constants.
func DefaultParams() Params {
	return Params{
		EquityVolatility: 0.003,
		CryptoVolatility: 0.008,
		MeanReversion:    0.001,
		FloorRatio:       0.01,
		CeilingRatio:     5.0,
	}
}

// ParamsFromConfig fills unset simulation settings with the defaults.
func ParamsFromConfig(cfg config.Simulation) Params {
	p := DefaultParams()
	if cfg.EquityVolatility > 0 {
		p.EquityVolatility = cfg.EquityVolatility
	}
	if cfg.CryptoVolatility > 0 {
		p.CryptoVolatility = cfg.CryptoVolatility
	}
	if cfg.MeanReversion > 0 && !math.IsInf(cfg.MeanReversion, 0) {
		p.MeanReversion = cfg.MeanReversion
	}
	if cfg.FloorRatio > 0 {
		p.FloorRatio = cfg.FloorRatio
	}
	if cfg.CeilingRatio > 0 {
		p.CeilingRatio = cfg.CeilingRatio
	}
	return p
}

func (p Params) volatility(kind models.InstrumentKind) (float64, error) {
	switch kind {
	case models.KindEquity:
		return p.EquityVolatility, nil
	case models.KindCrypto:
		return p.CryptoVolatility, nil
	}
	return 0, fmt.Errorf("no volatility class for kind %q", kind)
}

// Bounds returns the band a price anchored at base may move in. Both ends are
// rounded inwards so a clamped price never leaves [floor*base, ceiling*base].
func (p Params) Bounds(base decimal.Decimal) (lo, hi decimal.Decimal) {
	lo = base.Mul(decimal.NewFromFloat(p.FloorRatio)).RoundCeil(models.PriceScale)
	hi = base.Mul(decimal.NewFromFloat(p.CeilingRatio)).RoundFloor(models.PriceScale)
	return lo, hi
}

// driftScale is the precision of the mean-reversion term before rounding.
const driftScale = 16

// NextPrice advances one quote by a single step given the standard normal shock z:
//
//	next = cur + cur*(z*vol + (base-cur)/base*k)
//
// clamped to Bounds(base). changePct is measured against base.
func NextPrice(q Quote, z float64, p Params) (price, changePct decimal.Decimal, err error) {
	if !q.BasePrice.IsPositive() {
		return q.Price, q.ChangePct, fmt.Errorf("instrument %s: base price %s is not positive", q.Symbol, q.BasePrice)
	}
	vol, err := p.volatility(q.Kind)
	if err != nil {
		return q.Price, q.ChangePct, fmt.Errorf("instrument %s: %w", q.Symbol, err)
	}

	// only the random shock is a float; the drift is carried in decimal
	shock := z * vol
	if math.IsNaN(shock) || math.IsInf(shock, 0) {
		return q.Price, q.ChangePct, fmt.Errorf("instrument %s: non-finite price from shock %v", q.Symbol, z)
	}
	cur, base := q.Price, q.BasePrice
	reversion := base.Sub(cur).Mul(decimal.NewFromFloat(p.MeanReversion)).DivRound(base, driftScale)
	next := cur.Add(cur.Mul(decimal.NewFromFloat(shock).Add(reversion)))

	lo, hi := p.Bounds(q.BasePrice)
	price = models.RoundPrice(next)
	if price.LessThan(lo) {
		price = lo
	}
	if price.GreaterThan(hi) {
		price = hi
	}

	changePct = models.Percent(price.Sub(q.BasePrice), q.BasePrice)
	return price, changePct, nil
}
