package pricefeed

import (
	"math"
	"testing"

	"virtual-trading-sim/internal/config"
	"virtual-trading-sim/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func quote(kind models.InstrumentKind, base, price string) Quote {
	return Quote{InstrumentID: 1, Symbol: "TEST", Kind: kind, BasePrice: d(base), Price: d(price), Active: true}
}

func TestNextPrice(t *testing.T) {
	p := DefaultParams()

	testCases := []struct {
		name          string
		q             Quote
		z             float64
		expectedPrice string
		expectedPct   string
		expectError   bool
	}{
		{name: "No shock at anchor", q: quote(models.KindEquity, "100", "100"), z: 0, expectedPrice: "100", expectedPct: "0"},
		{name: "Equity one sigma", q: quote(models.KindEquity, "100", "100"), z: 1, expectedPrice: "100.3", expectedPct: "0.3"},
		{name: "Crypto one sigma", q: quote(models.KindCrypto, "100", "100"), z: 1, expectedPrice: "100.8", expectedPct: "0.8"},
		{name: "Crypto down", q: quote(models.KindCrypto, "100", "100"), z: -1, expectedPrice: "99.2", expectedPct: "-0.8"},
		// (100-200)/100*0.001 = -0.001 -> 200 - 0.2
		{name: "Reverts from above", q: quote(models.KindEquity, "100", "200"), z: 0, expectedPrice: "199.8", expectedPct: "99.8"},
		// (100-50)/100*0.001 = 0.0005 -> 50 + 0.025
		{name: "Reverts from below", q: quote(models.KindEquity, "100", "50"), z: 0, expectedPrice: "50.025", expectedPct: "-49.975"},
		{name: "Clamped at ceiling", q: quote(models.KindCrypto, "100", "499"), z: 50, expectedPrice: "500", expectedPct: "400"},
		{name: "Clamped at floor", q: quote(models.KindCrypto, "100", "1.5"), z: -500, expectedPrice: "1", expectedPct: "-99"},
		{name: "Rounded to price scale", q: quote(models.KindEquity, "3", "3"), z: 0.1234567, expectedPrice: "3.001111", expectedPct: "0.037"},
		{name: "Large price kept exact at anchor", q: quote(models.KindEquity, "9876543210.123457", "9876543210.123457"), z: 0, expectedPrice: "9876543210.123457", expectedPct: "0"},
		// cur*shock = 370370.36715 exactly at price scale
		{name: "Small step on large price", q: quote(models.KindEquity, "1234567890.5", "1234567890.5"), z: 0.1, expectedPrice: "1234938260.86715", expectedPct: "0.03"},
		{name: "Zero base", q: quote(models.KindEquity, "0", "1"), z: 0, expectError: true},
		{name: "Unknown kind", q: quote("BOND", "10", "10"), z: 0, expectError: true},
		{name: "Non-finite shock", q: quote(models.KindEquity, "10", "10"), z: math.Inf(1), expectError: true},
		{name: "NaN shock", q: quote(models.KindEquity, "10", "10"), z: math.NaN(), expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			price, pct, err := NextPrice(tc.q, tc.z, p)
			if tc.expectError {
				assert.Error(t, err)
				assert.True(t, price.Equal(tc.q.Price), "price is left unchanged on error")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedPrice, price.String())
			assert.Equal(t, tc.expectedPct, pct.String())
		})
	}
}

func TestParamsFromConfig(t *testing.T) {
	p := ParamsFromConfig(config.Simulation{CryptoVolatility: 0.05})
	assert.InDelta(t, 0.05, p.CryptoVolatility, 0)
	assert.InDelta(t, DefaultParams().EquityVolatility, p.EquityVolatility, 0)
	assert.InDelta(t, 5.0, p.CeilingRatio, 0)

	p = ParamsFromConfig(config.Simulation{MeanReversion: math.Inf(1)})
	assert.InDelta(t, DefaultParams().MeanReversion, p.MeanReversion, 0)
}

func TestBounds_RoundInwards(t *testing.T) {
	lo, hi := DefaultParams().Bounds(d("0.123457"))
	// 0.00123457 and 0.617285 exactly
	assert.Equal(t, "0.001235", lo.String())
	assert.Equal(t, "0.617285", hi.String())
}

// Prices stay inside [0.01*base, 5*base] however many steps and shocks are applied.
func TestNextPrice_StaysInBounds(t *testing.T) {
	p := DefaultParams()
	rapid.Check(t, func(t *rapid.T) {
		micros := rapid.Int64Range(1, 1_000_000_000).Draw(t, "baseMicros")
		base := decimal.New(micros, -models.PriceScale)
		kind := rapid.SampledFrom([]models.InstrumentKind{models.KindEquity, models.KindCrypto}).Draw(t, "kind")
		shocks := rapid.SliceOfN(rapid.Float64Range(-400, 400), 1, 300).Draw(t, "shocks")

		q := Quote{Symbol: "P", Kind: kind, BasePrice: base, Price: base}
		floor := base.Mul(d("0.01"))
		ceiling := base.Mul(d("5"))
		for _, z := range shocks {
			price, _, err := NextPrice(q, z, p)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if price.LessThan(floor) || price.GreaterThan(ceiling) {
				t.Fatalf("price %s escaped [%s, %s]", price, floor, ceiling)
			}
			if !price.IsPositive() {
				t.Fatalf("price %s is not positive", price)
			}
			q.Price = price
		}
	})
}
