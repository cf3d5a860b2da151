package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRounding_HalfUp(t *testing.T) {
	tests := []struct {
		name  string
		round func(decimal.Decimal) decimal.Decimal
		in    string
		want  string
	}{
		{"price tie rounds up", RoundPrice, "1.0000005", "1.000001"},
		{"price negative tie rounds away", RoundPrice, "-1.0000005", "-1.000001"},
		{"money tie rounds up", RoundMoney, "10.00005", "10.0001"},
		{"money below tie", RoundMoney, "10.00004999", "10"},
		{"quantity", RoundQuantity, "0.123456785", "0.12345679"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.round(decimal.RequireFromString(tt.in))
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestPercent(t *testing.T) {
	assert.Equal(t, "20", Percent(decimal.NewFromInt(200), decimal.NewFromInt(1000)).String())
	assert.Equal(t, "33.3333", Percent(decimal.NewFromInt(1), decimal.NewFromInt(3)).String())
	assert.True(t, Percent(decimal.NewFromInt(5), decimal.Zero).IsZero())
}

func TestParseEnums(t *testing.T) {
	kind, err := ParseInstrumentKind(" stock ")
	require.NoError(t, err)
	assert.Equal(t, KindEquity, kind)

	_, err = ParseInstrumentKind("bond")
	assert.ErrorIs(t, err, ErrInvalidOrder)

	side, err := ParseSide("sell")
	require.NoError(t, err)
	assert.Equal(t, SideSell, side)

	side, err = ParseSide(" Buy ")
	require.NoError(t, err)
	assert.Equal(t, SideBuy, side)

	_, err = ParseSide("")
	assert.ErrorIs(t, err, ErrInvalidOrder)

	orderKind, err := ParseOrderKind("")
	require.NoError(t, err)
	assert.Equal(t, OrderMarket, orderKind)

	_, err = ParseOrderKind("stop")
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestNewJournalEntry(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	fill := Fill{AccountID: 1, InstrumentID: 2, Symbol: "TCS", Side: SideSell, OrderKind: OrderMarket,
		Quantity: decimal.NewFromInt(2), Price: decimal.NewFromInt(110), Total: decimal.NewFromInt(220)}

	a := NewJournalEntry(fill, now)
	b := NewJournalEntry(fill, now).WithRealized(decimal.NewFromInt(20), decimal.NewFromInt(100))

	assert.NotEqual(t, a.Ref, b.Ref)
	assert.Equal(t, now, a.ExecutedAt)
	assert.Nil(t, a.RealizedPnL)
	require.NotNil(t, b.RealizedPnL)
	assert.Equal(t, "20", b.RealizedPnL.String())
	assert.Equal(t, "100", b.AvgCostSnapshot.String())
}
