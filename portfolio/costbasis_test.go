package portfolio

import (
	"errors"
	"testing"

	"crypto-portfolio/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "BTC", NormalizeSymbol("  btc "))
	assert.Equal(t, "", NormalizeSymbol("   "))
}

func TestValidateTrade(t *testing.T) {
	tests := []struct {
		name     string
		quantity string
		price    string
		wantErr  bool
	}{
		{"positive", "0.5", "100", false},
		{"zero quantity", "0", "100", true},
		{"negative quantity", "-1", "100", true},
		{"zero price", "1", "0", true},
		{"negative price", "1", "-3", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTrade(d(tt.quantity), d(tt.price))
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidAmount))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyBuy_FreshPosition(t *testing.T) {
	pos := &models.Position{Symbol: "BTC"}
	amount := applyBuy(pos, d("2"), d("50000"))

	assert.True(t, amount.Equal(d("100000")))
	assert.True(t, pos.Quantity.Equal(d("2")))
	assert.True(t, pos.AvgCost.Equal(d("50000")))
	assert.True(t, pos.CumulativeSpent.Equal(d("100000")))
}

func TestApplyBuy_WeightedAverage(t *testing.T) {
	pos := &models.Position{Symbol: "BTC"}
	applyBuy(pos, d("1"), d("50000"))
	applyBuy(pos, d("1"), d("60000"))

	assert.True(t, pos.Quantity.Equal(d("2")))
	assert.True(t, pos.AvgCost.Equal(d("55000")), "avg %s", pos.AvgCost)
	assert.True(t, pos.CumulativeSpent.Equal(d("110000")))
}

func TestApplyBuy_FractionalAmounts(t *testing.T) {
	pos := &models.Position{Symbol: "ETH"}
	applyBuy(pos, d("0.1"), d("0.2"))
	applyBuy(pos, d("0.2"), d("0.1"))

	// 0.02 + 0.02 = 0.04 exactly; binary floats would drift here
	assert.Equal(t, "0.04", pos.CumulativeSpent.String())
	assert.Equal(t, "0.3", pos.Quantity.String())
	assert.True(t, pos.AvgCost.Equal(pos.CumulativeSpent.Div(pos.Quantity)))
}

func TestApplySell_KeepsAverage(t *testing.T) {
	pos := &models.Position{Symbol: "BTC", Quantity: d("2"), AvgCost: d("55000"), CumulativeSpent: d("110000")}

	amount, realized, err := applySell(pos, d("1"), d("70000"))
	require.NoError(t, err)

	assert.True(t, amount.Equal(d("70000")))
	assert.True(t, realized.Equal(d("15000")))
	assert.True(t, pos.Quantity.Equal(d("1")))
	assert.True(t, pos.AvgCost.Equal(d("55000")))
	assert.True(t, pos.CumulativeSpent.Equal(d("55000")))
}

func TestApplySell_FullLiquidationZeroesSpend(t *testing.T) {
	pos := &models.Position{Symbol: "SOL", Quantity: d("3"), AvgCost: d("33.333333333333333"), CumulativeSpent: d("100")}

	_, realized, err := applySell(pos, d("3"), d("40"))
	require.NoError(t, err)

	assert.True(t, pos.Quantity.IsZero())
	assert.True(t, pos.CumulativeSpent.IsZero())
	assert.True(t, realized.Equal(d("20.000000000000001")))
}

func TestApplySell_InsufficientLeavesPositionUntouched(t *testing.T) {
	pos := &models.Position{Symbol: "BTC", Quantity: d("1"), AvgCost: d("50000"), CumulativeSpent: d("50000")}
	before := *pos

	_, _, err := applySell(pos, d("1.5"), d("60000"))

	assert.True(t, errors.Is(err, ErrInsufficientHoldings))
	assert.Equal(t, before, *pos)
}
