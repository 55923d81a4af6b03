package portfolio

import (
	"fmt"
	"strings"

	"crypto-portfolio/models"

	"github.com/shopspring/decimal"
)

// NormalizeSymbol turns user input like " btc" into the stored ticker form.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// NormalizeAccountKey trims the key. Keys are otherwise case-sensitive.
func NormalizeAccountKey(key string) string {
	return strings.TrimSpace(key)
}

func validateTrade(quantity, unitPrice decimal.Decimal) error {
	if !quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive, got %s", ErrInvalidAmount, quantity)
	}
	if !unitPrice.IsPositive() {
		return fmt.Errorf("%w: unit price must be positive, got %s", ErrInvalidAmount, unitPrice)
	}
	return nil
}

// applyBuy folds a purchase into pos using weighted-average cost and returns
// the amount paid. A zero-quantity pos is treated as a fresh holding.
func applyBuy(pos *models.Position, quantity, unitPrice decimal.Decimal) decimal.Decimal {
	amount := quantity.Mul(unitPrice)
	if pos.Quantity.IsZero() {
		pos.Quantity = quantity
		pos.AvgCost = unitPrice
		pos.CumulativeSpent = amount
		return amount
	}

	// CumulativeSpent is oldAvg*oldQty by construction; adding to the stored
	// sum keeps it exact instead of re-multiplying a rounded average.
	pos.Quantity = pos.Quantity.Add(quantity)
	pos.CumulativeSpent = pos.CumulativeSpent.Add(amount)
	pos.AvgCost = pos.CumulativeSpent.Div(pos.Quantity)
	return amount
}

// applySell removes quantity from pos at its current average cost and returns
// the proceeds and the realized gain. AvgCost is never touched. pos is left
// unchanged when the holding is too small.
func applySell(pos *models.Position, quantity, unitPrice decimal.Decimal) (amount, realized decimal.Decimal, err error) {
	if quantity.GreaterThan(pos.Quantity) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: selling %s %s, holding %s",
			ErrInsufficientHoldings, quantity, pos.Symbol, pos.Quantity)
	}

	amount = quantity.Mul(unitPrice)
	basis := pos.AvgCost.Mul(quantity)
	realized = amount.Sub(basis)

	pos.Quantity = pos.Quantity.Sub(quantity)
	if pos.Quantity.IsZero() {
		pos.CumulativeSpent = decimal.Zero
		return amount, realized, nil
	}
	pos.CumulativeSpent = pos.CumulativeSpent.Sub(basis)
	if pos.CumulativeSpent.IsNegative() {
		// rounding residue of a divided average on a near-total sell
		pos.CumulativeSpent = decimal.Zero
	}
	return amount, realized, nil
}
