package portfolio

import (
	"sort"
	"strings"
	"time"

	"crypto-portfolio/models"

	"github.com/shopspring/decimal"
)

// Order selects how line items are sorted in a View.
type Order string

const (
	OrderCreated Order = "created"
	OrderSymbol  Order = "symbol"
	OrderValue   Order = "value"
)

// ParseOrder maps a query value onto an Order, defaulting to creation order.
func ParseOrder(s string) Order {
	switch Order(strings.ToLower(strings.TrimSpace(s))) {
	case OrderSymbol:
		return OrderSymbol
	case OrderValue:
		return OrderValue
	default:
		return OrderCreated
	}
}

type LineItem struct {
	Symbol          string          `json:"symbol"`
	DisplayName     string          `json:"display_name"`
	Quantity        decimal.Decimal `json:"quantity"`
	AvgCost         decimal.Decimal `json:"avg_cost"`
	CachedPrice     decimal.Decimal `json:"cached_price"`
	CachedPriceAt   *time.Time      `json:"cached_price_at"`
	CumulativeSpent decimal.Decimal `json:"cumulative_spent"`
	MarketValue     decimal.Decimal `json:"market_value"`
	UnrealizedPnL   decimal.Decimal `json:"unrealized_pnl"`
}

type View struct {
	Items         []LineItem      `json:"items"`
	TotalValue    decimal.Decimal `json:"total_value"`
	TotalSpent    decimal.Decimal `json:"total_spent"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// Assemble builds the portfolio summary from a position snapshot. It does
// no I/O; the same input always yields the same View.
func Assemble(positions []models.Position, order Order) View {
	view := View{
		Items:         make([]LineItem, 0, len(positions)),
		TotalValue:    decimal.Zero,
		TotalSpent:    decimal.Zero,
		UnrealizedPnL: decimal.Zero,
	}

	for _, pos := range positions {
		if !pos.Quantity.IsPositive() {
			continue
		}
		value := pos.Quantity.Mul(pos.CachedPrice)
		item := LineItem{
			Symbol:          pos.Symbol,
			DisplayName:     pos.DisplayName,
			Quantity:        pos.Quantity,
			AvgCost:         pos.AvgCost,
			CachedPrice:     pos.CachedPrice,
			CachedPriceAt:   pos.CachedPriceAt,
			CumulativeSpent: pos.CumulativeSpent,
			MarketValue:     value,
			UnrealizedPnL:   value.Sub(pos.CumulativeSpent),
		}
		view.Items = append(view.Items, item)
		view.TotalValue = view.TotalValue.Add(value)
		view.TotalSpent = view.TotalSpent.Add(pos.CumulativeSpent)
	}
	view.UnrealizedPnL = view.TotalValue.Sub(view.TotalSpent)

	switch order {
	case OrderSymbol:
		sort.SliceStable(view.Items, func(i, j int) bool {
			return view.Items[i].Symbol < view.Items[j].Symbol
		})
	case OrderValue:
		sort.SliceStable(view.Items, func(i, j int) bool {
			return view.Items[i].MarketValue.GreaterThan(view.Items[j].MarketValue)
		})
	}
	return view
}
