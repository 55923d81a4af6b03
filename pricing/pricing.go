// Package pricing holds the upstream USD quote providers and the decorators
// stacked in front of them (fallback, Redis cache, history recording).
package pricing

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrRateLimited   = errors.New("price provider rate limit exceeded")
	ErrUnauthorized  = errors.New("price provider rejected api key")
	ErrAPIKeyMissing = errors.New("COINMARKETCAP_API_KEY not set")
)

// Source fetches current USD prices. Symbols it cannot price are omitted.
type Source interface {
	FetchPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// normalize upper-cases, trims and de-duplicates symbols, keeping first-seen order.
func normalize(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func missing(symbols []string, prices map[string]decimal.Decimal) []string {
	var out []string
	for _, s := range symbols {
		if p, ok := prices[s]; !ok || !p.IsPositive() {
			out = append(out, s)
		}
	}
	return out
}
