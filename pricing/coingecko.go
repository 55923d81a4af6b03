package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

// DefaultCoinGeckoIDs maps tickers to CoinGecko coin ids.
var DefaultCoinGeckoIDs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"USDT": "tether",
	"USDC": "usd-coin",
	"BNB":  "binancecoin",
	"SOL":  "solana",
	"XRP":  "ripple",
	"ADA":  "cardano",
	"DOGE": "dogecoin",
	"TRX":  "tron",
	"TON":  "the-open-network",
	"DOT":  "polkadot",
	"LTC":  "litecoin",
	"LINK": "chainlink",
	"AVAX": "avalanche-2",
	"HYPE": "hyperliquid",
}

// CoinGecko prices symbols through /simple/price. It only knows symbols
// present in its id map; others are skipped.
type CoinGecko struct {
	baseURL string
	ids     map[string]string
	cli     *http.Client
}

func NewCoinGecko(baseURL string, ids map[string]string, timeout time.Duration) *CoinGecko {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	if ids == nil {
		ids = DefaultCoinGeckoIDs
	}
	return &CoinGecko{
		baseURL: strings.TrimRight(baseURL, "/"),
		ids:     ids,
		cli:     &http.Client{Timeout: timeout},
	}
}

func (g *CoinGecko) FetchPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	symbols = normalize(symbols)
	prices := make(map[string]decimal.Decimal, len(symbols))

	bySymbol := make(map[string]string)
	ids := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if id, ok := g.ids[s]; ok {
			bySymbol[id] = s
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return prices, nil
	}

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", "usd")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coingecko: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko http %d", resp.StatusCode)
	}

	var raw map[string]struct {
		USD *decimal.Decimal `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("coingecko: decode: %w", err)
	}
	for id, quote := range raw {
		symbol, ok := bySymbol[id]
		if !ok || quote.USD == nil || !quote.USD.IsPositive() {
			continue
		}
		prices[symbol] = *quote.USD
	}
	return prices, nil
}
