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

const DefaultCoinMarketCapURL = "https://pro-api.coinmarketcap.com"

// CoinMarketCap prices many symbols with one quotes/latest call.
type CoinMarketCap struct {
	baseURL string
	apiKey  string
	cli     *http.Client
}

func NewCoinMarketCap(baseURL, apiKey string, timeout time.Duration) (*CoinMarketCap, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrAPIKeyMissing
	}
	if baseURL == "" {
		baseURL = DefaultCoinMarketCapURL
	}
	return &CoinMarketCap{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		cli:     &http.Client{Timeout: timeout},
	}, nil
}

type cmcQuotesResponse struct {
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	Data map[string]struct {
		Symbol string `json:"symbol"`
		Quote  struct {
			USD struct {
				Price *decimal.Decimal `json:"price"`
			} `json:"USD"`
		} `json:"quote"`
	} `json:"data"`
}

func (c *CoinMarketCap) FetchPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	symbols = normalize(symbols)
	prices := make(map[string]decimal.Decimal, len(symbols))
	if len(symbols) == 0 {
		return prices, nil
	}

	q := url.Values{}
	q.Set("symbol", strings.Join(symbols, ","))
	q.Set("convert", "USD")
	// without it one unknown ticker fails the whole batch with a 400
	q.Set("skip_invalid", "true")

	var raw cmcQuotesResponse
	if err := c.get(ctx, "/v1/cryptocurrency/quotes/latest", q, &raw); err != nil {
		return nil, err
	}
	if raw.Status.ErrorCode != 0 && len(raw.Data) == 0 {
		return nil, fmt.Errorf("coinmarketcap error %d: %s", raw.Status.ErrorCode, raw.Status.ErrorMessage)
	}

	for key, coin := range raw.Data {
		price := coin.Quote.USD.Price
		if price == nil || !price.IsPositive() {
			continue
		}
		symbol := strings.ToUpper(coin.Symbol)
		if symbol == "" {
			symbol = strings.ToUpper(key)
		}
		prices[symbol] = *price
	}
	return prices, nil
}

// get calls a CoinMarketCap endpoint and decodes the JSON body into out.
func (c *CoinMarketCap) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.cli.Do(req)
	if err != nil {
		return fmt.Errorf("coinmarketcap: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	default:
		return fmt.Errorf("coinmarketcap http %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("coinmarketcap: decode: %w", err)
	}
	return nil
}
