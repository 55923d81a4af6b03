package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	DefaultListingTTL = 5 * time.Minute

	// growth leaders are picked from this many times the requested count
	growthScanFactor = 5
)

// Listing is one coin from a market-wide ranking.
type Listing struct {
	ID             string          `json:"id"`
	Symbol         string          `json:"symbol"`
	Name           string          `json:"name"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	MarketCap      decimal.Decimal `json:"market_cap"`
	MarketCapRank  int             `json:"market_cap_rank"`
	PriceChange24h decimal.Decimal `json:"price_change_percentage_24h"`
	Image          string          `json:"image"`
	TotalVolume    decimal.Decimal `json:"total_volume"`
}

// Market serves market-wide rankings.
type Market interface {
	// TopCoins returns up to limit coins by market cap, largest first.
	TopCoins(ctx context.Context, limit int) ([]Listing, error)
	// GrowthLeaders returns up to limit coins with a positive 24h change, biggest gain first.
	GrowthLeaders(ctx context.Context, limit int) ([]Listing, error)
}

type cmcListingsResponse struct {
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	Data []struct {
		ID      int    `json:"id"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
		Slug    string `json:"slug"`
		CMCRank int    `json:"cmc_rank"`
		Quote   struct {
			USD struct {
				Price            decimal.Decimal `json:"price"`
				Volume24h        decimal.Decimal `json:"volume_24h"`
				PercentChange24h decimal.Decimal `json:"percent_change_24h"`
				MarketCap        decimal.Decimal `json:"market_cap"`
			} `json:"USD"`
		} `json:"quote"`
	} `json:"data"`
}

func (c *CoinMarketCap) listings(ctx context.Context, sort string, limit int) ([]Listing, error) {
	q := url.Values{}
	q.Set("start", "1")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("convert", "USD")
	q.Set("sort", sort)
	q.Set("sort_dir", "desc")

	var raw cmcListingsResponse
	if err := c.get(ctx, "/v1/cryptocurrency/listings/latest", q, &raw); err != nil {
		return nil, err
	}
	if raw.Status.ErrorCode != 0 && len(raw.Data) == 0 {
		return nil, fmt.Errorf("coinmarketcap error %d: %s", raw.Status.ErrorCode, raw.Status.ErrorMessage)
	}

	out := make([]Listing, 0, len(raw.Data))
	for _, coin := range raw.Data {
		usd := coin.Quote.USD
		out = append(out, Listing{
			ID:             coin.Slug,
			Symbol:         strings.ToUpper(coin.Symbol),
			Name:           coin.Name,
			CurrentPrice:   usd.Price,
			MarketCap:      usd.MarketCap,
			MarketCapRank:  coin.CMCRank,
			PriceChange24h: usd.PercentChange24h,
			Image:          fmt.Sprintf("https://s2.coinmarketcap.com/static/img/coins/64x64/%d.png", coin.ID),
			TotalVolume:    usd.Volume24h,
		})
	}
	return out, nil
}

func (c *CoinMarketCap) TopCoins(ctx context.Context, limit int) ([]Listing, error) {
	if limit <= 0 {
		return []Listing{}, nil
	}
	return c.listings(ctx, "market_cap", limit)
}

func (c *CoinMarketCap) GrowthLeaders(ctx context.Context, limit int) ([]Listing, error) {
	if limit <= 0 {
		return []Listing{}, nil
	}
	all, err := c.listings(ctx, "percent_change_24h", limit*growthScanFactor)
	if err != nil {
		return nil, err
	}
	out := make([]Listing, 0, limit)
	for _, l := range all {
		if !l.PriceChange24h.IsPositive() {
			continue
		}
		out = append(out, l)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// MarketCache keeps rankings in Redis as JSON; they move slower than quotes.
type MarketCache struct {
	rdb  *redis.Client
	next Market
	ttl  time.Duration
	log  zerolog.Logger
}

func NewMarketCache(rdb *redis.Client, next Market, ttl time.Duration, log zerolog.Logger) *MarketCache {
	if ttl <= 0 {
		ttl = DefaultListingTTL
	}
	return &MarketCache{
		rdb:  rdb,
		next: next,
		ttl:  ttl,
		log:  log.With().Str("component", "listing-cache").Logger(),
	}
}

func (m *MarketCache) TopCoins(ctx context.Context, limit int) ([]Listing, error) {
	return m.cached(ctx, fmt.Sprintf("listings:top:%d", limit), func() ([]Listing, error) {
		return m.next.TopCoins(ctx, limit)
	})
}

func (m *MarketCache) GrowthLeaders(ctx context.Context, limit int) ([]Listing, error) {
	return m.cached(ctx, fmt.Sprintf("listings:growth:%d", limit), func() ([]Listing, error) {
		return m.next.GrowthLeaders(ctx, limit)
	})
}

func (m *MarketCache) cached(ctx context.Context, key string, load func() ([]Listing, error)) ([]Listing, error) {
	raw, err := m.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var out []Listing
		if err := json.Unmarshal(raw, &out); err == nil {
			return out, nil
		}
		m.log.Warn().Str("key", key).Msg("Dropping unreadable cached listing")
	case err != redis.Nil:
		m.log.Warn().Err(err).Str("key", key).Msg("Listing cache read failed")
	}

	out, err := load()
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode listings: %w", err)
	}
	if err := m.rdb.Set(ctx, key, encoded, m.ttl).Err(); err != nil {
		m.log.Warn().Err(err).Str("key", key).Msg("Listing cache write failed")
	}
	return out, nil
}
