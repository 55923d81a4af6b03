package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const DefaultQuoteTTL = 60 * time.Second

// Cache shares recent quotes between accounts and processes through Redis,
// so many refreshes of the same symbol cost one upstream call per TTL.
type Cache struct {
	rdb  *redis.Client
	next Source
	ttl  time.Duration
	log  zerolog.Logger
}

func NewCache(rdb *redis.Client, next Source, ttl time.Duration, log zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultQuoteTTL
	}
	return &Cache{
		rdb:  rdb,
		next: next,
		ttl:  ttl,
		log:  log.With().Str("component", "price-cache").Logger(),
	}
}

func quoteKey(symbol string) string {
	return fmt.Sprintf("price:%s:usd", symbol)
}

// FetchPrices serves cached quotes and asks the next source once for the rest.
// When upstream fails but some symbols were cached, those are returned.
func (c *Cache) FetchPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	symbols = normalize(symbols)
	prices := make(map[string]decimal.Decimal, len(symbols))
	if len(symbols) == 0 {
		return prices, nil
	}

	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = quoteKey(s)
	}

	cached, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.log.Warn().Err(err).Msg("Quote cache read failed")
		cached = nil
	}
	for i, v := range cached {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		price, err := decimal.NewFromString(raw)
		if err != nil || !price.IsPositive() {
			continue
		}
		prices[symbols[i]] = price
	}

	misses := missing(symbols, prices)
	if len(misses) == 0 {
		return prices, nil
	}

	fetched, err := c.next.FetchPrices(ctx, misses)
	if err != nil {
		if len(prices) > 0 {
			c.log.Warn().Err(err).Strs("symbols", misses).Msg("Upstream failed, serving cached quotes only")
			return prices, nil
		}
		return nil, err
	}

	pipe := c.rdb.Pipeline()
	for s, p := range fetched {
		prices[s] = p
		pipe.Set(ctx, quoteKey(s), p.String(), c.ttl)
	}
	if len(fetched) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			c.log.Warn().Err(err).Msg("Quote cache write failed")
		}
	}
	return prices, nil
}
