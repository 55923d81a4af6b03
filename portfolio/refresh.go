package portfolio

import (
	"context"
	"fmt"
	"sort"
	"time"

	"crypto-portfolio/models"

	"github.com/rs/zerolog"
)

const (
	DefaultStaleAfter   = 5 * time.Minute
	DefaultPriceTimeout = 20 * time.Second
)

// RefreshOptions tunes the valuation refresh policy.
type RefreshOptions struct {
	StaleAfter time.Duration
	// Timeout bounds the single upstream price call of a refresh.
	Timeout time.Duration
	Clock   func() time.Time
}

// Refresher keeps cached position prices from going stale without asking the
// price source on every read.
type Refresher struct {
	ledger Ledger
	source PriceSource
	opts   RefreshOptions
	log    zerolog.Logger
}

func NewRefresher(ledger Ledger, source PriceSource, opts RefreshOptions, log zerolog.Logger) *Refresher {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultPriceTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Refresher{
		ledger: ledger,
		source: source,
		opts:   opts,
		log:    log.With().Str("component", "refresher").Logger(),
	}
}

// IsStale reports whether pos has never been priced or its price is at least
// StaleAfter old.
func (r *Refresher) IsStale(pos models.Position, now time.Time) bool {
	if pos.CachedPriceAt == nil {
		return true
	}
	return now.Sub(*pos.CachedPriceAt) >= r.opts.StaleAfter
}

// Refresh prices the stale positions with one batched source call, persists
// every usable price as soon as it is known and returns the updated snapshot.
// Unpriced symbols and source failures leave positions as they were.
func (r *Refresher) Refresh(ctx context.Context, positions []models.Position) []models.Position {
	now := r.opts.Clock()

	stale := make(map[string][]int)
	for i, pos := range positions {
		if r.IsStale(pos, now) {
			stale[pos.Symbol] = append(stale[pos.Symbol], i)
		}
	}
	if len(stale) == 0 {
		return positions
	}

	symbols := make([]string, 0, len(stale))
	for symbol := range stale {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	fetchCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	prices, err := r.source.FetchPrices(fetchCtx, symbols)
	if err != nil {
		r.log.Warn().
			Err(fmt.Errorf("%w: %v", ErrPriceSourceUnavailable, err)).
			Strs("symbols", symbols).
			Msg("Price refresh failed, serving cached prices")
		return positions
	}

	out := make([]models.Position, len(positions))
	copy(out, positions)

	refreshed := 0
	for _, symbol := range symbols {
		price, ok := prices[symbol]
		if !ok || !price.IsPositive() {
			r.log.Debug().Str("symbol", symbol).Msg("No usable price, keeping cached value")
			continue
		}
		for _, i := range stale[symbol] {
			if err := r.ledger.UpdateCachedPrice(ctx, out[i].ID, price, now); err != nil {
				r.log.Error().Err(err).Str("symbol", symbol).Uint("position", out[i].ID).Msg("Failed to persist refreshed price")
				continue
			}
			at := now
			out[i].CachedPrice = price
			out[i].CachedPriceAt = &at
			refreshed++
		}
	}

	r.log.Debug().Int("stale", len(symbols)).Int("refreshed", refreshed).Msg("Prices refreshed")
	return out
}
