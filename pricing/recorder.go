package pricing

import (
	"context"
	"fmt"
	"time"

	"crypto-portfolio/database"
	"crypto-portfolio/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const historyBatchSize = 100

// Recorder appends every quote the wrapped source returns to the
// price_quotes table. Recording problems are logged and never fail a fetch.
type Recorder struct {
	db    *gorm.DB
	next  Source
	name  string
	clock func() time.Time
	log   zerolog.Logger
}

func NewRecorder(db *gorm.DB, next Source, name string, log zerolog.Logger) *Recorder {
	return &Recorder{
		db:    db,
		next:  next,
		name:  name,
		clock: time.Now,
		log:   log.With().Str("component", "price-recorder").Logger(),
	}
}

func (r *Recorder) FetchPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	prices, err := r.next.FetchPrices(ctx, symbols)
	if err != nil {
		return nil, err
	}
	if len(prices) == 0 {
		return prices, nil
	}

	now := r.clock().UTC()
	quotes := make([]models.PriceQuote, 0, len(prices))
	for s, p := range prices {
		quotes = append(quotes, models.PriceQuote{Symbol: s, Price: p, Source: r.name, FetchedAt: now})
	}
	if err := database.CreateInBatches(r.db.WithContext(ctx), quotes, historyBatchSize); err != nil {
		r.log.Error().Err(err).Int("quotes", len(quotes)).Msg("Failed to record price history")
	}
	return prices, nil
}

// History returns the newest recorded quotes for symbol.
func (r *Recorder) History(ctx context.Context, symbol string, limit int) ([]models.PriceQuote, error) {
	if limit <= 0 {
		limit = 100
	}
	quotes := make([]models.PriceQuote, 0)
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("fetched_at DESC, id DESC").
		Limit(limit).
		Find(&quotes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	return quotes, nil
}
