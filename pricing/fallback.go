package pricing

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Fallback asks the primary provider first and the secondary only for the
// symbols the primary could not price. It fails only when neither produced
// an answer.
type Fallback struct {
	primary   Source
	secondary Source
	log       zerolog.Logger
}

func NewFallback(primary, secondary Source, log zerolog.Logger) *Fallback {
	return &Fallback{
		primary:   primary,
		secondary: secondary,
		log:       log.With().Str("component", "price-fallback").Logger(),
	}
}

func (f *Fallback) FetchPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	symbols = normalize(symbols)

	prices, primaryErr := f.primary.FetchPrices(ctx, symbols)
	if primaryErr != nil {
		f.log.Warn().Err(primaryErr).Msg("Primary price provider failed, trying secondary")
		prices = make(map[string]decimal.Decimal)
	}

	rest := missing(symbols, prices)
	if len(rest) == 0 || f.secondary == nil {
		if primaryErr != nil {
			return nil, primaryErr
		}
		return prices, nil
	}

	more, err := f.secondary.FetchPrices(ctx, rest)
	if err != nil {
		if primaryErr != nil {
			return nil, fmt.Errorf("primary: %v; secondary: %w", primaryErr, err)
		}
		f.log.Warn().Err(err).Strs("symbols", rest).Msg("Secondary price provider failed")
		return prices, nil
	}
	for s, p := range more {
		prices[s] = p
	}
	return prices, nil
}
