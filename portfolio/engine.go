package portfolio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crypto-portfolio/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// EngineOptions tunes the cost-basis engine.
type EngineOptions struct {
	// CreateAccounts lets Buy open an account for an unknown key.
	CreateAccounts bool
	// MaxAttempts bounds retries after ErrConcurrentUpdate.
	MaxAttempts int
	Clock       func() time.Time
}

func DefaultEngineOptions() EngineOptions {
	return EngineOptions{CreateAccounts: true, MaxAttempts: 3, Clock: time.Now}
}

// Engine applies buys and sells to positions under weighted-average cost basis.
type Engine struct {
	ledger Ledger
	locks  *keyedMutex
	opts   EngineOptions
	log    zerolog.Logger
}

func NewEngine(ledger Ledger, opts EngineOptions, log zerolog.Logger) *Engine {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{
		ledger: ledger,
		locks:  newKeyedMutex(),
		opts:   opts,
		log:    log.With().Str("component", "engine").Logger(),
	}
}

// Buy records a purchase and folds it into the account's position for symbol.
func (e *Engine) Buy(ctx context.Context, accountKey, symbol, displayName string, quantity, unitPrice decimal.Decimal) (*models.Transaction, error) {
	accountKey = NormalizeAccountKey(accountKey)
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, ErrInvalidSymbol
	}
	if err := validateTrade(quantity, unitPrice); err != nil {
		return nil, err
	}
	displayName = strings.TrimSpace(displayName)

	account, err := e.buyer(ctx, accountKey)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(positionKey(account.ID, symbol))
	defer unlock()

	var record *models.Transaction
	err = e.withRetry(ctx, "buy", func() error {
		return e.ledger.Atomic(ctx, func(l Ledger) error {
			pos, err := l.LoadPosition(ctx, account.ID, symbol)
			switch {
			case errors.Is(err, ErrPositionNotFound):
				pos = &models.Position{AccountID: account.ID, Symbol: symbol, DisplayName: symbol}
			case err != nil:
				return err
			}
			if displayName != "" {
				pos.DisplayName = displayName
			}

			expected := pos.Version
			amount := applyBuy(pos, quantity, unitPrice)
			if err := l.SavePosition(ctx, pos, expected); err != nil {
				return err
			}

			tx := &models.Transaction{
				AccountID:    account.ID,
				Symbol:       symbol,
				DisplayName:  pos.DisplayName,
				Kind:         models.KindBuy,
				Quantity:     quantity,
				UnitPrice:    unitPrice,
				Amount:       amount,
				RealizedGain: decimal.Zero,
				OccurredAt:   e.opts.Clock().UTC(),
			}
			if err := l.AppendTransaction(ctx, tx); err != nil {
				return err
			}
			record = tx
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("buy %s: %w", symbol, err)
	}

	e.log.Info().
		Str("account", accountKey).
		Str("symbol", symbol).
		Str("quantity", quantity.String()).
		Str("price", unitPrice.String()).
		Msg("Buy recorded")
	return record, nil
}

// Sell removes quantity from an open position. The average cost of what
// remains is unchanged; a position sold down to zero is closed.
func (e *Engine) Sell(ctx context.Context, accountKey, symbol string, quantity, unitPrice decimal.Decimal) (*models.Transaction, error) {
	accountKey = NormalizeAccountKey(accountKey)
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, ErrInvalidSymbol
	}
	if err := validateTrade(quantity, unitPrice); err != nil {
		return nil, err
	}

	account, err := e.ledger.LoadAccount(ctx, accountKey)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("sell %s: %w", symbol, ErrPositionNotFound)
	}
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(positionKey(account.ID, symbol))
	defer unlock()

	var record *models.Transaction
	var closed bool
	err = e.withRetry(ctx, "sell", func() error {
		return e.ledger.Atomic(ctx, func(l Ledger) error {
			pos, err := l.LoadPosition(ctx, account.ID, symbol)
			if err != nil {
				return err
			}

			expected := pos.Version
			amount, realized, err := applySell(pos, quantity, unitPrice)
			if err != nil {
				return err
			}

			closed = pos.Quantity.IsZero()
			if closed {
				err = l.DeletePosition(ctx, pos, expected)
			} else {
				err = l.SavePosition(ctx, pos, expected)
			}
			if err != nil {
				return err
			}

			tx := &models.Transaction{
				AccountID:    account.ID,
				Symbol:       symbol,
				DisplayName:  pos.DisplayName,
				Kind:         models.KindSell,
				Quantity:     quantity,
				UnitPrice:    unitPrice,
				Amount:       amount,
				RealizedGain: realized,
				OccurredAt:   e.opts.Clock().UTC(),
			}
			if err := l.AppendTransaction(ctx, tx); err != nil {
				return err
			}
			record = tx
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("sell %s: %w", symbol, err)
	}

	e.log.Info().
		Str("account", accountKey).
		Str("symbol", symbol).
		Str("quantity", quantity.String()).
		Str("price", unitPrice.String()).
		Bool("closed", closed).
		Msg("Sell recorded")
	return record, nil
}

func (e *Engine) buyer(ctx context.Context, accountKey string) (*models.Account, error) {
	if accountKey == "" {
		return nil, fmt.Errorf("%w: empty account key", ErrAccountNotFound)
	}
	if e.opts.CreateAccounts {
		return e.ledger.EnsureAccount(ctx, accountKey)
	}
	return e.ledger.LoadAccount(ctx, accountKey)
}

func (e *Engine) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		err = fn()
		if !errors.Is(err, ErrConcurrentUpdate) {
			return err
		}
		e.log.Warn().Str("op", op).Int("attempt", attempt).Msg("Position changed underneath, retrying")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}
