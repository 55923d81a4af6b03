package portfolio

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"crypto-portfolio/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// sharedReadSlack covers the ledger reads and writes around the price call.
const sharedReadSlack = 10 * time.Second

// Service is what bot and API handlers talk to.
type Service struct {
	ledger    Ledger
	engine    *Engine
	refresher *Refresher
	reads     singleflight.Group
	log       zerolog.Logger
}

func NewService(ledger Ledger, engine *Engine, refresher *Refresher, log zerolog.Logger) *Service {
	return &Service{
		ledger:    ledger,
		engine:    engine,
		refresher: refresher,
		log:       log.With().Str("component", "portfolio").Logger(),
	}
}

func (s *Service) Buy(ctx context.Context, accountKey, symbol, displayName string, quantity, unitPrice decimal.Decimal) (*models.Transaction, error) {
	return s.engine.Buy(ctx, accountKey, symbol, displayName, quantity, unitPrice)
}

func (s *Service) Sell(ctx context.Context, accountKey, symbol string, quantity, unitPrice decimal.Decimal) (*models.Transaction, error) {
	return s.engine.Sell(ctx, accountKey, symbol, quantity, unitPrice)
}

// GetPortfolioView refreshes stale prices and summarizes the account's
// holdings. Price source trouble only means older prices; an unknown account
// gets an empty view.
func (s *Service) GetPortfolioView(ctx context.Context, accountKey string, order Order) (View, error) {
	account, err := s.ledger.LoadAccount(ctx, NormalizeAccountKey(accountKey))
	if errors.Is(err, ErrAccountNotFound) {
		return Assemble(nil, order), nil
	}
	if err != nil {
		return View{}, fmt.Errorf("load account: %w", err)
	}

	positions, err := s.refreshedPositions(ctx, account.ID)
	if err != nil {
		return View{}, err
	}
	return Assemble(positions, order), nil
}

// Transactions returns the account's trade log, newest first.
func (s *Service) Transactions(ctx context.Context, accountKey string, limit int) ([]models.Transaction, error) {
	account, err := s.ledger.LoadAccount(ctx, NormalizeAccountKey(accountKey))
	if errors.Is(err, ErrAccountNotFound) {
		return []models.Transaction{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return s.ledger.ListTransactions(ctx, account.ID, limit)
}

// Account returns the stored account, including its balance.
func (s *Service) Account(ctx context.Context, accountKey string) (*models.Account, error) {
	return s.ledger.LoadAccount(ctx, NormalizeAccountKey(accountKey))
}

// WarmAccount runs the refresh policy for one account without building a view.
func (s *Service) WarmAccount(ctx context.Context, accountID uint) error {
	_, err := s.refreshedPositions(ctx, accountID)
	return err
}

// refreshedPositions collapses concurrent reads of one account into a single
// load and refresh. The shared work runs detached from the first caller's
// cancellation so that caller leaving does not fail the others.
func (s *Service) refreshedPositions(ctx context.Context, accountID uint) ([]models.Position, error) {
	key := strconv.FormatUint(uint64(accountID), 10)
	v, err, shared := s.reads.Do(key, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.refresher.opts.Timeout+sharedReadSlack)
		defer cancel()

		positions, err := s.ledger.ListPositions(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("list positions: %w", err)
		}
		return s.refresher.Refresh(ctx, positions), nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.log.Debug().Uint("account", accountID).Msg("Shared in-flight refresh")
	}

	positions := v.([]models.Position)
	out := make([]models.Position, len(positions))
	copy(out, positions)
	return out, nil
}
