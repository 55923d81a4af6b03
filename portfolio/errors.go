package portfolio

import "errors"

var (
	// ErrInvalidAmount is returned when a quantity or unit price is not strictly positive.
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidSymbol = errors.New("invalid symbol")

	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountRegistered    = errors.New("account already registered")
	ErrPositionNotFound     = errors.New("position not found")
	ErrInsufficientHoldings = errors.New("insufficient holdings")

	// ErrConcurrentUpdate means a position changed between read and write.
	// The whole operation may be retried.
	ErrConcurrentUpdate = errors.New("concurrent update conflict")

	// ErrPriceSourceUnavailable never leaves GetPortfolioView; it only shows up in logs.
	ErrPriceSourceUnavailable = errors.New("price source unavailable")
)
