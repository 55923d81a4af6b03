package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"crypto-portfolio/portfolio"

	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{portfolio.ErrInvalidAmount, http.StatusBadRequest},
		{portfolio.ErrInvalidSymbol, http.StatusBadRequest},
		{fmt.Errorf("sell BTC: %w", portfolio.ErrPositionNotFound), http.StatusNotFound},
		{portfolio.ErrAccountNotFound, http.StatusNotFound},
		{fmt.Errorf("sell BTC: %w", portfolio.ErrInsufficientHoldings), http.StatusUnprocessableEntity},
		{portfolio.ErrConcurrentUpdate, http.StatusConflict},
		{portfolio.ErrAccountRegistered, http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
