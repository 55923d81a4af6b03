package handlers

import (
	"errors"
	"net/http"

	"crypto-portfolio/portfolio"

	"github.com/gin-gonic/gin"
)

// statusFor maps core errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, portfolio.ErrInvalidAmount), errors.Is(err, portfolio.ErrInvalidSymbol):
		return http.StatusBadRequest
	case errors.Is(err, portfolio.ErrPositionNotFound), errors.Is(err, portfolio.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, portfolio.ErrInsufficientHoldings):
		return http.StatusUnprocessableEntity
	case errors.Is(err, portfolio.ErrConcurrentUpdate), errors.Is(err, portfolio.ErrAccountRegistered):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "Internal error"})
		_ = c.Error(err)
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
