package handlers

import (
	"context"
	"net/http"
	"strconv"

	"crypto-portfolio/middleware"
	"crypto-portfolio/models"
	"crypto-portfolio/portfolio"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const (
	defaultTxLimit = 50
	maxTxLimit     = 500
)

// PortfolioService is the slice of the accounting core the HTTP layer uses.
type PortfolioService interface {
	Buy(ctx context.Context, accountKey, symbol, displayName string, quantity, unitPrice decimal.Decimal) (*models.Transaction, error)
	Sell(ctx context.Context, accountKey, symbol string, quantity, unitPrice decimal.Decimal) (*models.Transaction, error)
	GetPortfolioView(ctx context.Context, accountKey string, order portfolio.Order) (portfolio.View, error)
	Transactions(ctx context.Context, accountKey string, limit int) ([]models.Transaction, error)
	Account(ctx context.Context, accountKey string) (*models.Account, error)
}

type Portfolio struct {
	svc PortfolioService
}

func NewPortfolio(svc PortfolioService) *Portfolio {
	return &Portfolio{svc: svc}
}

// Quantity and price accept JSON numbers or strings; positivity is enforced
// by the engine so every entry point shares one rule.
type BuyInput struct {
	Symbol   string          `json:"symbol" binding:"required"`
	Name     string          `json:"name"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type SellInput struct {
	Symbol   string          `json:"symbol" binding:"required"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

func (h *Portfolio) Buy(c *gin.Context) {
	var input BuyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx, err := h.svc.Buy(c.Request.Context(), c.GetString(middleware.AccountKey), input.Symbol, input.Name, input.Quantity, input.Price)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

func (h *Portfolio) Sell(c *gin.Context) {
	var input SellInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx, err := h.svc.Sell(c.Request.Context(), c.GetString(middleware.AccountKey), input.Symbol, input.Quantity, input.Price)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

func (h *Portfolio) GetPortfolio(c *gin.Context) {
	view, err := h.svc.GetPortfolioView(c.Request.Context(), c.GetString(middleware.AccountKey), portfolio.ParseOrder(c.Query("sort")))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Portfolio) GetTransactions(c *gin.Context) {
	limit := defaultTxLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxTxLimit)
	}

	txs, err := h.svc.Transactions(c.Request.Context(), c.GetString(middleware.AccountKey), limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (h *Portfolio) GetAccount(c *gin.Context) {
	account, err := h.svc.Account(c.Request.Context(), c.GetString(middleware.AccountKey))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}
