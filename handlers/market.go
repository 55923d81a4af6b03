package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crypto-portfolio/models"
	"crypto-portfolio/portfolio"
	"crypto-portfolio/pricing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	maxPriceSymbols = 50

	defaultTopCoins     = 10
	maxTopCoins         = 100
	defaultGrowthLeader = 5
	maxGrowthLeaders    = 50
)

// HistoryReader serves recorded quotes; nil when running without a database.
type HistoryReader interface {
	History(ctx context.Context, symbol string, limit int) ([]models.PriceQuote, error)
}

type Market struct {
	prices   pricing.Source
	listings pricing.Market
	history  HistoryReader
	timeout  time.Duration
	log      zerolog.Logger
}

// NewMarket wires the market routes. listings and history may be nil; their
// routes then answer 501.
func NewMarket(prices pricing.Source, listings pricing.Market, history HistoryReader, timeout time.Duration, log zerolog.Logger) *Market {
	return &Market{
		prices:   prices,
		listings: listings,
		history:  history,
		timeout:  timeout,
		log:      log.With().Str("component", "market").Logger(),
	}
}

// queryLimit reads ?limit, falling back to def and capping at ceiling.
func queryLimit(c *gin.Context, def, ceiling int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return 0, false
	}
	return min(n, ceiling), true
}

func splitSymbols(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = portfolio.NormalizeSymbol(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (h *Market) GetPrices(c *gin.Context) {
	symbols := splitSymbols(c.Param("symbols"))
	if len(symbols) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No symbols given"})
		return
	}
	if len(symbols) > maxPriceSymbols {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Too many symbols"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	prices, err := h.prices.FetchPrices(ctx, symbols)
	if err != nil {
		h.log.Warn().Err(err).Strs("symbols", symbols).Msg("Price lookup failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to fetch prices"})
		return
	}

	missing := make([]string, 0)
	for _, s := range symbols {
		if _, ok := prices[s]; !ok {
			missing = append(missing, s)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"prices":    prices,
		"missing":   missing,
		"timestamp": time.Now().UTC(),
	})
}

func (h *Market) GetHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Price history is not recorded in this deployment"})
		return
	}
	symbols := splitSymbols(c.Param("symbols"))
	if len(symbols) != 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "History takes exactly one symbol"})
		return
	}

	limit, ok := queryLimit(c, 100, 1000)
	if !ok {
		return
	}

	quotes, err := h.history.History(c.Request.Context(), symbols[0], limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbols[0], "history": quotes})
}

func (h *Market) GetTopCoins(c *gin.Context) {
	h.serveListings(c, defaultTopCoins, maxTopCoins, h.topCoins)
}

func (h *Market) GetGrowthLeaders(c *gin.Context) {
	h.serveListings(c, defaultGrowthLeader, maxGrowthLeaders, h.growthLeaders)
}

func (h *Market) topCoins(ctx context.Context, limit int) ([]pricing.Listing, error) {
	return h.listings.TopCoins(ctx, limit)
}

func (h *Market) growthLeaders(ctx context.Context, limit int) ([]pricing.Listing, error) {
	return h.listings.GrowthLeaders(ctx, limit)
}

func (h *Market) serveListings(c *gin.Context, def, ceiling int, fetch func(context.Context, int) ([]pricing.Listing, error)) {
	if h.listings == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Market listings need a CoinMarketCap API key"})
		return
	}
	limit, ok := queryLimit(c, def, ceiling)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	coins, err := fetch(ctx, limit)
	if err != nil {
		h.log.Warn().Err(err).Str("path", c.FullPath()).Msg("Listing lookup failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to fetch market listings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"coins": coins, "timestamp": time.Now().UTC()})
}
