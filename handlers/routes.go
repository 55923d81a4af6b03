package handlers

import (
	"crypto-portfolio/middleware"

	"github.com/gin-gonic/gin"
)

// Register mounts the public and JWT-protected routes on router.
func Register(router *gin.Engine, auth *Auth, pf *Portfolio, market *Market, secret []byte) {
	// Public routes
	router.POST("/signup", auth.Signup)
	router.POST("/login", auth.Login)
	router.POST("/token/refresh", auth.Refresh)

	// Protected routes
	protected := router.Group("/")
	protected.Use(middleware.JWTAuth(secret))
	{
		protected.POST("/portfolio/buy", pf.Buy)
		protected.POST("/portfolio/sell", pf.Sell)
		protected.GET("/portfolio", pf.GetPortfolio)
		protected.GET("/transactions", pf.GetTransactions)
		protected.GET("/account", pf.GetAccount)
		protected.GET("/prices/:symbols", market.GetPrices)
		protected.GET("/prices/:symbols/history", market.GetHistory)
		protected.GET("/market/top-coins", market.GetTopCoins)
		protected.GET("/market/growth-leaders", market.GetGrowthLeaders)
	}
}
