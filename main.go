package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-portfolio/config"
	"crypto-portfolio/database"
	"crypto-portfolio/handlers"
	"crypto-portfolio/logger"
	"crypto-portfolio/middleware"
	"crypto-portfolio/portfolio"
	"crypto-portfolio/pricing"
	"crypto-portfolio/store"
	"crypto-portfolio/warmup"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// accountLedger is the ledger plus the credential write the auth handlers need.
type accountLedger interface {
	portfolio.Ledger
	handlers.AccountStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	ctx := context.Background()

	// Initialize Redis and the ledger store.
	rdb, err := config.NewRedis(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis unavailable")
	}
	defer rdb.Close()

	ledger, db, err := openLedger(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Ledger store unavailable")
	}
	if db != nil {
		sqlDB, err := db.DB()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to get database instance")
		}
		defer sqlDB.Close()
	}

	// Price source chain: providers -> history -> shared Redis cache.
	var upstream pricing.Source = pricing.NewCoinGecko(cfg.CoinGeckoURL, nil, cfg.PriceTimeout)
	cmc, err := pricing.NewCoinMarketCap(cfg.CoinMarketCapURL, cfg.CoinMarketCapAPIKey, cfg.PriceTimeout)
	if err != nil {
		log.Warn().Err(err).Msg("CoinMarketCap not configured, using CoinGecko only")
	} else {
		upstream = pricing.NewFallback(cmc, upstream, log)
	}

	var history handlers.HistoryReader
	if db != nil {
		recorder := pricing.NewRecorder(db, upstream, "upstream", log)
		upstream, history = recorder, recorder
	}
	source := pricing.NewCache(rdb, upstream, cfg.QuoteCacheTTL, log)

	var listings pricing.Market
	if cmc != nil {
		listings = pricing.NewMarketCache(rdb, cmc, cfg.ListingCacheTTL, log)
	}

	engineOpts := portfolio.DefaultEngineOptions()
	engineOpts.CreateAccounts = cfg.AutoCreateAccounts
	engine := portfolio.NewEngine(ledger, engineOpts, log)
	refresher := portfolio.NewRefresher(ledger, source, portfolio.RefreshOptions{
		StaleAfter: cfg.PriceStaleAfter,
		Timeout:    cfg.PriceTimeout,
	}, log)
	svc := portfolio.NewService(ledger, engine, refresher, log)

	if cfg.WarmupSchedule != "" {
		scheduler := warmup.NewScheduler(log)
		job := warmup.NewPriceWarmupJob(ledger, svc, 2*time.Minute, log)
		if err := scheduler.AddJob(cfg.WarmupSchedule, job); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.WarmupSchedule).Msg("Invalid warmup schedule")
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log))

	secret := []byte(cfg.JWTSecret)
	handlers.Register(router,
		handlers.NewAuth(ledger, rdb, secret),
		handlers.NewPortfolio(svc),
		handlers.NewMarket(source, listings, history, cfg.PriceTimeout, log),
		secret,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Int("port", cfg.Port).Str("store", cfg.StoreKind).Msg("Listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

func openLedger(cfg *config.Config, log zerolog.Logger) (accountLedger, *gorm.DB, error) {
	if cfg.StoreKind == config.StoreMemory {
		log.Warn().Msg("Using in-memory ledger; data is lost on restart")
		return store.NewMemoryLedger(), nil, nil
	}

	db, err := config.NewDB(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, nil, err
	}
	return store.NewGormLedger(db, log), db, nil
}
