// Package main is the entry point for Keeper, a self-hosted portfolio
// tracker: transactions in, priced holdings, gains and tax estimates out.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jwchen/keeper/internal/clients/alphavantage"
	"github.com/jwchen/keeper/internal/clients/binance"
	"github.com/jwchen/keeper/internal/clients/coingecko"
	"github.com/jwchen/keeper/internal/clients/exchangerate"
	"github.com/jwchen/keeper/internal/clients/yahoo"
	"github.com/jwchen/keeper/internal/config"
	"github.com/jwchen/keeper/internal/database"
	"github.com/jwchen/keeper/internal/jobs"
	"github.com/jwchen/keeper/internal/modules/currency"
	"github.com/jwchen/keeper/internal/modules/importer"
	"github.com/jwchen/keeper/internal/modules/portfolio"
	"github.com/jwchen/keeper/internal/modules/pricecache"
	"github.com/jwchen/keeper/internal/modules/transactions"
	"github.com/jwchen/keeper/internal/prices"
	"github.com/jwchen/keeper/internal/ratelimit"
	"github.com/jwchen/keeper/internal/retry"
	"github.com/jwchen/keeper/internal/scheduler"
	"github.com/jwchen/keeper/internal/server"
	"github.com/jwchen/keeper/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting Keeper")

	// Two databases: the transaction ledger needs full durability, the price
	// cache favors speed and is rebuildable.
	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger database")
	}
	defer ledgerDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	// Repositories
	txRepo, err := transactions.NewRepository(ledgerDB.Conn(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize transactions repository")
	}
	priceRepo, err := pricecache.NewRepository(cacheDB.Conn(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize price cache repository")
	}

	// Price resolution: every external source shares one rate limiter and
	// retry policy; Alpha Vantage is the expensive tier, consulted only when
	// the primaries cannot reach consensus.
	limiter := ratelimit.New(cfg.SourceCallsPerMin)
	policy := retry.New(cfg.PriceMaxRetries, cfg.PriceRetryBase)

	sources := []*prices.GuardedSource{
		prices.Guard(yahoo.New(log), limiter, policy, false, log),
		prices.Guard(binance.New(log), limiter, policy, false, log),
		prices.Guard(coingecko.New(log), limiter, policy, false, log),
		prices.Guard(alphavantage.New(cfg.AlphaVantageAPIKey, log), limiter, policy, true, log),
	}
	priority := []string{yahoo.SourceID, binance.SourceID, coingecko.SourceID, alphavantage.SourceID}

	resolver := prices.NewResolver(sources, priority, prices.DefaultOverrides(), log)
	updater := prices.NewUpdater(resolver, log)
	updater.SetConcurrency(cfg.PriceConcurrency)
	updater.SetStagger(cfg.PriceStagger)

	// Services
	rates := exchangerate.NewClient(log)
	converter := currency.NewService(rates, cfg.BaseCurrency, log)
	taxEstimator := portfolio.NewTaxEstimator(cfg.TaxRateStock, cfg.TaxRateCrypto, cfg.TaxRateEquityComp)
	portfolioSvc := portfolio.NewService(txRepo, priceRepo, updater, resolver, converter, taxEstimator, log)

	// Handlers
	txHandler := transactions.NewHandler(txRepo, importer.New(log), log)
	portfolioHandler := portfolio.NewHandler(portfolioSvc, log)
	currencyHandler := currency.NewHandler(converter, log)

	// Background price refresh
	sched := scheduler.New(log)
	refreshJob := jobs.NewPriceRefreshJob(txRepo, portfolioSvc, 10*time.Minute, log)
	if cfg.PriceRefreshSchedule != "" {
		if err := sched.AddJob(cfg.PriceRefreshSchedule, refreshJob); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule price refresh job")
		}
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Log:                 log,
		Cfg:                 cfg,
		LedgerDB:            ledgerDB,
		CacheDB:             cacheDB,
		TransactionsHandler: txHandler,
		PortfolioHandler:    portfolioHandler,
		CurrencyHandler:     currencyHandler,
		SourceQuota:         limiter,
		SourceIDs:           priority,
		PriceRefreshJob:     refreshJob,
		Scheduler:           sched,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}

	log.Info().Msg("Keeper stopped")
}
