// Package main wires together the vehicle market tracker binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Toufic99/Rapport-Marche-Auto/internal/api"
	"github.com/Toufic99/Rapport-Marche-Auto/internal/clock/system"
	"github.com/Toufic99/Rapport-Marche-Auto/internal/config"
	"github.com/Toufic99/Rapport-Marche-Auto/internal/extract"
	"github.com/Toufic99/Rapport-Marche-Auto/internal/frontier"
	"github.com/Toufic99/Rapport-Marche-Auto/internal/logging"
	"github.com/Toufic99/Rapport-Marche-Auto/internal/market"
	"github.com/Toufic99/Rapport-Marche-Auto/internal/metrics"
	"github.com/Toufic99/Rapport-Marche-Auto/internal/orchestrator"
	"github.com/Toufic99/Rapport-Marche-Auto/internal/renderer"
	"github.com/Toufic99/Rapport-Marche-Auto/internal/store/memory"
	"github.com/Toufic99/Rapport-Marche-Auto/internal/store/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	mode := flag.String("mode", "crawl+serve", "Run mode: serve, crawl, or crawl+serve")
	seedMode := flag.String("seed-mode", "general", "Seed set to walk: general or targeted")
	pagesPerSeed := flag.Int("pages-per-seed", 0, "Override crawl.pages_per_seed")
	maxRecords := flag.Int("max-records", 0, "Override crawl.max_records")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *pagesPerSeed > 0 {
		cfg.Crawl.PagesPerSeed = *pagesPerSeed
	}
	if *maxRecords > 0 {
		cfg.Crawl.MaxRecords = *maxRecords
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	seeds := cfg.Crawl.Seeds
	if *seedMode == "targeted" {
		seeds = cfg.Crawl.TargetedSeeds
	}
	doCrawl := *mode == "crawl" || *mode == "crawl+serve"
	doServe := *mode == "serve" || *mode == "crawl+serve"
	if !doCrawl && !doServe {
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(1)
	}
	if doCrawl && len(seeds) == 0 {
		fmt.Fprintf(os.Stderr, "no %s seeds configured\n", *seedMode)
		os.Exit(1)
	}

	var store market.Store
	if cfg.DB.DSN != "" {
		pg, err := postgres.New(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		}, logger.Named("store"))
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		store = pg
	} else {
		logger.Warn("db.dsn not set, using in-memory store")
		store = memory.New(logger.Named("store"))
	}
	defer store.Close()

	var runner *orchestrator.Orchestrator
	if doCrawl {
		rend, err := renderer.New(renderer.Config{
			UserAgent:      cfg.Renderer.UserAgent,
			FetchTimeout:   cfg.Renderer.FetchTimeout,
			HeadlessAlways: cfg.Renderer.HeadlessAlways,
			DomainQPS:      cfg.Renderer.DomainQPS,
			PromotionBytes: cfg.Renderer.PromotionBytes,
		}, logger.Named("renderer"))
		if err != nil {
			logger.Fatal("renderer init failed", zap.Error(err))
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := rend.Close(closeCtx); err != nil {
				logger.Warn("renderer close failed", zap.Error(err))
			}
		}()

		clock := system.New()
		fr := frontier.New(frontier.Config{
			PagesPerSeed: cfg.Crawl.PagesPerSeed,
			KnownStreak:  cfg.Crawl.KnownStreak,
			RefreshKnown: cfg.Crawl.RefreshKnown,
		}, rend, logger.Named("frontier"))
		ex := extract.New(clock, logger.Named("extract"))
		runner = orchestrator.New(orchestrator.Config{
			Seeds:            seeds,
			MaxRecords:       cfg.Crawl.MaxRecords,
			MinDelay:         cfg.Pacing.MinDelay,
			MaxDelay:         cfg.Pacing.MaxDelay,
			RotateEvery:      cfg.Pacing.RotateEvery,
			BlockedCooldown:  cfg.Pacing.BlockedCooldown,
			MaxFetchAttempts: cfg.Pacing.MaxFetchAttempts,
			GracePeriod:      cfg.Lifecycle.GracePeriod,
		}, rend, fr, ex, store, clock, logger.Named("orchestrator"))
	}

	if !doServe {
		run, err := runner.Run(ctx)
		if err != nil {
			logger.Error("crawl run failed", zap.String("run_id", run.ID), zap.Error(err))
			os.Exit(1)
		}
		return
	}

	apiServer := api.NewServer(store, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if doCrawl {
		go func() {
			if _, err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("crawl run failed", zap.Error(err))
			}
		}()
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
