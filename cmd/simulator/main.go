package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"virtual-trading-sim/internal/api"
	"virtual-trading-sim/internal/config"
	"virtual-trading-sim/internal/database"
	"virtual-trading-sim/internal/ledger"
	"virtual-trading-sim/internal/logger"
	"virtual-trading-sim/internal/portfolio"
	"virtual-trading-sim/internal/pricefeed"
	"virtual-trading-sim/internal/stream"
	"virtual-trading-sim/internal/trading"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(&cfg)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful, schema migrated and catalog seeded.")

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	store := ledger.NewGormStore(db)

	feed := pricefeed.NewFeed(log, store, cfg.Simulation)
	if err := feed.Load(ctx); err != nil {
		log.Fatal("Failed to load instrument prices", zap.Error(err))
	}

	hub := stream.NewHub(log)
	feed.Subscribe(hub.Publish)

	server := api.NewServer(log, cfg.Server, api.Deps{
		Trader:      trading.NewEngine(log, cfg.Trading, store, feed),
		Portfolios:  portfolio.NewProjector(log, cfg.Trading, store, feed),
		Market:      feed,
		Instruments: store,
		Stream:      http.HandlerFunc(hub.HandleWS),
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		feed.Run(ctx)
		return nil
	})
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return server.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Simulator stopped with an error", zap.Error(err))
		cancel()
		os.Exit(1)
	}
	cancel()
	log.Info("Simulator has been shut down.")
}
