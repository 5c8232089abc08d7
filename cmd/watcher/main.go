package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"deposit-bridge-go/internal/chain"
	"deposit-bridge-go/internal/common"
	"deposit-bridge-go/internal/config"
	"deposit-bridge-go/internal/ledger"
	"deposit-bridge-go/internal/metrics"
	"deposit-bridge-go/internal/store/db"
	"deposit-bridge-go/internal/watcher"
)

func main() {
	common.LoadEnvFile()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting deposit watcher",
		zap.String("treasury", cfg.Chain.TreasuryAddress),
		zap.String("store_backend", cfg.Store.Backend))

	userStore, err := db.Open(ctx, cfg.Store)
	if err != nil {
		zap.L().Fatal("Failed to open store", zap.Error(err))
	}
	defer func() {
		if err := userStore.Close(context.Background()); err != nil {
			zap.L().Warn("Failed to close store", zap.Error(err))
		}
	}()

	chainClient, err := chain.New(ctx, cfg.Chain)
	if err != nil {
		zap.L().Fatal("Failed to connect to chain endpoint", zap.Error(err))
	}
	defer chainClient.Close()

	w := watcher.New(watcher.Config{
		Chain:    chainClient,
		Ledger:   ledger.NewTransactor(userStore),
		Treasury: cfg.Chain.TreasuryAddress,
	})

	// The initial height probe inside Start is a startup precondition, so a
	// failure here aborts the process rather than being retried.
	if err := w.Start(ctx); err != nil {
		zap.L().Fatal("Failed to start watcher", zap.Error(err))
	}

	metricsSrv := metrics.NewServer(cfg.Watcher.MetricsAddr)
	go func() {
		zap.L().Info("Metrics listening", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("Metrics server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	zap.L().Info("Shutdown signal received, unsubscribing from block feed",
		zap.String("signal", sig.String()))
	cancel()
	w.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("Forced metrics server shutdown", zap.Error(err))
	}
	zap.L().Info("Deposit watcher shut down")
}
