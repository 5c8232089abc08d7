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

	"deposit-bridge-go/internal/common"
	"deposit-bridge-go/internal/config"
	"deposit-bridge-go/internal/gateway"
	"deposit-bridge-go/internal/ledger"
	"deposit-bridge-go/internal/listings"
	"deposit-bridge-go/internal/store/db"
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

	registry, err := listings.Load(cfg.Gateway.ListingsFile)
	if err != nil {
		zap.L().Fatal("Failed to load service listings", zap.Error(err))
	}
	zap.L().Info("Service listings loaded", zap.Int("count", len(registry.All())))

	userStore, err := db.Open(ctx, cfg.Store)
	if err != nil {
		zap.L().Fatal("Failed to open store", zap.Error(err))
	}
	defer func() {
		if err := userStore.Close(context.Background()); err != nil {
			zap.L().Warn("Failed to close store", zap.Error(err))
		}
	}()

	server := gateway.NewServer(cfg.Gateway, ledger.NewTransactor(userStore), registry)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		zap.L().Info("Shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errChan:
		zap.L().Error("Gateway server failed", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("Forced shutdown", zap.Error(err))
	}
	zap.L().Info("Gateway shut down")
}
