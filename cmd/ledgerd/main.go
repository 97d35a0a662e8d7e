package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"reconledger/internal/app"
	"reconledger/internal/config"
	httpinfra "reconledger/internal/infra/http"
	"reconledger/internal/infra/logging"
	"reconledger/internal/infra/tracing"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		ServiceName:  cfg.Tracing.ServiceName,
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
	})
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	ledger, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to init ledger", zap.Error(err))
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			logger.Warn("close ledger", zap.Error(err))
		}
	}()

	srv := httpinfra.NewServer(cfg, httpinfra.ServerDeps{
		Gateway: ledger.Gateway,
		Store:   ledger.Store,
		Log:     logger,
		Metrics: ledger.Metrics,
	})
	if err := srv.Run(ctx); err != nil {
		logger.Error("server exited", zap.Error(err))
		return
	}
	logger.Info("server stopped")
}
