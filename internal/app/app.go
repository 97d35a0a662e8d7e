// Package app assembles the ledger from configuration for the server and
// the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"

	"reconledger/internal/config"
	"reconledger/internal/domain"
	"reconledger/internal/fingerprint"
	"reconledger/internal/infra/db"
	"reconledger/internal/infra/events"
	"reconledger/internal/infra/metrics"
	"reconledger/internal/infra/policyopa"
	"reconledger/internal/usecase"
	"reconledger/internal/variance"

	"go.uber.org/zap"
)

type App struct {
	Store     *db.Store
	Gateway   *usecase.Gateway
	Metrics   *metrics.Collector
	Publisher domain.EventPublisher

	closers []func() error
}

func Build(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	threshold, err := cfg.Materiality()
	if err != nil {
		return nil, err
	}

	store, err := db.NewStore(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	a := &App{Store: store, Metrics: metrics.New()}
	a.closers = append(a.closers, store.Close)

	if cfg.Database.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	policy, err := buildPolicy(ctx, cfg, threshold, log)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Publisher = a.buildPublisher(cfg, log)

	opts := []usecase.Option{
		usecase.WithLogger(log),
		usecase.WithPublisher(a.Publisher),
		usecase.WithMetrics(a.Metrics),
	}
	tickets := usecase.NewTicketLedger(store.Tickets, fingerprint.New(cfg.Ledger.TicketFingerprintIgnore...), opts...)
	payments := usecase.NewPaymentReconciler(store.PaymentAudits, policy, opts...)
	cashBags, err := usecase.NewCashBagLedger(store.CashBags, usecase.CashBagConfig{
		Sources:    cfg.Ledger.CashBagSources,
		IDAttempts: cfg.Ledger.CashBagIDAttempts,
		Policy:     policy,
	}, opts...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Gateway = usecase.NewGateway(tickets, payments, cashBags)
	return a, nil
}

func buildPolicy(ctx context.Context, cfg config.Config, threshold variance.Threshold, log *zap.Logger) (usecase.MaterialityPolicy, error) {
	if cfg.Ledger.VariancePolicyPath == "" {
		return usecase.ThresholdPolicy{Threshold: threshold}, nil
	}
	classifier, err := policyopa.NewClassifierFromFile(ctx, cfg.Ledger.VariancePolicyPath, threshold)
	if err != nil {
		return nil, fmt.Errorf("variance policy: %w", err)
	}
	log.Info("variance policy loaded",
		zap.String("path", cfg.Ledger.VariancePolicyPath),
		zap.String("policy_hash", classifier.PolicyHash()),
	)
	return classifier, nil
}

func (a *App) buildPublisher(cfg config.Config, log *zap.Logger) domain.EventPublisher {
	if cfg.NATS.URL == "" {
		return events.NewLogPublisher(log)
	}
	pub, err := events.NewNATSPublisher(events.NATSConfig{
		URL:           cfg.NATS.URL,
		SubjectPrefix: cfg.NATS.SubjectPrefix,
		Name:          cfg.Tracing.ServiceName,
	}, log)
	if err != nil {
		log.Warn("nats unavailable, ledger events go to the log", zap.Error(err))
		return events.NewLogPublisher(log)
	}
	a.closers = append(a.closers, pub.Close)
	return pub
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
