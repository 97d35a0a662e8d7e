package events

import (
	"context"

	"reconledger/internal/domain"

	"go.uber.org/zap"
)

// LogPublisher writes events to the service log when no broker is
// configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, event domain.LedgerEvent) error {
	p.log.Info("ledger event",
		zap.String("type", string(event.Type)),
		zap.String("key", event.Key),
		zap.Bool("flagged", event.Flagged),
		zap.Time("occurred_at", event.OccurredAt),
	)
	return nil
}
