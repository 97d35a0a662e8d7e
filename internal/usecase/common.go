package usecase

import (
	"context"
	"errors"
	"time"

	"reconledger/internal/domain"

	"go.uber.org/zap"
)

// deps holds the collaborators every ledger shares.
type deps struct {
	log       *zap.Logger
	publisher domain.EventPublisher
	metrics   Metrics
	now       func() time.Time
}

func defaultDeps() deps {
	return deps{
		log:       zap.NewNop(),
		publisher: nopPublisher{},
		metrics:   nopMetrics{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type Option func(*deps)

func WithLogger(log *zap.Logger) Option {
	return func(d *deps) {
		if log != nil {
			d.log = log
		}
	}
}

func WithPublisher(p domain.EventPublisher) Option {
	return func(d *deps) {
		if p != nil {
			d.publisher = p
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(d *deps) {
		if m != nil {
			d.metrics = m
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *deps) {
		if now != nil {
			d.now = now
		}
	}
}

func applyOptions(opts []Option) deps {
	d := defaultDeps()
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// publish sends a post-commit event. The ledger write has already
// succeeded, so failures are only logged.
func (d deps) publish(ctx context.Context, event domain.LedgerEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = d.now()
	}
	if err := d.publisher.Publish(ctx, event); err != nil {
		d.log.Warn("publish ledger event",
			zap.String("type", string(event.Type)),
			zap.String("key", event.Key),
			zap.Error(err),
		)
	}
}

// observe records the outcome of op; call as defer d.observe(ledger, op, time.Now(), &err).
func (d deps) observe(ledger, op string, start time.Time, errp *error) {
	d.metrics.ObserveOperation(ledger, op, ResultCode(*errp), time.Since(start))
}

// ResultCode is the stable code for an operation outcome, shared by metrics
// and the HTTP error body.
func ResultCode(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, domain.ErrAlreadyVerified):
		return "ALREADY_VERIFIED"
	case errors.Is(err, domain.ErrConflict):
		return "CONFLICT"
	case errors.Is(err, domain.ErrValidation):
		return "VALIDATION_ERROR"
	default:
		return "INTERNAL"
	}
}
