package reconcile

import (
	"context"
	"errors"
	"time"

	appPayment "github.com/cassiomorais/paycore/internal/application/payment"
	domainErrors "github.com/cassiomorais/paycore/internal/domain/errors"
	"github.com/cassiomorais/paycore/internal/domain/payment"
	"github.com/cassiomorais/paycore/internal/gateway"
	"github.com/cassiomorais/paycore/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

const sweeperActor = "reconciler"

// Lock serializes sweeps across instances. One sweeper per tick is
// enough; the mutation path stays safe either way.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LockFactory creates a fresh lock per tick.
type LockFactory func() Lock

// Config holds the sweeper's cadence and staleness cutoff.
type Config struct {
	Interval  time.Duration
	Cutoff    time.Duration // how long a payment may sit mid-flight before auditing
	BatchSize int
}

// Sweeper periodically re-queries the gateway for payments stuck pending
// or processing, repairing state the webhook path failed to deliver.
type Sweeper struct {
	store   *appPayment.Store
	invoker *gateway.Invoker
	newLock LockFactory
	cfg     Config
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewSweeper(store *appPayment.Store, invoker *gateway.Invoker, newLock LockFactory, cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Cutoff <= 0 {
		cfg.Cutoff = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Sweeper{store: store, invoker: invoker, newLock: newLock, cfg: cfg, logger: logger, metrics: metrics}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		lock := s.newLock()
		acquired, err := lock.Acquire(ctx)
		if err != nil || !acquired {
			s.logger.Debug().Msg("another instance holds the sweep lock, skipping tick")
			continue
		}

		if err := s.Sweep(ctx, time.Now()); err != nil {
			s.logger.Error().Err(err).Msg("reconciliation sweep failed")
		}
		lock.Release(ctx)
	}
}

// Sweep audits one batch of stale ledgers against gateway truth.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) error {
	s.metrics.ReconcileSweeps.Inc()

	stale, err := s.store.Payments().ListStale(ctx, now.Add(-s.cfg.Cutoff), s.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, p := range stale {
		if err := s.reconcile(ctx, p); err != nil {
			s.logger.Error().Err(err).
				Str("payment_id", p.ID.String()).
				Msg("failed to reconcile payment")
		}
	}
	return nil
}

func (s *Sweeper) reconcile(ctx context.Context, p *payment.Payment) error {
	logger := s.logger.With().Str("payment_id", p.ID.String()).Logger()

	if p.TransactionID == nil {
		// The gateway was never reached; there is nothing to verify.
		if err := p.MarkAsFailed(gateway.CodeReconcileFailed, "stale payment with no gateway reference", "", sweeperActor); err != nil {
			return s.ignoreRace(err, logger)
		}
		if err := s.store.Save(ctx, p); err != nil {
			return s.ignoreRace(err, logger)
		}
		s.metrics.ReconcileRepairs.WithLabelValues("failed").Inc()
		logger.Info().Msg("stale payment without transaction id marked failed")
		return nil
	}

	result, err := s.invoker.VerifyPayment(ctx, string(p.Method), *p.TransactionID)
	if err != nil {
		return err
	}
	if result.ErrorCode == gateway.CodeSystemError {
		// Could not reach the gateway, not a verified negative. Leave the
		// ledger for the next sweep.
		logger.Warn().Str("error", result.ErrorMessage).Msg("verify call failed, deferring to next sweep")
		return nil
	}

	if result.IsSuccess {
		// Gateway truth overrides the local stale assumption.
		if err := p.Complete(result.TransactionID, result.RawResponse, sweeperActor); err != nil {
			return s.ignoreRace(err, logger)
		}
		if err := s.store.Save(ctx, p); err != nil {
			return s.ignoreRace(err, logger)
		}
		s.metrics.ReconcileRepairs.WithLabelValues("completed").Inc()
		logger.Info().Str("transaction_id", result.TransactionID).Msg("stale payment reconciled to completed")
		return nil
	}

	if err := p.MarkAsFailed(gateway.CodeReconcileFailed, result.ErrorMessage, result.RawResponse, sweeperActor); err != nil {
		return s.ignoreRace(err, logger)
	}
	if err := s.store.Save(ctx, p); err != nil {
		return s.ignoreRace(err, logger)
	}
	s.metrics.ReconcileRepairs.WithLabelValues("failed").Inc()
	logger.Info().Msg("stale payment reconciled to failed")
	return nil
}

// ignoreRace absorbs the benign outcomes of racing a concurrent webhook:
// the other writer already moved the ledger to a terminal state, or our
// load went stale before the save. The next sweep observes the result.
func (s *Sweeper) ignoreRace(err error, logger zerolog.Logger) error {
	if errors.Is(err, domainErrors.ErrInvalidStateTransition) || errors.Is(err, domainErrors.ErrOptimisticLockFailed) {
		logger.Debug().Err(err).Msg("lost reconcile race to a concurrent writer")
		return nil
	}
	return err
}
