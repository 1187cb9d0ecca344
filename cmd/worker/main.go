package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	appPayment "github.com/cassiomorais/paycore/internal/application/payment"
	"github.com/cassiomorais/paycore/internal/application/reconcile"
	"github.com/cassiomorais/paycore/internal/bootstrap"
	domainOutbox "github.com/cassiomorais/paycore/internal/domain/outbox"
	"github.com/cassiomorais/paycore/internal/gateway"
	"github.com/cassiomorais/paycore/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/paycore/internal/infrastructure/redis"
	"github.com/cassiomorais/paycore/internal/outbox"
	"github.com/cassiomorais/paycore/internal/repository/postgres"
	"github.com/cassiomorais/paycore/pkg/retry"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const janitorInterval = 1 * time.Hour

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "paycore-worker", "paycore_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	paymentRepo := postgres.NewPaymentRepository(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Application services ---
	store := appPayment.NewStore(paymentRepo, outboxRepo, txManager)
	factory := gateway.NewFactory()
	invoker := gateway.NewInvoker(factory, retry.Config{
		MaxAttempts:  app.Config.Gateway.MaxAttempts,
		InitialDelay: app.Config.Gateway.InitialDelay,
		MaxDelay:     app.Config.Gateway.MaxDelay,
	}, app.Logger)

	// --- Outbox relay ---
	streamProducer := infraRedis.NewStreamProducer(app.Redis)
	relay := outbox.NewRelay(outboxRepo, streamProducer, outbox.Config{
		PollInterval: app.Config.Outbox.PollInterval,
		BatchSize:    app.Config.Outbox.BatchSize,
		BaseDelay:    app.Config.Outbox.BaseDelay,
		CapDelay:     app.Config.Outbox.CapDelay,
	}, app.Logger, app.Metrics)

	// --- Reconciliation sweeper ---
	lockTTL := app.Config.Reconcile.LockTTL
	newLock := func() reconcile.Lock {
		return infraRedis.NewDistributedLock(app.Redis, "reconcile:sweep", lockTTL)
	}
	sweeper := reconcile.NewSweeper(store, invoker, newLock, reconcile.Config{
		Interval:  app.Config.Reconcile.Interval,
		Cutoff:    app.Config.Reconcile.Cutoff,
		BatchSize: app.Config.Reconcile.BatchSize,
	}, app.Logger, app.Metrics)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return relay.Run(gCtx)
	})

	g.Go(func() error {
		return sweeper.Run(gCtx)
	})

	// Outbox janitor: prunes processed rows past retention and keeps the
	// backlog gauges fresh for alerting.
	g.Go(func() error {
		return runOutboxJanitor(gCtx, app.Logger, outboxRepo, app.Config.Outbox.Retention, app.Metrics)
	})

	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

func runOutboxJanitor(
	ctx context.Context,
	logger zerolog.Logger,
	outboxRepo domainOutbox.Repository,
	retention time.Duration,
	metrics *observability.Metrics,
) error {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-retention)
		deleted, err := outboxRepo.DeleteProcessedBefore(ctx, cutoff)
		if err != nil {
			logger.Error().Err(err).Msg("Outbox janitor prune failed")
		} else if deleted > 0 {
			logger.Info().Int64("deleted", deleted).Msg("Pruned processed outbox records")
		}

		parked, err := outboxRepo.CountPermanentlyFailed(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Outbox janitor count failed")
			continue
		}
		if parked > 0 {
			logger.Warn().Int64("count", parked).Msg("Outbox records parked as permanently failed")
		}

		backlog, err := outboxRepo.CountUnprocessed(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Outbox janitor backlog count failed")
			continue
		}
		metrics.OutboxBacklog.Set(float64(backlog))
	}
}
