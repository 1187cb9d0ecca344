package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	appPayment "github.com/cassiomorais/paycore/internal/application/payment"
	appWebhook "github.com/cassiomorais/paycore/internal/application/webhook"
	"github.com/cassiomorais/paycore/internal/bootstrap"
	"github.com/cassiomorais/paycore/internal/controller"
	"github.com/cassiomorais/paycore/internal/gateway"
	"github.com/cassiomorais/paycore/internal/repository/postgres"
	"github.com/cassiomorais/paycore/pkg/retry"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "paycore-api", "paycore")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	paymentRepo := postgres.NewPaymentRepository(app.Pool)
	webhookRepo := postgres.NewWebhookRepository(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Application services ---
	store := appPayment.NewStore(paymentRepo, outboxRepo, txManager)
	factory := gateway.NewFactory()
	invoker := gateway.NewInvoker(factory, retry.Config{
		MaxAttempts:  app.Config.Gateway.MaxAttempts,
		InitialDelay: app.Config.Gateway.InitialDelay,
		MaxDelay:     app.Config.Gateway.MaxDelay,
	}, app.Logger)

	createUC := appPayment.NewCreatePaymentUseCase(store)
	processUC := appPayment.NewProcessPaymentUseCase(store, invoker, app.Logger)
	refundUC := appPayment.NewRefundPaymentUseCase(store, invoker)
	intake := appWebhook.NewIntake(webhookRepo, store, app.Config.Gateway.WebhookSecrets, app.Logger)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		Pool:            app.Pool,
		RedisClient:     app.Redis,
		CreateUC:        createUC,
		ProcessUC:       processUC,
		RefundUC:        refundUC,
		Store:           store,
		Intake:          intake,
		IdempotencyRepo: idempotencyRepo,
		Metrics:         app.Metrics,
		Logger:          app.Logger,
		ServerConfig:    app.Config.Server,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
