package controller

import (
	"time"

	appPayment "github.com/cassiomorais/paycore/internal/application/payment"
	appWebhook "github.com/cassiomorais/paycore/internal/application/webhook"
	"github.com/cassiomorais/paycore/internal/infrastructure/config"
	"github.com/cassiomorais/paycore/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/paycore/internal/middleware"
	"github.com/cassiomorais/paycore/internal/repository/postgres"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RouterDeps struct {
	Pool            *pgxpool.Pool
	RedisClient     *redis.Client
	CreateUC        *appPayment.CreatePaymentUseCase
	ProcessUC       *appPayment.ProcessPaymentUseCase
	RefundUC        *appPayment.RefundPaymentUseCase
	Store           *appPayment.Store
	Intake          *appWebhook.Intake
	IdempotencyRepo *postgres.IdempotencyRepository
	Metrics         *observability.Metrics
	Logger          zerolog.Logger
	ServerConfig    config.ServerConfig
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.ServerConfig.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.ServerConfig.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	paymentH := NewPaymentController(deps.CreateUC, deps.ProcessUC, deps.RefundUC, deps.Store, deps.Metrics, deps.Logger)
	webhookH := NewWebhookController(deps.Intake, deps.Metrics, deps.Logger)

	r.Get("/health", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		idempotencyMW := customMW.Idempotency(deps.IdempotencyRepo)

		r.With(idempotencyMW).Post("/payments", paymentH.Create)
		r.Get("/payments/{id}", paymentH.Get)
		r.Get("/payments", paymentH.List)
		r.Get("/payments/{id}/events", paymentH.Events)
		r.Post("/payments/{id}/refund", paymentH.Refund)
	})

	// Gateways retry aggressively on failure; the rate limit keeps a
	// broken provider from saturating the intake path.
	r.Route("/webhooks", func(r chi.Router) {
		r.Use(customMW.RateLimit(deps.ServerConfig.WebhookRPM))
		r.Post("/{gateway}", webhookH.Receive)
	})

	return r
}
