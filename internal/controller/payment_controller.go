package controller

import (
	"context"
	"net/http"
	"strconv"
	"time"

	appPayment "github.com/cassiomorais/paycore/internal/application/payment"
	domainErrors "github.com/cassiomorais/paycore/internal/domain/errors"
	"github.com/cassiomorais/paycore/internal/domain/payment"
	"github.com/cassiomorais/paycore/internal/infrastructure/observability"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const processTimeout = 2 * time.Minute

// PaymentController handles payment HTTP endpoints.
type PaymentController struct {
	createUC  *appPayment.CreatePaymentUseCase
	processUC *appPayment.ProcessPaymentUseCase
	refundUC  *appPayment.RefundPaymentUseCase
	store     *appPayment.Store
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// NewPaymentController creates a new PaymentController.
func NewPaymentController(
	createUC *appPayment.CreatePaymentUseCase,
	processUC *appPayment.ProcessPaymentUseCase,
	refundUC *appPayment.RefundPaymentUseCase,
	store *appPayment.Store,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *PaymentController {
	return &PaymentController{
		createUC:  createUC,
		processUC: processUC,
		refundUC:  refundUC,
		store:     store,
		metrics:   metrics,
		logger:    logger,
	}
}

// Create handles POST /api/v1/payments. The payment is persisted as
// pending and handed to the gateway asynchronously: the client polls
// (or listens on the event stream) for the final verdict.
func (c *PaymentController) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		writeError(w, domainErrors.NewValidationError("order_id", "must be a valid UUID"))
		return
	}

	start := time.Now()
	p, err := c.createUC.Execute(r.Context(), appPayment.CreatePaymentRequest{
		OrderID:     orderID,
		AmountCents: floatToCents(req.Amount),
		Currency:    req.Currency,
		Method:      payment.Method(req.Method),
		Actor:       "api",
	})
	if err != nil {
		c.metrics.PaymentErrors.WithLabelValues(req.Method, "create").Inc()
		writeError(w, err)
		return
	}

	c.metrics.PaymentsTotal.WithLabelValues(req.Method, string(p.Status)).Inc()
	c.metrics.PaymentDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())

	go c.processAsync(p.ID, string(p.Method))

	writeJSON(w, http.StatusAccepted, FromPayment(p))
}

func (c *PaymentController) processAsync(paymentID uuid.UUID, method string) {
	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	if err := c.processUC.Execute(ctx, paymentID, "api"); err != nil {
		c.metrics.PaymentErrors.WithLabelValues(method, "process").Inc()
		c.logger.Error().Err(err).
			Str("payment_id", paymentID.String()).
			Msg("async payment processing failed")
	}
}

// Get handles GET /api/v1/payments/{id}.
func (c *PaymentController) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, domainErrors.NewValidationError("id", "must be a valid UUID"))
		return
	}

	p, err := c.store.Payments().GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromPayment(p))
}

// List handles GET /api/v1/payments.
func (c *PaymentController) List(w http.ResponseWriter, r *http.Request) {
	filter := payment.ListFilter{
		Limit:  20,
		Offset: 0,
	}

	q := r.URL.Query()
	if v := q.Get("order_id"); v != "" {
		orderID, err := uuid.Parse(v)
		if err != nil {
			writeError(w, domainErrors.NewValidationError("order_id", "must be a valid UUID"))
			return
		}
		filter.OrderID = &orderID
	}
	if v := q.Get("status"); v != "" {
		status := payment.Status(v)
		filter.Status = &status
	}
	if v := q.Get("method"); v != "" {
		method := payment.Method(v)
		filter.Method = &method
	}
	if v := q.Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 && limit <= 100 {
			filter.Limit = limit
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	payments, err := c.store.Payments().List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	responses := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		responses = append(responses, FromPayment(p))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"payments": responses,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

// Refund handles POST /api/v1/payments/{id}/refund.
func (c *PaymentController) Refund(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, domainErrors.NewValidationError("id", "must be a valid UUID"))
		return
	}

	var req RefundPaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, err := c.refundUC.Execute(r.Context(), id, req.Reason, "api")
	if err != nil {
		c.metrics.PaymentErrors.WithLabelValues("", "refund").Inc()
		writeError(w, err)
		return
	}

	c.metrics.PaymentsTotal.WithLabelValues(string(p.Method), string(p.Status)).Inc()
	writeJSON(w, http.StatusOK, FromPayment(p))
}

// Events handles GET /api/v1/payments/{id}/events, returning the audit
// trail for a payment.
func (c *PaymentController) Events(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, domainErrors.NewValidationError("id", "must be a valid UUID"))
		return
	}

	if _, err := c.store.Payments().GetByID(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	events, err := c.store.Payments().GetAuditEvents(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	type eventResponse struct {
		ID        string         `json:"id"`
		EventType string         `json:"event_type"`
		EventData map[string]any `json:"event_data"`
		CreatedAt time.Time      `json:"created_at"`
	}
	responses := make([]eventResponse, 0, len(events))
	for _, ev := range events {
		responses = append(responses, eventResponse{
			ID:        ev.ID.String(),
			EventType: ev.EventType,
			EventData: ev.EventData,
			CreatedAt: ev.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": responses})
}
