package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	appWebhook "github.com/cassiomorais/paycore/internal/application/webhook"
	domainErrors "github.com/cassiomorais/paycore/internal/domain/errors"
	"github.com/cassiomorais/paycore/internal/infrastructure/observability"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const maxWebhookBodySize = 256 << 10

// WebhookController receives gateway callbacks on POST /webhooks/{gateway}.
type WebhookController struct {
	intake  *appWebhook.Intake
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewWebhookController creates a new WebhookController.
func NewWebhookController(intake *appWebhook.Intake, metrics *observability.Metrics, logger zerolog.Logger) *WebhookController {
	return &WebhookController{intake: intake, metrics: metrics, logger: logger}
}

// Receive handles one callback. Both supported gateways post a flat JSON
// object of string fields; redirect-flow callbacks may instead carry the
// fields as query parameters with an empty body.
func (c *WebhookController) Receive(w http.ResponseWriter, r *http.Request) {
	gatewayName := chi.URLParam(r, "gateway")

	delivery, err := c.decodeDelivery(r, gatewayName)
	if err != nil {
		c.metrics.WebhookDeliveries.WithLabelValues(gatewayName, "malformed").Inc()
		writeJSON(w, http.StatusBadRequest, WebhookAckResponse{Code: "malformed", Message: err.Error()})
		return
	}

	outcome, err := c.intake.Handle(r.Context(), delivery)
	switch {
	case errors.Is(err, domainErrors.ErrInvalidSignature):
		c.metrics.WebhookDeliveries.WithLabelValues(gatewayName, "invalid_signature").Inc()
		writeJSON(w, http.StatusBadRequest, WebhookAckResponse{Code: "invalid_signature", Message: "signature verification failed"})
	case errors.Is(err, domainErrors.ErrGatewayNotFound):
		c.metrics.WebhookDeliveries.WithLabelValues(gatewayName, "unknown_gateway").Inc()
		writeJSON(w, http.StatusNotFound, WebhookAckResponse{Code: "unknown_gateway", Message: "no such gateway"})
	case err != nil:
		// Infrastructure failure: answer 500 so the provider retries the
		// delivery. Dedup on (gateway, request_id) makes the retry safe.
		c.metrics.WebhookDeliveries.WithLabelValues(gatewayName, "error").Inc()
		c.logger.Error().Err(err).
			Str("gateway", gatewayName).
			Str("request_id", delivery.RequestID).
			Msg("webhook intake failed")
		writeJSON(w, http.StatusInternalServerError, WebhookAckResponse{Code: "error", Message: "internal error"})
	case outcome.Duplicate:
		c.metrics.WebhookDeliveries.WithLabelValues(gatewayName, "duplicate").Inc()
		writeJSON(w, http.StatusOK, WebhookAckResponse{Code: "duplicate", Message: "already processed"})
	default:
		result := "absorbed"
		if outcome.Applied {
			result = "applied"
		}
		c.metrics.WebhookDeliveries.WithLabelValues(gatewayName, result).Inc()
		writeJSON(w, http.StatusOK, WebhookAckResponse{Code: "ok", Message: "delivery accepted"})
	}
}

func (c *WebhookController) decodeDelivery(r *http.Request, gatewayName string) (appWebhook.Delivery, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		return appWebhook.Delivery{}, fmt.Errorf("read body: %w", err)
	}

	fields := make(map[string]string)
	raw := string(body)

	if len(body) > 0 {
		var decoded map[string]any
		if err := json.Unmarshal(body, &decoded); err != nil {
			return appWebhook.Delivery{}, fmt.Errorf("invalid JSON payload: %w", err)
		}
		for k, v := range decoded {
			fields[k] = fmt.Sprint(v)
		}
	} else {
		// Redirect-flow callback: fields ride on the query string.
		for k, vs := range r.URL.Query() {
			if len(vs) > 0 {
				fields[k] = vs[0]
			}
		}
		raw = r.URL.RawQuery
	}

	requestID := fields[appWebhook.FieldRequestID]
	if requestID == "" {
		return appWebhook.Delivery{}, fmt.Errorf("missing %s field", appWebhook.FieldRequestID)
	}

	return appWebhook.Delivery{
		Gateway:    gatewayName,
		RequestID:  requestID,
		RawPayload: raw,
		Fields:     fields,
	}, nil
}
