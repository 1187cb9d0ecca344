package controller

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appPayment "github.com/cassiomorais/paycore/internal/application/payment"
	"github.com/cassiomorais/paycore/internal/domain/payment"
	"github.com/cassiomorais/paycore/internal/gateway"
	"github.com/cassiomorais/paycore/internal/infrastructure/observability"
	"github.com/cassiomorais/paycore/internal/testutil"
	"github.com/cassiomorais/paycore/pkg/retry"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type paymentTestEnv struct {
	router      *chi.Mux
	paymentRepo *testutil.MockPaymentRepository
}

func newPaymentTestEnv() *paymentTestEnv {
	paymentRepo := testutil.NewMockPaymentRepository()
	store := appPayment.NewStore(paymentRepo, testutil.NewMockOutboxRepository(), testutil.NewMockTransactionManager())

	client := &testutil.StubGatewayClient{GatewayName: "mockpay"}
	invoker := gateway.NewInvoker(gateway.NewFactory(client), retry.Config{
		MaxAttempts:  1,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}, zerolog.Nop())

	h := NewPaymentController(
		appPayment.NewCreatePaymentUseCase(store),
		appPayment.NewProcessPaymentUseCase(store, invoker, zerolog.Nop()),
		appPayment.NewRefundPaymentUseCase(store, invoker),
		store,
		observability.NewMetrics("test", prometheus.NewRegistry()),
		zerolog.Nop(),
	)

	r := chi.NewRouter()
	r.Post("/api/v1/payments", h.Create)
	r.Get("/api/v1/payments", h.List)
	r.Get("/api/v1/payments/{id}", h.Get)
	r.Get("/api/v1/payments/{id}/events", h.Events)
	r.Post("/api/v1/payments/{id}/refund", h.Refund)
	return &paymentTestEnv{router: r, paymentRepo: paymentRepo}
}

func (env *paymentTestEnv) do(method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestCreatePayment_Accepted(t *testing.T) {
	env := newPaymentTestEnv()

	w := env.do(http.MethodPost, "/api/v1/payments", CreatePaymentRequest{
		OrderID:  uuid.New().String(),
		Amount:   49.99,
		Currency: "USD",
		Method:   "mockpay",
	})

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp PaymentResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "pending", resp.Status)
	assert.InDelta(t, 49.99, resp.Amount, 0.001)

	id, err := uuid.Parse(resp.ID)
	require.NoError(t, err)
	require.NotNil(t, env.paymentRepo.StoredPayment(id))
}

func TestCreatePayment_ValidationFailure(t *testing.T) {
	env := newPaymentTestEnv()

	tests := []struct {
		name string
		req  CreatePaymentRequest
	}{
		{"missing order id", CreatePaymentRequest{Amount: 10, Currency: "USD", Method: "mockpay"}},
		{"zero amount", CreatePaymentRequest{OrderID: uuid.New().String(), Currency: "USD", Method: "mockpay"}},
		{"bad currency", CreatePaymentRequest{OrderID: uuid.New().String(), Amount: 10, Currency: "DOLLARS", Method: "mockpay"}},
		{"unknown method", CreatePaymentRequest{OrderID: uuid.New().String(), Amount: 10, Currency: "USD", Method: "cash"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/v1/payments", tt.req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "validation_error", decodeError(t, w).Code)
		})
	}
}

func TestCreatePayment_InvalidJSON(t *testing.T) {
	env := newPaymentTestEnv()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetPayment_InvalidUUID(t *testing.T) {
	env := newPaymentTestEnv()

	w := env.do(http.MethodGet, "/api/v1/payments/not-a-uuid", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", decodeError(t, w).Code)
}

func TestGetPayment_NotFound(t *testing.T) {
	env := newPaymentTestEnv()

	w := env.do(http.MethodGet, "/api/v1/payments/"+uuid.New().String(), nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeError(t, w).Code)
}

func TestGetPayment_Found(t *testing.T) {
	env := newPaymentTestEnv()
	p := testutil.NewCompletedPayment(payment.MethodMockPay, 2500, "tx-get")
	env.paymentRepo.AddPayment(p)

	w := env.do(http.MethodGet, "/api/v1/payments/"+p.ID.String(), nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp PaymentResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "completed", resp.Status)
	require.NotNil(t, resp.TransactionID)
	assert.Equal(t, "tx-get", *resp.TransactionID)
}

func TestListPayments_InvalidOrderID(t *testing.T) {
	env := newPaymentTestEnv()

	w := env.do(http.MethodGet, "/api/v1/payments?order_id=nope", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefundPayment_RequiresCompleted(t *testing.T) {
	env := newPaymentTestEnv()
	p := testutil.NewTestPayment(payment.MethodMockPay, 1000, "USD")
	env.paymentRepo.AddPayment(p)

	w := env.do(http.MethodPost, "/api/v1/payments/"+p.ID.String()+"/refund",
		RefundPaymentRequest{Reason: "customer request"})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, payment.StatusPending, env.paymentRepo.StoredPayment(p.ID).Status)
}

func TestRefundPayment_Success(t *testing.T) {
	env := newPaymentTestEnv()
	p := testutil.NewCompletedPayment(payment.MethodMockPay, 1000, "tx-refund")
	env.paymentRepo.AddPayment(p)

	w := env.do(http.MethodPost, "/api/v1/payments/"+p.ID.String()+"/refund",
		RefundPaymentRequest{Reason: "customer request"})

	require.Equal(t, http.StatusOK, w.Code)
	var resp PaymentResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "refunded", resp.Status)
}

func TestPaymentEvents_NotFound(t *testing.T) {
	env := newPaymentTestEnv()

	w := env.do(http.MethodGet, "/api/v1/payments/"+uuid.New().String()+"/events", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
