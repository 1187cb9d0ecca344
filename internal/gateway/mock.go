package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	domainErrors "github.com/cassiomorais/paycore/internal/domain/errors"
	"github.com/google/uuid"
)

// MockClient simulates an external gateway for tests and local runs.
type MockClient struct {
	name         string
	failureRate  float64 // 0.0 to 1.0, business rejections
	timeoutRate  float64 // 0.0 to 1.0, transport failures
	latency      time.Duration
	redirectBase string
}

type MockClientOption func(*MockClient)

func WithFailureRate(rate float64) MockClientOption {
	return func(c *MockClient) { c.failureRate = rate }
}

func WithTimeoutRate(rate float64) MockClientOption {
	return func(c *MockClient) { c.timeoutRate = rate }
}

func WithLatency(d time.Duration) MockClientOption {
	return func(c *MockClient) { c.latency = d }
}

// WithRedirectBase makes process results carry a redirect URL, exercising
// the redirect-then-callback flow instead of synchronous completion.
func WithRedirectBase(base string) MockClientOption {
	return func(c *MockClient) { c.redirectBase = base }
}

func NewMockClient(name string, opts ...MockClientOption) *MockClient {
	c := &MockClient{
		name:    name,
		latency: 100 * time.Millisecond,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *MockClient) Name() string { return c.name }

func (c *MockClient) ProcessPayment(ctx context.Context, req Request) (*Result, error) {
	if err := c.simulate(ctx); err != nil {
		return nil, err
	}

	if rand.Float64() < c.failureRate {
		return &Result{
			IsSuccess:    false,
			ErrorCode:    "CARD_DECLINED",
			ErrorMessage: fmt.Sprintf("%s: declined payment %s", c.name, req.PaymentID),
			RawResponse:  `{"status":"declined"}`,
		}, nil
	}

	txID := fmt.Sprintf("%s_txn_%s", c.name, uuid.New().String()[:8])
	res := &Result{
		IsSuccess:     true,
		TransactionID: txID,
		RawResponse:   fmt.Sprintf(`{"status":"ok","transaction_id":%q}`, txID),
	}
	if c.redirectBase != "" {
		res.RedirectURL = fmt.Sprintf("%s/checkout/%s", c.redirectBase, txID)
	}
	return res, nil
}

func (c *MockClient) VerifyPayment(ctx context.Context, transactionID string) (*Result, error) {
	if err := c.simulate(ctx); err != nil {
		return nil, err
	}

	if rand.Float64() < c.failureRate {
		return &Result{
			IsSuccess:    false,
			ErrorCode:    "NOT_FOUND",
			ErrorMessage: fmt.Sprintf("%s: no transaction %s", c.name, transactionID),
			RawResponse:  `{"status":"not_found"}`,
		}, nil
	}

	return &Result{
		IsSuccess:     true,
		TransactionID: transactionID,
		RawResponse:   fmt.Sprintf(`{"status":"paid","transaction_id":%q}`, transactionID),
	}, nil
}

func (c *MockClient) RefundPayment(ctx context.Context, transactionID string, amountCents int64) (*Result, error) {
	if err := c.simulate(ctx); err != nil {
		return nil, err
	}

	if rand.Float64() < c.failureRate {
		return &Result{
			IsSuccess:    false,
			ErrorCode:    "REFUND_REJECTED",
			ErrorMessage: fmt.Sprintf("%s: refund rejected for %s", c.name, transactionID),
			RawResponse:  `{"status":"refund_rejected"}`,
		}, nil
	}

	return &Result{
		IsSuccess:     true,
		TransactionID: fmt.Sprintf("%s_refund_%s", c.name, uuid.New().String()[:8]),
		RawResponse:   `{"status":"refunded"}`,
	}, nil
}

func (c *MockClient) simulate(ctx context.Context) error {
	select {
	case <-time.After(c.latency):
	case <-ctx.Done():
		return ctx.Err()
	}
	if rand.Float64() < c.timeoutRate {
		return domainErrors.ErrGatewayTimeout
	}
	return nil
}
