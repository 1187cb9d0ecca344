package gateway

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/paycore/internal/domain/errors"
	"github.com/cassiomorais/paycore/pkg/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient returns canned responses per call, counting invocations.
type scriptedClient struct {
	name  string
	calls atomic.Int64
	fn    func(call int64) (*Result, error)
}

func (c *scriptedClient) Name() string { return c.name }

func (c *scriptedClient) ProcessPayment(ctx context.Context, req Request) (*Result, error) {
	return c.fn(c.calls.Add(1))
}

func (c *scriptedClient) VerifyPayment(ctx context.Context, transactionID string) (*Result, error) {
	return c.fn(c.calls.Add(1))
}

func (c *scriptedClient) RefundPayment(ctx context.Context, transactionID string, amountCents int64) (*Result, error) {
	return c.fn(c.calls.Add(1))
}

func fastRetry(attempts uint) retry.Config {
	return retry.Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}
}

func testRequest() Request {
	return Request{
		PaymentID:   uuid.New(),
		OrderID:     uuid.New(),
		AmountCents: 1000,
		Currency:    "USD",
		Method:      "mockpay",
	}
}

func TestInvoker_RetriesTransportFailures(t *testing.T) {
	client := &scriptedClient{name: "mockpay", fn: func(call int64) (*Result, error) {
		if call < 3 {
			return nil, domainErrors.ErrGatewayTimeout
		}
		return &Result{IsSuccess: true, TransactionID: "tx-ok"}, nil
	}}
	invoker := NewInvoker(NewFactory(client), fastRetry(3), zerolog.Nop())

	result, err := invoker.ProcessPayment(context.Background(), testRequest())

	require.NoError(t, err)
	assert.True(t, result.IsSuccess)
	assert.Equal(t, "tx-ok", result.TransactionID)
	assert.Equal(t, int64(3), client.calls.Load())
}

func TestInvoker_BusinessRejectionNotRetried(t *testing.T) {
	client := &scriptedClient{name: "mockpay", fn: func(call int64) (*Result, error) {
		return &Result{IsSuccess: false, ErrorCode: "CARD_DECLINED", ErrorMessage: "declined"}, nil
	}}
	invoker := NewInvoker(NewFactory(client), fastRetry(3), zerolog.Nop())

	result, err := invoker.ProcessPayment(context.Background(), testRequest())

	require.NoError(t, err)
	assert.False(t, result.IsSuccess)
	assert.Equal(t, "CARD_DECLINED", result.ErrorCode)
	// The gateway answered; a rejection consumes exactly one attempt.
	assert.Equal(t, int64(1), client.calls.Load())
}

func TestInvoker_ExhaustionYieldsSystemError(t *testing.T) {
	client := &scriptedClient{name: "mockpay", fn: func(call int64) (*Result, error) {
		return nil, domainErrors.ErrGatewayTimeout
	}}
	invoker := NewInvoker(NewFactory(client), fastRetry(3), zerolog.Nop())

	result, err := invoker.ProcessPayment(context.Background(), testRequest())

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsSuccess)
	assert.Equal(t, CodeSystemError, result.ErrorCode)
	assert.Equal(t, int64(3), client.calls.Load())
}

func TestInvoker_UnknownGateway(t *testing.T) {
	client := &scriptedClient{name: "mockpay", fn: func(call int64) (*Result, error) {
		return &Result{IsSuccess: true}, nil
	}}
	invoker := NewInvoker(NewFactory(client), fastRetry(3), zerolog.Nop())

	req := testRequest()
	req.Method = "nosuchpay"
	_, err := invoker.ProcessPayment(context.Background(), req)

	assert.ErrorIs(t, err, domainErrors.ErrGatewayNotFound)
	assert.Equal(t, int64(0), client.calls.Load())
}

func TestInvoker_OpenBreakerShortCircuits(t *testing.T) {
	client := &scriptedClient{name: "mockpay", fn: func(call int64) (*Result, error) {
		return nil, domainErrors.ErrGatewayTimeout
	}}
	invoker := NewInvoker(NewFactory(client), fastRetry(1), zerolog.Nop())

	// Drive enough consecutive transport failures to trip the breaker.
	for i := 0; i < 12; i++ {
		result, err := invoker.ProcessPayment(context.Background(), testRequest())
		require.NoError(t, err)
		assert.Equal(t, CodeSystemError, result.ErrorCode)
	}

	callsAfterTrip := client.calls.Load()
	assert.Less(t, callsAfterTrip, int64(12), "breaker should short-circuit before the client")

	result, err := invoker.ProcessPayment(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, CodeSystemError, result.ErrorCode)
	assert.Equal(t, callsAfterTrip, client.calls.Load())
}

func TestInvoker_VerifyPayment(t *testing.T) {
	client := &scriptedClient{name: "stripepay", fn: func(call int64) (*Result, error) {
		return &Result{IsSuccess: true, TransactionID: "tx-9"}, nil
	}}
	invoker := NewInvoker(NewFactory(client), fastRetry(2), zerolog.Nop())

	result, err := invoker.VerifyPayment(context.Background(), "stripepay", "tx-9")

	require.NoError(t, err)
	assert.True(t, result.IsSuccess)
	assert.Equal(t, "tx-9", result.TransactionID)
}
