package gateway

import (
	"context"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/paycore/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClient_ProcessPayment_Success(t *testing.T) {
	c := NewMockClient("mockpay", WithLatency(time.Millisecond))

	res, err := c.ProcessPayment(context.Background(), Request{
		PaymentID:   uuid.New(),
		AmountCents: 1000,
		Currency:    "USD",
		Method:      "mockpay",
	})

	require.NoError(t, err)
	assert.True(t, res.IsSuccess)
	assert.NotEmpty(t, res.TransactionID)
	assert.Empty(t, res.RedirectURL)
}

func TestMockClient_ProcessPayment_AlwaysDeclines(t *testing.T) {
	c := NewMockClient("mockpay", WithLatency(time.Millisecond), WithFailureRate(1.0))

	res, err := c.ProcessPayment(context.Background(), Request{PaymentID: uuid.New()})

	require.NoError(t, err)
	assert.False(t, res.IsSuccess)
	assert.Equal(t, "CARD_DECLINED", res.ErrorCode)
}

func TestMockClient_ProcessPayment_TimeoutRate(t *testing.T) {
	c := NewMockClient("mockpay", WithLatency(time.Millisecond), WithTimeoutRate(1.0))

	_, err := c.ProcessPayment(context.Background(), Request{PaymentID: uuid.New()})

	assert.ErrorIs(t, err, domainErrors.ErrGatewayTimeout)
}

func TestMockClient_RedirectFlow(t *testing.T) {
	c := NewMockClient("stripepay", WithLatency(time.Millisecond), WithRedirectBase("https://pay.example.com"))

	res, err := c.ProcessPayment(context.Background(), Request{PaymentID: uuid.New()})

	require.NoError(t, err)
	assert.True(t, res.IsSuccess)
	assert.Contains(t, res.RedirectURL, "https://pay.example.com/checkout/")
}

func TestMockClient_ContextCancellation(t *testing.T) {
	c := NewMockClient("mockpay", WithLatency(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := c.ProcessPayment(ctx, Request{PaymentID: uuid.New()})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMockClient_VerifyAndRefund(t *testing.T) {
	c := NewMockClient("mockpay", WithLatency(time.Millisecond))

	verify, err := c.VerifyPayment(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.True(t, verify.IsSuccess)
	assert.Equal(t, "tx-1", verify.TransactionID)

	refund, err := c.RefundPayment(context.Background(), "tx-1", 1000)
	require.NoError(t, err)
	assert.True(t, refund.IsSuccess)
	assert.NotEmpty(t, refund.TransactionID)
}
