package reconcile

import (
	"context"
	"testing"
	"time"

	appPayment "github.com/cassiomorais/paycore/internal/application/payment"
	domainErrors "github.com/cassiomorais/paycore/internal/domain/errors"
	"github.com/cassiomorais/paycore/internal/domain/payment"
	"github.com/cassiomorais/paycore/internal/gateway"
	"github.com/cassiomorais/paycore/internal/infrastructure/observability"
	"github.com/cassiomorais/paycore/internal/testutil"
	"github.com/cassiomorais/paycore/pkg/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sweeperFixture struct {
	sweeper     *Sweeper
	paymentRepo *testutil.MockPaymentRepository
	outboxRepo  *testutil.MockOutboxRepository
	client      *testutil.StubGatewayClient
}

func newSweeperFixture(cutoff time.Duration) *sweeperFixture {
	paymentRepo := testutil.NewMockPaymentRepository()
	outboxRepo := testutil.NewMockOutboxRepository()
	store := appPayment.NewStore(paymentRepo, outboxRepo, testutil.NewMockTransactionManager())

	client := &testutil.StubGatewayClient{GatewayName: "mockpay"}
	invoker := gateway.NewInvoker(gateway.NewFactory(client), retry.Config{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}, zerolog.Nop())

	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	sweeper := NewSweeper(store, invoker, func() Lock { return &testutil.MockLock{} }, Config{
		Interval:  time.Minute,
		Cutoff:    cutoff,
		BatchSize: 50,
	}, zerolog.Nop(), metrics)

	return &sweeperFixture{sweeper: sweeper, paymentRepo: paymentRepo, outboxRepo: outboxRepo, client: client}
}

func stalePayment(f *sweeperFixture, transactionID string) *payment.Payment {
	p := testutil.NewProcessingPayment(payment.MethodMockPay, 1000, transactionID)
	testutil.StalePayment(p, time.Hour)
	f.paymentRepo.AddPayment(p)
	return p
}

func TestSweeper_CompletesStalePaymentVerifiedSuccessful(t *testing.T) {
	f := newSweeperFixture(15 * time.Minute)
	p := stalePayment(f, "tx-stale")

	require.NoError(t, f.sweeper.Sweep(context.Background(), time.Now()))

	stored := f.paymentRepo.StoredPayment(p.ID)
	assert.Equal(t, payment.StatusCompleted, stored.Status)
	assert.Equal(t, 1, f.client.VerifyCalls())

	records := f.outboxRepo.Records()
	require.Len(t, records, 1)
	assert.Equal(t, payment.EventTypeCompleted, records[0].EventType)
}

func TestSweeper_FailsStalePaymentVerifiedNegative(t *testing.T) {
	f := newSweeperFixture(15 * time.Minute)
	f.client.VerifyPaymentFunc = func(ctx context.Context, transactionID string) (*gateway.Result, error) {
		return &gateway.Result{IsSuccess: false, ErrorCode: "NOT_FOUND", ErrorMessage: "no such transaction"}, nil
	}
	p := stalePayment(f, "tx-gone")

	require.NoError(t, f.sweeper.Sweep(context.Background(), time.Now()))

	stored := f.paymentRepo.StoredPayment(p.ID)
	assert.Equal(t, payment.StatusFailed, stored.Status)
	assert.Equal(t, gateway.CodeReconcileFailed, *stored.ErrorCode)
}

func TestSweeper_FailsStalePaymentWithoutTransactionID(t *testing.T) {
	f := newSweeperFixture(15 * time.Minute)
	p := testutil.NewTestPayment(payment.MethodMockPay, 1000, "USD")
	testutil.StalePayment(p, time.Hour)
	f.paymentRepo.AddPayment(p)

	require.NoError(t, f.sweeper.Sweep(context.Background(), time.Now()))

	stored := f.paymentRepo.StoredPayment(p.ID)
	assert.Equal(t, payment.StatusFailed, stored.Status)
	assert.Equal(t, gateway.CodeReconcileFailed, *stored.ErrorCode)
	// The gateway was never involved, so nothing to verify.
	assert.Equal(t, 0, f.client.VerifyCalls())
}

func TestSweeper_DefersWhenVerifyUnreachable(t *testing.T) {
	f := newSweeperFixture(15 * time.Minute)
	f.client.VerifyPaymentFunc = func(ctx context.Context, transactionID string) (*gateway.Result, error) {
		return nil, domainErrors.ErrGatewayTimeout
	}
	p := stalePayment(f, "tx-unreachable")

	require.NoError(t, f.sweeper.Sweep(context.Background(), time.Now()))

	// An unreachable gateway is not a verdict; the ledger waits for the
	// next sweep.
	stored := f.paymentRepo.StoredPayment(p.ID)
	assert.Equal(t, payment.StatusProcessing, stored.Status)
	assert.Empty(t, f.outboxRepo.Records())
}

func TestSweeper_IgnoresFreshPayments(t *testing.T) {
	f := newSweeperFixture(15 * time.Minute)
	p := testutil.NewProcessingPayment(payment.MethodMockPay, 1000, "tx-fresh")
	f.paymentRepo.AddPayment(p)

	require.NoError(t, f.sweeper.Sweep(context.Background(), time.Now()))

	assert.Equal(t, 0, f.client.VerifyCalls())
	assert.Equal(t, payment.StatusProcessing, f.paymentRepo.StoredPayment(p.ID).Status)
}

func TestSweeper_IgnoresTerminalPayments(t *testing.T) {
	f := newSweeperFixture(15 * time.Minute)
	p := testutil.NewCompletedPayment(payment.MethodMockPay, 1000, "tx-done")
	testutil.StalePayment(p, time.Hour)
	f.paymentRepo.AddPayment(p)

	require.NoError(t, f.sweeper.Sweep(context.Background(), time.Now()))

	assert.Equal(t, 0, f.client.VerifyCalls())
}

func TestSweeper_LostRaceIsBenign(t *testing.T) {
	f := newSweeperFixture(15 * time.Minute)
	p := stalePayment(f, "tx-race")

	// A webhook lands between the sweeper's load and its save: the stored
	// version moves on, so the sweeper's optimistic write must lose.
	f.paymentRepo.ListStaleFunc = func(ctx context.Context, olderThan time.Time, limit int) ([]*payment.Payment, error) {
		stale, err := f.paymentRepo.GetByID(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		concurrent, err := f.paymentRepo.GetByID(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if err := concurrent.Complete("tx-webhook", "", "webhook:mockpay"); err != nil {
			return nil, err
		}
		if err := f.paymentRepo.Update(ctx, concurrent); err != nil {
			return nil, err
		}
		return []*payment.Payment{stale}, nil
	}

	require.NoError(t, f.sweeper.Sweep(context.Background(), time.Now()))

	// The webhook's write wins; the sweeper absorbed the conflict.
	stored := f.paymentRepo.StoredPayment(p.ID)
	assert.Equal(t, payment.StatusCompleted, stored.Status)
	require.NotNil(t, stored.TransactionID)
	assert.Equal(t, "tx-webhook", *stored.TransactionID)
}

func TestSweeper_SkipsTickWhenLockHeld(t *testing.T) {
	paymentRepo := testutil.NewMockPaymentRepository()
	store := appPayment.NewStore(paymentRepo, testutil.NewMockOutboxRepository(), testutil.NewMockTransactionManager())
	client := &testutil.StubGatewayClient{GatewayName: "mockpay"}
	invoker := gateway.NewInvoker(gateway.NewFactory(client), retry.DefaultConfig(), zerolog.Nop())

	deniedLock := &testutil.MockLock{AcquireFunc: func(ctx context.Context) (bool, error) { return false, nil }}
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	sweeper := NewSweeper(store, invoker, func() Lock { return deniedLock }, Config{
		Interval:  5 * time.Millisecond,
		Cutoff:    time.Minute,
		BatchSize: 10,
	}, zerolog.Nop(), metrics)

	p := testutil.NewProcessingPayment(payment.MethodMockPay, 1000, "tx-locked")
	testutil.StalePayment(p, time.Hour)
	paymentRepo.AddPayment(p)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.NoError(t, sweeper.Run(ctx))

	// Without the lock no sweep ran.
	assert.Equal(t, 0, client.VerifyCalls())
	assert.Equal(t, payment.StatusProcessing, paymentRepo.StoredPayment(p.ID).Status)
}
