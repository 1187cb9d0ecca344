package webhook

import (
	"context"
	"testing"

	appPayment "github.com/cassiomorais/paycore/internal/application/payment"
	domainErrors "github.com/cassiomorais/paycore/internal/domain/errors"
	"github.com/cassiomorais/paycore/internal/domain/payment"
	"github.com/cassiomorais/paycore/internal/gateway"
	"github.com/cassiomorais/paycore/internal/testutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGateway = "mockpay"

var testSecrets = map[string]string{testGateway: "whsec_test"}

type intakeFixture struct {
	intake      *Intake
	receipts    *testutil.MockWebhookRepository
	paymentRepo *testutil.MockPaymentRepository
	outboxRepo  *testutil.MockOutboxRepository
}

func newIntakeFixture() *intakeFixture {
	receipts := testutil.NewMockWebhookRepository()
	paymentRepo := testutil.NewMockPaymentRepository()
	outboxRepo := testutil.NewMockOutboxRepository()
	store := appPayment.NewStore(paymentRepo, outboxRepo, testutil.NewMockTransactionManager())
	return &intakeFixture{
		intake:      NewIntake(receipts, store, testSecrets, zerolog.Nop()),
		receipts:    receipts,
		paymentRepo: paymentRepo,
		outboxRepo:  outboxRepo,
	}
}

// signedDelivery builds a delivery whose fields carry a valid signature.
func signedDelivery(t *testing.T, requestID string, fields map[string]string) Delivery {
	t.Helper()
	scheme, ok := gateway.SchemeFor(testGateway)
	require.True(t, ok)

	fields[FieldRequestID] = requestID
	fields[scheme.SignatureField()] = scheme.Sign(fields, []byte(testSecrets[testGateway]))

	return Delivery{
		Gateway:    testGateway,
		RequestID:  requestID,
		RawPayload: `{"request_id":"` + requestID + `"}`,
		Fields:     fields,
	}
}

func TestIntake_SuccessCallbackCompletesPayment(t *testing.T) {
	f := newIntakeFixture()
	p := testutil.NewProcessingPayment(payment.MethodMockPay, 1000, "tx-1")
	f.paymentRepo.AddPayment(p)

	d := signedDelivery(t, "req-1", map[string]string{
		FieldPaymentID:     p.ID.String(),
		FieldTransactionID: "tx-1",
		FieldStatus:        StatusSuccess,
	})

	outcome, err := f.intake.Handle(context.Background(), d)

	require.NoError(t, err)
	assert.True(t, outcome.Applied)
	assert.False(t, outcome.Duplicate)

	stored := f.paymentRepo.StoredPayment(p.ID)
	assert.Equal(t, payment.StatusCompleted, stored.Status)

	receipt, err := f.receipts.Get(context.Background(), testGateway, "req-1")
	require.NoError(t, err)
	assert.True(t, receipt.IsProcessed)

	records := f.outboxRepo.Records()
	require.Len(t, records, 1)
	assert.Equal(t, payment.EventTypeCompleted, records[0].EventType)
}

func TestIntake_FailureCallbackFailsPayment(t *testing.T) {
	f := newIntakeFixture()
	p := testutil.NewProcessingPayment(payment.MethodMockPay, 1000, "tx-2")
	f.paymentRepo.AddPayment(p)

	d := signedDelivery(t, "req-2", map[string]string{
		FieldPaymentID:    p.ID.String(),
		FieldStatus:       "failed",
		FieldErrorCode:    "CARD_DECLINED",
		FieldErrorMessage: "insufficient funds",
	})

	outcome, err := f.intake.Handle(context.Background(), d)

	require.NoError(t, err)
	assert.True(t, outcome.Applied)

	stored := f.paymentRepo.StoredPayment(p.ID)
	assert.Equal(t, payment.StatusFailed, stored.Status)
	assert.Equal(t, "CARD_DECLINED", *stored.ErrorCode)
}

func TestIntake_DuplicateDeliveryShortCircuits(t *testing.T) {
	f := newIntakeFixture()
	p := testutil.NewProcessingPayment(payment.MethodMockPay, 1000, "tx-3")
	f.paymentRepo.AddPayment(p)

	d := signedDelivery(t, "req-3", map[string]string{
		FieldPaymentID:     p.ID.String(),
		FieldTransactionID: "tx-3",
		FieldStatus:        StatusSuccess,
	})

	first, err := f.intake.Handle(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, first.Applied)

	second, err := f.intake.Handle(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.False(t, second.Applied)

	// Exactly one event despite the redelivery.
	assert.Len(t, f.outboxRepo.Records(), 1)
	assert.Equal(t, payment.StatusCompleted, f.paymentRepo.StoredPayment(p.ID).Status)
}

func TestIntake_InvalidSignatureRejected(t *testing.T) {
	f := newIntakeFixture()
	p := testutil.NewProcessingPayment(payment.MethodMockPay, 1000, "tx-4")
	f.paymentRepo.AddPayment(p)

	d := signedDelivery(t, "req-4", map[string]string{
		FieldPaymentID:     p.ID.String(),
		FieldTransactionID: "tx-4",
		FieldStatus:        StatusSuccess,
	})
	// Tamper after signing.
	d.Fields[FieldStatus] = "failed"

	_, err := f.intake.Handle(context.Background(), d)

	assert.ErrorIs(t, err, domainErrors.ErrInvalidSignature)
	assert.Equal(t, payment.StatusProcessing, f.paymentRepo.StoredPayment(p.ID).Status)

	receipt, rerr := f.receipts.Get(context.Background(), testGateway, "req-4")
	require.NoError(t, rerr)
	require.NotNil(t, receipt)
	assert.False(t, receipt.IsProcessed)
	require.NotNil(t, receipt.FailureReason)
}

func TestIntake_UnparsablePaymentRefAbsorbed(t *testing.T) {
	f := newIntakeFixture()

	d := signedDelivery(t, "req-5", map[string]string{
		FieldPaymentID: "not-a-uuid",
		FieldStatus:    StatusSuccess,
	})

	outcome, err := f.intake.Handle(context.Background(), d)

	// Absorbed without error so the provider stops retrying.
	require.NoError(t, err)
	assert.False(t, outcome.Applied)

	receipt, rerr := f.receipts.Get(context.Background(), testGateway, "req-5")
	require.NoError(t, rerr)
	assert.False(t, receipt.IsProcessed)
}

func TestIntake_UnknownPaymentAbsorbed(t *testing.T) {
	f := newIntakeFixture()

	d := signedDelivery(t, "req-6", map[string]string{
		FieldPaymentID: uuid.New().String(),
		FieldStatus:    StatusSuccess,
	})

	outcome, err := f.intake.Handle(context.Background(), d)

	require.NoError(t, err)
	assert.False(t, outcome.Applied)
}

func TestIntake_TerminalPaymentCallbackAbsorbed(t *testing.T) {
	f := newIntakeFixture()
	p := testutil.NewProcessingPayment(payment.MethodMockPay, 1000, "tx-7")
	require.NoError(t, p.MarkAsFailed("CARD_DECLINED", "declined", "", "worker"))
	p.PullEvents()
	f.paymentRepo.AddPayment(p)

	// A late success callback for an already-failed payment cannot flip
	// the terminal state.
	d := signedDelivery(t, "req-7", map[string]string{
		FieldPaymentID:     p.ID.String(),
		FieldTransactionID: "tx-7",
		FieldStatus:        StatusSuccess,
	})

	outcome, err := f.intake.Handle(context.Background(), d)

	require.NoError(t, err)
	assert.False(t, outcome.Applied)
	assert.Equal(t, payment.StatusFailed, f.paymentRepo.StoredPayment(p.ID).Status)
}

func TestIntake_NoSecretConfigured(t *testing.T) {
	f := newIntakeFixture()
	intake := NewIntake(f.receipts, appPayment.NewStore(f.paymentRepo, f.outboxRepo, testutil.NewMockTransactionManager()), map[string]string{}, zerolog.Nop())

	d := signedDelivery(t, "req-8", map[string]string{
		FieldPaymentID: uuid.New().String(),
		FieldStatus:    StatusSuccess,
	})

	_, err := intake.Handle(context.Background(), d)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidSignature)
}
