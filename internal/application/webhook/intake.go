package webhook

import (
	"context"
	"fmt"

	appPayment "github.com/cassiomorais/paycore/internal/application/payment"
	domainErrors "github.com/cassiomorais/paycore/internal/domain/errors"
	"github.com/cassiomorais/paycore/internal/domain/webhook"
	"github.com/cassiomorais/paycore/internal/gateway"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Payload field names shared by the supported gateways' callbacks.
const (
	FieldRequestID     = "request_id"
	FieldPaymentID     = "payment_id"
	FieldTransactionID = "transaction_id"
	FieldStatus        = "status"
	FieldErrorCode     = "error_code"
	FieldErrorMessage  = "error_message"

	StatusSuccess = "success"
)

// Delivery is one inbound callback, already decoded into flat fields.
type Delivery struct {
	Gateway    string
	RequestID  string
	RawPayload string
	Fields     map[string]string
}

// Outcome reports how a delivery was handled.
type Outcome struct {
	Duplicate bool // an already-processed receipt short-circuited the delivery
	Applied   bool // the ledger was mutated
}

// Intake ingests gateway callbacks: deduplicates on (gateway, request_id),
// verifies the keyed signature and dispatches the verdict to the ledger.
type Intake struct {
	receipts webhook.Repository
	store    *appPayment.Store
	secrets  map[string]string // gateway name -> shared secret
	logger   zerolog.Logger
}

func NewIntake(receipts webhook.Repository, store *appPayment.Store, secrets map[string]string, logger zerolog.Logger) *Intake {
	return &Intake{receipts: receipts, store: store, secrets: secrets, logger: logger}
}

// Handle processes one delivery. It returns ErrInvalidSignature when the
// payload fails verification (the endpoint must answer with a client
// error) and nil for deliveries that were absorbed, even when the receipt
// was marked failed: an unparsable reference must not make the provider
// retry forever.
func (i *Intake) Handle(ctx context.Context, d Delivery) (Outcome, error) {
	receipt, inserted, err := i.receipts.TryInsert(ctx, webhook.NewReceipt(d.Gateway, d.RequestID, d.RawPayload))
	if err != nil {
		return Outcome{}, err
	}
	if !inserted {
		if receipt.IsProcessed {
			i.logger.Debug().
				Str("gateway", d.Gateway).
				Str("request_id", d.RequestID).
				Msg("duplicate webhook delivery, already processed")
			return Outcome{Duplicate: true}, nil
		}
		// The earlier delivery failed or is still in flight; reprocess
		// against the existing receipt.
	}

	if err := i.verifySignature(d); err != nil {
		i.failReceipt(ctx, receipt, "invalid signature")
		i.logger.Warn().
			Str("gateway", d.Gateway).
			Str("request_id", d.RequestID).
			Msg("webhook signature verification failed")
		return Outcome{}, err
	}

	paymentID, err := uuid.Parse(d.Fields[FieldPaymentID])
	if err != nil {
		i.failReceipt(ctx, receipt, fmt.Sprintf("unparsable payment reference %q", d.Fields[FieldPaymentID]))
		return Outcome{}, nil
	}

	if err := i.dispatch(ctx, d, paymentID); err != nil {
		i.failReceipt(ctx, receipt, err.Error())
		return Outcome{}, nil
	}

	receipt.MarkProcessed()
	if err := i.receipts.Update(ctx, receipt); err != nil {
		return Outcome{}, err
	}
	return Outcome{Applied: true}, nil
}

func (i *Intake) verifySignature(d Delivery) error {
	scheme, ok := gateway.SchemeFor(d.Gateway)
	if !ok {
		return domainErrors.ErrGatewayNotFound
	}
	secret, ok := i.secrets[d.Gateway]
	if !ok || secret == "" {
		return fmt.Errorf("no webhook secret configured for gateway %s: %w", d.Gateway, domainErrors.ErrInvalidSignature)
	}
	return scheme.Verify(d.Fields, []byte(secret))
}

func (i *Intake) dispatch(ctx context.Context, d Delivery, paymentID uuid.UUID) error {
	p, err := i.store.Payments().GetByID(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("load payment %s: %w", paymentID, err)
	}

	actor := "webhook:" + d.Gateway
	if d.Fields[FieldStatus] == StatusSuccess {
		err = p.Complete(d.Fields[FieldTransactionID], d.RawPayload, actor)
	} else {
		errorCode := d.Fields[FieldErrorCode]
		if errorCode == "" {
			errorCode = "GATEWAY_FAILED"
		}
		err = p.MarkAsFailed(errorCode, d.Fields[FieldErrorMessage], d.RawPayload, actor)
	}
	if err != nil {
		return err
	}

	return i.store.Save(ctx, p)
}

func (i *Intake) failReceipt(ctx context.Context, receipt *webhook.Receipt, reason string) {
	receipt.MarkFailed(reason)
	if err := i.receipts.Update(ctx, receipt); err != nil {
		i.logger.Error().Err(err).
			Str("receipt_id", receipt.ID.String()).
			Msg("failed to persist webhook receipt failure")
	}
}
